package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// createTestStore creates a new in-memory store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Memory)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Error("Open() accepted a database from a newer schema")
	}
}

func TestOpen_MemoryIsPrivate(t *testing.T) {
	a := createTestStore(t)
	b := createTestStore(t)
	ctx := context.Background()

	if err := a.WriteEndpoint(ctx, EndpointRow{ID: 3, Name: "a"}); err != nil {
		t.Fatalf("WriteEndpoint() failed: %v", err)
	}

	rows, err := b.ReadEndpoints(ctx)
	if err != nil {
		t.Fatalf("ReadEndpoints() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("second store sees %d endpoints, want 0", len(rows))
	}
}

func TestWriteEndpoint_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteEndpoint(ctx, EndpointRow{ID: 3, Name: "a", Inbound: 2}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := s.WriteEndpoint(ctx, EndpointRow{ID: 3, Name: "a", Inbound: 0, Interest: "read", Queued: true}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	got, err := s.ReadEndpoint(ctx, "a")
	if err != nil {
		t.Fatalf("ReadEndpoint() failed: %v", err)
	}
	want := EndpointRow{ID: 3, Name: "a", Inbound: 0, Interest: "read", Queued: true}
	if got != want {
		t.Errorf("ReadEndpoint() = %+v, want %+v", got, want)
	}
}

func TestReadEndpoint_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadEndpoint(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadEndpoint() error = %v, want sql.ErrNoRows", err)
	}
}

func TestReadEndpoints_OrderedByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, row := range []EndpointRow{{ID: 5, Name: "c"}, {ID: 3, Name: "a"}, {ID: 4, Name: "b"}} {
		if err := s.WriteEndpoint(ctx, row); err != nil {
			t.Fatalf("WriteEndpoint(%d) failed: %v", row.ID, err)
		}
	}

	rows, err := s.ReadEndpoints(ctx)
	if err != nil {
		t.Fatalf("ReadEndpoints() failed: %v", err)
	}
	var names string
	for _, r := range rows {
		names += r.Name
	}
	if names != "abc" {
		t.Errorf("endpoint order = %q, want %q", names, "abc")
	}
}

func TestReadDispatches_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, row := range []DispatchRow{
		{Seq: 2, ID: 4, Name: "b", Mask: "read"},
		{Seq: 1, ID: 3, Name: "a", Mask: "read"},
	} {
		if err := s.WriteDispatch(ctx, row); err != nil {
			t.Fatalf("WriteDispatch(%d) failed: %v", row.Seq, err)
		}
	}

	rows, err := s.ReadDispatches(ctx)
	if err != nil {
		t.Fatalf("ReadDispatches() failed: %v", err)
	}
	if len(rows) != 2 || rows[0].Seq != 1 || rows[1].Seq != 2 {
		t.Errorf("ReadDispatches() = %+v, want seq 1 then 2", rows)
	}
}

func TestWriteStep_RequiresChain(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteStep(context.Background(), StepRow{Chain: "ghost", Position: 1, Step: "x", State: "pending"})
	if err == nil {
		t.Error("WriteStep() accepted a step for a chain that was never written")
	}
}

func TestWriteSnapshot_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	snap := Snapshot{
		Endpoints:  []EndpointRow{{ID: 3, Name: "a", Subscribers: 1, Interest: "read"}},
		Dispatches: []DispatchRow{{Seq: 1, ID: 3, Name: "a", Mask: "read"}},
		Chains:     []ChainRow{{Name: "req", Token: "tok-1", Status: "failed"}},
		Steps: []StepRow{
			{Chain: "req", Position: 1, Step: "request read", State: "succeeded", Result: "request read result"},
			{Chain: "req", Position: 2, Step: "db query", State: "failed", Error: "db query failed"},
			{Chain: "req", Position: 3, Step: "api call", State: "pending"},
		},
	}
	if err := s.WriteSnapshot(ctx, snap); err != nil {
		t.Fatalf("WriteSnapshot() failed: %v", err)
	}
	// Same snapshot again leaves the tables unchanged.
	if err := s.WriteSnapshot(ctx, snap); err != nil {
		t.Fatalf("second WriteSnapshot() failed: %v", err)
	}

	chain, steps, err := s.ReadChain(ctx, "req")
	if err != nil {
		t.Fatalf("ReadChain() failed: %v", err)
	}
	if chain != snap.Chains[0] {
		t.Errorf("chain = %+v, want %+v", chain, snap.Chains[0])
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}
	for i := range steps {
		if steps[i] != snap.Steps[i] {
			t.Errorf("step %d = %+v, want %+v", i, steps[i], snap.Steps[i])
		}
	}
}

func TestWriteSnapshot_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	snap := Snapshot{
		Endpoints: []EndpointRow{{ID: 3, Name: "a"}},
		Steps:     []StepRow{{Chain: "ghost", Position: 1, Step: "x", State: "pending"}},
	}
	if err := s.WriteSnapshot(ctx, snap); err == nil {
		t.Fatal("WriteSnapshot() succeeded with a dangling step")
	}

	rows, err := s.ReadEndpoints(ctx)
	if err != nil {
		t.Fatalf("ReadEndpoints() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("endpoint rows survived rollback: %+v", rows)
	}
}

func TestQuery(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteEndpoint(ctx, EndpointRow{ID: 3, Name: "a", Inbound: 4}); err != nil {
		t.Fatalf("WriteEndpoint() failed: %v", err)
	}

	rows, err := s.Query(ctx, "SELECT inbound FROM endpoints WHERE name = ?", "a")
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatal("Query() returned no rows")
	}
	var inbound int
	if err := rows.Scan(&inbound); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if inbound != 4 {
		t.Errorf("inbound = %d, want 4", inbound)
	}
}

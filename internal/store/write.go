package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pollsim/internal/kernel"
)

// EndpointRow is one row of the endpoints table.
type EndpointRow struct {
	ID          kernel.ID
	Name        string
	Inbound     int
	Outbound    int
	Subscribers int
	Interest    string
	Queued      bool
}

// DispatchRow is one row of the dispatches table.
type DispatchRow struct {
	Seq  int64
	ID   kernel.ID
	Name string
	Mask string
}

// ChainRow is one row of the chains table.
type ChainRow struct {
	Name   string
	Token  string
	Status string
}

// StepRow is one row of the chain_steps table.
type StepRow struct {
	Chain    string
	Position int
	Step     string
	State    string
	Result   string
	Error    string
}

// Snapshot is everything written at the end of a run.
type Snapshot struct {
	Endpoints  []EndpointRow
	Dispatches []DispatchRow
	Chains     []ChainRow
	Steps      []StepRow
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteEndpoint upserts an endpoint row.
func (s *Store) WriteEndpoint(ctx context.Context, row EndpointRow) error {
	return writeEndpoint(ctx, s.db, row)
}

// WriteDispatch upserts a dispatch row.
func (s *Store) WriteDispatch(ctx context.Context, row DispatchRow) error {
	return writeDispatch(ctx, s.db, row)
}

// WriteChain upserts a chain row. Steps reference chains, so write the
// chain first.
func (s *Store) WriteChain(ctx context.Context, row ChainRow) error {
	return writeChain(ctx, s.db, row)
}

// WriteStep upserts a chain step row.
func (s *Store) WriteStep(ctx context.Context, row StepRow) error {
	return writeStep(ctx, s.db, row)
}

// WriteSnapshot writes every row of snap in one transaction. Either all
// rows land or none do.
func (s *Store) WriteSnapshot(ctx context.Context, snap Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write snapshot: begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, row := range snap.Endpoints {
		if err = writeEndpoint(ctx, tx, row); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	for _, row := range snap.Dispatches {
		if err = writeDispatch(ctx, tx, row); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	for _, row := range snap.Chains {
		if err = writeChain(ctx, tx, row); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	for _, row := range snap.Steps {
		if err = writeStep(ctx, tx, row); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("write snapshot: commit: %w", err)
	}
	return nil
}

func writeEndpoint(ctx context.Context, db execer, row EndpointRow) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO endpoints (id, name, inbound, outbound, subscribers, interest, queued)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			inbound = excluded.inbound,
			outbound = excluded.outbound,
			subscribers = excluded.subscribers,
			interest = excluded.interest,
			queued = excluded.queued
	`,
		int64(row.ID),
		row.Name,
		row.Inbound,
		row.Outbound,
		row.Subscribers,
		row.Interest,
		row.Queued,
	)
	if err != nil {
		return fmt.Errorf("write endpoint %d: %w", row.ID, err)
	}
	return nil
}

func writeDispatch(ctx context.Context, db execer, row DispatchRow) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO dispatches (seq, id, name, mask)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(seq) DO UPDATE SET
			id = excluded.id,
			name = excluded.name,
			mask = excluded.mask
	`, row.Seq, int64(row.ID), row.Name, row.Mask)
	if err != nil {
		return fmt.Errorf("write dispatch %d: %w", row.Seq, err)
	}
	return nil
}

func writeChain(ctx context.Context, db execer, row ChainRow) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO chains (name, token, status)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			token = excluded.token,
			status = excluded.status
	`, row.Name, row.Token, row.Status)
	if err != nil {
		return fmt.Errorf("write chain %q: %w", row.Name, err)
	}
	return nil
}

func writeStep(ctx context.Context, db execer, row StepRow) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO chain_steps (chain, position, step, state, result, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chain, position) DO UPDATE SET
			step = excluded.step,
			state = excluded.state,
			result = excluded.result,
			error = excluded.error
	`, row.Chain, row.Position, row.Step, row.State, row.Result, row.Error)
	if err != nil {
		return fmt.Errorf("write step %s/%d: %w", row.Chain, row.Position, err)
	}
	return nil
}

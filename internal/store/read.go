package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pollsim/internal/kernel"
)

// ReadEndpoints returns every endpoint row ordered by id.
func (s *Store) ReadEndpoints(ctx context.Context) ([]EndpointRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, inbound, outbound, subscribers, interest, queued
		FROM endpoints
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read endpoints: %w", err)
	}
	defer rows.Close()

	var out []EndpointRow
	for rows.Next() {
		var row EndpointRow
		var id int64
		if err := rows.Scan(&id, &row.Name, &row.Inbound, &row.Outbound, &row.Subscribers, &row.Interest, &row.Queued); err != nil {
			return nil, fmt.Errorf("read endpoints: scan: %w", err)
		}
		row.ID = kernel.ID(id)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ReadEndpoint returns the endpoint named name, or sql.ErrNoRows.
func (s *Store) ReadEndpoint(ctx context.Context, name string) (EndpointRow, error) {
	var row EndpointRow
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, inbound, outbound, subscribers, interest, queued
		FROM endpoints
		WHERE name = ?
	`, name).Scan(&id, &row.Name, &row.Inbound, &row.Outbound, &row.Subscribers, &row.Interest, &row.Queued)
	if err != nil {
		return EndpointRow{}, fmt.Errorf("read endpoint %q: %w", name, err)
	}
	row.ID = kernel.ID(id)
	return row, nil
}

// ReadDispatches returns every dispatch ordered by seq.
func (s *Store) ReadDispatches(ctx context.Context) ([]DispatchRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, name, mask
		FROM dispatches
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read dispatches: %w", err)
	}
	defer rows.Close()

	var out []DispatchRow
	for rows.Next() {
		var row DispatchRow
		var id int64
		if err := rows.Scan(&row.Seq, &id, &row.Name, &row.Mask); err != nil {
			return nil, fmt.Errorf("read dispatches: scan: %w", err)
		}
		row.ID = kernel.ID(id)
		out = append(out, row)
	}
	return out, rows.Err()
}

// ReadChain returns a chain row and its steps ordered by position.
func (s *Store) ReadChain(ctx context.Context, name string) (ChainRow, []StepRow, error) {
	var chain ChainRow
	err := s.db.QueryRowContext(ctx, `
		SELECT name, token, status FROM chains WHERE name = ?
	`, name).Scan(&chain.Name, &chain.Token, &chain.Status)
	if err != nil {
		return ChainRow{}, nil, fmt.Errorf("read chain %q: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chain, position, step, state, result, error
		FROM chain_steps
		WHERE chain = ?
		ORDER BY position ASC
	`, name)
	if err != nil {
		return ChainRow{}, nil, fmt.Errorf("read chain %q steps: %w", name, err)
	}
	defer rows.Close()

	steps, err := scanSteps(rows)
	if err != nil {
		return ChainRow{}, nil, fmt.Errorf("read chain %q steps: %w", name, err)
	}
	return chain, steps, nil
}

func scanSteps(rows *sql.Rows) ([]StepRow, error) {
	var out []StepRow
	for rows.Next() {
		var row StepRow
		if err := rows.Scan(&row.Chain, &row.Position, &row.Step, &row.State, &row.Result, &row.Error); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

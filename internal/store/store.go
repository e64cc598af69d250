// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store keeps an SQLite audit log of classification cycles and the
// per-round predictions behind each decision.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relabs-tech/activity_classifier/internal/activity"
	"github.com/relabs-tech/activity_classifier/internal/prediction"
	"github.com/relabs-tech/activity_classifier/internal/sampling"
)

// ErrNotFound is returned when a cycle id is not in the log.
var ErrNotFound = errors.New("store: cycle not found")

// Store wraps the audit database.
type Store struct {
	db *sql.DB
}

// Cycle is one logged cycle.
type Cycle struct {
	ID          string                  `json:"cycle_id"`
	State       sampling.State          `json:"state"`
	Decision    activity.Predicted      `json:"decision"`
	Rounds      int                     `json:"rounds"`
	Error       string                  `json:"error,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Predictions []prediction.Prediction `json:"predictions,omitempty"`
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordOutcome logs a finished cycle and its predictions in one transaction.
func (s *Store) RecordOutcome(ctx context.Context, out sampling.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles (cycle_id, state, activity, confidence, rounds, error, started_at_ms, finished_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.CycleID, out.State.String(), out.Decision.Type.String(), out.Decision.Confidence,
		out.Rounds, out.Error, out.StartedAt.UnixMilli(), out.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert cycle %s: %w", out.CycleID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO predictions (cycle_id, round, position, started_at_ms, activity, confidence)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare prediction insert: %w", err)
	}
	defer stmt.Close()

	for round, p := range out.Predictions {
		for pos, a := range p.Activities {
			if _, err := stmt.ExecContext(ctx, out.CycleID, round, pos, p.StartedAt.UnixMilli(), a.Type.String(), a.Confidence); err != nil {
				return fmt.Errorf("store: insert prediction %s/%d: %w", out.CycleID, round, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// ListCycles returns up to limit cycles, most recently finished first,
// without their predictions.
func (s *Store) ListCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, state, activity, confidence, rounds, error, started_at_ms, finished_at_ms
		FROM cycles
		ORDER BY finished_at_ms DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// GetCycle returns one cycle with its predictions in round order.
func (s *Store) GetCycle(ctx context.Context, id string) (Cycle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT cycle_id, state, activity, confidence, rounds, error, started_at_ms, finished_at_ms
		FROM cycles WHERE cycle_id = ?`, id)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Cycle{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Cycle{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT round, started_at_ms, activity, confidence
		FROM predictions WHERE cycle_id = ?
		ORDER BY round, position`, id)
	if err != nil {
		return Cycle{}, fmt.Errorf("store: predictions for %s: %w", id, err)
	}
	defer rows.Close()

	lastRound := -1
	for rows.Next() {
		var (
			round     int
			startedMS int64
			name      string
			conf      float64
		)
		if err := rows.Scan(&round, &startedMS, &name, &conf); err != nil {
			return Cycle{}, fmt.Errorf("store: scan prediction: %w", err)
		}
		typ, err := activity.Parse(name)
		if err != nil {
			return Cycle{}, fmt.Errorf("store: prediction %s/%d: %w", id, round, err)
		}
		if round != lastRound {
			c.Predictions = append(c.Predictions, prediction.Prediction{StartedAt: time.UnixMilli(startedMS).UTC()})
			lastRound = round
		}
		p := &c.Predictions[len(c.Predictions)-1]
		p.Activities = append(p.Activities, activity.Predicted{Type: typ, Confidence: conf})
	}
	return c, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(sc scanner) (Cycle, error) {
	var (
		c                     Cycle
		state, name           string
		startedMS, finishedMS int64
	)
	err := sc.Scan(&c.ID, &state, &name, &c.Decision.Confidence, &c.Rounds, &c.Error, &startedMS, &finishedMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cycle{}, err
		}
		return Cycle{}, fmt.Errorf("store: scan cycle: %w", err)
	}
	if err := c.State.UnmarshalText([]byte(state)); err != nil {
		return Cycle{}, fmt.Errorf("store: cycle %s: %w", c.ID, err)
	}
	if c.Decision.Type, err = activity.Parse(name); err != nil {
		return Cycle{}, fmt.Errorf("store: cycle %s: %w", c.ID, err)
	}
	c.StartedAt = time.UnixMilli(startedMS).UTC()
	c.FinishedAt = time.UnixMilli(finishedMS).UTC()
	return c, nil
}

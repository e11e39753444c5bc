package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type RunHistory struct {
	DB *sql.DB
}

func NewRunHistory(dbPath string) (*RunHistory, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			identity TEXT,
			request TEXT,
			status TEXT,
			report TEXT,
			error TEXT,
			steps INTEGER,
			started_at TEXT,
			finished_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS runs_identity_idx ON runs (identity, finished_at);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing run history: %w", err)
		}
	}

	return &RunHistory{DB: db}, nil
}

func (h *RunHistory) Record(ctx context.Context, r RunRecord) error {
	query := `INSERT INTO runs (id, identity, request, status, report, error, steps, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := h.DB.ExecContext(ctx, query,
		r.ID, r.Identity, r.Request, r.Status, r.Report, r.Error, r.Steps,
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
	)
	return err
}

// Recent returns the latest runs of an identity, newest first.
func (h *RunHistory) Recent(ctx context.Context, identity string, limit int) ([]RunRecord, error) {
	query := `SELECT id, identity, request, status, report, error, steps, started_at, finished_at
		FROM runs WHERE identity = ? ORDER BY finished_at DESC LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Identity, &r.Request, &r.Status, &r.Report, &r.Error, &r.Steps, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (h *RunHistory) Close() error {
	return h.DB.Close()
}

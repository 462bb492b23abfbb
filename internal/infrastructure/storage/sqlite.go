package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_scale_out/internal/domain"
)

// SQLiteJournal is a write-only trade journal. It records the run and every
// order event for after-the-fact reconstruction; nothing is read back and no
// lifecycle state survives a restart.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			amount REAL NOT NULL,
			entry_price REAL NOT NULL,
			stop_price REAL NOT NULL,
			exit_mode TEXT NOT NULL,
			started_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS order_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			cid INTEGER NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			price REAL NOT NULL,
			amount REAL NOT NULL,
			note TEXT,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_order_events_run ON order_events(run_id);`,
	}

	for _, q := range queries {
		if _, err := j.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	return nil
}

func (j *SQLiteJournal) SaveRun(ctx context.Context, run *domain.Run) error {
	query := `INSERT INTO runs (id, symbol, amount, entry_price, stop_price, exit_mode, started_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, query,
		run.ID, run.Symbol, run.Amount, run.EntryPrice, run.StopPrice, run.ExitMode, run.StartedAt)
	return err
}

func (j *SQLiteJournal) SaveOrderEvent(ctx context.Context, ev *domain.OrderEvent) error {
	query := `INSERT INTO order_events (run_id, cid, kind, status, price, amount, note, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, query,
		ev.RunID, ev.CID, ev.Kind, ev.Status, ev.Price, ev.Amount, ev.Note, ev.CreatedAt)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

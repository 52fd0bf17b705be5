// Package sqlite is the persisted-bar collaborator: it backfills recent bar
// history into the state store at startup and journals emitted signals.
// Live in-memory state is never persisted here.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"scanner-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a SQLite database holding historical bars and a signal journal.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database in WAL mode and ensures the schema exists.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("[sqlite] opened database", "path", dbPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			ticker  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			date    TEXT    NOT NULL,
			time    TEXT    NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL    NOT NULL,
			is_rth  INTEGER NOT NULL,
			PRIMARY KEY (ticker, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			ticker     TEXT    NOT NULL,
			pattern    TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			time       TEXT    NOT NULL,
			entry      REAL    NOT NULL,
			stop       REAL    NOT NULL,
			target     REAL    NOT NULL,
			confidence INTEGER NOT NULL,
			data       TEXT,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
			PRIMARY KEY (ticker, pattern, ts)
		);
	`)
	return err
}

// ReadBars returns up to limit of the most recent persisted bars for ticker,
// in chronological order for replay into the state store.
func (s *Store) ReadBars(ticker string, limit int) ([]model.Bar, error) {
	rows, err := s.db.Query(`
		SELECT ticker, ts, date, time, open, high, low, close, volume, is_rth
		FROM (
			SELECT * FROM bars WHERE ticker = ? ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC
	`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var rth int
		if err := rows.Scan(&b.Ticker, &b.Timestamp, &b.Date, &b.Time,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &rth); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.IsRTH = rth != 0
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// WriteBar upserts one bar into the historical table.
func (s *Store) WriteBar(ctx context.Context, b *model.Bar) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bars (ticker, ts, date, time, open, high, low, close, volume, is_rth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, ts) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume
	`, b.Ticker, b.Timestamp, b.Date, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume, boolToInt(b.IsRTH))
	if err != nil {
		return fmt.Errorf("sqlite write bar: %w", err)
	}
	return nil
}

// WriteSignal journals one emitted signal. Duplicate journaling of the same
// ticker/pattern/timestamp is ignored.
func (s *Store) WriteSignal(ctx context.Context, sig *model.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals (ticker, pattern, ts, time, entry, stop, target, confidence, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.Ticker, sig.Pattern, sig.Timestamp, sig.Time,
		sig.Entry, sig.Stop, sig.Target, sig.Confidence, string(sig.JSON()))
	if err != nil {
		return fmt.Errorf("sqlite write signal: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

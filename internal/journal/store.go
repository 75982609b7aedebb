// Package journal keeps a SQLite record of accepted trading signals.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"relaybot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.SignalJournal using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Record stores one accepted signal.
func (s *SQLiteStore) Record(ctx context.Context, rec domain.SignalRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	entries, err := json.Marshal(rec.Signal.Entries)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}

	sig := rec.Signal
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO signals (id, source, symbol, side, entries, risk_percent, leverage,
			stop_loss, stop_loss_condition, take_profit, quantity, confidence, reasoning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, sig.Symbol, string(sig.Side), string(entries), sig.RiskPercent, sig.Leverage,
		sig.StopLoss, sig.StopLossCondition, sig.TakeProfit, sig.Quantity, sig.Confidence, sig.Reasoning,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", rec.ID, err)
	}
	s.logger.Debug("signal journaled", "id", rec.ID, "symbol", sig.Symbol)
	return nil
}

// Recent returns up to limit signals, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.SignalRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, symbol, side, entries, risk_percent, leverage, stop_loss,
			stop_loss_condition, take_profit, quantity, confidence, reasoning, created_at
		 FROM signals ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []domain.SignalRecord
	for rows.Next() {
		var (
			rec        domain.SignalRecord
			side       string
			entries    string
			takeProfit sql.NullFloat64
			quantity   sql.NullFloat64
		)
		sig := &rec.Signal
		if err := rows.Scan(&rec.ID, &rec.Source, &sig.Symbol, &side, &entries, &sig.RiskPercent,
			&sig.Leverage, &sig.StopLoss, &sig.StopLossCondition, &takeProfit, &quantity,
			&sig.Confidence, &sig.Reasoning, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Side = domain.Side(side)
		if err := json.Unmarshal([]byte(entries), &sig.Entries); err != nil {
			return nil, fmt.Errorf("decode entries of %s: %w", rec.ID, err)
		}
		if takeProfit.Valid {
			sig.TakeProfit = &takeProfit.Float64
		}
		if quantity.Valid {
			sig.Quantity = &quantity.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable and writable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _ping (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, _ = s.db.ExecContext(ctx, "DROP TABLE IF EXISTS _ping")
	return nil
}

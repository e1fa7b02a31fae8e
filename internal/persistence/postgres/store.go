// Package postgres is the database-backed implementation of the accuracy
// store boundary for deployments that outgrow the flat file.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/marketvet/marketvet/internal/accuracy"
)

// Schema holds both accuracy tables. Applied by EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS accuracy_records (
    indicator_id    TEXT NOT NULL,
    symbol          TEXT NOT NULL DEFAULT '',
    total_signals   BIGINT NOT NULL,
    correct_signals BIGINT NOT NULL,
    accuracy        DOUBLE PRECISION NOT NULL,
    last_updated    TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (indicator_id, symbol)
);

CREATE TABLE IF NOT EXISTS trade_outcomes (
    id               BIGSERIAL PRIMARY KEY,
    ts               TIMESTAMPTZ NOT NULL,
    symbol           TEXT NOT NULL,
    predicted_action TEXT NOT NULL,
    actual_action    TEXT NOT NULL,
    success          BOOLEAN NOT NULL,
    pnl_pct          DOUBLE PRECISION NOT NULL,
    indicators_used  JSONB NOT NULL
);
`

// Store persists the accuracy tables in PostgreSQL. Saves rewrite both
// tables in one transaction, matching the read-once/rewrite-fully contract of
// the file store.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects and applies the schema.
func Open(dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{db: db, timeout: timeout}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing connection (used by tests).
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// EnsureSchema creates both tables when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply accuracy schema: %w", err)
	}
	return nil
}

type recordRow struct {
	IndicatorID    string    `db:"indicator_id"`
	Symbol         string    `db:"symbol"`
	TotalSignals   int       `db:"total_signals"`
	CorrectSignals int       `db:"correct_signals"`
	Accuracy       float64   `db:"accuracy"`
	LastUpdated    time.Time `db:"last_updated"`
}

type outcomeRow struct {
	Timestamp       time.Time `db:"ts"`
	Symbol          string    `db:"symbol"`
	PredictedAction string    `db:"predicted_action"`
	ActualAction    string    `db:"actual_action"`
	Success         bool      `db:"success"`
	PnLPct          float64   `db:"pnl_pct"`
	IndicatorsUsed  []byte    `db:"indicators_used"`
}

// Load reads both tables.
func (s *Store) Load() ([]accuracy.Record, []accuracy.Outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var recRows []recordRow
	err := s.db.SelectContext(ctx, &recRows, `
		SELECT indicator_id, symbol, total_signals, correct_signals, accuracy, last_updated
		FROM accuracy_records
		ORDER BY indicator_id, symbol`)
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, fmt.Errorf("load accuracy records: %w", err)
	}

	var outRows []outcomeRow
	err = s.db.SelectContext(ctx, &outRows, `
		SELECT ts, symbol, predicted_action, actual_action, success, pnl_pct, indicators_used
		FROM trade_outcomes
		ORDER BY id`)
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, fmt.Errorf("load trade outcomes: %w", err)
	}

	records := make([]accuracy.Record, 0, len(recRows))
	for _, r := range recRows {
		records = append(records, accuracy.Record{
			IndicatorID:    r.IndicatorID,
			Symbol:         r.Symbol,
			TotalSignals:   r.TotalSignals,
			CorrectSignals: r.CorrectSignals,
			Accuracy:       r.Accuracy,
			LastUpdated:    r.LastUpdated,
		})
	}
	outcomes := make([]accuracy.Outcome, 0, len(outRows))
	for _, r := range outRows {
		var used map[string]string
		if err := json.Unmarshal(r.IndicatorsUsed, &used); err != nil {
			return nil, nil, fmt.Errorf("decode indicators_used: %w", err)
		}
		outcomes = append(outcomes, accuracy.Outcome{
			Timestamp:       r.Timestamp,
			Symbol:          r.Symbol,
			PredictedAction: r.PredictedAction,
			ActualAction:    r.ActualAction,
			Success:         r.Success,
			PnLPct:          r.PnLPct,
			IndicatorsUsed:  used,
		})
	}
	return records, outcomes, nil
}

// Save rewrites both tables atomically.
func (s *Store) Save(records []accuracy.Record, outcomes []accuracy.Outcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin accuracy save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM accuracy_records`); err != nil {
		return fmt.Errorf("clear accuracy records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_outcomes`); err != nil {
		return fmt.Errorf("clear trade outcomes: %w", err)
	}

	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accuracy_records
				(indicator_id, symbol, total_signals, correct_signals, accuracy, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			r.IndicatorID, r.Symbol, r.TotalSignals, r.CorrectSignals, r.Accuracy, r.LastUpdated,
		); err != nil {
			return fmt.Errorf("insert accuracy record %s/%s: %w", r.IndicatorID, r.Symbol, err)
		}
	}
	for _, o := range outcomes {
		used, err := json.Marshal(o.IndicatorsUsed)
		if err != nil {
			return fmt.Errorf("encode indicators_used: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trade_outcomes
				(ts, symbol, predicted_action, actual_action, success, pnl_pct, indicators_used)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.Timestamp, o.Symbol, o.PredictedAction, o.ActualAction, o.Success, o.PnLPct, used,
		); err != nil {
			return fmt.Errorf("insert trade outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit accuracy save: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

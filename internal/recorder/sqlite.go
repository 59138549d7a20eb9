package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists trades to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("path", dbPath).Msg("sqlite trade journal opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			symbol      TEXT NOT NULL,
			action      TEXT NOT NULL,
			price       REAL,
			quantity    REAL,
			stop_loss   REAL,
			take_profit REAL,
			confidence  REAL,
			reasoning   TEXT,
			risk_level  TEXT,
			order_id    TEXT,
			dry_run     INTEGER,
			snapshot    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordTrade(rec TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snapshot []byte
	if rec.Snapshot != nil {
		var err error
		if snapshot, err = json.Marshal(rec.Snapshot); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
	}
	_, err := r.db.Exec(`INSERT INTO trades
		(timestamp, symbol, action, price, quantity, stop_loss, take_profit,
		 confidence, reasoning, risk_level, order_id, dry_run, snapshot)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.Time.UnixMilli(), rec.Symbol, rec.Action, rec.Price, rec.Quantity,
		rec.StopLoss, rec.TakeProfit, rec.Confidence, rec.Reasoning, rec.RiskLevel,
		rec.OrderID, rec.DryRun, string(snapshot),
	)
	return err
}

func (r *SQLiteRecorder) Stats() (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT symbol, action, confidence FROM trades`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	acc := newAccumulator()
	for rows.Next() {
		var symbol, action string
		var confidence sql.NullFloat64
		if err := rows.Scan(&symbol, &action, &confidence); err != nil {
			return Stats{}, err
		}
		acc.add(symbol, action, confidence.Float64)
	}
	return acc.stats(), rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite trade journal")
	return r.db.Close()
}

// Package store persists runs and their flow metrics in MySQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iti/ltesim"
)

// Run is the row describing one experiment run
type Run struct {
	ID           string
	Variant      string
	Seed         string
	UEs          int
	ENBs         int
	SimSeconds   float64
	Status       string
	ErrorMessage sql.NullString
}

// run states
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id            CHAR(36) PRIMARY KEY,
		variant       VARCHAR(32) NOT NULL,
		seed          VARCHAR(64) NOT NULL,
		ues           INT NOT NULL,
		enbs          INT NOT NULL,
		sim_seconds   DOUBLE NOT NULL,
		status        VARCHAR(16) NOT NULL,
		error_message TEXT NULL,
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at  TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS flow_metrics (
		run_id          CHAR(36) NOT NULL,
		flow_id         INT UNSIGNED NOT NULL,
		protocol        VARCHAR(8) NOT NULL,
		src_addr        VARCHAR(45) NOT NULL,
		src_port        SMALLINT UNSIGNED NOT NULL,
		dst_addr        VARCHAR(45) NOT NULL,
		dst_port        SMALLINT UNSIGNED NOT NULL,
		tx_packets      BIGINT UNSIGNED NOT NULL,
		rx_packets      BIGINT UNSIGNED NOT NULL,
		tx_bytes        BIGINT UNSIGNED NOT NULL,
		rx_bytes        BIGINT UNSIGNED NOT NULL,
		throughput_kbps DOUBLE NULL,
		mean_delay_ms   DOUBLE NULL,
		mean_jitter_ms  DOUBLE NULL,
		lost_packets    BIGINT NOT NULL,
		loss_percent    DOUBLE NULL,
		PRIMARY KEY (run_id, flow_id),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	)`,
}

// Store wraps a sql.DB holding runs and flow metrics.
type Store struct {
	db *sql.DB
}

// New opens a MySQL connection and verifies connectivity.
func New(dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already opened database
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables when they do not exist yet
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// CreateRun inserts a new run row.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	query := `
		INSERT INTO runs (id, variant, seed, ues, enbs, sim_seconds, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Variant, run.Seed, run.UEs, run.ENBs, run.SimSeconds, run.Status)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run and, on failure, why
func (s *Store) FinishRun(ctx context.Context, runID, status string, runErr error) error {
	msg := sql.NullString{}
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	query := `UPDATE runs SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, status, msg, runID); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// nullable maps NaN, which MySQL cannot store in a DOUBLE, to NULL
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// InsertFlowMetrics stores the metrics of every flow of a run in one transaction
func (s *Store) InsertFlowMetrics(ctx context.Context, runID string, metrics []ltesim.FlowMetrics) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flow_metrics (run_id, flow_id, protocol, src_addr, src_port, dst_addr, dst_port,
			tx_packets, rx_packets, tx_bytes, rx_bytes,
			throughput_kbps, mean_delay_ms, mean_jitter_ms, lost_packets, loss_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, fm := range metrics {
		_, err = stmt.ExecContext(ctx,
			runID, uint32(fm.FlowID), fm.Tuple.Protocol.String(),
			fm.Tuple.SrcAddr.String(), fm.Tuple.SrcPort,
			fm.Tuple.DstAddr.String(), fm.Tuple.DstPort,
			fm.TxPackets, fm.RxPackets, fm.TxBytes, fm.RxBytes,
			nullable(fm.ThroughputKbps), nullable(fm.MeanDelayMs), nullable(fm.MeanJitterMs),
			fm.LostPackets, nullable(fm.LossPercent),
		)
		if err != nil {
			return fmt.Errorf("insert flow %d: %w", fm.FlowID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetRun returns run metadata by ID, or nil when there is no such run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	query := `
		SELECT id, variant, seed, ues, enbs, sim_seconds, status, error_message
		FROM runs WHERE id = ?
	`
	var run Run
	if err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID,
		&run.Variant,
		&run.Seed,
		&run.UEs,
		&run.ENBs,
		&run.SimSeconds,
		&run.Status,
		&run.ErrorMessage,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select run: %w", err)
	}
	return &run, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/domain/repository"
)

// SQLiteWeightStore keeps the latest learner snapshot plus a history of
// saved snapshots in an embedded database.
type SQLiteWeightStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteWeightStore opens (or creates) the database at path and migrates it.
func NewSQLiteWeightStore(path string) (*SQLiteWeightStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLiteWeightStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteWeightStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS weight_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			saved_at   INTEGER NOT NULL,
			threshold  REAL NOT NULL,
			total      INTEGER NOT NULL,
			accuracy   REAL NOT NULL,
			state      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_weight_snapshots_saved ON weight_snapshots(saved_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteWeightStore) Load(ctx context.Context) (models.WeightState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM weight_snapshots ORDER BY id DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WeightState{}, models.ErrNoData
	}
	if err != nil {
		return models.WeightState{}, fmt.Errorf("load weights: %w", err)
	}
	var st models.WeightState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return models.WeightState{}, fmt.Errorf("decode weights: %w", err)
	}
	return st, nil
}

func (s *SQLiteWeightStore) Save(ctx context.Context, st models.WeightState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	savedAt := st.UpdatedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO weight_snapshots (saved_at, threshold, total, accuracy, state) VALUES (?, ?, ?, ?, ?)`,
		savedAt.Unix(), st.ConfidenceThreshold, st.Performance.Total, st.Performance.Accuracy, string(raw))
	if err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

// History returns how many snapshots have been saved.
func (s *SQLiteWeightStore) History(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weight_snapshots`).Scan(&n)
	return n, err
}

func (s *SQLiteWeightStore) Close() error {
	return s.db.Close()
}

var _ repository.WeightStore = (*SQLiteWeightStore)(nil)

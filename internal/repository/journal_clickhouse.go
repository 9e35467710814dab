package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/domain/repository"
	pkgch "SignalPulse/pkg/clickhouse"
)

const (
	signalsTable  = "signals"
	outcomesTable = "signal_outcomes"
)

// ClickHouseJournal stores emitted signals and outcome records. Rows expire
// after ttlDays.
type ClickHouseJournal struct {
	db      *sql.DB
	ttlDays int
}

func NewClickHouseJournal(db *sql.DB, ttlDays int) *ClickHouseJournal {
	if ttlDays < 1 {
		ttlDays = 30
	}
	return &ClickHouseJournal{db: db, ttlDays: ttlDays}
}

func journalSchema(ttlDays int) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id String,
	lock_id String,
	instrument_id LowCardinality(String),
	category LowCardinality(String),
	direction LowCardinality(String),
	price Decimal(38, 10),
	confidence Float64,
	stability Float64,
	stop_loss Decimal(38, 10),
	take_profit Decimal(38, 10),
	risk_reward Float64,
	reason String,
	votes String,
	emitted_at DateTime64(3, 'UTC'),
	expires_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY (instrument_id, emitted_at, id)
TTL toDateTime(emitted_at) + INTERVAL %d DAY`, signalsTable, ttlDays),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	signal_id String,
	lock_id String,
	instrument_id LowCardinality(String),
	signal_direction LowCardinality(String),
	realized_direction LowCardinality(String),
	classification LowCardinality(String),
	resolution LowCardinality(String),
	entry_price Decimal(38, 10),
	exit_price Decimal(38, 10),
	magnitude Float64,
	votes String,
	emitted_at DateTime64(3, 'UTC'),
	resolved_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY (instrument_id, resolved_at, lock_id)
TTL toDateTime(resolved_at) + INTERVAL %d DAY`, outcomesTable, ttlDays),
	}
}

func (s *ClickHouseJournal) Init(ctx context.Context) error {
	return pkgch.ApplySchema(ctx, s.db, journalSchema(s.ttlDays))
}

func signalArgs(sig models.Signal) ([]interface{}, error) {
	votes, err := json.Marshal(sig.Votes)
	if err != nil {
		return nil, fmt.Errorf("encode votes: %w", err)
	}
	return []interface{}{
		sig.ID, sig.LockID, sig.InstrumentID, string(sig.Category), string(sig.Direction),
		sig.Price, sig.Confidence, sig.Stability, sig.StopLoss, sig.TakeProfit, sig.RiskReward,
		sig.Reason, string(votes), sig.EmittedAt.UTC(), sig.ExpiresAt.UTC(),
	}, nil
}

func (s *ClickHouseJournal) StoreSignal(ctx context.Context, sig models.Signal) error {
	args, err := signalArgs(sig)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, lock_id, instrument_id, category, direction, price, confidence,
	stability, stop_loss, take_profit, risk_reward, reason, votes, emitted_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, signalsTable)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert signal %s: %w", sig.ID, err)
	}
	return nil
}

func outcomeArgs(r models.OutcomeRecord) ([]interface{}, error) {
	votes, err := json.Marshal(r.Votes)
	if err != nil {
		return nil, fmt.Errorf("encode votes: %w", err)
	}
	return []interface{}{
		r.SignalID, r.LockID, r.InstrumentID, string(r.SignalDirection), string(r.RealizedDirection),
		string(r.Classification), string(r.Resolution), r.EntryPrice, r.ExitPrice, r.Magnitude,
		string(votes), r.EmittedAt.UTC(), r.ResolvedAt.UTC(),
	}, nil
}

func (s *ClickHouseJournal) StoreOutcome(ctx context.Context, r models.OutcomeRecord) error {
	args, err := outcomeArgs(r)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (signal_id, lock_id, instrument_id, signal_direction, realized_direction,
	classification, resolution, entry_price, exit_price, magnitude, votes, emitted_at, resolved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, outcomesTable)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert outcome %s: %w", r.LockID, err)
	}
	return nil
}

// RecentOutcomes lists outcomes resolved at or after since, newest first.
// An empty instrument matches all.
func (s *ClickHouseJournal) RecentOutcomes(ctx context.Context, instrument string, since time.Time, limit int) ([]models.OutcomeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`SELECT signal_id, lock_id, instrument_id, signal_direction, realized_direction,
	classification, resolution, entry_price, exit_price, magnitude, votes, emitted_at, resolved_at
	FROM %s FINAL
	WHERE (? = '' OR instrument_id = ?) AND resolved_at >= ?
	ORDER BY resolved_at DESC LIMIT ?`, outcomesTable)
	rows, err := s.db.QueryContext(ctx, q, instrument, instrument, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.OutcomeRecord
	for rows.Next() {
		var (
			r                             models.OutcomeRecord
			sigDir, realDir, class, resol string
			entry, exit                   decimal.Decimal
			votes                         string
		)
		if err := rows.Scan(&r.SignalID, &r.LockID, &r.InstrumentID, &sigDir, &realDir, &class, &resol,
			&entry, &exit, &r.Magnitude, &votes, &r.EmittedAt, &r.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		r.SignalDirection = models.Direction(sigDir)
		r.RealizedDirection = models.Direction(realDir)
		r.Classification = models.Classification(class)
		r.Resolution = models.Resolution(resol)
		r.EntryPrice, r.ExitPrice = entry, exit
		if votes != "" {
			if err := json.Unmarshal([]byte(votes), &r.Votes); err != nil {
				return nil, fmt.Errorf("decode votes: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ClickHouseJournal) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseJournal) Close() error {
	return nil
}

var _ repository.Journal = (*ClickHouseJournal)(nil)

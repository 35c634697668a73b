package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"auctionHouse/internal/model"
)

// Store provides Postgres persistence for settlement events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Append inserts one event record. Duplicate sequences are ignored so a
// retried append stays idempotent.
func (s *Store) Append(ctx context.Context, rec model.EventRecord) error {
	decoded, err := json.Marshal(rec.Decoded)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_events (
			chain_id, pool_index, seq, event_name, actor, event_ts, decoded, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (chain_id, seq) DO NOTHING
	`,
		int64(rec.ChainID),
		int64(rec.PoolIndex),
		int64(rec.Sequence),
		rec.EventName,
		rec.Actor,
		rec.Timestamp,
		decoded,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListByPool returns a pool's events in sequence order, newest last.
func (s *Store) ListByPool(ctx context.Context, poolIndex uint64, limit int) ([]model.EventRecordRaw, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, pool_index, seq, event_name, actor, event_ts, decoded
		FROM pool_events
		WHERE pool_index = $1
		ORDER BY seq ASC
		LIMIT $2
	`, int64(poolIndex), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.EventRecordRaw
	for rows.Next() {
		var (
			rec     model.EventRecordRaw
			chainID int64
			index   int64
			seq     int64
			decoded []byte
		)
		if err := rows.Scan(&chainID, &index, &seq, &rec.EventName, &rec.Actor, &rec.Timestamp, &decoded); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.ChainID = uint64(chainID)
		rec.PoolIndex = uint64(index)
		rec.Sequence = uint64(seq)
		rec.Decoded = json.RawMessage(decoded)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

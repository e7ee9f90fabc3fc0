package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/windfall/speech_portal/internal/client"
	"github.com/windfall/speech_portal/internal/usage"
)

// BucketUsageEvents holds usage events keyed by timestamp then sequence.
const BucketUsageEvents = "usage_events"

// BoltUsageRepository implements UsageRepository on a local bbolt file.
type BoltUsageRepository struct {
	db *client.BoltClient
}

// NewBoltUsageRepository creates a new BoltUsageRepository. The bolt client
// must have been opened with BucketUsageEvents.
func NewBoltUsageRepository(db *client.BoltClient) *BoltUsageRepository {
	return &BoltUsageRepository{db: db}
}

// eventKey orders events by time; the sequence keeps same-nanosecond events distinct.
func eventKey(ts time.Time, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func timePrefix(ts time.Time) []byte {
	return eventKey(ts, 0)[:8]
}

// Record appends one event.
func (r *BoltUsageRepository) Record(ctx context.Context, event usage.Event) error {
	if r.db == nil || r.db.DB == nil {
		return fmt.Errorf("usage db not configured")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal usage event: %w", err)
	}

	return r.db.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketUsageEvents))
		if b == nil {
			return fmt.Errorf("bucket %s missing", BucketUsageEvents)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(eventKey(event.Timestamp.UTC(), seq), data)
	})
}

// Totals sums amounts per kind over [from, to).
func (r *BoltUsageRepository) Totals(ctx context.Context, from, to time.Time) (usage.Totals, error) {
	if r.db == nil || r.db.DB == nil {
		return nil, fmt.Errorf("usage db not configured")
	}

	totals := usage.NewTotals()
	err := r.db.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketUsageEvents))
		if b == nil {
			return fmt.Errorf("bucket %s missing", BucketUsageEvents)
		}

		c := b.Cursor()
		var k, v []byte
		if from.IsZero() {
			k, v = c.First()
		} else {
			k, v = c.Seek(timePrefix(from))
		}

		var end []byte
		if !to.IsZero() {
			end = timePrefix(to)
		}

		for ; k != nil; k, v = c.Next() {
			if end != nil && string(k[:8]) >= string(end) {
				break
			}
			var e usage.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode usage event: %w", err)
			}
			totals[e.Kind] += e.Amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// Ping checks the database is readable.
func (r *BoltUsageRepository) Ping(ctx context.Context) error {
	return r.db.Ping()
}

// PostgresUsageRepository implements UsageRepository with PostgreSQL.
type PostgresUsageRepository struct {
	db *client.PostgresClient
}

// NewPostgresUsageRepository creates a new PostgresUsageRepository.
func NewPostgresUsageRepository(db *client.PostgresClient) *PostgresUsageRepository {
	return &PostgresUsageRepository{db: db}
}

// Record inserts one event row.
func (r *PostgresUsageRepository) Record(ctx context.Context, event usage.Event) error {
	if r.db == nil || r.db.Pool == nil {
		return fmt.Errorf("database not configured")
	}

	query := `
		INSERT INTO usage_events (ts_utc, kind, amount)
		VALUES ($1, $2, $3)
	`

	if _, err := r.db.Pool.Exec(ctx, query, event.Timestamp.UTC(), string(event.Kind), event.Amount); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Totals sums amounts per kind over [from, to).
func (r *PostgresUsageRepository) Totals(ctx context.Context, from, to time.Time) (usage.Totals, error) {
	if r.db == nil || r.db.Pool == nil {
		return nil, fmt.Errorf("database not configured")
	}

	query := `
		SELECT kind, COALESCE(SUM(amount), 0)::BIGINT
		FROM usage_events
		WHERE ($1::TIMESTAMPTZ IS NULL OR ts_utc >= $1)
		  AND ($2::TIMESTAMPTZ IS NULL OR ts_utc < $2)
		GROUP BY kind
	`

	rows, err := r.db.Pool.Query(ctx, query, nullableTime(from), nullableTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query usage totals: %w", err)
	}
	defer rows.Close()

	totals := usage.NewTotals()
	for rows.Next() {
		var kind string
		var sum int64
		if err := rows.Scan(&kind, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan usage totals: %w", err)
		}
		totals[usage.Kind(kind)] += sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage totals: %w", err)
	}
	return totals, nil
}

// Ping checks database connectivity.
func (r *PostgresUsageRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

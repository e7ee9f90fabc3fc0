package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.etcd.io/bbolt"

	"github.com/windfall/speech_portal/internal/client"
)

// Bolt buckets for managed API keys.
const (
	BucketAPIKeys      = "api_keys"
	BucketAPIKeyHashes = "api_key_hashes"
)

type boltAPIKey struct {
	ID        string    `json:"id"`
	KeyHash   string    `json:"key_hash"`
	Masked    string    `json:"masked"`
	CreatedAt time.Time `json:"created_at"`
}

// BoltAPIKeyRepository implements APIKeyRepository on a local bbolt file.
type BoltAPIKeyRepository struct {
	db *client.BoltClient
}

// NewBoltAPIKeyRepository creates a new BoltAPIKeyRepository. The bolt client
// must have been opened with BucketAPIKeys and BucketAPIKeyHashes.
func NewBoltAPIKeyRepository(db *client.BoltClient) *BoltAPIKeyRepository {
	return &BoltAPIKeyRepository{db: db}
}

func keyBuckets(tx *bbolt.Tx) (*bbolt.Bucket, *bbolt.Bucket, error) {
	keys := tx.Bucket([]byte(BucketAPIKeys))
	hashes := tx.Bucket([]byte(BucketAPIKeyHashes))
	if keys == nil || hashes == nil {
		return nil, nil, fmt.Errorf("api key buckets missing")
	}
	return keys, hashes, nil
}

// Create stores a new key and its digest index.
func (r *BoltAPIKeyRepository) Create(ctx context.Context, key *APIKey) error {
	data, err := json.Marshal(boltAPIKey(*key))
	if err != nil {
		return fmt.Errorf("marshal api key: %w", err)
	}

	return r.db.DB.Update(func(tx *bbolt.Tx) error {
		keys, hashes, err := keyBuckets(tx)
		if err != nil {
			return err
		}
		if keys.Get([]byte(key.ID)) != nil {
			return ErrAlreadyExists
		}
		if err := keys.Put([]byte(key.ID), data); err != nil {
			return err
		}
		return hashes.Put([]byte(key.KeyHash), []byte(key.ID))
	})
}

// List returns keys newest first.
func (r *BoltAPIKeyRepository) List(ctx context.Context) ([]APIKey, error) {
	var out []APIKey
	err := r.db.DB.View(func(tx *bbolt.Tx) error {
		keys, _, err := keyBuckets(tx)
		if err != nil {
			return err
		}
		return keys.ForEach(func(_, v []byte) error {
			var rec boltAPIKey
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode api key: %w", err)
			}
			out = append(out, APIKey(rec))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

// Delete removes a key and its digest index.
func (r *BoltAPIKeyRepository) Delete(ctx context.Context, id string) error {
	return r.db.DB.Update(func(tx *bbolt.Tx) error {
		keys, hashes, err := keyBuckets(tx)
		if err != nil {
			return err
		}
		v := keys.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		var rec boltAPIKey
		if err := json.Unmarshal(v, &rec); err == nil && rec.KeyHash != "" {
			if err := hashes.Delete([]byte(rec.KeyHash)); err != nil {
				return err
			}
		}
		return keys.Delete([]byte(id))
	})
}

// ExistsHash reports whether any stored key has the given digest.
func (r *BoltAPIKeyRepository) ExistsHash(ctx context.Context, keyHash string) (bool, error) {
	var found bool
	err := r.db.DB.View(func(tx *bbolt.Tx) error {
		_, hashes, err := keyBuckets(tx)
		if err != nil {
			return err
		}
		found = hashes.Get([]byte(keyHash)) != nil
		return nil
	})
	return found, err
}

// PostgresAPIKeyRepository implements APIKeyRepository with PostgreSQL.
type PostgresAPIKeyRepository struct {
	db *client.PostgresClient
}

// NewPostgresAPIKeyRepository creates a new PostgresAPIKeyRepository.
func NewPostgresAPIKeyRepository(db *client.PostgresClient) *PostgresAPIKeyRepository {
	return &PostgresAPIKeyRepository{db: db}
}

// Create inserts a new key row.
func (r *PostgresAPIKeyRepository) Create(ctx context.Context, key *APIKey) error {
	if r.db == nil || r.db.Pool == nil {
		return fmt.Errorf("database not configured")
	}

	query := `
		INSERT INTO api_keys (id, key_hash, masked, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.Pool.Exec(ctx, query, key.ID, key.KeyHash, key.Masked, key.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// List returns keys newest first.
func (r *PostgresAPIKeyRepository) List(ctx context.Context) ([]APIKey, error) {
	if r.db == nil || r.db.Pool == nil {
		return nil, fmt.Errorf("database not configured")
	}

	query := `
		SELECT id, masked, created_at
		FROM api_keys
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}

	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (APIKey, error) {
		var k APIKey
		err := row.Scan(&k.ID, &k.Masked, &k.CreatedAt)
		return k, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan api keys: %w", err)
	}
	return keys, nil
}

// Delete removes a key by ID.
func (r *PostgresAPIKeyRepository) Delete(ctx context.Context, id string) error {
	if r.db == nil || r.db.Pool == nil {
		return fmt.Errorf("database not configured")
	}

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistsHash reports whether any stored key has the given digest.
func (r *PostgresAPIKeyRepository) ExistsHash(ctx context.Context, keyHash string) (bool, error) {
	if r.db == nil || r.db.Pool == nil {
		return false, fmt.Errorf("database not configured")
	}

	var one int
	err := r.db.Pool.QueryRow(ctx, `SELECT 1 FROM api_keys WHERE key_hash = $1 LIMIT 1`, keyHash).Scan(&one)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up api key: %w", err)
	}
	return true, nil
}

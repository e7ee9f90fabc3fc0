package client

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// BoltClient wraps a local bbolt database file.
type BoltClient struct {
	DB *bbolt.DB
}

// NewBoltClient opens (creating if needed) the database at path and makes
// sure the named top-level buckets exist.
func NewBoltClient(path string, buckets ...string) (*BoltClient, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt dir %s: %w", dir, err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltClient{DB: db}, nil
}

// Ping verifies the database is open and readable.
func (c *BoltClient) Ping() error {
	if c == nil || c.DB == nil {
		return fmt.Errorf("bolt db not open")
	}
	return c.DB.View(func(tx *bbolt.Tx) error { return nil })
}

// Close closes the database file.
func (c *BoltClient) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

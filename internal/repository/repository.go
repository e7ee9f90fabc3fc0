package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/windfall/speech_portal/internal/usage"
)

// UsageRepository is the append-only usage event log.
type UsageRepository interface {
	// Record appends one event.
	Record(ctx context.Context, event usage.Event) error
	// Totals sums amounts per kind over [from, to). A zero bound is open.
	Totals(ctx context.Context, from, to time.Time) (usage.Totals, error)
	Ping(ctx context.Context) error
}

// APIKeyRepository stores managed API keys by HMAC digest.
type APIKeyRepository interface {
	Create(ctx context.Context, key *APIKey) error
	// List returns keys newest first.
	List(ctx context.Context) ([]APIKey, error)
	Delete(ctx context.Context, id string) error
	ExistsHash(ctx context.Context, keyHash string) (bool, error)
}

// APIKey is a managed key. The plaintext is never stored.
type APIKey struct {
	ID        string    `json:"id"`
	KeyHash   string    `json:"-"`
	Masked    string    `json:"masked"`
	CreatedAt time.Time `json:"created_at"`
}

// inRange reports whether ts falls in [from, to), treating zero bounds as open.
func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && !ts.Before(to) {
		return false
	}
	return true
}

func sortNewestFirst(keys []APIKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
}

// MemoryUsageRepository keeps events in process memory.
type MemoryUsageRepository struct {
	mu     sync.RWMutex
	events []usage.Event
}

// NewMemoryUsageRepository creates an empty in-memory usage log.
func NewMemoryUsageRepository() *MemoryUsageRepository {
	return &MemoryUsageRepository{}
}

// Record appends one event.
func (r *MemoryUsageRepository) Record(ctx context.Context, event usage.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Totals sums amounts per kind over [from, to).
func (r *MemoryUsageRepository) Totals(ctx context.Context, from, to time.Time) (usage.Totals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := usage.NewTotals()
	for _, e := range r.events {
		if inRange(e.Timestamp, from, to) {
			totals[e.Kind] += e.Amount
		}
	}
	return totals, nil
}

// Ping always succeeds.
func (r *MemoryUsageRepository) Ping(ctx context.Context) error {
	return nil
}

// MemoryAPIKeyRepository keeps API keys in process memory.
type MemoryAPIKeyRepository struct {
	mu   sync.RWMutex
	data map[string]APIKey
}

// NewMemoryAPIKeyRepository creates an empty in-memory key store.
func NewMemoryAPIKeyRepository() *MemoryAPIKeyRepository {
	return &MemoryAPIKeyRepository{data: make(map[string]APIKey)}
}

// Create stores a new key.
func (r *MemoryAPIKeyRepository) Create(ctx context.Context, key *APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key.ID]; ok {
		return ErrAlreadyExists
	}
	r.data[key.ID] = *key
	return nil
}

// List returns keys newest first.
func (r *MemoryAPIKeyRepository) List(ctx context.Context) ([]APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]APIKey, 0, len(r.data))
	for _, k := range r.data {
		keys = append(keys, k)
	}
	sortNewestFirst(keys)
	return keys, nil
}

// Delete removes a key by ID.
func (r *MemoryAPIKeyRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// ExistsHash reports whether any stored key has the given digest.
func (r *MemoryAPIKeyRepository) ExistsHash(ctx context.Context, keyHash string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.data {
		if k.KeyHash == keyHash {
			return true, nil
		}
	}
	return false, nil
}

// Common repository errors
var (
	ErrNotFound      = &RepositoryError{Code: "NOT_FOUND", Message: "entity not found"}
	ErrAlreadyExists = &RepositoryError{Code: "ALREADY_EXISTS", Message: "entity already exists"}
)

// RepositoryError represents a repository error.
type RepositoryError struct {
	Code    string
	Message string
}

func (e *RepositoryError) Error() string {
	return e.Code + ": " + e.Message
}

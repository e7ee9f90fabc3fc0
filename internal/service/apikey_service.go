package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/repository"
)

// CreatedAPIKey is returned once, on creation; the plaintext key is not
// recoverable afterwards.
type CreatedAPIKey struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Masked    string    `json:"masked"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKeyService manages bearer keys and authenticates callers.
type APIKeyService struct {
	repo      repository.APIKeyRepository
	adminKey  string
	secret    []byte
	ephemeral bool
	clock     Clock
}

// NewAPIKeyService creates a new APIKeyService. An empty secret is replaced by
// a random one, which invalidates stored keys on restart.
func NewAPIKeyService(repo repository.APIKeyRepository, adminKey, secret string) (*APIKeyService, error) {
	s := &APIKeyService{
		repo:     repo,
		adminKey: adminKey,
		secret:   []byte(secret),
		clock:    RealClock{},
	}
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate api key secret: %w", err)
		}
		s.secret = []byte(hex.EncodeToString(buf))
		s.ephemeral = true
	}
	return s, nil
}

// WithClock replaces the wall clock.
func (s *APIKeyService) WithClock(c Clock) *APIKeyService {
	s.clock = c
	return s
}

// AuthEnabled reports whether an admin key is configured.
func (s *APIKeyService) AuthEnabled() bool {
	return s.adminKey != ""
}

// EphemeralSecret reports whether the HMAC secret was generated at startup.
func (s *APIKeyService) EphemeralSecret() bool {
	return s.ephemeral
}

// Hash returns the stored digest of key.
func (s *APIKeyService) Hash(key string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// MaskKey returns a display-safe preview of key.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	r := []rune(key)
	if len(r) <= 8 {
		return string(r[:min(2, len(r))]) + "****"
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

// Verify reports whether token is the admin key or a managed key.
func (s *APIKeyService) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	if s.adminKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.adminKey)) == 1 {
		return true, nil
	}
	if s.repo == nil {
		return false, nil
	}
	ok, err := s.repo.ExistsHash(ctx, s.Hash(token))
	if err != nil {
		return false, errors.InternalWrap("failed to verify api key", err)
	}
	return ok, nil
}

// Create issues a new random key.
func (s *APIKeyService) Create(ctx context.Context) (*CreatedAPIKey, error) {
	if s.repo == nil {
		return nil, errors.Internal("api key store unavailable")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.InternalWrap("failed to generate api key", err)
	}
	plain := base64.RawURLEncoding.EncodeToString(buf)

	rec := &repository.APIKey{
		ID:        uuid.NewString(),
		KeyHash:   s.Hash(plain),
		Masked:    MaskKey(plain),
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, errors.InternalWrap("failed to store api key", err)
	}

	return &CreatedAPIKey{ID: rec.ID, Key: plain, Masked: rec.Masked, CreatedAt: rec.CreatedAt}, nil
}

// List returns managed keys newest first, without their digests.
func (s *APIKeyService) List(ctx context.Context) ([]repository.APIKey, error) {
	if s.repo == nil {
		return []repository.APIKey{}, nil
	}
	keys, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.InternalWrap("failed to list api keys", err)
	}
	if keys == nil {
		keys = []repository.APIKey{}
	}
	return keys, nil
}

// Delete revokes a managed key.
func (s *APIKeyService) Delete(ctx context.Context, id string) error {
	if s.repo == nil {
		return errors.NotFound("key")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("key")
		}
		return errors.InternalWrap("failed to delete api key", err)
	}
	return nil
}

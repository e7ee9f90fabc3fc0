package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/repository"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "ab****", MaskKey("abcdefgh"))
	assert.Equal(t, "a****", MaskKey("a"))
	assert.Equal(t, "abcd...6789", MaskKey("abcdefghi-0123456789"))
}

func TestAPIKeys_Lifecycle(t *testing.T) {
	svc, err := NewAPIKeyService(repository.NewMemoryAPIKeyRepository(), "admin-secret", "hmac-secret")
	require.NoError(t, err)
	svc.WithClock(&TestClock{CurrentTime: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	assert.True(t, svc.AuthEnabled())
	assert.False(t, svc.EphemeralSecret())

	ok, err := svc.Verify(ctx, "admin-secret")
	require.NoError(t, err)
	assert.True(t, ok)

	created, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Len(t, created.Key, 43)
	assert.Equal(t, MaskKey(created.Key), created.Masked)

	ok, err = svc.Verify(ctx, created.Key)
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, created.ID, keys[0].ID)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.True(t, errors.Is(svc.Delete(ctx, created.ID), errors.ErrNotFound))

	ok, err = svc.Verify(ctx, created.Key)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Verify(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAPIKeys_HashDependsOnSecret(t *testing.T) {
	a, err := NewAPIKeyService(nil, "", "one")
	require.NoError(t, err)
	b, err := NewAPIKeyService(nil, "", "two")
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash("key"), b.Hash("key"))
	assert.Len(t, a.Hash("key"), 64)

	eph, err := NewAPIKeyService(nil, "", "")
	require.NoError(t, err)
	assert.True(t, eph.EphemeralSecret())
	assert.False(t, eph.AuthEnabled())
}

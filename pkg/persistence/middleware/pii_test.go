package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow/pkg/adapters/memory"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	require.NoError(t, err)
	secure := mw(underlying)
	ctx := context.Background()

	snap := &domain.Snapshot{
		ID: "run",
		Memory: map[string]any{
			"username":      "jdoe",
			"user_password": "secret123",
			"details":       map[string]any{"address": "123 St", "ssn_number": "999-99-9999"},
		},
		Output: domain.Output{"password": "hunter2"},
		Children: map[string]*domain.Snapshot{
			"0": {ID: "child", Memory: map[string]any{"ssn": "1"}},
		},
	}
	require.NoError(t, secure.Save(ctx, "run", snap))

	assert.Equal(t, "secret123", snap.Memory["user_password"], "the caller's snapshot is untouched")
	assert.Equal(t, "999-99-9999", snap.Memory["details"].(map[string]any)["ssn_number"])

	stored, err := underlying.Load(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, "jdoe", stored.Memory["username"])
	assert.Equal(t, middleware.Mask, stored.Memory["user_password"])
	assert.Equal(t, middleware.Mask, stored.Memory["details"].(map[string]any)["ssn_number"])
	assert.Equal(t, "123 St", stored.Memory["details"].(map[string]any)["address"])
	assert.Equal(t, middleware.Mask, stored.Output["password"])
	assert.Equal(t, middleware.Mask, stored.Children["0"].Memory["ssn"])
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestWrap_OrderOutermostFirst(t *testing.T) {
	underlying := memory.NewStore()
	mask, err := middleware.NewPIIMiddleware([]string{"token"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Wrap(underlying, mask, enc)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "run", &domain.Snapshot{ID: "run", Memory: map[string]any{"token": "abc"}}))

	loaded, err := store.Load(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Memory["token"], "masking happens before encryption")
}

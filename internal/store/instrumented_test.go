package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/pkg/metrics"
)

func TestInstrumentedStorePassesThrough(t *testing.T) {
	st := WithMetrics(NewMemoryStore(), metrics.New())
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "key", "value"))

	ok, err := st.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)

	value, err := st.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	require.NoError(t, st.Delete(ctx, "key"))

	_, err = st.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)
}

// plainStore is a minimal backend without an atomic read-and-delete,
// standing in for the vault and minio backends.
type plainStore struct {
	values map[string]string
}

func newPlainStore() *plainStore {
	return &plainStore{values: map[string]string{}}
}

func (s *plainStore) Set(ctx context.Context, key, value string) error {
	s.values[key] = value
	return nil
}

func (s *plainStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *plainStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.values[key]
	return ok, nil
}

func (s *plainStore) Delete(ctx context.Context, key string) error {
	if _, ok := s.values[key]; !ok {
		return ErrNotFound
	}
	delete(s.values, key)
	return nil
}

func (s *plainStore) Close() error { return nil }

func TestInstrumentedStoreKeepsAtomicCapability(t *testing.T) {
	st := WithMetrics(NewMemoryStore(), metrics.New())
	ctx := context.Background()

	atomic, ok := st.(AtomicStore)
	require.True(t, ok)

	require.NoError(t, st.Set(ctx, "key", "value"))

	value, err := atomic.GetDelete(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	_, err = atomic.GetDelete(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInstrumentedStoreDoesNotFabricateAtomicCapability(t *testing.T) {
	st := WithMetrics(newPlainStore(), metrics.New())
	ctx := context.Background()

	_, ok := st.(AtomicStore)
	assert.False(t, ok, "wrapper must not claim atomic consume for a backend without it")

	// The plain operations still pass through.
	require.NoError(t, st.Set(ctx, "key", "value"))
	value, err := st.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

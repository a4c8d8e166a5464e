package secret

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/internal/crypto"
	"github.com/sealbox/sealbox/internal/store"
)

func newTestController(t *testing.T) (*Controller, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	policy, err := NewPolicy("test-system-key")
	require.NoError(t, err)
	return NewController(st, policy, zerolog.Nop()), st
}

func TestCreateValidation(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{name: "missing secret", req: CreateRequest{}},
		{name: "non-numeric expires_at", req: CreateRequest{Secret: "v", ExpiresAt: "tomorrow"}},
		{name: "negative expires_at", req: CreateRequest{Secret: "v", ExpiresAt: "-5"}},
		{name: "expires_at beyond year 9999", req: CreateRequest{Secret: "v", ExpiresAt: "253402300800"}},
		{name: "expires_at in the past", req: CreateRequest{Secret: "v", ExpiresAt: "1000000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ctrl.Create(ctx, tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateRetrieveRoundTrip(t *testing.T) {
	ctrl, st := newTestController(t)
	ctx := context.Background()

	result, err := ctrl.Create(ctx, CreateRequest{Secret: "database password"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Handle)
	assert.Zero(t, result.ExpiresAt)

	// Stored payload is encrypted and tagged.
	payload, err := st.Get(ctx, result.Handle)
	require.NoError(t, err)
	assert.True(t, crypto.IsLikelyEncrypted(payload))
	tag, err := st.Get(ctx, result.Handle+"-metadata")
	require.NoError(t, err)
	assert.Equal(t, "secret_key_encrypted", tag)

	plaintext, err := ctrl.Retrieve(ctx, result.Handle, "")
	require.NoError(t, err)
	assert.Equal(t, "database password", plaintext)

	// One-time: a second retrieval fails and all entries are gone.
	_, err = ctrl.Retrieve(ctx, result.Handle, "")
	assert.ErrorIs(t, err, ErrNotFound)
	for _, key := range []string{result.Handle, result.Handle + "-metadata", result.Handle + "-expires"} {
		exists, err := st.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, "key %s should be deleted", key)
	}
}

func TestRetrievePasswordGating(t *testing.T) {
	ctrl, st := newTestController(t)
	ctx := context.Background()

	result, err := ctrl.Create(ctx, CreateRequest{Secret: "top secret", Password: "hunter2"})
	require.NoError(t, err)

	tag, err := st.Get(ctx, result.Handle+"-metadata")
	require.NoError(t, err)
	assert.Equal(t, "secret_key_password_encrypted", tag)

	// Missing and wrong passwords fail without consuming the record.
	_, err = ctrl.Retrieve(ctx, result.Handle, "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = ctrl.Retrieve(ctx, result.Handle, "wrong")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	exists, err := st.Exists(ctx, result.Handle)
	require.NoError(t, err)
	assert.True(t, exists, "failed attempts must not delete the secret")

	// The correct password still works afterwards.
	plaintext, err := ctrl.Retrieve(ctx, result.Handle, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "top secret", plaintext)
}

func TestRetrieveValidationAndNotFound(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	_, err := ctrl.Retrieve(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ctrl.Retrieve(ctx, "bd5bd322-0000-4b32-a671-27e97b5a331e", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheck(t *testing.T) {
	ctrl, st := newTestController(t)
	ctx := context.Background()

	t.Run("unknown handle", func(t *testing.T) {
		_, err := ctrl.Check(ctx, "bd5bd322-0000-4b32-a671-27e97b5a331e")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing handle", func(t *testing.T) {
		_, err := ctrl.Check(ctx, "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("without password", func(t *testing.T) {
		result, err := ctrl.Create(ctx, CreateRequest{Secret: "v"})
		require.NoError(t, err)

		check, err := ctrl.Check(ctx, result.Handle)
		require.NoError(t, err)
		assert.False(t, check.RequiresPassword)
		assert.Zero(t, check.ExpiresAt)
	})

	t.Run("with password and expiry", func(t *testing.T) {
		expiresAt := time.Now().Add(time.Hour).Unix()
		result, err := ctrl.Create(ctx, CreateRequest{
			Secret:    "v",
			Password:  "hunter2",
			ExpiresAt: strconv.FormatInt(expiresAt, 10),
		})
		require.NoError(t, err)
		assert.Equal(t, expiresAt, result.ExpiresAt)

		check, err := ctrl.Check(ctx, result.Handle)
		require.NoError(t, err)
		assert.True(t, check.RequiresPassword)
		assert.Equal(t, expiresAt, check.ExpiresAt)

		// Checking must not consume the secret.
		exists, err := st.Exists(ctx, result.Handle)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestExpiration(t *testing.T) {
	ctrl, st := newTestController(t)
	ctx := context.Background()

	base := time.Now()
	ctrl.now = func() time.Time { return base }

	expiresAt := base.Add(time.Hour).Unix()
	result, err := ctrl.Create(ctx, CreateRequest{
		Secret:    "short lived",
		ExpiresAt: strconv.FormatInt(expiresAt, 10),
	})
	require.NoError(t, err)

	// Still retrievable just before expiry.
	ctrl.now = func() time.Time { return time.Unix(expiresAt-1, 0) }
	check, err := ctrl.Check(ctx, result.Handle)
	require.NoError(t, err)
	assert.Equal(t, expiresAt, check.ExpiresAt)

	// At the expiry instant the record is swept and reported as expired.
	ctrl.now = func() time.Time { return time.Unix(expiresAt, 0) }
	_, err = ctrl.Retrieve(ctx, result.Handle, "")
	var expired *ExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, expiresAt, expired.ExpiredAt.Unix())

	for _, key := range []string{result.Handle, result.Handle + "-metadata", result.Handle + "-expires"} {
		exists, err := st.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, "expired record entry %s should be deleted", key)
	}

	// Subsequent operations see a plain not-found.
	_, err = ctrl.Check(ctx, result.Handle)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckSweepsExpired(t *testing.T) {
	ctrl, st := newTestController(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Hour).Unix()
	result, err := ctrl.Create(ctx, CreateRequest{
		Secret:    "short lived",
		ExpiresAt: strconv.FormatInt(expiresAt, 10),
	})
	require.NoError(t, err)

	ctrl.now = func() time.Time { return time.Unix(expiresAt+10, 0) }
	_, err = ctrl.Check(ctx, result.Handle)
	var expired *ExpiredError
	require.ErrorAs(t, err, &expired)

	exists, err := st.Exists(ctx, result.Handle)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUnparsableExpiryMeansNoExpiration(t *testing.T) {
	ctrl, st := newTestController(t)
	ctx := context.Background()

	result, err := ctrl.Create(ctx, CreateRequest{Secret: "v"})
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, result.Handle+"-expires", "garbage"))

	plaintext, err := ctrl.Retrieve(ctx, result.Handle, "")
	require.NoError(t, err)
	assert.Equal(t, "v", plaintext)
}

func TestRetrieveLegacyRecords(t *testing.T) {
	ctrl, st := newTestController(t)
	ctx := context.Background()

	t.Run("tagged legacy password only", func(t *testing.T) {
		payload, err := crypto.Encrypt("legacy value", "hunter2")
		require.NoError(t, err)
		require.NoError(t, st.Set(ctx, "legacy-pw", payload))
		require.NoError(t, st.Set(ctx, "legacy-pw-metadata", "encrypted"))

		plaintext, err := ctrl.Retrieve(ctx, "legacy-pw", "hunter2")
		require.NoError(t, err)
		assert.Equal(t, "legacy value", plaintext)
	})

	t.Run("tagged legacy plaintext", func(t *testing.T) {
		require.NoError(t, st.Set(ctx, "legacy-plain", "clear value"))
		require.NoError(t, st.Set(ctx, "legacy-plain-metadata", "plaintext"))

		plaintext, err := ctrl.Retrieve(ctx, "legacy-plain", "")
		require.NoError(t, err)
		assert.Equal(t, "clear value", plaintext)
	})

	t.Run("untagged record uses payload shape", func(t *testing.T) {
		payload, err := crypto.Encrypt("legacy value", "hunter2")
		require.NoError(t, err)
		require.NoError(t, st.Set(ctx, "untagged", payload))

		check, err := ctrl.Check(ctx, "untagged")
		require.NoError(t, err)
		assert.True(t, check.RequiresPassword)

		plaintext, err := ctrl.Retrieve(ctx, "untagged", "hunter2")
		require.NoError(t, err)
		assert.Equal(t, "legacy value", plaintext)
	})

	t.Run("untagged plaintext record", func(t *testing.T) {
		require.NoError(t, st.Set(ctx, "untagged-plain", "clear value"))

		check, err := ctrl.Check(ctx, "untagged-plain")
		require.NoError(t, err)
		assert.False(t, check.RequiresPassword)

		plaintext, err := ctrl.Retrieve(ctx, "untagged-plain", "")
		require.NoError(t, err)
		assert.Equal(t, "clear value", plaintext)
	})
}

func TestConcurrentRetrieveDeliversAtMostOnce(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	result, err := ctrl.Create(ctx, CreateRequest{Secret: "contested"})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	successes := make(chan string, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if plaintext, err := ctrl.Retrieve(ctx, result.Handle, ""); err == nil {
				successes <- plaintext
			}
		}()
	}

	close(start)
	wg.Wait()
	close(successes)

	var delivered []string
	for plaintext := range successes {
		delivered = append(delivered, plaintext)
	}
	require.Len(t, delivered, 1, "exactly one concurrent retrieval may win")
	assert.Equal(t, "contested", delivered[0])
}

// breakableStore delegates to a memory store through the plain interface
// only, so the controller sees a backend without atomic consume. Deletes of
// failKey return failErr.
type breakableStore struct {
	inner   *store.MemoryStore
	failKey string
	failErr error
}

func (s *breakableStore) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, key, value)
}

func (s *breakableStore) Get(ctx context.Context, key string) (string, error) {
	return s.inner.Get(ctx, key)
}

func (s *breakableStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.inner.Exists(ctx, key)
}

func (s *breakableStore) Delete(ctx context.Context, key string) error {
	if s.failErr != nil && key == s.failKey {
		return s.failErr
	}
	return s.inner.Delete(ctx, key)
}

func (s *breakableStore) Close() error { return nil }

func TestRetrieveFailedConsumeKeepsSecretSealed(t *testing.T) {
	st := &breakableStore{inner: store.NewMemoryStore()}
	policy, err := NewPolicy("test-system-key")
	require.NoError(t, err)
	ctrl := NewController(st, policy, zerolog.Nop())
	ctx := context.Background()

	result, err := ctrl.Create(ctx, CreateRequest{Secret: "guarded"})
	require.NoError(t, err)

	st.failKey = result.Handle
	st.failErr = errors.New("backend unavailable")

	// The payload could not be destroyed, so the plaintext must not be
	// released.
	_, err = ctrl.Retrieve(ctx, result.Handle, "")
	assert.ErrorIs(t, err, ErrStore)

	// The record survived the failed attempt and a retry still works once.
	st.failErr = nil
	plaintext, err := ctrl.Retrieve(ctx, result.Handle, "")
	require.NoError(t, err)
	assert.Equal(t, "guarded", plaintext)

	_, err = ctrl.Retrieve(ctx, result.Handle, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetrieveConsumeRaceLoserGetsNotFound(t *testing.T) {
	st := &breakableStore{inner: store.NewMemoryStore()}
	policy, err := NewPolicy("test-system-key")
	require.NoError(t, err)
	ctrl := NewController(st, policy, zerolog.Nop())
	ctx := context.Background()

	result, err := ctrl.Create(ctx, CreateRequest{Secret: "contested"})
	require.NoError(t, err)

	// Another retrieval consumed the payload between decrypt and delete.
	st.failKey = result.Handle
	st.failErr = store.ErrNotFound

	_, err = ctrl.Retrieve(ctx, result.Handle, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(validationErrorf("bad input")))
	assert.True(t, IsUserError(ErrNotFound))
	assert.True(t, IsUserError(ErrPasswordRequired))
	assert.True(t, IsUserError(ErrDecryptionFailed))
	assert.True(t, IsUserError(&ExpiredError{ExpiredAt: time.Now()}))
	assert.False(t, IsUserError(ErrSystemKeyUnavailable))
	assert.False(t, IsUserError(storeErrorf("get", assert.AnError)))
}

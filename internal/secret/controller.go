// Package secret implements the sealbox secret lifecycle: multi-layer
// encryption at creation, password- and expiry-gated retrieval, and
// one-time deletion.
package secret

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sealbox/sealbox/internal/crypto"
	"github.com/sealbox/sealbox/internal/store"
)

// Key suffixes for the sibling entries of a secret record.
const (
	metadataKeySuffix = "-metadata"
	expiresKeySuffix  = "-expires"
)

// maxExpiresAt caps expiry timestamps at 9999-12-31T23:59:59Z. Anything
// beyond is rejected as unrepresentable.
const maxExpiresAt = 253402300799

// CreateRequest holds the inputs for creating a secret.
type CreateRequest struct {
	// Secret is the plaintext value. Required.
	Secret string
	// Password optionally adds a user-level encryption layer.
	Password string
	// ExpiresAt is an optional UNIX timestamp (seconds) as received from the
	// transport. Empty means the secret never expires.
	ExpiresAt string
}

// CreateResult is returned on successful creation.
type CreateResult struct {
	// Handle addresses the secret for retrieve/check.
	Handle string
	// ExpiresAt is the validated expiry timestamp, 0 when none was set.
	ExpiresAt int64
}

// CheckResult describes a secret without retrieving it.
type CheckResult struct {
	// RequiresPassword is true when a password layer must be removed at
	// retrieval.
	RequiresPassword bool
	// ExpiresAt is the expiry timestamp, 0 when the secret never expires.
	ExpiresAt int64
}

// Controller orchestrates create, retrieve and check against the store.
// It holds no mutable state of its own; all shared state lives in the store,
// so any number of controllers may run concurrently against one backend.
type Controller struct {
	store  store.Store
	policy *Policy
	logger zerolog.Logger

	// now is swappable for expiration tests.
	now func() time.Time
}

// NewController creates a lifecycle controller.
func NewController(st store.Store, policy *Policy, logger zerolog.Logger) *Controller {
	return &Controller{
		store:  st,
		policy: policy,
		logger: logger.With().Str("component", "secret_controller").Logger(),
		now:    time.Now,
	}
}

// Create encrypts and stores a new secret and returns its handle.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Secret == "" {
		return nil, validationErrorf("missing required field: secret")
	}

	expiresAt, err := c.validateExpiresAt(req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	handle := uuid.NewString()

	payload, tag, err := c.policy.EncryptForStorage(req.Secret, req.Password)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, handle, payload); err != nil {
		return nil, storeErrorf("set payload", err)
	}
	if err := c.store.Set(ctx, handle+metadataKeySuffix, tag.String()); err != nil {
		return nil, storeErrorf("set metadata", err)
	}
	if expiresAt > 0 {
		if err := c.store.Set(ctx, handle+expiresKeySuffix, strconv.FormatInt(expiresAt, 10)); err != nil {
			return nil, storeErrorf("set expiry", err)
		}
	}

	c.logger.Info().
		Str("handle", handle).
		Str("encoding", tag.String()).
		Bool("expires", expiresAt > 0).
		Msg("secret created")

	return &CreateResult{Handle: handle, ExpiresAt: expiresAt}, nil
}

// Retrieve decrypts a secret and destroys it. Retrieval failures caused by a
// missing or wrong password never delete the record, so the caller can retry.
func (c *Controller) Retrieve(ctx context.Context, handle, password string) (string, error) {
	if handle == "" {
		return "", validationErrorf("missing required field: handle")
	}

	exists, err := c.store.Exists(ctx, handle)
	if err != nil {
		return "", storeErrorf("exists", err)
	}
	if !exists {
		return "", ErrNotFound
	}

	if err := c.checkExpiration(ctx, handle); err != nil {
		return "", err
	}

	tag, err := c.readEncodingTag(ctx, handle)
	if err != nil {
		return "", err
	}

	payload, err := c.store.Get(ctx, handle)
	if err != nil {
		if store.IsNotFound(err) {
			// Consumed between the existence check and the read.
			return "", ErrNotFound
		}
		return "", storeErrorf("get payload", err)
	}

	plaintext, err := c.policy.DecryptForRetrieval(payload, tag, password)
	if err != nil {
		return "", err
	}

	// Decryption succeeded: this is the one path that destroys the secret.
	if err := c.consumeRecord(ctx, handle); err != nil {
		return "", err
	}

	c.logger.Info().
		Str("handle", handle).
		Msg("secret retrieved and deleted")

	return plaintext, nil
}

// Check reports whether a secret requires a password and when it expires,
// without decrypting or deleting it. Expired secrets are still swept.
func (c *Controller) Check(ctx context.Context, handle string) (*CheckResult, error) {
	if handle == "" {
		return nil, validationErrorf("missing required field: handle")
	}

	exists, err := c.store.Exists(ctx, handle)
	if err != nil {
		return nil, storeErrorf("exists", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	if err := c.checkExpiration(ctx, handle); err != nil {
		return nil, err
	}

	tag, err := c.readEncodingTag(ctx, handle)
	if err != nil {
		return nil, err
	}

	requiresPassword, known := tag.RequiresPassword()
	if !known {
		// Pre-metadata record: inspect the raw payload.
		payload, err := c.store.Get(ctx, handle)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, ErrNotFound
			}
			return nil, storeErrorf("get payload", err)
		}
		requiresPassword = crypto.IsLikelyEncrypted(payload)
	}

	result := &CheckResult{RequiresPassword: requiresPassword}
	if expiresAt, ok := c.readExpiresAt(ctx, handle); ok {
		result.ExpiresAt = expiresAt
	}
	return result, nil
}

// checkExpiration deletes the record and returns an ExpiredError when the
// stored expiry instant is at or before now. A missing or unparsable expiry
// entry means the secret never expires.
func (c *Controller) checkExpiration(ctx context.Context, handle string) error {
	expiresAt, ok := c.readExpiresAt(ctx, handle)
	if !ok {
		return nil
	}

	instant := time.Unix(expiresAt, 0).UTC()
	if c.now().Before(instant) {
		return nil
	}

	c.deleteRecord(ctx, handle)
	c.logger.Info().
		Str("handle", handle).
		Int64("expired_at", expiresAt).
		Msg("expired secret deleted")

	return &ExpiredError{ExpiredAt: instant}
}

// readExpiresAt returns the stored expiry timestamp. ok is false when the
// entry is absent or unparsable.
func (c *Controller) readExpiresAt(ctx context.Context, handle string) (int64, bool) {
	value, err := c.store.Get(ctx, handle+expiresKeySuffix)
	if err != nil {
		return 0, false
	}
	expiresAt, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return expiresAt, true
}

// readEncodingTag returns the stored encoding tag. An absent metadata entry
// is not an error; it folds into TagUnknown.
func (c *Controller) readEncodingTag(ctx context.Context, handle string) (EncodingTag, error) {
	value, err := c.store.Get(ctx, handle+metadataKeySuffix)
	if err != nil {
		if store.IsNotFound(err) {
			return TagUnknown, nil
		}
		return TagUnknown, storeErrorf("get metadata", err)
	}
	return ParseEncodingTag(value), nil
}

// consumeRecord destroys a record after a successful decryption. When the
// backend supports atomic consume, losing the race to a concurrent retrieval
// surfaces as ErrNotFound so at most one caller ever returns the plaintext.
// Either way a failure to delete the payload key is fatal for the retrieval;
// returning the plaintext while the record stays live would break the
// one-time guarantee. Sibling keys stay best-effort.
func (c *Controller) consumeRecord(ctx context.Context, handle string) error {
	if atomic, ok := c.store.(store.AtomicStore); ok {
		if _, err := atomic.GetDelete(ctx, handle); err != nil {
			if store.IsNotFound(err) {
				return ErrNotFound
			}
			return storeErrorf("consume payload", err)
		}
		c.deleteSiblings(ctx, handle)
		return nil
	}

	if err := c.store.Delete(ctx, handle); err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return storeErrorf("consume payload", err)
	}
	c.deleteSiblings(ctx, handle)
	return nil
}

// deleteRecord removes all three entries of a record, best-effort per key.
// Missing sibling keys are normal, never an error.
func (c *Controller) deleteRecord(ctx context.Context, handle string) {
	if err := c.store.Delete(ctx, handle); err != nil && !store.IsNotFound(err) {
		c.logger.Warn().Err(err).Str("handle", handle).Msg("failed to delete payload")
	}
	c.deleteSiblings(ctx, handle)
}

func (c *Controller) deleteSiblings(ctx context.Context, handle string) {
	for _, key := range []string{handle + metadataKeySuffix, handle + expiresKeySuffix} {
		if err := c.store.Delete(ctx, key); err != nil && !store.IsNotFound(err) {
			c.logger.Warn().Err(err).Str("key", key).Msg("failed to delete record entry")
		}
	}
}

// validateExpiresAt parses and validates an optional expiry timestamp.
// Empty input means no expiration.
func (c *Controller) validateExpiresAt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}

	expiresAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, validationErrorf("invalid expires_at format, expected UNIX timestamp (integer): %q", raw)
	}
	if expiresAt < 0 || expiresAt > maxExpiresAt {
		return 0, validationErrorf("expires_at is out of range: %d", expiresAt)
	}
	if !c.now().Before(time.Unix(expiresAt, 0)) {
		return 0, validationErrorf("expires_at must be in the future")
	}
	return expiresAt, nil
}

// IsUserError reports whether err is caused by caller input rather than an
// operational fault.
func IsUserError(err error) bool {
	var expired *ExpiredError
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPasswordRequired) ||
		errors.Is(err, ErrDecryptionFailed) ||
		errors.As(err, &expired)
}

package secret

import (
	"errors"
	"fmt"
	"time"
)

// Classification errors for secret lifecycle operations. The transport
// adapter maps these to response codes; none of them should ever crash the
// process.
var (
	// ErrValidation indicates bad or missing input. User-correctable, no
	// state change.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound indicates the handle is unknown or already consumed.
	ErrNotFound = errors.New("secret not found or already accessed")

	// ErrPasswordRequired indicates the payload has a password layer and no
	// password was supplied. The record is preserved so the caller can retry.
	ErrPasswordRequired = errors.New("password required for encrypted secret")

	// ErrDecryptionFailed indicates decryption with the supplied password
	// failed its integrity check. The record is preserved for retry.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrSystemKeyUnavailable indicates the system encryption key is not
	// configured. Operational fault, not a user error; no state change.
	ErrSystemKeyUnavailable = errors.New("system encryption key unavailable")

	// ErrStore indicates a backend store failure. Surfaced to the caller,
	// never retried internally.
	ErrStore = errors.New("store operation failed")
)

// ExpiredError is returned when a handle existed but was past its expiry.
// Detection deletes the record, so the error is terminal for the handle.
type ExpiredError struct {
	// ExpiredAt is the configured expiry instant.
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("secret expired at %d and has been deleted", e.ExpiredAt.Unix())
}

// validationErrorf wraps ErrValidation with a detail message.
func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeErrorf wraps ErrStore with the failing operation.
func storeErrorf(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStore, op, err)
}

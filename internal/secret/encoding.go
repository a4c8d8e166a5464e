package secret

import (
	"errors"

	"github.com/sealbox/sealbox/internal/crypto"
)

// EncodingTag names which encryption layers were applied to a stored payload.
// The wire strings match the metadata values written by earlier deployments,
// so records created before this version keep decrypting.
type EncodingTag int

const (
	// TagUnknown means the metadata entry is absent or unrecognized. Layer
	// composition is decided by the structural heuristic. Never written for
	// new records.
	TagUnknown EncodingTag = iota

	// TagSystemOnly: system-key layer only.
	TagSystemOnly

	// TagSystemAndPassword: password layer, then system-key layer on top.
	TagSystemAndPassword

	// TagLegacyPasswordOnly: password layer only, no system layer. Written
	// by deployments that predate system-level encryption.
	TagLegacyPasswordOnly

	// TagLegacyPlaintext: no encryption layers at all.
	TagLegacyPlaintext
)

// Metadata wire values, kept byte-compatible with older records.
const (
	tagValueSystemOnly         = "secret_key_encrypted"
	tagValueSystemAndPassword  = "secret_key_password_encrypted"
	tagValueLegacyPasswordOnly = "encrypted"
	tagValueLegacyPlaintext    = "plaintext"
)

// String returns the metadata wire value for the tag. TagUnknown has no wire
// value and returns an empty string.
func (t EncodingTag) String() string {
	switch t {
	case TagSystemOnly:
		return tagValueSystemOnly
	case TagSystemAndPassword:
		return tagValueSystemAndPassword
	case TagLegacyPasswordOnly:
		return tagValueLegacyPasswordOnly
	case TagLegacyPlaintext:
		return tagValueLegacyPlaintext
	default:
		return ""
	}
}

// ParseEncodingTag maps a stored metadata value to its tag. Unrecognized
// values fold into TagUnknown, matching the pre-metadata fallback behavior.
func ParseEncodingTag(value string) EncodingTag {
	switch value {
	case tagValueSystemOnly:
		return TagSystemOnly
	case tagValueSystemAndPassword:
		return TagSystemAndPassword
	case tagValueLegacyPasswordOnly:
		return TagLegacyPasswordOnly
	case tagValueLegacyPlaintext:
		return TagLegacyPlaintext
	default:
		return TagUnknown
	}
}

// RequiresPassword reports whether a payload with this tag needs a password
// at retrieval. known is false for TagUnknown, where the answer must come
// from the structural heuristic on the payload itself.
func (t EncodingTag) RequiresPassword() (requires, known bool) {
	switch t {
	case TagSystemAndPassword, TagLegacyPasswordOnly:
		return true, true
	case TagSystemOnly, TagLegacyPlaintext:
		return false, true
	default:
		return false, false
	}
}

// Policy decides which encryption layers apply to a secret and how to
// reverse them at retrieval. The system key is injected at construction and
// is always applied as the outermost layer, so a dump of the store contents
// alone never yields plaintext.
type Policy struct {
	systemKey string
}

// NewPolicy creates an encoding policy. The system key is required.
func NewPolicy(systemKey string) (*Policy, error) {
	if systemKey == "" {
		return nil, ErrSystemKeyUnavailable
	}
	return &Policy{systemKey: systemKey}, nil
}

// EncryptForStorage applies the password layer (when a password is given)
// and then the system-key layer, and returns the payload with its tag.
func (p *Policy) EncryptForStorage(secretValue, password string) (payload string, tag EncodingTag, err error) {
	if p.systemKey == "" {
		return "", TagUnknown, ErrSystemKeyUnavailable
	}

	tag = TagSystemOnly
	if password != "" {
		secretValue, err = crypto.Encrypt(secretValue, password)
		if err != nil {
			return "", TagUnknown, err
		}
		tag = TagSystemAndPassword
	}

	// System-key layer is unconditional and always outermost.
	payload, err = crypto.Encrypt(secretValue, p.systemKey)
	if err != nil {
		return "", TagUnknown, err
	}
	return payload, tag, nil
}

// DecryptForRetrieval reverses EncryptForStorage according to the tag.
// Password failures leave no trace; callers must not delete the record when
// ErrPasswordRequired or ErrDecryptionFailed comes back.
func (p *Policy) DecryptForRetrieval(payload string, tag EncodingTag, password string) (string, error) {
	switch tag {
	case TagSystemOnly, TagSystemAndPassword:
		if p.systemKey == "" {
			return "", ErrSystemKeyUnavailable
		}
		value, err := crypto.Decrypt(payload, p.systemKey)
		if err != nil {
			return "", ErrDecryptionFailed
		}
		if tag == TagSystemAndPassword {
			return p.decryptWithPassword(value, password)
		}
		return value, nil

	case TagLegacyPasswordOnly:
		return p.decryptWithPassword(payload, password)

	case TagLegacyPlaintext:
		return payload, nil

	default:
		// Pre-metadata record: decide by shape.
		if crypto.IsLikelyEncrypted(payload) {
			return p.decryptWithPassword(payload, password)
		}
		return payload, nil
	}
}

func (p *Policy) decryptWithPassword(value, password string) (string, error) {
	if password == "" {
		return "", ErrPasswordRequired
	}
	plaintext, err := crypto.Decrypt(value, password)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) || errors.Is(err, crypto.ErrMalformedCiphertext) {
			return "", ErrDecryptionFailed
		}
		return "", err
	}
	return plaintext, nil
}

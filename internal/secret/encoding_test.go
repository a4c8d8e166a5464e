package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealbox/sealbox/internal/crypto"
)

func TestEncodingTagWireValues(t *testing.T) {
	tests := []struct {
		tag  EncodingTag
		wire string
	}{
		{tag: TagSystemOnly, wire: "secret_key_encrypted"},
		{tag: TagSystemAndPassword, wire: "secret_key_password_encrypted"},
		{tag: TagLegacyPasswordOnly, wire: "encrypted"},
		{tag: TagLegacyPlaintext, wire: "plaintext"},
		{tag: TagUnknown, wire: ""},
	}

	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			assert.Equal(t, tt.wire, tt.tag.String())
			if tt.tag != TagUnknown {
				assert.Equal(t, tt.tag, ParseEncodingTag(tt.wire))
			}
		})
	}
}

func TestParseEncodingTagUnrecognized(t *testing.T) {
	assert.Equal(t, TagUnknown, ParseEncodingTag(""))
	assert.Equal(t, TagUnknown, ParseEncodingTag("something-else"))
}

func TestEncodingTagRequiresPassword(t *testing.T) {
	tests := []struct {
		name     string
		tag      EncodingTag
		requires bool
		known    bool
	}{
		{name: "system only", tag: TagSystemOnly, requires: false, known: true},
		{name: "system and password", tag: TagSystemAndPassword, requires: true, known: true},
		{name: "legacy password only", tag: TagLegacyPasswordOnly, requires: true, known: true},
		{name: "legacy plaintext", tag: TagLegacyPlaintext, requires: false, known: true},
		{name: "unknown", tag: TagUnknown, requires: false, known: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requires, known := tt.tag.RequiresPassword()
			assert.Equal(t, tt.requires, requires)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestNewPolicyRequiresSystemKey(t *testing.T) {
	_, err := NewPolicy("")
	assert.ErrorIs(t, err, ErrSystemKeyUnavailable)

	policy, err := NewPolicy("system-key")
	require.NoError(t, err)
	assert.NotNil(t, policy)
}

func TestPolicyEncryptWithoutPassword(t *testing.T) {
	policy, err := NewPolicy("system-key")
	require.NoError(t, err)

	payload, tag, err := policy.EncryptForStorage("my secret", "")
	require.NoError(t, err)
	assert.Equal(t, TagSystemOnly, tag)
	assert.True(t, crypto.IsLikelyEncrypted(payload))

	plaintext, err := policy.DecryptForRetrieval(payload, tag, "")
	require.NoError(t, err)
	assert.Equal(t, "my secret", plaintext)
}

func TestPolicyEncryptWithPassword(t *testing.T) {
	policy, err := NewPolicy("system-key")
	require.NoError(t, err)

	payload, tag, err := policy.EncryptForStorage("my secret", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, TagSystemAndPassword, tag)

	// Removing the system layer must reveal another envelope, not plaintext.
	inner, err := crypto.Decrypt(payload, "system-key")
	require.NoError(t, err)
	assert.True(t, crypto.IsLikelyEncrypted(inner))

	plaintext, err := policy.DecryptForRetrieval(payload, tag, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "my secret", plaintext)
}

func TestPolicyDecryptPasswordFailures(t *testing.T) {
	policy, err := NewPolicy("system-key")
	require.NoError(t, err)

	payload, tag, err := policy.EncryptForStorage("my secret", "hunter2")
	require.NoError(t, err)

	t.Run("missing password", func(t *testing.T) {
		_, err := policy.DecryptForRetrieval(payload, tag, "")
		assert.ErrorIs(t, err, ErrPasswordRequired)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := policy.DecryptForRetrieval(payload, tag, "wrong")
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})
}

func TestPolicyDecryptWrongSystemKey(t *testing.T) {
	policy, err := NewPolicy("system-key")
	require.NoError(t, err)
	payload, tag, err := policy.EncryptForStorage("my secret", "")
	require.NoError(t, err)

	other, err := NewPolicy("different-system-key")
	require.NoError(t, err)
	_, err = other.DecryptForRetrieval(payload, tag, "")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestPolicyDecryptLegacyRecords(t *testing.T) {
	policy, err := NewPolicy("system-key")
	require.NoError(t, err)

	t.Run("legacy password only", func(t *testing.T) {
		payload, err := crypto.Encrypt("legacy value", "hunter2")
		require.NoError(t, err)

		plaintext, err := policy.DecryptForRetrieval(payload, TagLegacyPasswordOnly, "hunter2")
		require.NoError(t, err)
		assert.Equal(t, "legacy value", plaintext)

		_, err = policy.DecryptForRetrieval(payload, TagLegacyPasswordOnly, "")
		assert.ErrorIs(t, err, ErrPasswordRequired)
	})

	t.Run("legacy plaintext", func(t *testing.T) {
		plaintext, err := policy.DecryptForRetrieval("stored in the clear", TagLegacyPlaintext, "")
		require.NoError(t, err)
		assert.Equal(t, "stored in the clear", plaintext)
	})

	t.Run("untagged encrypted payload uses heuristic", func(t *testing.T) {
		payload, err := crypto.Encrypt("legacy value", "hunter2")
		require.NoError(t, err)

		plaintext, err := policy.DecryptForRetrieval(payload, TagUnknown, "hunter2")
		require.NoError(t, err)
		assert.Equal(t, "legacy value", plaintext)
	})

	t.Run("untagged plaintext payload uses heuristic", func(t *testing.T) {
		plaintext, err := policy.DecryptForRetrieval("no envelope here", TagUnknown, "")
		require.NoError(t, err)
		assert.Equal(t, "no envelope here", plaintext)
	})
}

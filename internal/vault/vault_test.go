package vault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	cases := []string{"hf_abc123", "a", "a very long token with spaces and symbols !@#$%^&*()"}
	for _, s := range cases {
		sealed, err := v.Encrypt(s)
		require.NoError(t, err)

		got, err := v.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	sealed, err := v.Encrypt("hf_secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = v.Decrypt(tampered)
	require.Error(t, err)
}

func TestDecryptFailsOnDifferentKey(t *testing.T) {
	v1 := &Vault{key: [32]byte{1}}
	v2 := &Vault{key: [32]byte{2}}

	sealed, err := v1.Encrypt("hf_secret")
	require.NoError(t, err)

	_, err = v2.Decrypt(sealed)
	require.Error(t, err)
}

func TestEncryptRejectsEmpty(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	_, err = v.Encrypt("")
	assert.Error(t, err)
}

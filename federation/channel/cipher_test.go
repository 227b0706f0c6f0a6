package channel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	a, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same"), key)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a.IV, b.IV))
	assert.False(t, bytes.Equal(a.Ciphertext, b.Ciphertext))
	assert.Equal(t, AlgorithmAESGCM, a.Algorithm)
}

func TestEncrypt_InvalidKey(t *testing.T) {
	_, err := Encrypt([]byte("x"), Key("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = xchacha{}.Encrypt([]byte("x"), Key("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewCipher(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: AlgorithmAESGCM},
		{name: AlgorithmAESGCM, want: AlgorithmAESGCM},
		{name: AlgorithmXChaCha, want: AlgorithmXChaCha},
		{name: "rot13", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipher(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownAlgorithm)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name())
		})
	}
}

func TestDecrypt_MalformedPayloads(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)
	good, err := Encrypt([]byte("hello"), key)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload *EncryptedPayload
		key     Key
	}{
		{name: "nil payload", payload: nil, key: key},
		{name: "unknown algorithm", payload: &EncryptedPayload{Algorithm: "nope", IV: good.IV, Tag: good.Tag, Ciphertext: good.Ciphertext}, key: key},
		{name: "short iv", payload: &EncryptedPayload{IV: good.IV[:4], Tag: good.Tag, Ciphertext: good.Ciphertext}, key: key},
		{name: "missing tag", payload: &EncryptedPayload{IV: good.IV, Ciphertext: good.Ciphertext}, key: key},
		{name: "bad key size", payload: good, key: Key("short")},
		{name: "nil key", payload: good, key: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decrypt(tt.payload, tt.key)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestDecodePayload_Invalid(t *testing.T) {
	_, ok := DecodePayload("%%%")
	assert.False(t, ok)

	_, ok = DecodePayload("bm90LWpzb24=")
	assert.False(t, ok)
}

func TestDecrypt_EmptyPlaintext(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	p, err := Encrypt(nil, key)
	require.NoError(t, err)

	got, ok := Decrypt(p, key)
	require.True(t, ok)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

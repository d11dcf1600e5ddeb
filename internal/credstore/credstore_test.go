package credstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_RawKey_RoundTrips(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	enc, err := NewEncryptor(EncryptionConfig{Key: key, KeyType: "raw"})
	require.NoError(t, err)

	ciphertext, err := enc.EncryptString("super-secret")
	require.NoError(t, err)
	assert.NotEqual(t, "super-secret", ciphertext)

	plaintext, err := enc.DecryptString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "super-secret", plaintext)
}

func TestEncryptor_PassphraseKey_RoundTrips(t *testing.T) {
	cfg := DefaultEncryptionConfig("correct horse battery staple", "pepper")
	enc, err := NewEncryptor(cfg)
	require.NoError(t, err)

	ciphertext, err := enc.EncryptString("api-token-123")
	require.NoError(t, err)

	plaintext, err := enc.DecryptString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "api-token-123", plaintext)
}

func TestEncryptor_WrongKey_FailsToDecrypt(t *testing.T) {
	enc1, err := NewEncryptor(DefaultEncryptionConfig("pass-one", "salt"))
	require.NoError(t, err)
	enc2, err := NewEncryptor(DefaultEncryptionConfig("pass-two", "salt"))
	require.NoError(t, err)

	ciphertext, err := enc1.EncryptString("payload")
	require.NoError(t, err)

	_, err = enc2.DecryptString(ciphertext)
	assert.Error(t, err)
}

func TestNewEncryptor_InvalidRawKey_Errors(t *testing.T) {
	_, err := NewEncryptor(EncryptionConfig{Key: "not-base64!!", KeyType: "raw"})
	assert.Error(t, err)
}

func TestAESCredentialStore_PutAndDecryptById(t *testing.T) {
	enc, err := NewEncryptor(DefaultEncryptionConfig("passphrase", "salt"))
	require.NoError(t, err)
	store := NewAESCredentialStore(enc)

	require.NoError(t, store.Put("cred-1", "slack-token", "xoxb-secret"))

	plaintext, err := store.DecryptedById("cred-1")
	require.NoError(t, err)
	assert.Equal(t, "xoxb-secret", plaintext)
}

func TestAESCredentialStore_FindByName_ResolvesId(t *testing.T) {
	enc, err := NewEncryptor(DefaultEncryptionConfig("passphrase", "salt"))
	require.NoError(t, err)
	store := NewAESCredentialStore(enc)

	require.NoError(t, store.Put("cred-1", "slack-token", "xoxb-secret"))

	id, ok := store.FindByName("slack-token")
	require.True(t, ok)
	assert.Equal(t, "cred-1", id)

	_, ok = store.FindByName("missing")
	assert.False(t, ok)
}

func TestAESCredentialStore_DecryptedById_Unknown_Errors(t *testing.T) {
	enc, err := NewEncryptor(DefaultEncryptionConfig("passphrase", "salt"))
	require.NoError(t, err)
	store := NewAESCredentialStore(enc)

	_, err = store.DecryptedById("missing")
	assert.Error(t, err)
}

func TestInMemoryCredentialStore_PutAndLookup(t *testing.T) {
	store := NewInMemoryCredentialStore()
	store.Put("cred-1", "api-key", "plain-value")

	v, err := store.DecryptedById("cred-1")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", v)

	id, ok := store.FindByName("api-key")
	require.True(t, ok)
	assert.Equal(t, "cred-1", id)
}

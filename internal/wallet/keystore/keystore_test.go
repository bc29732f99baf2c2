package keystore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/test"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/keystore"
)

func TestEncryptDecrypt(t *testing.T) {
	ks, err := keystore.Encrypt([]byte(test.TestMnemonic), test.TestPassword, keystore.LightScryptParams())
	require.NoError(t, err)

	assert.Equal(t, 3, ks.Version)
	assert.Equal(t, "scrypt", ks.Crypto.KDF)
	assert.Equal(t, 4096, ks.Crypto.KDFParams.N)
	assert.NotContains(t, ks.Crypto.Ciphertext, "test")

	plain, err := keystore.Decrypt(ks, test.TestPassword)
	require.NoError(t, err)
	assert.Equal(t, test.TestMnemonic, string(plain))
}

func TestDecryptWrongPassword(t *testing.T) {
	ks, err := keystore.Encrypt([]byte(test.TestMnemonic), test.TestPassword, keystore.LightScryptParams())
	require.NoError(t, err)

	_, err = keystore.Decrypt(ks, "hunter2")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestDecryptUnsupportedCipher(t *testing.T) {
	ks, err := keystore.Encrypt([]byte("secret"), test.TestPassword, keystore.LightScryptParams())
	require.NoError(t, err)

	ks.Crypto.Cipher = "aes-256-gcm"
	_, err = keystore.Decrypt(ks, test.TestPassword)
	assert.Error(t, err)
}

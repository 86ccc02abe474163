// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

func encryptPEMBlock(t *testing.T, password, plaintext []byte) *pem.Block {
	salt := make([]byte, pbkdf2SaltSize)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	nonce := make([]byte, aesGCMNonceSize)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	key := pbkdf2.Key(password, salt, pbkdf2Iterations, aesKeySize, sha3.New256)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	encrypted := append(salt, nonce...)
	encrypted = append(encrypted, gcm.Seal(nil, nonce, plaintext, nil)...)
	return &pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: encrypted}
}

func TestDecryptPEMBlock(t *testing.T) {
	password := []byte("rtl433")
	plaintext := []byte("meter key material")
	block := encryptPEMBlock(t, password, plaintext)

	t.Run("ValidDecryption", func(t *testing.T) {
		decrypted, err := decryptPEMBlock(block, password)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := decryptPEMBlock(block, []byte("wrong"))
		require.Error(t, err)
	})

	t.Run("NilBlock", func(t *testing.T) {
		_, err := decryptPEMBlock(nil, password)
		require.EqualError(t, err, "PEM block is nil")
	})

	t.Run("ShortBlock", func(t *testing.T) {
		_, err := decryptPEMBlock(&pem.Block{Bytes: []byte{1, 2, 3}}, password)
		require.Error(t, err)

		short := &pem.Block{Bytes: make([]byte, pbkdf2SaltSize+4)}
		_, err = decryptPEMBlock(short, password)
		require.EqualError(t, err, "ciphertext in PEM block is too short")
	})
}

func TestLoadCACertPoolErrors(t *testing.T) {
	_, err := loadCACertPool(filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not a cert"), 0o600))
	_, err = loadCACertPool(empty)
	require.EqualError(t, err, "no certificates found in CA file")
}

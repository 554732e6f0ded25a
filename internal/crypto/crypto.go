// Package crypto implements the symmetric encryption used by the
// credential vault: AES-256-CBC with a fresh random IV per write, stored
// as "ivHex:ciphertextHex".
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Encryptor encrypts and decrypts small secrets (passwords, tokens) with
// a key derived from a process-wide secret.
type Encryptor struct {
	key [32]byte
}

// NewEncryptor derives a 256-bit key from secret via SHA-256. secret is
// typically INTENTMAIL_ENCRYPTION_KEY.
func NewEncryptor(secret string) *Encryptor {
	return &Encryptor{key: sha256.Sum256([]byte(secret))}
}

// Encrypt returns "ivHex:ciphertextHex" for plaintext, PKCS#7 padded.
func (e *Encryptor) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())

	iv := make([]byte, block.BlockSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("crypto: read iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt given "ivHex:ciphertextHex".
func (e *Encryptor) Decrypt(stored string) ([]byte, error) {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("crypto: malformed ciphertext")
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("crypto: decode iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("crypto: decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("crypto: bad iv length")
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("crypto: ciphertext not block aligned")
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	return pkcs7Unpad(plain)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("crypto: empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("crypto: invalid padding")
	}
	return data[:len(data)-padLen], nil
}

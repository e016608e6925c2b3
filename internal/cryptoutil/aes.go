// Package cryptoutil wraps the standard-library cipher primitives behind
// the small operations the account engine needs: the AES-CBC cipher used
// for replay-protection hashes, the RSA transport decryption applied to
// client-encrypted passwords, and PEM key loading. The primitives
// themselves are external collaborators; nothing here implements crypto.
package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrBadCiphertext covers malformed input: wrong base64, truncated blocks,
// or broken padding.
var ErrBadCiphertext = errors.New("cryptoutil: malformed ciphertext")

// AESCipher performs AES-CBC with PKCS#7 padding over base64 payloads,
// with a fixed key and IV from configuration.
type AESCipher struct {
	block cipher.Block
	iv    []byte
}

// NewAESCipher builds a cipher from raw key and IV strings. The key must be
// 16, 24 or 32 bytes. The IV is zero-padded or truncated to the block size,
// matching how the token issuer derives it from a short configured string.
func NewAESCipher(key, iv string) (*AESCipher, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: %w", err)
	}
	fixed := make([]byte, aes.BlockSize)
	copy(fixed, iv)
	return &AESCipher{block: block, iv: fixed}, nil
}

// Encrypt returns the base64 ciphertext of plaintext.
func (c *AESCipher) Encrypt(plaintext string) string {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

// Decrypt reverses Encrypt. Any malformed input fails with
// ErrBadCiphertext.
func (c *AESCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: length %d", ErrBadCiphertext, len(raw))
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)
	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrBadCiphertext
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrBadCiphertext
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrBadCiphertext
		}
	}
	return b[:len(b)-n], nil
}

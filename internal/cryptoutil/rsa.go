package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// multipartPrefix marks payloads that were too large for one RSA block and
// were encrypted in dot-separated chunks. The spelling is part of the wire
// format shared with clients.
const multipartPrefix = "mutipart"

// multipartChunkSize is the plaintext chunk length used when encrypting
// multipart payloads.
const multipartChunkSize = 100

// ErrBadKey is returned when PEM key material cannot be parsed.
var ErrBadKey = errors.New("cryptoutil: bad key material")

// RSADecrypt decrypts a base64 PKCS#1 v1.5 payload, transparently handling
// the multipart format.
func RSADecrypt(data string, key *rsa.PrivateKey) (string, error) {
	if strings.HasPrefix(data, multipartPrefix) {
		parts := strings.Split(data, ".")
		var sb strings.Builder
		for _, part := range parts[1:] {
			plain, err := rsaDecryptOne(part, key)
			if err != nil {
				return "", err
			}
			sb.WriteString(plain)
		}
		return sb.String(), nil
	}
	return rsaDecryptOne(data, key)
}

func rsaDecryptOne(data string, key *rsa.PrivateKey) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, key, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	return string(plain), nil
}

// RSAEncrypt encrypts data with PKCS#1 v1.5, falling back to the multipart
// format when the payload exceeds the key's block capacity.
func RSAEncrypt(data string, key *rsa.PublicKey) (string, error) {
	enc, err := rsaEncryptOne(data, key)
	if err == nil {
		return enc, nil
	}
	if !errors.Is(err, rsa.ErrMessageTooLong) {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(multipartPrefix)
	for i := 0; i < len(data); i += multipartChunkSize {
		end := i + multipartChunkSize
		if end > len(data) {
			end = len(data)
		}
		part, err := rsaEncryptOne(data[i:end], key)
		if err != nil {
			return "", err
		}
		sb.WriteByte('.')
		sb.WriteString(part)
	}
	return sb.String(), nil
}

func rsaEncryptOne(data string, key *rsa.PublicKey) (string, error) {
	out, err := rsa.EncryptPKCS1v15(rand.Reader, key, []byte(data))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// LoadPrivateKey reads a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(raw)
}

// ParsePrivateKey parses PEM-encoded RSA private key material.
func ParsePrivateKey(raw []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrBadKey
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrBadKey
	}
	return key, nil
}

// LoadPublicKey reads a PEM-encoded RSA public key (PKIX or PKCS#1).
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePublicKey(raw)
}

// ParsePublicKey parses PEM-encoded RSA public key material.
func ParsePublicKey(raw []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrBadKey
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrBadKey
	}
	return key, nil
}

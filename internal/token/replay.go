// Package token validates the client-supplied credentials that gate
// sensitive mutations: the replay-protection "hash" (an encrypted,
// time-bound proof bound to one operation class) and the one-time-password
// key (an RS256 JWT backed by a cache record).
package token

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fotei/go-user-backend/internal/cryptoutil"
)

// Operation classes bound into replay hashes.
const (
	OpLogin      = "LOGIN"
	OpRegister   = "REGISTER"
	OpPassword   = "PASSWORD"
	OpDeleteUser = "DELETE_USER"
)

var (
	// ErrInvalidHash covers undecryptable payloads, operation-class or
	// fingerprint mismatches, and tokens issued in the future.
	ErrInvalidHash = errors.New("invalid hash")

	// ErrHashTooFresh rejects tokens younger than the anti-replay floor:
	// clients must prove elapsed time before the token is usable.
	ErrHashTooFresh = errors.New("hash below minimum age")

	// ErrHashExpired rejects tokens older than the maximum age.
	ErrHashExpired = errors.New("hash expired")
)

// ReplayClaims are the decrypted contents of a valid hash, returned for
// audit logging.
type ReplayClaims struct {
	Operation   string
	Fingerprint string
	IssuedAt    time.Time
}

// ReplayValidator checks replay-protection hashes.
type ReplayValidator struct {
	Cipher *cryptoutil.AESCipher

	// Fingerprint is the configured issuer secret every hash must carry.
	Fingerprint string

	// MinAge is the anti-replay floor (default 30s in production config).
	MinAge time.Duration
	// MaxAge bounds token lifetime; zero disables the upper bound.
	MaxAge time.Duration

	// now is swappable in tests.
	now func() time.Time
}

// Validate decrypts hash and checks it against the expected operation
// class. On success the parsed claims are returned.
func (v *ReplayValidator) Validate(hash, operation string) (*ReplayClaims, error) {
	nowFn := v.now
	if nowFn == nil {
		nowFn = time.Now
	}
	plain, err := v.Cipher.Decrypt(hash)
	if err != nil {
		return nil, ErrInvalidHash
	}
	fields := parseHashFields(plain)

	ms, err := strconv.ParseInt(fields["timeStamp"], 10, 64)
	if err != nil {
		return nil, ErrInvalidHash
	}
	claims := &ReplayClaims{
		Operation:   fields["type"],
		Fingerprint: fields["key"],
		IssuedAt:    time.UnixMilli(ms).UTC(),
	}

	now := nowFn()
	if claims.Operation != operation ||
		claims.Fingerprint != v.Fingerprint ||
		now.Before(claims.IssuedAt) {
		return nil, ErrInvalidHash
	}
	age := now.Sub(claims.IssuedAt)
	if age < v.MinAge {
		return nil, ErrHashTooFresh
	}
	if v.MaxAge > 0 && age > v.MaxAge {
		return nil, ErrHashExpired
	}
	return claims, nil
}

// parseHashFields decodes the "k=v&k=v" payload format. Malformed segments
// yield empty values, which the caller rejects via the field checks.
func parseHashFields(s string) map[string]string {
	fields := make(map[string]string)
	for _, seg := range strings.Split(s, "&") {
		if eq := strings.IndexByte(seg, '='); eq >= 0 {
			fields[seg[:eq]] = seg[eq+1:]
		}
	}
	return fields
}

// SealHash builds and encrypts a hash payload. Production tokens come from
// the client side; this exists for tests and tooling.
func SealHash(c *cryptoutil.AESCipher, operation, fingerprint string, issuedAt time.Time) string {
	payload := "type=" + operation +
		"&key=" + fingerprint +
		"&timeStamp=" + strconv.FormatInt(issuedAt.UnixMilli(), 10)
	return c.Encrypt(payload)
}

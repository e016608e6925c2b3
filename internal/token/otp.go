package token

import (
	"context"
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fotei/go-user-backend/internal/cache"
)

var (
	// ErrInvalidOtpKey covers bad signatures, unknown transaction or
	// identifier types, and keys with no live cache record.
	ErrInvalidOtpKey = errors.New("invalid otp key")

	// ErrOtpKeyExpired is returned for structurally valid but expired keys.
	ErrOtpKeyExpired = errors.New("otp key expired")
)

// OTP transaction types a key may be issued for.
var otpTxTypes = map[string]bool{
	"REGISTER":        true,
	"CHANGE_PASSWORD": true,
	"RESET_PASSWORD":  true,
	"DELETE_USER":     true,
}

// OTP identifier types.
var otpIDTypes = map[string]bool{
	"PHONE": true,
	"EMAIL": true,
}

// OtpClaims is the verified payload of an OTP key.
type OtpClaims struct {
	ID       string `json:"id"`
	TxType   string `json:"txType"`
	IDType   string `json:"idType"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// OtpVerifier checks OTP keys: an RS256 signature over OtpClaims plus a
// live record in the cache proving the OTP exchange actually happened.
type OtpVerifier struct {
	Key   *rsa.PublicKey
	Cache *cache.Client
}

// Verify parses and validates an OTP key and returns its claims. The
// cache record is left in place; callers consume it (cache.RemoveOtp)
// only after their mutation commits.
func (v *OtpVerifier) Verify(ctx context.Context, key string) (*OtpClaims, error) {
	claims := &OtpClaims{}
	_, err := jwt.ParseWithClaims(key, claims, func(*jwt.Token) (any, error) {
		return v.Key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrOtpKeyExpired
		}
		return nil, ErrInvalidOtpKey
	}

	if !otpTxTypes[claims.TxType] || !otpIDTypes[claims.IDType] {
		return nil, ErrInvalidOtpKey
	}
	if _, err := v.Cache.GetOtp(ctx, claims.ID); err != nil {
		if cache.IsNotFound(err) {
			return nil, ErrInvalidOtpKey
		}
		return nil, err
	}
	return claims, nil
}

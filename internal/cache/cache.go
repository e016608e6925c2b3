// Package cache is the typed client over the key-value store used for
// short-lived account state: login-throttle records and one-time-password
// records. Values go through the tagged codec so the flat store round-trips
// types losslessly.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fotei/go-user-backend/internal/codec"
	"github.com/fotei/go-user-backend/internal/kv"
)

// Key namespaces.
const (
	loginValidatePrefix = "login_validate_"
	otpKeyPrefix        = "otp_key_storage_"
)

// removalTTL is the near-zero expiry used instead of a delete: a Get issued
// immediately after removal observes "absent" without a distinct
// deleted-vs-never-set branch.
const removalTTL = time.Millisecond

// ErrNotFound is returned when a record is absent or already expired.
var ErrNotFound = kv.ErrNotFound

// LoginValidation tracks failed login attempts for one identifier.
type LoginValidation struct {
	Username    string    `json:"username"`
	FailCount   int       `json:"failCount"`
	LastRequest time.Time `json:"lastRequest"`
}

// Otp is a one-time-password record produced by the OTP issuing service and
// consumed here during register / password-reset / disable flows.
type Otp struct {
	ID        string    `json:"id"`
	Value     string    `json:"value"`
	Count     int       `json:"count"`
	FailCount int       `json:"failCount"`
	LastCall  time.Time `json:"lastCall"`
	TxType    string    `json:"otpTxType"`
	IDType    string    `json:"otpIdType"`
}

// Client wraps a kv.Store with the typed record operations.
type Client struct {
	Store kv.Store

	// ValidityTTL bounds how long a login-validation record survives
	// between attempts.
	ValidityTTL time.Duration
}

// New returns a Client with the given record validity window.
func New(store kv.Store, validity time.Duration) *Client {
	return &Client{Store: store, ValidityTTL: validity}
}

// PutLoginValidation overwrites the login-validation record for
// lv.Username. Every attempt rewrites the record, restarting its TTL.
func (c *Client) PutLoginValidation(ctx context.Context, lv LoginValidation) error {
	enc, err := codec.Encode(lv)
	if err != nil {
		return err
	}
	return c.Store.Set(ctx, loginValidatePrefix+lv.Username, enc, c.ValidityTTL)
}

// GetLoginValidation returns the record for username, or ErrNotFound.
func (c *Client) GetLoginValidation(ctx context.Context, username string) (*LoginValidation, error) {
	raw, err := c.Store.Get(ctx, loginValidatePrefix+username)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrNotFound
	}
	var lv LoginValidation
	if err := codec.DecodeInto(raw, &lv); err != nil {
		return nil, fmt.Errorf("login validation for %s: %w", username, err)
	}
	return &lv, nil
}

// RemoveLoginValidation expires the record via a near-zero-TTL overwrite.
func (c *Client) RemoveLoginValidation(ctx context.Context, username string) error {
	return c.Store.Set(ctx, loginValidatePrefix+username, "", removalTTL)
}

// PutOtp stores an OTP record under its ID.
func (c *Client) PutOtp(ctx context.Context, otp Otp, ttl time.Duration) error {
	enc, err := codec.Encode(otp)
	if err != nil {
		return err
	}
	return c.Store.Set(ctx, otpKeyPrefix+otp.ID, enc, ttl)
}

// GetOtp returns the OTP record with the given ID, or ErrNotFound.
func (c *Client) GetOtp(ctx context.Context, id string) (*Otp, error) {
	raw, err := c.Store.Get(ctx, otpKeyPrefix+id)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrNotFound
	}
	var otp Otp
	if err := codec.DecodeInto(raw, &otp); err != nil {
		return nil, fmt.Errorf("otp %s: %w", id, err)
	}
	return &otp, nil
}

// RemoveOtp expires an OTP record once it has been consumed. Removing with
// an empty ID is a no-op.
func (c *Client) RemoveOtp(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return c.Store.Set(ctx, otpKeyPrefix+id, "", removalTTL)
}

// IsNotFound reports whether err means "record absent" in any of the forms
// the store and codec produce it.
func IsNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

package services

import (
	"context"
	"crypto/rsa"
	"fmt"
	"regexp"
	"strconv"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/fotei/go-user-backend/internal/cryptoutil"
	"github.com/fotei/go-user-backend/internal/token"
)

// usernameRE accepts exactly ten digits (a local phone number).
var usernameRE = regexp.MustCompile(`^\d{10}$`)

// nameRE accepts letters in any script separated by single spaces.
var nameRE = regexp.MustCompile(`^\p{L}+( \p{L}+)*$`)

const (
	minPasswordLen = 6
	maxPasswordLen = 64

	// DefaultBcryptCost matches the cost the accounts were originally
	// hashed with.
	DefaultBcryptCost = 10
)

// validUsername reports whether u satisfies the account naming policy.
func validUsername(u string) bool { return usernameRE.MatchString(u) }

// validName reports whether n is an acceptable display name.
func validName(n string) bool { return nameRE.MatchString(n) }

// validPassword enforces the password strength policy: length bounds plus at
// least one upper-case letter, one lower-case letter, one digit and one
// punctuation or symbol rune.
func validPassword(p string) bool {
	if len(p) < minPasswordLen || len(p) > maxPasswordLen {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return upper && lower && digit && special
}

// resourceKey renders a numeric identity as an advisory-lock resource key.
func resourceKey(id int64) string { return strconv.FormatInt(id, 10) }

type field struct {
	name, value string
}

// requireFields returns ErrInvalidParameter naming the first empty field.
func requireFields(fields ...field) error {
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidParameter, f.name)
		}
	}
	return nil
}

// PasswordHasher abstracts one-way password hashing so tests can swap in a
// cheap implementation.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(plain, hashed string) bool
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) cost() int {
	if h.Cost <= 0 {
		return DefaultBcryptCost
	}
	return h.Cost
}

func (h BcryptHasher) Hash(plain string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost())
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(out), nil
}

func (h BcryptHasher) Compare(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// HashChecker validates a replay-protection hash for an operation class.
type HashChecker interface {
	Validate(hash, operation string) (*token.ReplayClaims, error)
}

// OtpChecker verifies a one-time-password key and returns its claims.
type OtpChecker interface {
	Verify(ctx context.Context, key string) (*token.OtpClaims, error)
}

// decryptPassword reverses the RSA transport encryption applied by clients.
// A nil key means passwords arrive in the clear.
func decryptPassword(key *rsa.PrivateKey, p string) (string, error) {
	if key == nil || p == "" {
		return p, nil
	}
	plain, err := cryptoutil.RSADecrypt(p, key)
	if err != nil {
		return "", fmt.Errorf("%w: undecryptable password", ErrInvalidParameter)
	}
	return plain, nil
}

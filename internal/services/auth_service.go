package services

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fotei/go-user-backend/internal/cache"
	"github.com/fotei/go-user-backend/internal/domain"
	"github.com/fotei/go-user-backend/internal/guard"
	"github.com/fotei/go-user-backend/internal/repo"
	"github.com/fotei/go-user-backend/internal/throttle"
	"github.com/fotei/go-user-backend/internal/token"
)

// AuthService orchestrates credential mutations: login, registration and
// the two password flows. Every mutation holds the relevant advisory lock
// for the duration of its read-check-write sequence.
type AuthService struct {
	DB       *gorm.DB
	Cache    *cache.Client
	Guard    *guard.Guard
	Throttle *throttle.Throttle
	Hashes   HashChecker
	OtpKeys  OtpChecker
	Hasher   PasswordHasher

	// TransportKey decrypts RSA-encrypted passwords from clients. Nil
	// disables transport decryption.
	TransportKey *rsa.PrivateKey

	Log zerolog.Logger
}

// LoginRequest carries one authentication attempt.
type LoginRequest struct {
	Username string
	Password string
	Hash     string
}

// LoginResponse is the authenticated account view.
type LoginResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	Avatar   string `json:"avatar"`
}

// RegisterRequest carries a self-registration.
type RegisterRequest struct {
	Username string
	Password string
	Name     string
	OtpKey   string
	Hash     string
}

// ChangePasswordRequest rotates a password with proof of the current one.
type ChangePasswordRequest struct {
	UserID      int64
	OldPassword string
	NewPassword string
	OtpKey      string
	Hash        string
}

// ResetPasswordRequest replaces a forgotten password after an OTP exchange.
type ResetPasswordRequest struct {
	Username    string
	NewPassword string
	OtpKey      string
	Hash        string
}

// Login authenticates a username/password pair. The throttle is consulted
// before any credential outcome is revealed: a locked identifier is
// rejected outright, and every attempt (success or failure) updates the
// failure record.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := requireFields(
		field{"username", req.Username},
		field{"password", req.Password},
		field{"hash", req.Hash},
	); err != nil {
		return nil, err
	}

	password, err := decryptPassword(s.TransportKey, req.Password)
	if err != nil {
		return nil, err
	}

	user, err := repo.GetUserByUsername(ctx, s.DB, req.Username)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	match := user != nil &&
		user.Status == domain.UserActive &&
		s.Hasher.Compare(password, user.Password)

	if err := s.Throttle.Evaluate(ctx, req.Username, match); err != nil {
		if errors.Is(err, throttle.ErrLoginLocked) {
			s.Log.Warn().Str("username", req.Username).Msg("login throttled")
		}
		return nil, err
	}

	switch {
	case user == nil:
		return nil, ErrInvalidCredential
	case user.Status != domain.UserActive:
		return nil, ErrInvalidAccountStatus
	case !match:
		return nil, ErrInvalidCredential
	}

	if _, err := s.Hashes.Validate(req.Hash, token.OpLogin); err != nil {
		return nil, err
	}

	s.Log.Info().Int64("user_id", user.ID).Msg("login succeeded")
	return &LoginResponse{
		ID:       user.ID,
		Username: user.Username,
		Name:     user.Name,
		Verified: user.Verified,
		Avatar:   user.Avatar,
	}, nil
}

// Register creates a new account. The registration lock is taken with an
// atomic test-and-set keyed by username, so two concurrent registrations
// of the same identifier cannot interleave their existence checks.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	if err := requireFields(
		field{"username", req.Username},
		field{"password", req.Password},
		field{"otpKey", req.OtpKey},
		field{"hash", req.Hash},
	); err != nil {
		return nil, err
	}
	if !validUsername(req.Username) {
		return nil, ErrUsernamePolicy
	}

	password, err := decryptPassword(s.TransportKey, req.Password)
	if err != nil {
		return nil, err
	}
	if !validPassword(password) {
		return nil, ErrPasswordPolicy
	}

	name := req.Name
	if name == "" {
		name = req.Username
	} else if !validName(name) {
		return nil, ErrNamePolicy
	}

	if _, err := s.Hashes.Validate(req.Hash, token.OpRegister); err != nil {
		return nil, err
	}
	otp, err := s.OtpKeys.Verify(ctx, req.OtpKey)
	if err != nil {
		return nil, err
	}

	won, err := s.Guard.TryAcquire(ctx, guard.ClassRegister, req.Username)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrInProgress
	}
	defer s.release(guard.ClassRegister, req.Username)

	if _, err := repo.GetUserByUsername(ctx, s.DB, req.Username); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	hashed, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:      req.Username,
		Password:      hashed,
		Name:          name,
		PhoneNumber:   req.Username,
		PhoneVerified: true,
		Verified:      true,
		Status:        domain.UserActive,
	}
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return repo.CreateUser(ctx, tx, user)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrUserAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	if err := s.Cache.RemoveOtp(ctx, otp.ID); err != nil {
		s.Log.Warn().Err(err).Str("otp_id", otp.ID).Msg("consume otp record")
	}

	s.Log.Info().Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

// ChangePassword rotates a known password. The update lock is held for
// the whole read-verify-write sequence; requests for a locked account
// wait rather than fail.
func (s *AuthService) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := requireFields(
		field{"oldPassword", req.OldPassword},
		field{"newPassword", req.NewPassword},
		field{"otpKey", req.OtpKey},
		field{"hash", req.Hash},
	); err != nil {
		return err
	}
	if req.UserID == 0 {
		return fmt.Errorf("%w: userId is required", ErrInvalidParameter)
	}

	oldPassword, err := decryptPassword(s.TransportKey, req.OldPassword)
	if err != nil {
		return err
	}
	newPassword, err := decryptPassword(s.TransportKey, req.NewPassword)
	if err != nil {
		return err
	}
	if oldPassword == newPassword {
		return ErrPasswordNotChanged
	}
	if !validPassword(newPassword) {
		return ErrPasswordPolicy
	}

	if _, err := s.Hashes.Validate(req.Hash, token.OpPassword); err != nil {
		return err
	}
	otp, err := s.OtpKeys.Verify(ctx, req.OtpKey)
	if err != nil {
		return err
	}

	release, err := s.Guard.Lock(ctx, guard.ClassUpdate, resourceKey(req.UserID))
	if err != nil {
		if errors.Is(err, guard.ErrLockTimeout) {
			return ErrInProgress
		}
		return err
	}
	defer release()

	user, err := repo.GetActiveUser(ctx, s.DB, req.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if !s.Hasher.Compare(oldPassword, user.Password) {
		return ErrIncorrectOldPassword
	}

	hashed, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return repo.UpdateUserPassword(ctx, tx, user.ID, hashed)
	})
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	if err := s.Cache.RemoveOtp(ctx, otp.ID); err != nil {
		s.Log.Warn().Err(err).Str("otp_id", otp.ID).Msg("consume otp record")
	}
	s.Log.Info().Int64("user_id", user.ID).Msg("password changed")
	return nil
}

// ResetPassword replaces a forgotten password. The new password must
// differ from the stored one.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := requireFields(
		field{"username", req.Username},
		field{"newPassword", req.NewPassword},
		field{"otpKey", req.OtpKey},
		field{"hash", req.Hash},
	); err != nil {
		return err
	}

	newPassword, err := decryptPassword(s.TransportKey, req.NewPassword)
	if err != nil {
		return err
	}
	if !validPassword(newPassword) {
		return ErrPasswordPolicy
	}

	if _, err := s.Hashes.Validate(req.Hash, token.OpPassword); err != nil {
		return err
	}
	otp, err := s.OtpKeys.Verify(ctx, req.OtpKey)
	if err != nil {
		return err
	}
	if otp.Username != "" && otp.Username != req.Username {
		return token.ErrInvalidOtpKey
	}

	release, err := s.Guard.Lock(ctx, guard.ClassUpdate, req.Username)
	if err != nil {
		if errors.Is(err, guard.ErrLockTimeout) {
			return ErrInProgress
		}
		return err
	}
	defer release()

	user, err := repo.GetUserByUsername(ctx, s.DB, req.Username)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if s.Hasher.Compare(newPassword, user.Password) {
		return ErrPasswordNotChanged
	}

	hashed, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return repo.UpdateUserPassword(ctx, tx, user.ID, hashed)
	})
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	if err := s.Cache.RemoveOtp(ctx, otp.ID); err != nil {
		s.Log.Warn().Err(err).Str("otp_id", otp.ID).Msg("consume otp record")
	}
	if err := s.Throttle.Reset(ctx, req.Username); err != nil {
		s.Log.Warn().Err(err).Str("username", req.Username).Msg("reset login throttle")
	}
	s.Log.Info().Int64("user_id", user.ID).Msg("password reset")
	return nil
}

// CheckExist reports whether an account with the given username exists,
// along with its verification flag.
func (s *AuthService) CheckExist(ctx context.Context, username string) (exists, verified bool, err error) {
	if username == "" {
		return false, false, fmt.Errorf("%w: username is required", ErrInvalidParameter)
	}
	user, err := repo.GetUserByUsername(ctx, s.DB, username)
	if errors.Is(err, repo.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, user.Verified, nil
}

// release drops a lock with a fresh context so cleanup survives caller
// cancellation.
func (s *AuthService) release(class, resource string) {
	if err := s.Guard.Release(context.Background(), class, resource); err != nil {
		s.Log.Warn().Err(err).Str("class", class).Str("resource", resource).Msg("release lock")
	}
}

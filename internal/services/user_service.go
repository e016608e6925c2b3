package services

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fotei/go-user-backend/internal/cache"
	"github.com/fotei/go-user-backend/internal/domain"
	"github.com/fotei/go-user-backend/internal/guard"
	"github.com/fotei/go-user-backend/internal/notify"
	"github.com/fotei/go-user-backend/internal/repo"
	"github.com/fotei/go-user-backend/internal/token"
)

// UserService orchestrates profile reads and the account-level mutations:
// profile update, password confirmation and account disablement.
type UserService struct {
	DB       *gorm.DB
	Cache    *cache.Client
	Guard    *guard.Guard
	Hashes   HashChecker
	OtpKeys  OtpChecker
	Hasher   PasswordHasher
	Notifier notify.Notifier

	// TransportKey decrypts RSA-encrypted passwords from clients. Nil
	// disables transport decryption.
	TransportKey *rsa.PrivateKey

	Log zerolog.Logger
}

// UserInfo is the public projection of an account.
type UserInfo struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Name        string     `json:"name"`
	PhoneNumber string     `json:"phone_number"`
	Avatar      string     `json:"avatar"`
	BirthDay    *time.Time `json:"birth_day"`
	Verified    bool       `json:"verified"`
}

// UpdateInfoRequest carries a profile mutation. All three profile fields
// are replaced, so callers send the full desired state.
type UpdateInfoRequest struct {
	UserID   int64
	Name     string
	BirthDay *time.Time
	Avatar   string
}

// DisableRequest carries an account disablement.
type DisableRequest struct {
	UserID int64
	OtpKey string
	Hash   string
}

func userInfo(u *domain.User) *UserInfo {
	return &UserInfo{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		PhoneNumber: u.PhoneNumber,
		Avatar:      u.Avatar,
		BirthDay:    u.BirthDay,
		Verified:    u.Verified,
	}
}

// GetUserInfo returns the profile of one active account.
func (s *UserService) GetUserInfo(ctx context.Context, id int64) (*UserInfo, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidParameter)
	}
	u, err := repo.GetActiveUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return userInfo(u), nil
}

// GetUserInfos returns profiles for a batch of account IDs. Unknown IDs
// are silently absent from the result.
func (s *UserService) GetUserInfos(ctx context.Context, ids []int64) ([]UserInfo, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: userIds is required", ErrInvalidParameter)
	}
	users, err := repo.GetUsersByIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	out := make([]UserInfo, 0, len(users))
	for i := range users {
		out = append(out, *userInfo(&users[i]))
	}
	return out, nil
}

// SearchUser finds active accounts by name or phone number, excluding the
// caller.
func (s *UserService) SearchUser(ctx context.Context, callerID int64, search string) ([]UserInfo, error) {
	if search == "" {
		return nil, fmt.Errorf("%w: search is required", ErrInvalidParameter)
	}
	users, err := repo.SearchUsers(ctx, s.DB, callerID, search)
	if err != nil {
		return nil, err
	}
	out := make([]UserInfo, 0, len(users))
	for i := range users {
		out = append(out, *userInfo(&users[i]))
	}
	return out, nil
}

// UpdateUserInfo mutates the profile fields under the account update lock.
func (s *UserService) UpdateUserInfo(ctx context.Context, req UpdateInfoRequest) (*UserInfo, error) {
	if req.UserID == 0 {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidParameter)
	}
	if !validName(req.Name) {
		return nil, ErrNamePolicy
	}

	release, err := s.Guard.Lock(ctx, guard.ClassUpdate, resourceKey(req.UserID))
	if err != nil {
		if errors.Is(err, guard.ErrLockTimeout) {
			return nil, ErrInProgress
		}
		return nil, err
	}
	defer release()

	if _, err := repo.GetActiveUser(ctx, s.DB, req.UserID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return repo.UpdateUserProfile(ctx, tx, req.UserID, req.Name, req.BirthDay, req.Avatar)
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	u, err := repo.GetUser(ctx, s.DB, req.UserID)
	if err != nil {
		return nil, err
	}
	s.Log.Info().Int64("user_id", u.ID).Msg("profile updated")
	return userInfo(u), nil
}

// ConfirmPassword verifies the caller's password against the stored hash.
// It waits for any in-flight password change or disable of the account so
// the comparison never races a rotation.
func (s *UserService) ConfirmPassword(ctx context.Context, userID int64, password string) (bool, error) {
	if userID == 0 {
		return false, fmt.Errorf("%w: userId is required", ErrInvalidParameter)
	}
	if password == "" {
		return false, fmt.Errorf("%w: password is required", ErrInvalidParameter)
	}

	plain, err := decryptPassword(s.TransportKey, password)
	if err != nil {
		return false, err
	}

	err = s.Guard.WaitFree(ctx, resourceKey(userID), guard.ClassUpdate, guard.ClassDisable)
	if errors.Is(err, guard.ErrLockTimeout) {
		return false, ErrInProgress
	}
	if err != nil {
		return false, err
	}

	u, err := repo.GetActiveUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, err
	}
	return s.Hasher.Compare(plain, u.Password), nil
}

// DisableUser deactivates an account: status flips to INACTIVE and the
// unique identifiers are replaced with random values so they can be
// registered again. All relationship edges of the account are removed.
// The disable lock blocks concurrent friend mutations targeting the
// account while the cascade runs.
func (s *UserService) DisableUser(ctx context.Context, req DisableRequest) error {
	if req.UserID == 0 {
		return fmt.Errorf("%w: userId is required", ErrInvalidParameter)
	}
	if err := requireFields(
		field{"otpKey", req.OtpKey},
		field{"hash", req.Hash},
	); err != nil {
		return err
	}

	if _, err := s.Hashes.Validate(req.Hash, token.OpDeleteUser); err != nil {
		return err
	}
	otp, err := s.OtpKeys.Verify(ctx, req.OtpKey)
	if err != nil {
		return err
	}

	key := resourceKey(req.UserID)
	release, err := s.Guard.Lock(ctx, guard.ClassDisable, key)
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

	// Random replacements free the unique columns for re-registration.
	phone := uuid.NewString()
	email := uuid.NewString()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := repo.DeactivateUser(ctx, tx, user.ID, phone, email); err != nil {
			return err
		}
		return repo.DeleteAllFriends(ctx, tx, user.ID)
	})
	if err != nil {
		return fmt.Errorf("disable user: %w", err)
	}

	if err := s.Cache.RemoveOtp(ctx, otp.ID); err != nil {
		s.Log.Warn().Err(err).Str("otp_id", otp.ID).Msg("consume otp record")
	}

	if s.Notifier != nil {
		ev := notify.Event{
			Type:        notify.EventAccountDeleted,
			RecipientID: user.ID,
			Template:    "account_deleted",
			Payload:     map[string]any{"username": user.Username},
			OccurredAt:  time.Now(),
		}
		if err := s.Notifier.Publish(ctx, ev); err != nil {
			s.Log.Warn().Err(err).Int64("user_id", user.ID).Msg("publish notification")
		}
	}

	s.Log.Info().Int64("user_id", user.ID).Msg("account disabled")
	return nil
}

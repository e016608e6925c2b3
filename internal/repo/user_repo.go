// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On unique-constraint violations, CreateUser returns ErrDuplicate.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fotei/go-user-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique-constraint violation on insert.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation maps driver errors to ErrDuplicate.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CreateUser inserts a new account row. Unique violations (username, phone
// number, email) surface as ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	u.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUser fetches a user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetActiveUser fetches a user by ID requiring ACTIVE status, or
// ErrNotFound.
func GetActiveUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("id = ? AND status = ?", id, domain.UserActive).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername fetches a user by username, or ErrNotFound.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsersByIDs returns the users whose IDs appear in ids. Missing IDs are
// silently skipped.
func GetUsersByIDs(ctx context.Context, db *gorm.DB, ids []int64) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// SearchUsers returns users whose name matches the search term, excluding
// excludeID (the caller).
func SearchUsers(ctx context.Context, db *gorm.DB, excludeID int64, search string) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Where("name LIKE ?", "%"+search+"%").
		Where("id <> ?", excludeID).
		Find(&out).Error
	return out, err
}

// UpdateUserPassword replaces the stored password hash. Returns ErrNotFound
// when no row was touched.
func UpdateUserPassword(ctx context.Context, db *gorm.DB, id int64, hash string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("password", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateUserProfile updates the mutable profile fields.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, id int64, name string, birthDay *time.Time, avatar string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"name":      name,
			"birth_day": birthDay,
			"avatar":    avatar,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeactivateUser flips the account to INACTIVE and replaces its unique
// identifiers, freeing them for re-registration.
func DeactivateUser(ctx context.Context, db *gorm.DB, id int64, phoneNumber, email string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       domain.UserInactive,
			"phone_number": phoneNumber,
			"email":        email,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

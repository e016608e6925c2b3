// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Friend edges.
//
// An edge is stored directed but represents an unordered pair, so pair
// lookups always query both orderings. Deletions are hard deletes: a
// rejected or unblocked edge leaves no row behind.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fotei/go-user-backend/internal/domain"
)

// CreateFriend inserts a new edge. A concurrent duplicate of the same
// directed pair trips the unique index and surfaces as ErrDuplicate.
func CreateFriend(ctx context.Context, db *gorm.DB, sourceID, targetID int64, status domain.FriendStatus) (*domain.Friend, error) {
	f := &domain.Friend{
		SourceID:  sourceID,
		TargetID:  targetID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return f, nil
}

// GetFriend fetches an edge by ID, or ErrNotFound.
func GetFriend(ctx context.Context, db *gorm.DB, id int64) (*domain.Friend, error) {
	var f domain.Friend
	if err := db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// FindPair returns every edge between a and b, checking both orderings.
// The pair invariant allows at most one, but the query does not assume it.
func FindPair(ctx context.Context, db *gorm.DB, a, b int64) ([]domain.Friend, error) {
	var out []domain.Friend
	err := db.WithContext(ctx).
		Where("(source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)", a, b, b, a).
		Find(&out).Error
	return out, err
}

// UpdateFriendStatus transitions a single edge. Returns ErrNotFound when
// the edge does not exist.
func UpdateFriendStatus(ctx context.Context, db *gorm.DB, id int64, status domain.FriendStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Friend{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdatePairStatus transitions every edge between a and b (both orderings).
// Used by block, which flips whatever edge exists for the pair.
func UpdatePairStatus(ctx context.Context, db *gorm.DB, a, b int64, status domain.FriendStatus) error {
	return db.WithContext(ctx).
		Model(&domain.Friend{}).
		Where("(source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)", a, b, b, a).
		Update("status", status).Error
}

// DeleteFriend removes an edge outright.
func DeleteFriend(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Delete(&domain.Friend{}, "id = ?", id).Error
}

// DeleteAllFriends removes every edge touching userID, in either direction.
func DeleteAllFriends(ctx context.Context, db *gorm.DB, userID int64) error {
	return db.WithContext(ctx).
		Where("source_id = ? OR target_id = ?", userID, userID).
		Delete(&domain.Friend{}).Error
}

// FriendProfile is the joined edge + counterpart row returned by list
// queries.
type FriendProfile struct {
	UserID       int64               `json:"id"`
	Name         string              `json:"name"`
	UserStatus   domain.UserStatus   `json:"status"`
	Avatar       string              `json:"avatar"`
	PhoneNumber  string              `json:"phone_number"`
	BirthDay     *time.Time          `json:"birth_day"`
	FriendID     int64               `json:"friend_id"`
	FriendStatus domain.FriendStatus `json:"status_friend"`
}

// ListFriendProfiles returns a page of edges with the given status touching
// userID, joined with the counterpart account on the other side.
func ListFriendProfiles(ctx context.Context, db *gorm.DB, userID int64, status domain.FriendStatus, offset, limit int) ([]FriendProfile, error) {
	var out []FriendProfile
	err := db.WithContext(ctx).
		Table("friends").
		Select(`users.id AS user_id, users.name, users.status AS user_status,
			users.avatar, users.phone_number, users.birth_day,
			friends.id AS friend_id, friends.status AS friend_status`).
		Joins("INNER JOIN users ON users.id = friends.source_id OR users.id = friends.target_id").
		Where("(friends.source_id = ? OR friends.target_id = ?)", userID, userID).
		Where("users.id <> ?", userID).
		Where("friends.status = ?", status).
		Offset(offset).
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// ListBlockedProfiles returns the accounts userID has blocked.
func ListBlockedProfiles(ctx context.Context, db *gorm.DB, userID int64, offset, limit int) ([]FriendProfile, error) {
	var out []FriendProfile
	err := db.WithContext(ctx).
		Table("friends").
		Select(`users.id AS user_id, users.name, users.status AS user_status,
			users.avatar, users.phone_number, users.birth_day,
			friends.id AS friend_id, friends.status AS friend_status`).
		Joins("INNER JOIN users ON users.id = friends.target_id").
		Where("friends.source_id = ?", userID).
		Where("friends.status = ?", domain.FriendBlocked).
		Offset(offset).
		Limit(limit).
		Scan(&out).Error
	return out, err
}

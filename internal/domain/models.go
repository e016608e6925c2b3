// Package domain defines the persistence models for user accounts and the
// relationship edges between them. These types are mapped with GORM and
// form the core data layer of the account service.
package domain

import (
	"time"
)

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	UserActive   UserStatus = "ACTIVE"
	UserInactive UserStatus = "INACTIVE"
)

// FriendStatus is the state of a relationship edge.
type FriendStatus string

const (
	FriendPending  FriendStatus = "PENDING"
	FriendFriended FriendStatus = "FRIENDED"
	FriendBlocked  FriendStatus = "BLOCKED"
)

// User represents one account. Username doubles as the phone number used
// during registration; email stays unset until the user provides one.
//
// Fields:
//   - ID: numeric primary key.
//   - Username / PhoneNumber / Email: unique identifiers. PhoneNumber and
//     Email are replaced by random values when the account is disabled, so
//     the identifiers become reusable.
//   - Password: bcrypt hash, never the plaintext.
//   - Status: ACTIVE or INACTIVE (disabled).
type User struct {
	ID            int64      `json:"id"             gorm:"primaryKey;autoIncrement"`
	Username      string     `json:"username"       gorm:"type:varchar(64);not null;uniqueIndex"`
	Password      string     `json:"-"              gorm:"type:varchar(128);not null"`
	Name          string     `json:"name"           gorm:"type:varchar(255)"`
	PhoneNumber   string     `json:"phone_number"   gorm:"type:varchar(64);uniqueIndex"`
	Email         *string    `json:"email"          gorm:"type:varchar(255);uniqueIndex"`
	PhoneVerified bool       `json:"phone_verified" gorm:"not null;default:false"`
	Verified      bool       `json:"verified"       gorm:"not null;default:false"`
	Status        UserStatus `json:"status"         gorm:"type:varchar(16);not null;default:'ACTIVE';check:status IN ('ACTIVE','INACTIVE')"`
	BirthDay      *time.Time `json:"birth_day"`
	Avatar        string     `json:"avatar"         gorm:"type:varchar(512)"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Friend is a relationship edge. It is stored directed (SourceID created
// it, TargetID received it) but logically represents an unordered pair:
// at most one edge may exist per pair, in either direction. Rows are
// deleted outright on reject/unblock; there is no terminal state.
//
// The directed unique index is the persistence-layer backstop for
// concurrent duplicate creation; pair-level uniqueness across both
// orderings is enforced by querying both directions before insert.
type Friend struct {
	ID        int64        `json:"id"         gorm:"primaryKey;autoIncrement"`
	SourceID  int64        `json:"source_id"  gorm:"not null;index;uniqueIndex:ux_friend_pair,priority:1"`
	TargetID  int64        `json:"target_id"  gorm:"not null;index;uniqueIndex:ux_friend_pair,priority:2"`
	Status    FriendStatus `json:"status"     gorm:"type:varchar(16);not null;check:status IN ('PENDING','FRIENDED','BLOCKED')"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Friend.
func (Friend) TableName() string { return "friends" }

// Involves reports whether userID is either side of the edge.
func (f Friend) Involves(userID int64) bool {
	return f.SourceID == userID || f.TargetID == userID
}

// OtherSide returns the identity across the edge from userID.
func (f Friend) OtherSide(userID int64) int64 {
	if f.SourceID == userID {
		return f.TargetID
	}
	return f.SourceID
}

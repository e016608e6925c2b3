package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/fotei/go-user-backend/internal/domain"
	"github.com/fotei/go-user-backend/internal/guard"
	"github.com/fotei/go-user-backend/internal/notify"
	"github.com/fotei/go-user-backend/internal/repo"
	"github.com/fotei/go-user-backend/internal/utils"
)

// FriendService orchestrates the relationship state machine: a single
// directed edge per unordered pair, moving through PENDING, FRIENDED and
// BLOCKED, with hard deletes for reject and unblock.
type FriendService struct {
	DB       *gorm.DB
	Guard    *guard.Guard
	Notifier notify.Notifier
	Log      zerolog.Logger
}

// FriendCheck is the relationship summary between two users.
type FriendCheck struct {
	Exists   bool                `json:"exists"`
	FriendID int64               `json:"friend_id,omitempty"`
	Status   domain.FriendStatus `json:"status,omitempty"`

	// OtherID names the edge's counterpart: the recipient for a pending
	// request, the blocker for a blocked pair, and the opposite side of
	// the caller once friended.
	OtherID int64 `json:"other_id,omitempty"`
}

// RequestFriend creates a pending edge from actor to target. It first
// waits for any in-flight disable or block of the target to settle, then
// re-reads the pair: a blocked edge in either direction suppresses the
// request, any other edge makes it a duplicate.
func (s *FriendService) RequestFriend(ctx context.Context, actorID, targetID int64, actorName string) (*domain.Friend, error) {
	if targetID == 0 {
		return nil, fmt.Errorf("%w: targetId is required", ErrInvalidParameter)
	}
	if targetID == actorID {
		return nil, fmt.Errorf("%w: cannot befriend yourself", ErrInvalidParameter)
	}

	err := s.Guard.WaitFree(ctx, resourceKey(targetID), guard.ClassDisable, guard.ClassBlock)
	if errors.Is(err, guard.ErrLockTimeout) {
		return nil, ErrInProgress
	}
	if err != nil {
		return nil, err
	}

	if _, err := repo.GetActiveUser(ctx, s.DB, targetID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	edges, err := repo.FindPair(ctx, s.DB, actorID, targetID)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if e.Status == domain.FriendBlocked {
			return nil, ErrWasBlocked
		}
	}
	if len(edges) > 0 {
		return nil, ErrAlreadyExists
	}

	edge, err := repo.CreateFriend(ctx, s.DB, actorID, targetID, domain.FriendPending)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Event{
		Type:        notify.EventFriendRequested,
		RecipientID: targetID,
		Title:       "New friend request",
		Template:    "friend_requested",
		Payload:     map[string]any{"friendId": edge.ID, "from": actorID, "fromName": actorName},
		OccurredAt:  time.Now(),
	})
	s.Log.Info().Int64("friend_id", edge.ID).Int64("source", actorID).Int64("target", targetID).Msg("friend requested")
	return edge, nil
}

// AcceptFriend moves a pending edge to FRIENDED. Only the edge's target
// may accept.
func (s *FriendService) AcceptFriend(ctx context.Context, actorID, friendID int64, actorName string) error {
	edge, err := s.getEdge(ctx, friendID)
	if err != nil {
		return err
	}
	if edge.Status != domain.FriendPending {
		return ErrObjectNotFound
	}
	if edge.TargetID != actorID {
		return ErrPermissionDenied
	}

	if err := repo.UpdateFriendStatus(ctx, s.DB, edge.ID, domain.FriendFriended); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrObjectNotFound
		}
		return err
	}

	s.publish(ctx, notify.Event{
		Type:        notify.EventFriendAccepted,
		RecipientID: edge.SourceID,
		Title:       "Friend request accepted",
		Template:    "friend_accepted",
		Payload:     map[string]any{"friendId": edge.ID, "by": actorID, "byName": actorName},
		OccurredAt:  time.Now(),
	})
	s.Log.Info().Int64("friend_id", edge.ID).Int64("actor", actorID).Msg("friend accepted")
	return nil
}

// RejectFriend deletes a pending or friended edge. Either side may end
// the relationship; blocked edges are invisible to this operation.
func (s *FriendService) RejectFriend(ctx context.Context, actorID, friendID int64) error {
	edge, err := s.getEdge(ctx, friendID)
	if err != nil {
		return err
	}
	if edge.Status == domain.FriendBlocked {
		return ErrObjectNotFound
	}
	if !edge.Involves(actorID) {
		return ErrPermissionDenied
	}

	if err := repo.DeleteFriend(ctx, s.DB, edge.ID); err != nil {
		return err
	}

	s.publish(ctx, notify.Event{
		Type:        notify.EventRelationshipEnded,
		RecipientID: edge.OtherSide(actorID),
		Template:    "relationship_ended",
		Payload:     map[string]any{"friendId": edge.ID},
		OccurredAt:  time.Now(),
	})
	s.Log.Info().Int64("friend_id", edge.ID).Int64("actor", actorID).Msg("friend rejected")
	return nil
}

// BlockFriend moves the pair to BLOCKED with the actor as blocker. The
// block lock on the target is held across the read-modify-write so a
// concurrent friend request cannot slip in between.
func (s *FriendService) BlockFriend(ctx context.Context, actorID, targetID int64) error {
	if targetID == 0 {
		return fmt.Errorf("%w: targetId is required", ErrInvalidParameter)
	}
	if targetID == actorID {
		return fmt.Errorf("%w: cannot block yourself", ErrInvalidParameter)
	}

	key := resourceKey(targetID)
	err := s.Guard.WaitFree(ctx, key, guard.ClassDisable, guard.ClassBlock)
	if errors.Is(err, guard.ErrLockTimeout) {
		return ErrInProgress
	}
	if err != nil {
		return err
	}
	if err := s.Guard.Acquire(ctx, guard.ClassBlock, key); err != nil {
		return err
	}
	defer s.release(guard.ClassBlock, key)

	if _, err := repo.GetActiveUser(ctx, s.DB, targetID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	edges, err := repo.FindPair(ctx, s.DB, actorID, targetID)
	if err != nil {
		return err
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if len(edges) == 0 {
			_, err := repo.CreateFriend(ctx, tx, actorID, targetID, domain.FriendBlocked)
			return err
		}
		// The edge flips in place and keeps its original direction, so
		// the blocker is the edge's source only when it created the edge.
		return repo.UpdatePairStatus(ctx, tx, actorID, targetID, domain.FriendBlocked)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, notify.Event{
		Type:        notify.EventRelationshipEnded,
		RecipientID: targetID,
		Template:    "relationship_ended",
		OccurredAt:  time.Now(),
	})
	s.Log.Info().Int64("actor", actorID).Int64("target", targetID).Msg("user blocked")
	return nil
}

// UnblockFriend deletes a blocked edge. Only the blocker (the edge's
// source) sees the edge; anyone else gets not-found rather than a
// permission error.
func (s *FriendService) UnblockFriend(ctx context.Context, actorID, friendID int64) error {
	edge, err := s.getEdge(ctx, friendID)
	if err != nil {
		return err
	}
	if edge.Status != domain.FriendBlocked || edge.SourceID != actorID {
		return ErrObjectNotFound
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return repo.DeleteFriend(ctx, tx, edge.ID)
	})
	if err != nil {
		return err
	}
	s.Log.Info().Int64("friend_id", edge.ID).Int64("actor", actorID).Msg("user unblocked")
	return nil
}

// CheckFriend summarizes the relationship between the actor and another
// user, whichever direction the edge was created in.
func (s *FriendService) CheckFriend(ctx context.Context, actorID, otherID int64) (*FriendCheck, error) {
	if otherID == 0 {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidParameter)
	}

	edges, err := repo.FindPair(ctx, s.DB, actorID, otherID)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return &FriendCheck{Exists: false}, nil
	}

	edge := edges[0]
	check := &FriendCheck{Exists: true, FriendID: edge.ID, Status: edge.Status}
	switch edge.Status {
	case domain.FriendPending:
		check.OtherID = edge.TargetID
	case domain.FriendBlocked:
		check.OtherID = edge.SourceID
	default:
		check.OtherID = edge.OtherSide(actorID)
	}
	return check, nil
}

// ListFriends returns the accepted relationships of a user, paged.
func (s *FriendService) ListFriends(ctx context.Context, userID int64, page, pageSize int) ([]repo.FriendProfile, error) {
	offset, limit := utils.PageOffset(page, pageSize)
	return repo.ListFriendProfiles(ctx, s.DB, userID, domain.FriendFriended, offset, limit)
}

// ListPending returns requests involving the user that await an answer.
func (s *FriendService) ListPending(ctx context.Context, userID int64, page, pageSize int) ([]repo.FriendProfile, error) {
	offset, limit := utils.PageOffset(page, pageSize)
	return repo.ListFriendProfiles(ctx, s.DB, userID, domain.FriendPending, offset, limit)
}

// ListBlocked returns the users blocked by userID. Edges where userID is
// the blocked side are not shown.
func (s *FriendService) ListBlocked(ctx context.Context, userID int64, page, pageSize int) ([]repo.FriendProfile, error) {
	offset, limit := utils.PageOffset(page, pageSize)
	return repo.ListBlockedProfiles(ctx, s.DB, userID, offset, limit)
}

// DeleteAllFriends removes every edge touching userID, in either
// direction. Account disablement runs the same cascade inside its own
// transaction.
func (s *FriendService) DeleteAllFriends(ctx context.Context, userID int64) error {
	if userID == 0 {
		return fmt.Errorf("%w: userId is required", ErrInvalidParameter)
	}
	return repo.DeleteAllFriends(ctx, s.DB, userID)
}

func (s *FriendService) getEdge(ctx context.Context, friendID int64) (*domain.Friend, error) {
	if friendID == 0 {
		return nil, fmt.Errorf("%w: friendId is required", ErrInvalidParameter)
	}
	edge, err := repo.GetFriend(ctx, s.DB, friendID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return edge, nil
}

func (s *FriendService) publish(ctx context.Context, ev notify.Event) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Publish(ctx, ev); err != nil {
		s.Log.Warn().Err(err).Str("event", ev.Type).Int64("recipient", ev.RecipientID).Msg("publish notification")
	}
}

func (s *FriendService) release(class, resource string) {
	if err := s.Guard.Release(context.Background(), class, resource); err != nil {
		s.Log.Warn().Err(err).Str("class", class).Str("resource", resource).Msg("release lock")
	}
}

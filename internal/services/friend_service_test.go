package services

import (
	"context"
	"errors"
	"testing"

	"github.com/fotei/go-user-backend/internal/domain"
	"github.com/fotei/go-user-backend/internal/guard"
	"github.com/fotei/go-user-backend/internal/notify"
	"github.com/fotei/go-user-backend/internal/repo"
)

func TestRequestAcceptCheck_EndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)

	edge, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if edge.SourceID != a.ID || edge.TargetID != b.ID || edge.Status != domain.FriendPending {
		t.Fatalf("unexpected edge: %+v", edge)
	}
	if ev := e.notifier.last(t); ev.Type != notify.EventFriendRequested || ev.RecipientID != b.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if err := e.friends.AcceptFriend(ctx, b.ID, edge.ID, b.Name); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if ev := e.notifier.last(t); ev.Type != notify.EventFriendAccepted || ev.RecipientID != a.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// Both perspectives agree and resolve the counterpart correctly.
	fromA, err := e.friends.CheckFriend(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	fromB, err := e.friends.CheckFriend(ctx, b.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !fromA.Exists || fromA.Status != domain.FriendFriended || fromA.OtherID != b.ID {
		t.Fatalf("from A: %+v", fromA)
	}
	if !fromB.Exists || fromB.Status != domain.FriendFriended || fromB.OtherID != a.ID {
		t.Fatalf("from B: %+v", fromB)
	}
}

func TestRequestFriend_DuplicateEitherDirection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)

	if _, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name); err != nil {
		t.Fatal(err)
	}
	if _, err := e.friends.RequestFriend(ctx, b.ID, a.ID, b.Name); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("reverse: want ErrAlreadyExists, got %v", err)
	}
	if _, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("same: want ErrAlreadyExists, got %v", err)
	}
}

func TestRequestFriend_BlockedPrecedence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)

	if err := e.friends.BlockFriend(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.friends.RequestFriend(ctx, b.ID, a.ID, b.Name); !errors.Is(err, ErrWasBlocked) {
		t.Fatalf("want ErrWasBlocked, got %v", err)
	}
}

func TestRequestFriend_TargetChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)

	if _, err := e.friends.RequestFriend(ctx, a.ID, 9999, a.Name); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing target: want ErrUserNotFound, got %v", err)
	}
	if _, err := e.friends.RequestFriend(ctx, a.ID, a.ID, a.Name); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("self: want ErrInvalidParameter, got %v", err)
	}
}

func TestRequestFriend_WaitsOnGuard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)

	if err := e.guard.Acquire(ctx, guard.ClassDisable, resourceKey(b.ID)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name); !errors.Is(err, ErrInProgress) {
		t.Fatalf("want ErrInProgress, got %v", err)
	}

	if err := e.guard.Release(ctx, guard.ClassDisable, resourceKey(b.ID)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestAcceptFriend_Permission(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)

	edge, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name)
	if err != nil {
		t.Fatal(err)
	}

	// The initiator cannot accept its own request.
	if err := e.friends.AcceptFriend(ctx, a.ID, edge.ID, a.Name); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("initiator: want ErrPermissionDenied, got %v", err)
	}
	if err := e.friends.AcceptFriend(ctx, b.ID, edge.ID, b.Name); err != nil {
		t.Fatalf("target: %v", err)
	}
	// Accepting twice fails: the edge is no longer pending.
	if err := e.friends.AcceptFriend(ctx, b.ID, edge.ID, b.Name); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("twice: want ErrObjectNotFound, got %v", err)
	}
}

func TestRejectFriend(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)

	edge, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name)
	if err != nil {
		t.Fatal(err)
	}

	outsider := e.seedUser(t, "0933333333", goodPassword)
	if err := e.friends.RejectFriend(ctx, outsider.ID, edge.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("outsider: want ErrPermissionDenied, got %v", err)
	}

	if err := e.friends.RejectFriend(ctx, a.ID, edge.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if ev := e.notifier.last(t); ev.Type != notify.EventRelationshipEnded || ev.RecipientID != b.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// The edge is gone, not transitioned.
	if _, err := repo.GetFriend(ctx, e.db, edge.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want edge deleted, got %v", err)
	}
	// A fresh request is possible again.
	if _, err := e.friends.RequestFriend(ctx, b.ID, a.ID, b.Name); err != nil {
		t.Fatalf("re-request: %v", err)
	}
}

func TestBlockFriend_FlipsExistingEdge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)

	edge, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name)
	if err != nil {
		t.Fatal(err)
	}
	// B blocks A: the existing edge flips in place, keeping its direction.
	if err := e.friends.BlockFriend(ctx, b.ID, a.ID); err != nil {
		t.Fatalf("block: %v", err)
	}

	got, err := repo.GetFriend(ctx, e.db, edge.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.FriendBlocked || got.SourceID != a.ID {
		t.Fatalf("unexpected edge after flip: %+v", got)
	}
}

func TestUnblockFriend_OnlyBlocker(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)

	if err := e.friends.BlockFriend(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	check, err := e.friends.CheckFriend(ctx, b.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if check.Status != domain.FriendBlocked || check.OtherID != a.ID {
		t.Fatalf("check: %+v", check)
	}

	// The blocked side cannot see the edge through unblock.
	if err := e.friends.UnblockFriend(ctx, b.ID, check.FriendID); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("blocked side: want ErrObjectNotFound, got %v", err)
	}
	if err := e.friends.UnblockFriend(ctx, a.ID, check.FriendID); err != nil {
		t.Fatalf("blocker: %v", err)
	}

	// Pair can be requested again once unblocked.
	if _, err := e.friends.RequestFriend(ctx, b.ID, a.ID, b.Name); err != nil {
		t.Fatalf("after unblock: %v", err)
	}
}

func TestCheckFriend_AbsentAndPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)

	check, err := e.friends.CheckFriend(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if check.Exists {
		t.Fatalf("want absent, got %+v", check)
	}

	if _, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name); err != nil {
		t.Fatal(err)
	}
	// Pending reports the recipient regardless of which side asks.
	for _, caller := range []int64{a.ID, b.ID} {
		check, err := e.friends.CheckFriend(ctx, caller, a.ID+b.ID-caller)
		if err != nil {
			t.Fatal(err)
		}
		if check.Status != domain.FriendPending || check.OtherID != b.ID {
			t.Fatalf("caller %d: %+v", caller, check)
		}
	}
}

func TestFriendLists(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)
	c := e.seedUser(t, "0933333333", goodPassword)
	d := e.seedUser(t, "0944444444", goodPassword)

	// a-b friended, c-a pending, a blocks d.
	edge, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.friends.AcceptFriend(ctx, b.ID, edge.ID, b.Name); err != nil {
		t.Fatal(err)
	}
	if _, err := e.friends.RequestFriend(ctx, c.ID, a.ID, c.Name); err != nil {
		t.Fatal(err)
	}
	if err := e.friends.BlockFriend(ctx, a.ID, d.ID); err != nil {
		t.Fatal(err)
	}

	friends, err := e.friends.ListFriends(ctx, a.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(friends) != 1 || friends[0].UserID != b.ID {
		t.Fatalf("friends: %+v", friends)
	}

	pending, err := e.friends.ListPending(ctx, a.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].UserID != c.ID {
		t.Fatalf("pending: %+v", pending)
	}

	blocked, err := e.friends.ListBlocked(ctx, a.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocked) != 1 || blocked[0].UserID != d.ID {
		t.Fatalf("blocked: %+v", blocked)
	}
	// The blocked side sees nothing.
	blocked, err = e.friends.ListBlocked(ctx, d.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocked) != 0 {
		t.Fatalf("blocked side: %+v", blocked)
	}
}

func TestDeleteAllFriends(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedUser(t, "0911111111", goodPassword)
	b := e.seedUser(t, "0922222222", goodPassword)
	c := e.seedUser(t, "0933333333", goodPassword)

	if _, err := e.friends.RequestFriend(ctx, a.ID, b.ID, a.Name); err != nil {
		t.Fatal(err)
	}
	if _, err := e.friends.RequestFriend(ctx, c.ID, a.ID, c.Name); err != nil {
		t.Fatal(err)
	}

	if err := e.friends.DeleteAllFriends(ctx, a.ID); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	pending, err := e.friends.ListPending(ctx, a.ID, 1, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("edges survived: %+v", pending)
	}
}

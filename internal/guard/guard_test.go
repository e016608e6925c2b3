package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fotei/go-user-backend/internal/kv"
)

func newTestGuard() *Guard {
	g := New(kv.NewMemory(), 5*time.Minute, 200*time.Millisecond)
	g.InitialBackoff = time.Millisecond
	g.MaxBackoff = 5 * time.Millisecond
	return g
}

func TestBusy_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard()

	busy, err := g.Busy(ctx, ClassBlock, "42")
	if err != nil || busy {
		t.Fatalf("fresh key should not be busy: %v %v", busy, err)
	}

	if err := g.Acquire(ctx, ClassBlock, "42"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	busy, err = g.Busy(ctx, ClassBlock, "42")
	if err != nil || !busy {
		t.Fatalf("acquired key should be busy: %v %v", busy, err)
	}

	// Same resource under a different class is an independent lock domain.
	busy, err = g.Busy(ctx, ClassDisable, "42")
	if err != nil || busy {
		t.Fatalf("other class should not be busy: %v %v", busy, err)
	}

	if err := g.Release(ctx, ClassBlock, "42"); err != nil {
		t.Fatalf("release: %v", err)
	}
	busy, err = g.Busy(ctx, ClassBlock, "42")
	if err != nil || busy {
		t.Fatalf("released key should not be busy: %v %v", busy, err)
	}
}

// Two sequential Acquire calls both succeed at the store level: the classic
// protocol has no atomic rejection. This documents the known gap rather
// than asserting safety the design does not provide.
func TestAcquire_IsNotMutuallyExclusive(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard()

	if err := g.Acquire(ctx, ClassUpdate, "7"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := g.Acquire(ctx, ClassUpdate, "7"); err != nil {
		t.Fatalf("second acquire unexpectedly failed: %v", err)
	}
}

func TestTryAcquire_AtomicSingleWinner(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard()

	ok, err := g.TryAcquire(ctx, ClassRegister, "0912345678")
	if err != nil || !ok {
		t.Fatalf("first TryAcquire should win: %v %v", ok, err)
	}
	ok, err = g.TryAcquire(ctx, ClassRegister, "0912345678")
	if err != nil || ok {
		t.Fatalf("second TryAcquire should lose: %v %v", ok, err)
	}

	if err := g.Release(ctx, ClassRegister, "0912345678"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = g.TryAcquire(ctx, ClassRegister, "0912345678")
	if err != nil || !ok {
		t.Fatalf("TryAcquire after release should win: %v %v", ok, err)
	}
}

// The release marker must not shadow the lock: contenders arriving right
// after a release, while the empty marker is still live, still elect
// exactly one winner.
func TestTryAcquire_SingleWinnerAcrossReleaseMarker(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard()

	if ok, err := g.TryAcquire(ctx, ClassRegister, "31"); err != nil || !ok {
		t.Fatalf("initial TryAcquire: %v %v", ok, err)
	}
	if err := g.Release(ctx, ClassRegister, "31"); err != nil {
		t.Fatalf("release: %v", err)
	}

	const contenders = 8
	wins := make(chan bool, contenders)
	errs := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		go func() {
			ok, err := g.TryAcquire(ctx, ClassRegister, "31")
			wins <- ok
			errs <- err
		}()
	}

	won := 0
	for i := 0; i < contenders; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("contender errored: %v", err)
		}
		if <-wins {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("want exactly one winner, got %d", won)
	}
}

func TestRelease_NeverAcquiredIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard()

	if err := g.Release(ctx, ClassUpdate, "nobody"); err != nil {
		t.Fatalf("release of never-acquired key errored: %v", err)
	}
	busy, err := g.Busy(ctx, ClassUpdate, "nobody")
	if err != nil || busy {
		t.Fatalf("key should read not busy: %v %v", busy, err)
	}
}

func TestWaitFree_ReturnsOnceReleased(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard()

	if err := g.Acquire(ctx, ClassDisable, "9"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = g.Release(context.Background(), ClassDisable, "9")
	}()

	if err := g.WaitFree(ctx, "9", ClassDisable, ClassBlock); err != nil {
		t.Fatalf("WaitFree: %v", err)
	}
}

func TestWaitFree_TimesOut(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard()
	g.MaxWait = 30 * time.Millisecond

	if err := g.Acquire(ctx, ClassBlock, "held"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	err := g.WaitFree(ctx, "held", ClassBlock)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestWaitFree_HonorsContext(t *testing.T) {
	g := newTestGuard()
	g.MaxWait = time.Minute

	if err := g.Acquire(context.Background(), ClassBlock, "held"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.WaitFree(ctx, "held", ClassBlock); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestLock_ReleasesOnDefer(t *testing.T) {
	ctx := context.Background()
	g := newTestGuard()

	release, err := g.Lock(ctx, ClassUpdate, "55")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	busy, _ := g.Busy(ctx, ClassUpdate, "55")
	if !busy {
		t.Fatal("lock should mark resource busy")
	}
	release()
	busy, _ = g.Busy(ctx, ClassUpdate, "55")
	if busy {
		t.Fatal("release func should clear the mark")
	}
}

func TestTTL_ExpiryFreesCrashedHolder(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	g := New(store, 10*time.Millisecond, 100*time.Millisecond)
	g.InitialBackoff = time.Millisecond

	if err := g.Acquire(ctx, ClassDisable, "3"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Holder "crashes": no release. The TTL eventually frees the resource.
	time.Sleep(15 * time.Millisecond)
	busy, err := g.Busy(ctx, ClassDisable, "3")
	if err != nil || busy {
		t.Fatalf("expired lock should not be busy: %v %v", busy, err)
	}
}

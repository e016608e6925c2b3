// Package guard implements the cooperative advisory-lock protocol that
// serializes conflicting mutations of a logical resource. Locks live in the
// key-value store under "<class>_<resource>" and carry a TTL so a crashed
// holder cannot wedge the resource forever.
//
// The classic Busy/Acquire pair is a best-effort guard: two callers can
// both observe "not busy" before either acquires. Callers needing a strict
// at-most-one winner use TryAcquire, which is an atomic conditional set.
// Either way, final correctness for uniqueness belongs to the persistence
// layer; the guard only narrows the race window.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/fotei/go-user-backend/internal/kv"
)

// Operation classes partitioning the lock key space.
const (
	ClassRegister = "register_inprogess"
	ClassUpdate   = "update_inprogess"
	ClassDisable  = "disable_inprogess"
	ClassBlock    = "block_inprogess"
)

// ErrLockTimeout is returned by WaitFree / Lock when the resource stayed
// busy for the whole wait budget.
var ErrLockTimeout = errors.New("guard: timed out waiting for lock")

// releaseTTL is the near-zero expiry used by Release: the key is
// overwritten with an empty value instead of deleted, so a Get right after
// release reads "absent" with no deleted-vs-never-set branch.
const releaseTTL = time.Millisecond

// Guard coordinates advisory locks through a kv.Store.
type Guard struct {
	store kv.Store

	// TTL bounds how long a holder may keep a lock before it expires on
	// its own (crash tolerance).
	TTL time.Duration

	// MaxWait bounds WaitFree polling before ErrLockTimeout.
	MaxWait time.Duration

	// InitialBackoff is the first poll delay; it doubles per round up to
	// MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// New returns a Guard with the given hold TTL and wait budget.
func New(store kv.Store, ttl, maxWait time.Duration) *Guard {
	return &Guard{
		store:          store,
		TTL:            ttl,
		MaxWait:        maxWait,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     250 * time.Millisecond,
	}
}

func lockKey(class, resource string) string { return class + "_" + resource }

// Busy reports whether some holder currently marks (class, resource).
// A missing or empty (released) value is not busy.
func (g *Guard) Busy(ctx context.Context, class, resource string) (bool, error) {
	v, err := g.store.Get(ctx, lockKey(class, resource))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v != "", nil
}

// Acquire marks (class, resource) as held. The stored value is the
// resource key itself: a liveness marker, not an owner token. Acquire does
// not check for an existing holder; pair it with Busy, or use TryAcquire
// for the atomic variant.
func (g *Guard) Acquire(ctx context.Context, class, resource string) error {
	err := g.store.Set(ctx, lockKey(class, resource), resource, g.TTL)
	if err == nil {
		acquisitions.WithLabelValues(class).Inc()
	}
	return err
}

// maxMarkerRetries bounds how often TryAcquire waits out a release marker
// before treating the resource as busy.
const maxMarkerRetries = 5

// TryAcquire atomically marks (class, resource) if and only if no live
// holder exists, reporting whether this caller won.
//
// Release leaves a short-lived empty marker behind instead of deleting the
// key, and the store's conditional set cannot tell that marker from a real
// holder. An observed empty value therefore means "not busy": TryAcquire
// waits out the marker's expiry and claims again through the conditional
// set, so winner selection stays atomic.
func (g *Guard) TryAcquire(ctx context.Context, class, resource string) (bool, error) {
	key := lockKey(class, resource)
	for attempt := 0; ; attempt++ {
		ok, err := g.store.SetNX(ctx, key, resource, g.TTL)
		if err != nil {
			return false, err
		}
		if ok {
			acquisitions.WithLabelValues(class).Inc()
			return true, nil
		}

		value, err := g.store.Get(ctx, key)
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			return false, err
		}
		if err == nil && value != "" {
			return false, nil
		}
		if attempt == maxMarkerRetries {
			return false, nil
		}

		timer := time.NewTimer(releaseTTL)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release clears the mark. Releasing a never-acquired lock is harmless and
// leaves the key observably not busy.
func (g *Guard) Release(ctx context.Context, class, resource string) error {
	return g.store.Set(ctx, lockKey(class, resource), "", releaseTTL)
}

// WaitFree polls until none of the given classes marks the resource as
// busy, backing off exponentially between rounds. It fails with
// ErrLockTimeout once MaxWait elapses, or with ctx.Err() on cancellation.
func (g *Guard) WaitFree(ctx context.Context, resource string, classes ...string) error {
	start := time.Now()
	deadline := start.Add(g.MaxWait)
	backoff := g.InitialBackoff

	for {
		anyBusy := false
		for _, class := range classes {
			busy, err := g.Busy(ctx, class, resource)
			if err != nil {
				return err
			}
			if busy {
				anyBusy = true
				break
			}
		}
		if !anyBusy {
			waitSeconds.Observe(time.Since(start).Seconds())
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			waitTimeouts.Inc()
			return ErrLockTimeout
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff *= 2; backoff > g.MaxBackoff {
			backoff = g.MaxBackoff
		}
	}
}

// Lock waits for the class to be free, acquires it, and returns a release
// function meant for defer. The release runs in the caller's cleanup path
// regardless of how the guarded section ends; a lock leaked on error is a
// correctness bug.
func (g *Guard) Lock(ctx context.Context, class, resource string) (release func(), err error) {
	if err := g.WaitFree(ctx, resource, class); err != nil {
		return nil, err
	}
	if err := g.Acquire(ctx, class, resource); err != nil {
		return nil, err
	}
	return func() {
		// Best effort with a fresh context: the guarded body may have
		// already consumed or cancelled the caller's.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = g.Release(rctx, class, resource)
	}, nil
}

// Package throttle implements the login-throttle state machine: a
// per-identifier failure counter with a rolling lockout window, persisted
// in the cache between attempts.
//
// States: Clear (failCount = 0), Accumulating (0 < failCount < threshold),
// Locked (failCount >= threshold and now < lastRequest + window).
package throttle

import (
	"context"
	"errors"
	"time"

	"github.com/fotei/go-user-backend/internal/cache"
)

// ErrLoginLocked rejects attempts while the identifier is locked out.
var ErrLoginLocked = errors.New("login temporarily locked")

// Defaults mirror the production configuration.
const (
	DefaultThreshold = 5
	DefaultWindow    = 1800000 * time.Millisecond
)

// Throttle evaluates login attempts against the stored failure counter.
type Throttle struct {
	Cache *cache.Client

	// Threshold is the failure count at which lockout starts.
	Threshold int
	// Window is how long a lockout holds after the last attempt.
	Window time.Duration

	// now is swappable in tests.
	now func() time.Time
}

// New returns a Throttle with the default threshold and window.
func New(c *cache.Client) *Throttle {
	return &Throttle{Cache: c, Threshold: DefaultThreshold, Window: DefaultWindow, now: time.Now}
}

// Evaluate records one login attempt for username and enforces the lockout.
//
// ok is the final credential outcome of the attempt (known identifier,
// active account, matching password). Rules:
//
//   - Locked and the window has not elapsed: the attempt is rejected with
//     ErrLoginLocked regardless of ok, and lastRequest still slides to now,
//     deliberately keeping hostile probing locked out.
//   - Locked but the window has elapsed: the counter is re-armed so that a
//     continued failure lands on failCount = 1.
//   - ok: failCount resets to 0.
//   - not ok: failCount increments by 1.
//
// An absent record is the Clear state, not an error. Every attempt rewrites
// the record with lastRequest = now.
func (t *Throttle) Evaluate(ctx context.Context, username string, ok bool) error {
	nowFn := t.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()

	lv, err := t.Cache.GetLoginValidation(ctx, username)
	if err != nil {
		if !cache.IsNotFound(err) {
			return err
		}
		lv = &cache.LoginValidation{Username: username}
	}

	if lv.FailCount >= t.Threshold {
		if now.Before(lv.LastRequest.Add(t.Window)) {
			lv.LastRequest = now
			if err := t.Cache.PutLoginValidation(ctx, *lv); err != nil {
				return err
			}
			return ErrLoginLocked
		}
		lv.FailCount = 0
	}

	if ok {
		lv.FailCount = 0
	} else {
		lv.FailCount++
	}
	lv.LastRequest = now
	return t.Cache.PutLoginValidation(ctx, *lv)
}

// Reset clears the stored counter for username.
func (t *Throttle) Reset(ctx context.Context, username string) error {
	return t.Cache.RemoveLoginValidation(ctx, username)
}

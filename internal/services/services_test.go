package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fotei/go-user-backend/internal/cache"
	"github.com/fotei/go-user-backend/internal/domain"
	"github.com/fotei/go-user-backend/internal/guard"
	"github.com/fotei/go-user-backend/internal/kv"
	"github.com/fotei/go-user-backend/internal/notify"
	"github.com/fotei/go-user-backend/internal/repo"
	"github.com/fotei/go-user-backend/internal/throttle"
	"github.com/fotei/go-user-backend/internal/token"
)

// plainHasher is a transparent PasswordHasher so tests can assert stored
// values without paying bcrypt cost.
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "h:" + plain, nil }
func (plainHasher) Compare(plain, hashed string) bool { return "h:"+plain == hashed }

// fakeHashes accepts any hash equal to "hash:"+operation.
type fakeHashes struct{}

func (fakeHashes) Validate(hash, operation string) (*token.ReplayClaims, error) {
	if hash != "hash:"+operation {
		return nil, token.ErrInvalidHash
	}
	return &token.ReplayClaims{Operation: operation}, nil
}

// fakeOtp accepts any key equal to "otp:"+id.
type fakeOtp struct{}

func (fakeOtp) Verify(_ context.Context, key string) (*token.OtpClaims, error) {
	if len(key) < 5 || key[:4] != "otp:" {
		return nil, token.ErrInvalidOtpKey
	}
	return &token.OtpClaims{ID: key[4:], TxType: "REGISTER", IDType: "PHONE"}, nil
}

// recordNotifier captures published events.
type recordNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordNotifier) Publish(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordNotifier) last(t *testing.T) notify.Event {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		t.Fatal("expected a published event")
	}
	return n.events[len(n.events)-1]
}

// env wires the full service stack over in-memory stores.
type env struct {
	db       *gorm.DB
	store    *kv.Memory
	guard    *guard.Guard
	cache    *cache.Client
	throttle *throttle.Throttle
	notifier *recordNotifier

	auth    *AuthService
	friends *FriendService
	users   *UserService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	store := kv.NewMemory()
	// Short wait budget so lock-contention tests fail fast.
	g := guard.New(store, 5*time.Minute, 50*time.Millisecond)
	c := cache.New(store, 24*time.Hour)
	th := throttle.New(c)
	n := &recordNotifier{}
	log := zerolog.Nop()

	e := &env{db: db, store: store, guard: g, cache: c, throttle: th, notifier: n}
	e.auth = &AuthService{
		DB: db, Cache: c, Guard: g, Throttle: th,
		Hashes: fakeHashes{}, OtpKeys: fakeOtp{}, Hasher: plainHasher{},
		Log: log,
	}
	e.friends = &FriendService{DB: db, Guard: g, Notifier: n, Log: log}
	e.users = &UserService{
		DB: db, Cache: c, Guard: g,
		Hashes: fakeHashes{}, OtpKeys: fakeOtp{}, Hasher: plainHasher{},
		Notifier: n, Log: log,
	}
	return e
}

// seedUser inserts an active account directly.
func (e *env) seedUser(t *testing.T, username, password string) *domain.User {
	t.Helper()
	u := &domain.User{
		Username:    username,
		Password:    "h:" + password,
		Name:        "User " + username,
		PhoneNumber: username,
		Verified:    true,
		Status:      domain.UserActive,
	}
	if err := repo.CreateUser(context.Background(), e.db, u); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

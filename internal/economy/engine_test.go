package economy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starfarm-bot/internal/catalog"
	"starfarm-bot/internal/ledger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine *Engine
	clock  *testClock
	store  *ledger.Memory
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(
		[]catalog.FarmType{
			{ID: "wheat", Name: "Wheat", Price: 100, IncomePerHour: 120},
			{ID: "corn", Name: "Corn", Price: 300, IncomePerHour: 60},
			{ID: "apple", Name: "Apple", Price: 800, IncomePerHour: 100},
			{ID: "grape", Name: "Grape", Price: 2000, IncomePerHour: 270},
			{ID: "cow", Name: "Cow", Price: 5000, IncomePerHour: 720},
		},
		[]catalog.NftType{
			{ID: "bear", Name: "Bear", Price: 20, Boost: 1.1},
			{ID: "rose", Name: "Rose", Price: 50, Boost: 1.5},
		},
	)
	require.NoError(t, err)
	return c
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := ledger.NewMemory()
	opts.Now = clock.Now
	if opts.ReferralReward == 0 {
		opts.ReferralReward = 100
	}
	return &testEnv{
		engine: New(store, testCatalog(t), opts),
		clock:  clock,
		store:  store,
	}
}

func (env *testEnv) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	_, err := env.engine.AdjustBalance(context.Background(), userID, amount)
	require.NoError(t, err)
}

func (env *testEnv) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := env.engine.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

type failingStore struct{}

func (failingStore) Update(context.Context, func(ledger.Tx) error) error {
	return errors.New("connection refused")
}

func (failingStore) View(context.Context, func(ledger.Tx) error) error {
	return errors.New("connection refused")
}

func TestStorageFailureIsClassified(t *testing.T) {
	e := New(failingStore{}, testCatalog(t), Options{})
	ctx := context.Background()

	_, err := e.GetBalance(ctx, 1)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = e.BuyFarm(ctx, 1, "wheat")
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = e.BuyFarm(ctx, 1, "nope")
	assert.ErrorIs(t, err, ErrUnknownType, "catalog check happens before storage")
	assert.NotErrorIs(t, err, ErrStorageUnavailable)
}

func TestClassifyKeepsDomainErrors(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.Equal(t, ErrSelfReferral, classify(ErrSelfReferral))

	tooLow := &BidTooLowError{Current: 5}
	assert.Same(t, tooLow, classify(tooLow))
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
	assert.NotErrorIs(t, classify(context.Canceled), ErrStorageUnavailable)
}

func TestNowFollowsInjectedClock(t *testing.T) {
	env := newTestEnv(t, Options{})
	start := env.engine.Now()
	assert.Equal(t, env.clock.Now(), start)

	env.clock.Advance(90*time.Minute + 999*time.Nanosecond)
	assert.Equal(t, start.Add(90*time.Minute), env.engine.Now())
}

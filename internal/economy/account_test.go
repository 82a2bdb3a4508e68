package economy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	u, err := env.engine.GetOrCreateUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
	assert.Zero(t, u.StarBalance)

	env.fund(t, 42, 50)

	again, err := env.engine.GetOrCreateUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(50), again.StarBalance)
	assert.Equal(t, u.CreatedAt, again.CreatedAt)
}

func TestGetBalanceUnknownUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	assert.Zero(t, env.balance(t, 7))
}

func TestAdjustBalance(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()

	b, err := env.engine.AdjustBalance(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), b)

	_, err = env.engine.AdjustBalance(ctx, 1, -20)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(10), env.balance(t, 1))

	b, err = env.engine.AdjustBalance(ctx, 1, -10)
	require.NoError(t, err)
	assert.Zero(t, b)
}

func TestConcurrentDebitsNeverGoNegative(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.fund(t, 1, 100)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.AdjustBalance(context.Background(), 1, -10)
			if err == nil {
				ok.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientFunds)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	assert.Zero(t, env.balance(t, 1))
}

func TestRegisterReferral(t *testing.T) {
	env := newTestEnv(t, Options{ReferralReward: 25})
	ctx := context.Background()

	_, err := env.engine.RegisterReferral(ctx, 1, 1)
	require.ErrorIs(t, err, ErrSelfReferral)

	first, err := env.engine.RegisterReferral(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, first)

	amount, err := env.engine.GiveReferralReward(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(25), amount)

	second, err := env.engine.RegisterReferral(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, second)

	other, err := env.engine.RegisterReferral(ctx, 3, 2)
	require.NoError(t, err)
	assert.False(t, other, "an existing link is never replaced")

	_, err = env.engine.GiveReferralReward(ctx, 2)
	require.ErrorIs(t, err, ErrAlreadyRewarded)

	referee, err := env.engine.GetOrCreateUser(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, referee.ReferredBy)
	assert.Equal(t, int64(1), *referee.ReferredBy)
	assert.Equal(t, int64(25), referee.StarBalance)

	count, err := env.engine.GetReferralCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = env.engine.GetReferralCount(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, count)

	rows := env.store.ReferralTransactions()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].ReferrerID)
	assert.Equal(t, int64(2), rows[0].InvitedUserID)
}

func TestGiveReferralRewardRequiresReferral(t *testing.T) {
	env := newTestEnv(t, Options{})
	_, err := env.engine.GiveReferralReward(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotReferred)
	assert.Zero(t, env.balance(t, 9))
}

func TestReferralRewardPaidOnceUnderContention(t *testing.T) {
	env := newTestEnv(t, Options{ReferralReward: 100})
	ctx := context.Background()

	linked, err := env.engine.RegisterReferral(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, linked)

	var paid atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.GiveReferralReward(ctx, 2)
			switch {
			case err == nil:
				paid.Add(1)
			case errors.Is(err, ErrAlreadyRewarded):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), paid.Load())
	assert.Equal(t, int64(100), env.balance(t, 2))
	assert.Len(t, env.store.ReferralTransactions(), 1)
}

func TestJoinUserRewardsNewReferredUser(t *testing.T) {
	env := newTestEnv(t, Options{ReferralReward: 100})
	ctx := context.Background()

	_, err := env.engine.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)

	join, err := env.engine.JoinUser(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, join.Created)
	assert.Equal(t, int64(100), join.Reward)
	require.NotNil(t, join.User.ReferredBy)
	assert.Equal(t, int64(1), *join.User.ReferredBy)
	assert.Equal(t, int64(100), env.balance(t, 2))

	again, err := env.engine.JoinUser(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Zero(t, again.Reward)
	assert.Equal(t, int64(100), env.balance(t, 2))
}

func TestJoinUserIgnoresLinksForExistingAccounts(t *testing.T) {
	env := newTestEnv(t, Options{ReferralReward: 100})
	ctx := context.Background()

	// 1 invites 2; 2's link is then used by the established user 1.
	_, err := env.engine.GetOrCreateUser(ctx, 1)
	require.NoError(t, err)
	_, err = env.engine.JoinUser(ctx, 2, 1)
	require.NoError(t, err)

	back, err := env.engine.JoinUser(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, back.Created)
	assert.Zero(t, back.Reward)
	assert.Nil(t, back.User.ReferredBy)
	assert.Zero(t, env.balance(t, 1))

	count, err := env.engine.GetReferralCount(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestJoinUserWithoutValidReferrer(t *testing.T) {
	env := newTestEnv(t, Options{ReferralReward: 100})
	ctx := context.Background()

	for _, tc := range []struct {
		name     string
		id       int64
		referrer int64
	}{
		{"no invitation", 10, 0},
		{"self", 11, 11},
		{"unknown referrer", 12, 999},
	} {
		t.Run(tc.name, func(t *testing.T) {
			join, err := env.engine.JoinUser(ctx, tc.id, tc.referrer)
			require.NoError(t, err)
			assert.True(t, join.Created)
			assert.Zero(t, join.Reward)
			assert.Nil(t, join.User.ReferredBy)
		})
	}

	p, err := env.engine.Profile(ctx, 999)
	require.NoError(t, err)
	assert.Zero(t, p.ReferralCount, "an unknown referrer is not created")
}

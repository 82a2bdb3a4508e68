// Package economy implements the star economy: balances, farm and NFT
// holdings, income accrual, referral rewards and farm auctions.
//
// All state lives in a ledger.Store. Each operation is one transaction that
// locks only the entities it touches, so the Engine is safe to share across
// request goroutines.
package economy

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"starfarm-bot/internal/catalog"
	"starfarm-bot/internal/ledger"
	"starfarm-bot/internal/models"
)

// ActivationWindow is how long a farm earns income after activation.
const ActivationWindow = 6 * time.Hour

// auctionFarmPool is how many of the most expensive farm types are offered
// when auctions are seeded.
const auctionFarmPool = 4

type Options struct {
	// ReferralReward is credited once to a user who joined through a referral.
	ReferralReward int64
	// Escrow holds a bid from the bidder's balance while it leads and refunds
	// it when outbid. Without escrow the winner pays at settlement.
	Escrow bool
	// AuctionSeedCount auctions are created by EnsureAuctions when none is active.
	AuctionSeedCount int
	// AuctionDurationHours is the lifetime of seeded auctions.
	AuctionDurationHours int

	Logger *zap.Logger
	// Now and Pick replace the wall clock and the random source in tests.
	Now  func() time.Time
	Pick func(n int) int
}

type Engine struct {
	store   ledger.Store
	catalog *catalog.Catalog
	opts    Options
	log     *zap.Logger
	clock   func() time.Time
	pick    func(n int) int

	seedMu sync.Mutex
}

func New(store ledger.Store, cat *catalog.Catalog, opts Options) *Engine {
	e := &Engine{
		store:   store,
		catalog: cat,
		opts:    opts,
		log:     opts.Logger,
		clock:   opts.Now,
		pick:    opts.Pick,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	e.log = e.log.Named("economy")
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.pick == nil {
		e.pick = rand.IntN
	}
	if e.opts.AuctionSeedCount <= 0 {
		e.opts.AuctionSeedCount = 3
	}
	if e.opts.AuctionDurationHours <= 0 {
		e.opts.AuctionDurationHours = 24
	}
	return e
}

func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Now is the engine clock. Timestamps are UTC at microsecond precision,
// the resolution postgres stores, so a record reads back exactly as written.
func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

func (e *Engine) update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	err := classify(e.store.Update(ctx, fn))
	if errors.Is(err, ErrStorageUnavailable) {
		e.log.Error("ledger update failed", zap.Error(err))
	}
	return err
}

func (e *Engine) view(ctx context.Context, fn func(tx ledger.Tx) error) error {
	err := classify(e.store.View(ctx, fn))
	if errors.Is(err, ErrStorageUnavailable) {
		e.log.Error("ledger read failed", zap.Error(err))
	}
	return err
}

// loadUser returns the user, creating the account on first touch. The
// caller must hold the user's lock.
func (e *Engine) loadUser(tx ledger.Tx, id int64) (models.User, error) {
	u, err := tx.GetUser(id)
	if errors.Is(err, ledger.ErrNotFound) {
		now := e.now()
		u = models.User{ID: id, CreatedAt: now, UpdatedAt: now}
		if err := tx.CreateUser(&u); err != nil {
			return models.User{}, err
		}
		return u, nil
	}
	return u, err
}

func (e *Engine) saveUser(tx ledger.Tx, u *models.User) error {
	u.UpdatedAt = e.now()
	return tx.SaveUser(u)
}

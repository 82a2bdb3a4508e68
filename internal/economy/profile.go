package economy

import (
	"context"
	"errors"
	"time"

	"starfarm-bot/internal/ledger"
)

// Profile is a read-only summary of a user's economy state.
type Profile struct {
	UserID        int64
	Balance       int64
	Farms         int
	FreshFarms    int
	Nfts          int
	Boost         float64
	ReferralCount int64
	// BaseIncomePerHour sums the catalog income of fresh farms.
	BaseIncomePerHour    int64
	BoostedIncomePerHour int64
	// NextExpiry is the earliest end of a running activation window.
	NextExpiry *time.Time
	// FarmCounts and NftCounts are keyed by catalog type id.
	FarmCounts map[string]int
	NftCounts  map[string]int
}

func (e *Engine) Profile(ctx context.Context, userID int64) (Profile, error) {
	p := Profile{
		UserID:     userID,
		Boost:      1,
		FarmCounts: make(map[string]int),
		NftCounts:  make(map[string]int),
	}
	err := e.view(ctx, func(tx ledger.Tx) error {
		u, err := tx.GetUser(userID)
		switch {
		case err == nil:
			p.Balance = u.StarBalance
			p.ReferralCount = u.ReferralCount
		case !errors.Is(err, ledger.ErrNotFound):
			return err
		}

		farms, err := tx.ListFarms(userID)
		if err != nil {
			return err
		}
		nfts, err := tx.ListNfts(userID)
		if err != nil {
			return err
		}

		now := e.now()
		p.Farms = len(farms)
		p.Nfts = len(nfts)
		p.Boost = e.boostOf(nfts)
		for _, f := range farms {
			p.FarmCounts[f.FarmTypeID]++
			if !IsFresh(f, now) {
				continue
			}
			p.FreshFarms++
			if t, ok := e.catalog.Farm(f.FarmTypeID); ok {
				p.BaseIncomePerHour += t.IncomePerHour
			}
			end, _ := windowEnd(f)
			if p.NextExpiry == nil || end.Before(*p.NextExpiry) {
				p.NextExpiry = &end
			}
		}
		for _, n := range nfts {
			p.NftCounts[n.NftTypeID]++
		}
		p.BoostedIncomePerHour = int64(float64(p.BaseIncomePerHour) * p.Boost)
		return nil
	})
	return p, err
}

// HourlyIncome returns the income per hour of the user's fresh farms,
// without and with the NFT boost.
func (e *Engine) HourlyIncome(ctx context.Context, userID int64) (base, boosted int64, err error) {
	p, err := e.Profile(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	return p.BaseIncomePerHour, p.BoostedIncomePerHour, nil
}

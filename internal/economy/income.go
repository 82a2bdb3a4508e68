package economy

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"starfarm-bot/internal/ledger"
	"starfarm-bot/internal/metrics"
	"starfarm-bot/internal/models"
)

func windowEnd(f models.FarmHolding) (time.Time, bool) {
	if f.LastActivatedAt == nil {
		return time.Time{}, false
	}
	return f.LastActivatedAt.Add(ActivationWindow), true
}

// IsFresh reports whether the farm is inside its activation window at now.
func IsFresh(f models.FarmHolding, now time.Time) bool {
	end, ok := windowEnd(f)
	return ok && f.IsActive && now.Before(end)
}

// accrue returns the unboosted stars the farm earned since its last
// collection and moves LastCollectedAt up to the point accounted for.
// Accrual never runs past the end of the activation window.
func (e *Engine) accrue(f *models.FarmHolding, now time.Time) (float64, bool) {
	if !f.IsActive {
		return 0, false
	}
	end, ok := windowEnd(*f)
	if !ok {
		return 0, false
	}
	if now.Before(end) {
		end = now
	}
	if !end.After(f.LastCollectedAt) {
		return 0, false
	}
	t, ok := e.catalog.Farm(f.FarmTypeID)
	if !ok {
		e.log.Warn("farm type missing from catalog", zap.Int64("farm", f.ID), zap.String("type", f.FarmTypeID))
		return 0, false
	}
	earned := end.Sub(f.LastCollectedAt).Seconds() * float64(t.IncomePerHour) / 3600
	f.LastCollectedAt = end
	return earned, true
}

// Activation reports what ActivateFarms did.
type Activation struct {
	Activated int
	Total     int
	// Settled is income from expired windows credited before restarting them.
	Settled int64
}

// ActivateFarms starts a new activation window on every farm that is not
// fresh. Income a farm earned in its previous, already expired window is
// credited before the window is restarted.
func (e *Engine) ActivateFarms(ctx context.Context, userID int64) (Activation, error) {
	var res Activation
	err := e.update(ctx, func(tx ledger.Tx) error {
		res = Activation{}
		if err := tx.Lock(ledger.UserKey(userID)); err != nil {
			return err
		}
		farms, err := tx.ListFarms(userID)
		if err != nil {
			return err
		}
		res.Total = len(farms)

		now := e.now()
		var pending float64
		for i := range farms {
			f := &farms[i]
			if IsFresh(*f, now) {
				continue
			}
			earned, _ := e.accrue(f, now)
			pending += earned

			at := now
			f.IsActive = true
			f.LastActivatedAt = &at
			f.LastCollectedAt = now
			if err := tx.SaveFarm(f); err != nil {
				return err
			}
			res.Activated++
		}

		res.Settled, err = e.credit(tx, userID, pending)
		return err
	})
	if err != nil {
		return Activation{}, err
	}
	metrics.RecordIncome(res.Settled)
	return res, nil
}

// CollectFarmIncome credits the boosted income accrued by the user's farms
// and returns the amount. Farms outside an activation window earn nothing.
func (e *Engine) CollectFarmIncome(ctx context.Context, userID int64) (int64, error) {
	var amount int64
	err := e.update(ctx, func(tx ledger.Tx) error {
		amount = 0
		if err := tx.Lock(ledger.UserKey(userID)); err != nil {
			return err
		}
		farms, err := tx.ListFarms(userID)
		if err != nil {
			return err
		}

		now := e.now()
		var earned float64
		for i := range farms {
			f := &farms[i]
			v, changed := e.accrue(f, now)
			if end, ok := windowEnd(*f); ok && f.IsActive && !now.Before(end) {
				f.IsActive = false
				changed = true
			}
			if !changed {
				continue
			}
			earned += v
			if err := tx.SaveFarm(f); err != nil {
				return err
			}
		}

		amount, err = e.credit(tx, userID, earned)
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.RecordIncome(amount)
	return amount, nil
}

// carryEpsilon absorbs float error so a sum that is a whole star in exact
// arithmetic is paid as one.
const carryEpsilon = 1e-9

// credit pays the boosted value of earned in whole stars and keeps the
// fraction on the user for the next credit. The user's lock must be held.
func (e *Engine) credit(tx ledger.Tx, userID int64, earned float64) (int64, error) {
	if earned <= 0 {
		return 0, nil
	}
	nfts, err := tx.ListNfts(userID)
	if err != nil {
		return 0, err
	}
	u, err := e.loadUser(tx, userID)
	if err != nil {
		return 0, err
	}

	total := earned*e.boostOf(nfts) + u.IncomeRemainder
	whole := math.Floor(total + carryEpsilon)
	u.StarBalance += int64(whole)
	u.IncomeRemainder = math.Max(total-whole, 0)
	if err := e.saveUser(tx, &u); err != nil {
		return 0, err
	}
	return int64(whole), nil
}

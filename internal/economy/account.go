package economy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"starfarm-bot/internal/ledger"
	"starfarm-bot/internal/metrics"
	"starfarm-bot/internal/models"
)

// GetOrCreateUser returns the account for id, creating it with a zero
// balance on first use.
func (e *Engine) GetOrCreateUser(ctx context.Context, id int64) (models.User, error) {
	var user models.User
	found := false
	err := e.view(ctx, func(tx ledger.Tx) error {
		u, err := tx.GetUser(id)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		user, found = u, err == nil
		return err
	})
	if err != nil || found {
		return user, err
	}

	err = e.update(ctx, func(tx ledger.Tx) error {
		if err := tx.Lock(ledger.UserKey(id)); err != nil {
			return err
		}
		u, err := e.loadUser(tx, id)
		user = u
		return err
	})
	return user, err
}

// Join reports what JoinUser did.
type Join struct {
	User    models.User
	Created bool
	// Reward is the referral reward paid to the new user, zero when none.
	Reward int64
}

// JoinUser handles a user's first contact. The account is created if it
// does not exist yet; only then is referrerID linked as the referrer and the
// referral reward paid. Existing accounts and unknown referrers get no link.
// A zero referrerID means the user came without an invitation.
func (e *Engine) JoinUser(ctx context.Context, id, referrerID int64) (Join, error) {
	var (
		join     Join
		linkable bool
	)
	err := e.update(ctx, func(tx ledger.Tx) error {
		join, linkable = Join{}, false
		keys := []ledger.Key{ledger.UserKey(id)}
		if referrerID != 0 && referrerID != id {
			keys = append(keys, ledger.UserKey(referrerID))
		}
		if err := tx.Lock(keys...); err != nil {
			return err
		}

		u, err := tx.GetUser(id)
		if err == nil {
			join.User = u
			return nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		if join.User, err = e.loadUser(tx, id); err != nil {
			return err
		}
		join.Created = true

		if len(keys) == 2 {
			_, err := tx.GetUser(referrerID)
			switch {
			case err == nil:
				linkable = true
			case !errors.Is(err, ledger.ErrNotFound):
				return err
			}
		}
		return nil
	})
	if err != nil || !linkable {
		return join, err
	}

	if _, err := e.RegisterReferral(ctx, referrerID, id); err != nil {
		return join, err
	}
	reward, err := e.GiveReferralReward(ctx, id)
	switch {
	case errors.Is(err, ErrAlreadyRewarded), errors.Is(err, ErrNotReferred):
		return join, nil
	case err != nil:
		return join, err
	}
	ref := referrerID
	join.Reward = reward
	join.User.ReferredBy = &ref
	join.User.ReferralRewarded = true
	join.User.StarBalance += reward
	return join, nil
}

// GetBalance reports the star balance; unknown users have a balance of zero.
func (e *Engine) GetBalance(ctx context.Context, id int64) (int64, error) {
	var balance int64
	err := e.view(ctx, func(tx ledger.Tx) error {
		u, err := tx.GetUser(id)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		balance = u.StarBalance
		return err
	})
	return balance, err
}

// AdjustBalance applies delta and returns the new balance. It fails with
// ErrInsufficientFunds instead of letting the balance go negative.
func (e *Engine) AdjustBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	var balance int64
	err := e.update(ctx, func(tx ledger.Tx) error {
		if err := tx.Lock(ledger.UserKey(id)); err != nil {
			return err
		}
		u, err := e.loadUser(tx, id)
		if err != nil {
			return err
		}
		if u.StarBalance+delta < 0 {
			return fmt.Errorf("%w: balance %d, change %d", ErrInsufficientFunds, u.StarBalance, delta)
		}
		u.StarBalance += delta
		balance = u.StarBalance
		return e.saveUser(tx, &u)
	})
	return balance, err
}

// RegisterReferral links refereeID to referrerID. It returns false without
// error when the referee already has a referrer; the link is never changed.
func (e *Engine) RegisterReferral(ctx context.Context, referrerID, refereeID int64) (bool, error) {
	if referrerID == refereeID {
		return false, ErrSelfReferral
	}

	linked := false
	err := e.update(ctx, func(tx ledger.Tx) error {
		if err := tx.Lock(ledger.UserKey(referrerID), ledger.UserKey(refereeID)); err != nil {
			return err
		}
		referee, err := e.loadUser(tx, refereeID)
		if err != nil {
			return err
		}
		if referee.ReferredBy != nil {
			return nil
		}
		referrer, err := e.loadUser(tx, referrerID)
		if err != nil {
			return err
		}

		ref := referrerID
		referee.ReferredBy = &ref
		referrer.ReferralCount++
		if err := e.saveUser(tx, &referee); err != nil {
			return err
		}
		if err := e.saveUser(tx, &referrer); err != nil {
			return err
		}
		linked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if linked {
		e.log.Info("referral registered", zap.Int64("referrer", referrerID), zap.Int64("referee", refereeID))
	}
	return linked, nil
}

// GiveReferralReward credits the referral reward to a referred user. The
// reward is paid at most once; later calls fail with ErrAlreadyRewarded and
// change nothing.
func (e *Engine) GiveReferralReward(ctx context.Context, userID int64) (int64, error) {
	amount := e.opts.ReferralReward
	err := e.update(ctx, func(tx ledger.Tx) error {
		if err := tx.Lock(ledger.UserKey(userID)); err != nil {
			return err
		}
		u, err := e.loadUser(tx, userID)
		if err != nil {
			return err
		}
		switch {
		case u.ReferredBy == nil:
			return ErrNotReferred
		case u.ReferralRewarded:
			return ErrAlreadyRewarded
		}

		u.StarBalance += amount
		u.ReferralRewarded = true
		if err := e.saveUser(tx, &u); err != nil {
			return err
		}
		return tx.CreateReferralTransaction(&models.ReferralTransaction{
			ReferrerID:    *u.ReferredBy,
			InvitedUserID: userID,
			Amount:        amount,
			CreatedAt:     e.now(),
		})
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordReferralReward()
	e.log.Info("referral reward paid", zap.Int64("user", userID), zap.Int64("amount", amount))
	return amount, nil
}

func (e *Engine) GetReferralCount(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := e.view(ctx, func(tx ledger.Tx) error {
		u, err := tx.GetUser(id)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		count = u.ReferralCount
		return err
	})
	return count, err
}

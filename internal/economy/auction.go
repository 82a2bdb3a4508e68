package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"starfarm-bot/internal/ledger"
	"starfarm-bot/internal/metrics"
	"starfarm-bot/internal/models"
)

// AuctionOutcome is the terminal state of an ended auction.
type AuctionOutcome struct {
	AuctionID  int64
	FarmTypeID string
	Result     models.AuctionResult
	// BidderID is the leader when the auction ended, paid or not.
	BidderID *int64
	Price    int64
	// FarmID is the holding granted to the winner of a sold auction.
	FarmID  *int64
	EndedAt time.Time
}

// Winner returns the id of the user who received the farm.
func (o AuctionOutcome) Winner() (int64, bool) {
	if o.Result != models.AuctionResultSold || o.BidderID == nil {
		return 0, false
	}
	return *o.BidderID, true
}

func outcomeOf(a models.Auction) AuctionOutcome {
	o := AuctionOutcome{
		AuctionID:  a.ID,
		FarmTypeID: a.FarmTypeID,
		Result:     a.Result,
		BidderID:   a.CurrentBidderID,
		Price:      a.CurrentBid,
		FarmID:     a.AwardedFarmID,
	}
	if a.EndedAt != nil {
		o.EndedAt = *a.EndedAt
	}
	return o
}

func (e *Engine) CreateAuction(ctx context.Context, farmTypeID string, startingPrice int64, durationHours int) (models.Auction, error) {
	if _, ok := e.catalog.Farm(farmTypeID); !ok {
		return models.Auction{}, fmt.Errorf("%w: farm %q", ErrUnknownType, farmTypeID)
	}
	if startingPrice < 0 || durationHours <= 0 {
		return models.Auction{}, fmt.Errorf("%w: starting price %d, duration %dh", ErrInvalidAmount, startingPrice, durationHours)
	}

	now := e.now()
	a := models.Auction{
		FarmTypeID:    farmTypeID,
		StartingPrice: startingPrice,
		CurrentBid:    startingPrice,
		Status:        models.AuctionStatusActive,
		CreatedAt:     now,
		EndTime:       now.Add(time.Duration(durationHours) * time.Hour),
	}
	err := e.update(ctx, func(tx ledger.Tx) error {
		return tx.CreateAuction(&a)
	})
	if err != nil {
		return models.Auction{}, err
	}
	e.log.Info("auction created", zap.Int64("auction", a.ID), zap.String("farm", farmTypeID), zap.Int64("start", startingPrice))
	return a, nil
}

// GetActiveAuctions lists running auctions. Auctions past their end time
// are resolved on the way and left out of the result.
func (e *Engine) GetActiveAuctions(ctx context.Context) ([]models.Auction, error) {
	var auctions []models.Auction
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		auctions, err = tx.ListAuctions(models.AuctionStatusActive)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := e.now()
	active := auctions[:0]
	for _, a := range auctions {
		if a.EndTime.After(now) {
			active = append(active, a)
			continue
		}
		if _, _, err := e.endAuction(ctx, a.ID); err != nil {
			return nil, err
		}
	}
	return active, nil
}

// PlaceBid raises the auction's current bid to amount. Only an amount
// strictly above the bid standing when the transaction commits wins; a
// losing bid gets a *BidTooLowError carrying that standing bid.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, userID, amount int64) (int64, error) {
	var expired *AuctionOutcome
	err := e.update(ctx, func(tx ledger.Tx) error {
		if err := tx.Lock(ledger.AuctionKey(auctionID)); err != nil {
			return err
		}
		a, err := tx.GetAuction(auctionID)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: auction %d", ErrNotFound, auctionID)
		}
		if err != nil {
			return err
		}
		if a.Status != models.AuctionStatusActive {
			return fmt.Errorf("%w: auction %d has ended", ErrNotFound, auctionID)
		}
		if !e.now().Before(a.EndTime) {
			if err := e.settle(tx, &a); err != nil {
				return err
			}
			o := outcomeOf(a)
			expired = &o
			return nil
		}
		if amount <= a.CurrentBid {
			return &BidTooLowError{Current: a.CurrentBid}
		}

		if e.opts.Escrow {
			if err := e.escrowBid(tx, &a, userID, amount); err != nil {
				return err
			}
		}
		bidder := userID
		a.CurrentBid = amount
		a.CurrentBidderID = &bidder
		return tx.SaveAuction(&a)
	})

	switch {
	case err == nil && expired != nil:
		metrics.RecordBid("expired")
		metrics.RecordSettlement(string(expired.Result))
		return 0, fmt.Errorf("%w: auction %d has ended", ErrNotFound, auctionID)
	case errors.Is(err, ErrBidTooLow):
		metrics.RecordBid("too_low")
		e.log.Debug("bid rejected", zap.Int64("auction", auctionID), zap.Int64("user", userID), zap.Error(err))
		return 0, err
	case err != nil:
		metrics.RecordBid("rejected")
		return 0, err
	}
	metrics.RecordBid("ok")
	return amount, nil
}

// escrowBid moves amount from the new bidder into the auction and returns
// the previous leader's held bid. The auction lock must already be held.
func (e *Engine) escrowBid(tx ledger.Tx, a *models.Auction, userID, amount int64) error {
	keys := []ledger.Key{ledger.UserKey(userID)}
	refundTo := int64(0)
	refund := a.Escrowed && a.CurrentBidderID != nil
	if refund {
		refundTo = *a.CurrentBidderID
		keys = append(keys, ledger.UserKey(refundTo))
	}
	if err := tx.Lock(keys...); err != nil {
		return err
	}

	bidder, err := e.loadUser(tx, userID)
	if err != nil {
		return err
	}
	if refund {
		if refundTo == userID {
			bidder.StarBalance += a.CurrentBid
		} else {
			prev, err := e.loadUser(tx, refundTo)
			if err != nil {
				return err
			}
			prev.StarBalance += a.CurrentBid
			if err := e.saveUser(tx, &prev); err != nil {
				return err
			}
		}
	}
	if bidder.StarBalance < amount {
		return fmt.Errorf("%w: bid %d, balance %d", ErrInsufficientFunds, amount, bidder.StarBalance)
	}
	bidder.StarBalance -= amount
	a.Escrowed = true
	return e.saveUser(tx, &bidder)
}

// EndAuction resolves the auction. Ending an auction that has already
// ended returns its recorded outcome and changes nothing.
func (e *Engine) EndAuction(ctx context.Context, auctionID int64) (AuctionOutcome, error) {
	o, _, err := e.endAuction(ctx, auctionID)
	return o, err
}

// endAuction also reports whether this call performed the resolution.
func (e *Engine) endAuction(ctx context.Context, auctionID int64) (AuctionOutcome, bool, error) {
	var (
		outcome  AuctionOutcome
		resolved bool
	)
	err := e.update(ctx, func(tx ledger.Tx) error {
		if err := tx.Lock(ledger.AuctionKey(auctionID)); err != nil {
			return err
		}
		a, err := tx.GetAuction(auctionID)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: auction %d", ErrNotFound, auctionID)
		}
		if err != nil {
			return err
		}
		if a.Status == models.AuctionStatusEnded {
			outcome = outcomeOf(a)
			return nil
		}
		if err := e.settle(tx, &a); err != nil {
			return err
		}
		outcome = outcomeOf(a)
		resolved = true
		return nil
	})
	if err != nil {
		return AuctionOutcome{}, false, err
	}
	if resolved {
		metrics.RecordSettlement(string(outcome.Result))
		e.log.Info("auction ended",
			zap.Int64("auction", auctionID),
			zap.String("result", string(outcome.Result)),
			zap.Int64("price", outcome.Price))
	}
	return outcome, resolved, nil
}

// settle moves an active auction to Ended, transferring the farm to the
// leader when the bid is paid. The auction lock must already be held.
func (e *Engine) settle(tx ledger.Tx, a *models.Auction) error {
	now := e.now()
	a.Status = models.AuctionStatusEnded
	a.EndedAt = &now

	if a.CurrentBidderID == nil {
		a.Result = models.AuctionResultNoBids
		return tx.SaveAuction(a)
	}

	winnerID := *a.CurrentBidderID
	if err := tx.Lock(ledger.UserKey(winnerID)); err != nil {
		return err
	}
	if !a.Escrowed {
		winner, err := e.loadUser(tx, winnerID)
		if err != nil {
			return err
		}
		if winner.StarBalance < a.CurrentBid {
			e.log.Warn("auction winner cannot pay",
				zap.Int64("auction", a.ID),
				zap.Int64("user", winnerID),
				zap.Int64("bid", a.CurrentBid),
				zap.Int64("balance", winner.StarBalance))
			a.Result = models.AuctionResultUnpaid
			return tx.SaveAuction(a)
		}
		winner.StarBalance -= a.CurrentBid
		if err := e.saveUser(tx, &winner); err != nil {
			return err
		}
	}

	farm := models.FarmHolding{
		OwnerID:         winnerID,
		FarmTypeID:      a.FarmTypeID,
		LastCollectedAt: now,
		CreatedAt:       now,
	}
	if err := tx.CreateFarm(&farm); err != nil {
		return err
	}
	a.AwardedFarmID = &farm.ID
	a.Escrowed = false
	a.Result = models.AuctionResultSold
	return tx.SaveAuction(a)
}

// SweepExpiredAuctions ends every active auction past its end time and
// returns the outcomes this sweep resolved.
func (e *Engine) SweepExpiredAuctions(ctx context.Context) ([]AuctionOutcome, error) {
	var auctions []models.Auction
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		auctions, err = tx.ListAuctions(models.AuctionStatusActive)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := e.now()
	var outcomes []AuctionOutcome
	for _, a := range auctions {
		if a.EndTime.After(now) {
			continue
		}
		o, resolved, err := e.endAuction(ctx, a.ID)
		if err != nil {
			return outcomes, err
		}
		if resolved {
			outcomes = append(outcomes, o)
		}
	}
	return outcomes, nil
}

// EnsureAuctions returns the active auctions, seeding new ones from the top
// of the farm catalog at half price when none is running.
func (e *Engine) EnsureAuctions(ctx context.Context) ([]models.Auction, error) {
	e.seedMu.Lock()
	defer e.seedMu.Unlock()

	active, err := e.GetActiveAuctions(ctx)
	if err != nil || len(active) > 0 {
		return active, err
	}

	pool := e.catalog.AuctionFarms(auctionFarmPool)
	if len(pool) == 0 {
		return active, nil
	}
	for i := 0; i < e.opts.AuctionSeedCount; i++ {
		farm := pool[e.pick(len(pool))]
		a, err := e.CreateAuction(ctx, farm.ID, farm.Price/2, e.opts.AuctionDurationHours)
		if err != nil {
			return active, err
		}
		active = append(active, a)
	}
	return active, nil
}

// EndedAuctionsSince returns outcomes of auctions that ended at or after since.
func (e *Engine) EndedAuctionsSince(ctx context.Context, since time.Time) ([]AuctionOutcome, error) {
	var outcomes []AuctionOutcome
	err := e.view(ctx, func(tx ledger.Tx) error {
		ended, err := tx.ListAuctions(models.AuctionStatusEnded)
		if err != nil {
			return err
		}
		for _, a := range ended {
			if a.EndedAt != nil && !a.EndedAt.Before(since) {
				outcomes = append(outcomes, outcomeOf(a))
			}
		}
		return nil
	})
	return outcomes, err
}

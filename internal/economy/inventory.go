package economy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"starfarm-bot/internal/ledger"
	"starfarm-bot/internal/metrics"
	"starfarm-bot/internal/models"
)

// BuyFarm debits the catalog price and grants a farm in one transaction.
// It returns false when the balance does not cover the price.
func (e *Engine) BuyFarm(ctx context.Context, userID int64, farmTypeID string) (bool, error) {
	farm, ok := e.catalog.Farm(farmTypeID)
	if !ok {
		return false, fmt.Errorf("%w: farm %q", ErrUnknownType, farmTypeID)
	}

	bought, err := e.purchase(ctx, userID, farm.Price, func(tx ledger.Tx) error {
		now := e.now()
		return tx.CreateFarm(&models.FarmHolding{
			OwnerID:         userID,
			FarmTypeID:      farm.ID,
			LastCollectedAt: now,
			CreatedAt:       now,
		})
	})
	recordPurchase("farm", bought, err)
	if bought {
		e.log.Debug("farm bought", zap.Int64("user", userID), zap.String("farm", farm.ID))
	}
	return bought, err
}

// BuyNft debits the catalog price and grants an NFT in one transaction.
// It returns false when the balance does not cover the price.
func (e *Engine) BuyNft(ctx context.Context, userID int64, nftTypeID string) (bool, error) {
	nft, ok := e.catalog.Nft(nftTypeID)
	if !ok {
		return false, fmt.Errorf("%w: nft %q", ErrUnknownType, nftTypeID)
	}

	bought, err := e.purchase(ctx, userID, nft.Price, func(tx ledger.Tx) error {
		return tx.CreateNft(&models.NftHolding{
			OwnerID:    userID,
			NftTypeID:  nft.ID,
			AcquiredAt: e.now(),
		})
	})
	recordPurchase("nft", bought, err)
	if bought {
		e.log.Debug("nft bought", zap.Int64("user", userID), zap.String("nft", nft.ID))
	}
	return bought, err
}

func (e *Engine) purchase(ctx context.Context, userID, price int64, grant func(tx ledger.Tx) error) (bool, error) {
	bought := false
	err := e.update(ctx, func(tx ledger.Tx) error {
		if err := tx.Lock(ledger.UserKey(userID)); err != nil {
			return err
		}
		u, err := e.loadUser(tx, userID)
		if err != nil {
			return err
		}
		if u.StarBalance < price {
			return nil
		}
		u.StarBalance -= price
		if err := e.saveUser(tx, &u); err != nil {
			return err
		}
		if err := grant(tx); err != nil {
			return err
		}
		bought = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return bought, nil
}

func recordPurchase(kind string, bought bool, err error) {
	switch {
	case err != nil:
		metrics.RecordPurchase(kind, "error")
	case bought:
		metrics.RecordPurchase(kind, "ok")
	default:
		metrics.RecordPurchase(kind, "insufficient_funds")
	}
}

func (e *Engine) GetUserFarms(ctx context.Context, userID int64) ([]models.FarmHolding, error) {
	var farms []models.FarmHolding
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		farms, err = tx.ListFarms(userID)
		return err
	})
	return farms, err
}

func (e *Engine) GetUserNfts(ctx context.Context, userID int64) ([]models.NftHolding, error) {
	var nfts []models.NftHolding
	err := e.view(ctx, func(tx ledger.Tx) error {
		var err error
		nfts, err = tx.ListNfts(userID)
		return err
	})
	return nfts, err
}

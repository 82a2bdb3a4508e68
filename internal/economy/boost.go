package economy

import (
	"context"

	"go.uber.org/zap"

	"starfarm-bot/internal/ledger"
	"starfarm-bot/internal/models"
)

// CalculateTotalBoost returns the income multiplier granted by the user's NFTs.
func (e *Engine) CalculateTotalBoost(ctx context.Context, userID int64) (float64, error) {
	boost := 1.0
	err := e.view(ctx, func(tx ledger.Tx) error {
		nfts, err := tx.ListNfts(userID)
		if err != nil {
			return err
		}
		boost = e.boostOf(nfts)
		return nil
	})
	return boost, err
}

// boostOf stacks NFT boosts additively: 1 + sum(boost - 1).
func (e *Engine) boostOf(nfts []models.NftHolding) float64 {
	boost := 1.0
	for _, n := range nfts {
		t, ok := e.catalog.Nft(n.NftTypeID)
		if !ok {
			e.log.Warn("nft type missing from catalog", zap.Int64("nft", n.ID), zap.String("type", n.NftTypeID))
			continue
		}
		boost += t.Boost - 1
	}
	return boost
}

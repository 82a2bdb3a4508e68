// Package ledger is the transactional store behind the economy engine.
//
// Every mutation runs inside Store.Update. A transaction first takes
// exclusive locks on the entity keys it will touch with Tx.Lock; concurrent
// transactions on disjoint keys proceed in parallel, transactions on the
// same key serialize. Locks are taken auctions first, then users in
// ascending id order, which keeps lock acquisition deadlock free.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"starfarm-bot/internal/models"
)

var (
	ErrNotFound = errors.New("ledger: record not found")
	ErrReadOnly = errors.New("ledger: write in read-only transaction")
)

type KeyKind int

const (
	KindAuction KeyKind = iota + 1
	KindUser
)

type Key struct {
	Kind KeyKind
	ID   int64
}

func UserKey(id int64) Key    { return Key{Kind: KindUser, ID: id} }
func AuctionKey(id int64) Key { return Key{Kind: KindAuction, ID: id} }

func (k Key) String() string {
	switch k.Kind {
	case KindAuction:
		return fmt.Sprintf("auction:%d", k.ID)
	case KindUser:
		return fmt.Sprintf("user:%d", k.ID)
	}
	return fmt.Sprintf("unknown:%d", k.ID)
}

func (k Key) less(o Key) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	return k.ID < o.ID
}

// sortKeys orders keys by the global lock order and drops duplicates.
func sortKeys(keys []Key) []Key {
	out := make([]Key, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

type Store interface {
	// Update runs fn in one atomic transaction. A non-nil error from fn
	// discards every write made through the Tx.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// Lock takes exclusive locks on keys until the transaction ends.
	// Keys already held by this transaction are skipped.
	Lock(keys ...Key) error

	GetUser(id int64) (models.User, error)
	CreateUser(u *models.User) error
	SaveUser(u *models.User) error

	ListFarms(ownerID int64) ([]models.FarmHolding, error)
	CreateFarm(f *models.FarmHolding) error
	SaveFarm(f *models.FarmHolding) error

	ListNfts(ownerID int64) ([]models.NftHolding, error)
	CreateNft(n *models.NftHolding) error

	GetAuction(id int64) (models.Auction, error)
	ListAuctions(status models.AuctionStatus) ([]models.Auction, error)
	CreateAuction(a *models.Auction) error
	SaveAuction(a *models.Auction) error

	CreateReferralTransaction(r *models.ReferralTransaction) error
}

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"gorm.io/gorm"

	"starfarm-bot/internal/models"
)

// Postgres backs the ledger with gorm transactions. Entity locks are
// transaction-scoped advisory locks, so a key can be locked before its row
// exists (lazy user creation) and is released on commit or rollback.
type Postgres struct {
	db *gorm.DB
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Update(ctx context.Context, fn func(tx Tx) error) error {
	return p.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(newPgTx(db, false))
	})
}

func (p *Postgres) View(ctx context.Context, fn func(tx Tx) error) error {
	return p.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(newPgTx(db, true))
	}, &sql.TxOptions{ReadOnly: true})
}

// advisoryLockID maps a key onto the bigint space of pg_advisory_xact_lock.
func advisoryLockID(k Key) int64 {
	return int64(xxhash.Sum64String(k.String()))
}

type pgTx struct {
	db       *gorm.DB
	readOnly bool
	held     map[Key]struct{}
	maxHeld  *Key
}

func newPgTx(db *gorm.DB, readOnly bool) *pgTx {
	return &pgTx{db: db, readOnly: readOnly, held: make(map[Key]struct{})}
}

func (t *pgTx) Lock(keys ...Key) error {
	for _, k := range sortKeys(keys) {
		if _, ok := t.held[k]; ok {
			continue
		}
		if t.maxHeld != nil && k.less(*t.maxHeld) {
			return fmt.Errorf("ledger: lock %s requested after %s", k, *t.maxHeld)
		}
		if err := t.db.Exec("SELECT pg_advisory_xact_lock(?)", advisoryLockID(k)).Error; err != nil {
			return fmt.Errorf("ledger: lock %s: %w", k, err)
		}
		t.held[k] = struct{}{}
		held := k
		t.maxHeld = &held
	}
	return nil
}

func (t *pgTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (t *pgTx) GetUser(id int64) (models.User, error) {
	var u models.User
	if err := t.db.First(&u, id).Error; err != nil {
		return models.User{}, notFound(err)
	}
	return u, nil
}

func (t *pgTx) CreateUser(u *models.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(u).Error
}

func (t *pgTx) SaveUser(u *models.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Save(u).Error
}

func (t *pgTx) ListFarms(ownerID int64) ([]models.FarmHolding, error) {
	var farms []models.FarmHolding
	err := t.db.Where("owner_id = ?", ownerID).Order("id").Find(&farms).Error
	return farms, err
}

func (t *pgTx) CreateFarm(f *models.FarmHolding) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(f).Error
}

func (t *pgTx) SaveFarm(f *models.FarmHolding) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Save(f).Error
}

func (t *pgTx) ListNfts(ownerID int64) ([]models.NftHolding, error) {
	var nfts []models.NftHolding
	err := t.db.Where("owner_id = ?", ownerID).Order("id").Find(&nfts).Error
	return nfts, err
}

func (t *pgTx) CreateNft(n *models.NftHolding) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(n).Error
}

func (t *pgTx) GetAuction(id int64) (models.Auction, error) {
	var a models.Auction
	if err := t.db.First(&a, id).Error; err != nil {
		return models.Auction{}, notFound(err)
	}
	return a, nil
}

func (t *pgTx) ListAuctions(status models.AuctionStatus) ([]models.Auction, error) {
	var auctions []models.Auction
	err := t.db.Where("status = ?", status).Order("id").Find(&auctions).Error
	return auctions, err
}

func (t *pgTx) CreateAuction(a *models.Auction) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(a).Error
}

func (t *pgTx) SaveAuction(a *models.Auction) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Save(a).Error
}

func (t *pgTx) CreateReferralTransaction(r *models.ReferralTransaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	return t.db.Create(r).Error
}

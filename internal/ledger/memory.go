package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"starfarm-bot/internal/models"
)

// Memory is an in-process Store. It is safe for concurrent use and is
// primarily intended for tests and local development; nothing survives a
// restart.
type Memory struct {
	mu         sync.RWMutex
	nextID     int64
	users      map[int64]models.User
	farms      map[int64]models.FarmHolding
	farmOwners map[int64][]int64
	nfts       map[int64]models.NftHolding
	nftOwners  map[int64][]int64
	auctions   map[int64]models.Auction
	referrals  []models.ReferralTransaction

	locksMu sync.Mutex
	locks   map[Key]*sync.Mutex
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		nextID:     1,
		users:      make(map[int64]models.User),
		farms:      make(map[int64]models.FarmHolding),
		farmOwners: make(map[int64][]int64),
		nfts:       make(map[int64]models.NftHolding),
		nftOwners:  make(map[int64][]int64),
		auctions:   make(map[int64]models.Auction),
		locks:      make(map[Key]*sync.Mutex),
	}
}

func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newMemTx(m, false)
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newMemTx(m, true)
	defer tx.release()
	return fn(tx)
}

// ReferralTransactions returns a copy of the reward audit rows.
func (m *Memory) ReferralTransactions() []models.ReferralTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ReferralTransaction, len(m.referrals))
	copy(out, m.referrals)
	return out
}

func (m *Memory) keyLock(k Key) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[k]
	if !ok {
		l = &sync.Mutex{}
		m.locks[k] = l
	}
	return l
}

func (m *Memory) allocID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return id
}

// memTx stages writes and applies them to the Memory maps on commit.
type memTx struct {
	m        *Memory
	readOnly bool

	held    map[Key]*sync.Mutex
	order   []Key
	maxHeld *Key

	users     map[int64]models.User
	farms     map[int64]models.FarmHolding
	nfts      map[int64]models.NftHolding
	auctions  map[int64]models.Auction
	referrals []models.ReferralTransaction
}

func newMemTx(m *Memory, readOnly bool) *memTx {
	return &memTx{
		m:        m,
		readOnly: readOnly,
		held:     make(map[Key]*sync.Mutex),
		users:    make(map[int64]models.User),
		farms:    make(map[int64]models.FarmHolding),
		nfts:     make(map[int64]models.NftHolding),
		auctions: make(map[int64]models.Auction),
	}
}

func (t *memTx) Lock(keys ...Key) error {
	for _, k := range sortKeys(keys) {
		if _, ok := t.held[k]; ok {
			continue
		}
		if t.maxHeld != nil && k.less(*t.maxHeld) {
			return fmt.Errorf("ledger: lock %s requested after %s", k, *t.maxHeld)
		}
		l := t.m.keyLock(k)
		l.Lock()
		t.held[k] = l
		t.order = append(t.order, k)
		held := k
		t.maxHeld = &held
	}
	return nil
}

func (t *memTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.held[t.order[i]].Unlock()
	}
	t.held = nil
	t.order = nil
}

func (t *memTx) commit() {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, u := range t.users {
		m.users[id] = u
	}
	for id, f := range t.farms {
		if _, exists := m.farms[id]; !exists {
			m.farmOwners[f.OwnerID] = append(m.farmOwners[f.OwnerID], id)
		}
		m.farms[id] = f
	}
	for id, n := range t.nfts {
		if _, exists := m.nfts[id]; !exists {
			m.nftOwners[n.OwnerID] = append(m.nftOwners[n.OwnerID], id)
		}
		m.nfts[id] = n
	}
	for id, a := range t.auctions {
		m.auctions[id] = a
	}
	m.referrals = append(m.referrals, t.referrals...)
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) GetUser(id int64) (models.User, error) {
	if u, ok := t.users[id]; ok {
		return cloneUser(u), nil
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	u, ok := t.m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return cloneUser(u), nil
}

func (t *memTx) CreateUser(u *models.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetUser(u.ID); err == nil {
		return fmt.Errorf("ledger: user %d already exists", u.ID)
	}
	t.users[u.ID] = cloneUser(*u)
	return nil
}

func (t *memTx) SaveUser(u *models.User) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.users[u.ID] = cloneUser(*u)
	return nil
}

func (t *memTx) ListFarms(ownerID int64) ([]models.FarmHolding, error) {
	t.m.mu.RLock()
	ids := append([]int64(nil), t.m.farmOwners[ownerID]...)
	committed := make(map[int64]models.FarmHolding, len(ids))
	for _, id := range ids {
		committed[id] = t.m.farms[id]
	}
	t.m.mu.RUnlock()

	for id, f := range t.farms {
		if f.OwnerID != ownerID {
			continue
		}
		if _, ok := committed[id]; !ok {
			ids = append(ids, id)
		}
		committed[id] = f
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.FarmHolding, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneFarm(committed[id]))
	}
	return out, nil
}

func (t *memTx) CreateFarm(f *models.FarmHolding) error {
	if err := t.writable(); err != nil {
		return err
	}
	f.ID = t.m.allocID()
	t.farms[f.ID] = cloneFarm(*f)
	return nil
}

func (t *memTx) SaveFarm(f *models.FarmHolding) error {
	if err := t.writable(); err != nil {
		return err
	}
	if f.ID == 0 {
		return fmt.Errorf("ledger: save farm without id")
	}
	t.farms[f.ID] = cloneFarm(*f)
	return nil
}

func (t *memTx) ListNfts(ownerID int64) ([]models.NftHolding, error) {
	t.m.mu.RLock()
	var out []models.NftHolding
	for _, id := range t.m.nftOwners[ownerID] {
		out = append(out, t.m.nfts[id])
	}
	t.m.mu.RUnlock()

	for _, n := range t.nfts {
		if n.OwnerID == ownerID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateNft(n *models.NftHolding) error {
	if err := t.writable(); err != nil {
		return err
	}
	n.ID = t.m.allocID()
	t.nfts[n.ID] = *n
	return nil
}

func (t *memTx) GetAuction(id int64) (models.Auction, error) {
	if a, ok := t.auctions[id]; ok {
		return cloneAuction(a), nil
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	a, ok := t.m.auctions[id]
	if !ok {
		return models.Auction{}, ErrNotFound
	}
	return cloneAuction(a), nil
}

func (t *memTx) ListAuctions(status models.AuctionStatus) ([]models.Auction, error) {
	merged := make(map[int64]models.Auction)
	t.m.mu.RLock()
	for id, a := range t.m.auctions {
		merged[id] = a
	}
	t.m.mu.RUnlock()
	for id, a := range t.auctions {
		merged[id] = a
	}

	var out []models.Auction
	for _, a := range merged {
		if a.Status == status {
			out = append(out, cloneAuction(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateAuction(a *models.Auction) error {
	if err := t.writable(); err != nil {
		return err
	}
	a.ID = t.m.allocID()
	t.auctions[a.ID] = cloneAuction(*a)
	return nil
}

func (t *memTx) SaveAuction(a *models.Auction) error {
	if err := t.writable(); err != nil {
		return err
	}
	if a.ID == 0 {
		return fmt.Errorf("ledger: save auction without id")
	}
	t.auctions[a.ID] = cloneAuction(*a)
	return nil
}

func (t *memTx) CreateReferralTransaction(r *models.ReferralTransaction) error {
	if err := t.writable(); err != nil {
		return err
	}
	r.ID = uint(t.m.allocID())
	t.referrals = append(t.referrals, *r)
	return nil
}

func cloneUser(u models.User) models.User {
	if u.ReferredBy != nil {
		v := *u.ReferredBy
		u.ReferredBy = &v
	}
	return u
}

func cloneFarm(f models.FarmHolding) models.FarmHolding {
	if f.LastActivatedAt != nil {
		v := *f.LastActivatedAt
		f.LastActivatedAt = &v
	}
	return f
}

func cloneAuction(a models.Auction) models.Auction {
	if a.CurrentBidderID != nil {
		v := *a.CurrentBidderID
		a.CurrentBidderID = &v
	}
	if a.AwardedFarmID != nil {
		v := *a.AwardedFarmID
		a.AwardedFarmID = &v
	}
	if a.EndedAt != nil {
		v := *a.EndedAt
		a.EndedAt = &v
	}
	return a
}

package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"

	"github.com/google/uuid"
)

// memDB is an in-memory stand-in for Postgres. Each method holds the mutex
// for its whole body, which mirrors a single conditional UPDATE.
type memDB struct {
	mu         sync.Mutex
	wallets    map[string]domain.Wallet
	ledger     []domain.LedgerEntry
	ledgerKeys map[string]int
	requests   map[string]*domain.MintRequest // owner:key
	assets     map[string]*domain.Asset
	receipts   []domain.Receipt
	audits     []domain.AuditEvent
	counters   map[string]*domain.SupplyCounter
	events     map[string]*domain.SupplyMintEvent
	nonces     map[string]bool
}

func newMemDB() *memDB {
	return &memDB{
		wallets:    map[string]domain.Wallet{},
		ledgerKeys: map[string]int{},
		requests:   map[string]*domain.MintRequest{},
		assets:     map[string]*domain.Asset{},
		counters:   map[string]*domain.SupplyCounter{},
		events:     map[string]*domain.SupplyMintEvent{},
		nonces:     map[string]bool{},
	}
}

func (db *memDB) seedWallet(owner string, balance int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	now := time.Now().UTC()
	db.wallets[owner] = domain.Wallet{OwnerID: owner, Balance: balance, CreatedAt: now, UpdatedAt: now}
}

func (db *memDB) wallet(owner string) domain.Wallet {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.wallets[owner]
}

func (db *memDB) ledgerFor(owner string) []domain.LedgerEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range db.ledger {
		if e.OwnerID == owner {
			out = append(out, e)
		}
	}
	return out
}

func (db *memDB) auditCount(action domain.AuditAction) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, e := range db.audits {
		if e.Action == action {
			n++
		}
	}
	return n
}

func (db *memDB) assetsByStatus(status domain.AssetStatus) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, a := range db.assets {
		if a.Status == status {
			n++
		}
	}
	return n
}

func (db *memDB) receiptCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.receipts)
}

// ---- wallets ----

type memWallets struct{ db *memDB }

func (w memWallets) Ensure(_ context.Context, owner string, initial int64) (*domain.Wallet, error) {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	cur, ok := w.db.wallets[owner]
	if !ok {
		now := time.Now().UTC()
		cur = domain.Wallet{OwnerID: owner, Balance: initial, CreatedAt: now, UpdatedAt: now}
		w.db.wallets[owner] = cur
	}
	return &cur, nil
}

func (w memWallets) Get(_ context.Context, owner string) (*domain.Wallet, error) {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	cur, ok := w.db.wallets[owner]
	if !ok {
		return nil, nil
	}
	return &cur, nil
}

func (w memWallets) update(owner string, ok func(domain.Wallet) bool, apply func(*domain.Wallet)) (*domain.Wallet, error) {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	cur, exists := w.db.wallets[owner]
	if !exists || !ok(cur) {
		return nil, nil
	}
	apply(&cur)
	cur.Version++
	cur.UpdatedAt = time.Now().UTC()
	w.db.wallets[owner] = cur
	return &cur, nil
}

func (w memWallets) Lock(_ context.Context, owner string, amount int64) (*domain.Wallet, error) {
	return w.update(owner,
		func(c domain.Wallet) bool { return c.Balance >= amount },
		func(c *domain.Wallet) { c.Balance -= amount; c.LockedBalance += amount })
}

func (w memWallets) Settle(_ context.Context, owner string, amount int64) (*domain.Wallet, error) {
	return w.update(owner,
		func(c domain.Wallet) bool { return c.LockedBalance >= amount },
		func(c *domain.Wallet) { c.LockedBalance -= amount })
}

func (w memWallets) Release(_ context.Context, owner string, amount int64) (*domain.Wallet, error) {
	return w.update(owner,
		func(c domain.Wallet) bool { return c.LockedBalance >= amount },
		func(c *domain.Wallet) { c.Balance += amount; c.LockedBalance -= amount })
}

func (w memWallets) Deposit(_ context.Context, e *domain.LedgerEntry) (*domain.Wallet, error) {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if _, dup := w.db.ledgerKeys[e.IdempotencyKey]; dup {
		return nil, nil
	}
	cur, ok := w.db.wallets[e.OwnerID]
	if !ok {
		return nil, nil
	}
	w.db.ledgerKeys[e.IdempotencyKey] = len(w.db.ledger)
	w.db.ledger = append(w.db.ledger, *e)
	cur.Balance += e.Amount
	cur.Version++
	w.db.wallets[e.OwnerID] = cur
	return &cur, nil
}

func (w memWallets) Transfer(_ context.Context, out, in *domain.LedgerEntry) (*domain.Wallet, *domain.Wallet, error) {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	for _, e := range []*domain.LedgerEntry{out, in} {
		if _, dup := w.db.ledgerKeys[e.IdempotencyKey]; dup {
			return nil, nil, domain.ErrDuplicateLedgerKey
		}
	}
	from, okFrom := w.db.wallets[out.OwnerID]
	to, okTo := w.db.wallets[in.OwnerID]
	if !okFrom || !okTo {
		return nil, nil, errors.New("transfer wallet missing")
	}
	if from.Balance < out.Amount {
		return nil, nil, nil
	}
	for _, e := range []*domain.LedgerEntry{out, in} {
		w.db.ledgerKeys[e.IdempotencyKey] = len(w.db.ledger)
		w.db.ledger = append(w.db.ledger, *e)
	}
	from.Balance -= out.Amount
	from.Version++
	to.Balance += in.Amount
	to.Version++
	w.db.wallets[out.OwnerID] = from
	w.db.wallets[in.OwnerID] = to
	return &from, &to, nil
}

// ---- ledger ----

type memLedger struct{ db *memDB }

func (l memLedger) Append(_ context.Context, e *domain.LedgerEntry) (bool, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if _, dup := l.db.ledgerKeys[e.IdempotencyKey]; dup {
		return false, nil
	}
	l.db.ledgerKeys[e.IdempotencyKey] = len(l.db.ledger)
	l.db.ledger = append(l.db.ledger, *e)
	return true, nil
}

func (l memLedger) GetByIdempotencyKey(_ context.Context, key string) (*domain.LedgerEntry, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	i, ok := l.db.ledgerKeys[key]
	if !ok {
		return nil, nil
	}
	e := l.db.ledger[i]
	return &e, nil
}

func (l memLedger) ListByOwner(_ context.Context, owner string, limit int) ([]domain.LedgerEntry, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var out []domain.LedgerEntry
	for i := len(l.db.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if l.db.ledger[i].OwnerID == owner {
			out = append(out, l.db.ledger[i])
		}
	}
	return out, nil
}

// ---- mint requests ----

type memRequests struct{ db *memDB }

func (r memRequests) Claim(_ context.Context, m *domain.MintRequest) (*domain.MintRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	k := m.OwnerID + ":" + m.IdempotencyKey
	cur, ok := r.db.requests[k]
	if ok && cur.Status != domain.MintStatusFailed {
		return nil, nil
	}
	if ok {
		cur.Status = domain.MintStatusProcessing
		cur.Stage = domain.StageReceived
		cur.ErrorKind = nil
		cur.Attempts++
		cur.PriceCredits = m.PriceCredits
		cur.DraftAssetID = m.DraftAssetID
		cur.Description = m.Description
		cur.Nonce = m.Nonce
		cur.UpdatedAt = m.CreatedAt
	} else {
		cp := *m
		cp.Status = domain.MintStatusProcessing
		cp.Stage = domain.StageReceived
		cp.Attempts = 1
		cur = &cp
		r.db.requests[k] = cur
	}
	out := *cur
	return &out, nil
}

func (r memRequests) GetByKey(_ context.Context, owner, key string) (*domain.MintRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.requests[owner+":"+key]
	if !ok {
		return nil, nil
	}
	out := *cur
	return &out, nil
}

func (r memRequests) byID(id uuid.UUID) *domain.MintRequest {
	for _, m := range r.db.requests {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r memRequests) UpdateStage(_ context.Context, id uuid.UUID, stage domain.MintStage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m := r.byID(id)
	if m == nil {
		return errors.New("mint request not found")
	}
	m.Stage = stage
	return nil
}

func (r memRequests) MarkFailed(_ context.Context, id uuid.UUID, stage domain.MintStage, kind string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m := r.byID(id)
	if m == nil {
		return errors.New("mint request not found")
	}
	m.Status = domain.MintStatusFailed
	m.Stage = stage
	m.ErrorKind = &kind
	return nil
}

func (r memRequests) MarkCompleted(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m := r.byID(id)
	if m == nil {
		return errors.New("mint request not found")
	}
	m.Status = domain.MintStatusCompleted
	m.Stage = domain.StageComplete
	return nil
}

// ---- assets ----

type memAssets struct{ db *memDB }

func (a memAssets) Create(_ context.Context, asset *domain.Asset) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	if _, dup := a.db.assets[asset.TokenID]; dup {
		return errors.New("duplicate token id")
	}
	cp := *asset
	a.db.assets[asset.TokenID] = &cp
	return nil
}

func (a memAssets) GetByID(_ context.Context, id uuid.UUID) (*domain.Asset, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	for _, cur := range a.db.assets {
		if cur.ID == id {
			out := *cur
			return &out, nil
		}
	}
	return nil, nil
}

func (a memAssets) GetByTokenID(_ context.Context, tokenID string) (*domain.Asset, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	cur, ok := a.db.assets[tokenID]
	if !ok {
		return nil, nil
	}
	out := *cur
	return &out, nil
}

func (a memAssets) UpdateStatus(_ context.Context, tokenID string, status domain.AssetStatus) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	cur, ok := a.db.assets[tokenID]
	if !ok || (cur.Status != domain.AssetStatusDraft && cur.Status != status && status != domain.AssetStatusBurned) {
		return errors.New("asset status not updated")
	}
	cur.Status = status
	return nil
}

// ---- receipts ----

type memReceipts struct{ db *memDB }

func (r memReceipts) Create(_ context.Context, receipt *domain.Receipt) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.receipts {
		if existing.MintRequestID == receipt.MintRequestID {
			return false, nil
		}
	}
	r.db.receipts = append(r.db.receipts, *receipt)
	return true, nil
}

func (r memReceipts) GetByMintRequestID(_ context.Context, id uuid.UUID) (*domain.Receipt, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.receipts {
		if existing.MintRequestID == id {
			out := existing
			return &out, nil
		}
	}
	return nil, nil
}

func (r memReceipts) ListByOwner(_ context.Context, p ports.ReceiptListParams) ([]domain.Receipt, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var all []domain.Receipt
	for _, existing := range r.db.receipts {
		if existing.OwnerID == p.OwnerID {
			all = append(all, existing)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start := (p.Page - 1) * p.PageSize
	if start >= len(all) {
		return []domain.Receipt{}, int64(len(all)), nil
	}
	end := start + p.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

// ---- audit ----

type memAudit struct{ db *memDB }

func (a memAudit) Record(_ context.Context, event *domain.AuditEvent) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	a.db.audits = append(a.db.audits, *event)
}

// ---- supply ----

type memSupply struct{ db *memDB }

func (s memSupply) CreateCounter(_ context.Context, id string, limit int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.counters[id]; !ok {
		s.db.counters[id] = &domain.SupplyCounter{ID: id, Cap: limit, UpdatedAt: time.Now().UTC()}
	}
	return nil
}

func (s memSupply) GetCounter(_ context.Context, id string) (*domain.SupplyCounter, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.counters[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (s memSupply) RaiseCap(_ context.Context, id string, limit int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.counters[id]
	if !ok || c.Cap >= limit {
		return errors.New("cap not raised")
	}
	c.Cap = limit
	return nil
}

func (s memSupply) Increment(_ context.Context, id string, expected, amount int64) (*domain.SupplyCounter, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.counters[id]
	if !ok || c.TotalIssued != expected || c.TotalIssued+amount > c.Cap {
		return nil, nil
	}
	c.TotalIssued += amount
	out := *c
	return &out, nil
}

func (s memSupply) Decrement(_ context.Context, id string, amount int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.counters[id]
	if !ok || c.TotalIssued < amount {
		return errors.New("counter not decremented")
	}
	c.TotalIssued -= amount
	return nil
}

func (s memSupply) GetEvent(_ context.Context, mintID string) (*domain.SupplyMintEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.events[mintID]
	if !ok {
		return nil, nil
	}
	out := *e
	return &out, nil
}

func (s memSupply) CreateEvent(_ context.Context, e *domain.SupplyMintEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.events[e.MintID]; ok {
		return domain.ErrDuplicateMintID
	}
	if s.db.nonces[e.Nonce] {
		return domain.ErrDuplicateNonce
	}
	cp := *e
	s.db.events[e.MintID] = &cp
	s.db.nonces[e.Nonce] = true
	return nil
}

// ---- generator ----

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (g *fakeGenerator) Generate(ctx context.Context, _ ports.ArtifactPrompt) (*ports.Artifact, error) {
	g.mu.Lock()
	g.calls++
	err := g.err
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &ports.Artifact{Data: []byte("\x89PNG fake"), ContentType: "image/png"}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

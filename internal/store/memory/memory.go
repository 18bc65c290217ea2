// Package memory implements store.Store in process memory. It keeps the same
// locking contract as the Postgres backend: row locks are no-wait try-locks held
// until commit or rollback, and writes are buffered per transaction so a failed
// operation leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/escrowledger/internal/domain"
	"github.com/congo-pay/escrowledger/internal/store"
)

type walletRow struct {
	lock sync.Mutex
	data domain.Wallet
}

type escrowRow struct {
	lock sync.Mutex
	data domain.Escrow
}

// Store is a concurrency-safe in-memory backend useful for tests and local runs.
type Store struct {
	mu         sync.Mutex
	wallets    map[domain.WalletKey]*walletRow
	entries    []domain.Entry
	entryByKey map[string]int
	escrows    map[string]*escrowRow
	escrowKeys map[string]string
	audit      []domain.AuditRecord
	policies   map[string]domain.RecipientPolicy
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		wallets:    make(map[domain.WalletKey]*walletRow),
		entryByKey: make(map[string]int),
		escrows:    make(map[string]*escrowRow),
		escrowKeys: make(map[string]string),
		policies:   make(map[string]domain.RecipientPolicy),
	}
}

var _ store.Store = (*Store)(nil)

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// WithTx runs fn against a buffered transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	t := &tx{
		s:             s,
		lockedWallets: make(map[domain.WalletKey]*walletRow),
		lockedEscrows: make(map[string]*escrowRow),
		walletWrites:  make(map[domain.WalletKey]domain.Wallet),
		escrowWrites:  make(map[string]domain.Escrow),
		escrowInserts: make(map[string]domain.Escrow),
		policyWrites:  make(map[string]domain.RecipientPolicy),
	}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

type tx struct {
	s *Store

	lockedWallets map[domain.WalletKey]*walletRow
	lockedEscrows map[string]*escrowRow

	walletWrites  map[domain.WalletKey]domain.Wallet
	entries       []domain.Entry
	escrowWrites  map[string]domain.Escrow
	escrowInserts map[string]domain.Escrow
	audit         []domain.AuditRecord
	policyWrites  map[string]domain.RecipientPolicy
}

func (t *tx) Wallets() store.WalletRepository  { return walletRepo{t} }
func (t *tx) Entries() store.EntryRepository   { return entryRepo{t} }
func (t *tx) Escrows() store.EscrowRepository  { return escrowRepo{t} }
func (t *tx) Audit() store.AuditRepository     { return auditRepo{t} }
func (t *tx) Policies() store.PolicyRepository { return policyRepo{t} }

func (t *tx) release() {
	for _, row := range t.lockedWallets {
		row.lock.Unlock()
	}
	for _, row := range t.lockedEscrows {
		row.lock.Unlock()
	}
	t.lockedWallets = nil
	t.lockedEscrows = nil
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(t.entries))
	for _, e := range t.entries {
		if _, exists := s.entryByKey[e.IdempotencyKey]; exists {
			return fmt.Errorf("entry %s: %w", e.IdempotencyKey, domain.ErrDuplicate)
		}
		if _, exists := seen[e.IdempotencyKey]; exists {
			return fmt.Errorf("entry %s: %w", e.IdempotencyKey, domain.ErrDuplicate)
		}
		seen[e.IdempotencyKey] = struct{}{}
	}
	for _, e := range t.escrowInserts {
		if _, exists := s.escrowKeys[e.IdempotencyKey]; exists {
			return fmt.Errorf("escrow %s: %w", e.IdempotencyKey, domain.ErrDuplicate)
		}
		if _, ok := s.findPendingLocked(e.SenderID, e.RecipientID, e.ReferenceID); ok {
			return fmt.Errorf("pending escrow for reference %s: %w", e.ReferenceID, domain.ErrDuplicate)
		}
	}

	for key, w := range t.walletWrites {
		s.wallets[key].data = w
	}
	for _, e := range t.entries {
		s.entryByKey[e.IdempotencyKey] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	for id, e := range t.escrowInserts {
		s.escrows[id] = &escrowRow{data: e}
		s.escrowKeys[e.IdempotencyKey] = id
	}
	for id, e := range t.escrowWrites {
		s.escrows[id].data = e
	}
	s.audit = append(s.audit, t.audit...)
	for id, p := range t.policyWrites {
		s.policies[id] = p
	}
	return nil
}

func (s *Store) findPendingLocked(senderID, recipientID, referenceID string) (domain.Escrow, bool) {
	for _, row := range s.escrows {
		e := row.data
		if e.Status == domain.EscrowPending && e.SenderID == senderID && e.RecipientID == recipientID && e.ReferenceID == referenceID {
			return e, true
		}
	}
	return domain.Escrow{}, false
}

type walletRepo struct{ t *tx }

func (r walletRepo) Ensure(_ context.Context, key domain.WalletKey, now time.Time) (domain.Wallet, error) {
	if w, ok := r.t.walletWrites[key]; ok {
		return w, nil
	}
	s := r.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.wallets[key]
	if !ok {
		row = &walletRow{data: domain.Wallet{
			OwnerID:   key.OwnerID,
			Currency:  key.Currency,
			Status:    domain.WalletActive,
			CreatedAt: now,
			UpdatedAt: now,
		}}
		s.wallets[key] = row
	}
	return row.data, nil
}

func (r walletRepo) Get(_ context.Context, key domain.WalletKey) (domain.Wallet, error) {
	if w, ok := r.t.walletWrites[key]; ok {
		return w, nil
	}
	s := r.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.wallets[key]
	if !ok {
		return domain.Wallet{}, fmt.Errorf("wallet %s: %w", key.Account(), domain.ErrNotFound)
	}
	return row.data, nil
}

func (r walletRepo) LockNoWait(ctx context.Context, key domain.WalletKey) (domain.Wallet, error) {
	if _, held := r.t.lockedWallets[key]; held {
		return r.Get(ctx, key)
	}
	s := r.t.s
	s.mu.Lock()
	row, ok := s.wallets[key]
	s.mu.Unlock()
	if !ok {
		return domain.Wallet{}, fmt.Errorf("wallet %s: %w", key.Account(), domain.ErrNotFound)
	}
	if !row.lock.TryLock() {
		return domain.Wallet{}, fmt.Errorf("wallet %s: %w", key.Account(), domain.ErrLockContention)
	}
	r.t.lockedWallets[key] = row
	return r.Get(ctx, key)
}

func (r walletRepo) Update(_ context.Context, w domain.Wallet) error {
	key := domain.WalletKey{OwnerID: w.OwnerID, Currency: w.Currency}
	if _, held := r.t.lockedWallets[key]; !held {
		return fmt.Errorf("wallet %s updated without lock", key.Account())
	}
	if w.Balance < 0 {
		return fmt.Errorf("wallet %s balance below zero: %w", key.Account(), domain.ErrInsufficientFunds)
	}
	r.t.walletWrites[key] = w
	return nil
}

type entryRepo struct{ t *tx }

func (r entryRepo) Insert(_ context.Context, e domain.Entry) error {
	for _, local := range r.t.entries {
		if local.IdempotencyKey == e.IdempotencyKey {
			return fmt.Errorf("entry %s: %w", e.IdempotencyKey, domain.ErrDuplicate)
		}
	}
	s := r.t.s
	s.mu.Lock()
	_, exists := s.entryByKey[e.IdempotencyKey]
	s.mu.Unlock()
	if exists {
		return fmt.Errorf("entry %s: %w", e.IdempotencyKey, domain.ErrDuplicate)
	}
	r.t.entries = append(r.t.entries, copyEntry(e))
	return nil
}

func (r entryRepo) GetByKey(_ context.Context, key string) (domain.Entry, error) {
	for _, local := range r.t.entries {
		if local.IdempotencyKey == key {
			return copyEntry(local), nil
		}
	}
	s := r.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.entryByKey[key]
	if !ok {
		return domain.Entry{}, fmt.Errorf("entry %s: %w", key, domain.ErrNotFound)
	}
	return copyEntry(s.entries[idx]), nil
}

func (r entryRepo) ListByOperation(_ context.Context, operationID string) ([]domain.Entry, error) {
	return r.filter(func(e domain.Entry) bool { return e.OperationID == operationID }, 0), nil
}

func (r entryRepo) ListByAccount(_ context.Context, account string, limit int) ([]domain.Entry, error) {
	return r.filter(func(e domain.Entry) bool { return e.Account == account }, limit), nil
}

func (r entryRepo) SumCompleted(_ context.Context, account string) (int64, error) {
	var total int64
	for _, e := range r.filter(func(e domain.Entry) bool { return e.Account == account && e.Status == domain.EntryCompleted }, 0) {
		total += e.Amount
	}
	return total, nil
}

func (r entryRepo) filter(match func(domain.Entry) bool, limit int) []domain.Entry {
	s := r.t.s
	s.mu.Lock()
	var out []domain.Entry
	for _, e := range s.entries {
		if match(e) {
			out = append(out, copyEntry(e))
		}
	}
	s.mu.Unlock()
	for _, e := range r.t.entries {
		if match(e) {
			out = append(out, copyEntry(e))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func copyEntry(e domain.Entry) domain.Entry {
	if e.Metadata != nil {
		md := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}

type escrowRepo struct{ t *tx }

func (r escrowRepo) Insert(_ context.Context, e domain.Escrow) error {
	if _, exists := r.t.escrowInserts[e.ID]; exists {
		return fmt.Errorf("escrow %s: %w", e.ID, domain.ErrDuplicate)
	}
	s := r.t.s
	s.mu.Lock()
	_, keyTaken := s.escrowKeys[e.IdempotencyKey]
	_, pending := s.findPendingLocked(e.SenderID, e.RecipientID, e.ReferenceID)
	s.mu.Unlock()
	if keyTaken || pending {
		return fmt.Errorf("escrow %s: %w", e.IdempotencyKey, domain.ErrDuplicate)
	}
	r.t.escrowInserts[e.ID] = e
	return nil
}

func (r escrowRepo) Get(_ context.Context, id string) (domain.Escrow, error) {
	if e, ok := r.t.escrowWrites[id]; ok {
		return e, nil
	}
	if e, ok := r.t.escrowInserts[id]; ok {
		return e, nil
	}
	s := r.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.escrows[id]
	if !ok {
		return domain.Escrow{}, fmt.Errorf("escrow %s: %w", id, domain.ErrNotFound)
	}
	return row.data, nil
}

func (r escrowRepo) GetByKey(ctx context.Context, key string) (domain.Escrow, error) {
	for _, e := range r.t.escrowInserts {
		if e.IdempotencyKey == key {
			return e, nil
		}
	}
	s := r.t.s
	s.mu.Lock()
	id, ok := s.escrowKeys[key]
	s.mu.Unlock()
	if !ok {
		return domain.Escrow{}, fmt.Errorf("escrow key %s: %w", key, domain.ErrNotFound)
	}
	return r.Get(ctx, id)
}

func (r escrowRepo) FindPending(_ context.Context, senderID, recipientID, referenceID string) (domain.Escrow, error) {
	for _, e := range r.t.escrowInserts {
		if e.Status == domain.EscrowPending && e.SenderID == senderID && e.RecipientID == recipientID && e.ReferenceID == referenceID {
			return e, nil
		}
	}
	s := r.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.findPendingLocked(senderID, recipientID, referenceID); ok {
		return e, nil
	}
	return domain.Escrow{}, fmt.Errorf("pending escrow for reference %s: %w", referenceID, domain.ErrNotFound)
}

func (r escrowRepo) LockNoWait(ctx context.Context, id string) (domain.Escrow, error) {
	if _, held := r.t.lockedEscrows[id]; held {
		return r.Get(ctx, id)
	}
	if e, inserted := r.t.escrowInserts[id]; inserted {
		return e, nil
	}
	s := r.t.s
	s.mu.Lock()
	row, ok := s.escrows[id]
	s.mu.Unlock()
	if !ok {
		return domain.Escrow{}, fmt.Errorf("escrow %s: %w", id, domain.ErrNotFound)
	}
	if !row.lock.TryLock() {
		return domain.Escrow{}, fmt.Errorf("escrow %s: %w", id, domain.ErrLockContention)
	}
	r.t.lockedEscrows[id] = row
	return r.Get(ctx, id)
}

func (r escrowRepo) Update(_ context.Context, e domain.Escrow) error {
	if _, inserted := r.t.escrowInserts[e.ID]; inserted {
		r.t.escrowInserts[e.ID] = e
		return nil
	}
	if _, held := r.t.lockedEscrows[e.ID]; !held {
		return fmt.Errorf("escrow %s updated without lock", e.ID)
	}
	r.t.escrowWrites[e.ID] = e
	return nil
}

func (r escrowRepo) ListExpired(_ context.Context, before time.Time, after store.ExpiryCursor, limit int) ([]domain.Escrow, error) {
	s := r.t.s
	s.mu.Lock()
	var out []domain.Escrow
	for _, row := range s.escrows {
		e := row.data
		if e.Status == domain.EscrowPending && e.ExpiresAt.Before(before) && after.Less(e) {
			out = append(out, e)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return store.CursorAt(out[i]).Less(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r escrowRepo) ListByParty(_ context.Context, userID string, limit int) ([]domain.Escrow, error) {
	s := r.t.s
	s.mu.Lock()
	var out []domain.Escrow
	for _, row := range s.escrows {
		if row.data.SenderID == userID || row.data.RecipientID == userID {
			out = append(out, row.data)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type auditRepo struct{ t *tx }

func (r auditRepo) Insert(_ context.Context, rec domain.AuditRecord) error {
	r.t.audit = append(r.t.audit, rec)
	return nil
}

func (r auditRepo) List(_ context.Context, entity domain.Entity, entityID string, limit int) ([]domain.AuditRecord, error) {
	s := r.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditRecord
	for _, rec := range s.audit {
		if rec.Entity == entity && rec.EntityID == entityID {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type policyRepo struct{ t *tx }

func (r policyRepo) Get(_ context.Context, userID string) (domain.RecipientPolicy, error) {
	if p, ok := r.t.policyWrites[userID]; ok {
		return p, nil
	}
	s := r.t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[userID]
	if !ok {
		return domain.RecipientPolicy{}, fmt.Errorf("policy %s: %w", userID, domain.ErrNotFound)
	}
	return p, nil
}

func (r policyRepo) Upsert(_ context.Context, p domain.RecipientPolicy) error {
	r.t.policyWrites[p.UserID] = p
	return nil
}

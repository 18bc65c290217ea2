package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/escrowledger/internal/domain"
)

// Seed is a test helper that funds a wallet from the external account. It writes
// a balanced reward operation so reconciliation still holds.
func Seed(s *Store, ownerID, currency string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := domain.WalletKey{OwnerID: ownerID, Currency: currency}
	row, ok := s.wallets[key]
	if !ok {
		row = &walletRow{data: domain.Wallet{OwnerID: ownerID, Currency: currency, Status: domain.WalletActive, CreatedAt: now}}
		s.wallets[key] = row
	}
	row.data.Balance += amount
	row.data.UpdatedAt = now

	opID := uuid.NewString()
	for _, leg := range []domain.Entry{
		{Account: domain.ExternalAccount(currency), Amount: -amount},
		{Account: key.Account(), Amount: amount, RecipientID: domain.StringPtr(ownerID)},
	} {
		leg.ID = uuid.NewString()
		leg.IdempotencyKey = "seed:" + leg.ID
		leg.OperationID = opID
		leg.Currency = currency
		leg.Type = domain.EntryReward
		leg.Status = domain.EntryCompleted
		leg.CreatedAt = now
		s.entryByKey[leg.IdempotencyKey] = len(s.entries)
		s.entries = append(s.entries, leg)
	}
}

// Balance returns the committed balance of a wallet, or zero when absent.
func Balance(s *Store, ownerID, currency string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.wallets[domain.WalletKey{OwnerID: ownerID, Currency: currency}]
	if !ok {
		return 0
	}
	return row.data.Balance
}

// AccountSum returns the sum of completed committed postings for an account.
func AccountSum(s *Store, account string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, e := range s.entries {
		if e.Account == account && e.Status == domain.EntryCompleted {
			total += e.Amount
		}
	}
	return total
}

// AuditCount returns the number of committed audit records.
func AuditCount(s *Store) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audit)
}

package wallet

import (
	"time"

	"github.com/congo-pay/escrowledger/internal/domain"
)

// Balance is a point-in-time read of a wallet.
type Balance struct {
	OwnerID  string
	Currency string
	Account  string
	Amount   int64
	Status   domain.WalletStatus
	AsOf     time.Time
}

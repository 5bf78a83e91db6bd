package wallet

import (
	"strings"
	"time"

	"github.com/congo-pay/settlement/internal/ledger"
)

// Wallet represents a stored value account backed by the ledger.
type Wallet struct {
	ID          string
	OwnerID     string
	AccountCode string
	Currency    string
	Status      string
	CreatedAt   time.Time
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID string
	Amount   int64
	Currency string
	Version  int64
	AsOf     time.Time
}

const accountPrefix = "wallet:"

// AccountCode returns the ledger account code for the wallet identifier.
func AccountCode(walletID string) string {
	return accountPrefix + walletID
}

// IDFromAccountCode reverses AccountCode. It reports false for accounts that
// do not back a wallet, such as the fee sink.
func IDFromAccountCode(code string) (string, bool) {
	id, ok := strings.CutPrefix(code, accountPrefix)
	return id, ok && id != ""
}

// Statement is a page of journal entries for one wallet.
type Statement struct {
	WalletID string
	Entries  []ledger.Entry
	Page     ledger.Page
}

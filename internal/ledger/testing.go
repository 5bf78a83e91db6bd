package ledger

import "context"

// SeedBalance is a test helper that funds an account through a deposit entry so
// that balances still only move via the journal.
func SeedBalance(s Store, code string, amount int64) error {
	ctx := context.Background()
	if err := s.EnsureAccount(ctx, code, ""); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	_, err := s.ApplyEntries(ctx, Group{
		Reference: "seed",
		Entries:   []Entry{{AccountCode: code, Delta: amount, Kind: KindDepositCredit}},
	})
	return err
}

// Package accounts provides account storage for the agent marketplace ledger.
package accounts

import (
	"bytes"
	"sort"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// AccountsDB defines the interface for account storage.
type AccountsDB interface {
	// GetAccount retrieves an account by pubkey.
	// Returns nil, nil if account does not exist.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)

	// SetAccount stores an account.
	SetAccount(pubkey types.Pubkey, account *types.Account) error

	// DeleteAccount removes an account.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount returns true if the account exists.
	HasAccount(pubkey types.Pubkey) bool

	// Commit stores every account in the batch atomically: either all writes
	// become visible or none do.
	Commit(batch []types.AccountRef) error

	// ProgramAccounts returns every account owned by program, ordered by pubkey.
	ProgramAccounts(program types.Pubkey) ([]types.AccountRef, error)

	// ForEachAccount calls fn for every stored account. A non-nil error from
	// fn stops the walk and is returned.
	ForEachAccount(fn func(pubkey types.Pubkey, account *types.Account) error) error

	// GetAccountsCount returns the total number of accounts.
	GetAccountsCount() uint64

	// Close closes the database.
	Close() error
}

func sortRefs(refs []types.AccountRef) {
	sort.Slice(refs, func(i, j int) bool {
		return bytes.Compare(refs[i].Pubkey[:], refs[j].Pubkey[:]) < 0
	})
}

package accounts

import (
	"sync"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// MemoryDB is an in-memory implementation of AccountsDB.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*types.Account
}

// NewMemoryDB creates a new in-memory account database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*types.Account),
	}
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *MemoryDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[pubkey]
	if !exists {
		return nil, nil
	}
	// Return a clone to prevent external modification
	return account.Clone(), nil
}

// SetAccount stores an account.
func (db *MemoryDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts[pubkey] = account.Clone()
	return nil
}

// DeleteAccount removes an account.
func (db *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.accounts, pubkey)
	return nil
}

// HasAccount returns true if the account exists.
func (db *MemoryDB) HasAccount(pubkey types.Pubkey) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.accounts[pubkey]
	return exists
}

// Commit stores every account in the batch under a single lock.
func (db *MemoryDB) Commit(batch []types.AccountRef) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, ref := range batch {
		db.accounts[ref.Pubkey] = ref.Account.Clone()
	}
	return nil
}

// ProgramAccounts returns every account owned by program.
func (db *MemoryDB) ProgramAccounts(program types.Pubkey) ([]types.AccountRef, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var refs []types.AccountRef
	for pk, acc := range db.accounts {
		if acc.Owner == program {
			refs = append(refs, types.AccountRef{Pubkey: pk, Account: acc.Clone()})
		}
	}
	sortRefs(refs)
	return refs, nil
}

// ForEachAccount calls fn for every stored account in pubkey order.
func (db *MemoryDB) ForEachAccount(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	db.mu.RLock()
	refs := make([]types.AccountRef, 0, len(db.accounts))
	for pk, acc := range db.accounts {
		refs = append(refs, types.AccountRef{Pubkey: pk, Account: acc.Clone()})
	}
	db.mu.RUnlock()

	sortRefs(refs)
	for _, ref := range refs {
		if err := fn(ref.Pubkey, ref.Account); err != nil {
			return err
		}
	}
	return nil
}

// GetAccountsCount returns the total number of accounts.
func (db *MemoryDB) GetAccountsCount() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint64(len(db.accounts))
}

// Close closes the database.
func (db *MemoryDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.accounts = make(map[types.Pubkey]*types.Account)
	return nil
}

// Ensure MemoryDB implements AccountsDB.
var _ AccountsDB = (*MemoryDB)(nil)

package accounts

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

const (
	// accountKeyPrefix is the prefix for account keys in BadgerDB.
	accountKeyPrefix = "account:"

	// ownerKeyPrefix indexes accounts by owning program:
	// "owner:" || owner || pubkey -> empty value.
	ownerKeyPrefix = "owner:"
)

// BadgerDB is a persistent implementation of AccountsDB using BadgerDB.
type BadgerDB struct {
	db    *badger.DB
	count atomic.Uint64
}

// NewBadgerDB creates a new BadgerDB account database at the specified path.
func NewBadgerDB(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	return openBadger(opts)
}

// NewInMemoryBadgerDB opens a BadgerDB that keeps everything in memory.
func NewInMemoryBadgerDB() (*BadgerDB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerDB, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	bdb := &BadgerDB{
		db: db,
	}

	count, err := bdb.countAccounts()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	bdb.count.Store(count)

	return bdb, nil
}

// makeAccountKey creates the key for an account.
func makeAccountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, len(accountKeyPrefix)+32)
	copy(key, accountKeyPrefix)
	copy(key[len(accountKeyPrefix):], pubkey[:])
	return key
}

func makeOwnerKey(owner, pubkey types.Pubkey) []byte {
	key := make([]byte, len(ownerKeyPrefix)+64)
	copy(key, ownerKeyPrefix)
	copy(key[len(ownerKeyPrefix):], owner[:])
	copy(key[len(ownerKeyPrefix)+32:], pubkey[:])
	return key
}

func makeOwnerPrefix(owner types.Pubkey) []byte {
	key := make([]byte, len(ownerKeyPrefix)+32)
	copy(key, ownerKeyPrefix)
	copy(key[len(ownerKeyPrefix):], owner[:])
	return key
}

func getInTxn(txn *badger.Txn, pubkey types.Pubkey) (*types.Account, error) {
	item, err := txn.Get(makeAccountKey(pubkey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var account *types.Account
	err = item.Value(func(val []byte) error {
		var deserErr error
		account, deserErr = DeserializeAccount(val)
		return deserErr
	})
	return account, err
}

// putInTxn writes the account and keeps the owner index in step. It reports
// whether the account did not exist before.
func putInTxn(txn *badger.Txn, pubkey types.Pubkey, account *types.Account) (bool, error) {
	data, err := SerializeAccount(account)
	if err != nil {
		return false, fmt.Errorf("failed to serialize account: %w", err)
	}
	old, err := getInTxn(txn, pubkey)
	if err != nil {
		return false, err
	}
	if old != nil && old.Owner != account.Owner {
		if err := txn.Delete(makeOwnerKey(old.Owner, pubkey)); err != nil {
			return false, err
		}
	}
	if err := txn.Set(makeAccountKey(pubkey), data); err != nil {
		return false, err
	}
	if err := txn.Set(makeOwnerKey(account.Owner, pubkey), nil); err != nil {
		return false, err
	}
	return old == nil, nil
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *BadgerDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	var account *types.Account
	err := db.db.View(func(txn *badger.Txn) error {
		var err error
		account, err = getInTxn(txn, pubkey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// SetAccount stores an account.
func (db *BadgerDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	return db.Commit([]types.AccountRef{{Pubkey: pubkey, Account: account}})
}

// Commit stores every account in the batch in one badger transaction.
func (db *BadgerDB) Commit(batch []types.AccountRef) error {
	var created uint64
	err := db.db.Update(func(txn *badger.Txn) error {
		for _, ref := range batch {
			if ref.Account == nil {
				return fmt.Errorf("nil account for %s", ref.Pubkey)
			}
			isNew, err := putInTxn(txn, ref.Pubkey, ref.Account)
			if err != nil {
				return err
			}
			if isNew {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit accounts: %w", err)
	}
	db.count.Add(created)
	return nil
}

// DeleteAccount removes an account.
func (db *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	var deleted bool
	err := db.db.Update(func(txn *badger.Txn) error {
		old, err := getInTxn(txn, pubkey)
		if err != nil {
			return err
		}
		if old == nil {
			return nil
		}
		if err := txn.Delete(makeAccountKey(pubkey)); err != nil {
			return err
		}
		if err := txn.Delete(makeOwnerKey(old.Owner, pubkey)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if deleted {
		db.count.Add(^uint64(0)) // Decrement by 1
	}
	return nil
}

// HasAccount returns true if the account exists.
func (db *BadgerDB) HasAccount(pubkey types.Pubkey) bool {
	key := makeAccountKey(pubkey)
	var exists bool

	db.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		exists = err == nil
		return nil
	})

	return exists
}

// ProgramAccounts walks the owner index for program.
func (db *BadgerDB) ProgramAccounts(program types.Pubkey) ([]types.AccountRef, error) {
	var refs []types.AccountRef
	prefix := makeOwnerPrefix(program)

	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			var pk types.Pubkey
			copy(pk[:], key[len(prefix):])
			acc, err := getInTxn(txn, pk)
			if err != nil {
				return err
			}
			if acc == nil {
				return fmt.Errorf("owner index references missing account %s", pk)
			}
			refs = append(refs, types.AccountRef{Pubkey: pk, Account: acc})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan program accounts: %w", err)
	}
	return refs, nil
}

// ForEachAccount iterates accounts in key order, which is pubkey order.
func (db *BadgerDB) ForEachAccount(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	prefix := []byte(accountKeyPrefix)
	return db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var pk types.Pubkey
			copy(pk[:], item.Key()[len(prefix):])
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			acc, err := DeserializeAccount(val)
			if err != nil {
				return fmt.Errorf("account %s: %w", pk, err)
			}
			if err := fn(pk, acc); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAccountsCount returns the total number of accounts.
func (db *BadgerDB) GetAccountsCount() uint64 {
	return db.count.Load()
}

// Size returns the on-disk size of the LSM tree plus the value log.
func (db *BadgerDB) Size() int64 {
	lsm, vlog := db.db.Size()
	return lsm + vlog
}

// Close closes the database.
func (db *BadgerDB) Close() error {
	return db.db.Close()
}

// countAccounts counts all accounts in the database.
func (db *BadgerDB) countAccounts() (uint64, error) {
	var count uint64
	prefix := []byte(accountKeyPrefix)

	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // Only need keys for counting
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}

// Ensure BadgerDB implements AccountsDB.
var _ AccountsDB = (*BadgerDB)(nil)

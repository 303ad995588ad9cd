package accounts

import (
	"crypto/sha256"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Helper function to create test pubkeys
func testPubkey(seed string) types.Pubkey {
	hash := sha256.Sum256([]byte(seed))
	var pk types.Pubkey
	copy(pk[:], hash[:])
	return pk
}

// Helper function to create test accounts
func testAccount(lamports types.Lamports, data []byte, owner types.Pubkey) *types.Account {
	return &types.Account{
		Lamports: lamports,
		Data:     data,
		Owner:    owner,
	}
}

// backends runs fn against every AccountsDB implementation.
func backends(t *testing.T, fn func(t *testing.T, db AccountsDB)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryDB())
	})
	t.Run("badger", func(t *testing.T) {
		db, err := NewInMemoryBadgerDB()
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		fn(t, db)
	})
}

func TestAccountsDB_SetAndGet(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		pubkey := testPubkey("test_account")
		account := testAccount(1_000_000_000, []byte("test_data"), types.SystemProgramID)

		require.NoError(t, db.SetAccount(pubkey, account))

		got, err := db.GetAccount(pubkey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, account.Lamports, got.Lamports)
		assert.Equal(t, account.Data, got.Data)
		assert.Equal(t, account.Owner, got.Owner)
		assert.True(t, db.HasAccount(pubkey))
		assert.Equal(t, uint64(1), db.GetAccountsCount())
	})
}

func TestAccountsDB_GetMissing(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		got, err := db.GetAccount(testPubkey("nonexistent"))
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.False(t, db.HasAccount(testPubkey("nonexistent")))
	})
}

func TestAccountsDB_ReturnsCopies(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		pubkey := testPubkey("copy")
		account := testAccount(5, []byte{1, 2, 3}, types.SystemProgramID)
		require.NoError(t, db.SetAccount(pubkey, account))

		account.Data[0] = 9
		got, err := db.GetAccount(pubkey)
		require.NoError(t, err)
		assert.Equal(t, byte(1), got.Data[0])

		got.Lamports = 0
		again, err := db.GetAccount(pubkey)
		require.NoError(t, err)
		assert.Equal(t, types.Lamports(5), again.Lamports)
	})
}

func TestAccountsDB_Delete(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		pubkey := testPubkey("doomed")
		require.NoError(t, db.SetAccount(pubkey, testAccount(1, nil, types.SystemProgramID)))
		require.NoError(t, db.DeleteAccount(pubkey))
		require.NoError(t, db.DeleteAccount(pubkey))

		assert.False(t, db.HasAccount(pubkey))
		assert.Equal(t, uint64(0), db.GetAccountsCount())

		refs, err := db.ProgramAccounts(types.SystemProgramID)
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

func TestAccountsDB_CommitBatch(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		a, b := testPubkey("a"), testPubkey("b")
		require.NoError(t, db.SetAccount(a, testAccount(10, nil, types.SystemProgramID)))

		err := db.Commit([]types.AccountRef{
			{Pubkey: a, Account: testAccount(3, nil, types.SystemProgramID)},
			{Pubkey: b, Account: testAccount(7, nil, types.SystemProgramID)},
		})
		require.NoError(t, err)

		gotA, _ := db.GetAccount(a)
		gotB, _ := db.GetAccount(b)
		assert.Equal(t, types.Lamports(3), gotA.Lamports)
		assert.Equal(t, types.Lamports(7), gotB.Lamports)
		assert.Equal(t, uint64(2), db.GetAccountsCount())
	})
}

func TestAccountsDB_ProgramAccounts(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		program := testPubkey("program")
		owned := []types.Pubkey{testPubkey("r1"), testPubkey("r2"), testPubkey("r3")}
		for _, pk := range owned {
			require.NoError(t, db.SetAccount(pk, testAccount(100, []byte("agent"), program)))
		}
		require.NoError(t, db.SetAccount(testPubkey("wallet"), testAccount(100, nil, types.SystemProgramID)))

		refs, err := db.ProgramAccounts(program)
		require.NoError(t, err)
		require.Len(t, refs, 3)
		for i := 1; i < len(refs); i++ {
			assert.Less(t, string(refs[i-1].Pubkey[:]), string(refs[i].Pubkey[:]))
		}

		// Reassigning ownership moves the account between scans.
		require.NoError(t, db.SetAccount(owned[0], testAccount(100, nil, types.SystemProgramID)))
		refs, err = db.ProgramAccounts(program)
		require.NoError(t, err)
		assert.Len(t, refs, 2)

		sys, err := db.ProgramAccounts(types.SystemProgramID)
		require.NoError(t, err)
		assert.Len(t, sys, 2)
	})
}

func TestAccountsDB_ForEachStops(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		for _, s := range []string{"x", "y", "z"} {
			require.NoError(t, db.SetAccount(testPubkey(s), testAccount(1, nil, types.SystemProgramID)))
		}
		stop := errors.New("stop")
		visited := 0
		err := db.ForEachAccount(func(types.Pubkey, *types.Account) error {
			visited++
			if visited == 2 {
				return stop
			}
			return nil
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 2, visited)
	})
}

func TestAccountsDB_ConcurrentCommits(t *testing.T) {
	backends(t, func(t *testing.T, db AccountsDB) {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				pk := testPubkey(string(rune('a' + i)))
				assert.NoError(t, db.SetAccount(pk, testAccount(types.Lamports(i), nil, types.SystemProgramID)))
			}(i)
		}
		wg.Wait()
		assert.Equal(t, uint64(16), db.GetAccountsCount())
	})
}

func TestBadgerDB_Persistence(t *testing.T) {
	dir := t.TempDir()
	pubkey := testPubkey("persisted")
	program := testPubkey("program")

	db, err := NewBadgerDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.SetAccount(pubkey, testAccount(42, []byte("record"), program)))
	require.NoError(t, db.Close())

	db, err = NewBadgerDB(dir)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, uint64(1), db.GetAccountsCount())
	got, err := db.GetAccount(pubkey)
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), got.Data)

	refs, err := db.ProgramAccounts(program)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestSerializeAccount_RoundTrip(t *testing.T) {
	account := &types.Account{
		Lamports:   123,
		Data:       []byte{1, 2, 3, 4},
		Owner:      testPubkey("owner"),
		Executable: true,
		RentEpoch:  9,
	}
	raw, err := SerializeAccount(account)
	require.NoError(t, err)

	back, err := DeserializeAccount(raw)
	require.NoError(t, err)
	assert.Equal(t, account, back)

	_, err = DeserializeAccount(raw[:len(raw)-1])
	assert.ErrorIs(t, err, ErrInvalidAccountData)
	_, err = DeserializeAccount(append(raw, 0))
	assert.ErrorIs(t, err, ErrInvalidAccountData)
	_, err = SerializeAccount(nil)
	assert.Error(t, err)

	raw[0] = 2
	_, err = DeserializeAccount(raw)
	assert.ErrorIs(t, err, ErrInvalidAccountData)

	empty, err := SerializeAccount(types.NewAccount(7, types.SystemProgramID))
	require.NoError(t, err)
	assert.Len(t, empty, accountHeaderSize)
	back, err = DeserializeAccount(empty)
	require.NoError(t, err)
	assert.Empty(t, back.Data)
}

func TestAccountsHash_MatchesComputed(t *testing.T) {
	db := NewMemoryDB()
	var refs []types.AccountRef
	for i := 0; i < 40; i++ {
		pk := testPubkey(string(rune('A' + i)))
		acc := testAccount(types.Lamports(i+1), []byte{byte(i)}, types.SystemProgramID)
		require.NoError(t, db.SetAccount(pk, acc))
		refs = append(refs, types.AccountRef{Pubkey: pk, Account: acc})
	}

	root, err := AccountsHash(db)
	require.NoError(t, err)
	assert.Equal(t, ComputeAccountsHash(refs), root)
	assert.False(t, root.IsZero())

	require.NoError(t, db.SetAccount(refs[0].Pubkey, testAccount(999, nil, types.SystemProgramID)))
	changed, err := AccountsHash(db)
	require.NoError(t, err)
	assert.NotEqual(t, root, changed)

	assert.Equal(t, types.ZeroHash, ComputeAccountsHash(nil))
}

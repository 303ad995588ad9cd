package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-agentmarket/pkg/accounts"
	"github.com/fortiblox/x1-agentmarket/pkg/ledger"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

func pubkey(b byte) types.Pubkey {
	var pk types.Pubkey
	pk[0] = b
	pk[31] = b
	return pk
}

func seededDB(t *testing.T) *accounts.MemoryDB {
	t.Helper()
	db := accounts.NewMemoryDB()
	require.NoError(t, db.SetAccount(pubkey(1), types.NewAccount(1_000, types.SystemProgramID)))
	require.NoError(t, db.SetAccount(pubkey(2), types.NewAccountWithData(2_000, []byte("agent record"), types.AgentMarketProgramID)))
	exec := types.NewAccount(1, types.SystemProgramID)
	exec.Executable = true
	require.NoError(t, db.SetAccount(pubkey(3), exec))
	return db
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src := seededDB(t)
	path := filepath.Join(t.TempDir(), "snapshots", "latest.snapshot")
	state := State{Slot: 77, Blockhash: types.SHA256([]byte("blockhash"))}

	saved, err := Save(path, src, state, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, saved.Version)
	assert.Equal(t, uint64(3), saved.AccountsCount)
	assert.Equal(t, uint64(3_001), saved.LamportsTotal)

	wantHash, err := accounts.AccountsHash(src)
	require.NoError(t, err)
	assert.Equal(t, wantHash, saved.AccountsHash)

	m, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, saved.Slot, m.Slot)
	assert.Equal(t, state.Blockhash, m.Blockhash)
	assert.Equal(t, saved.AccountsHash, m.AccountsHash)

	dst := accounts.NewMemoryDB()
	loaded, err := Load(path, dst, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, types.Slot(77), loaded.Slot)
	assert.Equal(t, uint64(3), dst.GetAccountsCount())

	gotHash, err := accounts.AccountsHash(dst)
	require.NoError(t, err)
	assert.Equal(t, wantHash, gotHash)

	acc, err := dst.GetAccount(pubkey(2))
	require.NoError(t, err)
	assert.Equal(t, []byte("agent record"), acc.Data)
	assert.Equal(t, types.AgentMarketProgramID, acc.Owner)

	acc, err = dst.GetAccount(pubkey(3))
	require.NoError(t, err)
	assert.True(t, acc.Executable)
}

func TestSaveEmptyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.snapshot")
	m, err := Save(path, accounts.NewMemoryDB(), State{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m.AccountsCount)

	dst := accounts.NewMemoryDB()
	_, err = Load(path, dst, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), dst.GetAccountsCount())
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.snapshot")
	db := seededDB(t)
	_, err := Save(path, db, State{Slot: 1}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, db.SetAccount(pubkey(4), types.NewAccount(5, types.SystemProgramID)))
	_, err = Save(path, db, State{Slot: 2}, zerolog.Nop())
	require.NoError(t, err)

	m, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, types.Slot(2), m.Slot)
	assert.Equal(t, uint64(4), m.AccountsCount)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestLoadRequiresEmptyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.snapshot")
	_, err := Save(path, seededDB(t), State{}, zerolog.Nop())
	require.NoError(t, err)

	_, err = Load(path, seededDB(t), zerolog.Nop())
	assert.ErrorIs(t, err, ErrDatabaseNotEmpty)
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.snapshot")
	m, err := Save(good, seededDB(t), State{Slot: 5}, zerolog.Nop())
	require.NoError(t, err)

	_, err = Verify(good)
	require.NoError(t, err)

	// Rewrite the archive with a manifest that lies about the state.
	m.AccountsHash = types.SHA256([]byte("forged"))
	bad := filepath.Join(dir, "bad.snapshot")
	db := seededDB(t)
	_, err = Save(bad, db, State{Slot: 5}, zerolog.Nop())
	require.NoError(t, err)
	forgeManifest(t, bad, m)

	_, err = Verify(bad)
	assert.ErrorIs(t, err, ErrHashMismatch)

	dst := accounts.NewMemoryDB()
	_, err = Load(bad, dst, zerolog.Nop())
	assert.ErrorIs(t, err, ErrHashMismatch)
	assert.Equal(t, uint64(0), dst.GetAccountsCount(), "nothing is written on mismatch")
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.snapshot")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o644))

	_, err := Load(path, accounts.NewMemoryDB(), zerolog.Nop())
	assert.Error(t, err)

	_, err = ReadManifest(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	assert.False(t, Exists(filepath.Join(t.TempDir(), "missing")))
	assert.True(t, Exists(path))
}

func TestLedgerResumesFromSnapshot(t *testing.T) {
	newLedger := func(db accounts.AccountsDB, start types.Slot) *ledger.Ledger {
		registry := ledger.NewProgramRegistry()
		ledger.RegisterNativePrograms(registry, agentmarket.New(agentmarket.DefaultConfig()))
		opts := ledger.DefaultOptions()
		opts.StartSlot = start
		l, err := ledger.New(db, registry, opts)
		require.NoError(t, err)
		return l
	}

	src, err := accounts.NewInMemoryBadgerDB()
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.SetAccount(pubkey(9), types.NewAccount(10*types.LamportsPerSOL, types.SystemProgramID)))

	l := newLedger(src, 0)
	for i := 0; i < 3; i++ {
		l.AdvanceSlot()
	}
	blockhash, _ := l.LatestBlockhash()
	l.Close()

	path := filepath.Join(t.TempDir(), "latest.snapshot")
	_, err = Save(path, src, State{Slot: l.Slot(), Blockhash: blockhash}, zerolog.Nop())
	require.NoError(t, err)

	dst, err := accounts.NewInMemoryBadgerDB()
	require.NoError(t, err)
	defer dst.Close()
	m, err := Load(path, dst, zerolog.Nop())
	require.NoError(t, err)

	resumed := newLedger(dst, m.Slot)
	assert.Equal(t, types.Slot(3), resumed.Slot())
	bal, err := resumed.GetBalance(pubkey(9))
	require.NoError(t, err)
	assert.Equal(t, types.Lamports(10*types.LamportsPerSOL), bal)

	info := resumed.AdvanceSlot()
	assert.Equal(t, types.Slot(3), info.Slot)
	assert.Equal(t, types.Slot(4), resumed.Slot())
}

// Package ledger is the host runtime the marketplace program executes in.
// It owns account storage, verifies signatures, locks the accounts each
// transaction touches, runs instructions against a private working set and
// commits the result atomically.
package ledger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/fortiblox/x1-agentmarket/pkg/accounts"
	"github.com/fortiblox/x1-agentmarket/pkg/crypto"
	"github.com/fortiblox/x1-agentmarket/pkg/poh"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/runtime"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Recorder receives execution events, typically to export them as metrics.
type Recorder interface {
	ObserveTransaction(result *types.TransactionResult, elapsed time.Duration)
	ObserveRejection(err error)
	ObserveSlot(slot types.Slot, accounts uint64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransaction(*types.TransactionResult, time.Duration) {}
func (nopRecorder) ObserveRejection(error)                                      {}
func (nopRecorder) ObserveSlot(types.Slot, uint64)                              {}

// Options configures a Ledger.
type Options struct {
	// FeePerSignature is charged to the fee payer of every successful
	// transaction, plus any priority fee it requested.
	FeePerSignature types.Lamports

	// VerifySignatures can be disabled for replaying trusted input.
	VerifySignatures bool

	// StatusCacheSize bounds how many transaction results are remembered for
	// duplicate detection and status queries.
	StatusCacheSize int

	// ComputeUnitLimit is the compute budget of one transaction. A
	// SetComputeUnitLimit instruction may lower it, never raise it.
	ComputeUnitLimit types.ComputeUnits

	// MaxAccountDataSize bounds the data any single account may hold.
	MaxAccountDataSize uint64

	Rent types.Rent

	// SlotDuration is how often Run seals the open slot.
	SlotDuration time.Duration

	// HashesPerTick is the length of the PoH tick that seals each slot.
	HashesPerTick uint64

	// StartSlot is the first open slot, used when resuming from a snapshot.
	StartSlot types.Slot

	// Faucet signs airdrops. Nil disables the faucet.
	Faucet *crypto.Keypair

	// FaucetLamports funds the faucet account when it does not exist yet.
	FaucetLamports types.Lamports

	// MaxAirdrop caps a single airdrop. Zero means no cap.
	MaxAirdrop types.Lamports

	Recorder Recorder
	Logger   zerolog.Logger
}

// DefaultOptions returns options matching a local test validator.
func DefaultOptions() Options {
	return Options{
		FeePerSignature:    5000,
		VerifySignatures:   true,
		StatusCacheSize:    100_000,
		ComputeUnitLimit:   types.MaxComputeUnitsPerTransaction,
		MaxAccountDataSize: runtime.MaxAccountDataSize,
		Rent:               types.DefaultRent(),
		SlotDuration:       400 * time.Millisecond,
		HashesPerTick:      poh.DefaultHashesPerTick,
		FaucetLamports:     500_000_000 * types.LamportsPerSOL,
		MaxAirdrop:         10 * types.LamportsPerSOL,
		Logger:             zerolog.Nop(),
	}
}

// Ledger executes transactions against an AccountsDB.
type Ledger struct {
	db       accounts.AccountsDB
	programs *ProgramRegistry
	opts     Options
	log      zerolog.Logger
	recorder Recorder

	locks  *accountLocks
	bank   *bank
	status *lru.Cache[types.Signature, *types.TransactionResult]

	airdrops atomic.Uint64
	closed   atomic.Bool
}

// New creates a ledger over db that dispatches to programs. When a faucet is
// configured and its account does not exist, it is funded here.
func New(db accounts.AccountsDB, programs *ProgramRegistry, opts Options) (*Ledger, error) {
	if opts.StatusCacheSize <= 0 {
		opts.StatusCacheSize = DefaultOptions().StatusCacheSize
	}
	if opts.ComputeUnitLimit == 0 {
		opts.ComputeUnitLimit = types.MaxComputeUnitsPerTransaction
	}
	if opts.MaxAccountDataSize == 0 {
		opts.MaxAccountDataSize = runtime.MaxAccountDataSize
	}
	if opts.Rent == (types.Rent{}) {
		opts.Rent = types.DefaultRent()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	status, err := lru.New[types.Signature, *types.TransactionResult](opts.StatusCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create status cache: %w", err)
	}

	if opts.Faucet != nil && !db.HasAccount(opts.Faucet.Pubkey()) {
		faucet := types.NewAccount(opts.FaucetLamports, types.SystemProgramID)
		if err := db.SetAccount(opts.Faucet.Pubkey(), faucet); err != nil {
			return nil, fmt.Errorf("failed to fund faucet: %w", err)
		}
	}

	stateHash, err := accounts.AccountsHash(db)
	if err != nil {
		return nil, fmt.Errorf("failed to hash accounts: %w", err)
	}

	l := &Ledger{
		db:       db,
		programs: programs,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "ledger").Logger(),
		recorder: opts.Recorder,
		locks:    newAccountLocks(),
		bank:     newBank(types.SHA256Multi([]byte("agentmarket genesis"), stateHash[:]), opts.StartSlot, opts.HashesPerTick),
		status:   status,
	}
	l.log.Info().
		Uint64("slot", uint64(opts.StartSlot)).
		Uint64("accounts", db.GetAccountsCount()).
		Str("accounts_hash", stateHash.String()).
		Int("programs", programs.Count()).
		Msg("ledger opened")
	return l, nil
}

// Run seals a slot every SlotDuration until ctx is cancelled.
func (l *Ledger) Run(ctx context.Context) error {
	if l.opts.SlotDuration <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(l.opts.SlotDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.AdvanceSlot()
		}
	}
}

// AdvanceSlot seals the open slot and returns its summary.
func (l *Ledger) AdvanceSlot() SlotInfo {
	info := l.bank.seal()
	l.recorder.ObserveSlot(info.Slot+1, l.db.GetAccountsCount())
	if info.Transactions > 0 {
		l.log.Debug().
			Uint64("slot", uint64(info.Slot)).
			Int("transactions", info.Transactions).
			Uint64("signatures", info.SignatureCount).
			Str("bank_hash", info.BankHash.String()).
			Msg("slot sealed")
	}
	return info
}

// Close stops the ledger from accepting transactions. The AccountsDB stays
// open; its owner closes it.
func (l *Ledger) Close() {
	l.closed.Store(true)
}

// Closed reports whether Close has been called.
func (l *Ledger) Closed() bool {
	return l.closed.Load()
}

// Programs returns the program registry.
func (l *Ledger) Programs() *ProgramRegistry {
	return l.programs
}

// DB returns the underlying account store.
func (l *Ledger) DB() accounts.AccountsDB {
	return l.db
}

// GetAccount returns the committed state of pubkey, or nil if it does not exist.
func (l *Ledger) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	return l.db.GetAccount(pubkey)
}

// GetBalance returns the lamports held by pubkey.
func (l *Ledger) GetBalance(pubkey types.Pubkey) (types.Lamports, error) {
	acc, err := l.db.GetAccount(pubkey)
	if err != nil || acc == nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// ProgramAccounts returns every account owned by program.
func (l *Ledger) ProgramAccounts(program types.Pubkey) ([]types.AccountRef, error) {
	return l.db.ProgramAccounts(program)
}

// AccountsCount returns the number of stored accounts.
func (l *Ledger) AccountsCount() uint64 {
	return l.db.GetAccountsCount()
}

// Slot returns the open slot.
func (l *Ledger) Slot() types.Slot {
	slot, _ := l.bank.current()
	return slot
}

// LatestBlockhash returns the newest blockhash and the last slot a
// transaction referencing it can land in.
func (l *Ledger) LatestBlockhash() (types.Hash, types.Slot) {
	_, hash := l.bank.current()
	last, _ := l.bank.lastValidSlot(hash)
	return hash, last
}

// IsBlockhashValid reports whether hash is recent enough to be referenced.
func (l *Ledger) IsBlockhashValid(hash types.Hash) bool {
	_, ok := l.bank.lastValidSlot(hash)
	return ok
}

// SignatureStatus returns the remembered result of a transaction.
func (l *Ledger) SignatureStatus(sig types.Signature) (*types.TransactionResult, bool) {
	return l.status.Get(sig)
}

// MinimumBalanceForRentExemption returns the reserve an account of dataLen
// bytes must hold.
func (l *Ledger) MinimumBalanceForRentExemption(dataLen uint64) types.Lamports {
	return l.opts.Rent.MinimumBalance(dataLen)
}

// FeePerSignature returns the fee charged per transaction signature.
func (l *Ledger) FeePerSignature() types.Lamports {
	return l.opts.FeePerSignature
}

// FaucetEnabled reports whether Airdrop can be used.
func (l *Ledger) FaucetEnabled() bool {
	return l.opts.Faucet != nil
}

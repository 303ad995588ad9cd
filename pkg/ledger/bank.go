package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/fortiblox/x1-agentmarket/pkg/accounts"
	"github.com/fortiblox/x1-agentmarket/pkg/poh"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// MaxRecentBlockhashes is how many slots a blockhash stays valid for.
const MaxRecentBlockhashes = 150

// ComputeBankHash computes the hash that seals a slot.
//
// Formula: SHA256(parent_bankhash || accounts_delta_hash || signature_count_le || blockhash)
func ComputeBankHash(parentBankHash, accountsDeltaHash types.Hash, signatureCount uint64, blockhash types.Hash) types.Hash {
	h := sha256.New()
	h.Write(parentBankHash[:])
	h.Write(accountsDeltaHash[:])

	var sigCountBuf [8]byte
	binary.LittleEndian.PutUint64(sigCountBuf[:], signatureCount)
	h.Write(sigCountBuf[:])

	h.Write(blockhash[:])

	var result types.Hash
	copy(result[:], h.Sum(nil))
	return result
}

// SlotInfo summarises a sealed slot.
type SlotInfo struct {
	Slot           types.Slot
	Blockhash      types.Hash
	BankHash       types.Hash
	SignatureCount uint64
	Transactions   int

	// Entries is the slot's PoH chain, starting from Blockhash and ending
	// with the tick that produced the next slot's blockhash.
	Entries []poh.Entry
}

// bank tracks the open slot: the account changes and signatures that land in
// it, and the window of recent blockhashes transactions may reference.
type bank struct {
	mu sync.RWMutex

	slot           types.Slot
	blockhash      types.Hash
	parentBankHash types.Hash

	poh            *poh.Recorder
	deltas         map[types.Pubkey]*types.Account
	signatureCount uint64
	transactions   int

	// recent maps a blockhash to the slot it was produced in.
	recent map[types.Hash]types.Slot
	order  []types.Hash
}

func newBank(genesis types.Hash, start types.Slot, hashesPerTick uint64) *bank {
	b := &bank{
		slot:      start,
		blockhash: genesis,
		poh:       poh.NewRecorder(genesis, hashesPerTick),
		deltas:    make(map[types.Pubkey]*types.Account),
		recent:    make(map[types.Hash]types.Slot),
	}
	b.remember(genesis, start)
	return b
}

func (b *bank) remember(hash types.Hash, slot types.Slot) {
	b.recent[hash] = slot
	b.order = append(b.order, hash)
	for len(b.order) > MaxRecentBlockhashes {
		delete(b.recent, b.order[0])
		b.order = b.order[1:]
	}
}

// record adds a processed transaction to the open slot and returns the slot.
func (b *bank) record(id types.Signature, signatures int, changed []types.AccountRef) types.Slot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.poh.Record(id)
	b.signatureCount += uint64(signatures)
	b.transactions++
	for _, ref := range changed {
		b.deltas[ref.Pubkey] = ref.Account.Clone()
	}
	return b.slot
}

// seal closes the open slot and opens the next one.
func (b *bank) seal() SlotInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	refs := make([]types.AccountRef, 0, len(b.deltas))
	for pk, acc := range b.deltas {
		refs = append(refs, types.AccountRef{Pubkey: pk, Account: acc})
	}
	bankHash := ComputeBankHash(b.parentBankHash, accounts.ComputeAccountsHash(refs), b.signatureCount, b.blockhash)
	info := SlotInfo{
		Slot:           b.slot,
		Blockhash:      b.blockhash,
		BankHash:       bankHash,
		SignatureCount: b.signatureCount,
		Transactions:   b.transactions,
		Entries:        b.poh.Tick(),
	}

	b.slot++
	b.parentBankHash = bankHash
	b.blockhash = b.poh.Hash()
	b.remember(b.blockhash, b.slot)
	b.deltas = make(map[types.Pubkey]*types.Account)
	b.signatureCount = 0
	b.transactions = 0
	return info
}

func (b *bank) current() (types.Slot, types.Hash) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slot, b.blockhash
}

// lastValidSlot returns the last slot a transaction using hash can land in.
func (b *bank) lastValidSlot(hash types.Hash) (types.Slot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	slot, ok := b.recent[hash]
	return slot + MaxRecentBlockhashes, ok
}

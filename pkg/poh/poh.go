// Package poh maintains the ledger's Proof of History chain.
//
// Every processed transaction is mixed into a running SHA256 chain and each
// sealed slot ends with a tick. The hash after the tick becomes the next
// slot's blockhash, so a blockhash commits to everything recorded before it.
package poh

import (
	"fmt"
	"sync"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// DefaultHashesPerTick is the number of hash iterations in a slot's tick.
const DefaultHashesPerTick = 64

// Recorder appends entries to the chain. It is safe for concurrent use.
type Recorder struct {
	mu            sync.Mutex
	hash          types.Hash
	hashesPerTick uint64
	entries       []Entry
}

// NewRecorder starts a chain at start.
func NewRecorder(start types.Hash, hashesPerTick uint64) *Recorder {
	if hashesPerTick == 0 {
		hashesPerTick = DefaultHashesPerTick
	}
	return &Recorder{hash: start, hashesPerTick: hashesPerTick}
}

// Record mixes transaction IDs into the chain.
func (r *Recorder) Record(signatures ...types.Signature) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.append(1, signatures)
}

// Tick ends the current slot's entries, returning them with the tick last.
func (r *Recorder) Tick() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.append(r.hashesPerTick, nil)
	entries := r.entries
	r.entries = nil
	return entries
}

func (r *Recorder) append(numHashes uint64, signatures []types.Signature) Entry {
	sigs := append([]types.Signature(nil), signatures...)
	e := Entry{NumHashes: numHashes, Hash: ComputeEntryHash(r.hash, numHashes, sigs), Signatures: sigs}
	r.hash = e.Hash
	r.entries = append(r.entries, e)
	return e
}

// Hash returns the hash of the latest entry.
func (r *Recorder) Hash() types.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hash
}

// Verifier replays entries and checks each hash.
type Verifier struct {
	currentHash types.Hash
	tickCount   uint64
}

// NewVerifier creates a verifier starting from the given hash, usually the
// blockhash of the slot the entries belong to.
func NewVerifier(initialHash types.Hash) *Verifier {
	return &Verifier{currentHash: initialHash}
}

// VerifyEntry checks entry against the current state and advances to it.
func (v *Verifier) VerifyEntry(entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}
	if entry.NumHashes == 0 {
		return ErrInvalidNumHashes
	}

	expected := ComputeEntryHash(v.currentHash, entry.NumHashes, entry.Signatures)
	if entry.Hash != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, expected, entry.Hash)
	}

	v.currentHash = entry.Hash
	if entry.IsTick() {
		v.tickCount++
	}
	return nil
}

// VerifyEntries verifies a continuous run of entries. On failure the
// verifier stays at the last good entry.
func (v *Verifier) VerifyEntries(entries []Entry) error {
	for i := range entries {
		if err := v.VerifyEntry(&entries[i]); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// Reset restarts verification from hash.
func (v *Verifier) Reset(hash types.Hash) {
	v.currentHash = hash
	v.tickCount = 0
}

// CurrentHash returns the hash of the last verified entry.
func (v *Verifier) CurrentHash() types.Hash {
	return v.currentHash
}

// TickCount returns the number of ticks verified since creation or reset.
func (v *Verifier) TickCount() uint64 {
	return v.tickCount
}

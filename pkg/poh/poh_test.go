package poh

import (
	"crypto/sha256"
	"errors"
	"sync"
	"testing"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

func hashFromBytes(data []byte) types.Hash {
	return types.Hash(sha256.Sum256(data))
}

func leafHash(b byte) types.Hash {
	s := sig(b)
	return sha256.Sum256(s[:])
}

func sig(b byte) types.Signature {
	var s types.Signature
	s[0] = b
	s[63] = b
	return s
}

func TestNewVerifier(t *testing.T) {
	initialHash := hashFromBytes([]byte("genesis"))
	v := NewVerifier(initialHash)

	if v.CurrentHash() != initialHash {
		t.Errorf("expected initial hash %s, got %s", initialHash, v.CurrentHash())
	}
	if v.TickCount() != 0 {
		t.Errorf("expected tick count 0, got %d", v.TickCount())
	}
}

func TestComputeEntryHash_Tick(t *testing.T) {
	prev := hashFromBytes([]byte("genesis"))

	want := prev
	for i := 0; i < 3; i++ {
		want = sha256.Sum256(want[:])
	}
	if got := ComputeEntryHash(prev, 3, nil); got != want {
		t.Errorf("tick hash: expected %s, got %s", want, got)
	}
	if got := ComputeEntryHash(prev, 0, nil); got != prev {
		t.Errorf("zero hashes should return the previous hash")
	}
}

func TestComputeEntryHash_MixesSignatures(t *testing.T) {
	prev := hashFromBytes([]byte("genesis"))

	tick := ComputeEntryHash(prev, 1, nil)
	one := ComputeEntryHash(prev, 1, []types.Signature{sig(1)})
	two := ComputeEntryHash(prev, 1, []types.Signature{sig(2)})
	if one == tick || one == two {
		t.Error("signatures must change the entry hash")
	}

	leaf := leafHash(1)
	if want := types.SHA256Multi(prev[:], leaf[:]); one != want {
		t.Errorf("single signature entry: expected %s, got %s", want, one)
	}
}

func TestSignatureMerkleRoot(t *testing.T) {
	a, b, c := leafHash(1), leafHash(2), leafHash(3)
	ab := types.SHA256Multi(a[:], b[:])

	if got := signatureMerkleRoot(nil); got != types.ZeroHash {
		t.Errorf("empty root: expected zero hash, got %s", got)
	}
	if got := signatureMerkleRoot([]types.Signature{sig(1), sig(2)}); got != ab {
		t.Errorf("pair root: expected %s, got %s", ab, got)
	}
	// The odd leaf is promoted, then hashed with the pair.
	want := types.SHA256Multi(ab[:], c[:])
	if got := signatureMerkleRoot([]types.Signature{sig(1), sig(2), sig(3)}); got != want {
		t.Errorf("odd root: expected %s, got %s", want, got)
	}
}

func TestVerifyEntry_Errors(t *testing.T) {
	v := NewVerifier(hashFromBytes([]byte("genesis")))

	if err := v.VerifyEntry(nil); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
	if err := v.VerifyEntry(&Entry{NumHashes: 0}); !errors.Is(err, ErrInvalidNumHashes) {
		t.Errorf("expected ErrInvalidNumHashes, got %v", err)
	}
	if err := v.VerifyEntry(&Entry{NumHashes: 5, Hash: types.ZeroHash}); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch, got %v", err)
	}
}

func TestRecorderEntriesVerify(t *testing.T) {
	start := hashFromBytes([]byte("genesis"))
	r := NewRecorder(start, 8)

	r.Record(sig(1))
	r.Record(sig(2), sig(3))
	slot1 := r.Tick()
	slot2 := r.Tick()

	if len(slot1) != 3 || !slot1[2].IsTick() || slot1[0].IsTick() {
		t.Fatalf("unexpected first slot entries: %+v", slot1)
	}
	if len(slot2) != 1 || slot2[0].NumHashes != 8 {
		t.Fatalf("unexpected second slot entries: %+v", slot2)
	}

	v := NewVerifier(start)
	if err := v.VerifyEntries(slot1); err != nil {
		t.Fatalf("first slot: %v", err)
	}
	if err := v.VerifyEntries(slot2); err != nil {
		t.Fatalf("second slot: %v", err)
	}
	if v.CurrentHash() != r.Hash() {
		t.Errorf("expected verifier at %s, got %s", r.Hash(), v.CurrentHash())
	}
	if v.TickCount() != 2 {
		t.Errorf("expected 2 ticks, got %d", v.TickCount())
	}
}

func TestVerifyEntries_StopsAtTamperedEntry(t *testing.T) {
	start := hashFromBytes([]byte("genesis"))
	r := NewRecorder(start, 4)
	r.Record(sig(1))
	r.Record(sig(2))
	entries := r.Tick()
	entries[1].Signatures = []types.Signature{sig(9)}

	v := NewVerifier(start)
	err := v.VerifyEntries(entries)
	if !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
	if v.CurrentHash() != entries[0].Hash {
		t.Error("verifier should stay at the last good entry")
	}

	v.Reset(start)
	if v.CurrentHash() != start || v.TickCount() != 0 {
		t.Error("reset did not restore the start state")
	}
}

func TestRecorderConcurrentRecord(t *testing.T) {
	start := hashFromBytes([]byte("genesis"))
	r := NewRecorder(start, 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			r.Record(sig(b))
		}(byte(i))
	}
	wg.Wait()

	entries := r.Tick()
	if len(entries) != 17 {
		t.Fatalf("expected 17 entries, got %d", len(entries))
	}
	if entries[16].NumHashes != DefaultHashesPerTick {
		t.Errorf("expected default tick length, got %d", entries[16].NumHashes)
	}
	if err := NewVerifier(start).VerifyEntries(entries); err != nil {
		t.Errorf("concurrently recorded chain does not verify: %v", err)
	}
}

func BenchmarkComputeEntryHash_Tick(b *testing.B) {
	prev := hashFromBytes([]byte("genesis"))
	for i := 0; i < b.N; i++ {
		prev = ComputeEntryHash(prev, DefaultHashesPerTick, nil)
	}
}

func BenchmarkRecord(b *testing.B) {
	r := NewRecorder(hashFromBytes([]byte("genesis")), 0)
	for i := 0; i < b.N; i++ {
		r.Record(sig(byte(i)))
		if i%64 == 63 {
			r.Tick()
		}
	}
}

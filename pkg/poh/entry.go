package poh

import (
	"crypto/sha256"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Entry is one link of the hash chain. A tick carries no signatures; a
// transaction entry mixes in the IDs of the transactions it records.
type Entry struct {
	NumHashes  uint64
	Hash       types.Hash
	Signatures []types.Signature
}

// IsTick reports whether the entry records no transactions.
func (e *Entry) IsTick() bool {
	return len(e.Signatures) == 0
}

// ComputeEntryHash computes the hash of an entry given the previous hash,
// the number of hash iterations, and the transaction IDs it records.
//
// For ticks: hash = SHA256^numHashes(prevHash)
// Otherwise: hash = SHA256(prevHash || merkle_root), then iterate numHashes-1 times
func ComputeEntryHash(prevHash types.Hash, numHashes uint64, signatures []types.Signature) types.Hash {
	if numHashes == 0 {
		return prevHash
	}

	hash := prevHash
	start := uint64(0)
	if len(signatures) > 0 {
		root := signatureMerkleRoot(signatures)
		hash = types.SHA256Multi(prevHash[:], root[:])
		start = 1
	}
	for i := start; i < numHashes; i++ {
		hash = sha256.Sum256(hash[:])
	}
	return hash
}

// signatureMerkleRoot builds a merkle tree over SHA256(signature) leaves. An
// odd node is promoted to the next level unchanged.
func signatureMerkleRoot(signatures []types.Signature) types.Hash {
	if len(signatures) == 0 {
		return types.ZeroHash
	}
	level := make([]types.Hash, len(signatures))
	for i := range signatures {
		level[i] = sha256.Sum256(signatures[i][:])
	}
	for len(level) > 1 {
		next := make([]types.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next[i/2] = types.SHA256Multi(level[i][:], level[i+1][:])
			} else {
				next[i/2] = level[i]
			}
		}
		level = next
	}
	return level[0]
}

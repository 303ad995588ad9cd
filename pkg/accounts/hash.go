package accounts

import (
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

const (
	// merkleArity is the number of children per node in the Merkle tree.
	merkleArity = 16
)

// AccountsHash walks db and returns the 16-ary Merkle root over every
// account hash, in pubkey order. Snapshots record it so a restored ledger
// can prove it holds the same state.
func AccountsHash(db AccountsDB) (types.Hash, error) {
	var hashes []types.Hash
	err := db.ForEachAccount(func(pubkey types.Pubkey, account *types.Account) error {
		hashes = append(hashes, account.Hash(pubkey))
		return nil
	})
	if err != nil {
		return types.ZeroHash, err
	}
	return computeMerkleRoot(hashes), nil
}

// ComputeAccountsHash computes the same root as AccountsHash over an
// in-memory set of accounts. The input is not modified.
func ComputeAccountsHash(accounts []types.AccountRef) types.Hash {
	if len(accounts) == 0 {
		return types.ZeroHash
	}

	sorted := make([]types.AccountRef, len(accounts))
	copy(sorted, accounts)
	sortRefs(sorted)

	hashes := make([]types.Hash, len(sorted))
	for i, ref := range sorted {
		hashes[i] = ref.Account.Hash(ref.Pubkey)
	}
	return computeMerkleRoot(hashes)
}

func computeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.ZeroHash
	}
	for len(hashes) > 1 {
		hashes = computeNextLevel(hashes)
	}
	return hashes[0]
}

func computeNextLevel(hashes []types.Hash) []types.Hash {
	numParents := (len(hashes) + merkleArity - 1) / merkleArity
	parents := make([]types.Hash, numParents)

	for i := 0; i < numParents; i++ {
		start := i * merkleArity
		end := start + merkleArity
		if end > len(hashes) {
			end = len(hashes)
		}
		parents[i] = hashChildren(hashes[start:end])
	}
	return parents
}

func hashChildren(children []types.Hash) types.Hash {
	if len(children) == 1 {
		return children[0]
	}
	data := make([]byte, 0, len(children)*32)
	for _, child := range children {
		data = append(data, child[:]...)
	}
	return types.SHA256(data)
}

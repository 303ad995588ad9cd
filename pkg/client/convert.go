package client

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/x1-agentmarket/pkg/crypto"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// PublicKey converts a ledger pubkey to its solana-go form.
func PublicKey(pk types.Pubkey) solana.PublicKey {
	return solana.PublicKeyFromBytes(pk[:])
}

// Pubkey converts a solana-go public key to the ledger form.
func Pubkey(pk solana.PublicKey) types.Pubkey {
	return types.Pubkey(pk)
}

// PrivateKey converts a keypair to a solana-go private key.
func PrivateKey(kp *crypto.Keypair) solana.PrivateKey {
	return solana.PrivateKey(kp.Bytes())
}

// Keypair converts a solana-go private key to a ledger keypair.
func Keypair(pk solana.PrivateKey) (*crypto.Keypair, error) {
	kp, err := crypto.KeypairFromBytes(pk)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return kp, nil
}

// LoadPrivateKey reads a Solana CLI key file.
func LoadPrivateKey(path string) (solana.PrivateKey, error) {
	kp, err := crypto.LoadKeypairFile(path)
	if err != nil {
		return nil, err
	}
	return PrivateKey(kp), nil
}

package client

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// BuildTransaction assembles and signs a legacy transaction paid by payer.
// Every signer the instructions require must be in signers or be the payer.
func BuildTransaction(ixs []solana.Instruction, blockhash solana.Hash, payer solana.PrivateKey, signers ...solana.PrivateKey) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	keys := append([]solana.PrivateKey{payer}, signers...)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(key) {
				return &keys[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// ToLedgerTransaction re-decodes a solana-go transaction in the ledger's wire
// format, for submitting straight to an in-process ledger.
func ToLedgerTransaction(tx *solana.Transaction) (*types.Transaction, error) {
	wire, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return types.DeserializeTransaction(wire)
}

// Package crypto provides Ed25519 keypairs and transaction signature
// verification for the agent marketplace ledger.
//
// Example usage:
//
//	kp, _ := crypto.GenerateKeypair()
//	_ = crypto.SignTransaction(tx, kp)
//	err := crypto.VerifyTransaction(tx)
package crypto

import (
	"errors"
	"strconv"
)

// Ed25519 sizes in bytes. A private key is the seed followed by the public key.
const (
	PublicKeySize  = 32
	SignatureSize  = 64
	PrivateKeySize = 64
	SeedSize       = 32
)

var (
	ErrInvalidPublicKey  = errors.New("crypto: invalid public key")
	ErrInvalidSignature  = errors.New("crypto: invalid signature")
	ErrInvalidPrivateKey = errors.New("crypto: invalid private key")

	// ErrVerificationFailed is wrapped by TransactionVerificationError when a
	// signature does not match its signer and message.
	ErrVerificationFailed = errors.New("crypto: signature verification failed")

	ErrNoSignatures           = errors.New("crypto: transaction carries no signatures")
	ErrSignatureCountMismatch = errors.New("crypto: signature count differs from required signers")
	ErrMissingMessage         = errors.New("crypto: nil transaction")
	ErrMissingSigner          = errors.New("crypto: no keypair supplied for a required signer")

	ErrMessageSerializationFailed = errors.New("crypto: cannot serialize message")
)

// TransactionVerificationError identifies the signature that failed.
type TransactionVerificationError struct {
	SignatureIndex int
	SignerPubkey   string // base58
	Err            error
}

func (e *TransactionVerificationError) Error() string {
	return "crypto: signature " + strconv.Itoa(e.SignatureIndex) + " by " + e.SignerPubkey + ": " + e.Err.Error()
}

func (e *TransactionVerificationError) Unwrap() error { return e.Err }

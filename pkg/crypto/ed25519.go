package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Verify reports whether sig is pubkey's signature over message.
func Verify(pubkey types.Pubkey, message []byte, sig types.Signature) bool {
	return ed25519.Verify(pubkey[:], message, sig[:])
}

// VerifySignature checks a signature given as raw bytes, as found in key
// files and RPC payloads, and explains a failure.
func VerifySignature(pubkey, message, signature []byte) error {
	switch {
	case len(pubkey) != PublicKeySize:
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, PublicKeySize, len(pubkey))
	case len(signature) != SignatureSize:
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(signature))
	case !ed25519.Verify(pubkey, message, signature):
		return ErrVerificationFailed
	}
	return nil
}

// VerifyTransaction checks that tx carries one valid signature per required
// signer, in header order. The first bad signature is reported as a
// *TransactionVerificationError.
func VerifyTransaction(tx *types.Transaction) error {
	if tx == nil {
		return ErrMissingMessage
	}
	if len(tx.Signatures) == 0 {
		return ErrNoSignatures
	}
	signers := tx.Message.Signers()
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) || len(signers) != len(tx.Signatures) {
		return fmt.Errorf("%w: expected %d signatures, got %d",
			ErrSignatureCountMismatch, tx.Message.Header.NumRequiredSignatures, len(tx.Signatures))
	}

	msg, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMessageSerializationFailed, err)
	}
	for i, pk := range signers {
		if !Verify(pk, msg, tx.Signatures[i]) {
			return &TransactionVerificationError{
				SignatureIndex: i,
				SignerPubkey:   pk.String(),
				Err:            ErrVerificationFailed,
			}
		}
	}
	return nil
}

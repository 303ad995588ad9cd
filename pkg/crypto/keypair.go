package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Keypair is an Ed25519 signing key together with its public key.
type Keypair struct {
	private ed25519.PrivateKey
	pubkey  types.Pubkey
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return newKeypair(priv), nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidPrivateKey, SeedSize, len(seed))
	}
	return newKeypair(ed25519.NewKeyFromSeed(seed)), nil
}

// KeypairFromBytes loads a 64-byte private key (seed followed by public key),
// the layout used by Solana CLI key files.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPrivateKey, PrivateKeySize, len(b))
	}
	kp, err := KeypairFromSeed(b[:SeedSize])
	if err != nil {
		return nil, err
	}
	if string(kp.pubkey[:]) != string(b[SeedSize:]) {
		return nil, fmt.Errorf("%w: public key half does not match seed", ErrInvalidPrivateKey)
	}
	return kp, nil
}

// KeypairFromBase58 decodes a base58 encoded 64-byte private key.
func KeypairFromBase58(s string) (*Keypair, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return KeypairFromBytes(b)
}

func newKeypair(priv ed25519.PrivateKey) *Keypair {
	kp := &Keypair{private: priv}
	copy(kp.pubkey[:], priv.Public().(ed25519.PublicKey))
	return kp
}

// Pubkey returns the public key.
func (kp *Keypair) Pubkey() types.Pubkey {
	return kp.pubkey
}

// Bytes returns the 64-byte private key.
func (kp *Keypair) Bytes() []byte {
	out := make([]byte, PrivateKeySize)
	copy(out, kp.private)
	return out
}

// Sign signs message.
func (kp *Keypair) Sign(message []byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(kp.private, message))
	return sig
}

// LoadKeypairFile reads a key file holding either a JSON array of 64 bytes
// or the same bytes as a single base58 string.
func LoadKeypairFile(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] != '[' {
		return KeypairFromBase58(string(raw))
	}
	var b []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("%w: key file %s: %v", ErrInvalidPrivateKey, path, err)
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: key file %s holds non-byte value %d", ErrInvalidPrivateKey, path, v)
		}
		b = append(b, byte(v))
	}
	return KeypairFromBytes(b)
}

// SaveKeypairFile writes kp in the JSON array format read by LoadKeypairFile.
func SaveKeypairFile(path string, kp *Keypair) error {
	ints := make([]int, PrivateKeySize)
	for i, v := range kp.private {
		ints[i] = int(v)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// SignTransaction fills tx.Signatures using the given keypairs. Every
// required signer in the message header must have a keypair.
func SignTransaction(tx *types.Transaction, signers ...*Keypair) error {
	if tx == nil {
		return ErrMissingMessage
	}
	msg, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMessageSerializationFailed, err)
	}
	byKey := make(map[types.Pubkey]*Keypair, len(signers))
	for _, kp := range signers {
		byKey[kp.Pubkey()] = kp
	}
	required := tx.Message.Signers()
	sigs := make([]types.Signature, len(required))
	for i, pk := range required {
		kp, ok := byKey[pk]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, pk)
		}
		sigs[i] = kp.Sign(msg)
	}
	tx.Signatures = sigs
	return nil
}

// Package types provides the core ledger data types for the agent marketplace.
package types

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// Hash represents a 32-byte SHA256 hash.
type Hash [32]byte

// ZeroHash is an all-zero hash.
var ZeroHash Hash

// HashFromBytes creates a Hash from a byte slice.
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != 32 {
		return Hash{}, fmt.Errorf("hash must be 32 bytes, got %d", len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// HashFromBase58 decodes a base58 string into a Hash.
func HashFromBase58(s string) (Hash, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid base58: %w", err)
	}
	return HashFromBytes(b)
}

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String returns the base58 representation.
func (h Hash) String() string {
	return base58.Encode(h[:])
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// SHA256 computes SHA256 hash of data.
func SHA256(data []byte) Hash {
	return sha256.Sum256(data)
}

// SHA256Multi computes SHA256 hash of multiple byte slices.
func SHA256Multi(data ...[]byte) Hash {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var result Hash
	copy(result[:], h.Sum(nil))
	return result
}

// Pubkey represents a 32-byte Ed25519 public key.
type Pubkey [32]byte

// ZeroPubkey is an all-zero pubkey.
var ZeroPubkey Pubkey

// Well-known program IDs.
var (
	SystemProgramID = MustPubkeyFromBase58("11111111111111111111111111111111")

	// AgentMarketProgramID is the address the marketplace program is deployed at
	// unless the node configuration overrides it.
	AgentMarketProgramID = MustPubkeyFromBase58("JA9FE7qcuSHQTgeGBzQHWP8ZaeLGBHag8gU6D4ZaCnRa")
)

// PubkeyFromBytes creates a Pubkey from a byte slice.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != 32 {
		return Pubkey{}, fmt.Errorf("pubkey must be 32 bytes, got %d", len(b))
	}
	var pk Pubkey
	copy(pk[:], b)
	return pk, nil
}

// PubkeyFromBase58 decodes a base58 string into a Pubkey.
func PubkeyFromBase58(s string) (Pubkey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("invalid base58: %w", err)
	}
	return PubkeyFromBytes(b)
}

// MustPubkeyFromBase58 decodes a base58 string or panics.
func MustPubkeyFromBase58(s string) Pubkey {
	pk, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// Bytes returns the pubkey as a byte slice.
func (pk Pubkey) Bytes() []byte {
	return pk[:]
}

// String returns the base58 representation.
func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

// IsZero returns true if the pubkey is all zeros.
func (pk Pubkey) IsZero() bool {
	return pk == ZeroPubkey
}

// IsSystemProgram returns true if this is the System Program.
func (pk Pubkey) IsSystemProgram() bool {
	return pk == SystemProgramID
}

// MarshalText implements encoding.TextMarshaler so pubkeys render as base58
// in JSON and YAML.
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *Pubkey) UnmarshalText(text []byte) error {
	decoded, err := PubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*pk = decoded
	return nil
}

// Signature represents a 64-byte Ed25519 signature.
type Signature [64]byte

// ZeroSignature is an all-zero signature.
var ZeroSignature Signature

// SignatureFromBytes creates a Signature from a byte slice.
func SignatureFromBytes(b []byte) (Signature, error) {
	if len(b) != 64 {
		return Signature{}, fmt.Errorf("signature must be 64 bytes, got %d", len(b))
	}
	var sig Signature
	copy(sig[:], b)
	return sig, nil
}

// SignatureFromBase58 decodes a base58 string into a Signature.
func SignatureFromBase58(s string) (Signature, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid base58: %w", err)
	}
	return SignatureFromBytes(b)
}

// Bytes returns the signature as a byte slice.
func (sig Signature) Bytes() []byte {
	return sig[:]
}

// String returns the base58 representation.
func (sig Signature) String() string {
	return base58.Encode(sig[:])
}

// IsZero returns true if the signature is all zeros.
func (sig Signature) IsZero() bool {
	return sig == ZeroSignature
}

// Slot represents a slot number.
type Slot uint64

// Epoch represents an epoch number.
type Epoch uint64

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Lamports represents a lamport amount (1 SOL = 1_000_000_000 lamports).
type Lamports uint64

// SOL converts lamports to SOL.
func (l Lamports) SOL() float64 {
	return float64(l) / LamportsPerSOL
}

// String formats the amount in SOL with trailing zeros trimmed, e.g. "0.01 SOL".
func (l Lamports) String() string {
	whole := uint64(l) / LamportsPerSOL
	frac := uint64(l) % LamportsPerSOL
	if frac == 0 {
		return strconv.FormatUint(whole, 10) + " SOL"
	}
	fs := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return strconv.FormatUint(whole, 10) + "." + fs + " SOL"
}

// ParseSOL parses a decimal SOL amount ("1.5", "0.01") into lamports without
// going through floating point.
func ParseSOL(s string) (Lamports, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "SOL"))
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if len(frac) > 9 {
		return 0, fmt.Errorf("amount %q has more than 9 decimal places", s)
	}
	var w, f uint64
	var err error
	if whole != "" {
		if w, err = strconv.ParseUint(whole, 10, 64); err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}
	if frac != "" {
		if f, err = strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 64); err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}
	if w > (^uint64(0)-f)/LamportsPerSOL {
		return 0, fmt.Errorf("amount %q overflows", s)
	}
	return Lamports(w*LamportsPerSOL + f), nil
}

// ComputeUnits represents compute units.
type ComputeUnits uint64

// Default compute limits
const (
	DefaultComputeUnitsPerInstruction ComputeUnits = 200_000
	MaxComputeUnitsPerTransaction     ComputeUnits = 1_400_000
	ComputeUnitsPerSignature          ComputeUnits = 720
	ComputeUnitsPerWritableAccount    ComputeUnits = 300
	ComputeUnitsPerCPI                ComputeUnits = 1_000
)

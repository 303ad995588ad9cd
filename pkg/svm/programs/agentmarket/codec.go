package agentmarket

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// DiscriminatorSize is the length of instruction and account discriminators.
const DiscriminatorSize = 8

// Discriminator tags instruction data and account data with the first eight
// bytes of a SHA-256 over a namespaced name.
type Discriminator [DiscriminatorSize]byte

// InstructionDiscriminator returns sha256("global:" + name)[:8].
func InstructionDiscriminator(name string) Discriminator {
	return newDiscriminator("global:" + name)
}

// AccountDiscriminator returns sha256("account:" + name)[:8].
func AccountDiscriminator(name string) Discriminator {
	return newDiscriminator("account:" + name)
}

func newDiscriminator(preimage string) Discriminator {
	sum := types.SHA256([]byte(preimage))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Bytes returns the discriminator as a slice.
func (d Discriminator) Bytes() []byte {
	return d[:]
}

// Discriminators for the instruction set and the Agent account.
var (
	RegisterAgentDiscriminator = InstructionDiscriminator("register_agent")
	InvokeAgentDiscriminator   = InstructionDiscriminator("invoke_agent")
	AgentAccountDiscriminator  = AccountDiscriminator("Agent")
)

// encodeWith runs fn against a Borsh encoder and returns the bytes written.
func encodeWith(fn func(enc *bin.Encoder) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeExact runs fn against a Borsh decoder over data and fails if any
// byte is left unread.
func decodeExact(data []byte, fn func(dec *bin.Decoder) error) error {
	dec := bin.NewBorshDecoder(data)
	if err := fn(dec); err != nil {
		return err
	}
	if rem := dec.Remaining(); rem != 0 {
		return fmt.Errorf("%d trailing bytes", rem)
	}
	return nil
}

func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func readString(dec *bin.Decoder, field string) (string, error) {
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return "", fmt.Errorf("%s length: %w", field, err)
	}
	if int64(n) > int64(dec.Remaining()) {
		return "", fmt.Errorf("%s length %d exceeds %d remaining bytes", field, n, dec.Remaining())
	}
	raw, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%s is not valid UTF-8", field)
	}
	return string(raw), nil
}

func readDiscriminator(dec *bin.Decoder) (Discriminator, error) {
	var d Discriminator
	raw, err := dec.ReadNBytes(DiscriminatorSize)
	if err != nil {
		return d, err
	}
	copy(d[:], raw)
	return d, nil
}

// stringSize is the encoded size of a length-prefixed string.
func stringSize(s string) int {
	return 4 + len(s)
}

package agentmarket

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Instruction is one of the program's instructions. The set is closed:
// RegisterAgent and InvokeAgent are the only implementations.
type Instruction interface {
	// Name returns the snake_case instruction name the discriminator is derived from.
	Name() string
	Discriminator() Discriminator
	// Encode returns the full instruction data, discriminator included.
	Encode() ([]byte, error)

	isInstruction()
}

// RegisterAgent creates a new Agent record owned by the signing user.
//
// Data layout: [8 disc][4+name][4+description][4+endpoint][8 price]
type RegisterAgent struct {
	AgentName   string
	Description string
	Endpoint    string
	Price       uint64
}

// Name implements Instruction.
func (*RegisterAgent) Name() string { return "register_agent" }

// Discriminator implements Instruction.
func (*RegisterAgent) Discriminator() Discriminator { return RegisterAgentDiscriminator }

func (*RegisterAgent) isInstruction() {}

// MarshalWithEncoder writes the arguments without the discriminator.
func (inst *RegisterAgent) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, s := range []string{inst.AgentName, inst.Description, inst.Endpoint} {
		if err := writeString(enc, s); err != nil {
			return err
		}
	}
	return enc.WriteUint64(inst.Price, bin.LE)
}

// UnmarshalWithDecoder reads the arguments without the discriminator.
func (inst *RegisterAgent) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if inst.AgentName, err = readString(dec, "name"); err != nil {
		return err
	}
	if inst.Description, err = readString(dec, "description"); err != nil {
		return err
	}
	if inst.Endpoint, err = readString(dec, "endpoint"); err != nil {
		return err
	}
	if inst.Price, err = dec.ReadUint64(bin.LE); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	return nil
}

// Encode implements Instruction.
func (inst *RegisterAgent) Encode() ([]byte, error) {
	return encodeWith(func(enc *bin.Encoder) error {
		if err := enc.WriteBytes(RegisterAgentDiscriminator[:], false); err != nil {
			return err
		}
		return inst.MarshalWithEncoder(enc)
	})
}

// InvokeAgent pays the agent's price from the invoking user to its owner.
// It carries no arguments.
type InvokeAgent struct{}

// Name implements Instruction.
func (*InvokeAgent) Name() string { return "invoke_agent" }

// Discriminator implements Instruction.
func (*InvokeAgent) Discriminator() Discriminator { return InvokeAgentDiscriminator }

func (*InvokeAgent) isInstruction() {}

// Encode implements Instruction.
func (inst *InvokeAgent) Encode() ([]byte, error) {
	return InvokeAgentDiscriminator.Bytes(), nil
}

// DecodeInstruction parses instruction data into its typed form. Unknown
// discriminators yield ErrInvalidInstruction; malformed or over-long
// arguments yield ErrInstructionDidNotDeserialize.
func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) < DiscriminatorSize {
		return nil, fmt.Errorf("%w: %d bytes of instruction data", ErrInvalidInstruction, len(data))
	}
	var disc Discriminator
	copy(disc[:], data[:DiscriminatorSize])
	body := data[DiscriminatorSize:]

	switch disc {
	case RegisterAgentDiscriminator:
		inst := new(RegisterAgent)
		if err := decodeExact(body, inst.UnmarshalWithDecoder); err != nil {
			return nil, fmt.Errorf("%w: register_agent: %v", ErrInstructionDidNotDeserialize, err)
		}
		return inst, nil

	case InvokeAgentDiscriminator:
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: invoke_agent: %d trailing bytes", ErrInstructionDidNotDeserialize, len(body))
		}
		return new(InvokeAgent), nil

	default:
		return nil, fmt.Errorf("%w: %x", ErrInvalidInstruction, disc[:])
	}
}

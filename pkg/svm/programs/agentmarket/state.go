package agentmarket

import (
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Agent is the on-ledger record describing a registered agent. One account
// holds exactly one record; its owner never changes after registration.
//
// Layout: [8 discriminator][4+name][4+description][4+endpoint][8 price][32 owner]
type Agent struct {
	Name        string
	Description string
	Endpoint    string
	Price       uint64
	Owner       types.Pubkey
}

// Size returns the exact number of bytes the serialized record occupies,
// discriminator included.
func (a *Agent) Size() uint64 {
	return uint64(DiscriminatorSize + stringSize(a.Name) + stringSize(a.Description) + stringSize(a.Endpoint) + 8 + 32)
}

// MarshalWithEncoder writes the record body without the discriminator.
func (a *Agent) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, s := range []string{a.Name, a.Description, a.Endpoint} {
		if err := writeString(enc, s); err != nil {
			return err
		}
	}
	if err := enc.WriteUint64(a.Price, bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes(a.Owner[:], false)
}

// UnmarshalWithDecoder reads the record body without the discriminator.
func (a *Agent) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.Name, err = readString(dec, "name"); err != nil {
		return err
	}
	if a.Description, err = readString(dec, "description"); err != nil {
		return err
	}
	if a.Endpoint, err = readString(dec, "endpoint"); err != nil {
		return err
	}
	if a.Price, err = dec.ReadUint64(bin.LE); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	owner, err := dec.ReadNBytes(32)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	copy(a.Owner[:], owner)
	return nil
}

// Serialize encodes the record with its account discriminator.
func (a *Agent) Serialize() ([]byte, error) {
	return encodeWith(func(enc *bin.Encoder) error {
		if err := enc.WriteBytes(AgentAccountDiscriminator[:], false); err != nil {
			return err
		}
		return a.MarshalWithEncoder(enc)
	})
}

// DeserializeAgent decodes account data into an Agent. The data must start
// with the Agent discriminator and be consumed exactly.
func DeserializeAgent(data []byte) (*Agent, error) {
	if len(data) < DiscriminatorSize {
		return nil, fmt.Errorf("%w: %d bytes of data", ErrAccountDiscriminatorMismatch, len(data))
	}
	agent := new(Agent)
	err := decodeExact(data, func(dec *bin.Decoder) error {
		disc, err := readDiscriminator(dec)
		if err != nil {
			return err
		}
		if disc != AgentAccountDiscriminator {
			return ErrAccountDiscriminatorMismatch
		}
		return agent.UnmarshalWithDecoder(dec)
	})
	if err == ErrAccountDiscriminatorMismatch {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountDidNotDeserialize, err)
	}
	return agent, nil
}

// IsAgentAccount reports whether data carries the Agent discriminator.
func IsAgentAccount(data []byte) bool {
	return len(data) >= DiscriminatorSize && Discriminator(data[:DiscriminatorSize]) == AgentAccountDiscriminator
}

package agentmarket

import (
	"fmt"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Config holds the program's deploy-time policy.
type Config struct {
	// ProgramID is the address the program is registered under.
	ProgramID types.Pubkey

	MaxNameLen        int
	MaxDescriptionLen int
	MaxEndpointLen    int

	// MinPrice is the lowest price register_agent accepts. Zero allows free agents.
	MinPrice uint64
}

// DefaultConfig returns the stock limits: 100 byte name, 200 byte
// description, 100 byte endpoint, no price floor.
func DefaultConfig() Config {
	return Config{
		ProgramID:         types.AgentMarketProgramID,
		MaxNameLen:        100,
		MaxDescriptionLen: 200,
		MaxEndpointLen:    100,
	}
}

// MaxRecordSize is the largest record the limits allow.
func (c Config) MaxRecordSize() uint64 {
	return uint64(DiscriminatorSize + 4 + c.MaxNameLen + 4 + c.MaxDescriptionLen + 4 + c.MaxEndpointLen + 8 + 32)
}

// Validate checks the configuration itself.
func (c Config) Validate() error {
	if c.ProgramID.IsZero() || c.ProgramID == types.SystemProgramID {
		return fmt.Errorf("invalid program id %s", c.ProgramID)
	}
	if c.MaxNameLen < 0 || c.MaxDescriptionLen < 0 || c.MaxEndpointLen < 0 {
		return fmt.Errorf("field limits must not be negative")
	}
	return nil
}

// checkRecord applies the field limits and price floor to a candidate record.
func (c Config) checkRecord(a *Agent) error {
	fields := []struct {
		name  string
		value string
		limit int
	}{
		{"name", a.Name, c.MaxNameLen},
		{"description", a.Description, c.MaxDescriptionLen},
		{"endpoint", a.Endpoint, c.MaxEndpointLen},
	}
	for _, f := range fields {
		if len(f.value) > f.limit {
			return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrRecordTooLarge, f.name, len(f.value), f.limit)
		}
	}
	if a.Price < c.MinPrice {
		return fmt.Errorf("%w: price %d below %d", ErrPriceBelowMinimum, a.Price, c.MinPrice)
	}
	return nil
}

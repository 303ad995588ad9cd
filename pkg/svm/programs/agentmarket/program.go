// Package agentmarket implements the agent marketplace program: a registry
// of AI agents (name, description, endpoint, price, owner), each stored in
// its own account, and a pay-per-invocation instruction that moves the price
// from the caller to the agent's owner.
//
// Instruction data and account data use 8-byte SHA-256 discriminators,
// little-endian integers and u32 length-prefixed strings.
package agentmarket

import (
	"fmt"

	"github.com/fortiblox/x1-agentmarket/pkg/svm/runtime"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Program is the agent marketplace program.
type Program struct {
	cfg Config
}

// New creates the program with the given policy.
func New(cfg Config) *Program {
	return &Program{cfg: cfg}
}

// ProgramID returns the address the program executes under.
func (p *Program) ProgramID() types.Pubkey {
	return p.cfg.ProgramID
}

// Name returns the program's display name.
func (p *Program) Name() string {
	return "agentmarket"
}

// Config returns the program's policy.
func (p *Program) Config() Config {
	return p.cfg
}

// Execute decodes ctx.InstructionData and runs the matching handler.
func (p *Program) Execute(ctx *runtime.ExecutionContext) error {
	ix, err := DecodeInstruction(ctx.InstructionData)
	if err != nil {
		return err
	}

	switch inst := ix.(type) {
	case *RegisterAgent:
		ctx.Logf("Instruction: RegisterAgent")
		return p.handleRegisterAgent(ctx, inst)
	case *InvokeAgent:
		ctx.Logf("Instruction: InvokeAgent")
		return p.handleInvokeAgent(ctx, inst)
	default:
		return fmt.Errorf("%w: %T", ErrInvalidInstruction, ix)
	}
}

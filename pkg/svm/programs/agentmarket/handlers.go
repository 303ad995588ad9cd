package agentmarket

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/system"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/runtime"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// handleRegisterAgent creates and funds a new Agent record.
// Account layout:
//
//	[0] agent record (signer, writable, uninitialized)
//	[1] user paying for the record and becoming its owner (signer, writable)
//	[2] system program
func (p *Program) handleRegisterAgent(ctx *runtime.ExecutionContext, inst *RegisterAgent) error {
	if ctx.AccountCount() < 3 {
		return fmt.Errorf("%w: register_agent needs 3, got %d", ErrNotEnoughAccountKeys, ctx.AccountCount())
	}
	record, _ := ctx.GetAccountByIndex(0)
	user, _ := ctx.GetAccountByIndex(1)
	systemProgram, _ := ctx.GetAccountByIndex(2)

	if !system.IsSystemProgram(systemProgram.Pubkey) {
		return fmt.Errorf("%w: got %s", ErrInvalidProgramID, systemProgram.Pubkey)
	}
	if !record.IsSigner {
		return fmt.Errorf("%w: agent account %s", ErrMissingSignature, record.Pubkey)
	}
	if !user.IsSigner {
		return fmt.Errorf("%w: user %s", ErrMissingSignature, user.Pubkey)
	}
	if !record.IsWritable {
		return fmt.Errorf("%w: agent account %s", ErrAccountNotWritable, record.Pubkey)
	}
	if !user.IsWritable {
		return fmt.Errorf("%w: user %s", ErrAccountNotWritable, user.Pubkey)
	}
	if !record.IsUninitialized() {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInitialized, record.Pubkey)
	}

	agent := &Agent{
		Name:        inst.AgentName,
		Description: inst.Description,
		Endpoint:    inst.Endpoint,
		Price:       inst.Price,
		Owner:       user.Pubkey,
	}
	if err := p.cfg.checkRecord(agent); err != nil {
		return err
	}
	space := agent.Size()
	if space > ctx.MaxAccountDataSize {
		return fmt.Errorf("%w: %d bytes exceeds account limit %d", ErrRecordTooLarge, space, ctx.MaxAccountDataSize)
	}

	rent := ctx.Rent.MinimumBalance(space)
	if *user.Lamports < uint64(rent) {
		return fmt.Errorf("%w: record needs %d lamports, user has %d", ErrInsufficientFunds, rent, *user.Lamports)
	}

	create := system.CreateAccount(user.Pubkey, record.Pubkey, uint64(rent), space, ctx.ProgramID)
	if err := ctx.Invoke(create.ProgramID, create.Accounts, create.Data); err != nil {
		if errors.Is(err, system.ErrInsufficientFunds) {
			return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return err
	}

	data, err := agent.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordTooLarge, err)
	}
	if uint64(len(data)) != uint64(len(record.Data)) {
		return fmt.Errorf("%w: serialized %d bytes into %d", ErrRecordTooLarge, len(data), len(record.Data))
	}
	copy(record.Data, data)

	ctx.Logf("Agent registered: %s", record.Pubkey)
	ctx.SetReturnData(record.Pubkey.Bytes())
	return nil
}

// handleInvokeAgent pays the agent's price from the user to the agent owner.
// Account layout:
//
//	[0] agent record (writable)
//	[1] user paying the price (signer, writable)
//	[2] agent owner receiving the price (writable)
//	[3] system program
func (p *Program) handleInvokeAgent(ctx *runtime.ExecutionContext, _ *InvokeAgent) error {
	if ctx.AccountCount() < 4 {
		return fmt.Errorf("%w: invoke_agent needs 4, got %d", ErrNotEnoughAccountKeys, ctx.AccountCount())
	}
	record, _ := ctx.GetAccountByIndex(0)
	user, _ := ctx.GetAccountByIndex(1)
	agentOwner, _ := ctx.GetAccountByIndex(2)
	systemProgram, _ := ctx.GetAccountByIndex(3)

	if !system.IsSystemProgram(systemProgram.Pubkey) {
		return fmt.Errorf("%w: got %s", ErrInvalidProgramID, systemProgram.Pubkey)
	}
	if len(record.Data) == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotInitialized, record.Pubkey)
	}
	if record.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: %s is owned by %s", ErrAccountOwnedByWrongProgram, record.Pubkey, record.Owner)
	}
	agent, err := DeserializeAgent(record.Data)
	if err != nil {
		return err
	}
	if !user.IsSigner {
		return fmt.Errorf("%w: user %s", ErrMissingSignature, user.Pubkey)
	}
	if !record.IsWritable || !user.IsWritable || !agentOwner.IsWritable {
		return ErrAccountNotWritable
	}
	if agentOwner.Pubkey != agent.Owner {
		return ErrInvalidAgentOwner
	}

	reserve := uint64(ctx.Rent.MinimumBalance(uint64(len(user.Data))))
	if agent.Price > ^uint64(0)-reserve {
		return fmt.Errorf("%w: price %d overflows with reserve", ErrInsufficientFunds, agent.Price)
	}
	if need := agent.Price + reserve; *user.Lamports < need {
		return fmt.Errorf("%w: need %d lamports (price %d + reserve %d), have %d",
			ErrInsufficientFunds, need, agent.Price, reserve, *user.Lamports)
	}
	if user.Pubkey != agentOwner.Pubkey && *agentOwner.Lamports > ^uint64(0)-agent.Price {
		return fmt.Errorf("%w: crediting %s", ErrArithmeticOverflow, agentOwner.Pubkey)
	}

	if agent.Price > 0 {
		transfer := system.Transfer(user.Pubkey, agentOwner.Pubkey, agent.Price)
		if err := ctx.Invoke(transfer.ProgramID, transfer.Accounts, transfer.Data); err != nil {
			switch {
			case errors.Is(err, system.ErrInsufficientFunds):
				return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
			case errors.Is(err, system.ErrLamportOverflow):
				return fmt.Errorf("%w: %w", ErrArithmeticOverflow, err)
			}
			return err
		}
	}

	ctx.Logf("Agent invoked by: %s", user.Pubkey)
	return nil
}

// RegisterAgentInstruction builds a register_agent instruction.
func RegisterAgentInstruction(programID, record, user types.Pubkey, args RegisterAgent) (types.Instruction, error) {
	data, err := args.Encode()
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			{Pubkey: record, IsSigner: true, IsWritable: true},
			{Pubkey: user, IsSigner: true, IsWritable: true},
			{Pubkey: types.SystemProgramID},
		},
		Data: data,
	}, nil
}

// InvokeAgentInstruction builds an invoke_agent instruction.
func InvokeAgentInstruction(programID, record, user, agentOwner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: programID,
		Accounts: []types.AccountMeta{
			{Pubkey: record, IsWritable: true},
			{Pubkey: user, IsSigner: true, IsWritable: true},
			{Pubkey: agentOwner, IsWritable: true},
			{Pubkey: types.SystemProgramID},
		},
		Data: InvokeAgentDiscriminator.Bytes(),
	}
}

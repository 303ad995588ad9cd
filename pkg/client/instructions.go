package client

import (
	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/compute_budget"
)

// ComputeBudgetProgramID is the Compute Budget Program's address.
var ComputeBudgetProgramID = PublicKey(compute_budget.ProgramID)

// NewRegisterAgentInstruction builds register_agent. record and user must
// both sign; user pays for the record account.
func NewRegisterAgentInstruction(programID, record, user solana.PublicKey, args agentmarket.RegisterAgent) (solana.Instruction, error) {
	data, err := args.Encode()
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(record, true, true),
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewInvokeAgentInstruction builds invoke_agent. user signs and pays the
// agent's price to owner, which must match the record's stored owner.
func NewInvokeAgentInstruction(programID, record, user, owner solana.PublicKey) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(record, true, false),
		solana.NewAccountMeta(user, true, true),
		solana.NewAccountMeta(owner, true, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(programID, accounts, agentmarket.InvokeAgentDiscriminator.Bytes())
}

// NewSetComputeUnitLimitInstruction caps the compute units a transaction may use.
func NewSetComputeUnitLimitInstruction(units uint32) solana.Instruction {
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, compute_budget.SetComputeUnitLimitData(units))
}

// NewSetComputeUnitPriceInstruction sets the priority fee in micro-lamports
// per compute unit.
func NewSetComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, compute_budget.SetComputeUnitPriceData(microLamports))
}

package system

import (
	"fmt"

	"github.com/fortiblox/x1-agentmarket/pkg/svm/runtime"
)

// handleCreateAccount handles the CreateAccount instruction.
// Account layout:
//
//	[0] funding account (signer, writable)
//	[1] new account (signer, writable)
func handleCreateAccount(ctx *runtime.ExecutionContext, inst *CreateAccountInstruction) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: CreateAccount requires 2 accounts", ErrInvalidInstructionData)
	}

	fundingAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !fundingAcc.IsSigner {
		return fmt.Errorf("%w: funding account", ErrAccountNotSigner)
	}
	if !fundingAcc.IsWritable {
		return fmt.Errorf("%w: funding account", ErrAccountNotWritable)
	}

	newAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if !newAcc.IsSigner {
		return fmt.Errorf("%w: new account", ErrAccountNotSigner)
	}
	if !newAcc.IsWritable {
		return fmt.Errorf("%w: new account", ErrAccountNotWritable)
	}
	if fundingAcc.Pubkey == newAcc.Pubkey {
		return fmt.Errorf("%w: funding and new account are the same", ErrAccountAlreadyExists)
	}

	// Check if the new account already has lamports or data (already exists)
	if *newAcc.Lamports > 0 || len(newAcc.Data) > 0 || !IsSystemProgram(newAcc.Owner) {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, newAcc.Pubkey)
	}

	if inst.Space > ctx.MaxAccountDataSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrAccountDataTooLarge, inst.Space, ctx.MaxAccountDataSize)
	}

	rentExemptMinimum := ctx.Rent.MinimumBalance(inst.Space)
	if inst.Lamports < uint64(rentExemptMinimum) {
		return fmt.Errorf("%w: need %d lamports for rent exemption", ErrAccountNotRentExempt, rentExemptMinimum)
	}

	if *fundingAcc.Lamports < inst.Lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, inst.Lamports, *fundingAcc.Lamports)
	}

	*fundingAcc.Lamports -= inst.Lamports
	*newAcc.Lamports += inst.Lamports

	newAcc.Data = make([]byte, inst.Space)
	newAcc.Owner = inst.Owner

	return nil
}

// handleAssign handles the Assign instruction.
// Account layout:
//
//	[0] account to assign (signer, writable)
func handleAssign(ctx *runtime.ExecutionContext, inst *AssignInstruction) error {
	if ctx.AccountCount() < 1 {
		return fmt.Errorf("%w: Assign requires 1 account", ErrInvalidInstructionData)
	}

	acc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !acc.IsSigner {
		return fmt.Errorf("%w: account to assign", ErrAccountNotSigner)
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: account to assign", ErrAccountNotWritable)
	}

	// Only system-owned accounts can be handed to another program.
	if !IsSystemProgram(acc.Owner) {
		return fmt.Errorf("%w: account must be owned by System Program", ErrInvalidAccountOwner)
	}

	acc.Owner = inst.Owner
	return nil
}

// handleTransfer handles the Transfer instruction.
// Account layout:
//
//	[0] source account (signer, writable)
//	[1] destination account (writable)
func handleTransfer(ctx *runtime.ExecutionContext, inst *TransferInstruction) error {
	if ctx.AccountCount() < 2 {
		return fmt.Errorf("%w: Transfer requires 2 accounts", ErrInvalidInstructionData)
	}

	sourceAcc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !sourceAcc.IsSigner {
		return fmt.Errorf("%w: source account", ErrAccountNotSigner)
	}
	if !sourceAcc.IsWritable {
		return fmt.Errorf("%w: source account", ErrAccountNotWritable)
	}
	if len(sourceAcc.Data) > 0 {
		return ErrSourceCarriesData
	}
	if !IsSystemProgram(sourceAcc.Owner) {
		return fmt.Errorf("%w: source must be owned by System Program", ErrInvalidAccountOwner)
	}

	destAcc, err := ctx.GetAccountByIndex(1)
	if err != nil {
		return err
	}
	if !destAcc.IsWritable {
		return fmt.Errorf("%w: destination account", ErrAccountNotWritable)
	}

	if *sourceAcc.Lamports < inst.Lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, inst.Lamports, *sourceAcc.Lamports)
	}
	if sourceAcc.Pubkey == destAcc.Pubkey {
		return nil
	}
	if *destAcc.Lamports > ^uint64(0)-inst.Lamports {
		return fmt.Errorf("%w: destination %s", ErrLamportOverflow, destAcc.Pubkey)
	}

	*sourceAcc.Lamports -= inst.Lamports
	*destAcc.Lamports += inst.Lamports

	return nil
}

// handleAllocate handles the Allocate instruction.
// Account layout:
//
//	[0] account to allocate (signer, writable)
func handleAllocate(ctx *runtime.ExecutionContext, inst *AllocateInstruction) error {
	if ctx.AccountCount() < 1 {
		return fmt.Errorf("%w: Allocate requires 1 account", ErrInvalidInstructionData)
	}

	acc, err := ctx.GetAccountByIndex(0)
	if err != nil {
		return err
	}
	if !acc.IsSigner {
		return fmt.Errorf("%w: account to allocate", ErrAccountNotSigner)
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: account to allocate", ErrAccountNotWritable)
	}
	if len(acc.Data) > 0 || !IsSystemProgram(acc.Owner) {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, acc.Pubkey)
	}
	if inst.Space > ctx.MaxAccountDataSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrAccountDataTooLarge, inst.Space, ctx.MaxAccountDataSize)
	}

	acc.Data = make([]byte, inst.Space)
	return nil
}

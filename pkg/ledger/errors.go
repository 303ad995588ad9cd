package ledger

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Transaction rejection errors. A rejected transaction never executes and
// leaves no trace in the ledger.
var (
	ErrNilTransaction          = errors.New("ledger: nil transaction")
	ErrNoInstructions          = errors.New("ledger: transaction has no instructions")
	ErrSignatureFailure        = errors.New("ledger: signature verification failed")
	ErrBlockhashNotFound       = errors.New("ledger: blockhash not found")
	ErrAlreadyProcessed        = errors.New("ledger: transaction already processed")
	ErrInvalidFeePayer         = errors.New("ledger: fee payer must be a system-owned wallet")
	ErrInsufficientFundsForFee = errors.New("ledger: insufficient funds for fee")
	ErrFaucetDisabled          = errors.New("ledger: faucet disabled")
	ErrAirdropTooLarge         = errors.New("ledger: airdrop exceeds faucet limit")
	ErrClosed                  = errors.New("ledger: closed")
)

// Execution errors, reported inside a failed TransactionResult.
var (
	ErrProgramNotFound         = errors.New("program not found")
	ErrReadonlyDataModified    = errors.New("instruction modified a readonly account")
	ErrUnbalancedInstruction   = errors.New("sum of account balances changed")
	ErrExecutableModified      = errors.New("instruction modified an executable account")
	ErrAccountDataSizeExceeded = errors.New("account data exceeds the maximum size")
)

// InstructionError reports which instruction of a transaction failed.
type InstructionError struct {
	Index     int
	ProgramID types.Pubkey
	Err       error
}

// Error implements the error interface.
func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed: %v", e.Index, e.ProgramID, e.Err)
}

// Unwrap returns the underlying error.
func (e *InstructionError) Unwrap() error {
	return e.Err
}

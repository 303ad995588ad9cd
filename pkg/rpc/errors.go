package rpc

import (
	"errors"

	"github.com/fortiblox/x1-agentmarket/pkg/ledger"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/system"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/runtime"
)

type namedError struct {
	err  error
	name string
}

// transactionErrors names ledger rejections the way Solana's TransactionError does.
var transactionErrors = []namedError{
	{ledger.ErrSignatureFailure, "SignatureFailure"},
	{ledger.ErrBlockhashNotFound, "BlockhashNotFound"},
	{ledger.ErrAlreadyProcessed, "AlreadyProcessed"},
	{ledger.ErrInvalidFeePayer, "InvalidAccountForFee"},
	{ledger.ErrInsufficientFundsForFee, "InsufficientFundsForFee"},
	{ledger.ErrNoInstructions, "SanitizeFailure"},
	{ledger.ErrNilTransaction, "SanitizeFailure"},
}

// instructionErrors names non-program instruction failures the way Solana's
// InstructionError does.
var instructionErrors = []namedError{
	{ledger.ErrProgramNotFound, "UnsupportedProgramId"},
	{ledger.ErrReadonlyDataModified, "ReadonlyDataModified"},
	{ledger.ErrUnbalancedInstruction, "UnbalancedInstruction"},
	{ledger.ErrExecutableModified, "ExecutableModified"},
	{ledger.ErrAccountDataSizeExceeded, "InvalidRealloc"},
	{runtime.ErrComputeExhausted, "ComputationalBudgetExceeded"},
	{runtime.ErrCPIDepthExceeded, "CallDepth"},
	{runtime.ErrPrivilegeEscalation, "PrivilegeEscalation"},
	{runtime.ErrAccountNotSigner, "MissingRequiredSignature"},
	{runtime.ErrAccountNotWritable, "ReadonlyLamportChange"},
	{runtime.ErrInsufficientFunds, "InsufficientFunds"},
	{runtime.ErrArithmeticOverflow, "ArithmeticOverflow"},
	{runtime.ErrInvalidAccountIndex, "NotEnoughAccountKeys"},
	{compute_budget.ErrInvalidInstructionData, "InvalidInstructionData"},
	{compute_budget.ErrUnknownInstruction, "InvalidInstructionData"},
	{compute_budget.ErrDuplicateInstruction, "InvalidInstructionData"},
	{compute_budget.ErrComputeUnitLimitTooHigh, "InvalidInstructionData"},
	{compute_budget.ErrInvalidHeapFrameSize, "InvalidInstructionData"},
	{system.ErrAccountAlreadyExists, "AccountAlreadyInitialized"},
	{system.ErrInsufficientFunds, "InsufficientFunds"},
	{system.ErrAccountNotSigner, "MissingRequiredSignature"},
	{system.ErrAccountNotWritable, "ReadonlyLamportChange"},
	{system.ErrInvalidAccountOwner, "IncorrectProgramId"},
	{system.ErrInvalidInstructionData, "InvalidInstructionData"},
	{system.ErrAccountDataTooLarge, "InvalidRealloc"},
	{system.ErrAccountNotRentExempt, "InsufficientFunds"},
	{system.ErrLamportOverflow, "ArithmeticOverflow"},
	{system.ErrSourceCarriesData, "InvalidArgument"},
}

func lookupName(table []namedError, err error) (string, bool) {
	for _, n := range table {
		if errors.Is(err, n.err) {
			return n.name, true
		}
	}
	return "", false
}

// TransactionErrorValue renders err as the JSON value Solana clients expect
// in "err" fields: {"InstructionError":[index,{"Custom":code}]} for program
// errors, {"InstructionError":[index,"Name"]} for runtime errors, or a bare
// name for transaction-level failures.
func TransactionErrorValue(err error) interface{} {
	if err == nil {
		return nil
	}
	var ie *ledger.InstructionError
	if errors.As(err, &ie) {
		return map[string]interface{}{
			"InstructionError": []interface{}{ie.Index, instructionErrorValue(ie.Err)},
		}
	}
	if name, ok := lookupName(transactionErrors, err); ok {
		return name
	}
	return err.Error()
}

func instructionErrorValue(err error) interface{} {
	if pe, ok := agentmarket.AsProgramError(err); ok {
		return map[string]uint32{"Custom": pe.Code}
	}
	if name, ok := lookupName(instructionErrors, err); ok {
		return name
	}
	return "GenericError"
}

// rejectionError maps an error from ProcessTransaction to a JSON-RPC error.
func rejectionError(err error) *RPCError {
	data := SendTransactionErrorData{Err: TransactionErrorValue(err), Logs: []string{}}
	switch {
	case errors.Is(err, ledger.ErrSignatureFailure):
		return NewRPCErrorWithData(SignatureVerificationError, "Transaction signature verification failure", data)
	case errors.Is(err, ledger.ErrClosed):
		return NewRPCError(InternalError, "node is shutting down")
	default:
		return NewRPCErrorWithData(SendTransactionError, "Transaction simulation failed: "+err.Error(), data)
	}
}

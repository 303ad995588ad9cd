package agentmarket

import (
	"errors"
	"fmt"
	"sort"
)

// ProgramError is an error the program reports with a stable numeric code.
// Clients match on Code; Msg is fixed per code.
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

// Error implements the error interface.
func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

var errorsByCode = map[uint32]*ProgramError{}

func newProgramError(code uint32, name, msg string) *ProgramError {
	e := &ProgramError{Code: code, Name: name, Msg: msg}
	errorsByCode[code] = e
	return e
}

// Program errors. Codes start at 6000 and never change meaning.
var (
	ErrInvalidAgentOwner            = newProgramError(6000, "InvalidAgentOwner", "The provided agent owner does not match the stored owner.")
	ErrRecordTooLarge               = newProgramError(6001, "RecordTooLarge", "The agent metadata exceeds the maximum record size.")
	ErrInsufficientFunds            = newProgramError(6002, "InsufficientFunds", "The payer does not hold enough lamports for the price and reserve.")
	ErrAccountNotInitialized        = newProgramError(6003, "AccountNotInitialized", "The agent account has not been registered.")
	ErrMissingSignature             = newProgramError(6004, "MissingSignature", "A required signer did not sign the transaction.")
	ErrInvalidInstruction           = newProgramError(6005, "InvalidInstruction", "The instruction discriminator is not recognised.")
	ErrInstructionDidNotDeserialize = newProgramError(6006, "InstructionDidNotDeserialize", "The instruction arguments could not be decoded.")
	ErrAccountDiscriminatorMismatch = newProgramError(6007, "AccountDiscriminatorMismatch", "The account discriminator does not match the Agent record.")
	ErrAccountDidNotDeserialize     = newProgramError(6008, "AccountDidNotDeserialize", "The agent account data could not be decoded.")
	ErrAccountAlreadyInitialized    = newProgramError(6009, "AccountAlreadyInitialized", "The agent account is already in use.")
	ErrNotEnoughAccountKeys         = newProgramError(6010, "NotEnoughAccountKeys", "Not enough accounts were supplied to the instruction.")
	ErrAccountNotWritable           = newProgramError(6011, "AccountNotWritable", "A required account was not marked writable.")
	ErrInvalidProgramID             = newProgramError(6012, "InvalidProgramID", "The system program account is not the system program.")
	ErrAccountOwnedByWrongProgram   = newProgramError(6013, "AccountOwnedByWrongProgram", "The agent account is not owned by this program.")
	ErrPriceBelowMinimum            = newProgramError(6014, "PriceBelowMinimum", "The agent price is below the configured minimum.")
	ErrArithmeticOverflow           = newProgramError(6015, "ArithmeticOverflow", "A lamport balance would overflow.")
)

// ErrorFromCode returns the program error registered for code.
func ErrorFromCode(code uint32) (*ProgramError, bool) {
	e, ok := errorsByCode[code]
	return e, ok
}

// ProgramErrors lists every program error ordered by code.
func ProgramErrors() []*ProgramError {
	out := make([]*ProgramError, 0, len(errorsByCode))
	for _, e := range errorsByCode {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// AsProgramError extracts the program error from an error chain.
func AsProgramError(err error) (*ProgramError, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

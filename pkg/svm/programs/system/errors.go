package system

import "errors"

// Errors surfaced by the System Program handlers. The ledger maps each one to
// an InstructionError name when reporting a failed transaction.
var (
	ErrInsufficientFunds    = errors.New("system: source balance below amount")
	ErrAccountAlreadyExists = errors.New("system: address already holds lamports or data")
	ErrAccountNotRentExempt = errors.New("system: balance below rent-exempt minimum")
	ErrInvalidAccountOwner  = errors.New("system: account not owned by the system program")

	ErrInvalidInstructionData = errors.New("system: malformed instruction data")
	ErrAccountNotSigner       = errors.New("system: missing required signature")
	ErrAccountNotWritable     = errors.New("system: account must be writable")

	// ErrAccountDataTooLarge is returned when requested space exceeds the
	// ledger's per-account data limit.
	ErrAccountDataTooLarge = errors.New("system: requested space too large")

	ErrSourceCarriesData = errors.New("system: transfer source must not carry data")
	ErrLamportOverflow   = errors.New("system: destination balance overflow")
)

package compute_budget

import "errors"

// Compute Budget Program errors
var (
	// ErrInvalidInstructionData indicates the instruction data is malformed.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrInvalidHeapFrameSize indicates the heap frame size is not a multiple of 1024
	// or lies outside 32KB..256KB.
	ErrInvalidHeapFrameSize = errors.New("invalid heap frame size")

	// ErrComputeUnitLimitTooHigh indicates the compute unit limit exceeds 1,400,000.
	ErrComputeUnitLimitTooHigh = errors.New("compute unit limit too high")

	// ErrDuplicateInstruction indicates a transaction set the same parameter twice.
	ErrDuplicateInstruction = errors.New("duplicate compute budget instruction")

	// ErrUnknownInstruction indicates an unknown instruction type was received.
	ErrUnknownInstruction = errors.New("unknown compute budget instruction")
)

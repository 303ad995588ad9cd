// Package compute_budget implements the Compute Budget Program.
//
// Its instructions are read before a transaction executes and configure
// the transaction's compute unit limit and priority fee. Executing them
// only charges a small fixed cost.
package compute_budget

import (
	"fmt"
	"math/bits"

	"github.com/fortiblox/x1-agentmarket/pkg/svm/runtime"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// ProgramID is the program ID for the Compute Budget Program.
var ProgramID = types.MustPubkeyFromBase58("ComputeBudget111111111111111111111111111111")

// instructionCost is charged per executed compute budget instruction.
const instructionCost = 150

// Budget holds the parameters a transaction requested.
type Budget struct {
	ComputeUnitLimit            uint32
	ComputeUnitPrice            uint64
	HeapFrameSize               uint32
	LoadedAccountsDataSizeLimit uint32

	seen [InstructionSetLoadedAccountsDataSizeLimit + 1]bool
}

// Apply validates one instruction's data and records its parameter.
// Each parameter may be set once per transaction.
func (b *Budget) Apply(data []byte) error {
	d, err := decode(data)
	if err != nil {
		return err
	}
	if b.seen[d.kind] {
		return fmt.Errorf("%w: type %d", ErrDuplicateInstruction, d.kind)
	}
	b.seen[d.kind] = true

	switch d.kind {
	case InstructionRequestHeapFrame:
		if d.u32%HeapFrameAlignment != 0 || d.u32 < MinHeapFrameSize || d.u32 > MaxHeapFrameSize {
			return fmt.Errorf("%w: %d bytes", ErrInvalidHeapFrameSize, d.u32)
		}
		b.HeapFrameSize = d.u32
	case InstructionSetComputeUnitLimit:
		if d.u32 > MaxComputeUnits {
			return fmt.Errorf("%w: %d", ErrComputeUnitLimitTooHigh, d.u32)
		}
		b.ComputeUnitLimit = d.u32
	case InstructionSetComputeUnitPrice:
		b.ComputeUnitPrice = d.price
	case InstructionSetLoadedAccountsDataSizeLimit:
		b.LoadedAccountsDataSizeLimit = d.u32
	}
	return nil
}

// HasComputeUnitLimit reports whether SetComputeUnitLimit was applied.
func (b *Budget) HasComputeUnitLimit() bool {
	return b.seen[InstructionSetComputeUnitLimit]
}

// Limit returns the compute units the transaction may spend: the requested
// limit, never above ceiling.
func (b *Budget) Limit(ceiling types.ComputeUnits) types.ComputeUnits {
	if b.HasComputeUnitLimit() && types.ComputeUnits(b.ComputeUnitLimit) < ceiling {
		return types.ComputeUnits(b.ComputeUnitLimit)
	}
	return ceiling
}

// PriorityFee returns limit * price in lamports, rounded up.
func (b *Budget) PriorityFee(limit types.ComputeUnits) types.Lamports {
	if b.ComputeUnitPrice == 0 || limit == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(limit), b.ComputeUnitPrice)
	lo, carry := bits.Add64(lo, MicroLamportsPerLamport-1, 0)
	hi += carry
	if hi >= MicroLamportsPerLamport {
		return types.Lamports(^uint64(0))
	}
	fee, _ := bits.Div64(hi, lo, MicroLamportsPerLamport)
	return types.Lamports(fee)
}

// Program executes compute budget instructions inside a transaction.
type Program struct{}

// New creates the Compute Budget Program.
func New() *Program {
	return &Program{}
}

// Execute re-validates the instruction data and charges its fixed cost. The
// parameters themselves were applied before execution started.
func (p *Program) Execute(ctx *runtime.ExecutionContext) error {
	if err := ctx.ConsumeComputeUnits(instructionCost); err != nil {
		return err
	}
	var b Budget
	return b.Apply(ctx.InstructionData)
}

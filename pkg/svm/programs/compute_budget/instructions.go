package compute_budget

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Compute Budget Program instruction types (first byte of instruction data)
const (
	// InstructionRequestHeapFrame requests a specific heap frame size.
	// Accepted for compatibility; native programs have no heap.
	InstructionRequestHeapFrame uint8 = 1

	// InstructionSetComputeUnitLimit sets the compute unit limit for the transaction.
	InstructionSetComputeUnitLimit uint8 = 2

	// InstructionSetComputeUnitPrice sets the priority fee in micro-lamports per compute unit.
	InstructionSetComputeUnitPrice uint8 = 3

	// InstructionSetLoadedAccountsDataSizeLimit sets the maximum loaded account data size.
	InstructionSetLoadedAccountsDataSizeLimit uint8 = 4
)

const (
	// MaxComputeUnits is the maximum compute units allowed per transaction.
	MaxComputeUnits uint32 = 1_400_000

	MinHeapFrameSize   uint32 = 32 * 1024
	MaxHeapFrameSize   uint32 = 256 * 1024
	HeapFrameAlignment uint32 = 1024

	// MicroLamportsPerLamport converts compute unit prices to lamports.
	MicroLamportsPerLamport = 1_000_000
)

// decoded is one parsed instruction.
type decoded struct {
	kind  uint8
	u32   uint32
	price uint64
}

func decode(data []byte) (decoded, error) {
	if len(data) == 0 {
		return decoded{}, fmt.Errorf("%w: empty", ErrInvalidInstructionData)
	}
	d := decoded{kind: data[0]}
	body := data[1:]
	switch d.kind {
	case InstructionRequestHeapFrame, InstructionSetComputeUnitLimit, InstructionSetLoadedAccountsDataSizeLimit:
		if len(body) != 4 {
			return d, fmt.Errorf("%w: instruction %d needs 4 bytes, got %d", ErrInvalidInstructionData, d.kind, len(body))
		}
		d.u32 = binary.LittleEndian.Uint32(body)
	case InstructionSetComputeUnitPrice:
		if len(body) != 8 {
			return d, fmt.Errorf("%w: SetComputeUnitPrice needs 8 bytes, got %d", ErrInvalidInstructionData, len(body))
		}
		d.price = binary.LittleEndian.Uint64(body)
	default:
		return d, fmt.Errorf("%w: %d", ErrUnknownInstruction, d.kind)
	}
	return d, nil
}

func encodeU32(kind uint8, v uint32) []byte {
	data := make([]byte, 5)
	data[0] = kind
	binary.LittleEndian.PutUint32(data[1:], v)
	return data
}

// SetComputeUnitLimitData encodes a SetComputeUnitLimit instruction.
func SetComputeUnitLimitData(units uint32) []byte {
	return encodeU32(InstructionSetComputeUnitLimit, units)
}

// SetComputeUnitPriceData encodes a SetComputeUnitPrice instruction.
func SetComputeUnitPriceData(microLamports uint64) []byte {
	data := make([]byte, 9)
	data[0] = InstructionSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return data
}

// RequestHeapFrameData encodes a RequestHeapFrame instruction.
func RequestHeapFrameData(bytes uint32) []byte {
	return encodeU32(InstructionRequestHeapFrame, bytes)
}

// SetLoadedAccountsDataSizeLimitData encodes a SetLoadedAccountsDataSizeLimit instruction.
func SetLoadedAccountsDataSizeLimitData(bytes uint32) []byte {
	return encodeU32(InstructionSetLoadedAccountsDataSizeLimit, bytes)
}

// SetComputeUnitLimit builds an instruction capping the transaction's compute units.
func SetComputeUnitLimit(units uint32) types.Instruction {
	return types.Instruction{ProgramID: ProgramID, Data: SetComputeUnitLimitData(units)}
}

// SetComputeUnitPrice builds an instruction paying a priority fee of
// microLamports per requested compute unit.
func SetComputeUnitPrice(microLamports uint64) types.Instruction {
	return types.Instruction{ProgramID: ProgramID, Data: SetComputeUnitPriceData(microLamports)}
}

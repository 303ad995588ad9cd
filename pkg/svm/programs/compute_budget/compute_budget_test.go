package compute_budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-agentmarket/pkg/svm/runtime"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

func TestApply(t *testing.T) {
	var b Budget
	require.NoError(t, b.Apply(SetComputeUnitLimitData(300_000)))
	require.NoError(t, b.Apply(SetComputeUnitPriceData(42)))
	require.NoError(t, b.Apply(RequestHeapFrameData(64*1024)))
	require.NoError(t, b.Apply(SetLoadedAccountsDataSizeLimitData(1<<20)))

	assert.Equal(t, uint32(300_000), b.ComputeUnitLimit)
	assert.Equal(t, uint64(42), b.ComputeUnitPrice)
	assert.Equal(t, uint32(64*1024), b.HeapFrameSize)
	assert.Equal(t, uint32(1<<20), b.LoadedAccountsDataSizeLimit)
}

func TestApplyRejects(t *testing.T) {
	tests := []struct {
		name string
		data [][]byte
		err  error
	}{
		{"empty", [][]byte{{}}, ErrInvalidInstructionData},
		{"short limit", [][]byte{{InstructionSetComputeUnitLimit, 1, 2}}, ErrInvalidInstructionData},
		{"long price", [][]byte{append(SetComputeUnitPriceData(1), 0)}, ErrInvalidInstructionData},
		{"unknown", [][]byte{{9, 0, 0, 0, 0}}, ErrUnknownInstruction},
		{"limit too high", [][]byte{SetComputeUnitLimitData(MaxComputeUnits + 1)}, ErrComputeUnitLimitTooHigh},
		{"unaligned heap", [][]byte{RequestHeapFrameData(33 * 1000)}, ErrInvalidHeapFrameSize},
		{"heap too large", [][]byte{RequestHeapFrameData(MaxHeapFrameSize + HeapFrameAlignment)}, ErrInvalidHeapFrameSize},
		{"duplicate", [][]byte{SetComputeUnitLimitData(1), SetComputeUnitLimitData(2)}, ErrDuplicateInstruction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Budget
			var err error
			for _, data := range tt.data {
				if err = b.Apply(data); err != nil {
					break
				}
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLimit(t *testing.T) {
	var b Budget
	assert.Equal(t, types.ComputeUnits(1_400_000), b.Limit(1_400_000))

	require.NoError(t, b.Apply(SetComputeUnitLimitData(50_000)))
	assert.Equal(t, types.ComputeUnits(50_000), b.Limit(1_400_000))
	assert.Equal(t, types.ComputeUnits(10_000), b.Limit(10_000))
}

func TestPriorityFee(t *testing.T) {
	tests := []struct {
		price uint64
		limit types.ComputeUnits
		want  types.Lamports
	}{
		{0, 200_000, 0},
		{1, 0, 0},
		{10_000, 200_000, 2000},
		{1, 200_000, 1},
		{3, 500_000, 2},
		{^uint64(0), 1_400_000, types.Lamports(^uint64(0))},
	}
	for _, tt := range tests {
		b := Budget{ComputeUnitPrice: tt.price}
		assert.Equal(t, tt.want, b.PriorityFee(tt.limit), "price %d limit %d", tt.price, tt.limit)
	}
}

func TestExecuteChargesFixedCost(t *testing.T) {
	ctx := runtime.NewExecutionContext(ProgramID, nil, SetComputeUnitPriceData(5), 1000)
	require.NoError(t, New().Execute(ctx))
	assert.Equal(t, uint64(instructionCost), ctx.GetComputeUnitsConsumed())

	ctx = runtime.NewExecutionContext(ProgramID, nil, []byte{7}, 1000)
	assert.ErrorIs(t, New().Execute(ctx), ErrUnknownInstruction)
}

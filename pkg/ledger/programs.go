package ledger

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/system"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/runtime"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Program is a native program the ledger can dispatch instructions to.
type Program interface {
	// Execute runs one instruction against ctx.
	Execute(ctx *runtime.ExecutionContext) error
}

// ProgramFunc is a function adapter for Program.
type ProgramFunc func(ctx *runtime.ExecutionContext) error

// Execute implements Program.
func (f ProgramFunc) Execute(ctx *runtime.ExecutionContext) error {
	return f(ctx)
}

// ProgramInfo describes a registered program.
type ProgramInfo struct {
	ID   types.Pubkey
	Name string
}

// ProgramRegistry manages the mapping of program IDs to their executors.
type ProgramRegistry struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]Program
	names    map[types.Pubkey]string
}

// NewProgramRegistry creates an empty program registry.
func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{
		programs: make(map[types.Pubkey]Program),
		names:    make(map[types.Pubkey]string),
	}
}

// RegisterProgram registers a program under id with a display name.
func (r *ProgramRegistry) RegisterProgram(id types.Pubkey, name string, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = program
	r.names[id] = name
}

// GetProgram returns the program registered under id.
func (r *ProgramRegistry) GetProgram(id types.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

// ListPrograms returns every registered program ordered by ID.
func (r *ProgramRegistry) ListPrograms() []ProgramInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProgramInfo, 0, len(r.programs))
	for id := range r.programs {
		out = append(out, ProgramInfo{ID: id, Name: r.names[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

// Count returns the number of registered programs.
func (r *ProgramRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

// Invoke implements runtime.Invoker: it dispatches ctx to the program named
// by ctx.ProgramID. Cross-program calls are charged a fixed compute cost.
func (r *ProgramRegistry) Invoke(ctx *runtime.ExecutionContext) error {
	program, ok := r.GetProgram(ctx.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, ctx.ProgramID)
	}
	if !ctx.IsTopLevel() {
		if err := ctx.ConsumeComputeUnits(uint64(types.ComputeUnitsPerCPI)); err != nil {
			return err
		}
	}
	return program.Execute(ctx)
}

var _ runtime.Invoker = (*ProgramRegistry)(nil)

// RegisterNativePrograms registers the System Program, the Compute Budget
// Program and the agent marketplace program.
func RegisterNativePrograms(registry *ProgramRegistry, market *agentmarket.Program) {
	registry.RegisterProgram(types.SystemProgramID, "System Program", system.New())
	registry.RegisterProgram(compute_budget.ProgramID, "Compute Budget Program", compute_budget.New())
	registry.RegisterProgram(market.ProgramID(), "Agent Marketplace", market)
}

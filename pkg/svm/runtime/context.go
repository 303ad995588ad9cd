// Package runtime holds the per-instruction execution state native programs
// run against: account views, compute meter, program logs, rent parameters
// and cross-program invocation.
package runtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Context errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotWritable  = errors.New("account is not writable")
	ErrAccountNotSigner    = errors.New("account is not a signer")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrComputeExhausted    = errors.New("compute units exhausted")
	ErrMaxLogsExceeded     = errors.New("maximum log entries exceeded")
	ErrLogTooLong          = errors.New("log message too long")
	ErrInvalidAccountIndex = errors.New("invalid account index")
	ErrCPIDepthExceeded    = errors.New("cross-program invocation depth exceeded")
	ErrPrivilegeEscalation = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrNoInvoker           = errors.New("no program invoker registered")
)

// Limits for execution
const (
	MaxLogMessages      = 64
	MaxLogMessageLength = 10000
	MaxReturnDataLength = 1024
	MaxInstructionData  = 1232
	MaxAccountDataSize  = 10 * 1024 * 1024 // 10MB
	MaxCPIDepth         = 4
)

// AccountInfo represents account information available to a program.
type AccountInfo struct {
	Pubkey     types.Pubkey
	Lamports   *uint64 // Pointer allows modification detection
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// NewAccountInfo builds a view over a copy of account. A nil account is
// presented as an empty system-owned account.
func NewAccountInfo(pubkey types.Pubkey, account *types.Account, isSigner, isWritable bool) *AccountInfo {
	if account == nil {
		account = types.NewAccount(0, types.SystemProgramID)
	}
	lamports := uint64(account.Lamports)
	info := &AccountInfo{
		Pubkey:     pubkey,
		Lamports:   &lamports,
		Owner:      account.Owner,
		Executable: account.Executable,
		RentEpoch:  uint64(account.RentEpoch),
		IsSigner:   isSigner,
		IsWritable: isWritable,
	}
	if account.Data != nil {
		info.Data = make([]byte, len(account.Data))
		copy(info.Data, account.Data)
	}
	return info
}

// Clone creates a deep copy of AccountInfo.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	lamports := *a.Lamports
	clone := &AccountInfo{
		Pubkey:     a.Pubkey,
		Lamports:   &lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
		IsSigner:   a.IsSigner,
		IsWritable: a.IsWritable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// ToAccount converts the view back to a stored account.
func (a *AccountInfo) ToAccount() *types.Account {
	acc := &types.Account{
		Lamports:   types.Lamports(*a.Lamports),
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  types.Epoch(a.RentEpoch),
	}
	if len(a.Data) > 0 {
		acc.Data = make([]byte, len(a.Data))
		copy(acc.Data, a.Data)
	}
	return acc
}

// IsUninitialized reports whether the account holds nothing: no lamports,
// no data and the system program as owner.
func (a *AccountInfo) IsUninitialized() bool {
	return *a.Lamports == 0 && len(a.Data) == 0 && a.Owner == types.SystemProgramID
}

// Invoker runs the program named by ctx.ProgramID. The ledger provides it
// so programs can call each other without importing the ledger.
type Invoker interface {
	Invoke(ctx *ExecutionContext) error
}

type computeMeter struct {
	mu        sync.Mutex
	remaining uint64
	max       uint64
}

type logCollector struct {
	mu   sync.Mutex
	logs []string
}

// ExecutionContext holds the execution state for one instruction.
type ExecutionContext struct {
	mu sync.RWMutex

	// Program being executed
	ProgramID types.Pubkey

	// Accounts available to the instruction
	Accounts []*AccountInfo

	// Account index by pubkey for fast lookup
	accountIndex map[types.Pubkey]int

	// Instruction data
	InstructionData []byte

	// Compute meter and logs are shared with child contexts.
	meter *computeMeter
	logs  *logCollector

	// Return data from the program
	ReturnData        []byte
	ReturnDataProgram types.Pubkey

	// Depth of CPI calls
	Depth int

	// Stack of callers for CPI
	CallerStack []types.Pubkey

	// Slot context
	Slot types.Slot

	// Rent parameters
	Rent types.Rent

	// MaxAccountDataSize bounds allocations made during this instruction.
	MaxAccountDataSize uint64

	invoker Invoker
}

// NewExecutionContext creates a new execution context.
func NewExecutionContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte, computeUnits uint64) *ExecutionContext {
	ctx := &ExecutionContext{
		ProgramID:          programID,
		Accounts:           accounts,
		InstructionData:    instructionData,
		meter:              &computeMeter{remaining: computeUnits, max: computeUnits},
		logs:               &logCollector{logs: make([]string, 0, MaxLogMessages)},
		accountIndex:       make(map[types.Pubkey]int),
		CallerStack:        make([]types.Pubkey, 0, 4),
		Rent:               types.DefaultRent(),
		MaxAccountDataSize: MaxAccountDataSize,
	}

	for i, acc := range accounts {
		if _, dup := ctx.accountIndex[acc.Pubkey]; !dup {
			ctx.accountIndex[acc.Pubkey] = i
		}
	}

	return ctx
}

// SetInvoker registers the program invoker used for cross-program calls.
func (ctx *ExecutionContext) SetInvoker(invoker Invoker) {
	ctx.invoker = invoker
}

// ConsumeComputeUnits deducts compute units.
func (ctx *ExecutionContext) ConsumeComputeUnits(units uint64) error {
	ctx.meter.mu.Lock()
	defer ctx.meter.mu.Unlock()

	if units > ctx.meter.remaining {
		ctx.meter.remaining = 0
		return ErrComputeExhausted
	}
	ctx.meter.remaining -= units
	return nil
}

// GetComputeUnitsRemaining returns remaining compute units.
func (ctx *ExecutionContext) GetComputeUnitsRemaining() uint64 {
	ctx.meter.mu.Lock()
	defer ctx.meter.mu.Unlock()
	return ctx.meter.remaining
}

// GetComputeUnitsConsumed returns consumed compute units.
func (ctx *ExecutionContext) GetComputeUnitsConsumed() uint64 {
	ctx.meter.mu.Lock()
	defer ctx.meter.mu.Unlock()
	return ctx.meter.max - ctx.meter.remaining
}

// AddLog adds a raw log line.
func (ctx *ExecutionContext) AddLog(message string) error {
	ctx.logs.mu.Lock()
	defer ctx.logs.mu.Unlock()

	if len(ctx.logs.logs) >= MaxLogMessages {
		return ErrMaxLogsExceeded
	}
	if len(message) > MaxLogMessageLength {
		return ErrLogTooLong
	}

	ctx.logs.logs = append(ctx.logs.logs, message)
	return nil
}

// Logf records a program log line, prefixed the way explorers expect.
func (ctx *ExecutionContext) Logf(format string, args ...any) {
	_ = ctx.AddLog("Program log: " + fmt.Sprintf(format, args...))
}

// GetLogs returns all log messages.
func (ctx *ExecutionContext) GetLogs() []string {
	ctx.logs.mu.Lock()
	defer ctx.logs.mu.Unlock()
	logs := make([]string, len(ctx.logs.logs))
	copy(logs, ctx.logs.logs)
	return logs
}

// GetAccount returns an account by pubkey.
func (ctx *ExecutionContext) GetAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	idx, ok := ctx.accountIndex[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey.String())
	}
	return ctx.Accounts[idx], nil
}

// GetAccountByIndex returns an account by index.
func (ctx *ExecutionContext) GetAccountByIndex(index int) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	if index < 0 || index >= len(ctx.Accounts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountIndex, index)
	}
	return ctx.Accounts[index], nil
}

// AccountCount returns the number of accounts.
func (ctx *ExecutionContext) AccountCount() int {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return len(ctx.Accounts)
}

// SetReturnData sets the return data for the instruction.
func (ctx *ExecutionContext) SetReturnData(data []byte) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if len(data) > MaxReturnDataLength {
		data = data[:MaxReturnDataLength]
	}

	ctx.ReturnDataProgram = ctx.ProgramID
	ctx.ReturnData = make([]byte, len(data))
	copy(ctx.ReturnData, data)
}

// GetReturnData returns the current return data.
func (ctx *ExecutionContext) GetReturnData() (types.Pubkey, []byte) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	data := make([]byte, len(ctx.ReturnData))
	copy(data, ctx.ReturnData)
	return ctx.ReturnDataProgram, data
}

// TransferLamports moves lamports between two writable accounts of this
// instruction.
func (ctx *ExecutionContext) TransferLamports(from, to types.Pubkey, amount uint64) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	fromIdx, ok := ctx.accountIndex[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, from.String())
	}
	toIdx, ok := ctx.accountIndex[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, to.String())
	}

	fromAcc := ctx.Accounts[fromIdx]
	toAcc := ctx.Accounts[toIdx]

	if !fromAcc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, from.String())
	}
	if !toAcc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, to.String())
	}
	if *fromAcc.Lamports < amount {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, amount, *fromAcc.Lamports)
	}
	if fromAcc == toAcc {
		return nil
	}
	if *toAcc.Lamports > ^uint64(0)-amount {
		return fmt.Errorf("%w: crediting %s", ErrArithmeticOverflow, to.String())
	}

	*fromAcc.Lamports -= amount
	*toAcc.Lamports += amount
	return nil
}

// Invoke calls programID with the given accounts and data. Each account must
// already be present in this context and may only be passed as signer or
// writable if the caller holds that privilege. Changes the callee makes to
// writable accounts are copied back into this context when it succeeds.
func (ctx *ExecutionContext) Invoke(programID types.Pubkey, metas []types.AccountMeta, data []byte) error {
	if ctx.Depth >= MaxCPIDepth {
		return ErrCPIDepthExceeded
	}
	if ctx.invoker == nil {
		return ErrNoInvoker
	}

	callee := make([]*AccountInfo, len(metas))
	shared := make(map[types.Pubkey]*AccountInfo, len(metas))
	for i, meta := range metas {
		caller, err := ctx.GetAccount(meta.Pubkey)
		if err != nil {
			return err
		}
		if meta.IsSigner && !caller.IsSigner {
			return fmt.Errorf("%w: %s must sign", ErrPrivilegeEscalation, meta.Pubkey)
		}
		if meta.IsWritable && !caller.IsWritable {
			return fmt.Errorf("%w: %s must be writable", ErrPrivilegeEscalation, meta.Pubkey)
		}
		info, ok := shared[meta.Pubkey]
		if !ok {
			info = caller.Clone()
			info.IsSigner = false
			info.IsWritable = false
			shared[meta.Pubkey] = info
		}
		info.IsSigner = info.IsSigner || meta.IsSigner
		info.IsWritable = info.IsWritable || meta.IsWritable
		callee[i] = info
	}

	child := ctx.CreateChildContext(programID, callee, data)

	_ = ctx.AddLog(fmt.Sprintf("Program %s invoke [%d]", programID, child.Depth+1))
	if err := ctx.invoker.Invoke(child); err != nil {
		_ = ctx.AddLog(fmt.Sprintf("Program %s failed: %v", programID, err))
		return err
	}
	_ = ctx.AddLog(fmt.Sprintf("Program %s success", programID))

	for pk, info := range shared {
		if !info.IsWritable {
			continue
		}
		caller, _ := ctx.GetAccount(pk)
		*caller.Lamports = *info.Lamports
		caller.Owner = info.Owner
		if len(info.Data) != len(caller.Data) {
			caller.Data = make([]byte, len(info.Data))
		}
		copy(caller.Data, info.Data)
	}

	if len(child.ReturnData) > 0 {
		ctx.mu.Lock()
		ctx.ReturnData = child.ReturnData
		ctx.ReturnDataProgram = child.ReturnDataProgram
		ctx.mu.Unlock()
	}
	return nil
}

// CreateChildContext creates a child execution context for CPI.
// The child shares the compute meter and log buffer with its parent.
func (ctx *ExecutionContext) CreateChildContext(
	programID types.Pubkey,
	accounts []*AccountInfo,
	instructionData []byte,
) *ExecutionContext {
	child := &ExecutionContext{
		ProgramID:          programID,
		Accounts:           accounts,
		InstructionData:    instructionData,
		meter:              ctx.meter,
		logs:               ctx.logs,
		accountIndex:       make(map[types.Pubkey]int),
		Depth:              ctx.Depth + 1,
		CallerStack:        append(append([]types.Pubkey{}, ctx.CallerStack...), ctx.ProgramID),
		Slot:               ctx.Slot,
		Rent:               ctx.Rent,
		MaxAccountDataSize: ctx.MaxAccountDataSize,
		invoker:            ctx.invoker,
	}

	for i, acc := range accounts {
		if _, dup := child.accountIndex[acc.Pubkey]; !dup {
			child.accountIndex[acc.Pubkey] = i
		}
	}

	return child
}

// IsTopLevel returns true if this is the top-level execution (not a CPI call).
func (ctx *ExecutionContext) IsTopLevel() bool {
	return ctx.Depth == 0
}

// GetCaller returns the program that invoked this one.
func (ctx *ExecutionContext) GetCaller() (types.Pubkey, bool) {
	if len(ctx.CallerStack) == 0 {
		return types.ZeroPubkey, false
	}
	return ctx.CallerStack[len(ctx.CallerStack)-1], true
}

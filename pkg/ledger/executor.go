package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/fortiblox/x1-agentmarket/pkg/crypto"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/compute_budget"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/runtime"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// ProcessTransaction verifies and executes tx.
//
// A transaction that fails verification (malformed, bad signature, stale
// blockhash, duplicate, unpayable fee) is rejected with an error and leaves
// no trace. A transaction that executes returns a result; if any instruction
// failed, result.Error is set and no account, fee included, was changed.
func (l *Ledger) ProcessTransaction(ctx context.Context, tx *types.Transaction) (*types.TransactionResult, error) {
	start := time.Now()
	result, err := l.processTransaction(ctx, tx)
	if err != nil {
		l.recorder.ObserveRejection(err)
		l.log.Debug().Err(err).Msg("transaction rejected")
		return nil, err
	}
	elapsed := time.Since(start)
	l.recorder.ObserveTransaction(result, elapsed)

	ev := l.log.Debug()
	if !result.Success {
		ev = l.log.Info().Err(result.Error)
	}
	ev.Str("signature", result.Signature.String()).
		Uint64("slot", uint64(result.Slot)).
		Bool("success", result.Success).
		Uint64("compute_units", uint64(result.ComputeUnits)).
		Dur("elapsed", elapsed).
		Msg("transaction processed")
	return result, nil
}

func (l *Ledger) processTransaction(ctx context.Context, tx *types.Transaction) (*types.TransactionResult, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if err := l.precheck(tx); err != nil {
		return nil, err
	}

	locks := lockSetForMessage(&tx.Message)
	if err := l.locks.acquire(ctx, locks); err != nil {
		return nil, err
	}
	defer l.locks.release(locks)

	// Checked under the fee payer's write lock so concurrent duplicates
	// serialize here.
	sig := tx.ID()
	if prev, ok := l.status.Get(sig); ok && prev.Success {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, sig)
	}

	result, changed, err := l.execute(tx)
	if err != nil {
		return nil, err
	}
	if result.Success && len(changed) > 0 {
		if err := l.db.Commit(changed); err != nil {
			return nil, fmt.Errorf("failed to commit transaction %s: %w", sig, err)
		}
	}

	result.Slot = l.bank.record(sig, len(tx.Signatures), changed)
	l.status.Add(sig, result)
	return result, nil
}

// precheck runs the stateless checks.
func (l *Ledger) precheck(tx *types.Transaction) error {
	if tx == nil {
		return ErrNilTransaction
	}
	if len(tx.Message.Instructions) == 0 {
		return ErrNoInstructions
	}
	if err := tx.Message.Sanitize(); err != nil {
		return err
	}
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return fmt.Errorf("%w: expected %d signatures, got %d",
			ErrSignatureFailure, tx.Message.Header.NumRequiredSignatures, len(tx.Signatures))
	}
	if l.opts.VerifySignatures {
		if err := crypto.VerifyTransaction(tx); err != nil {
			return fmt.Errorf("%w: %w", ErrSignatureFailure, err)
		}
	}
	if !l.IsBlockhashValid(tx.Message.RecentBlockhash) {
		return fmt.Errorf("%w: %s", ErrBlockhashNotFound, tx.Message.RecentBlockhash)
	}
	return nil
}

// execute runs every instruction of tx against a private copy of its
// accounts. It returns the accounts to commit when the transaction succeeds.
func (l *Ledger) execute(tx *types.Transaction) (*types.TransactionResult, []types.AccountRef, error) {
	msg := &tx.Message
	keys := msg.AccountKeys

	working := make([]*runtime.AccountInfo, len(keys))
	original := make([]*types.Account, len(keys))
	for i, pk := range keys {
		acc, err := l.db.GetAccount(pk)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load account %s: %w", pk, err)
		}
		original[i] = acc
		working[i] = runtime.NewAccountInfo(pk, acc, msg.IsSigner(i), msg.IsWritable(i))
	}

	payer := working[0]
	if payer.Owner != types.SystemProgramID || len(payer.Data) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidFeePayer, payer.Pubkey)
	}

	slot := l.Slot()
	result := &types.TransactionResult{
		Signature:        tx.ID(),
		InstructionIndex: -1,
	}

	var budget compute_budget.Budget
	for i, ix := range msg.Instructions {
		programID := keys[ix.ProgramIDIndex]
		if programID != compute_budget.ProgramID {
			continue
		}
		if err := budget.Apply(ix.Data); err != nil {
			result.InstructionIndex = i
			result.Error = &InstructionError{Index: i, ProgramID: programID, Err: err}
			return result, nil, nil
		}
	}
	limit := budget.Limit(l.opts.ComputeUnitLimit)

	fee, overflow := addLamports(l.opts.FeePerSignature*types.Lamports(len(tx.Signatures)), budget.PriorityFee(limit))
	if overflow || *payer.Lamports < uint64(fee) {
		return nil, nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFundsForFee, fee, *payer.Lamports)
	}
	*payer.Lamports -= uint64(fee)

	result.Fee = fee
	remaining := uint64(limit)

	for i, ix := range msg.Instructions {
		programID := keys[ix.ProgramIDIndex]
		accs := make([]*runtime.AccountInfo, len(ix.AccountIndices))
		for j, idx := range ix.AccountIndices {
			accs[j] = working[idx]
		}
		before := snapshotAccounts(accs)

		ictx := runtime.NewExecutionContext(programID, accs, ix.Data, remaining)
		ictx.Slot = slot
		ictx.Rent = l.opts.Rent
		ictx.MaxAccountDataSize = l.opts.MaxAccountDataSize
		ictx.SetInvoker(l.programs)

		_ = ictx.AddLog(fmt.Sprintf("Program %s invoke [1]", programID))
		err := l.programs.Invoke(ictx)
		if err == nil {
			err = verifyInstruction(before, l.opts.MaxAccountDataSize)
		}

		consumed := ictx.GetComputeUnitsConsumed()
		remaining -= consumed
		result.ComputeUnits += types.ComputeUnits(consumed)

		if err != nil {
			_ = ictx.AddLog(fmt.Sprintf("Program %s failed: %v", programID, err))
			result.Logs = append(result.Logs, ictx.GetLogs()...)
			result.InstructionIndex = i
			result.Error = &InstructionError{Index: i, ProgramID: programID, Err: err}
			result.Fee = 0
			return result, nil, nil
		}
		_ = ictx.AddLog(fmt.Sprintf("Program %s consumed %d of %d compute units", programID, consumed, consumed+remaining))
		_ = ictx.AddLog(fmt.Sprintf("Program %s success", programID))
		result.Logs = append(result.Logs, ictx.GetLogs()...)
		if _, data := ictx.GetReturnData(); len(data) > 0 {
			result.ReturnData = data
		}
	}

	var changed []types.AccountRef
	for i, info := range working {
		if !msg.IsWritable(i) {
			continue
		}
		acc := info.ToAccount()
		if original[i] == nil && acc.IsEmpty() && acc.Owner == types.SystemProgramID {
			continue
		}
		if accountsEqual(original[i], acc) {
			continue
		}
		changed = append(changed, types.AccountRef{Pubkey: keys[i], Account: acc})
		result.AccountDeltas = append(result.AccountDeltas, types.AccountDelta{
			Pubkey:     keys[i],
			OldAccount: original[i],
			NewAccount: acc,
		})
	}

	result.Success = true
	return result, changed, nil
}

// accountSnapshot is the pre-instruction state of one distinct account.
type accountSnapshot struct {
	info    *runtime.AccountInfo
	account *types.Account
}

func snapshotAccounts(accs []*runtime.AccountInfo) []accountSnapshot {
	seen := make(map[*runtime.AccountInfo]struct{}, len(accs))
	out := make([]accountSnapshot, 0, len(accs))
	for _, info := range accs {
		if _, dup := seen[info]; dup {
			continue
		}
		seen[info] = struct{}{}
		out = append(out, accountSnapshot{info: info, account: info.ToAccount()})
	}
	return out
}

// verifyInstruction checks what a program left behind: readonly and
// executable accounts are untouched, data fits the size limit and no
// lamports were minted or burned.
func verifyInstruction(before []accountSnapshot, maxDataSize uint64) error {
	var sumBeforeHi, sumBeforeLo, sumAfterHi, sumAfterLo uint64
	for _, snap := range before {
		after := snap.info.ToAccount()
		if !snap.info.IsWritable && !accountsEqual(snap.account, after) {
			return fmt.Errorf("%w: %s", ErrReadonlyDataModified, snap.info.Pubkey)
		}
		if snap.account.Executable && !accountsEqual(snap.account, after) {
			return fmt.Errorf("%w: %s", ErrExecutableModified, snap.info.Pubkey)
		}
		if uint64(len(after.Data)) > maxDataSize {
			return fmt.Errorf("%w: %s holds %d bytes", ErrAccountDataSizeExceeded, snap.info.Pubkey, len(after.Data))
		}

		var carry uint64
		sumBeforeLo, carry = bits.Add64(sumBeforeLo, uint64(snap.account.Lamports), 0)
		sumBeforeHi += carry
		sumAfterLo, carry = bits.Add64(sumAfterLo, uint64(after.Lamports), 0)
		sumAfterHi += carry
	}
	if sumBeforeHi != sumAfterHi || sumBeforeLo != sumAfterLo {
		return ErrUnbalancedInstruction
	}
	return nil
}

// accountsEqual checks if two accounts are equal. A nil account equals an
// empty system-owned one.
func accountsEqual(a, b *types.Account) bool {
	if a == nil {
		a = types.NewAccount(0, types.SystemProgramID)
	}
	if b == nil {
		b = types.NewAccount(0, types.SystemProgramID)
	}
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// ProgramErrorOf returns the failing instruction's error, unwrapped from the
// ledger's InstructionError.
func ProgramErrorOf(result *types.TransactionResult) error {
	if result == nil || result.Error == nil {
		return nil
	}
	var ie *InstructionError
	if errors.As(result.Error, &ie) {
		return ie.Err
	}
	return result.Error
}

func addLamports(a, b types.Lamports) (types.Lamports, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	return types.Lamports(sum), carry != 0
}

package ledger

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Airdrop moves lamports from the faucet to the given account and returns
// the faucet's signature over the grant, which can be looked up like any
// transaction signature.
func (l *Ledger) Airdrop(ctx context.Context, to types.Pubkey, lamports types.Lamports) (types.Signature, error) {
	faucet := l.opts.Faucet
	switch {
	case faucet == nil:
		return types.Signature{}, ErrFaucetDisabled
	case l.closed.Load():
		return types.Signature{}, ErrClosed
	case l.opts.MaxAirdrop > 0 && lamports > l.opts.MaxAirdrop:
		return types.Signature{}, fmt.Errorf("%w: requested %s, limit %s", ErrAirdropTooLarge, lamports, l.opts.MaxAirdrop)
	case to == faucet.Pubkey():
		return types.Signature{}, fmt.Errorf("cannot airdrop to the faucet")
	}

	locks := lockSet{writable: []types.Pubkey{faucet.Pubkey(), to}}
	if err := l.locks.acquire(ctx, locks); err != nil {
		return types.Signature{}, err
	}
	defer l.locks.release(locks)

	source, err := l.db.GetAccount(faucet.Pubkey())
	if err != nil {
		return types.Signature{}, err
	}
	if source == nil || source.Lamports < lamports {
		return types.Signature{}, fmt.Errorf("faucet has insufficient funds for %s", lamports)
	}
	dest, err := l.db.GetAccount(to)
	if err != nil {
		return types.Signature{}, err
	}
	var oldDest *types.Account
	if dest == nil {
		dest = types.NewAccount(0, types.SystemProgramID)
	} else {
		oldDest = dest.Clone()
	}
	if dest.Lamports > ^types.Lamports(0)-lamports {
		return types.Signature{}, fmt.Errorf("airdrop to %s would overflow its balance", to)
	}

	oldSource := source.Clone()
	source.Lamports -= lamports
	dest.Lamports += lamports
	changed := []types.AccountRef{{Pubkey: faucet.Pubkey(), Account: source}, {Pubkey: to, Account: dest}}
	if err := l.db.Commit(changed); err != nil {
		return types.Signature{}, fmt.Errorf("failed to commit airdrop: %w", err)
	}

	// The sequence number keeps repeated grants to one account distinct.
	grant := make([]byte, 0, 7+32+16)
	grant = append(grant, "airdrop"...)
	grant = append(grant, to[:]...)
	grant = binary.LittleEndian.AppendUint64(grant, uint64(lamports))
	grant = binary.LittleEndian.AppendUint64(grant, l.airdrops.Add(1))
	sig := faucet.Sign(grant)

	result := &types.TransactionResult{
		Signature:        sig,
		Success:          true,
		InstructionIndex: -1,
		Logs: []string{
			fmt.Sprintf("Program %s invoke [1]", types.SystemProgramID),
			fmt.Sprintf("Program %s success", types.SystemProgramID),
		},
		AccountDeltas: []types.AccountDelta{
			{Pubkey: faucet.Pubkey(), OldAccount: oldSource, NewAccount: source},
			{Pubkey: to, OldAccount: oldDest, NewAccount: dest},
		},
	}
	result.Slot = l.bank.record(sig, 1, changed)
	l.status.Add(sig, result)
	l.recorder.ObserveTransaction(result, 0)

	l.log.Info().
		Str("to", to.String()).
		Str("amount", lamports.String()).
		Str("signature", sig.String()).
		Msg("airdrop")
	return sig, nil
}

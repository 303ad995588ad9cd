// Package test exercises a complete marketplace node end to end:
// 1. Open a Badger account store and a ledger with the marketplace program
// 2. Serve it over JSON-RPC with metrics attached
// 3. Drive it with the solana-go based client
// 4. Check balances, records, program errors and metrics
// 5. Snapshot the state and resume it in a second node
package test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-agentmarket/pkg/accounts"
	"github.com/fortiblox/x1-agentmarket/pkg/client"
	"github.com/fortiblox/x1-agentmarket/pkg/crypto"
	"github.com/fortiblox/x1-agentmarket/pkg/ledger"
	"github.com/fortiblox/x1-agentmarket/pkg/metrics"
	"github.com/fortiblox/x1-agentmarket/pkg/rpc"
	"github.com/fortiblox/x1-agentmarket/pkg/snapshot"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/system"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Test utilities

type node struct {
	db      accounts.AccountsDB
	ledger  *ledger.Ledger
	market  *agentmarket.Program
	metrics *metrics.Metrics
	client  *client.Client
}

func startNode(t testing.TB, db accounts.AccountsDB, startSlot types.Slot) *node {
	t.Helper()
	market := agentmarket.New(agentmarket.DefaultConfig())
	registry := ledger.NewProgramRegistry()
	ledger.RegisterNativePrograms(registry, market)

	faucet, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	m := metrics.NewMetrics()

	opts := ledger.DefaultOptions()
	opts.Faucet = faucet
	opts.Recorder = m
	opts.StartSlot = startSlot
	l, err := ledger.New(db, registry, opts)
	require.NoError(t, err)

	cfg := rpc.DefaultServerConfig()
	cfg.Observer = m
	srv := httptest.NewServer(rpc.NewServer(cfg, rpc.NewHandlers(l, market, "integration")).Handler())
	t.Cleanup(srv.Close)

	return &node{
		db:      db,
		ledger:  l,
		market:  market,
		metrics: m,
		client:  client.New(srv.URL, client.WithConfirmation(5*time.Millisecond, 5*time.Second)),
	}
}

func badgerDB(t testing.TB) *accounts.BadgerDB {
	t.Helper()
	db, err := accounts.NewInMemoryBadgerDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func (n *node) funded(t testing.TB, sol uint64) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	_, err = n.client.Airdrop(context.Background(), key.PublicKey(), sol*types.LamportsPerSOL)
	require.NoError(t, err)
	return key
}

func (n *node) balance(t testing.TB, pk solana.PublicKey) uint64 {
	t.Helper()
	b, err := n.client.Balance(context.Background(), pk)
	require.NoError(t, err)
	return b
}

// signedTx builds a ledger transaction directly, bypassing RPC.
func (n *node) signedTx(t testing.TB, payer *crypto.Keypair, signers []*crypto.Keypair, ixs ...types.Instruction) *types.Transaction {
	t.Helper()
	blockhash, _ := n.ledger.LatestBlockhash()
	msg, err := types.NewMessage(payer.Pubkey(), blockhash, ixs)
	require.NoError(t, err)
	tx := &types.Transaction{Message: *msg}
	require.NoError(t, crypto.SignTransaction(tx, append([]*crypto.Keypair{payer}, signers...)...))
	return tx
}

func summariser() agentmarket.RegisterAgent {
	return agentmarket.RegisterAgent{
		AgentName:   "AI Agent #1",
		Description: "Agent that summarizes text.",
		Endpoint:    "https://api.agentx.io/summarize",
		Price:       5000,
	}
}

func TestMarketplace_RegisterScenario(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()
	owner := n.funded(t, 2)

	record, _, err := n.client.RegisterAgent(ctx, owner, summariser())
	require.NoError(t, err)

	agent, err := n.client.GetAgent(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, "AI Agent #1", agent.Name)
	assert.Equal(t, uint64(5000), agent.Price)
	assert.Equal(t, "https://api.agentx.io/summarize", agent.Endpoint)
	assert.Equal(t, client.Pubkey(owner.PublicKey()), agent.Owner)

	// The record is rent exempt for its exact size.
	acc, err := n.ledger.GetAccount(client.Pubkey(record))
	require.NoError(t, err)
	assert.Equal(t, n.market.ProgramID(), acc.Owner)
	assert.Equal(t, agent.Size(), uint64(len(acc.Data)))
	assert.GreaterOrEqual(t, acc.Lamports, n.ledger.MinimumBalanceForRentExemption(uint64(len(acc.Data))))
}

func TestMarketplace_ValidInvoke(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()
	owner := n.funded(t, 2)
	user := n.funded(t, 1)

	record, _, err := n.client.RegisterAgent(ctx, owner, summariser())
	require.NoError(t, err)

	ownerBefore := n.balance(t, owner.PublicKey())
	userBefore := n.balance(t, user.PublicKey())
	recordBefore := n.balance(t, record)

	sig, err := n.client.InvokeAgent(ctx, user, record)
	require.NoError(t, err)

	assert.Equal(t, ownerBefore+5000, n.balance(t, owner.PublicKey()))
	assert.Equal(t, userBefore-5000-uint64(n.ledger.FeePerSignature()), n.balance(t, user.PublicKey()))
	assert.Equal(t, recordBefore, n.balance(t, record))

	result, ok := n.ledger.SignatureStatus(types.Signature(sig))
	require.True(t, ok)
	assert.Contains(t, strings.Join(result.Logs, "\n"), "Agent invoked by: "+user.PublicKey().String())
}

func TestMarketplace_SelfInvoke(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()
	owner := n.funded(t, 2)

	record, _, err := n.client.RegisterAgent(ctx, owner, summariser())
	require.NoError(t, err)

	before := n.balance(t, owner.PublicKey())
	_, err = n.client.InvokeAgent(ctx, owner, record)
	require.NoError(t, err)

	// Paying yourself only costs the fee.
	assert.Equal(t, before-uint64(n.ledger.FeePerSignature()), n.balance(t, owner.PublicKey()))
}

func TestMarketplace_MismatchedInvoke(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()
	owner := n.funded(t, 2)
	user := n.funded(t, 1)

	record, _, err := n.client.RegisterAgent(ctx, owner, summariser())
	require.NoError(t, err)
	impostor := solana.NewWallet().PublicKey()

	ownerBefore := n.balance(t, owner.PublicKey())
	userBefore := n.balance(t, user.PublicKey())
	recordBefore := n.balance(t, record)

	_, err = n.client.InvokeAgentWithOwner(ctx, user, record, impostor)
	require.Error(t, err)

	pe, ok := client.ProgramErrorOf(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, uint32(6000), pe.Code)
	assert.Equal(t, "The provided agent owner does not match the stored owner.", pe.Msg)

	assert.Equal(t, ownerBefore, n.balance(t, owner.PublicKey()))
	assert.Equal(t, userBefore, n.balance(t, user.PublicKey()))
	assert.Equal(t, recordBefore, n.balance(t, record))
	_, err = n.client.GetAgent(ctx, impostor)
	assert.ErrorIs(t, err, client.ErrAgentNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.ProgramErrors.WithLabelValues("6000", "InvalidAgentOwner")))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.Transactions.WithLabelValues("failed")))
}

func TestMarketplace_SizeRejection(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()
	owner := n.funded(t, 2)

	tests := []struct {
		name   string
		mutate func(*agentmarket.RegisterAgent)
	}{
		{"name 300 bytes", func(a *agentmarket.RegisterAgent) { a.AgentName = strings.Repeat("n", 300) }},
		{"description 500 bytes", func(a *agentmarket.RegisterAgent) { a.Description = strings.Repeat("d", 500) }},
		{"endpoint 301 bytes", func(a *agentmarket.RegisterAgent) { a.Endpoint = "https://" + strings.Repeat("e", 293) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := summariser()
			tt.mutate(&args)
			before := n.balance(t, owner.PublicKey())

			record, _, err := n.client.RegisterAgent(ctx, owner, args)
			require.ErrorIs(t, err, agentmarket.ErrRecordTooLarge)

			_, err = n.client.GetAgent(ctx, record)
			assert.ErrorIs(t, err, client.ErrAgentNotFound)
			assert.Equal(t, before, n.balance(t, owner.PublicKey()))
		})
	}
}

func TestMarketplace_FundsGating(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()
	owner := n.funded(t, 2)

	args := summariser()
	args.Price = 5 * types.LamportsPerSOL
	record, _, err := n.client.RegisterAgent(ctx, owner, args)
	require.NoError(t, err)

	user := n.funded(t, 1)
	before := n.balance(t, user.PublicKey())
	_, err = n.client.InvokeAgent(ctx, user, record)
	require.ErrorIs(t, err, agentmarket.ErrInsufficientFunds)
	assert.Equal(t, before, n.balance(t, user.PublicKey()))
}

func TestMarketplace_AtomicTransaction(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()
	owner := n.funded(t, 2)

	record, _, err := n.client.RegisterAgent(ctx, owner, summariser())
	require.NoError(t, err)

	user, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, err = n.ledger.Airdrop(ctx, user.Pubkey(), types.LamportsPerSOL)
	require.NoError(t, err)
	bystander, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	// The transfer succeeds on its own; the invoke names the wrong owner.
	tx := n.signedTx(t, user, nil,
		system.Transfer(user.Pubkey(), bystander.Pubkey(), 1_000_000),
		agentmarket.InvokeAgentInstruction(n.market.ProgramID(), client.Pubkey(record), user.Pubkey(), bystander.Pubkey()),
	)
	result, err := n.ledger.ProcessTransaction(ctx, tx)
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Equal(t, 1, result.InstructionIndex)
	assert.ErrorIs(t, ledger.ProgramErrorOf(result), agentmarket.ErrInvalidAgentOwner)

	balance, err := n.ledger.GetBalance(user.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, types.Lamports(types.LamportsPerSOL), balance)
	acc, err := n.ledger.GetAccount(bystander.Pubkey())
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestMarketplace_DuplicateTransaction(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()

	owner, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, err = n.ledger.Airdrop(ctx, owner.Pubkey(), 2*types.LamportsPerSOL)
	require.NoError(t, err)
	record, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	ix, err := agentmarket.RegisterAgentInstruction(n.market.ProgramID(), record.Pubkey(), owner.Pubkey(), summariser())
	require.NoError(t, err)
	tx := n.signedTx(t, owner, []*crypto.Keypair{record}, ix)

	result, err := n.ledger.ProcessTransaction(ctx, tx)
	require.NoError(t, err)
	require.True(t, result.Success, "%v", result.Error)

	_, err = n.ledger.ProcessTransaction(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.Rejections.WithLabelValues("already_processed")))
}

func TestMarketplace_ListAgents(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()
	alice := n.funded(t, 3)
	bob := n.funded(t, 3)

	for i, owner := range []solana.PrivateKey{alice, alice, bob} {
		args := summariser()
		args.AgentName = "agent-" + string(rune('a'+i))
		_, _, err := n.client.RegisterAgent(ctx, owner, args)
		require.NoError(t, err)
	}

	all, err := n.client.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := n.client.ListAgentsByOwner(ctx, bob.PublicKey())
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "agent-c", mine[0].Agent.Name)

	// The faucet and the wallets are not agent records.
	assert.Greater(t, n.ledger.AccountsCount(), uint64(3))
}

func TestMarketplace_SnapshotRestart(t *testing.T) {
	db := badgerDB(t)
	first := startNode(t, db, 0)
	ctx := context.Background()
	owner := first.funded(t, 2)

	record, _, err := first.client.RegisterAgent(ctx, owner, summariser())
	require.NoError(t, err)
	first.ledger.AdvanceSlot()
	first.ledger.AdvanceSlot()
	first.ledger.Close()

	path := filepath.Join(t.TempDir(), "latest.snapshot")
	blockhash, _ := first.ledger.LatestBlockhash()
	saved, err := snapshot.Save(path, db, snapshot.State{Slot: first.ledger.Slot(), Blockhash: blockhash}, zerolog.Nop())
	require.NoError(t, err)

	restored := accounts.NewMemoryDB()
	m, err := snapshot.Load(path, restored, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, saved.AccountsHash, m.AccountsHash)

	second := startNode(t, restored, m.Slot)
	assert.Equal(t, first.ledger.Slot(), second.ledger.Slot())

	agent, err := second.client.GetAgent(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, "AI Agent #1", agent.Name)
	assert.Equal(t, first.balance(t, owner.PublicKey()), second.balance(t, owner.PublicKey()))

	// The restored node keeps serving the marketplace.
	user := second.funded(t, 1)
	_, err = second.client.InvokeAgent(ctx, user, record)
	require.NoError(t, err)
}

func TestMarketplace_RPCMetrics(t *testing.T) {
	n := startNode(t, badgerDB(t), 0)
	ctx := context.Background()

	_, err := n.client.Slot(ctx)
	require.NoError(t, err)
	_, err = n.client.IDL(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.RPCRequests.WithLabelValues("getSlot", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(n.metrics.RPCRequests.WithLabelValues("getProgramIdl", "0")))
}

func BenchmarkRegisterAgent(b *testing.B) {
	n := startNode(b, accounts.NewMemoryDB(), 0)
	ctx := context.Background()
	owner, err := crypto.GenerateKeypair()
	require.NoError(b, err)
	_, err = n.ledger.Airdrop(ctx, owner.Pubkey(), 10*types.LamportsPerSOL)
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		record, err := crypto.GenerateKeypair()
		require.NoError(b, err)
		ix, err := agentmarket.RegisterAgentInstruction(n.market.ProgramID(), record.Pubkey(), owner.Pubkey(), summariser())
		require.NoError(b, err)
		tx := n.signedTx(b, owner, []*crypto.Keypair{record}, ix)
		b.StartTimer()

		result, err := n.ledger.ProcessTransaction(ctx, tx)
		if err != nil || !result.Success {
			b.Fatalf("register failed: %v %v", err, result)
		}
	}
}

func BenchmarkInvokeAgent(b *testing.B) {
	n := startNode(b, accounts.NewMemoryDB(), 0)
	ctx := context.Background()
	owner, err := crypto.GenerateKeypair()
	require.NoError(b, err)
	user, err := crypto.GenerateKeypair()
	require.NoError(b, err)
	record, err := crypto.GenerateKeypair()
	require.NoError(b, err)
	_, err = n.ledger.Airdrop(ctx, owner.Pubkey(), 2*types.LamportsPerSOL)
	require.NoError(b, err)
	_, err = n.ledger.Airdrop(ctx, user.Pubkey(), 10*types.LamportsPerSOL)
	require.NoError(b, err)

	ix, err := agentmarket.RegisterAgentInstruction(n.market.ProgramID(), record.Pubkey(), owner.Pubkey(), summariser())
	require.NoError(b, err)
	result, err := n.ledger.ProcessTransaction(ctx, n.signedTx(b, owner, []*crypto.Keypair{record}, ix))
	require.NoError(b, err)
	require.True(b, result.Success)

	invoke := agentmarket.InvokeAgentInstruction(n.market.ProgramID(), record.Pubkey(), user.Pubkey(), owner.Pubkey())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Each iteration needs a distinct signature; a fresh slot gives a fresh blockhash.
		b.StopTimer()
		n.ledger.AdvanceSlot()
		tx := n.signedTx(b, user, nil, invoke)
		b.StartTimer()

		result, err := n.ledger.ProcessTransaction(ctx, tx)
		if err != nil || !result.Success {
			b.Fatalf("invoke failed: %v %v", err, result)
		}
	}
}

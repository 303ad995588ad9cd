package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-agentmarket/pkg/accounts"
	"github.com/fortiblox/x1-agentmarket/pkg/crypto"
	"github.com/fortiblox/x1-agentmarket/pkg/ledger"
	noderpc "github.com/fortiblox/x1-agentmarket/pkg/rpc"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

const testPrice = 10_000_000

type testNode struct {
	ledger *ledger.Ledger
	market *agentmarket.Program
	client *Client
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	market := agentmarket.New(agentmarket.DefaultConfig())
	registry := ledger.NewProgramRegistry()
	ledger.RegisterNativePrograms(registry, market)

	faucet, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	opts := ledger.DefaultOptions()
	opts.Faucet = faucet
	l, err := ledger.New(accounts.NewMemoryDB(), registry, opts)
	require.NoError(t, err)

	server := noderpc.NewServer(noderpc.DefaultServerConfig(), noderpc.NewHandlers(l, market, "test"))
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithConfirmation(5*time.Millisecond, 5*time.Second))
	return &testNode{ledger: l, market: market, client: c}
}

func (n *testNode) funded(t *testing.T, lamports uint64) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	_, err = n.client.Airdrop(context.Background(), key.PublicKey(), lamports)
	require.NoError(t, err)
	return key
}

func testArgs(name string) agentmarket.RegisterAgent {
	return agentmarket.RegisterAgent{
		AgentName:   name,
		Description: "summarises documents",
		Endpoint:    "https://agents.example.com/" + name,
		Price:       testPrice,
	}
}

func TestInstructionsMatchProgramEncoding(t *testing.T) {
	programID := PublicKey(types.AgentMarketProgramID)
	record, user, owner := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	args := testArgs("summariser")
	reg, err := NewRegisterAgentInstruction(programID, record, user, args)
	require.NoError(t, err)
	wantReg, err := agentmarket.RegisterAgentInstruction(types.AgentMarketProgramID, Pubkey(record), Pubkey(user), args)
	require.NoError(t, err)

	cases := []struct {
		name string
		got  solana.Instruction
		want types.Instruction
	}{
		{"register_agent", reg, wantReg},
		{
			"invoke_agent",
			NewInvokeAgentInstruction(programID, record, user, owner),
			agentmarket.InvokeAgentInstruction(types.AgentMarketProgramID, Pubkey(record), Pubkey(user), Pubkey(owner)),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want.ProgramID, Pubkey(tc.got.ProgramID()))
			data, err := tc.got.Data()
			require.NoError(t, err)
			assert.Equal(t, tc.want.Data, data)

			metas := tc.got.Accounts()
			require.Len(t, metas, len(tc.want.Accounts))
			for i, m := range metas {
				assert.Equal(t, tc.want.Accounts[i].Pubkey, Pubkey(m.PublicKey), "account %d", i)
				assert.Equal(t, tc.want.Accounts[i].IsSigner, m.IsSigner, "account %d signer", i)
				assert.Equal(t, tc.want.Accounts[i].IsWritable, m.IsWritable, "account %d writable", i)
			}
		})
	}
}

func TestKeyConversion(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	priv := PrivateKey(kp)
	assert.Equal(t, kp.Pubkey(), Pubkey(priv.PublicKey()))

	back, err := Keypair(priv)
	require.NoError(t, err)
	assert.Equal(t, kp.Pubkey(), back.Pubkey())

	_, err = Keypair(solana.PrivateKey{1, 2, 3})
	assert.Error(t, err)
}

func TestSolanaTransactionExecutesOnLedger(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	owner := n.funded(t, 2*types.LamportsPerSOL)
	record, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	ix, err := NewRegisterAgentInstruction(n.client.ProgramID(), record.PublicKey(), owner.PublicKey(), testArgs("direct"))
	require.NoError(t, err)
	blockhash, _ := n.ledger.LatestBlockhash()
	tx, err := BuildTransaction([]solana.Instruction{ix}, solana.Hash(blockhash), owner, record)
	require.NoError(t, err)

	ltx, err := ToLedgerTransaction(tx)
	require.NoError(t, err)
	result, err := n.ledger.ProcessTransaction(ctx, ltx)
	require.NoError(t, err)
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, types.Signature(tx.Signatures[0]), result.Signature)

	agent, err := n.client.GetAgent(ctx, record.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, "direct", agent.Name)
	assert.Equal(t, Pubkey(owner.PublicKey()), agent.Owner)
}

func TestBuildTransactionMissingSigner(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	record := solana.NewWallet().PublicKey()
	ix, err := NewRegisterAgentInstruction(PublicKey(types.AgentMarketProgramID), record, payer.PublicKey(), testArgs("nosig"))
	require.NoError(t, err)

	_, err = BuildTransaction([]solana.Instruction{ix}, solana.Hash{1}, payer)
	assert.Error(t, err)
}

func TestRegisterAndInvoke(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	owner := n.funded(t, 2*types.LamportsPerSOL)
	user := n.funded(t, types.LamportsPerSOL)

	record, sig, err := n.client.RegisterAgent(ctx, owner, testArgs("summariser"))
	require.NoError(t, err)
	assert.NotEqual(t, solana.Signature{}, sig)

	agent, err := n.client.GetAgent(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, "summariser", agent.Name)
	assert.Equal(t, uint64(testPrice), agent.Price)

	ownerBefore, err := n.client.Balance(ctx, owner.PublicKey())
	require.NoError(t, err)
	userBefore, err := n.client.Balance(ctx, user.PublicKey())
	require.NoError(t, err)

	_, err = n.client.InvokeAgent(ctx, user, record)
	require.NoError(t, err)

	ownerAfter, err := n.client.Balance(ctx, owner.PublicKey())
	require.NoError(t, err)
	userAfter, err := n.client.Balance(ctx, user.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, ownerBefore+testPrice, ownerAfter)
	assert.Equal(t, userBefore-testPrice-uint64(n.ledger.FeePerSignature()), userAfter)
}

func TestComputeBudgetOption(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	owner := n.funded(t, 2*types.LamportsPerSOL)
	user := n.funded(t, types.LamportsPerSOL)

	record, _, err := n.client.RegisterAgent(ctx, owner, testArgs("summariser"))
	require.NoError(t, err)

	// 100,000 CU at 20,000 micro-lamports each is a 2,000 lamport priority fee.
	priced := NewFromRPC(n.client.RPC(), WithConfirmation(5*time.Millisecond, 5*time.Second), WithComputeBudget(100_000, 20_000))
	before, err := priced.Balance(ctx, user.PublicKey())
	require.NoError(t, err)
	_, err = priced.InvokeAgent(ctx, user, record)
	require.NoError(t, err)

	after, err := priced.Balance(ctx, user.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, before-testPrice-uint64(n.ledger.FeePerSignature())-2000, after)

	// Too few units for the transfer to the owner.
	starved := NewFromRPC(n.client.RPC(), WithConfirmation(5*time.Millisecond, 5*time.Second), WithComputeBudget(200, 0))
	_, err = starved.InvokeAgent(ctx, user, record)
	var se *SendError
	require.ErrorAs(t, err, &se)
}

func TestInvokeWrongOwnerMapsProgramError(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	owner := n.funded(t, 2*types.LamportsPerSOL)
	user := n.funded(t, types.LamportsPerSOL)
	record, _, err := n.client.RegisterAgent(ctx, owner, testArgs("guarded"))
	require.NoError(t, err)

	before, err := n.client.Balance(ctx, user.PublicKey())
	require.NoError(t, err)

	_, err = n.client.InvokeAgentWithOwner(ctx, user, record, solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.True(t, errors.Is(err, agentmarket.ErrInvalidAgentOwner), "%v", err)

	var se *SendError
	require.True(t, errors.As(err, &se))
	require.NotNil(t, se.Tx)
	assert.Equal(t, 0, se.Tx.InstructionIndex)

	pe, ok := ProgramErrorOf(err)
	require.True(t, ok)
	assert.Equal(t, uint32(6000), pe.Code)

	after, err := n.client.Balance(ctx, user.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed transaction must not be charged")
}

func TestGetAgentErrors(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	_, err := n.client.GetAgent(ctx, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrAgentNotFound)

	wallet := n.funded(t, types.LamportsPerSOL)
	_, err = n.client.GetAgent(ctx, wallet.PublicKey())
	assert.ErrorIs(t, err, ErrNotAgentAccount)
}

func TestListAgents(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	alice := n.funded(t, 2*types.LamportsPerSOL)
	bob := n.funded(t, 2*types.LamportsPerSOL)

	names := map[solana.PublicKey]string{}
	for _, reg := range []struct {
		owner solana.PrivateKey
		name  string
	}{{alice, "alpha"}, {alice, "beta"}, {bob, "gamma"}} {
		record, _, err := n.client.RegisterAgent(ctx, reg.owner, testArgs(reg.name))
		require.NoError(t, err)
		names[record] = reg.name
	}

	all, err := n.client.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, a := range all {
		assert.Equal(t, names[a.Address], a.Agent.Name)
		assert.NotZero(t, a.Lamports)
	}

	mine, err := n.client.ListAgentsByOwner(ctx, alice.PublicKey())
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, a := range mine {
		assert.Equal(t, Pubkey(alice.PublicKey()), a.Agent.Owner)
	}
}

func TestNodeQueries(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	health, err := n.client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health)

	slot, err := n.client.Slot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(n.ledger.Slot()), slot)

	idl, err := n.client.IDL(ctx)
	require.NoError(t, err)
	assert.Equal(t, n.market.IDL().Name, idl.Name)
	assert.Len(t, idl.Instructions, 2)
}

func TestConfirmTimesOut(t *testing.T) {
	n := newTestNode(t)
	c := NewFromRPC(n.client.RPC(), WithConfirmation(5*time.Millisecond, 30*time.Millisecond))

	err := c.Confirm(context.Background(), solana.Signature{9})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

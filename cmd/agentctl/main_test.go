package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-agentmarket/pkg/accounts"
	"github.com/fortiblox/x1-agentmarket/pkg/client"
	"github.com/fortiblox/x1-agentmarket/pkg/crypto"
	"github.com/fortiblox/x1-agentmarket/pkg/ledger"
	"github.com/fortiblox/x1-agentmarket/pkg/rpc"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
)

func startNode(t *testing.T) string {
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

	srv := httptest.NewServer(rpc.NewServer(rpc.DefaultServerConfig(), rpc.NewHandlers(l, market, "test")).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func runApp(args ...string) error {
	return newApp().Run(append([]string{"agentctl"}, args...))
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "id.json")

	require.NoError(t, runApp("--keypair", path, "keygen"))
	kp, err := crypto.LoadKeypairFile(path)
	require.NoError(t, err)

	err = runApp("--keypair", path, "keygen")
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, runApp("--keypair", path, "keygen", "--force"))
	replaced, err := crypto.LoadKeypairFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, kp.Pubkey(), replaced.Pubkey())
}

func TestMissingKeypair(t *testing.T) {
	err := runApp("--keypair", filepath.Join(t.TempDir(), "none.json"), "address")
	assert.ErrorContains(t, err, "agentctl keygen")
}

func TestRegisterInvokeFlow(t *testing.T) {
	url := startNode(t)
	dir := t.TempDir()
	ownerPath := filepath.Join(dir, "owner.json")
	recordPath := filepath.Join(dir, "record.json")
	userPath := filepath.Join(dir, "user.json")

	require.NoError(t, runApp("--keypair", ownerPath, "keygen"))
	require.NoError(t, runApp("--keypair", recordPath, "keygen"))
	require.NoError(t, runApp("--keypair", userPath, "keygen"))

	owner := []string{"--url", url, "--keypair", ownerPath}
	user := []string{"--url", url, "--keypair", userPath}

	require.NoError(t, runApp(append(owner, "airdrop", "2")...))
	require.NoError(t, runApp(append(user, "airdrop", "1")...))
	require.NoError(t, runApp(append(owner, "register",
		"--name", "translator",
		"--description", "translates text",
		"--endpoint", "https://agents.example.com/translate",
		"--price", "0.01",
		"--record-keypair", recordPath,
	)...))

	recordKey, err := client.LoadPrivateKey(recordPath)
	require.NoError(t, err)
	record := recordKey.PublicKey().String()

	require.NoError(t, runApp(append(user, "show", record)...))
	require.NoError(t, runApp(append(user, "list", "--json")...))
	require.NoError(t, runApp(append(owner, "list", "--mine")...))
	require.NoError(t, runApp(append(user, "invoke", record)...))
	require.NoError(t, runApp(append(user, "--priority-fee", "1000", "--compute-unit-limit", "50000", "invoke", record)...))
	require.Error(t, runApp(append(user, "--compute-unit-limit", "2000000", "invoke", record)...))
	require.NoError(t, runApp(append(user, "balance")...))
	require.NoError(t, runApp(append(user, "idl")...))

	c := client.New(url)
	agent, err := c.GetAgent(context.Background(), recordKey.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, "translator", agent.Name)
	assert.Equal(t, uint64(10_000_000), agent.Price)

	err = runApp(append(user, "invoke", "--owner", recordKey.PublicKey().String(), record)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, agentmarket.ErrInvalidAgentOwner)
}

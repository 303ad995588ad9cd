// Package client talks to an agent marketplace node over JSON-RPC using the
// solana-go SDK: it builds and signs marketplace transactions, decodes Agent
// records and maps failed transactions back to program errors.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// DefaultEndpoint is a node running on this machine with default settings.
const DefaultEndpoint = "http://127.0.0.1:8899"

// Client is a marketplace client bound to one node and one program id.
type Client struct {
	rpc            *rpc.Client
	programID      solana.PublicKey
	commitment     rpc.CommitmentType
	pollInterval   time.Duration
	confirmTimeout time.Duration

	computeUnitLimit uint32
	computeUnitPrice uint64
}

// Option configures a Client.
type Option func(*Client)

// WithProgramID targets a program deployed under a non-default address.
func WithProgramID(id solana.PublicKey) Option {
	return func(c *Client) {
		c.programID = id
	}
}

// WithCommitment sets the commitment sent with every request.
func WithCommitment(commitment rpc.CommitmentType) Option {
	return func(c *Client) {
		c.commitment = commitment
	}
}

// WithConfirmation sets how often and how long transaction confirmation is polled.
func WithConfirmation(pollInterval, timeout time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = pollInterval
		c.confirmTimeout = timeout
	}
}

// WithComputeBudget prepends compute budget instructions to every
// transaction. A zero limit keeps the node's default; a zero price pays no
// priority fee.
func WithComputeBudget(limit uint32, microLamportsPerUnit uint64) Option {
	return func(c *Client) {
		c.computeUnitLimit = limit
		c.computeUnitPrice = microLamportsPerUnit
	}
}

// New creates a client for the node at endpoint.
func New(endpoint string, opts ...Option) *Client {
	return NewFromRPC(rpc.New(endpoint), opts...)
}

// NewFromRPC wraps an existing solana-go RPC client.
func NewFromRPC(rpcClient *rpc.Client, opts ...Option) *Client {
	c := &Client{
		rpc:            rpcClient,
		programID:      PublicKey(types.AgentMarketProgramID),
		commitment:     rpc.CommitmentConfirmed,
		pollInterval:   200 * time.Millisecond,
		confirmTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RPC returns the underlying solana-go client.
func (c *Client) RPC() *rpc.Client {
	return c.rpc
}

// ProgramID returns the marketplace program address.
func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

// Send builds, signs and submits a transaction, then waits for it to be
// confirmed. Program failures come back as *SendError wrapping a
// *TransactionError.
func (c *Client) Send(ctx context.Context, ixs []solana.Instruction, payer solana.PrivateKey, signers ...solana.PrivateKey) (solana.Signature, error) {
	recent, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	tx, err := BuildTransaction(c.withBudget(ixs), recent.Value.Blockhash, payer, signers...)
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, sendError(err)
	}
	return sig, c.Confirm(ctx, sig)
}

func (c *Client) withBudget(ixs []solana.Instruction) []solana.Instruction {
	var budget []solana.Instruction
	if c.computeUnitLimit > 0 {
		budget = append(budget, NewSetComputeUnitLimitInstruction(c.computeUnitLimit))
	}
	if c.computeUnitPrice > 0 {
		budget = append(budget, NewSetComputeUnitPriceInstruction(c.computeUnitPrice))
	}
	if len(budget) == 0 {
		return ixs
	}
	return append(budget, ixs...)
}

// Confirm polls the signature status until the node reports it or the
// confirmation timeout passes.
func (c *Client) Confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err == nil {
				return nil
			}
			te, perr := ParseTransactionError(status.Err)
			if perr != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
			}
			return fmt.Errorf("%w: %w", ErrTransactionFailed, te)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// RegisterAgent registers a new agent owned by owner under a fresh record
// address, which is returned with the transaction signature.
func (c *Client) RegisterAgent(ctx context.Context, owner solana.PrivateKey, args agentmarket.RegisterAgent) (solana.PublicKey, solana.Signature, error) {
	record, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, solana.Signature{}, fmt.Errorf("generate record key: %w", err)
	}
	sig, err := c.RegisterAgentAt(ctx, owner, record, args)
	return record.PublicKey(), sig, err
}

// RegisterAgentAt registers an agent at the address of record.
func (c *Client) RegisterAgentAt(ctx context.Context, owner, record solana.PrivateKey, args agentmarket.RegisterAgent) (solana.Signature, error) {
	ix, err := NewRegisterAgentInstruction(c.programID, record.PublicKey(), owner.PublicKey(), args)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.Send(ctx, []solana.Instruction{ix}, owner, record)
}

// InvokeAgent pays the agent at record its price from user. The owner
// account is read from the record.
func (c *Client) InvokeAgent(ctx context.Context, user solana.PrivateKey, record solana.PublicKey) (solana.Signature, error) {
	agent, err := c.GetAgent(ctx, record)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.InvokeAgentWithOwner(ctx, user, record, PublicKey(agent.Owner))
}

// InvokeAgentWithOwner is InvokeAgent with a caller-supplied owner account.
// The program rejects an owner that does not match the record.
func (c *Client) InvokeAgentWithOwner(ctx context.Context, user solana.PrivateKey, record, owner solana.PublicKey) (solana.Signature, error) {
	ix := NewInvokeAgentInstruction(c.programID, record, user.PublicKey(), owner)
	return c.Send(ctx, []solana.Instruction{ix}, user)
}

// AgentAccount is a decoded Agent record and the account holding it.
type AgentAccount struct {
	Address  solana.PublicKey
	Lamports uint64
	Agent    *agentmarket.Agent
}

// GetAgent fetches and decodes the record at address.
func (c *Client) GetAgent(ctx context.Context, address solana.PublicKey) (*agentmarket.Agent, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if out.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, address)
	}
	if !out.Value.Owner.Equals(c.programID) {
		return nil, fmt.Errorf("%w: %s is owned by %s", ErrNotAgentAccount, address, out.Value.Owner)
	}
	agent, err := agentmarket.DeserializeAgent(out.Value.Data.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAgentAccount, address, err)
	}
	return agent, nil
}

// ListAgents returns every Agent record of the program, ordered by address.
// Accounts that carry the Agent discriminator but fail to decode are skipped.
func (c *Client) ListAgents(ctx context.Context) ([]AgentAccount, error) {
	out, err := c.rpc.GetProgramAccountsWithOpts(ctx, c.programID, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(agentmarket.AgentAccountDiscriminator.Bytes())}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getProgramAccounts: %w", err)
	}

	agents := make([]AgentAccount, 0, len(out))
	for _, item := range out {
		if item == nil || item.Account == nil {
			continue
		}
		agent, err := agentmarket.DeserializeAgent(item.Account.Data.GetBinary())
		if err != nil {
			continue
		}
		agents = append(agents, AgentAccount{
			Address:  item.Pubkey,
			Lamports: item.Account.Lamports,
			Agent:    agent,
		})
	}
	return agents, nil
}

// ListAgentsByOwner returns the records registered by owner.
func (c *Client) ListAgentsByOwner(ctx context.Context, owner solana.PublicKey) ([]AgentAccount, error) {
	all, err := c.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	mine := all[:0]
	for _, a := range all {
		if PublicKey(a.Agent.Owner).Equals(owner) {
			mine = append(mine, a)
		}
	}
	return mine, nil
}

// Balance returns the lamports held by account.
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return out.Value, nil
}

// Airdrop asks the node's faucet for lamports and waits for the grant.
func (c *Client) Airdrop(ctx context.Context, to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	sig, err := c.rpc.RequestAirdrop(ctx, to, lamports, c.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("request airdrop: %w", err)
	}
	return sig, c.Confirm(ctx, sig)
}

// IDL fetches the program's interface description.
func (c *Client) IDL(ctx context.Context) (*agentmarket.IDL, error) {
	var raw json.RawMessage
	if err := c.rpc.RPCCallForInto(ctx, &raw, "getProgramIdl", []interface{}{c.programID.String()}); err != nil {
		return nil, fmt.Errorf("getProgramIdl: %w", err)
	}
	return agentmarket.ParseIDL(raw)
}

// Slot returns the node's open slot.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	return c.rpc.GetSlot(ctx, c.commitment)
}

// Health returns "ok" when the node is serving.
func (c *Client) Health(ctx context.Context) (string, error) {
	return c.rpc.GetHealth(ctx)
}

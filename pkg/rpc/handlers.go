package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/fortiblox/x1-agentmarket/pkg/ledger"
	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Handler is the function signature for RPC method handlers.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, *RPCError)

// Handlers holds the RPC method table over a ledger.
type Handlers struct {
	ledger   *ledger.Ledger
	market   *agentmarket.Program
	version  string
	handlers map[string]Handler
}

// NewHandlers creates the method table. market is used for jsonParsed
// account data and getProgramIdl; it may be nil.
func NewHandlers(l *ledger.Ledger, market *agentmarket.Program, version string) *Handlers {
	h := &Handlers{
		ledger:   l,
		market:   market,
		version:  version,
		handlers: make(map[string]Handler),
	}
	h.registerHandlers()
	return h
}

// GetHandler returns the handler for a method, or nil if not found.
func (h *Handlers) GetHandler(method string) Handler {
	return h.handlers[method]
}

// Methods returns the number of registered methods.
func (h *Handlers) Methods() int {
	return len(h.handlers)
}

func (h *Handlers) registerHandlers() {
	h.handlers["getAccountInfo"] = h.handleGetAccountInfo
	h.handlers["getBalance"] = h.handleGetBalance
	h.handlers["getProgramAccounts"] = h.handleGetProgramAccounts
	h.handlers["getSlot"] = h.handleGetSlot
	h.handlers["getBlockHeight"] = h.handleGetSlot
	h.handlers["getHealth"] = h.handleGetHealth
	h.handlers["getVersion"] = h.handleGetVersion
	h.handlers["getLatestBlockhash"] = h.handleGetLatestBlockhash
	h.handlers["isBlockhashValid"] = h.handleIsBlockhashValid
	h.handlers["getMinimumBalanceForRentExemption"] = h.handleGetMinimumBalanceForRentExemption
	h.handlers["sendTransaction"] = h.handleSendTransaction
	h.handlers["requestAirdrop"] = h.handleRequestAirdrop
	h.handlers["getSignatureStatuses"] = h.handleGetSignatureStatuses
	h.handlers["getProgramIdl"] = h.handleGetProgramIdl
}

func (h *Handlers) healthy() bool {
	return !h.ledger.Closed()
}

func (h *Handlers) context() Context {
	return Context{Slot: uint64(h.ledger.Slot())}
}

// parseParams splits params into positional values and checks that at least
// required are present.
func parseParams(params json.RawMessage, required int) ([]json.RawMessage, *RPCError) {
	var raw []json.RawMessage
	if len(params) > 0 && !bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		if err := json.Unmarshal(params, &raw); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid params: expected array")
		}
	}
	if len(raw) < required {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid params: expected at least %d", required))
	}
	return raw, nil
}

func parsePubkey(raw json.RawMessage, what string) (types.Pubkey, *RPCError) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, fmt.Sprintf("invalid %s parameter", what))
	}
	pk, err := types.PubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, fmt.Sprintf("invalid %s: %v", what, err))
	}
	return pk, nil
}

func parseAccountOptions(raw []json.RawMessage, idx int) (AccountInfoOptions, *RPCError) {
	var opts AccountInfoOptions
	if len(raw) <= idx {
		return opts, nil
	}
	if err := json.Unmarshal(raw[idx], &opts); err != nil {
		return opts, NewRPCError(InvalidParams, fmt.Sprintf("invalid options: %v", err))
	}
	if err := ValidateEncoding(opts.Encoding); err != nil {
		return opts, NewRPCError(UnsupportedEncoding, err.Error())
	}
	return opts, nil
}

// renderAccount builds the RPC view of an account in the requested encoding.
func (h *Handlers) renderAccount(acc *types.Account, opts AccountInfoOptions) (AccountInfoResult, *RPCError) {
	result := AccountInfoResult{
		Lamports:   uint64(acc.Lamports),
		Owner:      acc.Owner.String(),
		Executable: acc.Executable,
		RentEpoch:  uint64(acc.RentEpoch),
		Space:      uint64(len(acc.Data)),
	}

	if opts.Encoding == EncodingJSONParsed && opts.DataSlice == nil {
		if parsed, ok := h.parseAccount(acc); ok {
			result.Data = parsed
			return result, nil
		}
	}

	encoded, err := EncodeAccountData(SliceData(acc.Data, opts.DataSlice), opts.Encoding)
	if err != nil {
		return result, NewRPCError(InvalidRequest, err.Error())
	}
	result.Data = encoded
	return result, nil
}

// parseAccount decodes Agent records owned by the marketplace program.
func (h *Handlers) parseAccount(acc *types.Account) (*ParsedAccount, bool) {
	if h.market == nil || acc.Owner != h.market.ProgramID() || !agentmarket.IsAgentAccount(acc.Data) {
		return nil, false
	}
	agent, err := agentmarket.DeserializeAgent(acc.Data)
	if err != nil {
		return nil, false
	}
	return &ParsedAccount{
		Program: h.market.Name(),
		Parsed: ParsedValue{
			Type: "agent",
			Info: AgentInfo{
				Name:        agent.Name,
				Description: agent.Description,
				Endpoint:    agent.Endpoint,
				Price:       agent.Price,
				Owner:       agent.Owner.String(),
			},
		},
		Space: uint64(len(acc.Data)),
	}, true
}

// handleGetAccountInfo handles the getAccountInfo RPC method.
// Params: [pubkey, {encoding, dataSlice, minContextSlot}]
func (h *Handlers) handleGetAccountInfo(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(raw[0], "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}
	opts, rpcErr := parseAccountOptions(raw, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}

	ctx := h.context()
	account, err := h.ledger.GetAccount(pubkey)
	if err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("failed to get account: %v", err))
	}
	if account == nil {
		return ContextualResult{Context: ctx, Value: nil}, nil
	}

	result, rpcErr := h.renderAccount(account, opts)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return ContextualResult{Context: ctx, Value: result}, nil
}

// handleGetBalance handles the getBalance RPC method.
// Params: [pubkey, {minContextSlot}]
func (h *Handlers) handleGetBalance(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(raw[0], "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}

	ctx := h.context()
	balance, err := h.ledger.GetBalance(pubkey)
	if err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("failed to get account: %v", err))
	}
	return ContextualResult{Context: ctx, Value: uint64(balance)}, nil
}

// handleGetProgramAccounts handles the getProgramAccounts RPC method.
// Params: [programId, {encoding, dataSlice, filters, withContext}]
func (h *Handlers) handleGetProgramAccounts(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	program, rpcErr := parsePubkey(raw[0], "program id")
	if rpcErr != nil {
		return nil, rpcErr
	}
	opts, rpcErr := parseAccountOptions(raw, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	filters, rpcErr := compileFilters(opts.Filters)
	if rpcErr != nil {
		return nil, rpcErr
	}

	ctx := h.context()
	refs, err := h.ledger.ProgramAccounts(program)
	if err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("failed to scan program accounts: %v", err))
	}

	out := make([]KeyedAccount, 0, len(refs))
	for _, ref := range refs {
		if !filters.match(ref.Account.Data) {
			continue
		}
		rendered, rpcErr := h.renderAccount(ref.Account, opts)
		if rpcErr != nil {
			return nil, rpcErr
		}
		out = append(out, KeyedAccount{Pubkey: ref.Pubkey.String(), Account: rendered})
	}

	if opts.WithContext {
		return ContextualResult{Context: ctx, Value: out}, nil
	}
	return out, nil
}

type compiledFilter struct {
	dataSize *uint64
	offset   uint64
	bytes    []byte
}

type filterSet []compiledFilter

func compileFilters(filters []AccountFilter) (filterSet, *RPCError) {
	out := make(filterSet, 0, len(filters))
	for _, f := range filters {
		switch {
		case f.DataSize != nil:
			out = append(out, compiledFilter{dataSize: f.DataSize})
		case f.Memcmp != nil:
			b, err := base58.Decode(f.Memcmp.Bytes)
			if err != nil {
				return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid memcmp bytes: %v", err))
			}
			out = append(out, compiledFilter{offset: f.Memcmp.Offset, bytes: b})
		default:
			return nil, NewRPCError(InvalidParams, "empty filter")
		}
	}
	return out, nil
}

func (fs filterSet) match(data []byte) bool {
	for _, f := range fs {
		if f.dataSize != nil {
			if uint64(len(data)) != *f.dataSize {
				return false
			}
			continue
		}
		end := f.offset + uint64(len(f.bytes))
		if end > uint64(len(data)) || !bytes.Equal(data[f.offset:end], f.bytes) {
			return false
		}
	}
	return true
}

// handleGetSlot handles getSlot and getBlockHeight; every slot holds one block.
func (h *Handlers) handleGetSlot(_ context.Context, _ json.RawMessage) (interface{}, *RPCError) {
	return uint64(h.ledger.Slot()), nil
}

// handleGetHealth handles the getHealth RPC method.
func (h *Handlers) handleGetHealth(_ context.Context, _ json.RawMessage) (interface{}, *RPCError) {
	if !h.healthy() {
		return nil, NewRPCError(InternalError, "node is unhealthy")
	}
	return "ok", nil
}

// handleGetVersion handles the getVersion RPC method.
func (h *Handlers) handleGetVersion(_ context.Context, _ json.RawMessage) (interface{}, *RPCError) {
	return VersionResult{SolanaCore: h.version}, nil
}

// handleGetLatestBlockhash handles the getLatestBlockhash RPC method.
// Params: [{commitment, minContextSlot}]
func (h *Handlers) handleGetLatestBlockhash(_ context.Context, _ json.RawMessage) (interface{}, *RPCError) {
	ctx := h.context()
	hash, lastValid := h.ledger.LatestBlockhash()
	return ContextualResult{
		Context: ctx,
		Value: BlockhashResult{
			Blockhash:            hash.String(),
			LastValidBlockHeight: uint64(lastValid),
		},
	}, nil
}

// handleIsBlockhashValid handles the isBlockhashValid RPC method.
// Params: [blockhash, {commitment}]
func (h *Handlers) handleIsBlockhashValid(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var s string
	if err := json.Unmarshal(raw[0], &s); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid blockhash parameter")
	}
	hash, err := types.HashFromBase58(s)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid blockhash: %v", err))
	}
	return ContextualResult{Context: h.context(), Value: h.ledger.IsBlockhashValid(hash)}, nil
}

// handleGetMinimumBalanceForRentExemption handles the method of the same name.
// Params: [dataLength]
func (h *Handlers) handleGetMinimumBalanceForRentExemption(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var dataLen uint64
	if err := json.Unmarshal(raw[0], &dataLen); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid data length")
	}
	return uint64(h.ledger.MinimumBalanceForRentExemption(dataLen)), nil
}

// handleSendTransaction handles the sendTransaction RPC method. The
// transaction executes synchronously; a failed execution is reported as a
// SendTransactionError carrying the instruction error and program logs.
// Params: [encodedTransaction, {encoding, skipPreflight, preflightCommitment}]
func (h *Handlers) handleSendTransaction(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var encoded string
	if err := json.Unmarshal(raw[0], &encoded); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid transaction parameter")
	}
	var opts SendTransactionOptions
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &opts); err != nil {
			return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid options: %v", err))
		}
	}

	wire, err := decodeTransaction(encoded, opts.Encoding)
	if errors.Is(err, errUnsupportedEncoding) {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("unsupported transaction encoding: %s", opts.Encoding))
	}
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("failed to decode transaction: %v", err))
	}

	tx, err := types.DeserializeTransaction(wire)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("failed to deserialize transaction: %v", err))
	}

	result, err := h.ledger.ProcessTransaction(ctx, tx)
	if err != nil {
		return nil, rejectionError(err)
	}
	if !result.Success {
		logs := result.Logs
		if logs == nil {
			logs = []string{}
		}
		return nil, NewRPCErrorWithData(SendTransactionError,
			"Transaction simulation failed: "+result.Error.Error(),
			SendTransactionErrorData{Err: TransactionErrorValue(result.Error), Logs: logs})
	}
	return result.Signature.String(), nil
}

// handleRequestAirdrop handles the requestAirdrop RPC method.
// Params: [pubkey, lamports, {commitment}]
func (h *Handlers) handleRequestAirdrop(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := parseParams(params, 2)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := parsePubkey(raw[0], "pubkey")
	if rpcErr != nil {
		return nil, rpcErr
	}

	dec := json.NewDecoder(bytes.NewReader(raw[1]))
	dec.UseNumber()
	var amount interface{}
	if err := dec.Decode(&amount); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid lamports parameter")
	}
	lamports, err := ParseLamports(amount)
	if err != nil {
		return nil, NewRPCError(InvalidParams, err.Error())
	}

	sig, err := h.ledger.Airdrop(ctx, pubkey, lamports)
	if err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("airdrop request failed: %v", err))
	}
	return sig.String(), nil
}

// handleGetSignatureStatuses handles the getSignatureStatuses RPC method.
// Params: [[signatures], {searchTransactionHistory}]
func (h *Handlers) handleGetSignatureStatuses(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := parseParams(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var sigs []string
	if err := json.Unmarshal(raw[0], &sigs); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid signatures parameter")
	}
	if len(sigs) > 256 {
		return nil, NewRPCError(InvalidParams, "too many signatures: maximum 256")
	}

	ctx := h.context()
	statuses := make([]*SignatureStatus, len(sigs))
	for i, s := range sigs {
		sig, err := types.SignatureFromBase58(s)
		if err != nil {
			return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid signature %q: %v", s, err))
		}
		result, ok := h.ledger.SignatureStatus(sig)
		if !ok {
			continue
		}
		st := &SignatureStatus{
			Slot:               uint64(result.Slot),
			ConfirmationStatus: string(CommitmentFinalized),
			Status:             map[string]interface{}{"Ok": nil},
		}
		if !result.Success {
			st.Err = TransactionErrorValue(result.Error)
			st.Status = map[string]interface{}{"Err": st.Err}
		}
		statuses[i] = st
	}
	return ContextualResult{Context: ctx, Value: statuses}, nil
}

// handleGetProgramIdl returns the marketplace program's IDL.
// Params: [programId] (optional)
func (h *Handlers) handleGetProgramIdl(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	if h.market == nil {
		return nil, NewRPCError(MethodNotFound, "no program IDL available")
	}
	raw, rpcErr := parseParams(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(raw) > 0 {
		program, rpcErr := parsePubkey(raw[0], "program id")
		if rpcErr != nil {
			return nil, rpcErr
		}
		if program != h.market.ProgramID() {
			return nil, NewRPCError(InvalidParams, fmt.Sprintf("no IDL for program %s", program))
		}
	}
	return h.market.IDL(), nil
}

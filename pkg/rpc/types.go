// Package rpc serves the ledger over a Solana-compatible JSON-RPC 2.0 API.
package rpc

import (
	"encoding/json"
)

// JSON-RPC 2.0 constants
const (
	JSONRPCVersion = "2.0"
)

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// Solana-specific error codes
	SendTransactionError       = -32002
	SignatureVerificationError = -32003
	UnsupportedEncoding        = -32011

	// RateLimited is returned with HTTP 429 when a client exceeds its budget.
	RateLimited = -32429
)

// RPCRequest represents a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// RPCResponse represents a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// NewRPCErrorWithData creates a new RPC error with additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Context represents the response context containing slot info.
type Context struct {
	Slot       uint64 `json:"slot"`
	APIVersion string `json:"apiVersion,omitempty"`
}

// ContextualResult wraps a result with context.
type ContextualResult struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// AccountInfoResult represents an account in getAccountInfo and
// getProgramAccounts. Data is a [payload, encoding] pair, or a ParsedAccount
// for jsonParsed.
type AccountInfoResult struct {
	Lamports   uint64      `json:"lamports"`
	Data       interface{} `json:"data"`
	Owner      string      `json:"owner"`
	Executable bool        `json:"executable"`
	RentEpoch  uint64      `json:"rentEpoch"`
	Space      uint64      `json:"space"`
}

// ParsedAccount is the jsonParsed form of an account the node can decode.
type ParsedAccount struct {
	Program string      `json:"program"`
	Parsed  ParsedValue `json:"parsed"`
	Space   uint64      `json:"space"`
}

// ParsedValue holds the decoded record.
type ParsedValue struct {
	Type string      `json:"type"`
	Info interface{} `json:"info"`
}

// AgentInfo is the jsonParsed rendering of an Agent record.
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
	Price       uint64 `json:"price"`
	Owner       string `json:"owner"`
}

// KeyedAccount is one entry of getProgramAccounts.
type KeyedAccount struct {
	Pubkey  string            `json:"pubkey"`
	Account AccountInfoResult `json:"account"`
}

// VersionResult represents the result of getVersion.
type VersionResult struct {
	SolanaCore string `json:"solana-core"`
	FeatureSet uint32 `json:"feature-set"`
}

// BlockhashResult represents a blockhash with context.
type BlockhashResult struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	Status             interface{} `json:"status"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// AccountInfoOptions represents optional parameters for getAccountInfo and
// getProgramAccounts.
type AccountInfoOptions struct {
	Encoding       string          `json:"encoding,omitempty"`
	DataSlice      *DataSlice      `json:"dataSlice,omitempty"`
	MinContextSlot uint64          `json:"minContextSlot,omitempty"`
	Filters        []AccountFilter `json:"filters,omitempty"`
	WithContext    bool            `json:"withContext,omitempty"`
}

// DataSlice represents a slice of account data.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// AccountFilter narrows getProgramAccounts. Exactly one field is set.
type AccountFilter struct {
	DataSize *uint64       `json:"dataSize,omitempty"`
	Memcmp   *MemcmpFilter `json:"memcmp,omitempty"`
}

// MemcmpFilter matches accounts whose data at Offset equals Bytes (base58).
type MemcmpFilter struct {
	Offset uint64 `json:"offset"`
	Bytes  string `json:"bytes"`
}

// SendTransactionOptions are the options of sendTransaction.
type SendTransactionOptions struct {
	Encoding            string `json:"encoding,omitempty"`
	SkipPreflight       bool   `json:"skipPreflight,omitempty"`
	PreflightCommitment string `json:"preflightCommitment,omitempty"`
}

// SendTransactionErrorData is the data of a failed sendTransaction.
type SendTransactionErrorData struct {
	Err  interface{} `json:"err"`
	Logs []string    `json:"logs"`
}

// Commitment levels
type Commitment string

const (
	CommitmentFinalized Commitment = "finalized"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentProcessed Commitment = "processed"
)

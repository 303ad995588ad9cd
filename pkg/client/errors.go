package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/fortiblox/x1-agentmarket/pkg/svm/programs/agentmarket"
)

var (
	// ErrAgentNotFound is returned when no account exists at a record address.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrNotAgentAccount is returned when an account is not an Agent record of
	// the configured program.
	ErrNotAgentAccount = errors.New("account is not an agent record")
	// ErrTransactionFailed is returned when a confirmed transaction reports an error.
	ErrTransactionFailed = errors.New("transaction failed")
)

// TransactionError is the decoded "err" value of a failed transaction:
// {"InstructionError":[index,{"Custom":code}]}, {"InstructionError":[index,"Name"]}
// or a bare transaction error name.
type TransactionError struct {
	// InstructionIndex is the failing instruction, or -1 for errors raised
	// before any instruction ran.
	InstructionIndex int
	Name             string
	// Code is set for custom program errors.
	Code *uint32
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	if e.InstructionIndex < 0 {
		return e.Name
	}
	if pe, ok := e.ProgramError(); ok {
		return fmt.Sprintf("instruction %d: %s", e.InstructionIndex, pe)
	}
	if e.Code != nil {
		return fmt.Sprintf("instruction %d: custom program error %d", e.InstructionIndex, *e.Code)
	}
	return fmt.Sprintf("instruction %d: %s", e.InstructionIndex, e.Name)
}

// ProgramError returns the marketplace error for a custom code.
func (e *TransactionError) ProgramError() (*agentmarket.ProgramError, bool) {
	if e.Code == nil {
		return nil, false
	}
	return agentmarket.ErrorFromCode(*e.Code)
}

// Unwrap exposes the program error so errors.Is matches agentmarket sentinels.
func (e *TransactionError) Unwrap() error {
	if pe, ok := e.ProgramError(); ok {
		return pe
	}
	return nil
}

// ParseTransactionError decodes a JSON "err" value as produced by the node.
// It returns nil for a nil value.
func ParseTransactionError(v interface{}) (*TransactionError, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &TransactionError{InstructionIndex: -1, Name: val}, nil
	case map[string]interface{}:
		raw, ok := val["InstructionError"]
		if !ok {
			for name := range val {
				return &TransactionError{InstructionIndex: -1, Name: name}, nil
			}
			return nil, fmt.Errorf("empty transaction error")
		}
		pair, ok := raw.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("malformed InstructionError: %v", raw)
		}
		index, err := toUint(pair[0])
		if err != nil {
			return nil, fmt.Errorf("malformed instruction index: %w", err)
		}
		te := &TransactionError{InstructionIndex: int(index)}
		switch detail := pair[1].(type) {
		case string:
			te.Name = detail
		case map[string]interface{}:
			custom, ok := detail["Custom"]
			if !ok {
				for name := range detail {
					te.Name = name
				}
				return te, nil
			}
			code, err := toUint(custom)
			if err != nil {
				return nil, fmt.Errorf("malformed custom code: %w", err)
			}
			c := uint32(code)
			te.Code = &c
			te.Name = "Custom"
		default:
			return nil, fmt.Errorf("malformed InstructionError detail: %v", detail)
		}
		return te, nil
	default:
		return nil, fmt.Errorf("unrecognised transaction error: %v", v)
	}
}

func toUint(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, fmt.Errorf("not an unsigned integer: %v", n)
		}
		return uint64(n), nil
	case json.Number:
		return strconv.ParseUint(n.String(), 10, 64)
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative: %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative: %d", n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}

// SendError is a transaction rejected by the node. It unwraps to the decoded
// TransactionError when the node supplied one.
type SendError struct {
	Code    int
	Message string
	Tx      *TransactionError
	Logs    []string
}

// Error implements the error interface.
func (e *SendError) Error() string {
	if e.Tx != nil {
		return fmt.Sprintf("send transaction: %s", e.Tx)
	}
	return fmt.Sprintf("send transaction: %s (%d)", e.Message, e.Code)
}

// Unwrap returns the transaction error.
func (e *SendError) Unwrap() error {
	if e.Tx == nil {
		return nil
	}
	return e.Tx
}

// sendError converts a JSON-RPC error carrying {"err":...,"logs":[...]} data.
// Other errors are returned unchanged.
func sendError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	se := &SendError{Code: rpcErr.Code, Message: rpcErr.Message}
	if data, ok := rpcErr.Data.(map[string]interface{}); ok {
		if te, perr := ParseTransactionError(data["err"]); perr == nil {
			se.Tx = te
		}
		if logs, ok := data["logs"].([]interface{}); ok {
			for _, l := range logs {
				if s, ok := l.(string); ok {
					se.Logs = append(se.Logs, s)
				}
			}
		}
	}
	return se
}

// ProgramErrorOf extracts the marketplace program error from any error
// returned by this package.
func ProgramErrorOf(err error) (*agentmarket.ProgramError, bool) {
	return agentmarket.AsProgramError(err)
}

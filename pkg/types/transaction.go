package types

import (
	"errors"
	"fmt"
)

// Transaction represents a complete transaction with signatures.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// Message represents a transaction message (the part that gets signed).
type Message struct {
	Header          MessageHeader
	AccountKeys     []Pubkey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// MessageHeader contains counts for account types.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction is an instruction with account indices.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndices []uint8
	Data           []byte
}

// Instruction is an expanded instruction with full account info.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// ErrMalformedMessage is returned by Sanitize for structurally invalid messages.
var ErrMalformedMessage = errors.New("malformed message")

// NewMessage compiles instructions into a legacy message. The payer is placed
// first; remaining keys are ordered writable signers, readonly signers,
// writable non-signers, then readonly non-signers. Program IDs are readonly
// non-signers unless an instruction also lists them otherwise.
func NewMessage(payer Pubkey, recentBlockhash Hash, instructions []Instruction) (*Message, error) {
	type keyFlags struct {
		signer   bool
		writable bool
	}
	order := []Pubkey{payer}
	flags := map[Pubkey]*keyFlags{payer: {signer: true, writable: true}}
	add := func(pk Pubkey, signer, writable bool) {
		f, ok := flags[pk]
		if !ok {
			f = &keyFlags{}
			flags[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			add(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		add(ix.ProgramID, false, false)
	}

	var ws, rs, wu, ru []Pubkey
	for _, pk := range order {
		f := flags[pk]
		switch {
		case f.signer && f.writable:
			ws = append(ws, pk)
		case f.signer:
			rs = append(rs, pk)
		case f.writable:
			wu = append(wu, pk)
		default:
			ru = append(ru, pk)
		}
	}
	keys := make([]Pubkey, 0, len(order))
	keys = append(keys, ws...)
	keys = append(keys, rs...)
	keys = append(keys, wu...)
	keys = append(keys, ru...)
	if len(keys) > 256 {
		return nil, fmt.Errorf("%w: %d account keys", ErrMalformedMessage, len(keys))
	}

	index := make(map[Pubkey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(len(ws) + len(rs)),
			NumReadonlySignedAccounts:   uint8(len(rs)),
			NumReadonlyUnsignedAccounts: uint8(len(ru)),
		},
		AccountKeys:     keys,
		RecentBlockhash: recentBlockhash,
		Instructions:    make([]CompiledInstruction, len(instructions)),
	}
	for i, ix := range instructions {
		indices := make([]uint8, len(ix.Accounts))
		for j, meta := range ix.Accounts {
			indices[j] = index[meta.Pubkey]
		}
		data := make([]byte, len(ix.Data))
		copy(data, ix.Data)
		msg.Instructions[i] = CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			AccountIndices: indices,
			Data:           data,
		}
	}
	return msg, nil
}

// IsSigner reports whether the account at index i must sign.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether the account at index i is writable according to
// the header layout.
func (m *Message) IsWritable(i int) bool {
	numSigners := int(m.Header.NumRequiredSignatures)
	if i < numSigners {
		return i < numSigners-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < len(m.AccountKeys)-int(m.Header.NumReadonlyUnsignedAccounts)
}

// Signers returns the pubkeys of accounts that must sign.
func (m *Message) Signers() []Pubkey {
	n := int(m.Header.NumRequiredSignatures)
	if n > len(m.AccountKeys) {
		n = len(m.AccountKeys)
	}
	return m.AccountKeys[:n]
}

// Sanitize checks the structural consistency of the message.
func (m *Message) Sanitize() error {
	numKeys := len(m.AccountKeys)
	h := m.Header
	if h.NumRequiredSignatures == 0 {
		return fmt.Errorf("%w: no required signatures", ErrMalformedMessage)
	}
	if int(h.NumRequiredSignatures)+int(h.NumReadonlyUnsignedAccounts) > numKeys {
		return fmt.Errorf("%w: header counts exceed %d account keys", ErrMalformedMessage, numKeys)
	}
	if h.NumReadonlySignedAccounts >= h.NumRequiredSignatures {
		return fmt.Errorf("%w: fee payer must be writable", ErrMalformedMessage)
	}
	seen := make(map[Pubkey]struct{}, numKeys)
	for _, pk := range m.AccountKeys {
		if _, dup := seen[pk]; dup {
			return fmt.Errorf("%w: duplicate account key %s", ErrMalformedMessage, pk)
		}
		seen[pk] = struct{}{}
	}
	for i, ix := range m.Instructions {
		if int(ix.ProgramIDIndex) >= numKeys || ix.ProgramIDIndex == 0 {
			return fmt.Errorf("%w: instruction %d program index %d", ErrMalformedMessage, i, ix.ProgramIDIndex)
		}
		for _, idx := range ix.AccountIndices {
			if int(idx) >= numKeys {
				return fmt.Errorf("%w: instruction %d account index %d", ErrMalformedMessage, i, idx)
			}
		}
	}
	return nil
}

// Serialize serializes the message for signing.
func (m *Message) Serialize() ([]byte, error) {
	buf := make([]byte, 0, 256)

	// Header
	buf = append(buf, m.Header.NumRequiredSignatures)
	buf = append(buf, m.Header.NumReadonlySignedAccounts)
	buf = append(buf, m.Header.NumReadonlyUnsignedAccounts)

	// Account keys count (compact-u16)
	buf = appendCompactU16(buf, len(m.AccountKeys))

	for _, key := range m.AccountKeys {
		buf = append(buf, key[:]...)
	}

	buf = append(buf, m.RecentBlockhash[:]...)

	// Instructions count (compact-u16)
	buf = appendCompactU16(buf, len(m.Instructions))

	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)

		buf = appendCompactU16(buf, len(ix.AccountIndices))
		buf = append(buf, ix.AccountIndices...)

		buf = appendCompactU16(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}

	return buf, nil
}

// Serialize returns the wire encoding of the transaction.
func (tx *Transaction) Serialize() ([]byte, error) {
	msg, err := tx.Message.Serialize()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 3+len(tx.Signatures)*64+len(msg))
	buf = appendCompactU16(buf, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	return append(buf, msg...), nil
}

// appendCompactU16 appends a compact u16 encoding.
func appendCompactU16(buf []byte, val int) []byte {
	if val < 0x80 {
		return append(buf, byte(val))
	}
	if val < 0x4000 {
		return append(buf, byte(val&0x7f|0x80), byte(val>>7))
	}
	return append(buf, byte(val&0x7f|0x80), byte((val>>7)&0x7f|0x80), byte(val>>14))
}

// TransactionResult represents the result of executing a transaction.
type TransactionResult struct {
	Signature Signature
	Slot      Slot
	Success   bool
	Error     error
	// InstructionIndex is the failing instruction, or -1 when the failure
	// happened outside instruction execution.
	InstructionIndex int
	Fee              Lamports
	Logs             []string
	ComputeUnits     ComputeUnits
	ReturnData       []byte
	AccountDeltas    []AccountDelta
}

// ParseCompactU16 parses a compact-u16 from a byte slice.
func ParseCompactU16(data []byte) (val uint16, bytesRead int, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("empty data")
	}

	b0 := data[0]
	if b0 < 0x80 {
		return uint16(b0), 1, nil
	}

	if len(data) < 2 {
		return 0, 0, fmt.Errorf("incomplete compact-u16")
	}
	b1 := data[1]
	if b1 < 0x80 {
		return uint16(b0&0x7f) | uint16(b1)<<7, 2, nil
	}

	if len(data) < 3 {
		return 0, 0, fmt.Errorf("incomplete compact-u16")
	}
	b2 := data[2]
	return uint16(b0&0x7f) | uint16(b1&0x7f)<<7 | uint16(b2)<<14, 3, nil
}

// DeserializeTransaction deserializes a legacy transaction from bytes. Any
// trailing bytes after the message are rejected.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("transaction too short")
	}

	offset := 0

	numSigs, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse num signatures: %w", err)
	}
	offset += n

	sigs := make([]Signature, numSigs)
	for i := range sigs {
		if offset+64 > len(data) {
			return nil, fmt.Errorf("truncated signature %d", i)
		}
		copy(sigs[i][:], data[offset:offset+64])
		offset += 64
	}

	msg, read, err := deserializeMessage(data[offset:])
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if offset+read != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after message", len(data)-offset-read)
	}

	return &Transaction{
		Signatures: sigs,
		Message:    *msg,
	}, nil
}

func deserializeMessage(data []byte) (*Message, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("message too short")
	}
	if data[0]&0x80 != 0 {
		return nil, 0, fmt.Errorf("versioned messages are not supported")
	}

	offset := 0

	header := MessageHeader{
		NumRequiredSignatures:       data[offset],
		NumReadonlySignedAccounts:   data[offset+1],
		NumReadonlyUnsignedAccounts: data[offset+2],
	}
	offset += 3

	numKeys, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("parse num account keys: %w", err)
	}
	offset += n

	keys := make([]Pubkey, numKeys)
	for i := range keys {
		if offset+32 > len(data) {
			return nil, 0, fmt.Errorf("truncated account key %d", i)
		}
		copy(keys[i][:], data[offset:offset+32])
		offset += 32
	}

	if offset+32 > len(data) {
		return nil, 0, fmt.Errorf("truncated blockhash")
	}
	var blockhash Hash
	copy(blockhash[:], data[offset:offset+32])
	offset += 32

	numIx, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("parse num instructions: %w", err)
	}
	offset += n

	instructions := make([]CompiledInstruction, numIx)
	for i := range instructions {
		ix, bytesRead, err := deserializeInstruction(data[offset:])
		if err != nil {
			return nil, 0, fmt.Errorf("parse instruction %d: %w", i, err)
		}
		instructions[i] = *ix
		offset += bytesRead
	}

	return &Message{
		Header:          header,
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
		Instructions:    instructions,
	}, offset, nil
}

func deserializeInstruction(data []byte) (*CompiledInstruction, int, error) {
	offset := 0

	if len(data) < 1 {
		return nil, 0, fmt.Errorf("empty instruction")
	}
	programIDIndex := data[offset]
	offset++

	numAccounts, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("parse num accounts: %w", err)
	}
	offset += n

	if offset+int(numAccounts) > len(data) {
		return nil, 0, fmt.Errorf("truncated account indices")
	}
	accountIndices := make([]uint8, numAccounts)
	copy(accountIndices, data[offset:offset+int(numAccounts)])
	offset += int(numAccounts)

	dataLen, n, err := ParseCompactU16(data[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("parse data len: %w", err)
	}
	offset += n

	if offset+int(dataLen) > len(data) {
		return nil, 0, fmt.Errorf("truncated instruction data")
	}
	ixData := make([]byte, dataLen)
	copy(ixData, data[offset:offset+int(dataLen)])
	offset += int(dataLen)

	return &CompiledInstruction{
		ProgramIDIndex: programIDIndex,
		AccountIndices: accountIndices,
		Data:           ixData,
	}, offset, nil
}

// FeePayer returns the fee payer (first signer).
func (tx *Transaction) FeePayer() Pubkey {
	if len(tx.Message.AccountKeys) == 0 {
		return ZeroPubkey
	}
	return tx.Message.AccountKeys[0]
}

// ID returns the transaction signature (first signature).
func (tx *Transaction) ID() Signature {
	if len(tx.Signatures) == 0 {
		return ZeroSignature
	}
	return tx.Signatures[0]
}

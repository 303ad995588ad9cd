package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPubkey(seed string) Pubkey {
	return Pubkey(SHA256([]byte(seed)))
}

func TestLamports_String(t *testing.T) {
	assert.Equal(t, "0 SOL", Lamports(0).String())
	assert.Equal(t, "1 SOL", Lamports(LamportsPerSOL).String())
	assert.Equal(t, "0.01 SOL", Lamports(10_000_000).String())
	assert.Equal(t, "2.000000001 SOL", Lamports(2_000_000_001).String())
}

func TestParseSOL(t *testing.T) {
	cases := map[string]Lamports{
		"1":           LamportsPerSOL,
		"0.01":        10_000_000,
		".5":          500_000_000,
		"3 SOL":       3 * LamportsPerSOL,
		"0.000000001": 1,
	}
	for in, want := range cases {
		got, err := ParseSOL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "abc", "1.0000000001", "-1", "99999999999999999999"} {
		_, err := ParseSOL(bad)
		assert.Error(t, err, bad)
	}
}

func TestRent_MinimumBalance(t *testing.T) {
	assert.Equal(t, Lamports(890_880), DefaultRent().MinimumBalance(0))
	assert.Equal(t, Lamports((165+128)*3480*2), RentExemptMinimum(165))
}

func TestPubkey_TextRoundTrip(t *testing.T) {
	pk := testPubkey("alice")
	text, err := pk.MarshalText()
	require.NoError(t, err)

	var back Pubkey
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, pk, back)
	assert.Error(t, back.UnmarshalText([]byte("not-base58-0OIl")))
}

func TestNewMessage_Ordering(t *testing.T) {
	payer := testPubkey("payer")
	record := testPubkey("record")
	owner := testPubkey("owner")
	program := testPubkey("program")

	msg, err := NewMessage(payer, ZeroHash, []Instruction{{
		ProgramID: program,
		Accounts: []AccountMeta{
			{Pubkey: record, IsSigner: true, IsWritable: true},
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: owner, IsWritable: true},
			{Pubkey: SystemProgramID},
		},
	}})
	require.NoError(t, err)

	assert.Equal(t, []Pubkey{payer, record, owner, SystemProgramID, program}, msg.AccountKeys)
	assert.Equal(t, MessageHeader{NumRequiredSignatures: 2, NumReadonlySignedAccounts: 0, NumReadonlyUnsignedAccounts: 2}, msg.Header)
	assert.Equal(t, []uint8{1, 0, 2, 3}, msg.Instructions[0].AccountIndices)
	assert.Equal(t, uint8(4), msg.Instructions[0].ProgramIDIndex)

	assert.True(t, msg.IsSigner(1))
	assert.False(t, msg.IsSigner(2))
	assert.True(t, msg.IsWritable(2))
	assert.False(t, msg.IsWritable(3))
	require.NoError(t, msg.Sanitize())
}

func TestTransaction_SerializeRoundTrip(t *testing.T) {
	payer := testPubkey("payer")
	msg, err := NewMessage(payer, SHA256([]byte("bh")), []Instruction{{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{{Pubkey: payer, IsSigner: true, IsWritable: true}},
		Data:      make([]byte, 200),
	}})
	require.NoError(t, err)
	tx := &Transaction{Signatures: []Signature{{1, 2, 3}}, Message: *msg}

	raw, err := tx.Serialize()
	require.NoError(t, err)

	back, err := DeserializeTransaction(raw)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures, back.Signatures)
	assert.Equal(t, tx.Message.AccountKeys, back.Message.AccountKeys)
	assert.Equal(t, tx.Message.Instructions, back.Message.Instructions)
	assert.Equal(t, payer, back.FeePayer())

	_, err = DeserializeTransaction(append(raw, 0))
	assert.Error(t, err)
	_, err = DeserializeTransaction(raw[:len(raw)-1])
	assert.Error(t, err)
}

func TestMessage_Sanitize(t *testing.T) {
	payer := testPubkey("payer")
	msg := &Message{
		Header:      MessageHeader{NumRequiredSignatures: 1},
		AccountKeys: []Pubkey{payer, payer},
	}
	assert.ErrorIs(t, msg.Sanitize(), ErrMalformedMessage)

	msg = &Message{
		Header:       MessageHeader{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 1},
		AccountKeys:  []Pubkey{payer, SystemProgramID},
		Instructions: []CompiledInstruction{{ProgramIDIndex: 1, AccountIndices: []uint8{5}}},
	}
	assert.ErrorIs(t, msg.Sanitize(), ErrMalformedMessage)
}

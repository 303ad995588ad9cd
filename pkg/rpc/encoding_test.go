package rpc

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

func TestEncodeAccountData(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 64)

	for _, enc := range []string{EncodingBase58, EncodingBase64, EncodingBase64Zstd} {
		out, err := EncodeAccountData(data, enc)
		require.NoError(t, err, enc)
		assert.Equal(t, enc, out[1])
		back, err := DecodeAccountData(out[0].(string), enc)
		require.NoError(t, err, enc)
		assert.Equal(t, data, back, enc)
	}

	out, err := EncodeAccountData(data, EncodingJSONParsed)
	require.NoError(t, err)
	assert.Equal(t, EncodingBase64, out[1])

	_, err = EncodeAccountData(make([]byte, maxBase58DataLen+1), EncodingBase58)
	assert.Error(t, err)

	_, err = EncodeAccountData(data, "hex")
	assert.ErrorIs(t, err, errUnsupportedEncoding)
}

func TestDecodeTransactionEncoding(t *testing.T) {
	wire, err := decodeTransaction("2NEpo7TZRRrLZSi2U", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello World!"), wire)

	_, err = decodeTransaction("AAAA", EncodingBase64Zstd)
	assert.ErrorIs(t, err, errUnsupportedEncoding)
	_, err = decodeTransaction("AAAA", "hex")
	assert.ErrorIs(t, err, errUnsupportedEncoding)
}

func TestSliceData(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4}

	assert.Equal(t, data, SliceData(data, nil))
	assert.Equal(t, []byte{1, 2}, SliceData(data, &DataSlice{Offset: 1, Length: 2}))
	assert.Equal(t, []byte{3, 4}, SliceData(data, &DataSlice{Offset: 3, Length: 10}))
	assert.Equal(t, []byte{}, SliceData(data, &DataSlice{Offset: 9, Length: 1}))
	assert.Equal(t, []byte{4}, SliceData(data, &DataSlice{Offset: 4, Length: ^uint64(0)}))
}

func TestParseLamports(t *testing.T) {
	got, err := ParseLamports(json.Number("1500"))
	require.NoError(t, err)
	assert.Equal(t, types.Lamports(1500), got)

	got, err = ParseLamports("42")
	require.NoError(t, err)
	assert.Equal(t, types.Lamports(42), got)

	for _, bad := range []interface{}{json.Number("-1"), json.Number("1.5"), "lots", 3.0} {
		_, err := ParseLamports(bad)
		assert.Error(t, err, "%v", bad)
	}
}

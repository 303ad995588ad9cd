package rpc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Binary encodings a client may ask for.
const (
	EncodingBase58     = "base58"
	EncodingBase64     = "base64"
	EncodingBase64Zstd = "base64+zstd"
	EncodingJSONParsed = "jsonParsed"
)

// Validators refuse base58 account data above this size.
const maxBase58DataLen = 128

var errUnsupportedEncoding = errors.New("unsupported encoding")

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// ValidateEncoding rejects encodings getAccountInfo cannot produce.
func ValidateEncoding(encoding string) error {
	switch encoding {
	case "", EncodingBase58, EncodingBase64, EncodingBase64Zstd, EncodingJSONParsed:
		return nil
	}
	return fmt.Errorf("%w: %s", errUnsupportedEncoding, encoding)
}

// EncodeAccountData renders data as the [payload, encoding] pair clients
// expect. Anything not explicitly base58 or zstd, including jsonParsed for
// data the handler could not parse, comes back as base64.
func EncodeAccountData(data []byte, encoding string) ([]interface{}, error) {
	if err := ValidateEncoding(encoding); err != nil {
		return nil, err
	}
	switch encoding {
	case EncodingBase58:
		if len(data) > maxBase58DataLen {
			return nil, fmt.Errorf("encoded binary (base 58) data should be less than %d bytes, please use Base64 encoding", maxBase58DataLen)
		}
		return []interface{}{base58.Encode(data), EncodingBase58}, nil
	case EncodingBase64Zstd:
		packed := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
		return []interface{}{base64.StdEncoding.EncodeToString(packed), EncodingBase64Zstd}, nil
	default:
		return []interface{}{base64.StdEncoding.EncodeToString(data), EncodingBase64}, nil
	}
}

// DecodeAccountData reverses EncodeAccountData. An empty encoding means base64.
func DecodeAccountData(encoded, encoding string) ([]byte, error) {
	return decodeBinary(encoded, encoding, EncodingBase64)
}

// decodeTransaction decodes a sendTransaction payload, base58 unless told otherwise.
func decodeTransaction(encoded, encoding string) ([]byte, error) {
	if encoding == EncodingBase64Zstd || encoding == EncodingJSONParsed {
		return nil, fmt.Errorf("%w: %s", errUnsupportedEncoding, encoding)
	}
	return decodeBinary(encoded, encoding, EncodingBase58)
}

func decodeBinary(encoded, encoding, fallback string) ([]byte, error) {
	if encoding == "" {
		encoding = fallback
	}
	switch encoding {
	case EncodingBase58:
		return base58.Decode(encoded)
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(encoded)
	case EncodingBase64Zstd:
		packed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		return zstdDecoder.DecodeAll(packed, nil)
	}
	return nil, fmt.Errorf("%w: %s", errUnsupportedEncoding, encoding)
}

// SliceData applies a dataSlice option. Out of range offsets yield an empty
// slice and lengths are clamped to the data.
func SliceData(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}
	n := uint64(len(data))
	if slice.Offset >= n {
		return []byte{}
	}
	end := slice.Offset + slice.Length
	if end > n || end < slice.Offset {
		end = n
	}
	return data[slice.Offset:end]
}

// ParseLamports accepts an amount decoded with UseNumber, or a decimal string.
func ParseLamports(v interface{}) (types.Lamports, error) {
	var s string
	switch val := v.(type) {
	case json.Number:
		s = val.String()
	case string:
		s = val
	default:
		return 0, fmt.Errorf("invalid lamports type: %T", v)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid lamports value: %s", s)
	}
	return types.Lamports(n), nil
}

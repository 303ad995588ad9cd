package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSOL(t *testing.T) {
	tests := []struct {
		lamports uint64
		want     string
	}{
		{0, "0.00 SOL"},
		{1, "0.00 SOL"},
		{50_000, "0.00005 SOL"},
		{123_456, "0.000123 SOL"},
		{1_234_567, "0.00123 SOL"},
		{10_000_000, "0.01 SOL"},
		{123_456_789, "0.1235 SOL"},
		{999_999_999, "1.00 SOL"},
		{1_000_000_000, "1.00 SOL"},
		{1_500_000_000, "1.50 SOL"},
		{1_234_567_000_000_000, "1,234,567.00 SOL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSOL(tt.lamports), "lamports %d", tt.lamports)
	}
}

func TestParseSOL(t *testing.T) {
	l, err := ParseSOL("0.01")
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), l)

	_, err = ParseSOL("abc")
	assert.Error(t, err)
}

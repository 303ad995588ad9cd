package client

import (
	"strconv"
	"strings"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// FormatSOL renders lamports as a SOL amount for display. Small amounts get
// more decimals so a price like 0.00005 SOL does not show as zero; whole
// part digits are grouped by thousands.
func FormatSOL(lamports uint64) string {
	return FormatLamports(lamports) + " SOL"
}

// FormatLamports is FormatSOL without the unit suffix.
func FormatLamports(lamports uint64) string {
	whole := lamports / types.LamportsPerSOL
	frac := lamports % types.LamportsPerSOL

	decimals := displayDecimals(lamports)
	scale := uint64(1)
	for i := decimals; i < 9; i++ {
		scale *= 10
	}
	// Round half up to the shown precision.
	scaled := (frac + scale/2) / scale
	limit := uint64(1)
	for i := 0; i < decimals; i++ {
		limit *= 10
	}
	if scaled >= limit {
		whole++
		scaled -= limit
	}

	digits := strconv.FormatUint(scaled, 10)
	digits = strings.Repeat("0", decimals-len(digits)) + digits
	digits = strings.TrimRight(digits, "0")
	for len(digits) < 2 {
		digits += "0"
	}
	return groupThousands(whole) + "." + digits
}

func displayDecimals(lamports uint64) int {
	switch {
	case lamports < types.LamportsPerSOL/1000:
		return 6
	case lamports < types.LamportsPerSOL/100:
		return 5
	case lamports < types.LamportsPerSOL:
		return 4
	default:
		return 2
	}
}

func groupThousands(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// ParseSOL parses a decimal SOL amount into lamports.
func ParseSOL(s string) (uint64, error) {
	l, err := types.ParseSOL(s)
	return uint64(l), err
}

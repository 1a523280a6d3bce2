package blockchain

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of raw digits in one whole coin
const Decimals = 9

var maxBalance = new(uint256.Int).Lsh(uint256.NewInt(1), BalanceSize*8)

// FitsBalance is true when v can be stored in a block balance
func FitsBalance(v *uint256.Int) bool {
	return v.Lt(maxBalance)
}

// ParseBalance reads an unsigned decimal string bounded to 128 bits
func ParseBalance(s string) (uint256.Int, error) {
	var out uint256.Int
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return out, errors.Wrapf(err, "balance %q", s)
	}
	if !FitsBalance(v) {
		return out, errors.Newf("balance %q exceeds 128 bits", s)
	}
	out.Set(v)
	return out, nil
}

// AmountBetween is the signed transfer amount implied by moving from prev to next balance.
// Negative amounts are stored in two's complement.
func AmountBetween(prev, next *uint256.Int) uint256.Int {
	var out uint256.Int
	out.Sub(next, prev)
	return out
}

// ParseAmount reads a signed decimal amount ("-5" for outgoing)
func ParseAmount(s string) (uint256.Int, error) {
	neg := strings.HasPrefix(s, "-")
	v, err := ParseBalance(strings.TrimPrefix(s, "-"))
	if err != nil {
		return v, err
	}
	if neg {
		v.Neg(&v)
	}
	return v, nil
}

// AmountString prints a signed amount as decimal
func AmountString(v *uint256.Int) string {
	if v.Sign() < 0 {
		var abs uint256.Int
		abs.Abs(v)
		return "-" + abs.ToBig().String()
	}
	return v.ToBig().String()
}

// FormatAmount renders a raw signed amount in whole coins
func FormatAmount(v *uint256.Int, decimals int32) string {
	var abs uint256.Int
	abs.Abs(v)
	d := decimal.NewFromBigInt(abs.ToBig(), -decimals)
	if v.Sign() < 0 {
		d = d.Neg()
	}
	return d.String()
}

package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the fixed-point scale of the chain's native unit.
const NativeDecimals = 18

// Amounts holds the policy amounts converted to on-chain base units.
type Amounts struct {
	Lend     *big.Int
	Withdraw *big.Int
	Borrow   *big.Int
}

// Amounts converts the configured native-unit strings into base units. Every
// amount must be strictly positive, representable without a fractional base
// unit and fit in a uint256.
func (p Policy) Amounts() (Amounts, error) {
	lend, err := ParseNativeAmount("policy.LendAmount", p.LendAmount)
	if err != nil {
		return Amounts{}, err
	}
	withdraw, err := ParseNativeAmount("policy.WithdrawAmount", p.WithdrawAmount)
	if err != nil {
		return Amounts{}, err
	}
	borrow, err := ParseNativeAmount("policy.BorrowAmount", p.BorrowAmount)
	if err != nil {
		return Amounts{}, err
	}
	return Amounts{Lend: lend, Withdraw: withdraw, Borrow: borrow}, nil
}

// ParseNativeAmount parses a decimal native-unit amount ("0.001") into base units.
func ParseNativeAmount(label, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s amount required", label)
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s amount %q is not a decimal: %w", label, value, err)
	}
	if parsed.Sign() <= 0 {
		return nil, fmt.Errorf("%s amount must be positive", label)
	}
	scaled := parsed.Shift(NativeDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%s amount %q has more than %d decimals", label, value, NativeDecimals)
	}
	wei, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%s amount %q overflows uint256", label, value)
	}
	return wei.ToBig(), nil
}

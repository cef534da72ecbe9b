package domain

import (
	"fmt"
	"math/big"
	"strings"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

const nativeDecimals = 18

// Currency describes a token the service can transfer.
type Currency struct {
	Code     string
	Contract common.Address
	Decimals uint8
	// Native marks the chain's base unit, moved as call value rather than a token transfer.
	Native bool
}

// CurrencyRegistry is the fixed mapping of currency code to contract and precision.
type CurrencyRegistry struct {
	currencies map[string]Currency
}

// NewCurrencyRegistry validates and indexes the configured currencies.
func NewCurrencyRegistry(currencies ...Currency) (*CurrencyRegistry, error) {
	r := &CurrencyRegistry{currencies: make(map[string]Currency, len(currencies))}
	for _, c := range currencies {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		if code == "" {
			return nil, fmt.Errorf("currency code is required")
		}
		if _, dup := r.currencies[code]; dup {
			return nil, fmt.Errorf("currency %s configured twice", code)
		}
		if c.Native && c.Decimals != nativeDecimals {
			return nil, fmt.Errorf("native currency %s must have %d decimals", code, nativeDecimals)
		}
		if !c.Native && c.Contract == (common.Address{}) {
			return nil, fmt.Errorf("currency %s has no contract address", code)
		}
		if c.Decimals > nativeDecimals {
			return nil, fmt.Errorf("currency %s: decimals above %d are not supported", code, nativeDecimals)
		}
		c.Code = code
		r.currencies[code] = c
	}
	return r, nil
}

// Lookup returns the currency for code, failing with UnsupportedCurrency.
func (r *CurrencyRegistry) Lookup(code string) (Currency, error) {
	if r != nil {
		if c, ok := r.currencies[strings.ToUpper(strings.TrimSpace(code))]; ok {
			return c, nil
		}
	}
	return Currency{}, E(KindUnsupportedCurrency, "CurrencyRegistry.Lookup", nil, code)
}

// Codes lists the configured currency codes.
func (r *CurrencyRegistry) Codes() []string {
	codes := make([]string, 0, len(r.currencies))
	for code := range r.currencies {
		codes = append(codes, code)
	}
	return codes
}

// ToMinorUnits converts a decimal amount into the currency's integer minor units.
//
// Fractions below one minor unit are truncated toward zero, so "0.0000001" USDC
// (6 decimals) converts to 0 rather than failing. Native amounts must be exact
// to the wei. Results that do not fit a uint256 are rejected.
func (r *CurrencyRegistry) ToMinorUnits(amount string, code string) (*big.Int, error) {
	const op = "CurrencyRegistry.ToMinorUnits"

	currency, err := r.Lookup(code)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(amount)
	if !currency.Native {
		text = truncateFraction(text, math.LegacyPrecision)
	}

	dec, err := math.LegacyNewDecFromStr(text)
	if err != nil {
		return nil, E(KindInvalidArgument, op, err, amount)
	}
	if dec.IsNegative() {
		return nil, E(KindInvalidArgument, op, fmt.Errorf("amount must not be negative"), amount)
	}

	// LegacyDec is an 18 decimal fixed point, so its integer form is already wei.
	minor := dec.BigInt()
	if !currency.Native {
		minor.Mul(minor, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(currency.Decimals)), nil))
		minor.Quo(minor, new(big.Int).Exp(big.NewInt(10), big.NewInt(math.LegacyPrecision), nil))
	}
	if minor.BitLen() > 256 {
		return nil, E(KindInvalidArgument, op, fmt.Errorf("amount exceeds uint256"), amount)
	}
	return minor, nil
}

// truncateFraction drops fractional digits beyond digits.
func truncateFraction(amount string, digits int) string {
	point := strings.IndexByte(amount, '.')
	if point < 0 || len(amount)-point-1 <= digits {
		return amount
	}
	return amount[:point+1+digits]
}

package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// ParseEther converts a plain decimal ether string such as "0.01" into wei.
// Only digits and one decimal point are accepted; signs, exponents, fractions
// and base prefixes are not. At most 18 fractional digits are accepted.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("parse ether: empty amount")
	}
	if !plainDecimal(s) {
		if strings.HasPrefix(s, "-") {
			return nil, fmt.Errorf("parse ether: negative amount %q", s)
		}
		return nil, fmt.Errorf("parse ether: invalid amount %q", s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("parse ether: invalid amount %q", s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("parse ether: negative amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(big.NewInt(params.Ether)))
	if !r.IsInt() {
		return nil, fmt.Errorf("parse ether: %q has more than 18 decimals", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

func plainDecimal(s string) bool {
	digits, dots := 0, 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(params.Ether))
	out := r.FloatString(18)
	out = strings.TrimRight(out, "0")
	return strings.TrimSuffix(out, ".")
}

// ParseWei parses a base-10 wei amount.
func ParseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("parse wei: invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("parse wei: negative amount %q", s)
	}
	return v, nil
}

package bridge

import (
	"fmt"
	"math/big"
)

// CanonicalDecimals is the precision every cross-chain amount is expressed in.
const CanonicalDecimals = 18

var scaleFactors [CanonicalDecimals + 1]*big.Int

func init() {
	ten := big.NewInt(10)
	for i := range scaleFactors {
		scaleFactors[i] = new(big.Int).Exp(ten, big.NewInt(int64(i)), nil)
	}
}

func scale(decimals uint8) (*big.Int, error) {
	if decimals > CanonicalDecimals {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}
	return scaleFactors[CanonicalDecimals-int(decimals)], nil
}

// ToCanonical casts an amount in a token's own precision up to 18 decimals.
// Tokens with more than 18 decimals are rejected rather than rounded.
func ToCanonical(amount *big.Int, decimals uint8) (*big.Int, error) {
	f, err := scale(decimals)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(amount, f), nil
}

// FromCanonical converts an 18-decimal amount into a token's precision,
// truncating the remainder.
func FromCanonical(amount *big.Int, decimals uint8) (*big.Int, error) {
	f, err := scale(decimals)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Quo(amount, f), nil
}

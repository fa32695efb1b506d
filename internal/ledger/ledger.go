// Package ledger holds the fee and liquidity rules shared by the market
// instructions.
package ledger

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// Bps is a fee rate in basis points (1/100 of a percent).
type Bps uint16

const (
	// MaxBps is 100%.
	MaxBps Bps = 10_000

	// MinDeposit is the smallest single liquidity deposit accepted, in
	// lamports. It is independent of the cumulative activation threshold
	// stored in Global.MarketCount.
	MinDeposit uint64 = 100_000
)

// Valid reports whether b is at most 100%.
func (b Bps) Valid() bool { return b <= MaxBps }

// Percent renders b as a percentage, e.g. 250 -> 2.5.
func (b Bps) Percent() float64 { return float64(b) / 100 }

// PercentToBps converts a human-entered percentage with at most two
// decimal places into basis points.
func PercentToBps(pct float64) (Bps, error) {
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 || pct > 100 {
		return 0, fmt.Errorf("ledger: fee %v%% out of range", pct)
	}
	scaled := pct * 100
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-6 {
		return 0, fmt.Errorf("ledger: fee %v%% has more than two decimals", pct)
	}
	return Bps(rounded), nil
}

// SplitFee divides amount into the fee owed at rate bps and the remainder.
// The fee is rounded down.
func SplitFee(amount uint64, bps Bps) (fee, net uint64, err error) {
	if !bps.Valid() {
		return 0, 0, fmt.Errorf("ledger: fee rate %d bps: %w", bps, domain.ErrInvalidParams)
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(bps)))
	prod.Div(prod, uint256.NewInt(uint64(MaxBps)))
	fee = prod.Uint64()
	return fee, amount - fee, nil
}

// CheckDeposit rejects liquidity deposits below MinDeposit.
func CheckDeposit(amount uint64) error {
	if amount < MinDeposit {
		return fmt.Errorf("ledger: deposit %d below floor %d: %w", amount, MinDeposit, domain.ErrInvalidFundAmount)
	}
	return nil
}

// Activates reports whether the cumulative reserve has met the threshold.
func Activates(totalReserve, threshold uint64) bool {
	return totalReserve >= threshold
}

// Add is an overflow-checked addition.
func Add(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, fmt.Errorf("ledger: %d + %d overflows: %w", a, b, domain.ErrArithmetic)
	}
	return s, nil
}

// Sub is an underflow-checked subtraction.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("ledger: %d - %d underflows: %w", a, b, domain.ErrArithmetic)
	}
	return a - b, nil
}

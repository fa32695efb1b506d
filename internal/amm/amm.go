// Package amm prices YES/NO shares with a constant-product curve.
//
// All arithmetic is on integer base units. Products and scaled prices are
// computed in 256 bits and every narrowing back to uint64 is checked, so a
// failure surfaces as domain.ErrArithmetic rather than a wrapped value.
package amm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/minimarket/internal/domain"
)

// MaxDecimal bounds the price scale 10^decimal.
const MaxDecimal = 18

// Quote is the outcome of a prospective bet.
type Quote struct {
	AmountIn   uint64
	AmountOut  uint64
	ReserveYes uint64
	ReserveNo  uint64
}

// QuoteSwap runs a net deposit of amountIn through the curve. The deposit is
// added to the reserve opposite the chosen side and the chosen reserve is
// recomputed from k; the difference is paid out in chosen-side shares.
// The recomputed reserve is rounded up so the pool never loses value to
// rounding and k never decreases.
func QuoteSwap(reserveYes, reserveNo, amountIn uint64, isYes bool) (Quote, error) {
	if reserveYes == 0 || reserveNo == 0 {
		return Quote{}, fmt.Errorf("amm: empty reserve (yes=%d no=%d): %w", reserveYes, reserveNo, domain.ErrArithmetic)
	}
	if amountIn == 0 {
		return Quote{}, fmt.Errorf("amm: zero input: %w", domain.ErrInvalidFundAmount)
	}

	chosen, opposite := reserveYes, reserveNo
	if !isYes {
		chosen, opposite = reserveNo, reserveYes
	}

	k, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(reserveYes), uint256.NewInt(reserveNo))
	if overflow {
		return Quote{}, fmt.Errorf("amm: k overflow: %w", domain.ErrArithmetic)
	}
	newOpposite, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(opposite), uint256.NewInt(amountIn))
	if overflow || !newOpposite.IsUint64() {
		return Quote{}, fmt.Errorf("amm: reserve overflow: %w", domain.ErrArithmetic)
	}

	newChosen := ceilDiv(k, newOpposite)
	if newChosen.IsZero() || !newChosen.IsUint64() || newChosen.Uint64() > chosen {
		return Quote{}, fmt.Errorf("amm: degenerate reserve: %w", domain.ErrArithmetic)
	}
	out := chosen - newChosen.Uint64()
	if out == 0 {
		return Quote{}, fmt.Errorf("amm: input %d buys no shares: %w", amountIn, domain.ErrInvalidFundAmount)
	}

	q := Quote{AmountIn: amountIn, AmountOut: out}
	if isYes {
		q.ReserveYes, q.ReserveNo = newChosen.Uint64(), newOpposite.Uint64()
	} else {
		q.ReserveYes, q.ReserveNo = newOpposite.Uint64(), newChosen.Uint64()
	}
	return q, nil
}

// Prices returns the unit price of each side scaled by 10^decimal. A side's
// price is the opposite reserve's share of the pool.
func Prices(reserveYes, reserveNo uint64, decimal uint8) (priceYes, priceNo uint64, err error) {
	if decimal > MaxDecimal {
		return 0, 0, fmt.Errorf("amm: decimal %d above %d: %w", decimal, MaxDecimal, domain.ErrArithmetic)
	}
	total, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(reserveYes), uint256.NewInt(reserveNo))
	if overflow || total.IsZero() {
		return 0, 0, fmt.Errorf("amm: empty pool: %w", domain.ErrArithmetic)
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimal)))

	priceYes, err = scaledShare(reserveNo, scale, total)
	if err != nil {
		return 0, 0, err
	}
	priceNo, err = scaledShare(reserveYes, scale, total)
	if err != nil {
		return 0, 0, err
	}
	return priceYes, priceNo, nil
}

// K returns the pool invariant reserveYes*reserveNo.
func K(reserveYes, reserveNo uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(reserveYes), uint256.NewInt(reserveNo))
}

// Holds reports whether the invariant did not decrease from before to after.
func Holds(beforeYes, beforeNo, afterYes, afterNo uint64) bool {
	return K(afterYes, afterNo).Cmp(K(beforeYes, beforeNo)) >= 0
}

func scaledShare(part uint64, scale, total *uint256.Int) (uint64, error) {
	num, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(part), scale)
	if overflow {
		return 0, fmt.Errorf("amm: price overflow: %w", domain.ErrArithmetic)
	}
	p := num.Div(num, total)
	if !p.IsUint64() {
		return 0, fmt.Errorf("amm: price overflow: %w", domain.ErrArithmetic)
	}
	return p.Uint64(), nil
}

func ceilDiv(n, d *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int).DivMod(n, d, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

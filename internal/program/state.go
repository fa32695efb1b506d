package program

import (
	"fmt"

	"github.com/alanyoungcy/minimarket/internal/codec"
	"github.com/alanyoungcy/minimarket/internal/domain"
)

var (
	globalDisc = codec.AccountDiscriminator("Global")
	marketDisc = codec.AccountDiscriminator("Market")
)

// EncodeGlobal lays out a Global record.
func EncodeGlobal(g domain.Global) []byte {
	e := codec.NewEncoder(globalDisc)
	e.Address(1, g.Admin)
	e.Address(2, g.FeeAuthority)
	e.Uint(3, g.CreatorFeeAmount)
	e.Uint(4, g.MarketCount)
	e.Uint(5, uint64(g.Decimal))
	e.Uint(6, uint64(g.BettingFeeBps))
	e.Uint(7, uint64(g.FundFeeBps))
	return e.Bytes()
}

// DecodeGlobal is the inverse of EncodeGlobal.
func DecodeGlobal(data []byte) (domain.Global, error) {
	d, err := codec.NewDecoder(globalDisc, data)
	if err != nil {
		return domain.Global{}, fmt.Errorf("global: %v: %w", err, domain.ErrAccountDidNotDeserialize)
	}
	g := domain.Global{
		Admin:            d.Address(1),
		FeeAuthority:     d.Address(2),
		CreatorFeeAmount: d.Uint(3),
		MarketCount:      d.Uint(4),
		Decimal:          d.Uint8(5),
		BettingFeeBps:    d.Uint16(6),
		FundFeeBps:       d.Uint16(7),
	}
	if err := d.Err(); err != nil {
		return domain.Global{}, fmt.Errorf("global: %v: %w", err, domain.ErrAccountDidNotDeserialize)
	}
	return g, nil
}

// EncodeMarket lays out a Market record.
func EncodeMarket(m domain.Market) []byte {
	e := codec.NewEncoder(marketDisc)
	e.String(1, m.MarketID)
	e.Float(2, m.Value)
	e.Uint(3, uint64(m.Range))
	e.Address(4, m.Creator)
	e.Address(5, m.Feed)
	e.Address(6, m.TokenA)
	e.Address(7, m.TokenB)
	e.Uint(8, uint64(m.Status))
	e.Uint(9, m.TokenAAmount)
	e.Uint(10, m.TokenBAmount)
	e.Uint(11, m.TokenPriceA)
	e.Uint(12, m.TokenPriceB)
	e.Uint(13, m.TotalReserve)
	e.Uint(14, m.YesAmount)
	e.Uint(15, m.NoAmount)
	e.Bool(16, m.Result)
	e.Int(17, m.Date)
	return e.Bytes()
}

// DecodeMarket is the inverse of EncodeMarket. A status or range outside
// the known set is a decoding failure.
func DecodeMarket(data []byte) (domain.Market, error) {
	d, err := codec.NewDecoder(marketDisc, data)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market: %v: %w", err, domain.ErrAccountDidNotDeserialize)
	}
	m := domain.Market{
		MarketID:     d.String(1),
		Value:        d.Float(2),
		Range:        domain.RangeMode(d.Uint8(3)),
		Creator:      d.Address(4),
		Feed:         d.Address(5),
		TokenA:       d.Address(6),
		TokenB:       d.Address(7),
		Status:       domain.MarketStatus(d.Uint8(8)),
		TokenAAmount: d.Uint(9),
		TokenBAmount: d.Uint(10),
		TokenPriceA:  d.Uint(11),
		TokenPriceB:  d.Uint(12),
		TotalReserve: d.Uint(13),
		YesAmount:    d.Uint(14),
		NoAmount:     d.Uint(15),
		Result:       d.Bool(16),
		Date:         d.Int(17),
	}
	if err := d.Err(); err != nil {
		return domain.Market{}, fmt.Errorf("market: %v: %w", err, domain.ErrAccountDidNotDeserialize)
	}
	if !m.Status.Valid() || !m.Range.Valid() {
		return domain.Market{}, fmt.Errorf("market %s: status %d range %d: %w", m.MarketID, m.Status, m.Range, domain.ErrAccountDidNotDeserialize)
	}
	return m, nil
}

// IsMarket reports whether data holds a Market record.
func IsMarket(data []byte) bool {
	return marketDisc.Has(data)
}

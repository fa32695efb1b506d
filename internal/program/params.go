package program

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/minimarket/internal/codec"
	"github.com/alanyoungcy/minimarket/internal/domain"
)

// Instruction names.
const (
	IxInitialize   = "initialize"
	IxInitMarket   = "initMarket"
	IxMintToken    = "mintToken"
	IxAddLiquidity = "addLiquidity"
	IxCreateBet    = "createBet"
	IxGetRes       = "getRes"
)

// InitializeParams configures the Global record.
type InitializeParams struct {
	FeeAuthority     domain.Address
	CreatorFeeAmount uint64
	MarketCount      uint64
	Decimal          uint8
	BettingFeeBps    uint16
	FundFeeBps       uint16
}

// MarketParams proposes a market. The optional metadata names the YES (A)
// and NO (B) tokens.
type MarketParams struct {
	MarketID    string
	Value       float64
	Range       domain.RangeMode
	TokenAmount uint64
	TokenPrice  uint64
	Date        int64
	NameA       string
	SymbolA     string
	URLA        string
	NameB       string
	SymbolB     string
	URLB        string
}

// LiquidityParams funds a market in Prepare.
type LiquidityParams struct {
	Amount uint64
}

// BettingParams buys shares of one side.
type BettingParams struct {
	MarketID string
	Amount   uint64
	IsYes    bool
}

func (p InitializeParams) encode() []byte {
	e := codec.NewEncoder(codec.InstructionDiscriminator(IxInitialize))
	e.Address(1, p.FeeAuthority)
	e.Uint(2, p.CreatorFeeAmount)
	e.Uint(3, p.MarketCount)
	e.Uint(4, uint64(p.Decimal))
	e.Uint(5, uint64(p.BettingFeeBps))
	e.Uint(6, uint64(p.FundFeeBps))
	return e.Bytes()
}

func decodeInitialize(data []byte) (InitializeParams, error) {
	d, err := newParamDecoder(IxInitialize, data)
	if err != nil {
		return InitializeParams{}, err
	}
	p := InitializeParams{
		FeeAuthority:     d.Address(1),
		CreatorFeeAmount: d.Uint(2),
		MarketCount:      d.Uint(3),
		Decimal:          d.Uint8(4),
		BettingFeeBps:    d.Uint16(5),
		FundFeeBps:       d.Uint16(6),
	}
	return p, paramErr(IxInitialize, d)
}

func (p MarketParams) encode() []byte {
	e := codec.NewEncoder(codec.InstructionDiscriminator(IxInitMarket))
	e.String(1, p.MarketID)
	e.Float(2, p.Value)
	e.Uint(3, uint64(p.Range))
	e.Uint(4, p.TokenAmount)
	e.Uint(5, p.TokenPrice)
	e.Int(6, p.Date)
	e.String(7, p.NameA)
	e.String(8, p.SymbolA)
	e.String(9, p.URLA)
	e.String(10, p.NameB)
	e.String(11, p.SymbolB)
	e.String(12, p.URLB)
	return e.Bytes()
}

func decodeMarketParams(data []byte) (MarketParams, error) {
	d, err := newParamDecoder(IxInitMarket, data)
	if err != nil {
		return MarketParams{}, err
	}
	p := MarketParams{
		MarketID:    d.String(1),
		Value:       d.Float(2),
		Range:       domain.RangeMode(d.Uint8(3)),
		TokenAmount: d.Uint(4),
		TokenPrice:  d.Uint(5),
		Date:        d.Int(6),
		NameA:       d.String(7),
		SymbolA:     d.String(8),
		URLA:        d.String(9),
		NameB:       d.String(10),
		SymbolB:     d.String(11),
		URLB:        d.String(12),
	}
	return p, paramErr(IxInitMarket, d)
}

// Validate checks everything that does not depend on stored state.
func (p MarketParams) Validate() error {
	switch {
	case p.MarketID == "":
		return fmt.Errorf("market id is empty: %w", domain.ErrInvalidParams)
	case math.IsNaN(p.Value) || math.IsInf(p.Value, 0):
		return fmt.Errorf("target value %v: %w", p.Value, domain.ErrInvalidParams)
	case !p.Range.Valid():
		return fmt.Errorf("range %d: %w", p.Range, domain.ErrInvalidParams)
	case p.TokenAmount == 0:
		return fmt.Errorf("zero initial token amount: %w", domain.ErrInvalidParams)
	case p.Date <= 0:
		return fmt.Errorf("resolution date %d: %w", p.Date, domain.ErrInvalidParams)
	}
	return nil
}

func (p LiquidityParams) encode() []byte {
	e := codec.NewEncoder(codec.InstructionDiscriminator(IxAddLiquidity))
	e.Uint(1, p.Amount)
	return e.Bytes()
}

func decodeLiquidity(data []byte) (LiquidityParams, error) {
	d, err := newParamDecoder(IxAddLiquidity, data)
	if err != nil {
		return LiquidityParams{}, err
	}
	p := LiquidityParams{Amount: d.Uint(1)}
	return p, paramErr(IxAddLiquidity, d)
}

func (p BettingParams) encode() []byte {
	e := codec.NewEncoder(codec.InstructionDiscriminator(IxCreateBet))
	e.String(1, p.MarketID)
	e.Uint(2, p.Amount)
	e.Bool(3, p.IsYes)
	return e.Bytes()
}

func decodeBetting(data []byte) (BettingParams, error) {
	d, err := newParamDecoder(IxCreateBet, data)
	if err != nil {
		return BettingParams{}, err
	}
	p := BettingParams{MarketID: d.String(1), Amount: d.Uint(2), IsYes: d.Bool(3)}
	return p, paramErr(IxCreateBet, d)
}

// emptyParams is the data of instructions without arguments.
func emptyParams(name string) []byte {
	return codec.NewEncoder(codec.InstructionDiscriminator(name)).Bytes()
}

func checkEmpty(name string, data []byte) error {
	_, err := newParamDecoder(name, data)
	return err
}

func newParamDecoder(name string, data []byte) (*codec.Decoder, error) {
	d, err := codec.NewDecoder(codec.InstructionDiscriminator(name), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", name, err, domain.ErrInstructionDidNotDeserialize)
	}
	return d, nil
}

func paramErr(name string, d *codec.Decoder) error {
	if err := d.Err(); err != nil {
		return fmt.Errorf("%s: %v: %w", name, err, domain.ErrInstructionDidNotDeserialize)
	}
	return nil
}

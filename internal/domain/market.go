package domain

import (
	"fmt"
	"strings"
	"time"
)

// MarketStatus is the lifecycle state of a market. The zero value is
// Created and the order of the constants is the only legal order of
// transitions.
type MarketStatus uint8

const (
	MarketStatusCreated MarketStatus = iota
	MarketStatusPrepare
	MarketStatusActive
	MarketStatusResolved
)

// String returns the lower-case status name.
func (s MarketStatus) String() string {
	switch s {
	case MarketStatusCreated:
		return "created"
	case MarketStatusPrepare:
		return "prepare"
	case MarketStatusActive:
		return "active"
	case MarketStatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the four lifecycle states.
func (s MarketStatus) Valid() bool {
	return s <= MarketStatusResolved
}

// CanTransitionTo reports whether next is exactly one step forward.
func (s MarketStatus) CanTransitionTo(next MarketStatus) bool {
	return s.Valid() && next.Valid() && next == s+1
}

// MarshalText encodes the status by name.
func (s MarketStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid market status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by String.
func (s *MarketStatus) UnmarshalText(b []byte) error {
	v, err := ParseMarketStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseMarketStatus is the inverse of String.
func ParseMarketStatus(s string) (MarketStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created":
		return MarketStatusCreated, nil
	case "prepare":
		return MarketStatusPrepare, nil
	case "active":
		return MarketStatusActive, nil
	case "resolved":
		return MarketStatusResolved, nil
	}
	return 0, fmt.Errorf("unknown market status %q", s)
}

// RangeMode selects how the oracle value is compared with Market.Value.
type RangeMode uint8

const (
	RangeGreaterThan RangeMode = iota
	RangeEqual
	RangeLessThan
)

// String returns gt, eq or lt.
func (r RangeMode) String() string {
	switch r {
	case RangeGreaterThan:
		return "gt"
	case RangeEqual:
		return "eq"
	case RangeLessThan:
		return "lt"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the three comparisons.
func (r RangeMode) Valid() bool {
	return r <= RangeLessThan
}

// MarshalText encodes the mode by name.
func (r RangeMode) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid range mode %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText accepts gt, eq and lt.
func (r *RangeMode) UnmarshalText(b []byte) error {
	v, err := ParseRangeMode(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRangeMode accepts "gt", "eq", "lt" or the numeric form.
func ParseRangeMode(s string) (RangeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gt", "0", ">":
		return RangeGreaterThan, nil
	case "eq", "1", "=":
		return RangeEqual, nil
	case "lt", "2", "<":
		return RangeLessThan, nil
	}
	return 0, fmt.Errorf("unknown range mode %q", s)
}

// Global holds the deployment-wide parameters. There is exactly one per
// program, stored at the global derived address.
type Global struct {
	Admin            Address `json:"admin"`
	FeeAuthority     Address `json:"fee_authority"`
	CreatorFeeAmount uint64  `json:"creator_fee_amount"`
	// MarketCount is the cumulative liquidity a market needs to become
	// active. The name is kept from the account layout.
	MarketCount   uint64 `json:"market_count"`
	Decimal       uint8  `json:"decimal"`
	BettingFeeBps uint16 `json:"betting_fee_bps"`
	FundFeeBps    uint16 `json:"fund_fee_bps"`
}

// Market is one proposed question and its AMM state.
type Market struct {
	MarketID     string       `json:"market_id"`
	Value        float64      `json:"value"`
	Range        RangeMode    `json:"range"`
	Creator      Address      `json:"creator"`
	Feed         Address      `json:"feed"`
	TokenA       Address      `json:"token_a"`
	TokenB       Address      `json:"token_b"`
	Status       MarketStatus `json:"status"`
	TokenAAmount uint64       `json:"token_a_amount"`
	TokenBAmount uint64       `json:"token_b_amount"`
	TokenPriceA  uint64       `json:"token_price_a"`
	TokenPriceB  uint64       `json:"token_price_b"`
	TotalReserve uint64       `json:"total_reserve"`
	YesAmount    uint64       `json:"yes_amount"`
	NoAmount     uint64       `json:"no_amount"`
	Result       bool         `json:"result"`
	Date         int64        `json:"date"`
}

// Eligible reports whether the market may be resolved at now.
func (m Market) Eligible(now time.Time) bool {
	return now.Unix() >= m.Date
}

// MarketSnapshot is a Market as seen by read-side consumers, tagged with
// where and at which account version it was read.
type MarketSnapshot struct {
	Address   Address   `json:"address"`
	Version   uint64    `json:"version"`
	Market    Market    `json:"market"`
	UpdatedAt time.Time `json:"updated_at"`
}

package domain

import (
	"encoding/json"
	"time"
)

// EventKind names a program event.
type EventKind string

const (
	EventGlobalInitialized   EventKind = "global_initialized"
	EventMarketCreated       EventKind = "market_created"
	EventMarketStatusUpdated EventKind = "market_status_updated"
	EventLiquidityAdded      EventKind = "liquidity_added"
	EventBetting             EventKind = "betting"
	EventOracleResUpdated    EventKind = "oracle_res_updated"
)

// Event is emitted by an instruction and published only after the
// transaction that produced it has committed.
type Event struct {
	ID       string          `json:"id"`
	Kind     EventKind       `json:"kind"`
	MarketID string          `json:"market_id,omitempty"`
	TxID     string          `json:"tx_id"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload"`
}

// NewEvent encodes payload into an event. ID, TxID and At are filled in by
// the runtime.
func NewEvent(kind EventKind, marketID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, MarketID: marketID, Payload: raw}, nil
}

// GlobalInitializedEvent is the payload of global_initialized.
type GlobalInitializedEvent struct {
	Admin            Address `json:"admin"`
	FeeAuthority     Address `json:"fee_authority"`
	CreatorFeeAmount uint64  `json:"creator_fee_amount"`
	MarketCount      uint64  `json:"market_count"`
	Decimal          uint8   `json:"decimal"`
	BettingFeeBps    uint16  `json:"betting_fee_bps"`
	FundFeeBps       uint16  `json:"fund_fee_bps"`
}

// MarketCreatedEvent is the payload of market_created.
type MarketCreatedEvent struct {
	MarketID string    `json:"market_id"`
	Market   Address   `json:"market"`
	Creator  Address   `json:"creator"`
	Feed     Address   `json:"feed"`
	TokenA   Address   `json:"token_a"`
	TokenB   Address   `json:"token_b"`
	Value    float64   `json:"value"`
	Range    RangeMode `json:"range"`
	Date     int64     `json:"date"`
}

// MarketStatusUpdatedEvent is the payload of market_status_updated.
type MarketStatusUpdatedEvent struct {
	MarketID string `json:"market_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// LiquidityAddedEvent is the payload of liquidity_added.
type LiquidityAddedEvent struct {
	MarketID     string  `json:"market_id"`
	Depositor    Address `json:"depositor"`
	Amount       uint64  `json:"amount"`
	Fee          uint64  `json:"fee"`
	TotalReserve uint64  `json:"total_reserve"`
}

// BettingEvent is the payload of betting.
type BettingEvent struct {
	MarketID    string  `json:"market_id"`
	Bettor      Address `json:"bettor"`
	IsYes       bool    `json:"is_yes"`
	Amount      uint64  `json:"amount"`
	Fee         uint64  `json:"fee"`
	Shares      uint64  `json:"shares"`
	TokenAPrice uint64  `json:"token_a_price"`
	TokenBPrice uint64  `json:"token_b_price"`
}

// OracleResUpdatedEvent is the payload of oracle_res_updated.
type OracleResUpdatedEvent struct {
	MarketID  string  `json:"market_id"`
	OracleRes float64 `json:"oracle_res"`
	Result    bool    `json:"result"`
}

package orders

import (
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
)

// wireTimeLayout is the transport timestamp format: ISO-8601 to whole
// seconds, no zone. Sub-second precision is deliberately dropped so that a
// round trip through the shared store is stable.
const wireTimeLayout = "2006-01-02T15:04:05"

// wireTimeLayouts are the accepted inbound variants. Upstream platforms emit
// either the bare ISO form, a space-separated form, or full RFC 3339.
var wireTimeLayouts = []string{
	wireTimeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// WireBool is a boolean carried as 0/1 on the wire. Some upstream
// platforms send true/false instead, so decoding accepts both.
type WireBool int

// MarshalJSON emits the flag as 0 or 1.
func (b WireBool) MarshalJSON() ([]byte, error) {
	if b != 0 {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts 0/1, true/false and null.
func (b *WireBool) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*b = 1
		return nil
	case "false", "null":
		*b = 0
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid flag value %s", data)
	}
	*b = WireBool(n)
	return nil
}

// WireOrder is the flat transport representation of an Order: enums as
// strings, timestamps as ISO-8601 text, booleans as 0/1 for storage-layer
// compatibility, prices rounded to 3 decimals.
type WireOrder struct {
	OrderID           string   `json:"order_id"`
	Symbol            string   `json:"symbol"`
	Direction         string   `json:"direction"`
	Price             float64  `json:"price"`
	Volume            float64  `json:"volume"`
	Status            string   `json:"status"`
	CreateTime        string   `json:"create_time"`
	FilledVolume      float64  `json:"filled_volume"`
	TraderPlatform    string   `json:"trader_platform"`
	IsActive          WireBool `json:"is_active"`
	OrderType         string   `json:"order_type"`
	IsFinished        WireBool `json:"is_finished"`
	StrategyName      string   `json:"strategy_name"`
	TradedPrice       *float64 `json:"traded_price"`
	ExecutionStrategy *string  `json:"execution_strategy"`
	ParentID          *string  `json:"parent_id"`
}

// RoundPrice normalizes a price to 3 decimal places, the tick precision the
// ledger stores.
func RoundPrice(p float64) float64 {
	return math.Round(p*1000) / 1000
}

func boolToWire(b bool) WireBool {
	if b {
		return 1
	}
	return 0
}

// ToWire flattens an order for transport.
func ToWire(o *Order) WireOrder {
	return WireOrder{
		OrderID:           o.OrderID,
		Symbol:            o.Symbol,
		Direction:         string(o.Direction),
		Price:             RoundPrice(o.Price),
		Volume:            o.Volume,
		Status:            string(o.Status),
		CreateTime:        o.CreateTime.Format(wireTimeLayout),
		FilledVolume:      o.FilledVolume,
		TraderPlatform:    o.TraderPlatform,
		IsActive:          boolToWire(o.IsActive),
		OrderType:         string(o.OrderType),
		IsFinished:        boolToWire(o.IsFinished),
		StrategyName:      o.StrategyName,
		TradedPrice:       o.TradedPrice,
		ExecutionStrategy: o.ExecutionStrategy,
		ParentID:          o.ParentID,
	}
}

// FromWire rebuilds an order from its transport form. Malformed enum values
// return an error so the caller can skip the record; an unknown order type
// falls back to MARKET.
func FromWire(w WireOrder) (*Order, error) {
	direction, err := ParseSide(w.Direction)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", w.OrderID, err)
	}
	status, err := ParseStatus(w.Status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", w.OrderID, err)
	}
	createTime, err := ParseWireTime(w.CreateTime)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", w.OrderID, err)
	}

	return &Order{
		OrderID:           w.OrderID,
		Symbol:            w.Symbol,
		Direction:         direction,
		Price:             w.Price,
		Volume:            w.Volume,
		Status:            status,
		CreateTime:        createTime,
		FilledVolume:      w.FilledVolume,
		TraderPlatform:    w.TraderPlatform,
		IsActive:          w.IsActive != 0,
		OrderType:         ParseOrderType(w.OrderType),
		IsFinished:        w.IsFinished != 0,
		StrategyName:      w.StrategyName,
		TradedPrice:       w.TradedPrice,
		ExecutionStrategy: w.ExecutionStrategy,
		ParentID:          w.ParentID,
		SecurityType:      GetSecurityType(w.Symbol),
	}, nil
}

// FormatWireTime renders a timestamp in the primary wire layout.
func FormatWireTime(t time.Time) string {
	return t.Format(wireTimeLayout)
}

// ParseWireTime parses an inbound timestamp in any accepted layout.
func ParseWireTime(s string) (time.Time, error) {
	for _, layout := range wireTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// MarshalWire serializes an order to its wire JSON.
func MarshalWire(o *Order) ([]byte, error) {
	return json.Marshal(ToWire(o))
}

// UnmarshalWire deserializes wire JSON into an order.
func UnmarshalWire(data []byte) (*Order, error) {
	var w WireOrder
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode wire order: %w", err)
	}
	return FromWire(w)
}

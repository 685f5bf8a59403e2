// Package orders defines the order domain model shared by the ledger,
// the sync manager and the HTTP API.
package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state reported by the upstream trading platform.
// Transitions move toward a terminal state (FILLED, CANCELLED, REJECTED) but
// legality is not enforced here; the ledger records whatever upstream reports.
type OrderStatus string

const (
	StatusSubmitting    OrderStatus = "SUBMITTING"
	StatusSubmitted     OrderStatus = "SUBMITTED"
	StatusPartialFilled OrderStatus = "PARTIAL_FILLED"
	StatusFilled        OrderStatus = "FILLED"
	StatusCancelled     OrderStatus = "CANCELLED"
	StatusRejected      OrderStatus = "REJECTED"
)

// OrderSide is the trade direction.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderType is the pricing mode of an order.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// SecurityType classifies the instrument behind a symbol.
type SecurityType string

const (
	SecurityStock SecurityType = "STOCK"
	SecurityETF   SecurityType = "ETF"
)

// etfPrefixes are the exchange code ranges for ETF funds:
// Shanghai 510/511/512/513/518, Shenzhen 159.
var etfPrefixes = []string{"510", "511", "512", "513", "518", "159"}

// GetSecurityType derives the security type from the symbol prefix.
func GetSecurityType(symbol string) SecurityType {
	for _, prefix := range etfPrefixes {
		if strings.HasPrefix(symbol, prefix) {
			return SecurityETF
		}
	}
	return SecurityStock
}

// ParseStatus decodes an order status string. Unknown values are an error so
// that a malformed wire record can be skipped instead of poisoning the ledger.
func ParseStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case StatusSubmitting, StatusSubmitted, StatusPartialFilled,
		StatusFilled, StatusCancelled, StatusRejected:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

// ParseSide decodes a trade direction string.
func ParseSide(s string) (OrderSide, error) {
	switch OrderSide(s) {
	case SideBuy, SideSell:
		return OrderSide(s), nil
	}
	return "", fmt.Errorf("invalid order direction %q", s)
}

// ParseOrderType decodes an order type string. Empty or unknown values
// default to MARKET, matching what upstream platforms omit for market orders.
func ParseOrderType(s string) OrderType {
	if OrderType(s) == TypeLimit {
		return TypeLimit
	}
	return TypeMarket
}

// Order is a single order tracked by the ledger. Orders are keyed by OrderID,
// which is externally supplied or generated once and never mutated afterwards.
type Order struct {
	OrderID           string       `json:"order_id"`
	Symbol            string       `json:"symbol"`
	Direction         OrderSide    `json:"direction"`
	Price             float64      `json:"price"`
	Volume            float64      `json:"volume"`
	Status            OrderStatus  `json:"status"`
	CreateTime        time.Time    `json:"create_time"`
	FilledVolume      float64      `json:"filled_volume"`
	TraderPlatform    string       `json:"trader_platform"`
	IsActive          bool         `json:"is_active"`
	OrderType         OrderType    `json:"order_type"`
	IsFinished        bool         `json:"is_finished"`
	StrategyName      string       `json:"strategy_name"`
	TradedPrice       *float64     `json:"traded_price"`
	ExecutionStrategy *string      `json:"execution_strategy"`
	ParentID          *string      `json:"parent_id"`
	SecurityType      SecurityType `json:"security_type"`
}

// NewOrder builds an order from required fields, generating an identifier
// when none is supplied and deriving the security type from the symbol.
func NewOrder(orderID, symbol string, direction OrderSide, price, volume float64, status OrderStatus) (*Order, error) {
	if symbol == "" {
		return nil, fmt.Errorf("order symbol is required")
	}
	if IsPlaceholderID(orderID) {
		orderID = uuid.NewString()
	}
	return &Order{
		OrderID:      orderID,
		Symbol:       symbol,
		Direction:    direction,
		Price:        price,
		Volume:       volume,
		Status:       status,
		CreateTime:   time.Now(),
		IsActive:     true,
		OrderType:    TypeMarket,
		SecurityType: GetSecurityType(symbol),
	}, nil
}

// IsPlaceholderID reports whether an order identifier is empty or one of the
// literal null placeholders that leak out of upstream serializers.
func IsPlaceholderID(id string) bool {
	return id == "" || id == "None" || id == "null"
}

// Clone returns a deep copy; pointer fields are duplicated so later mutation
// of the source does not alter the copy.
func (o *Order) Clone() *Order {
	c := *o
	if o.TradedPrice != nil {
		v := *o.TradedPrice
		c.TradedPrice = &v
	}
	if o.ExecutionStrategy != nil {
		v := *o.ExecutionStrategy
		c.ExecutionStrategy = &v
	}
	if o.ParentID != nil {
		v := *o.ParentID
		c.ParentID = &v
	}
	return &c
}

// Terminal reports whether the order has reached a final state.
func (o *Order) Terminal() bool {
	switch o.Status {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// SameSyncState reports whether two orders agree on the fields the sync
// loops compare for change detection: status, filled volume and traded
// price. Cheap field comparison instead of a version vector; a rare false
// negative when some other field changed is accepted.
func (o *Order) SameSyncState(other *Order) bool {
	if other == nil {
		return false
	}
	if o.Status != other.Status || o.FilledVolume != other.FilledVolume {
		return false
	}
	if (o.TradedPrice == nil) != (other.TradedPrice == nil) {
		return false
	}
	if o.TradedPrice != nil && *o.TradedPrice != *other.TradedPrice {
		return false
	}
	return true
}

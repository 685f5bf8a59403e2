package orders

import (
	"testing"
	"time"
)

func TestGetSecurityType(t *testing.T) {
	cases := []struct {
		symbol string
		want   SecurityType
	}{
		{"510300", SecurityETF},
		{"511010", SecurityETF},
		{"512880", SecurityETF},
		{"513100", SecurityETF},
		{"518880", SecurityETF},
		{"159915", SecurityETF},
		{"600519", SecurityStock},
		{"000001", SecurityStock},
		{"300750", SecurityStock},
		{"", SecurityStock},
	}

	for _, tc := range cases {
		if got := GetSecurityType(tc.symbol); got != tc.want {
			t.Errorf("GetSecurityType(%q) = %s, want %s", tc.symbol, got, tc.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"SUBMITTING", "SUBMITTED", "PARTIAL_FILLED", "FILLED", "CANCELLED", "REJECTED"} {
		status, err := ParseStatus(valid)
		if err != nil {
			t.Errorf("ParseStatus(%q) unexpected error: %v", valid, err)
		}
		if string(status) != valid {
			t.Errorf("ParseStatus(%q) = %s", valid, status)
		}
	}

	for _, invalid := range []string{"", "filled", "DONE", "OrderStatus.FILLED"} {
		if _, err := ParseStatus(invalid); err == nil {
			t.Errorf("ParseStatus(%q) expected error", invalid)
		}
	}
}

func TestParseSide(t *testing.T) {
	if side, err := ParseSide("BUY"); err != nil || side != SideBuy {
		t.Errorf("ParseSide(BUY) = %s, %v", side, err)
	}
	if side, err := ParseSide("SELL"); err != nil || side != SideSell {
		t.Errorf("ParseSide(SELL) = %s, %v", side, err)
	}
	if _, err := ParseSide("HOLD"); err == nil {
		t.Error("ParseSide(HOLD) expected error")
	}
}

func TestParseOrderTypeDefaultsToMarket(t *testing.T) {
	if got := ParseOrderType("LIMIT"); got != TypeLimit {
		t.Errorf("ParseOrderType(LIMIT) = %s", got)
	}
	if got := ParseOrderType(""); got != TypeMarket {
		t.Errorf("ParseOrderType(empty) = %s", got)
	}
	if got := ParseOrderType("STOP"); got != TypeMarket {
		t.Errorf("ParseOrderType(STOP) = %s", got)
	}
}

func TestIsPlaceholderID(t *testing.T) {
	for _, id := range []string{"", "None", "null"} {
		if !IsPlaceholderID(id) {
			t.Errorf("IsPlaceholderID(%q) = false, want true", id)
		}
	}
	if IsPlaceholderID("abc-123") {
		t.Error("IsPlaceholderID(abc-123) = true, want false")
	}
}

func TestNewOrderGeneratesID(t *testing.T) {
	o, err := NewOrder("None", "510300", SideBuy, 3.456, 100, StatusSubmitting)
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if IsPlaceholderID(o.OrderID) {
		t.Errorf("expected generated order id, got %q", o.OrderID)
	}
	if o.SecurityType != SecurityETF {
		t.Errorf("expected ETF security type, got %s", o.SecurityType)
	}
	if !o.IsActive {
		t.Error("new order should be active")
	}

	// A supplied id survives.
	o2, err := NewOrder("my-id", "600519", SideSell, 1800, 10, StatusSubmitted)
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if o2.OrderID != "my-id" {
		t.Errorf("expected supplied id, got %q", o2.OrderID)
	}
}

func TestNewOrderRequiresSymbol(t *testing.T) {
	if _, err := NewOrder("id", "", SideBuy, 1, 1, StatusSubmitting); err == nil {
		t.Error("expected error for empty symbol")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	traded := 3.5
	parent := "parent-1"
	o := &Order{
		OrderID:     "o1",
		Symbol:      "510300",
		Direction:   SideBuy,
		Status:      StatusPartialFilled,
		CreateTime:  time.Now(),
		TradedPrice: &traded,
		ParentID:    &parent,
	}

	c := o.Clone()
	*o.TradedPrice = 9.9
	*o.ParentID = "changed"
	o.Status = StatusFilled

	if *c.TradedPrice != 3.5 {
		t.Errorf("clone traded price mutated: %v", *c.TradedPrice)
	}
	if *c.ParentID != "parent-1" {
		t.Errorf("clone parent id mutated: %v", *c.ParentID)
	}
	if c.Status != StatusPartialFilled {
		t.Errorf("clone status mutated: %v", c.Status)
	}
}

func TestTerminal(t *testing.T) {
	cases := map[OrderStatus]bool{
		StatusSubmitting:    false,
		StatusSubmitted:     false,
		StatusPartialFilled: false,
		StatusFilled:        true,
		StatusCancelled:     true,
		StatusRejected:      true,
	}
	for status, want := range cases {
		o := &Order{Status: status}
		if got := o.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestSameSyncState(t *testing.T) {
	price := 3.5
	base := &Order{Status: StatusSubmitted, FilledVolume: 100, TradedPrice: &price}

	same := &Order{Status: StatusSubmitted, FilledVolume: 100, TradedPrice: &price}
	if !base.SameSyncState(same) {
		t.Error("identical sync fields should compare equal")
	}

	// The symbol is not a sync field.
	same.Symbol = "600519"
	if !base.SameSyncState(same) {
		t.Error("non-sync field change should not matter")
	}

	diffStatus := &Order{Status: StatusFilled, FilledVolume: 100, TradedPrice: &price}
	if base.SameSyncState(diffStatus) {
		t.Error("status change should be detected")
	}

	diffFilled := &Order{Status: StatusSubmitted, FilledVolume: 200, TradedPrice: &price}
	if base.SameSyncState(diffFilled) {
		t.Error("filled volume change should be detected")
	}

	other := 9.9
	diffTraded := &Order{Status: StatusSubmitted, FilledVolume: 100, TradedPrice: &other}
	if base.SameSyncState(diffTraded) {
		t.Error("traded price change should be detected")
	}

	nilTraded := &Order{Status: StatusSubmitted, FilledVolume: 100}
	if base.SameSyncState(nilTraded) {
		t.Error("nil versus set traded price should be detected")
	}

	if base.SameSyncState(nil) {
		t.Error("nil other should never compare equal")
	}
}

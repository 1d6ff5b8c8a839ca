package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes the three kinds of order this supervisor tracks.
type OrderType string

const (
	// OrderTypeEntry is the take-profit-buy stop order that opens a position.
	OrderTypeEntry OrderType = "entry_buy"
	// OrderTypeStopLoss is the protective sell-stop placed after an entry fills.
	OrderTypeStopLoss OrderType = "stop_loss"
	// OrderTypeTakeProfit is the target sell-stop placed after an entry fills.
	OrderTypeTakeProfit OrderType = "take_profit"
)

// OrderStatus is the top-level status reported by the broker.
type OrderStatus string

const (
	// StatusPending means the order is live on the exchange awaiting a fill.
	StatusPending OrderStatus = "pending"
	// StatusExecuted means the order filled.
	StatusExecuted OrderStatus = "executed"
	// StatusCancelled means the order was cancelled or rejected.
	StatusCancelled OrderStatus = "cancelled"
)

// TrackedOrder is a single order under this supervisor's watch, whether an
// entry, a stop-loss, or a take-profit. Fields follow §3 of the
// specification this package implements.
type TrackedOrder struct {
	OrderID string `json:"order_id"`
	Ticker  string `json:"ticker"`
	FIGI    string `json:"figi"`

	LotSize  int `json:"lot_size"`
	Quantity int `json:"quantity"`

	OrderType OrderType `json:"order_type"`

	EntryPrice  decimal.Decimal `json:"entry_price"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	StopOffset  decimal.Decimal `json:"stop_offset"`
	TakeOffset  decimal.Decimal `json:"take_offset"`
	ATR         decimal.Decimal `json:"atr"`

	Status       OrderStatus `json:"status"`
	IsExecuted   bool        `json:"is_executed"`
	ExecutedPrice decimal.Decimal `json:"executed_price,omitempty"`
	ExecutedAt   *time.Time  `json:"executed_at,omitempty"`

	ParentOrderID string `json:"parent_order_id,omitempty"`
	SLOrderID     string `json:"sl_order_id,omitempty"`
	TPOrderID     string `json:"tp_order_id,omitempty"`

	PnLRub decimal.Decimal `json:"pnl_rub,omitempty"`
	PnLPct decimal.Decimal `json:"pnl_pct,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	CreatedBy    string    `json:"created_by"`
	CancelReason string    `json:"cancel_reason,omitempty"`

	machine *StateMachine
}

// NewTrackedOrder constructs a TrackedOrder in its initial pending state,
// with its own lifecycle state machine attached.
func NewTrackedOrder(orderID, ticker, figi string, orderType OrderType, createdBy string) *TrackedOrder {
	now := time.Now().UTC()
	return &TrackedOrder{
		OrderID:   orderID,
		Ticker:    ticker,
		FIGI:      figi,
		OrderType: orderType,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: createdBy,
		machine:   NewOrderStateMachine(),
	}
}

// StateMachine returns the order's lifecycle state machine, constructing a
// fresh one from the persisted Status (see orderStateFor) if the order was
// deserialized without one.
func (o *TrackedOrder) StateMachine() *StateMachine {
	if o.machine == nil {
		o.machine = NewOrderStateMachineFromState(orderStateFor(o.Status))
	}
	return o.machine
}

// orderStateFor maps a persisted OrderStatus back onto the lifecycle
// PositionState after a restart, when only the status survived JSON decode.
func orderStateFor(status OrderStatus) PositionState {
	switch status {
	case StatusExecuted:
		return StateExecuted
	case StatusCancelled:
		return StateCancelled
	default:
		return StatePending
	}
}

// Copy returns a deep copy to prevent external mutation of internal state
// (mirrors the teacher's clonePosition idiom).
func (o *TrackedOrder) Copy() *TrackedOrder {
	if o == nil {
		return nil
	}
	cloned := *o
	if o.ExecutedAt != nil {
		t := *o.ExecutedAt
		cloned.ExecutedAt = &t
	}
	cloned.machine = o.StateMachine().Copy()
	return &cloned
}

// IsSibling reports whether other is the opposite-kind exit order for the
// same parent entry (used for OCO pairing, I3).
func (o *TrackedOrder) IsSibling(other *TrackedOrder) bool {
	if o == nil || other == nil {
		return false
	}
	if o.OrderType == OrderTypeStopLoss && other.OrderType == OrderTypeTakeProfit {
		return o.ParentOrderID != "" && o.ParentOrderID == other.ParentOrderID
	}
	if o.OrderType == OrderTypeTakeProfit && other.OrderType == OrderTypeStopLoss {
		return o.ParentOrderID != "" && o.ParentOrderID == other.ParentOrderID
	}
	return false
}

// Package broker defines the BrokerPort capability set this supervisor
// depends on, plus the decorators (circuit breaker, dry-run) composed
// around a concrete implementation.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

// Kind distinguishes a protective stop-loss from a target take-profit.
type Kind string

const (
	// SideBuy opens or adds to a long position.
	SideBuy Side = "buy"
	// SideSell closes or reduces a long position.
	SideSell Side = "sell"

	// KindStopLoss is a protective sell-stop.
	KindStopLoss Kind = "stop_loss"
	// KindTakeProfit is a target sell-stop.
	KindTakeProfit Kind = "take_profit"
)

// StopOrderStatus is the lifecycle status the exchange reports for a
// standing stop order.
type StopOrderStatus string

const (
	// StopOrderActive is still live on the exchange.
	StopOrderActive StopOrderStatus = "active"
	// StopOrderExecuted has filled.
	StopOrderExecuted StopOrderStatus = "executed"
	// StopOrderCancelled was cancelled or rejected.
	StopOrderCancelled StopOrderStatus = "cancelled"
)

// StopOrder is one row from ListStopOrders.
type StopOrder struct {
	OrderID       string
	FIGI          string
	Side          Side
	Kind          Kind
	TriggerPrice  decimal.Decimal
	Quantity      int
	Status        StopOrderStatus
	ExecutedPrice decimal.Decimal
}

// PortfolioPosition is one row from GetPortfolio.
type PortfolioPosition struct {
	FIGI          string
	Quantity      int
	AveragePrice  decimal.Decimal
}

// PlacedOrder is the broker's acknowledgement of an accepted order.
type PlacedOrder struct {
	OrderID string
}

// Port is the capability set the supervisor depends on (§4.1). Every
// operation takes a context so callers can bound how long they wait;
// implementations must map transport failures onto the typed errors in
// errors.go so callers can classify per §7 without string matching.
type Port interface {
	PlaceStopOrder(ctx context.Context, figi string, quantityLots int, triggerPrice decimal.Decimal, side Side, kind Kind, tif string) (*PlacedOrder, error)
	CancelStopOrder(ctx context.Context, orderID string) error
	ListStopOrders(ctx context.Context) ([]StopOrder, error)
	GetPortfolio(ctx context.Context) ([]PortfolioPosition, error)
	PlaceMarketOrder(ctx context.Context, figi string, quantityLots int, side Side) (*PlacedOrder, error)
	GetLastPrice(ctx context.Context, figi string) (decimal.Decimal, error)
}

// TIFGoodTillCancel is the only time-in-force this supervisor issues.
const TIFGoodTillCancel = "good_till_cancel"

// DefaultRequestTimeout bounds a single broker call when the caller does
// not already carry a deadline.
const DefaultRequestTimeout = 15 * time.Second

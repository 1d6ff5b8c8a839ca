package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// DryRunBroker is a Port that never contacts a real exchange: every call
// synthesizes success, matching the `safety.dry_run` configuration key
// (§6). It is a full in-memory book, not a stub, so the watcher can observe
// realistic status transitions when fed simulated prices via Fill and
// CancelStopOrder.
type DryRunBroker struct {
	mu      sync.Mutex
	orders  map[string]*StopOrder
	counter int64
	lastPrices map[string]decimal.Decimal
}

// NewDryRunBroker returns an empty dry-run order book.
func NewDryRunBroker() *DryRunBroker {
	return &DryRunBroker{
		orders:     make(map[string]*StopOrder),
		lastPrices: make(map[string]decimal.Decimal),
	}
}

func (b *DryRunBroker) nextID() string {
	n := atomic.AddInt64(&b.counter, 1)
	return fmt.Sprintf("dryrun-%d", n)
}

// PlaceStopOrder implements Port.
func (b *DryRunBroker) PlaceStopOrder(_ context.Context, figi string, quantityLots int, triggerPrice decimal.Decimal, side Side, kind Kind, _ string) (*PlacedOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID()
	b.orders[id] = &StopOrder{
		OrderID:      id,
		FIGI:         figi,
		Side:         side,
		Kind:         kind,
		TriggerPrice: triggerPrice,
		Quantity:     quantityLots,
		Status:       StopOrderActive,
	}
	return &PlacedOrder{OrderID: id}, nil
}

// CancelStopOrder implements Port; cancelling an unknown id is not an error.
func (b *DryRunBroker) CancelStopOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[orderID]; ok {
		o.Status = StopOrderCancelled
	}
	return nil
}

// ListStopOrders implements Port.
func (b *DryRunBroker) ListStopOrders(_ context.Context) ([]StopOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]StopOrder, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, *o)
	}
	return out, nil
}

// GetPortfolio implements Port; the dry-run book has no standing positions
// of its own since fills are simulated by the caller via Fill.
func (b *DryRunBroker) GetPortfolio(_ context.Context) ([]PortfolioPosition, error) {
	return nil, nil
}

// PlaceMarketOrder implements Port, used for the emergency close path.
func (b *DryRunBroker) PlaceMarketOrder(_ context.Context, figi string, quantityLots int, side Side) (*PlacedOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID()
	b.orders[id] = &StopOrder{
		OrderID:  id,
		FIGI:     figi,
		Side:     side,
		Quantity: quantityLots,
		Status:   StopOrderExecuted,
	}
	return &PlacedOrder{OrderID: id}, nil
}

// GetLastPrice implements Port, returning whatever was last set via
// SetLastPrice, or zero if never set.
func (b *DryRunBroker) GetLastPrice(_ context.Context, figi string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPrices[figi], nil
}

// SetLastPrice seeds the price GetLastPrice will return for figi, for tests
// and paper-trading fixtures.
func (b *DryRunBroker) SetLastPrice(figi string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPrices[figi] = price
}

// Fill marks a standing order executed, simulating the exchange filling it.
func (b *DryRunBroker) Fill(orderID string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[orderID]; ok {
		o.Status = StopOrderExecuted
		o.ExecutedPrice = price
	}
}

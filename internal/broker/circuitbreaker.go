package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// CircuitBreakerSettings configures the breaker wrapping a Port.
type CircuitBreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	MinRequests uint32
	FailureRatio float64
}

// DefaultCircuitBreakerSettings mirrors the defaults a brokerage-facing
// breaker needs: a short probe window when half-open, and a ratio-based
// trip condition so a handful of failures during low traffic don't trip
// the breaker prematurely.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  1,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// CircuitBreakerBroker wraps any Port in a gobreaker.CircuitBreaker so a
// broker outage degrades to fast-fail instead of hanging the watcher loop
// (§4.8, DOMAIN STACK).
type CircuitBreakerBroker struct {
	next    Port
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerBroker wraps next with DefaultCircuitBreakerSettings.
func NewCircuitBreakerBroker(next Port) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(next, DefaultCircuitBreakerSettings)
}

// NewCircuitBreakerBrokerWithSettings wraps next with explicit settings.
func NewCircuitBreakerBrokerWithSettings(next Port, cfg CircuitBreakerSettings) *CircuitBreakerBroker {
	settings := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
	}
	return &CircuitBreakerBroker{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State exposes the breaker's current state for status reporting.
func (b *CircuitBreakerBroker) State() gobreaker.State {
	return b.breaker.State()
}

func execute[T any](b *CircuitBreakerBroker, fn func() (T, error)) (T, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, &UnavailableError{Cause: err}
		}
		return zero, err
	}
	return result.(T), nil
}

// PlaceStopOrder implements Port.
func (b *CircuitBreakerBroker) PlaceStopOrder(ctx context.Context, figi string, quantityLots int, triggerPrice decimal.Decimal, side Side, kind Kind, tif string) (*PlacedOrder, error) {
	return execute(b, func() (*PlacedOrder, error) {
		return b.next.PlaceStopOrder(ctx, figi, quantityLots, triggerPrice, side, kind, tif)
	})
}

// CancelStopOrder implements Port.
func (b *CircuitBreakerBroker) CancelStopOrder(ctx context.Context, orderID string) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, b.next.CancelStopOrder(ctx, orderID)
	})
	return err
}

// ListStopOrders implements Port.
func (b *CircuitBreakerBroker) ListStopOrders(ctx context.Context) ([]StopOrder, error) {
	return execute(b, func() ([]StopOrder, error) {
		return b.next.ListStopOrders(ctx)
	})
}

// GetPortfolio implements Port.
func (b *CircuitBreakerBroker) GetPortfolio(ctx context.Context) ([]PortfolioPosition, error) {
	return execute(b, func() ([]PortfolioPosition, error) {
		return b.next.GetPortfolio(ctx)
	})
}

// PlaceMarketOrder implements Port. Deliberately NOT routed through the
// breaker: the emergency close path must still attempt the call even
// moments after a trip, since I4 is unconditional. The call goes straight
// to the wrapped Port, so it neither fast-fails while the breaker is open
// nor counts towards the breaker's failure accounting.
func (b *CircuitBreakerBroker) PlaceMarketOrder(ctx context.Context, figi string, quantityLots int, side Side) (*PlacedOrder, error) {
	return b.next.PlaceMarketOrder(ctx, figi, quantityLots, side)
}

// GetLastPrice implements Port.
func (b *CircuitBreakerBroker) GetLastPrice(ctx context.Context, figi string) (decimal.Decimal, error) {
	return execute(b, func() (decimal.Decimal, error) {
		return b.next.GetLastPrice(ctx, figi)
	})
}

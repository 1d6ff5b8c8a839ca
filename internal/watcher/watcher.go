// Package watcher implements the PositionWatcher (§4.5): the control loop
// that polls the broker for tracked-order state changes, drives the
// pending→executed/cancelled transition, and guards every entry fill with
// an SL-placement deadline.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/avolkov/sharewatch/internal/broker"
	"github.com/avolkov/sharewatch/internal/guard"
	"github.com/avolkov/sharewatch/internal/mode"
	"github.com/avolkov/sharewatch/internal/models"
	"github.com/avolkov/sharewatch/internal/retry"
	"github.com/avolkov/sharewatch/internal/storage"
	"github.com/sirupsen/logrus"
)

// Config bounds the loop's timing (§5).
type Config struct {
	PollInterval time.Duration
	SLTimeout    time.Duration
}

// DefaultConfig matches the defaults named in §5/§6.
var DefaultConfig = Config{
	PollInterval: 5 * time.Second,
	SLTimeout:    10 * time.Second,
}

// Watcher is the PositionWatcher component.
type Watcher struct {
	brokerPort broker.Port
	store      storage.Store
	mode       *mode.Controller
	guard      *guard.Guard
	retry      *retry.Client
	log        *logrus.Entry
	cfg        Config

	mu      sync.Mutex
	tracked map[string]*models.TrackedOrder // keyed by OrderID

	errorStreak int
}

// New constructs a Watcher. log may be nil, in which case a standard
// logrus logger is used.
func New(brokerPort broker.Port, store storage.Store, modeController *mode.Controller, g *guard.Guard, retryClient *retry.Client, log *logrus.Entry, cfg Config) *Watcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Watcher{
		brokerPort: brokerPort,
		store:      store,
		mode:       modeController,
		guard:      g,
		retry:      retryClient,
		log:        log,
		cfg:        cfg,
		tracked:    make(map[string]*models.TrackedOrder),
	}
}

// TrackOrder registers a newly-placed entry order for observation. Safe to
// call concurrently with Run (the one external mutation point named in §5).
func (w *Watcher) TrackOrder(order *models.TrackedOrder) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked[order.OrderID] = order.Copy()
}

// Hydrate loads every pending row from the store into the in-memory tracked
// set, for cold-start recovery (§4.5 "Cold-start / recovery"). Entry and
// exit (stop_loss/take_profit) rows are hydrated alike: processOne and its
// handlers dispatch on OrderType, so a rehydrated SL/TP row is observed,
// OCO-cancelled, and reconciled exactly like one tracked since the watcher
// started (S4).
func (w *Watcher) Hydrate(ctx context.Context) error {
	pending, err := w.store.ListPending()
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, row := range pending {
		w.tracked[row.OrderID] = row
	}
	return nil
}

// Run executes the control loop until ctx is cancelled (§5 process
// supervision: this is one of the errgroup-coordinated tasks).
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Hydrate(ctx); err != nil {
		w.log.WithError(err).Error("failed to hydrate tracked orders at startup")
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.runIteration(ctx)
		}
	}
}

func (w *Watcher) runIteration(ctx context.Context) {
	if !w.mode.IsActive() {
		return
	}

	w.mu.Lock()
	ids := make([]string, 0, len(w.tracked))
	for id := range w.tracked {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	observed, err := w.brokerPort.ListStopOrders(ctx)
	if err != nil {
		w.handlePollError(err)
		return
	}
	w.errorStreak = 0

	byID := make(map[string]broker.StopOrder, len(observed))
	for _, o := range observed {
		byID[o.OrderID] = o
	}

	for _, id := range ids {
		if !w.mode.IsActive() {
			w.log.Warn("kill switch engaged mid-iteration, aborting remaining orders")
			return
		}
		w.processOne(ctx, id, byID)
	}
}

func (w *Watcher) handlePollError(err error) {
	w.errorStreak++
	w.log.WithError(err).WithField("streak", w.errorStreak).Warn("broker poll failed")
	if w.errorStreak == 1 {
		w.log.Warn("degraded: broker temporarily unreachable")
	}
	if w.errorStreak >= 5 {
		w.log.Error("broker unreachable for 5 consecutive polls, backing off")
		time.Sleep(60 * time.Second)
		w.errorStreak = 0
	}
}

func (w *Watcher) processOne(ctx context.Context, orderID string, observed map[string]broker.StopOrder) {
	w.mu.Lock()
	order, ok := w.tracked[orderID]
	w.mu.Unlock()
	if !ok {
		return
	}

	row, isObserved := observed[orderID]
	switch {
	case isObserved && row.Status == broker.StopOrderExecuted:
		w.handleExecuted(ctx, order, row.ExecutedPrice)
	case isObserved && row.Status == broker.StopOrderCancelled:
		w.handleCancelled(order, "broker_cancel")
	case !isObserved:
		w.resolveMissing(ctx, order)
	default:
		// still active, no-op
	}
}

// drop removes an order from the in-memory tracked set once its lifecycle
// no longer needs the watcher's attention.
func (w *Watcher) drop(orderID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tracked, orderID)
}

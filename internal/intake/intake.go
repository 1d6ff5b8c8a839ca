// Package intake implements OrderIntake (§4.7): the request/confirm/cancel
// flow that turns a ShareSnapshot into a validated, placed entry order and
// hands the result off to the PositionWatcher.
package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avolkov/sharewatch/internal/broker"
	"github.com/avolkov/sharewatch/internal/mode"
	"github.com/avolkov/sharewatch/internal/models"
	"github.com/avolkov/sharewatch/internal/snapshot"
	"github.com/avolkov/sharewatch/internal/storage"
	"github.com/avolkov/sharewatch/internal/validator"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Tracker is the subset of watcher.Watcher intake hands newly-placed entry
// orders off to, kept narrow to avoid a package import cycle.
type Tracker interface {
	TrackOrder(order *models.TrackedOrder)
}

// DefaultConfirmTimeout bounds how long a buy request waits for operator
// confirmation before it is swept away (§4.7).
const DefaultConfirmTimeout = 60 * time.Second

// Intake is the OrderIntake component.
type Intake struct {
	registry   *snapshot.Registry
	validator  *validator.Validator
	brokerPort broker.Port
	store      storage.Store
	mode       *mode.Controller
	tracker    Tracker
	log        *logrus.Entry

	confirmTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*models.PendingConfirmation
}

// New constructs an Intake. log may be nil.
func New(registry *snapshot.Registry, v *validator.Validator, brokerPort broker.Port, store storage.Store, modeController *mode.Controller, tracker Tracker, log *logrus.Entry) *Intake {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Intake{
		registry:       registry,
		validator:      v,
		brokerPort:     brokerPort,
		store:          store,
		mode:           modeController,
		tracker:        tracker,
		log:            log,
		confirmTimeout: DefaultConfirmTimeout,
		pending:        make(map[string]*models.PendingConfirmation),
	}
}

// SetConfirmTimeout overrides the default confirmation window (§4.7),
// e.g. from the configured schedule.confirm_timeout.
func (in *Intake) SetConfirmTimeout(d time.Duration) {
	if d > 0 {
		in.confirmTimeout = d
	}
}

// RequestBuy validates a buy against ticker's latest snapshot and, if it
// passes every check, parks a PendingConfirmation awaiting Confirm. It
// never places an order by itself. entryPriceOverride and
// quantityLotsOverride implement the optional `buy TICKER [PRICE] [LOTS]`
// command arguments (§4.7 step 3); a non-positive value means "use the
// snapshot/derived default".
func (in *Intake) RequestBuy(ctx context.Context, now time.Time, ticker, userID string, entryPriceOverride decimal.Decimal, quantityLotsOverride int) (*models.PendingConfirmation, validator.Result, error) {
	var result validator.Result

	if !in.mode.IsActive() {
		return nil, result, fmt.Errorf("intake: bot is not active, refusing buy request")
	}

	snap, ok := in.registry.Get(ticker)
	if !ok {
		return nil, result, fmt.Errorf("intake: no snapshot for ticker %s", ticker)
	}

	entryPrice := snap.EntryPrice
	if entryPriceOverride.IsPositive() {
		entryPrice = entryPriceOverride
	}

	quantity := quantityLotsOverride
	if quantity <= 0 {
		quantity = in.deriveQuantity(snap)
	}

	currentPrice, err := in.brokerPort.GetLastPrice(ctx, snap.FIGI)
	if err != nil {
		return nil, result, fmt.Errorf("intake: fetching last price for %s: %w", ticker, err)
	}

	pending, err := in.store.ListPending()
	if err != nil {
		return nil, result, fmt.Errorf("intake: listing open positions: %w", err)
	}
	openEntries := 0
	for _, row := range pending {
		if row.OrderType == models.OrderTypeEntry {
			openEntries++
		}
	}

	result = in.validator.ValidateBuy(now, entryPrice, currentPrice, snap.ATR, quantity, snap.LotSize, openEntries)
	if !result.IsValid {
		return nil, result, fmt.Errorf("intake: buy request for %s rejected: %v", ticker, result.Errors)
	}

	confirmation := models.NewPendingConfirmation(ticker, snap.FIGI, userID, in.confirmTimeout)
	confirmation.CreatedAt = now
	confirmation.ExpiresAt = now.Add(in.confirmTimeout)
	confirmation.EntryPrice = entryPrice
	confirmation.QuantityLots = quantity
	confirmation.LotSize = snap.LotSize
	confirmation.SLPrice = result.SLPrice
	confirmation.TPPrice = result.TPPrice
	confirmation.RiskRub = result.RiskRub
	confirmation.RewardRub = result.RewardRub

	in.mu.Lock()
	in.pending[confirmation.CallbackID] = confirmation
	in.mu.Unlock()

	in.log.WithFields(logrus.Fields{
		"ticker":      ticker,
		"callback_id": confirmation.CallbackID,
		"sl_price":    result.SLPrice,
		"tp_price":    result.TPPrice,
	}).Info("buy request validated, awaiting confirmation")

	return confirmation, result, nil
}

// deriveQuantity sizes the position per §4.7 step 3's formula:
// deposit · risk_per_trade / (atr · sl_mult · lot_size), floored to at
// least 1 lot. Falls back to the snapshot's suggested size when the ATR or
// lot size make the formula's denominator non-positive.
func (in *Intake) deriveQuantity(snap models.ShareSnapshot) int {
	cfg := in.validator.Config()
	perLotRisk := snap.ATR.Mul(cfg.SLATRMultiplier).Mul(decimal.NewFromInt(int64(snap.LotSize)))
	if !perLotRisk.IsPositive() {
		return snap.PositionSize
	}
	riskBudget := cfg.Deposit.Mul(cfg.RiskPerTradePct)
	lots := riskBudget.Div(perLotRisk).IntPart()
	if lots < 1 {
		lots = 1
	}
	return int(lots)
}

// Confirm places the entry order for a previously validated request, then
// hands it to the tracker for the PositionWatcher to pick up.
func (in *Intake) Confirm(ctx context.Context, now time.Time, callbackID string) (*models.TrackedOrder, error) {
	confirmation, err := in.takePending(callbackID)
	if err != nil {
		return nil, err
	}

	if confirmation.Expired(now) {
		return nil, fmt.Errorf("intake: confirmation %s expired", callbackID)
	}
	if !in.mode.IsActive() {
		return nil, fmt.Errorf("intake: bot is not active, refusing confirm")
	}

	placed, err := in.brokerPort.PlaceStopOrder(ctx, confirmation.FIGI, confirmation.QuantityLots, confirmation.EntryPrice, broker.SideBuy, broker.KindTakeProfit, broker.TIFGoodTillCancel)
	if err != nil {
		return nil, fmt.Errorf("intake: placing entry order for %s: %w", confirmation.Ticker, err)
	}

	order := models.NewTrackedOrder(placed.OrderID, confirmation.Ticker, confirmation.FIGI, models.OrderTypeEntry, confirmation.UserID)
	order.Quantity = confirmation.QuantityLots
	order.LotSize = confirmation.LotSize
	order.EntryPrice = confirmation.EntryPrice
	order.StopPrice = confirmation.SLPrice
	order.TargetPrice = confirmation.TPPrice

	if err := in.store.SaveTracked(order); err != nil {
		in.log.WithError(err).WithField("order_id", order.OrderID).Error("failed to persist new entry order")
	}
	if _, err := in.mode.IncrementStats(1, 0, 0, decimal.Zero); err != nil {
		in.log.WithError(err).Warn("failed to increment order-placed stat")
	}
	in.validator.IncrementDailyTrades(now)

	in.tracker.TrackOrder(order)

	in.log.WithFields(logrus.Fields{
		"ticker":   confirmation.Ticker,
		"order_id": order.OrderID,
	}).Info("entry order placed")

	return order, nil
}

// Cancel discards a pending confirmation without placing anything.
func (in *Intake) Cancel(callbackID string) error {
	_, err := in.takePending(callbackID)
	return err
}

func (in *Intake) takePending(callbackID string) (*models.PendingConfirmation, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	confirmation, ok := in.pending[callbackID]
	if !ok {
		return nil, fmt.Errorf("intake: no pending confirmation %s", callbackID)
	}
	delete(in.pending, callbackID)
	return confirmation, nil
}

// sweepExpired drops any confirmation past its deadline, logging each one.
func (in *Intake) sweepExpired(now time.Time) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for id, c := range in.pending {
		if c.Expired(now) {
			delete(in.pending, id)
			in.log.WithField("callback_id", id).WithField("ticker", c.Ticker).Info("pending confirmation expired unconfirmed")
		}
	}
}

// Run sweeps expired confirmations every interval until ctx is cancelled
// (one of the errgroup-coordinated tasks in §5).
func (in *Intake) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			in.sweepExpired(now)
		}
	}
}

package intake

import (
	"context"
	"testing"
	"time"

	"github.com/avolkov/sharewatch/internal/broker"
	"github.com/avolkov/sharewatch/internal/mode"
	"github.com/avolkov/sharewatch/internal/models"
	"github.com/avolkov/sharewatch/internal/snapshot"
	"github.com/avolkov/sharewatch/internal/storage"
	"github.com/avolkov/sharewatch/internal/validator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	tracked []*models.TrackedOrder
}

func (f *fakeTracker) TrackOrder(order *models.TrackedOrder) {
	f.tracked = append(f.tracked, order)
}

func newTestIntake(t *testing.T) (*Intake, *broker.DryRunBroker, *fakeTracker, *snapshot.Registry) {
	t.Helper()
	reg := snapshot.NewRegistry()
	reg.Put(models.ShareSnapshot{
		Ticker:       "SBER",
		FIGI:         "FIGI1",
		LotSize:      10,
		EntryPrice:   decimal.NewFromInt(250),
		ATR:          decimal.NewFromInt(25),
		PositionSize: 10,
	})

	b := broker.NewDryRunBroker()
	b.SetLastPrice("FIGI1", decimal.NewFromInt(252))

	store := storage.NewMockStore()
	m := mode.New(store)
	_, err := m.Resume("start", "test")
	require.NoError(t, err)

	v := validator.New(validator.DefaultConfig())
	tracker := &fakeTracker{}

	in := New(reg, v, b, store, m, tracker, nil)
	return in, b, tracker, reg
}

// tradingHoursNow returns a fixed Friday-noon MSK instant so tests never
// depend on the wall clock the test happens to run at.
func tradingHoursNow() time.Time {
	loc, _ := time.LoadLocation("Europe/Moscow")
	return time.Date(2026, 7, 31, 12, 0, 0, 0, loc) // a Friday
}

func TestIntake_RequestBuyThenConfirmPlacesOrder(t *testing.T) {
	in, b, tracker, _ := newTestIntake(t)
	now := tradingHoursNow()

	confirmation, result, err := in.RequestBuy(context.Background(), now, "SBER", "alice", decimal.Zero, 0)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	require.NotNil(t, confirmation)

	order, err := in.Confirm(context.Background(), now, confirmation.CallbackID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderTypeEntry, order.OrderType)
	require.Len(t, tracker.tracked, 1)
	assert.Equal(t, order.OrderID, tracker.tracked[0].OrderID)

	orders, err := b.ListStopOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestIntake_RequestBuyEntryPriceOverrideWins(t *testing.T) {
	in, _, _, _ := newTestIntake(t)
	now := tradingHoursNow()

	override := decimal.NewFromInt(245)
	confirmation, result, err := in.RequestBuy(context.Background(), now, "SBER", "alice", override, 0)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, override.Equal(confirmation.EntryPrice))
}

func TestIntake_RequestBuyDerivesQuantityFromRiskBudgetWhenNoOverride(t *testing.T) {
	in, _, _, _ := newTestIntake(t)
	now := tradingHoursNow()

	// deposit(100000) * risk_per_trade(0.01) / (atr(25) * sl_mult(1) * lot_size(10)) = 4
	confirmation, result, err := in.RequestBuy(context.Background(), now, "SBER", "alice", decimal.Zero, 0)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, 4, confirmation.QuantityLots)
}

func TestIntake_ConfirmUnknownCallbackFails(t *testing.T) {
	in, _, _, _ := newTestIntake(t)
	_, err := in.Confirm(context.Background(), tradingHoursNow(), "does-not-exist")
	assert.Error(t, err)
}

func TestIntake_CancelRemovesPendingConfirmation(t *testing.T) {
	in, _, _, _ := newTestIntake(t)
	now := tradingHoursNow()
	confirmation, _, err := in.RequestBuy(context.Background(), now, "SBER", "alice", decimal.Zero, 0)
	require.NoError(t, err)

	require.NoError(t, in.Cancel(confirmation.CallbackID))
	_, err = in.Confirm(context.Background(), now, confirmation.CallbackID)
	assert.Error(t, err)
}

func TestIntake_RequestBuyUnknownTickerFails(t *testing.T) {
	in, _, _, _ := newTestIntake(t)
	_, _, err := in.RequestBuy(context.Background(), tradingHoursNow(), "UNKNOWN", "alice", decimal.Zero, 0)
	assert.Error(t, err)
}

func TestIntake_RequestBuyFailsWhenInactive(t *testing.T) {
	in, _, _, _ := newTestIntake(t)
	_, err := in.mode.Pause("eod", "alice")
	require.NoError(t, err)

	_, _, err = in.RequestBuy(context.Background(), tradingHoursNow(), "SBER", "alice", decimal.Zero, 0)
	assert.Error(t, err)
}

func TestIntake_RequestBuyOutsideTradingHoursRejected(t *testing.T) {
	in, _, _, _ := newTestIntake(t)
	loc, _ := time.LoadLocation("Europe/Moscow")
	midnight := time.Date(2026, 7, 31, 2, 0, 0, 0, loc)

	_, result, err := in.RequestBuy(context.Background(), midnight, "SBER", "alice", decimal.Zero, 0)
	assert.Error(t, err)
	assert.False(t, result.IsValid)
}

func TestIntake_SweepExpiredDropsStaleConfirmations(t *testing.T) {
	in, _, _, _ := newTestIntake(t)
	in.confirmTimeout = time.Millisecond
	now := tradingHoursNow()

	confirmation, _, err := in.RequestBuy(context.Background(), now, "SBER", "alice", decimal.Zero, 0)
	require.NoError(t, err)

	in.sweepExpired(now.Add(time.Hour))
	_, err = in.Confirm(context.Background(), now, confirmation.CallbackID)
	assert.Error(t, err)
}

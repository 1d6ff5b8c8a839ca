package validator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mskTime(t *testing.T, s string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	parsed, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	require.NoError(t, err)
	return parsed
}

func TestValidateBuy_HappyPath(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-10 12:00") // Tuesday, inside window

	result := v.ValidateBuy(now, decimal.NewFromInt(250), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	require.True(t, result.IsValid, result.Errors)
	assert.True(t, result.SLPrice.Equal(decimal.NewFromInt(245)))
	assert.True(t, result.TPPrice.Equal(decimal.NewFromInt(265)))
	assert.True(t, result.RiskRub.Equal(decimal.NewFromInt(500)))
	assert.True(t, result.RewardRub.Equal(decimal.NewFromInt(1500)))
}

func TestValidateBuy_RejectsOutsideTradingHours(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-10 20:00") // after 18:40

	result := v.ValidateBuy(now, decimal.NewFromInt(250), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors[0], "trading hours")
}

func TestValidateBuy_RejectsWeekend(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-14 12:00") // Saturday

	result := v.ValidateBuy(now, decimal.NewFromInt(250), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	assert.False(t, result.IsValid)
}

func TestValidateBuy_RejectsEntryAboveCurrent(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-10 12:00")

	result := v.ValidateBuy(now, decimal.NewFromInt(255), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	assert.False(t, result.IsValid)
}

func TestValidateBuy_RejectsEntryEqualCurrent(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-10 12:00")

	result := v.ValidateBuy(now, decimal.NewFromInt(252), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	assert.False(t, result.IsValid)
}

func TestValidateBuy_RejectsPriceDeviation(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-10 12:00")

	// 20% below current, default max is 5%
	result := v.ValidateBuy(now, decimal.NewFromInt(200), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	assert.False(t, result.IsValid)
}

func TestValidateBuy_RejectsMaxConcurrentPositions(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-10 12:00")

	result := v.ValidateBuy(now, decimal.NewFromInt(250), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 3)
	assert.False(t, result.IsValid)
}

func TestValidateBuy_RejectsDailyTradeCap(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-10 12:00")
	for i := 0; i < 10; i++ {
		v.IncrementDailyTrades(now)
	}
	result := v.ValidateBuy(now, decimal.NewFromInt(250), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	assert.False(t, result.IsValid)
}

func TestValidateBuy_RejectsDailyLossCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDailyLossRub = decimal.NewFromInt(1000)
	v := New(cfg)
	now := mskTime(t, "2026-03-10 12:00")
	v.AddDailyLoss(now, decimal.NewFromInt(1200))

	result := v.ValidateBuy(now, decimal.NewFromInt(250), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	assert.False(t, result.IsValid)
}

func TestValidateBuy_RejectsOversizedPosition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Deposit = decimal.NewFromInt(1000)
	cfg.MaxPositionPct = decimal.NewFromFloat(0.2)
	v := New(cfg)
	now := mskTime(t, "2026-03-10 12:00")

	result := v.ValidateBuy(now, decimal.NewFromInt(250), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	assert.False(t, result.IsValid)
}

func TestValidateBuy_WarnsOnPoorRiskReward(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-10 12:00")

	// ATR small tp offset relative to sl offset stays >0 but rr<2 if tp multiplier forced low
	cfg := DefaultConfig()
	cfg.TPATRMultiplier = decimal.NewFromFloat(1.2)
	v2 := New(cfg)
	result := v2.ValidateBuy(now, decimal.NewFromInt(250), decimal.NewFromInt(252), decimal.NewFromFloat(5.0), 10, 10, 0)
	require.True(t, result.IsValid)
	assert.Contains(t, result.Warnings, "risk/reward ratio below 2:1")
	_ = v
}

func TestValidateBuy_RejectsNonPositiveSLPrice(t *testing.T) {
	v := New(DefaultConfig())
	now := mskTime(t, "2026-03-10 12:00")

	// ATR larger than entry price forces sl_price <= 0
	result := v.ValidateBuy(now, decimal.NewFromInt(5), decimal.NewFromFloat(5.1), decimal.NewFromFloat(10), 10, 10, 0)
	assert.False(t, result.IsValid)
}

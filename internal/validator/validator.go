// Package validator implements the pre-trade checks every buy request must
// pass before OrderIntake is allowed to place it, grounded directly on
// original_source's executor/order_validator.py.
package validator

import (
	"fmt"
	"sync"
	"time"

	"github.com/avolkov/sharewatch/internal/util"
	"github.com/shopspring/decimal"
)

// Config mirrors original_source's FreeTradeConfig defaults.
type Config struct {
	Deposit               decimal.Decimal
	MaxPositionPct        decimal.Decimal // fraction of deposit, e.g. 0.2
	RiskPerTradePct       decimal.Decimal // fraction of deposit, e.g. 0.01
	MaxPriceDeviationPct  decimal.Decimal // percent, e.g. 5.0
	MaxConcurrentPositions int
	MaxDailyTrades        int
	MaxDailyLossRub       decimal.Decimal
	TradingStart          string // "HH:MM"
	TradingEnd            string // "HH:MM"
	SLATRMultiplier       decimal.Decimal
	TPATRMultiplier       decimal.Decimal
	PriceTick             decimal.Decimal // exchange price increment, e.g. 0.01
}

// DefaultConfig mirrors original_source's FreeTradeConfig field defaults.
func DefaultConfig() Config {
	return Config{
		Deposit:                decimal.NewFromInt(100000),
		MaxPositionPct:         decimal.NewFromFloat(0.2),
		RiskPerTradePct:        decimal.NewFromFloat(0.01),
		MaxPriceDeviationPct:   decimal.NewFromFloat(5.0),
		MaxConcurrentPositions: 3,
		MaxDailyTrades:         10,
		MaxDailyLossRub:        decimal.NewFromInt(10000),
		TradingStart:           "10:05",
		TradingEnd:             "18:40",
		SLATRMultiplier:        decimal.NewFromFloat(1.0),
		TPATRMultiplier:        decimal.NewFromFloat(3.0),
		PriceTick:              decimal.NewFromFloat(0.01),
	}
}

// Result is the outcome of Validate, mirroring original_source's
// ValidationResult dataclass.
type Result struct {
	IsValid bool
	Errors  []string
	Warnings []string

	SLPrice         decimal.Decimal
	TPPrice         decimal.Decimal
	RiskRub         decimal.Decimal
	RiskPct         decimal.Decimal
	RewardRub       decimal.Decimal
	RiskRewardRatio decimal.Decimal
	PositionValue   decimal.Decimal
}

// moscow is loaded once; original_source keys its daily counters by
// strftime("%Y-%m-%d") in ZoneInfo("Europe/Moscow").
var moscow = mustLoadMoscow()

func mustLoadMoscow() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validator runs the five pre-trade checks and tracks MSK-keyed daily
// counters (original_source's _daily_trades / _daily_loss dicts).
type Validator struct {
	cfg Config

	mu          sync.Mutex
	dailyTrades map[string]int
	dailyLoss   map[string]decimal.Decimal
}

// New constructs a Validator with cfg.
func New(cfg Config) *Validator {
	return &Validator{
		cfg:         cfg,
		dailyTrades: make(map[string]int),
		dailyLoss:   make(map[string]decimal.Decimal),
	}
}

// Config returns the validator's risk configuration, so callers deriving
// values from the same parameters (e.g. OrderIntake's position sizing)
// never need their own copy.
func (v *Validator) Config() Config {
	return v.cfg
}

func dayKey(t time.Time) string {
	return t.In(moscow).Format("2006-01-02")
}

// IsTradingHours reports whether now falls within the configured
// Mon-Fri MSK trading window, inclusive start, exclusive end.
func (v *Validator) IsTradingHours(now time.Time) bool {
	msk := now.In(moscow)
	if msk.Weekday() == time.Saturday || msk.Weekday() == time.Sunday {
		return false
	}
	start, err1 := time.ParseInLocation("15:04", v.cfg.TradingStart, moscow)
	end, err2 := time.ParseInLocation("15:04", v.cfg.TradingEnd, moscow)
	if err1 != nil || err2 != nil {
		return false
	}
	todayStart := time.Date(msk.Year(), msk.Month(), msk.Day(), start.Hour(), start.Minute(), 0, 0, moscow)
	todayEnd := time.Date(msk.Year(), msk.Month(), msk.Day(), end.Hour(), end.Minute(), 0, 0, moscow)
	return !msk.Before(todayStart) && msk.Before(todayEnd)
}

// IncrementDailyTrades records one more trade for today's MSK date.
func (v *Validator) IncrementDailyTrades(now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dailyTrades[dayKey(now)]++
}

// AddDailyLoss accumulates a realised loss for today's MSK date.
func (v *Validator) AddDailyLoss(now time.Time, lossRub decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := dayKey(now)
	v.dailyLoss[key] = v.dailyLoss[key].Add(lossRub)
}

func (v *Validator) tradesToday(now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dailyTrades[dayKey(now)]
}

func (v *Validator) lossToday(now time.Time) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dailyLoss[dayKey(now)]
}

// ValidateBuy runs the five checks in order (§4.3), collecting every error
// before returning so the caller sees all problems at once, then, only if
// every check passed, computes the derived SL/TP figures.
func (v *Validator) ValidateBuy(now time.Time, entryPrice, currentPrice, atr decimal.Decimal, quantityLots, lotSize, currentPositions int) Result {
	var result Result

	if !v.IsTradingHours(now) {
		result.Errors = append(result.Errors, "outside configured trading hours")
	}

	if currentPositions >= v.cfg.MaxConcurrentPositions {
		result.Errors = append(result.Errors,
			fmt.Sprintf("max concurrent positions reached (%d/%d)", currentPositions, v.cfg.MaxConcurrentPositions))
	}

	tradesToday := v.tradesToday(now)
	if tradesToday >= v.cfg.MaxDailyTrades {
		result.Errors = append(result.Errors,
			fmt.Sprintf("max daily trades reached (%d/%d)", tradesToday, v.cfg.MaxDailyTrades))
	}
	lossToday := v.lossToday(now)
	if lossToday.GreaterThanOrEqual(v.cfg.MaxDailyLossRub) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("max daily loss reached (%s/%s rub)", lossToday.String(), v.cfg.MaxDailyLossRub.String()))
	}

	if !entryPrice.IsPositive() {
		result.Errors = append(result.Errors, "entry price must be positive")
	}
	if !currentPrice.IsPositive() {
		result.Errors = append(result.Errors, "current price must be positive")
	}
	if entryPrice.IsPositive() && currentPrice.IsPositive() {
		if !entryPrice.LessThan(currentPrice) {
			result.Errors = append(result.Errors, "entry price must be below current price (take-profit-buy semantics)")
		} else {
			deviationPct := currentPrice.Sub(entryPrice).Div(currentPrice).Mul(decimal.NewFromInt(100)).Abs()
			if deviationPct.GreaterThan(v.cfg.MaxPriceDeviationPct) {
				result.Errors = append(result.Errors,
					fmt.Sprintf("price deviation %.2f%% exceeds max %.2f%%", deviationPct.InexactFloat64(), v.cfg.MaxPriceDeviationPct.InexactFloat64()))
			}
		}
	}

	if quantityLots <= 0 {
		result.Errors = append(result.Errors, "quantity must be positive")
	}
	positionValue := entryPrice.Mul(decimal.NewFromInt(int64(quantityLots * lotSize)))
	maxPositionValue := v.cfg.Deposit.Mul(v.cfg.MaxPositionPct)
	if quantityLots > 0 && positionValue.GreaterThan(maxPositionValue) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("position value %s exceeds max position size %s", positionValue.String(), maxPositionValue.String()))
	}
	result.PositionValue = positionValue

	if len(result.Errors) > 0 {
		result.IsValid = false
		return result
	}

	shares := decimal.NewFromInt(int64(quantityLots * lotSize))
	// Floor the SL so the protective trigger never drifts past the intended
	// level; ceil the TP so the target never rounds below it.
	slPrice := util.FloorToTick(entryPrice.Sub(atr.Mul(v.cfg.SLATRMultiplier)), v.cfg.PriceTick)
	if !slPrice.IsPositive() {
		result.Errors = append(result.Errors, "computed stop-loss price is not positive")
		result.IsValid = false
		return result
	}
	tpPrice := util.CeilToTick(entryPrice.Add(atr.Mul(v.cfg.TPATRMultiplier)), v.cfg.PriceTick)

	riskRub := entryPrice.Sub(slPrice).Mul(shares)
	rewardRub := tpPrice.Sub(entryPrice).Mul(shares)
	riskPct := riskRub.Div(v.cfg.Deposit).Mul(decimal.NewFromInt(100))

	var rr decimal.Decimal
	if riskRub.IsPositive() {
		rr = rewardRub.Div(riskRub)
	}

	result.IsValid = true
	result.SLPrice = slPrice
	result.TPPrice = tpPrice
	result.RiskRub = riskRub
	result.RewardRub = rewardRub
	result.RiskPct = riskPct
	result.RiskRewardRatio = rr

	configuredRiskPct := v.cfg.RiskPerTradePct.Mul(decimal.NewFromInt(100))
	if riskPct.GreaterThan(configuredRiskPct.Mul(decimal.NewFromFloat(1.5))) {
		result.Warnings = append(result.Warnings, "risk exceeds 1.5x configured risk per trade")
	}
	if rr.LessThan(decimal.NewFromInt(2)) {
		result.Warnings = append(result.Warnings, "risk/reward ratio below 2:1")
	}
	if !tpPrice.GreaterThan(currentPrice) {
		result.Warnings = append(result.Warnings, "take-profit at or below current price")
	}

	return result
}

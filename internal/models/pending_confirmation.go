package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PendingConfirmation is an in-memory, not-yet-placed buy request awaiting
// operator confirmation. It never touches durable storage: a crash before
// confirmation simply loses it, which is the desired behavior (the operator
// re-issues the buy command).
type PendingConfirmation struct {
	CallbackID string `json:"callback_id"`
	Ticker     string `json:"ticker"`
	FIGI       string `json:"figi"`

	EntryPrice   decimal.Decimal `json:"entry_price"`
	QuantityLots int             `json:"quantity_lots"`
	LotSize      int             `json:"lot_size"`

	SLPrice  decimal.Decimal `json:"sl_price"`
	TPPrice  decimal.Decimal `json:"tp_price"`
	RiskRub  decimal.Decimal `json:"risk_rub"`
	RewardRub decimal.Decimal `json:"reward_rub"`

	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewPendingConfirmation builds a confirmation with a fresh uuid callback id
// and an expiry timeout from now.
func NewPendingConfirmation(ticker, figi, userID string, timeout time.Duration) *PendingConfirmation {
	now := time.Now().UTC()
	return &PendingConfirmation{
		CallbackID: uuid.New().String(),
		Ticker:     ticker,
		FIGI:       figi,
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(timeout),
	}
}

// Expired reports whether the confirmation is past its deadline as of now.
func (p *PendingConfirmation) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

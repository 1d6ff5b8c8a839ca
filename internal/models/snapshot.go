package models

import "github.com/shopspring/decimal"

// ShareSnapshot is the per-ticker record produced by the out-of-scope daily
// analytics pipeline and consumed, read-only, by order intake. It carries
// everything needed to size an entry order and its SL/TP without the
// supervisor itself computing indicators.
type ShareSnapshot struct {
	Ticker       string          `json:"ticker"`
	FIGI         string          `json:"figi"`
	LotSize      int             `json:"lot_size"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	StopPrice    decimal.Decimal `json:"stop_price"`
	TakePrice    decimal.Decimal `json:"take_price"`
	StopOffset   decimal.Decimal `json:"stop_offset"`
	TakeOffset   decimal.Decimal `json:"take_offset"`
	ATR          decimal.Decimal `json:"atr"`
	PositionSize int             `json:"position_size"`
	LastPrice    decimal.Decimal `json:"last_price"`
}

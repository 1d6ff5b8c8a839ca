// Package models provides the data structures tracked by the order
// supervisor: bot-wide settings, tracked orders, their lifecycle state
// machine, share snapshots, and pending confirmations.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode represents the operating mode of the supervisor.
type Mode string

const (
	// ModeAuto places and manages SL/TP automatically on entry fills.
	ModeAuto Mode = "auto"
	// ModeManual leaves SL/TP placement to the operator after a fill.
	ModeManual Mode = "manual"
	// ModeMonitorOnly observes and reports but never places or cancels orders.
	ModeMonitorOnly Mode = "monitor_only"
)

// Settings is the single bot-wide row: the kill switch, operating mode,
// and running statistics. Exactly one exists at any time (invariant I1).
type Settings struct {
	IsActive   bool       `json:"is_active"`
	Mode       Mode       `json:"mode"`
	PauseUntil *time.Time `json:"pause_until,omitempty"`

	LastChangeReason string    `json:"last_change_reason"`
	LastChangeBy     string    `json:"last_change_by"`
	LastChangeAt     time.Time `json:"last_change_at"`

	TotalOrdersPlaced int             `json:"total_orders_placed"`
	TotalSLTriggered  int             `json:"total_sl_triggered"`
	TotalTPTriggered  int             `json:"total_tp_triggered"`
	TotalPnLRub       decimal.Decimal `json:"total_pnl_rub"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns the safe first-boot row: inactive, manual mode.
func DefaultSettings() *Settings {
	now := time.Now().UTC()
	return &Settings{
		IsActive:     false,
		Mode:         ModeManual,
		LastChangeAt: now,
		UpdatedAt:    now,
		TotalPnLRub:  decimal.Zero,
	}
}

// Active reports whether the bot should currently act, honoring both the
// kill switch and a pending pause window (I6).
func (s *Settings) Active(now time.Time) bool {
	if s == nil || !s.IsActive {
		return false
	}
	if s.PauseUntil != nil && now.Before(*s.PauseUntil) {
		return false
	}
	return true
}

// Copy returns a deep copy so callers can never mutate internal state
// through a returned pointer (mirrors the teacher's clonePosition idiom).
func (s *Settings) Copy() *Settings {
	if s == nil {
		return nil
	}
	cloned := *s
	if s.PauseUntil != nil {
		t := *s.PauseUntil
		cloned.PauseUntil = &t
	}
	return &cloned
}

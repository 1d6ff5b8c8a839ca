// Package mode wraps the Store with the safety invariants every mutation
// must honor: recorded audit fields and fail-closed reads (§4.6).
package mode

import (
	"time"

	"github.com/avolkov/sharewatch/internal/models"
	"github.com/avolkov/sharewatch/internal/storage"
	"github.com/shopspring/decimal"
)

// Controller is a thin facade over storage.Store.
type Controller struct {
	store storage.Store
}

// New constructs a Controller over store.
func New(store storage.Store) *Controller {
	return &Controller{store: store}
}

// IsActive reports whether the bot should currently act. On a storage read
// failure it fails closed: not active (I6).
func (c *Controller) IsActive() bool {
	settings, err := c.store.GetSettings()
	if err != nil {
		return false
	}
	return settings.Active(time.Now())
}

// GetMode returns the current operating mode, defaulting to manual on a
// storage read failure.
func (c *Controller) GetMode() models.Mode {
	settings, err := c.store.GetSettings()
	if err != nil {
		return models.ModeManual
	}
	return settings.Mode
}

// Pause deactivates the bot (kill switch off) with an audit reason.
func (c *Controller) Pause(reason, by string) (*models.Settings, error) {
	return c.store.SetActive(false, reason, by)
}

// Resume activates the bot with an audit reason.
func (c *Controller) Resume(reason, by string) (*models.Settings, error) {
	return c.store.SetActive(true, reason, by)
}

// KillSwitch is an alias for Pause with a fixed audit reason, matching the
// `kill` command (§6): it deactivates but never cancels exchange-side
// orders.
func (c *Controller) KillSwitch(by string) (*models.Settings, error) {
	return c.store.SetActive(false, "KILL SWITCH", by)
}

// SetAuto switches to automatic SL/TP placement on entry fills.
func (c *Controller) SetAuto(by string) (*models.Settings, error) {
	return c.store.SetMode(models.ModeAuto, "operator switched to auto", by)
}

// SetManual switches to manual SL/TP placement.
func (c *Controller) SetManual(by string) (*models.Settings, error) {
	return c.store.SetMode(models.ModeManual, "operator switched to manual", by)
}

// IncrementStats records order/SL/TP counts and realised PnL.
func (c *Controller) IncrementStats(orders, sl, tp int, pnlRub decimal.Decimal) (*models.Settings, error) {
	return c.store.IncrementStats(orders, sl, tp, pnlRub)
}

// GetStats returns the current settings row (used for the `stats` command;
// the dashboard's /api/stats endpoint reads the same row from the store
// directly).
func (c *Controller) GetStats() (*models.Settings, error) {
	return c.store.GetSettings()
}

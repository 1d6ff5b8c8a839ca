package storage

import (
	"time"

	"github.com/avolkov/sharewatch/internal/models"
	"github.com/shopspring/decimal"
)

// Store is the durable repository for BotSettings and TrackedOrder rows, per
// §4.2. Every operation is a single atomic unit; implementations must never
// hand back internal pointers callers could mutate.
type Store interface {
	// GetSettings returns the singleton settings row, creating it with safe
	// defaults on first call (I1).
	GetSettings() (*models.Settings, error)

	// SetActive flips the kill switch, recording reason/by for audit.
	SetActive(active bool, reason, by string) (*models.Settings, error)
	// SetMode changes the operating mode, recording reason/by for audit.
	SetMode(mode models.Mode, reason, by string) (*models.Settings, error)
	// SetPauseUntil sets or clears the pause window (pass nil to clear).
	SetPauseUntil(until *time.Time, reason, by string) (*models.Settings, error)
	// IncrementStats performs an atomic read-modify-write on the running
	// counters; any zero-valued argument contributes no change.
	IncrementStats(orders, sl, tp int, pnlRub decimal.Decimal) (*models.Settings, error)

	// SaveTracked upserts a TrackedOrder by OrderID.
	SaveTracked(order *models.TrackedOrder) error
	// UpdateTracked applies patch to the row matching orderID; returns false
	// if no such row exists. updated_at is always bumped on success.
	UpdateTracked(orderID string, patch func(*models.TrackedOrder)) (bool, error)
	// MarkExecuted transitions a row to executed, recording price/reason and
	// optional realised PnL.
	MarkExecuted(orderID string, executedPrice decimal.Decimal, reason string, pnlRub, pnlPct *decimal.Decimal) error
	// MarkCancelled transitions a row to cancelled with an explicit reason.
	MarkCancelled(orderID, reason string) error
	// LinkSiblings records the SL/TP order ids on an entry row.
	LinkSiblings(entryID string, slID, tpID *string) error

	// GetTracked returns a single row by order id, or ErrOrderNotFound.
	GetTracked(orderID string) (*models.TrackedOrder, error)
	// ListPending returns every row in status pending, ordered by CreatedAt.
	ListPending() ([]*models.TrackedOrder, error)
	// ListByParent returns the SL/TP rows whose ParentOrderID matches entryID.
	ListByParent(entryID string) ([]*models.TrackedOrder, error)
}

package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/avolkov/sharewatch/internal/models"
	"github.com/shopspring/decimal"
)

// MockStore is an in-memory Store used by tests across the other packages,
// following the teacher's mock_storage.go shape: a plain guarded map with
// no disk I/O, implementing the full port so test doubles never need type
// assertions back to a concrete JSONStorage.
type MockStore struct {
	mu       sync.Mutex
	settings *models.Settings
	orders   map[string]*models.TrackedOrder

	// SaveErr, when set, is returned by GetSettings and by every mutating
	// call, for exercising
	// the "storage unavailable ⇒ fail closed" path (§7).
	SaveErr error
}

// NewMockStore returns a MockStore seeded with default settings.
func NewMockStore() *MockStore {
	return &MockStore{
		settings: models.DefaultSettings(),
		orders:   make(map[string]*models.TrackedOrder),
	}
}

// GetSettings implements Store.
func (m *MockStore) GetSettings() (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	return m.settings.Copy(), nil
}

func (m *MockStore) mutateSettings(mutate func(*models.Settings)) (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	mutate(m.settings)
	m.settings.UpdatedAt = time.Now().UTC()
	return m.settings.Copy(), nil
}

// SetActive implements Store.
func (m *MockStore) SetActive(active bool, reason, by string) (*models.Settings, error) {
	return m.mutateSettings(func(s *models.Settings) {
		s.IsActive = active
		s.LastChangeReason = reason
		s.LastChangeBy = by
		s.LastChangeAt = time.Now().UTC()
	})
}

// SetMode implements Store.
func (m *MockStore) SetMode(mode models.Mode, reason, by string) (*models.Settings, error) {
	return m.mutateSettings(func(s *models.Settings) {
		s.Mode = mode
		s.LastChangeReason = reason
		s.LastChangeBy = by
		s.LastChangeAt = time.Now().UTC()
	})
}

// SetPauseUntil implements Store.
func (m *MockStore) SetPauseUntil(until *time.Time, reason, by string) (*models.Settings, error) {
	return m.mutateSettings(func(s *models.Settings) {
		s.PauseUntil = until
		s.LastChangeReason = reason
		s.LastChangeBy = by
		s.LastChangeAt = time.Now().UTC()
	})
}

// IncrementStats implements Store.
func (m *MockStore) IncrementStats(orders, sl, tp int, pnlRub decimal.Decimal) (*models.Settings, error) {
	return m.mutateSettings(func(s *models.Settings) {
		s.TotalOrdersPlaced += orders
		s.TotalSLTriggered += sl
		s.TotalTPTriggered += tp
		s.TotalPnLRub = s.TotalPnLRub.Add(pnlRub)
	})
}

// SaveTracked implements Store.
func (m *MockStore) SaveTracked(order *models.TrackedOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	order.UpdatedAt = time.Now().UTC()
	m.orders[order.OrderID] = order.Copy()
	return nil
}

// UpdateTracked implements Store.
func (m *MockStore) UpdateTracked(orderID string, patch func(*models.TrackedOrder)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return false, m.SaveErr
	}
	row, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	patch(row)
	row.UpdatedAt = time.Now().UTC()
	return true, nil
}

// MarkExecuted implements Store.
func (m *MockStore) MarkExecuted(orderID string, executedPrice decimal.Decimal, reason string, pnlRub, pnlPct *decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	row, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	now := time.Now().UTC()
	row.Status = models.StatusExecuted
	row.IsExecuted = true
	row.ExecutedPrice = executedPrice
	row.ExecutedAt = &now
	row.CancelReason = reason
	if pnlRub != nil {
		row.PnLRub = *pnlRub
	}
	if pnlPct != nil {
		row.PnLPct = *pnlPct
	}
	row.UpdatedAt = now
	return nil
}

// MarkCancelled implements Store.
func (m *MockStore) MarkCancelled(orderID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	row, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	row.Status = models.StatusCancelled
	row.CancelReason = reason
	row.UpdatedAt = time.Now().UTC()
	return nil
}

// LinkSiblings implements Store.
func (m *MockStore) LinkSiblings(entryID string, slID, tpID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	row, ok := m.orders[entryID]
	if !ok {
		return ErrOrderNotFound
	}
	if slID != nil {
		row.SLOrderID = *slID
	}
	if tpID != nil {
		row.TPOrderID = *tpID
	}
	row.UpdatedAt = time.Now().UTC()
	return nil
}

// GetTracked implements Store.
func (m *MockStore) GetTracked(orderID string) (*models.TrackedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return row.Copy(), nil
}

// ListPending implements Store.
func (m *MockStore) ListPending() ([]*models.TrackedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TrackedOrder
	for _, row := range m.orders {
		if row.Status == models.StatusPending {
			out = append(out, row.Copy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByParent implements Store.
func (m *MockStore) ListByParent(entryID string) ([]*models.TrackedOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TrackedOrder
	for _, row := range m.orders {
		if row.ParentOrderID == entryID {
			out = append(out, row.Copy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/avolkov/sharewatch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *JSONStorage {
	t.Helper()
	dir := t.TempDir()
	s, err := NewJSONStorage(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	return s
}

func TestNewJSONStorage_CreatesDefaultSettings(t *testing.T) {
	s := newTestStore(t)
	settings, err := s.GetSettings()
	require.NoError(t, err)
	assert.False(t, settings.IsActive)
	assert.Equal(t, models.ModeManual, settings.Mode)
}

func TestJSONStorage_SetActiveRoundTrip(t *testing.T) {
	s := newTestStore(t)
	updated, err := s.SetActive(true, "operator resumed", "alice")
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Equal(t, "alice", updated.LastChangeBy)

	got, err := s.GetSettings()
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestJSONStorage_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s1, err := NewJSONStorage(path)
	require.NoError(t, err)
	_, err = s1.SetActive(true, "go live", "bob")
	require.NoError(t, err)
	require.NoError(t, s1.SaveTracked(models.NewTrackedOrder("E1", "SBER", "F1", models.OrderTypeEntry, "bob")))

	s2, err := NewJSONStorage(path)
	require.NoError(t, err)
	settings, err := s2.GetSettings()
	require.NoError(t, err)
	assert.True(t, settings.IsActive)

	row, err := s2.GetTracked("E1")
	require.NoError(t, err)
	assert.Equal(t, "SBER", row.Ticker)
}

func TestJSONStorage_SaveTrackedIsIsolatedFromCallerMutation(t *testing.T) {
	s := newTestStore(t)
	order := models.NewTrackedOrder("E1", "SBER", "F1", models.OrderTypeEntry, "bob")
	require.NoError(t, s.SaveTracked(order))

	order.Ticker = "MUTATED"

	got, err := s.GetTracked("E1")
	require.NoError(t, err)
	assert.Equal(t, "SBER", got.Ticker, "store must hold its own copy")
}

func TestJSONStorage_GetTracked_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTracked("missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestJSONStorage_UpdateTracked_MissingReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.UpdateTracked("missing", func(o *models.TrackedOrder) {})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJSONStorage_MarkExecutedThenMarkCancelledSiblingFlow(t *testing.T) {
	s := newTestStore(t)
	entry := models.NewTrackedOrder("E1", "SBER", "F1", models.OrderTypeEntry, "bob")
	require.NoError(t, s.SaveTracked(entry))

	sl := models.NewTrackedOrder("S1", "SBER", "F1", models.OrderTypeStopLoss, "watcher")
	sl.ParentOrderID = "E1"
	require.NoError(t, s.SaveTracked(sl))

	tp := models.NewTrackedOrder("T1", "SBER", "F1", models.OrderTypeTakeProfit, "watcher")
	tp.ParentOrderID = "E1"
	require.NoError(t, s.SaveTracked(tp))

	require.NoError(t, s.LinkSiblings("E1", strPtr("S1"), strPtr("T1")))

	pnl := decimal.NewFromInt(1500)
	require.NoError(t, s.MarkExecuted("T1", decimal.NewFromInt(265), "tp_triggered", &pnl, nil))
	require.NoError(t, s.MarkCancelled("S1", "sibling_triggered"))

	siblings, err := s.ListByParent("E1")
	require.NoError(t, err)
	require.Len(t, siblings, 2)

	pending, err := s.ListPending()
	require.NoError(t, err)
	for _, row := range pending {
		assert.NotEqual(t, "S1", row.OrderID)
		assert.NotEqual(t, "T1", row.OrderID)
	}
}

func TestJSONStorage_IncrementStats(t *testing.T) {
	s := newTestStore(t)
	updated, err := s.IncrementStats(1, 0, 1, decimal.NewFromInt(1500))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalOrdersPlaced)
	assert.Equal(t, 1, updated.TotalTPTriggered)
	assert.True(t, updated.TotalPnLRub.Equal(decimal.NewFromInt(1500)))
}

func TestJSONStorage_PauseUntilRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SetActive(true, "go live", "alice")
	require.NoError(t, err)
	until := time.Now().Add(time.Hour)
	updated, err := s.SetPauseUntil(&until, "lunch break", "alice")
	require.NoError(t, err)
	require.NotNil(t, updated.PauseUntil)
	assert.False(t, updated.Active(time.Now()))

	_, err = s.SetPauseUntil(nil, "resume", "alice")
	require.NoError(t, err)
	got, err := s.GetSettings()
	require.NoError(t, err)
	assert.Nil(t, got.PauseUntil)
}

func strPtr(s string) *string { return &s }

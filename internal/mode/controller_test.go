package mode

import (
	"testing"

	"github.com/avolkov/sharewatch/internal/models"
	"github.com/avolkov/sharewatch/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_DefaultsToInactiveManual(t *testing.T) {
	c := New(storage.NewMockStore())
	assert.False(t, c.IsActive())
	assert.Equal(t, models.ModeManual, c.GetMode())
}

func TestController_ResumeThenPause(t *testing.T) {
	c := New(storage.NewMockStore())
	_, err := c.Resume("start of day", "alice")
	require.NoError(t, err)
	assert.True(t, c.IsActive())

	_, err = c.Pause("end of day", "alice")
	require.NoError(t, err)
	assert.False(t, c.IsActive())
}

func TestController_KillSwitchRecordsReason(t *testing.T) {
	c := New(storage.NewMockStore())
	_, _ = c.Resume("start", "alice")
	settings, err := c.KillSwitch("bob")
	require.NoError(t, err)
	assert.False(t, settings.IsActive)
	assert.Equal(t, "KILL SWITCH", settings.LastChangeReason)
}

func TestController_SetAutoSetManual(t *testing.T) {
	c := New(storage.NewMockStore())
	_, err := c.SetAuto("alice")
	require.NoError(t, err)
	assert.Equal(t, models.ModeAuto, c.GetMode())

	_, err = c.SetManual("alice")
	require.NoError(t, err)
	assert.Equal(t, models.ModeManual, c.GetMode())
}

func TestController_FailsClosedOnStorageError(t *testing.T) {
	store := storage.NewMockStore()
	_, _ = store.SetActive(true, "start", "alice")
	store.SaveErr = assertErr{}

	c := New(store)
	assert.False(t, c.IsActive(), "a storage read failure must fail closed")
}

func TestController_IncrementStatsAndGetStats(t *testing.T) {
	c := New(storage.NewMockStore())
	settings, err := c.IncrementStats(1, 0, 1, decimal.NewFromInt(1500))
	require.NoError(t, err)
	assert.Equal(t, 1, settings.TotalOrdersPlaced)

	stats, err := c.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTPTriggered)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated storage failure" }

package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
	"github.com/marginguard/marginguard/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "guard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testAutomation(id string) *domain.Automation {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Automation{
		ID:        id,
		UserID:    "u1",
		AccountID: "acc1",
		Tier:      domain.TierProfessional,
		IsActive:  true,
		Config: domain.Configuration{
			MarginThreshold: 80,
			Action:          domain.Action{Kind: domain.ActionReduce, Magnitude: 50},
			Enabled:         true,
			ProtectionMode:  domain.ModeBoth,
			IndividualConfigs: map[string]domain.Configuration{
				"p1": {MarginThreshold: 70, Action: domain.Action{Kind: domain.ActionClose}},
			},
			NotificationChannels: []domain.Channel{domain.ChannelInApp, domain.ChannelTelegram},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestAutomationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAutomation("a1")
	require.NoError(t, store.SaveAutomation(ctx, a))

	got, err := store.GetAutomation(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a.UserID, got.UserID)
	assert.Equal(t, domain.TierProfessional, got.Tier)
	assert.Equal(t, a.Config.MarginThreshold, got.Config.MarginThreshold)
	assert.Equal(t, a.Config.IndividualConfigs["p1"].Action.Kind, got.Config.IndividualConfigs["p1"].Action.Kind)
	assert.Equal(t, a.Config.NotificationChannels, got.Config.NotificationChannels)
}

func TestGetAutomationNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetAutomation(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetActiveByAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAutomation("a1")
	require.NoError(t, store.SaveAutomation(ctx, a))

	got, err := store.GetActiveByAccount(ctx, "u1", "acc1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	// Deactivated automations do not count against the uniqueness check.
	a.IsActive = false
	require.NoError(t, store.UpdateAutomation(ctx, a))
	_, err = store.GetActiveByAccount(ctx, "u1", "acc1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateAndDeleteAutomation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAutomation("a1")
	require.NoError(t, store.SaveAutomation(ctx, a))

	a.Config.MarginThreshold = 60
	a.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpdateAutomation(ctx, a))

	got, err := store.GetAutomation(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.Config.MarginThreshold)

	require.NoError(t, store.DeleteAutomation(ctx, "a1"))
	assert.ErrorIs(t, store.DeleteAutomation(ctx, "a1"), domain.ErrNotFound)

	err = store.UpdateAutomation(ctx, a)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAutomationsByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a1 := testAutomation("a1")
	a2 := testAutomation("a2")
	a2.AccountID = "acc2"
	other := testAutomation("a3")
	other.UserID = "u2"

	for _, a := range []*domain.Automation{a1, a2, other} {
		require.NoError(t, store.SaveAutomation(ctx, a))
	}

	mine, err := store.ListAutomationsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := store.ListAutomations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestExecutionLogRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := &domain.ExecutionLogEntry{
			AutomationID: "a1",
			Success:      i != 1,
			ActionCount:  i,
			Reason:       "ok",
			RanAt:        time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if i == 1 {
			entry.Errors = []string{"position p2: close failed", "position p3: close failed"}
		}
		require.NoError(t, store.SaveExecutionLog(ctx, entry))
		assert.NotZero(t, entry.ID)
	}

	logs, err := store.ListExecutionLogs(ctx, "a1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	// Newest first.
	assert.Equal(t, 2, logs[0].ActionCount)
	assert.Len(t, logs[1].Errors, 2)
}

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := New(Config{Driver: "sqlite", URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testAction(t *testing.T, kind models.ActionKind, target string, savings float64) *models.Action {
	t.Helper()
	a, err := models.NewAction(kind, target, "default", map[string]interface{}{"reason": "test"}, savings, 0.95)
	require.NoError(t, err)
	return a
}

func completedRun(t *testing.T, id string, actions ...*models.Action) *models.RunRecord {
	t.Helper()
	return &models.RunRecord{
		RunID:  id,
		Status: models.RunCompleted,
		DryRun: true,
		Report: &models.Report{
			Timestamp:             time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			TotalActionsGenerated: len(actions),
			AISummary:             "summary",
		},
		Actions: actions,
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(Config{Driver: "mysql", URL: "x"})
	if err == nil {
		t.Fatal("Expected error for unsupported driver")
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAction(t, models.KindRightsizing, "api", 19.5)
	require.NoError(t, a.Approve())
	rec := completedRun(t, "run_20260102_030405", a)

	require.NoError(t, store.SaveRun(ctx, rec))

	got, err := store.GetRun(ctx, rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)
	assert.True(t, got.DryRun)
	require.NotNil(t, got.Report)
	assert.Equal(t, "summary", got.Report.AISummary)
	assert.Equal(t, 1, got.Report.TotalActionsGenerated)

	require.Len(t, got.Actions, 1)
	assert.Equal(t, a.ID, got.Actions[0].ID)
	assert.Equal(t, models.StatusApproved, got.Actions[0].Status)
	assert.Equal(t, "test", got.Actions[0].Details["reason"])
	assert.Equal(t, 19.5, got.Actions[0].EstimatedSavings)
	assert.Nil(t, got.Actions[0].ExecutedAt)
}

func TestSaveRunUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &models.RunRecord{RunID: "run_1", Status: models.RunRunning, DryRun: true}
	require.NoError(t, store.SaveRun(ctx, rec))

	rec.Status = models.RunFailed
	rec.Detail = "cluster unavailable"
	require.NoError(t, store.SaveRun(ctx, rec))

	got, err := store.GetRun(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, got.Status)
	assert.Equal(t, "cluster unavailable", got.Detail)
	assert.Nil(t, got.Report)
	assert.Empty(t, got.Actions)
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun(context.Background(), "run_missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run_20260101_000000", "run_20260103_000000", "run_20260102_000000"} {
		require.NoError(t, store.SaveRun(ctx, completedRun(t, id)))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run_20260103_000000", runs[0].RunID)
	assert.Equal(t, "run_20260102_000000", runs[1].RunID)
}

func TestUpdateActionStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAction(t, models.KindPodCleanup, "old-job", 0.1)
	require.NoError(t, a.Approve())
	require.NoError(t, store.SaveRun(ctx, completedRun(t, "run_1", a)))

	require.NoError(t, a.Resolve(false, "forbidden", time.Now()))
	require.NoError(t, store.UpdateActionStatus(ctx, a))

	failed, err := store.ListActions(ctx, models.StatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "forbidden", failed[0].Error)
	assert.NotNil(t, failed[0].ExecutedAt)

	missing := testAction(t, models.KindPodCleanup, "ghost", 0.1)
	assert.Error(t, store.UpdateActionStatus(ctx, missing))
}

func TestListActionsAllStatuses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	executed := testAction(t, models.KindRightsizing, "api", 10)
	pending := testAction(t, models.KindPVCCleanup, "data", 5)
	require.NoError(t, executed.Approve())
	require.NoError(t, pending.Approve())
	require.NoError(t, executed.Resolve(true, "", time.Now()))
	require.NoError(t, store.SaveRun(ctx, completedRun(t, "run_1", executed, pending)))

	all, err := store.ListActions(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, executed.ID, all[0].ID, "disposed actions sort before undisposed ones")
}

func TestSavingsSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	var actions []*models.Action
	for i, outcome := range []string{"ok", "ok", "fail", "reject", "old"} {
		a := testAction(t, models.KindRightsizing, "w", float64(10*(i+1)))
		require.NoError(t, a.Approve())
		switch outcome {
		case "ok":
			require.NoError(t, a.Resolve(true, "", now))
		case "fail":
			require.NoError(t, a.Resolve(false, "boom", now))
		case "reject":
			require.NoError(t, a.Dispose(now))
		case "old":
			require.NoError(t, a.Resolve(true, "", now.AddDate(0, 0, -60)))
		}
		actions = append(actions, a)
	}
	require.NoError(t, store.SaveRun(ctx, completedRun(t, "run_1", actions...)))

	summary, err := store.GetSavingsSummary(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ActionsExecuted)
	assert.Equal(t, 1, summary.ActionsFailed)
	assert.Equal(t, 1, summary.ActionsRejected)
	assert.InDelta(t, 30.0, summary.RealizedSavings, 0.001)
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

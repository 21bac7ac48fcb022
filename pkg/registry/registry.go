package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/metrics"
	"github.com/opscart/k8s-cost-agent/pkg/models"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrActionNotFound = errors.New("action not found or already processed")
	ErrAlreadyQueued  = errors.New("action already left or entered the pending registry")
)

const (
	DefaultActivityWindow = 20

	// activity entries kept in memory; the window is what readers see by default
	maxActivity = 1000

	runIDLayout = "run_20060102_150405"
)

// Registry is the shared store of runs, pending actions, activity and aggregate stats.
// Every mutation of an action after its run completes happens here under that action's lock.
type Registry struct {
	runsMu   sync.RWMutex
	runs     map[string]*models.RunRecord
	runIDUse map[string]int

	pendingMu sync.RWMutex
	pending   map[string]*models.Action
	departed  map[string]struct{}

	activityMu sync.RWMutex
	activity   []*models.Action

	statsMu      sync.Mutex
	totalSavings float64
	executed     int

	actionLocks *keyedMutex
	window      int
	now         func() time.Time
}

// New creates an empty registry; window bounds Activity reads when no limit is given
func New(window int) *Registry {
	if window <= 0 {
		window = DefaultActivityWindow
	}
	return &Registry{
		runs:        make(map[string]*models.RunRecord),
		runIDUse:    make(map[string]int),
		pending:     make(map[string]*models.Action),
		departed:    make(map[string]struct{}),
		actionLocks: newKeyedMutex(),
		window:      window,
		now:         time.Now,
	}
}

// CreateRun registers a new pending run with a unique, time-sortable id
func (r *Registry) CreateRun(dryRun bool) *models.RunRecord {
	r.runsMu.Lock()
	defer r.runsMu.Unlock()

	base := r.now().UTC().Format(runIDLayout)
	id := base
	if n := r.runIDUse[base]; n > 0 {
		// padded so lexical order matches creation order
		id = fmt.Sprintf("%s_%03d", base, n+1)
	}
	r.runIDUse[base]++

	record := &models.RunRecord{
		RunID:   id,
		Status:  models.RunPending,
		DryRun:  dryRun,
		Actions: []*models.Action{},
	}
	r.runs[id] = record
	return record.Snapshot()
}

func (r *Registry) MarkRunning(runID string) error {
	return r.updateRun(runID, func(rec *models.RunRecord) {
		rec.Status = models.RunRunning
	})
}

// CompleteRun attaches the report and every action the run produced
func (r *Registry) CompleteRun(runID string, report *models.Report, actions []*models.Action) error {
	return r.updateRun(runID, func(rec *models.RunRecord) {
		rec.Status = models.RunCompleted
		rec.Report = report
		rec.Actions = append([]*models.Action(nil), actions...)
	})
}

func (r *Registry) FailRun(runID, detail string) error {
	return r.updateRun(runID, func(rec *models.RunRecord) {
		rec.Status = models.RunFailed
		rec.Detail = detail
	})
}

func (r *Registry) updateRun(runID string, fn func(rec *models.RunRecord)) error {
	r.runsMu.Lock()
	defer r.runsMu.Unlock()

	rec, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	fn(rec)
	return nil
}

// GetRun returns a snapshot of one run
func (r *Registry) GetRun(runID string) (*models.RunRecord, error) {
	r.runsMu.RLock()
	rec, ok := r.runs[runID]
	var cp models.RunRecord
	if ok {
		cp = *rec
	}
	r.runsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r.snapshotRun(&cp), nil
}

// ListRuns returns snapshots of all runs, newest first
func (r *Registry) ListRuns() []*models.RunRecord {
	r.runsMu.RLock()
	copies := make([]models.RunRecord, 0, len(r.runs))
	for _, rec := range r.runs {
		copies = append(copies, *rec)
	}
	r.runsMu.RUnlock()

	sort.Slice(copies, func(i, j int) bool { return copies[i].RunID > copies[j].RunID })

	out := make([]*models.RunRecord, 0, len(copies))
	for i := range copies {
		out = append(out, r.snapshotRun(&copies[i]))
	}
	return out
}

func (r *Registry) snapshotRun(rec *models.RunRecord) *models.RunRecord {
	out := *rec
	if rec.Report != nil {
		report := *rec.Report
		out.Report = &report
	}
	out.Actions = make([]*models.Action, 0, len(rec.Actions))
	for _, a := range rec.Actions {
		out.Actions = append(out.Actions, r.snapshotAction(a))
	}
	return &out
}

func (r *Registry) snapshotAction(a *models.Action) *models.Action {
	unlock := r.actionLocks.Lock(a.ID)
	defer unlock()
	return a.Snapshot()
}

// AddPending queues approved actions for a human decision. An action that has
// already left the registry can never be queued again.
func (r *Registry) AddPending(actions ...*models.Action) error {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	for _, a := range actions {
		if a.Status != models.StatusApproved {
			return fmt.Errorf("%w: %s is %s", models.ErrInvalidTransition, a.ID, a.Status)
		}
		if _, gone := r.departed[a.ID]; gone {
			return fmt.Errorf("%w: %s", ErrAlreadyQueued, a.ID)
		}
		if _, queued := r.pending[a.ID]; queued {
			return fmt.Errorf("%w: %s", ErrAlreadyQueued, a.ID)
		}
	}
	for _, a := range actions {
		r.pending[a.ID] = a
	}
	metrics.PendingActions.Set(float64(len(r.pending)))
	return nil
}

// ListPending returns snapshots of actions awaiting a decision, oldest first
func (r *Registry) ListPending() []*models.Action {
	r.pendingMu.RLock()
	actions := make([]*models.Action, 0, len(r.pending))
	for _, a := range r.pending {
		actions = append(actions, a)
	}
	r.pendingMu.RUnlock()

	out := make([]*models.Action, 0, len(actions))
	for _, a := range actions {
		out = append(out, r.snapshotAction(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// TakePending removes an action for execution. Exactly one caller wins per id.
func (r *Registry) TakePending(id string) (*models.Action, error) {
	unlock := r.actionLocks.Lock(id)
	defer unlock()
	return r.take(id)
}

// take must be called with the action's lock held
func (r *Registry) take(id string) (*models.Action, error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	a, ok := r.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}
	delete(r.pending, id)
	r.departed[id] = struct{}{}
	metrics.PendingActions.Set(float64(len(r.pending)))
	return a, nil
}

// Reject removes a pending action and marks it rejected at the given time, as one step
func (r *Registry) Reject(id string, at time.Time) (*models.Action, error) {
	unlock := r.actionLocks.Lock(id)
	defer unlock()

	a, err := r.take(id)
	if err != nil {
		return nil, err
	}
	if err := a.Dispose(at); err != nil {
		return nil, err
	}
	r.prependActivity(a)
	metrics.UserRejections.Inc()
	return a.Snapshot(), nil
}

// RecordExecution sets the terminal outcome of an approved action, once
func (r *Registry) RecordExecution(a *models.Action, success bool, detail string, at time.Time) (*models.Action, error) {
	unlock := r.actionLocks.Lock(a.ID)
	defer unlock()

	if err := a.Resolve(success, detail, at); err != nil {
		return nil, err
	}
	r.prependActivity(a)

	result := "failed"
	if success {
		result = "executed"
		r.statsMu.Lock()
		r.totalSavings += a.EstimatedSavings
		r.executed++
		r.statsMu.Unlock()
		metrics.SavingsUSD.Add(a.EstimatedSavings)
	}
	metrics.Executions.WithLabelValues(string(a.Kind), result).Inc()
	return a.Snapshot(), nil
}

func (r *Registry) prependActivity(a *models.Action) {
	r.activityMu.Lock()
	defer r.activityMu.Unlock()

	r.activity = append(r.activity, nil)
	copy(r.activity[1:], r.activity)
	r.activity[0] = a
	if len(r.activity) > maxActivity {
		r.activity = r.activity[:maxActivity]
	}
}

// Activity returns up to limit terminal actions, most recent first; limit <= 0 means the window
func (r *Registry) Activity(limit int) []*models.Action {
	if limit <= 0 {
		limit = r.window
	}

	r.activityMu.RLock()
	if limit > len(r.activity) {
		limit = len(r.activity)
	}
	entries := append([]*models.Action(nil), r.activity[:limit]...)
	r.activityMu.RUnlock()

	out := make([]*models.Action, 0, len(entries))
	for _, a := range entries {
		out = append(out, r.snapshotAction(a))
	}
	return out
}

// Stats returns the aggregate dashboard counters
func (r *Registry) Stats() models.DashboardStats {
	r.statsMu.Lock()
	stats := models.DashboardStats{TotalSavings: r.totalSavings, ActionsExecuted: r.executed}
	r.statsMu.Unlock()

	r.pendingMu.RLock()
	stats.PendingActions = len(r.pending)
	r.pendingMu.RUnlock()
	return stats
}

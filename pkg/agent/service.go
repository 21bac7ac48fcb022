package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/metrics"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"github.com/opscart/k8s-cost-agent/pkg/pipeline"
	"github.com/opscart/k8s-cost-agent/pkg/registry"
	"github.com/opscart/k8s-cost-agent/pkg/storage"
	"go.uber.org/zap"
)

// ErrDegraded is returned for run requests while the agent has no cluster access
var ErrDegraded = errors.New("agent is degraded: cluster client unavailable")

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"

	persistTimeout = 10 * time.Second
)

// Runner runs one analysis workflow to completion
type Runner interface {
	Run(ctx context.Context, runID string, dryRun bool) (*pipeline.Result, error)
}

// Executor applies a single approved action to the cluster
type Executor interface {
	Execute(ctx context.Context, action *models.Action) (bool, string)
}

// Health is the agent's readiness summary
type Health struct {
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Storage string `json:"storage,omitempty"`
}

// Options wires a Service. Store is optional; a non-nil Degraded error marks the service degraded.
type Options struct {
	Runner   Runner
	Registry *registry.Registry
	Executor Executor
	Store    storage.Store
	Degraded error
	Logger   *zap.Logger
}

// Service triggers runs, routes their approved actions and resolves pending ones.
// Executions run on background goroutines that outlive the request that caused them.
type Service struct {
	runner   Runner
	registry *registry.Registry
	executor Executor
	store    storage.Store
	degraded error
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

type executionResult struct {
	action *models.Action
	err    error
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New(registry.DefaultActivityWindow)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		runner:   opts.Runner,
		registry: reg,
		executor: opts.Executor,
		store:    opts.Store,
		degraded: opts.Degraded,
		logger:   logger.Named("agent"),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// StartRun registers a run and executes it in the background, returning the pending record
func (s *Service) StartRun(dryRun bool) (*models.RunRecord, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}

	rec := s.registry.CreateRun(dryRun)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(s.ctx, rec.RunID, dryRun)
	}()
	return rec, nil
}

// RunNow executes a run synchronously and returns its final record.
// Auto-executed actions may still be in flight; call Wait to let them finish.
func (s *Service) RunNow(ctx context.Context, dryRun bool) (*models.RunRecord, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}

	rec := s.registry.CreateRun(dryRun)
	s.execute(ctx, rec.RunID, dryRun)
	return s.registry.GetRun(rec.RunID)
}

func (s *Service) checkReady() error {
	if s.degraded != nil {
		return fmt.Errorf("%w: %v", ErrDegraded, s.degraded)
	}
	if s.runner == nil {
		return ErrDegraded
	}
	return nil
}

func (s *Service) execute(ctx context.Context, runID string, dryRun bool) {
	log := s.logger.With(zap.String("run_id", runID))
	start := s.now()
	defer func() {
		metrics.RunDuration.Observe(s.now().Sub(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Run panicked", zap.Any("panic", r))
			s.failRun(runID, "An internal error occurred.")
		}
	}()

	if err := s.registry.MarkRunning(runID); err != nil {
		log.Error("Failed to mark run running", zap.Error(err))
		return
	}
	s.persistRun(runID)
	log.Info("Run started", zap.Bool("dry_run", dryRun))

	result, err := s.runner.Run(ctx, runID, dryRun)
	if err != nil {
		log.Error("Run failed", zap.Error(err))
		s.failRun(runID, err.Error())
		return
	}

	if err := s.registry.CompleteRun(runID, result.Report, result.Actions); err != nil {
		log.Error("Failed to complete run", zap.Error(err))
		return
	}
	s.persistRun(runID)
	metrics.RunsTotal.WithLabelValues(string(models.RunCompleted)).Inc()

	if err := s.registry.AddPending(result.PendingApproval...); err != nil {
		log.Error("Failed to queue actions for approval", zap.Error(err))
	}
	for _, a := range result.AutoExecute {
		s.dispatch(a, nil)
	}

	log.Info("Run completed",
		zap.Int("pending_approval", len(result.PendingApproval)),
		zap.Int("auto_execute", len(result.AutoExecute)))
}

func (s *Service) failRun(runID, detail string) {
	if err := s.registry.FailRun(runID, detail); err != nil {
		s.logger.Error("Failed to mark run failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	s.persistRun(runID)
	metrics.RunsTotal.WithLabelValues(string(models.RunFailed)).Inc()
}

// dispatch executes an approved action on its own goroutine; done, if given, receives the outcome
func (s *Service) dispatch(a *models.Action, done chan<- executionResult) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rec, err := s.executeAction(a)
		if done != nil {
			done <- executionResult{action: rec, err: err}
		}
	}()
}

func (s *Service) executeAction(a *models.Action) (*models.Action, error) {
	log := s.logger.With(zap.String("action_id", a.ID), zap.String("kind", string(a.Kind)))

	ok, detail := false, "executor not configured"
	if s.executor != nil {
		ok, detail = s.executor.Execute(s.ctx, a)
	}

	rec, err := s.registry.RecordExecution(a, ok, detail, s.now())
	if err != nil {
		log.Error("Failed to record execution", zap.Error(err))
		return nil, err
	}
	if ok {
		log.Info("Action executed", zap.Float64("savings", rec.EstimatedSavings))
	} else {
		log.Warn("Action failed", zap.String("error", detail))
	}
	s.persistAction(rec)
	return rec, nil
}

// Approve removes the action from the pending registry and executes it.
// If ctx ends first the execution still completes in the background.
func (s *Service) Approve(ctx context.Context, id string) (*models.Action, error) {
	a, err := s.registry.TakePending(id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Action approved by user", zap.String("action_id", id))

	done := make(chan executionResult, 1)
	s.dispatch(a, done)

	select {
	case res := <-done:
		return res.action, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reject removes the action from the pending registry and marks it rejected
func (s *Service) Reject(_ context.Context, id string) (*models.Action, error) {
	a, err := s.registry.Reject(id, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("Action rejected by user", zap.String("action_id", id))
	s.persistAction(a)
	return a, nil
}

func (s *Service) GetRun(runID string) (*models.RunRecord, error) {
	return s.registry.GetRun(runID)
}

func (s *Service) ListRuns() []*models.RunRecord {
	return s.registry.ListRuns()
}

func (s *Service) ListPending() []*models.Action {
	return s.registry.ListPending()
}

func (s *Service) Activity(limit int) []*models.Action {
	return s.registry.Activity(limit)
}

func (s *Service) Stats() models.DashboardStats {
	return s.registry.Stats()
}

// Health reports degraded when the agent cannot run, and the storage state when enabled
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: HealthOK}
	if err := s.checkReady(); err != nil {
		h.Status = HealthDegraded
		h.Detail = err.Error()
	}
	if s.store != nil {
		h.Storage = "ok"
		if err := s.store.Ping(ctx); err != nil {
			h.Storage = "unavailable"
		}
	}
	return h
}

// Wait blocks until every in-flight run and execution has finished
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close waits for in-flight work, then releases the store
func (s *Service) Close() error {
	s.wg.Wait()
	s.cancel()
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *Service) persistRun(runID string) {
	if s.store == nil {
		return
	}
	rec, err := s.registry.GetRun(runID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.SaveRun(ctx, rec); err != nil {
		s.logger.Warn("Failed to persist run", zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *Service) persistAction(a *models.Action) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.UpdateActionStatus(ctx, a); err != nil {
		s.logger.Warn("Failed to persist action", zap.String("action_id", a.ID), zap.Error(err))
	}
}

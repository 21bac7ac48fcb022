package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/cluster"
	"github.com/opscart/k8s-cost-agent/pkg/metrics"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"github.com/opscart/k8s-cost-agent/pkg/producer"
	"github.com/opscart/k8s-cost-agent/pkg/safety"
	"github.com/opscart/k8s-cost-agent/pkg/summarizer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
)

// PlaceholderSummary is used whenever summarization fails
const PlaceholderSummary = "AI analysis was not available for this run."

const summaryPrompt = "Analyze the following Kubernetes cluster state and provide a brief, one-sentence summary of the primary cost optimization opportunities. Cluster State: "

// ErrClusterUnavailable is the fatal error for runs started without cluster access
var ErrClusterUnavailable = errors.New("cluster client not initialized")

// ClusterSource supplies the observations gathered in the collect stage
type ClusterSource interface {
	ListNodes(ctx context.Context) []corev1.Node
	ListPods(ctx context.Context) []corev1.Pod
	Utilization(ctx context.Context) (*cluster.Utilization, error)
}

// CostSource supplies the estimated monthly cost
type CostSource interface {
	MonthlyCost(ctx context.Context) float64
}

// Gate decides every proposed action in place
type Gate interface {
	Evaluate(ctx context.Context, runID string, actions []*models.Action) (approved, rejected int)
}

// RunContext is the state threaded through the stages of one run
type RunContext struct {
	RunID     string
	DryRun    bool
	Cluster   *models.ClusterState
	Actions   []*models.Action
	AISummary string
	Report    *models.Report
	Err       error
}

// Result is a completed run after disposition. Actions holds both dispositions in
// proposal order; gate-rejected actions appear only in the report counts.
type Result struct {
	Report          *models.Report
	Actions         []*models.Action
	PendingApproval []*models.Action
	AutoExecute     []*models.Action
}

type stage struct {
	name string
	fn   func(ctx context.Context, rc *RunContext)
}

// Workflow runs collect, analyze, propose, gate and report in that order
type Workflow struct {
	cluster    ClusterSource
	costs      CostSource
	summarizer summarizer.Summarizer
	producers  []producer.Producer
	gate       Gate
	policy     Policy
	logger     *zap.Logger
	stages     []stage
}

// Options wires a Workflow. Nil Costs and Summarizer degrade to zero cost and the placeholder summary.
type Options struct {
	Cluster    ClusterSource
	Costs      CostSource
	Summarizer summarizer.Summarizer
	Producers  []producer.Producer
	Gate       Gate
	Policy     Policy
	Logger     *zap.Logger
}

func NewWorkflow(opts Options) *Workflow {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := opts.Gate
	if gate == nil {
		gate = safety.NewGate(nil, safety.Config{}, logger)
	}

	w := &Workflow{
		cluster:    opts.Cluster,
		costs:      opts.Costs,
		summarizer: opts.Summarizer,
		producers:  opts.Producers,
		gate:       gate,
		policy:     opts.Policy,
		logger:     logger.Named("workflow"),
	}
	w.stages = []stage{
		{"collect", w.collect},
		{"analyze", w.analyze},
		{"propose", w.propose},
		{"gate", w.evaluate},
		{"report", w.report},
	}
	return w
}

// Run executes every stage synchronously and classifies the approved actions
func (w *Workflow) Run(ctx context.Context, runID string, dryRun bool) (*Result, error) {
	rc := &RunContext{RunID: runID, DryRun: dryRun}
	log := w.logger.With(zap.String("run_id", runID))

	for _, s := range w.stages {
		if s.name == "report" && rc.Err != nil {
			log.Error("Skipping report after fatal error", zap.Error(rc.Err))
			continue
		}
		log.Debug("Entering stage", zap.String("stage", s.name))
		s.fn(ctx, rc)
	}

	if rc.Err != nil {
		return nil, rc.Err
	}

	pending, auto := w.policy.Split(rc.Actions, dryRun)
	disposed := make([]*models.Action, 0, len(pending)+len(auto))
	for _, a := range rc.Actions {
		if a.Status == models.StatusApproved {
			disposed = append(disposed, a)
		}
	}
	for _, a := range pending {
		metrics.Dispositions.WithLabelValues(string(a.Kind), string(DispositionPendingApproval)).Inc()
	}
	for _, a := range auto {
		metrics.Dispositions.WithLabelValues(string(a.Kind), string(DispositionAutoExecute)).Inc()
	}
	rc.Report.PendingApproval = len(pending)
	rc.Report.AutoExecuted = len(auto)

	log.Info("Run workflow finished",
		zap.Int("actions", len(rc.Actions)),
		zap.Int("pending_approval", len(pending)),
		zap.Int("auto_execute", len(auto)))

	return &Result{
		Report:          rc.Report,
		Actions:         disposed,
		PendingApproval: pending,
		AutoExecute:     auto,
	}, nil
}

func (w *Workflow) collect(ctx context.Context, rc *RunContext) {
	log := w.logger.With(zap.String("run_id", rc.RunID))
	log.Info("Collecting cluster state")

	state := &models.ClusterState{
		ResourceUsage: map[string]float64{models.UsageCPUPercent: 0, models.UsageMemoryPercent: 0},
		CostMetrics:   map[string]float64{models.CostEstimatedMonthly: 0},
		Timestamp:     time.Now().UTC(),
	}
	rc.Cluster = state

	if w.cluster == nil {
		rc.Err = ErrClusterUnavailable
		return
	}

	// each goroutine owns distinct fields until Wait returns
	var (
		nodes, pods, namespaces int
		usage                   *cluster.Utilization
		cost                    float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		nodes = len(w.cluster.ListNodes(gctx))
		podList := w.cluster.ListPods(gctx)
		pods = len(podList)
		seen := make(map[string]struct{})
		for _, p := range podList {
			seen[p.Namespace] = struct{}{}
		}
		namespaces = len(seen)
		return nil
	})
	g.Go(func() error {
		u, err := w.cluster.Utilization(gctx)
		if err != nil {
			log.Warn("Resource utilization unavailable", zap.Error(err))
			return nil
		}
		usage = u
		return nil
	})
	if w.costs != nil {
		g.Go(func() error {
			cost = w.costs.MonthlyCost(gctx)
			return nil
		})
	}
	_ = g.Wait()

	state.TotalNodes = nodes
	state.TotalPods = pods
	state.TotalNamespaces = namespaces
	if usage != nil {
		state.ResourceUsage[models.UsageCPUPercent] = usage.CPUPercent
		state.ResourceUsage[models.UsageMemoryPercent] = usage.MemoryPercent
	}
	state.CostMetrics[models.CostEstimatedMonthly] = cost

	log.Info("Cluster state collected",
		zap.Int("nodes", nodes), zap.Int("pods", pods), zap.Float64("monthly_cost", cost))
}

func (w *Workflow) analyze(ctx context.Context, rc *RunContext) {
	log := w.logger.With(zap.String("run_id", rc.RunID))
	rc.AISummary = PlaceholderSummary

	if w.summarizer == nil {
		log.Info("No summarizer configured, using placeholder summary")
		return
	}

	rendered, err := json.MarshalIndent(rc.Cluster, "", "  ")
	if err != nil {
		log.Error("Failed to render cluster state", zap.Error(err))
		return
	}

	summary, err := w.summarizer.Summarize(ctx, summaryPrompt+string(rendered))
	if err != nil {
		log.Error("AI analysis failed", zap.Error(err))
		return
	}
	if summary != "" {
		rc.AISummary = summary
	}
	log.Info("AI analysis complete")
}

func (w *Workflow) propose(ctx context.Context, rc *RunContext) {
	log := w.logger.With(zap.String("run_id", rc.RunID))

	for _, p := range w.producers {
		actions, err := runProducer(ctx, p, rc.Cluster)
		if err != nil {
			metrics.ProducerFailures.WithLabelValues(p.Name()).Inc()
			log.Error("Producer failed", zap.String("producer", p.Name()), zap.Error(err))
			continue
		}
		for _, a := range actions {
			if a == nil {
				continue
			}
			metrics.ActionsProposed.WithLabelValues(string(a.Kind)).Inc()
			rc.Actions = append(rc.Actions, a)
		}
	}
	log.Info("Optimization actions generated", zap.Int("count", len(rc.Actions)))
}

// runProducer isolates a producer so that a panic counts as a failure
func runProducer(ctx context.Context, p producer.Producer, state *models.ClusterState) (actions []*models.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			actions = nil
			err = fmt.Errorf("producer %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Analyze(ctx, state)
}

func (w *Workflow) evaluate(ctx context.Context, rc *RunContext) {
	w.gate.Evaluate(ctx, rc.RunID, rc.Actions)
}

func (w *Workflow) report(_ context.Context, rc *RunContext) {
	report := &models.Report{
		Timestamp:             time.Now().UTC(),
		TotalActionsGenerated: len(rc.Actions),
		DryRun:                rc.DryRun,
		AISummary:             rc.AISummary,
	}
	for _, a := range rc.Actions {
		switch a.Status {
		case models.StatusApproved:
			report.ActionsApprovedForReview++
			report.EstimatedMonthlySavings += a.EstimatedSavings
		case models.StatusRejected:
			report.ActionsRejected++
		}
	}
	rc.Report = report

	w.logger.Info("Final report generated",
		zap.String("run_id", rc.RunID),
		zap.Int("total_actions_generated", report.TotalActionsGenerated),
		zap.Int("actions_approved_for_review", report.ActionsApprovedForReview))
}

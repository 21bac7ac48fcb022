package models

import "time"

// RunStatus is the lifecycle state of an analysis run
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// Report summarizes one completed run
type Report struct {
	Timestamp                time.Time `json:"timestamp" yaml:"timestamp"`
	TotalActionsGenerated    int       `json:"total_actions_generated" yaml:"total_actions_generated"`
	ActionsApprovedForReview int       `json:"actions_approved_for_review" yaml:"actions_approved_for_review"`
	ActionsRejected          int       `json:"actions_rejected" yaml:"actions_rejected"`
	PendingApproval          int       `json:"pending_approval" yaml:"pending_approval"`
	AutoExecuted             int       `json:"auto_executed" yaml:"auto_executed"`
	EstimatedMonthlySavings  float64   `json:"estimated_monthly_savings" yaml:"estimated_monthly_savings"`
	DryRun                   bool      `json:"dry_run" yaml:"dry_run"`
	AISummary                string    `json:"ai_analysis_summary" yaml:"ai_analysis_summary"`
}

// RunRecord tracks one invocation of the analysis workflow
type RunRecord struct {
	RunID   string    `json:"run_id" yaml:"run_id"`
	Status  RunStatus `json:"status" yaml:"status"`
	DryRun  bool      `json:"dry_run" yaml:"dry_run"`
	Report  *Report   `json:"report,omitempty" yaml:"report,omitempty"`
	Detail  string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Actions []*Action `json:"actions" yaml:"actions"`
}

// Snapshot returns a deep copy of the record
func (r *RunRecord) Snapshot() *RunRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Report != nil {
		rep := *r.Report
		cp.Report = &rep
	}
	cp.Actions = make([]*Action, 0, len(r.Actions))
	for _, a := range r.Actions {
		cp.Actions = append(cp.Actions, a.Snapshot())
	}
	return &cp
}

// ClusterState is the observation snapshot collected at the start of a run
type ClusterState struct {
	TotalNodes      int                `json:"total_nodes"`
	TotalPods       int                `json:"total_pods"`
	TotalNamespaces int                `json:"total_namespaces"`
	ResourceUsage   map[string]float64 `json:"resource_usage"`
	CostMetrics     map[string]float64 `json:"cost_metrics"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Keys used in ClusterState maps
const (
	UsageCPUPercent      = "cpu_utilization_percent"
	UsageMemoryPercent   = "memory_utilization_percent"
	CostEstimatedMonthly = "estimated_monthly_cost_usd"
)

// DashboardStats holds aggregate execution statistics
type DashboardStats struct {
	TotalSavings    float64 `json:"totalSavings"`
	ActionsExecuted int     `json:"actionsExecuted"`
	PendingActions  int     `json:"pendingActions"`
}

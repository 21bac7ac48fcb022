package storage

import (
	"context"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/models"
)

// Store keeps a durable history of runs and their actions
type Store interface {
	SaveRun(ctx context.Context, rec *models.RunRecord) error
	UpdateActionStatus(ctx context.Context, action *models.Action) error

	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
	ListActions(ctx context.Context, status models.ActionStatus, limit int) ([]*models.Action, error)
	GetSavingsSummary(ctx context.Context, days int) (*SavingsSummary, error)

	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Driver string // postgres, sqlite
	URL    string
}

// SavingsSummary aggregates action outcomes over a period
type SavingsSummary struct {
	Since           time.Time `json:"since"`
	ActionsExecuted int       `json:"actions_executed"`
	ActionsFailed   int       `json:"actions_failed"`
	ActionsRejected int       `json:"actions_rejected"`
	RealizedSavings float64   `json:"realized_savings"`
}

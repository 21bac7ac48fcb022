package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrRunNotFound = errors.New("run not found")

// SQLStore implements Store on PostgreSQL or SQLite
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

type runRow struct {
	RunID     string    `db:"run_id"`
	Status    string    `db:"status"`
	DryRun    bool      `db:"dry_run"`
	Detail    string    `db:"detail"`
	Report    string    `db:"report"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type actionRow struct {
	ID               string       `db:"id"`
	RunID            string       `db:"run_id"`
	Type             string       `db:"type"`
	Target           string       `db:"target"`
	Namespace        string       `db:"namespace"`
	Details          string       `db:"details"`
	EstimatedSavings float64      `db:"estimated_savings"`
	Confidence       float64      `db:"confidence"`
	Status           string       `db:"status"`
	Error            string       `db:"error"`
	CreatedAt        time.Time    `db:"created_at"`
	ExecutedAt       sql.NullTime `db:"executed_at"`
}

const actionColumns = `id, run_id, type, target, namespace, details, estimated_savings, confidence, status, error, created_at, executed_at`

// New opens the database for the configured driver and applies the schema
func New(cfg Config) (*SQLStore, error) {
	var driverName string
	switch cfg.Driver {
	case "postgres":
		driverName = "postgres"
	case "sqlite":
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	db, err := sqlx.Connect(driverName, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// single writer; also keeps :memory: databases on one connection
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	store := &SQLStore{db: db, driver: cfg.Driver}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (s *SQLStore) migrate() error {
	schema, err := migrationsFS.ReadFile(fmt.Sprintf("migrations/001_%s_schema.sql", s.driver))
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// SaveRun upserts the run and every action it produced
func (s *SQLStore) SaveRun(ctx context.Context, rec *models.RunRecord) error {
	report := ""
	if rec.Report != nil {
		data, err := json.Marshal(rec.Report)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		report = string(data)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	runQuery := s.db.Rebind(`
		INSERT INTO runs (run_id, status, dry_run, detail, report, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			status = excluded.status,
			detail = excluded.detail,
			report = excluded.report,
			updated_at = excluded.updated_at
	`)
	if _, err := tx.ExecContext(ctx, runQuery, rec.RunID, string(rec.Status), rec.DryRun, rec.Detail, report, now, now); err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}

	actionQuery := s.db.Rebind(`
		INSERT INTO actions (` + actionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			executed_at = excluded.executed_at
	`)
	for _, a := range rec.Actions {
		details, err := json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("failed to encode details of %s: %w", a.ID, err)
		}
		if _, err := tx.ExecContext(ctx, actionQuery,
			a.ID, rec.RunID, string(a.Kind), a.Target, a.Namespace, string(details),
			a.EstimatedSavings, a.Confidence, string(a.Status), a.Error, a.CreatedAt.UTC(), nullTime(a.ExecutedAt),
		); err != nil {
			return fmt.Errorf("failed to save action %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// UpdateActionStatus records a terminal outcome for an action saved with its run
func (s *SQLStore) UpdateActionStatus(ctx context.Context, a *models.Action) error {
	query := s.db.Rebind(`UPDATE actions SET status = ?, error = ?, executed_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, string(a.Status), a.Error, nullTime(a.ExecutedAt), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update action %s: %w", a.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("action not found: %s", a.ID)
	}
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM runs WHERE run_id = ?`), runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	rec, err := row.toModel()
	if err != nil {
		return nil, err
	}

	var actions []actionRow
	query := s.db.Rebind(`SELECT ` + actionColumns + ` FROM actions WHERE run_id = ? ORDER BY created_at, id`)
	if err := s.db.SelectContext(ctx, &actions, query, runID); err != nil {
		return nil, fmt.Errorf("failed to load actions of %s: %w", runID, err)
	}
	for _, a := range actions {
		action, err := a.toModel()
		if err != nil {
			return nil, err
		}
		rec.Actions = append(rec.Actions, action)
	}
	return rec, nil
}

// ListRuns returns the most recent runs without their actions
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT * FROM runs ORDER BY run_id DESC LIMIT ?`), limit); err != nil {
		return nil, err
	}

	runs := make([]*models.RunRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, nil
}

// ListActions returns actions, most recently executed first; an empty status matches all
func (s *SQLStore) ListActions(ctx context.Context, status models.ActionStatus, limit int) ([]*models.Action, error) {
	var rows []actionRow
	var err error
	if status == "" {
		query := s.db.Rebind(`SELECT ` + actionColumns + ` FROM actions ORDER BY executed_at DESC NULLS LAST, created_at DESC LIMIT ?`)
		err = s.db.SelectContext(ctx, &rows, query, limit)
	} else {
		query := s.db.Rebind(`SELECT ` + actionColumns + ` FROM actions WHERE status = ? ORDER BY executed_at DESC NULLS LAST, created_at DESC LIMIT ?`)
		err = s.db.SelectContext(ctx, &rows, query, string(status), limit)
	}
	if err != nil {
		return nil, err
	}

	actions := make([]*models.Action, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// GetSavingsSummary aggregates terminal actions disposed within the last days
func (s *SQLStore) GetSavingsSummary(ctx context.Context, days int) (*SavingsSummary, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	var rows []struct {
		Status  string  `db:"status"`
		Count   int     `db:"count"`
		Savings float64 `db:"savings"`
	}
	query := s.db.Rebind(`
		SELECT status, COUNT(*) AS count, COALESCE(SUM(estimated_savings), 0) AS savings
		FROM actions
		WHERE executed_at IS NOT NULL AND executed_at >= ?
		GROUP BY status
	`)
	if err := s.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to query savings: %w", err)
	}

	summary := &SavingsSummary{Since: since}
	for _, row := range rows {
		switch models.ActionStatus(row.Status) {
		case models.StatusExecuted:
			summary.ActionsExecuted = row.Count
			summary.RealizedSavings = row.Savings
		case models.StatusFailed:
			summary.ActionsFailed = row.Count
		case models.StatusRejected:
			summary.ActionsRejected = row.Count
		}
	}
	return summary, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (r runRow) toModel() (*models.RunRecord, error) {
	rec := &models.RunRecord{
		RunID:   r.RunID,
		Status:  models.RunStatus(r.Status),
		DryRun:  r.DryRun,
		Detail:  r.Detail,
		Actions: []*models.Action{},
	}
	if r.Report != "" {
		var report models.Report
		if err := json.Unmarshal([]byte(r.Report), &report); err != nil {
			return nil, fmt.Errorf("failed to decode report of %s: %w", r.RunID, err)
		}
		rec.Report = &report
	}
	return rec, nil
}

func (r actionRow) toModel() (*models.Action, error) {
	a := &models.Action{
		ID:               r.ID,
		Kind:             models.ActionKind(r.Type),
		Target:           r.Target,
		Namespace:        r.Namespace,
		EstimatedSavings: r.EstimatedSavings,
		Confidence:       r.Confidence,
		Status:           models.ActionStatus(r.Status),
		Error:            r.Error,
		CreatedAt:        r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Details), &a.Details); err != nil {
		return nil, fmt.Errorf("failed to decode details of %s: %w", r.ID, err)
	}
	if r.ExecutedAt.Valid {
		t := r.ExecutedAt.Time.UTC()
		a.ExecutedAt = &t
	}
	return a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

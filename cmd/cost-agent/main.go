package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opscart/k8s-cost-agent/pkg/agent"
	"github.com/opscart/k8s-cost-agent/pkg/api"
	"github.com/opscart/k8s-cost-agent/pkg/config"
	"github.com/opscart/k8s-cost-agent/pkg/logging"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"github.com/opscart/k8s-cost-agent/pkg/output"
	"github.com/opscart/k8s-cost-agent/pkg/reporter"
	"github.com/opscart/k8s-cost-agent/pkg/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	logLevel   string

	// Run flags
	dryRun       bool
	outputFormat string

	// History flags
	historyLimit int
	savingsDays  int

	// Export flags
	exportFormat string
	exportOutput string
	exportStatus string
	exportLimit  int

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "cost-agent",
		Short: "Kubernetes cost optimization agent",
		Long: `Analyze a Kubernetes cluster for cost savings, gate every proposed action
through safety checks, and execute or queue it for human approval.`,
		PersistentPreRunE: setup,
		SilenceUsage:      true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger API",
		Run:   runServe,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one analysis synchronously and print the result",
		Run:   runOnce,
	}
	runCmd.Flags().BoolVar(&dryRun, "dry-run", true, "Never auto-execute; every approved action waits for approval (default from config)")
	runCmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: text, json, yaml (default from config)")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "View past runs from the database",
		Run:   runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show")
	historyCmd.Flags().IntVar(&savingsDays, "days", 30, "Period for the savings summary, in days")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded actions as a report",
		Run:   runExport,
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Report format: csv, markdown, html")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "Output file (default stdout)")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Only actions with this status")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 500, "Maximum number of actions")

	rootCmd.AddCommand(serveCmd, runCmd, historyCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err = logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	return nil
}

func exitOnError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := agent.NewFromConfig(ctx, cfg, logger)
	exitOnError("failed to initialize agent", err)
	defer svc.Close()

	err = api.Serve(ctx, svc, api.ServerConfig{
		ListenAddress:  cfg.ListenAddress,
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultDryRun:  cfg.DryRun,
	}, logger)
	exitOnError("server error", err)

	logger.Info("Waiting for in-flight executions")
}

func runOnce(cmd *cobra.Command, args []string) {
	defer logger.Sync()

	format := outputFormat
	if format == "" {
		format = cfg.OutputFormat
	}
	out, err := output.NewHandler(format, os.Stdout)
	exitOnError("invalid output", err)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := agent.NewFromConfig(ctx, cfg, logger)
	exitOnError("failed to initialize agent", err)

	if !cmd.Flags().Changed("dry-run") {
		dryRun = cfg.DryRun
	}
	rec, err := svc.RunNow(ctx, dryRun)
	exitOnError("run not started", err)

	// let auto-executed actions settle so the printed statuses are final
	svc.Wait()
	if final, err := svc.GetRun(rec.RunID); err == nil {
		rec = final
	}
	if err := svc.Close(); err != nil {
		logger.Warn("Failed to close agent", zap.Error(err))
	}

	exitOnError("failed to print run", out.DisplayRun(rec))
	if pending := svc.ListPending(); len(pending) > 0 && out.Format() == "text" {
		fmt.Printf("\n%d action(s) await approval; start `cost-agent serve` to approve or reject them.\n", len(pending))
	}

	if rec.Status == models.RunFailed {
		os.Exit(1)
	}
}

func openStore() storage.Store {
	store, err := storage.New(storage.Config{Driver: cfg.StorageDriver, URL: cfg.DatabaseURL})
	exitOnError("failed to initialize storage", err)
	return store
}

func runHistory(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()

	ctx := context.Background()
	runs, err := store.ListRuns(ctx, historyLimit)
	exitOnError("failed to list runs", err)

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return
	}

	fmt.Printf("Recent runs:\n\n")
	for i, run := range runs {
		fmt.Printf("%d. %s\n", i+1, run.RunID)
		fmt.Printf("   Status: %s\n", run.Status)
		fmt.Printf("   Dry run: %t\n", run.DryRun)
		if run.Report != nil {
			fmt.Printf("   Actions: %d generated, %d approved, %d rejected\n",
				run.Report.TotalActionsGenerated, run.Report.ActionsApprovedForReview, run.Report.ActionsRejected)
			fmt.Printf("   Savings: $%.2f/mo\n", run.Report.EstimatedMonthlySavings)
		}
		if run.Detail != "" {
			fmt.Printf("   Detail: %s\n", run.Detail)
		}
		fmt.Println()
	}

	summary, err := store.GetSavingsSummary(ctx, savingsDays)
	exitOnError("failed to summarize savings", err)
	fmt.Printf("Last %d days: %d executed, %d failed, %d rejected, $%.2f/mo realized\n",
		savingsDays, summary.ActionsExecuted, summary.ActionsFailed, summary.ActionsRejected, summary.RealizedSavings)
}

func runExport(cmd *cobra.Command, args []string) {
	store := openStore()
	defer store.Close()

	actions, err := store.ListActions(context.Background(), models.ActionStatus(exportStatus), exportLimit)
	exitOnError("failed to list actions", err)

	r := reporter.New(reporter.ReportFormat(exportFormat))
	report := r.Generate("K8s Cost Agent Action Report", actions)

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		exitOnError("failed to create output file", err)
		defer f.Close()
		out = f
	}
	exitOnError("failed to write report", r.Write(report, out))

	if exportOutput != "" {
		fmt.Fprintf(os.Stderr, "Report written to %s (%d actions)\n", exportOutput, len(actions))
	}
}

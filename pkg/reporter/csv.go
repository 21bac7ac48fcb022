package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// GenerateCSV creates a CSV report
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	header := []string{
		"ID",
		"Type",
		"Namespace",
		"Target",
		"Status",
		"Confidence",
		"Monthly Savings ($)",
		"Created At",
		"Executed At",
		"Error",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, a := range report.Actions {
		executedAt := ""
		if a.ExecutedAt != nil {
			executedAt = a.ExecutedAt.Format(time.RFC3339)
		}
		row := []string{
			a.ID,
			string(a.Kind),
			a.Namespace,
			a.Target,
			string(a.Status),
			fmt.Sprintf("%.2f", a.Confidence),
			fmt.Sprintf("%.2f", a.EstimatedSavings),
			a.CreatedAt.Format(time.RFC3339),
			executedAt,
			a.Error,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	rows := [][]string{
		{},
		{"SUMMARY"},
		{"Total Actions", fmt.Sprintf("%d", len(report.Actions))},
		{"Proposed Monthly Savings", fmt.Sprintf("$%.2f", report.ProposedSavings)},
		{"Realized Monthly Savings", fmt.Sprintf("$%.2f", report.RealizedSavings)},
		{},
		{"KIND BREAKDOWN"},
		{"Kind", "Actions", "Executed", "Failed", "Savings"},
	}
	for _, ks := range report.KindStats {
		rows = append(rows, []string{
			string(ks.Kind),
			fmt.Sprintf("%d", ks.Count),
			fmt.Sprintf("%d", ks.Executed),
			fmt.Sprintf("%d", ks.Failed),
			fmt.Sprintf("$%.2f", ks.TotalSavings),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV summary: %w", err)
	}

	return nil
}

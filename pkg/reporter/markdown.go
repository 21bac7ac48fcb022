package reporter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/opscart/k8s-cost-agent/pkg/models"
)

// GenerateMarkdown creates a plain-text markdown report
func GenerateMarkdown(report *Report, writer io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", report.Title)
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format("January 2, 2006 15:04:05 MST"))
	fmt.Fprintf(&b, "- Actions: %d\n", len(report.Actions))
	fmt.Fprintf(&b, "- Proposed monthly savings: $%.2f\n", report.ProposedSavings)
	fmt.Fprintf(&b, "- Realized monthly savings: $%.2f\n", report.RealizedSavings)

	if len(report.KindStats) > 0 {
		b.WriteString("\n## By Kind\n\n")
		b.WriteString("| Kind | Actions | Executed | Failed | Savings |\n|---|---|---|---|---|\n")
		for _, ks := range report.KindStats {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | $%.2f |\n", ks.Kind, ks.Count, ks.Executed, ks.Failed, ks.TotalSavings)
		}
	}

	if len(report.Actions) > 0 {
		b.WriteString("\n## Actions\n\n")
		b.WriteString("| ID | Type | Target | Status | Confidence | Savings |\n|---|---|---|---|---|---|\n")
		for _, a := range report.Actions {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %.2f | $%.2f |\n",
				a.ID, a.Kind, qualifiedTarget(a), a.Status, a.Confidence, a.EstimatedSavings)
		}
	}

	_, err := io.WriteString(writer, b.String())
	return err
}

// WriteRunText prints a run record as an aligned console summary
func WriteRunText(rec *models.RunRecord, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Run:\t%s\n", rec.RunID)
	fmt.Fprintf(tw, "Status:\t%s\n", rec.Status)
	fmt.Fprintf(tw, "Dry run:\t%t\n", rec.DryRun)
	if rec.Detail != "" {
		fmt.Fprintf(tw, "Detail:\t%s\n", rec.Detail)
	}
	if r := rec.Report; r != nil {
		fmt.Fprintf(tw, "Actions generated:\t%d\n", r.TotalActionsGenerated)
		fmt.Fprintf(tw, "Approved for review:\t%d\n", r.ActionsApprovedForReview)
		fmt.Fprintf(tw, "Rejected by gate:\t%d\n", r.ActionsRejected)
		fmt.Fprintf(tw, "Pending approval:\t%d\n", r.PendingApproval)
		fmt.Fprintf(tw, "Auto-executed:\t%d\n", r.AutoExecuted)
		fmt.Fprintf(tw, "Estimated savings:\t$%.2f/month\n", r.EstimatedMonthlySavings)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if rec.Report != nil && rec.Report.AISummary != "" {
		fmt.Fprintf(writer, "\n%s\n", rec.Report.AISummary)
	}

	if len(rec.Actions) == 0 {
		return nil
	}
	fmt.Fprintln(writer)
	tw = tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tTARGET\tSTATUS\tCONFIDENCE\tSAVINGS\tNOTE")
	for _, a := range rec.Actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t$%.2f\t%s\n",
			a.ID, a.Kind, qualifiedTarget(a), a.Status, a.Confidence, a.EstimatedSavings, a.Error)
	}
	return tw.Flush()
}

func qualifiedTarget(a *models.Action) string {
	if a.Namespace == "" {
		return a.Target
	}
	return a.Namespace + "/" + a.Target
}

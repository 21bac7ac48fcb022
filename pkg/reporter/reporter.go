package reporter

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/opscart/k8s-cost-agent/pkg/models"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatHTML     ReportFormat = "html"
	FormatMarkdown ReportFormat = "markdown"
	FormatCSV      ReportFormat = "csv"
)

// Report aggregates a set of actions for export
type Report struct {
	Title           string
	GeneratedAt     time.Time
	Actions         []*models.Action
	ProposedSavings float64
	RealizedSavings float64
	StatusCounts    map[models.ActionStatus]int
	KindStats       []*KindStats
	NamespaceStats  []*NamespaceStats
}

// KindStats holds statistics per action kind
type KindStats struct {
	Kind          models.ActionKind
	Count         int
	Executed      int
	Failed        int
	TotalSavings  float64
	ExecutionRate float64 // Percentage of disposed actions that executed
}

// NamespaceStats holds statistics per namespace
type NamespaceStats struct {
	Namespace    string
	Count        int
	TotalSavings float64
}

// Reporter renders action reports
type Reporter struct {
	format ReportFormat
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{
		format: format,
	}
}

// Generate builds a report from actions
func (r *Reporter) Generate(title string, actions []*models.Action) *Report {
	report := &Report{
		Title:        title,
		GeneratedAt:  time.Now().UTC(),
		Actions:      actions,
		StatusCounts: make(map[models.ActionStatus]int),
	}
	calculateStats(report)
	return report
}

// Write renders the report in the reporter's format
func (r *Reporter) Write(report *Report, w io.Writer) error {
	switch r.format {
	case FormatCSV:
		return GenerateCSV(report, w)
	case FormatMarkdown, "":
		return GenerateMarkdown(report, w)
	case FormatHTML:
		return GenerateHTML(report, w)
	default:
		return fmt.Errorf("unsupported report format: %s", r.format)
	}
}

func calculateStats(report *Report) {
	kinds := make(map[models.ActionKind]*KindStats)
	namespaces := make(map[string]*NamespaceStats)

	for _, a := range report.Actions {
		report.ProposedSavings += a.EstimatedSavings
		report.StatusCounts[a.Status]++

		ks, ok := kinds[a.Kind]
		if !ok {
			ks = &KindStats{Kind: a.Kind}
			kinds[a.Kind] = ks
		}
		ks.Count++
		ks.TotalSavings += a.EstimatedSavings
		switch a.Status {
		case models.StatusExecuted:
			ks.Executed++
			report.RealizedSavings += a.EstimatedSavings
		case models.StatusFailed:
			ks.Failed++
		}

		// node actions are cluster-scoped
		ns := a.Namespace
		if ns == "" {
			ns = "(cluster)"
		}
		nss, ok := namespaces[ns]
		if !ok {
			nss = &NamespaceStats{Namespace: ns}
			namespaces[ns] = nss
		}
		nss.Count++
		nss.TotalSavings += a.EstimatedSavings
	}

	for _, ks := range kinds {
		if disposed := ks.Executed + ks.Failed; disposed > 0 {
			ks.ExecutionRate = float64(ks.Executed) / float64(disposed) * 100
		}
		report.KindStats = append(report.KindStats, ks)
	}
	sort.Slice(report.KindStats, func(i, j int) bool {
		return report.KindStats[i].Kind < report.KindStats[j].Kind
	})

	for _, nss := range namespaces {
		report.NamespaceStats = append(report.NamespaceStats, nss)
	}
	sort.Slice(report.NamespaceStats, func(i, j int) bool {
		if report.NamespaceStats[i].TotalSavings != report.NamespaceStats[j].TotalSavings {
			return report.NamespaceStats[i].TotalSavings > report.NamespaceStats[j].TotalSavings
		}
		return report.NamespaceStats[i].Namespace < report.NamespaceStats[j].Namespace
	})
}

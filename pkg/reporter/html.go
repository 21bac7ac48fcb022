package reporter

import (
	"fmt"
	"html/template"
	"io"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; background: #f5f7fa; color: #333; padding: 20px; }
        .container { max-width: 1200px; margin: 0 auto; background: white; border-radius: 8px; box-shadow: 0 2px 8px rgba(0, 0, 0, 0.1); }
        .header { background: linear-gradient(135deg, #326ce5 0%, #1a4d8f 100%); color: white; padding: 30px 40px; }
        .summary { display: flex; gap: 20px; padding: 30px 40px; }
        .summary-card { flex: 1; border: 1px solid #e1e4e8; border-radius: 8px; padding: 20px; }
        .summary-card .value { font-size: 2em; font-weight: bold; color: #326ce5; }
        .section { padding: 20px 40px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px; border-bottom: 1px solid #e1e4e8; }
        .status-executed { color: #34a853; }
        .status-failed, .status-rejected { color: #ea4335; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{.Title}}</h1>
            <p><strong>Generated:</strong> {{.GeneratedAt.Format "January 2, 2006 15:04:05 MST"}}</p>
        </div>

        <div class="summary">
            <div class="summary-card">
                <h3>Actions</h3>
                <div class="value">{{len .Actions}}</div>
            </div>
            <div class="summary-card">
                <h3>Proposed Monthly Savings</h3>
                <div class="value">${{printf "%.2f" .ProposedSavings}}</div>
            </div>
            <div class="summary-card">
                <h3>Realized Monthly Savings</h3>
                <div class="value">${{printf "%.2f" .RealizedSavings}}</div>
            </div>
        </div>

        {{if .KindStats}}
        <div class="section">
            <h2>By Kind</h2>
            <table>
                <thead><tr><th>Kind</th><th>Actions</th><th>Executed</th><th>Failed</th><th>Execution Rate</th><th>Savings</th></tr></thead>
                <tbody>
                    {{range .KindStats}}
                    <tr><td>{{.Kind}}</td><td>{{.Count}}</td><td>{{.Executed}}</td><td>{{.Failed}}</td><td>{{printf "%.0f" .ExecutionRate}}%</td><td>${{printf "%.2f" .TotalSavings}}</td></tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="section">
            <h2>Actions</h2>
            <table>
                <thead><tr><th>ID</th><th>Type</th><th>Namespace</th><th>Target</th><th>Status</th><th>Confidence</th><th>Savings</th></tr></thead>
                <tbody>
                    {{range .Actions}}
                    <tr>
                        <td>{{.ID}}</td>
                        <td>{{.Kind}}</td>
                        <td>{{.Namespace}}</td>
                        <td>{{.Target}}</td>
                        <td class="status-{{.Status}}">{{.Status}}{{if .Error}}<br><small>{{.Error}}</small>{{end}}</td>
                        <td>{{printf "%.2f" .Confidence}}</td>
                        <td>${{printf "%.2f" .EstimatedSavings}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
    </div>
</body>
</html>
`

var reportTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// GenerateHTML creates an HTML report
func GenerateHTML(report *Report, writer io.Writer) error {
	if err := reportTemplate.Execute(writer, report); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"time"
)

type RunReportProps struct {
	StartedAt     time.Time
	BatchSize     int
	Due           int
	Sent          int
	Skipped       int
	Failed        int
	Recovered     int
	Cancelled     int
	Expired       int
	FailedReasons map[string]int
}

type reasonRow struct {
	Reason string
	Count  int
}

type runReportData struct {
	RunReportProps
	StartedAtText string
	Reasons       []reasonRow
}

var runReportTemplate = template.Must(template.New("runReport").Parse(`
<h2 style="font-size: 20px; margin: 0 0 16px;">Recovery run finished with {{.Failed}} failed attempt{{if ne .Failed 1}}s{{end}}</h2>
<p style="margin: 0 0 16px;">Started {{.StartedAtText}} with batch size {{.BatchSize}}.</p>
<table role="presentation" cellpadding="4" cellspacing="0" style="border-collapse: collapse; margin-bottom: 16px;">
  <tr><td>Due</td><td><strong>{{.Due}}</strong></td></tr>
  <tr><td>Sent</td><td><strong>{{.Sent}}</strong></td></tr>
  <tr><td>Skipped</td><td><strong>{{.Skipped}}</strong></td></tr>
  <tr><td>Failed</td><td><strong style="color: #c0392b;">{{.Failed}}</strong></td></tr>
  <tr><td>Recovered</td><td><strong>{{.Recovered}}</strong></td></tr>
  <tr><td>Cancelled</td><td><strong>{{.Cancelled}}</strong></td></tr>
  <tr><td>Expired</td><td><strong>{{.Expired}}</strong></td></tr>
</table>
{{if .Reasons}}<p style="margin: 0 0 8px;">Failure reasons:</p>
<ul>{{range .Reasons}}
  <li>{{.Reason}}: {{.Count}}</li>{{end}}
</ul>{{end}}`))

// GetRunReportContent renders the body of a run-now report. Reasons are
// listed by count, most frequent first.
func GetRunReportContent(props RunReportProps) (template.HTML, error) {
	data := runReportData{
		RunReportProps: props,
		StartedAtText:  props.StartedAt.UTC().Format("2006-01-02 15:04 MST"),
	}
	for reason, count := range props.FailedReasons {
		data.Reasons = append(data.Reasons, reasonRow{Reason: reason, Count: count})
	}
	sort.Slice(data.Reasons, func(i, j int) bool {
		if data.Reasons[i].Count != data.Reasons[j].Count {
			return data.Reasons[i].Count > data.Reasons[j].Count
		}
		return data.Reasons[i].Reason < data.Reasons[j].Reason
	})

	var buf bytes.Buffer
	if err := runReportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render run report: %w", err)
	}
	return template.HTML(buf.String()), nil
}

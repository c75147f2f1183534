package export

import (
	"bytes"
	"embed"
	"html/template"
	"sort"
	"strings"
	"time"

	"sheettracker/api/internal/sheet"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"link": questionLink,
}).ParseFS(templateFS, "templates/report.html"))

// ReportData holds data for report template rendering
type ReportData struct {
	Title        string
	Description  string
	UpdatedAt    string
	GeneratedAt  time.Time
	Overall      ProgressRow
	Difficulties []ProgressRow
	Topics       []ReportTopic
}

type ProgressRow struct {
	Label   string
	Solved  int
	Total   int
	Percent int
}

type ReportTopic struct {
	sheet.Topic
	Progress sheet.Progress
}

// NewReportData combines the tree with its stats. Canonical difficulties come
// first, then any other labels alphabetically.
func NewReportData(sh sheet.Sheet, now time.Time) ReportData {
	stats := sheet.ComputeStats(sh)
	data := ReportData{
		Title:       sh.Meta.Name,
		Description: sh.Meta.Description,
		UpdatedAt:   sh.Meta.UpdatedAt,
		GeneratedAt: now,
		Overall:     row("All", stats.Progress),
		Topics:      make([]ReportTopic, 0, len(sh.Topics)),
	}

	canonical := []sheet.Difficulty{sheet.Easy, sheet.Medium, sheet.Hard}
	for _, d := range canonical {
		data.Difficulties = append(data.Difficulties, row(string(d), stats.ByDifficulty[d]))
	}
	var others []string
	for d := range stats.ByDifficulty {
		if !d.Canonical() {
			others = append(others, string(d))
		}
	}
	sort.Strings(others)
	for _, label := range others {
		data.Difficulties = append(data.Difficulties, row(label, stats.ByDifficulty[sheet.Difficulty(label)]))
	}

	for i, topic := range sh.Topics {
		data.Topics = append(data.Topics, ReportTopic{Topic: topic, Progress: stats.Topics[i].Progress})
	}
	return data
}

func row(label string, p sheet.Progress) ProgressRow {
	return ProgressRow{Label: label, Solved: p.Solved, Total: p.Total, Percent: p.Percent()}
}

// questionLink prefers the problem URL over the resource link.
func questionLink(q sheet.Question) string {
	if q.ProblemURL != "" {
		return q.ProblemURL
	}
	return q.Resource
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data ReportData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

package chart

import (
	_ "embed"
	"fmt"
	"html/template"
	"os"
)

//go:embed summary.html.tmpl
var summaryTmpl string

// summaryPage is the template context for index.html.
type summaryPage struct {
	Tables []string
	Charts []chartRef
	Stats  []runnerStats
}

type chartRef struct {
	Measurement string
	File        string
}

var tmpl = template.Must(template.New("summary").Parse(summaryTmpl))

func writeSummary(path string, page *summaryPage) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating summary: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, page); err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}
	return nil
}

// Package chart renders comparison charts and an HTML summary from one
// or more serialised result tables.
package chart

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/deixis/gridbench/internal/result"
)

// palette cycles across runner series.
var palette = []color.RGBA{
	{0, 114, 178, 255},   // blue
	{213, 94, 0, 255},    // vermillion
	{0, 158, 115, 255},   // green
	{204, 121, 167, 255}, // purple
	{230, 159, 0, 255},   // orange
	{86, 180, 233, 255},  // sky blue
}

// series is one runner's values for a single measurement column, in
// row order across all input tables.
type series struct {
	runner string
	values []float64
}

// Render reads the given result tables and writes one comparison PNG
// per measurement column plus an index.html summary into outDir.
// Rows lacking a value for a measurement are skipped in that chart.
func Render(tablePaths []string, outDir string, measurements []string) (string, error) {
	if len(tablePaths) == 0 {
		return "", fmt.Errorf("no result tables given")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating chart directory: %w", err)
	}

	tables := make([]*result.ParsedTable, 0, len(tablePaths))
	for _, path := range tablePaths {
		t, err := result.ParseFile(path)
		if err != nil {
			return "", err
		}
		tables = append(tables, t)
	}

	page := &summaryPage{Tables: tablePaths}
	for _, m := range measurements {
		all := collect(tables, m)
		if len(all) == 0 {
			continue
		}
		name := m + ".png"
		if err := renderMeasurement(all, m, filepath.Join(outDir, name)); err != nil {
			return "", err
		}
		page.Charts = append(page.Charts, chartRef{Measurement: m, File: name})
		for _, s := range all {
			page.Stats = append(page.Stats, summarize(m, s))
		}
	}
	if len(page.Charts) == 0 {
		return "", fmt.Errorf("no rows with measurements %v in the given tables", measurements)
	}

	htmlPath := filepath.Join(outDir, "index.html")
	if err := writeSummary(htmlPath, page); err != nil {
		return "", err
	}
	return htmlPath, nil
}

// collect gathers per-runner value series for one measurement column
// across all tables, runners ordered by first appearance.
func collect(tables []*result.ParsedTable, measurement string) []series {
	var order []string
	byRunner := make(map[string][]float64)
	for _, t := range tables {
		for i := range t.Rows {
			cell, ok := t.Cell(i, measurement)
			if !ok || cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			name, _ := t.Cell(i, "name")
			if _, seen := byRunner[name]; !seen {
				order = append(order, name)
			}
			byRunner[name] = append(byRunner[name], v)
		}
	}

	out := make([]series, 0, len(order))
	for _, name := range order {
		out = append(out, series{runner: name, values: byRunner[name]})
	}
	return out
}

func renderMeasurement(all []series, measurement, path string) error {
	p := plot.New()
	p.Title.Text = measurement + " by run"
	p.X.Label.Text = "run"
	p.Y.Label.Text = measurement

	for i, s := range all {
		pts := make(plotter.XYs, len(s.values))
		for j, v := range s.values {
			pts[j].X = float64(j + 1)
			pts[j].Y = v
		}

		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("plotting %s: %w", s.runner, err)
		}
		c := palette[i%len(palette)]
		line.Color = c
		line.Width = vg.Points(2)
		points.Color = c
		p.Add(line, points)
		p.Legend.Add(s.runner, line, points)
	}
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving chart %s: %w", path, err)
	}
	return nil
}

// runnerStats summarises one runner's series for the HTML page.
type runnerStats struct {
	Runner      string
	Measurement string
	Count       int
	Min         float64
	Mean        float64
	Max         float64
}

func summarize(measurement string, s series) runnerStats {
	st := runnerStats{
		Runner:      s.runner,
		Measurement: measurement,
		Count:       len(s.values),
		Min:         math.Inf(1),
		Max:         math.Inf(-1),
	}
	var sum float64
	for _, v := range s.values {
		sum += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	st.Mean = sum / float64(len(s.values))
	return st
}

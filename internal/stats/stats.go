// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/verte-zerg/thermopack/internal/model"
)

const (
	sparkChars = " .:-=+*#%@"
	trendWidth = 24
)

// WindowStats computes size, min, max and mean per room of every window.
// names[r] labels room slot r; missing names fall back to "Room <r+1>".
func WindowStats(windows []model.PackedWindow, names []string) []model.WindowStat {
	var out []model.WindowStat
	for _, win := range windows {
		for r := 0; r < win.RoomCount(); r++ {
			values, _ := win.Room(r)
			ws := model.WindowStat{
				Window: win.Window.Label,
				Room:   r,
				Name:   roomName(names, r),
				Size:   len(values),
			}
			ws.MinC, ws.MaxC, ws.MeanC = summarize(values)
			out = append(out, ws)
		}
	}
	return out
}

func roomName(names []string, r int) string {
	if r < len(names) && names[r] != "" {
		return names[r]
	}
	return fmt.Sprintf("Room %d", r+1)
}

func summarize(values []float64) (minVal, maxVal, mean float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal = values[0], values[0]
	var sum float64
	for _, v := range values {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
		sum += v
	}
	return minVal, maxVal, sum / float64(len(values))
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal, _ := summarize(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderWindowSummary prints one table per window with a trend column.
func RenderWindowSummary(w io.Writer, windows []model.PackedWindow, names []string) error {
	if len(windows) == 0 {
		_, err := fmt.Fprintln(w, "No windows packed.")
		return err
	}
	for _, win := range windows {
		if _, err := fmt.Fprintf(w, "Window %s (%dh, budget %d, %d points)\n",
			win.Window.Label, win.Window.LookbackHours, win.Window.PointBudget, len(win.Values)); err != nil {
			return err
		}
		rows := make([][]string, 0, win.RoomCount())
		for _, ws := range WindowStats([]model.PackedWindow{win}, names) {
			values, _ := win.Room(ws.Room)
			rows = append(rows, append(statCells(ws), Sparkline(resampleSeries(values, trendWidth))))
		}
		headers := []string{"Room", "Points", "Min °C", "Max °C", "Mean °C", "Trend"}
		if err := writeTable(w, headers, rows, map[int]bool{1: true, 2: true, 3: true, 4: true}); err != nil {
			return err
		}
	}
	return nil
}

// RenderStatTable prints recorded window statistics.
func RenderStatTable(w io.Writer, stats []model.WindowStat) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(w, "No window statistics recorded.")
		return err
	}
	rows := make([][]string, 0, len(stats))
	for _, ws := range stats {
		rows = append(rows, append([]string{ws.Window}, statCells(ws)...))
	}
	headers := []string{"Window", "Room", "Points", "Min °C", "Max °C", "Mean °C"}
	return writeTable(w, headers, rows, map[int]bool{2: true, 3: true, 4: true, 5: true})
}

func statCells(ws model.WindowStat) []string {
	if ws.Size == 0 {
		return []string{ws.Name, "0", "-", "-", "-"}
	}
	return []string{
		ws.Name,
		fmt.Sprintf("%d", ws.Size),
		fmt.Sprintf("%.2f", ws.MinC),
		fmt.Sprintf("%.2f", ws.MaxC),
		fmt.Sprintf("%.2f", ws.MeanC),
	}
}

// RenderRuns prints recorded runs, newest first.
func RenderRuns(w io.Writer, runs []model.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.Kind,
			run.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", run.Rooms),
			fmt.Sprintf("%d", run.Points),
			FormatBytes(run.ArtifactBytes),
			run.ArtifactPath,
		})
	}
	headers := []string{"ID", "Kind", "Finished", "Rooms", "Points", "Size", "Artifact"}
	return writeTable(w, headers, rows, map[int]bool{3: true, 4: true, 5: true})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatBytes renders an artifact size in B or KB.
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f KB", float64(n)/1024)
}

func writeTable(w io.Writer, headers []string, rows [][]string, rightAlign map[int]bool) error {
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// WindowSeries splits a packed window into one plot series per room slot.
func WindowSeries(win model.PackedWindow, names []string) []Series {
	out := make([]Series, 0, win.RoomCount())
	for r := 0; r < win.RoomCount(); r++ {
		values, _ := win.Room(r)
		out = append(out, Series{Name: roomName(names, r), Values: values})
	}
	return out
}

// RenderProfiles prints the isolation profile catalog.
func RenderProfiles(w io.Writer, profiles []model.IsolationProfile) error {
	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, []string{
			p.Key,
			fmt.Sprintf("%.2f", p.ThermalInertia),
			fmt.Sprintf("%.2f", p.ExternalInfluence),
			fmt.Sprintf("%.2f", p.HeatingEfficiency),
			fmt.Sprintf("%.0f-%.0f", p.ComfortMinC, p.ComfortMaxC),
			p.Description,
		})
	}
	headers := []string{"Key", "Inertia", "External", "Heating", "Comfort °C", "Description"}
	return writeTable(w, headers, rows, map[int]bool{1: true, 2: true, 3: true, 4: true})
}

// RenderPrediction prints one predicted temperature per room.
func RenderPrediction(w io.Writer, at time.Time, names []string, predicted []float64) error {
	if _, err := fmt.Fprintf(w, "Prediction for %s\n\n", at.Format("2006-01-02 15:04")); err != nil {
		return err
	}
	rows := make([][]string, 0, len(predicted))
	for r, v := range predicted {
		rows = append(rows, []string{roomName(names, r), fmt.Sprintf("%.2f", v)})
	}
	return writeTable(w, []string{"Room", "Predicted °C"}, rows, map[int]bool{1: true})
}

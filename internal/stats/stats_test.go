package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/thermopack/internal/model"
)

func sampleWindow() model.PackedWindow {
	return model.PackedWindow{
		Window:  model.RetentionWindow{Label: "short", LookbackHours: 24, PointBudget: 48},
		Values:  []float64{20, 21, 22, 18.5},
		Ages:    []float64{2, 1, 0, 0},
		Offsets: []int{0, 3, 4},
		Sizes:   []int{3, 1, 0},
	}
}

func TestWindowStats(t *testing.T) {
	stats := WindowStats([]model.PackedWindow{sampleWindow()}, []string{"Kitchen"})
	if len(stats) != 3 {
		t.Fatalf("expected 3 stats, got %d", len(stats))
	}
	first := stats[0]
	if first.Name != "Kitchen" || first.Size != 3 || first.MinC != 20 || first.MaxC != 22 || first.MeanC != 21 {
		t.Fatalf("unexpected first stat: %+v", first)
	}
	if stats[1].Name != "Room 2" || stats[1].MeanC != 18.5 {
		t.Fatalf("unexpected second stat: %+v", stats[1])
	}
	if stats[2].Size != 0 || stats[2].MeanC != 0 {
		t.Fatalf("expected empty third stat: %+v", stats[2])
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 5, 10}); got != " +@" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{3, 3}); got != "++" {
		t.Fatalf("unexpected flat sparkline %q", got)
	}
	if got := Sparkline(nil); got != "" {
		t.Fatalf("expected empty sparkline, got %q", got)
	}
}

func TestRenderWindowSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderWindowSummary(&buf, []model.PackedWindow{sampleWindow()}, []string{"Kitchen", "Bath", "Attic"}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Window short (24h, budget 48, 4 points)", "Mean °C", "Kitchen", "22.00", "Attic"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "Attic        0      -") {
		t.Fatalf("expected dashes for empty room:\n%s", out)
	}
}

func TestRenderRuns(t *testing.T) {
	var buf bytes.Buffer
	runs := []model.RunRecord{{
		ID:            "0f8fad5b-d9cb-469f-a165-70867728950e",
		Kind:          "export",
		FinishedAt:    time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
		Rooms:         3,
		Points:        2500,
		ArtifactPath:  "RoomPredictor/csv_data.h",
		ArtifactBytes: 20480,
	}}
	if err := RenderRuns(&buf, runs); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"0f8fad5b ", "export", "20.00 KB", "RoomPredictor/csv_data.h"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := RenderRuns(&buf, nil); err != nil || buf.String() != "No runs recorded.\n" {
		t.Fatalf("unexpected empty output %q (%v)", buf.String(), err)
	}
}

func TestPlotSeries(t *testing.T) {
	var buf bytes.Buffer
	err := PlotSeries(&buf, "Window short", []Series{
		{Name: "Kitchen", Values: []float64{19, 20, 21, 20, 19}},
		{Name: "Bath", Values: []float64{18, 18, 22}},
		{Name: "Empty"},
	}, 12, 4)
	if err != nil {
		t.Fatalf("plot: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1+4+1 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Window short" {
		t.Fatalf("unexpected title %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], " 22.0°C │ ") || !strings.HasPrefix(lines[4], " 18.0°C │ ") {
		t.Fatalf("unexpected axis labels:\n%s", buf.String())
	}
	if !strings.HasSuffix(lines[5], "Kitchen, Bath") {
		t.Fatalf("unexpected legend %q", lines[5])
	}
	for _, line := range lines[1:5] {
		if n := len([]rune(line)); n != axisLabelWidth+3+12 {
			t.Fatalf("expected %d runes, got %d in %q", axisLabelWidth+3+12, n, line)
		}
	}
}

func TestPlotWidthFor(t *testing.T) {
	if got := PlotWidthFor(80); got != 80-axisLabelWidth-3 {
		t.Fatalf("unexpected width %d", got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
}

func TestResampleSeries(t *testing.T) {
	got := resampleSeries([]float64{1, 2, 3, 4}, 2)
	if len(got) != 2 || got[0] != 1.5 || got[1] != 3.5 {
		t.Fatalf("unexpected shrink %v", got)
	}
	got = resampleSeries([]float64{0, 10}, 3)
	if len(got) != 3 || got[1] != 5 {
		t.Fatalf("unexpected stretch %v", got)
	}
}

func TestWindowSeriesNamesSlots(t *testing.T) {
	got := WindowSeries(sampleWindow(), []string{"Kitchen"})
	if len(got) != 3 || got[0].Name != "Kitchen" || got[2].Name != "Room 3" {
		t.Fatalf("unexpected series %+v", got)
	}
	if len(got[0].Values) != 3 || len(got[2].Values) != 0 {
		t.Fatalf("unexpected slices %+v", got)
	}
}

func TestRenderPrediction(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)
	if err := RenderPrediction(&buf, at, []string{"Kitchen"}, []float64{21.456, 17}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Prediction for 2024-01-15 12:00", "Kitchen", "21.46", "Room 2", "17.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderProfiles(t *testing.T) {
	var buf bytes.Buffer
	err := RenderProfiles(&buf, []model.IsolationProfile{{
		Key: "good", Description: "Recent insulation", ThermalInertia: 0.8,
		ExternalInfluence: 0.2, HeatingEfficiency: 0.9, ComfortMinC: 19, ComfortMaxC: 22,
	}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Key", "good", "0.80", "19-22", "Recent insulation"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, buf.String())
		}
	}
}

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/thermopack/internal/model"
	"github.com/verte-zerg/thermopack/internal/store"
	"github.com/verte-zerg/thermopack/internal/weights"
)

type fakeTrainer struct {
	calls int
	err   error
}

func (f *fakeTrainer) Train(ctx context.Context, rooms []model.RoomSeries) (weights.ModelWeights, error) {
	f.calls++
	if f.err != nil {
		return weights.ModelWeights{}, f.err
	}
	r := len(rooms)
	return weights.ModelWeights{
		W0: mat.NewDense(weights.Inputs, weights.Hidden, nil),
		B0: mat.NewVecDense(weights.Hidden, nil),
		W1: mat.NewDense(weights.Hidden, weights.Hidden, nil),
		B1: mat.NewVecDense(weights.Hidden, nil),
		W2: mat.NewDense(weights.Hidden, r, nil),
		B2: mat.NewVecDense(r, nil),
	}, nil
}

type fakeRecorder struct {
	runs []model.RunRecord
}

func (f *fakeRecorder) InsertRun(ctx context.Context, run model.RunRecord, windows []model.WindowStat) (string, error) {
	f.runs = append(f.runs, run)
	return "id", nil
}

func newRequest(t *testing.T) Request {
	t.Helper()
	dir := t.TempDir()
	return Request{
		DataDir: filepath.Join(dir, "data"),
		Rooms: []model.RoomConfig{
			{ID: 1, Name: "Kitchen", Profile: "good"},
			{ID: 2, Name: "Attic", Profile: "poor"},
		},
		Start:           time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Days:            2,
		IntervalMinutes: 60,
		Seed:            42,
		PackedHeader:    filepath.Join(dir, "out", "csv_data.h"),
		WeightsHeader:   filepath.Join(dir, "out", "neural_weights.h"),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestGenerateReplacesRoomFiles(t *testing.T) {
	req := newRequest(t)
	stale := filepath.Join(req.DataDir, "Room9_data.csv")
	writeFile(t, stale, "Timestamp,Temperature\n")

	res, err := New(req).Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	require.Equal(t, 2*2*24, res.Points)
	require.NoFileExists(t, stale)
	require.FileExists(t, filepath.Join(req.DataDir, "Room1_data.csv"))
	require.FileExists(t, filepath.Join(req.DataDir, "Room2_data.csv"))
}

func TestGenerateIsReproducible(t *testing.T) {
	req := newRequest(t)
	p := New(req)
	_, err := p.Generate(context.Background())
	require.NoError(t, err)
	first := readFile(t, filepath.Join(req.DataDir, "Room1_data.csv"))

	_, err = p.Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, readFile(t, filepath.Join(req.DataDir, "Room1_data.csv")))
}

func TestGenerateValidatesBeforeRemoving(t *testing.T) {
	req := newRequest(t)
	stale := filepath.Join(req.DataDir, "Room1_data.csv")
	writeFile(t, stale, "Timestamp,Temperature\n")

	bad := req
	bad.Days = 0
	_, err := New(bad).Generate(context.Background())
	require.ErrorIs(t, err, model.ErrInvalidParameter)
	require.FileExists(t, stale)

	bad = req
	bad.Rooms = []model.RoomConfig{{ID: 1, Profile: "cardboard"}}
	_, err = New(bad).Generate(context.Background())
	require.ErrorIs(t, err, model.ErrUnknownProfile)
	require.FileExists(t, stale)
}

func TestGenerateImportsSourceAndSkipsMissing(t *testing.T) {
	req := newRequest(t)
	src := filepath.Join(t.TempDir(), "export.csv")
	writeFile(t, src, "Date,Temp\n2024-01-01 00:00:00,20.5\n")
	req.Rooms = []model.RoomConfig{
		{ID: 1, Name: "Imported", Source: src},
		{ID: 2, Name: "Gone", Source: filepath.Join(t.TempDir(), "missing.csv")},
	}

	res, err := New(req).Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	require.Equal(t, []int{2}, res.Skipped)
	require.Equal(t, readFile(t, src), readFile(t, filepath.Join(req.DataDir, "Room1_data.csv")))
}

func TestLoadSkipsRoomsWithoutColumns(t *testing.T) {
	req := newRequest(t)
	p := New(req)
	_, err := p.Generate(context.Background())
	require.NoError(t, err)
	writeFile(t, filepath.Join(req.DataDir, "Room3_data.csv"), "foo,bar\n1,2\n")

	loaded, err := p.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded.Rooms, 2)
	require.Equal(t, []string{"Kitchen", "Attic"}, loaded.Names)
}

func TestLoadEmptyDirectory(t *testing.T) {
	_, err := New(newRequest(t)).Load(context.Background())
	require.ErrorIs(t, err, model.ErrEmptyInput)
}

func TestExportKeepsPreviousArtifactOnEmptyInput(t *testing.T) {
	req := newRequest(t)
	writeFile(t, req.PackedHeader, "previous")

	_, err := New(req).Export(context.Background())
	require.ErrorIs(t, err, model.ErrEmptyInput)
	require.Equal(t, "previous", readFile(t, req.PackedHeader))
}

func TestExportPublishesAndRecords(t *testing.T) {
	req := newRequest(t)
	rec := &fakeRecorder{}
	p := New(req, WithRecorder(rec))
	_, err := p.Generate(context.Background())
	require.NoError(t, err)

	res, err := p.Export(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Windows, 4)
	require.Equal(t, []string{"Kitchen", "Attic"}, res.Names)
	require.Len(t, res.Stats, 4*2)
	require.Positive(t, res.Bytes)

	text := readFile(t, req.PackedHeader)
	require.Contains(t, text, "#define CSV_NUM_ROOMS 2\n")
	require.NotContains(t, text, "Generated:")

	require.Len(t, rec.runs, 2)
	require.Equal(t, store.KindGenerate, rec.runs[0].Kind)
	require.Equal(t, store.KindExport, rec.runs[1].Kind)
	require.Equal(t, res.Bytes, rec.runs[1].ArtifactBytes)
}

func TestWeightsRequiresTrainer(t *testing.T) {
	_, err := New(newRequest(t)).Weights(context.Background())
	require.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestRunProducesBothHeaders(t *testing.T) {
	req := newRequest(t)
	trainer := &fakeTrainer{}
	res, err := New(req, WithTrainer(trainer)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, trainer.calls)
	require.NotNil(t, res.Weights)
	require.Equal(t, 2, res.Weights.Weights.Rooms())
	require.Contains(t, readFile(t, req.WeightsHeader), "#define NUM_ROOMS 2\n")
	require.Contains(t, readFile(t, req.PackedHeader), "#define CSV_NUM_ROOMS 2\n")
}

func TestRunStopsOnTrainingFailure(t *testing.T) {
	req := newRequest(t)
	trainer := &fakeTrainer{err: model.ErrShapeMismatch}
	_, err := New(req, WithTrainer(trainer)).Run(context.Background())
	require.ErrorIs(t, err, model.ErrShapeMismatch)
	require.NoFileExists(t, req.PackedHeader)
	require.NoFileExists(t, req.WeightsHeader)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(newRequest(t)).Generate(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateKeepsSourceInsideDataDir(t *testing.T) {
	req := newRequest(t)
	src := filepath.Join(req.DataDir, "Room1_data.csv")
	content := "Date,Temp\n2024-01-01 00:00:00,20.5\n"
	writeFile(t, src, content)
	req.Rooms = []model.RoomConfig{
		{ID: 1, Name: "Imported", Source: src},
		{ID: 2, Name: "Attic", Profile: "good"},
	}

	res, err := New(req).Generate(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Skipped)
	require.Len(t, res.Files, 2)
	require.Equal(t, content, readFile(t, src))
}

func TestGenerateFailureLeavesPreviousFiles(t *testing.T) {
	req := newRequest(t)
	previous := filepath.Join(req.DataDir, "Room1_data.csv")
	writeFile(t, previous, "Timestamp,Temperature\n2024-01-01 00:00:00,19\n")
	unreadable := t.TempDir()
	req.Rooms = []model.RoomConfig{
		{ID: 1, Name: "Kitchen", Profile: "good"},
		{ID: 2, Name: "Broken", Source: unreadable},
	}

	_, err := New(req).Generate(context.Background())
	require.ErrorIs(t, err, model.ErrIOFailure)
	require.Equal(t, "Timestamp,Temperature\n2024-01-01 00:00:00,19\n", readFile(t, previous))
	require.NoFileExists(t, filepath.Join(req.DataDir, "Room2_data.csv"))
}

func TestExportSkipsNonFiniteReadings(t *testing.T) {
	req := newRequest(t)
	writeFile(t, filepath.Join(req.DataDir, "Room1_data.csv"), strings.Join([]string{
		"Timestamp,Temperature",
		"2024-01-01 00:00:00,20.5",
		"2024-01-01 01:00:00,nan",
		"2024-01-01 02:00:00,Inf",
	}, "\n")+"\n")

	res, err := New(req).Export(context.Background())
	require.NoError(t, err)
	require.Equal(t, []float64{20.5}, res.Windows[0].Values)

	text := readFile(t, req.PackedHeader)
	require.NotContains(t, text, "NaN")
	require.NotContains(t, text, "Inf")
	require.Contains(t, text, "  20.50f\n};")
}

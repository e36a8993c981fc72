// Package pipeline runs the generate, train and export stages over one
// immutable request.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/thermopack/internal/atomicfile"
	"github.com/verte-zerg/thermopack/internal/generator"
	"github.com/verte-zerg/thermopack/internal/header"
	"github.com/verte-zerg/thermopack/internal/model"
	"github.com/verte-zerg/thermopack/internal/packer"
	"github.com/verte-zerg/thermopack/internal/profile"
	"github.com/verte-zerg/thermopack/internal/series"
	"github.com/verte-zerg/thermopack/internal/stats"
	"github.com/verte-zerg/thermopack/internal/store"
	"github.com/verte-zerg/thermopack/internal/weights"
)

// Request is the resolved, immutable input of every stage.
type Request struct {
	DataDir         string
	Rooms           []model.RoomConfig
	Start           time.Time
	Days            int
	IntervalMinutes int
	Seed            int64
	Columns         series.Columns
	Windows         []model.RetentionWindow
	PackedHeader    string
	WeightsHeader   string
	// GeneratedAt is stamped into headers when non-zero.
	GeneratedAt time.Time
}

// Trainer produces network weights from the loaded room series.
type Trainer interface {
	Train(ctx context.Context, rooms []model.RoomSeries) (weights.ModelWeights, error)
}

// Recorder persists finished runs.
type Recorder interface {
	InsertRun(ctx context.Context, run model.RunRecord, windows []model.WindowStat) (string, error)
}

// Pipeline executes stages for one request.
type Pipeline struct {
	req      Request
	trainer  Trainer
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTrainer sets the training capability used by Weights and Run.
func WithTrainer(t Trainer) Option {
	return func(p *Pipeline) { p.trainer = t }
}

// WithRecorder records every published artifact.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New returns a pipeline for req. Windows default to the packer catalog and
// column lists left empty fall back to the built-in synonyms.
func New(req Request, opts ...Option) *Pipeline {
	if len(req.Windows) == 0 {
		req.Windows = packer.Windows()
	}
	req.Columns = series.DefaultColumns().WithOverrides(req.Columns)
	p := &Pipeline{
		req:    req,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Request returns the request the pipeline runs.
func (p *Pipeline) Request() Request {
	return p.req
}

// GenerateResult describes the room files written by Generate.
type GenerateResult struct {
	Files   []series.RoomFile
	Skipped []int
	Points  int
}

// Generate replaces every room file of the data directory with a generated
// or imported series. Every room is staged in memory before the data
// directory is touched, and stale room files are removed only after all new
// files are published.
func (p *Pipeline) Generate(ctx context.Context) (GenerateResult, error) {
	started := p.now()
	if p.req.Days < 1 {
		return GenerateResult{}, fmt.Errorf("%w: days must be >= 1, got %d", model.ErrInvalidParameter, p.req.Days)
	}
	if p.req.IntervalMinutes < 1 {
		return GenerateResult{}, fmt.Errorf("%w: interval must be >= 1 minute, got %d", model.ErrInvalidParameter, p.req.IntervalMinutes)
	}
	if len(p.req.Rooms) == 0 {
		return GenerateResult{}, fmt.Errorf("%w: no rooms configured", model.ErrInvalidParameter)
	}
	for _, room := range p.req.Rooms {
		if room.Source != "" {
			continue
		}
		if _, err := profile.Lookup(room.Profile); err != nil {
			return GenerateResult{}, fmt.Errorf("room %d: %w", room.ID, err)
		}
	}

	staged, result, err := p.stageRooms(ctx)
	if err != nil {
		return GenerateResult{}, err
	}
	old, err := series.Discover(p.req.DataDir)
	if err != nil {
		return GenerateResult{}, err
	}

	written := make(map[string]bool, len(staged))
	for _, room := range staged {
		if err := ctx.Err(); err != nil {
			return GenerateResult{}, err
		}
		n, err := atomicfile.WriteBytes(room.file.Path, room.data)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("room %d: %w", room.file.ID, err)
		}
		written[filepath.Clean(room.file.Path)] = true
		p.logger.Info("room written", "room", room.file.ID, "path", room.file.Path, "bytes", n)
		result.Files = append(result.Files, room.file)
	}
	for _, f := range old {
		if written[filepath.Clean(f.Path)] {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			return GenerateResult{}, fmt.Errorf("%w: failed to remove %s: %v", model.ErrIOFailure, f.Path, err)
		}
		p.logger.Debug("stale room file removed", "path", f.Path)
	}

	p.record(ctx, model.RunRecord{
		Kind:         store.KindGenerate,
		StartedAt:    started,
		Rooms:        len(result.Files),
		Points:       result.Points,
		ArtifactPath: p.req.DataDir,
		Seed:         p.req.Seed,
	}, nil)
	return result, nil
}

type stagedRoom struct {
	file series.RoomFile
	data []byte
}

// stageRooms generates or reads every room without writing anything. Import
// sources are read here, so a source inside the data directory survives the
// replacement of its room files.
func (p *Pipeline) stageRooms(ctx context.Context) ([]stagedRoom, GenerateResult, error) {
	var result GenerateResult
	staged := make([]stagedRoom, 0, len(p.req.Rooms))
	for _, room := range p.req.Rooms {
		if err := ctx.Err(); err != nil {
			return nil, GenerateResult{}, err
		}
		file := series.RoomFile{ID: room.ID, Path: p.roomPath(room.ID)}
		if room.Source != "" {
			data, err := os.ReadFile(room.Source)
			if errors.Is(err, os.ErrNotExist) {
				p.logger.Warn("room source missing, skipping", "room", room.ID, "source", room.Source)
				result.Skipped = append(result.Skipped, room.ID)
				continue
			}
			if err != nil {
				return nil, GenerateResult{}, fmt.Errorf("room %d: %w: failed to read %s: %v", room.ID, model.ErrIOFailure, room.Source, err)
			}
			p.logger.Info("room imported", "room", room.ID, "source", room.Source)
			staged = append(staged, stagedRoom{file: file, data: data})
			continue
		}

		s, err := generator.Generate(model.GenerateParams{
			ProfileKey:      room.Profile,
			Start:           p.req.Start,
			Days:            p.req.Days,
			IntervalMinutes: p.req.IntervalMinutes,
			Seed:            p.req.Seed + int64(room.ID),
		})
		if err != nil {
			return nil, GenerateResult{}, fmt.Errorf("room %d: %w", room.ID, err)
		}
		var buf bytes.Buffer
		if err := series.Encode(&buf, s); err != nil {
			return nil, GenerateResult{}, fmt.Errorf("room %d: %w", room.ID, err)
		}
		p.logger.Info("room generated", "room", room.ID, "profile", room.Profile, "samples", len(s.Samples))
		staged = append(staged, stagedRoom{file: file, data: buf.Bytes()})
		result.Points += len(s.Samples)
	}
	return staged, result, nil
}

func (p *Pipeline) roomPath(id int) string {
	return filepath.Join(p.req.DataDir, series.FileName(id))
}

// Loaded holds the usable room series of the data directory.
type Loaded struct {
	Rooms []model.RoomSeries
	Names []string
}

// Load reads every room file of the data directory in room id order. Rooms
// without a timestamp or temperature column are skipped with a warning; an
// empty result fails with ErrEmptyInput.
func (p *Pipeline) Load(ctx context.Context) (Loaded, error) {
	files, err := series.Discover(p.req.DataDir)
	if err != nil {
		return Loaded{}, err
	}
	names := make(map[int]string, len(p.req.Rooms))
	for _, room := range p.req.Rooms {
		names[room.ID] = room.Name
	}

	var loaded Loaded
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return Loaded{}, err
		}
		res, err := series.Read(f.Path, p.req.Columns)
		if errors.Is(err, model.ErrMissingColumn) {
			p.logger.Warn("room skipped", "room", f.ID, "path", f.Path, "err", err)
			continue
		}
		if err != nil {
			return Loaded{}, fmt.Errorf("room %d: %w", f.ID, err)
		}
		if res.SkippedRows > 0 || res.Duplicates > 0 {
			p.logger.Warn("room rows dropped", "room", f.ID, "unparsable", res.SkippedRows, "duplicates", res.Duplicates)
		}
		s := res.Series
		s.RoomID = f.ID
		s.Name = names[f.ID]
		if s.Name == "" {
			s.Name = fmt.Sprintf("Room %d", f.ID)
		}
		loaded.Rooms = append(loaded.Rooms, s)
		loaded.Names = append(loaded.Names, s.Name)
	}
	if len(loaded.Rooms) == 0 {
		return Loaded{}, fmt.Errorf("%w: no usable room series in %s", model.ErrEmptyInput, p.req.DataDir)
	}
	return loaded, nil
}

// ExportResult describes a published packed header.
type ExportResult struct {
	Windows []model.PackedWindow
	Names   []string
	Stats   []model.WindowStat
	Path    string
	Bytes   int64
}

// Pack loads the room series and packs every window without publishing.
func (p *Pipeline) Pack(ctx context.Context) (ExportResult, error) {
	loaded, err := p.Load(ctx)
	if err != nil {
		return ExportResult{}, err
	}
	windows, err := packer.PackAll(loaded.Rooms, p.req.Windows)
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{
		Windows: windows,
		Names:   loaded.Names,
		Stats:   stats.WindowStats(windows, loaded.Names),
		Path:    p.req.PackedHeader,
	}, nil
}

// Export packs every window and atomically publishes the packed header.
func (p *Pipeline) Export(ctx context.Context) (ExportResult, error) {
	started := p.now()
	result, err := p.Pack(ctx)
	if err != nil {
		return ExportResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ExportResult{}, err
	}
	n, err := header.PublishPacked(p.req.PackedHeader, result.Windows, len(result.Names), header.Options{GeneratedAt: p.req.GeneratedAt})
	if err != nil {
		return ExportResult{}, err
	}
	result.Bytes = n
	p.logger.Info("packed header published", "path", p.req.PackedHeader, "bytes", n, "rooms", len(result.Names))

	points := 0
	for _, win := range result.Windows {
		points += len(win.Values)
	}
	p.record(ctx, model.RunRecord{
		Kind:          store.KindExport,
		StartedAt:     started,
		Rooms:         len(result.Names),
		Points:        points,
		ArtifactPath:  p.req.PackedHeader,
		ArtifactBytes: n,
		Seed:          p.req.Seed,
	}, result.Stats)
	return result, nil
}

// WeightsResult describes a published weights header.
type WeightsResult struct {
	Weights weights.ModelWeights
	Path    string
	Bytes   int64
}

// Weights trains on the loaded room series and atomically publishes the
// weights header.
func (p *Pipeline) Weights(ctx context.Context) (WeightsResult, error) {
	started := p.now()
	if p.trainer == nil {
		return WeightsResult{}, fmt.Errorf("%w: no trainer configured", model.ErrInvalidParameter)
	}
	loaded, err := p.Load(ctx)
	if err != nil {
		return WeightsResult{}, err
	}
	m, err := p.trainer.Train(ctx, loaded.Rooms)
	if err != nil {
		return WeightsResult{}, fmt.Errorf("training failed: %w", err)
	}
	if err := m.Validate(len(loaded.Rooms)); err != nil {
		return WeightsResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return WeightsResult{}, err
	}
	n, err := header.PublishWeights(p.req.WeightsHeader, m, header.Options{GeneratedAt: p.req.GeneratedAt})
	if err != nil {
		return WeightsResult{}, err
	}
	p.logger.Info("weights header published", "path", p.req.WeightsHeader, "bytes", n, "params", m.ParamCount())
	p.record(ctx, model.RunRecord{
		Kind:          store.KindWeights,
		StartedAt:     started,
		Rooms:         m.Rooms(),
		Points:        m.ParamCount(),
		ArtifactPath:  p.req.WeightsHeader,
		ArtifactBytes: n,
		Seed:          p.req.Seed,
	}, nil)
	return WeightsResult{Weights: m, Path: p.req.WeightsHeader, Bytes: n}, nil
}

// RunResult collects the outcome of every stage of Run.
type RunResult struct {
	Generate GenerateResult
	Weights  *WeightsResult
	Export   ExportResult
}

// Run executes generate, train and export in order. Training is skipped
// when no trainer is configured.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	var result RunResult
	gen, err := p.Generate(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("generate: %w", err)
	}
	result.Generate = gen

	if p.trainer != nil {
		w, err := p.Weights(ctx)
		if err != nil {
			return RunResult{}, fmt.Errorf("train: %w", err)
		}
		result.Weights = &w
	} else {
		p.logger.Info("no trainer configured, skipping training")
	}

	exp, err := p.Export(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("export: %w", err)
	}
	result.Export = exp
	return result, nil
}

func (p *Pipeline) record(ctx context.Context, run model.RunRecord, windows []model.WindowStat) {
	if p.recorder == nil {
		return
	}
	run.FinishedAt = p.now()
	id, err := p.recorder.InsertRun(ctx, run, windows)
	if err != nil {
		p.logger.Warn("failed to record run", "kind", run.Kind, "err", err)
		return
	}
	p.logger.Debug("run recorded", "id", id, "kind", run.Kind)
}

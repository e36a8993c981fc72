// Package model defines shared data structures.
package model

import "time"

// IsolationProfile describes the thermal behavior of a building envelope.
type IsolationProfile struct {
	Key                string
	Description        string
	ThermalInertia     float64
	ExternalInfluence  float64
	HeatingEfficiency  float64
	ComfortMinC        float64
	ComfortMaxC        float64
	DailyVariationC    float64
	SeasonalAmplitudeC float64
}

// ComfortMidpoint returns the middle of the comfort range.
func (p IsolationProfile) ComfortMidpoint() float64 {
	return (p.ComfortMinC + p.ComfortMaxC) / 2
}

// Sample is one reading of a room series.
type Sample struct {
	Timestamp   time.Time
	RoomC       float64
	ExteriorC   float64
	HasExterior bool
	HumidityPct float64
	HasHumidity bool
}

// RoomSeries is the time-ordered sample sequence of one room.
type RoomSeries struct {
	RoomID  int
	Name    string
	Samples []Sample
}

// Latest returns the maximum timestamp of the series.
func (s RoomSeries) Latest() time.Time {
	var latest time.Time
	for _, sample := range s.Samples {
		if sample.Timestamp.After(latest) {
			latest = sample.Timestamp
		}
	}
	return latest
}

// RetentionWindow is one exported granularity.
type RetentionWindow struct {
	Label         string
	LookbackHours int
	PointBudget   int
}

// Lookback returns the window duration.
func (w RetentionWindow) Lookback() time.Duration {
	return time.Duration(w.LookbackHours) * time.Hour
}

// PackedWindow holds every room of one window in linear arrays.
// Room r occupies [Offsets[r], Offsets[r]+Sizes[r]) of Values and Ages.
type PackedWindow struct {
	Window  RetentionWindow
	Values  []float64
	Ages    []float64
	Offsets []int
	Sizes   []int
}

// RoomCount returns the number of room slots.
func (p PackedWindow) RoomCount() int {
	return len(p.Sizes)
}

// Room returns the value and age sub-ranges of room r.
func (p PackedWindow) Room(r int) (values, ages []float64) {
	start := p.Offsets[r]
	end := start + p.Sizes[r]
	return p.Values[start:end], p.Ages[start:end]
}

// RoomConfig defines one room of a generation run.
type RoomConfig struct {
	ID      int
	Name    string
	Profile string
	Source  string
}

// GenerateParams defines one synthetic series request.
type GenerateParams struct {
	ProfileKey      string
	Start           time.Time
	Days            int
	IntervalMinutes int
	Seed            int64
}

// RunRecord summarizes one recorded pipeline run.
type RunRecord struct {
	ID            string
	Kind          string
	StartedAt     time.Time
	FinishedAt    time.Time
	Rooms         int
	Points        int
	ArtifactPath  string
	ArtifactBytes int64
	Seed          int64
}

// WindowStat summarizes one room inside one packed window.
type WindowStat struct {
	Window string
	Room   int
	Name   string
	Size   int
	MinC   float64
	MaxC   float64
	MeanC  float64
}

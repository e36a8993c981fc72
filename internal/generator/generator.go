// Package generator builds synthetic room temperature series.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/verte-zerg/thermopack/internal/model"
	"github.com/verte-zerg/thermopack/internal/profile"
)

const (
	exteriorMeanC      = 12.0
	exteriorSeasonalC  = 15.0
	exteriorDailyC     = 4.0
	exteriorPeakHour   = 15.0
	springEquinoxDay   = 80
	daytimePeakHour    = 14
	initialJitterC     = 1.0
	heatingGain        = 0.5
	summerDriftGain    = 0.2
	summerWarmingShare = 0.3
)

// Generator produces reproducible synthetic room series.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with seed.
func New(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate builds one series for the profile named in params.
// A fresh Generator is seeded from params.Seed so equal params give equal output.
func Generate(params model.GenerateParams) (model.RoomSeries, error) {
	if params.Days < 1 {
		return model.RoomSeries{}, fmt.Errorf("%w: days must be >= 1, got %d", model.ErrInvalidParameter, params.Days)
	}
	if params.IntervalMinutes < 1 {
		return model.RoomSeries{}, fmt.Errorf("%w: interval must be >= 1 minute, got %d", model.ErrInvalidParameter, params.IntervalMinutes)
	}
	p, err := profile.Lookup(params.ProfileKey)
	if err != nil {
		return model.RoomSeries{}, err
	}
	return New(params.Seed).Series(p, params.Start, params.Days, params.IntervalMinutes), nil
}

// Series produces days*24*60/intervalMinutes samples spaced intervalMinutes apart.
func (g *Generator) Series(p model.IsolationProfile, start time.Time, days, intervalMinutes int) model.RoomSeries {
	count := days * 24 * 60 / intervalMinutes
	step := time.Duration(intervalMinutes) * time.Minute
	samples := make([]model.Sample, 0, count)

	roomC := p.ComfortMidpoint() + (g.rnd.Float64()*2-1)*initialJitterC
	ts := start
	for i := 0; i < count; i++ {
		extC := ExteriorTemperature(ts)
		if i > 0 {
			roomC = NextRoomTemperature(roomC, extC, p, ts.Hour(), IsHeatingSeason(ts.Month()))
		}
		samples = append(samples, model.Sample{
			Timestamp:   ts,
			RoomC:       roomC,
			ExteriorC:   extC,
			HasExterior: true,
		})
		ts = ts.Add(step)
	}
	return model.RoomSeries{Samples: samples}
}

// ExteriorTemperature is a smooth seasonal plus daily curve of the timestamp.
func ExteriorTemperature(ts time.Time) float64 {
	seasonAngle := 2 * math.Pi * float64(ts.YearDay()-springEquinoxDay) / 365.0
	hour := float64(ts.Hour()) + float64(ts.Minute())/60.0
	dayAngle := 2 * math.Pi * (hour - exteriorPeakHour + 6) / 24.0
	return exteriorMeanC + exteriorSeasonalC*math.Sin(seasonAngle) + exteriorDailyC*math.Sin(dayAngle)
}

// IsHeatingSeason reports whether heating runs in month (October through April).
func IsHeatingSeason(month time.Month) bool {
	return month >= time.October || month <= time.April
}

// NextRoomTemperature advances the room temperature by one sample.
// It depends only on its arguments.
func NextRoomTemperature(prevC, exteriorC float64, p model.IsolationProfile, hour int, heating bool) float64 {
	daily := p.DailyVariationC / 2 * math.Sin(2*math.Pi*float64(hour-daytimePeakHour+6)/24.0)
	next := prevC + (1-p.ThermalInertia)*p.ExternalInfluence*(exteriorC-prevC)

	if heating {
		setpoint := p.ComfortMidpoint() + daily
		if next < setpoint {
			next += p.HeatingEfficiency * (setpoint - next) * heatingGain
		}
	} else {
		target := p.ComfortMidpoint() + daily + p.SeasonalAmplitudeC*summerWarmingShare
		next += (1 - p.ThermalInertia) * (target - next) * summerDriftGain
	}

	lo := p.ComfortMinC - p.SeasonalAmplitudeC
	hi := p.ComfortMaxC + p.SeasonalAmplitudeC
	return math.Max(lo, math.Min(hi, next))
}

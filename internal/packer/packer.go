// Package packer slices room series into retention windows and packs them
// into linear arrays with an offset table.
package packer

import (
	"fmt"
	"math"

	"github.com/verte-zerg/thermopack/internal/model"
)

// Catalog is the fixed set of retention windows, in export order.
var Catalog = []model.RetentionWindow{
	{Label: "short", LookbackHours: 24, PointBudget: 48},
	{Label: "medium", LookbackHours: 168, PointBudget: 168},
	{Label: "long", LookbackHours: 720, PointBudget: 360},
	{Label: "extended", LookbackHours: 2160, PointBudget: 540},
}

// Windows returns a copy of Catalog.
func Windows() []model.RetentionWindow {
	out := make([]model.RetentionWindow, len(Catalog))
	copy(out, Catalog)
	return out
}

// PackAll packs every window of windows over the same rooms.
func PackAll(rooms []model.RoomSeries, windows []model.RetentionWindow) ([]model.PackedWindow, error) {
	if len(rooms) == 0 {
		return nil, fmt.Errorf("%w: no room series to pack", model.ErrEmptyInput)
	}
	out := make([]model.PackedWindow, 0, len(windows))
	for _, w := range windows {
		packed, err := Pack(rooms, w)
		if err != nil {
			return nil, err
		}
		out = append(out, packed)
	}
	return out, nil
}

// Pack builds the packed arrays of one window.
func Pack(rooms []model.RoomSeries, w model.RetentionWindow) (model.PackedWindow, error) {
	if w.PointBudget < 1 {
		return model.PackedWindow{}, fmt.Errorf("%w: window %q point budget must be >= 1", model.ErrInvalidParameter, w.Label)
	}
	if w.LookbackHours < 0 {
		return model.PackedWindow{}, fmt.Errorf("%w: window %q lookback must be >= 0", model.ErrInvalidParameter, w.Label)
	}

	packed := model.PackedWindow{
		Window:  w,
		Offsets: make([]int, len(rooms)),
		Sizes:   make([]int, len(rooms)),
	}
	offset := 0
	for r, room := range rooms {
		values, ages := sampleRoom(room, w)
		packed.Values = append(packed.Values, values...)
		packed.Ages = append(packed.Ages, ages...)
		packed.Offsets[r] = offset
		packed.Sizes[r] = len(values)
		offset += len(values)
	}
	if packed.Values == nil {
		packed.Values = []float64{}
		packed.Ages = []float64{}
	}
	return packed, nil
}

// sampleRoom returns the room's kept temperatures and their ages in hours,
// both oldest first.
func sampleRoom(room model.RoomSeries, w model.RetentionWindow) (values, ages []float64) {
	if len(room.Samples) == 0 {
		return nil, nil
	}
	now := room.Latest()
	start := now.Add(-w.Lookback())

	filtered := make([]model.Sample, 0, len(room.Samples))
	for _, s := range room.Samples {
		if !s.Timestamp.Before(start) {
			filtered = append(filtered, s)
		}
	}

	indices := SampleIndices(len(filtered), w.PointBudget)
	values = make([]float64, 0, len(indices))
	ages = make([]float64, 0, len(indices))
	for _, idx := range indices {
		s := filtered[idx]
		values = append(values, s.RoomC)
		ages = append(ages, now.Sub(s.Timestamp).Hours())
	}
	return values, ages
}

// SampleIndices selects at most budget strictly increasing indices spread
// uniformly over [0, n-1]. When n <= budget every index is kept. Otherwise the
// first and last index are always part of the selection.
func SampleIndices(n, budget int) []int {
	if n <= 0 || budget <= 0 {
		return nil
	}
	if n <= budget {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if budget == 1 {
		return []int{n - 1}
	}
	step := float64(n-1) / float64(budget-1)
	out := make([]int, 0, budget)
	for i := 0; i < budget; i++ {
		idx := int(math.Round(float64(i) * step))
		if idx > n-1 {
			idx = n - 1
		}
		if len(out) > 0 && idx <= out[len(out)-1] {
			continue
		}
		out = append(out, idx)
	}
	out[len(out)-1] = n - 1
	return out
}

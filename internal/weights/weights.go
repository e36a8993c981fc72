// Package weights holds the trained network record and its embedded-equivalent
// forward pass.
package weights

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/thermopack/internal/model"
)

// Network shape shared with the embedded target.
const (
	Inputs          = 5
	Hidden          = 32
	DefaultHumidity = 50.0
)

// FeatureNames lists the network inputs in order.
var FeatureNames = []string{"temp_ext", "humidity", "season_sin", "season_cos", "time_sin"}

// ModelWeights is the 5 -> 32 -> 32 -> R fully-connected network.
type ModelWeights struct {
	W0 *mat.Dense
	B0 *mat.VecDense
	W1 *mat.Dense
	B1 *mat.VecDense
	W2 *mat.Dense
	B2 *mat.VecDense
}

// Rooms returns the output width R.
func (m ModelWeights) Rooms() int {
	if m.B2 == nil {
		return 0
	}
	return m.B2.Len()
}

// ParamCount returns the number of weights and biases.
func (m ModelWeights) ParamCount() int {
	r := m.Rooms()
	return Inputs*Hidden + Hidden + Hidden*Hidden + Hidden + Hidden*r + r
}

// Validate checks every matrix against the fixed shape for rooms outputs.
func (m ModelWeights) Validate(rooms int) error {
	if rooms < 1 {
		return fmt.Errorf("%w: room count must be >= 1, got %d", model.ErrInvalidParameter, rooms)
	}
	checks := []struct {
		name       string
		m          mat.Matrix
		rows, cols int
	}{
		{"W0", m.W0, Inputs, Hidden},
		{"B0", m.B0, Hidden, 1},
		{"W1", m.W1, Hidden, Hidden},
		{"B1", m.B1, Hidden, 1},
		{"W2", m.W2, Hidden, rooms},
		{"B2", m.B2, rooms, 1},
	}
	for _, c := range checks {
		if isNil(c.m) {
			return fmt.Errorf("%w: %s is missing", model.ErrShapeMismatch, c.name)
		}
		r, cc := c.m.Dims()
		if r != c.rows || cc != c.cols {
			return fmt.Errorf("%w: %s is %dx%d, expected %dx%d", model.ErrShapeMismatch, c.name, r, cc, c.rows, c.cols)
		}
	}
	return nil
}

func isNil(m mat.Matrix) bool {
	switch v := m.(type) {
	case *mat.Dense:
		return v == nil
	case *mat.VecDense:
		return v == nil
	default:
		return m == nil
	}
}

// Forward evaluates the network on one feature vector: ReLU, ReLU, linear.
func (m ModelWeights) Forward(features []float64) ([]float64, error) {
	if len(features) != Inputs {
		return nil, fmt.Errorf("%w: expected %d features, got %d", model.ErrShapeMismatch, Inputs, len(features))
	}
	x := mat.NewVecDense(Inputs, append([]float64(nil), features...))

	h1 := dense(m.W0, m.B0, x)
	relu(h1)
	h2 := dense(m.W1, m.B1, h1)
	relu(h2)
	out := dense(m.W2, m.B2, h2)

	result := make([]float64, out.Len())
	for i := range result {
		result[i] = out.AtVec(i)
	}
	return result, nil
}

// dense computes Wᵀx + b for a weight matrix stored inputs x outputs.
func dense(w *mat.Dense, b *mat.VecDense, x *mat.VecDense) *mat.VecDense {
	_, cols := w.Dims()
	out := mat.NewVecDense(cols, nil)
	out.MulVec(w.T(), x)
	out.AddVec(out, b)
	return out
}

func relu(v *mat.VecDense) {
	for i := 0; i < v.Len(); i++ {
		if v.AtVec(i) < 0 {
			v.SetVec(i, 0)
		}
	}
}

// Features encodes one timestamp and its readings into the network inputs.
// A negative or NaN humidity falls back to DefaultHumidity.
func Features(ts time.Time, exteriorC, humidityPct float64) []float64 {
	if math.IsNaN(humidityPct) || humidityPct < 0 {
		humidityPct = DefaultHumidity
	}
	season := 2 * math.Pi * float64(ts.YearDay()) / 365.0
	hour := float64(ts.Hour()) + float64(ts.Minute())/60.0
	day := 2 * math.Pi * hour / 24.0
	return []float64{exteriorC, humidityPct, math.Sin(season), math.Cos(season), math.Sin(day)}
}

// record is the JSON layout written by the external training job.
type record struct {
	Rooms int         `json:"rooms"`
	W0    [][]float64 `json:"w0"`
	B0    []float64   `json:"b0"`
	W1    [][]float64 `json:"w1"`
	B1    []float64   `json:"b1"`
	W2    [][]float64 `json:"w2"`
	B2    []float64   `json:"b2"`
}

// Load reads a weights record from path.
func Load(path string) (ModelWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelWeights{}, fmt.Errorf("%w: failed to read weights: %v", model.ErrIOFailure, err)
	}
	return Decode(data)
}

// Decode parses and validates a JSON weights record.
func Decode(data []byte) (ModelWeights, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return ModelWeights{}, fmt.Errorf("failed to decode weights: %w", err)
	}
	w0, err := denseFromRows("w0", rec.W0)
	if err != nil {
		return ModelWeights{}, err
	}
	w1, err := denseFromRows("w1", rec.W1)
	if err != nil {
		return ModelWeights{}, err
	}
	w2, err := denseFromRows("w2", rec.W2)
	if err != nil {
		return ModelWeights{}, err
	}
	m := ModelWeights{
		W0: w0,
		B0: vecFrom(rec.B0),
		W1: w1,
		B1: vecFrom(rec.B1),
		W2: w2,
		B2: vecFrom(rec.B2),
	}
	rooms := rec.Rooms
	if rooms == 0 {
		rooms = m.Rooms()
	}
	if err := m.Validate(rooms); err != nil {
		return ModelWeights{}, err
	}
	return m, nil
}

// Encode renders m in the JSON record layout.
func Encode(m ModelWeights) ([]byte, error) {
	if err := m.Validate(m.Rooms()); err != nil {
		return nil, err
	}
	rec := record{
		Rooms: m.Rooms(),
		W0:    rowsOf(m.W0),
		B0:    valuesOf(m.B0),
		W1:    rowsOf(m.W1),
		B1:    valuesOf(m.B1),
		W2:    rowsOf(m.W2),
		B2:    valuesOf(m.B2),
	}
	return json.MarshalIndent(rec, "", "  ")
}

func denseFromRows(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", model.ErrShapeMismatch, name)
	}
	cols := len(rows[0])
	flat := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: %s row %d has %d columns, expected %d", model.ErrShapeMismatch, name, i, len(row), cols)
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(len(rows), cols, flat), nil
}

func vecFrom(values []float64) *mat.VecDense {
	if len(values) == 0 {
		return nil
	}
	return mat.NewVecDense(len(values), append([]float64(nil), values...))
}

func rowsOf(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

func valuesOf(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// FileTrainer returns the weights record written by an external training job.
type FileTrainer struct {
	Path string
}

// Train loads the record at t.Path and checks it predicts one output per
// room.
func (t FileTrainer) Train(ctx context.Context, rooms []model.RoomSeries) (ModelWeights, error) {
	if err := ctx.Err(); err != nil {
		return ModelWeights{}, err
	}
	if len(rooms) == 0 {
		return ModelWeights{}, fmt.Errorf("%w: no room series to train on", model.ErrEmptyInput)
	}
	m, err := Load(t.Path)
	if err != nil {
		return ModelWeights{}, err
	}
	if err := m.Validate(len(rooms)); err != nil {
		return ModelWeights{}, fmt.Errorf("weights record %s: %w", t.Path, err)
	}
	return m, nil
}

package weights

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/thermopack/internal/model"
)

// probeWeights routes feature 0 to output 0 and feature 1 to output 1.
func probeWeights() ModelWeights {
	w0 := mat.NewDense(Inputs, Hidden, nil)
	w0.Set(0, 0, 1)
	w0.Set(1, 1, -1)
	w1 := mat.NewDense(Hidden, Hidden, nil)
	for i := 0; i < Hidden; i++ {
		w1.Set(i, i, 1)
	}
	w2 := mat.NewDense(Hidden, 2, nil)
	w2.Set(0, 0, 2)
	w2.Set(1, 1, 3)
	return ModelWeights{
		W0: w0,
		B0: mat.NewVecDense(Hidden, nil),
		W1: w1,
		B1: mat.NewVecDense(Hidden, nil),
		W2: w2,
		B2: mat.NewVecDense(2, []float64{0.5, -0.5}),
	}
}

func TestForward(t *testing.T) {
	m := probeWeights()
	require.NoError(t, m.Validate(2))

	out, err := m.Forward([]float64{3, 4, 0.1, 0.2, 0.3})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{6.5, -0.5}, out, 1e-12)

	out, err = m.Forward([]float64{-3, -4, 0, 0, 0})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{0.5, 11.5}, out, 1e-12)
}

func TestForwardRejectsFeatureCount(t *testing.T) {
	_, err := probeWeights().Forward([]float64{1, 2})
	require.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestParamCount(t *testing.T) {
	require.Equal(t, 5*32+32+32*32+32+32*2+2, probeWeights().ParamCount())
}

func TestValidate(t *testing.T) {
	m := probeWeights()
	require.ErrorIs(t, m.Validate(3), model.ErrShapeMismatch)
	require.ErrorIs(t, m.Validate(0), model.ErrInvalidParameter)

	m.B1 = nil
	require.ErrorIs(t, m.Validate(2), model.ErrShapeMismatch)
}

func TestFeatures(t *testing.T) {
	ts := time.Date(2024, time.March, 21, 6, 0, 0, 0, time.UTC)
	f := Features(ts, -2.5, 63)
	require.Len(t, f, Inputs)
	require.Equal(t, -2.5, f[0])
	require.Equal(t, 63.0, f[1])
	season := 2 * math.Pi * 81 / 365
	require.InDelta(t, math.Sin(season), f[2], 1e-12)
	require.InDelta(t, math.Cos(season), f[3], 1e-12)
	require.InDelta(t, 1.0, f[4], 1e-12)

	f = Features(ts.Add(12*time.Hour+30*time.Minute), 0, math.NaN())
	require.Equal(t, DefaultHumidity, f[1])
	require.InDelta(t, math.Sin(2*math.Pi*18.5/24), f[4], 1e-12)

	require.Equal(t, DefaultHumidity, Features(ts, 0, -1)[1])
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := probeWeights()
	data, err := Encode(m)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, 2, back.Rooms())
	require.True(t, mat.Equal(m.W0, back.W0))
	require.True(t, mat.Equal(m.W1, back.W1))
	require.True(t, mat.Equal(m.W2, back.W2))
	require.True(t, mat.Equal(m.B2, back.B2))
}

func TestDecodeRejectsRaggedRows(t *testing.T) {
	rec := map[string]any{
		"w0": [][]float64{{1, 2}, {3}},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	_, err = Decode(data)
	require.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestDecodeRejectsDeclaredRoomMismatch(t *testing.T) {
	data, err := Encode(probeWeights())
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	rec["rooms"] = 4
	data, err = json.Marshal(rec)
	require.NoError(t, err)

	_, err = Decode(data)
	require.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestFileTrainer(t *testing.T) {
	data, err := Encode(probeWeights())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rooms_model.weights.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	rooms := []model.RoomSeries{{RoomID: 1}, {RoomID: 2}}
	m, err := FileTrainer{Path: path}.Train(context.Background(), rooms)
	require.NoError(t, err)
	require.Equal(t, 2, m.Rooms())

	_, err = FileTrainer{Path: path}.Train(context.Background(), rooms[:1])
	require.ErrorIs(t, err, model.ErrShapeMismatch)

	_, err = FileTrainer{Path: path}.Train(context.Background(), nil)
	require.ErrorIs(t, err, model.ErrEmptyInput)

	_, err = FileTrainer{Path: filepath.Join(t.TempDir(), "absent.json")}.Train(context.Background(), rooms)
	require.ErrorIs(t, err, model.ErrIOFailure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FileTrainer{Path: path}.Train(ctx, rooms)
	require.ErrorIs(t, err, context.Canceled)
}

package header

import (
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/verte-zerg/thermopack/internal/atomicfile"
	"github.com/verte-zerg/thermopack/internal/weights"
)

// EncodeWeights writes the network weights header. Every value is rendered
// with 6 decimal digits.
func EncodeWeights(w io.Writer, m weights.ModelWeights, opts Options) error {
	rooms := m.Rooms()
	if err := m.Validate(rooms); err != nil {
		return err
	}

	ew := &errWriter{w: w}
	ew.line("// Neural network weights for the room temperature predictor")
	ew.printf("// Architecture: Input(%d) -> Dense(%d) -> Dense(%d) -> Output(%d)\n",
		weights.Inputs, weights.Hidden, weights.Hidden, rooms)
	ew.printf("// Features: %s\n", strings.Join(weights.FeatureNames, ", "))
	ew.printf("// Total parameters: %d\n", m.ParamCount())
	if !opts.GeneratedAt.IsZero() {
		ew.printf("// Generated: %s\n", opts.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	ew.line("")
	ew.line("#ifndef NEURAL_WEIGHTS_H")
	ew.line("#define NEURAL_WEIGHTS_H")
	ew.line("")
	ew.printf("#define NUM_ROOMS %d\n\n", rooms)

	ew.printf("// Layer 0: Input(%d) -> Dense(%d)\n", weights.Inputs, weights.Hidden)
	writeMatrix(ew, "W0", m.W0, true)
	writeVector(ew, "BIAS0", m.B0)

	ew.printf("// Layer 1: Dense(%d) -> Dense(%d)\n", weights.Hidden, weights.Hidden)
	writeMatrix(ew, "W1", m.W1, false)
	writeVector(ew, "BIAS1", m.B1)

	ew.printf("// Layer 2: Dense(%d) -> Output(%d)\n", weights.Hidden, rooms)
	writeMatrix(ew, "W2", m.W2, false)
	writeVector(ew, "BIAS2", m.B2)

	ew.line("#endif // NEURAL_WEIGHTS_H")
	return ew.err
}

// PublishWeights encodes the weights header and atomically replaces path.
func PublishWeights(path string, m weights.ModelWeights, opts Options) (int64, error) {
	if err := m.Validate(m.Rooms()); err != nil {
		return 0, err
	}
	return atomicfile.Write(path, func(w io.Writer) error {
		return EncodeWeights(w, m, opts)
	})
}

func writeMatrix(ew *errWriter, name string, m *mat.Dense, annotateRows bool) {
	rows, cols := m.Dims()
	ew.printf("const float %s[%d][%d] = {\n", name, rows, cols)
	for i := 0; i < rows; i++ {
		ew.printf("  {%s},", formatWeights(mat.Row(nil, i, m)))
		if annotateRows {
			ew.printf("  // %s", weights.FeatureNames[i])
		}
		ew.line("")
	}
	ew.line("};")
	ew.line("")
}

func writeVector(ew *errWriter, name string, v *mat.VecDense) {
	values := make([]float64, v.Len())
	for i := range values {
		values[i] = v.AtVec(i)
	}
	ew.printf("const float %s[%d] = {\n  %s\n};\n\n", name, len(values), formatWeights(values))
}

func formatWeights(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', 6, 64) + "f"
	}
	return strings.Join(parts, ", ")
}

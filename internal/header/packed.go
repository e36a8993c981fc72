// Package header renders packed windows and network weights as C headers for
// the embedded target.
package header

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/thermopack/internal/atomicfile"
	"github.com/verte-zerg/thermopack/internal/model"
)

const valuesPerLine = 10

// Options controls the non-data parts of a header.
type Options struct {
	// GeneratedAt is written as a comment when non-zero.
	GeneratedAt time.Time
}

// EncodePacked writes the packed-window header for rooms room slots. Windows
// must be in catalog order and every window must hold rooms slots.
func EncodePacked(w io.Writer, windows []model.PackedWindow, rooms int, opts Options) error {
	if err := validatePacked(windows, rooms); err != nil {
		return err
	}

	ew := &errWriter{w: w}
	ew.line("// Indoor temperature series packed for the embedded target")
	if !opts.GeneratedAt.IsZero() {
		ew.printf("// Generated: %s\n", opts.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	ew.printf("// Rooms: %d\n", rooms)
	ew.line("// Layout: one linear array per window with per-room offsets for O(1) access")
	ew.line("// Do not edit by hand, regenerate with thermopack export")
	ew.line("")
	ew.line("#ifndef CSV_DATA_H")
	ew.line("#define CSV_DATA_H")
	ew.line("")
	ew.printf("#define CSV_NUM_ROOMS %d\n", rooms)
	ew.printf("#define CSV_NUM_PERIODS %d\n", len(windows))
	ew.line("")

	for p, win := range windows {
		total := len(win.Values)
		ew.printf("\n// ========== PERIOD %d: %s (%dh, %d points max per room) ==========\n\n",
			p, win.Window.Label, win.Window.LookbackHours, win.Window.PointBudget)

		ew.printf("// Every room, oldest sample first (%d points)\n", total)
		ew.printf("const float csv_period%d_temps[%d] PROGMEM = {\n", p, total)
		writeFloats(ew, win.Values, 2)
		ew.line("};")
		ew.line("")

		ew.line("// Hours before the room's latest sample")
		ew.printf("const float csv_period%d_hours[%d] PROGMEM = {\n", p, total)
		writeFloats(ew, win.Ages, 1)
		ew.line("};")
		ew.line("")

		ew.line("// Start index of each room")
		ew.printf("const int csv_period%d_offsets[%d] PROGMEM = {\n  %s\n};\n\n", p, rooms, joinInts(win.Offsets))
		ew.line("// Point count of each room")
		ew.printf("const int csv_period%d_sizes[%d] PROGMEM = {\n  %s\n};\n", p, rooms, joinInts(win.Sizes))
	}

	ew.line("")
	ew.line("// ========== POINTER TABLES ==========")
	ew.line("")
	writePointerTable(ew, "float", "csv_temps_arrays", "temps", len(windows))
	writePointerTable(ew, "float", "csv_hours_arrays", "hours", len(windows))
	writePointerTable(ew, "int", "csv_offsets_arrays", "offsets", len(windows))
	writePointerTable(ew, "int", "csv_sizes_arrays", "sizes", len(windows))

	lookbacks := make([]int, len(windows))
	budgets := make([]int, len(windows))
	for p, win := range windows {
		lookbacks[p] = win.Window.LookbackHours
		budgets[p] = win.Window.PointBudget
	}
	ew.printf("const int csv_period_hours[CSV_NUM_PERIODS] = {%s};\n", joinInts(lookbacks))
	ew.printf("const int csv_period_budgets[CSV_NUM_PERIODS] = {%s};\n\n", joinInts(budgets))

	ew.line("/*")
	ew.line("Usage, temperature of point i of room R in period P:")
	ew.line("")
	ew.line("int offset = pgm_read_word(&csv_offsets_arrays[P][R]);")
	ew.line("int size = pgm_read_word(&csv_sizes_arrays[P][R]);")
	ew.line("float temp = pgm_read_float(&csv_temps_arrays[P][offset + i]);")
	ew.line("*/")
	ew.line("")
	ew.line("#endif // CSV_DATA_H")
	return ew.err
}

// PublishPacked encodes the packed header and atomically replaces path. On
// any error the file previously published at path is left untouched.
func PublishPacked(path string, windows []model.PackedWindow, rooms int, opts Options) (int64, error) {
	if err := validatePacked(windows, rooms); err != nil {
		return 0, err
	}
	return atomicfile.Write(path, func(w io.Writer) error {
		return EncodePacked(w, windows, rooms, opts)
	})
}

func validatePacked(windows []model.PackedWindow, rooms int) error {
	if rooms < 1 {
		return fmt.Errorf("%w: no rooms to export", model.ErrEmptyInput)
	}
	if len(windows) == 0 {
		return fmt.Errorf("%w: no retention windows to export", model.ErrEmptyInput)
	}
	for _, win := range windows {
		if win.RoomCount() != rooms || len(win.Offsets) != rooms {
			return fmt.Errorf("%w: window %q has %d room slots, expected %d",
				model.ErrShapeMismatch, win.Window.Label, win.RoomCount(), rooms)
		}
		if len(win.Values) != len(win.Ages) {
			return fmt.Errorf("%w: window %q has %d values and %d ages",
				model.ErrShapeMismatch, win.Window.Label, len(win.Values), len(win.Ages))
		}
		if len(win.Values) == 0 {
			return fmt.Errorf("%w: window %q has no points", model.ErrEmptyInput, win.Window.Label)
		}
		if err := validateIndex(win); err != nil {
			return err
		}
		if err := validateFinite(win.Window.Label, "value", win.Values); err != nil {
			return err
		}
		if err := validateFinite(win.Window.Label, "age", win.Ages); err != nil {
			return err
		}
	}
	return nil
}

// validateIndex checks that offsets and sizes tile the value array exactly.
func validateIndex(win model.PackedWindow) error {
	next := 0
	for r, size := range win.Sizes {
		if size < 0 || win.Offsets[r] != next {
			return fmt.Errorf("%w: window %q room %d has offset %d and size %d, expected offset %d",
				model.ErrShapeMismatch, win.Window.Label, r, win.Offsets[r], size, next)
		}
		next += size
	}
	if next != len(win.Values) {
		return fmt.Errorf("%w: window %q sizes sum to %d, have %d values",
			model.ErrShapeMismatch, win.Window.Label, next, len(win.Values))
	}
	return nil
}

func validateFinite(label, kind string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: window %q %s %d is not finite", model.ErrInvalidParameter, label, kind, i)
		}
	}
	return nil
}

func writeFloats(ew *errWriter, values []float64, decimals int) {
	for i, v := range values {
		if i%valuesPerLine == 0 {
			ew.printf("  ")
		}
		ew.printf("%sf", strconv.FormatFloat(v, 'f', decimals, 64))
		switch {
		case i == len(values)-1:
		case (i+1)%valuesPerLine == 0:
			ew.line(",")
		default:
			ew.printf(", ")
		}
	}
	ew.line("")
}

func writePointerTable(ew *errWriter, ctype, name, suffix string, periods int) {
	ew.printf("const %s* %s[CSV_NUM_PERIODS] = {\n", ctype, name)
	for p := 0; p < periods; p++ {
		sep := ","
		if p == periods-1 {
			sep = ""
		}
		ew.printf("  csv_period%d_%s%s\n", p, suffix, sep)
	}
	ew.line("};")
	ew.line("")
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

// errWriter keeps the first write error and drops every later write.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	if _, err := fmt.Fprintf(e.w, format, args...); err != nil {
		e.err = fmt.Errorf("%w: %v", model.ErrIOFailure, err)
	}
}

func (e *errWriter) line(s string) {
	e.printf("%s\n", s)
}

package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/thermopack/internal/atomicfile"
	"github.com/verte-zerg/thermopack/internal/model"
)

const timestampLayout = "2006-01-02 15:04:05"

var timestampLayouts = []string{
	timestampLayout,
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// ReadResult is a parsed room file.
type ReadResult struct {
	Series      model.RoomSeries
	SkippedRows int
	Duplicates  int
}

// Read parses one room CSV file.
func Read(path string, cols Columns) (ReadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return ReadResult{}, fmt.Errorf("%w: %v", model.ErrIOFailure, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only series file.
			_ = cerr
		}
	}()
	return Decode(file, cols)
}

// Decode parses CSV records from r. It fails with ErrMissingColumn when no
// timestamp or temperature column can be matched.
func Decode(r io.Reader, cols Columns) (ReadResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ReadResult{}, fmt.Errorf("%w: file has no header row", model.ErrMissingColumn)
		}
		return ReadResult{}, fmt.Errorf("failed to read header: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	idx := resolveColumns(headers, cols)
	if idx.timestamp < 0 {
		return ReadResult{}, fmt.Errorf("%w: no timestamp column among %q", model.ErrMissingColumn, headers)
	}
	if idx.temperature < 0 {
		return ReadResult{}, fmt.Errorf("%w: no temperature column among %q", model.ErrMissingColumn, headers)
	}

	var result ReadResult
	var samples []model.Sample
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ReadResult{}, fmt.Errorf("failed to read record: %w", err)
		}
		sample, ok := parseRecord(record, idx)
		if !ok {
			result.SkippedRows++
			continue
		}
		samples = append(samples, sample)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	deduped := samples[:0]
	for _, s := range samples {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(s.Timestamp) {
			deduped[n-1] = s
			result.Duplicates++
			continue
		}
		deduped = append(deduped, s)
	}
	result.Series = model.RoomSeries{Samples: deduped}
	return result, nil
}

func parseRecord(record []string, idx columnIndex) (model.Sample, bool) {
	field := func(i int) (string, bool) {
		if i < 0 || i >= len(record) {
			return "", false
		}
		v := strings.TrimSpace(record[i])
		return v, v != ""
	}

	raw, ok := field(idx.timestamp)
	if !ok {
		return model.Sample{}, false
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return model.Sample{}, false
	}
	raw, ok = field(idx.temperature)
	if !ok {
		return model.Sample{}, false
	}
	roomC, err := strconv.ParseFloat(raw, 64)
	if err != nil || !isFinite(roomC) {
		return model.Sample{}, false
	}

	sample := model.Sample{Timestamp: ts, RoomC: roomC}
	if raw, ok := field(idx.exterior); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			if !isFinite(v) {
				return model.Sample{}, false
			}
			sample.ExteriorC = v
			sample.HasExterior = true
		}
	}
	if raw, ok := field(idx.humidity); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			if !isFinite(v) {
				return model.Sample{}, false
			}
			sample.HumidityPct = v
			sample.HasHumidity = true
		}
	}
	return sample, true
}

// isFinite rejects NaN and infinities, which have no C float literal.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseTimestamp accepts the layouts commonly written by loggers and
// spreadsheet exports. Values without a zone are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// Write publishes s as a generated room file with the columns
// Timestamp, Temperature_Celsius(°C), External_Temp(°C).
func Write(path string, s model.RoomSeries) (int64, error) {
	return atomicfile.Write(path, func(w io.Writer) error {
		return Encode(w, s)
	})
}

// Encode writes s in the generated CSV format.
func Encode(w io.Writer, s model.RoomSeries) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{TimestampHeader, TemperatureHeader, ExteriorHeader}); err != nil {
		return fmt.Errorf("%w: %v", model.ErrIOFailure, err)
	}
	for _, sample := range s.Samples {
		record := []string{
			sample.Timestamp.UTC().Format(timestampLayout),
			strconv.FormatFloat(sample.RoomC, 'f', -1, 64),
			strconv.FormatFloat(sample.ExteriorC, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("%w: %v", model.ErrIOFailure, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrIOFailure, err)
	}
	return nil
}

// RoomFile is one discovered room file.
type RoomFile struct {
	ID   int
	Path string
}

// FileName returns the data file name of room id.
func FileName(id int) string {
	return fmt.Sprintf("Room%d_data.csv", id)
}

// Discover lists Room<N>_data.csv files in dir ordered by numeric room id.
func Discover(dir string) ([]RoomFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read data directory: %v", model.ErrIOFailure, err)
	}
	var files []RoomFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := parseRoomFileName(entry.Name())
		if !ok {
			continue
		}
		files = append(files, RoomFile{ID: id, Path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].ID < files[j].ID
	})
	return files, nil
}

func parseRoomFileName(name string) (int, bool) {
	if !strings.HasPrefix(name, "Room") || !strings.HasSuffix(name, "_data.csv") {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "Room"), "_data.csv")
	id, err := strconv.Atoi(digits)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

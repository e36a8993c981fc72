// Package series reads and writes per-room CSV series.
package series

import "strings"

// Header names written for generated series.
const (
	TimestampHeader   = "Timestamp"
	TemperatureHeader = "Temperature_Celsius(°C)"
	ExteriorHeader    = "External_Temp(°C)"
)

// Columns lists candidate header names per semantic field, in priority order.
type Columns struct {
	Timestamp   []string
	Temperature []string
	Humidity    []string
	Exterior    []string
}

// DefaultColumns returns the built-in synonym lists.
func DefaultColumns() Columns {
	return Columns{
		Timestamp: []string{"Timestamp", "Date", "DateTime", "Time"},
		Temperature: []string{
			TemperatureHeader, "Temperature", "Temperature(°C)", "Temperature (°C)",
			"Température", "Temp",
		},
		Humidity: []string{
			"Relative_Humidity(%)", "Humidity", "Relative Humidity", "relative_humidity",
			"Humidité", "RH",
		},
		Exterior: []string{ExteriorHeader, "External_Temp", "Exterior", "Outdoor", "Outside"},
	}
}

// WithOverrides replaces every non-empty list of o in c.
func (c Columns) WithOverrides(o Columns) Columns {
	if len(o.Timestamp) > 0 {
		c.Timestamp = o.Timestamp
	}
	if len(o.Temperature) > 0 {
		c.Temperature = o.Temperature
	}
	if len(o.Humidity) > 0 {
		c.Humidity = o.Humidity
	}
	if len(o.Exterior) > 0 {
		c.Exterior = o.Exterior
	}
	return c
}

type columnIndex struct {
	timestamp   int
	temperature int
	humidity    int
	exterior    int
}

// resolveColumns maps headers to semantic fields. Fields are resolved in the
// order timestamp, temperature, exterior, humidity and a header is claimed by
// at most one field. Missing fields are -1.
func resolveColumns(headers []string, c Columns) columnIndex {
	claimed := make(map[int]bool, len(headers))
	idx := columnIndex{}
	idx.timestamp = detectColumn(headers, c.Timestamp, claimed)
	idx.temperature = detectColumn(headers, c.Temperature, claimed)
	idx.exterior = detectColumn(headers, c.Exterior, claimed)
	idx.humidity = detectColumn(headers, c.Humidity, claimed)
	return idx
}

// detectColumn tries a case-insensitive exact match over every candidate
// first, then a substring match, and claims the matching header.
func detectColumn(headers, candidates []string, claimed map[int]bool) int {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}
	for _, candidate := range candidates {
		want := strings.ToLower(strings.TrimSpace(candidate))
		for i, h := range normalized {
			if !claimed[i] && h == want {
				claimed[i] = true
				return i
			}
		}
	}
	for _, candidate := range candidates {
		want := strings.ToLower(strings.TrimSpace(candidate))
		if want == "" {
			continue
		}
		for i, h := range normalized {
			if !claimed[i] && strings.Contains(h, want) {
				claimed[i] = true
				return i
			}
		}
	}
	return -1
}

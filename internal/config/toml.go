// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/thermopack/internal/model"
	"github.com/verte-zerg/thermopack/internal/series"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Generate GenerateConfig `toml:"generate"`
	Rooms    []RoomEntry    `toml:"rooms"`
	Export   ExportConfig   `toml:"export"`
	Columns  ColumnsConfig  `toml:"columns"`
}

// GenerateConfig maps generation settings.
type GenerateConfig struct {
	Days     *int    `toml:"days"`
	Interval *int    `toml:"interval"`
	Start    *string `toml:"start"`
	Seed     *int64  `toml:"seed"`
	DataDir  *string `toml:"data-dir"`
}

// RoomEntry maps one [[rooms]] table.
type RoomEntry struct {
	ID      *int    `toml:"id"`
	Name    *string `toml:"name"`
	Profile *string `toml:"profile"`
	Source  *string `toml:"source"`
}

// ExportConfig maps artifact paths.
type ExportConfig struct {
	PackedHeader  *string `toml:"packed-header"`
	WeightsHeader *string `toml:"weights-header"`
	WeightsFile   *string `toml:"weights-file"`
}

// ColumnsConfig maps header synonym overrides.
type ColumnsConfig struct {
	Timestamp   []string `toml:"timestamp"`
	Temperature []string `toml:"temperature"`
	Humidity    []string `toml:"humidity"`
	Exterior    []string `toml:"exterior"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return FileConfig{}, fmt.Errorf("%w: unknown config keys: %s", model.ErrInvalidParameter, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ColumnOverrides returns the configured synonym lists applied over the
// built-in ones.
func (c FileConfig) ColumnOverrides() series.Columns {
	return series.DefaultColumns().WithOverrides(series.Columns{
		Timestamp:   c.Columns.Timestamp,
		Temperature: c.Columns.Temperature,
		Humidity:    c.Columns.Humidity,
		Exterior:    c.Columns.Exterior,
	})
}

// ResolveRooms turns [[rooms]] tables into room configs. Without any table,
// count rooms using defaultProfile are returned. Ids default to the 1-based
// position and must be unique.
func (c FileConfig) ResolveRooms(count int, defaultProfile string) ([]model.RoomConfig, error) {
	if len(c.Rooms) == 0 {
		if count < 1 {
			return nil, fmt.Errorf("%w: room count must be >= 1", model.ErrInvalidParameter)
		}
		rooms := make([]model.RoomConfig, count)
		for i := range rooms {
			rooms[i] = model.RoomConfig{ID: i + 1, Name: fmt.Sprintf("Room %d", i+1), Profile: defaultProfile}
		}
		return rooms, nil
	}

	rooms := make([]model.RoomConfig, 0, len(c.Rooms))
	seen := make(map[int]struct{}, len(c.Rooms))
	for i, entry := range c.Rooms {
		room := model.RoomConfig{ID: i + 1, Profile: defaultProfile}
		if entry.ID != nil {
			room.ID = *entry.ID
		}
		if room.ID < 0 {
			return nil, fmt.Errorf("%w: room id must be >= 0, got %d", model.ErrInvalidParameter, room.ID)
		}
		if _, dup := seen[room.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate room id %d", model.ErrInvalidParameter, room.ID)
		}
		seen[room.ID] = struct{}{}
		room.Name = fmt.Sprintf("Room %d", room.ID)
		if entry.Name != nil && strings.TrimSpace(*entry.Name) != "" {
			room.Name = strings.TrimSpace(*entry.Name)
		}
		if entry.Profile != nil {
			room.Profile = *entry.Profile
		}
		if entry.Source != nil {
			room.Source = strings.TrimSpace(*entry.Source)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

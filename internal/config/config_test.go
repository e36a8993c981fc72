package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/verte-zerg/thermopack/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Generate.Days != nil || len(cfg.Rooms) != 0 {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigSections(t *testing.T) {
	path := writeConfig(t, `
[generate]
days = 30
interval = 15
seed = 7
data-dir = "out"

[[rooms]]
id = 4
name = "Kitchen"
profile = "poor"

[[rooms]]
source = "imports/bedroom.csv"

[export]
packed-header = "fw/csv.h"

[columns]
temperature = ["Indoor"]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Generate.Days == nil || *cfg.Generate.Days != 30 {
		t.Fatalf("unexpected days: %v", cfg.Generate.Days)
	}
	if cfg.Generate.Seed == nil || *cfg.Generate.Seed != 7 {
		t.Fatalf("unexpected seed: %v", cfg.Generate.Seed)
	}
	if cfg.Generate.Start != nil {
		t.Fatalf("expected unset start, got %v", *cfg.Generate.Start)
	}
	if cfg.Export.PackedHeader == nil || *cfg.Export.PackedHeader != "fw/csv.h" {
		t.Fatalf("unexpected packed header: %v", cfg.Export.PackedHeader)
	}

	rooms, err := cfg.ResolveRooms(3, "good")
	if err != nil {
		t.Fatalf("resolve rooms: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].ID != 4 || rooms[0].Name != "Kitchen" || rooms[0].Profile != "poor" {
		t.Fatalf("unexpected first room: %+v", rooms[0])
	}
	if rooms[1].ID != 2 || rooms[1].Profile != "good" || rooms[1].Source != "imports/bedroom.csv" {
		t.Fatalf("unexpected second room: %+v", rooms[1])
	}

	cols := cfg.ColumnOverrides()
	if len(cols.Temperature) != 1 || cols.Temperature[0] != "Indoor" {
		t.Fatalf("unexpected temperature synonyms: %v", cols.Temperature)
	}
	if len(cols.Timestamp) == 0 {
		t.Fatalf("expected default timestamp synonyms")
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "[generate]\ndayz = 3\n")
	if _, err := LoadConfig(path); !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestResolveRoomsDefaults(t *testing.T) {
	rooms, err := FileConfig{}.ResolveRooms(3, "medium")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(rooms) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(rooms))
	}
	for i, room := range rooms {
		if room.ID != i+1 || room.Profile != "medium" || room.Source != "" {
			t.Fatalf("unexpected room %d: %+v", i, room)
		}
	}
	if _, err := (FileConfig{}).ResolveRooms(0, "good"); !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestResolveRoomsRejectsDuplicateIDs(t *testing.T) {
	one := 1
	cfg := FileConfig{Rooms: []RoomEntry{{ID: &one}, {ID: &one}}}
	if _, err := cfg.ResolveRooms(0, "good"); !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestDefaultPathsFollowXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "thermopack", "config.toml") {
		t.Fatalf("unexpected config path %q", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/data", "thermopack", "thermopack.db") {
		t.Fatalf("unexpected db path %q", got)
	}
}

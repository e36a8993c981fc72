// Package profile holds the static isolation profile catalog.
package profile

import (
	"fmt"
	"strings"

	"github.com/verte-zerg/thermopack/internal/model"
)

// DefaultKey is used when a room does not name a profile.
const DefaultKey = "good"

var catalog = []model.IsolationProfile{
	{
		Key:                "excellent",
		Description:        "Excellent insulation (passive house)",
		ThermalInertia:     0.95,
		ExternalInfluence:  0.10,
		HeatingEfficiency:  0.90,
		ComfortMinC:        19,
		ComfortMaxC:        22,
		DailyVariationC:    1.0,
		SeasonalAmplitudeC: 3.0,
	},
	{
		Key:                "good",
		Description:        "Good insulation (recent build)",
		ThermalInertia:     0.80,
		ExternalInfluence:  0.25,
		HeatingEfficiency:  0.75,
		ComfortMinC:        18,
		ComfortMaxC:        23,
		DailyVariationC:    2.0,
		SeasonalAmplitudeC: 5.0,
	},
	{
		Key:                "medium",
		Description:        "Average insulation (1990s)",
		ThermalInertia:     0.60,
		ExternalInfluence:  0.45,
		HeatingEfficiency:  0.60,
		ComfortMinC:        16,
		ComfortMaxC:        24,
		DailyVariationC:    3.5,
		SeasonalAmplitudeC: 8.0,
	},
	{
		Key:                "poor",
		Description:        "Poor insulation (before 1975)",
		ThermalInertia:     0.35,
		ExternalInfluence:  0.70,
		HeatingEfficiency:  0.45,
		ComfortMinC:        14,
		ComfortMaxC:        26,
		DailyVariationC:    5.0,
		SeasonalAmplitudeC: 12.0,
	},
	{
		Key:                "very_poor",
		Description:        "Very poor insulation (never renovated)",
		ThermalInertia:     0.20,
		ExternalInfluence:  0.85,
		HeatingEfficiency:  0.30,
		ComfortMinC:        12,
		ComfortMaxC:        28,
		DailyVariationC:    6.5,
		SeasonalAmplitudeC: 15.0,
	},
}

// All returns the catalog in its fixed order.
func All() []model.IsolationProfile {
	out := make([]model.IsolationProfile, len(catalog))
	copy(out, catalog)
	return out
}

// Keys returns the profile keys in catalog order.
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for _, p := range catalog {
		keys = append(keys, p.Key)
	}
	return keys
}

// Lookup returns the profile registered under key.
func Lookup(key string) (model.IsolationProfile, error) {
	key = strings.TrimSpace(strings.ToLower(key))
	for _, p := range catalog {
		if p.Key == key {
			return p, nil
		}
	}
	return model.IsolationProfile{}, fmt.Errorf("%w %q (available: %s)", model.ErrUnknownProfile, key, strings.Join(Keys(), ", "))
}

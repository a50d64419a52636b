package config

import (
	"fmt"
	"os"

	"github.com/Lllllllleong/docinsight/internal/models"
	"gopkg.in/yaml.v3"
)

type tierFile struct {
	Tiers map[models.Tier]models.TierLimits `yaml:"tiers"`
}

// LoadTierLimits reads a YAML override of the tier table and merges it over
// base. Only tiers present in the file are replaced; an empty path returns
// base unchanged.
//
//	tiers:
//	  starter:
//	    documentsPerDay: 20
//	    maxPagesPerDocument: 200
func LoadTierLimits(path string, base map[models.Tier]models.TierLimits) (map[models.Tier]models.TierLimits, error) {
	out := make(map[models.Tier]models.TierLimits, len(base))
	for k, v := range base {
		out[k] = v
	}
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier limits file: %w", err)
	}
	var f tierFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tier limits file %s: %w", path, err)
	}
	for tier, limits := range f.Tiers {
		switch tier {
		case models.TierFree, models.TierStarter, models.TierPro, models.TierTeam:
		default:
			return nil, fmt.Errorf("tier limits file %s: unknown tier %q", path, tier)
		}
		out[tier] = limits
	}
	return out, nil
}

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultRegionKey is the registry entry used for regions that have no
// dedicated shard of their own.
const DefaultRegionKey = "default"

// Config represents the deploy-time routing and quota configuration.
// The region table and plan limit matrix are static: adding a region or
// changing a limit is a deploy, not a runtime write.
type Config struct {
	Regions RegionConfig              `toml:"regions"`
	Plans   map[string]map[string]int `toml:"plans"`
}

// RegionConfig maps a region identifier to the shard that stores its data.
type RegionConfig struct {
	Shards       map[string]string `toml:"shards"`
	DefaultShard string            `toml:"default_shard"`
}

// DefaultConfig returns the built-in configuration used when no config
// file is provided.
func DefaultConfig() *Config {
	return &Config{
		Regions: RegionConfig{
			Shards: map[string]string{
				"uk": "shard-uk",
				"us": "shard-us",
				"eu": "shard-eu",
			},
			DefaultShard: "shard-default",
		},
		Plans: map[string]map[string]int{
			"free": {
				"report_generation": 5,
				"data_export":       2,
			},
			"pro": {
				"report_generation": 100,
				"data_export":       50,
			},
			"enterprise": {
				"report_generation": 1000,
				"data_export":       500,
			},
		},
	}
}

// Load reads configuration from a TOML file, falling back to the built-in
// defaults when path is empty or the file does not exist.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the layer depends on.
func (c *Config) Validate() error {
	if c.Regions.DefaultShard == "" {
		return fmt.Errorf("regions.default_shard is required")
	}
	if len(c.Plans) == 0 {
		return fmt.Errorf("at least one plan must be defined")
	}
	for region, shard := range c.Regions.Shards {
		if shard == "" {
			return fmt.Errorf("region %q maps to an empty shard id", region)
		}
	}
	return nil
}

// IsSupportedRegion reports whether region has a dedicated shard entry.
// Provisioning is strict about regions; runtime routing is not (see
// sharding.Registry, which silently falls back to the default shard).
func (c *Config) IsSupportedRegion(region string) bool {
	_, ok := c.Regions.Shards[region]
	return ok
}

// LimitFor resolves the monthly limit for a plan/feature pair. Unknown
// plans resolve to the most restrictive defined tier; features absent
// from the resolved plan have a limit of 0 (deny).
func (c *Config) LimitFor(plan, feature string) int {
	limits, ok := c.Plans[plan]
	if !ok {
		limits = c.Plans[c.MostRestrictivePlan()]
	}
	return limits[feature]
}

// MostRestrictivePlan returns the name of the plan with the smallest
// aggregate limits. Used as the fallback tier for unknown plans.
func (c *Config) MostRestrictivePlan() string {
	best := ""
	bestTotal := -1
	for name, limits := range c.Plans {
		total := 0
		for _, limit := range limits {
			total += limit
		}
		if bestTotal == -1 || total < bestTotal || (total == bestTotal && name < best) {
			best = name
			bestTotal = total
		}
	}
	return best
}

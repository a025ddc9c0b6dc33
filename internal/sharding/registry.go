package sharding

import (
	"sort"

	"meridian/internal/config"
)

// Registry is the static region -> shard table. It is pure lookup: no
// state, no side effects, and it never fails. Unknown regions resolve to
// the default shard so that runtime routing keeps working even when an
// unexpected region value slips through; provisioning applies its own
// strict check before ever reaching the registry.
type Registry struct {
	shards       map[string]string
	defaultShard string
}

func NewRegistry(cfg config.RegionConfig) *Registry {
	shards := make(map[string]string, len(cfg.Shards))
	for region, shardID := range cfg.Shards {
		shards[region] = shardID
	}
	return &Registry{shards: shards, defaultShard: cfg.DefaultShard}
}

// ShardFor maps a region to its shard, falling back to the default shard
// for regions not present in the table.
func (r *Registry) ShardFor(region string) string {
	if shardID, ok := r.shards[region]; ok {
		return shardID
	}
	return r.defaultShard
}

// DefaultShard returns the distinguished always-on shard id.
func (r *Registry) DefaultShard() string {
	return r.defaultShard
}

// IsDefault reports whether shardID is the default shard.
func (r *Registry) IsDefault(shardID string) bool {
	return shardID == r.defaultShard
}

// ShardIDs returns the distinct non-default shard ids, sorted.
func (r *Registry) ShardIDs() []string {
	seen := make(map[string]bool, len(r.shards))
	var ids []string
	for _, shardID := range r.shards {
		if shardID == r.defaultShard || seen[shardID] {
			continue
		}
		seen[shardID] = true
		ids = append(ids, shardID)
	}
	sort.Strings(ids)
	return ids
}

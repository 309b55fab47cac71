package sharding

import "github.com/cespare/xxhash/v2"

type ShardRouter struct {
	ShardCount int // Number of shards
}

func NewShardRouter(shardCount int) *ShardRouter {
	if shardCount < 1 {
		shardCount = 1
	}
	return &ShardRouter{ShardCount: shardCount}
}

// GetShard hashes an opaque string id onto a shard index.
func (r *ShardRouter) GetShard(id string) int {
	return int(xxhash.Sum64String(id) % uint64(r.ShardCount))
}

// All returns every shard index, for scatter-gather queries.
func (r *ShardRouter) All() []int {
	out := make([]int, r.ShardCount)
	for i := range out {
		out[i] = i
	}
	return out
}

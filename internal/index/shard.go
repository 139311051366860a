package index

import "sync"

const shardCount = 32

// shard holds one slice of the primary FileRef -> FileEntry map behind its
// own RWMutex, so a rebuild batch touching one shard never blocks a reader
// or writer working a different shard. See SPEC_FULL.md §4.4 "Sharding".
type shard struct {
	mu sync.RWMutex
	m  map[FileRef]FileEntry
}

func newShards() [shardCount]*shard {
	var shards [shardCount]*shard
	for i := range shards {
		shards[i] = &shard{m: make(map[FileRef]FileEntry)}
	}
	return shards
}

// shardFor picks a shard deterministically from a FileRef so repeated
// lookups for the same ref always land on the same lock.
func shardFor(shards [shardCount]*shard, ref FileRef) *shard {
	h := ref.Record*1099511628211 ^ uint64(ref.Sequence)
	return shards[h%shardCount]
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type (
	// MemEngine is an in-process engine keeping per-node partitions as
	// sorted key lists. It backs local runs and tests; production nodes
	// run a real range-scan backend.
	MemEngine struct {
		mu sync.RWMutex
		// node -> bucket/partition -> records sorted by local key
		nodes map[string]map[string][]KV
	}
)

func NewMemEngine() *MemEngine {
	return &MemEngine{
		nodes: make(map[string]map[string][]KV),
	}
}

func (e *MemEngine) Put(_ context.Context, node, bucket, partitionKey, localKey string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	parts, ok := e.nodes[node]
	if !ok {
		parts = make(map[string][]KV)
		e.nodes[node] = parts
	}
	pkey := bucket + "/" + partitionKey
	kvs := parts[pkey]
	idx := sort.Search(len(kvs), func(i int) bool { return kvs[i].Key >= localKey })
	if idx < len(kvs) && kvs[idx].Key == localKey {
		kvs[idx].Value = value
	} else {
		kvs = append(kvs, KV{})
		copy(kvs[idx+1:], kvs[idx:])
		kvs[idx] = KV{Key: localKey, Value: value}
	}
	parts[pkey] = kvs
	return nil
}

func (e *MemEngine) RangeScan(ctx context.Context, node string, rng ScanRange) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	parts, ok := e.nodes[node]
	if !ok {
		return Chunk{}, nil
	}
	var chunk Chunk
	for _, kv := range parts[rng.Bucket+"/"+rng.Partition] {
		if !inRange(kv.Key, rng) {
			continue
		}
		chunk = append(chunk, kv)
	}
	return chunk, nil
}

func inRange(key string, rng ScanRange) bool {
	if rng.StartInclusive {
		if key < rng.Start {
			return false
		}
	} else if key <= rng.Start {
		return false
	}
	if rng.EndInclusive {
		return key <= rng.End
	}
	return key < rng.End
}

func (e *MemEngine) Shutdown(_ context.Context) error {
	return nil
}

// Delete writes a tombstone for the key. Kept for the external delete path.
func (e *MemEngine) Delete(ctx context.Context, node, bucket, partitionKey, localKey string) error {
	err := e.Put(ctx, node, bucket, partitionKey, localKey, nil)
	if err != nil {
		return fmt.Errorf("error writing tombstone: %w", err)
	}
	return nil
}

package coverage

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ringPartitions is the fixed partition count of the static ring.
const ringPartitions = 64

type (
	// StaticRing is a fixed-membership ring: xxhash64 over the packed key,
	// preference lists walked from the owning partition. Nodes marked down
	// stop counting as primaries, which is how no-primary coverage
	// failures surface in a static cluster.
	StaticRing struct {
		mu    sync.RWMutex
		nodes []string
		down  map[string]bool
	}
)

// NewStaticRing builds a ring from a comma-separated or pre-split node
// list.
func NewStaticRing(nodes []string) *StaticRing {
	if len(nodes) == 1 && strings.Contains(nodes[0], ",") {
		nodes = strings.Split(nodes[0], ",")
	}
	cleaned := make([]string, 0, len(nodes))
	for _, n := range nodes {
		n = strings.TrimSpace(n)
		if n != "" {
			cleaned = append(cleaned, n)
		}
	}
	return &StaticRing{
		nodes: cleaned,
		down:  make(map[string]bool),
	}
}

func (r *StaticRing) ChashKey(bucket, key string) uint64 {
	return xxhash.Sum64String(bucket + "/" + key)
}

// PrimaryOwners returns up to nval distinct live nodes, walking the ring
// from the partition the index hashes into.
func (r *StaticRing) PrimaryOwners(docIdx uint64, nval int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 || nval <= 0 {
		return nil
	}

	start := int(docIdx % ringPartitions)
	var owners []string
	seen := make(map[string]bool)
	for i := 0; i < ringPartitions && len(owners) < nval; i++ {
		node := r.nodes[(start+i)%len(r.nodes)]
		if seen[node] || r.down[node] {
			continue
		}
		seen[node] = true
		owners = append(owners, node)
	}
	return owners
}

func (r *StaticRing) MarkDown(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down[node] = true
}

func (r *StaticRing) MarkUp(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.down, node)
}

func (r *StaticRing) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.nodes))
	copy(out, r.nodes)
	return out
}

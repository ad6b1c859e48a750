package coverage

import (
	"errors"
	"fmt"

	"github.com/quantadb/quantadb/compiler"
	"github.com/quantadb/quantadb/partition"
)

type (
	// Ring is the cluster membership view: consistent hashing plus primary
	// ownership lookups. Ring maintenance lives outside the query layer.
	Ring interface {
		ChashKey(bucket, key string) uint64
		PrimaryOwners(docIdx uint64, nval int) []string
	}

	// Plan assigns a sub-query to the single node that will serve it.
	Plan struct {
		Node    string
		Filters []string
	}
)

var ErrNoPrimaries = errors.New("no primaries available for sub-query")

// PlanSubQuery packs the sub-query's startkey into the engine-level
// partition key, hashes it, and picks the first primary owner. Fallbacks
// are never used: partial results from a fallback would be wrong, so a
// sub-query with no live primary fails instead.
func PlanSubQuery(sub *compiler.SubQuery, bucket string, nval int, ring Ring) (Plan, error) {
	key, err := subQueryKey(sub)
	if err != nil {
		return Plan{}, fmt.Errorf("error packing partition key: %w", err)
	}

	docIdx := ring.ChashKey(bucket, key)
	owners := ring.PrimaryOwners(docIdx, nval)
	if len(owners) == 0 {
		return Plan{}, ErrNoPrimaries
	}
	return Plan{Node: owners[0], Filters: []string{}}, nil
}

func subQueryKey(sub *compiler.SubQuery) (string, error) {
	return partition.PartitionPath(sub.Table.PartitionKey, sub.Where.Start)
}

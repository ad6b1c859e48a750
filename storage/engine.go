package storage

import (
	"context"

	"github.com/quantadb/quantadb/qid"
)

type (
	// ScanRange addresses one range scan: the partition to scan and the
	// local key bounds within it.
	ScanRange struct {
		Bucket    string
		Partition string
		Start     string
		End       string
		// StartInclusive and EndInclusive say whether Start and End
		// themselves are in range; the zero value excludes both.
		StartInclusive bool
		EndInclusive   bool
	}

	// Reply is one message a scan streams back to the owning worker:
	// a chunk of results, a terminal done, or an error.
	Reply struct {
		SubQID qid.SubQID
		Chunk  Chunk
		Done   bool
		Err    error
	}

	// Engine is the storage backend: a partitioned K/V store addressed by
	// node. Get/put/delete and the scan implementation live outside the
	// query layer.
	Engine interface {
		RangeScan(ctx context.Context, node string, rng ScanRange) (Chunk, error)
		Put(ctx context.Context, node, bucket, partitionKey, localKey string, value []byte) error

		Shutdown(ctx context.Context) error
	}
)

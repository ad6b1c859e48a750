package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/quantadb/quantadb/coverage"
	"github.com/quantadb/quantadb/gologger"
	"github.com/quantadb/quantadb/partition"
	"github.com/quantadb/quantadb/storage"
)

type (
	// StorageDispatcher is the production run_sub_qs: plan each sub-query,
	// scan its primary with the per-sub-query deadline and retry budget,
	// stream replies back to the worker.
	StorageDispatcher struct {
		engine  storage.Engine
		ring    coverage.Ring
		nval    int
		timeout time.Duration
		retries uint64
		logger  zerolog.Logger
	}
)

var ErrSubQueryTimeout = errors.New("sub-query timed out")

func NewStorageDispatcher(engine storage.Engine, ring coverage.Ring, nval int, timeout time.Duration, retries int64) *StorageDispatcher {
	return &StorageDispatcher{
		engine:  engine,
		ring:    ring,
		nval:    nval,
		timeout: timeout,
		retries: uint64(retries),
		logger:  gologger.NewLogger(),
	}
}

// RunSubQueries satisfies Dispatch.
func (d *StorageDispatcher) RunSubQueries(ctx context.Context, inbox chan<- storage.Reply, entries []DispatchEntry) {
	for _, e := range entries {
		go d.runOne(ctx, inbox, e)
	}
}

func (d *StorageDispatcher) runOne(ctx context.Context, inbox chan<- storage.Reply, e DispatchEntry) {
	plan, err := coverage.PlanSubQuery(e.Sub, e.Sub.Table.Name, d.nval, d.ring)
	if err != nil {
		inbox <- storage.Reply{SubQID: e.SubQID, Err: err}
		return
	}

	rng, err := scanRange(e)
	if err != nil {
		inbox <- storage.Reply{SubQID: e.SubQID, Err: err}
		return
	}

	scanCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var chunk storage.Chunk
	err = backoff.Retry(func() error {
		var scanErr error
		chunk, scanErr = d.engine.RangeScan(scanCtx, plan.Node, rng)
		return scanErr
	}, backoff.WithMaxRetries(backoff.WithContext(backoff.NewExponentialBackOff(), scanCtx), d.retries))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrSubQueryTimeout
		}
		d.logger.Debug().Str("subQID", e.SubQID.String()).Str("node", plan.Node).Err(err).Msg("range scan failed")
		inbox <- storage.Reply{SubQID: e.SubQID, Err: err}
		return
	}

	inbox <- storage.Reply{SubQID: e.SubQID, Chunk: chunk}
	inbox <- storage.Reply{SubQID: e.SubQID, Done: true}
}

func scanRange(e DispatchEntry) (storage.ScanRange, error) {
	tbl := e.Sub.Table
	where := e.Sub.Where

	part, err := partition.PartitionPath(tbl.PartitionKey, where.Start)
	if err != nil {
		return storage.ScanRange{}, fmt.Errorf("error packing partition key: %w", err)
	}
	start, err := partition.LocalKeyPath(tbl.LocalKey, where.Start)
	if err != nil {
		return storage.ScanRange{}, fmt.Errorf("error packing startkey: %w", err)
	}
	end, err := partition.LocalKeyPath(tbl.LocalKey, where.End)
	if err != nil {
		return storage.ScanRange{}, fmt.Errorf("error packing endkey: %w", err)
	}

	return storage.ScanRange{
		Bucket:         tbl.Name,
		Partition:      part,
		Start:          start,
		End:            end,
		StartInclusive: where.StartsInclusive(),
		EndInclusive:   where.EndsInclusive(),
	}, nil
}

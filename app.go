package main

import (
	"context"
	"strings"
	"time"

	"github.com/quantadb/quantadb/catalog"
	"github.com/quantadb/quantadb/compilestate"
	"github.com/quantadb/quantadb/coverage"
	"github.com/quantadb/quantadb/qid"
	"github.com/quantadb/quantadb/queryqueue"
	"github.com/quantadb/quantadb/storage"
	"github.com/quantadb/quantadb/utils"
	"github.com/quantadb/quantadb/worker"
)

type (
	QuantaDB struct {
		Catalog   catalog.Catalog
		Registry  *compilestate.Registry
		Activator *catalog.Activator
		Queue     *queryqueue.Queue
		Ring      *coverage.StaticRing
		Engine    storage.Engine
		QIDs      *qid.Source

		workers []*worker.Worker
		cancel  context.CancelFunc
	}
)

func NewQuantaDB(cat catalog.Catalog, engine storage.Engine) (*QuantaDB, error) {
	registry := compilestate.New()

	nodeName := utils.NODE_NAME
	if nodeName == "" {
		nodeName = utils.GenKSortedID("node_")
	}

	q := &QuantaDB{
		Catalog:   cat,
		Registry:  registry,
		Activator: catalog.NewActivator(cat, registry),
		Queue:     queryqueue.New(int(utils.QUERY_QUEUE_DEPTH)),
		Ring:      coverage.NewStaticRing(strings.Split(utils.RING_NODES, ",")),
		Engine:    engine,
		QIDs:      qid.NewSource(nodeName),
	}
	return q, nil
}

// StartWorkers spins up the query workers, each pulling from the shared
// queue and dispatching through the storage engine.
func (q *QuantaDB) StartWorkers(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)

	dispatcher := worker.NewStorageDispatcher(
		q.Engine,
		q.Ring,
		int(utils.RING_NVAL),
		time.Millisecond*time.Duration(utils.SUB_QUERY_TIMEOUT_MS),
		utils.FETCH_RETRIES,
	)

	for i := int64(0); i < utils.QUERY_WORKERS; i++ {
		w := worker.New(utils.GenRandomShortID(), q.Queue, dispatcher.RunSubQueries)
		q.workers = append(q.workers, w)
		go w.Run(ctx)
	}
}

func (q *QuantaDB) Shutdown(ctx context.Context) error {
	if q.cancel != nil {
		q.cancel()
	}
	if err := q.Engine.Shutdown(ctx); err != nil {
		return err
	}
	return q.Catalog.Shutdown(ctx)
}

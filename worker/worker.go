package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantadb/quantadb/compiler"
	"github.com/quantadb/quantadb/gologger"
	"github.com/quantadb/quantadb/qid"
	"github.com/quantadb/quantadb/queryqueue"
	"github.com/quantadb/quantadb/sqlast"
	"github.com/quantadb/quantadb/storage"
)

type (
	Status string

	// DispatchEntry pairs a sub-query with the id its replies must carry.
	DispatchEntry struct {
		Sub    *compiler.SubQuery
		SubQID qid.SubQID
	}

	// Dispatch fans the sub-queries out to storage. Replies stream into
	// the inbox. Injectable so tests can drive the worker directly.
	Dispatch func(ctx context.Context, inbox chan<- storage.Reply, entries []DispatchEntry)

	indexedRows struct {
		index int
		rows  [][]storage.Cell
	}

	// Worker owns one query at a time: it pops the next entry off the
	// queue, fans its sub-queries out, gathers chunks in arrival order,
	// and replies with rows in coverage plan order.
	Worker struct {
		name     string
		logger   zerolog.Logger
		queue    *queryqueue.Queue
		inbox    chan storage.Reply
		runSubQs Dispatch

		qid     qid.QID
		hasQID  bool
		replyTo chan queryqueue.Result
		query   *sqlast.Select
		subQrys map[int]bool
		status  Status
		result  []indexedRows
	}
)

const (
	StatusVoid               Status = "void"
	StatusAccumulatingChunks Status = "accumulating_chunks"

	inboxDepth = 64
)

var ErrMismanagement = errors.New("mismanagement: worker executed while busy")

func New(name string, queue *queryqueue.Queue, runSubQs Dispatch) *Worker {
	logger := gologger.NewLogger().With().Str("worker", name).Logger()
	return &Worker{
		name:     name,
		logger:   logger,
		queue:    queue,
		inbox:    make(chan storage.Reply, inboxDepth),
		runSubQs: runSubQs,
		status:   StatusVoid,
	}
}

// Inbox is the reply target dispatched sub-queries stream into.
func (w *Worker) Inbox() chan<- storage.Reply {
	return w.inbox
}

// Run drives the worker until the context ends: pop a query, accumulate
// its replies, answer, repeat.
func (w *Worker) Run(ctx context.Context) {
	for {
		entry, err := w.queue.BlockingPop(ctx)
		if err != nil {
			return
		}
		if err := w.Execute(ctx, entry); err != nil {
			continue
		}
		for w.hasQID {
			select {
			case <-ctx.Done():
				return
			case r := <-w.inbox:
				w.HandleReply(r)
			}
		}
	}
}

// Execute assigns sub-query indices in coverage plan order and fans the
// sub-queries out.
func (w *Worker) Execute(ctx context.Context, entry *queryqueue.Entry) error {
	if w.status != StatusVoid {
		w.logger.Error().Str("qid", entry.QID.String()).Msg("execute called on a busy worker, this is a bug")
		w.reply(entry.ReplyTo, queryqueue.Result{Err: ErrMismanagement})
		return ErrMismanagement
	}
	if len(entry.SubQueries) == 0 {
		w.reply(entry.ReplyTo, queryqueue.Result{Err: compiler.ErrInvalidQuery})
		return compiler.ErrInvalidQuery
	}

	entries := make([]DispatchEntry, len(entry.SubQueries))
	subQrys := make(map[int]bool, len(entry.SubQueries))
	for i, sub := range entry.SubQueries {
		idx := i + 1
		entries[i] = DispatchEntry{
			Sub:    sub,
			SubQID: qid.SubQID{Index: idx, QID: entry.QID},
		}
		subQrys[idx] = true
	}

	w.runSubQs(ctx, w.inbox, entries)

	w.qid = entry.QID
	w.hasQID = true
	w.replyTo = entry.ReplyTo
	w.query = entry.SubQueries[0].Select
	w.subQrys = subQrys
	w.status = StatusVoid
	return nil
}

// HandleReply processes one incoming chunk, done, or error message.
// Messages for a stale qid or an already finished index are dropped.
func (w *Worker) HandleReply(r storage.Reply) {
	if !w.hasQID || r.SubQID.QID != w.qid {
		w.logger.Debug().Str("subQID", r.SubQID.String()).Msg("dropping reply for stale qid")
		return
	}

	switch {
	case r.Err != nil:
		w.logger.Debug().Str("subQID", r.SubQID.String()).Err(r.Err).Msg("sub-query failed, aborting query")
		w.reply(w.replyTo, queryqueue.Result{Err: r.Err})
		w.reset()
	case r.Done:
		w.handleDone()
	default:
		w.handleChunk(r)
	}
}

func (w *Worker) handleChunk(r storage.Reply) {
	idx := r.SubQID.Index
	if !w.subQrys[idx] {
		w.logger.Debug().Str("subQID", r.SubQID.String()).Msg("dropping extra chunk for finished sub-query")
		return
	}

	rows, err := decodeChunk(r.Chunk, w.query)
	if err != nil {
		w.reply(w.replyTo, queryqueue.Result{Err: err})
		w.reset()
		return
	}

	// One chunk per sub-query: the index is retired as soon as its first
	// chunk lands.
	w.result = append(w.result, indexedRows{index: idx, rows: rows})
	delete(w.subQrys, idx)
	w.status = StatusAccumulatingChunks
}

func (w *Worker) handleDone() {
	if len(w.subQrys) > 0 {
		return
	}

	sort.Slice(w.result, func(i, j int) bool { return w.result[i].index < w.result[j].index })
	var rows [][]storage.Cell
	for _, ir := range w.result {
		rows = append(rows, ir.rows...)
	}
	w.reply(w.replyTo, queryqueue.Result{Rows: rows})
	w.reset()
}

func (w *Worker) reply(to chan queryqueue.Result, res queryqueue.Result) {
	if to == nil {
		return
	}
	select {
	case to <- res:
	default:
		w.logger.Debug().Msg("dropping result, client is gone")
	}
}

func (w *Worker) reset() {
	w.hasQID = false
	w.qid = qid.QID{}
	w.replyTo = nil
	w.query = nil
	w.subQrys = nil
	w.result = nil
	w.status = StatusVoid
}

// decodeChunk reconstructs the rows of one chunk and applies the select
// projection. Tombstoned records decode to empty values and are skipped.
func decodeChunk(chunk storage.Chunk, sel *sqlast.Select) ([][]storage.Cell, error) {
	var rows [][]storage.Cell
	for _, kv := range chunk {
		cells, err := storage.DecodeRow(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("error decoding record %s: %w", kv.Key, err)
		}
		if len(cells) == 0 {
			continue
		}
		rows = append(rows, project(cells, sel))
	}
	return rows, nil
}

// project keeps the selected columns in stored order.
func project(cells []storage.Cell, sel *sqlast.Select) []storage.Cell {
	if sel == nil || sel.SelectsAll() {
		return cells
	}
	selected := make(map[string]bool, len(sel.Columns))
	for _, c := range sel.Columns {
		selected[c] = true
	}
	out := make([]storage.Cell, 0, len(cells))
	for _, c := range cells {
		if selected[c.Field] {
			out = append(out, c)
		}
	}
	return out
}

package queryqueue

import (
	"context"
	"errors"

	"github.com/quantadb/quantadb/compiler"
	"github.com/quantadb/quantadb/ddl"
	"github.com/quantadb/quantadb/qid"
	"github.com/quantadb/quantadb/storage"
)

type (
	// Result is the single reply a query gets: the assembled rows in
	// coverage plan order, or the first error any sub-query hit.
	Result struct {
		Rows [][]storage.Cell
		Err  error
	}

	// Entry is one pending query.
	Entry struct {
		ReplyTo    chan Result
		QID        qid.QID
		SubQueries []*compiler.SubQuery
		Table      *ddl.Table
	}

	// Queue is the process-wide FIFO workers pull from. Bounded; producers
	// get an error instead of blocking when it is full.
	Queue struct {
		ch chan *Entry
	}
)

var ErrQueueFull = errors.New("query queue is full")

func New(depth int) *Queue {
	return &Queue{
		ch: make(chan *Entry, depth),
	}
}

func (q *Queue) Push(e *Entry) error {
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// BlockingPop hands the next pending query to exactly one caller.
func (q *Queue) BlockingPop(ctx context.Context) (*Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case e := <-q.ch:
		return e, nil
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantadb/quantadb/compiler"
	"github.com/quantadb/quantadb/coverage"
	"github.com/quantadb/quantadb/ddl"
	"github.com/quantadb/quantadb/partition"
	"github.com/quantadb/quantadb/qid"
	"github.com/quantadb/quantadb/queryqueue"
	"github.com/quantadb/quantadb/sqlast"
	"github.com/quantadb/quantadb/storage"
)

func testTable(t *testing.T) *ddl.Table {
	tbl := &ddl.Table{
		Name: "GeoCheckin",
		Fields: []ddl.Field{
			{Name: "location", Type: ddl.TypeVarchar},
			{Name: "user", Type: ddl.TypeVarchar},
			{Name: "time", Type: ddl.TypeTimestamp},
			{Name: "weather", Type: ddl.TypeVarchar},
			{Name: "temperature", Type: ddl.TypeDouble, Nullable: true},
		},
		PartitionKey: []ddl.KeyComponent{
			{Param: "location"},
			{Param: "user"},
			{Quantum: &ddl.Quantum{Field: "time", N: 15, Unit: ddl.UnitSecond}},
		},
		LocalKey: []string{"location", "user", "time"},
	}
	require.NoError(t, tbl.Validate())
	return tbl
}

func compileRange(t *testing.T, tbl *ddl.Table, columns []string, loMS, hiMS int64) []*compiler.SubQuery {
	sel := &sqlast.Select{
		Columns: columns,
		Table:   tbl.Name,
		Where: &sqlast.Expr{
			Op:  sqlast.OpAnd,
			Lhs: &sqlast.Expr{Op: sqlast.OpGte, Field: "time", Value: loMS},
			Rhs: &sqlast.Expr{
				Op:  sqlast.OpAnd,
				Lhs: &sqlast.Expr{Op: sqlast.OpLt, Field: "time", Value: hiMS},
				Rhs: &sqlast.Expr{
					Op:  sqlast.OpAnd,
					Lhs: &sqlast.Expr{Op: sqlast.OpEq, Field: "user", Value: "user_1"},
					Rhs: &sqlast.Expr{Op: sqlast.OpEq, Field: "location", Value: "San Francisco"},
				},
			},
		},
	}
	subs, err := compiler.Compile(sel, tbl, 5000)
	require.NoError(t, err)
	return subs
}

func noopDispatch(_ context.Context, _ chan<- storage.Reply, _ []DispatchEntry) {}

func encodeRow(t *testing.T, cells []storage.Cell) []byte {
	b, err := storage.EncodeRow(cells)
	require.NoError(t, err)
	return b
}

func weatherChunk(t *testing.T, weather string) storage.Chunk {
	return storage.Chunk{{
		Key: "k",
		Value: encodeRow(t, []storage.Cell{
			{Field: "weather", Value: weather},
			{Field: "temperature", Value: 20.5},
		}),
	}}
}

func newTestWorker(t *testing.T, tbl *ddl.Table, subs []*compiler.SubQuery) (*Worker, *queryqueue.Entry, chan queryqueue.Result) {
	w := New("w1", queryqueue.New(1), noopDispatch)
	replyTo := make(chan queryqueue.Result, 1)
	entry := &queryqueue.Entry{
		ReplyTo:    replyTo,
		QID:        qid.QID{Node: "n1", Seq: 1},
		SubQueries: subs,
		Table:      tbl,
	}
	require.NoError(t, w.Execute(context.Background(), entry))
	return w, entry, replyTo
}

func TestWorkerEmitsInPlanOrder(t *testing.T) {
	tbl := testTable(t)
	// two quantum windows -> indices 1 and 2
	subs := compileRange(t, tbl, []string{"weather"}, 3000, 16000)
	require.Len(t, subs, 2)
	w, entry, replyTo := newTestWorker(t, tbl, subs)

	// index 2 lands before index 1
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 2, QID: entry.QID}, Chunk: weatherChunk(t, "second")})
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 2, QID: entry.QID}, Done: true})
	require.Len(t, replyTo, 0)

	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Chunk: weatherChunk(t, "first")})
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Done: true})

	res := <-replyTo
	require.NoError(t, res.Err)
	require.Equal(t, [][]storage.Cell{
		{{Field: "weather", Value: "first"}},
		{{Field: "weather", Value: "second"}},
	}, res.Rows)
}

func TestWorkerIgnoresStaleQID(t *testing.T) {
	tbl := testTable(t)
	subs := compileRange(t, tbl, []string{"weather"}, 3000, 5000)
	w, entry, replyTo := newTestWorker(t, tbl, subs)

	stale := qid.SubQID{Index: 1, QID: qid.QID{Node: "n1", Seq: 99}}
	w.HandleReply(storage.Reply{SubQID: stale, Chunk: weatherChunk(t, "stale")})
	w.HandleReply(storage.Reply{SubQID: stale, Done: true})
	require.Len(t, replyTo, 0)

	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Chunk: weatherChunk(t, "live")})
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Done: true})

	res := <-replyTo
	require.NoError(t, res.Err)
	require.Equal(t, [][]storage.Cell{{{Field: "weather", Value: "live"}}}, res.Rows)
}

func TestWorkerKeepsFirstChunkPerIndex(t *testing.T) {
	tbl := testTable(t)
	subs := compileRange(t, tbl, []string{"weather"}, 3000, 5000)
	w, entry, replyTo := newTestWorker(t, tbl, subs)

	subQID := qid.SubQID{Index: 1, QID: entry.QID}
	w.HandleReply(storage.Reply{SubQID: subQID, Chunk: weatherChunk(t, "kept")})
	w.HandleReply(storage.Reply{SubQID: subQID, Chunk: weatherChunk(t, "dropped")})
	w.HandleReply(storage.Reply{SubQID: subQID, Done: true})

	res := <-replyTo
	require.NoError(t, res.Err)
	require.Equal(t, [][]storage.Cell{{{Field: "weather", Value: "kept"}}}, res.Rows)
}

func TestWorkerAbortsOnError(t *testing.T) {
	tbl := testTable(t)
	subs := compileRange(t, tbl, []string{"weather"}, 3000, 16000)
	require.Len(t, subs, 2)
	w, entry, replyTo := newTestWorker(t, tbl, subs)

	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Chunk: weatherChunk(t, "gone")})
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 2, QID: entry.QID}, Err: ErrSubQueryTimeout})

	res := <-replyTo
	require.ErrorIs(t, res.Err, ErrSubQueryTimeout)
	require.Nil(t, res.Rows)

	// worker reset: late done for the old qid is ignored
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Done: true})
	require.Len(t, replyTo, 0)
}

func TestWorkerMismanagement(t *testing.T) {
	tbl := testTable(t)
	subs := compileRange(t, tbl, []string{"weather"}, 3000, 5000)
	w, entry, _ := newTestWorker(t, tbl, subs)

	// a chunk moves the worker to accumulating
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Chunk: weatherChunk(t, "x")})

	otherReply := make(chan queryqueue.Result, 1)
	err := w.Execute(context.Background(), &queryqueue.Entry{
		ReplyTo:    otherReply,
		QID:        qid.QID{Node: "n1", Seq: 2},
		SubQueries: subs,
		Table:      tbl,
	})
	require.ErrorIs(t, err, ErrMismanagement)
	res := <-otherReply
	require.ErrorIs(t, res.Err, ErrMismanagement)
}

func TestWorkerSkipsTombstonesAndProjects(t *testing.T) {
	tbl := testTable(t)
	subs := compileRange(t, tbl, []string{"weather"}, 3000, 5000)
	w, entry, replyTo := newTestWorker(t, tbl, subs)

	chunk := storage.Chunk{
		{Key: "k1", Value: encodeRow(t, []storage.Cell{
			{Field: "weather", Value: "sunny"},
			{Field: "temperature", Value: 21.0},
		})},
		{Key: "k2", Value: nil}, // tombstone
		{Key: "k3", Value: encodeRow(t, []storage.Cell{
			{Field: "weather", Value: "cloudy"},
			{Field: "temperature", Value: 18.0},
		})},
	}
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Chunk: chunk})
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Done: true})

	res := <-replyTo
	require.NoError(t, res.Err)
	require.Equal(t, [][]storage.Cell{
		{{Field: "weather", Value: "sunny"}},
		{{Field: "weather", Value: "cloudy"}},
	}, res.Rows)
}

func TestWorkerSelectStarKeepsStoredOrder(t *testing.T) {
	tbl := testTable(t)
	subs := compileRange(t, tbl, []string{"*"}, 3000, 5000)
	w, entry, replyTo := newTestWorker(t, tbl, subs)

	cells := []storage.Cell{
		{Field: "temperature", Value: 21.0},
		{Field: "weather", Value: "sunny"},
	}
	w.HandleReply(storage.Reply{
		SubQID: qid.SubQID{Index: 1, QID: entry.QID},
		Chunk:  storage.Chunk{{Key: "k1", Value: encodeRow(t, cells)}},
	})
	w.HandleReply(storage.Reply{SubQID: qid.SubQID{Index: 1, QID: entry.QID}, Done: true})

	res := <-replyTo
	require.NoError(t, res.Err)
	require.Equal(t, [][]storage.Cell{cells}, res.Rows)
}

// TestWorkerEndToEnd runs the full path: rows in the engine, a query on the
// queue, the storage dispatcher fanning out, rows back in plan order.
func TestWorkerEndToEnd(t *testing.T) {
	tbl := testTable(t)
	engine := storage.NewMemEngine()
	ring := coverage.NewStaticRing([]string{"node-a", "node-b"})

	put := func(tsMS int64, weather string) {
		cells := []partition.KeyCell{
			{Field: "location", Type: ddl.TypeVarchar, Value: "San Francisco"},
			{Field: "user", Type: ddl.TypeVarchar, Value: "user_1"},
			{Field: "time", Type: ddl.TypeTimestamp, Value: tsMS},
		}
		partKey, err := partition.PartitionPath(tbl.PartitionKey, cells)
		require.NoError(t, err)
		localKey, err := partition.LocalKeyPath(tbl.LocalKey, cells)
		require.NoError(t, err)
		value := encodeRow(t, []storage.Cell{
			{Field: "time", Value: tsMS},
			{Field: "weather", Value: weather},
		})
		owners := ring.PrimaryOwners(ring.ChashKey(tbl.Name, partKey), 2)
		require.NotEmpty(t, owners)
		for _, node := range owners {
			require.NoError(t, engine.Put(context.Background(), node, tbl.Name, partKey, localKey, value))
		}
	}

	put(4000, "sunny")
	put(14000, "rainy")
	put(16000, "windy")
	put(40000, "out of range")

	queue := queryqueue.New(4)
	dispatcher := NewStorageDispatcher(engine, ring, 2, time.Second*10, 10)
	w := New("w1", queue, dispatcher.RunSubQueries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	subs := compileRange(t, tbl, []string{"weather"}, 3000, 31000)
	require.Len(t, subs, 3)

	replyTo := make(chan queryqueue.Result, 1)
	require.NoError(t, queue.Push(&queryqueue.Entry{
		ReplyTo:    replyTo,
		QID:        qid.QID{Node: "n1", Seq: 7},
		SubQueries: subs,
		Table:      tbl,
	}))

	select {
	case res := <-replyTo:
		require.NoError(t, res.Err)
		require.Equal(t, [][]storage.Cell{
			{{Field: "weather", Value: "sunny"}},
			{{Field: "weather", Value: "rainy"}},
			{{Field: "weather", Value: "windy"}},
		}, res.Rows)
	case <-time.After(time.Second * 5):
		t.Fatal("timed out waiting for query result")
	}
}

package http_server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantadb/quantadb/compiler"
	"github.com/quantadb/quantadb/compilestate"
	"github.com/quantadb/quantadb/queryqueue"
	"github.com/quantadb/quantadb/sqlast"
	"github.com/quantadb/quantadb/storage"
	"github.com/quantadb/quantadb/utils"
)

type (
	// QueryReqBody carries the parsed form of a SELECT. SQL text parsing
	// lives behind sqlast.Parser, outside this server.
	QueryReqBody struct {
		Select *sqlast.Select `json:"select" validate:"required"`
	}

	QueryResBody struct {
		QID  string           `json:"qid"`
		Rows [][]storage.Cell `json:"rows"`
	}
)

func (s *HTTPServer) QueryHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	logger := zerolog.Ctx(ctx)

	var reqBody QueryReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return wireErr(c, http.StatusBadRequest, CodeParseError, err.Error())
	}
	sel := reqBody.Select

	switch s.registry.GetState(sel.Table) {
	case compilestate.StateNotFound:
		return wireErr(c, http.StatusNotFound, CodeNotFound, "table "+sel.Table+" not found")
	case compilestate.StateCompiling, compilestate.StateFailed:
		return wireErr(c, http.StatusServiceUnavailable, CodeTableInactive, "table "+sel.Table+" is not active")
	}
	tbl, ok := s.registry.DDL(sel.Table)
	if !ok {
		return wireErr(c, http.StatusInternalServerError, CodeMissingTSModule, "no helper module for table "+sel.Table)
	}

	subs, err := compiler.Compile(sel, tbl, int(utils.QUERY_MAX_QUANTA_SPAN))
	if err != nil {
		return wireErr(c, http.StatusBadRequest, CodeBadQuery, err.Error())
	}

	queryID := s.qids.Next()
	replyTo := make(chan queryqueue.Result, 1)
	err = s.queue.Push(&queryqueue.Entry{
		ReplyTo:    replyTo,
		QID:        queryID,
		SubQueries: subs,
		Table:      tbl,
	})
	if err != nil {
		return wireErr(c, http.StatusServiceUnavailable, CodeSubmit, err.Error())
	}
	logger.Debug().Str("qid", queryID.String()).Int("subQueries", len(subs)).Msg("query enqueued")

	select {
	case <-ctx.Done():
		return wireErr(c, http.StatusGatewayTimeout, CodeTimeout, "timed out waiting for query result")
	case res := <-replyTo:
		if res.Err != nil {
			return queryErr(c, res.Err)
		}
		return c.JSON(http.StatusOK, QueryResBody{
			QID:  queryID.String(),
			Rows: utils.ArrayOrEmpty(res.Rows),
		})
	}
}

package http_server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantadb/quantadb/catalog"
	"github.com/quantadb/quantadb/compiler"
	"github.com/quantadb/quantadb/compilestate"
	"github.com/quantadb/quantadb/ddl"
	"github.com/quantadb/quantadb/partition"
	"github.com/quantadb/quantadb/sqlast"
	"github.com/quantadb/quantadb/storage"
)

type (
	CreateTableRes struct {
		Table  string `json:"table"`
		Active bool   `json:"active"`
	}

	InsertRes struct {
		Inserted int `json:"inserted"`
	}
)

func (s *HTTPServer) CreateTableHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	var tbl ddl.Table
	if err := ValidateRequest(c, &tbl); err != nil {
		return wireErr(c, http.StatusBadRequest, CodeParseError, err.Error())
	}

	if err := s.activator.CreateTable(ctx, &tbl); err != nil {
		if errors.Is(err, catalog.ErrTableExists) {
			return wireErr(c, http.StatusConflict, CodeCreate, err.Error())
		}
		return wireErr(c, http.StatusBadRequest, CodeCreate, err.Error())
	}
	if err := s.activator.Activate(ctx, tbl.Name); err != nil {
		return wireErr(c, http.StatusInternalServerError, CodeActivate, err.Error())
	}
	if err := s.activator.WaitActive(ctx, tbl.Name); err != nil {
		return wireErr(c, http.StatusInternalServerError, CodeActivate, err.Error())
	}

	return c.JSON(http.StatusCreated, CreateTableRes{Table: tbl.Name, Active: true})
}

func (s *HTTPServer) DescribeTableHandler(c *CustomContext) error {
	name := c.Param("table")

	tbl, ok := s.registry.DDL(name)
	if !ok {
		var err error
		tbl, _, err = s.activator.Catalog.GetTable(c.Request().Context(), name)
		if err != nil {
			return wireErr(c, http.StatusNotFound, CodeNotFound, "table "+name+" not found")
		}
	}
	return c.JSON(http.StatusOK, tbl)
}

func (s *HTTPServer) InsertHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	logger := zerolog.Ctx(ctx)

	var reqBody sqlast.Insert
	if err := ValidateRequest(c, &reqBody); err != nil {
		return wireErr(c, http.StatusBadRequest, CodeParseError, err.Error())
	}

	switch s.registry.GetState(reqBody.Table) {
	case compilestate.StateNotFound:
		return wireErr(c, http.StatusNotFound, CodeNotFound, "table "+reqBody.Table+" not found")
	case compilestate.StateCompiling, compilestate.StateFailed:
		return wireErr(c, http.StatusServiceUnavailable, CodeTableInactive, "table "+reqBody.Table+" is not active")
	}
	tbl, _ := s.registry.DDL(reqBody.Table)

	for rowNum, values := range reqBody.Values {
		if len(values) != len(reqBody.Columns) {
			return wireErr(c, http.StatusBadRequest, CodeIrregularData, fmt.Sprintf("row %d has %d values for %d columns", rowNum, len(values), len(reqBody.Columns)))
		}

		cells := make([]storage.Cell, 0, len(values))
		keyCells := make([]partition.KeyCell, 0, len(tbl.LocalKey))
		for i, col := range reqBody.Columns {
			ft, err := tbl.FieldType(col)
			if err != nil {
				return wireErr(c, http.StatusBadRequest, CodeMissingType, err.Error())
			}
			v, err := compiler.CoerceValue(ft, values[i])
			if err != nil {
				return wireErr(c, http.StatusBadRequest, CodeIrregularData, err.Error())
			}
			cells = append(cells, storage.Cell{Field: col, Value: v})
			keyCells = append(keyCells, partition.KeyCell{Field: col, Type: ft, Value: v})
		}

		partKey, err := partition.PartitionPath(tbl.PartitionKey, keyCells)
		if err != nil {
			return wireErr(c, http.StatusBadRequest, CodeBadKeyLength, err.Error())
		}
		localKey, err := partition.LocalKeyPath(tbl.LocalKey, keyCells)
		if err != nil {
			return wireErr(c, http.StatusBadRequest, CodeBadKeyLength, err.Error())
		}

		value, err := storage.EncodeRow(cells)
		if err != nil {
			return c.InternalError(err, "error encoding row")
		}

		owners := s.ring.PrimaryOwners(s.ring.ChashKey(tbl.Name, partKey), s.nval)
		if len(owners) == 0 {
			return wireErr(c, http.StatusServiceUnavailable, CodePut, "no primaries available for partition")
		}
		for _, node := range owners {
			if err := s.engine.Put(ctx, node, tbl.Name, partKey, localKey, value); err != nil {
				return wireErr(c, http.StatusInternalServerError, CodePut, err.Error())
			}
		}
	}

	logger.Debug().Str("table", reqBody.Table).Int("rows", len(reqBody.Values)).Msg("rows inserted")
	return c.JSON(http.StatusCreated, InsertRes{Inserted: len(reqBody.Values)})
}

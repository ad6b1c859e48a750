package http_server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quantadb/quantadb/compiler"
	"github.com/quantadb/quantadb/coverage"
	"github.com/quantadb/quantadb/worker"
)

// Wire error codes, preserved for client compatibility.
const (
	CodeSubmit          = 1001
	CodeFetch           = 1002
	CodeIrregularData   = 1003
	CodePut             = 1004
	CodeNotTSType       = 1006
	CodeMissingType     = 1007
	CodeMissingTSModule = 1008
	CodeDelete          = 1009
	CodeGet             = 1010
	CodeBadKeyLength    = 1011
	CodeListKeys        = 1012
	CodeTimeout         = 1013
	CodeCreate          = 1014
	CodeActivate        = 1017
	CodeBadQuery        = 1018
	CodeTableInactive   = 1019
	CodeParseError      = 1020
	CodeNotFound        = 1021
)

type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func wireErr(c echo.Context, status, code int, msg string) error {
	return c.JSON(status, WireError{Code: code, Message: msg})
}

// queryErr maps an executed query's failure onto its wire code.
func queryErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, worker.ErrSubQueryTimeout):
		return wireErr(c, http.StatusGatewayTimeout, CodeTimeout, err.Error())
	case errors.Is(err, coverage.ErrNoPrimaries):
		return wireErr(c, http.StatusServiceUnavailable, CodeFetch, err.Error())
	case errors.Is(err, compiler.ErrInvalidQuery):
		return wireErr(c, http.StatusBadRequest, CodeBadQuery, err.Error())
	case errors.Is(err, worker.ErrMismanagement):
		return wireErr(c, http.StatusInternalServerError, CodeSubmit, err.Error())
	default:
		return wireErr(c, http.StatusInternalServerError, CodeFetch, err.Error())
	}
}

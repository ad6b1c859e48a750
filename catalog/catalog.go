package catalog

import (
	"context"
	"errors"

	"github.com/quantadb/quantadb/ddl"
	"github.com/quantadb/quantadb/gologger"
)

var (
	logger = gologger.NewLogger()

	ErrTableExists   = errors.New("table already exists")
	ErrTableNotFound = errors.New("table not found")
)

type (
	// Catalog persists table DDLs across restarts. The compile-state
	// registry is rebuilt from it on boot.
	Catalog interface {
		// CreateTable stores a new table's schema, inactive.
		CreateTable(ctx context.Context, tbl *ddl.Table) error

		// GetTable fetches a table's schema and whether it is active.
		GetTable(ctx context.Context, name string) (*ddl.Table, bool, error)

		SetActive(ctx context.Context, name string, active bool) error

		ListTables(ctx context.Context) ([]string, error)

		Shutdown(ctx context.Context) error
	}
)

package catalog

import (
	"context"
	"sync"

	"github.com/quantadb/quantadb/ddl"
)

type (
	memRow struct {
		tbl    *ddl.Table
		active bool
	}

	// MemCatalog keeps schemas in memory. Used when no CRDB_DSN is
	// configured, and by tests.
	MemCatalog struct {
		mu   sync.RWMutex
		rows map[string]memRow
	}
)

func NewMemCatalog() *MemCatalog {
	return &MemCatalog{
		rows: make(map[string]memRow),
	}
}

func (c *MemCatalog) CreateTable(_ context.Context, tbl *ddl.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.rows[tbl.Name]; exists {
		return ErrTableExists
	}
	c.rows[tbl.Name] = memRow{tbl: tbl}
	return nil
}

func (c *MemCatalog) GetTable(_ context.Context, name string) (*ddl.Table, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.rows[name]
	if !ok {
		return nil, false, ErrTableNotFound
	}
	return row.tbl, row.active, nil
}

func (c *MemCatalog) SetActive(_ context.Context, name string, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[name]
	if !ok {
		return ErrTableNotFound
	}
	row.active = active
	c.rows[name] = row
	return nil
}

func (c *MemCatalog) ListTables(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.rows))
	for name := range c.rows {
		names = append(names, name)
	}
	return names, nil
}

func (c *MemCatalog) Shutdown(_ context.Context) error {
	return nil
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/quantadb/quantadb/ddl"
	"github.com/quantadb/quantadb/utils"
)

type (
	CRDBCatalog struct {
		pool *pgxpool.Pool
	}
)

func NewCRDBCatalog(pool *pgxpool.Pool) *CRDBCatalog {
	return &CRDBCatalog{pool: pool}
}

func (c *CRDBCatalog) CreateTable(ctx context.Context, tbl *ddl.Table) error {
	ddlJSON, err := json.Marshal(tbl)
	if err != nil {
		return fmt.Errorf("error in json.Marshal: %w", err)
	}

	return utils.ReliableExec(ctx, c.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, "INSERT INTO tables (name, ddl) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING", tbl.Name, ddlJSON)
		if err != nil {
			return fmt.Errorf("error inserting table: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return utils.PermError(ErrTableExists.Error())
		}
		return nil
	})
}

func (c *CRDBCatalog) GetTable(ctx context.Context, name string) (*ddl.Table, bool, error) {
	var ddlJSON []byte
	var active bool
	err := utils.ReliableExec(ctx, c.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx, "SELECT ddl, active FROM tables WHERE name = $1", name).Scan(&ddlJSON, &active)
		if errors.Is(err, pgx.ErrNoRows) {
			return utils.PermError(ErrTableNotFound.Error())
		}
		if err != nil {
			return fmt.Errorf("error selecting table: %w", err)
		}
		return nil
	})
	if err != nil {
		var permErr utils.PermError
		if errors.As(err, &permErr) && permErr.Error() == ErrTableNotFound.Error() {
			return nil, false, ErrTableNotFound
		}
		return nil, false, err
	}

	tbl := &ddl.Table{}
	err = json.Unmarshal(ddlJSON, tbl)
	if err != nil {
		return nil, false, fmt.Errorf("error in json.Unmarshal: %w", err)
	}
	return tbl, active, nil
}

func (c *CRDBCatalog) SetActive(ctx context.Context, name string, active bool) error {
	return utils.ReliableExec(ctx, c.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, "UPDATE tables SET active = $2, updated_at = now() WHERE name = $1", name, active)
		if err != nil {
			return fmt.Errorf("error updating table: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return utils.PermError(ErrTableNotFound.Error())
		}
		return nil
	})
}

func (c *CRDBCatalog) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	err := utils.ReliableExec(ctx, c.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, "SELECT name FROM tables ORDER BY name")
		if err != nil {
			return fmt.Errorf("error listing tables: %w", err)
		}
		defer rows.Close()
		names = names[:0]
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("error scanning table name: %w", err)
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (c *CRDBCatalog) Shutdown(_ context.Context) error {
	c.pool.Close()
	return nil
}

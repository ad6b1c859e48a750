package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantadb/quantadb/compilestate"
	"github.com/quantadb/quantadb/ddl"
	"github.com/quantadb/quantadb/utils"
)

type (
	// Activator drives table creation and activation: persist the DDL,
	// compile its helper state into the registry, mark the table active.
	Activator struct {
		Catalog  Catalog
		Registry *compilestate.Registry

		waitCeiling  time.Duration
		pollInterval time.Duration
	}
)

var (
	ErrActivationTimeout = errors.New("timed out waiting for table activation")
	ErrCompileFailed     = errors.New("table schema failed to compile")
)

func NewActivator(cat Catalog, reg *compilestate.Registry) *Activator {
	return &Activator{
		Catalog:      cat,
		Registry:     reg,
		waitCeiling:  time.Second * time.Duration(utils.ACTIVATION_WAIT_SEC),
		pollInterval: time.Millisecond * 100,
	}
}

func (a *Activator) CreateTable(ctx context.Context, tbl *ddl.Table) error {
	if err := tbl.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	err := a.Catalog.CreateTable(ctx, tbl)
	if err != nil {
		return fmt.Errorf("error in Catalog.CreateTable: %w", err)
	}
	return nil
}

// Activate compiles the table's helper state and marks it active. The
// activation task is the sole owner of the compile-state row until it
// lands on a terminal state.
func (a *Activator) Activate(ctx context.Context, name string) error {
	tbl, _, err := a.Catalog.GetTable(ctx, name)
	if err != nil {
		return fmt.Errorf("error in Catalog.GetTable: %w", err)
	}

	owner := utils.GenKSortedID("compile_")
	a.Registry.Insert(name, tbl, owner, compilestate.StateCompiling)

	if err := tbl.Validate(); err != nil {
		if stateErr := a.Registry.UpdateState(owner, compilestate.StateFailed); stateErr != nil {
			logger.Error().Err(stateErr).Str("table", name).Msg("failed to mark compile state failed")
		}
		return fmt.Errorf("%w: %s", ErrCompileFailed, err.Error())
	}

	if err := a.Registry.UpdateState(owner, compilestate.StateCompiled); err != nil {
		return fmt.Errorf("error in Registry.UpdateState: %w", err)
	}

	err = a.Catalog.SetActive(ctx, name, true)
	if err != nil {
		return fmt.Errorf("error in Catalog.SetActive: %w", err)
	}
	return nil
}

// WaitActive polls the registry until the table's helper state is compiled,
// up to the configured ceiling.
func (a *Activator) WaitActive(ctx context.Context, name string) error {
	deadline := time.Now().Add(a.waitCeiling)
	for {
		switch a.Registry.GetState(name) {
		case compilestate.StateCompiled:
			return nil
		case compilestate.StateFailed:
			return ErrCompileFailed
		}
		if time.Now().After(deadline) {
			return ErrActivationTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

// RestoreActive rebuilds the registry from the catalog after a restart.
func (a *Activator) RestoreActive(ctx context.Context) error {
	names, err := a.Catalog.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("error in Catalog.ListTables: %w", err)
	}
	for _, name := range names {
		_, active, err := a.Catalog.GetTable(ctx, name)
		if err != nil {
			return fmt.Errorf("error in Catalog.GetTable for %s: %w", name, err)
		}
		if !active {
			continue
		}
		if err := a.Activate(ctx, name); err != nil {
			logger.Error().Err(err).Str("table", name).Msg("failed to restore table activation")
		}
	}
	return nil
}

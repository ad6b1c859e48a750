package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantadb/quantadb/catalog"
	"github.com/quantadb/quantadb/crdb"
	"github.com/quantadb/quantadb/gologger"
	"github.com/quantadb/quantadb/http_server"
	"github.com/quantadb/quantadb/migrations"
	"github.com/quantadb/quantadb/storage"
	"github.com/quantadb/quantadb/utils"
)

var logger = gologger.NewLogger()

func main() {
	logger.Debug().Msg("starting quantadb query node")

	var cat catalog.Catalog
	if utils.CRDB_DSN != "" {
		if err := crdb.ConnectToDB(); err != nil {
			logger.Error().Err(err).Msg("error connecting to CRDB")
			os.Exit(1)
		}

		if err := migrations.CheckMigrations(utils.CRDB_DSN); err != nil {
			logger.Error().Err(err).Msg("Error checking migrations")
			os.Exit(1)
		}
		cat = catalog.NewCRDBCatalog(crdb.PGPool)
	} else {
		logger.Warn().Msg("no CRDB_DSN set, table schemas will not survive restarts")
		cat = catalog.NewMemCatalog()
	}

	app, err := NewQuantaDB(cat, storage.NewMemEngine())
	if err != nil {
		logger.Error().Err(err).Msg("error building quantadb")
		os.Exit(1)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), time.Second*30)
	if err := app.Activator.RestoreActive(bootCtx); err != nil {
		logger.Error().Err(err).Msg("error restoring active tables")
		bootCancel()
		os.Exit(1)
	}
	bootCancel()

	app.StartWorkers(context.Background())

	httpServer := http_server.StartHTTPServer(http_server.Deps{
		Activator: app.Activator,
		Registry:  app.Registry,
		Queue:     app.Queue,
		QIDs:      app.QIDs,
		Engine:    app.Engine,
		Ring:      app.Ring,
		NVal:      int(utils.RING_NVAL),
	})

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
	} else {
		logger.Info().Msg("successfully shutdown HTTP server")
	}
	if err := app.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown quantadb")
	}
}

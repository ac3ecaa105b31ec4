// Command datastore connects to the configured database and serves the
// admin API.
//
//	datastore -config datastore.yaml
//
// Every setting can be overridden with a DATASTORE_* environment variable,
// for example DATASTORE_DRIVER=sqlite DATASTORE_DATABASE=app.db.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/datastore/internal/config"
	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/database/mysql"
	"github.com/koustreak/datastore/internal/database/postgres"
	"github.com/koustreak/datastore/internal/database/sqlite"
	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/logger"
	"github.com/koustreak/datastore/internal/schema"
	"github.com/koustreak/datastore/internal/server"
)

func main() {
	path := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *path); err != nil {
		fmt.Fprintln(os.Stderr, "datastore:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	log := logger.New(&cfg.Log)
	logger.SetGlobal(log)

	conn, inspect, closeFn, err := open(ctx, &cfg.Database)
	if err != nil {
		log.ErrorWith("failed to connect", err, map[string]any{"driver": cfg.Database.Driver})
		return err
	}
	defer closeFn()

	exec := database.NewExecutor(conn,
		database.WithLogger(log),
		database.WithIsolation(cfg.Database.IsolationLevel()),
		database.WithCommandTimeout(cfg.Database.QueryTimeout),
	)
	if err := exec.Ping(ctx); err != nil {
		return err
	}
	log.InfoWith("connected", map[string]any{"driver": cfg.Database.Driver, "dialect": cfg.DialectName()})

	opts := []server.Option{server.WithLogger(log)}
	if inspect != nil {
		opts = append(opts, server.WithIntrospector(inspect, ""))
	}
	srv := server.New(exec, schema.Default, opts...)
	return srv.ListenAndServe(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
}

// open connects the configured driver. The introspector is nil for drivers
// without one.
func open(ctx context.Context, cfg *database.Config) (database.Connector, database.Introspector, func(), error) {
	switch cfg.Driver {
	case database.DriverPostgres:
		c, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return c, c, c.Close, nil
	case database.DriverMySQL:
		c, err := mysql.New(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return c, c, func() { _ = c.Close() }, nil
	case database.DriverSQLite:
		c, err := sqlite.New(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return c, nil, func() { _ = c.Close() }, nil
	}
	return nil, nil, nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported driver %q", cfg.Driver)
}

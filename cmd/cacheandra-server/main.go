// Command cacheandra-server runs a standalone cacheandra Coordinator
// behind an HTTP operational surface (/healthz, /metrics). Application
// processes that embed the Coordinator directly have no need for this
// binary; it exists for the case where cacheandra is fronted like any
// other clustered cache service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/tellybug/cacheandra/api"
	"github.com/tellybug/cacheandra/config"
	"github.com/tellybug/cacheandra/coordinator"
	"github.com/tellybug/cacheandra/log"
	"github.com/tellybug/cacheandra/metrics"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a cacheandra TOML config file",
	}
	fastTierFlag = &cli.StringSliceFlag{
		Name:  "fast-tier",
		Usage: "memcached-protocol server address, repeatable",
	}
	cassandraFlag = &cli.StringSliceFlag{
		Name:  "cassandra",
		Usage: "wide-column store contact point, repeatable",
	}
	keyspaceFlag = &cli.StringFlag{
		Name:  "keyspace",
		Usage: "durable-tier keyspace",
	}
	columnFamilyFlag = &cli.StringFlag{
		Name:  "columnfamily",
		Usage: "durable-tier blob column family (the counter CF is derived as <name>_counter)",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:  "http-addr",
		Usage: "address for the /healthz and /metrics HTTP surface",
	}
	runtimeDirFlag = &cli.StringFlag{
		Name:  "runtime-dir",
		Usage: "directory holding this instance's lock file",
		Value: ".",
	}
)

func main() {
	app := &cli.App{
		Name:  "cacheandra-server",
		Usage: "standalone two-tier cache coordinator",
		Flags: []cli.Flag{configFlag, fastTierFlag, cassandraFlag, keyspaceFlag, columnFamilyFlag, httpAddrFlag, runtimeDirFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Error("cacheandra-server: fatal", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("cacheandra-server: GOMAXPROCS auto-tuning failed", "err", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	lockPath := filepath.Join(c.String(runtimeDirFlag.Name), "cacheandra-server.lock")
	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("cacheandra-server: acquiring runtime lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("cacheandra-server: another instance already holds %s", lockPath)
	}
	defer fileLock.Unlock()

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	co := coordinator.New(coordinator.Config{
		FastServers:      cfg.FastServers,
		FastMaxIdleConns: cfg.FastMaxIdleConns,
		DurableServers:   cfg.CassandraServers,
		Keyspace:         cfg.Keyspace,
		ColumnFamily:     cfg.ColumnFamily,
		KeyPrefix:        cfg.KeyPrefix,
		KeyDelimiter:     cfg.KeyDelimiter,
		DefaultTimeout:   cfg.DefaultTimeoutDuration(),
		RetryBackoff:     cfg.RetryBackoffDuration(),
		DurableTimeout:   cfg.DurableTimeoutDuration(),
		DurableRetries:   cfg.DurableRetries,
		Metrics:          rec,
	})
	defer co.Close()

	router := api.NewRouter(co, reg)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("cacheandra-server: listening", "addr", cfg.HTTPAddr)
		serveErr <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("cacheandra-server: http server: %w", err)
		}
	case s := <-sig:
		log.Info("cacheandra-server: shutting down", "signal", s.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("cacheandra-server: graceful shutdown failed", "err", err)
		}
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := c.String(configFlag.Name); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if servers := c.StringSlice(fastTierFlag.Name); len(servers) > 0 {
		cfg.FastServers = servers
	}
	if servers := c.StringSlice(cassandraFlag.Name); len(servers) > 0 {
		cfg.CassandraServers = servers
	}
	if v := c.String(keyspaceFlag.Name); v != "" {
		cfg.Keyspace = v
	}
	if v := c.String(columnFamilyFlag.Name); v != "" {
		cfg.ColumnFamily = v
	}
	if v := c.String(httpAddrFlag.Name); v != "" {
		cfg.HTTPAddr = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

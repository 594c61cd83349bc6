// Command hydradns is the process entrypoint: it loads configuration,
// opens the durable SQLite store and the Redis-shaped answer cache,
// binds the single UDP listening socket, and runs the server loop and
// admin HTTP API side by side until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jroosing/dnsfwd/internal/adminapi"
	"github.com/jroosing/dnsfwd/internal/config"
	"github.com/jroosing/dnsfwd/internal/database"
	"github.com/jroosing/dnsfwd/internal/dnscache"
	"github.com/jroosing/dnsfwd/internal/forwarder"
	"github.com/jroosing/dnsfwd/internal/localzone"
	"github.com/jroosing/dnsfwd/internal/logging"
	"github.com/jroosing/dnsfwd/internal/requesttable"
	"github.com/jroosing/dnsfwd/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "optional YAML config file, layered under environment variables")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.Config{Level: cfg.LogLevel}
	if cfg.LogStructured {
		logCfg.Structured = true
		logCfg.StructuredFormat = "json"
	}
	log := logging.Configure(logCfg)
	log.Info("hydradns starting",
		slog.String("bind", net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.DNSPort))),
		slog.String("db_path", cfg.DBPath),
		slog.String("node_env", cfg.NodeEnv),
	)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := db.LoadUpstreamPool(ctx)
	if err != nil {
		return fmt.Errorf("load upstream pool: %w", err)
	}
	log.Info("loaded upstream pool", slog.Int("count", pool.Len()))

	zoneRecords, err := db.LoadLocalZone(ctx)
	if err != nil {
		return fmt.Errorf("load local zone: %w", err)
	}
	zone := localzone.New()
	zone.Load(zoneRecords)
	log.Info("loaded curated local zone", slog.Int("names", len(zoneRecords)))

	rdb := redis.NewClient(&redis.Options{
		Addr: net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
	})
	defer rdb.Close()
	cache := dnscache.New(ctx, rdb, log)
	if !cache.Ready() {
		log.Warn("cache backend unreachable at startup; serving degraded (no caching)")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(cfg.BindAddress), Port: cfg.DNSPort})
	if err != nil {
		return fmt.Errorf("bind udp listener: %w", err)
	}

	table := requesttable.New()
	fwd := forwarder.New(table, cache, pool, conn, log)
	srv := server.New(conn, fwd, cache, zone, table, log)

	handler := adminapi.New(db, table, cache, zone)
	engine := adminapi.NewEngine(handler, cfg.APIKey, log)
	apiAddr := net.JoinHostPort(cfg.APIHost, strconv.Itoa(cfg.APIPort))
	apiServer := &http.Server{
		Addr:              apiAddr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("admin api listening", slog.String("addr", apiAddr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin api server error", slog.Any("error", err))
		}
	}()

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErrCh:
		if err != nil {
			log.Error("server loop exited with error", slog.Any("error", err))
		}
	}

	pending, _ := table.Stats()
	log.Info("shutting down", slog.Int("pending_requests", pending))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = apiServer.Shutdown(shutdownCtx)
	shutdownCancel()

	if err := srv.Stop(5 * time.Second); err != nil {
		log.Warn("server shutdown did not complete cleanly", slog.Any("error", err))
	}

	log.Info("hydradns stopped")
	return nil
}

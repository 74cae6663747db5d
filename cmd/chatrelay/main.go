package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/logging"
	"github.com/matheus3301/chatline/internal/relay"
	"github.com/matheus3301/chatline/internal/session"
	"github.com/matheus3301/chatline/internal/store"
	"go.uber.org/zap"
)

func main() {
	configFlag := flag.String("config", "", "config file (default $CHATLINE_HOME/config.toml)")
	listenFlag := flag.String("listen", "", "listen address (overrides relay.listen)")
	dbFlag := flag.String("db", "", "relay database path (overrides relay.db_path)")
	devFlag := flag.Bool("dev", false, "human-readable development logging")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = session.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	level, err := cfg.Log.ZapLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.NewConsole(level, *devFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg.Relay, *listenFlag, *dbFlag, logger); err != nil {
		logger.Fatal("relay stopped", zap.Error(err))
	}
}

func run(cfg config.Relay, listen, dbPath string, logger *zap.Logger) error {
	if listen == "" {
		listen = cfg.Listen
	}
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	if dbPath == "" {
		dbPath = session.RelayDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return err
	}

	db, err := store.OpenMigrated(dbPath)
	if err != nil {
		return fmt.Errorf("open relay store: %w", err)
	}
	defer func() { _ = db.Close() }()
	schema, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           relay.NewServer(db, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("relay listening", zap.String("addr", listen), zap.String("db", dbPath), zap.Uint("schema", schema))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("relay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

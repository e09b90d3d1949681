// auth-server answers the account requests of the chat service.
//
// Accounts are kept in SQLite by default; --store memory keeps them in
// process for throwaway runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Zereker/chatroom/account"
	"github.com/Zereker/chatroom/account/sqlitestore"
	"github.com/Zereker/chatroom/authserver"
	"github.com/Zereker/chatroom/config"
	"github.com/Zereker/chatroom/socket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		listen     string
		logLevel   string
		storeKind  string
		storePath  string
	)

	flagSet := pflag.NewFlagSet("auth-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvPath+")")
	flagSet.StringVar(&listen, "listen", "", "address to listen on (overrides auth.listen)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	flagSet.StringVar(&storeKind, "store", "", "account store: sqlite or memory (overrides auth.store.kind)")
	flagSet.StringVar(&storePath, "db", "", "SQLite database path (overrides auth.store.path)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Auth.Listen = listen
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if storeKind != "" {
		cfg.Auth.Store.Kind = storeKind
	}
	if storePath != "" {
		cfg.Auth.Store.Path = storePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := socket.NewLogger(os.Stderr, cfg.Log.Level, "auth-server")
	if err != nil {
		return err
	}

	var store account.Store
	switch cfg.Auth.Store.Kind {
	case config.StoreMemory:
		store = account.NewMemoryStore()
	default:
		db, err := sqlitestore.Open(sqlitestore.Config{
			Path:     cfg.Auth.Store.Path,
			PoolSize: cfg.Auth.Store.PoolSize,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		store = db
	}

	accounts := account.NewService(store,
		account.HasherOption(account.BcryptHasher{Cost: cfg.Auth.BcryptCost}),
		account.LoggerOption(logger))

	server, err := cfg.Server.NewServer(cfg.Auth.Listen, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := authserver.New(accounts,
		authserver.LoggerOption(logger),
		authserver.TimeoutOption(cfg.Auth.RequestTimeout))

	err = server.Serve(ctx, handler)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

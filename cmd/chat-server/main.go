// chat-server serves the chat rooms and delegates account requests to
// auth-server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Zereker/chatroom/chatserver"
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
		authAddr   string
		logLevel   string
		rooms      []string
	)

	flagSet := pflag.NewFlagSet("chat-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvPath+")")
	flagSet.StringVar(&listen, "listen", "", "address to listen on (overrides chat.listen)")
	flagSet.StringVar(&authAddr, "auth", "", "auth-server address (overrides chat.auth_addr)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	flagSet.StringSliceVar(&rooms, "rooms", nil, "comma-separated room catalog (overrides chat.rooms)")
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
		cfg.Chat.Listen = listen
	}
	if authAddr != "" {
		cfg.Chat.AuthAddr = authAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if len(rooms) > 0 {
		cfg.Chat.Rooms = rooms
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := socket.NewLogger(os.Stderr, cfg.Log.Level, "chat-server")
	if err != nil {
		return err
	}

	server, err := cfg.Server.NewServer(cfg.Chat.Listen, logger)
	if err != nil {
		return err
	}

	service := chatserver.New(server, cfg.Chat.AuthAddr,
		chatserver.LoggerOption(logger),
		chatserver.RoomsOption(cfg.Chat.Rooms),
		chatserver.PendingTimeoutOption(cfg.Chat.PendingTimeout),
		chatserver.UpstreamRetryOption(cfg.Chat.UpstreamRetry))

	// A missing auth-server is not fatal; the link is retried while serving.
	_ = service.ConnectUpstream()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = server.Serve(ctx, service)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

// chat-client plays a short scripted session against chat-server.
//
// Usage:
//
//	chat-client [flags] [username password]
//
// The session authenticates (after creating the account with --create),
// joins #graphics and #network, chats in #network and leaves #graphics.
// With --linger it then keeps printing room traffic.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/chatroom/client"
	"github.com/Zereker/chatroom/config"
	"github.com/Zereker/chatroom/socket"
)

const (
	defaultUser     = "Fan"
	defaultPassword = "Fanshawe"
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
		addr       string
		logLevel   string
		create     bool
		say        string
		linger     time.Duration
	)

	flagSet := pflag.NewFlagSet("chat-client", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvPath+")")
	flagSet.StringVar(&addr, "addr", "", "chat-server address (overrides client.addr)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	flagSet.BoolVar(&create, "create", false, "create the account before authenticating")
	flagSet.StringVar(&say, "say", "", "chat line for #network (default: a random sentence)")
	flagSet.DurationVar(&linger, "linger", 0, "keep printing room traffic this long after the script")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	user, password := defaultUser, defaultPassword
	switch args := flagSet.Args(); len(args) {
	case 0:
	case 2:
		user, password = args[0], args[1]
	default:
		return fmt.Errorf("expected username and password, got %d arguments", len(args))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Client.Addr = addr
	}
	applyLogLevel(cfg, flagSet.Changed("log-level"), logLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := socket.NewLogger(os.Stderr, cfg.Log.Level, "chat-client")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := client.Dial(ctx, cfg.Client.Addr, client.LoggerOption(logger))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Client.Addr, err)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := session.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		defer session.Close()
		if err := session.Play(ctx, client.Script(user, password, create, say), os.Stdout); err != nil {
			return err
		}
		if linger > 0 {
			lingerCtx, cancel := context.WithTimeout(ctx, linger)
			defer cancel()
			session.Print(lingerCtx, os.Stdout)
		}
		return nil
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// applyLogLevel lets an explicit --log-level win over the config file.
func applyLogLevel(cfg *config.Config, set bool, level string) {
	if set {
		cfg.Log.Level = level
	}
}

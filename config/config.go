// Package config loads the configuration of the chat programs.
//
// One YAML file configures all three programs; each reads the sections it
// needs. Every field has a default, so an absent file or an empty section
// yields a working loopback setup. Command-line flags are applied on top
// by the programs themselves.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/chatroom/room"
	"github.com/Zereker/chatroom/socket"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "CHATROOM_CONFIG"

// Store kinds.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config is the configuration of the chat programs.
type Config struct {
	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Server configures the event loop shared by both services.
	Server ServerConfig `yaml:"server"`

	// Chat configures the chat-room service.
	Chat ChatConfig `yaml:"chat"`

	// Auth configures the authentication service.
	Auth AuthConfig `yaml:"auth"`

	// Client configures the scripted client.
	Client ClientConfig `yaml:"client"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// ServerConfig configures a socket.Server.
type ServerConfig struct {
	// Poller selects the readiness poller: goroutine or poll.
	// Default: goroutine
	Poller string `yaml:"poller"`

	// PollInterval is the longest the loop sleeps between ticks.
	// Default: 500ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// WriteTimeout bounds a single packet write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxPacketSize is the largest accepted packet in bytes.
	// Default: 65536
	MaxPacketSize int `yaml:"max_packet_size"`
}

// ChatConfig configures the chat-room service.
type ChatConfig struct {
	// Listen is the address clients connect to.
	// Default: 127.0.0.1:5555
	Listen string `yaml:"listen"`

	// AuthAddr is the address of the authentication service.
	// Default: 127.0.0.1:5556
	AuthAddr string `yaml:"auth_addr"`

	// Rooms is the fixed room catalog.
	// Default: graphics, network, media, configuration
	Rooms []string `yaml:"rooms"`

	// PendingTimeout bounds the wait for an authentication reply.
	// Default: 10s
	PendingTimeout time.Duration `yaml:"pending_timeout"`

	// UpstreamRetry is the minimum delay between redials of the
	// authentication service.
	// Default: 2s
	UpstreamRetry time.Duration `yaml:"upstream_retry"`
}

// AuthConfig configures the authentication service.
type AuthConfig struct {
	// Listen is the address the chat service connects to.
	// Default: 127.0.0.1:5556
	Listen string `yaml:"listen"`

	// Store configures account storage.
	Store StoreConfig `yaml:"store"`

	// BcryptCost is the work factor of password hashes.
	// Default: bcrypt.DefaultCost
	BcryptCost int `yaml:"bcrypt_cost"`

	// RequestTimeout bounds the storage work of one request.
	// Default: 5s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StoreConfig configures account storage.
type StoreConfig struct {
	// Kind is sqlite or memory.
	// Default: sqlite
	Kind string `yaml:"kind"`

	// Path is the SQLite database file. ${VAR} references are expanded.
	// Default: chatroom.db
	Path string `yaml:"path"`

	// PoolSize is the number of SQLite connections.
	// Default: 4
	PoolSize int `yaml:"pool_size"`
}

// ClientConfig configures the scripted client.
type ClientConfig struct {
	// Addr is the chat service address.
	// Default: 127.0.0.1:5555
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Poller:        socket.PollerGoroutine,
			PollInterval:  500 * time.Millisecond,
			WriteTimeout:  5 * time.Second,
			MaxPacketSize: 64 * 1024,
		},
		Chat: ChatConfig{
			Listen:         "127.0.0.1:5555",
			AuthAddr:       "127.0.0.1:5556",
			Rooms:          append([]string(nil), room.DefaultRooms...),
			PendingTimeout: 10 * time.Second,
			UpstreamRetry:  2 * time.Second,
		},
		Auth: AuthConfig{
			Listen: "127.0.0.1:5556",
			Store: StoreConfig{
				Kind:     StoreSQLite,
				Path:     "chatroom.db",
				PoolSize: 4,
			},
			BcryptCost:     bcrypt.DefaultCost,
			RequestTimeout: 5 * time.Second,
		},
		Client: ClientConfig{Addr: "127.0.0.1:5555"},
	}
}

// Load reads the file named by path, or by CHATROOM_CONFIG when path is
// empty. With neither set it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path over the defaults and validates
// it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Auth.Store.Path = os.ExpandEnv(cfg.Auth.Store.Path)
	if len(cfg.Chat.Rooms) == 0 {
		cfg.Chat.Rooms = append([]string(nil), room.DefaultRooms...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := socket.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch c.Server.Poller {
	case socket.PollerGoroutine, socket.PollerPoll:
	default:
		errs = append(errs, fmt.Errorf("server.poller: unknown poller %q", c.Server.Poller))
	}
	if c.Server.PollInterval <= 0 {
		errs = append(errs, errors.New("server.poll_interval must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}
	if c.Server.MaxPacketSize < 8 {
		errs = append(errs, errors.New("server.max_packet_size must hold a packet header"))
	}

	errs = append(errs, checkAddr("chat.listen", c.Chat.Listen))
	errs = append(errs, checkAddr("chat.auth_addr", c.Chat.AuthAddr))
	if c.Chat.PendingTimeout <= 0 {
		errs = append(errs, errors.New("chat.pending_timeout must be positive"))
	}
	if c.Chat.UpstreamRetry <= 0 {
		errs = append(errs, errors.New("chat.upstream_retry must be positive"))
	}
	for _, name := range c.Chat.Rooms {
		if name == "" {
			errs = append(errs, errors.New("chat.rooms: empty room name"))
		}
	}

	errs = append(errs, checkAddr("auth.listen", c.Auth.Listen))
	switch c.Auth.Store.Kind {
	case StoreMemory:
	case StoreSQLite:
		if c.Auth.Store.Path == "" {
			errs = append(errs, errors.New("auth.store.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.store.kind: unknown store %q", c.Auth.Store.Kind))
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Auth.RequestTimeout <= 0 {
		errs = append(errs, errors.New("auth.request_timeout must be positive"))
	}

	errs = append(errs, checkAddr("client.addr", c.Client.Addr))

	return errors.Join(errs...)
}

func checkAddr(field, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// NewServer binds a socket.Server on addr using the event loop settings.
func (s ServerConfig) NewServer(addr string, logger socket.Logger) (*socket.Server, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}
	poller, err := socket.NewPoller(s.Poller)
	if err != nil {
		return nil, err
	}
	server, err := socket.New(tcpAddr,
		socket.LoggerOption(logger),
		socket.PollerOption(poller),
		socket.PollIntervalOption(s.PollInterval),
		socket.WriteTimeoutOption(s.WriteTimeout),
		socket.MessageMaxSize(s.MaxPacketSize),
	)
	if err != nil {
		_ = poller.Close()
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	return server, nil
}

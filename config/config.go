package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Unknown method policies.
const (
	UnknownMethodsReject = "reject"
	UnknownMethodsPass   = "pass"
)

// Config holds all server configuration. It is read-only once the engine
// starts accepting connections.
type Config struct {
	BindAddress string `config:"bind_address"`
	Port        int    `config:"port"`

	MaxConnections int           `config:"max_connections"`
	ReadTimeout    time.Duration `config:"read_timeout"`
	WriteTimeout   time.Duration `config:"write_timeout"`
	IdleTimeout    time.Duration `config:"idle_timeout"`

	MaxHeaderBytes           int   `config:"max_header_bytes"`
	MaxHeaderCount           int   `config:"max_header_count"`
	MaxBodyBytes             int64 `config:"max_body_bytes"`
	MaxRequestsPerConnection int   `config:"max_requests_per_connection"`

	UnknownMethods  string   `config:"unknown_methods"`
	BodylessMethods []string `config:"bodyless_methods"`
	KeepTrailers    bool     `config:"keep_trailers"`
	ReusePort       bool     `config:"reuse_port"`
	ServerName      string   `config:"server_name"`

	DocRoot      string `config:"doc_root"`
	VirtualHosts bool   `config:"virtual_hosts"`
	StatusPath   string `config:"status_path"`

	Env             string        `config:"env"`
	LogLevel        string        `config:"log_level"`
	GCPercent       int           `config:"gc_percent"`
	MemoryLimit     int64         `config:"memory_limit"`
	ShutdownTimeout time.Duration `config:"shutdown_timeout"`
}

// Default returns the configuration with every option at its default.
func Default() *Config {
	return &Config{
		BindAddress:              "0.0.0.0",
		Port:                     8080,
		MaxConnections:           10000,
		ReadTimeout:              10 * time.Second,
		WriteTimeout:             30 * time.Second,
		IdleTimeout:              5 * time.Second,
		MaxHeaderBytes:           16 << 10,
		MaxHeaderCount:           100,
		MaxBodyBytes:             1 << 20,
		MaxRequestsPerConnection: 0,
		UnknownMethods:           UnknownMethodsReject,
		BodylessMethods:          []string{"GET", "HEAD", "DELETE"},
		ServerName:               "lean-server",
		DocRoot:                  ".",
		VirtualHosts:             true,
		StatusPath:               "/_status",
		Env:                      "development",
		LogLevel:                 "info",
		ShutdownTimeout:          10 * time.Second,
	}
}

// Addr returns the host:port the listener binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return c.Env == "production"
}

var knownMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"DELETE": true, "PATCH": true, "OPTIONS": true,
}

// Validate reports every invalid option. Values are never clamped.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.BindAddress == "" {
		bad("bind_address must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		bad("port %d out of range 0-65535", c.Port)
	}
	if c.MaxConnections <= 0 {
		bad("max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.ReadTimeout <= 0 {
		bad("read_timeout must be positive, got %s", c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		bad("write_timeout must be positive, got %s", c.WriteTimeout)
	}
	if c.IdleTimeout <= 0 {
		bad("idle_timeout must be positive, got %s", c.IdleTimeout)
	}
	if c.MaxHeaderBytes < 256 {
		bad("max_header_bytes must be at least 256, got %d", c.MaxHeaderBytes)
	}
	if c.MaxHeaderCount <= 0 {
		bad("max_header_count must be positive, got %d", c.MaxHeaderCount)
	}
	if c.MaxBodyBytes < 0 {
		bad("max_body_bytes must not be negative, got %d", c.MaxBodyBytes)
	}
	if c.MaxRequestsPerConnection < 0 {
		bad("max_requests_per_connection must not be negative, got %d", c.MaxRequestsPerConnection)
	}
	if c.UnknownMethods != UnknownMethodsReject && c.UnknownMethods != UnknownMethodsPass {
		bad("unknown_methods must be %q or %q, got %q", UnknownMethodsReject, UnknownMethodsPass, c.UnknownMethods)
	}
	for _, m := range c.BodylessMethods {
		if !knownMethods[m] {
			bad("bodyless_methods: unknown method %q", m)
		}
	}
	if c.StatusPath != "" && !strings.HasPrefix(c.StatusPath, "/") {
		bad("status_path must begin with '/', got %q", c.StatusPath)
	}
	if c.Env != "development" && c.Env != "production" {
		bad("env must be development or production, got %q", c.Env)
	}
	if c.GCPercent < -1 {
		bad("gc_percent must be >= -1, got %d", c.GCPercent)
	}
	if c.MemoryLimit < 0 {
		bad("memory_limit must not be negative, got %d", c.MemoryLimit)
	}
	if c.ShutdownTimeout <= 0 {
		bad("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}

	return errors.Join(errs...)
}

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "LEAN"

// Load builds the configuration from defaults, an optional JSON file
// (-config), LEAN_* environment variables and finally explicit flags, in
// increasing order of precedence. Two positional arguments, port and
// directory, are accepted for compatibility with the classic CLI.
func Load(args []string) (*Config, error) {
	parsed := Default()
	fs := flag.NewFlagSet("leanhttpd", flag.ContinueOnError)
	configFile := fs.String("config", "", "JSON configuration file")
	bindFlags(fs, parsed)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			set[f.Name] = f.Value.String()
		}
	})

	m := NewManager()
	if *configFile != "" {
		if err := m.LoadFromJSON(*configFile); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)

	cfg := Default()
	if err := m.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// Re-apply explicit flags on top of file and environment values.
	final := flag.NewFlagSet("leanhttpd", flag.ContinueOnError)
	bindFlags(final, cfg)
	for name, value := range set {
		if err := final.Set(name, value); err != nil {
			return nil, fmt.Errorf("flag -%s: %w", name, err)
		}
	}

	rest := fs.Args()
	if len(rest) > 2 {
		return nil, fmt.Errorf("usage: leanhttpd [flags] [port] [directory]")
	}
	if len(rest) >= 1 {
		port, err := strconv.Atoi(rest[0])
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", rest[0], err)
		}
		cfg.Port = port
	}
	if len(rest) == 2 {
		cfg.DocRoot = rest[1]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DocRoot != "" {
		fi, err := os.Stat(cfg.DocRoot)
		if err != nil {
			return nil, fmt.Errorf("doc_root: %w", err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("doc_root %q is not a directory", cfg.DocRoot)
		}
	}
	return cfg, nil
}

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.BindAddress, "bind", cfg.BindAddress, "Interface to listen on")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "Maximum concurrently open connections")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Deadline for reading one request")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Deadline for writing one response")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Keep-alive idle timeout")
	fs.IntVar(&cfg.MaxHeaderBytes, "max-header-bytes", cfg.MaxHeaderBytes, "Request line and header byte budget")
	fs.IntVar(&cfg.MaxHeaderCount, "max-header-count", cfg.MaxHeaderCount, "Maximum number of request headers")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "Maximum request body size")
	fs.IntVar(&cfg.MaxRequestsPerConnection, "max-requests", cfg.MaxRequestsPerConnection, "Requests per connection (0 = unlimited)")
	fs.StringVar(&cfg.UnknownMethods, "unknown-methods", cfg.UnknownMethods, "Unknown method policy (reject/pass)")
	fs.Var((*listValue)(&cfg.BodylessMethods), "bodyless-methods", "Comma separated methods that must not carry a body")
	fs.BoolVar(&cfg.KeepTrailers, "keep-trailers", cfg.KeepTrailers, "Keep chunked trailers on the request")
	fs.BoolVar(&cfg.ReusePort, "reuse-port", cfg.ReusePort, "Set SO_REUSEPORT on the listener")
	fs.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "Server header value (empty to omit)")
	fs.StringVar(&cfg.DocRoot, "root", cfg.DocRoot, "Static file root (empty disables)")
	fs.BoolVar(&cfg.VirtualHosts, "vhosts", cfg.VirtualHosts, "Serve <root>/<host> per Host header")
	fs.StringVar(&cfg.StatusPath, "status-path", cfg.StatusPath, "Status endpoint path (empty disables)")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.IntVar(&cfg.GCPercent, "gc-percent", cfg.GCPercent, "GOGC override (0 = runtime default)")
	fs.Int64Var(&cfg.MemoryLimit, "memory-limit", cfg.MemoryLimit, "Soft memory limit in bytes (0 = none)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown deadline")
}

// listValue is a comma separated flag value.
type listValue []string

func (l *listValue) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *listValue) Set(s string) error {
	*l = splitMethods(s)
	return nil
}

// splitMethods parses a comma separated method list.
func splitMethods(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

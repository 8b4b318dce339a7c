package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config holds runtime settings for the gophusers CLI.
type Config struct {
	ServerURL string        `env:"GOPHUSERS_SERVER_URL"`
	GRPCAddr  string        `env:"GOPHUSERS_GRPC_ADDR"`
	Transport string        `env:"GOPHUSERS_TRANSPORT"`
	StorePath string        `env:"GOPHUSERS_STORE"`
	Timeout   time.Duration `env:"GOPHUSERS_TIMEOUT"`
	LogLevel  string        `env:"GOPHUSERS_LOG_LEVEL"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.GRPCAddr = "127.0.0.1:50051"
	c.Transport = TransportHTTP
	c.StorePath = "gophusers/client.db"
	c.Timeout = 10 * time.Second
	c.LogLevel = "warn"
}

func (c *Config) Validate() error {
	var errs []error
	if c.Transport != TransportHTTP && c.Transport != TransportGRPC {
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.StorePath == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadConfig constructs a Config from defaults, an optional JSON file, the
// environment and command-line flags. Later sources take precedence.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:], os.Environ())
}

func load(args, environ []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, environ); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Package config handles configuration for the server component: defaults,
// a JSON file overlay, environment variables and command-line flags, applied
// in that order.
package config

import (
	"errors"
	"os"
	"time"
)

// Config holds runtime settings for the gophusers server.
//
// DatabaseDSN selects storage: an empty DSN keeps users in memory. RedisAddr
// does the same for the assertion replay guard. An empty S3Bucket disables
// avatar uploads.
type Config struct {
	HTTPAddr    string   `env:"HTTP_ADDR"`
	GRPCAddr    string   `env:"GRPC_ADDR"`
	DatabaseDSN string   `env:"DATABASE_URL"`
	RedisAddr   string   `env:"REDIS_ADDR"`
	CORSOrigins []string `env:"CORS_ORIGINS"`
	LogLevel    string   `env:"LOG_LEVEL"`

	// Session tokens.
	SecretKey     string        `env:"JWT_SECRET_KEY"`
	TokenTTL      time.Duration `env:"ACCESS_TOKEN_EXPIRE"`
	TokenIssuer   string        `env:"JWT_ISSUER"`
	TokenAudience string        `env:"JWT_AUDIENCE"`

	// Identity provider.
	GoogleClientID   string   `env:"GOOGLE_CLIENT_ID"`
	AssertionIssuers []string `env:"ASSERTION_ISSUERS"`
	KeysFile         string   `env:"ASSERTION_KEYS_FILE"`
	JWKSURL          string   `env:"JWKS_URL"`

	// Avatar storage.
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"S3_REGION"`
	S3BaseEndpoint string `env:"S3_BASE_ENDPOINT"`
	S3PublicURL    string `env:"S3_PUBLIC_URL"`
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secret key must be overridden outside development.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8000"
	c.GRPCAddr = ":50051"
	c.SecretKey = "dev-secret-change-me"
	c.TokenTTL = 30 * time.Minute
	c.TokenIssuer = "gophusers"
	c.TokenAudience = "gophusers-api"
	c.AssertionIssuers = []string{"accounts.google.com", "https://accounts.google.com"}
	c.JWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	c.CORSOrigins = []string{"http://localhost:3000"}
	c.LogLevel = "info"
	c.S3Region = "us-east-1"
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.GoogleClientID == "" {
		errs = append(errs, errors.New("google client id is required"))
	}
	if c.KeysFile == "" && c.JWKSURL == "" {
		errs = append(errs, errors.New("either a keys file or a JWKS url is required"))
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config from defaults, then an optional JSON file, the
// environment and finally command-line flags.
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

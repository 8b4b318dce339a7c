package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophusers/internal/flagx"
	"github.com/dmitrijs2005/gophusers/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations use timex.Duration so
// both "30m" and integer nanoseconds are accepted. Absent keys leave the
// current value untouched.
type JsonConfig struct {
	HTTPAddr         *string         `json:"http_addr"`
	GRPCAddr         *string         `json:"grpc_addr"`
	DatabaseDSN      *string         `json:"database_dsn"`
	RedisAddr        *string         `json:"redis_addr"`
	CORSOrigins      []string        `json:"cors_origins"`
	LogLevel         *string         `json:"log_level"`
	SecretKey        *string         `json:"secret_key"`
	TokenTTL         *timex.Duration `json:"token_ttl"`
	TokenIssuer      *string         `json:"token_issuer"`
	TokenAudience    *string         `json:"token_audience"`
	GoogleClientID   *string         `json:"google_client_id"`
	AssertionIssuers []string        `json:"assertion_issuers"`
	KeysFile         *string         `json:"keys_file"`
	JWKSURL          *string         `json:"jwks_url"`
	S3AccessKey      *string         `json:"s3_access_key"`
	S3SecretKey      *string         `json:"s3_secret_key"`
	S3Bucket         *string         `json:"s3_bucket"`
	S3Region         *string         `json:"s3_region"`
	S3BaseEndpoint   *string         `json:"s3_base_endpoint"`
	S3PublicURL      *string         `json:"s3_public_url"`
}

// parseJSON overlays values from the file named by -c/-config, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	set(&cfg.HTTPAddr, c.HTTPAddr)
	set(&cfg.GRPCAddr, c.GRPCAddr)
	set(&cfg.DatabaseDSN, c.DatabaseDSN)
	set(&cfg.RedisAddr, c.RedisAddr)
	set(&cfg.LogLevel, c.LogLevel)
	set(&cfg.SecretKey, c.SecretKey)
	set(&cfg.TokenIssuer, c.TokenIssuer)
	set(&cfg.TokenAudience, c.TokenAudience)
	set(&cfg.GoogleClientID, c.GoogleClientID)
	set(&cfg.KeysFile, c.KeysFile)
	set(&cfg.JWKSURL, c.JWKSURL)
	set(&cfg.S3AccessKey, c.S3AccessKey)
	set(&cfg.S3SecretKey, c.S3SecretKey)
	set(&cfg.S3Bucket, c.S3Bucket)
	set(&cfg.S3Region, c.S3Region)
	set(&cfg.S3BaseEndpoint, c.S3BaseEndpoint)
	set(&cfg.S3PublicURL, c.S3PublicURL)
	if c.TokenTTL != nil {
		cfg.TokenTTL = c.TokenTTL.Duration
	}
	if c.CORSOrigins != nil {
		cfg.CORSOrigins = c.CORSOrigins
	}
	if c.AssertionIssuers != nil {
		cfg.AssertionIssuers = c.AssertionIssuers
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

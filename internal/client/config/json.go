package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophusers/internal/flagx"
	"github.com/dmitrijs2005/gophusers/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// leave the current value untouched.
type JsonConfig struct {
	ServerURL *string         `json:"server_url"`
	GRPCAddr  *string         `json:"grpc_addr"`
	Transport *string         `json:"transport"`
	StorePath *string         `json:"store_path"`
	Timeout   *timex.Duration `json:"timeout"`
	LogLevel  *string         `json:"log_level"`
}

func parseJSON(cfg *Config, args []string) error {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	set(&cfg.ServerURL, jc.ServerURL)
	set(&cfg.GRPCAddr, jc.GRPCAddr)
	set(&cfg.Transport, jc.Transport)
	set(&cfg.StorePath, jc.StorePath)
	set(&cfg.LogLevel, jc.LogLevel)
	if jc.Timeout != nil {
		cfg.Timeout = jc.Timeout.Duration
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

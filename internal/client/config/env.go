package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

func parseEnv(cfg *Config, environ []string) error {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return env.ParseWithOptions(cfg, env.Options{Environment: vars})
}

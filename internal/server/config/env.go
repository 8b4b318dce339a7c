package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// parseEnv overlays variables present in environ onto cfg. Unset variables
// keep the value from earlier layers. Lists are comma separated.
func parseEnv(cfg *Config, environ []string) error {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			vars[k] = v
		}
	}
	return env.ParseWithOptions(cfg, env.Options{Environment: vars})
}

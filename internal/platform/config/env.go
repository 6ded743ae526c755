package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every variable odicd reads, including the ones viper
// binds to CLI flags.
const EnvPrefix = "ODIC"

// ParseEnv fills target from ODIC_* variables. Tags name the variable without
// the prefix, so `env:"RELAYER_ADDR"` reads ODIC_RELAYER_ADDR.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix + "_"}); err != nil {
		return fmt.Errorf("parse %s_* env: %w", EnvPrefix, err)
	}
	return nil
}

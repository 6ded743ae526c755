package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Addr    string        `env:"TEST_ADDR" envDefault:"127.0.0.1:1"`
	Timeout time.Duration `env:"TEST_TIMEOUT" envDefault:"5s"`
	Limit   int           `env:"TEST_LIMIT"`
}

func TestParseEnv_ReadsPrefixedVariables(t *testing.T) {
	t.Setenv("ODIC_TEST_LIMIT", "7")
	t.Setenv("TEST_ADDR", "10.0.0.1:9")

	var cfg sample
	require.NoError(t, ParseEnv(&cfg))
	require.Equal(t, "127.0.0.1:1", cfg.Addr, "unprefixed variables are ignored")
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, 7, cfg.Limit)
}

func TestParseEnv_InvalidValue(t *testing.T) {
	t.Setenv("ODIC_TEST_LIMIT", "many")

	var cfg sample
	require.ErrorContains(t, ParseEnv(&cfg), "parse ODIC_* env")
}

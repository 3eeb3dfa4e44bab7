package cobrax

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigNameFromArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a.yaml", configNameFromArgs([]string{"avmdbg", "serve", "-c", "a.yaml"}))
	assert.Equal(t, "b.yaml", configNameFromArgs([]string{"avmdbg", "--config", "b.yaml", "serve"}))
	assert.Empty(t, configNameFromArgs([]string{"avmdbg", "serve", "-c"}))
	assert.Empty(t, configNameFromArgs(nil))
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	type config struct {
		Listen   string `yaml:"listen"`
		LogLevel string `yaml:"logLevel"`
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 0.0.0.0:5000\n"), 0o600))

	cfg := config{Listen: "127.0.0.1:4711", LogLevel: "info"}
	require.NoError(t, LoadConfigFromFile(path, &cfg))
	assert.Equal(t, config{Listen: "0.0.0.0:5000", LogLevel: "info"}, cfg)

	require.NoError(t, LoadConfigFromFile("", &cfg))

	err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte("listen: [\n"), 0o600))
	require.Error(t, LoadConfigFromFile(path, &cfg))
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	var level string
	var port int
	fset := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddLogLevelFlag(fset, &level)
	AddPprofPortFlag(fset, &port)
	require.NoError(t, fset.Parse([]string{"--log-level", "warn"}))

	v := NewEnv("AVMDBG_COBRAX_TEST")
	v.Set("log-level", "debug")
	v.Set("pprof-port", "6060")
	require.NoError(t, ApplyEnv(v, fset))
	assert.Equal(t, "warn", level, "command line wins")
	assert.Equal(t, 6060, port)

	v.Set("pprof-port", "many")
	fset = pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddPprofPortFlag(fset, &port)
	require.ErrorContains(t, ApplyEnv(v, fset), "--pprof-port")
}

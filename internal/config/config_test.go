package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, validate(cfg))
	assert.Equal(t, "heuristic", cfg.Cache.Strategy)
}

func TestLoad_OverridesOnlySpecifiedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	partial := map[string]interface{}{
		"cache": map[string]interface{}{"strategy": "ml"},
	}
	data, err := json.Marshal(partial)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ml", cfg.Cache.Strategy)
	assert.Equal(t, Default().Admission.MaxConcurrentQueries, cfg.Admission.MaxConcurrentQueries)
}

func TestLoad_RejectsInvalidStrategy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cache":{"strategy":"bogus"}}`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadOrDefault_UsesEnvVar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"audit":{"enabled":false}}`), 0o600))

	t.Setenv("LAKEQUERY_CONFIG", path)
	cfg := LoadOrDefault()
	assert.False(t, cfg.Audit.Enabled)
}

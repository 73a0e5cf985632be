package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/POA-Engine/poa-engine/binding"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	align, err := cfg.AlignmentConfig()
	require.NoError(t, err)
	assert.Equal(t, binding.DefaultAlignmentConfig(), align)
	assert.Equal(t, binding.OwnedResult{}, cfg.ResultStrategy())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "global", cfg.Alignment.Mode)
	assert.Equal(t, 8, cfg.Workers.Count)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
alignment:
  mode: local
  match: 2
  mismatch: -3
  gap: {open: -5, extend: -2}
  second_gap: {open: -24, extend: -1}
result:
  strategy: bounded
  capacity: 4096
workers:
  count: 2
  queue_size: 16
cache:
  enabled: true
  in_memory: true
  ttl: 1h
arrow:
  idle_timeout: 30s
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	align, err := cfg.AlignmentConfig()
	require.NoError(t, err)
	assert.Equal(t, binding.ModeLocal, align.Mode)
	assert.Equal(t, int32(2), align.Match)
	assert.Equal(t, binding.GapPenalty{Open: -5, Extend: -2}, align.Gap)
	require.NotNil(t, align.SecondGap)
	assert.Equal(t, binding.GapPenalty{Open: -24, Extend: -1}, *align.SecondGap)

	assert.Equal(t, binding.BoundedResult{Capacity: 4096}, cfg.ResultStrategy())
	assert.Len(t, cfg.BindingOptions(nil), 1)

	cc := cfg.CacheOptions(nil)
	assert.True(t, cc.InMemory)
	assert.Equal(t, time.Hour, cc.TTL)
	assert.Equal(t, 30*time.Second, cfg.Arrow.IdleTimeout)
	assert.Equal(t, "json", cfg.Log.Format)

	// untouched sections keep their defaults
	assert.Equal(t, Default().GRPC, cfg.GRPC)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "alignment: [unclosed"))
	assert.Error(t, err)

	tests := []struct {
		name string
		body string
	}{
		{"unknown mode", "alignment: {mode: banded}"},
		{"bounded without capacity", "result: {strategy: bounded}"},
		{"unknown strategy", "result: {strategy: borrowed}"},
		{"zero workers", "workers: {count: 0}"},
		{"cache without path", "cache: {enabled: true}"},
		{"arrow without address", "arrow: {enabled: true, address: \"\"}"},
		{"bad log level", "log: {level: verbose}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "alignment: {mode: local}\nworkers: {count: 2}\n")
	t.Setenv("POA_MODE", "gapped")
	t.Setenv("POA_WORKERS", "6")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gapped", cfg.Alignment.Mode)
	assert.Equal(t, 6, cfg.Workers.Count)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(cfg, envMap(map[string]string{
		"POA_MATCH":           "3",
		"POA_GAP_OPEN":        "-8",
		"POA_RESULT_STRATEGY": "bounded",
		"POA_RESULT_CAPACITY": "128",
		"POA_CACHE_ENABLED":   "true",
		"POA_CACHE_TTL":       "10m",
		"POA_AUTH_ENABLED":    "1",
		"POA_AUTH_TOKEN":      "secret",
		"POA_ZMQ_ENABLED":     "true",
		"POA_LOG_LEVEL":       "",
	}))
	require.NoError(t, err)

	assert.Equal(t, int32(3), cfg.Alignment.Match)
	assert.Equal(t, int32(-8), cfg.Alignment.Gap.Open)
	assert.Equal(t, binding.BoundedResult{Capacity: 128}, cfg.ResultStrategy())
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Arrow.AuthEnabled)
	assert.Equal(t, "secret", cfg.Arrow.AuthToken)
	assert.True(t, cfg.ZMQ.Enabled)
	assert.Equal(t, "info", cfg.Log.Level, "empty values are ignored")
}

func TestApplyEnvParseErrors(t *testing.T) {
	for _, kv := range [][2]string{
		{"POA_MATCH", "five"},
		{"POA_MATCH", "99999999999"},
		{"POA_WORKERS", "x"},
		{"POA_CACHE_ENABLED", "maybe"},
		{"POA_CACHE_TTL", "forever"},
	} {
		err := applyEnv(Default(), envMap(map[string]string{kv[0]: kv[1]}))
		require.Error(t, err, kv[0])
		assert.Contains(t, err.Error(), kv[0])
	}
}

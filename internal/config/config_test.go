package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mauttaram/SecurityEvaluator/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	err := NewValidator().Validate(cfg)
	assert.NoError(t, err)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "non-positive budget cap",
			mutate:  func(c *Config) { c.Budget.Cap = 0 },
			wantMsg: "budget.cap",
		},
		{
			name:    "non-positive rounds cap",
			mutate:  func(c *Config) { c.Budget.RoundsCap = -1 },
			wantMsg: "budget.rounds_cap",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantMsg: "log.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantMsg: "log.format",
		},
		{
			name:    "solo discount above one",
			mutate:  func(c *Config) { c.Consensus.SoloDiscount = 1.5 },
			wantMsg: "consensus.solo_discount",
		},
		{
			name: "phase fractions not summing to one",
			mutate: func(c *Config) {
				c.Budget.PhaseFractions = map[types.Phase]float64{
					types.PhaseExploration:  0.5,
					types.PhaseExploitation: 0.4,
				}
			},
			wantMsg: "must sum to 1",
		},
		{
			name: "phase fractions naming terminal phase",
			mutate: func(c *Config) {
				c.Budget.PhaseFractions = map[types.Phase]float64{
					types.PhaseTerminated: 1.0,
				}
			},
			wantMsg: "unknown phase",
		},
		{
			name: "member timeout exceeding run timeout",
			mutate: func(c *Config) {
				c.Workers.RunTimeout = 10 * time.Second
				c.Workers.MemberTimeout = time.Minute
			},
			wantMsg: "member_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := NewValidator().Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	err := NewValidator().Validate(nil)
	assert.Error(t, err)
}

func TestLoaderReadsYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eval.yaml")
	content := `
budget:
  cap: 25.5
  rounds_cap: 8
seed: 42
workers:
  member_timeout: 5s
  max_payload_bytes: 1024
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25.5, cfg.Budget.Cap)
	assert.Equal(t, 8, cfg.Budget.RoundsCap)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 5*time.Second, cfg.Workers.MemberTimeout)
	assert.Equal(t, 1024, cfg.Workers.MaxPayloadBytes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Untouched sections keep their defaults.
	assert.Equal(t, 50, cfg.Consensus.MaxIterations)
	assert.Equal(t, 10, cfg.Coverage.FullThreshold)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eval.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budget:\n  cap: -1\n"), 0o644))

	_, err := NewLoader(NewValidator()).Load(path)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CONFIG_VALIDATION_FAILED))
}

func TestLoaderMissingFileFails(t *testing.T) {
	_, err := NewLoader(NewValidator()).Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CONFIG_LOAD_FAILED))
}

func TestLoadWithDefaultsFallsBack(t *testing.T) {
	cfg, err := NewLoader(NewValidator()).LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

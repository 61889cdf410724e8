package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/iwvelando/pricing-optimizer/internal/config"
	"github.com/iwvelando/pricing-optimizer/internal/storage"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixtureYAML = `
products:
  - {category_id: sdr, upc_id: A, elasticity: -2.0, price: 10, volume: 100}
  - {category_id: sdr, upc_id: B, elasticity: -0.5, price: 5, volume: 100}
`

func TestInitializeLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LoggingConfig
		override  string
		expectErr bool
	}{
		{name: "defaults", cfg: config.LoggingConfig{}},
		{name: "console debug", cfg: config.LoggingConfig{Level: "debug", Format: "console"}},
		{name: "override wins", cfg: config.LoggingConfig{Level: "bogus"}, override: "warn"},
		{name: "invalid level", cfg: config.LoggingConfig{Level: "verbose"}, expectErr: true},
		{name: "invalid format", cfg: config.LoggingConfig{Format: "xml"}, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := initializeLogger(tt.cfg, tt.override)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestInitializeLoggerOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "optimizer.log")
	logger, err := initializeLogger(config.LoggingConfig{Level: "info", OutputFile: path}, "")
	require.NoError(t, err)
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

// writeWorkspace writes a config and a fixture into a temporary directory.
func writeWorkspace(t *testing.T) (configPath, fixturePath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "pricing.db")
	configPath = filepath.Join(dir, "config.yaml")
	fixturePath = filepath.Join(dir, "fixture.yaml")

	conf := "optimizer:\n" +
		"  minChangePct: -0.1\n" +
		"  maxChangePct: 0.1\n" +
		"  steps: 3\n" +
		"  minRevenuePct: 0.95\n" +
		"database:\n" +
		"  driver: sqlite\n" +
		"  dsn: " + dbPath + "\n" +
		"logging:\n" +
		"  level: error\n" +
		"  outputFile: " + filepath.Join(dir, "optimizer.log") + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(conf), 0644))
	require.NoError(t, os.WriteFile(fixturePath, []byte(fixtureYAML), 0644))
	return configPath, fixturePath, dbPath
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).RunContext(context.Background(), append([]string{"pricing-optimizer"}, args...))
	return out.String(), err
}

func TestSeedThenOptimize(t *testing.T) {
	configPath, fixturePath, dbPath := writeWorkspace(t)

	out, err := runApp(t, "--config", configPath, "seed", "--fixture", fixturePath)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 2 elasticities and 2 panel rows")

	out, err = runApp(t, "--config", configPath, "optimize", "--category", "sdr", "--output-format", "csv")
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewBufferString(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "11.00", records[1][4])
	assert.Equal(t, "5.50", records[2][4])

	store, err := storage.Open(context.Background(), "sqlite", dbPath, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	recs, err := store.Recommendations(context.Background(), "sdr")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	runs, err := store.Runs(context.Background(), "sdr", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, pricing.RunSucceeded, runs[0].Status)
}

func TestOptimizeDryRunFromFixture(t *testing.T) {
	configPath, fixturePath, dbPath := writeWorkspace(t)

	out, err := runApp(t, "--config", configPath, "optimize", "-c", "sdr", "--fixture", fixturePath, "--dry-run", "--output-format", "pretty")
	require.NoError(t, err)
	assert.Contains(t, out, "Recommendations for category sdr")
	assert.Contains(t, out, "$11.00")

	store, err := storage.Open(context.Background(), "sqlite", dbPath, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	recs, err := store.Recommendations(context.Background(), "sdr")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSimulateFromFixture(t *testing.T) {
	configPath, fixturePath, _ := writeWorkspace(t)

	out, err := runApp(t, "--config", configPath, "simulate", "-c", "sdr", "--fixture", fixturePath, "--output-format", "csv")
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewBufferString(out)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 7)
}

func TestCommandErrors(t *testing.T) {
	configPath, fixturePath, _ := writeWorkspace(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown output format", args: []string{"--config", configPath, "optimize", "-c", "sdr", "--output-format", "json"}},
		{name: "no category", args: []string{"--config", configPath, "optimize", "--fixture", fixturePath}},
		{name: "invalid category", args: []string{"--config", configPath, "simulate", "-c", "sdr;drop", "--fixture", fixturePath}},
		{name: "missing fixture", args: []string{"--config", configPath, "seed", "--fixture", filepath.Join(t.TempDir(), "absent.yaml")}},
		{name: "missing config", args: []string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "optimize"}},
		{name: "unknown category in fixture", args: []string{"--config", configPath, "optimize", "-c", "dairy", "--fixture", fixturePath, "--output-format", "none"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

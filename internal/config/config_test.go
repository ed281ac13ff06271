package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/app/data", cfg.DataPath)
	assert.Equal(t, "/app/data", cfg.HostDataPath, "host path falls back to data path")
	assert.Equal(t, "/data", cfg.WorkerDataPath)
	assert.Equal(t, "ml-pipeline-converter", cfg.Images.Converter)
	assert.Equal(t, "ml-pipeline-inference", cfg.Images.Inference)
	assert.Equal(t, 5000, cfg.InferencePort)
	assert.Equal(t, "http://ml_inference_service:5000", cfg.InferenceURL)
	assert.Equal(t, "ml_pipeline_network", cfg.NetworkDefault)
	assert.Equal(t, 300*time.Second, cfg.Timeouts.Cleaning)
	assert.Equal(t, 600*time.Second, cfg.Timeouts.Training)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.SettleDelay)
	assert.True(t, cfg.ProbeFallback)
	assert.Equal(t, BackendDocker, cfg.Backend)
	assert.Equal(t, int64(100<<20), cfg.MaxUploadSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATA_PATH", "/srv/data")
	t.Setenv("HOST_DATA_PATH", "/home/ml/data")
	t.Setenv("TRAINING_TIMEOUT", "90")
	t.Setenv("INFERENCE_SETTLE_DELAY", "250ms")
	t.Setenv("PROBE_FALLBACK", "false")
	t.Setenv("INFERENCE_CONTAINER", "inference")
	t.Setenv("INFERENCE_PORT", "5050")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/home/ml/data", cfg.HostDataPath)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Training)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeouts.SettleDelay)
	assert.False(t, cfg.ProbeFallback)
	assert.Equal(t, "http://inference:5050", cfg.InferenceURL)
	assert.Equal(t, filepath.Join("/srv/data", "raw", CanonicalCSV), cfg.RawPath(CanonicalCSV))
	assert.Equal(t, filepath.Join("/srv/data", "model", ModelFile), cfg.ModelPath(ModelFile))
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad port", "INFERENCE_PORT", "port"},
		{"port out of range", "INFERENCE_PORT", "70000"},
		{"bad duration", "CLEANING_TIMEOUT", "soon"},
		{"bad bool", "PROBE_FALLBACK", "maybe"},
		{"unknown backend", "RUNTIME_BACKEND", "k8s"},
		{"process without commands", "RUNTIME_BACKEND", "process"},
		{"bad stage commands", "STAGE_COMMANDS", "{"},
		{"negative upload limit", "MAX_UPLOAD_MB", "-1"},
		{"zero upload limit", "MAX_UPLOAD_MB", "0"},
		{"negative free disk", "MIN_FREE_DISK_MB", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_ProcessBackend(t *testing.T) {
	t.Setenv("RUNTIME_BACKEND", "process")
	t.Setenv("STAGE_COMMANDS", `{"ml-pipeline-cleaning": ["python3", "clean.py"]}`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendProcess, cfg.Backend)
	assert.Equal(t, []string{"python3", "clean.py"}, cfg.StageCommands["ml-pipeline-cleaning"])
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/logging"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Runner.MaxModelCalls)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Runner, cfg.Runner)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runner:
  max_model_calls: 5
  max_tool_calls: 20
model:
  provider: anthropic
  name: claude-sonnet-4-5
storage:
  driver: sqlite
  path: /tmp/agentrun.db
logging:
  level: debug
  format: json
gate:
  escalate: ["delete_*"]
memory:
  enabled: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Runner.MaxModelCalls)
	assert.Equal(t, 20, cfg.Runner.MaxToolCalls)
	assert.Equal(t, 8, cfg.Runner.ToolParallelism, "unset keys keep their default")
	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model.Name)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, []string{"delete_*"}, cfg.Gate.Escalate)
	assert.True(t, cfg.Memory.Enabled)

	lc := cfg.LoggerConfig()
	assert.Equal(t, logging.LogLevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runner:\n  max_model_calls: 5\n"), 0o600))

	t.Setenv("AGENTRUN_MAX_MODEL_CALLS", "7")
	t.Setenv("AGENTRUN_STORAGE_DRIVER", "file")
	t.Setenv("AGENTRUN_STORAGE_PATH", t.TempDir())
	t.Setenv("AGENTRUN_GATE_ESCALATE", "rm_*, drop_* ,")
	t.Setenv("AGENTRUN_MEMORY_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Runner.MaxModelCalls)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, []string{"rm_*", "drop_*"}, cfg.Gate.Escalate)
	assert.True(t, cfg.Memory.Enabled)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("AGENTRUN_MAX_TOOL_CALLS", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "AGENTRUN_MAX_TOOL_CALLS")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runner: [unclosed"), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Runner.MaxModelCalls = -1
	cfg.Model.Provider = "acme"
	cfg.Storage.Driver = DriverSQLite
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"
	cfg.Gate.Escalate = []string{"["}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"max_model_calls", "model.provider", "storage.path", "logging.level", "logging.format", "gate.escalate"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agentrun.yaml")

	cfg := Default()
	cfg.Version = ""
	cfg.Model.Provider = ProviderAnthropic
	cfg.Gate.Escalate = []string{"deploy"}
	require.NoError(t, cfg.Save(path))
	assert.Equal(t, CurrentVersion, cfg.Version)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestModelConfigAPIKey(t *testing.T) {
	t.Setenv("MY_KEY", "secret")
	assert.Equal(t, "secret", ModelConfig{APIKeyEnv: "MY_KEY"}.APIKey())
	assert.Empty(t, ModelConfig{}.APIKey())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yaoapp/kun/log"
)

func TestLoadYAML(t *testing.T) {
	t.Setenv("BRAID_TEST_DATA_PATH", "/var/lib/braid")
	file := write(t, "braid.yml", `
log:
  level: debug
datastore:
  type: badger
  path: $ENV.BRAID_TEST_DATA_PATH
script:
  maxDepth: 32
  cacheSize: 128
  timeout: 2s
  libraries: [base, string]
dispatcher:
  workers: 8
  queueTimeout: 100ms
store:
  type: lru
  size: 512
procedures: scripts
watch: true
`)

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "badger", cfg.Datastore.Type)
	assert.Equal(t, "/var/lib/braid", cfg.Datastore.Path)
	assert.Equal(t, 32, cfg.Script.MaxDepth)
	assert.Equal(t, 128, cfg.Script.CacheSize)
	assert.Equal(t, 2*time.Second, cfg.Script.Timeout)
	assert.Equal(t, []string{"base", "string"}, cfg.Script.Libraries)
	assert.Equal(t, 8, cfg.Dispatcher.Workers)
	assert.Equal(t, 100*time.Millisecond, cfg.Dispatcher.QueueTimeout)
	assert.Equal(t, 512, cfg.Store.Size)
	assert.Equal(t, filepath.Join(filepath.Dir(file), "scripts"), cfg.Procedures)
	assert.True(t, cfg.Watch)
}

func TestLoadJSONC(t *testing.T) {
	t.Setenv("BRAID_TEST_NEO4J_PASS", "secret")
	file := write(t, "braid.jsonc", `{
		// the graph
		"datastore": {
			"type": "neo4j",
			"url": "neo4j://localhost:7687",
			"password": "$ENV.BRAID_TEST_NEO4J_PASS", /* from the environment */
			"timeout": "30s",
		},
		"dispatcher": {"workers": 2, "timeout": 1000000000},
		"procedures": "/opt/procedures",
	}`)

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "neo4j", cfg.Datastore.Type)
	assert.Equal(t, "secret", cfg.Datastore.Password)
	assert.Equal(t, 30*time.Second, cfg.Datastore.Timeout)
	assert.Equal(t, time.Second, cfg.Dispatcher.Timeout)
	assert.Equal(t, "/opt/procedures", cfg.Procedures)
}

func TestLoadJSON(t *testing.T) {
	file := write(t, "braid.json", `{"datastore": {"type": "buntdb"}, "script": {"timeout": "5m"}}`)
	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "buntdb", cfg.Datastore.Type)
	assert.Equal(t, 5*time.Minute, cfg.Script.Timeout)
}

func TestLoadError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = Load(write(t, "braid.toml", `type = "badger"`))
	assert.Contains(t, err.Error(), "does not support")

	_, err = Load(write(t, "braid.json", `{"datastore": `))
	assert.Error(t, err)

	_, err = Load(write(t, "braid.yaml", "script:\n  timeout: soon\n"))
	assert.Contains(t, err.Error(), "timeout")
}

func TestApply(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	defer log.SetLevel(log.InfoLevel)

	output := filepath.Join(t.TempDir(), "logs", "braid.log")
	cfg := &Config{Log: Log{Level: "trace", Output: output, Format: "json"}}
	require.NoError(t, cfg.Apply())
	log.Info("hello")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	cfg = &Config{Log: Log{Level: "verbose"}}
	assert.Error(t, cfg.Apply())

	cfg = &Config{Log: Log{Format: "xml"}}
	assert.Error(t, cfg.Apply())

	cfg = &Config{}
	assert.NoError(t, cfg.Apply())
}

func write(t *testing.T, name string, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

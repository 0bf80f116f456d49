package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, "events", c.Router.EventsTableName)
	assert.Equal(t, 50, c.Router.BatchSize)
	assert.Equal(t, 30, c.Router.TTLDays)
	assert.Empty(t, c.Router.DLQURL)
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Router, c.Router)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
router:
  eventsTableName: custom-events
  batchSize: 25
  ttlDays: 7
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-events", c.Router.EventsTableName)
	assert.Equal(t, 25, c.Router.BatchSize)
	assert.Equal(t, 7, c.Router.TTLDays)
}

func TestLoadRejectsPathTraversal(t *testing.T) {
	_, err := Load("../../etc/passwd")
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ROUTER_EVENTS_TABLE", "env-events")
	t.Setenv("ROUTER_DLQ_URL", "https://dlq.example/queue")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-events", c.Router.EventsTableName)
	assert.Equal(t, "https://dlq.example/queue", c.Router.DLQURL)
}

func TestValidate(t *testing.T) {
	c := DefaultConfig()
	assert.NoError(t, c.Validate())

	c.Router.EventsTableName = ""
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Router.BatchSize = 0
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Router.TTLDays = -1
	assert.Error(t, c.Validate())
}

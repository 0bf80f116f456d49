package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterLoaderLoadAndFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
filters:
  - plugin: notifier
    eventNames: ["order.created", "order.cancelled"]
    enabled: true
  - plugin: archiver
    enabled: true
  - plugin: disabled-plugin
    eventNames: ["x"]
    enabled: false
`), 0o600))

	fl := NewFilterLoader(logr.Discard())
	require.NoError(t, fl.Load(path))

	f := fl.Filter("notifier")
	assert.True(t, f.Match("order.created"))
	assert.False(t, f.Match("order.shipped"))

	all := fl.Filter("archiver")
	assert.True(t, all.Match("anything"))

	disabled := fl.Filter("disabled-plugin")
	assert.False(t, disabled.Match("x"))

	unknown := fl.Filter("never-registered")
	assert.False(t, unknown.Match("anything"))
}

func TestFilterLoaderLoadMissingFile(t *testing.T) {
	fl := NewFilterLoader(logr.Discard())
	err := fl.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFilterLoaderSkipsEntryWithoutPluginName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
filters:
  - eventNames: ["x"]
    enabled: true
`), 0o600))

	fl := NewFilterLoader(logr.Discard())
	require.NoError(t, fl.Load(path))
	assert.False(t, fl.Filter("").Match("x"))
}

func TestFilterLoaderAddFilter(t *testing.T) {
	fl := NewFilterLoader(logr.Discard())
	fl.AddFilter(FilterEntry{Plugin: "manual", EventNames: []string{"y"}, Enabled: true})

	f := fl.Filter("manual")
	assert.True(t, f.Match("y"))
	assert.False(t, f.Match("z"))
}

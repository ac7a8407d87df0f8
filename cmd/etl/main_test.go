package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/DjordjeVuckovic/etl-runner/internal/etl"
	"github.com/DjordjeVuckovic/etl-runner/internal/storage/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tasksYAML = `
name: customers
description: Customer import
batch: true
extractor:
  name: csv
  options: {path: customers.csv}
transformer:
  name: mapping
  options: {mapping: customers.yaml}
loader:
  name: pg
`

func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "customers.yaml"), []byte(tasksYAML), 0o644))

	a, err := newApp(t.Context(), &EtlConfig{
		StorageConfig: factory.StorageConfig{Audit: factory.AuditVoid},
		TasksPath:     dir,
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestListCmd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listCmd(newTestApp(t), []string{"-no-color"}, &buf))

	assert.Contains(t, buf.String(), "List of available ETL Tasks")
	assert.Regexp(t, `1\s+customers\s+batch\s+csv\s+mapping\s+pg\s+Customer import`, buf.String())
}

func TestStagesCmd_WithoutDatabase(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, stagesCmd(newTestApp(t), []string{"-no-color"}, &buf))

	assert.Contains(t, buf.String(), "CSV extractor")
	assert.NotContains(t, buf.String(), "Postgres loader")
}

func TestRunCmd(t *testing.T) {
	a := newTestApp(t)

	var buf bytes.Buffer
	assert.Equal(t, 2, runCmd(t.Context(), a, []string{"-no-color"}, &buf))

	buf.Reset()
	assert.Equal(t, 1, runCmd(t.Context(), a, []string{"-no-color", "orders"}, &buf))
	assert.Contains(t, buf.String(), "Task {name: orders} not found.")

	buf.Reset()
	assert.Equal(t, 1, runCmd(t.Context(), a, []string{"-no-color", "customers"}, &buf))
	assert.Contains(t, buf.String(), "pg not found in available loaders")
}

func TestSchemaCmd(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, schemaCmd([]string{"-output", dir}, &buf))

	for _, name := range []string{"datamapping-v1.json", "task-v1.json"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.True(t, json.Valid(raw), name)
		assert.Contains(t, buf.String(), name)
	}
}

func TestAppConfig_Load(t *testing.T) {
	t.Setenv("ENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("AUDIT_BACKEND", "void")
	t.Setenv("PG_CONNECTION_STRING", "")
	t.Setenv("ES_ADDRESSES", "")
	t.Setenv("TASKS_PATH", "")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ANNOUNCE_CHUNKS", "first")
	t.Setenv("NOTIFY_RECIPIENT", "ops@example.com")

	cfg, err := (&AppConfig{ENV: "test"}).Load()
	require.NoError(t, err)
	assert.Equal(t, "tasks", cfg.TasksPath)
	assert.Equal(t, etl.AnnounceFirstChunk, cfg.Announce)
	assert.Equal(t, "ops@example.com", cfg.NotifyRecipient)
	assert.Equal(t, factory.AuditVoid, cfg.StorageConfig.Audit)

	t.Setenv("LOG_LEVEL", "loud")
	_, err = (&AppConfig{ENV: "test"}).Load()
	assert.ErrorContains(t, err, "invalid LOG_LEVEL")
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/arkdb/internal/snapshot"
)

const testSchema = `
tables:
  users:
    columns:
      - {name: id, type: integer, primary_key: true, auto_increment: true}
      - {name: email, type: email, unique: true}
      - {name: age, type: integer, index: true, optional: true}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setup(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	schemaFile := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaFile, []byte(testSchema), 0644))
	return []string{
		"--data-dir", dir,
		"--schema", schemaFile,
		"--engine", "sqlite",
		"--env-file", filepath.Join(dir, "missing.env"),
		"--name", "clitest",
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.String(), strings.TrimSpace(out))
}

func TestImportExportRoundTrip(t *testing.T) {
	global := setup(t)
	dir := t.TempDir()

	in := filepath.Join(dir, "in.json")
	require.NoError(t, os.WriteFile(in, []byte(`{
		"data": {"users": [
			{"id": 1, "email": "a@x.io", "age": 30},
			{"id": 2, "email": "b@x.io"}
		]}
	}`), 0644))

	out, err := run(t, append([]string{"import", in, "--mode", "replace"}, global...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 rows")

	exported := filepath.Join(dir, "out.json.sz")
	out, err = run(t, append([]string{"export", "--out", exported}, global...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 rows")

	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	snap, err := snapshot.Decode(data, snapshot.FormatSnappy)
	require.NoError(t, err)
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, "clitest", snap.Metadata.DBName)
	assert.Len(t, snap.Data["users"], 2)
}

func TestExportToStorage(t *testing.T) {
	global := setup(t)
	out, err := run(t, append([]string{"export", "--to-storage", "--compress"}, global...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "snapshots/clitest-")
	assert.Contains(t, out, ".json.sz")
}

func TestExportRequiresTarget(t *testing.T) {
	global := setup(t)
	_, err := run(t, append([]string{"export"}, global...)...)
	assert.Error(t, err)
}

func TestTopology(t *testing.T) {
	global := setup(t)
	out, err := run(t, append([]string{"topology"}, global...)...)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "clitest", got["name"])
	assert.Equal(t, float64(1), got["version"])
}

func TestInvalidEngine(t *testing.T) {
	global := setup(t)
	_, err := run(t, append([]string{"topology"}, append(global, "--engine", "rocks")...)...)
	assert.Error(t, err)
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPresetsCommand(t *testing.T) {
	out, err := execute(t, "presets")
	require.NoError(t, err)
	for _, want := range []string{"minimal", "balanced", "aggressive", "crop", "trim_start"} {
		assert.Contains(t, out, want)
	}

	out, err = execute(t, "presets", "--json")
	require.NoError(t, err)
	var tables map[string]map[string]map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &tables))
	assert.Contains(t, tables["balanced"], "hue")
	assert.NotContains(t, tables["minimal"], "speed")
}

func TestCompareCommand(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.mp4")
	require.NoError(t, os.WriteFile(a, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("two!"), 0o644))

	out, err := execute(t, "compare", a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "Files differ")

	out, err = execute(t, "compare", a, a)
	require.NoError(t, err)
	assert.Contains(t, out, "byte-identical")

	_, err = execute(t, "compare", a)
	assert.Error(t, err)
}

func TestVerifyCommandJSON(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	v1 := filepath.Join(dir, "v1.mp4")
	v2 := filepath.Join(dir, "v2.mp4")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0o644))
	require.NoError(t, os.WriteFile(v1, []byte("variant"), 0o644))
	require.NoError(t, os.WriteFile(v2, []byte("variant"), 0o644))

	out, err := execute(t, "verify", "--json", src, v1, v2)
	require.NoError(t, err)

	var res struct {
		Checks []struct {
			Path               string `json:"path"`
			DistinctFromSource bool   `json:"distinct_from_source"`
		} `json:"checks"`
		Duplicates [][]int `json:"duplicates"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Checks, 2)
	assert.True(t, res.Checks[0].DistinctFromSource)
	assert.Equal(t, [][]int{{0, 1}}, res.Duplicates)
}

func TestJobsCommandNeedsStateDB(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yml"), "jobs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state_db")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, 1)
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "3")
	assert.Empty(t, renderTable(nil, nil))
}

func TestDefaultManifestPathIsPerBatch(t *testing.T) {
	a := defaultManifestPath("out", "/videos/clip.mp4", "01JAAAAAAAAAAAAAAAAAAAAAAA")
	b := defaultManifestPath("out", "/videos/clip.mp4", "01JBBBBBBBBBBBBBBBBBBBBBBB")
	assert.Equal(t, filepath.Join("out", "clip_01JAAAAAAAAAAAAAAAAAAAAAAA_manifest.json"), a)
	assert.NotEqual(t, a, b)
}

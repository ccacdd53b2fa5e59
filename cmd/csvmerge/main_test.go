package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_RequiresDirs(t *testing.T) {
	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-muscle", "m"}, &bytes.Buffer{}, &stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "-angle")
}

func TestRun_MergesPairs(t *testing.T) {
	dir := t.TempDir()
	muscle := filepath.Join(dir, "muscle")
	angle := filepath.Join(dir, "angle")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(muscle, 0o755))
	require.NoError(t, os.MkdirAll(angle, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(muscle, "20250304_163722.csv"), []byte(
		"Timestamp,Ch.0\n2025-03-04 16:37:25,1\n2025-03-04 16:37:26,2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(angle, "20250304_163722.csv"), []byte(
		"timestamp,elbow_angle\n2025-03-04 16:37:22.000,100\n2025-03-04 16:37:23.000,80\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(muscle, "orphan_2024.csv"), []byte("Timestamp,Ch.0\n"), 0o644))

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"-muscle", muscle, "-angle", angle, "-out", out, "-concurrency", "2"}, &stdout, &bytes.Buffer{})
	require.NoError(t, err, stdout.String())

	assert.Contains(t, stdout.String(), "1 of 1 pairs merged")
	assert.Contains(t, stdout.String(), "skip orphan_2024.csv")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRun_EmptyInputDir(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), []string{"-muscle", dir, "-angle", dir, "-out", filepath.Join(dir, "out")}, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CSV files found")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBlake3Hash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.yaml")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	h1, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Len(t, h1, 64, "hex-encoded 256-bit digest")

	// Deterministic.
	h2, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Content-sensitive.
	require.NoError(t, os.WriteFile(path, []byte("other content"), 0644))
	h3, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestVerifyFileHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.yaml")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	h, err := ComputeBlake3Hash(path)
	require.NoError(t, err)

	assert.NoError(t, VerifyFileHash(path, h))

	err = VerifyFileHash(path, "deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestGenerateAndLoadChecksums(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("a: 1"), 0644))

	require.NoError(t, GenerateChecksums(dir, []string{"config.yaml", "missing.yaml"}))

	manifest, err := LoadChecksums(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.Version)
	assert.Contains(t, manifest.Hashes, "config.yaml")
	assert.NotContains(t, manifest.Hashes, "missing.yaml", "missing files are skipped")

	// Restrictive permissions on the manifest.
	info, err := os.Stat(filepath.Join(dir, ".checksums"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadChecksumsMissing(t *testing.T) {
	_, err := LoadChecksums(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksums file not found")
}

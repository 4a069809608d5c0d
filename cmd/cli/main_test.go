package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// An unterminated block fails while the configuration is loaded.
	invalidHCL := `
		repository {
			url = "https://git.example.com/tasks.git"
	`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "agent.hcl")
	err := os.WriteFile(filePath, []byte(invalidHCL), 0600)
	require.NoError(t, err, "failed to set up test file")

	args := []string{"-env-file", filepath.Join(tempDir, "absent.env"), filePath}
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, []string{filePath})

	// --- Assert ---
	require.Error(t, runErr, "run() should fail when the configuration cannot be parsed")
	require.Contains(t, runErr.Error(), "failed to load configuration")
	require.Contains(t, runErr.Error(), "failed to parse config file")

	runErr = run(context.Background(), out, args)
	require.ErrorContains(t, runErr, "failed to load env file")
}

func TestRun_ShowStateWithoutSavedState(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	tempDir := t.TempDir()
	cfg := `
repository {
  url = "https://git.example.com/tasks.git"
}

paths {
  system_dir = "` + filepath.ToSlash(filepath.Join(tempDir, "system")) + `"
  user_dir   = "` + filepath.ToSlash(filepath.Join(tempDir, "user")) + `"
}
`
	filePath := filepath.Join(tempDir, "agent.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(cfg), 0600))
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"-audience", "system", "-show-state", "-log-level", "error", filePath})

	// --- Assert ---
	require.NoError(t, err)
	require.Contains(t, out.String(), "no saved state for audience system")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Providing an unknown flag will cause cli.Parse to return an error.
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"repostate/internal/credentials"
)

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInitWritesDefaultsAndRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := executeCommand(t, "", "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "status_ttl: 5s")

	_, err = executeCommand(t, "", "config", "init", "--config", path)
	require.Error(t, err)

	_, err = executeCommand(t, "", "config", "init", "--config", path, "--force")
	require.NoError(t, err)
}

func TestConfigShowAppliesEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  status_ttl: 2s\n"), 0o600))
	t.Setenv("REPOSTATE_TIMEOUTS_NETWORK", "30s")

	out, err := executeCommand(t, "", "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "status_ttl: 2s")
	assert.Contains(t, out, "network: 30s")
}

func TestCredentialsSetAndDelete(t *testing.T) {
	keyring.MockInit()

	_, err := executeCommand(t, "ghp_from_stdin\n", "credentials", "set", "github.com")
	require.NoError(t, err)

	token, err := credentials.NewKeyringProvider().Token(context.Background(), "github.com")
	require.NoError(t, err)
	assert.Equal(t, "ghp_from_stdin", token)

	_, err = executeCommand(t, "", "credentials", "delete", "github.com")
	require.NoError(t, err)

	_, err = executeCommand(t, "", "credentials", "set", "github.com")
	require.Error(t, err)
}

func TestStageLineRejectsConflictingFlags(t *testing.T) {
	t.Setenv("REPOSTATE_DATA_DIR", t.TempDir())

	_, err := executeCommand(t, "", "--no-journal", "stage-line", "a.txt", "0", "--unstage", "--discard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

package gateway

import (
	"context"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repostate/internal/config"
	"repostate/internal/gitexec"
	"repostate/internal/repocontext"
)

func newTestGateway(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()

	settings := config.DefaultSettings()
	settings.Watcher.Enabled = false

	hub := NewHub()
	manager := repocontext.NewManager(repocontext.ManagerOptions{
		Runner:   gitexec.New(gitexec.Options{}),
		Settings: settings,
		Emit:     hub.Publish,
	})
	server := NewServer(manager, hub, "")
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		hub.CloseAll()
		ts.Close()
		_ = manager.CloseAll(context.Background())
	})
	return ts, hub
}

func mustInitTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}

	repoRoot := t.TempDir()
	runGit(t, repoRoot, "init", "--initial-branch=main")
	runGit(t, repoRoot, "config", "user.email", "tests@repostate.local")
	runGit(t, repoRoot, "config", "user.name", "RepoState Tests")
	runGit(t, repoRoot, "config", "commit.gpgsign", "false")
	return repoRoot
}

func mustCommitFile(t *testing.T, repoRoot string, name string, content string, message string) {
	t.Helper()
	writeFile(t, repoRoot, name, content)
	runGit(t, repoRoot, "add", "--", name)
	runGit(t, repoRoot, "commit", "-m", message)
}

func writeFile(t *testing.T, repoRoot string, name string, content string) {
	t.Helper()
	path := filepath.Join(repoRoot, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runGit(t *testing.T, repoRoot string, args ...string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

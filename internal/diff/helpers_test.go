package diff

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"repostate/internal/config"
	"repostate/internal/engine"
	"repostate/internal/gitexec"
)

func mustInitTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}

	repoRoot := t.TempDir()
	runGitOrFail(t, repoRoot, "init", "--initial-branch=main")
	runGitOrFail(t, repoRoot, "config", "user.email", "tests@repostate.local")
	runGitOrFail(t, repoRoot, "config", "user.name", "RepoState Tests")
	runGitOrFail(t, repoRoot, "config", "commit.gpgsign", "false")
	return repoRoot
}

func mustCommitFile(t *testing.T, repoRoot string, name string, content string) {
	t.Helper()

	writeFileOrFail(t, repoRoot, name, content)
	runGitOrFail(t, repoRoot, "add", "--", name)
	runGitOrFail(t, repoRoot, "commit", "-m", "add "+name)
}

func writeFileOrFail(t *testing.T, repoRoot string, name string, content string) {
	t.Helper()

	path := filepath.Join(repoRoot, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func readFileOrFail(t *testing.T, repoRoot string, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(repoRoot, filepath.FromSlash(name)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func runGitOrFail(t *testing.T, repoRoot string, args ...string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", repoRoot}, args...)...)
	cmd.Env = gitexec.SanitizedEnv(os.Environ())
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v output=%s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out)
}

func newTestService(t *testing.T, repoRoot string, cache *Cache) (*Service, *engine.Engine) {
	t.Helper()

	eng, err := engine.Open(context.Background(), gitexec.New(gitexec.Options{}), repoRoot, engine.Options{})
	if err != nil {
		t.Fatalf("engine.Open returned error: %v", err)
	}
	if cache == nil {
		cache = NewCache(config.DefaultDiffCacheBudget)
	}
	return NewService(eng, cache, LimitsFromSettings(config.DefaultSettings().Diff), 64), eng
}

// countingRunner responde por subcomando e conta as chamadas.
type countingRunner struct {
	mu        sync.Mutex
	responses map[string]gitexec.Result
	calls     map[string]int
}

func newCountingRunner() *countingRunner {
	return &countingRunner{
		responses: make(map[string]gitexec.Result),
		calls:     make(map[string]int),
	}
}

func (r *countingRunner) on(subcommand string, result gitexec.Result) *countingRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[subcommand] = result
	return r
}

func (r *countingRunner) Run(_ context.Context, req gitexec.Request) (gitexec.Result, error) {
	sub := ""
	if len(req.Args) > 0 {
		sub = req.Args[0]
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[sub]++
	return r.responses[sub], nil
}

func (r *countingRunner) Stream(context.Context, gitexec.Request, gitexec.StreamOptions) (*gitexec.LineStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["stream"]++
	return nil, os.ErrInvalid
}

func (r *countingRunner) count(subcommand string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[subcommand]
}

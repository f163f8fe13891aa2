package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

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

func mustCommitFile(t *testing.T, repoRoot string, name string, content string, message string) string {
	t.Helper()

	writeFileOrFail(t, repoRoot, name, content)
	runGitOrFail(t, repoRoot, "add", "--", name)
	runGitOrFail(t, repoRoot, "commit", "-m", message)
	return strings.TrimSpace(runGitOrFail(t, repoRoot, "rev-parse", "HEAD"))
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

func newTestEngine(t *testing.T, repoRoot string, opts Options) *Engine {
	t.Helper()

	eng, err := Open(context.Background(), gitexec.New(gitexec.Options{}), repoRoot, opts)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	return eng
}

// fakeRunner responde por subcomando e conta as invocações.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string][]gitexec.Result
	requests  []gitexec.Request
	calls     map[string]*atomic.Int32
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		responses: make(map[string][]gitexec.Result),
		calls:     make(map[string]*atomic.Int32),
	}
}

func (r *fakeRunner) on(subcommand string, results ...gitexec.Result) *fakeRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[subcommand] = append(r.responses[subcommand], results...)
	return r
}

func (r *fakeRunner) Run(_ context.Context, req gitexec.Request) (gitexec.Result, error) {
	sub := requestSubcommand(req.Args)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	counter, ok := r.calls[sub]
	if !ok {
		counter = &atomic.Int32{}
		r.calls[sub] = counter
	}
	n := int(counter.Add(1)) - 1

	queue := r.responses[sub]
	if len(queue) == 0 {
		return gitexec.Result{}, nil
	}
	if n >= len(queue) {
		n = len(queue) - 1
	}
	return queue[n], nil
}

func (r *fakeRunner) Stream(context.Context, gitexec.Request, gitexec.StreamOptions) (*gitexec.LineStream, error) {
	return nil, nil
}

func (r *fakeRunner) count(subcommand string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter, ok := r.calls[subcommand]; ok {
		return int(counter.Load())
	}
	return 0
}

func (r *fakeRunner) lastArgs(subcommand string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.requests) - 1; i >= 0; i-- {
		if requestSubcommand(r.requests[i].Args) == subcommand {
			return r.requests[i].Args
		}
	}
	return nil
}

func requestSubcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" || args[i] == "-C" {
			i++
			continue
		}
		if strings.HasPrefix(args[i], "-") {
			continue
		}
		return args[i]
	}
	return ""
}

func hasArgSequence(args []string, sequence ...string) bool {
	if len(sequence) == 0 {
		return true
	}
	for i := 0; i+len(sequence) <= len(args); i++ {
		match := true
		for j := range sequence {
			if args[i+j] != sequence[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func noSleep(context.Context, time.Duration) error {
	return nil
}

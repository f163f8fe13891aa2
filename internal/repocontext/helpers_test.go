package repocontext

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"repostate/internal/config"
	"repostate/internal/diff"
	"repostate/internal/engine"
	"repostate/internal/gitexec"
	"repostate/internal/model"
)

// fakeRunner responde comandos git sem processo real e conta chamadas por
// diretório e subcomando.
type fakeRunner struct {
	mu       sync.Mutex
	calls    map[string]int
	log      string
	statusCh chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(map[string]int)}
}

// callKey separa as leituras que compartilham subcomando.
func callKey(args []string) string {
	if len(args) == 0 {
		return ""
	}
	switch args[0] {
	case "for-each-ref":
		return "for-each-ref " + args[len(args)-1]
	case "stash":
		if len(args) > 1 {
			return "stash " + args[1]
		}
	}
	return args[0]
}

func (r *fakeRunner) Run(ctx context.Context, req gitexec.Request) (gitexec.Result, error) {
	key := callKey(req.Args)

	r.mu.Lock()
	r.calls[req.Dir+"|"+key]++
	r.calls[key]++
	gate := r.statusCh
	logOutput := r.log
	r.mu.Unlock()

	switch key {
	case "rev-parse":
		if len(req.Args) > 1 && req.Args[1] == "--show-toplevel" {
			return gitexec.Result{Stdout: []byte(req.Dir + "\n")}, nil
		}
		return gitexec.Result{Stdout: []byte(strings.Repeat("a", 40) + "\n")}, nil
	case "symbolic-ref":
		return gitexec.Result{Stdout: []byte("refs/heads/main\n")}, nil
	case "status":
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return gitexec.Result{}, ctx.Err()
			}
		}
		return gitexec.Result{Stdout: []byte("# branch.head main\x00")}, nil
	case "log":
		return gitexec.Result{Stdout: []byte(logOutput)}, nil
	default:
		return gitexec.Result{}, nil
	}
}

func (r *fakeRunner) Stream(context.Context, gitexec.Request, gitexec.StreamOptions) (*gitexec.LineStream, error) {
	return nil, fmt.Errorf("stream not supported by fake runner")
}

func (r *fakeRunner) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key]
}

func (r *fakeRunner) countIn(dir string, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[dir+"|"+key]
}

func (r *fakeRunner) setLog(shas ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = commitLog(shas...)
}

func (r *fakeRunner) holdStatus() func() {
	gate := make(chan struct{})
	r.mu.Lock()
	r.statusCh = gate
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(gate)
			r.mu.Lock()
			r.statusCh = nil
			r.mu.Unlock()
		})
	}
}

// commitLog monta a saída de `git log` no formato NUL/0x1E lido pelo engine.
func commitLog(shas ...string) string {
	var b strings.Builder
	for _, sha := range shas {
		fields := []string{sha, "", "Dev", "dev@example.com", "2024-01-02T03:04:05Z", "Dev", "dev@example.com", "2024-01-02T03:04:05Z", "commit " + sha}
		b.WriteString(strings.Join(fields, "\x00"))
		b.WriteString("\x1e\n")
	}
	return b.String()
}

func commitSHAs(commits []model.Commit) []string {
	out := make([]string, 0, len(commits))
	for _, commit := range commits {
		out = append(out, commit.SHA)
	}
	return out
}

func newTestContext(t *testing.T, runner *fakeRunner, emit EmitFunc) *Context {
	t.Helper()

	settings := config.DefaultSettings()
	eng := engine.New(runner, t.TempDir(), engine.Options{Timeouts: settings.Timeouts})
	diffs := diff.NewService(eng, diff.NewCache(settings.Diff.CacheBudgetBytes), diff.LimitsFromSettings(settings.Diff), 16)
	c := New(eng, diffs, Options{Cache: settings.Cache, Emit: emit})
	t.Cleanup(func() {
		_ = c.Close(context.Background())
	})
	return c
}

// recorder guarda os eventos emitidos.
type recorder struct {
	mu     sync.Mutex
	events []string
	data   []interface{}
}

func (r *recorder) emit(eventName string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventName)
	r.data = append(r.data, data)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// fakeSource entrega sinais manualmente por raiz.
type fakeSource struct {
	mu         sync.Mutex
	handlers   map[string]func(model.Signal)
	subscribes map[string]int
	stopped    map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		handlers:   make(map[string]func(model.Signal)),
		subscribes: make(map[string]int),
		stopped:    make(map[string]int),
	}
}

func (s *fakeSource) Subscribe(repoRoot string, handler func(model.Signal)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[repoRoot] = handler
	s.subscribes[repoRoot]++
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, repoRoot)
		s.stopped[repoRoot]++
	}, nil
}

func (s *fakeSource) fire(repoRoot string, signal model.Signal) bool {
	s.mu.Lock()
	handler := s.handlers[repoRoot]
	s.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(signal)
	return true
}

func (s *fakeSource) subscriptions(repoRoot string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes[repoRoot]
}

func (s *fakeSource) stops(repoRoot string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped[repoRoot]
}

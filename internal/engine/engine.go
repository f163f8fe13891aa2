package engine

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"repostate/internal/config"
	"repostate/internal/gitexec"
	"repostate/internal/giterr"
)

// TokenProvider fornece tokens para operações de rede autenticadas.
// Retorna "" sem erro quando não há token para o host.
type TokenProvider interface {
	Token(ctx context.Context, host string) (string, error)
}

// Options configura um Engine.
type Options struct {
	Timeouts    config.TimeoutSettings
	MaxOutput   int
	Classifier  *giterr.Classifier
	Observer    CommandObserver
	Credentials TokenProvider
	Sleep       gitexec.Sleeper
	Sanitize    func(string) string
}

// Engine constrói argumentos, executa o git e converte a saída em modelos.
// Uma instância atende um único repositório (Root).
type Engine struct {
	runner      gitexec.Runner
	root        string
	timeouts    config.TimeoutSettings
	maxOutput   int
	classifier  *giterr.Classifier
	observer    CommandObserver
	credentials TokenProvider
	sleep       gitexec.Sleeper
	sanitize    func(string) string
}

// Probe verifica se path está dentro de uma work tree. Um "não é repositório"
// é resultado negativo válido, não erro.
func Probe(ctx context.Context, runner gitexec.Runner, path string, timeout time.Duration) (string, bool, error) {
	absPath, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return "", false, giterr.New(giterr.KindInvalidPath, "Não foi possível resolver o caminho do repositório.", err.Error())
	}
	info, err := os.Stat(absPath)
	if err != nil || !info.IsDir() {
		return "", false, nil
	}

	result, err := runner.Run(ctx, gitexec.Request{
		Dir:     absPath,
		Args:    []string{"rev-parse", "--show-toplevel"},
		Class:   gitexec.ClassStatus,
		Timeout: timeout,
	})
	if err != nil {
		return "", false, err
	}
	if result.ExitCode != 0 {
		stderr := strings.ToLower(result.Stderr)
		if strings.TrimSpace(stderr) == "" || strings.Contains(stderr, "not a git repository") {
			return "", false, nil
		}
		return "", false, giterr.Classify(giterr.OpRead, result.Stderr, result.ExitCode, nil)
	}

	root := strings.TrimSpace(result.Text())
	if root == "" {
		return "", false, nil
	}
	return filepath.Clean(root), true, nil
}

// Open resolve a raiz do repositório em path e cria o Engine.
func Open(ctx context.Context, runner gitexec.Runner, path string, opts Options) (*Engine, error) {
	timeouts := withDefaultTimeouts(opts.Timeouts)
	root, ok, err := Probe(ctx, runner, path, timeouts.Status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, giterr.New(giterr.KindNotARepository, "O caminho não é um repositório Git.", path)
	}
	return New(runner, root, opts), nil
}

// New cria um Engine para root sem validar o repositório.
func New(runner gitexec.Runner, root string, opts Options) *Engine {
	classifier := opts.Classifier
	if classifier == nil {
		classifier = giterr.NewClassifier()
	}
	maxOutput := opts.MaxOutput
	if maxOutput <= 0 {
		maxOutput = config.MaxBufferedOutputBytes
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = gitexec.SleepWithContext
	}
	sanitize := opts.Sanitize
	if sanitize == nil {
		sanitize = func(s string) string { return s }
	}
	return &Engine{
		runner:      runner,
		root:        filepath.Clean(root),
		timeouts:    withDefaultTimeouts(opts.Timeouts),
		maxOutput:   maxOutput,
		classifier:  classifier,
		observer:    opts.Observer,
		credentials: opts.Credentials,
		sleep:       sleep,
		sanitize:    sanitize,
	}
}

func (e *Engine) Root() string {
	return e.root
}

func (e *Engine) Runner() gitexec.Runner {
	return e.runner
}

func (e *Engine) Timeouts() config.TimeoutSettings {
	return e.timeouts
}

func withDefaultTimeouts(t config.TimeoutSettings) config.TimeoutSettings {
	d := config.DefaultSettings().Timeouts
	if t.Status <= 0 {
		t.Status = d.Status
	}
	if t.Read <= 0 {
		t.Read = d.Read
	}
	if t.Write <= 0 {
		t.Write = d.Write
	}
	if t.Network <= 0 {
		t.Network = d.Network
	}
	return t
}

func (e *Engine) timeoutFor(class gitexec.Class) time.Duration {
	switch class {
	case gitexec.ClassStatus:
		return e.timeouts.Status
	case gitexec.ClassWrite:
		return e.timeouts.Write
	case gitexec.ClassNetwork:
		return e.timeouts.Network
	default:
		return e.timeouts.Read
	}
}

func (e *Engine) request(class gitexec.Class, args ...string) gitexec.Request {
	return gitexec.Request{
		Dir:     e.root,
		Args:    args,
		Class:   class,
		Timeout: e.timeoutFor(class),
	}
}

// run executa sem interpretar o exit code.
func (e *Engine) run(ctx context.Context, class gitexec.Class, args ...string) (gitexec.Result, error) {
	return e.runner.Run(ctx, e.request(class, args...))
}

// read executa um comando de leitura e classifica exit != 0 como falha de op.
func (e *Engine) read(ctx context.Context, class gitexec.Class, op giterr.Operation, args ...string) (gitexec.Result, error) {
	result, err := e.run(ctx, class, args...)
	if err != nil {
		return result, err
	}
	if result.ExitCode != 0 {
		return result, e.classify(op, result, nil)
	}
	return result, nil
}

// readCapped aplica o teto de saída bufferizada (diff/log grandes).
func (e *Engine) readCapped(ctx context.Context, op giterr.Operation, args ...string) (gitexec.Result, error) {
	req := e.request(gitexec.ClassRead, args...)
	req.MaxOutput = e.maxOutput
	result, err := e.runner.Run(ctx, req)
	if err != nil {
		return result, err
	}
	if result.ExitCode != 0 {
		return result, e.classify(op, result, nil)
	}
	return result, nil
}

func (e *Engine) classify(op giterr.Operation, result gitexec.Result, runErr error) error {
	err := e.classifier.Classify(op, e.sanitize(result.Stderr), result.ExitCode, runErr)
	if err != nil {
		if gitErr := giterr.As(err); gitErr != nil && gitErr.Kind == giterr.KindUnknown {
			log.Printf("[Engine] unclassified failure op=%s exit=%d", op, result.ExitCode)
		}
	}
	return err
}

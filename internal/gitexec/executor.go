package gitexec

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"repostate/internal/giterr"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultGracePeriod = 2 * time.Second
	tracerName         = "repostate/gitexec"
)

// Class é a classe de timeout de um comando; o valor efetivo vem do chamador.
type Class string

const (
	ClassStatus  Class = "status"
	ClassRead    Class = "read"
	ClassWrite   Class = "write"
	ClassNetwork Class = "network"
)

// Request descreve uma invocação do git.
type Request struct {
	Dir     string
	Args    []string
	Stdin   string
	Env     []string
	Class   Class
	Timeout time.Duration
	// MaxOutput limita stdout bufferizado; 0 desliga o limite.
	MaxOutput int
}

// Result carrega a saída de um comando. ExitCode != 0 não é erro por si só.
type Result struct {
	Stdout    []byte
	Stderr    string
	ExitCode  int
	Truncated bool
	Duration  time.Duration
}

func (r Result) Text() string {
	return string(r.Stdout)
}

// Runner é a interface consumida pelo Engine; testes injetam fakes.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
	Stream(ctx context.Context, req Request, opts StreamOptions) (*LineStream, error)
}

// Options configura o Executor.
type Options struct {
	Binary      string
	GracePeriod time.Duration
	// Sanitize limpa stderr/args antes de logar (credenciais em URLs).
	Sanitize func(string) string
	Debug    bool
}

// Executor lança o binário git com ambiente saneado.
type Executor struct {
	binary      string
	gracePeriod time.Duration
	env         []string
	sanitize    func(string) string
	debug       bool
	tracer      trace.Tracer
}

func New(opts Options) *Executor {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = "git"
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	sanitize := opts.Sanitize
	if sanitize == nil {
		sanitize = func(s string) string { return s }
	}
	return &Executor{
		binary:      binary,
		gracePeriod: grace,
		env:         SanitizedEnv(os.Environ()),
		sanitize:    sanitize,
		debug:       opts.Debug || readEnvBool("REPOSTATE_GITEXEC_DEBUG"),
		tracer:      otel.Tracer(tracerName),
	}
}

// Available reporta se o binário git está no PATH.
func (e *Executor) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Run executa o comando de forma bufferizada.
func (e *Executor) Run(ctx context.Context, req Request) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, span := e.startSpan(ctx, req)
	defer span.End()

	childCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := e.command(childCtx, req)
	stdout := newCappedBuffer(req.MaxOutput)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	startedAt := time.Now()
	runErr := cmd.Run()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		Duration: time.Since(startedAt),
	}
	if stdout.Overflowed() {
		result.Stdout = []byte(CapOutput(string(stdout.Bytes()), req.MaxOutput, stdout.Omitted()))
		result.Truncated = true
	}

	var exitErr *exec.ExitError
	if runErr != nil && errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	}

	if ctxErr := childCtx.Err(); ctxErr != nil {
		err := e.contextFailure(ctx, ctxErr, result)
		e.finishSpan(span, result, err)
		return result, err
	}

	if runErr != nil && exitErr == nil {
		err := giterr.New(giterr.KindGitUnavailable, "Não foi possível executar o Git.", runErr.Error())
		e.finishSpan(span, result, err)
		return result, err
	}

	if e.debug {
		log.Printf("[GitExec] %s exit=%d in %s", e.describe(req), result.ExitCode, result.Duration)
	}
	e.finishSpan(span, result, nil)
	return result, nil
}

func (e *Executor) contextFailure(parent context.Context, ctxErr error, result Result) error {
	details := giterr.FormatFailureDetails(e.sanitize(result.Stderr), result.ExitCode, nil)
	// Cancelamento do chamador prevalece sobre o timeout local.
	if parentErr := parent.Err(); parentErr != nil {
		ctxErr = parentErr
	}
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return giterr.New(giterr.KindTimeout, "Comando Git excedeu o tempo limite.", details)
	}
	return giterr.New(giterr.KindCanceled, "Comando Git cancelado.", details)
}

// command monta o exec.Cmd com término gracioso: SIGTERM no cancelamento e
// kill forçado se o processo não sair dentro do período de graça.
func (e *Executor) command(ctx context.Context, req Request) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.binary, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = append(append([]string(nil), e.env...), req.Env...)
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := cmd.Process.Signal(syscall.SIGTERM)
		if errors.Is(err, os.ErrProcessDone) {
			return os.ErrProcessDone
		}
		if err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = e.gracePeriod
	return cmd
}

func (e *Executor) startSpan(ctx context.Context, req Request) (context.Context, trace.Span) {
	subcommand := ""
	if len(req.Args) > 0 {
		subcommand = firstSubcommand(req.Args)
	}
	return e.tracer.Start(ctx, "git "+subcommand,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("git.subcommand", subcommand),
			attribute.String("git.class", string(req.Class)),
			attribute.String("git.dir", req.Dir),
		),
	)
}

func (e *Executor) finishSpan(span trace.Span, result Result, err error) {
	span.SetAttributes(
		attribute.Int("git.exit_code", result.ExitCode),
		attribute.Int("git.stdout_bytes", len(result.Stdout)),
		attribute.Bool("git.truncated", result.Truncated),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(giterr.KindOf(err)))
		return
	}
	if result.ExitCode != 0 {
		span.SetStatus(codes.Error, "non-zero exit")
	}
}

func (e *Executor) describe(req Request) string {
	return e.sanitize(strings.Join(append([]string{e.binary}, req.Args...), " "))
}

// firstSubcommand ignora opções globais (-C dir, -c k=v) antes do subcomando.
func firstSubcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-C" || arg == "-c" {
			i++
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return arg
	}
	return ""
}

func readEnvBool(key string) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

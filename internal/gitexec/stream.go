package gitexec

import (
	"bufio"
	"context"
	"errors"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"

	"repostate/internal/giterr"
)

const (
	defaultStreamBuffer = 256
	maxStreamStderr     = 64 * 1024
)

// OverflowPolicy decide o que acontece quando o consumidor fica para trás.
type OverflowPolicy int

const (
	// DropOldest descarta a linha mais antiga do buffer em favor da nova.
	DropOldest OverflowPolicy = iota
	// Block suspende a leitura do processo até haver espaço.
	Block
)

type StreamOptions struct {
	BufferSize int
	Overflow   OverflowPolicy
}

// LineStream entrega stdout linha a linha com buffer limitado.
// Close cancela o subprocesso (SIGTERM, depois kill) e espera a saída dele.
type LineStream struct {
	mu       sync.Mutex
	ring     []string
	head     int
	size     int
	policy   OverflowPolicy
	done     bool
	err      error
	exitCode int
	stderr   string
	dropped  int64

	ready    chan struct{}
	space    chan struct{}
	finished chan struct{}
	cancel   context.CancelFunc
}

func newLineStream(opts StreamOptions, cancel context.CancelFunc) *LineStream {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultStreamBuffer
	}
	return &LineStream{
		ring:     make([]string, size),
		policy:   opts.Overflow,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		finished: make(chan struct{}),
		cancel:   cancel,
	}
}

// Stream inicia o comando e devolve as linhas de stdout conforme chegam.
func (e *Executor) Stream(ctx context.Context, req Request, opts StreamOptions) (*LineStream, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	spanCtx, span := e.startSpan(ctx, req)
	streamCtx, cancel := context.WithCancel(spanCtx)
	if req.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		streamCtx, timeoutCancel = context.WithTimeout(streamCtx, req.Timeout)
		parentCancel := cancel
		cancel = func() {
			timeoutCancel()
			parentCancel()
		}
	}

	cmd := e.command(streamCtx, req)
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		span.End()
		return nil, giterr.New(giterr.KindGitUnavailable, "Não foi possível executar o Git.", err.Error())
	}
	stderr := newCappedBuffer(maxStreamStderr)
	cmd.Stderr = stderr

	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		span.End()
		return nil, giterr.New(giterr.KindGitUnavailable, "Não foi possível executar o Git.", err.Error())
	}

	stream := newLineStream(opts, cancel)
	go func() {
		defer span.End()

		reader := bufio.NewReaderSize(stdout, 64*1024)
		for {
			line, readErr := reader.ReadString('\n')
			if line != "" {
				if !stream.push(streamCtx, strings.TrimSuffix(line, "\n")) {
					break
				}
			}
			if readErr != nil {
				break
			}
		}

		waitErr := cmd.Wait()
		result := Result{Stderr: string(stderr.Bytes()), Duration: time.Since(startedAt)}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}

		var finalErr error
		if ctxErr := streamCtx.Err(); ctxErr != nil {
			finalErr = e.contextFailure(ctx, ctxErr, result)
		} else if waitErr != nil && exitErr == nil {
			finalErr = giterr.New(giterr.KindGitUnavailable, "Falha ao aguardar processo Git.", waitErr.Error())
		}
		cancel()
		if e.debug {
			log.Printf("[GitExec] stream %s exit=%d dropped=%d in %s", e.describe(req), result.ExitCode, stream.Dropped(), result.Duration)
		}
		e.finishSpan(span, result, finalErr)
		stream.finish(result.ExitCode, result.Stderr, finalErr)
	}()

	return stream, nil
}

func (s *LineStream) push(ctx context.Context, line string) bool {
	for {
		s.mu.Lock()
		if s.size < len(s.ring) {
			s.ring[(s.head+s.size)%len(s.ring)] = line
			s.size++
			s.mu.Unlock()
			notify(s.ready)
			return true
		}
		if s.policy == DropOldest {
			s.ring[s.head] = ""
			s.head = (s.head + 1) % len(s.ring)
			s.size--
			s.dropped++
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		select {
		case <-s.space:
		case <-ctx.Done():
			return false
		}
	}
}

func (s *LineStream) finish(exitCode int, stderr string, err error) {
	s.mu.Lock()
	s.done = true
	s.exitCode = exitCode
	s.stderr = stderr
	s.err = err
	s.mu.Unlock()
	notify(s.ready)
	close(s.finished)
}

// Next bloqueia até a próxima linha; false quando o stream acabou ou ctx expirou.
func (s *LineStream) Next(ctx context.Context) (string, bool) {
	for {
		s.mu.Lock()
		if s.size > 0 {
			line := s.ring[s.head]
			s.ring[s.head] = ""
			s.head = (s.head + 1) % len(s.ring)
			s.size--
			s.mu.Unlock()
			notify(s.space)
			return line, true
		}
		if s.done {
			s.mu.Unlock()
			return "", false
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return "", false
		}
	}
}

// Close encerra o processo se ainda estiver rodando e aguarda o término.
func (s *LineStream) Close() error {
	s.cancel()
	<-s.finished
	return nil
}

// Wait aguarda o término natural do processo.
func (s *LineStream) Wait(ctx context.Context) error {
	select {
	case <-s.finished:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LineStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *LineStream) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

func (s *LineStream) Stderr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stderr
}

// Dropped conta linhas descartadas pela política DropOldest.
func (s *LineStream) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Done fecha quando o processo terminou e o resultado está disponível.
func (s *LineStream) Done() <-chan struct{} {
	return s.finished
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

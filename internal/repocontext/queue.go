package repocontext

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"repostate/internal/giterr"
)

const writeQueueBufferSize = 64

type queuedWrite struct {
	requestCtx context.Context
	action     string
	timeout    time.Duration
	run        func(context.Context) error
	result     chan error
}

// writeQueue serializa as mutações de um repositório em um único worker.
type writeQueue struct {
	repoRoot string
	items    chan queuedWrite

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	closed         atomic.Bool
	workerWG       sync.WaitGroup
}

func newWriteQueue(repoRoot string) *writeQueue {
	shutdownCtx, cancel := context.WithCancel(context.Background())
	q := &writeQueue{
		repoRoot:       repoRoot,
		items:          make(chan queuedWrite, writeQueueBufferSize),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: cancel,
	}
	q.workerWG.Add(1)
	go q.runWorker()
	return q
}

// do enfileira run e espera o resultado.
func (q *writeQueue) do(ctx context.Context, action string, timeout time.Duration, run func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if q.closed.Load() {
		return queueClosedError()
	}

	command := queuedWrite{
		requestCtx: ctx,
		action:     action,
		timeout:    timeout,
		run:        run,
		result:     make(chan error, 1),
	}

	select {
	case q.items <- command:
	case <-ctx.Done():
		if mapped := giterr.FromContext(ctx.Err(), "Comando cancelado antes de entrar na fila."); mapped != nil {
			return mapped
		}
		return ctx.Err()
	case <-q.shutdownCtx.Done():
		return queueClosedError()
	}

	select {
	case err := <-command.result:
		return err
	case <-ctx.Done():
		if mapped := giterr.FromContext(ctx.Err(), "Comando cancelado enquanto aguardava execução."); mapped != nil {
			return mapped
		}
		return ctx.Err()
	case <-q.shutdownCtx.Done():
		return queueClosedError()
	}
}

func (q *writeQueue) runWorker() {
	defer q.workerWG.Done()

	for {
		select {
		case <-q.shutdownCtx.Done():
			return
		case command := <-q.items:
			if command.requestCtx.Err() != nil {
				command.result <- giterr.FromContext(command.requestCtx.Err(), "Comando descartado da fila.")
				continue
			}

			commandCtx, cancel := buildQueueCommandContext(q.shutdownCtx, command.requestCtx, command.timeout)
			runErr := command.run(commandCtx)
			if runErr == nil {
				if mapped := giterr.FromContext(commandCtx.Err(), "Comando interrompido por cancelamento."); mapped != nil {
					runErr = mapped
				}
			}
			cancel()
			if runErr != nil {
				log.Printf("[RepoContext] %s failed in %s: %v", command.action, q.repoRoot, runErr)
			}

			command.result <- runErr
		}
	}
}

func buildQueueCommandContext(base context.Context, requestCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := base
	cancelers := make([]func(), 0, 2)

	if requestCtx != nil {
		withRequestCancel, requestCancel := context.WithCancel(ctx)
		stop := context.AfterFunc(requestCtx, requestCancel)
		cancelers = append(cancelers, func() {
			stop()
			requestCancel()
		})
		ctx = withRequestCancel
	}

	if timeout > 0 {
		withTimeout, timeoutCancel := context.WithTimeout(ctx, timeout)
		cancelers = append(cancelers, timeoutCancel)
		ctx = withTimeout
	}

	return ctx, func() {
		for i := len(cancelers) - 1; i >= 0; i-- {
			cancelers[i]()
		}
	}
}

func (q *writeQueue) close(ctx context.Context) error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	q.shutdownCancel()

	workersDone := make(chan struct{})
	go func() {
		q.workerWG.Wait()
		close(workersDone)
	}()

	select {
	case <-workersDone:
		return nil
	case <-ctx.Done():
		if mapped := giterr.FromContext(ctx.Err(), "Timeout aguardando encerramento da fila de escrita."); mapped != nil {
			return mapped
		}
		return ctx.Err()
	}
}

func queueClosedError() error {
	return giterr.New(
		giterr.KindServiceUnavailable,
		"Contexto do repositório em encerramento.",
		"A fila de escrita foi cancelada durante o fechamento.",
	)
}

package diff

import (
	"context"
	"sync"

	"repostate/internal/model"
)

// HunkStream entrega os hunks de um arquivo à medida que são parseados.
// Close interrompe a leitura e encerra o subprocesso do diff.
type HunkStream struct {
	hunks  chan model.DiffHunk
	done   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	err     error
	file    model.FileDiff
	options Options
	cached  bool
}

func newHunkStream(buffer int, cancel context.CancelFunc, opts Options) *HunkStream {
	if buffer < 0 {
		buffer = 0
	}
	return &HunkStream{
		hunks:   make(chan model.DiffHunk, buffer),
		done:    make(chan struct{}),
		cancel:  cancel,
		options: opts,
	}
}

// replayStream monta um stream já concluído a partir do cache.
func replayStream(file model.FileDiff, opts Options) *HunkStream {
	stream := newHunkStream(len(file.Hunks), func() {}, opts)
	for _, hunk := range file.Hunks {
		stream.hunks <- hunk
	}
	stream.cached = true
	stream.finish(file, nil)
	return stream
}

// Next bloqueia até o próximo hunk; false quando acabou ou ctx expirou.
func (s *HunkStream) Next(ctx context.Context) (model.DiffHunk, bool) {
	select {
	case hunk, ok := <-s.hunks:
		return hunk, ok
	case <-ctx.Done():
		return model.DiffHunk{}, false
	}
}

// Close cancela a produção e espera o produtor sair.
func (s *HunkStream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Err é o erro final da produção, disponível após o fim do stream.
func (s *HunkStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// File devolve o arquivo completo quando o stream terminou com sucesso.
func (s *HunkStream) File() model.FileDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

func (s *HunkStream) Options() Options {
	return s.options
}

// FromCache indica se os hunks vieram do cache sem invocar o git.
func (s *HunkStream) FromCache() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached
}

func (s *HunkStream) Done() <-chan struct{} {
	return s.done
}

// send entrega um hunk respeitando o cancelamento do consumidor.
func (s *HunkStream) send(ctx context.Context, hunk model.DiffHunk) error {
	select {
	case s.hunks <- hunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *HunkStream) finish(file model.FileDiff, err error) {
	s.mu.Lock()
	s.file = file
	s.err = err
	s.mu.Unlock()
	close(s.hunks)
	close(s.done)
}

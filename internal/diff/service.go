package diff

import (
	"context"
	"fmt"
	"log"
	"strings"

	"repostate/internal/engine"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

const defaultHunkBuffer = 8

// Request pede o diff de um arquivo.
type Request struct {
	Path          string
	Staged        bool
	Untracked     bool
	LargeFileMode LargeFileMode
}

// Service carrega diffs de um repositório com preflight e cache.
type Service struct {
	eng          *engine.Engine
	cache        *Cache
	limits       Limits
	streamBuffer int
}

// NewService liga o motor de diff a eng. O cache pode ser compartilhado
// entre repositórios; a chave inclui a raiz.
func NewService(eng *engine.Engine, cache *Cache, limits Limits, streamBuffer int) *Service {
	if cache == nil {
		cache = NewCache(0)
	}
	return &Service{
		eng:          eng,
		cache:        cache,
		limits:       limits,
		streamBuffer: streamBuffer,
	}
}

func (s *Service) Cache() *Cache {
	return s.cache
}

// Preflight sonda o arquivo sem carregar o diff.
func (s *Service) Preflight(ctx context.Context, req Request) (PreflightResult, error) {
	return Preflight(ctx, s.eng, s.engineRequest(req, s.limits.DefaultOptions()), s.limits)
}

// Stream devolve os hunks do arquivo. Se o diff estiver em cache, os hunks
// são reproduzidos sem chamar o git; senão o preflight escolhe o modo e o
// resultado completo entra no cache ao final.
func (s *Service) Stream(ctx context.Context, req Request) (*HunkStream, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, giterr.New(giterr.KindInvalidPath, "Caminho de arquivo inválido.", "O caminho do arquivo está vazio.")
	}
	key := newCacheKey(s.eng.Root(), req.Path, req.Staged)
	if file, opts, ok := s.cache.Get(key); ok && cachedModeMatches(opts, req.LargeFileMode) {
		return replayStream(file, opts), nil
	}

	preflight, err := s.Preflight(ctx, req)
	if err != nil {
		return nil, err
	}
	opts := resolveOptions(preflight, req.LargeFileMode)
	if preflight.IsLargeFile {
		log.Printf("[Diff] large file mode for %s: %s", req.Path, preflight.Reason)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream := newHunkStream(defaultHunkBuffer, cancel, opts)
	go s.produce(streamCtx, stream, key, req, opts)
	return stream, nil
}

// Load consome o stream inteiro e devolve o arquivo.
func (s *Service) Load(ctx context.Context, req Request) (model.FileDiff, Options, error) {
	stream, err := s.Stream(ctx, req)
	if err != nil {
		return model.FileDiff{}, Options{}, err
	}
	defer stream.Close()

	for {
		if _, ok := stream.Next(ctx); !ok {
			break
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.FileDiff{}, Options{}, giterr.FromContext(ctxErr, "leitura do diff interrompida")
	}
	<-stream.Done()
	if err := stream.Err(); err != nil {
		return model.FileDiff{}, Options{}, err
	}
	return stream.File(), stream.Options(), nil
}

// Invalidate descarta o cache de path; vazio descarta o repositório todo.
func (s *Service) Invalidate(path string) {
	if strings.TrimSpace(path) == "" {
		s.cache.InvalidateRepo(s.eng.Root())
		return
	}
	s.cache.RemoveFile(s.eng.Root(), path)
}

func (s *Service) produce(ctx context.Context, stream *HunkStream, key CacheKey, req Request, opts Options) {
	engReq := s.engineRequest(req, opts)

	parser := NewParser(opts.parseOptions(), func(file *model.FileDiff, hunk model.DiffHunk) error {
		if opts.EnableWordDiff && hunk.IsMaterialized() {
			hunk = ApplyWordDiff(hunk, opts.MaxLineLength)
			if last := len(file.Hunks) - 1; last >= 0 {
				file.Hunks[last] = hunk
			}
		}
		return stream.send(ctx, hunk)
	})

	lines, err := s.eng.DiffStream(ctx, engReq, s.streamBuffer)
	if err != nil {
		stream.finish(model.FileDiff{}, err)
		return
	}
	defer lines.Close()

	for {
		line, ok := lines.Next(ctx)
		if !ok {
			break
		}
		if feedErr := parser.Feed(line); feedErr != nil {
			stream.finish(model.FileDiff{}, normalizeStreamError(ctx, feedErr))
			return
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		stream.finish(model.FileDiff{}, giterr.FromContext(ctxErr, "diff de "+req.Path))
		return
	}

	<-lines.Done()
	if err := lines.Err(); err != nil {
		stream.finish(model.FileDiff{}, err)
		return
	}
	if !s.eng.DiffExitOK(engReq, lines.ExitCode()) {
		stream.finish(model.FileDiff{}, s.eng.ClassifyDiffFailure(lines.ExitCode(), lines.Stderr()))
		return
	}

	parsed, err := parser.Finish()
	if err != nil {
		stream.finish(model.FileDiff{}, normalizeStreamError(ctx, err))
		return
	}
	file := selectFile(parsed, req)
	file.IsLargeFile = opts.Lazy()
	file.Truncated = file.Truncated || parsed.Truncated
	if !s.cache.Set(key, file, opts) {
		log.Printf("[Diff] %s exceeds cache budget (%d bytes), not cached", req.Path, s.cache.Budget())
	}
	stream.finish(file, nil)
}

func (s *Service) engineRequest(req Request, opts Options) engine.DiffRequest {
	return engine.DiffRequest{
		Path:          req.Path,
		Staged:        req.Staged,
		Untracked:     req.Untracked,
		ContextLines:  opts.ContextLines,
		DetectRenames: opts.DetectRenames,
	}
}

// selectFile pega o arquivo pedido; um diff vazio vira um FileDiff sem hunks.
func selectFile(parsed model.Diff, req Request) model.FileDiff {
	for _, file := range parsed.Files {
		if file.NewPath == req.Path || file.OldPath == req.Path {
			return file
		}
	}
	if len(parsed.Files) > 0 {
		return parsed.Files[0]
	}
	status := model.StatusModified
	if req.Untracked {
		status = model.StatusUntracked
	}
	return model.FileDiff{OldPath: req.Path, NewPath: req.Path, Status: status, Hunks: []model.DiffHunk{}}
}

func cachedModeMatches(opts Options, requested LargeFileMode) bool {
	switch requested {
	case LargeFileForceOn:
		return opts.Lazy()
	case LargeFileForceOff:
		return !opts.Lazy()
	default:
		return true
	}
}

func normalizeStreamError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return giterr.FromContext(ctxErr, fmt.Sprintf("parse interrompido: %v", err))
	}
	return err
}

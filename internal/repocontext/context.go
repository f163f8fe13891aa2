package repocontext

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"repostate/internal/config"
	"repostate/internal/diff"
	"repostate/internal/engine"
	"repostate/internal/model"
)

// Options configura um Context.
type Options struct {
	Cache config.CacheSettings
	Emit  EmitFunc
	Now   func() time.Time
}

// Context é o dono do estado cacheado de um repositório: caches por tipo,
// páginas de commits, coalescência de refresh e invalidação por sinal.
// Mutações passam por uma fila própria; leituras concorrentes nunca veem um
// cache pela metade.
type Context struct {
	eng   *engine.Engine
	diffs *diff.Service
	emit  EmitFunc
	now   func() time.Time

	state         *stateCache
	pages         *commitPages
	pageSize      int
	prependWindow int
	flights       singleflight.Group
	queue         *writeQueue

	watchMu   sync.Mutex
	stopWatch func()
}

// New cria o Context de eng. diffs deve servir o mesmo repositório.
func New(eng *engine.Engine, diffs *diff.Service, opts Options) *Context {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	pageSize := opts.Cache.CommitPageSize
	if pageSize <= 0 {
		pageSize = config.DefaultCommitPageSize
	}
	window := opts.Cache.PrependWindow
	if window <= 0 {
		window = config.DefaultPrependWindow
	}

	return &Context{
		eng:           eng,
		diffs:         diffs,
		emit:          opts.Emit,
		now:           now,
		state:         newStateCache(opts.Cache),
		pages:         newCommitPages(opts.Cache.CommitPagesTTL, now),
		pageSize:      pageSize,
		prependWindow: window,
		queue:         newWriteQueue(eng.Root()),
	}
}

func (c *Context) Path() string {
	return c.eng.Root()
}

func (c *Context) Engine() *engine.Engine {
	return c.eng
}

func (c *Context) Diffs() *diff.Service {
	return c.diffs
}

func (c *Context) publish(eventName string, data interface{}) {
	if c.emit != nil {
		c.emit(eventName, data)
	}
}

// Status é o refresh rápido: só status, coalescido e cacheado.
func (c *Context) Status(ctx context.Context) (model.RepositoryStatus, error) {
	return cached(ctx, c, kindStatus, c.eng.Status)
}

func (c *Context) Head(ctx context.Context) (model.HeadRef, error) {
	return cached(ctx, c, kindHead, c.eng.Head)
}

func (c *Context) LocalBranches(ctx context.Context) ([]model.Branch, error) {
	return cached(ctx, c, kindBranches, c.eng.LocalBranches)
}

func (c *Context) RemoteBranches(ctx context.Context) ([]model.Branch, error) {
	return cached(ctx, c, kindRemoteBranches, c.eng.RemoteBranches)
}

func (c *Context) Tags(ctx context.Context) ([]model.Tag, error) {
	return cached(ctx, c, kindTags, c.eng.Tags)
}

func (c *Context) Remotes(ctx context.Context) ([]model.Remote, error) {
	return cached(ctx, c, kindRemotes, c.eng.Remotes)
}

func (c *Context) Stashes(ctx context.Context) ([]model.Stash, error) {
	return cached(ctx, c, kindStashes, c.eng.Stashes)
}

// Snapshot monta o estado completo. Chamadores concorrentes que enxergam as
// mesmas gerações recebem o mesmo resultado.
func (c *Context) Snapshot(ctx context.Context) (model.RepositorySnapshot, error) {
	key := "snapshot:" + c.state.signature()
	return flight(ctx, &c.flights, key, c.loadSnapshot)
}

func (c *Context) loadSnapshot(ctx context.Context) (model.RepositorySnapshot, error) {
	snapshot := model.RepositorySnapshot{Path: c.Path()}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		head, err := c.Head(groupCtx)
		snapshot.Head = head
		return err
	})
	group.Go(func() error {
		status, err := c.Status(groupCtx)
		snapshot.Status = status
		return err
	})
	group.Go(func() error {
		branches, err := c.LocalBranches(groupCtx)
		snapshot.LocalBranches = branches
		return err
	})
	group.Go(func() error {
		branches, err := c.RemoteBranches(groupCtx)
		snapshot.RemoteBranches = branches
		return err
	})
	group.Go(func() error {
		tags, err := c.Tags(groupCtx)
		snapshot.Tags = tags
		return err
	})
	group.Go(func() error {
		remotes, err := c.Remotes(groupCtx)
		snapshot.Remotes = remotes
		return err
	})
	group.Go(func() error {
		stashes, err := c.Stashes(groupCtx)
		snapshot.Stashes = stashes
		return err
	})
	if err := group.Wait(); err != nil {
		return model.RepositorySnapshot{}, err
	}

	snapshot.CapturedAt = c.now()
	c.publish(EventSnapshot, snapshot)
	return snapshot, nil
}

// Commits devolve a página page (base 0) do log de branch, ou do HEAD
// quando branch é vazio.
func (c *Context) Commits(ctx context.Context, page int, limit int, branch string) ([]model.Commit, error) {
	if page < 0 {
		page = 0
	}
	if limit <= 0 {
		limit = c.pageSize
	}
	key := pageKey{page: page, limit: limit, branch: strings.TrimSpace(branch)}
	if commits, ok := c.pages.get(key); ok {
		return commits, nil
	}

	gen := c.pages.generation()
	flightKey := fmt.Sprintf("commits:%d:%d:%d:%s", gen, key.page, key.limit, key.branch)
	commits, err := flight(ctx, &c.flights, flightKey, func(ctx context.Context) ([]model.Commit, error) {
		commits, err := c.eng.Commits(ctx, engine.CommitQuery{
			Skip:  key.page * key.limit,
			Limit: key.limit,
			Ref:   key.branch,
		})
		if err != nil {
			return nil, err
		}
		c.pages.store(key, gen, commits)
		return commits, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneCommits(commits), nil
}

// HandleSignal aplica a invalidação seletiva de signal e avisa os assinantes.
func (c *Context) HandleSignal(ctx context.Context, signal model.Signal) {
	signal = model.ParseSignal(string(signal))

	c.state.invalidate(signalKinds(signal)...)
	if touchesWorkingTree(signal) && c.diffs != nil {
		c.diffs.Invalidate("")
	}
	switch signal {
	case model.SignalHead:
		c.advanceCommitPages(ctx)
	case model.SignalFull:
		c.pages.invalidate()
	}

	c.publish(EventSignal, SignalEvent{Repo: c.Path(), Kind: signal})
	if touchesWorkingTree(signal) {
		c.publish(EventStatusChanged, StatusChangedEvent{Repo: c.Path()})
	}
}

// advanceCommitPages tenta o prepend incremental depois que HEAD andou; se o
// HEAD antigo não estiver na janela recente, descarta todas as páginas.
func (c *Context) advanceCommitPages(ctx context.Context) {
	key, oldHead, gen, ok := c.pages.anchor()
	if !ok {
		c.pages.invalidate()
		return
	}

	window, err := c.eng.Commits(ctx, engine.CommitQuery{Limit: c.prependWindow})
	if err != nil {
		log.Printf("[RepoContext] prepend window failed for %s: %v", c.Path(), err)
		c.pages.invalidate()
		return
	}
	added, ok := c.pages.prepend(key, oldHead, gen, window)
	if !ok {
		c.pages.invalidate()
		return
	}
	if added > 0 {
		log.Printf("[RepoContext] prepended %d commit(s) in %s", added, c.Path())
	}
}

func (c *Context) attachWatch(stop func()) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	c.stopWatch = stop
}

// Close encerra a assinatura de sinais e a fila de escrita.
func (c *Context) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.watchMu.Lock()
	stop := c.stopWatch
	c.stopWatch = nil
	c.watchMu.Unlock()
	if stop != nil {
		stop()
	}

	if c.diffs != nil {
		c.diffs.Invalidate("")
	}
	return c.queue.close(ctx)
}

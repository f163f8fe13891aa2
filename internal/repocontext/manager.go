package repocontext

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"repostate/internal/config"
	"repostate/internal/diff"
	"repostate/internal/engine"
	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

// ManagerOptions configura o registro de contextos.
type ManagerOptions struct {
	Runner   gitexec.Runner
	Settings config.Settings
	Engine   engine.Options
	// Watcher pode ser nil; sem ele os caches dependem só de TTL e mutações.
	Watcher SignalSource
	Emit    EmitFunc
	// DiffCache é compartilhado entre repositórios; a chave inclui a raiz.
	DiffCache *diff.Cache
}

// Manager mantém um único Context por raiz canônica de repositório.
type Manager struct {
	runner    gitexec.Runner
	settings  config.Settings
	engine    engine.Options
	watcher   SignalSource
	emit      EmitFunc
	diffCache *diff.Cache

	opening singleflight.Group

	mu       sync.Mutex
	contexts map[string]*Context
	aliases  map[string]string
	active   string
	closed   bool
}

func NewManager(opts ManagerOptions) *Manager {
	diffCache := opts.DiffCache
	if diffCache == nil {
		diffCache = diff.NewCache(opts.Settings.Diff.CacheBudgetBytes)
	}
	return &Manager{
		runner:    opts.Runner,
		settings:  opts.Settings,
		engine:    opts.Engine,
		watcher:   opts.Watcher,
		emit:      opts.Emit,
		diffCache: diffCache,
		contexts:  make(map[string]*Context),
		aliases:   make(map[string]string),
	}
}

// canonicalPath resolve path para absoluto sem symlinks; quando o caminho
// não existe, fica só o Clean.
func canonicalPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", giterr.New(giterr.KindInvalidPath, "Caminho do repositório vazio.", "")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", giterr.New(giterr.KindInvalidPath, "Não foi possível resolver o caminho do repositório.", err.Error())
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return filepath.Clean(resolved), nil
	}
	return filepath.Clean(abs), nil
}

func (m *Manager) lookupLocked(key string) (*Context, bool) {
	if c, ok := m.contexts[key]; ok {
		return c, true
	}
	if root, ok := m.aliases[key]; ok {
		c, ok := m.contexts[root]
		return c, ok
	}
	return nil, false
}

// Lookup devolve o contexto já aberto para path, sem criar.
func (m *Manager) Lookup(path string) (*Context, bool) {
	key, err := canonicalPath(path)
	if err != nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(key)
}

// Context devolve o contexto de path, criando-o (e a assinatura de sinais)
// uma única vez mesmo sob chamadas concorrentes.
func (m *Manager) Context(ctx context.Context, path string) (*Context, error) {
	key, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, managerClosedError()
	}
	if c, ok := m.lookupLocked(key); ok {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	value, err, _ := m.opening.Do(key, func() (interface{}, error) {
		eng, err := engine.Open(ctx, m.runner, key, m.engineOptions())
		if err != nil {
			return nil, err
		}
		c, err := m.register(key, eng)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Context), nil
}

func (m *Manager) engineOptions() engine.Options {
	opts := m.engine
	if opts.Timeouts == (config.TimeoutSettings{}) {
		opts.Timeouts = m.settings.Timeouts
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = m.settings.Executor.MaxOutputBytes
	}
	base := opts.Observer
	opts.Observer = func(result engine.CommandResult) {
		if base != nil {
			base(result)
		}
		if m.emit != nil {
			m.emit(EventCommandResult, result)
		}
	}
	return opts
}

// register grava o contexto de eng.Root(). Dois caminhos de entrada que
// resolvem para a mesma raiz compartilham a instância.
func (m *Manager) register(key string, eng *engine.Engine) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, managerClosedError()
	}

	root := eng.Root()
	if existing, ok := m.contexts[root]; ok {
		m.aliases[key] = root
		return existing, nil
	}

	diffs := diff.NewService(eng, m.diffCache, diff.LimitsFromSettings(m.settings.Diff), m.settings.Executor.StreamBuffer)
	c := New(eng, diffs, Options{Cache: m.settings.Cache, Emit: m.emit})

	if m.watcher != nil && m.settings.Watcher.Enabled {
		stop, err := m.watcher.Subscribe(root, func(signal model.Signal) {
			c.HandleSignal(context.Background(), signal)
		})
		if err != nil {
			log.Printf("[RepoContext] watch failed for %s: %v", root, err)
		} else {
			c.attachWatch(stop)
		}
	}

	m.contexts[root] = c
	if key != root {
		m.aliases[key] = root
	}
	if m.active == "" {
		m.active = root
	}
	log.Printf("[RepoContext] opened %s", root)
	return c, nil
}

// Close encerra e remove o contexto de path. Fechar um caminho desconhecido
// não é erro.
func (m *Manager) Close(ctx context.Context, path string) error {
	key, err := canonicalPath(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	c, ok := m.lookupLocked(key)
	if !ok {
		m.mu.Unlock()
		return nil
	}
	root := c.Path()
	delete(m.contexts, root)
	for alias, target := range m.aliases {
		if target == root {
			delete(m.aliases, alias)
		}
	}
	if m.active == root {
		m.active = ""
	}
	m.mu.Unlock()

	m.diffCache.InvalidateRepo(root)
	log.Printf("[RepoContext] closed %s", root)
	return c.Close(ctx)
}

// CloseAll fecha todos os contextos e recusa aberturas futuras.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	contexts := make([]*Context, 0, len(m.contexts))
	for _, c := range m.contexts {
		contexts = append(contexts, c)
	}
	m.contexts = make(map[string]*Context)
	m.aliases = make(map[string]string)
	m.active = ""
	m.mu.Unlock()

	var errs []error
	for _, c := range contexts {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetActive marca path como o repositório em foco, abrindo-o se preciso.
func (m *Manager) SetActive(ctx context.Context, path string) (*Context, error) {
	c, err := m.Context(ctx, path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.active = c.Path()
	m.mu.Unlock()
	return c, nil
}

func (m *Manager) Active() (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return nil, false
	}
	c, ok := m.contexts[m.active]
	return c, ok
}

// Paths lista as raízes abertas em ordem.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.contexts))
	for root := range m.contexts {
		paths = append(paths, root)
	}
	sort.Strings(paths)
	return paths
}

func managerClosedError() error {
	return giterr.New(
		giterr.KindServiceUnavailable,
		"Gerenciador de repositórios encerrado.",
		"Nenhum contexto novo pode ser aberto após o fechamento.",
	)
}

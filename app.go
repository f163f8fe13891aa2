package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"repostate/internal/config"
	"repostate/internal/credentials"
	"repostate/internal/database"
	"repostate/internal/diff"
	"repostate/internal/engine"
	fw "repostate/internal/filewatcher"
	"repostate/internal/gateway"
	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
	"repostate/internal/repocontext"
	"repostate/internal/security"
	"repostate/internal/telemetry"
)

const appShutdownTimeout = 3 * time.Second

// AppOptions liga/desliga as partes opcionais do app.
type AppOptions struct {
	ConfigPath string
	Trace      bool
	// Journal grava os diagnósticos de comando no SQLite.
	Journal bool
	// Watch assina o filewatcher para cada repositório aberto.
	Watch bool
}

// App é a casca que conecta executor, contextos, watcher, journal e gateway.
type App struct {
	ctx  context.Context
	opts AppOptions

	settings     config.Settings
	logSanitizer *security.LogSanitizer
	db           *database.Service
	credentials  *credentials.KeyringProvider
	executor     *gitexec.Executor
	fileWatcher  *fw.Service
	manager      *repocontext.Manager
	hub          *gateway.Hub
	gateway      *gateway.Server

	traceShutdown func(context.Context) error

	listenersMu sync.RWMutex
	listeners   []repocontext.EmitFunc
}

func NewApp(opts AppOptions) *App {
	return &App{opts: opts}
}

// Startup carrega a configuração e inicializa os serviços. Falhas de
// journal e watcher degradam o app mas não impedem o uso.
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx
	log.Println("[RepoState] Starting up...")

	// 1. Garantir diretórios existem
	if err := config.EnsureDataDirs(); err != nil {
		log.Printf("[RepoState] Error creating data dirs: %v", err)
	}

	// 2. Configuração
	configPath := strings.TrimSpace(a.opts.ConfigPath)
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return err
	}
	if !a.opts.Watch {
		settings.Watcher.Enabled = false
	}
	a.settings = settings

	// 3. Tracing (opcional)
	if a.opts.Trace {
		shutdown, err := telemetry.Setup(telemetry.Options{
			ServiceName:    config.AppName,
			ServiceVersion: config.AppVersion,
		})
		if err != nil {
			log.Printf("[RepoState] Error initializing tracing: %v", err)
		} else {
			a.traceShutdown = shutdown
		}
	}

	a.logSanitizer = security.NewLogSanitizer()

	// 4. Journal de comandos
	if a.opts.Journal {
		dbService, err := database.NewService(a.logSanitizer)
		if err != nil {
			log.Printf("[RepoState] Error initializing journal: %v", err)
		} else {
			a.db = dbService
		}
	}

	// 5. Executor git + credenciais
	a.credentials = credentials.NewKeyringProvider()
	a.executor = gitexec.New(gitexec.Options{
		Binary:      settings.Executor.GitBinary,
		GracePeriod: settings.Executor.GracePeriod,
		Sanitize:    a.logSanitizer.Sanitize,
	})
	if !a.executor.Available() {
		log.Printf("[RepoState] git binary %q not found in PATH", settings.Executor.GitBinary)
	}

	// 6. File watcher
	if settings.Watcher.Enabled {
		watcher, err := fw.NewService(settings.Watcher.Debounce)
		if err != nil {
			log.Printf("[RepoState] Error initializing FileWatcher: %v", err)
		} else {
			a.fileWatcher = watcher
		}
	}

	// 7. Contextos de repositório
	a.hub = gateway.NewHub()
	managerOpts := repocontext.ManagerOptions{
		Runner:   a.executor,
		Settings: settings,
		Engine: engine.Options{
			Observer:    a.observeCommand,
			Credentials: a.credentials,
			Sanitize:    a.logSanitizer.Sanitize,
		},
		Emit:      a.emit,
		DiffCache: diff.NewCache(settings.Diff.CacheBudgetBytes),
	}
	if a.fileWatcher != nil {
		managerOpts.Watcher = a.fileWatcher
	}
	a.manager = repocontext.NewManager(managerOpts)

	log.Println("[RepoState] Ready")
	return nil
}

// Shutdown encerra gateway, contextos, watcher, journal e tracing, nessa ordem.
func (a *App) Shutdown(ctx context.Context) {
	log.Println("[RepoState] Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, appShutdownTimeout)
	defer cancel()

	if a.gateway != nil {
		if err := a.gateway.Stop(shutdownCtx); err != nil {
			log.Printf("[RepoState] Error stopping gateway: %v", err)
		}
	}

	// Encerrar workers das filas de escrita
	if a.manager != nil {
		if err := a.manager.CloseAll(shutdownCtx); err != nil {
			log.Printf("[RepoState] Error closing repository contexts: %v", err)
		}
	}

	if a.fileWatcher != nil {
		if err := a.fileWatcher.Close(); err != nil {
			log.Printf("[RepoState] Error closing FileWatcher: %v", err)
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("[RepoState] Error closing journal: %v", err)
		}
	}

	if a.traceShutdown != nil {
		if err := a.traceShutdown(shutdownCtx); err != nil {
			log.Printf("[RepoState] Error flushing traces: %v", err)
		}
	}
}

// OnEvent registra um ouvinte extra dos eventos repostate:* (ex.: comando watch).
func (a *App) OnEvent(listener repocontext.EmitFunc) {
	if listener == nil {
		return
	}
	a.listenersMu.Lock()
	a.listeners = append(a.listeners, listener)
	a.listenersMu.Unlock()
}

func (a *App) emit(eventName string, data interface{}) {
	if strings.TrimSpace(eventName) == "" {
		return
	}
	if a.hub != nil {
		a.hub.Publish(eventName, data)
	}

	a.listenersMu.RLock()
	listeners := append([]repocontext.EmitFunc(nil), a.listeners...)
	a.listenersMu.RUnlock()
	for _, listener := range listeners {
		listener(eventName, data)
	}
}

// observeCommand recebe cada transição de comando de escrita.
func (a *App) observeCommand(result engine.CommandResult) {
	if result.Status == engine.CommandStatusFailed {
		log.Printf("[RepoState] %s failed in %s (%s): %s", result.Action, result.RepoPath, result.ErrorKind, a.logSanitizer.Sanitize(result.StderrSanitized))
	}
	if a.db != nil {
		a.db.Observe(result)
	}
}

// StartGateway sobe o servidor HTTP/WebSocket; addr vazio usa a configuração.
func (a *App) StartGateway(addr string) (string, error) {
	if a.manager == nil {
		return "", fmt.Errorf("app not started")
	}
	if strings.TrimSpace(addr) == "" {
		addr = a.settings.Gateway.Addr
	}
	a.gateway = gateway.NewServer(a.manager, a.hub, addr)
	if err := a.gateway.Start(); err != nil {
		a.gateway = nil
		return "", err
	}
	return addr, nil
}

func (a *App) requireRepo(repoPath string) (*repocontext.Context, error) {
	if a.manager == nil {
		return nil, giterr.New(giterr.KindServiceUnavailable, "Serviço de repositório indisponível.", "app not started")
	}
	repo, err := a.manager.Context(a.ctx, repoPath)
	if err != nil {
		return nil, a.normalizeBindingError(err)
	}
	return repo, nil
}

func (a *App) normalizeBindingError(err error) error {
	if err == nil {
		return nil
	}
	return giterr.Normalize(err)
}

// RepoSnapshot retorna o snapshot completo do repositório.
func (a *App) RepoSnapshot(repoPath string) (model.RepositorySnapshot, error) {
	repo, err := a.requireRepo(repoPath)
	if err != nil {
		return model.RepositorySnapshot{}, err
	}
	snapshot, err := repo.Snapshot(a.ctx)
	if err != nil {
		return model.RepositorySnapshot{}, a.normalizeBindingError(err)
	}
	return snapshot, nil
}

// RepoStatus retorna o status de trabalho (cacheado).
func (a *App) RepoStatus(repoPath string) (model.RepositoryStatus, error) {
	repo, err := a.requireRepo(repoPath)
	if err != nil {
		return model.RepositoryStatus{}, err
	}
	status, err := repo.Status(a.ctx)
	if err != nil {
		return model.RepositoryStatus{}, a.normalizeBindingError(err)
	}
	return status, nil
}

// RepoCommits retorna uma página do histórico.
func (a *App) RepoCommits(repoPath string, page int, limit int, branch string) ([]model.Commit, error) {
	repo, err := a.requireRepo(repoPath)
	if err != nil {
		return nil, err
	}
	commits, err := repo.Commits(a.ctx, page, limit, branch)
	if err != nil {
		return nil, a.normalizeBindingError(err)
	}
	return commits, nil
}

// RepoDiff carrega o diff completo de um arquivo.
func (a *App) RepoDiff(repoPath string, filePath string, staged bool, mode diff.LargeFileMode) (model.FileDiff, error) {
	repo, err := a.requireRepo(repoPath)
	if err != nil {
		return model.FileDiff{}, err
	}
	file, _, err := repo.Diffs().Load(a.ctx, diff.Request{Path: filePath, Staged: staged, LargeFileMode: mode})
	if err != nil {
		return model.FileDiff{}, a.normalizeBindingError(err)
	}
	return file, nil
}

// RepoApplyLine aplica stage/unstage/discard a uma linha (line < 0 = hunk inteiro).
func (a *App) RepoApplyLine(repoPath string, action diff.PartialAction, filePath string, hunk int, line int) error {
	repo, err := a.requireRepo(repoPath)
	if err != nil {
		return err
	}

	switch action {
	case diff.PartialStage:
		if line < 0 {
			return a.normalizeBindingError(repo.StageHunk(a.ctx, filePath, hunk))
		}
		return a.normalizeBindingError(repo.StageLine(a.ctx, filePath, hunk, line))
	case diff.PartialUnstage:
		if line < 0 {
			return a.normalizeBindingError(repo.UnstageHunk(a.ctx, filePath, hunk))
		}
		return a.normalizeBindingError(repo.UnstageLine(a.ctx, filePath, hunk, line))
	case diff.PartialDiscard:
		if line < 0 {
			return a.normalizeBindingError(repo.DiscardHunk(a.ctx, filePath, hunk))
		}
		return a.normalizeBindingError(repo.DiscardLine(a.ctx, filePath, hunk, line))
	}
	return giterr.New(giterr.KindInvalidLineType, "Ação inválida.", fmt.Sprintf("unknown action %q", action))
}

// RepoCommit cria um commit e devolve o SHA.
func (a *App) RepoCommit(repoPath string, message string, amend bool) (string, error) {
	repo, err := a.requireRepo(repoPath)
	if err != nil {
		return "", err
	}
	sha, err := repo.Commit(a.ctx, engine.CommitOptions{Message: message, Amend: amend})
	if err != nil {
		return "", a.normalizeBindingError(err)
	}
	return sha, nil
}

// RepoHistory lista as últimas linhas do journal.
func (a *App) RepoHistory(repoPath string, limit int) ([]database.CommandRecord, error) {
	if a.db == nil {
		return nil, giterr.New(giterr.KindServiceUnavailable, "Journal indisponível.", "journal disabled or failed to open")
	}
	repo := ""
	if strings.TrimSpace(repoPath) != "" {
		ctx, err := a.requireRepo(repoPath)
		if err != nil {
			return nil, err
		}
		repo = ctx.Path()
	}
	return a.db.Latest(repo, limit)
}

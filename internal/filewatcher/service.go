package filewatcher

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"repostate/internal/model"
)

const (
	defaultDebounce    = 200 * time.Millisecond
	deliveryBufferSize = 256
)

type subscription struct {
	id      int
	handler func(model.Signal)
}

// repoWatch guarda os diretórios git de um repositório e a fila de entrega
// dos seus sinais. Uma única goroutine drena a fila, então a ordem de
// chegada é a ordem de entrega.
type repoWatch struct {
	root    string
	gitDirs []string
	subs    []subscription
	queue   chan SignalEvent
	stop    chan struct{}
}

// Service implementa ISignalWatcher usando fsnotify
type Service struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	handlers []func(SignalEvent)
	debounce map[string]*time.Timer
	repos    map[string]*repoWatch // raiz -> diretórios monitorados
	nextID   int
	loopOn   bool
	done     chan struct{}
	closed   bool
	rawLogs  bool
	ignored  bool
	delay    time.Duration
}

// NewService cria um novo watcher de sinais. debounce <= 0 usa 200ms.
func NewService(debounce time.Duration) (*Service, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	return &Service{
		watcher:  watcher,
		handlers: make([]func(SignalEvent), 0),
		debounce: make(map[string]*time.Timer),
		repos:    make(map[string]*repoWatch),
		done:     make(chan struct{}),
		rawLogs:  readEnvBool("REPOSTATE_FILEWATCHER_DEBUG_RAW"),
		ignored:  readEnvBool("REPOSTATE_FILEWATCHER_DEBUG_IGNORED"),
		delay:    debounce,
	}, nil
}

// Watch inicia o monitoramento do diretório git de um repositório
func (s *Service) Watch(repoRoot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.watchLocked(repoRoot)
	return err
}

func (s *Service) watchLocked(repoRoot string) (*repoWatch, error) {
	if s.closed {
		return nil, fmt.Errorf("watcher is closed")
	}

	repoRoot = filepath.Clean(repoRoot)
	if repo, alreadyWatching := s.repos[repoRoot]; alreadyWatching {
		return repo, nil
	}

	gitDirs, err := resolveGitDirs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %s", repoRoot)
	}

	for _, gitDir := range gitDirs {
		for _, p := range collectWatchPaths(gitDir) {
			if err := s.watcher.Add(p); err != nil {
				log.Printf("[FileWatcher] Warning: could not watch %s: %v", p, err)
			}
		}
	}

	repo := &repoWatch{
		root:    repoRoot,
		gitDirs: gitDirs,
		queue:   make(chan SignalEvent, deliveryBufferSize),
		stop:    make(chan struct{}),
	}
	s.repos[repoRoot] = repo
	go s.deliver(repo)
	log.Printf("[FileWatcher] Watching %s", repoRoot)

	// Iniciar event loop apenas uma vez
	if !s.loopOn {
		s.loopOn = true
		go s.eventLoop()
	}

	return repo, nil
}

// Unwatch para o monitoramento de um repositório
func (s *Service) Unwatch(repoRoot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unwatchLocked(filepath.Clean(repoRoot))
	return nil
}

func (s *Service) unwatchLocked(repoRoot string) {
	repo, exists := s.repos[repoRoot]
	if !exists {
		return
	}

	for _, gitDir := range repo.gitDirs {
		if s.sharedByOtherRepoLocked(repoRoot, gitDir) {
			continue
		}
		for _, p := range collectWatchPaths(gitDir) {
			_ = s.watcher.Remove(p)
		}
	}

	close(repo.stop)
	delete(s.repos, repoRoot)
	log.Printf("[FileWatcher] Unwatched %s", repoRoot)
}

// sharedByOtherRepoLocked evita remover o commondir ainda usado por outra worktree.
func (s *Service) sharedByOtherRepoLocked(repoRoot string, gitDir string) bool {
	for root, other := range s.repos {
		if root == repoRoot {
			continue
		}
		for _, dir := range other.gitDirs {
			if dir == gitDir {
				return true
			}
		}
	}
	return false
}

// Subscribe registra handler para os sinais de repoRoot. O retorno cancela
// a assinatura; sem assinantes o repositório deixa de ser monitorado.
func (s *Service) Subscribe(repoRoot string, handler func(model.Signal)) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("nil signal handler")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.watchLocked(repoRoot)
	if err != nil {
		return nil, err
	}
	s.nextID++
	id := s.nextID
	repo.subs = append(repo.subs, subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.unsubscribe(repo.root, id)
		})
	}, nil
}

func (s *Service) unsubscribe(repoRoot string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[repoRoot]
	if !ok {
		return
	}
	kept := repo.subs[:0]
	for _, sub := range repo.subs {
		if sub.id != id {
			kept = append(kept, sub)
		}
	}
	repo.subs = kept
	if len(repo.subs) == 0 {
		s.unwatchLocked(repoRoot)
	}
}

// OnEvent registra um handler para todos os sinais entregues
func (s *Service) OnEvent(handler func(event SignalEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Close encerra todos os watchers
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	// Cancelar todos os debounce timers
	for _, timer := range s.debounce {
		timer.Stop()
	}
	for root := range s.repos {
		s.unwatchLocked(root)
	}

	close(s.done)
	return s.watcher.Close()
}

// === Event Loop ===

func (s *Service) eventLoop() {
	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if s.rawLogs {
				log.Printf("[FileWatcher][raw] op=%s path=%s", event.Op.String(), event.Name)
			}

			// Git atualiza refs via lock+rename; precisamos considerar mais operações.
			if !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) &&
				!event.Has(fsnotify.Remove) &&
				!event.Has(fsnotify.Chmod) {
				continue
			}

			// Debounce por arquivo (path normalizado).
			key := normalizeGitEventPath(event.Name)
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			if timer, exists := s.debounce[key]; exists {
				timer.Stop()
			}
			ev := event
			s.debounce[key] = time.AfterFunc(s.delay, func() {
				s.handleDebouncedEvent(key, ev)
			})
			s.mu.Unlock()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[FileWatcher] Error: %v", err)
		}
	}
}

func (s *Service) handleDebouncedEvent(key string, event fsnotify.Event) {
	s.mu.Lock()
	delete(s.debounce, key)
	s.mu.Unlock()

	repo, rel := s.findRepo(key)
	if repo == nil {
		return
	}

	signal, ok := ClassifySignal(rel)
	if !ok {
		if s.ignored {
			log.Printf("[FileWatcher] Event ignored: op=%s path=%s repo=%s", event.Op.String(), event.Name, repo.root)
		}
		return
	}

	// Subpastas novas de refs (ex: refs/heads/feature) ganham watch
	// dinâmico para não perder eventos de branches com barra.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			s.mu.Lock()
			if !s.closed {
				if err := s.watcher.Add(event.Name); err != nil {
					log.Printf("[FileWatcher] Warning: could not watch new directory %s: %v", event.Name, err)
				}
			}
			s.mu.Unlock()
		}
	}

	fileEvent := SignalEvent{
		Repo:      repo.root,
		Signal:    signal,
		Path:      key,
		Timestamp: time.Now(),
	}
	select {
	case repo.queue <- fileEvent:
	case <-repo.stop:
	}
}

// deliver entrega os sinais de repo em ordem até o Unwatch.
func (s *Service) deliver(repo *repoWatch) {
	for {
		select {
		case <-repo.stop:
			return
		case event := <-repo.queue:
			log.Printf("[FileWatcher] Signal: %s (%s)", event.Signal, event.Path)

			s.mu.RLock()
			subs := make([]subscription, len(repo.subs))
			copy(subs, repo.subs)
			handlers := make([]func(SignalEvent), len(s.handlers))
			copy(handlers, s.handlers)
			s.mu.RUnlock()

			for _, sub := range subs {
				sub.handler(event.Signal)
			}
			for _, handler := range handlers {
				handler(event)
			}
		}
	}
}

// findRepo encontra o repositório dono do evento e o caminho relativo ao
// diretório git.
func (s *Service) findRepo(eventPath string) (*repoWatch, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cleanEventPath := filepath.Clean(eventPath)
	for _, repo := range s.repos {
		for _, gitDir := range repo.gitDirs {
			if cleanEventPath == gitDir {
				return repo, "."
			}
			if strings.HasPrefix(cleanEventPath, gitDir+string(os.PathSeparator)) {
				rel, err := filepath.Rel(gitDir, cleanEventPath)
				if err != nil {
					continue
				}
				return repo, filepath.ToSlash(rel)
			}
		}
	}
	return nil, ""
}

// === Helper Functions ===

// resolveGitDirs devolve o diretório git do repositório e, em worktrees
// ligadas, também o commondir (refs, packed-refs e config vivem lá).
func resolveGitDirs(repoRoot string) ([]string, error) {
	gitDir, err := resolveGitDir(repoRoot)
	if err != nil {
		return nil, err
	}
	dirs := []string{gitDir}

	data, err := os.ReadFile(filepath.Join(gitDir, "commondir"))
	if err == nil {
		common := strings.TrimSpace(string(data))
		if common != "" {
			if !filepath.IsAbs(common) {
				common = filepath.Join(gitDir, common)
			}
			common = filepath.Clean(common)
			if common != gitDir {
				dirs = append(dirs, common)
			}
		}
	}
	return dirs, nil
}

func resolveGitDir(repoRoot string) (string, error) {
	gitPath := filepath.Join(repoRoot, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", err
	}

	// Repo padrão: .git é diretório.
	if info.IsDir() {
		return filepath.Clean(gitPath), nil
	}

	// Worktree/submodule: .git é arquivo com "gitdir: <path>".
	data, err := os.ReadFile(gitPath)
	if err != nil {
		return "", fmt.Errorf("failed to read .git file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if !strings.HasPrefix(strings.ToLower(content), "gitdir:") {
		return "", fmt.Errorf("invalid .git file format")
	}

	gitDir := strings.TrimSpace(content[len("gitdir:"):])
	if gitDir == "" {
		return "", fmt.Errorf("empty gitdir in .git file")
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(repoRoot, gitDir)
	}

	return filepath.Clean(gitDir), nil
}

// collectWatchPaths lista o diretório git e as árvores de refs. fsnotify não
// é recursivo, então cada subpasta de refs entra explicitamente.
func collectWatchPaths(gitDir string) []string {
	paths := []string{gitDir}
	trees := []string{
		filepath.Join(gitDir, "refs"),
		filepath.Join(gitDir, "logs", "refs"),
		filepath.Join(gitDir, "rebase-merge"),
		filepath.Join(gitDir, "rebase-apply"),
	}

	for _, tree := range trees {
		_ = filepath.WalkDir(tree, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if entry.IsDir() {
				paths = append(paths, p)
			}
			return nil
		})
	}

	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		clean := filepath.Clean(path)
		if _, exists := seen[clean]; exists {
			continue
		}
		seen[clean] = struct{}{}
		unique = append(unique, clean)
	}
	return unique
}

func normalizeGitEventPath(path string) string {
	clean := filepath.Clean(path)
	if strings.HasSuffix(clean, ".lock") {
		return strings.TrimSuffix(clean, ".lock")
	}
	return clean
}

func readEnvBool(key string) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

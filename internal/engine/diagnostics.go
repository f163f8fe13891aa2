package engine

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"repostate/internal/giterr"
)

const (
	CommandStatusQueued    = "queued"
	CommandStatusStarted   = "started"
	CommandStatusRetried   = "retried"
	CommandStatusSucceeded = "succeeded"
	CommandStatusFailed    = "failed"

	stderrDiagnosticLimit = 1200
)

// CommandResult é o diagnóstico emitido a cada transição de um comando de escrita.
type CommandResult struct {
	CommandID       string   `json:"commandId"`
	RepoPath        string   `json:"repoPath"`
	Action          string   `json:"action"`
	Args            []string `json:"args"`
	DurationMs      int64    `json:"durationMs"`
	ExitCode        int      `json:"exitCode"`
	StderrSanitized string   `json:"stderrSanitized,omitempty"`
	Status          string   `json:"status"`
	Attempt         int      `json:"attempt"`
	ErrorKind       string   `json:"errorKind,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// CommandObserver recebe diagnósticos de comandos (journal, gateway, logs).
type CommandObserver func(CommandResult)

// commandTrace acumula o estado de uma mutação entre tentativas. O id é
// estável do started ao succeeded/failed.
type commandTrace struct {
	id      string
	action  string
	args    []string
	started time.Time

	mu       sync.Mutex
	attempt  int
	exitCode int
	stderr   string
}

func newCommandTrace(action string, args []string) *commandTrace {
	return &commandTrace{
		id:      "cmd_" + uuid.NewString(),
		action:  strings.TrimSpace(action),
		args:    append([]string(nil), args...),
		started: time.Now(),
	}
}

func (t *commandTrace) observeAttempt(attempt int, exitCode int, stderr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if attempt > t.attempt {
		t.attempt = attempt
	}
	t.exitCode = exitCode
	t.stderr = stderr
}

// publish monta o CommandResult com args e stderr já limpos e entrega ao observer.
func (e *Engine) publish(trace *commandTrace, status string, err error) {
	if trace == nil || e.observer == nil {
		return
	}
	scrub := newPathScrubber(e.root)

	trace.mu.Lock()
	result := CommandResult{
		CommandID:       trace.id,
		RepoPath:        e.root,
		Action:          trace.action,
		Args:            scrub.args(trace.args, e.sanitize),
		DurationMs:      time.Since(trace.started).Milliseconds(),
		ExitCode:        trace.exitCode,
		StderrSanitized: scrub.stderr(e.sanitize(trace.stderr)),
		Status:          status,
		Attempt:         trace.attempt,
	}
	trace.mu.Unlock()

	if err != nil {
		result.ErrorKind = string(giterr.KindOf(err))
		if gitErr := giterr.As(err); gitErr != nil {
			result.Error = gitErr.Message
		} else {
			result.Error = strings.TrimSpace(err.Error())
		}
	}
	e.observer(result)
}

// pathScrubber troca caminhos absolutos por <repo>, ~ ou <abs-path> para que
// diagnósticos não exponham a estrutura de diretórios do usuário.
type pathScrubber struct {
	repo string
	home string
}

func newPathScrubber(repo string) pathScrubber {
	s := pathScrubber{repo: cleanAbs(repo)}
	if home, err := os.UserHomeDir(); err == nil {
		s.home = cleanAbs(home)
	}
	return s
}

func cleanAbs(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	if cleaned == "." || cleaned == string(filepath.Separator) {
		return ""
	}
	return cleaned
}

func (s pathScrubber) replace(text string) string {
	if s.repo != "" {
		text = strings.ReplaceAll(text, s.repo, "<repo>")
	}
	if s.home != "" {
		text = strings.ReplaceAll(text, s.home, "~")
	}
	return text
}

func (s pathScrubber) args(args []string, sanitize func(string) string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(sanitize(arg))
		if arg == "" {
			continue
		}
		// absoluto fora do repo e da home não diz nada útil
		if filepath.IsAbs(arg) && !s.within(arg) {
			out = append(out, "<abs-path>")
			continue
		}
		out = append(out, strings.Join(strings.Fields(s.replace(arg)), " "))
	}
	return out
}

func (s pathScrubber) within(path string) bool {
	for _, base := range []string{s.repo, s.home} {
		if base == "" {
			continue
		}
		if path == base || strings.HasPrefix(path, base+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// stderr achata as linhas com " | ", remove caracteres de controle e limita o tamanho.
func (s pathScrubber) stderr(text string) string {
	var lines []string
	for _, line := range strings.Split(s.replace(text), "\n") {
		line = strings.TrimSpace(strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\t' {
				return -1
			}
			return r
		}, line))
		if line != "" {
			lines = append(lines, line)
		}
	}
	joined := strings.Join(lines, " | ")
	if len(joined) <= stderrDiagnosticLimit {
		return joined
	}
	return strings.TrimSpace(joined[:stderrDiagnosticLimit]) + "... (truncated)"
}

package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
)

// validateRefName aplica o subconjunto de check-ref-format que importa
// para argumentos de linha de comando.
func validateRefName(name string, kind giterr.Kind) error {
	if name == "" {
		return giterr.New(kind, "Nome obrigatório.", "")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") ||
		strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, ".") ||
		strings.Contains(name, "..") || strings.Contains(name, "@{") || strings.Contains(name, "//") {
		return giterr.New(kind, "Nome de referência inválido.", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(" ~^:?*[\\", r) {
			return giterr.New(kind, "Nome de referência inválido.", name)
		}
	}
	return nil
}

func validateRevision(rev string) error {
	if rev == "" || strings.HasPrefix(rev, "-") {
		return giterr.New(giterr.KindRefNotFound, "Referência inválida.", rev)
	}
	return nil
}

// Stage adiciona paths ao index.
func (e *Engine) Stage(ctx context.Context, paths []string) error {
	clean, err := e.cleanPaths(paths)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpStage, action: "stage", args: append([]string{"add", "--"}, clean...)})
	return err
}

// StageAll adiciona todas as mudanças, incluindo remoções e não rastreados.
func (e *Engine) StageAll(ctx context.Context) error {
	_, err := e.write(ctx, writeCommand{op: giterr.OpStage, action: "stage_all", args: []string{"add", "-A"}})
	return err
}

// Unstage remove paths do index. Sem HEAD (repositório sem commits) não há
// para onde restaurar, então os arquivos saem do index com rm --cached.
func (e *Engine) Unstage(ctx context.Context, paths []string) error {
	clean, err := e.cleanPaths(paths)
	if err != nil {
		return err
	}
	if head, headErr := e.Head(ctx); headErr != nil || !head.Unborn {
		_, err = e.write(ctx, writeCommand{op: giterr.OpUnstage, action: "unstage", args: append([]string{"restore", "--staged", "--"}, clean...)})
		if err == nil || !isUnbornHeadFailure(err) {
			return err
		}
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpUnstage, action: "unstage", args: append([]string{"rm", "--cached", "-r", "-q", "--"}, clean...)})
	return err
}

func isUnbornHeadFailure(err error) bool {
	if giterr.IsKind(err, giterr.KindNoCommits) {
		return true
	}
	gitErr := giterr.As(err)
	if gitErr == nil {
		return false
	}
	lower := strings.ToLower(gitErr.Details)
	return strings.Contains(lower, "could not resolve head") || strings.Contains(lower, "invalid object name 'head'")
}

// Discard descarta mudanças do working tree em arquivos rastreados.
func (e *Engine) Discard(ctx context.Context, paths []string) error {
	clean, err := e.cleanPaths(paths)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpDiscard, action: "discard", args: append([]string{"restore", "--worktree", "--"}, clean...)})
	return err
}

// DiscardUntracked remove arquivos não rastreados.
func (e *Engine) DiscardUntracked(ctx context.Context, paths []string) error {
	clean, err := e.cleanPaths(paths)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpDiscard, action: "discard_untracked", args: append([]string{"clean", "-f", "-q", "--"}, clean...)})
	return err
}

type CommitOptions struct {
	Message    string
	Amend      bool
	AllowEmpty bool
}

// Commit cria um commit com a mensagem via stdin e devolve o novo SHA.
func (e *Engine) Commit(ctx context.Context, opts CommitOptions) (string, error) {
	message := strings.TrimSpace(opts.Message)
	if message == "" && !opts.Amend {
		return "", giterr.New(giterr.KindCommitFailed, "Mensagem de commit obrigatória.", "")
	}

	args := []string{"commit"}
	stdin := ""
	switch {
	case message != "":
		args = append(args, "-F", "-")
		stdin = message + "\n"
	default:
		args = append(args, "--no-edit")
	}
	if opts.Amend {
		args = append(args, "--amend")
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}

	if _, err := e.write(ctx, writeCommand{op: giterr.OpCommit, action: "commit", stdin: stdin, args: args}); err != nil {
		return "", err
	}
	head, err := e.Head(ctx)
	if err != nil {
		return "", err
	}
	return head.SHA, nil
}

// Checkout troca para ref (branch, tag ou SHA).
func (e *Engine) Checkout(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if err := validateRevision(ref); err != nil {
		return err
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpCheckout, action: "checkout", args: []string{"checkout", ref, "--"}})
	return err
}

// CheckoutNewBranch cria name a partir de start (HEAD se vazio) e troca para ela.
func (e *Engine) CheckoutNewBranch(ctx context.Context, name string, start string) error {
	name = strings.TrimSpace(name)
	if err := validateRefName(name, giterr.KindBranchCreateFailed); err != nil {
		return err
	}
	args := []string{"checkout", "-b", name}
	if start = strings.TrimSpace(start); start != "" {
		if err := validateRevision(start); err != nil {
			return err
		}
		args = append(args, start)
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpCheckout, action: "checkout_new_branch", args: args})
	return err
}

func (e *Engine) CreateBranch(ctx context.Context, name string, start string) error {
	name = strings.TrimSpace(name)
	if err := validateRefName(name, giterr.KindBranchCreateFailed); err != nil {
		return err
	}
	args := []string{"branch", name}
	if start = strings.TrimSpace(start); start != "" {
		if err := validateRevision(start); err != nil {
			return err
		}
		args = append(args, start)
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpBranchCreate, action: "branch_create", args: args})
	return err
}

// DeleteBranch usa -d; force troca por -D e ignora o estado de merge.
func (e *Engine) DeleteBranch(ctx context.Context, name string, force bool) error {
	name = strings.TrimSpace(name)
	if err := validateRefName(name, giterr.KindBranchDeleteFailed); err != nil {
		return err
	}
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpBranchDelete, action: "branch_delete", args: []string{"branch", flag, name}})
	return err
}

func (e *Engine) RenameBranch(ctx context.Context, oldName string, newName string) error {
	oldName = strings.TrimSpace(oldName)
	newName = strings.TrimSpace(newName)
	if err := validateRefName(oldName, giterr.KindBranchCreateFailed); err != nil {
		return err
	}
	if err := validateRefName(newName, giterr.KindBranchCreateFailed); err != nil {
		return err
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpBranchCreate, action: "branch_rename", args: []string{"branch", "-m", oldName, newName}})
	return err
}

type MergeOptions struct {
	NoFastForward   bool
	FastForwardOnly bool
	Message         string
}

func (e *Engine) Merge(ctx context.Context, ref string, opts MergeOptions) error {
	ref = strings.TrimSpace(ref)
	if err := validateRevision(ref); err != nil {
		return err
	}
	args := []string{"merge"}
	switch {
	case opts.FastForwardOnly:
		args = append(args, "--ff-only")
	case opts.NoFastForward:
		args = append(args, "--no-ff")
	}
	if msg := strings.TrimSpace(opts.Message); msg != "" {
		args = append(args, "-m", msg)
	} else {
		args = append(args, "--no-edit")
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpMerge, action: "merge", args: append(args, ref)})
	return err
}

func (e *Engine) MergeAbort(ctx context.Context) error {
	_, err := e.write(ctx, writeCommand{op: giterr.OpMerge, action: "merge_abort", args: []string{"merge", "--abort"}})
	return err
}

func (e *Engine) Rebase(ctx context.Context, upstream string) error {
	upstream = strings.TrimSpace(upstream)
	if err := validateRevision(upstream); err != nil {
		return err
	}
	_, err := e.write(ctx, writeCommand{op: giterr.OpRebase, action: "rebase", args: []string{"rebase", upstream}})
	return err
}

func (e *Engine) RebaseContinue(ctx context.Context) error {
	_, err := e.write(ctx, writeCommand{op: giterr.OpRebase, action: "rebase_continue", args: []string{"rebase", "--continue"}})
	return err
}

func (e *Engine) RebaseAbort(ctx context.Context) error {
	_, err := e.write(ctx, writeCommand{op: giterr.OpRebase, action: "rebase_abort", args: []string{"rebase", "--abort"}})
	return err
}

// Init cria um repositório em path (criando o diretório) e abre o Engine.
func Init(ctx context.Context, runner gitexec.Runner, path string, initialBranch string, opts Options) (*Engine, error) {
	absPath, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return nil, giterr.New(giterr.KindInvalidPath, "Caminho inválido.", err.Error())
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, giterr.New(giterr.KindInitFailed, "Não foi possível criar o diretório.", err.Error())
	}

	timeouts := withDefaultTimeouts(opts.Timeouts)
	args := []string{"init"}
	if initialBranch = strings.TrimSpace(initialBranch); initialBranch != "" {
		if err := validateRefName(initialBranch, giterr.KindInitFailed); err != nil {
			return nil, err
		}
		args = append(args, "--initial-branch="+initialBranch)
	}
	result, err := runner.Run(ctx, gitexec.Request{Dir: absPath, Args: args, Class: gitexec.ClassWrite, Timeout: timeouts.Write})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, giterr.Classify(giterr.OpInit, result.Stderr, result.ExitCode, nil)
	}
	return Open(ctx, runner, absPath, opts)
}

// Clone clona url em dest usando o timeout de rede e abre o Engine.
func Clone(ctx context.Context, runner gitexec.Runner, url string, dest string, opts Options) (*Engine, error) {
	url = strings.TrimSpace(url)
	if url == "" || strings.HasPrefix(url, "-") {
		return nil, giterr.New(giterr.KindCloneFailed, "URL inválida.", url)
	}
	absDest, err := filepath.Abs(strings.TrimSpace(dest))
	if err != nil {
		return nil, giterr.New(giterr.KindInvalidPath, "Destino inválido.", err.Error())
	}
	if entries, readErr := os.ReadDir(absDest); readErr == nil && len(entries) > 0 {
		return nil, giterr.New(giterr.KindCloneFailed, "O destino já existe e não está vazio.", absDest)
	}

	if err := os.MkdirAll(filepath.Dir(absDest), 0o755); err != nil {
		return nil, giterr.New(giterr.KindCloneFailed, "Não foi possível criar o diretório.", err.Error())
	}

	timeouts := withDefaultTimeouts(opts.Timeouts)
	globalArgs, err := authHeaderArgs(ctx, opts.Credentials, url)
	if err != nil {
		return nil, err
	}
	args := append(globalArgs, "clone", "--", url, absDest)
	result, err := runner.Run(ctx, gitexec.Request{
		Dir:     filepath.Dir(absDest),
		Args:    args,
		Class:   gitexec.ClassNetwork,
		Timeout: timeouts.Network,
	})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, giterr.Classify(giterr.OpClone, result.Stderr, result.ExitCode, nil)
	}
	return Open(ctx, runner, absDest, opts)
}

// ConflictSide escolhe qual lado de um conflito manter.
type ConflictSide string

const (
	ConflictOurs   ConflictSide = "ours"
	ConflictTheirs ConflictSide = "theirs"
)

// ResolveConflict mantém um dos lados do arquivo em conflito e, com
// autoStage, marca o arquivo como resolvido.
func (e *Engine) ResolveConflict(ctx context.Context, path string, side ConflictSide, autoStage bool) error {
	clean, err := ensurePathWithinRepo(e.root, path)
	if err != nil {
		return err
	}
	if side != ConflictOurs && side != ConflictTheirs {
		return giterr.New(giterr.KindCheckoutFailed, "Lado de conflito inválido.", string(side))
	}
	if _, err := e.write(ctx, writeCommand{
		op:     giterr.OpCheckout,
		action: "accept_" + string(side),
		args:   []string{"checkout", "--" + string(side), "--", clean},
	}); err != nil {
		return err
	}
	if !autoStage {
		return nil
	}
	return e.Stage(ctx, []string{clean})
}

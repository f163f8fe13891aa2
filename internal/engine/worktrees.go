package engine

import (
	"context"
	"path/filepath"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

func (e *Engine) Worktrees(ctx context.Context) ([]model.Worktree, error) {
	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRead, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeList(result.Text()), nil
}

// ParseWorktreeList interpreta registros separados por linha em branco.
// O primeiro registro é sempre a worktree principal.
func ParseWorktreeList(raw string) []model.Worktree {
	out := make([]model.Worktree, 0)
	var current *model.Worktree

	flush := func() {
		if current != nil && current.Path != "" {
			current.IsMain = len(out) == 0
			out = append(out, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		if key == "worktree" {
			flush()
			current = &model.Worktree{Path: filepath.Clean(value)}
			continue
		}
		if current == nil {
			continue
		}
		switch key {
		case "HEAD":
			current.HeadSHA = value
		case "branch":
			current.Branch = model.ShortRefName(value)
		case "detached":
			current.IsDetached = true
		case "bare":
			current.IsBare = true
		case "locked":
			current.IsLocked = true
			current.LockReason = value
		case "prunable":
			current.IsPrunable = true
			current.PruneReason = value
		}
	}
	flush()
	return out
}

// AddWorktree cria uma worktree em path. Com newBranch, cria a branch a
// partir de ref; senão faz checkout de ref.
func (e *Engine) AddWorktree(ctx context.Context, path string, ref string, newBranch string) error {
	path = strings.TrimSpace(path)
	if path == "" || strings.HasPrefix(path, "-") {
		return giterr.New(giterr.KindInvalidPath, "Caminho de worktree inválido.", path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return giterr.New(giterr.KindInvalidPath, "Caminho de worktree inválido.", err.Error())
	}

	args := []string{"worktree", "add"}
	if newBranch = strings.TrimSpace(newBranch); newBranch != "" {
		if err := validateRefName(newBranch, giterr.KindWorktreeAddFailed); err != nil {
			return err
		}
		args = append(args, "-b", newBranch)
	}
	args = append(args, absPath)
	if ref = strings.TrimSpace(ref); ref != "" {
		if strings.HasPrefix(ref, "-") {
			return giterr.New(giterr.KindRefNotFound, "Referência inválida.", ref)
		}
		args = append(args, ref)
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpWorktreeAdd, action: "worktree_add", args: args})
	return err
}

func (e *Engine) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	target, err := worktreeTarget(path)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpWorktreeRm, action: "worktree_remove", args: append(args, target)})
	return err
}

func (e *Engine) LockWorktree(ctx context.Context, path string, reason string) error {
	target, err := worktreeTarget(path)
	if err != nil {
		return err
	}
	args := []string{"worktree", "lock"}
	if reason = strings.TrimSpace(reason); reason != "" {
		args = append(args, "--reason", reason)
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpWorktreeLock, action: "worktree_lock", args: append(args, target)})
	return err
}

func (e *Engine) UnlockWorktree(ctx context.Context, path string) error {
	target, err := worktreeTarget(path)
	if err != nil {
		return err
	}
	_, err = e.write(ctx, writeCommand{op: giterr.OpWorktreeOpen, action: "worktree_unlock", args: []string{"worktree", "unlock", target}})
	return err
}

func (e *Engine) PruneWorktrees(ctx context.Context) error {
	_, err := e.write(ctx, writeCommand{op: giterr.OpWorktreeRm, action: "worktree_prune", args: []string{"worktree", "prune"}})
	return err
}

func worktreeTarget(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || strings.HasPrefix(path, "-") {
		return "", giterr.New(giterr.KindInvalidPath, "Caminho de worktree inválido.", path)
	}
	return filepath.Clean(path), nil
}

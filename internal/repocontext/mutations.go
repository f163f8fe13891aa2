package repocontext

import (
	"context"
	"time"

	"repostate/internal/diff"
	"repostate/internal/engine"
	"repostate/internal/model"
)

var (
	statusSignals  = []model.Signal{model.SignalStatus}
	headSignals    = []model.Signal{model.SignalHead, model.SignalRefs}
	refsSignals    = []model.Signal{model.SignalRefs}
	stashSignals   = []model.Signal{model.SignalStash, model.SignalStatus}
	remoteSignals  = []model.Signal{model.SignalConfig, model.SignalRefs}
	noCacheSignals = []model.Signal{}
)

// mutate roda run na fila do repositório e, terminado o comando, invalida o
// que o efeito torna obsoleto. A invalidação acontece mesmo em falha: um
// merge com conflito também altera a árvore.
func (c *Context) mutate(ctx context.Context, action string, timeout time.Duration, signals []model.Signal, run func(context.Context) error) error {
	err := c.queue.do(ctx, action, timeout, run)
	for _, signal := range signals {
		c.HandleSignal(context.WithoutCancel(ctx), signal)
	}
	return err
}

func (c *Context) localBudget() time.Duration {
	return 2 * c.eng.Timeouts().Write
}

func (c *Context) networkBudget() time.Duration {
	return c.eng.Timeouts().Network + c.eng.Timeouts().Write
}

func (c *Context) Stage(ctx context.Context, paths []string) error {
	return c.mutate(ctx, "stage", c.localBudget(), statusSignals, func(ctx context.Context) error {
		return c.eng.Stage(ctx, paths)
	})
}

func (c *Context) StageAll(ctx context.Context) error {
	return c.mutate(ctx, "stage_all", c.localBudget(), statusSignals, c.eng.StageAll)
}

func (c *Context) Unstage(ctx context.Context, paths []string) error {
	return c.mutate(ctx, "unstage", c.localBudget(), statusSignals, func(ctx context.Context) error {
		return c.eng.Unstage(ctx, paths)
	})
}

func (c *Context) Discard(ctx context.Context, paths []string) error {
	return c.mutate(ctx, "discard", c.localBudget(), statusSignals, func(ctx context.Context) error {
		return c.eng.Discard(ctx, paths)
	})
}

func (c *Context) DiscardUntracked(ctx context.Context, paths []string) error {
	return c.mutate(ctx, "discard_untracked", c.localBudget(), statusSignals, func(ctx context.Context) error {
		return c.eng.DiscardUntracked(ctx, paths)
	})
}

// ApplySelection aplica stage/unstage/discard parcial (linha ou hunk).
func (c *Context) ApplySelection(ctx context.Context, action diff.PartialAction, sel diff.Selection) error {
	return c.mutate(ctx, string(action), c.localBudget(), statusSignals, func(ctx context.Context) error {
		return c.diffs.ApplySelection(ctx, action, sel)
	})
}

func (c *Context) StageLine(ctx context.Context, path string, hunk int, line int) error {
	return c.ApplySelection(ctx, diff.PartialStage, diff.Selection{Path: path, Hunk: hunk, Line: line})
}

func (c *Context) UnstageLine(ctx context.Context, path string, hunk int, line int) error {
	return c.ApplySelection(ctx, diff.PartialUnstage, diff.Selection{Path: path, Hunk: hunk, Line: line})
}

func (c *Context) DiscardLine(ctx context.Context, path string, hunk int, line int) error {
	return c.ApplySelection(ctx, diff.PartialDiscard, diff.Selection{Path: path, Hunk: hunk, Line: line})
}

func (c *Context) StageHunk(ctx context.Context, path string, hunk int) error {
	return c.ApplySelection(ctx, diff.PartialStage, diff.Selection{Path: path, Hunk: hunk, Line: -1})
}

func (c *Context) UnstageHunk(ctx context.Context, path string, hunk int) error {
	return c.ApplySelection(ctx, diff.PartialUnstage, diff.Selection{Path: path, Hunk: hunk, Line: -1})
}

func (c *Context) DiscardHunk(ctx context.Context, path string, hunk int) error {
	return c.ApplySelection(ctx, diff.PartialDiscard, diff.Selection{Path: path, Hunk: hunk, Line: -1})
}

func (c *Context) ResolveConflict(ctx context.Context, path string, side engine.ConflictSide, autoStage bool) error {
	return c.mutate(ctx, "resolve_conflict", c.localBudget(), statusSignals, func(ctx context.Context) error {
		return c.eng.ResolveConflict(ctx, path, side, autoStage)
	})
}

// Commit devolve o SHA do novo commit.
func (c *Context) Commit(ctx context.Context, opts engine.CommitOptions) (string, error) {
	var sha string
	err := c.mutate(ctx, "commit", c.localBudget(), headSignals, func(ctx context.Context) error {
		var err error
		sha, err = c.eng.Commit(ctx, opts)
		return err
	})
	return sha, err
}

func (c *Context) Checkout(ctx context.Context, ref string) error {
	return c.mutate(ctx, "checkout", c.localBudget(), headSignals, func(ctx context.Context) error {
		return c.eng.Checkout(ctx, ref)
	})
}

func (c *Context) CheckoutNewBranch(ctx context.Context, name string, start string) error {
	return c.mutate(ctx, "checkout_new_branch", c.localBudget(), headSignals, func(ctx context.Context) error {
		return c.eng.CheckoutNewBranch(ctx, name, start)
	})
}

func (c *Context) CreateBranch(ctx context.Context, name string, start string) error {
	return c.mutate(ctx, "branch_create", c.localBudget(), refsSignals, func(ctx context.Context) error {
		return c.eng.CreateBranch(ctx, name, start)
	})
}

func (c *Context) DeleteBranch(ctx context.Context, name string, force bool) error {
	return c.mutate(ctx, "branch_delete", c.localBudget(), refsSignals, func(ctx context.Context) error {
		return c.eng.DeleteBranch(ctx, name, force)
	})
}

// RenameBranch também pode renomear a branch do HEAD.
func (c *Context) RenameBranch(ctx context.Context, oldName string, newName string) error {
	return c.mutate(ctx, "branch_rename", c.localBudget(), headSignals, func(ctx context.Context) error {
		return c.eng.RenameBranch(ctx, oldName, newName)
	})
}

func (c *Context) CreateTag(ctx context.Context, name string, target string, message string) error {
	return c.mutate(ctx, "tag_create", c.localBudget(), refsSignals, func(ctx context.Context) error {
		return c.eng.CreateTag(ctx, name, target, message)
	})
}

func (c *Context) DeleteTag(ctx context.Context, name string) error {
	return c.mutate(ctx, "tag_delete", c.localBudget(), refsSignals, func(ctx context.Context) error {
		return c.eng.DeleteTag(ctx, name)
	})
}

func (c *Context) StashPush(ctx context.Context, message string, includeUntracked bool) error {
	return c.mutate(ctx, "stash_push", c.localBudget(), stashSignals, func(ctx context.Context) error {
		return c.eng.StashPush(ctx, message, includeUntracked)
	})
}

// StashApply mantém a entrada na lista; só a árvore muda.
func (c *Context) StashApply(ctx context.Context, index int) error {
	return c.mutate(ctx, "stash_apply", c.localBudget(), statusSignals, func(ctx context.Context) error {
		return c.eng.StashApply(ctx, index)
	})
}

func (c *Context) StashPop(ctx context.Context, index int) error {
	return c.mutate(ctx, "stash_pop", c.localBudget(), stashSignals, func(ctx context.Context) error {
		return c.eng.StashPop(ctx, index)
	})
}

func (c *Context) StashDrop(ctx context.Context, index int) error {
	return c.mutate(ctx, "stash_drop", c.localBudget(), []model.Signal{model.SignalStash}, func(ctx context.Context) error {
		return c.eng.StashDrop(ctx, index)
	})
}

func (c *Context) Merge(ctx context.Context, ref string, opts engine.MergeOptions) error {
	return c.mutate(ctx, "merge", c.localBudget(), headSignals, func(ctx context.Context) error {
		return c.eng.Merge(ctx, ref, opts)
	})
}

func (c *Context) MergeAbort(ctx context.Context) error {
	return c.mutate(ctx, "merge_abort", c.localBudget(), headSignals, c.eng.MergeAbort)
}

func (c *Context) Rebase(ctx context.Context, upstream string) error {
	return c.mutate(ctx, "rebase", c.localBudget(), headSignals, func(ctx context.Context) error {
		return c.eng.Rebase(ctx, upstream)
	})
}

func (c *Context) RebaseContinue(ctx context.Context) error {
	return c.mutate(ctx, "rebase_continue", c.localBudget(), headSignals, c.eng.RebaseContinue)
}

func (c *Context) RebaseAbort(ctx context.Context) error {
	return c.mutate(ctx, "rebase_abort", c.localBudget(), headSignals, c.eng.RebaseAbort)
}

func (c *Context) Fetch(ctx context.Context, opts engine.FetchOptions) error {
	return c.mutate(ctx, "fetch", c.networkBudget(), refsSignals, func(ctx context.Context) error {
		return c.eng.Fetch(ctx, opts)
	})
}

func (c *Context) Pull(ctx context.Context, opts engine.PullOptions) error {
	return c.mutate(ctx, "pull", c.networkBudget(), headSignals, func(ctx context.Context) error {
		return c.eng.Pull(ctx, opts)
	})
}

func (c *Context) Push(ctx context.Context, opts engine.PushOptions) error {
	return c.mutate(ctx, "push", c.networkBudget(), refsSignals, func(ctx context.Context) error {
		return c.eng.Push(ctx, opts)
	})
}

func (c *Context) DeleteRemoteBranch(ctx context.Context, remote string, branch string) error {
	return c.mutate(ctx, "remote_branch_delete", c.networkBudget(), refsSignals, func(ctx context.Context) error {
		return c.eng.DeleteRemoteBranch(ctx, remote, branch)
	})
}

func (c *Context) AddRemote(ctx context.Context, name string, url string) error {
	return c.mutate(ctx, "remote_add", c.localBudget(), remoteSignals, func(ctx context.Context) error {
		return c.eng.AddRemote(ctx, name, url)
	})
}

func (c *Context) RemoveRemote(ctx context.Context, name string) error {
	return c.mutate(ctx, "remote_remove", c.localBudget(), remoteSignals, func(ctx context.Context) error {
		return c.eng.RemoveRemote(ctx, name)
	})
}

func (c *Context) Worktrees(ctx context.Context) ([]model.Worktree, error) {
	return c.eng.Worktrees(ctx)
}

func (c *Context) AddWorktree(ctx context.Context, path string, ref string, newBranch string) error {
	return c.mutate(ctx, "worktree_add", c.localBudget(), refsSignals, func(ctx context.Context) error {
		return c.eng.AddWorktree(ctx, path, ref, newBranch)
	})
}

func (c *Context) RemoveWorktree(ctx context.Context, path string, force bool) error {
	return c.mutate(ctx, "worktree_remove", c.localBudget(), refsSignals, func(ctx context.Context) error {
		return c.eng.RemoveWorktree(ctx, path, force)
	})
}

func (c *Context) LockWorktree(ctx context.Context, path string, reason string) error {
	return c.mutate(ctx, "worktree_lock", c.localBudget(), noCacheSignals, func(ctx context.Context) error {
		return c.eng.LockWorktree(ctx, path, reason)
	})
}

func (c *Context) UnlockWorktree(ctx context.Context, path string) error {
	return c.mutate(ctx, "worktree_unlock", c.localBudget(), noCacheSignals, func(ctx context.Context) error {
		return c.eng.UnlockWorktree(ctx, path)
	})
}

func (c *Context) PruneWorktrees(ctx context.Context) error {
	return c.mutate(ctx, "worktree_prune", c.localBudget(), noCacheSignals, c.eng.PruneWorktrees)
}

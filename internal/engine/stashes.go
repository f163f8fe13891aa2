package engine

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

const stashListFormat = "%gd%x1f%H%x1f%cI%x1f%gs"

var (
	stashRefPattern    = regexp.MustCompile(`^stash@\{(\d+)\}$`)
	stashBranchPattern = regexp.MustCompile(`^(?:WIP on|On) ([^:]+):`)
)

func (e *Engine) Stashes(ctx context.Context) ([]model.Stash, error) {
	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpStash, "stash", "list", "--format="+stashListFormat)
	if err != nil {
		if giterr.IsKind(err, giterr.KindNoCommits) {
			return []model.Stash{}, nil
		}
		return nil, err
	}
	return ParseStashList(result.Text()), nil
}

// ParseStashList lê "stash@{N}\x1fsha\x1fdata\x1fmensagem" por linha.
func ParseStashList(raw string) []model.Stash {
	out := make([]model.Stash, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\x1f", 4)
		if len(fields) < 4 {
			continue
		}
		match := stashRefPattern.FindStringSubmatch(strings.TrimSpace(fields[0]))
		if match == nil {
			continue
		}
		index, _ := strconv.Atoi(match[1])
		date, _ := ParseGitDate(fields[2])

		stash := model.Stash{
			Index:   index,
			SHA:     strings.TrimSpace(fields[1]),
			Date:    date,
			Message: strings.TrimSpace(fields[3]),
		}
		if branch := stashBranchPattern.FindStringSubmatch(stash.Message); branch != nil {
			stash.Branch = branch[1]
		}
		out = append(out, stash)
	}
	return out
}

// StashFiles une as mudanças rastreadas (stash vs primeiro pai) com o
// payload de não rastreados do terceiro pai, que entram sempre como Added.
func (e *Engine) StashFiles(ctx context.Context, index int) ([]model.FileStatus, error) {
	if index < 0 {
		return nil, giterr.New(giterr.KindRefNotFound, "Índice de stash inválido.", strconv.Itoa(index))
	}
	ref := model.StashRef(index)

	tracked, err := e.treeChanges(ctx, ref+"^1", ref)
	if err != nil {
		return nil, err
	}

	untracked, err := e.treeChanges(ctx, "", ref+"^3")
	if err != nil {
		if giterr.IsKind(err, giterr.KindRefNotFound) {
			return tracked, nil
		}
		return nil, err
	}

	seen := make(map[string]struct{}, len(tracked))
	for _, file := range tracked {
		seen[file.Path] = struct{}{}
	}
	for _, file := range untracked {
		if _, dup := seen[file.Path]; dup {
			continue
		}
		file.Kind = model.StatusAdded
		file.Code = string(model.StatusAdded)
		file.OriginalPath = ""
		tracked = append(tracked, file)
	}
	return tracked, nil
}

// StashPush guarda as mudanças; includeUntracked adiciona -u.
func (e *Engine) StashPush(ctx context.Context, message string, includeUntracked bool) error {
	args := []string{"stash", "push"}
	if includeUntracked {
		args = append(args, "--include-untracked")
	}
	if msg := strings.TrimSpace(message); msg != "" {
		args = append(args, "-m", msg)
	}
	result, err := e.write(ctx, writeCommand{op: giterr.OpStash, action: "stash_push", args: args})
	if err != nil {
		return err
	}
	// Sem mudanças o git sai com 0 e só avisa em stdout.
	if strings.Contains(strings.ToLower(result.Text()), "no local changes to save") {
		return giterr.New(giterr.KindNothingToStash, "Não há mudanças para guardar.", "")
	}
	return nil
}

func (e *Engine) StashApply(ctx context.Context, index int) error {
	return e.stashIndexCommand(ctx, giterr.OpStashApply, "stash_apply", "apply", index)
}

func (e *Engine) StashPop(ctx context.Context, index int) error {
	return e.stashIndexCommand(ctx, giterr.OpStashApply, "stash_pop", "pop", index)
}

func (e *Engine) StashDrop(ctx context.Context, index int) error {
	return e.stashIndexCommand(ctx, giterr.OpStashDrop, "stash_drop", "drop", index)
}

func (e *Engine) stashIndexCommand(ctx context.Context, op giterr.Operation, action string, sub string, index int) error {
	if index < 0 {
		return giterr.New(giterr.KindRefNotFound, "Índice de stash inválido.", strconv.Itoa(index))
	}
	_, err := e.write(ctx, writeCommand{op: op, action: action, args: []string{"stash", sub, model.StashRef(index)}})
	return err
}

package engine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

// CommitFiles lista os arquivos alterados por um commit em relação ao
// primeiro pai (ou à árvore vazia, no commit raiz).
func (e *Engine) CommitFiles(ctx context.Context, sha string) ([]model.FileStatus, error) {
	sha = strings.TrimSpace(sha)
	if sha == "" || strings.HasPrefix(sha, "-") {
		return nil, giterr.New(giterr.KindRefNotFound, "Commit inválido.", sha)
	}

	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRead, "rev-list", "--parents", "-n", "1", sha)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(result.Text())
	if len(fields) == 0 {
		return nil, giterr.New(giterr.KindRefNotFound, "Commit não encontrado.", sha)
	}

	base := ""
	if len(fields) > 1 {
		base = fields[1]
	}
	return e.treeChanges(ctx, base, fields[0])
}

// treeChanges junta --name-status e --numstat por caminho. Caminho presente
// só em uma das listas fica com estatística zero.
func (e *Engine) treeChanges(ctx context.Context, base string, target string) ([]model.FileStatus, error) {
	revs := []string{"--root", target}
	if base != "" {
		revs = []string{base, target}
	}

	var nameStatus, numstat string
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		args := append([]string{"diff-tree", "-r", "-M", "--no-commit-id", "--name-status", "-z"}, revs...)
		result, err := e.read(groupCtx, gitexec.ClassRead, giterr.OpRead, args...)
		nameStatus = result.Text()
		return err
	})
	group.Go(func() error {
		args := append([]string{"diff-tree", "-r", "-M", "--no-commit-id", "--numstat", "-z"}, revs...)
		result, err := e.read(groupCtx, gitexec.ClassRead, giterr.OpRead, args...)
		numstat = result.Text()
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return JoinFileStats(ParseNameStatus(nameStatus), ParseNumstat(numstat)), nil
}

// ParseNameStatus interpreta `--name-status -z`: "M\0path\0" ou
// "R100\0old\0new\0".
func ParseNameStatus(raw string) []model.FileStatus {
	out := make([]model.FileStatus, 0)
	records := strings.Split(raw, "\x00")
	for i := 0; i < len(records); i++ {
		code := strings.TrimSpace(records[i])
		if code == "" {
			continue
		}
		kind, ok := model.FileStatusTypeFromCode(code[0])
		if !ok || i+1 >= len(records) {
			continue
		}

		entry := model.FileStatus{Kind: kind, Code: code[:1]}
		if kind == model.StatusRenamed || kind == model.StatusCopied {
			if i+2 >= len(records) {
				break
			}
			entry.OriginalPath = records[i+1]
			entry.Path = records[i+2]
			i += 2
		} else {
			entry.Path = records[i+1]
			i++
		}
		if entry.Path != "" {
			out = append(out, entry)
		}
	}
	return out
}

// JoinFileStats preenche adições/remoções por caminho. Entradas que só
// existem no numstat entram como modificadas.
func JoinFileStats(files []model.FileStatus, stats map[string]NumstatEntry) []model.FileStatus {
	seen := make(map[string]struct{}, len(files))
	for i := range files {
		seen[files[i].Path] = struct{}{}
		if stat, ok := stats[files[i].Path]; ok {
			files[i].Additions = stat.Additions
			files[i].Deletions = stat.Deletions
		}
	}
	for path, stat := range stats {
		if _, ok := seen[path]; ok {
			continue
		}
		files = append(files, model.FileStatus{
			Path:         path,
			OriginalPath: stat.OldPath,
			Kind:         model.StatusModified,
			Code:         string(model.StatusModified),
			Additions:    stat.Additions,
			Deletions:    stat.Deletions,
		})
	}
	return files
}

package engine

import (
	"context"
	"log"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

var (
	aheadPattern  = regexp.MustCompile(`ahead (\d+)`)
	behindPattern = regexp.MustCompile(`behind (\d+)`)
)

// conflictCodes são os pares XY que o git usa para entradas não mescladas.
var conflictCodes = map[string]struct{}{
	"UU": {},
	"AA": {},
	"DD": {},
	"AU": {},
	"UA": {},
	"DU": {},
	"UD": {},
}

// NumstatEntry é uma linha de `git diff --numstat`. Binários reportam "-"
// e viram 0/0 com Binary=true.
type NumstatEntry struct {
	Path      string
	OldPath   string
	Additions int
	Deletions int
	Binary    bool
}

// Status lê o status via porcelain v2 com NUL e junta as contagens de linhas
// de `diff --numstat` (stage e worktree) por caminho.
func (e *Engine) Status(ctx context.Context) (model.RepositoryStatus, error) {
	result, err := e.read(ctx, gitexec.ClassStatus, giterr.OpRead,
		"status", "--porcelain=v2", "-z", "--branch", "--untracked-files=all")
	if err != nil {
		return model.RepositoryStatus{}, err
	}
	status := ParsePorcelainV2(result.Text())

	// Sem WithContext: a falha de um numstat não cancela o outro.
	var staged, unstaged map[string]NumstatEntry
	var group errgroup.Group
	group.Go(func() error {
		var err error
		staged, err = e.numstat(ctx, "diff", "--cached", "--numstat", "-z", "-M")
		return err
	})
	group.Go(func() error {
		var err error
		unstaged, err = e.numstat(ctx, "diff", "--numstat", "-z")
		return err
	})
	if err := group.Wait(); err != nil {
		if ctxErr := giterr.FromContext(err, "status numstat"); ctxErr != nil {
			return model.RepositoryStatus{}, ctxErr
		}
		log.Printf("[Engine] numstat unavailable, line counts left at zero: %v", giterr.KindOf(err))
	}

	applyNumstat(status.Staged, staged)
	applyNumstat(status.Unstaged, unstaged)
	return status, nil
}

// LegacyStatus usa `status --porcelain` v1 em texto. Mantido por
// compatibilidade; caminhos com espaços ou aspas podem ser ambíguos.
func (e *Engine) LegacyStatus(ctx context.Context) (model.RepositoryStatus, error) {
	result, err := e.read(ctx, gitexec.ClassStatus, giterr.OpRead,
		"status", "--porcelain", "--branch", "--untracked-files=all")
	if err != nil {
		return model.RepositoryStatus{}, err
	}
	return ParsePorcelainV1(result.Text()), nil
}

// numstat lê as contagens de linhas; o chamador decide se a falha derruba
// o status ou só zera as contagens.
func (e *Engine) numstat(ctx context.Context, args ...string) (map[string]NumstatEntry, error) {
	result, err := e.read(ctx, gitexec.ClassStatus, giterr.OpRead, args...)
	if err != nil {
		return nil, err
	}
	return ParseNumstat(result.Text()), nil
}

func applyNumstat(entries []model.FileStatus, stats map[string]NumstatEntry) {
	for i := range entries {
		if stat, ok := stats[entries[i].Path]; ok {
			entries[i].Additions = stat.Additions
			entries[i].Deletions = stat.Deletions
		}
	}
}

// ParsePorcelainV2 interpreta `git status --porcelain=v2 -z --branch`.
func ParsePorcelainV2(raw string) model.RepositoryStatus {
	status := model.NewRepositoryStatus()

	records := strings.Split(raw, "\x00")
	for i := 0; i < len(records); i++ {
		record := records[i]
		if record == "" {
			continue
		}

		switch record[0] {
		case '#':
			parseV2Header(&status, record)
		case '1':
			fields := strings.SplitN(record, " ", 9)
			if len(fields) == 9 {
				appendStatusEntry(&status, fields[1], fields[8], "")
			}
		case '2':
			fields := strings.SplitN(record, " ", 10)
			if len(fields) != 10 {
				continue
			}
			// O caminho original vem no registro seguinte e não é uma entrada.
			originalPath := ""
			if i+1 < len(records) {
				originalPath = records[i+1]
				i++
			}
			appendStatusEntry(&status, fields[1], fields[9], originalPath)
		case 'u':
			fields := strings.SplitN(record, " ", 11)
			if len(fields) == 11 {
				status.Conflicted = append(status.Conflicted, model.FileStatus{
					Path: fields[10],
					Kind: model.StatusUnmerged,
					Code: fields[1],
				})
			}
		case '?':
			if len(record) > 2 {
				status.Untracked = append(status.Untracked, record[2:])
			}
		}
	}

	return status
}

func parseV2Header(status *model.RepositoryStatus, record string) {
	key, value, _ := strings.Cut(strings.TrimPrefix(record, "# "), " ")
	value = strings.TrimSpace(value)
	switch key {
	case "branch.oid":
		if value != "(initial)" {
			status.HeadSHA = value
		}
	case "branch.head":
		if value != "(detached)" {
			status.Branch = value
		}
	case "branch.upstream":
		status.Upstream = value
	case "branch.ab":
		for _, token := range strings.Fields(value) {
			n, err := strconv.Atoi(strings.TrimLeft(token, "+-"))
			if err != nil {
				continue
			}
			if strings.HasPrefix(token, "+") {
				status.Ahead = n
			} else if strings.HasPrefix(token, "-") {
				status.Behind = n
			}
		}
	}
}

// ParsePorcelainV1 interpreta `git status --porcelain --branch` (texto ou -z).
func ParsePorcelainV1(raw string) model.RepositoryStatus {
	status := model.NewRepositoryStatus()

	nulMode := strings.IndexByte(raw, 0) >= 0
	separator := "\n"
	if nulMode {
		separator = "\x00"
	}

	records := strings.Split(raw, separator)
	for i := 0; i < len(records); i++ {
		record := strings.TrimRight(records[i], "\r\n")
		if strings.TrimSpace(record) == "" {
			continue
		}

		if strings.HasPrefix(record, "## ") {
			branch, upstream, ahead, behind := parseBranchHeader(record)
			status.Branch = branch
			status.Upstream = upstream
			status.Ahead = ahead
			status.Behind = behind
			continue
		}
		if len(record) < 4 {
			continue
		}

		xy := record[:2]
		pathPart := record[3:]
		originalPath := ""
		if nulMode {
			if entryHasSecondaryPath(xy) && i+1 < len(records) {
				originalPath = records[i+1]
				i++
			}
		} else {
			pathPart, originalPath = parsePorcelainPathPair(pathPart)
		}
		appendStatusEntry(&status, xy, pathPart, originalPath)
	}

	return status
}

// appendStatusEntry distribui uma entrada XY nos buckets: "??" untracked,
// qualquer U (ou AA/DD) conflito, X staged, Y unstaged.
func appendStatusEntry(status *model.RepositoryStatus, xy string, path string, originalPath string) {
	if status == nil || len(xy) < 2 || path == "" {
		return
	}

	switch {
	case xy == "??":
		status.Untracked = append(status.Untracked, path)
		return
	case xy == "!!":
		return
	}

	if _, conflict := conflictCodes[xy]; conflict || strings.ContainsRune(xy, 'U') {
		status.Conflicted = append(status.Conflicted, model.FileStatus{
			Path: path,
			Kind: model.StatusUnmerged,
			Code: xy,
		})
		return
	}

	if kind, ok := model.FileStatusTypeFromCode(xy[0]); ok {
		status.Staged = append(status.Staged, model.FileStatus{
			Path:         path,
			OriginalPath: originalPath,
			Kind:         kind,
			Code:         xy,
		})
	}
	if kind, ok := model.FileStatusTypeFromCode(xy[1]); ok {
		entry := model.FileStatus{Path: path, Kind: kind, Code: xy}
		if kind == model.StatusRenamed || kind == model.StatusCopied {
			entry.OriginalPath = originalPath
		}
		status.Unstaged = append(status.Unstaged, entry)
	}
}

func entryHasSecondaryPath(xy string) bool {
	if len(xy) < 2 {
		return false
	}
	return xy[0] == 'R' || xy[0] == 'C' || xy[1] == 'R' || xy[1] == 'C'
}

// parseBranchHeader lê "## main...origin/main [ahead 1, behind 2]".
func parseBranchHeader(line string) (string, string, int, int) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(line, "## "))
	if trimmed == "" {
		return "", "", 0, 0
	}
	if rest, ok := strings.CutPrefix(trimmed, "No commits yet on "); ok {
		return strings.TrimSpace(rest), "", 0, 0
	}
	if strings.HasPrefix(trimmed, "HEAD (no branch)") {
		return "", "", 0, 0
	}

	branchSection := trimmed
	metaSection := ""
	if idx := strings.Index(trimmed, " ["); idx >= 0 {
		branchSection = strings.TrimSpace(trimmed[:idx])
		metaSection = strings.Trim(strings.TrimSpace(trimmed[idx:]), "[]")
	}

	branch := branchSection
	upstream := ""
	if idx := strings.Index(branchSection, "..."); idx >= 0 {
		branch = strings.TrimSpace(branchSection[:idx])
		upstream = strings.TrimSpace(branchSection[idx+3:])
	}

	ahead, behind := ParseTrackCounts(metaSection)
	return branch, upstream, ahead, behind
}

// ParseTrackCounts lê "ahead N, behind M" com matches independentes:
// qualquer um dos dois (ou nenhum) pode estar presente.
func ParseTrackCounts(text string) (int, int) {
	ahead, behind := 0, 0
	if match := aheadPattern.FindStringSubmatch(text); match != nil {
		ahead, _ = strconv.Atoi(match[1])
	}
	if match := behindPattern.FindStringSubmatch(text); match != nil {
		behind, _ = strconv.Atoi(match[1])
	}
	return ahead, behind
}

func parsePorcelainPathPair(raw string) (string, string) {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.Index(trimmed, " -> "); idx >= 0 {
		oldPath := unquotePath(strings.TrimSpace(trimmed[:idx]))
		newPath := unquotePath(strings.TrimSpace(trimmed[idx+4:]))
		return newPath, oldPath
	}
	return unquotePath(trimmed), ""
}

func unquotePath(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		if unquoted, err := strconv.Unquote(raw); err == nil {
			return unquoted
		}
	}
	return raw
}

// ParseNumstat aceita a saída com -z (renomes em três registros) e a forma
// em texto, uma entrada por linha.
func ParseNumstat(raw string) map[string]NumstatEntry {
	out := make(map[string]NumstatEntry)
	if strings.IndexByte(raw, 0) < 0 {
		for _, line := range strings.Split(raw, "\n") {
			if entry, ok := ParseNumstatLine(strings.TrimRight(line, "\r")); ok {
				out[entry.Path] = entry
			}
		}
		return out
	}

	records := strings.Split(raw, "\x00")
	for i := 0; i < len(records); i++ {
		record := strings.TrimLeft(records[i], "\n")
		if record == "" {
			continue
		}
		parts := strings.SplitN(record, "\t", 3)
		if len(parts) < 3 {
			continue
		}
		entry := NumstatEntry{Path: parts[2]}
		entry.Additions, entry.Deletions, entry.Binary = parseNumstatCounts(parts[0], parts[1])
		if entry.Path == "" && i+2 < len(records) {
			entry.OldPath = records[i+1]
			entry.Path = records[i+2]
			i += 2
		}
		if entry.Path != "" {
			out[entry.Path] = entry
		}
	}
	return out
}

// ParseNumstatLine lê "adds\tdels\tpath"; "-\t-\tpath" é binário com 0/0.
func ParseNumstatLine(line string) (NumstatEntry, bool) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
		return NumstatEntry{}, false
	}
	entry := NumstatEntry{Path: parts[2]}
	entry.Additions, entry.Deletions, entry.Binary = parseNumstatCounts(parts[0], parts[1])
	return entry, true
}

func parseNumstatCounts(rawAdds, rawDels string) (int, int, bool) {
	binary := strings.TrimSpace(rawAdds) == "-" && strings.TrimSpace(rawDels) == "-"
	return parseCount(rawAdds), parseCount(rawDels), binary
}

func parseCount(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "-" {
		return 0
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

package engine

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

const (
	commitFieldSeparator  = "\x00"
	commitRecordSeparator = "\x1e"

	commitLogFormat       = "%H%x00%P%x00%an%x00%ae%x00%aI%x00%cn%x00%ce%x00%cI%x00%s"
	commitLogFormatBody   = commitLogFormat + "%x00%b"
	legacyCommitLogFormat = "%H|%P|%an|%ae|%aI|%cn|%ce|%cI|%s"

	defaultCommitLimit = 100
	maxCommitLimit     = 5000
)

// dateLayouts é a ordem de tentativa ao interpretar datas de commit.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"Mon Jan 2 15:04:05 2006 -0700",
	time.RFC1123Z,
}

// CommitQuery seleciona uma página do log.
type CommitQuery struct {
	Skip        int
	Limit       int
	Ref         string
	Path        string
	IncludeBody bool
}

// DateFallbackFunc é chamada quando nenhuma data conhecida casa e o commit
// recebe time.Now().
type DateFallbackFunc func(sha string, raw string)

// Commits lê uma página do log. Repositório sem commits devolve lista vazia
// quando nenhuma ref explícita foi pedida.
func (e *Engine) Commits(ctx context.Context, query CommitQuery) ([]model.Commit, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultCommitLimit
	}
	if limit > maxCommitLimit {
		limit = maxCommitLimit
	}

	format := commitLogFormat
	if query.IncludeBody {
		format = commitLogFormatBody
	}
	args := []string{"log", "--format=" + format + "%x1e", "-n", strconv.Itoa(limit)}
	if query.Skip > 0 {
		args = append(args, "--skip="+strconv.Itoa(query.Skip))
	}
	ref := strings.TrimSpace(query.Ref)
	if ref != "" {
		if strings.HasPrefix(ref, "-") {
			return nil, giterr.New(giterr.KindRefNotFound, "Referência inválida.", ref)
		}
		args = append(args, ref)
	}
	if path := strings.TrimSpace(query.Path); path != "" {
		clean, err := ensurePathWithinRepo(e.root, path)
		if err != nil {
			return nil, err
		}
		args = append(args, "--", clean)
	}

	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRead, args...)
	if err != nil {
		if ref == "" && giterr.IsKind(err, giterr.KindNoCommits) {
			return []model.Commit{}, nil
		}
		return nil, err
	}
	return ParseCommitLog(result.Text(), logDateFallback), nil
}

// CommitBySHA lê um único commit com body.
func (e *Engine) CommitBySHA(ctx context.Context, sha string) (model.Commit, error) {
	commits, err := e.Commits(ctx, CommitQuery{Ref: sha, Limit: 1, IncludeBody: true})
	if err != nil {
		return model.Commit{}, err
	}
	if len(commits) == 0 {
		return model.Commit{}, giterr.New(giterr.KindRefNotFound, "Commit não encontrado.", sha)
	}
	return commits[0], nil
}

// LegacyCommits usa "|" como separador; subjects com "|" ficam intactos
// porque o subject é o último campo, mas nomes de autor com "|" quebram.
func (e *Engine) LegacyCommits(ctx context.Context, limit int) ([]model.Commit, error) {
	if limit <= 0 {
		limit = defaultCommitLimit
	}
	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRead,
		"log", "--format="+legacyCommitLogFormat, "-n", strconv.Itoa(limit))
	if err != nil {
		if giterr.IsKind(err, giterr.KindNoCommits) {
			return []model.Commit{}, nil
		}
		return nil, err
	}
	return ParseLegacyCommitLog(result.Text(), logDateFallback), nil
}

func logDateFallback(sha string, raw string) {
	log.Printf("[Engine] commit %s has unparseable date %q; using current time", model.ShortSHA(sha), raw)
}

// ParseCommitLog interpreta registros separados por 0x1E com campos NUL.
func ParseCommitLog(raw string, onFallback DateFallbackFunc) []model.Commit {
	out := make([]model.Commit, 0)
	for _, record := range strings.Split(raw, commitRecordSeparator) {
		record = strings.TrimLeft(record, "\r\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		fields := strings.Split(record, commitFieldSeparator)
		if len(fields) < 9 {
			continue
		}
		commit := buildCommit(fields[:9], onFallback)
		if len(fields) > 9 {
			commit.Body = strings.TrimSpace(strings.Join(fields[9:], ""))
		}
		out = append(out, commit)
	}
	return out
}

// ParseLegacyCommitLog interpreta legacyCommitLogFormat, um commit por linha.
func ParseLegacyCommitLog(raw string, onFallback DateFallbackFunc) []model.Commit {
	out := make([]model.Commit, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, "|", 9)
		if len(fields) < 9 {
			continue
		}
		out = append(out, buildCommit(fields, onFallback))
	}
	return out
}

func buildCommit(fields []string, onFallback DateFallbackFunc) model.Commit {
	sha := strings.TrimSpace(fields[0])
	return model.Commit{
		SHA:        sha,
		ParentSHAs: strings.Fields(fields[1]),
		Author: model.Signature{
			Name:  fields[2],
			Email: fields[3],
			Date:  parseCommitDate(sha, fields[4], onFallback),
		},
		Committer: model.Signature{
			Name:  fields[5],
			Email: fields[6],
			Date:  parseCommitDate(sha, fields[7], onFallback),
		},
		Summary: strings.TrimSpace(fields[8]),
	}
}

func parseCommitDate(sha string, raw string, onFallback DateFallbackFunc) time.Time {
	if parsed, ok := ParseGitDate(raw); ok {
		return parsed
	}
	if onFallback != nil {
		onFallback(sha, raw)
	}
	return time.Now()
}

// ParseGitDate tenta os formatos conhecidos em sequência e, por último,
// segundos unix (com ou sem fuso, como em "1700000000 +0000").
func ParseGitDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, true
		}
	}
	seconds, _, _ := strings.Cut(trimmed, " ")
	if unix, err := strconv.ParseInt(seconds, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), true
	}
	return time.Time{}, false
}

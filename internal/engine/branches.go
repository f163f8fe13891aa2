package engine

import (
	"context"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

// Campos: HEAD marker, refname, refname:short, objectname, upstream:short,
// upstream:track, symref. Um registro por linha, campos separados por NUL.
const branchRefFormat = "%(HEAD)%00%(refname)%00%(refname:short)%00%(objectname)%00%(upstream:short)%00%(upstream:track,nobracket)%00%(symref)"

const legacyBranchRefFormat = "%(HEAD)|%(refname)|%(refname:short)|%(objectname)|%(upstream:short)|%(upstream:track,nobracket)"

// Branches lista branches locais e remotas. IsHead vem só do marcador "*"
// do for-each-ref, nunca da comparação de SHAs.
func (e *Engine) Branches(ctx context.Context) ([]model.Branch, []model.Branch, error) {
	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRead,
		"for-each-ref", "--format="+branchRefFormat, "refs/heads", "refs/remotes")
	if err != nil {
		return nil, nil, err
	}
	local, remote := splitBranches(ParseBranchRefs(result.Text()))
	return local, remote, nil
}

// LocalBranches devolve apenas refs/heads.
func (e *Engine) LocalBranches(ctx context.Context) ([]model.Branch, error) {
	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRead,
		"for-each-ref", "--format="+branchRefFormat, "refs/heads")
	if err != nil {
		return nil, err
	}
	return ParseBranchRefs(result.Text()), nil
}

// RemoteBranches devolve apenas refs/remotes, sem os aliases origin/HEAD.
func (e *Engine) RemoteBranches(ctx context.Context) ([]model.Branch, error) {
	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRead,
		"for-each-ref", "--format="+branchRefFormat, "refs/remotes")
	if err != nil {
		return nil, err
	}
	return ParseBranchRefs(result.Text()), nil
}

// LegacyBranches usa "|" como separador. Nomes de ref não podem conter "|"
// mas o texto de tracking é livre; não usar em testes de corretude.
func (e *Engine) LegacyBranches(ctx context.Context) ([]model.Branch, []model.Branch, error) {
	result, err := e.read(ctx, gitexec.ClassRead, giterr.OpRead,
		"for-each-ref", "--format="+legacyBranchRefFormat, "refs/heads", "refs/remotes")
	if err != nil {
		return nil, nil, err
	}
	local, remote := splitBranches(ParseLegacyBranchRefs(result.Text()))
	return local, remote, nil
}

func splitBranches(all []model.Branch) ([]model.Branch, []model.Branch) {
	local := make([]model.Branch, 0, len(all))
	remote := make([]model.Branch, 0)
	for _, branch := range all {
		if branch.IsRemote {
			remote = append(remote, branch)
		} else {
			local = append(local, branch)
		}
	}
	return local, remote
}

// ParseBranchRefs interpreta a saída de branchRefFormat.
func ParseBranchRefs(raw string) []model.Branch {
	out := make([]model.Branch, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\x00")
		if len(fields) < 6 {
			continue
		}
		if len(fields) >= 7 && strings.TrimSpace(fields[6]) != "" {
			// origin/HEAD -> origin/main
			continue
		}
		if branch, ok := buildBranch(fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]); ok {
			out = append(out, branch)
		}
	}
	return out
}

// ParseLegacyBranchRefs interpreta legacyBranchRefFormat.
func ParseLegacyBranchRefs(raw string) []model.Branch {
	out := make([]model.Branch, 0)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "|", 6)
		if len(fields) < 6 {
			continue
		}
		branch, ok := buildBranch(fields[0], fields[1], fields[2], fields[3], fields[4], fields[5])
		if !ok || branch.IsRemoteHEADAlias() {
			continue
		}
		out = append(out, branch)
	}
	return out
}

func buildBranch(headMarker, fullName, shortName, sha, upstream, track string) (model.Branch, bool) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return model.Branch{}, false
	}

	branch := model.Branch{
		Name:      strings.TrimSpace(shortName),
		FullName:  fullName,
		IsHead:    strings.TrimSpace(headMarker) == "*",
		TargetSHA: strings.TrimSpace(sha),
	}
	if branch.Name == "" {
		branch.Name = model.ShortRefName(fullName)
	}

	if rest, ok := strings.CutPrefix(fullName, model.RefRemotesPrefix); ok {
		branch.IsRemote = true
		// Remoto nunca é HEAD local, mesmo que o marcador venha preenchido.
		branch.IsHead = false
		if remoteName, _, found := strings.Cut(rest, "/"); found {
			branch.RemoteName = remoteName
		}
		return branch, true
	}

	if upstream = strings.TrimSpace(upstream); upstream != "" {
		ahead, behind := ParseTrackCounts(track)
		branch.Tracking = &model.TrackingInfo{
			Upstream: upstream,
			Ahead:    ahead,
			Behind:   behind,
			Gone:     strings.Contains(track, "gone"),
		}
	}
	return branch, true
}

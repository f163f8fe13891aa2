package engine

import (
	"context"
	"strings"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

// Head resolve HEAD: branch simbólica (possivelmente sem commits) ou
// detached apontando para um SHA.
func (e *Engine) Head(ctx context.Context) (model.HeadRef, error) {
	symbolic, err := e.run(ctx, gitexec.ClassStatus, "symbolic-ref", "-q", "HEAD")
	if err != nil {
		return model.HeadRef{}, err
	}
	resolved, err := e.run(ctx, gitexec.ClassStatus, "rev-parse", "-q", "--verify", "HEAD")
	if err != nil {
		return model.HeadRef{}, err
	}
	// Exit 1 com -q significa "não existe", não falha.
	if symbolic.ExitCode > 1 {
		return model.HeadRef{}, e.classify(giterr.OpRead, symbolic, nil)
	}
	if resolved.ExitCode > 1 {
		return model.HeadRef{}, e.classify(giterr.OpRead, resolved, nil)
	}

	return BuildHeadRef(
		strings.TrimSpace(symbolic.Text()), symbolic.ExitCode == 0,
		strings.TrimSpace(resolved.Text()), resolved.ExitCode == 0,
	), nil
}

// BuildHeadRef combina as saídas de symbolic-ref e rev-parse.
func BuildHeadRef(fullName string, isSymbolic bool, sha string, resolved bool) model.HeadRef {
	head := model.HeadRef{}
	if resolved {
		head.SHA = sha
	}
	if isSymbolic && fullName != "" {
		head.FullName = fullName
		head.Name = model.ShortRefName(fullName)
		head.Unborn = !resolved
		return head
	}
	head.Detached = resolved
	head.Unborn = !resolved
	return head
}

package engine

import (
	"context"
	"strings"

	"repostate/internal/giterr"
)

// ApplyMode é o destino de um patch parcial.
type ApplyMode string

const (
	// ApplyStage aplica um patch direto no index.
	ApplyStage ApplyMode = "stage"
	// ApplyUnstage aplica um patch já invertido no index.
	ApplyUnstage ApplyMode = "unstage"
	// ApplyDiscard aplica um patch já invertido no working tree.
	ApplyDiscard ApplyMode = "discard"
)

type ApplyOptions struct {
	Cached  bool
	Reverse bool
}

// Options devolve as flags de git apply para o modo.
func (m ApplyMode) Options() ApplyOptions {
	switch m {
	case ApplyStage, ApplyUnstage:
		return ApplyOptions{Cached: true}
	default:
		return ApplyOptions{}
	}
}

// ApplyArgs monta `git apply` lendo o patch de stdin.
func ApplyArgs(opts ApplyOptions) []string {
	args := []string{"apply"}
	if opts.Cached {
		args = append(args, "--cached")
	}
	if opts.Reverse {
		args = append(args, "--reverse")
	}
	return append(args, "--unidiff-zero", "--whitespace=nowarn", "-")
}

// ApplyPatch valida e aplica patchText segundo mode.
func (e *Engine) ApplyPatch(ctx context.Context, patchText string, mode ApplyMode) error {
	return e.applyPatch(ctx, patchText, string(mode)+"_patch", mode.Options())
}

// ApplyPatchWith aplica com flags explícitas (ex.: --cached --reverse com um
// patch direto extraído do diff staged).
func (e *Engine) ApplyPatchWith(ctx context.Context, patchText string, opts ApplyOptions) error {
	return e.applyPatch(ctx, patchText, "apply_patch", opts)
}

func (e *Engine) applyPatch(ctx context.Context, patchText string, action string, opts ApplyOptions) error {
	if strings.TrimSpace(patchText) == "" {
		return giterr.New(giterr.KindPatchInvalid, "Patch inválido para operação parcial.", "O texto do patch está vazio.")
	}
	if err := ValidatePatch(e.root, patchText); err != nil {
		return err
	}
	if !strings.HasSuffix(patchText, "\n") {
		patchText += "\n"
	}

	_, err := e.write(ctx, writeCommand{
		op:     giterr.OpApplyPatch,
		action: action,
		stdin:  patchText,
		args:   ApplyArgs(opts),
	})
	return err
}

package diff

import (
	"context"
	"fmt"

	"repostate/internal/engine"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

// PartialAction é o destino de um trecho selecionado no diff.
type PartialAction string

const (
	PartialStage   PartialAction = "stage"
	PartialUnstage PartialAction = "unstage"
	PartialDiscard PartialAction = "discard"
)

// Selection aponta uma linha (ou o hunk inteiro, com Line < 0) no diff
// carregado do arquivo.
type Selection struct {
	Path string
	Hunk int
	Line int
}

// WholeHunk indica seleção do hunk inteiro.
func (s Selection) WholeHunk() bool {
	return s.Line < 0
}

// StageLine aplica uma linha do diff do working tree no index.
func (s *Service) StageLine(ctx context.Context, path string, hunk int, line int) error {
	return s.ApplySelection(ctx, PartialStage, Selection{Path: path, Hunk: hunk, Line: line})
}

// UnstageLine retira uma linha do diff staged do index.
func (s *Service) UnstageLine(ctx context.Context, path string, hunk int, line int) error {
	return s.ApplySelection(ctx, PartialUnstage, Selection{Path: path, Hunk: hunk, Line: line})
}

// DiscardLine desfaz uma linha no working tree.
func (s *Service) DiscardLine(ctx context.Context, path string, hunk int, line int) error {
	return s.ApplySelection(ctx, PartialDiscard, Selection{Path: path, Hunk: hunk, Line: line})
}

func (s *Service) StageHunk(ctx context.Context, path string, hunk int) error {
	return s.ApplySelection(ctx, PartialStage, Selection{Path: path, Hunk: hunk, Line: -1})
}

func (s *Service) UnstageHunk(ctx context.Context, path string, hunk int) error {
	return s.ApplySelection(ctx, PartialUnstage, Selection{Path: path, Hunk: hunk, Line: -1})
}

func (s *Service) DiscardHunk(ctx context.Context, path string, hunk int) error {
	return s.ApplySelection(ctx, PartialDiscard, Selection{Path: path, Hunk: hunk, Line: -1})
}

// ApplySelection sintetiza e aplica o patch do trecho. Stage aplica o patch
// direto com --cached; unstage aplica o patch do diff staged com --cached
// --reverse; discard aplica o patch invertido no working tree.
func (s *Service) ApplySelection(ctx context.Context, action PartialAction, sel Selection) error {
	req := Request{Path: sel.Path, Staged: action == PartialUnstage}
	if !req.Staged {
		tracked, err := s.eng.IsTracked(ctx, sel.Path)
		if err != nil {
			return err
		}
		req.Untracked = !tracked
	}

	file, _, err := s.Load(ctx, req)
	if err != nil {
		return err
	}
	if sel.Hunk < 0 || sel.Hunk >= len(file.Hunks) {
		return giterr.New(giterr.KindPatchInvalid, "Hunk fora do diff atual.", fmt.Sprintf("hunk=%d hunks=%d", sel.Hunk, len(file.Hunks)))
	}
	hunk := file.Hunks[sel.Hunk]

	patch, err := s.buildSelectionPatch(action, file, hunk, sel)
	if err != nil {
		return err
	}

	switch action {
	case PartialStage:
		err = s.eng.ApplyPatch(ctx, patch, engine.ApplyStage)
	case PartialUnstage:
		err = s.eng.ApplyPatchWith(ctx, patch, engine.ApplyOptions{Cached: true, Reverse: true})
	case PartialDiscard:
		err = s.eng.ApplyPatch(ctx, patch, engine.ApplyDiscard)
	default:
		err = giterr.New(giterr.KindPatchInvalid, "Operação parcial desconhecida.", string(action))
	}
	s.cache.RemoveFile(s.eng.Root(), sel.Path)
	return err
}

func (s *Service) buildSelectionPatch(action PartialAction, file model.FileDiff, hunk model.DiffHunk, sel Selection) (string, error) {
	inverse := action == PartialDiscard
	if sel.WholeHunk() {
		return BuildHunkPatch(file, hunk, inverse)
	}
	// Desfazer uma linha de um arquivo novo no index não remove o arquivo.
	if action == PartialUnstage && file.Status == model.StatusAdded {
		file.Status = model.StatusModified
	}
	contextLines := s.limits.ContextLines
	if contextLines <= 0 {
		contextLines = DefaultPatchContext
	}
	if action == PartialUnstage {
		return BuildReverseLinePatch(file, hunk, sel.Line, contextLines)
	}
	return BuildLinePatch(file, hunk, sel.Line, inverse, contextLines)
}

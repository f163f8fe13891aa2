package diff

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"repostate/internal/model"
)

// ApplyWordDiff marca os trechos alterados de cada par remoção/adição.
// Um bloco de N remoções seguido de M adições pareia as min(N, M) primeiras.
func ApplyWordDiff(hunk model.DiffHunk, maxLineLength int) model.DiffHunk {
	if !hunk.IsMaterialized() || len(hunk.Lines) == 0 {
		return hunk
	}

	lines := append([]model.DiffLine(nil), hunk.Lines...)
	dmp := diffmatchpatch.New()

	i := 0
	for i < len(lines) {
		if lines[i].Type != model.LineDeletion {
			i++
			continue
		}
		delStart := i
		for i < len(lines) && lines[i].Type == model.LineDeletion {
			i++
		}
		addStart := i
		for i < len(lines) && lines[i].Type == model.LineAddition {
			i++
		}

		pairs := addStart - delStart
		if added := i - addStart; added < pairs {
			pairs = added
		}
		for k := 0; k < pairs; k++ {
			oldLine := &lines[delStart+k]
			newLine := &lines[addStart+k]
			if !wordDiffEligible(*oldLine, maxLineLength) || !wordDiffEligible(*newLine, maxLineLength) {
				continue
			}
			oldLine.Changes, newLine.Changes = intralineRanges(dmp, oldLine.Content, newLine.Content)
		}
	}

	out := hunk
	out.Lines = lines
	return out
}

func wordDiffEligible(line model.DiffLine, maxLineLength int) bool {
	if line.Truncated || !utf8.ValidString(line.Content) {
		return false
	}
	return maxLineLength <= 0 || len(line.Content) <= maxLineLength
}

// intralineRanges devolve os offsets em bytes removidos de oldText e
// inseridos em newText.
func intralineRanges(dmp *diffmatchpatch.DiffMatchPatch, oldText string, newText string) ([]model.IntralineRange, []model.IntralineRange) {
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var (
		oldRanges []model.IntralineRange
		newRanges []model.IntralineRange
		oldOffset int
		newOffset int
	)
	for _, d := range diffs {
		size := len(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldOffset += size
			newOffset += size
		case diffmatchpatch.DiffDelete:
			oldRanges = append(oldRanges, model.IntralineRange{Start: oldOffset, Length: size})
			oldOffset += size
		case diffmatchpatch.DiffInsert:
			newRanges = append(newRanges, model.IntralineRange{Start: newOffset, Length: size})
			newOffset += size
		}
	}
	return oldRanges, newRanges
}

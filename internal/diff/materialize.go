package diff

import (
	"bytes"

	"repostate/internal/giterr"
	"repostate/internal/model"
)

// Materialize devolve o hunk com Lines preenchidas, reclassificando o trecho
// do buffer a partir dos números iniciais do cabeçalho. Hunks já
// materializados voltam como estão.
func Materialize(hunk model.DiffHunk, opts ParseOptions) (model.DiffHunk, error) {
	if hunk.IsMaterialized() {
		return hunk, nil
	}

	body := hunk.Source.Slice(*hunk.Range)
	if body == nil && hunk.Range.Len() > 0 {
		return model.DiffHunk{}, giterr.New(
			giterr.KindCommandFailed,
			"Intervalo do hunk fora do buffer do diff.",
			hunk.Source.ID(),
		)
	}

	oldLine := hunk.OldStart
	newLine := hunk.NewStart
	lines := make([]model.DiffLine, 0, bytes.Count(body, []byte{'\n'})+1)
	for len(body) > 0 {
		raw := body
		if idx := bytes.IndexByte(body, '\n'); idx >= 0 {
			raw = body[:idx]
			body = body[idx+1:]
		} else {
			body = nil
		}
		line, err := classifyLine(string(raw), &oldLine, &newLine, opts)
		if err != nil {
			return model.DiffHunk{}, err
		}
		lines = append(lines, line)
	}

	out := hunk
	out.Lines = lines
	out.Range = nil
	out.Source = nil
	return out, nil
}

// MaterializeFile materializa todos os hunks de file.
func MaterializeFile(file model.FileDiff, opts ParseOptions) (model.FileDiff, error) {
	out := file
	out.Hunks = make([]model.DiffHunk, 0, len(file.Hunks))
	for _, hunk := range file.Hunks {
		materialized, err := Materialize(hunk, opts)
		if err != nil {
			return model.FileDiff{}, err
		}
		out.Hunks = append(out.Hunks, materialized)
	}
	return out, nil
}

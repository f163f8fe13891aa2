package diff

import (
	"fmt"
	"strconv"
	"strings"

	"repostate/internal/giterr"
	"repostate/internal/model"
)

// DefaultPatchContext é quantas linhas de contexto cercam uma linha isolada.
const DefaultPatchContext = 3

// BuildHunkPatch reemite o hunk inteiro como patch independente. Com
// inverse os lados antigo/novo e os papéis de +/- são trocados.
func BuildHunkPatch(file model.FileDiff, hunk model.DiffHunk, inverse bool) (string, error) {
	hunk, err := Materialize(hunk, ParseOptions{})
	if err != nil {
		return "", err
	}
	if err := ensureUntruncated(hunk.Lines); err != nil {
		return "", err
	}

	oldStart, oldCount := hunk.OldStart, hunk.OldLines
	newStart, newCount := hunk.NewStart, hunk.NewLines
	if inverse {
		oldStart, newStart = newStart, oldStart
		oldCount, newCount = newCount, oldCount
	}

	var b strings.Builder
	writeFileHeaders(&b, file, inverse, false)
	writeHunkHeader(&b, oldStart, oldCount, newStart, newCount)
	for _, line := range hunk.Lines {
		writePatchLine(&b, line, inverse)
	}
	return b.String(), nil
}

// BuildLinePatch gera o patch mínimo que aplica só hunk.Lines[index].
// Até contextLines linhas de contexto antes e depois entram no patch; a
// coleta para na primeira linha alterada que não é o alvo. Com inverse o
// patch parte do lado novo (discard no working tree).
func BuildLinePatch(file model.FileDiff, hunk model.DiffHunk, index int, inverse bool, contextLines int) (string, error) {
	return buildLinePatch(file, hunk, index, inverse, false, contextLines)
}

// BuildReverseLinePatch gera o patch de uma linha do diff staged para ser
// aplicado com --cached --reverse: a base é o lado novo (o index) e o texto
// sai invertido para que o git o desfaça.
func BuildReverseLinePatch(file model.FileDiff, hunk model.DiffHunk, index int, contextLines int) (string, error) {
	return buildLinePatch(file, hunk, index, true, true, contextLines)
}

// patchEntry é uma linha do hunk já vista do lado base: adição é o que não
// existe na base, remoção o que existe só nela.
type patchEntry struct {
	kind      model.LineType
	content   string
	newline   bool
	truncated bool
}

// sideLine é uma linha de um dos lados do patch sintético.
type sideLine struct {
	content string
	newline bool
}

func buildLinePatch(file model.FileDiff, hunk model.DiffHunk, index int, baseIsNew bool, reversed bool, contextLines int) (string, error) {
	hunk, err := Materialize(hunk, ParseOptions{})
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(hunk.Lines) {
		return "", giterr.New(giterr.KindInvalidLineType, "Linha fora do hunk.", fmt.Sprintf("index=%d linhas=%d", index, len(hunk.Lines)))
	}

	target := hunk.Lines[index]
	switch target.Type {
	case model.LineAddition, model.LineDeletion:
	case model.LineContext, model.LineHunkHeader:
		return "", giterr.New(giterr.KindCannotOperateOnContextLine, "Linhas de contexto não podem ser aplicadas isoladamente.", string(target.Type))
	default:
		return "", giterr.New(giterr.KindInvalidLineType, "Tipo de linha inválido para patch.", string(target.Type))
	}
	if contextLines < 0 {
		contextLines = DefaultPatchContext
	}

	entries, t := foldPatchEntries(hunk.Lines, index, baseIsNew)
	lo := extendContextBack(entries, t, contextLines)
	hi := t
	for gathered := 0; hi+1 < len(entries) && gathered < contextLines && entries[hi+1].kind == model.LineContext; gathered++ {
		hi++
	}
	// Inserir depois de uma linha sem "\n" final obriga a reescrever essa linha.
	if entries[t].kind == model.LineAddition {
		if j := previousBaseEntry(entries, t); j >= 0 && j < lo && !entries[j].newline {
			lo = extendContextBack(entries, j, contextLines)
		}
	}

	for _, entry := range entries[lo : hi+1] {
		if entry.truncated {
			return "", truncatedPatchError()
		}
	}

	var base, result []sideLine
	for i := lo; i <= hi; i++ {
		entry := entries[i]
		line := sideLine{content: entry.content, newline: entry.newline}
		switch {
		case i == t && entry.kind == model.LineAddition:
			result = append(result, line)
		case i == t:
			base = append(base, line)
		case entry.kind == model.LineAddition:
			// adição fora da seleção não existe na base
		default:
			base = append(base, line)
			result = append(result, line)
		}
	}
	// Só a última linha do arquivo resultante pode ficar sem "\n".
	for i := range result {
		if i < len(result)-1 || baseContinuesAfter(entries, hi) {
			result[i].newline = true
		}
	}

	pos := baseStart(hunk, baseIsNew)
	for i := 0; i < lo; i++ {
		if entries[i].kind != model.LineAddition {
			pos++
		}
	}

	oldSide, newSide := base, result
	if reversed {
		oldSide, newSide = result, base
	}
	// Com contagem zero o início aponta a linha anterior à inserção.
	oldPos, newPos := pos, pos
	if len(oldSide) == 0 {
		oldPos--
	}
	if len(newSide) == 0 {
		newPos--
	}

	var b strings.Builder
	writeFileHeaders(&b, file, baseIsNew && !reversed, true)
	writeHunkHeader(&b, oldPos, len(oldSide), newPos, len(newSide))
	writeSides(&b, oldSide, newSide)
	return b.String(), nil
}

// foldPatchEntries junta cada marcador "\ No newline" à linha anterior e
// devolve o índice da entrada alvo.
func foldPatchEntries(lines []model.DiffLine, index int, baseIsNew bool) ([]patchEntry, int) {
	entries := make([]patchEntry, 0, len(lines))
	target := -1
	for i, line := range lines {
		if line.NoNewline {
			if len(entries) > 0 {
				entries[len(entries)-1].newline = false
			}
			continue
		}
		if line.Type == model.LineHunkHeader {
			continue
		}
		kind := line.Type
		if baseIsNew {
			kind = flipType(kind)
		}
		if i == index {
			target = len(entries)
		}
		entries = append(entries, patchEntry{kind: kind, content: line.Content, newline: true, truncated: line.Truncated})
	}
	return entries, target
}

func extendContextBack(entries []patchEntry, from int, contextLines int) int {
	lo := from
	for gathered := 0; lo > 0 && gathered < contextLines && entries[lo-1].kind == model.LineContext; gathered++ {
		lo--
	}
	return lo
}

func previousBaseEntry(entries []patchEntry, from int) int {
	for i := from - 1; i >= 0; i-- {
		if entries[i].kind != model.LineAddition {
			return i
		}
	}
	return -1
}

func baseContinuesAfter(entries []patchEntry, hi int) bool {
	for _, entry := range entries[hi+1:] {
		if entry.kind != model.LineAddition {
			return true
		}
	}
	return false
}

func baseStart(hunk model.DiffHunk, baseIsNew bool) int {
	start, count := hunk.OldStart, hunk.OldLines
	if baseIsNew {
		start, count = hunk.NewStart, hunk.NewLines
	}
	if count == 0 {
		start++
	}
	return start
}

// writeSides emite o prefixo e o sufixo comuns como contexto e o miolo como
// remoções seguidas de adições.
func writeSides(b *strings.Builder, oldSide []sideLine, newSide []sideLine) {
	prefix := 0
	for prefix < len(oldSide) && prefix < len(newSide) && oldSide[prefix] == newSide[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(oldSide)-prefix && suffix < len(newSide)-prefix &&
		oldSide[len(oldSide)-1-suffix] == newSide[len(newSide)-1-suffix] {
		suffix++
	}

	for _, line := range oldSide[:prefix] {
		writeSideLine(b, ' ', line)
	}
	for _, line := range oldSide[prefix : len(oldSide)-suffix] {
		writeSideLine(b, '-', line)
	}
	for _, line := range newSide[prefix : len(newSide)-suffix] {
		writeSideLine(b, '+', line)
	}
	for _, line := range oldSide[len(oldSide)-suffix:] {
		writeSideLine(b, ' ', line)
	}
}

func writeSideLine(b *strings.Builder, prefix byte, line sideLine) {
	b.WriteByte(prefix)
	b.WriteString(line.content)
	b.WriteByte('\n')
	if !line.newline {
		b.WriteString(noNewlineMarker)
		b.WriteByte('\n')
	}
}

func flipType(t model.LineType) model.LineType {
	switch t {
	case model.LineAddition:
		return model.LineDeletion
	case model.LineDeletion:
		return model.LineAddition
	default:
		return t
	}
}

func ensureUntruncated(lines []model.DiffLine) error {
	for _, line := range lines {
		if line.Truncated {
			return truncatedPatchError()
		}
	}
	return nil
}

func truncatedPatchError() error {
	return giterr.New(
		giterr.KindPatchInvalid,
		"Patch inválido para operação parcial.",
		"O trecho contém linhas truncadas pelo limite de tamanho de linha.",
	).WithHint("Recarregue o diff sem limite de linha para aplicar este trecho.")
}

// writeFileHeaders emite ---/+++. Em patches de linha o arquivo continua
// existindo dos dois lados, exceto a criação a partir de /dev/null.
func writeFileHeaders(b *strings.Builder, file model.FileDiff, inverse bool, partial bool) {
	oldPath := firstPath(file.OldPath, file.NewPath)
	newPath := firstPath(file.NewPath, file.OldPath)
	oldMissing := file.Status == model.StatusAdded || file.Status == model.StatusUntracked
	newMissing := file.Status == model.StatusDeleted
	if inverse {
		oldPath, newPath = newPath, oldPath
		oldMissing, newMissing = newMissing, oldMissing
	}
	if partial {
		newMissing = false
		if inverse {
			oldMissing = false
		}
	}

	b.WriteString("--- ")
	if oldMissing {
		b.WriteString("/dev/null")
	} else {
		b.WriteString(quotePatchPath("a/" + oldPath))
	}
	b.WriteString("\n+++ ")
	if newMissing {
		b.WriteString("/dev/null")
	} else {
		b.WriteString(quotePatchPath("b/" + newPath))
	}
	b.WriteByte('\n')
}

func writeHunkHeader(b *strings.Builder, oldStart int, oldCount int, newStart int, newCount int) {
	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
}

func writePatchLine(b *strings.Builder, line model.DiffLine, inverse bool) {
	if line.NoNewline {
		b.WriteString(noNewlineMarker)
		b.WriteByte('\n')
		return
	}
	lineType := line.Type
	if inverse {
		lineType = flipType(lineType)
	}
	b.WriteByte(lineType.Prefix())
	b.WriteString(line.Content)
	b.WriteByte('\n')
}

func firstPath(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" && value != "/dev/null" {
			return value
		}
	}
	return ""
}

// quotePatchPath aplica aspas no estilo do git quando o caminho tem
// caracteres que o cabeçalho não aceita crus.
func quotePatchPath(path string) string {
	for i := 0; i < len(path); i++ {
		if c := path[i]; c < 0x20 || c == '"' || c == '\\' || c == 0x7f {
			return strconv.Quote(path)
		}
	}
	return path
}

package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repostate/internal/engine"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

func parseSingleFile(t *testing.T, lines ...string) model.FileDiff {
	t.Helper()

	diff, err := Parse([]byte(strings.Join(lines, "\n")+"\n"), ParseOptions{})
	require.NoError(t, err)
	require.Len(t, diff.Files, 1)
	return diff.Files[0]
}

func appendedLinesFile(t *testing.T) model.FileDiff {
	return parseSingleFile(t,
		"diff --git a/notes.txt b/notes.txt",
		"--- a/notes.txt",
		"+++ b/notes.txt",
		"@@ -1,2 +1,4 @@",
		" a",
		" b",
		"+c",
		"+d",
	)
}

func replacedLineFile(t *testing.T) model.FileDiff {
	return parseSingleFile(t,
		"diff --git a/list.txt b/list.txt",
		"--- a/list.txt",
		"+++ b/list.txt",
		"@@ -1,5 +1,5 @@",
		" one",
		" two",
		"-three",
		"+THREE",
		" four",
		" five",
	)
}

func TestBuildLinePatchSingleAdditionWithLeadingContext(t *testing.T) {
	file := appendedLinesFile(t)

	patch, err := BuildLinePatch(file, file.Hunks[0], 2, false, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/notes.txt\n+++ b/notes.txt\n@@ -1,2 +1,3 @@\n a\n b\n+c\n", patch)
}

func TestBuildLinePatchStopsAtUnrelatedChange(t *testing.T) {
	file := appendedLinesFile(t)

	patch, err := BuildLinePatch(file, file.Hunks[0], 3, false, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/notes.txt\n+++ b/notes.txt\n@@ -2,0 +3,1 @@\n+d\n", patch)
	assert.NotContains(t, patch, "+c")
}

func TestBuildLinePatchInverseFlipsTarget(t *testing.T) {
	file := appendedLinesFile(t)

	patch, err := BuildLinePatch(file, file.Hunks[0], 2, true, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/notes.txt\n+++ b/notes.txt\n@@ -1,3 +1,2 @@\n a\n b\n-c\n", patch)
}

func TestBuildLinePatchGathersTrailingContext(t *testing.T) {
	file := replacedLineFile(t)

	deletion, err := BuildLinePatch(file, file.Hunks[0], 2, false, 1)
	require.NoError(t, err)
	assert.Equal(t, "--- a/list.txt\n+++ b/list.txt\n@@ -2,2 +2,1 @@\n two\n-three\n", deletion)

	addition, err := BuildLinePatch(file, file.Hunks[0], 3, false, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/list.txt\n+++ b/list.txt\n@@ -4,2 +4,3 @@\n+THREE\n four\n five\n", addition)
}

func TestBuildLinePatchRejectsContextLine(t *testing.T) {
	file := replacedLineFile(t)

	_, err := BuildLinePatch(file, file.Hunks[0], 0, false, 3)
	assert.Equal(t, giterr.KindCannotOperateOnContextLine, giterr.KindOf(err))

	_, err = BuildLinePatch(file, file.Hunks[0], 42, false, 3)
	assert.Equal(t, giterr.KindInvalidLineType, giterr.KindOf(err))

	hunk := file.Hunks[0]
	hunk.Lines = append([]model.DiffLine{{Type: model.LineHunkHeader, Content: hunk.Header}}, hunk.Lines...)
	_, err = BuildLinePatch(file, hunk, 0, false, 3)
	assert.Equal(t, giterr.KindCannotOperateOnContextLine, giterr.KindOf(err))
}

func TestBuildLinePatchKeepsNoNewlineMarker(t *testing.T) {
	file := parseSingleFile(t,
		"diff --git a/tail.txt b/tail.txt",
		"--- a/tail.txt",
		"+++ b/tail.txt",
		"@@ -1 +1 @@",
		"-old",
		"+new",
		`\ No newline at end of file`,
	)

	patch, err := BuildLinePatch(file, file.Hunks[0], 1, false, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/tail.txt\n+++ b/tail.txt\n@@ -1,0 +2,1 @@\n+new\n\\ No newline at end of file\n", patch)
}

func lastLineRewrittenFile(t *testing.T) model.FileDiff {
	return parseSingleFile(t,
		"diff --git a/f.txt b/f.txt",
		"--- a/f.txt",
		"+++ b/f.txt",
		"@@ -1,3 +1,3 @@",
		" a",
		" b",
		"-c",
		`\ No newline at end of file`,
		"+C",
		`\ No newline at end of file`,
	)
}

func TestBuildLinePatchRewritesLineWithoutTrailingNewline(t *testing.T) {
	file := lastLineRewrittenFile(t)

	// "c" deixa de ser a última linha e ganha "\n"; "C" continua sem.
	patch, err := BuildLinePatch(file, file.Hunks[0], 4, false, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,4 @@\n a\n b\n-c\n\\ No newline at end of file\n+c\n+C\n\\ No newline at end of file\n", patch)

	deletion, err := BuildLinePatch(file, file.Hunks[0], 2, false, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,2 @@\n a\n b\n-c\n\\ No newline at end of file\n", deletion)
}

func TestBuildLinePatchInverseRestoresLineBeforeUnterminatedTail(t *testing.T) {
	file := lastLineRewrittenFile(t)

	patch, err := BuildLinePatch(file, file.Hunks[0], 2, true, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/f.txt\n+++ b/f.txt\n@@ -1,2 +1,3 @@\n a\n b\n+c\n", patch)

	addition, err := BuildLinePatch(file, file.Hunks[0], 4, true, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/f.txt\n+++ b/f.txt\n@@ -3,1 +2,0 @@\n-C\n\\ No newline at end of file\n", addition)
}

func TestBuildReverseLinePatchTargetsIndexSide(t *testing.T) {
	file := lastLineRewrittenFile(t)

	patch, err := BuildReverseLinePatch(file, file.Hunks[0], 4, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/f.txt\n+++ b/f.txt\n@@ -2,0 +3,1 @@\n+C\n\\ No newline at end of file\n", patch)

	deletion, err := BuildReverseLinePatch(file, file.Hunks[0], 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,2 @@\n a\n b\n-c\n", deletion)
}

func TestBuildLinePatchRejectsTruncatedLines(t *testing.T) {
	raw := "diff --git a/w.txt b/w.txt\n--- a/w.txt\n+++ b/w.txt\n@@ -1 +1 @@\n-" + strings.Repeat("x", 30) + "\n+y\n"
	diff, err := Parse([]byte(raw), ParseOptions{MaxLineLength: 10})
	require.NoError(t, err)

	_, err = BuildLinePatch(diff.Files[0], diff.Files[0].Hunks[0], 0, false, 3)
	assert.Equal(t, giterr.KindPatchInvalid, giterr.KindOf(err))
}

func TestBuildLinePatchForNewFileCreatesFromDevNull(t *testing.T) {
	file := parseSingleFile(t,
		"diff --git a/fresh.txt b/fresh.txt",
		"new file mode 100644",
		"--- /dev/null",
		"+++ b/fresh.txt",
		"@@ -0,0 +1,2 @@",
		"+x",
		"+y",
	)

	patch, err := BuildLinePatch(file, file.Hunks[0], 0, false, 3)
	require.NoError(t, err)
	assert.Equal(t, "--- /dev/null\n+++ b/fresh.txt\n@@ -0,0 +1,1 @@\n+x\n", patch)

	inverse, err := BuildLinePatch(file, file.Hunks[0], 1, true, 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(inverse, "--- a/fresh.txt\n+++ b/fresh.txt\n"), inverse)
}

func TestBuildHunkPatchInverseSwapsHeader(t *testing.T) {
	file := appendedLinesFile(t)

	forward, err := BuildHunkPatch(file, file.Hunks[0], false)
	require.NoError(t, err)
	assert.Equal(t, "--- a/notes.txt\n+++ b/notes.txt\n@@ -1,2 +1,4 @@\n a\n b\n+c\n+d\n", forward)

	inverse, err := BuildHunkPatch(file, file.Hunks[0], true)
	require.NoError(t, err)
	assert.Equal(t, "--- a/notes.txt\n+++ b/notes.txt\n@@ -1,4 +1,2 @@\n a\n b\n-c\n-d\n", inverse)
}

func TestBuildHunkPatchMaterializesLazyHunk(t *testing.T) {
	raw := "diff --git a/notes.txt b/notes.txt\n--- a/notes.txt\n+++ b/notes.txt\n@@ -1,2 +1,4 @@\n a\n b\n+c\n+d\n"
	lazy, err := Parse([]byte(raw), ParseOptions{Mode: ModeLazy})
	require.NoError(t, err)

	patch, err := BuildHunkPatch(lazy.Files[0], lazy.Files[0].Hunks[0], false)
	require.NoError(t, err)
	assert.Equal(t, "--- a/notes.txt\n+++ b/notes.txt\n@@ -1,2 +1,4 @@\n a\n b\n+c\n+d\n", patch)
}

func TestSynthesizedPatchesPassValidation(t *testing.T) {
	file := replacedLineFile(t)
	root := t.TempDir()

	for index := range file.Hunks[0].Lines {
		line := file.Hunks[0].Lines[index]
		if !line.IsChange() {
			continue
		}
		for _, inverse := range []bool{false, true} {
			patch, err := BuildLinePatch(file, file.Hunks[0], index, inverse, 3)
			require.NoError(t, err)
			assert.NoError(t, engine.ValidatePatch(root, patch))
		}
	}
}

func TestQuotePatchPathEscapesSpecialCharacters(t *testing.T) {
	assert.Equal(t, "a/plain name.txt", quotePatchPath("a/plain name.txt"))
	assert.Equal(t, `"a/tab\there.txt"`, quotePatchPath("a/tab\there.txt"))
}

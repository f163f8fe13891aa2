package engine

import (
	"strings"
	"testing"

	"repostate/internal/giterr"
)

func TestValidatePatchRejectsTraversalPath(t *testing.T) {
	repoRoot := t.TempDir()

	patch := strings.Join([]string{
		"diff --git a/../../etc/passwd b/../../etc/passwd",
		"--- a/../../etc/passwd",
		"+++ b/../../etc/passwd",
		"@@ -1 +1 @@",
		"-x",
		"+y",
	}, "\n")

	err := ValidatePatch(repoRoot, patch)
	if giterr.KindOf(err) != giterr.KindPatchInvalid {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePatchAcceptsQuotedRenameAndCopy(t *testing.T) {
	repoRoot := t.TempDir()

	renamePatch := strings.Join([]string{
		`diff --git "a/src/old name.txt" "b/src/new name.txt"`,
		"similarity index 100%",
		"rename from src/old name.txt",
		"rename to src/new name.txt",
		`--- "a/src/old name.txt"`,
		`+++ "b/src/new name.txt"`,
	}, "\n")
	if err := ValidatePatch(repoRoot, renamePatch); err != nil {
		t.Fatalf("expected rename patch to be accepted, got: %v", err)
	}

	paths, err := PatchPaths(renamePatch)
	if err != nil {
		t.Fatalf("PatchPaths returned error: %v", err)
	}
	if strings.Join(paths, ",") != "src/old name.txt,src/new name.txt" {
		t.Fatalf("unexpected paths: %v", paths)
	}

	copyPatch := "diff --git a/src/base.txt b/src/copied.txt\ncopy from src/base.txt\ncopy to src/copied.txt\n"
	if err := ValidatePatch(repoRoot, copyPatch); err != nil {
		t.Fatalf("expected copy patch to be accepted, got: %v", err)
	}
}

func TestPatchPathsSkipsDevNull(t *testing.T) {
	paths, err := PatchPaths("--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1 @@\n+x\n")
	if err != nil {
		t.Fatalf("PatchPaths returned error: %v", err)
	}
	if len(paths) != 1 || paths[0] != "new.txt" {
		t.Fatalf("unexpected paths: %v", paths)
	}
}

func TestPatchPathsFailsWithoutHeaders(t *testing.T) {
	if _, err := PatchPaths("@@ -1 +1 @@\n-a\n+b\n"); err == nil {
		t.Fatalf("expected failure for patch without headers")
	}
}

func TestEnsurePathWithinRepoRejectsBackslashTraversal(t *testing.T) {
	_, err := ensurePathWithinRepo(t.TempDir(), `..\outside.txt`)
	if giterr.KindOf(err) != giterr.KindInvalidPath {
		t.Fatalf("unexpected error: %v", err)
	}
}

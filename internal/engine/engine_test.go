package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"repostate/internal/gitexec"
	"repostate/internal/giterr"
)

func TestOpenRejectsNonRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(context.Background(), gitexec.New(gitexec.Options{}), dir, Options{})
	if err == nil {
		t.Fatalf("expected error for plain directory")
	}
	if giterr.KindOf(err) != giterr.KindNotARepository && giterr.KindOf(err) != giterr.KindGitUnavailable {
		t.Fatalf("unexpected error kind: %v", err)
	}
}

func TestCommitsReturnsLinearHistoryNewestFirst(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	shaA := mustCommitFile(t, repoRoot, "a.txt", "a\n", "A")
	shaB := mustCommitFile(t, repoRoot, "b.txt", "b\n", "B")
	shaC := mustCommitFile(t, repoRoot, "c.txt", "c\n", "C")

	eng := newTestEngine(t, repoRoot, Options{})
	commits, err := eng.Commits(context.Background(), CommitQuery{Limit: 10})
	if err != nil {
		t.Fatalf("Commits returned error: %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("unexpected commit count: %d", len(commits))
	}
	if commits[0].SHA != shaC || commits[1].SHA != shaB || commits[2].SHA != shaA {
		t.Fatalf("unexpected order: %s %s %s", commits[0].ShortSHA(), commits[1].ShortSHA(), commits[2].ShortSHA())
	}
	if len(commits[0].ParentSHAs) != 1 || commits[0].ParentSHAs[0] != shaB {
		t.Fatalf("unexpected C parents: %v", commits[0].ParentSHAs)
	}
	if len(commits[1].ParentSHAs) != 1 || commits[1].ParentSHAs[0] != shaA {
		t.Fatalf("unexpected B parents: %v", commits[1].ParentSHAs)
	}
	if len(commits[2].ParentSHAs) != 0 || !commits[2].IsInitialCommit() {
		t.Fatalf("A must be the initial commit: %v", commits[2].ParentSHAs)
	}
	if commits[0].Summary != "C" || commits[0].Author.Email != "tests@repostate.local" {
		t.Fatalf("unexpected commit fields: %+v", commits[0])
	}
}

func TestCommitsOnEmptyRepositoryIsEmpty(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	eng := newTestEngine(t, repoRoot, Options{})

	commits, err := eng.Commits(context.Background(), CommitQuery{Limit: 5})
	if err != nil {
		t.Fatalf("Commits on empty repo returned error: %v", err)
	}
	if len(commits) != 0 {
		t.Fatalf("expected no commits, got=%d", len(commits))
	}

	head, err := eng.Head(context.Background())
	if err != nil {
		t.Fatalf("Head returned error: %v", err)
	}
	if !head.Unborn || head.Name != "main" {
		t.Fatalf("unexpected unborn head: %+v", head)
	}
}

func TestBranchesHeadOnlyForCheckedOutBranch(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	mustCommitFile(t, repoRoot, "README.md", "hello\n", "initial commit")
	runGitOrFail(t, repoRoot, "branch", "feature")

	eng := newTestEngine(t, repoRoot, Options{})
	local, remote, err := eng.Branches(context.Background())
	if err != nil {
		t.Fatalf("Branches returned error: %v", err)
	}
	if len(local) != 2 || len(remote) != 0 {
		t.Fatalf("unexpected branches: local=%+v remote=%+v", local, remote)
	}
	if local[0].TargetSHA != local[1].TargetSHA {
		t.Fatalf("branches should share the same commit")
	}

	heads := 0
	for _, b := range local {
		if b.IsHead {
			heads++
			if b.Name != "main" {
				t.Fatalf("unexpected head: %q", b.Name)
			}
		}
	}
	if heads != 1 {
		t.Fatalf("expected exactly one head branch, got=%d", heads)
	}
}

func TestStatusJoinsNumstatAndKeepsBucketsDisjoint(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	mustCommitFile(t, repoRoot, "README.md", "hello\n", "initial commit")

	writeFileOrFail(t, repoRoot, "README.md", "hello\nworld\nagain\n")
	writeFileOrFail(t, repoRoot, "staged.txt", "one\ntwo\n")
	runGitOrFail(t, repoRoot, "add", "--", "staged.txt")
	writeFileOrFail(t, repoRoot, "notes/untracked.txt", "x\n")
	if err := os.WriteFile(filepath.Join(repoRoot, "image.bin"), []byte{0, 1, 2, 3, 0, 5}, 0o644); err != nil {
		t.Fatalf("failed to write binary: %v", err)
	}
	runGitOrFail(t, repoRoot, "add", "--", "image.bin")

	eng := newTestEngine(t, repoRoot, Options{})
	status, err := eng.Status(context.Background())
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}

	if status.Branch != "main" {
		t.Fatalf("unexpected branch: %q", status.Branch)
	}
	for _, f := range status.Unstaged {
		if f.Path == "README.md" && (f.Additions != 2 || f.Deletions != 0) {
			t.Fatalf("unexpected README stats: %+v", f)
		}
	}
	foundBinary := false
	for _, f := range status.Staged {
		if f.Path == "staged.txt" && f.Additions != 2 {
			t.Fatalf("unexpected staged.txt stats: %+v", f)
		}
		if f.Path == "image.bin" {
			foundBinary = true
			if f.Additions != 0 || f.Deletions != 0 {
				t.Fatalf("binary stats must be zero: %+v", f)
			}
		}
	}
	if !foundBinary {
		t.Fatalf("expected staged binary entry: %+v", status.Staged)
	}
	if len(status.Untracked) != 1 || status.Untracked[0] != "notes/untracked.txt" {
		t.Fatalf("unexpected untracked: %+v", status.Untracked)
	}
	for _, path := range status.Untracked {
		if containsFile(status.Staged, path) || containsFile(status.Unstaged, path) {
			t.Fatalf("path %q in untracked and tracked buckets", path)
		}
	}
}

func TestStageUnstageAndDiscard(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	mustCommitFile(t, repoRoot, "README.md", "hello\n", "initial commit")
	writeFileOrFail(t, repoRoot, "README.md", "changed\n")

	eng := newTestEngine(t, repoRoot, Options{})
	ctx := context.Background()

	if err := eng.Stage(ctx, []string{"README.md"}); err != nil {
		t.Fatalf("Stage returned error: %v", err)
	}
	status, _ := eng.Status(ctx)
	if !containsFile(status.Staged, "README.md") || containsFile(status.Unstaged, "README.md") {
		t.Fatalf("unexpected status after stage: %+v", status)
	}

	if err := eng.Unstage(ctx, []string{"README.md"}); err != nil {
		t.Fatalf("Unstage returned error: %v", err)
	}
	status, _ = eng.Status(ctx)
	if containsFile(status.Staged, "README.md") || !containsFile(status.Unstaged, "README.md") {
		t.Fatalf("unexpected status after unstage: %+v", status)
	}

	if err := eng.Discard(ctx, []string{"README.md"}); err != nil {
		t.Fatalf("Discard returned error: %v", err)
	}
	content, _ := os.ReadFile(filepath.Join(repoRoot, "README.md"))
	if string(content) != "hello\n" {
		t.Fatalf("discard did not restore content: %q", content)
	}
}

func TestUnstageOnUnbornHead(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	writeFileOrFail(t, repoRoot, "first.txt", "x\n")

	eng := newTestEngine(t, repoRoot, Options{})
	ctx := context.Background()
	if err := eng.Stage(ctx, []string{"first.txt"}); err != nil {
		t.Fatalf("Stage returned error: %v", err)
	}
	if err := eng.Unstage(ctx, []string{"first.txt"}); err != nil {
		t.Fatalf("Unstage on unborn HEAD returned error: %v", err)
	}
	status, _ := eng.Status(ctx)
	if len(status.Staged) != 0 || len(status.Untracked) != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestStageRejectsTraversalPath(t *testing.T) {
	runner := newFakeRunner()
	eng := New(runner, t.TempDir(), Options{})

	err := eng.Stage(context.Background(), []string{"../outside.txt"})
	if giterr.KindOf(err) != giterr.KindInvalidPath {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.count("add") != 0 {
		t.Fatalf("git must not run for rejected paths")
	}
}

func TestCommitFilesForRootAndStashWithUntracked(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	rootSHA := mustCommitFile(t, repoRoot, "README.md", "hello\n", "initial commit")

	eng := newTestEngine(t, repoRoot, Options{})
	ctx := context.Background()

	files, err := eng.CommitFiles(ctx, rootSHA)
	if err != nil {
		t.Fatalf("CommitFiles returned error: %v", err)
	}
	if len(files) != 1 || files[0].Path != "README.md" || files[0].Additions != 1 {
		t.Fatalf("unexpected root commit files: %+v", files)
	}

	writeFileOrFail(t, repoRoot, "README.md", "hello\nmore\n")
	writeFileOrFail(t, repoRoot, "fresh.txt", "new\n")
	if err := eng.StashPush(ctx, "wip", true); err != nil {
		t.Fatalf("StashPush returned error: %v", err)
	}

	stashes, err := eng.Stashes(ctx)
	if err != nil || len(stashes) != 1 {
		t.Fatalf("unexpected stashes: %+v err=%v", stashes, err)
	}
	if stashes[0].Branch != "main" {
		t.Fatalf("unexpected stash branch: %+v", stashes[0])
	}

	stashFiles, err := eng.StashFiles(ctx, 0)
	if err != nil {
		t.Fatalf("StashFiles returned error: %v", err)
	}
	if !containsFile(stashFiles, "README.md") || !containsFile(stashFiles, "fresh.txt") {
		t.Fatalf("expected tracked and untracked stash files: %+v", stashFiles)
	}
	for _, f := range stashFiles {
		if f.Path == "fresh.txt" && f.Kind != "A" {
			t.Fatalf("untracked stash entries must be added: %+v", f)
		}
	}

	if err := eng.StashPush(ctx, "", false); giterr.KindOf(err) != giterr.KindNothingToStash {
		t.Fatalf("expected nothing-to-stash error, got=%v", err)
	}
}

func TestCommitNothingToCommitIsClassified(t *testing.T) {
	repoRoot := mustInitTestRepo(t)
	mustCommitFile(t, repoRoot, "README.md", "hello\n", "initial commit")

	eng := newTestEngine(t, repoRoot, Options{})
	_, err := eng.Commit(context.Background(), CommitOptions{Message: "empty"})
	if giterr.KindOf(err) != giterr.KindNothingToCommit {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteRetriesIndexLockAndEmitsDiagnostics(t *testing.T) {
	lock := gitexec.Result{ExitCode: 128, Stderr: "fatal: Unable to create '/repo/.git/index.lock': File exists."}
	runner := newFakeRunner().on("add", lock, gitexec.Result{})

	var mu sync.Mutex
	var statuses []string
	eng := New(runner, t.TempDir(), Options{
		Sleep: noSleep,
		Observer: func(result CommandResult) {
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, result.Status)
		},
	})

	if err := eng.Stage(context.Background(), []string{"a.txt"}); err != nil {
		t.Fatalf("Stage returned error: %v", err)
	}
	if runner.count("add") != 2 {
		t.Fatalf("expected one retry, got calls=%d", runner.count("add"))
	}
	got := strings.Join(statuses, ",")
	if got != "started,retried,succeeded" {
		t.Fatalf("unexpected diagnostic lifecycle: %s", got)
	}
}

func TestWriteFailureEmitsClassifiedDiagnostic(t *testing.T) {
	runner := newFakeRunner().on("push", gitexec.Result{
		ExitCode: 1,
		Stderr:   " ! [rejected]        main -> main (fetch first)\nerror: failed to push some refs",
	})

	var last CommandResult
	eng := New(runner, t.TempDir(), Options{Observer: func(r CommandResult) { last = r }})

	err := eng.Push(context.Background(), PushOptions{})
	if giterr.KindOf(err) != giterr.KindPushRejected {
		t.Fatalf("unexpected error: %v", err)
	}
	if last.Status != CommandStatusFailed || last.ErrorKind != string(giterr.KindPushRejected) {
		t.Fatalf("unexpected diagnostic: %+v", last)
	}
	if !hasArgSequence(runner.lastArgs("push"), "push", "origin") {
		t.Fatalf("unexpected push args: %v", runner.lastArgs("push"))
	}
}

type staticTokens map[string]string

func (s staticTokens) Token(_ context.Context, host string) (string, error) {
	return s[host], nil
}

func TestNetworkCommandsInjectAuthHeaderForHTTPS(t *testing.T) {
	runner := newFakeRunner().
		on("remote", gitexec.Result{Stdout: []byte("https://github.com/acme/app.git\n")}).
		on("fetch", gitexec.Result{})

	var diagArgs []string
	eng := New(runner, t.TempDir(), Options{
		Credentials: staticTokens{"github.com": "secret-token"},
		Observer:    func(r CommandResult) { diagArgs = r.Args },
	})
	if err := eng.Fetch(context.Background(), FetchOptions{Prune: true}); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	args := runner.lastArgs("fetch")
	if len(args) < 2 || args[0] != "-c" || !strings.HasPrefix(args[1], "http.extraHeader=Authorization: Basic ") {
		t.Fatalf("expected auth header global args: %v", args)
	}
	for _, arg := range diagArgs {
		if strings.Contains(arg, "Authorization") {
			t.Fatalf("auth header leaked into diagnostics: %v", diagArgs)
		}
	}
}

func TestNetworkCommandsSkipAuthForSSH(t *testing.T) {
	runner := newFakeRunner().
		on("remote", gitexec.Result{Stdout: []byte("git@github.com:acme/app.git\n")}).
		on("push", gitexec.Result{})

	eng := New(runner, t.TempDir(), Options{Credentials: staticTokens{"github.com": "secret-token"}})
	if err := eng.Push(context.Background(), PushOptions{Branch: "main", SetUpstream: true}); err != nil {
		t.Fatalf("Push returned error: %v", err)
	}
	args := runner.lastArgs("push")
	if args[0] != "push" || !hasArgSequence(args, "--set-upstream", "origin", "main") {
		t.Fatalf("unexpected push args: %v", args)
	}
}

func TestDiffNumstatReportsBinaryAsZero(t *testing.T) {
	runner := newFakeRunner().on("diff", gitexec.Result{Stdout: []byte("-\t-\timage.png\n")})
	eng := New(runner, t.TempDir(), Options{})

	entry, ok, err := eng.DiffNumstat(context.Background(), DiffRequest{Path: "image.png"})
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if !entry.Binary || entry.Additions != 0 || entry.Deletions != 0 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestApplyPatchUsesModeFlags(t *testing.T) {
	runner := newFakeRunner().on("apply", gitexec.Result{})
	eng := New(runner, t.TempDir(), Options{})
	patch := "--- a/file.txt\n+++ b/file.txt\n@@ -1,0 +2,1 @@\n+x\n"

	if err := eng.ApplyPatch(context.Background(), patch, ApplyStage); err != nil {
		t.Fatalf("ApplyPatch returned error: %v", err)
	}
	if !hasArgSequence(runner.lastArgs("apply"), "apply", "--cached", "--unidiff-zero") {
		t.Fatalf("unexpected stage args: %v", runner.lastArgs("apply"))
	}

	if err := eng.ApplyPatch(context.Background(), patch, ApplyDiscard); err != nil {
		t.Fatalf("ApplyPatch returned error: %v", err)
	}
	for _, arg := range runner.lastArgs("apply") {
		if arg == "--cached" {
			t.Fatalf("discard must apply to the working tree: %v", runner.lastArgs("apply"))
		}
	}

	if err := eng.ApplyPatch(context.Background(), "", ApplyStage); giterr.KindOf(err) != giterr.KindPatchInvalid {
		t.Fatalf("empty patch must be rejected: %v", err)
	}
}

const worktreeOnlyStatus = "1 .M N... 100644 100644 100644 h1 h2 worktree.txt\x00"

func TestStatusKeepsEntriesWhenNumstatFails(t *testing.T) {
	runner := newFakeRunner().
		on("status", gitexec.Result{Stdout: []byte(worktreeOnlyStatus)}).
		on("diff", gitexec.Result{ExitCode: 128, Stderr: "fatal: bad object HEAD"})
	eng := New(runner, t.TempDir(), Options{})

	status, err := eng.Status(context.Background())
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if len(status.Unstaged) != 1 || status.Unstaged[0].Path != "worktree.txt" {
		t.Fatalf("unexpected unstaged entries: %+v", status.Unstaged)
	}
	if status.Unstaged[0].Additions != 0 || status.Unstaged[0].Deletions != 0 {
		t.Fatalf("line counts must stay zero: %+v", status.Unstaged[0])
	}
	if got := runner.count("diff"); got != 2 {
		t.Fatalf("unexpected numstat calls: got=%d want=2", got)
	}
}

// canceledDiffRunner devolve cancelamento só para `git diff`.
type canceledDiffRunner struct {
	*fakeRunner
}

func (r canceledDiffRunner) Run(ctx context.Context, req gitexec.Request) (gitexec.Result, error) {
	if requestSubcommand(req.Args) == "diff" {
		return gitexec.Result{}, context.Canceled
	}
	return r.fakeRunner.Run(ctx, req)
}

func TestStatusReportsCancellationDuringNumstat(t *testing.T) {
	runner := canceledDiffRunner{newFakeRunner().on("status", gitexec.Result{Stdout: []byte(worktreeOnlyStatus)})}
	eng := New(runner, t.TempDir(), Options{})

	_, err := eng.Status(context.Background())
	if giterr.KindOf(err) != giterr.KindCanceled {
		t.Fatalf("unexpected error: got=%v want=%s", err, giterr.KindCanceled)
	}
}

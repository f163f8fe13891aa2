package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"repostate/internal/diff"
	"repostate/internal/model"
)

func repoArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0]
	}
	return "."
}

func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func newStatusCommand(app func() *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show branch, upstream and changed files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := app().RepoStatus(repoArg(args))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStatus(w io.Writer, status model.RepositoryStatus) {
	branch := status.Branch
	if branch == "" {
		branch = "(detached " + shortSHA(status.HeadSHA) + ")"
	}
	fmt.Fprintf(w, "On %s", branch)
	if status.Upstream != "" {
		fmt.Fprintf(w, " -> %s [ahead %d, behind %d]", status.Upstream, status.Ahead, status.Behind)
	}
	fmt.Fprintln(w)

	printFileSection(w, "Conflicted", status.Conflicted)
	printFileSection(w, "Staged", status.Staged)
	printFileSection(w, "Unstaged", status.Unstaged)
	if len(status.Untracked) > 0 {
		fmt.Fprintln(w, "\nUntracked:")
		for _, path := range status.Untracked {
			fmt.Fprintf(w, "  ?  %s\n", path)
		}
	}
}

func printFileSection(w io.Writer, title string, files []model.FileStatus) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, file := range files {
		path := file.Path
		if file.OriginalPath != "" {
			path = file.OriginalPath + " -> " + file.Path
		}
		fmt.Fprintf(w, "  %s  %s (+%d -%d)\n", file.Kind.Code(), path, file.Additions, file.Deletions)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func newSnapshotCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [path]",
		Short: "Print the full repository snapshot as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := app().RepoSnapshot(repoArg(args))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), snapshot)
		},
	}
}

func newLogCommand(app func() *App) *cobra.Command {
	var (
		page   int
		limit  int
		branch string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "log [path]",
		Short: "List a page of commit history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			commits, err := app().RepoCommits(repoArg(args), page, limit, branch)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), commits)
			}
			now := time.Now()
			for _, commit := range commits {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s  %-14s  %s\n",
					commit.ShortSHA(), truncate(commit.Author.Name, 20), commit.RelativeDate(now), commit.Summary)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number (0-based)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (default from config)")
	cmd.Flags().StringVar(&branch, "branch", "", "branch or ref (default HEAD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func newDiffCommand(app func() *App) *cobra.Command {
	var (
		repo   string
		staged bool
		mode   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "diff <file>",
		Short: "Show the diff of one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := app().RepoDiff(repo, args[0], staged, diff.LargeFileMode(mode))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), file)
			}
			printFileDiff(cmd.OutOrStdout(), file)
			return nil
		},
	}
	cmd.Flags().StringVar(&repo, "repo", ".", "repository path")
	cmd.Flags().BoolVar(&staged, "staged", false, "diff the index against HEAD")
	cmd.Flags().StringVar(&mode, "mode", string(diff.LargeFileAuto), "large file mode: auto, forceOn, forceOff")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printFileDiff(w io.Writer, file model.FileDiff) {
	fmt.Fprintf(w, "%s %s (+%d -%d)\n", file.Status.Code(), file.Path(), file.Additions, file.Deletions)
	if file.IsBinary {
		fmt.Fprintln(w, "Binary file")
		return
	}
	for i, hunk := range file.Hunks {
		fmt.Fprintf(w, "[%d] %s\n", i, hunk.Header)
		if len(hunk.Lines) == 0 && !hunk.IsMaterialized() {
			fmt.Fprintln(w, "    (large file: hunk not materialized)")
			continue
		}
		for _, line := range hunk.Lines {
			if line.Type == model.LineHunkHeader {
				continue
			}
			fmt.Fprintf(w, "%c%s\n", line.Type.Prefix(), line.Content)
		}
	}
	if file.Truncated {
		fmt.Fprintln(w, "... [diff truncated]")
	}
}

func newStageLineCommand(app func() *App) *cobra.Command {
	var (
		repo    string
		unstage bool
		discard bool
	)
	cmd := &cobra.Command{
		Use:   "stage-line <file> <hunk> [line]",
		Short: "Stage one line (or a whole hunk) of a file",
		Long: `Applies a single line of the hunk (both indexes are 0-based, as printed by "diff").
Without a line index the whole hunk is applied.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if unstage && discard {
				return fmt.Errorf("--unstage and --discard are mutually exclusive")
			}
			hunk, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid hunk index %q", args[1])
			}
			line := -1
			if len(args) == 3 {
				if line, err = strconv.Atoi(args[2]); err != nil || line < 0 {
					return fmt.Errorf("invalid line index %q", args[2])
				}
			}

			action := diff.PartialStage
			switch {
			case unstage:
				action = diff.PartialUnstage
			case discard:
				action = diff.PartialDiscard
			}
			if err := app().RepoApplyLine(repo, action, args[0], hunk, line); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s hunk %d", action, args[0], hunk)
			if line >= 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " line %d", line)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&repo, "repo", ".", "repository path")
	cmd.Flags().BoolVar(&unstage, "unstage", false, "remove the selection from the index")
	cmd.Flags().BoolVar(&discard, "discard", false, "discard the selection from the working tree")
	return cmd
}

func newCommitCommand(app func() *App) *cobra.Command {
	var (
		repo    string
		message string
		amend   bool
	)
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit the staged changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sha, err := app().RepoCommit(repo, message, amend)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sha)
			return nil
		},
	}
	cmd.Flags().StringVar(&repo, "repo", ".", "repository path")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().BoolVar(&amend, "amend", false, "amend the previous commit")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newHistoryCommand(app func() *App) *cobra.Command {
	var (
		repo  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently journaled git commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := app().RepoHistory(repo, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tSTATUS\tEXIT\tDURATION\tKIND\tREPO")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%s\t%s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Action, r.Status, r.ExitCode, r.DurationMs, r.ErrorKind, r.Repo)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&repo, "repo", "", "only commands of this repository")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of rows")
	return cmd
}

func newWatchCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:         "watch [path]",
		Short:       "Print repository events as JSON lines until interrupted",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{annotationWatch: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			out := cmd.OutOrStdout()
			events := make(chan watchEvent, 64)
			a.OnEvent(func(eventName string, data interface{}) {
				select {
				case events <- watchEvent{Event: eventName, Data: data}:
				default:
				}
			})

			// abrir o contexto liga o watcher; o snapshot inicial vira o primeiro evento
			if _, err := a.RepoSnapshot(repoArg(args)); err != nil {
				return err
			}

			encoder := json.NewEncoder(out)
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event := <-events:
					if err := encoder.Encode(event); err != nil {
						return err
					}
				}
			}
		},
	}
}

type watchEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func newServeCommand(app func() *App) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:         "serve [path...]",
		Short:       "Serve snapshots, diffs and events over HTTP and WebSocket",
		Annotations: map[string]string{annotationWatch: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			for _, path := range args {
				if _, err := a.requireRepo(path); err != nil {
					return err
				}
			}
			listening, err := a.StartGateway(addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listening on http://%s\n", listening)
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

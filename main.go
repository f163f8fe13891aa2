package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"repostate/internal/config"
)

// Anotações de comando lidas por PersistentPreRunE.
const (
	annotationNoApp = "repostate/no-app"
	annotationWatch = "repostate/watch"
)

type rootFlags struct {
	configPath string
	trace      bool
	noJournal  bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	var app *App

	root := &cobra.Command{
		Use:           "repostate",
		Short:         "Repository state engine for Git clients",
		Long:          `Reads and mutates Git repositories through cached, signal-invalidated repository contexts.`,
		Version:       config.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationNoApp] == "true" {
				return nil
			}
			app = NewApp(AppOptions{
				ConfigPath: flags.configPath,
				Trace:      flags.trace,
				Journal:    !flags.noJournal,
				Watch:      cmd.Annotations[annotationWatch] == "true",
			})
			return app.Startup(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				app.Shutdown(context.Background())
			}
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	root.PersistentFlags().BoolVar(&flags.trace, "trace", false, "export OpenTelemetry spans to stderr")
	root.PersistentFlags().BoolVar(&flags.noJournal, "no-journal", false, "do not record commands in the journal")

	appRef := func() *App { return app }
	root.AddCommand(
		newStatusCommand(appRef),
		newSnapshotCommand(appRef),
		newLogCommand(appRef),
		newDiffCommand(appRef),
		newStageLineCommand(appRef),
		newCommitCommand(appRef),
		newHistoryCommand(appRef),
		newWatchCommand(appRef),
		newServeCommand(appRef),
		newConfigCommand(flags),
		newCredentialsCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Printf("[RepoState] %v", err)
		stop()
		os.Exit(1)
	}
}

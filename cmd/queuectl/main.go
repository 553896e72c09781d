// Command queuectl is a thin CLI shell over package queuectl's
// operational API. Per spec.md §1, the command-line surface itself
// (argument parsing, human-readable formatting) is out of the core's
// scope; this file and its siblings are that external collaborator.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// Exit codes per spec.md §6.4.
const (
	exitOK              = 0
	exitOperationFailed = 1
	exitArgError        = 2
	exitInterrupted     = 130
)

func main() {
	var rootOpts struct {
		Debug   bool
		Verbose bool

		DatabasePath string
		LogDir       string
	}

	rootCmd := &cobra.Command{
		Use:   "queuectl",
		Short: "Durable single-host background job queue",
		Long: strings.TrimSpace(`
queuectl runs shell-command jobs against a local SQLite-backed queue,
dispatching them across a pool of workers with bounded automatic retry
and a dead letter queue for jobs that exhaust their retries.
		`),
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Usage()
		},
	}
	rootCmd.PersistentFlags().BoolVar(&rootOpts.Debug, "debug", false, "output maximum logging verbosity (debug level)")
	rootCmd.PersistentFlags().BoolVarP(&rootOpts.Verbose, "verbose", "v", false, "output additional logging verbosity (info level)")
	rootCmd.MarkFlagsMutuallyExclusive("debug", "verbose")
	rootCmd.PersistentFlags().StringVar(&rootOpts.DatabasePath, "db", "./queuectl.db", "path to the queue's SQLite database file")
	rootCmd.PersistentFlags().StringVar(&rootOpts.LogDir, "log-dir", "./logs", "directory job stdout/stderr log files are written to")

	makeLogger := func() *slog.Logger {
		switch {
		case rootOpts.Debug:
			return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
		case rootOpts.Verbose:
			return slog.New(tint.NewHandler(os.Stdout, nil))
		default:
			return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelWarn}))
		}
	}

	ctx := context.Background()

	execHandlingError := func(f func() (bool, error)) {
		ok, err := f()
		if err != nil {
			fmt.Fprintf(os.Stderr, "queuectl: %s\n", err)
		}
		switch {
		case err != nil && isArgError(err):
			os.Exit(exitArgError)
		case err != nil || !ok:
			os.Exit(exitOperationFailed)
		}
	}

	env := func() *cliEnv {
		return &cliEnv{
			ctx:          ctx,
			logger:       makeLogger(),
			databasePath: rootOpts.DatabasePath,
			logDir:       rootOpts.LogDir,
		}
	}

	rootCmd.AddCommand(
		newInitCmd(env, execHandlingError),
		newEnqueueCmd(env, execHandlingError),
		newListCmd(env, execHandlingError),
		newStatusCmd(env, execHandlingError),
		newDLQCmd(env, execHandlingError),
		newConfigCmd(env, execHandlingError),
		newWorkCmd(env, execHandlingError),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitArgError)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/queuectl/queuectl"
)

// cliEnv carries the process-wide bootstrap values (out of core scope per
// spec.md §1) that every subcommand needs to build a Client.
type cliEnv struct {
	ctx          context.Context
	logger       *slog.Logger
	databasePath string
	logDir       string
}

func (e *cliEnv) client() (*queuectl.Client, error) {
	return queuectl.NewClient(e.ctx, &queuectl.Config{
		DatabasePath: e.databasePath,
		LogDir:       e.logDir,
		Logger:       e.logger,
	})
}

// isArgError reports whether err is the kind of caller mistake that maps
// to exit code 2 (argument validation error) rather than 1 (operation
// failed), per spec.md §6.4.
func isArgError(err error) bool {
	var invalidArg *queuectl.InvalidArgError
	return errors.As(err, &invalidArg)
}

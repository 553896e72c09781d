package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkCmd(env func() *cliEnv, execHandlingError func(func() (bool, error))) *cobra.Command {
	var workers int
	var drain bool

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Start a pool of workers and process jobs until stopped",
		Run: func(cmd *cobra.Command, args []string) {
			e := env()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			e.ctx = ctx

			client, err := e.client()
			if err != nil {
				fmt.Fprintf(os.Stderr, "queuectl: %s\n", err)
				os.Exit(exitOperationFailed)
			}
			defer client.Close()

			if err := client.InitStore(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "queuectl: %s\n", err)
				os.Exit(exitOperationFailed)
			}

			// WorkerPoolStart gets its own, un-cancelled context: the
			// supervisor installs its own SIGINT/SIGTERM handler and owns
			// the two-stage soft-stop/hard-stop shutdown (§4.8). Handing it
			// ctx here would let this command's own NotifyContext cancel
			// the supervisor's jobCtx on the very first signal, killing an
			// in-flight attempt instead of letting it finish or time out.
			err = client.WorkerPoolStart(context.Background(), workers, drain)

			if ctx.Err() != nil {
				fmt.Println("interrupted; workers drained")
				os.Exit(exitInterrupted)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "queuectl: %s\n", err)
				os.Exit(exitOperationFailed)
			}
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "number of concurrent workers")
	cmd.Flags().BoolVar(&drain, "drain", false, "stop automatically once the queue is empty instead of running until a signal")

	return cmd
}

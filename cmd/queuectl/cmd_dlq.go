package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/queuectl/queuectl/internal/display"
)

func newDLQCmd(env func() *cliEnv, execHandlingError func(func() (bool, error))) *cobra.Command {
	root := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and retry jobs in the dead letter queue",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead jobs",
		Run: func(cmd *cobra.Command, args []string) {
			execHandlingError(func() (bool, error) {
				e := env()
				client, err := e.client()
				if err != nil {
					return false, err
				}
				defer client.Close()

				jobs, err := client.DLQList(e.ctx, limit)
				if err != nil {
					return false, err
				}
				for _, job := range jobs {
					fmt.Printf("%-20s attempts=%d/%d last_error=%q updated=%s\n",
						job.ID, job.Attempts, job.MaxRetries+1, deref(job.LastError), display.Timestamp(&job.UpdatedAt))
				}
				return true, nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "maximum number of jobs to list")

	retry := &cobra.Command{
		Use:   "retry <id>",
		Short: "Move one dead job back to pending",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			execHandlingError(func() (bool, error) {
				e := env()
				client, err := e.client()
				if err != nil {
					return false, err
				}
				defer client.Close()

				if err := client.DLQRetry(e.ctx, args[0]); err != nil {
					return false, err
				}
				fmt.Printf("retried job %s from DLQ -> pending\n", args[0])
				return true, nil
			})
		},
	}

	retryAll := &cobra.Command{
		Use:   "retry-all",
		Short: "Move every dead job back to pending",
		Run: func(cmd *cobra.Command, args []string) {
			execHandlingError(func() (bool, error) {
				e := env()
				client, err := e.client()
				if err != nil {
					return false, err
				}
				defer client.Close()

				n, err := client.DLQRetryAll(e.ctx)
				if err != nil {
					return false, err
				}
				fmt.Printf("retried %d jobs from DLQ -> pending\n", n)
				return true, nil
			})
		},
	}

	root.AddCommand(list, retry, retryAll)
	return root
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

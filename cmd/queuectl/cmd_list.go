package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/queuectl/queuectl"
	"github.com/queuectl/queuectl/internal/display"
)

func newListCmd(env func() *cliEnv, execHandlingError func(func() (bool, error))) *cobra.Command {
	var stateFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		Run: func(cmd *cobra.Command, args []string) {
			execHandlingError(func() (bool, error) {
				e := env()
				client, err := e.client()
				if err != nil {
					return false, err
				}
				defer client.Close()

				var state *queuectl.State
				if stateFlag != "" {
					s := queuectl.State(stateFlag)
					state = &s
				}

				jobs, err := client.List(e.ctx, state, limit)
				if err != nil {
					return false, err
				}

				for _, job := range jobs {
					fmt.Printf("%-20s %-10s pri=%-4d attempts=%d/%d next_run=%s\n",
						job.ID, job.State, job.Priority, job.Attempts, job.MaxRetries+1,
						display.Timestamp(&job.NextRunAt))
				}
				return true, nil
			})
		},
	}

	cmd.Flags().StringVar(&stateFlag, "state", "", "filter by state: pending, processing, completed, dead")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of jobs to list")

	return cmd
}

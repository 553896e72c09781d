package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(env func() *cliEnv, execHandlingError func(func() (bool, error))) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue-wide job counts",
		Run: func(cmd *cobra.Command, args []string) {
			execHandlingError(func() (bool, error) {
				e := env()
				client, err := e.client()
				if err != nil {
					return false, err
				}
				defer client.Close()

				status, err := client.Status(e.ctx)
				if err != nil {
					return false, err
				}

				fmt.Printf("total:      %d\n", status.Total)
				fmt.Printf("pending:    %d\n", status.Pending)
				fmt.Printf("processing: %d\n", status.Processing)
				fmt.Printf("completed:  %d\n", status.Completed)
				fmt.Printf("dead:       %d\n", status.Dead)
				fmt.Printf("workers:    %d\n", status.WorkersActive)
				return true, nil
			})
		},
	}
}

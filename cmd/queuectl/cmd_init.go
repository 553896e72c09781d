package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(env func() *cliEnv, execHandlingError func(func() (bool, error))) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the queue database and seed default config",
		Run: func(cmd *cobra.Command, args []string) {
			execHandlingError(func() (bool, error) {
				e := env()
				client, err := e.client()
				if err != nil {
					return false, err
				}
				defer client.Close()

				if err := client.InitStore(e.ctx); err != nil {
					return false, err
				}
				fmt.Printf("initialized queue at %s\n", e.databasePath)
				return true, nil
			})
		},
	}
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newConfigCmd(env func() *cliEnv, execHandlingError func(func() (bool, error))) *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Read and write durable queue configuration",
	}

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Print one config value, or all of them if key is omitted",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			execHandlingError(func() (bool, error) {
				e := env()
				client, err := e.client()
				if err != nil {
					return false, err
				}
				defer client.Close()

				if len(args) == 1 {
					value, err := client.ConfigGet(e.ctx, args[0])
					if err != nil {
						return false, err
					}
					fmt.Println(value)
					return true, nil
				}

				all, err := client.ConfigGetAll(e.ctx)
				if err != nil {
					return false, err
				}
				keys := make([]string, 0, len(all))
				for k := range all {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("%s=%s\n", k, all[k])
				}
				return true, nil
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			execHandlingError(func() (bool, error) {
				e := env()
				client, err := e.client()
				if err != nil {
					return false, err
				}
				defer client.Close()

				if err := client.ConfigSet(e.ctx, args[0], args[1]); err != nil {
					return false, err
				}
				fmt.Printf("%s=%s\n", args[0], args[1])
				return true, nil
			})
		},
	}

	root.AddCommand(get, set)
	return root
}

package main

import (
	"fmt"

	"github.com/glimte/nativebridge/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	var showPath bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the merged configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showPath {
				path := a.configPath
				if path == "" {
					p, err := config.DefaultPath()
					if err != nil {
						return err
					}
					path = p
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			}
			return config.Write(cmd.OutOrStdout(), a.configPath)
		},
	}

	cmd.Flags().BoolVar(&showPath, "path", false, "print the config file location instead")
	return cmd
}

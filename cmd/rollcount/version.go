package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func versionText() string {
	return fmt.Sprintf("rollcount %s\n  Build time: %s\n  Git commit: %s\n", Version, BuildTime, GitCommit)
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), versionText())
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/usagebar/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "usagebar "+version.String())
		},
	}
}

package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/usagebar/internal/config"
)

func main() {
	if debugEnabled() {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	root := newRootCommand(cfg)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func debugEnabled() bool {
	return os.Getenv("USAGEBAR_DEBUG") != ""
}

func newRootCommand(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "usagebar",
		Short:        "usagebar shows how much of your Claude, Z.ai and Amp quota is used and when it resets.",
		SilenceUsage: true,
	}

	root.AddCommand(newStatusCommand(cfg))
	root.AddCommand(newRefreshCommand(cfg))
	root.AddCommand(newTierCommand(cfg))
	root.AddCommand(newWatchCommand(cfg))
	root.AddCommand(newCredsCommand(cfg))
	root.AddCommand(newHistoryCommand(cfg))
	root.AddCommand(newVersionCommand())
	return root
}

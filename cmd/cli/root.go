package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dockhand/cmd/cli/runcmd"
)

var RootCmd = &cobra.Command{
	Use:   "dockhand",
	Short: "Dockhand - an admin control plane for a container runtime",
	Long: `Dockhand is an administrative control plane over a container runtime and its
compose stacks. Long-running operations (image pulls/builds, git clones, compose
actions) run as background tasks with status polling, per-task logs and retry.`,
}

func init() {
	RootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	RootCmd.AddCommand(runcmd.Command)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

// Command managerd runs the agent manager process: the task router, agent
// registry and mailbox, automation engine, and cross-process persistence
// described by the manager's design (spec §1, §6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	built   = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "managerd: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "managerd",
		Short: "Multi-agent orchestration manager",
		Long: `managerd routes tasks across a registry of AI agents, applies
automation rules to incoming events, and persists its catalogs so a
restarted process (or a peer on the same host) picks up where the last
one left off.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, built),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to a YAML config file")

	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "managerd version %s\ncommit: %s\nbuilt: %s\n", version, commit, built)
			return nil
		},
	}
}

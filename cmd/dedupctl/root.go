package main

import (
	"github.com/spf13/cobra"

	"github.com/denisvmedia/dedupfs/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "dedupctl",
	Short: "Control-plane for a file-deduplication pipeline",
	Long: `dedupctl hosts the control plane for a file-deduplication pipeline:
job lifecycle and lease coordination for scan/hash/delete/thumbnail
workers, thumbnail queue admission, WAL checkpoint scheduling, and the
duplicate-group query engine.

Workers are external processes; dedupctl never spawns or supervises
them. It only hosts the HTTP API they and operators call against.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute adds every subcommand and runs the root command.
func Execute(args ...string) error {
	rootCmd.SetArgs(args)
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newRecoverStaleCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd.Execute()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version.String())
		},
	}
}

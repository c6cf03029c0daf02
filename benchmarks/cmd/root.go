package cmd

import "github.com/spf13/cobra"

func RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "her-replay",
		Short: "Benchmarks for the hindsight replay buffers",
	}
	AddFlags(cmd)

	cmd.AddCommand(
		BitflipCommand(),
	)

	return cmd
}

// Command arkdb serves, exports and imports schema-driven arkdb databases.
package main

import (
	"os"

	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"
)

var version = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "arkdb",
		Short:         "arkdb - schema-driven records over an embedded transactional store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	opts.register(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newTopologyCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the arkdb version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	}
}

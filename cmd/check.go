package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/hfmirror/internal/downloaders/gitsync"
	"github.com/tanq16/hfmirror/internal/output"
	"github.com/tanq16/hfmirror/internal/utils"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Show the resolved settings and verify git tooling for --git-cli",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			dir, err := resolvedCacheDir()
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			output.PrintHeader("hfmirror settings")
			output.PrintInfo(fmt.Sprintf("Endpoint: %s", utils.ResolveEndpoint(endpoint, origin)))
			output.PrintInfo(fmt.Sprintf("Cache directory: %s", dir))
			if utils.ResolveToken(token) != "" {
				output.PrintInfo("Token: set")
			} else {
				output.PrintInfo("Token: not set")
			}
			if err := gitsync.CheckTools("git", "git-lfs"); err != nil {
				if gitCLI {
					output.PrintError(err.Error())
					os.Exit(1)
				}
				output.PrintWarning(err.Error() + " (only needed with --git-cli)")
				return
			}
			output.PrintSuccess("git and git-lfs found")
		},
	}
}

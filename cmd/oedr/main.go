// Command oedr drives the Open-Ended Deep Research engine: starting and
// resuming runs, replaying their event journals, serving the HTTP status
// surface, and running scheduled maintenance.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{Use: "oedr", Short: "Open-Ended Deep Research engine"}

	root.AddCommand(
		runCMD(),
		continueCMD(),
		replayCMD(),
		listCMD(),
		diffCMD(),
		serveCMD(),
		migrateCMD(),
		daemonCMD(),
		tokenCMD(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

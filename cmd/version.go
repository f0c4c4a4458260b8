package cmd

import (
	"fmt"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/wire"
	"github.com/spf13/cobra"
)

var (
	// Version info set at build time
	Version = "0.1.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "waykbd %s\n", Version)
		fmt.Fprintf(out, "commit: %s\n", Commit)
		fmt.Fprintf(out, "built: %s\n", Date)
		fmt.Fprintf(out, "wl_keyboard: version %d\n", wire.InterfaceVersion)
		fmt.Fprintf(out, "xkbcommon: %t\n", keymap.Available())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

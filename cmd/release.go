package cmd

import (
	"fmt"
	"os"

	"github.com/bnema/waykbd/internal/seat"
	"github.com/bnema/waykbd/internal/ui"
	"github.com/spf13/cobra"
)

// releaseCmd represents the release command
var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "End any keyboard grab in a running waykbd",
	Long: `End every keyboard grab of a running "waykbd run" or "waykbd monitor" and
ungrab its input device. The running instance picks the request up within a
second.

This command is useful for keybindings in window managers like Hyprland.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := seat.DefaultTriggerFile()
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return fmt.Errorf("failed to request release: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.FormatSetupResult(true, "release requested", path))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(releaseCmd)
}

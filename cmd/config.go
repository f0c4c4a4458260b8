package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/bnema/waykbd/internal/config"
	"github.com/bnema/waykbd/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage waykbd configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		showConfig(cmd.OutOrStdout(), config.Get())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				fmt.Fprintf(out, "Configuration file already exists at: %s\n", configPath)
				fmt.Fprintln(out, "Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}

		fmt.Fprintln(out, ui.FormatSetupResult(true, "Configuration initialized", configPath))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
	},
}

func showConfig(out io.Writer, cfg *config.Config) {
	orNone := func(s string) string {
		if s == "" {
			return ui.MutedStyle.Render("(none)")
		}
		return s
	}

	fmt.Fprintln(out, ui.FormatField("Config file", config.GetConfigPath()))

	fmt.Fprintln(out, ui.HeaderStyle.MarginTop(1).Render("[keyboard]"))
	k := cfg.Keyboard
	fmt.Fprintln(out, ui.FormatField("Layout source", k.LayoutSource))
	fmt.Fprintln(out, ui.FormatField("Rules", orNone(k.Rules)))
	fmt.Fprintln(out, ui.FormatField("Model", orNone(k.Model)))
	fmt.Fprintln(out, ui.FormatField("Layout", orNone(k.Layout)))
	fmt.Fprintln(out, ui.FormatField("Variant", orNone(k.Variant)))
	fmt.Fprintln(out, ui.FormatField("Options", orNone(k.Options)))
	fmt.Fprintln(out, ui.FormatField("Repeat rate", fmt.Sprintf("%d/s", k.RepeatRate)))
	fmt.Fprintln(out, ui.FormatField("Repeat delay", fmt.Sprintf("%dms", k.RepeatDelay)))
	fmt.Fprintln(out, ui.FormatField("Track keys", fmt.Sprintf("%v", k.TrackPressedKeys)))

	fmt.Fprintln(out, ui.HeaderStyle.MarginTop(1).Render("[input]"))
	fmt.Fprintln(out, ui.FormatField("Device", orNone(cfg.Input.DevicePath)))
	fmt.Fprintln(out, ui.FormatField("Grab", fmt.Sprintf("%v", cfg.Input.Grab)))

	fmt.Fprintln(out, ui.HeaderStyle.MarginTop(1).Render("[shm] [trace] [logging]"))
	fmt.Fprintln(out, ui.FormatField("Runtime dir", orNone(cfg.SHM.RuntimeDir)))
	fmt.Fprintln(out, ui.FormatField("Trace file", orNone(cfg.Trace.Path)))
	fmt.Fprintln(out, ui.FormatField("Log level", orNone(cfg.Logging.LogLevel)))
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")
	rootCmd.AddCommand(configCmd)
}

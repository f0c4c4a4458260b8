package cmd

import (
	"github.com/bnema/waykbd/internal/config"
	"github.com/bnema/waykbd/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "waykbd",
		Short: "waykbd - Wayland seat keyboard",
		Long: `waykbd implements the compositor side of the Wayland wl_keyboard interface.
It compiles XKB keymaps, publishes them to clients through shared memory and
tracks focus, pressed keys, modifiers and grabs for a seat's keyboard.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				config.SetConfigPath(configPath)
			}
			if err := config.Init(); err != nil {
				return err
			}
			logger.SetLevel(config.Get().Logging.LogLevel)
			logger.SetLevel(logLevel)
			return nil
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

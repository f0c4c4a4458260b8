package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/waykbd/internal/config"
	"github.com/bnema/waykbd/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runNoInput bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a seat keyboard fed by an evdev device",
	Long: `Run a seat with one keyboard. Key events from an evdev keyboard are fed
to the keyboard state machine, and every outbound wl_keyboard event is logged
for a client focused on a demo surface.

Edits to the config file are applied live: repeat settings immediately, the
keymap once all keys are released. Send SIGUSR1 or touch the release file to
end any grab.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("device", "d", "", "Keyboard device path (default: first keyboard found)")
	runCmd.Flags().Bool("grab", false, "Grab the device exclusively")
	runCmd.Flags().StringP("trace", "t", "", "Write outbound events to this trace file")
	runCmd.Flags().BoolVar(&runNoInput, "no-input", false, "Do not open an input device")

	// Bind flags to viper
	viper.BindPFlag("input.device_path", runCmd.Flags().Lookup("device"))
	viper.BindPFlag("input.grab", runCmd.Flags().Lookup("grab"))
	viper.BindPFlag("trace.path", runCmd.Flags().Lookup("trace"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Get()
	s, err := newSession(ctx, cfg, sessionOptions{noInput: runNoInput})
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	config.Watch(s.applyConfig, func(err error) {
		logger.Warn("ignoring config change", "err", err)
	})

	if cfg.Keyboard.LayoutSource == config.LayoutSourceLocale1 {
		if _, err := s.followSystemLayout(ctx); err != nil {
			logger.Warn("cannot follow system layout changes", "err", err)
		}
	}

	logger.Info("keyboard running", "device", s.deviceName(), "release_file", s.release.TriggerFile())

	<-ctx.Done()
	logger.Info("shutting down")
	return s.Close()
}

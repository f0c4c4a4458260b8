package cmd

import (
	"fmt"
	"os"

	"github.com/bnema/waykbd/internal/config"
	"github.com/bnema/waykbd/internal/input"
	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/ui"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Pick the keyboard device and layout source",
	Long: `Interactively choose the evdev keyboard that feeds the seat, whether to
grab it exclusively and where the default layout comes from. The choices are
saved to the config file.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.FormatSetupHeader("waykbd setup"))

	fmt.Fprintln(out, ui.FormatSetupPhase("Input device"))
	if _, err := os.Stat("/dev/input"); err != nil {
		fmt.Fprintln(out, ui.FormatSetupResult(false, "/dev/input", err.Error()))
		return err
	}

	path, err := input.NewDeviceSelector().SelectKeyboardDevice()
	if err != nil {
		fmt.Fprintln(out, ui.FormatSetupResult(false, "keyboard", err.Error()))
		return err
	}
	fmt.Fprintln(out, ui.FormatSetupResult(true, "keyboard", path))

	cfg := config.Get()
	in := cfg.Input
	in.DevicePath = path
	kbd := cfg.Keyboard

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Grab the device exclusively?").
				Description("Other programs stop seeing its key events while waykbd runs").
				Value(&in.Grab),
			huh.NewSelect[string]().
				Title("Default layout source").
				Options(
					huh.NewOption("Config file (keyboard section)", config.LayoutSourceConfig),
					huh.NewOption("System layout (localed)", config.LayoutSourceLocale1),
					huh.NewOption("Environment ("+keymap.RuleNamesEnv+")", config.LayoutSourceEnv),
				).
				Value(&kbd.LayoutSource),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	fmt.Fprintln(out, ui.FormatSetupPhase("Saving"))
	if err := config.UpdateInput(in); err != nil {
		fmt.Fprintln(out, ui.FormatSetupResult(false, "input", err.Error()))
		return err
	}
	if err := config.UpdateKeyboard(kbd); err != nil {
		fmt.Fprintln(out, ui.FormatSetupResult(false, "keyboard", err.Error()))
		return err
	}
	fmt.Fprintln(out, ui.FormatSetupResult(true, "config", config.GetConfigPath()))
	return nil
}

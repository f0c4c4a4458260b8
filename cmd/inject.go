package cmd

import (
	"fmt"
	"time"

	"github.com/bnema/waykbd/internal/input"
	"github.com/bnema/waykbd/internal/logger"
	"github.com/spf13/cobra"
)

var (
	injectHold   time.Duration
	injectSettle time.Duration
)

var injectCmd = &cobra.Command{
	Use:   "inject CHORD...",
	Short: "Type key chords through a virtual keyboard",
	Long: `Create a uinput keyboard and type each chord in turn, for example:

  waykbd inject ctrl+alt+t
  waykbd inject h e l l o enter

Useful to drive a running "waykbd run" or "waykbd monitor" without touching
the physical keyboard. Needs write access to /dev/uinput.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInject,
}

func init() {
	injectCmd.Flags().DurationVar(&injectHold, "hold", 20*time.Millisecond, "How long modifiers stay held after the last key")
	injectCmd.Flags().DurationVar(&injectSettle, "settle", 300*time.Millisecond, "Wait after creating the device before typing")
	rootCmd.AddCommand(injectCmd)
}

func runInject(cmd *cobra.Command, args []string) error {
	chords := make([][]int, len(args))
	for i, a := range args {
		codes, err := input.ParseChord(a)
		if err != nil {
			return err
		}
		chords[i] = codes
	}

	kb, err := input.NewVirtualKeyboard("waykbd virtual keyboard")
	if err != nil {
		return err
	}
	defer kb.Close()

	// give the compositor and evdev readers time to notice the new device
	time.Sleep(injectSettle)

	for i, codes := range chords {
		logger.Debug("injecting chord", "chord", args[i])
		if err := kb.Chord(codes, injectHold); err != nil {
			return fmt.Errorf("failed to inject %q: %w", args[i], err)
		}
	}
	return nil
}

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/bnema/waykbd/internal/config"
	"github.com/bnema/waykbd/internal/logger"
	"github.com/bnema/waykbd/internal/ui"
	"github.com/bnema/waykbd/internal/wire"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// monitorBacklog bounds messages queued for the TUI
const monitorBacklog = 256

var monitorLogFile string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show keyboard state and outbound events live",
	Long: `Run the same keyboard as "run" inside a terminal UI showing focus, pressed
keys, modifiers, keymap state and the events sent to the client.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorLogFile, "log-file", "", "Write logs to this file instead of discarding them")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// the TUI owns the terminal
	var logOut io.Writer = io.Discard
	if monitorLogFile != "" {
		f, err := os.OpenFile(monitorLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger.SetOutput(logOut)
	defer logger.SetOutput(os.Stderr)

	model := ui.NewMonitorModel(keyName)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

	// the seat loop must never block on the TUI
	msgs := make(chan tea.Msg, monitorBacklog)
	done := make(chan struct{})
	defer close(done)
	forward := func(msg tea.Msg) {
		select {
		case msgs <- msg:
		default:
		}
	}
	go func() {
		for {
			select {
			case msg := <-msgs:
				p.Send(msg)
			case <-done:
				return
			}
		}
	}()

	cfg := config.Get()
	s, err := newSession(cmd.Context(), cfg, sessionOptions{
		sinks: []wire.Sink{func(e wire.Event) { forward(ui.EventMsg(e)) }},
		onChange: func(s *session) {
			forward(ui.SnapshotMsg(s.snapshot()))
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer s.Close()

	config.Watch(s.applyConfig, func(err error) {
		forward(ui.ErrorMsg{Err: err})
	})

	model.OnToggleFocus(s.toggleFocus)
	model.OnRelease(func() { s.release.Trigger("monitor") })
	s.seat.Post(func() { forward(ui.SnapshotMsg(s.snapshot())) })

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}

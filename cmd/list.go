package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/waykbd/internal/config"
	"github.com/bnema/waykbd/internal/input"
	"github.com/bnema/waykbd/internal/ui"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List keyboard devices",
	Long:  `List the evdev keyboards that can feed the seat. The configured device is marked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := input.ListKeyboards()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderDevices(devices, config.Get().Input.DevicePath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func renderDevices(devices []input.DeviceInfo, selected string) string {
	var output strings.Builder

	output.WriteString(ui.HeaderStyle.Render("Keyboards"))
	output.WriteString("\n")

	rows := make([][]string, 0, len(devices))
	for _, dev := range devices {
		marker := ""
		if selected != "" && (dev.Path == selected || dev.Symlink == selected) {
			marker = "◀"
		}
		link := dev.Symlink
		if link == "" {
			link = "-"
		}
		rows = append(rows, []string{dev.Path, dev.Name, link, marker})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ui.ColorSubtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return lipgloss.NewStyle().
					Foreground(ui.ColorPrimary).
					Bold(true).
					Padding(0, 1)
			case col == 0:
				return lipgloss.NewStyle().
					Foreground(ui.ColorInfo).
					Padding(0, 1)
			case col == 3:
				return lipgloss.NewStyle().
					Foreground(ui.ColorSuccess).
					Bold(true).
					Padding(0, 1)
			default:
				return lipgloss.NewStyle().
					Foreground(ui.ColorText).
					Padding(0, 1)
			}
		}).
		Headers("PATH", "NAME", "BY-ID", "IN USE").
		Rows(rows...)

	output.WriteString(t.String())
	output.WriteString("\n")

	count := ui.SubtleStyle.Render(fmt.Sprintf("Total: %d keyboard(s)", len(devices)))
	if len(devices) == 0 {
		count = ui.SubtleStyle.Render("No keyboards found (are you in the input group?)")
	}
	output.WriteString(count)
	return output.String()
}

// Package ui provides consistent styling and components for the waykbd CLI
package ui

import (
	"fmt"
	"strings"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/charmbracelet/lipgloss"
)

// Color palette - consistent across the application
var (
	ColorPrimary   = lipgloss.Color("39")  // Bright blue
	ColorSecondary = lipgloss.Color("205") // Pink/magenta
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorInfo      = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
	ColorMuted  = lipgloss.Color("238") // Dark gray

	ColorActive   = ColorPrimary
	ColorInactive = ColorSubtle
)

// Base styles
var (
	TextStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorMuted).
			Padding(0, 1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Width(14)

	KeyCapStyle = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorMuted).
			Padding(0, 1)

	ControlKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	ControlDescStyle = lipgloss.NewStyle().
				Foreground(ColorText)
)

// Status indicators
var (
	ActiveIndicator = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Render("●")

	InactiveIndicator = lipgloss.NewStyle().
				Foreground(ColorInactive).
				Render("○")
)

var (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "!"
	IconSetup   = "»"
	IconPhase   = "·"
)

// SpinnerDot is the spinner used by long running views
var SpinnerDot = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

func FormatControl(key, desc string) string {
	return ControlKeyStyle.Render(key) + " - " + ControlDescStyle.Render(desc)
}

func FormatStatus(active bool, status string) string {
	indicator := InactiveIndicator
	if active {
		indicator = ActiveIndicator
	}
	return indicator + " " + status
}

// FormatField renders an aligned "label value" line
func FormatField(label, value string) string {
	return LabelStyle.Render(label) + TextStyle.Render(value)
}

// modifierNames are the core xkb modifier bits in index order
var modifierNames = []string{"Shift", "Lock", "Control", "Mod1", "Mod2", "Mod3", "Mod4", "Mod5"}

// ModifierNames lists the names of the bits set in mask. Unknown bits are
// shown by index.
func ModifierNames(mask uint32) []string {
	var names []string
	for i := 0; i < 32; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		if i < len(modifierNames) {
			names = append(names, modifierNames[i])
		} else {
			names = append(names, fmt.Sprintf("Mod#%d", i))
		}
	}
	return names
}

func formatMask(mask uint32) string {
	names := ModifierNames(mask)
	if len(names) == 0 {
		return MutedStyle.Render("-")
	}
	return strings.Join(names, "+")
}

// FormatModifiers renders a modifier state on one line
func FormatModifiers(m keymap.Modifiers) string {
	return fmt.Sprintf("depressed %s  latched %s  locked %s  group %d",
		formatMask(m.Depressed), formatMask(m.Latched), formatMask(m.Locked), m.Group)
}

// FormatKeys renders pressed keys as key caps using name to label them
func FormatKeys(keys []uint32, name func(uint32) string) string {
	if len(keys) == 0 {
		return MutedStyle.Render("none")
	}
	caps := make([]string, len(keys))
	for i, k := range keys {
		label := fmt.Sprintf("%d", k)
		if name != nil {
			if n := name(k); n != "" {
				label = n
			}
		}
		caps[i] = KeyCapStyle.Render(label)
	}
	return strings.Join(caps, " ")
}

func FormatSetupHeader(title string) string {
	coloredIcon := InfoStyle.Render(IconSetup)
	header := BoldStyle.Foreground(ColorPrimary).Render(coloredIcon + " " + title)
	return header + "\n" + CreateSeparator(50, "─")
}

func FormatSetupPhase(phase string) string {
	return InfoStyle.Bold(true).Render(IconPhase + " " + phase)
}

func FormatSetupResult(success bool, step, message string) string {
	coloredIcon := ErrorStyle.Render(IconError)
	style := ErrorStyle
	if success {
		coloredIcon = SuccessStyle.Render(IconSuccess)
		style = SuccessStyle
	}

	result := "   " + coloredIcon + " " + step
	if message != "" {
		result += " - " + style.Render(message)
	}
	return result
}

// CreateSeparator creates a horizontal line separator
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}

	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}

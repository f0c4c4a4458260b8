package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bnema/waykbd/internal/config"
	"github.com/bnema/waykbd/internal/keyboard"
	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/locale1"
	"github.com/bnema/waykbd/internal/ui"
	"github.com/spf13/cobra"
)

var (
	keymapOverride keymap.Descriptor
	keymapSource   string
	keymapOutput   string
	keymapKeysyms  []string
)

var keymapCmd = &cobra.Command{
	Use:   "keymap",
	Short: "Compile and inspect keymaps",
	Long: `Compile the keymap keyboards would use and inspect the result.

The layout comes from the configured source unless overridden with the
--rules, --model, --layout, --variant and --options flags.`,
}

var keymapInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Compile the keymap and show what clients receive",
	RunE:  runKeymapInfo,
}

var keymapDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the published keymap text",
	RunE:  runKeymapDump,
}

var keymapCheckCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Check that a keymap file compiles",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeymapCheck,
}

var keymapSystemCmd = &cobra.Command{
	Use:   "system",
	Short: "Show the layout configured for the system",
	RunE:  runKeymapSystem,
}

func init() {
	flags := keymapCmd.PersistentFlags()
	flags.StringVar(&keymapOverride.Rules, "rules", "", "XKB rules")
	flags.StringVar(&keymapOverride.Model, "model", "", "XKB model")
	flags.StringVar(&keymapOverride.Layout, "layout", "", "XKB layout")
	flags.StringVar(&keymapOverride.Variant, "variant", "", "XKB variant")
	flags.StringVar(&keymapOverride.Options, "options", "", "XKB options")
	flags.StringVar(&keymapSource, "source", "", "Layout source: config, env or locale1")

	keymapDumpCmd.Flags().StringVarP(&keymapOutput, "output", "o", "", "Write to this file instead of stdout")
	keymapInfoCmd.Flags().StringSliceVar(&keymapKeysyms, "keysym", nil, "Look up the keycode of a keysym value (e.g. 0x61)")

	keymapCmd.AddCommand(keymapInfoCmd, keymapDumpCmd, keymapCheckCmd, keymapSystemCmd)
	rootCmd.AddCommand(keymapCmd)
}

// keymapDescriptor resolves the layout for the keymap commands. Flags
// replace the matching fields of the resolved descriptor.
func keymapDescriptor(cfg *config.Config) keymap.Descriptor {
	c := *cfg
	if keymapSource != "" {
		c.Keyboard.LayoutSource = keymapSource
	}
	d := resolveDescriptor(&c)

	o := keymapOverride
	if o.Rules != "" {
		d.Rules = o.Rules
	}
	if o.Model != "" {
		d.Model = o.Model
	}
	if o.Layout != "" {
		d.Layout = o.Layout
		// a new layout does not inherit the old variant
		d.Variant = o.Variant
	} else if o.Variant != "" {
		d.Variant = o.Variant
	}
	if o.Options != "" {
		d.Options = o.Options
	}
	return d
}

func buildKeymap() (*keymap.Compiled, error) {
	cfg := config.Get()
	d := keymapDescriptor(cfg)
	km, err := newBuilder(cfg).Build(d)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", d, err)
	}
	return km, nil
}

func runKeymapInfo(cmd *cobra.Command, args []string) error {
	km, err := buildKeymap()
	if err != nil {
		return err
	}
	defer km.Release()

	text, err := km.Text()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	d := km.Descriptor()
	fmt.Fprintln(out, ui.HeaderStyle.Render("Keymap"))
	fmt.Fprintln(out, ui.FormatField("Layout", d.String()))
	fmt.Fprintln(out, ui.FormatField("Rule names", d.RuleNames()))
	fmt.Fprintln(out, ui.FormatField("Format", "xkb_v1"))
	fmt.Fprintln(out, ui.FormatField("Size", fmt.Sprintf("%d bytes", km.Size())))
	fmt.Fprintln(out, ui.FormatField("Lines", strconv.Itoa(strings.Count(text, "\n"))))
	fmt.Fprintln(out, ui.FormatField("Ownership", km.Ownership().String()))

	for _, s := range keymapKeysyms {
		sym, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid keysym %q: %w", s, err)
		}
		label := ui.MutedStyle.Render("not on any key")
		if code, ok := km.Layout().KeycodeForKeysym(0, uint32(sym)); ok {
			label = fmt.Sprintf("keycode %d (%s)", code, keyName(code-keyboard.KeycodeOffset))
		}
		fmt.Fprintln(out, ui.FormatField("Keysym "+s, label))
	}
	return nil
}

func runKeymapDump(cmd *cobra.Command, args []string) error {
	km, err := buildKeymap()
	if err != nil {
		return err
	}
	defer km.Release()

	text, err := km.Text()
	if err != nil {
		return err
	}
	if keymapOutput == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	}
	return os.WriteFile(keymapOutput, []byte(text+"\n"), 0o644)
}

func runKeymapCheck(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	layout, err := keymap.NewXKBCompiler().CompileText(string(data))
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), ui.FormatSetupResult(false, args[0], err.Error()))
		return err
	}
	defer layout.Close()

	fmt.Fprintln(cmd.OutOrStdout(), ui.FormatSetupResult(true, args[0], "compiles"))
	return nil
}

func runKeymapSystem(cmd *cobra.Command, args []string) error {
	d, err := locale1.Resolve(locale1.DefaultKeyboardFile)
	if err != nil {
		return fmt.Errorf("failed to read system layout: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.FormatField("Layout", d.Layout))
	fmt.Fprintln(out, ui.FormatField("Variant", d.Variant))
	fmt.Fprintln(out, ui.FormatField("Model", d.Model))
	fmt.Fprintln(out, ui.FormatField("Options", d.Options))
	fmt.Fprintln(out, ui.FormatField("Rule names", d.RuleNames()))
	return nil
}

package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bnema/waykbd/internal/trace"
	"github.com/bnema/waykbd/internal/ui"
	"github.com/bnema/waykbd/internal/wire"
	"github.com/spf13/cobra"
)

var traceKinds []string

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect recorded event traces",
}

var traceDumpCmd = &cobra.Command{
	Use:   "dump FILE",
	Short: "Print the events of a trace file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceDump,
}

func init() {
	traceDumpCmd.Flags().StringSliceVarP(&traceKinds, "kind", "k", nil, "Only show these event kinds (key, modifiers, enter, ...)")
	traceCmd.AddCommand(traceDumpCmd)
	rootCmd.AddCommand(traceCmd)
}

func runTraceDump(cmd *cobra.Command, args []string) error {
	r, err := trace.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	return dumpTrace(cmd.OutOrStdout(), r, traceKinds)
}

func dumpTrace(out io.Writer, r *trace.Reader, kinds []string) error {
	want := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		want[strings.ToLower(strings.TrimSpace(k))] = true
	}

	var first time.Time
	shown := 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if first.IsZero() {
			first = rec.At
		}
		if len(want) > 0 && !want[rec.Event.Kind.String()] {
			continue
		}

		line := fmt.Sprintf("%s %s %s",
			ui.MutedStyle.Render(fmt.Sprintf("+%8.3fs", rec.At.Sub(first).Seconds())),
			ui.SubtleStyle.Render(fmt.Sprintf("client %d", rec.Event.Client)),
			rec.Event.String())
		if rec.Event.Kind == wire.KindKey {
			line += " " + ui.InfoStyle.Render(keyName(rec.Event.Key))
		}
		fmt.Fprintln(out, line)
		shown++
	}
	fmt.Fprintln(out, ui.SubtleStyle.Render(fmt.Sprintf("%d events", shown)))
	return nil
}

package cmds

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/alfred/pkg/tracing"
)

func newTracesCommand(opts *rootOptions) *cobra.Command {
	tracesCmd := &cobra.Command{
		Use:   "traces",
		Short: "Inspect recorded runs",
	}

	var (
		limit     int
		sessionID string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent traces",
		RunE: func(cmd *cobra.Command, args []string) error {
			tracer, err := openTraceStore(opts.settings)
			if err != nil {
				return err
			}
			defer tracer.Store().Close()

			traces, err := tracer.Store().ListTraces(cmd.Context(), tracing.ListOptions{Limit: limit, SessionID: sessionID})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tLATENCY\tTOOLS\tINPUT")
			for _, t := range traces {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%d\t%s\n",
					t.ID, humanize.Time(t.StartedAt), status(t), t.Latency.Seconds(), t.ToolCalls, shorten(t.Input, 50))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", tracing.DefaultListLimit, "Number of traces to show")
	listCmd.Flags().StringVar(&sessionID, "session", "", "Only traces of this session")

	showCmd := &cobra.Command{
		Use:   "show <trace-id>",
		Short: "Show a trace and its scores as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracer, err := openTraceStore(opts.settings)
			if err != nil {
				return err
			}
			defer tracer.Store().Close()

			t, err := tracer.Store().GetTrace(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			scores, err := tracer.Store().ListScores(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"trace": t, "scores": scores})
		},
	}

	tracesCmd.AddCommand(listCmd, showCmd)
	return tracesCmd
}

func status(t *tracing.Trace) string {
	switch {
	case !t.Success:
		return "error"
	case !t.Complete:
		return "incomplete"
	default:
		return "ok"
	}
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

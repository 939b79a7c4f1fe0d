package cmds

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newFeedbackCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <trace-id> <rating>",
		Short: "Rate an answer from 1 (poor) to 5 (good)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Errorf("rating must be a number, got %q", args[1])
			}
			tracer, err := openTraceStore(opts.settings)
			if err != nil {
				return err
			}
			defer tracer.Store().Close()

			sc, err := tracer.Feedback(cmd.Context(), args[0], rating)
			if err != nil {
				return err
			}
			fmt.Printf("Recorded %s %.0f for trace %s\n", sc.Name, sc.Value, sc.TraceID)
			return nil
		},
	}
}

// rateLast records a thumbs up (5) or down (1) on the last run of a chat.
func rateLast(ctx context.Context, a *app, runID string, good bool) {
	if a.tracer == nil {
		fmt.Println("Tracing is disabled, feedback is not recorded.")
		return
	}
	if runID == "" {
		fmt.Println("Nothing to rate yet.")
		return
	}
	rating := 1
	if good {
		rating = 5
	}
	if _, err := a.tracer.Feedback(ctx, runID, rating); err != nil {
		log.Error().Err(err).Str("trace_id", runID).Msg("alfred: feedback failed")
		fmt.Println("Could not record feedback.")
		return
	}
	fmt.Println("Thanks for your feedback!")
}

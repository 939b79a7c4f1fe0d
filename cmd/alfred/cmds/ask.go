package cmds

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/alfred/pkg/render"
	"github.com/go-go-golems/alfred/pkg/session"
)

func newAskCommand(opts *rootOptions) *cobra.Command {
	var (
		sessionID  string
		userID     string
		transcript bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask Alfred a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.settings, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			reply, err := a.manager().Chat(ctx, sessionID, userID, strings.Join(args, " "))
			p := render.NewPrinter(os.Stdout)
			if err != nil {
				log.Error().Err(err).Str("session", sessionID).Msg("alfred: run failed")
				_ = p.Print(session.Apology)
				return err
			}

			if transcript {
				md, err := render.Transcript(reply.Turns)
				if err != nil {
					return err
				}
				if err := p.Print(md); err != nil {
					return err
				}
			} else {
				answer := reply.Answer
				if !reply.Complete {
					if last, ok := reply.Turns.Last(); ok {
						answer = last.Text
					}
				}
				if err := p.Print(answer); err != nil {
					return err
				}
			}
			fmt.Fprintf(os.Stderr, "session: %s  trace: %s\n", reply.SessionID, reply.RunID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Continue this session (needs a persistent session store)")
	cmd.Flags().StringVar(&userID, "user", "", "User id recorded in traces")
	cmd.Flags().BoolVar(&transcript, "transcript", false, "Print tool calls and results too")
	return cmd
}

package cmds

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"

	"github.com/go-go-golems/alfred/pkg/render"
	"github.com/go-go-golems/alfred/pkg/session"
)

const chatHelp = `Commands:
  /good, /bad     rate the last answer
  /export [file]  write the conversation to a file
  /reset          start over
  /exit           leave`

func newChatCommand(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		userID    string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to Alfred interactively",
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
			mgr := a.manager()
			p := render.NewPrinter(os.Stdout)
			ui := &input.UI{Writer: os.Stdout, Reader: os.Stdin}

			fmt.Println("Alfred at your service. Type /help for commands.")
			lastRun := ""
			for {
				text, err := ui.Ask("You", &input.Options{HideOrder: true})
				if errors.Is(err, input.ErrInterrupted) {
					return nil
				}
				if err != nil {
					return err
				}
				text = strings.TrimSpace(text)
				if text == "" {
					continue
				}

				if strings.HasPrefix(text, "/") {
					fields := strings.Fields(text)
					switch fields[0] {
					case "/exit", "/quit":
						return nil
					case "/help":
						fmt.Println(chatHelp)
					case "/reset":
						if err := mgr.Delete(ctx, sessionID); err != nil {
							return err
						}
						sessionID = uuid.NewString()
						lastRun = ""
						fmt.Println("Conversation cleared.")
					case "/good", "/bad":
						rateLast(ctx, a, lastRun, fields[0] == "/good")
					case "/export":
						name := render.ExportFileName(time.Now())
						if len(fields) > 1 {
							name = fields[1]
						}
						if err := exportSession(ctx, a.sessions, sessionID, name); err != nil {
							log.Error().Err(err).Msg("alfred: export failed")
							fmt.Println("Export failed.")
						} else {
							fmt.Println("Conversation written to " + name)
						}
					default:
						fmt.Println("Unknown command. " + chatHelp)
					}
					continue
				}

				reply, err := mgr.Chat(ctx, sessionID, userID, text)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					log.Error().Err(err).Str("session", sessionID).Msg("alfred: run failed")
					_ = p.Print(session.Apology)
					if reply != nil {
						lastRun = reply.RunID
					}
					continue
				}
				lastRun = reply.RunID
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
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Resume this session")
	cmd.Flags().StringVar(&userID, "user", "", "User id recorded in traces")
	return cmd
}

package cmds

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/alfred/pkg/render"
	"github.com/go-go-golems/alfred/pkg/session"
)

func newExportCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a stored conversation as text",
		Long:  "Export a stored conversation as text. Only persistent session stores (redis) keep sessions across invocations.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openSessionStore(ctx, opts.settings.Sessions)
			if err != nil {
				return err
			}
			if c, ok := store.(interface{ Close() error }); ok {
				defer c.Close()
			}
			if output == "" {
				history, err := store.Load(ctx, args[0])
				if err != nil {
					return err
				}
				if err := render.Export(os.Stdout, history); err != nil {
					return err
				}
				_, err = os.Stdout.WriteString("\n")
				return err
			}
			return exportSession(ctx, store, args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func exportSession(ctx context.Context, store session.Store, id, path string) error {
	history, err := store.Load(ctx, id)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create export file")
	}
	if err := render.Export(f, history); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

package cmds

import (
	"github.com/spf13/cobra"

	"github.com/go-go-golems/alfred/pkg/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API, traces and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.settings, appOptions{withMetrics: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = opts.settings.Server.Addr
			}
			srvOpts := []server.Option{server.WithMetrics(a.metrics.Handler())}
			if a.tracer != nil {
				srvOpts = append(srvOpts, server.WithTracer(a.tracer))
			}
			return server.New(a.manager(), srvOpts...).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr)")
	return cmd
}

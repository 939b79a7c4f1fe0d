package cmds

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/alfred/pkg/evaluation"
)

func newEvaluateCommand(opts *rootOptions) *cobra.Command {
	var (
		casesFile string
		parallel  int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the evaluation queries and summarize the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cases := evaluation.DefaultCases()
			if casesFile != "" {
				var err error
				if cases, err = evaluation.LoadCases(casesFile); err != nil {
					return err
				}
			}

			a, err := newApp(ctx, opts.settings, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ev := evaluation.New(a.agent.Loop,
				evaluation.WithMiddlewares(a.middlewares()...),
				evaluation.WithParallelism(parallel),
				evaluation.WithMaxSteps(opts.settings.Agent.MaxSteps),
			)
			summary, err := ev.Run(ctx, cases)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			for _, r := range summary.Results {
				status := "ok"
				if !r.Success {
					status = "failed"
				}
				fmt.Printf("%d. [%s] %s (%.2fs)\n", r.Case, status, r.Input, r.ExecutionTime.Seconds())
			}
			fmt.Println()
			summary.Print(os.Stdout)
			return nil
		},
	}
	cmd.Flags().StringVar(&casesFile, "cases", "", "YAML file with test cases (default: built-in queries)")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "Number of cases to run at once")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full summary as JSON")
	return cmd
}

package cmds

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/alfred/pkg/config"
	"github.com/go-go-golems/alfred/pkg/logging"
)

// flagKeys maps persistent flags onto settings keys.
var flagKeys = map[string]string{
	"model":         "openai.model",
	"max-steps":     "agent.max-steps",
	"guests":        "guests.source",
	"retriever":     "guests.retriever",
	"search":        "search.provider",
	"session-store": "sessions.store",
	"trace-db":      "tracing.db",
	"no-tracing":    "",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-file":      "log.file",
	"with-caller":   "log.with-caller",
	"verbose":       "log.verbose",
}

type rootOptions struct {
	v          *viper.Viper
	configFile string
	settings   *config.Settings
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "alfred",
		Short:         "alfred is a party-planning assistant that answers with the help of tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path to config file (default ./alfred.yaml or ~/.alfred/alfred.yaml)")
	pf.String("model", "", "Chat model")
	pf.Int("max-steps", 0, "Maximum agent loop steps per question")
	pf.String("guests", "", "Guest dataset: a local json/jsonl/yaml/csv file or a hub dataset id")
	pf.String("retriever", "", "Guest retriever (keyword, vector, weaviate)")
	pf.String("search", "", "Web search provider (duckduckgo, searxng)")
	pf.String("session-store", "", "Session store (memory, redis)")
	pf.String("trace-db", "", "SQLite database for traces")
	pf.Bool("no-tracing", false, "Do not record traces")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (json, text)")
	pf.String("log-file", "", "Also log to this file, rotated")
	pf.Bool("with-caller", false, "Log caller")
	pf.Bool("verbose", false, "Verbose output")

	rootCmd.AddCommand(
		newAskCommand(opts),
		newChatCommand(opts),
		newEvaluateCommand(opts),
		newServeCommand(opts),
		newTracesCommand(opts),
		newFeedbackCommand(opts),
		newExportCommand(opts),
	)
	return rootCmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || key == "" || !f.Changed {
			continue
		}
		if err := o.v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind flag --%s", flag)
		}
	}
	if err := config.ReadConfigFile(o.v, o.configFile); err != nil {
		return err
	}
	s, err := config.Load(o.v)
	if err != nil {
		return err
	}
	if noTracing, _ := cmd.Flags().GetBool("no-tracing"); noTracing {
		s.Tracing.Enabled = false
	}
	if err := logging.InitLogger(s.Log); err != nil {
		return err
	}
	log.Debug().Str("config", o.v.ConfigFileUsed()).Msg("alfred: loaded configuration")
	o.settings = s
	return nil
}

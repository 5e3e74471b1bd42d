// Command subtrans translates subtitle segments offline with the same
// checkpointed driver the API server uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/lingotube/backend/config"
	"github.com/upb/lingotube/backend/internal/observability"
	"github.com/upb/lingotube/backend/services/session"
	"github.com/upb/lingotube/backend/services/translation"
)

// exitPaused tells scripts that a rerun will resume the translation
const exitPaused = 2

// rootOptions holds the flags shared by every subcommand
type rootOptions struct {
	logLevel  string
	logFormat string
	keys      map[string]string

	// registry replaces the real provider clients in tests
	registry session.RegistryFunc
}

// env is what a subcommand needs to reach the providers
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	sessions *session.Manager
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "subtrans",
		Short: "Translate subtitle segments with multi-provider model routing",
		Long: `subtrans translates a JSON file of subtitle segments through the configured
text-generation providers (gemini, openrouter, groq, together).

Provider keys come from GEMINI_API_KEY, OPENROUTER_API_KEY, GROQ_API_KEY and
TOGETHER_API_KEY, or from --key name=value. When every model runs out of quota
the run stops with exit code 2 after writing a checkpoint; running the same
command again resumes from it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "Log format (console or json)")
	root.PersistentFlags().StringToStringVar(&opts.keys, "key", nil, "Provider API key as name=value, overrides the environment (repeatable)")

	root.AddCommand(
		newTranslateCmd(opts),
		newModelsCmd(opts),
		newKeysCmd(opts),
		newTokenCmd(),
	)
	return root
}

// setup loads the configuration and builds a session manager without storage
func (o *rootOptions) setup(ctx context.Context) (*env, error) {
	cfg := config.Load(ctx)

	logger, err := observability.NewLogger(o.logLevel, o.logFormat)
	if err != nil {
		return nil, err
	}

	catalog, err := config.LoadCatalog(cfg.Routing.CatalogFile)
	if err != nil {
		return nil, err
	}

	defaults := session.Credentials{}
	for name, cred := range cfg.Providers.Credentials() {
		defaults[name] = cred.APIKey
	}

	sessions := session.NewManager(defaults.Merge(o.keys), session.OptionsFromConfig(cfg, catalog), nil, nil, logger)
	if o.registry != nil {
		sessions.WithRegistryFunc(o.registry)
	}
	return &env{cfg: cfg, logger: logger, sessions: sessions}, nil
}

func main() {
	if err := newRootCmd(&rootOptions{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		var paused *translation.PausedError
		if errors.As(err, &paused) {
			os.Exit(exitPaused)
		}
		os.Exit(1)
	}
}

// Package cli is the q2galaxy command line: running actions for the tool
// runner, templating tool suites, validating job configurations and
// serving the preview API.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/me/q2galaxy/internal/config"
	"github.com/me/q2galaxy/internal/logging"
	"github.com/me/q2galaxy/internal/plugin"
	"github.com/me/q2galaxy/internal/store"
)

// app carries what every command needs once flags are parsed.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *plugin.Registry

	flagDebug bool
}

// NewRootCmd creates the root cobra command for the q2galaxy CLI.
func NewRootCmd() *cobra.Command {
	a := &app{cfg: config.Default()}

	root := &cobra.Command{
		Use:   "q2galaxy",
		Short: "Galaxy tools for QIIME 2 plugins",
		Long:  "q2galaxy generates Galaxy tool descriptors for QIIME 2 plugins and runs their actions inside Galaxy jobs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringSlice("plugin-path", nil, "Directories holding plugin definitions (or Q2GALAXY_PLUGIN_PATH)")
	flags.String("log-level", a.cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", a.cfg.LogFormat, "Log format (text, json)")
	flags.String("index", "", "SQLite invocation index (or Q2GALAXY_INDEX_PATH)")
	flags.BoolVar(&a.flagDebug, "debug", false, "Shorthand for --log-level=debug")

	root.AddCommand(
		newRunCmd(a),
		newVersionCmd(a),
		newTemplateCmd(a),
		newCheckCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup layers flags over the environment over defaults, then builds the
// logger and the plugin registry.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("plugin-path") {
		cfg.PluginPath, _ = flags.GetStringSlice("plugin-path")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("index") {
		cfg.IndexPath, _ = flags.GetString("index")
	}
	if a.flagDebug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	a.registry, err = plugin.Load(a.logger, cfg.PluginPath...)
	if err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}
	a.logger.Debug("plugins loaded", "count", len(a.registry.Plugins()), "path", cfg.PluginPath)
	return nil
}

// openIndex opens the invocation index, or returns nil when none is
// configured.
func (a *app) openIndex(ctx context.Context) (store.Store, error) {
	if a.cfg.IndexPath == "" {
		return nil, nil
	}
	st, err := store.NewSQLiteStore(a.cfg.IndexPath, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return st, nil
}

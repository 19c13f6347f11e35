// Package cmd implements the estoca-worker command line.
package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/estoca-ai/estoca-worker/internal/conf"
	"github.com/estoca-ai/estoca-worker/internal/logger"
)

// BuildInfo is stamped at link time.
type BuildInfo struct {
	Version   string
	BuildDate string
}

type app struct {
	build      BuildInfo
	configFile string
	logLevel   string

	settings   *conf.Settings
	log        logger.Logger
	out        io.Writer
	httpClient *http.Client // nil uses a client built from upstream settings
}

// NewRootCommand returns the root command. Without a subcommand it serves.
func NewRootCommand(build BuildInfo) *cobra.Command {
	return newRootCommand(&app{build: build, out: os.Stdout})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "estoca-worker",
		Short:         "Offline-first caching worker for the Estoca.AI dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.SetOut(a.out)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default: estoca-worker.yaml in ., ~/.config/estoca-worker, /etc/estoca-worker)")
	flags.StringVar(&a.logLevel, "loglevel", "", "override main.loglevel (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(a),
		newVersionCommand(a),
		newSyncCommand(a),
		newPartitionsCommand(a),
		newConfigCommand(a),
	)
	return root
}

// load reads the settings and builds the process logger.
func (a *app) load() error {
	if a.settings == nil {
		settings, err := conf.Load(a.configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.settings = settings
	}
	if a.logLevel != "" {
		a.settings.Main.LogLevel = a.logLevel
	}
	if a.log == nil {
		a.log = logger.NewSlogLogger(os.Stderr, logger.ParseLevel(a.settings.Main.LogLevel), &logger.SlogOptions{
			JSON: a.settings.Main.LogJSON,
		}).With(logger.String("service", a.settings.Main.Name))
		logger.SetGlobal(a.log)
	}
	return nil
}

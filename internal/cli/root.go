// Package cli implements the sleuth command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/sleuth/config"
	"github.com/hupe1980/sleuth/logging"
)

const version = "0.1.0"

type globalFlags struct {
	configFile string
	logLevel   string
	logPretty  bool
}

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "sleuth",
		Short: "Sleuth - ask questions about a code repository",
		Long: `Sleuth answers natural-language questions about a source repository.
It dispatches specialized agents that scan, search and read the repository
(and optionally the web) and consolidates their findings into one answer.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "config file (yaml, json, toml or .env)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&g.logPretty, "log-pretty", false, "human readable logs")

	root.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	root.AddCommand(newAskCmd(g), newCacheCmd(g))

	return root
}

// load reads the configuration and applies global flag overrides.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if cmd.Flags().Changed("log-pretty") {
		cfg.LogPretty = g.logPretty
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: cmd.ErrOrStderr()})

	return cfg, logger, nil
}

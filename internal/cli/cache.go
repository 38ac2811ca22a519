package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/sleuth"
	"github.com/hupe1980/sleuth/config"
)

func newCacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or maintain the persisted tool cache",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCache(cmd, g, false, func(s *sleuth.Sleuth) error {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(s.CacheStats())
				})
			},
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Remove expired entries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCache(cmd, g, true, func(s *sleuth.Sleuth) error {
					fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries\n", s.PurgeCache())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every entry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withCache(cmd, g, true, func(s *sleuth.Sleuth) error {
					s.ClearCache()
					fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
					return nil
				})
			},
		},
	)

	return cmd
}

// withCache opens the persisted cache offline, runs fn and writes the cache
// back when save is set.
func withCache(cmd *cobra.Command, g *globalFlags, save bool, fn func(s *sleuth.Sleuth) error) (err error) {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}
	if cfg.CachePath == "" {
		return errors.New("no cache configured: set SLEUTH_CACHE_PATH or cache_path in the config file")
	}
	cfg.Provider = config.ProviderNone

	ctx := cmd.Context()
	s, err := newSleuth(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := fn(s); err != nil {
		return err
	}

	if !save {
		return s.CloseStore()
	}
	return s.Close(ctx)
}

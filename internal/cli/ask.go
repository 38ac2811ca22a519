package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/sleuth/core"
)

type askFlags struct {
	repo          string
	provider      string
	model         string
	maxIterations int
	timeout       time.Duration
	jsonOutput    bool
}

func newAskCmd(g *globalFlags) *cobra.Command {
	f := &askFlags{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about a repository",
		Example: `  sleuth ask "How does the login flow work?" --repo ./shop
  sleuth ask "Compare the file and sqlite cache stores" --provider openai --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, g, f, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&f.repo, "repo", "r", ".", "repository directory")
	cmd.Flags().StringVar(&f.provider, "provider", "", "language model provider (openai, anthropic, openrouter, none)")
	cmd.Flags().StringVar(&f.model, "model", "", "model name")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", 0, "iterations per agent")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "total time budget")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print the response as JSON")

	return cmd
}

func runAsk(cmd *cobra.Command, g *globalFlags, f *askFlags, question string) (err error) {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}
	if f.provider != "" {
		cfg.Provider = f.provider
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if f.maxIterations > 0 {
		cfg.MaxIterations = f.maxIterations
	}
	if f.timeout > 0 {
		cfg.TotalTimeout = f.timeout
		cfg.PerIterationTimeout = min(cfg.PerIterationTimeout, f.timeout)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	s, err := newSleuth(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	resp, err := s.Ask(ctx, question, f.repo)
	if err != nil {
		return err
	}

	if f.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	printResponse(cmd.OutOrStdout(), resp)
	return nil
}

func printResponse(w io.Writer, resp core.ConsolidatedResponse) {
	fmt.Fprintln(w, resp.Narrative)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "format: %s  confidence: %.2f  agents: %s  elapsed: %s\n",
		resp.FormatTag, resp.Confidence, strings.Join(resp.AgentsUsed, ","),
		(time.Duration(resp.ElapsedMs) * time.Millisecond).String())
	if resp.Diagnostic != "" {
		fmt.Fprintf(w, "note: %s\n", resp.Diagnostic)
	}
}

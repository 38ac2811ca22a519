// Package sleuth answers natural-language questions about a source repository.
//
// Most applications interact with this package by:
//  1. Creating a Sleuth via New() with a language-model gateway (or nil for offline use)
//  2. Asking questions with Ask()
//  3. Persisting the shared tool cache with SaveCache() or Close()
//
// The façade wires one cache, one tool registry, one gateway and one
// supervisor and passes them down explicitly. The registry comes preloaded
// with the built-in repository tools; more can be added with RegisterTool.
package sleuth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/sleuth/cache"
	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/gateway"
	"github.com/hupe1980/sleuth/logging"
	"github.com/hupe1980/sleuth/supervisor"
	"github.com/hupe1980/sleuth/tool"
	"github.com/hupe1980/sleuth/toolset"
)

// Options configures the Sleuth instance.
type Options struct {
	// Config bounds every run and sizes the cache.
	Config core.Config
	// CacheStore persists the tool cache. It is loaded by New and written by
	// SaveCache and Close. Nil keeps the cache in memory only.
	CacheStore cache.Store
	// Search enables the web agent.
	Search toolset.SearchProvider
	// Classifier overrides the heuristic question classifier.
	Classifier supervisor.Classifier
	// Confidence overrides the consolidation policy.
	Confidence supervisor.ConfidencePolicy
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Sleuth is the high-level façade over the supervisor and its collaborators.
type Sleuth struct {
	opts  Options
	gw    gateway.Gateway
	cache *cache.Cache
	reg   *tool.Registry
	sup   *supervisor.Supervisor
}

// New creates a Sleuth. A nil gateway runs every agent on its heuristic
// fallback. Records in Options.CacheStore are loaded before New returns.
func New(ctx context.Context, gw gateway.Gateway, optFns ...func(o *Options)) (*Sleuth, error) {
	opts := Options{
		Config: core.DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	opts.Config = opts.Config.WithDefaults()

	offline := gw == nil
	if offline {
		gw = gateway.Unavailable{Reason: "no language model configured"}
	}

	c := cache.New(func(o *cache.Options) {
		o.Capacity = opts.Config.CacheCapacity
		o.Logger = opts.Logger
	})

	if opts.CacheStore != nil {
		n, err := c.Load(ctx, opts.CacheStore)
		if err != nil {
			return nil, fmt.Errorf("load cache: %w", err)
		}
		opts.Logger.Info("sleuth.cache.loaded", "entries", n)
	}

	reg := tool.NewRegistry(func(o *tool.Options) {
		o.Cache = c
		o.TTL = opts.Config.CacheTTL
		o.DefaultTimeout = opts.Config.PerIterationTimeout
		o.Logger = opts.Logger
	})

	if err := toolset.Register(reg, func(o *toolset.Options) {
		o.Search = opts.Search
		if !offline {
			o.Gateway = gw
		}
	}); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	sup := supervisor.New(gw, reg, func(o *supervisor.Options) {
		o.Classifier = opts.Classifier
		o.Confidence = opts.Confidence
		o.Logger = opts.Logger
	})

	return &Sleuth{opts: opts, gw: gw, cache: c, reg: reg, sup: sup}, nil
}

// RegisterTool adds a custom tool and offers it to the given agent variants,
// or to every variant when none are named.
func (s *Sleuth) RegisterTool(t *tool.Tool, agents ...core.AgentType) error {
	if err := s.reg.Register(t); err != nil {
		return err
	}
	if len(agents) == 0 {
		agents = []core.AgentType{core.AgentTypeCode, core.AgentTypeDocs, core.AgentTypeWeb}
	}
	for _, a := range agents {
		s.sup.AllowTools(a, t.Name())
	}
	return nil
}

// Ask answers question about the repository rooted at dir.
func (s *Sleuth) Ask(ctx context.Context, question, dir string) (core.ConsolidatedResponse, error) {
	repo, err := OpenRepo(dir)
	if err != nil {
		return core.ConsolidatedResponse{}, err
	}
	if question == "" {
		return core.ConsolidatedResponse{}, errors.New("question is empty")
	}

	return s.sup.Run(ctx, question, repo, s.opts.Config), nil
}

// CacheStats reports cache counters.
func (s *Sleuth) CacheStats() cache.Stats { return s.cache.Stats() }

// PurgeCache drops expired entries and returns how many were removed.
func (s *Sleuth) PurgeCache() int { return s.cache.Purge() }

// ClearCache drops every entry.
func (s *Sleuth) ClearCache() { s.cache.Clear() }

// SaveCache writes live cache entries to the configured store.
func (s *Sleuth) SaveCache(ctx context.Context) error {
	if s.opts.CacheStore == nil {
		return nil
	}
	if err := s.cache.Save(ctx, s.opts.CacheStore); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	s.opts.Logger.Info("sleuth.cache.saved", "entries", s.cache.Len())
	return nil
}

// Close saves the cache and releases the store.
func (s *Sleuth) Close(ctx context.Context) error {
	if s.opts.CacheStore == nil {
		return nil
	}
	return errors.Join(s.SaveCache(ctx), s.opts.CacheStore.Close())
}

// CloseStore releases the store without saving.
func (s *Sleuth) CloseStore() error {
	if s.opts.CacheStore == nil {
		return nil
	}
	return s.opts.CacheStore.Close()
}

// OpenRepo resolves dir into a repository handle.
func OpenRepo(dir string) (core.Repo, error) {
	if dir == "" {
		dir = "."
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return core.Repo{}, fmt.Errorf("resolve repository %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return core.Repo{}, fmt.Errorf("open repository: %w", err)
	}
	if !info.IsDir() {
		return core.Repo{}, fmt.Errorf("open repository: %s is not a directory", root)
	}
	return core.Repo{Root: root, Name: filepath.Base(root)}, nil
}

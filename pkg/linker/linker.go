// Package linker ties the capability pipeline together. One link pass
// loads units from the plugin root, builds the symbol registry, and
// aggregates environment and dependency declarations into a single
// immutable snapshot. Reload builds a fresh snapshot off to the side
// and swaps it in; readers holding the old one are never interrupted.
package linker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/ld-agent/ld-agent-go/pkg/cache"
	"github.com/ld-agent/ld-agent-go/pkg/depaudit"
	"github.com/ld-agent/ld-agent-go/pkg/envtable"
	"github.com/ld-agent/ld-agent-go/pkg/loader"
	"github.com/ld-agent/ld-agent-go/pkg/logger"
	"github.com/ld-agent/ld-agent-go/pkg/registry"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// Options configures a link pass. Start from DefaultOptions or
// FromViper; a zero Options has no plugin root and links nothing.
type Options struct {
	PluginsDir      string        `mapstructure:"plugins_dir" json:"plugins_dir" yaml:"plugins_dir"`
	DescribeTimeout time.Duration `mapstructure:"describe_timeout" json:"describe_timeout" yaml:"describe_timeout"`
	CallTimeout     time.Duration `mapstructure:"call_timeout" json:"call_timeout" yaml:"call_timeout"`
	MaxOutputSize   int           `mapstructure:"max_output_size" json:"max_output_size" yaml:"max_output_size"`
	Workers         int           `mapstructure:"workers" json:"workers" yaml:"workers"`
	ExcludeWarned   bool          `mapstructure:"exclude_warned" json:"exclude_warned" yaml:"exclude_warned"`
	IgnorePatterns  []string      `mapstructure:"ignore_patterns" json:"ignore_patterns" yaml:"ignore_patterns"`
	AllowPatterns   []string      `mapstructure:"allow_patterns" json:"allow_patterns" yaml:"allow_patterns"`
	DenyPatterns    []string      `mapstructure:"deny_patterns" json:"deny_patterns" yaml:"deny_patterns"`
	SkipInit        bool          `mapstructure:"skip_init" json:"skip_init" yaml:"skip_init"`
	CacheEnabled    bool          `mapstructure:"cache_enabled" json:"cache_enabled" yaml:"cache_enabled"`
	CachePath       string        `mapstructure:"cache_path" json:"cache_path" yaml:"cache_path"`
}

// DefaultOptions returns the baseline configuration: units are read
// from ./plugins and the describe cache is on.
func DefaultOptions() Options {
	return Options{
		PluginsDir:      "plugins",
		DescribeTimeout: loader.DefaultDescribeTimeout,
		CallTimeout:     loader.DefaultCallTimeout,
		MaxOutputSize:   loader.DefaultMaxOutputSize,
		Workers:         loader.DefaultWorkers,
		CacheEnabled:    true,
	}
}

// FromViper layers the "linker" block of the active configuration over
// DefaultOptions. The top-level plugins_dir key, which the root command
// binds to --plugins-dir, takes precedence over the block.
func FromViper(ctx context.Context) Options {
	opts := DefaultOptions()
	if viper.IsSet("linker") {
		if err := viper.UnmarshalKey("linker", &opts); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to parse linker config, using defaults")
		}
	}
	if dir := viper.GetString("plugins_dir"); dir != "" {
		opts.PluginsDir = dir
	}
	return opts
}

// Snapshot is the immutable product of one link pass.
type Snapshot struct {
	Session  *loader.Session
	Registry *registry.Registry
	Env      *envtable.Table
	Deps     *depaudit.Audit
}

// Linker owns the current snapshot and the machinery to rebuild it.
type Linker struct {
	opts  Options
	cache *cache.Cache

	mu   sync.RWMutex
	snap *Snapshot
}

// Link runs the initial load pass and returns a ready Linker. The
// describe cache is best effort: if it cannot be opened the pass
// proceeds without it.
func Link(ctx context.Context, opts Options) (*Linker, error) {
	lk := &Linker{opts: opts}
	lk.openCache(ctx)

	snap, err := lk.build(ctx)
	if err != nil {
		_ = lk.Close()
		return nil, err
	}
	lk.snap = snap
	return lk, nil
}

func (lk *Linker) openCache(ctx context.Context) {
	if !lk.opts.CacheEnabled {
		return
	}
	path := lk.opts.CachePath
	if path == "" {
		p, err := cache.DefaultPath()
		if err != nil {
			logger.G(ctx).WithError(err).Debug("cannot resolve describe cache path")
			return
		}
		path = p
	}
	c, err := cache.Open(ctx, path)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("path", path).Warn("describe cache unavailable, continuing without it")
		return
	}
	lk.cache = c
}

// build runs one complete link pass off to the side: load, register,
// aggregate, then fire init hooks. The caller decides when to swap the
// result in.
func (lk *Linker) build(ctx context.Context) (*Snapshot, error) {
	log := logger.G(ctx).WithField("plugins_dir", lk.opts.PluginsDir)

	loaderOpts := []loader.Option{
		loader.WithDescribeTimeout(lk.opts.DescribeTimeout),
		loader.WithMaxOutputSize(lk.opts.MaxOutputSize),
		loader.WithWorkers(lk.opts.Workers),
		loader.WithExcludeWarned(lk.opts.ExcludeWarned),
		loader.WithIgnorePatterns(lk.opts.IgnorePatterns...),
		loader.WithAllowPatterns(lk.opts.AllowPatterns...),
		loader.WithDenyPatterns(lk.opts.DenyPatterns...),
	}
	if lk.cache != nil {
		loaderOpts = append(loaderOpts, loader.WithCache(lk.cache))
	}

	ld, err := loader.New(lk.opts.PluginsDir, loaderOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to configure loader")
	}

	session, err := ld.Load(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to link %s", lk.opts.PluginsDir)
	}

	reg := registry.New(session.Units,
		registry.WithCallTimeout(lk.opts.CallTimeout),
		registry.WithMaxOutputSize(lk.opts.MaxOutputSize),
	)

	if !lk.opts.SkipInit {
		lk.runInitHooks(ctx, session.Units)
	}

	loaded, warned, failed := session.Counts()
	log.WithField("units", len(session.Units)).
		WithField("loaded", loaded).
		WithField("warned", warned).
		WithField("failed", failed).
		WithField("symbols", reg.Len()).
		WithField("duration", session.Duration).
		Info("link pass complete")

	return &Snapshot{
		Session:  session,
		Registry: reg,
		Env:      envtable.New(session.Units),
		Deps:     depaudit.New(session.Units),
	}, nil
}

// runInitHooks invokes each loaded unit's optional init function. A
// failing hook demotes nothing: the failure lands on the unit's report
// as a warning and the unit stays registered.
func (lk *Linker) runInitHooks(ctx context.Context, units []*captypes.Unit) {
	timeout := lk.opts.CallTimeout
	if timeout <= 0 {
		timeout = loader.DefaultCallTimeout
	}
	maxOutput := lk.opts.MaxOutputSize
	if maxOutput <= 0 {
		maxOutput = loader.DefaultMaxOutputSize
	}

	for _, unit := range units {
		if unit == nil || !unit.Registrable() || unit.InitFunction == "" {
			continue
		}
		log := logger.G(ctx).WithField("unit", unit.ID).WithField("init_function", unit.InitFunction)
		if _, err := loader.Call(ctx, unit.Path, unit.InitFunction, nil, timeout, maxOutput); err != nil {
			unit.Report.AddWarning("init_failed",
				fmt.Sprintf("init function %s failed: %v", unit.InitFunction, err),
				"module_exports.init_function")
			log.WithError(err).Warn("unit init function failed")
			continue
		}
		log.Debug("unit init function completed")
	}
}

// Snapshot returns the current snapshot. Safe to hold across reloads.
func (lk *Linker) Snapshot() *Snapshot {
	lk.mu.RLock()
	defer lk.mu.RUnlock()
	return lk.snap
}

// Session returns the current load session.
func (lk *Linker) Session() *loader.Session { return lk.Snapshot().Session }

// Registry returns the current symbol registry.
func (lk *Linker) Registry() *registry.Registry { return lk.Snapshot().Registry }

// EnvTable returns the current environment variable aggregate.
func (lk *Linker) EnvTable() *envtable.Table { return lk.Snapshot().Env }

// DepAudit returns the current dependency aggregate.
func (lk *Linker) DepAudit() *depaudit.Audit { return lk.Snapshot().Deps }

// Invoke executes a registered symbol through the current snapshot.
func (lk *Linker) Invoke(ctx context.Context, qualifiedName string, args []byte) ([]byte, error) {
	return lk.Registry().Invoke(ctx, qualifiedName, args)
}

// Reload builds a fresh snapshot and swaps it in.
func (lk *Linker) Reload(ctx context.Context) error {
	snap, err := lk.build(ctx)
	if err != nil {
		return errors.Wrap(err, "reload failed")
	}
	lk.mu.Lock()
	lk.snap = snap
	lk.mu.Unlock()
	return nil
}

// Root returns the plugin root being linked.
func (lk *Linker) Root() string { return lk.opts.PluginsDir }

// Options returns a copy of the linker's configuration.
func (lk *Linker) Options() Options { return lk.opts }

// Close releases the describe cache. Cancel any Watch context first.
func (lk *Linker) Close() error {
	if lk.cache == nil {
		return nil
	}
	err := lk.cache.Close()
	lk.cache = nil
	return errors.Wrap(err, "failed to close describe cache")
}

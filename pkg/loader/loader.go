// Package loader turns a plugin root into a load session: it discovers
// candidate units, speaks the describe/call subprocess protocol to them,
// validates their declarations, and records the outcome per unit. One
// broken unit never blocks its siblings; the only fatal condition is an
// unreadable plugin root.
package loader

import (
	"context"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ld-agent/ld-agent-go/pkg/logger"
	"github.com/ld-agent/ld-agent-go/pkg/telemetry"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
	"github.com/ld-agent/ld-agent-go/pkg/validator"
	"github.com/ld-agent/ld-agent-go/pkg/version"
)

// Defaults mirror the subprocess budget most units comfortably fit.
const (
	DefaultDescribeTimeout = 10 * time.Second
	DefaultCallTimeout     = 30 * time.Second
	DefaultMaxOutputSize   = 100 * 1024
	DefaultWorkers         = 8
)

// DescribeCache lets the loader skip re-describing units whose
// entrypoint has not changed. Implementations key on path, mtime, and
// size; failures are logged and ignored, never fatal.
type DescribeCache interface {
	Get(ctx context.Context, path string, mtime time.Time, size int64) (*captypes.RawDeclarations, bool)
	Put(ctx context.Context, path string, mtime time.Time, size int64, raw *captypes.RawDeclarations) error
}

// Loader runs the discover -> describe -> validate -> gate pipeline.
type Loader struct {
	root            string
	describeTimeout time.Duration
	maxOutput       int
	workers         int
	excludeWarned   bool
	ignore          []string
	allowPatterns   []string
	denyPatterns    []string
	allow           []glob.Glob
	deny            []glob.Glob
	cache           DescribeCache
	hostPlatform    string
}

// Option customizes a Loader.
type Option func(*Loader)

// WithDescribeTimeout bounds each unit's describe call.
func WithDescribeTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.describeTimeout = d
		}
	}
}

// WithMaxOutputSize caps the describe payload size in bytes.
func WithMaxOutputSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxOutput = n
		}
	}
}

// WithWorkers sets how many units are described in parallel.
func WithWorkers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithExcludeWarned excludes units whose validation produced warnings
// from the registry. They remain listed, marked failed by policy.
func WithExcludeWarned(exclude bool) Option {
	return func(l *Loader) { l.excludeWarned = exclude }
}

// WithIgnorePatterns skips root entries matching any of the given
// doublestar patterns before they are classified.
func WithIgnorePatterns(patterns ...string) Option {
	return func(l *Loader) { l.ignore = append(l.ignore, patterns...) }
}

// WithAllowPatterns restricts linking to unit ids matching at least one
// pattern. An empty allow list admits every unit.
func WithAllowPatterns(patterns ...string) Option {
	return func(l *Loader) { l.allowPatterns = append(l.allowPatterns, patterns...) }
}

// WithDenyPatterns excludes unit ids matching any of the given patterns.
func WithDenyPatterns(patterns ...string) Option {
	return func(l *Loader) { l.denyPatterns = append(l.denyPatterns, patterns...) }
}

// WithCache plugs in a describe cache.
func WithCache(cache DescribeCache) Option {
	return func(l *Loader) { l.cache = cache }
}

// WithHostPlatform overrides the platform used for compatibility
// gating. Tests use this; production code relies on the default.
func WithHostPlatform(platform string) Option {
	return func(l *Loader) { l.hostPlatform = platform }
}

// New builds a Loader for the given plugin root.
func New(root string, opts ...Option) (*Loader, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve plugin root %s", root)
	}

	l := &Loader{
		root:            abs,
		describeTimeout: DefaultDescribeTimeout,
		maxOutput:       DefaultMaxOutputSize,
		workers:         DefaultWorkers,
		hostPlatform:    hostPlatform(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.allow, err = compilePatterns(l.allowPatterns)
	if err != nil {
		return nil, errors.Wrap(err, "invalid allow pattern")
	}
	l.deny, err = compilePatterns(l.denyPatterns)
	if err != nil {
		return nil, errors.Wrap(err, "invalid deny pattern")
	}
	return l, nil
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %q", p)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// hostPlatform maps GOOS onto the platform literals units declare.
func hostPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		return captypes.PlatformMacOS
	case "windows":
		return captypes.PlatformWindows
	case "linux":
		return captypes.PlatformLinux
	default:
		return runtime.GOOS
	}
}

// Load runs the full pipeline. Describe and validate run on parallel
// workers that share nothing; results flow back over a channel and a
// single goroutine commits them in discovery order.
func (l *Loader) Load(ctx context.Context) (*Session, error) {
	session := NewSession(l.root)
	log := logger.G(ctx).WithField("session", session.ID).WithField("root", l.root)

	start := time.Now()
	cands, diags, err := l.discover(ctx)
	if err != nil {
		return nil, err
	}
	session.Diagnostics = diags

	n := len(cands)
	log.WithField("candidates", n).Debug("discovery complete")
	units := make([]*captypes.Unit, n)

	if n > 0 {
		workers := l.workers
		if workers > n {
			workers = n
		}

		type job struct {
			idx  int
			cand candidate
		}
		type result struct {
			idx  int
			unit *captypes.Unit
		}

		jobs := make(chan job)
		results := make(chan result, workers)

		for w := 0; w < workers; w++ {
			go func() {
				for j := range jobs {
					results <- result{idx: j.idx, unit: l.loadOne(ctx, j.cand)}
				}
			}()
		}
		go func() {
			for i, c := range cands {
				jobs <- job{idx: i, cand: c}
			}
			close(jobs)
		}()

		// Single-writer commit: only this goroutine touches the slice.
		for received := 0; received < n; received++ {
			r := <-results
			units[r.idx] = r.unit
		}
	}

	session.Units = units
	session.Duration = time.Since(start)

	loaded, warned, failed := session.Counts()
	log.WithField("loaded", loaded).
		WithField("warned", warned).
		WithField("failed", failed).
		WithField("duration", session.Duration).
		Info("link session complete")

	return session, nil
}

// loadOne takes a candidate through describe, validation, and the
// compatibility gate. It always returns a unit record; failures land on
// the record, not in an error.
func (l *Loader) loadOne(ctx context.Context, cand candidate) *captypes.Unit {
	unit := &captypes.Unit{
		ID:    cand.id,
		Kind:  cand.kind,
		Path:  cand.path,
		Dir:   cand.dir,
		State: captypes.StateLoading,
	}
	log := logger.G(ctx).WithField("unit", cand.id)

	if cand.err != nil {
		return l.fail(ctx, unit, cand.err)
	}
	if le := l.filtered(cand.id); le != nil {
		return l.fail(ctx, unit, le)
	}

	raw, le := l.describe(ctx, cand)
	if le != nil {
		return l.fail(ctx, unit, le)
	}
	raw.HasDocFile = cand.hasDoc
	unit.Doc = raw.Doc

	res := validator.Validate(raw)
	unit.Report = res.Report
	unit.EnvVars = res.EnvVars
	unit.Dependencies = res.Dependencies

	switch res.Report.Status() {
	case captypes.StatusFailed:
		return l.fail(ctx, unit, captypes.NewLoadError(captypes.LoadErrValidation,
			"validation failed with %d error(s)", len(res.Report.Errors())))
	case captypes.StatusWarned:
		if l.excludeWarned {
			return l.fail(ctx, unit, captypes.NewLoadError(captypes.LoadErrPolicy,
				"validation produced %d warning(s) and the link policy excludes warned units", len(res.Report.Warnings())))
		}
	}

	if le := l.compatGate(res.Info); le != nil {
		return l.fail(ctx, unit, le)
	}

	unit.State = captypes.StateLoaded
	unit.Info = res.Info
	unit.Exports = res.Exports
	unit.InitFunction = res.InitFunction
	log.WithField("status", res.Report.Status()).Debug("unit loaded")
	return unit
}

// describe consults the cache before spawning the unit.
func (l *Loader) describe(ctx context.Context, cand candidate) (*captypes.RawDeclarations, *captypes.LoadError) {
	log := logger.G(ctx).WithField("unit", cand.id)

	if l.cache != nil {
		if raw, ok := l.cache.Get(ctx, cand.path, cand.mtime, cand.size); ok {
			log.Debug("describe cache hit")
			return raw, nil
		}
	}

	var raw *captypes.RawDeclarations
	var le *captypes.LoadError
	_ = telemetry.WithSpan(ctx, "loader.describe", func(ctx context.Context) error {
		raw, le = describeUnit(ctx, cand.path, l.describeTimeout, l.maxOutput)
		if le != nil {
			return le
		}
		return nil
	}, attribute.String("unit.id", cand.id), attribute.String("unit.path", cand.path))
	if le != nil {
		return nil, le
	}

	if l.cache != nil {
		if err := l.cache.Put(ctx, cand.path, cand.mtime, cand.size, raw); err != nil {
			log.WithError(err).Debug("describe cache write failed")
		}
	}
	return raw, nil
}

// filtered applies the allow/deny patterns to a unit id.
func (l *Loader) filtered(id string) *captypes.LoadError {
	for _, g := range l.deny {
		if g.Match(id) {
			return captypes.NewLoadError(captypes.LoadErrFiltered, "unit id %q matches a deny pattern", id)
		}
	}
	if len(l.allow) == 0 {
		return nil
	}
	for _, g := range l.allow {
		if g.Match(id) {
			return nil
		}
	}
	return captypes.NewLoadError(captypes.LoadErrFiltered, "unit id %q matches no allow pattern", id)
}

// compatGate rejects units whose platform or runtime requirement the
// host cannot meet. Units that already failed shape validation never
// reach it.
func (l *Loader) compatGate(info *captypes.ModuleInfo) *captypes.LoadError {
	if info == nil {
		return nil
	}
	if info.Platform != "" && info.Platform != captypes.PlatformAny && info.Platform != l.hostPlatform {
		return captypes.NewLoadError(captypes.LoadErrIncompatible,
			"unit requires platform %s, host is %s", info.Platform, l.hostPlatform)
	}
	ok, err := version.Satisfies(info.RuntimeRequires)
	if err != nil {
		// Unparsable constraints already drew a validation warning.
		return nil
	}
	if !ok {
		return captypes.NewLoadError(captypes.LoadErrIncompatible,
			"unit requires runtime %s, host is %s", info.RuntimeRequires, version.Version)
	}
	return nil
}

func (l *Loader) fail(ctx context.Context, unit *captypes.Unit, le *captypes.LoadError) *captypes.Unit {
	unit.State = captypes.StateFailed
	unit.LoadErr = le
	logger.G(ctx).WithField("unit", unit.ID).WithField("kind", le.Kind).Warn(le.Message)
	return unit
}

// Root returns the absolute plugin root this loader scans.
func (l *Loader) Root() string {
	return l.root
}

// MaxOutput returns the subprocess output cap so callers invoking
// symbols share the loader's budget.
func (l *Loader) MaxOutput() int {
	return l.maxOutput
}

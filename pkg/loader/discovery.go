package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/ld-agent/ld-agent-go/pkg/logger"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// candidate is one discovery hit: an entry in the plugin root that
// declared itself a unit, plus whatever went wrong classifying it.
type candidate struct {
	id     string
	kind   captypes.Kind
	path   string // entrypoint, absolute
	dir    string // containing directory, absolute
	err    *captypes.LoadError
	hasDoc bool
	mtime  time.Time
	size   int64
}

// discover performs the shallow scan of the plugin root. The returned
// diagnostics carry discovery-level conflicts (duplicate unit ids) that
// belong to the session rather than to any single unit.
//
// A missing root yields zero candidates and no error; only an
// unreadable root is fatal.
func (l *Loader) discover(ctx context.Context) ([]candidate, []captypes.Check, error) {
	log := logger.G(ctx).WithField("root", l.root)

	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("plugin root does not exist, nothing to link")
			return nil, nil, nil
		}
		return nil, nil, errors.Wrapf(err, "failed to read plugin root %s", l.root)
	}

	var (
		cands []candidate
		diags []captypes.Check
		seen  = map[string]string{} // unit id -> path that claimed it
	)

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if l.ignored(name) {
			log.WithField("entry", name).Debug("entry matches ignore pattern, skipping")
			continue
		}

		full := filepath.Join(l.root, name)
		var cand *candidate
		if entry.IsDir() {
			cand = l.classifyDir(ctx, name, full)
		} else {
			cand = l.classifyFile(ctx, name, full)
		}
		if cand == nil {
			continue
		}

		if prev, dup := seen[cand.id]; dup {
			diags = append(diags, captypes.Check{
				Severity: captypes.SeverityWarning,
				Code:     "duplicate_unit",
				Message:  fmt.Sprintf("unit id %q already claimed by %s; skipping %s", cand.id, prev, full),
				Path:     full,
			})
			log.WithField("unit", cand.id).WithField("entry", name).Warn("duplicate unit id, skipping later candidate")
			continue
		}
		seen[cand.id] = full
		cands = append(cands, *cand)
	}

	return cands, diags, nil
}

// classifyFile treats executable regular files as single-file units.
// Everything else in the root is silently ignored.
func (l *Loader) classifyFile(ctx context.Context, name, full string) *candidate {
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	if info.Mode()&0111 == 0 {
		logger.G(ctx).WithField("entry", name).Debug("file is not executable, skipping")
		return nil
	}

	id := strings.TrimSuffix(name, filepath.Ext(name))
	if id == "" {
		id = name
	}
	return &candidate{
		id:    id,
		kind:  captypes.KindSingleFile,
		path:  full,
		dir:   filepath.Dir(full),
		mtime: info.ModTime(),
		size:  info.Size(),
	}
}

// classifyDir treats directories carrying a plugin.yaml as package
// units. A directory that claims to be a unit but has a broken manifest
// or entrypoint still becomes a unit; it just fails to load.
func (l *Loader) classifyDir(ctx context.Context, name, full string) *candidate {
	manifestPath := filepath.Join(full, ManifestName)
	if _, err := os.Stat(manifestPath); err != nil {
		logger.G(ctx).WithField("entry", name).Debug("directory has no manifest, skipping")
		return nil
	}

	cand := &candidate{
		id:   name,
		kind: captypes.KindPackage,
		dir:  full,
	}
	if _, err := os.Stat(filepath.Join(full, "README.md")); err == nil {
		cand.hasDoc = true
	}

	manifest, err := readManifest(manifestPath)
	if err != nil {
		cand.err = captypes.NewLoadError(captypes.LoadErrDecode, "unreadable manifest: %v", err)
		return cand
	}

	entry := filepath.Join(full, manifest.Entrypoint)
	info, err := os.Stat(entry)
	switch {
	case err != nil:
		cand.err = captypes.NewLoadError(captypes.LoadErrSpawn, "entrypoint %s does not exist", manifest.Entrypoint)
	case info.Mode()&0111 == 0:
		cand.err = captypes.NewLoadError(captypes.LoadErrSpawn, "entrypoint %s is not executable", manifest.Entrypoint)
	default:
		cand.path = entry
		cand.mtime = info.ModTime()
		cand.size = info.Size()
	}
	return cand
}

func (l *Loader) ignored(name string) bool {
	for _, pattern := range l.ignore {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

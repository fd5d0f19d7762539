package linker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/ld-agent/ld-agent-go/pkg/logger"
)

const (
	DefaultDebounce      = 500 * time.Millisecond
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
)

// fileEvent is a filesystem change inside the plugin root.
type fileEvent struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

// WatchOptions tunes Watch. Zero values fall back to the defaults.
type WatchOptions struct {
	Debounce      time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce"`
	RetryAttempts uint          `mapstructure:"retry_attempts" json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" json:"retry_delay" yaml:"retry_delay"`

	// OnReload is called after each successful relink with the new
	// snapshot. Optional.
	OnReload func(*Snapshot)
}

// Watch follows the plugin root and relinks after each debounced burst
// of changes. It blocks until ctx is cancelled. A reload that keeps
// failing past its retries is logged and the previous snapshot stays
// in place.
func (lk *Linker) Watch(ctx context.Context, opts WatchOptions) error {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	if err := addWatchDirs(ctx, watcher, lk.opts.PluginsDir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", lk.opts.PluginsDir)
	}

	log := logger.G(ctx).WithField("plugins_dir", lk.opts.PluginsDir)
	log.WithField("debounce", debounce).Info("watching plugin root")

	events := make(chan fileEvent)
	debouncedEvents := make(chan fileEvent)

	go debounceFileEvents(ctx, events, debouncedEvents, debounce)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Chmod matters here: flipping the executable bit
				// changes whether a file is a unit candidate.
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) == 0 {
					continue
				}
				select {
				case events <- fileEvent{Path: event.Name, Op: event.Op, Time: time.Now()}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Error("file watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-debouncedEvents:
			if !ok {
				return nil
			}
			drainEvents(debouncedEvents)
			log.WithField("file", event.Path).
				WithField("operation", event.Op.String()).
				Info("change detected, relinking")
			if err := lk.reloadWithRetry(ctx, opts); err != nil {
				log.WithError(err).Error("relink failed, keeping previous snapshot")
				continue
			}
			// New package directories need their own watch entries.
			if err := addWatchDirs(ctx, watcher, lk.opts.PluginsDir); err != nil {
				log.WithError(err).Warn("failed to refresh watched directories")
			}
			if opts.OnReload != nil {
				opts.OnReload(lk.Snapshot())
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (lk *Linker) reloadWithRetry(ctx context.Context, opts WatchOptions) error {
	attempts := opts.RetryAttempts
	if attempts == 0 {
		attempts = DefaultRetryAttempts
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	return retry.Do(
		func() error { return lk.Reload(ctx) },
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying relink")
		}),
	)
}

// addWatchDirs registers the root and every package directory under
// it. fsnotify tolerates re-adding paths, so Watch calls this again
// after each relink to pick up new directories.
func addWatchDirs(ctx context.Context, watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		logger.G(ctx).WithField("directory", path).Debug("adding directory to watcher")
		return watcher.Add(path)
	})
}

// drainEvents collapses a burst that debounced into several events so
// one relink covers all of them.
func drainEvents(ch <-chan fileEvent) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// debounceFileEvents delivers at most one event per path per delay
// window, resetting the window whenever the path changes again.
func debounceFileEvents(ctx context.Context, input <-chan fileEvent, output chan<- fileEvent, delay time.Duration) {
	pending := make(map[string]*time.Timer)

	for {
		select {
		case event, ok := <-input:
			if !ok {
				for _, timer := range pending {
					timer.Stop()
				}
				return
			}
			if timer, exists := pending[event.Path]; exists {
				timer.Stop()
				delete(pending, event.Path)
			}

			eventCopy := event
			pending[event.Path] = time.AfterFunc(delay, func() {
				select {
				case output <- eventCopy:
				case <-ctx.Done():
				}
			})
		case <-ctx.Done():
			for _, timer := range pending {
				timer.Stop()
			}
			return
		}
	}
}

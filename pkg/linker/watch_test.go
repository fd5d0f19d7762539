package linker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebounceFileEvents_CollapsesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan fileEvent)
	output := make(chan fileEvent, 8)
	go debounceFileEvents(ctx, input, output, 30*time.Millisecond)

	for i := 0; i < 5; i++ {
		input <- fileEvent{Path: "/units/tide.sh", Time: time.Now()}
	}

	select {
	case ev := <-output:
		assert.Equal(t, "/units/tide.sh", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced event never arrived")
	}

	select {
	case ev := <-output:
		t.Fatalf("burst produced a second event: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDebounceFileEvents_TracksPathsIndependently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan fileEvent)
	output := make(chan fileEvent, 8)
	go debounceFileEvents(ctx, input, output, 20*time.Millisecond)

	input <- fileEvent{Path: "/units/a", Time: time.Now()}
	input <- fileEvent{Path: "/units/b", Time: time.Now()}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-output:
			got[ev.Path] = true
		case <-time.After(2 * time.Second):
			t.Fatal("expected two debounced events")
		}
	}
	assert.True(t, got["/units/a"])
	assert.True(t, got["/units/b"])
}

func TestWatch_RelinksOnChange(t *testing.T) {
	root := t.TempDir()
	writeExecutable(t, filepath.Join(root, "tide.sh"), scriptFor(t, unitPayload("tide")))

	lk := mustLink(t, testOptions(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Snapshot, 8)
	done := make(chan error, 1)
	go func() {
		done <- lk.Watch(ctx, WatchOptions{
			Debounce:      50 * time.Millisecond,
			RetryAttempts: 1,
			RetryDelay:    10 * time.Millisecond,
			OnReload:      func(s *Snapshot) { reloaded <- s },
		})
	}()

	// Give the watcher a moment to register before changing the root.
	time.Sleep(200 * time.Millisecond)
	writeExecutable(t, filepath.Join(root, "weather"), scriptFor(t, unitPayload("weather")))

	deadline := time.After(5 * time.Second)
waitForUnit:
	for {
		select {
		case snap := <-reloaded:
			if _, ok := snap.Registry.Resolve("weather.ping"); ok {
				break waitForUnit
			}
		case <-deadline:
			t.Fatal("watch never picked up the new unit")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on context cancellation")
	}
}

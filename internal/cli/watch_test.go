package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchLoop_Debounces(t *testing.T) {
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var reruns []string
	rerun := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		reruns = append(reruns, name)
	}
	relevant := func(name string) bool { return filepath.Ext(name) == ".yaml" }

	var out bytes.Buffer
	opts := NewOptions()
	opts.Stdout = &out

	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, events, errs, relevant, 50*time.Millisecond, rerun, opts)
	}()

	// A burst of writes triggers a single rerun.
	events <- fsnotify.Event{Name: "set.yaml", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "set.yaml", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "notes.txt", Op: fsnotify.Write}
	events <- fsnotify.Event{Name: "set.yaml", Op: fsnotify.Chmod}
	errs <- errors.New("transient")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reruns) == 1
	}, time.Second, 5*time.Millisecond)

	events <- fsnotify.Event{Name: "other.yaml", Op: fsnotify.Create}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reruns) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"set.yaml", "other.yaml"}, reruns)
	assert.Contains(t, out.String(), "Watch error: transient")
}

func TestWatchLoop_ClosedEvents(t *testing.T) {
	events := make(chan fsnotify.Event)
	close(events)

	err := watchLoop(context.Background(), events, make(chan error), func(string) bool { return true },
		time.Millisecond, func(string) {}, NewOptions())
	assert.NoError(t, err)
}

func TestWatchLoop_ZeroDebounceStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reruns := 0
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, make(chan fsnotify.Event), make(chan error), func(string) bool { return true },
			0, func(string) { reruns++ }, NewOptions())
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watchLoop did not return after cancel")
	}
	assert.Zero(t, reruns)
}

func TestWatchTargets(t *testing.T) {
	dir := inTempDir(t)
	opts := NewOptions()

	paths, relevant := watchTargets(opts, policyRunFlags{file: "set.yaml", results: "results.json"})
	require.Len(t, paths, 1)
	assert.True(t, relevant(filepath.Join(dir, "set.yaml")))
	assert.True(t, relevant("results.json"))
	assert.False(t, relevant(filepath.Join(dir, "other.yaml")))

	_, relevant = watchTargets(opts, policyRunFlags{dir: "policies", results: "results.json"})
	assert.True(t, relevant(filepath.Join(dir, "policies", "new.deke")))
	assert.False(t, relevant(filepath.Join(dir, "policies", "notes.txt")))
}

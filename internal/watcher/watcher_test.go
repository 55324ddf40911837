package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/ingest"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/thumbnail"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vectorindex"
)

type noopEmbedder struct{}

func (noopEmbedder) IsReady() bool                        { return false }
func (noopEmbedder) EmbedImage(string) ([]float32, error) { return nil, nil }

func newTestWatcher(t *testing.T, root string, opts ...Option) (*Watcher, store.Repository) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	pipeline := ingest.New(repo, thumbnail.New(t.TempDir(), 256), noopEmbedder{}, vectorindex.New(), false)
	opts = append([]Option{WithDebounceTime(50 * time.Millisecond), WithPollInterval(20 * time.Millisecond)}, opts...)
	w, err := New([]string{root}, pipeline, opts...)
	require.NoError(t, err)
	return w, repo
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcherIndexesNewFile(t *testing.T) {
	root := t.TempDir()
	var events []string
	w, repo := newTestWatcher(t, root, WithEventCallback(func(event, path string) {
		events = append(events, event)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(50 * time.Millisecond) // let the watcher finish registering directories

	path := filepath.Join(root, "new.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake-jpeg-bytes"), 0o644))

	waitFor(t, 2*time.Second, func() bool {
		found, err := repo.FindByPath(path)
		return err == nil && found != nil
	})

	waitFor(t, time.Second, func() bool { return len(events) > 0 })
}

func TestWatcherRemovesDeletedFileImmediately(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake-jpeg-bytes"), 0o644))

	w, repo := newTestWatcher(t, root)
	_, err := w.pipeline.IndexFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.Remove(path))

	waitFor(t, 2*time.Second, func() bool {
		found, err := repo.FindByPath(path)
		return err == nil && found == nil
	})
}

func TestWatcherCoalescesSustainedWriteBurst(t *testing.T) {
	root := t.TempDir()
	var events []string
	w, repo := newTestWatcher(t, root, WithEventCallback(func(event, path string) {
		events = append(events, event)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(root, "burst.jpg")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	// Keep touching the file for longer than the debounce window (50ms) so
	// that, under the broken fixed-ticker behavior, it would have been
	// flushed mid-burst; under the age-threshold behavior it must not be
	// indexed until the writes actually stop.
	burstDeadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(burstDeadline) {
		require.NoError(t, os.WriteFile(path, []byte("v-again"), 0o644))
		time.Sleep(10 * time.Millisecond)

		found, err := repo.FindByPath(path)
		require.NoError(t, err)
		require.Nil(t, found, "file must not be indexed while writes are still arriving")
	}

	waitFor(t, 2*time.Second, func() bool {
		found, err := repo.FindByPath(path)
		return err == nil && found != nil
	})

	indexCount := 0
	for _, e := range events {
		if e == "index" {
			indexCount++
		}
	}
	require.Equal(t, 1, indexCount, "a sustained burst on one file must coalesce into a single re-index")
}

func TestWatcherDropsCreateEventsWhenAutoIndexDisabled(t *testing.T) {
	root := t.TempDir()
	w, repo := newTestWatcher(t, root, WithAutoIndex(false))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(root, "skipped.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake-jpeg-bytes"), 0o644))
	time.Sleep(200 * time.Millisecond)

	found, err := repo.FindByPath(path)
	require.NoError(t, err)
	require.Nil(t, found, "create events must be dropped while auto-index is disabled")

	w.SetAutoIndex(true)
	require.NoError(t, os.WriteFile(path, []byte("fake-jpeg-bytes-again"), 0o644))
	waitFor(t, 2*time.Second, func() bool {
		found, err := repo.FindByPath(path)
		return err == nil && found != nil
	})
}

func TestShouldSkipDirMatchesDefaultIgnoreList(t *testing.T) {
	require.True(t, shouldSkipDir("node_modules"))
	require.True(t, shouldSkipDir(".git"))
	require.False(t, shouldSkipDir("vacation-photos"))
}

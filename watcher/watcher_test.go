package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papyrus-systems/papyrus/core"
	"github.com/papyrus-systems/papyrus/ingestion"
	"github.com/papyrus-systems/papyrus/parser"
	"github.com/papyrus-systems/papyrus/parser/markdown"
	storagebadger "github.com/papyrus-systems/papyrus/storage/badger"
)

// fakeSubmitter records submissions and can simulate a full queue.
type fakeSubmitter struct {
	mu          sync.Mutex
	submissions []*ingestion.Submission
	taskIDs     []string
	queueFull   bool
	next        int
}

func (f *fakeSubmitter) Submit(ctx context.Context, sub *ingestion.Submission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queueFull {
		return "", ingestion.ErrQueueFull
	}
	f.next++
	id := fmt.Sprintf("task-%d", f.next)
	f.submissions = append(f.submissions, sub)
	f.taskIDs = append(f.taskIDs, id)
	return id, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

func (f *fakeSubmitter) lastTaskID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.taskIDs[len(f.taskIDs)-1]
}

func (f *fakeSubmitter) lastPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions[len(f.submissions)-1].Path
}

type watcherFixture struct {
	watcher   *Watcher
	submitter *fakeSubmitter
	stores    *storagebadger.MemoryStores
	root      string
}

func newWatcherFixture(t *testing.T, opts ...Option) *watcherFixture {
	t.Helper()

	stores, err := storagebadger.NewMemoryStores(0)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	registry := parser.NewRegistry()
	registry.Register(markdown.NewParser())

	root := t.TempDir()
	submitter := &fakeSubmitter{}

	w, err := NewWatcher(root, registry, submitter, stores.Documents, stores.Watch, opts...)
	require.NoError(t, err)

	return &watcherFixture{watcher: w, submitter: submitter, stores: stores, root: root}
}

func (f *watcherFixture) writeFile(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// terminal fakes a pipeline outcome for the watcher's last submission.
func (f *watcherFixture) terminal(path, taskID string, status core.TaskStatus) {
	f.watcher.TaskUpdated(&core.Task{
		ID:         taskID,
		Source:     core.SourceWatch,
		PayloadRef: path,
		Status:     status,
	})
}

func TestScanSubmitsEligibleFiles(t *testing.T) {
	f := newWatcherFixture(t)
	f.writeFile(t, "a.md", "# A\n")
	f.writeFile(t, "sub/b.md", "# B\n")
	f.writeFile(t, "ignored.bin", "\x00")

	f.watcher.Scan(context.Background())
	assert.Equal(t, 2, f.submitter.count())

	// Pending files are not resubmitted on the next poll.
	f.watcher.Scan(context.Background())
	assert.Equal(t, 2, f.submitter.count())
}

func TestScanSkipsIngestedPaths(t *testing.T) {
	f := newWatcherFixture(t)
	path := f.writeFile(t, "done.md", "# Done\n")

	_, err := f.stores.Documents.AddDocument(context.Background(), &core.DocumentRecord{
		Title:       "Done",
		SourcePath:  path,
		ContentHash: core.HashContent("# Done\n"),
		Text:        "# Done\n",
	})
	require.NoError(t, err)

	f.watcher.Scan(context.Background())
	assert.Zero(t, f.submitter.count())
}

func TestScanDefersOnFullQueue(t *testing.T) {
	f := newWatcherFixture(t)
	path := f.writeFile(t, "waiting.md", "# Waiting\n")

	f.submitter.queueFull = true
	f.watcher.Scan(context.Background())
	assert.Zero(t, f.submitter.count())

	// The file is retried once the queue has room again.
	f.submitter.queueFull = false
	f.watcher.Scan(context.Background())
	require.Equal(t, 1, f.submitter.count())
	assert.Equal(t, path, f.submitter.lastPath())
}

func TestFailuresLeadToBlacklist(t *testing.T) {
	const maxAttempts = 3
	f := newWatcherFixture(t, WithMaxAttempts(maxAttempts))
	path := f.writeFile(t, "broken.md", "# Broken\n")
	ctx := context.Background()

	for i := 0; i < maxAttempts; i++ {
		f.watcher.Scan(ctx)
		require.Equal(t, i+1, f.submitter.count(), "attempt %d", i+1)
		f.terminal(path, f.submitter.lastTaskID(), core.TaskFailed)
	}

	// The ceiling is reached: no further submissions.
	f.watcher.Scan(ctx)
	assert.Equal(t, maxAttempts, f.submitter.count())
	assert.Contains(t, f.watcher.Blacklisted(), path)

	// The blacklist survives in the store.
	entry, err := f.stores.Watch.GetWatchEntry(ctx, path)
	require.NoError(t, err)
	assert.True(t, entry.Blacklisted)
	assert.Equal(t, maxAttempts, entry.Attempts)
}

func TestSuccessResetsAttempts(t *testing.T) {
	f := newWatcherFixture(t, WithMaxAttempts(3))
	path := f.writeFile(t, "flaky.md", "# Flaky\n")
	ctx := context.Background()

	f.watcher.Scan(ctx)
	f.terminal(path, f.submitter.lastTaskID(), core.TaskFailed)

	f.watcher.Scan(ctx)
	f.terminal(path, f.submitter.lastTaskID(), core.TaskCompleted)

	entry, err := f.stores.Watch.GetWatchEntry(ctx, path)
	require.NoError(t, err)
	assert.Zero(t, entry.Attempts)
	assert.False(t, entry.Blacklisted)
}

func TestResetClearsBlacklist(t *testing.T) {
	f := newWatcherFixture(t, WithMaxAttempts(1))
	path := f.writeFile(t, "bad.md", "# Bad\n")
	ctx := context.Background()

	f.watcher.Scan(ctx)
	f.terminal(path, f.submitter.lastTaskID(), core.TaskFailed)
	require.Contains(t, f.watcher.Blacklisted(), path)

	require.NoError(t, f.watcher.Reset(ctx, path))
	assert.Empty(t, f.watcher.Blacklisted())

	f.watcher.Scan(ctx)
	assert.Equal(t, 2, f.submitter.count())
}

func TestBlacklistSurvivesRestart(t *testing.T) {
	f := newWatcherFixture(t, WithMaxAttempts(1))
	path := f.writeFile(t, "poison.md", "# Poison\n")
	ctx := context.Background()

	f.watcher.Scan(ctx)
	f.terminal(path, f.submitter.lastTaskID(), core.TaskFailed)

	// A fresh watcher over the same stores sees the persisted blacklist.
	registry := parser.NewRegistry()
	registry.Register(markdown.NewParser())
	reborn, err := NewWatcher(f.root, registry, f.submitter, f.stores.Documents, f.stores.Watch,
		WithMaxAttempts(1))
	require.NoError(t, err)

	reborn.Scan(ctx)
	assert.Equal(t, 1, f.submitter.count())
	assert.Contains(t, reborn.Blacklisted(), path)
}

func TestPendingSubmissionIsNotAFailure(t *testing.T) {
	f := newWatcherFixture(t)
	path := f.writeFile(t, "pending.md", "# Pending\n")
	ctx := context.Background()

	f.watcher.Scan(ctx)
	require.Equal(t, 1, f.submitter.count())

	// The task has not finished yet; no failure has been counted.
	entry, err := f.stores.Watch.GetWatchEntry(ctx, path)
	require.NoError(t, err)
	assert.Zero(t, entry.Attempts)

	f.terminal(path, f.submitter.lastTaskID(), core.TaskFailed)
	entry, err = f.stores.Watch.GetWatchEntry(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Attempts)
}

func TestScanIgnoresSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	f := newWatcherFixture(t)
	outside := filepath.Join(t.TempDir(), "outside.md")
	require.NoError(t, os.WriteFile(outside, []byte("# Outside\n"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(f.root, "link.md")))

	f.watcher.Scan(context.Background())
	assert.Zero(t, f.submitter.count())
}

func TestScanRespectsDepthBound(t *testing.T) {
	f := newWatcherFixture(t, WithMaxDepth(2))
	f.writeFile(t, "a/shallow.md", "# Shallow\n")
	f.writeFile(t, "a/b/c/d/deep.md", "# Deep\n")

	f.watcher.Scan(context.Background())
	require.Equal(t, 1, f.submitter.count())
	assert.Contains(t, f.submitter.lastPath(), "shallow.md")
}

func TestStartStopPolling(t *testing.T) {
	f := newWatcherFixture(t, WithInterval(10*time.Millisecond))
	f.writeFile(t, "polled.md", "# Polled\n")

	f.watcher.Start()
	deadline := time.Now().Add(2 * time.Second)
	for f.submitter.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	f.watcher.Stop()

	assert.Equal(t, 1, f.submitter.count())
}

package repocontext

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repostate/internal/config"
	"repostate/internal/diff"
	"repostate/internal/engine"
	"repostate/internal/giterr"
	"repostate/internal/model"
)

func TestStatusCoalescesConcurrentCallers(t *testing.T) {
	runner := newFakeRunner()
	c := newTestContext(t, runner, nil)
	release := runner.holdStatus()
	defer release()

	const callers = 8
	results := make([]model.RepositoryStatus, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Status(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return runner.count("status") == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 1, runner.count("status"))
}

func TestSnapshotCoalescesConcurrentCallers(t *testing.T) {
	runner := newFakeRunner()
	events := &recorder{}
	c := newTestContext(t, runner, events.emit)
	release := runner.holdStatus()
	defer release()

	const callers = 6
	snapshots := make([]model.RepositorySnapshot, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snapshot, err := c.Snapshot(context.Background())
			assert.NoError(t, err)
			snapshots[i] = snapshot
		}(i)
	}

	require.Eventually(t, func() bool { return runner.count("status") == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Equal(t, snapshots[0].CapturedAt, snapshots[i].CapturedAt, "coalesced callers share one result")
	}
	assert.Equal(t, "main", snapshots[0].Head.Name)
	assert.Equal(t, 1, runner.count("status"))
	assert.Equal(t, 1, runner.count("for-each-ref refs/heads"))
	assert.Equal(t, 1, runner.count("stash list"))

	snapshotEvents := 0
	for _, name := range events.names() {
		if name == EventSnapshot {
			snapshotEvents++
		}
	}
	assert.Equal(t, 1, snapshotEvents)
}

func TestStashSignalOnlyRefetchesStashes(t *testing.T) {
	runner := newFakeRunner()
	c := newTestContext(t, runner, nil)
	ctx := context.Background()

	_, err := c.Snapshot(ctx)
	require.NoError(t, err)

	c.HandleSignal(ctx, model.SignalStash)
	_, err = c.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, runner.count("stash list"))
	assert.Equal(t, 1, runner.count("status"))
	assert.Equal(t, 1, runner.count("symbolic-ref"))
	assert.Equal(t, 1, runner.count("for-each-ref refs/heads"))
	assert.Equal(t, 1, runner.count("for-each-ref refs/remotes"))
	assert.Equal(t, 1, runner.count("for-each-ref refs/tags"))
	assert.Equal(t, 1, runner.count("config"))
}

func TestSignalInvalidationMatrix(t *testing.T) {
	readers := []string{
		"status",
		"symbolic-ref",
		"for-each-ref refs/heads",
		"for-each-ref refs/remotes",
		"for-each-ref refs/tags",
		"config",
		"stash list",
	}
	cases := []struct {
		signal    model.Signal
		refetched []string
	}{
		{model.SignalStatus, []string{"status"}},
		{model.SignalHead, []string{"status", "symbolic-ref"}},
		{model.SignalRefs, []string{"for-each-ref refs/heads", "for-each-ref refs/remotes", "for-each-ref refs/tags"}},
		{model.SignalStash, []string{"stash list"}},
		{model.SignalConfig, []string{"config"}},
		{model.SignalFull, readers},
		{model.Signal("unknown"), readers},
	}

	for _, tc := range cases {
		t.Run(string(tc.signal), func(t *testing.T) {
			runner := newFakeRunner()
			c := newTestContext(t, runner, nil)
			ctx := context.Background()

			_, err := c.Snapshot(ctx)
			require.NoError(t, err)
			c.HandleSignal(ctx, tc.signal)
			_, err = c.Snapshot(ctx)
			require.NoError(t, err)

			want := make(map[string]int, len(readers))
			for _, key := range readers {
				want[key] = 1
			}
			for _, key := range tc.refetched {
				want[key] = 2
			}
			for _, key := range readers {
				assert.Equal(t, want[key], runner.count(key), key)
			}
		})
	}
}

func TestSignalPublishesEvents(t *testing.T) {
	events := &recorder{}
	c := newTestContext(t, newFakeRunner(), events.emit)

	c.HandleSignal(context.Background(), model.SignalRefs)
	c.HandleSignal(context.Background(), model.SignalStatus)

	assert.Equal(t, []string{EventSignal, EventSignal, EventStatusChanged}, events.names())
	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, SignalEvent{Repo: c.Path(), Kind: model.SignalRefs}, events.data[0])
}

func TestMutationInvalidatesBeforeReturning(t *testing.T) {
	runner := newFakeRunner()
	events := &recorder{}
	c := newTestContext(t, runner, events.emit)
	ctx := context.Background()

	_, err := c.Status(ctx)
	require.NoError(t, err)
	_, err = c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, runner.count("status"))

	require.NoError(t, c.Stage(ctx, []string{"notes.txt"}))
	assert.Equal(t, 1, runner.count("add"))

	_, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, runner.count("status"), "a read after a write never sees the old cache")
	assert.Contains(t, events.names(), EventStatusChanged)
}

func TestInFlightFetchDoesNotOverwriteInvalidation(t *testing.T) {
	runner := newFakeRunner()
	c := newTestContext(t, runner, nil)
	release := runner.holdStatus()
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := c.Status(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return runner.count("status") == 1 }, 2*time.Second, 5*time.Millisecond)

	c.HandleSignal(context.Background(), model.SignalStatus)
	release()
	require.NoError(t, <-done)

	_, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, runner.count("status"))
}

func TestStatusCallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	runner := newFakeRunner()
	c := newTestContext(t, runner, nil)
	release := runner.holdStatus()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Status(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return runner.count("status") == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	assert.Equal(t, giterr.KindCanceled, giterr.KindOf(err))

	release()
	require.Eventually(t, func() bool {
		_, ok := c.state.get(kindStatus)
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, runner.count("status"))
}

func TestHeadSignalPrependsNewCommits(t *testing.T) {
	runner := newFakeRunner()
	c := newTestContext(t, runner, nil)
	ctx := context.Background()

	runner.setLog("c3", "c2", "c1")
	page, err := c.Commits(ctx, 0, 3, "")
	require.NoError(t, err)
	require.Equal(t, []string{"c3", "c2", "c1"}, commitSHAs(page))

	runner.setLog("c5", "c4", "c3", "c2", "c1")
	c.HandleSignal(ctx, model.SignalHead)
	require.Equal(t, 2, runner.count("log"), "one bounded window fetch")

	page, err = c.Commits(ctx, 0, 3, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c5", "c4", "c3"}, commitSHAs(page))
	assert.Equal(t, 2, runner.count("log"), "first page served from the merged cache")
}

func TestHeadSignalFallsBackWhenOldHeadLeavesWindow(t *testing.T) {
	runner := newFakeRunner()
	c := newTestContext(t, runner, nil)
	ctx := context.Background()

	runner.setLog("c3", "c2", "c1")
	_, err := c.Commits(ctx, 0, 3, "")
	require.NoError(t, err)
	_, err = c.Commits(ctx, 1, 3, "")
	require.NoError(t, err)
	require.Equal(t, 2, runner.count("log"))

	runner.setLog("r3", "r2", "r1")
	c.HandleSignal(ctx, model.SignalHead)
	require.Equal(t, 3, runner.count("log"))

	page, err := c.Commits(ctx, 0, 3, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r2", "r1"}, commitSHAs(page))
	assert.Equal(t, 4, runner.count("log"), "rewritten history forces a refetch")
}

func TestCommitPagesShareOneFreshnessTimestamp(t *testing.T) {
	runner := newFakeRunner()
	runner.setLog("c2", "c1")
	settings := config.DefaultSettings()

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(d)
	}

	eng := engine.New(runner, t.TempDir(), engine.Options{})
	diffs := diff.NewService(eng, diff.NewCache(0), diff.LimitsFromSettings(settings.Diff), 16)
	c := New(eng, diffs, Options{Cache: settings.Cache, Now: now})
	defer c.Close(context.Background())
	ctx := context.Background()

	_, err := c.Commits(ctx, 0, 2, "")
	require.NoError(t, err)
	advance(50 * time.Second)
	_, err = c.Commits(ctx, 1, 2, "")
	require.NoError(t, err)
	require.Equal(t, 2, runner.count("log"))

	advance(11 * time.Second)
	_, err = c.Commits(ctx, 1, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, runner.count("log"), "a page stored later still expires with the shared timestamp")
}

func TestWriteQueueSerializesMutations(t *testing.T) {
	queue := newWriteQueue(t.TempDir())
	defer queue.close(context.Background())

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := queue.do(context.Background(), "test", time.Second, func(context.Context) error {
				current := running.Add(1)
				for {
					old := peak.Load()
					if current <= old || peak.CompareAndSwap(old, current) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestWriteQueueRejectsAfterClose(t *testing.T) {
	queue := newWriteQueue(t.TempDir())
	require.NoError(t, queue.close(context.Background()))

	err := queue.do(context.Background(), "test", 0, func(context.Context) error { return nil })
	assert.Equal(t, giterr.KindServiceUnavailable, giterr.KindOf(err))
}

func TestWriteQueueMapsTimeout(t *testing.T) {
	queue := newWriteQueue(t.TempDir())
	defer queue.close(context.Background())

	err := queue.do(context.Background(), "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	assert.Equal(t, giterr.KindTimeout, giterr.KindOf(err))
}

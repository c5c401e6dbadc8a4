package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"

	"github.com/standardbeagle/lad/internal/apply"
	"github.com/standardbeagle/lad/internal/config"
	"github.com/standardbeagle/lad/internal/daemon"
	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/types"
	"github.com/standardbeagle/lad/testhelpers"
)

type markerPass struct {
	runs *atomic.Int64
}

func (p *markerPass) Kind() types.PassKind { return types.KindSyntax }
func (p *markerPass) Collect(ctx *passes.Context) ([]types.HighlightRecord, error) {
	p.runs.Add(1)
	return []types.HighlightRecord{{Kind: types.KindSyntax, Range: ctx.Window, Rule: "mark"}}, nil
}

func newWatchedDaemon(t *testing.T, root string) (*daemon.Daemon, *Watcher) {
	t.Helper()
	cfg := testhelpers.NewTestConfigBuilder(root).
		WithWatch().
		WithInclude("**/*.txt").
		Build()

	var runs atomic.Int64
	reg := passes.NewRegistry()
	require.NoError(t, reg.Register(passes.Descriptor{
		Kind: types.KindSyntax,
		New:  func() passes.Pass { return &markerPass{runs: &runs} },
	}))

	d := daemon.New(cfg, reg, apply.SyncDispatcher{})
	t.Cleanup(d.Dispose)

	w, err := New(cfg, d)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
	return d, w
}

func TestWatcher_WriteOpensAndAnalyzes(t *testing.T) {
	root := t.TempDir()
	d, _ := newWatchedDaemon(t, root)

	path := filepath.Join(root, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello watcher\n"), 0o644))

	require.Eventually(t, func() bool {
		doc := d.Documents().Lookup(uri.File(path))
		return doc != nil && d.DirtyMap().AllClean(doc.ID())
	}, 5*time.Second, 10*time.Millisecond)

	doc := d.Documents().Lookup(uri.File(path))
	assert.NotEmpty(t, d.Model().Snapshot(doc.ID()))
}

func TestWatcher_RemoveClosesDocument(t *testing.T) {
	root := t.TempDir()
	d, _ := newWatchedDaemon(t, root)

	path := filepath.Join(root, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("short lived\n"), 0o644))
	require.Eventually(t, func() bool {
		return d.Documents().Lookup(uri.File(path)) != nil
	}, 5*time.Second, 10*time.Millisecond)

	doc := d.Documents().Lookup(uri.File(path))
	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		return len(d.Model().Snapshot(doc.ID())) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_ExcludedFilesAreIgnored(t *testing.T) {
	root := t.TempDir()
	d, _ := newWatchedDaemon(t, root)

	path := filepath.Join(root, "ignored.log")
	require.NoError(t, os.WriteFile(path, []byte("noise\n"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Nil(t, d.Documents().Lookup(uri.File(path)))
}

func TestWatcher_WantedGlobs(t *testing.T) {
	cfg := config.DefaultConfig("/project")
	cfg.Include = []string{"src/**/*.go"}
	cfg.Exclude = []string{"**/vendor/**"}

	w := &Watcher{cfg: cfg}
	assert.True(t, w.wanted("/project/src/pkg/main.go"))
	assert.False(t, w.wanted("/project/src/vendor/dep/x.go"))
	assert.False(t, w.wanted("/project/docs/readme.md"))
}

func TestEventDebouncer_CoalescesPerPath(t *testing.T) {
	var batches atomic.Int64
	var lastSize atomic.Int64
	deb := newEventDebouncer(20*time.Millisecond, func(events map[string]fileEvent) {
		batches.Add(1)
		lastSize.Store(int64(len(events)))
	})
	defer deb.stop()

	deb.add("/a", eventCreate)
	deb.add("/a", eventWrite)
	deb.add("/b", eventWrite)

	require.Eventually(t, func() bool { return batches.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(2), lastSize.Load())
}

func TestEventDebouncer_StopDropsPending(t *testing.T) {
	var batches atomic.Int64
	deb := newEventDebouncer(20*time.Millisecond, func(map[string]fileEvent) { batches.Add(1) })

	deb.add("/a", eventWrite)
	deb.stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, batches.Load())
}

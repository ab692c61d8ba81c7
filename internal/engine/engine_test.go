package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danieljhkim/assetmirror/internal/clock"
	"github.com/danieljhkim/assetmirror/internal/fsops"
)

type testEngine struct {
	*Engine
	logs    *observer.ObservedLogs
	metrics *Metrics
}

func newTestEngine(t *testing.T, fsys fsops.FS) *testEngine {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := NewMetrics(prometheus.NewRegistry())
	clk := clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	return &testEngine{
		Engine:  New(fsys, clk, zap.New(core), metrics),
		logs:    logs,
		metrics: metrics,
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// readTree returns every regular file below root keyed by slash path.
// A symlinked root is followed.
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root+string(filepath.Separator), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func request(unitID, source, base string, mode Mode) *MirrorRequest {
	return &MirrorRequest{UnitID: unitID, Source: source, DestinationBase: base, Mode: mode}
}

var sampleAssets = map[string]string{
	"app.js":             "console.log('v1')",
	"img/logo.png":       "\x89PNG",
	"css/theme/dark.css": "body{}",
}

func TestMirror_RuntimeCopiesTree(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	eng := newTestEngine(t, fsops.NewRealFS())
	result, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)

	dest := filepath.Join(base, "pluginX")
	assert.Equal(t, dest, result.Destination)
	info, err := os.Lstat(dest)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "runtime destination must be a real directory")

	assert.Equal(t, sampleAssets, readTree(t, dest))
	assert.ElementsMatch(t, []string{"app.js", filepath.Join("img", "logo.png"), filepath.Join("css", "theme", "dark.css")}, result.Copied())
	assert.False(t, result.Linked())
}

func TestMirror_RuntimeIsIdempotent(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	eng := newTestEngine(t, fsops.NewRealFS())
	_, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)

	dest := filepath.Join(base, "pluginX")
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	for rel := range sampleAssets {
		require.NoError(t, os.Chtimes(filepath.Join(dest, rel), old, old))
	}

	result, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)

	assert.Empty(t, result.Applied)
	assert.Equal(t, len(sampleAssets), result.Unchanged())
	for rel := range sampleAssets {
		info, err := os.Stat(filepath.Join(dest, rel))
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(old), "%s was rewritten", rel)
	}

	assert.Equal(t, float64(len(sampleAssets)), testutil.ToFloat64(eng.metrics.operations.WithLabelValues("pluginX", "copy")))
	assert.Equal(t, float64(len(sampleAssets)), testutil.ToFloat64(eng.metrics.unchanged.WithLabelValues("pluginX")))
	assert.Equal(t, float64(2), testutil.ToFloat64(eng.metrics.passes.WithLabelValues("pluginX", "runtime", "ok")))
}

func TestMirror_RuntimePropagatesChanges(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	eng := newTestEngine(t, fsops.NewRealFS())
	_, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)

	writeTree(t, src, map[string]string{
		"app.js": "console.log('v2')",
		"new.js": "fresh",
	})
	require.NoError(t, os.Remove(filepath.Join(src, "img", "logo.png")))

	result, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)

	assert.Equal(t, []string{"app.js", "new.js"}, result.Copied())
	assert.Equal(t, []string{filepath.Join(base, "pluginX", "img", "logo.png")}, result.Removed())
	assert.Equal(t, readTree(t, src), readTree(t, filepath.Join(base, "pluginX")))
}

func TestMirror_CompiledCreatesSymlink(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	eng := newTestEngine(t, fsops.NewRealFS())
	result, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeCompiled))
	if errors.Is(err, ErrLinkCreationFailed) {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, err)

	dest := filepath.Join(base, "pluginX")
	info, err := os.Lstat(dest)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink, "compiled destination must be a symlink")

	target, err := os.Readlink(dest)
	require.NoError(t, err)
	assert.Equal(t, src, target)
	assert.True(t, result.Linked())

	data, err := os.ReadFile(filepath.Join(dest, "app.js"))
	require.NoError(t, err)
	assert.Equal(t, sampleAssets["app.js"], string(data))

	// A second pass relinks to the same target.
	_, err = eng.Mirror(context.Background(), request("pluginX", src, base, ModeCompiled))
	require.NoError(t, err)
	target, err = os.Readlink(dest)
	require.NoError(t, err)
	assert.Equal(t, src, target)
}

func TestMirror_CompiledUsesAbsoluteSource(t *testing.T) {
	tmp := t.TempDir()
	writeTree(t, filepath.Join(tmp, "src"), sampleAssets)
	t.Chdir(tmp)

	eng := newTestEngine(t, fsops.NewRealFS())
	_, err := eng.Mirror(context.Background(), request("pluginX", "src", "base", ModeCompiled))
	if errors.Is(err, ErrLinkCreationFailed) {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, err)

	target, err := os.Readlink(filepath.Join(tmp, "base", "pluginX"))
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(target), "link target %q is relative", target)
}

func TestMirror_ModeSwitch(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	dest := filepath.Join(base, "pluginX")
	writeTree(t, src, sampleAssets)

	eng := newTestEngine(t, fsops.NewRealFS())
	ctx := context.Background()

	_, err := eng.Mirror(ctx, request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)

	_, err = eng.Mirror(ctx, request("pluginX", src, base, ModeCompiled))
	if errors.Is(err, ErrLinkCreationFailed) {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, err)
	info, err := os.Lstat(dest)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	// Switching back must replace the link, not write through it into the source.
	result, err := eng.Mirror(ctx, request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)
	assert.Equal(t, []string{dest}, result.Removed())

	info, err = os.Lstat(dest)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Zero(t, info.Mode()&os.ModeSymlink)
	assert.Equal(t, sampleAssets, readTree(t, dest))
	assert.Equal(t, sampleAssets, readTree(t, src))
}

func TestMirror_MissingSource(t *testing.T) {
	tmp := t.TempDir()
	base := filepath.Join(tmp, "base")

	for _, mode := range []Mode{ModeRuntime, ModeCompiled} {
		t.Run(string(mode), func(t *testing.T) {
			eng := newTestEngine(t, fsops.NewRealFS())
			result, err := eng.Mirror(context.Background(), request("ghost", filepath.Join(tmp, "nope"), base, mode))
			require.NoError(t, err)
			assert.True(t, result.NoSource)

			_, err = os.Lstat(filepath.Join(base, "ghost"))
			assert.True(t, os.IsNotExist(err), "destination should not exist, got %v", err)
		})
	}
}

func TestMirror_SourceRemovedClearsDestination(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	eng := newTestEngine(t, fsops.NewRealFS())
	_, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(src))
	result, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)
	assert.True(t, result.NoSource)

	_, err = os.Lstat(filepath.Join(base, "pluginX"))
	assert.True(t, os.IsNotExist(err))
}

func TestMirror_SourceIsFile(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "assets")
	require.NoError(t, os.WriteFile(src, []byte("not a dir"), 0644))
	base := filepath.Join(tmp, "base")

	eng := newTestEngine(t, fsops.NewRealFS())
	result, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)
	assert.True(t, result.NoSource)

	_, err = os.Lstat(filepath.Join(base, "pluginX"))
	assert.True(t, os.IsNotExist(err))
}

func TestMirror_EmptySource(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	base := filepath.Join(tmp, "base")

	eng := newTestEngine(t, fsops.NewRealFS())
	_, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(base, "pluginX"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Empty(t, readTree(t, filepath.Join(base, "pluginX")))
}

func TestMirror_InvalidUnitID(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	tests := []string{"../evil", "..", ".", "", "a/b", `a\b`, "/abs"}

	for _, id := range tests {
		t.Run(id, func(t *testing.T) {
			eng := newTestEngine(t, fsops.NewRealFS())
			_, err := eng.Mirror(context.Background(), request(id, src, base, ModeRuntime))
			require.ErrorIs(t, err, ErrInvalidUnitID)

			var mirrorErr *MirrorError
			require.ErrorAs(t, err, &mirrorErr)
			assert.Equal(t, id, mirrorErr.UnitID)

			_, statErr := os.Stat(base)
			assert.True(t, os.IsNotExist(statErr), "base must not be created for %q", id)
			_, statErr = os.Stat(filepath.Join(tmp, "evil"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestMirror_InvalidMode(t *testing.T) {
	tmp := t.TempDir()
	eng := newTestEngine(t, fsops.NewRealFS())

	_, err := eng.Mirror(context.Background(), request("pluginX", tmp, filepath.Join(tmp, "base"), Mode("hybrid")))
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestMirror_DestinationBaseUnderFile(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	writeTree(t, src, sampleAssets)
	blocker := filepath.Join(tmp, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	eng := newTestEngine(t, fsops.NewRealFS())
	_, err := eng.Mirror(context.Background(), request("pluginX", src, filepath.Join(blocker, "base"), ModeRuntime))
	assert.ErrorIs(t, err, ErrDestinationUnavailable)

	_, err = eng.Mirror(context.Background(), request("pluginX", src, "", ModeRuntime))
	assert.ErrorIs(t, err, ErrDestinationUnavailable)
}

func TestMirror_ConcurrentUnits(t *testing.T) {
	tmp := t.TempDir()
	base := filepath.Join(tmp, "base")
	srcA := filepath.Join(tmp, "a")
	srcB := filepath.Join(tmp, "b")
	writeTree(t, srcA, map[string]string{"a.js": "a", "x/y.css": "ay"})
	writeTree(t, srcB, map[string]string{"b.js": "b", "x/z.css": "bz"})

	for _, mode := range []Mode{ModeRuntime, ModeCompiled} {
		t.Run(string(mode), func(t *testing.T) {
			eng := newTestEngine(t, fsops.NewRealFS())

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, unit := range []struct{ id, src string }{{"a", srcA}, {"b", srcB}} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = eng.Mirror(context.Background(), request(unit.id, unit.src, base, mode))
				}()
			}
			wg.Wait()

			for _, err := range errs {
				if mode == ModeCompiled && errors.Is(err, ErrLinkCreationFailed) {
					t.Skipf("symlinks unsupported: %v", err)
				}
				require.NoError(t, err)
			}
			if mode == ModeCompiled {
				for id, src := range map[string]string{"a": srcA, "b": srcB} {
					target, err := os.Readlink(filepath.Join(base, id))
					require.NoError(t, err)
					assert.Equal(t, src, target)
				}
			}
			assert.Equal(t, readTree(t, srcA), readTree(t, filepath.Join(base, "a")))
			assert.Equal(t, readTree(t, srcB), readTree(t, filepath.Join(base, "b")))
		})
	}
}

func TestMirror_DryRun(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	eng := newTestEngine(t, fsops.NewRealFS())
	req := request("pluginX", src, base, ModeRuntime)
	req.DryRun = true

	result, err := eng.Mirror(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.True(t, result.Plan.HasChanges())
	assert.Empty(t, result.Applied)
	_, err = os.Stat(base)
	assert.True(t, os.IsNotExist(err), "dry run must not create the base")
}

func TestMirror_Exclude(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, map[string]string{"app.js": "v1", "img/.DS_Store": "junk"})

	eng := newTestEngine(t, fsops.NewRealFS())
	req := request("pluginX", src, base, ModeRuntime)
	req.Exclude = []string{"**/.DS_Store"}

	_, err := eng.Mirror(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"app.js": "v1"}, readTree(t, filepath.Join(base, "pluginX")))

	req.Exclude = []string{"[oops"}
	_, err = eng.Mirror(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidExclude)
}

func TestMirror_CanceledContext(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := newTestEngine(t, fsops.NewRealFS())
	result, err := eng.Mirror(ctx, request("pluginX", src, base, ModeRuntime))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Applied)
}

func TestMirror_SymlinkCycleIsLogged(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, map[string]string{"app.js": "v1"})
	if err := os.Symlink(src, filepath.Join(src, "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	eng := newTestEngine(t, fsops.NewRealFS())
	result, err := eng.Mirror(context.Background(), request("pluginX", src, base, ModeRuntime))
	require.NoError(t, err)

	assert.Equal(t, []string{"loop"}, result.Plan.Skipped)
	warnings := eng.logs.FilterMessage("skipping symlink cycle").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, filepath.Join(src, "loop"), warnings[0].ContextMap()["path"])
}

func TestMirror_LogsPass(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	writeTree(t, src, sampleAssets)

	eng := newTestEngine(t, fsops.NewRealFS())
	result, err := eng.Mirror(context.Background(), request("pluginX", src, filepath.Join(tmp, "base"), ModeRuntime))
	require.NoError(t, err)

	entries := eng.logs.FilterMessage("mirror complete").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "pluginX", fields["unit"])
	assert.Equal(t, "runtime", fields["mode"])
	assert.Equal(t, result.RunID, fields["run_id"])
	assert.Equal(t, int64(3), fields["copied"])
	assert.NotEmpty(t, result.RunID)
}

type plugin struct {
	id, dir string
}

func (p plugin) UnitID() string    { return p.id }
func (p plugin) AssetsDir() string { return p.dir }

func TestMirrorUnit(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	eng := newTestEngine(t, fsops.NewRealFS())
	result, err := eng.MirrorUnit(context.Background(), plugin{id: "pluginX", dir: src}, base, ModeFor(false))
	require.NoError(t, err)
	assert.Equal(t, ModeRuntime, result.Mode)
	assert.Equal(t, sampleAssets, readTree(t, filepath.Join(base, "pluginX")))
}

func TestMirror_PackageLevel(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	base := filepath.Join(tmp, "base")
	writeTree(t, src, sampleAssets)

	require.NoError(t, Mirror("pluginX", src, base, ModeRuntime))
	assert.Equal(t, sampleAssets, readTree(t, filepath.Join(base, "pluginX")))

	err := Mirror("../evil", src, base, ModeRuntime)
	assert.ErrorIs(t, err, ErrInvalidUnitID)
}

func TestMirror_StampsStartAndDuration(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	writeTree(t, src, sampleAssets)

	start := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	clk.SetStep(1500 * time.Millisecond)
	eng := New(fsops.NewRealFS(), clk, nil, nil)

	result, err := eng.Mirror(context.Background(), request("pluginX", src, filepath.Join(tmp, "base"), ModeRuntime))
	require.NoError(t, err)

	assert.Equal(t, start, result.StartedAt)
	assert.Equal(t, 1500*time.Millisecond, result.Duration)
}

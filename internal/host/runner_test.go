package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/assetmirror/internal/clock"
	"github.com/danieljhkim/assetmirror/internal/config"
	"github.com/danieljhkim/assetmirror/internal/engine"
	"github.com/danieljhkim/assetmirror/internal/fsops"
	"github.com/danieljhkim/assetmirror/internal/state"
)

type fixture struct {
	tmp     string
	base    string
	records *state.FileRecordStore
	engine  *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmp := t.TempDir()
	fs := fsops.NewRealFS()
	return &fixture{
		tmp:     tmp,
		base:    filepath.Join(tmp, "base"),
		records: state.NewFileRecordStore(fs, filepath.Join(tmp, "state")),
		engine:  engine.New(fs, clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), nil, nil),
	}
}

func (f *fixture) unit(t *testing.T, id string, files map[string]string) config.Unit {
	t.Helper()
	src := filepath.Join(f.tmp, "src", id)
	require.NoError(t, os.MkdirAll(src, 0755))
	for rel, content := range files {
		path := filepath.Join(src, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return config.Unit{ID: id, Source: src}
}

func (f *fixture) runner(opts Options) *Runner {
	opts.DestinationBase = f.base
	if opts.Mode == "" {
		opts.Mode = engine.ModeRuntime
	}
	return NewRunner(f.engine, f.records, nil, opts)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunner_MirrorAll(t *testing.T) {
	f := newFixture(t)
	units := []engine.Mirrorable{
		f.unit(t, "a", map[string]string{"a.js": "a"}),
		f.unit(t, "b", map[string]string{"css/b.css": "b"}),
		config.Unit{ID: "ghost", Source: filepath.Join(f.tmp, "missing")},
	}

	outcomes, err := f.runner(Options{Concurrency: 2}).MirrorAll(context.Background(), units)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, []string{"a", "b", "ghost"}, []string{outcomes[0].UnitID, outcomes[1].UnitID, outcomes[2].UnitID})
	assert.Equal(t, "a", readFile(t, filepath.Join(f.base, "a", "a.js")))
	assert.Equal(t, "b", readFile(t, filepath.Join(f.base, "b", "css", "b.css")))
	assert.True(t, outcomes[2].Result.NoSource)

	ids, err := f.records.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "ghost"}, ids)

	rec, err := f.records.Load("a")
	require.NoError(t, err)
	assert.Equal(t, state.ResultOK, rec.Result)
	assert.Equal(t, 1, rec.Copied)
	assert.Equal(t, outcomes[0].Result.RunID, rec.RunID)

	rec, err = f.records.Load("ghost")
	require.NoError(t, err)
	assert.Equal(t, state.ResultNoSource, rec.Result)
}

func TestRunner_MirrorAllJoinsErrors(t *testing.T) {
	f := newFixture(t)
	units := []engine.Mirrorable{
		f.unit(t, "good", map[string]string{"a.js": "a"}),
		config.Unit{ID: "../evil", Source: f.tmp},
	}

	outcomes, err := f.runner(Options{Concurrency: 4}).MirrorAll(context.Background(), units)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidUnitID)
	assert.NoError(t, outcomes[0].Err)
	assert.Contains(t, err.Error(), "../evil")

	// No record may be written for an unsafe id.
	ids, err := f.records.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids)
}

func TestRunner_RecordsFailures(t *testing.T) {
	f := newFixture(t)
	u := f.unit(t, "p", map[string]string{"a.js": "a"})
	require.NoError(t, os.WriteFile(f.base, []byte("blocker"), 0644))

	_, err := f.runner(Options{}).MirrorOne(context.Background(), u)
	require.ErrorIs(t, err, engine.ErrDestinationUnavailable)

	rec, err := f.records.Load("p")
	require.NoError(t, err)
	assert.True(t, rec.Failed())
	assert.Contains(t, rec.Error, "destination unavailable")
}

func TestRunner_DryRunRecordsNothing(t *testing.T) {
	f := newFixture(t)
	u := f.unit(t, "p", map[string]string{"a.js": "a"})

	result, err := f.runner(Options{DryRun: true}).MirrorOne(context.Background(), u)
	require.NoError(t, err)
	assert.True(t, result.Plan.HasChanges())

	_, err = os.Stat(f.base)
	assert.True(t, os.IsNotExist(err))
	ids, err := f.records.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunner_SameUnitIsSerialized(t *testing.T) {
	f := newFixture(t)
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files[name+"/x.js"] = name
	}
	u := f.unit(t, "p", files)
	r := f.runner(Options{Concurrency: 8})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.MirrorOne(context.Background(), u)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for rel, content := range files {
		assert.Equal(t, content, readFile(t, filepath.Join(f.base, "p", rel)))
	}
}

func TestRunner_CanceledContext(t *testing.T) {
	f := newFixture(t)
	u := f.unit(t, "p", map[string]string{"a.js": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner(Options{}).MirrorOne(ctx, u)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewRecord(t *testing.T) {
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	result := &engine.MirrorResult{
		RunID:     "run-1",
		UnitID:    "p",
		Mode:      engine.ModeCompiled,
		StartedAt: started,
		Duration:  time.Second,
	}

	rec := NewRecord(result, nil)
	assert.Equal(t, state.ResultOK, rec.Result)
	assert.Equal(t, "compiled", rec.Mode)
	assert.Equal(t, started, rec.StartedAt)

	rec = NewRecord(result, errors.New("boom"))
	assert.Equal(t, state.ResultError, rec.Result)
	assert.Equal(t, "boom", rec.Error)
}

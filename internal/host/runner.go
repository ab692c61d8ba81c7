// Package host drives the engine for a set of configured units.
//
// The Runner serializes passes per unit and runs distinct units in parallel
// up to a concurrency limit, recording each outcome in the state store. The
// Watcher re-mirrors a unit when files under its source change.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marusama/semaphore/v2"
	"go.uber.org/zap"

	"github.com/danieljhkim/assetmirror/internal/engine"
	"github.com/danieljhkim/assetmirror/internal/state"
)

// Options configures a Runner.
type Options struct {
	// DestinationBase is the private root shared by all units
	DestinationBase string

	// Mode is the mirroring strategy for every unit
	Mode engine.Mode

	// Exclude holds doublestar patterns applied to every unit
	Exclude []string

	// Concurrency bounds the number of units mirrored at once
	Concurrency int

	// DryRun plans without executing and records nothing
	DryRun bool
}

// Outcome is the result of mirroring one unit.
type Outcome struct {
	UnitID string
	Result *engine.MirrorResult
	Err    error
}

// Runner mirrors units on behalf of the host.
type Runner struct {
	engine  *engine.Engine
	records state.RecordStore
	logger  *zap.Logger
	opts    Options
	sem     semaphore.Semaphore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunner creates a Runner. records may be nil to skip run records.
func NewRunner(eng *engine.Engine, records state.RecordStore, logger *zap.Logger, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		engine:  eng,
		records: records,
		logger:  logger,
		opts:    opts,
		sem:     semaphore.New(opts.Concurrency),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Mode returns the runner's mirroring strategy.
func (r *Runner) Mode() engine.Mode {
	return r.opts.Mode
}

// unitLock returns the mutex serializing passes for unitID.
func (r *Runner) unitLock(unitID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[unitID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[unitID] = l
	}
	return l
}

// MirrorOne mirrors a single unit and records the outcome.
// Concurrent calls for the same unit run one after another.
func (r *Runner) MirrorOne(ctx context.Context, unit engine.Mirrorable) (*engine.MirrorResult, error) {
	l := r.unitLock(unit.UnitID())
	l.Lock()
	defer l.Unlock()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	result, err := r.engine.Mirror(ctx, &engine.MirrorRequest{
		UnitID:          unit.UnitID(),
		Source:          unit.AssetsDir(),
		DestinationBase: r.opts.DestinationBase,
		Mode:            r.opts.Mode,
		DryRun:          r.opts.DryRun,
		Exclude:         r.opts.Exclude,
	})

	r.record(unit.UnitID(), result, err)
	return result, err
}

// MirrorAll mirrors every unit in parallel and returns one outcome per unit
// in input order. The returned error joins every unit failure.
func (r *Runner) MirrorAll(ctx context.Context, units []engine.Mirrorable) ([]Outcome, error) {
	outcomes := make([]Outcome, len(units))

	var wg sync.WaitGroup
	for i, unit := range units {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := r.MirrorOne(ctx, unit)
			outcomes[i] = Outcome{UnitID: unit.UnitID(), Result: result, Err: err}
		}()
	}
	wg.Wait()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.UnitID, o.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}

func (r *Runner) record(unitID string, result *engine.MirrorResult, err error) {
	if r.records == nil || r.opts.DryRun || result == nil {
		return
	}
	// An id that cannot name a destination cannot name a record either.
	if errors.Is(err, engine.ErrInvalidUnitID) {
		return
	}

	if saveErr := r.records.Save(NewRecord(result, err)); saveErr != nil {
		r.logger.Warn("failed to save run record", zap.String("unit", unitID), zap.Error(saveErr))
	}
}

// NewRecord converts a pass result into a run record.
func NewRecord(result *engine.MirrorResult, err error) *state.UnitRecord {
	rec := &state.UnitRecord{
		UnitID:      result.UnitID,
		RunID:       result.RunID,
		Mode:        string(result.Mode),
		Source:      result.Source,
		Destination: result.Destination,
		Result:      state.ResultOK,
		Copied:      len(result.Copied()),
		Removed:     len(result.Removed()),
		Unchanged:   result.Unchanged(),
		StartedAt:   result.StartedAt,
		Duration:    result.Duration,
	}
	if result.Plan != nil && len(result.Plan.Skipped) > 0 {
		rec.Skipped = result.Plan.Skipped
	}

	switch {
	case err != nil:
		rec.Result = state.ResultError
		rec.Error = err.Error()
	case result.NoSource:
		rec.Result = state.ResultNoSource
	}
	return rec
}

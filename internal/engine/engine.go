// Package engine provides the core mirroring logic for assetmirror.
//
// The engine package acts as the orchestration layer between callers (the CLI,
// the host runner, or a host application embedding the library) and the
// lower-level planner and fsops packages. One call mirrors one unit's asset
// directory into destinationBase/unitID.
//
// Key components:
//   - Engine: Main orchestrator; safe for concurrent use across distinct units
//   - Mirror: Package-level entry point using the real filesystem
//   - MirrorError: Typed failure carrying one of the Err* kinds
//   - Metrics: Prometheus collectors updated on every pass
package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danieljhkim/assetmirror/internal/clock"
	"github.com/danieljhkim/assetmirror/internal/fsops"
	"github.com/danieljhkim/assetmirror/internal/planner"
)

// Engine mirrors unit asset directories.
type Engine struct {
	fs      fsops.FS
	clock   clock.Clock
	logger  *zap.Logger
	metrics *Metrics
}

// New creates a new Engine with the given dependencies.
// A nil logger discards output and nil metrics are not recorded.
func New(fs fsops.FS, clk clock.Clock, logger *zap.Logger, metrics *Metrics) *Engine {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fs:      fs,
		clock:   clk,
		logger:  logger,
		metrics: metrics,
	}
}

// Mirror mirrors sourceDir into destinationBase/unitID on the real filesystem.
// A missing source is not an error. Any failure is a *MirrorError.
func Mirror(unitID, sourceDir, destinationBase string, mode Mode) error {
	e := New(fsops.NewRealFS(), nil, nil, nil)
	_, err := e.Mirror(context.Background(), &MirrorRequest{
		UnitID:          unitID,
		Source:          sourceDir,
		DestinationBase: destinationBase,
		Mode:            mode,
	})
	return err
}

// MirrorUnit mirrors a Mirrorable's assets directory.
func (e *Engine) MirrorUnit(ctx context.Context, unit Mirrorable, destinationBase string, mode Mode) (*MirrorResult, error) {
	return e.Mirror(ctx, &MirrorRequest{
		UnitID:          unit.UnitID(),
		Source:          unit.AssetsDir(),
		DestinationBase: destinationBase,
		Mode:            mode,
	})
}

// Mirror performs one mirror pass.
//
// In compiled mode the destination becomes a symlink to the absolute source.
// In runtime mode the destination becomes a real directory whose files match
// the source byte for byte; files already identical are not rewritten and
// entries with no source counterpart are removed.
//
// On an execution failure the partial result is returned with the error.
func (e *Engine) Mirror(ctx context.Context, req *MirrorRequest) (*MirrorResult, error) {
	start := e.clock.Now()
	result := &MirrorResult{
		RunID:     uuid.NewString(),
		UnitID:    req.UnitID,
		Mode:      req.Mode,
		DryRun:    req.DryRun,
		Applied:   []planner.Operation{},
		StartedAt: start,
	}
	log := e.logger.With(
		zap.String("unit", req.UnitID),
		zap.String("mode", string(req.Mode)),
		zap.String("run_id", result.RunID),
	)

	err := e.mirror(ctx, req, result, log)
	result.Duration = e.clock.Now().Sub(start)

	if err != nil {
		e.metrics.observePass(req.UnitID, req.Mode, "error", result.Duration)
		log.Error("mirror failed", zap.Error(err))
		return result, err
	}

	outcome := "ok"
	switch {
	case result.NoSource:
		outcome = "no_source"
	case result.DryRun:
		outcome = "dry_run"
	}
	e.metrics.observePass(req.UnitID, req.Mode, outcome, result.Duration)
	log.Info("mirror complete",
		zap.String("result", outcome),
		zap.Int("copied", len(result.Copied())),
		zap.Int("unchanged", result.Unchanged()),
		zap.Int("removed", len(result.Removed())),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (e *Engine) mirror(ctx context.Context, req *MirrorRequest, result *MirrorResult, log *zap.Logger) error {
	unitID := req.UnitID

	if err := req.Mode.Validate(); err != nil {
		return newMirrorError(ErrInvalidMode, unitID, "", err)
	}

	// Nothing may touch the filesystem before the unit ID is known to be safe.
	if _, err := ResolveDestination(req.DestinationBase, unitID); err != nil {
		return newMirrorError(ErrInvalidUnitID, unitID, "", err)
	}

	if req.DestinationBase == "" {
		return newMirrorError(ErrDestinationUnavailable, unitID, "", errors.New("destination base is empty"))
	}
	base, err := filepath.Abs(req.DestinationBase)
	if err != nil {
		return newMirrorError(ErrDestinationUnavailable, unitID, req.DestinationBase, err)
	}
	dest, err := ResolveDestination(base, unitID)
	if err != nil {
		return newMirrorError(ErrInvalidUnitID, unitID, "", err)
	}
	result.Destination = dest

	source, err := filepath.Abs(req.Source)
	if err != nil {
		return newMirrorError(ErrSourceUnavailable, unitID, req.Source, err)
	}
	result.Source = source

	if !req.DryRun {
		if err := e.ensureBase(base); err != nil {
			return newMirrorError(ErrDestinationUnavailable, unitID, base, err)
		}
	}

	present, err := e.sourcePresent(source)
	if err != nil {
		return newMirrorError(ErrSourceUnavailable, unitID, source, err)
	}

	cleanup, err := e.needsCleanup(dest, req.Mode, present)
	if err != nil {
		return newMirrorError(ErrCleanupFailed, unitID, dest, err)
	}

	plan, err := planner.BuildMirrorPlan(e.fs, planner.Request{
		Source:           source,
		Destination:      dest,
		SourcePresent:    present,
		ClearDestination: cleanup,
		Link:             req.Mode == ModeCompiled,
		Exclude:          req.Exclude,
	})
	if err != nil {
		return planError(unitID, err)
	}
	result.Plan = plan
	result.NoSource = plan.NoSource

	for _, rel := range plan.Skipped {
		log.Warn("skipping symlink cycle", zap.String("path", filepath.Join(source, rel)))
	}

	if req.DryRun {
		return nil
	}

	for _, op := range plan.Operations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.executeOperation(op); err != nil {
			return newMirrorError(kindFor(op.Type), unitID, op.DestPath, err)
		}
		result.Applied = append(result.Applied, op)
		e.metrics.observeOperation(unitID, op.Type)
		log.Debug("applied", zap.String("op", op.Type), zap.String("path", op.DestPath))
	}
	e.metrics.observeUnchanged(unitID, len(plan.Unchanged))

	return nil
}

// ensureBase creates the destination base and checks that it is a directory.
func (e *Engine) ensureBase(base string) error {
	if err := e.fs.MkdirAll(base, 0755); err != nil {
		return err
	}
	info, err := e.fs.Stat(base)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "mkdir", Path: base, Err: syscall.ENOTDIR}
	}
	return nil
}

// sourcePresent reports whether source is an existing directory.
// Missing paths and non-directories are absent, not errors.
func (e *Engine) sourcePresent(source string) (bool, error) {
	info, err := e.fs.Stat(source)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// needsCleanup decides whether the existing destination is removed before
// the pass. A real directory is reconciled in place in runtime mode.
func (e *Engine) needsCleanup(dest string, mode Mode, present bool) (bool, error) {
	info, err := e.fs.Lstat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return mode == ModeCompiled || !present || !info.IsDir(), nil
}

func planError(unitID string, err error) error {
	if errors.Is(err, planner.ErrInvalidPattern) {
		return newMirrorError(ErrInvalidExclude, unitID, "", err)
	}

	var pathErr *planner.PathError
	if errors.As(err, &pathErr) {
		return newMirrorError(kindFor(pathErr.Op), unitID, pathErr.Path, pathErr.Err)
	}
	return newMirrorError(ErrFileCopyFailed, unitID, "", err)
}

func kindFor(opType string) error {
	switch opType {
	case planner.OpRemove:
		return ErrCleanupFailed
	case planner.OpMkdir:
		return ErrDirectoryCreationFailed
	case planner.OpCreateSymlink:
		return ErrLinkCreationFailed
	default:
		return ErrFileCopyFailed
	}
}

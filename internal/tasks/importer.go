package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/subshift/internal/formatter"
	"github.com/desertthunder/subshift/internal/queue"
	"github.com/desertthunder/subshift/internal/shared"
)

// state tracks how a source object got its target counterpart.
type state int

const (
	stateReused state = iota
	stateRecreated
	stateReverted
)

type record struct {
	targetID string
	state    state
}

// Importer moves one resource kind from the source account to the target,
// exactly once per source id. Lookups go through a deduplicator so
// concurrent migrations sharing a dependency (two subscriptions on the same
// price) trigger a single recreation, and results are memoized for the rest
// of the run. The durable dedupe signal is the source id tag on the target,
// which makes interrupted runs resumable.
type Importer[T any] struct {
	provider Provider[T]
	stats    *formatter.Stats
	logger   *log.Logger
	dedupe   queue.Deduplicator

	mu  sync.Mutex
	ids map[string]record
}

func NewImporter[T any](provider Provider[T], stats *formatter.Stats, logger *log.Logger) *Importer[T] {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Importer[T]{
		provider: provider,
		stats:    stats,
		logger:   shared.WithLogger(logger, "resource", provider.Name()),
		ids:      map[string]record{},
	}
}

// TargetID returns the memoized target id for a source id, if this run has
// resolved it already.
func (im *Importer[T]) TargetID(sourceID string) (string, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	r, ok := im.ids[sourceID]
	if !ok || r.state == stateReverted {
		return "", false
	}
	return r.targetID, true
}

func (im *Importer[T]) remember(sourceID, targetID string, s state) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.ids[sourceID] = record{targetID: targetID, state: s}
}

// Recreate ensures item exists on the target and returns the target id.
func (im *Importer[T]) Recreate(ctx context.Context, item T) (string, error) {
	return im.resolve(ctx, im.provider.ID(item), item, true)
}

// RecreateByID ensures the source object with the given id exists on the
// target, fetching it from the source first.
func (im *Importer[T]) RecreateByID(ctx context.Context, sourceID string) (string, error) {
	var zero T
	return im.resolve(ctx, sourceID, zero, false)
}

// RecreateByObjectOrID takes whichever handle the caller has: the full
// object when an expansion provided it, or just the id.
func (im *Importer[T]) RecreateByObjectOrID(ctx context.Context, sourceID string, item T, fetched bool) (string, error) {
	return im.resolve(ctx, sourceID, item, fetched)
}

func (im *Importer[T]) resolve(ctx context.Context, sourceID string, item T, fetched bool) (string, error) {
	if sourceID == "" {
		return "", &shared.ImportError{
			Resource: im.provider.Name(),
			SourceID: sourceID,
			Phase:    "recreate",
			Err:      fmt.Errorf("%w: empty source id", shared.ErrInvalidInput),
		}
	}

	key := fmt.Sprintf("%s:%s", im.provider.Name(), sourceID)
	return im.dedupe.Do(key, func() (string, error) {
		if targetID, ok := im.TargetID(sourceID); ok {
			return targetID, nil
		}

		targetID, err := im.provider.FindExisting(ctx, sourceID)
		if err != nil {
			return "", im.fail(sourceID, "lookup", err)
		}
		if targetID != "" {
			im.logger.Debug("reusing target object", "source_id", sourceID, "target_id", targetID)
			im.remember(sourceID, targetID, stateReused)
			im.stats.Record(im.provider.Name(), formatter.Reused)
			return targetID, nil
		}

		if !fetched {
			item, err = im.provider.GetByID(ctx, sourceID)
			if err != nil {
				return "", im.fail(sourceID, "fetch", err)
			}
		}

		targetID, err = im.provider.Recreate(ctx, item)
		if err != nil {
			return "", im.fail(sourceID, "recreate", err)
		}

		im.logger.Info("recreated", "source_id", sourceID, "target_id", targetID)
		im.remember(sourceID, targetID, stateRecreated)
		im.stats.Record(im.provider.Name(), formatter.Recreated)
		return targetID, nil
	})
}

// fail wraps err with resource context unless the provider already
// classified it.
func (im *Importer[T]) fail(sourceID, phase string, err error) error {
	var ie *shared.ImportError
	var iw *shared.ImportWarning
	if errors.As(err, &ie) || errors.As(err, &iw) {
		return err
	}
	return &shared.ImportError{
		Resource: im.provider.Name(),
		SourceID: sourceID,
		Phase:    phase,
		Err:      err,
	}
}

// RecreateAll migrates every eligible source object, fanned out over a
// bounded queue. Warnings skip the object and keep going; the returned error
// is nil unless at least one object failed for real.
func (im *Importer[T]) RecreateAll(ctx context.Context) error {
	group := shared.NewErrorGroup(im.provider.Name())
	fanout := queue.New(defaultFanout, 0)

	for item, err := range im.provider.GetAll(ctx) {
		if err != nil {
			group.Append(im.fail("", "list", err))
			break
		}

		fanout.Add(ctx, func() error {
			if _, err := im.Recreate(ctx, item); err != nil {
				if shared.IsWarning(err) {
					im.logger.Warn("skipped", "source_id", im.provider.ID(item), "reason", err)
					im.stats.Record(im.provider.Name(), formatter.Skipped)
					im.stats.Warn("%v", err)
				} else {
					im.logger.Error("failed", "source_id", im.provider.ID(item), "error", err)
					im.stats.Record(im.provider.Name(), formatter.Failed)
				}
				group.Append(err)
			}
			return nil
		})
	}
	if err := fanout.WaitUntilFinished(); err != nil {
		group.Append(err)
	}

	return group.ErrIfFatal()
}

// Revert undoes one target object by target id.
func (im *Importer[T]) Revert(ctx context.Context, targetID string) error {
	if err := im.provider.Revert(ctx, targetID); err != nil {
		return im.fail(targetID, "revert", err)
	}
	im.stats.Record(im.provider.Name(), formatter.Reverted)
	return nil
}

// RevertAll undoes every migrated object found on the target.
func (im *Importer[T]) RevertAll(ctx context.Context) error {
	group := shared.NewErrorGroup(im.provider.Name())

	for targetID, err := range im.provider.FindMigrated(ctx) {
		if err != nil {
			group.Append(im.fail("", "list", err))
			break
		}

		if err := im.Revert(ctx, targetID); err != nil {
			if shared.IsWarning(err) {
				im.stats.Record(im.provider.Name(), formatter.Skipped)
				im.stats.Warn("%v", err)
			} else {
				im.logger.Error("revert failed", "target_id", targetID, "error", err)
				im.stats.Record(im.provider.Name(), formatter.Failed)
			}
			group.Append(err)
		}
	}

	return group.ErrIfFatal()
}

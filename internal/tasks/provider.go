package tasks

import (
	"context"
	"errors"
	"iter"

	"github.com/stripe/stripe-go/v82"
)

// Provider adapts one billing resource kind to the generic import engine.
// T is the source object type; target objects are referenced by id only.
type Provider[T any] interface {
	// Name is the resource kind ("product", "price", ...), used for
	// stats, logs and error context.
	Name() string

	// ID returns the source object's id.
	ID(item T) string

	// GetByID fetches one source object.
	GetByID(ctx context.Context, id string) (T, error)

	// GetAll enumerates every source object eligible for migration.
	GetAll(ctx context.Context) iter.Seq2[T, error]

	// FindExisting looks on the target for an object already carrying the
	// source id tag. Returns the target id, or "" when none exists.
	FindExisting(ctx context.Context, sourceID string) (string, error)

	// FindMigrated enumerates target ids carrying a source id tag, newest
	// state on the target side. Used by revert.
	FindMigrated(ctx context.Context) iter.Seq2[string, error]

	// Recreate makes the target copy of item, tagging it with the source
	// id, and returns the new target id.
	Recreate(ctx context.Context, item T) (string, error)

	// Revert undoes a recreation on the target (deactivate, delete or
	// cancel depending on the resource).
	Revert(ctx context.Context, targetID string) error
}

// isNotFound reports whether err is the remote's missing-object answer.
func isNotFound(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.HTTPStatusCode == 404 || se.Code == stripe.ErrorCodeResourceMissing
}

// Package tasks orchestrates the migration of a recurring-billing book from one account to another.
//
// # Core Abstractions
//
// A [Provider] adapts one resource kind (product, price, coupon,
// subscription) to the generic [Importer], which guarantees each source
// object is recreated on the target at most once:
//
//  1. In-run: concurrent lookups for the same source id collapse through a
//     deduplicator and the result is memoized.
//  2. Across runs: every recreated object carries its source id in metadata,
//     and the importer reuses a tagged target object instead of recreating.
//
// Dependencies resolve on demand. Recreating a subscription pulls in its
// prices, each price pulls in its product, and discounts pull in their
// coupons, so a single-subscription copy moves exactly the catalog slice it
// needs.
//
// # Session Operations
//
// [Session] wires the importers over a source/target account pair:
//
//   - [Session.Copy] : migrate the catalog and subscriptions (optionally one
//     subscription), pausing source collection as each one moves
//   - [Session.Confirm] : finalize by canceling the paused sources
//   - [Session.Revert] : cancel target copies and resume the sources
//   - [Session.Touch] : rewrite marker tags so webhook consumers resync
//   - [Session.Resend] : replay undelivered target events via marker rewrites
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters and messages.
// Updates use select with default to prevent blocking.
//
// # Failure Model
//
// Per-object failures collect in a [shared.ErrorGroup] without stopping the
// batch. Expected skip conditions (a canceled source subscription, a coupon
// that is not the migration's to delete) are [shared.ImportWarning] values
// and never fail the run; anything else does.
package tasks

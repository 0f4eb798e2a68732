// Package services defines the [API] interface over a billing account and implements it twice: a live rate-limited Stripe client and a mutation-free dry-run decorator.
//
// # API Interface
//
// Both accounts involved in a migration sit behind the same abstraction, so the engine reads from one side and writes to the other without caring which is which.
//
// # Live Accounts
//
// [Account] wraps a Stripe client behind a bounded task queue.
//
// Every call holds a queue slot for at least one pacing unit, which turns the concurrency bound into an approximate requests-per-second cap. Test-mode credentials get a smaller budget than live ones; the mode is derived from the key's literal form. Transient failures (429, 5xx) retry with capped exponential backoff, each attempt taking its own paced slot.
//
// # Listings
//
// List operations return lazy [iter.Seq2] sequences that fetch pages on demand.
// [Paced] inserts a pause after every block of yielded items so long listings
// do not starve the account's request budget. Breaking out of the consuming
// range loop stops the underlying pagination.
//
// # Dry Runs
//
// [DryRun] passes reads through to the wrapped account and fabricates the result of every mutation with a synthetic "dry_"-prefixed id. Control flow, dependency resolution and report output match a live run; the account is never written to.
//
// # Error Handling
//
// Accounts use typed errors from the shared package:
//   - [shared.ErrMissingCredentials] : no key supplied by flag, env or config
//   - [shared.ErrInvalidCredentials] : key is not a secret key
//   - [shared.ErrAuthFailed] : the credential was rejected
//   - [shared.ErrAPIRequest] : a request failed after retries
package services

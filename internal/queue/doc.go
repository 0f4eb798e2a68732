// package queue implements the bounded-concurrency scheduling primitives the
// migration engine runs on: a task queue that converts a concurrency bound
// plus per-task padding into an approximate requests-per-second cap, and a
// deduplicator that collapses concurrent in-flight calls sharing a key.
package queue

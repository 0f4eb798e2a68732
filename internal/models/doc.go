// Package models defines the billing domain vocabulary shared by the
// migration engine and its providers.
//
// The package contains three categories of helpers:
//
// 1. Idempotency tags: the metadata keys written onto recreated target
// objects ([TagSourceID] and friends) and accessors over them. The source-id
// tag on a target object is the only durable cross-run migration state.
//
// 2. Payment instrument matching: [Fingerprint] identifies a card by
// type, brand, last4 and expiry, which is the only identity that survives
// crossing from one billing account to another.
//
// 3. Billing math: per-month volume normalization for recurring prices and
// the subscription period-end lookup used to place the new billing anchor.
package models

package services

import (
	"iter"
	"time"
)

// Listing rate limits: sleep listPause after every listPauseEvery items
// yielded from a paginated sequence, so long listings do not starve the
// account's request budget.
const (
	listPauseEvery = 100
	listPause      = 500 * time.Millisecond
)

// Paced wraps a lazy paginated sequence, sleeping pause after every nth
// yielded item. The sequence stays forward-only and non-restartable;
// breaking out of the consuming range loop stops the underlying listing.
func Paced[T any](seq iter.Seq2[T, error], every int, pause time.Duration) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		n := 0
		for v, err := range seq {
			if !yield(v, err) {
				return
			}
			n++
			if every > 0 && pause > 0 && n%every == 0 {
				time.Sleep(pause)
			}
		}
	}
}

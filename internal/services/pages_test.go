package services

import (
	"errors"
	"iter"
	"testing"
	"time"
)

func intSeq(vals []int, errAt int, err error) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i, v := range vals {
			if i == errAt {
				if !yield(0, err) {
					return
				}
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func TestPaced(t *testing.T) {
	t.Run("Yields All Items in Order", func(t *testing.T) {
		vals := []int{1, 2, 3, 4, 5}
		var got []int
		for v, err := range Paced(intSeq(vals, -1, nil), 2, time.Millisecond) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got = append(got, v)
		}

		if len(got) != len(vals) {
			t.Fatalf("expected %d items, got %d", len(vals), len(got))
		}
		for i, v := range vals {
			if got[i] != v {
				t.Errorf("expected %d at index %d, got %d", v, i, got[i])
			}
		}
	})

	t.Run("Propagates Errors", func(t *testing.T) {
		boom := errors.New("page fetch failed")
		var seen error
		for _, err := range Paced(intSeq([]int{1, 2, 3}, 1, boom), 0, 0) {
			if err != nil {
				seen = err
			}
		}

		if !errors.Is(seen, boom) {
			t.Errorf("expected listing error to surface, got %v", seen)
		}
	})

	t.Run("Stops When Consumer Breaks", func(t *testing.T) {
		count := 0
		for range Paced(intSeq([]int{1, 2, 3, 4}, -1, nil), 0, 0) {
			count++
			if count == 2 {
				break
			}
		}

		if count != 2 {
			t.Errorf("expected iteration to stop at 2, got %d", count)
		}
	})

	t.Run("Pauses Every Nth Item", func(t *testing.T) {
		pause := 20 * time.Millisecond
		start := time.Now()
		for _, err := range Paced(intSeq([]int{1, 2, 3, 4}, -1, nil), 2, pause) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if elapsed := time.Since(start); elapsed < 2*pause {
			t.Errorf("expected at least two pauses (%v), finished in %v", 2*pause, elapsed)
		}
	})

	t.Run("Zero Interval Disables Pacing", func(t *testing.T) {
		start := time.Now()
		for range Paced(intSeq([]int{1, 2, 3, 4, 5}, -1, nil), 0, time.Second) {
		}

		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("expected no pacing with interval 0, took %v", elapsed)
		}
	})
}

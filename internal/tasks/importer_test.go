package tasks

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/subshift/internal/formatter"
	"github.com/desertthunder/subshift/internal/shared"
)

// fakeItem is the minimal source object for exercising the import engine.
type fakeItem struct {
	id string
}

// fakeProvider is a hand-rolled Provider with per-call counters and
// injectable behavior.
type fakeProvider struct {
	mu        sync.Mutex
	items     map[string]fakeItem
	existing  map[string]string
	migrated  []string
	recreates int32
	inflight  int32
	reverts   int
	fetches   int

	recreateErr func(item fakeItem) error
	slowGate    chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		items:    map[string]fakeItem{},
		existing: map[string]string{},
	}
}

func (f *fakeProvider) Name() string          { return "widget" }
func (f *fakeProvider) ID(item fakeItem) string { return item.id }

func (f *fakeProvider) GetByID(ctx context.Context, id string) (fakeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	item, ok := f.items[id]
	if !ok {
		return fakeItem{}, fmt.Errorf("no widget %s", id)
	}
	return item, nil
}

func (f *fakeProvider) GetAll(ctx context.Context) iter.Seq2[fakeItem, error] {
	f.mu.Lock()
	items := make([]fakeItem, 0, len(f.items))
	for _, item := range f.items {
		items = append(items, item)
	}
	f.mu.Unlock()
	return func(yield func(fakeItem, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (f *fakeProvider) FindExisting(ctx context.Context, sourceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[sourceID], nil
}

func (f *fakeProvider) FindMigrated(ctx context.Context) iter.Seq2[string, error] {
	f.mu.Lock()
	ids := append([]string(nil), f.migrated...)
	f.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, id := range ids {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (f *fakeProvider) Recreate(ctx context.Context, item fakeItem) (string, error) {
	atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	if f.slowGate != nil {
		<-f.slowGate
	}
	if f.recreateErr != nil {
		if err := f.recreateErr(item); err != nil {
			return "", err
		}
	}
	atomic.AddInt32(&f.recreates, 1)
	return "tgt_" + item.id, nil
}

func (f *fakeProvider) Revert(ctx context.Context, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverts++
	return nil
}

func TestImporter(t *testing.T) {
	ctx := context.Background()

	t.Run("Recreates Once and Memoizes", func(t *testing.T) {
		provider := newFakeProvider()
		provider.items["w1"] = fakeItem{id: "w1"}
		im := NewImporter[fakeItem](provider, formatter.NewStats(), nil)

		first, err := im.RecreateByID(ctx, "w1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := im.RecreateByID(ctx, "w1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if first != "tgt_w1" || second != "tgt_w1" {
			t.Errorf("expected tgt_w1 both times, got %q then %q", first, second)
		}
		if provider.recreates != 1 {
			t.Errorf("expected exactly one recreation, got %d", provider.recreates)
		}
	})

	t.Run("Reuses Tagged Target Objects", func(t *testing.T) {
		provider := newFakeProvider()
		provider.existing["w1"] = "tgt_already"
		stats := formatter.NewStats()
		im := NewImporter[fakeItem](provider, stats, nil)

		got, err := im.RecreateByID(ctx, "w1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "tgt_already" {
			t.Errorf("expected reuse of tgt_already, got %q", got)
		}
		if provider.recreates != 0 {
			t.Errorf("expected no recreation, got %d", provider.recreates)
		}
		if stats.Count("widget", formatter.Reused) != 1 {
			t.Error("expected a reused tally")
		}
	})

	t.Run("Concurrent Calls Collapse", func(t *testing.T) {
		provider := newFakeProvider()
		provider.items["w1"] = fakeItem{id: "w1"}
		provider.slowGate = make(chan struct{})
		im := NewImporter[fakeItem](provider, formatter.NewStats(), nil)

		var wg sync.WaitGroup
		results := make([]string, 8)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], _ = im.RecreateByID(ctx, "w1")
			}()
		}
		close(provider.slowGate)
		wg.Wait()

		for i, r := range results {
			if r != "tgt_w1" {
				t.Errorf("caller %d got %q", i, r)
			}
		}
		if provider.recreates != 1 {
			t.Errorf("expected one recreation across 8 callers, got %d", provider.recreates)
		}
	})

	t.Run("Rejects Empty Source Id", func(t *testing.T) {
		im := NewImporter[fakeItem](newFakeProvider(), formatter.NewStats(), nil)
		_, err := im.RecreateByID(ctx, "")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Wraps Failures With Resource Context", func(t *testing.T) {
		provider := newFakeProvider()
		provider.items["w1"] = fakeItem{id: "w1"}
		boom := errors.New("remote said no")
		provider.recreateErr = func(fakeItem) error { return boom }
		im := NewImporter[fakeItem](provider, formatter.NewStats(), nil)

		_, err := im.RecreateByID(ctx, "w1")
		var ie *shared.ImportError
		if !errors.As(err, &ie) {
			t.Fatalf("expected ImportError, got %T", err)
		}
		if ie.Resource != "widget" || ie.SourceID != "w1" || ie.Phase != "recreate" {
			t.Errorf("bad context: %+v", ie)
		}
		if !errors.Is(err, boom) {
			t.Error("expected cause to remain unwrappable")
		}
	})

	t.Run("RecreateAll Skips Warnings and Continues", func(t *testing.T) {
		provider := newFakeProvider()
		provider.items["w1"] = fakeItem{id: "w1"}
		provider.items["w2"] = fakeItem{id: "w2"}
		provider.items["w3"] = fakeItem{id: "w3"}
		provider.recreateErr = func(item fakeItem) error {
			if item.id == "w2" {
				return &shared.ImportWarning{Resource: "widget", SourceID: "w2", Reason: "not eligible"}
			}
			return nil
		}
		stats := formatter.NewStats()
		im := NewImporter[fakeItem](provider, stats, nil)

		if err := im.RecreateAll(ctx); err != nil {
			t.Fatalf("warnings must not fail the batch: %v", err)
		}
		if provider.recreates != 2 {
			t.Errorf("expected 2 recreations, got %d", provider.recreates)
		}
		if stats.Count("widget", formatter.Skipped) != 1 {
			t.Error("expected 1 skipped tally")
		}
	})

	t.Run("RecreateAll Runs Items in Parallel", func(t *testing.T) {
		provider := newFakeProvider()
		for _, id := range []string{"w1", "w2", "w3", "w4"} {
			provider.items[id] = fakeItem{id: id}
		}
		provider.slowGate = make(chan struct{})
		im := NewImporter[fakeItem](provider, formatter.NewStats(), nil)

		done := make(chan error, 1)
		go func() { done <- im.RecreateAll(ctx) }()

		deadline := time.After(2 * time.Second)
		for atomic.LoadInt32(&provider.inflight) < 2 {
			select {
			case <-deadline:
				t.Error("recreations never overlapped")
				close(provider.slowGate)
				<-done
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
		close(provider.slowGate)

		if err := <-done; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if provider.recreates != 4 {
			t.Errorf("expected 4 recreations, got %d", provider.recreates)
		}
	})

	t.Run("RecreateAll Surfaces Fatal Errors After Finishing", func(t *testing.T) {
		provider := newFakeProvider()
		provider.items["w1"] = fakeItem{id: "w1"}
		provider.items["w2"] = fakeItem{id: "w2"}
		provider.recreateErr = func(item fakeItem) error {
			if item.id == "w1" {
				return errors.New("hard failure")
			}
			return nil
		}
		im := NewImporter[fakeItem](provider, formatter.NewStats(), nil)

		err := im.RecreateAll(ctx)
		if err == nil {
			t.Fatal("expected a fatal batch error")
		}
		var group *shared.ErrorGroup
		if !errors.As(err, &group) {
			t.Fatalf("expected ErrorGroup, got %T", err)
		}
		if provider.recreates != 1 {
			t.Errorf("expected the other widget to still migrate, got %d", provider.recreates)
		}
	})

	t.Run("RevertAll Undoes Migrated Targets", func(t *testing.T) {
		provider := newFakeProvider()
		provider.migrated = []string{"tgt_w1", "tgt_w2"}
		stats := formatter.NewStats()
		im := NewImporter[fakeItem](provider, stats, nil)

		if err := im.RevertAll(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if provider.reverts != 2 {
			t.Errorf("expected 2 reverts, got %d", provider.reverts)
		}
		if stats.Count("widget", formatter.Reverted) != 2 {
			t.Error("expected 2 reverted tallies")
		}
	})
}

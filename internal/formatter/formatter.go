// package formatter accumulates per-run migration statistics and renders the end-of-run report
package formatter

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/desertthunder/subshift/internal/ui"
)

// Outcome classifies what happened to one object during a run.
type Outcome string

const (
	Recreated Outcome = "recreated"
	Reused    Outcome = "reused"
	Skipped   Outcome = "skipped"
	Failed    Outcome = "failed"
	Reverted  Outcome = "reverted"
	Confirmed Outcome = "confirmed"
	Touched   Outcome = "touched"
	Resent    Outcome = "resent"
)

// reportOrder fixes the resource ordering in the rendered report.
var reportOrder = []string{"product", "price", "coupon", "subscription", "invoice", "event"}

// Stats collects counters for a single run. Safe for use from the queue's
// worker goroutines.
type Stats struct {
	mu        sync.Mutex
	started   time.Time
	counts    map[string]map[Outcome]int
	subStatus map[string]int
	volume    map[string]decimal.Decimal
	warnings  []string
}

func NewStats() *Stats {
	return &Stats{
		started:   time.Now(),
		counts:    map[string]map[Outcome]int{},
		subStatus: map[string]int{},
		volume:    map[string]decimal.Decimal{},
	}
}

// Record counts one outcome for a resource kind ("product", "price", ...).
func (s *Stats) Record(resource string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[resource] == nil {
		s.counts[resource] = map[Outcome]int{}
	}
	s.counts[resource][outcome]++
}

// RecordSubscriptionStatus tallies the source status of a migrated
// subscription (active, trialing, past_due).
func (s *Stats) RecordSubscriptionStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subStatus[status]++
}

// AddMonthlyVolume adds a subscription's normalized per-month amount, in the
// currency's minor unit, to the running total for that currency.
func (s *Stats) AddMonthlyVolume(currency string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := strings.ToUpper(currency)
	s.volume[cur] = s.volume[cur].Add(amount)
}

// Warn records a non-fatal problem for the report's warning section.
func (s *Stats) Warn(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

// Count returns the tally for one resource and outcome.
func (s *Stats) Count(resource string, outcome Outcome) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[resource][outcome]
}

// Total sums one outcome across every resource kind.
func (s *Stats) Total(outcome Outcome) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Sum(lo.Map(lo.Values(s.counts), func(m map[Outcome]int, _ int) int {
		return m[outcome]
	}))
}

// Failures reports how many objects failed across all resources.
func (s *Stats) Failures() int { return s.Total(Failed) }

// Elapsed is the wall-clock duration since the run started.
func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.started).Round(time.Millisecond)
}

// Report renders the end-of-run summary. The label names the operation and
// target account ("copy to sk_live_...4242 (live)").
func (s *Stats) Report(label string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString(ui.Title(label))
	b.WriteString("\n")

	resources := lo.Filter(reportOrder, func(r string, _ int) bool {
		return len(s.counts[r]) > 0
	})
	for _, resource := range resources {
		outcomes := s.counts[resource]
		line := fmt.Sprintf("%-13s", resource+"s")
		for _, outcome := range []Outcome{Recreated, Reused, Reverted, Confirmed, Touched, Resent, Skipped, Failed} {
			n := outcomes[outcome]
			if n == 0 {
				continue
			}
			cell := fmt.Sprintf(" %d %s", n, outcome)
			switch outcome {
			case Failed:
				cell = ui.Err(cell)
			case Skipped:
				cell = ui.Warn(cell)
			}
			line += cell
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(s.subStatus) > 0 {
		statuses := lo.Keys(s.subStatus)
		sort.Strings(statuses)
		parts := lo.Map(statuses, func(status string, _ int) string {
			return fmt.Sprintf("%d %s", s.subStatus[status], status)
		})
		b.WriteString(fmt.Sprintf("by status     %s\n", strings.Join(parts, ", ")))
	}

	if len(s.volume) > 0 {
		currencies := lo.Keys(s.volume)
		sort.Strings(currencies)
		parts := lo.Map(currencies, func(cur string, _ int) string {
			return fmt.Sprintf("%s %s", s.volume[cur].Shift(-2).StringFixed(2), cur)
		})
		b.WriteString(fmt.Sprintf("monthly vol   %s\n", strings.Join(parts, ", ")))
	}

	for _, w := range s.warnings {
		b.WriteString(ui.Warn(fmt.Sprintf("warning: %s", w)))
		b.WriteString("\n")
	}

	elapsed := time.Since(s.started).Round(time.Millisecond)
	b.WriteString(ui.Help(fmt.Sprintf("done in %s", elapsed)))
	b.WriteString("\n")

	return b.String()
}

package dispatch

import (
	"fmt"
	"sort"
	"time"

	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/store"
)

// FallbackReasoning is the fixed reasoning string recorded whenever the
// deterministic sorter is used instead of a model ordering.
const FallbackReasoning = "Applied basic priority sorting by job urgency and type"

// Fallback produces a deterministic dispatch ordering: jobs sorted by the
// fixed priority label ordering urgent < high < medium < low, ties broken
// by input order, with evenly spaced time slots across the work window.
func Fallback(jobs []*store.Job, p prefs.Preferences) *Result {
	ordered := make([]*store.Job, len(jobs))
	copy(ordered, jobs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return store.PriorityRank(ordered[i].Priority) < store.PriorityRank(ordered[j].Priority)
	})

	slots := evenSlots(p.WorkStart, p.WorkEnd, len(ordered))

	prioritized := make([]PrioritizedJob, len(ordered))
	for i, job := range ordered {
		prioritized[i] = PrioritizedJob{
			JobID:         job.ID,
			Rank:          i + 1,
			ScheduledSlot: slots[i],
			Reason:        fmt.Sprintf("%s priority %s job", job.Priority, job.Type),
		}
	}

	return &Result{
		PrioritizedJobs:       prioritized,
		SchedulingConstraints: map[string]any{},
		Recommendations:       []string{},
		AgentReasoning:        FallbackReasoning,
	}
}

// evenSlots spreads n start times evenly across the work window. A window
// that fails to parse falls back to 08:00-17:00.
func evenSlots(workStart, workEnd string, n int) []string {
	if n == 0 {
		return nil
	}

	start, err1 := time.Parse("15:04", workStart)
	end, err2 := time.Parse("15:04", workEnd)
	if err1 != nil || err2 != nil || !end.After(start) {
		start, _ = time.Parse("15:04", "08:00")
		end, _ = time.Parse("15:04", "17:00")
	}

	window := end.Sub(start)
	step := window / time.Duration(n)

	slots := make([]string, n)
	for i := 0; i < n; i++ {
		slots[i] = start.Add(time.Duration(i) * step).Format("15:04")
	}
	return slots
}

package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/tutu-network/cascade/internal/app/schedule"
	"github.com/tutu-network/cascade/internal/domain"
)

// optionalDate parses a YYYY-MM-DD flag value; empty means unset.
func optionalDate(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: want YYYY-MM-DD: %w", flag, err)
	}
	return &t, nil
}

func day(t time.Time) string {
	return t.Format(domain.DateLayout)
}

// printOutcome reports a command's moved tasks, skipped pinned tasks
// and warnings.
func printOutcome(w io.Writer, out *schedule.Outcome) {
	if out == nil {
		return
	}
	if o := out.Origin; o != nil {
		fmt.Fprintf(w, "%s: %s..%s -> %s..%s\n", o.TaskID, day(o.OldStart), day(o.OldEnd), day(o.NewStart), day(o.NewEnd))
	}
	for _, d := range out.Result.Affected {
		if d.Skipped {
			fmt.Fprintf(w, "  %s: pinned, left at %s..%s\n", d.TaskID, day(d.OldStart), day(d.OldEnd))
			continue
		}
		fmt.Fprintf(w, "  %s: %s..%s -> %s..%s\n", d.TaskID, day(d.OldStart), day(d.OldEnd), day(d.NewStart), day(d.NewEnd))
	}
	for _, wn := range out.Result.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", wn)
	}
	if n := len(out.Result.Changed()); n > 0 {
		fmt.Fprintf(w, "%d dependent task(s) shifted\n", n)
	}
}

// printSchedules writes CPM figures as a table ordered by earliest start.
func printSchedules(w io.Writer, schedules map[domain.TaskID]domain.Schedule) error {
	ids := make([]domain.TaskID, 0, len(schedules))
	for id := range schedules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := schedules[ids[i]], schedules[ids[j]]
		if !a.EarliestStart.Equal(b.EarliestStart) {
			return a.EarliestStart.Before(b.EarliestStart)
		}
		return ids[i] < ids[j]
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tES\tEF\tLS\tLF\tFLOAT\tCRITICAL")
	for _, id := range ids {
		s := schedules[id]
		mark := ""
		if s.IsCritical {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			id, day(s.EarliestStart), day(s.EarliestFinish), day(s.LatestStart), day(s.LatestFinish), s.FloatDays, mark)
	}
	return tw.Flush()
}

package analytics

import (
	"strconv"
	"time"
)

const (
	// WindowDays is how far back totals reach from the start of today.
	WindowDays = 7
	// ChartDays is the number of day buckets, today included.
	ChartDays = 7
	TopN      = 5
)

// Window is the trailing analytics range [Start, End) in Location.
// Start is midnight WindowDays before today, so bills from that first
// day count toward totals but fall outside the chart buckets.
type Window struct {
	Start    time.Time
	End      time.Time
	Today    time.Time
	Location *time.Location
}

func NewWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	today := startOfDay(now.In(loc))
	return Window{
		Start:    today.AddDate(0, 0, -WindowDays),
		End:      today.AddDate(0, 0, 1),
		Today:    today,
		Location: loc,
	}
}

// Days returns the chart days oldest first, ending with today.
func (w Window) Days() []time.Time {
	days := make([]time.Time, ChartDays)
	for i := 0; i < ChartDays; i++ {
		days[i] = w.Today.AddDate(0, 0, i-(ChartDays-1))
	}
	return days
}

func (w Window) Labels() []string {
	days := w.Days()
	labels := make([]string, len(days))
	for i, day := range days {
		labels[i] = DayLabel(day, w.Location)
	}
	return labels
}

// DayLabel formats the calendar day of t in loc as "D/M" without
// padding, e.g. "5/3" for 5 March. The label is not year-qualified.
func DayLabel(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return strconv.Itoa(local.Day()) + "/" + strconv.Itoa(int(local.Month()))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

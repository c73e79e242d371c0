package activity

import (
	"sort"
	"time"
)

// ComputeStreak derives the current and longest run of consecutive active days.
// The current streak is alive only when the latest activity is today or
// yesterday relative to now. previousLongest carries the longest streak seen by
// earlier computations so that history shrinking never lowers it.
func ComputeStreak(dates []time.Time, previousLongest int, now time.Time) Streak {
	if previousLongest < 0 {
		previousLongest = 0
	}
	days := distinctDays(dates, now.Location())
	if len(days) == 0 {
		return Streak{Longest: previousLongest}
	}

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if daysBetween(days[i-1], days[i]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	last := days[len(days)-1]
	current := 0
	if daysBetween(last, DayStart(now, now.Location())) <= 1 {
		current = 1
		for i := len(days) - 1; i > 0; i-- {
			if daysBetween(days[i-1], days[i]) != 1 {
				break
			}
			current++
		}
	}

	if previousLongest > longest {
		longest = previousLongest
	}
	return Streak{Current: current, Longest: longest, LastActivity: &last}
}

// distinctDays normalizes dates to midnight, drops duplicates and sorts.
func distinctDays(dates []time.Time, loc *time.Location) []time.Time {
	seen := make(map[time.Time]bool, len(dates))
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		day := DayStart(d, loc)
		if seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// daysBetween counts calendar days from a to b. Both must be midnights in the
// same location; DST shifts are absorbed by rounding.
func daysBetween(a, b time.Time) int {
	h := b.Sub(a).Hours()
	if h >= 0 {
		return int(h/24 + 0.5)
	}
	return -int(-h/24 + 0.5)
}

package activity

import (
	"sort"
	"time"
)

// Dated is a score attached to a calendar date.
type Dated struct {
	Date  time.Time
	Score int
}

// Buckets holds the daily, weekly and monthly rollups of a set of dated scores.
type Buckets struct {
	Daily   []Bucket
	Weekly  []Bucket
	Monthly []Bucket
	Current CurrentScores
}

// DayStart returns midnight of t's day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// WeekStart returns midnight of the most recent Sunday at or before t.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	d := DayStart(t, loc)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// MonthStart returns midnight of the first day of t's month.
func MonthStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// Bucketize sums dated scores into day, week and month buckets keyed by the
// bucket start, and computes the totals of the periods containing now. Bucket
// boundaries use now's location.
func Bucketize(entries []Dated, now time.Time) Buckets {
	loc := now.Location()
	daily := make(map[time.Time]int)
	weekly := make(map[time.Time]int)
	monthly := make(map[time.Time]int)

	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		daily[DayStart(e.Date, loc)] += e.Score
		weekly[WeekStart(e.Date, loc)] += e.Score
		monthly[MonthStart(e.Date, loc)] += e.Score
	}

	thisMonth := MonthStart(now, loc)
	return Buckets{
		Daily:   sortedBuckets(daily),
		Weekly:  sortedBuckets(weekly),
		Monthly: sortedBuckets(monthly),
		Current: CurrentScores{
			Today:     daily[DayStart(now, loc)],
			ThisWeek:  weekly[WeekStart(now, loc)],
			ThisMonth: monthly[thisMonth],
			LastMonth: monthly[thisMonth.AddDate(0, -1, 0)],
		},
	}
}

func sortedBuckets(m map[time.Time]int) []Bucket {
	out := make([]Bucket, 0, len(m))
	for start, score := range m {
		out = append(out, Bucket{Start: start, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

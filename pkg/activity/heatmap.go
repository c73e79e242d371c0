package activity

import "time"

const (
	HeatmapWeeks   = 53
	HeatmapDays    = 7
	HeatmapCeiling = 10
	heatmapWindow  = 365
)

// Heatmap is a week-by-weekday activity grid over a rolling year.
type Heatmap [HeatmapWeeks][HeatmapDays]int

// Total sums all cells.
func (h *Heatmap) Total() int {
	total := 0
	for w := range h {
		for d := range h[w] {
			total += h[w][d]
		}
	}
	return total
}

// BuildHeatmap counts activity dates within [midnight(now)-365d, now] into a
// 53x7 grid. The week index is clamped to the grid; dates outside the window
// are dropped and cell values are capped at HeatmapCeiling.
func BuildHeatmap(dates []time.Time, now time.Time) Heatmap {
	var grid Heatmap
	loc := now.Location()
	today := DayStart(now, loc)
	start := today.AddDate(0, 0, -heatmapWindow)

	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		day := DayStart(d, loc)
		if day.Before(start) || day.After(today) {
			continue
		}
		week := daysBetween(start, day) / 7
		if week < 0 {
			week = 0
		}
		if week > HeatmapWeeks-1 {
			week = HeatmapWeeks - 1
		}
		wd := int(day.Weekday())
		if grid[week][wd] < HeatmapCeiling {
			grid[week][wd]++
		}
	}
	return grid
}

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/jedib0t/go-pretty/v6/table"
)

var heatShades = []rune{'·', '░', '▒', '▓', '█'}

func renderRecord(w io.Writer, rec *activity.Record) {
	fmt.Fprintf(w, "%s  score %s  (updated %s, v%d)\n",
		rec.Entity, humanize.Comma(int64(rec.TotalScore)), humanize.Time(rec.LastUpdated), rec.Version)
	fmt.Fprintf(w, "today %d | this week %d | this month %d | last month %d\n",
		rec.Current.Today, rec.Current.ThisWeek, rec.Current.ThisMonth, rec.Current.LastMonth)

	streak := fmt.Sprintf("streak %d days (longest %d)", rec.Streak.Current, rec.Streak.Longest)
	if rec.Streak.LastActivity != nil {
		streak += ", last active " + humanize.Time(*rec.Streak.LastActivity)
	}
	fmt.Fprintln(w, streak)

	if ext := rec.External; ext != nil {
		fmt.Fprintf(w, "github %s: score %d, %s contributions, %d repos, fetched %s\n",
			ext.Username, ext.Score, humanize.Comma(int64(ext.CalendarTotal)),
			len(ext.Repositories), humanize.Time(ext.LastFetched))
	}

	fmt.Fprintln(w)
	fmt.Fprint(w, heatmapString(rec.Grid))
	fmt.Fprintln(w)

	if len(rec.Entries) == 0 {
		fmt.Fprintln(w, "no activity")
		return
	}
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Date", "Category", "Activity", "Score"})
	for _, e := range rec.Entries {
		date := "-"
		if e.Date != nil {
			date = e.Date.Format(time.DateOnly)
		}
		tbl.AppendRow(table.Row{date, e.Category, e.Label, e.Score})
	}
	tbl.AppendFooter(table.Row{"", "", fmt.Sprintf("%d entries", len(rec.Entries)), rec.EntriesScore()})
	tbl.Render()
}

// heatmapString draws the grid with one column per week and one row per
// weekday, Sunday first.
func heatmapString(grid activity.Heatmap) string {
	days := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	var b strings.Builder
	for d := 0; d < activity.HeatmapDays; d++ {
		b.WriteString(days[d])
		b.WriteByte(' ')
		for wk := 0; wk < activity.HeatmapWeeks; wk++ {
			b.WriteRune(shade(grid[wk][d]))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func shade(n int) rune {
	switch {
	case n <= 0:
		return heatShades[0]
	case n == 1:
		return heatShades[1]
	case n <= 3:
		return heatShades[2]
	case n <= 6:
		return heatShades[3]
	}
	return heatShades[4]
}

func renderStandings(w io.Writer, standings []activity.Standing) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"#", "Entity", "Score", "Streak", "Updated"})
	for i, s := range standings {
		tbl.AppendRow(table.Row{
			i + 1,
			s.Entity.ID,
			humanize.Comma(int64(s.TotalScore)),
			fmt.Sprintf("%d/%d", s.Streak.Current, s.Streak.Longest),
			humanize.Time(s.LastUpdated),
		})
	}
	tbl.Render()
}

func renderBatch(w io.Writer, kind activity.EntityKind, res activity.BatchResult) {
	fmt.Fprintf(w, "%s batch %s: %d succeeded, %d failed in %s\n",
		kind, res.RunID, res.Succeeded, len(res.Failed), res.Duration.Round(time.Millisecond))
	if len(res.Failed) == 0 {
		return
	}
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Entity", "Error"})
	for _, f := range res.Failed {
		tbl.AppendRow(table.Row{f.Entity.String(), f.Err})
	}
	tbl.Render()
}

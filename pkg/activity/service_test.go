package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_OnEventCreated(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	svc := NewService(f.manager)

	rec, err := svc.OnEventCreated(context.Background(), "acme", OrganizerRole{
		EventID:          "conf-1",
		EventName:        "Conf",
		Date:             day(0),
		ParticipantCount: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, acme, rec.Entity)
	assert.Equal(t, 25, rec.TotalScore, "defaults to the head tier")
	require.Len(t, rec.Entries, 1)
	assert.Equal(t, RoleHead, rec.Entries[0].Organizer.Role)
	assert.Equal(t, 25, rec.Current.Today)
	assert.Equal(t, 1, rec.Streak.Current)
	assert.Zero(t, f.sources.participationCalls.Load())
}

func TestService_OnReviewApproved(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.seedAlice()
	svc := NewService(f.manager)
	ctx := context.Background()

	rec, err := svc.OnReviewApproved(ctx, alice, Review{ReviewID: "r9", Rating: 2, Status: "pending", Date: day(0)})
	require.NoError(t, err)
	assert.Nil(t, rec, "non-approved reviews are ignored")
	assert.Zero(t, f.sources.calls())

	rec, err = svc.OnReviewApproved(ctx, alice, Review{ReviewID: "r9", Rating: 2, Status: "Approved", Date: day(0)})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 103+9, rec.TotalScore)
}

func TestService_OnParticipationRegistered(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.seedAlice()
	svc := NewService(f.manager)
	ctx := context.Background()

	_, err := svc.GetActivity(ctx, alice, false)
	require.NoError(t, err)

	f.sources.mu.Lock()
	f.sources.participations["alice"] = append(f.sources.participations["alice"],
		Participation{EventID: "hack-2", EventName: "Hack 2", Date: day(0), ParticipantCount: 20, Position: 3})
	f.sources.mu.Unlock()

	rec, err := svc.OnParticipationRegistered(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 103+16, rec.TotalScore)
	assert.True(t, rec.HasEntry(CategoryParticipation, "hack-2"))

	rec, err = svc.OnTeamMembershipChanged(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 103+16, rec.TotalScore)
	assert.Equal(t, int64(12), f.sources.calls())
}

func TestService_GetTopEntities(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	f.seedAlice()
	bob := EntityRef{Kind: KindUser, ID: "bob"}
	carol := EntityRef{Kind: KindUser, ID: "carol"}
	f.sources.reviews[bob] = []Review{{ReviewID: "rb", Rating: 0, Status: ReviewApproved, Date: day(-30)}}
	f.sources.memberships[carol] = []Membership{{OrgID: "acme", OrgName: "Acme"}}
	svc := NewService(f.manager)
	ctx := context.Background()

	for _, ref := range []EntityRef{alice, bob, carol, acme} {
		_, err := svc.GetActivity(ctx, ref, false)
		require.NoError(t, err)
	}

	ids := func(standings []Standing) []string {
		out := make([]string, len(standings))
		for i, s := range standings {
			out[i] = s.Entity.ID
		}
		return out
	}

	all, err := svc.GetTopEntities(ctx, KindUser, 0, PeriodAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol", "bob"}, ids(all))
	assert.Equal(t, 103, all[0].TotalScore)

	limited, err := svc.GetTopEntities(ctx, KindUser, 2, PeriodAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, ids(limited))

	week, err := svc.GetTopEntities(ctx, KindUser, 10, PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ids(week))

	year, err := svc.GetTopEntities(ctx, KindUser, 10, PeriodYear)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ids(year))

	orgs, err := svc.GetTopEntities(ctx, KindOrganization, 10, PeriodAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, ids(orgs))
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Period
	}{
		{"", PeriodAll},
		{"all", PeriodAll},
		{"today", PeriodDay},
		{"7d", PeriodWeek},
		{" Month ", PeriodMonth},
		{"y", PeriodYear},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParsePeriod(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParsePeriod("fortnight")
	require.Error(t, err)
}

func TestPeriod_Since(t *testing.T) {
	t.Parallel()

	assert.True(t, PeriodAll.Since(testNow).IsZero())
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), PeriodDay.Since(testNow))
	assert.Equal(t, time.Date(2026, 10, 9, 0, 0, 0, 0, time.UTC), PeriodWeek.Since(testNow))
	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), PeriodMonth.Since(testNow))
	assert.Equal(t, time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC), PeriodYear.Since(testNow))
}

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/elonfeng/repscore/internal/store"
	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const fixtureYAML = `
entities:
  - {kind: user, id: alice, name: Alice, github_username: alice-gh}
  - {kind: organization, id: acme, name: Acme}
participations:
  - {user_id: alice, event_id: hack-1, event_name: Hackathon, date: 2026-10-10T10:00:00Z, participant_count: 150, position: 1}
organizer_roles:
  - {kind: organization, entity_id: acme, event_id: conf-1, event_name: Conf, role: head, participant_count: 300}
memberships:
  - {kind: user, entity_id: alice, org_id: acme, org_name: Acme, team_name: core}
reviews:
  - {kind: user, entity_id: alice, review_id: r1, rating: 4, status: approved, date: 2026-10-11T10:00:00Z}
  - {kind: user, entity_id: alice, review_id: r2, rating: 5, status: pending}
`

func TestSeed(t *testing.T) {
	t.Parallel()

	var fx fixture
	require.NoError(t, yaml.Unmarshal([]byte(fixtureYAML), &fx))

	db, err := store.New(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, seed(ctx, db, &fx))
	// Seeding is idempotent.
	require.NoError(t, seed(ctx, db, &fx))

	users, err := db.ListEntities(ctx, activity.KindUser)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	username, err := db.ExternalUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice-gh", username)

	parts, err := db.ListParticipationsByEntity(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, 1, parts[0].Position)

	roles, err := db.ListOrganizerRolesByEntity(ctx, activity.EntityRef{Kind: activity.KindOrganization, ID: "acme"})
	require.NoError(t, err)
	assert.Len(t, roles, 1)

	reviews, err := db.ListApprovedReviewsByEntity(ctx, activity.EntityRef{Kind: activity.KindUser, ID: "alice"})
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "r1", reviews[0].ReviewID)
}

func TestSeed_UnknownKind(t *testing.T) {
	t.Parallel()

	db, err := store.New(filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	defer db.Close()

	fx := &fixture{Entities: []store.Entity{{Kind: "team", ID: "t1"}}}
	require.Error(t, seed(context.Background(), db, fx))
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]activity.EntityKind{
		"user":         activity.KindUser,
		"organization": activity.KindOrganization,
		"org":          activity.KindOrganization,
	} {
		got, err := parseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := parseKind("team")
	require.Error(t, err)
}

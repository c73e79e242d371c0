package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/elonfeng/repscore/pkg/activity"
)

// Entity is a row of the entities directory.
type Entity struct {
	Kind           activity.EntityKind `db:"kind" yaml:"kind"`
	ID             string              `db:"id" yaml:"id"`
	Name           string              `db:"name" yaml:"name"`
	GitHubUsername string              `db:"github_username" yaml:"github_username"`
}

func (s *SQLiteStore) ListParticipationsByEntity(ctx context.Context, userID string) ([]activity.Participation, error) {
	var out []activity.Participation
	err := s.db.SelectContext(ctx, &out, `
		SELECT event_id, event_name, event_date, participant_count, position
		FROM participations WHERE user_id = ? ORDER BY event_date, event_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list participations %s: %w", userID, err)
	}
	return out, nil
}

func (s *SQLiteStore) ListOrganizerRolesByEntity(ctx context.Context, ref activity.EntityRef) ([]activity.OrganizerRole, error) {
	var out []activity.OrganizerRole
	err := s.db.SelectContext(ctx, &out, `
		SELECT event_id, event_name, role, event_date, participant_count
		FROM organizer_roles WHERE entity_kind = ? AND entity_id = ? ORDER BY event_date, event_id
	`, ref.Kind, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list organizer roles %s: %w", ref, err)
	}
	return out, nil
}

func (s *SQLiteStore) ListMembershipsByEntity(ctx context.Context, ref activity.EntityRef) ([]activity.Membership, error) {
	var out []activity.Membership
	err := s.db.SelectContext(ctx, &out, `
		SELECT org_id, org_name, role, team_name, joined_at
		FROM memberships WHERE entity_kind = ? AND entity_id = ? ORDER BY org_id, team_name
	`, ref.Kind, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships %s: %w", ref, err)
	}
	return out, nil
}

func (s *SQLiteStore) ListApprovedReviewsByEntity(ctx context.Context, ref activity.EntityRef) ([]activity.Review, error) {
	var out []activity.Review
	err := s.db.SelectContext(ctx, &out, `
		SELECT review_id, rating, status, reviewed_at
		FROM reviews WHERE entity_kind = ? AND entity_id = ? AND status = ? ORDER BY reviewed_at, review_id
	`, ref.Kind, ref.ID, activity.ReviewApproved)
	if err != nil {
		return nil, fmt.Errorf("list reviews %s: %w", ref, err)
	}
	return out, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context, kind activity.EntityKind) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM entities WHERE kind = ? ORDER BY id", kind); err != nil {
		return nil, fmt.Errorf("list %s entities: %w", kind, err)
	}
	return ids, nil
}

func (s *SQLiteStore) ExternalUsername(ctx context.Context, userID string) (string, error) {
	var username string
	err := s.db.GetContext(ctx, &username,
		"SELECT github_username FROM entities WHERE kind = ? AND id = ?", activity.KindUser, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("external username %s: %w", userID, err)
	}
	return username, nil
}

// The writers below stand in for the collaborator services that own these
// tables; they back the seed command and tests.

func (s *SQLiteStore) UpsertEntity(ctx context.Context, e Entity) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO entities (kind, id, name, github_username)
		VALUES (:kind, :id, :name, :github_username)
		ON CONFLICT(kind, id) DO UPDATE SET
			name = excluded.name,
			github_username = excluded.github_username
	`, e)
	if err != nil {
		return fmt.Errorf("upsert entity %s:%s: %w", e.Kind, e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) AddParticipation(ctx context.Context, userID string, p activity.Participation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participations (user_id, event_id, event_name, event_date, participant_count, position)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, event_id) DO UPDATE SET
			event_name = excluded.event_name,
			event_date = excluded.event_date,
			participant_count = excluded.participant_count,
			position = excluded.position
	`, userID, p.EventID, p.EventName, p.Date, p.ParticipantCount, p.Position)
	if err != nil {
		return fmt.Errorf("add participation %s/%s: %w", userID, p.EventID, err)
	}
	return nil
}

func (s *SQLiteStore) AddOrganizerRole(ctx context.Context, ref activity.EntityRef, r activity.OrganizerRole) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizer_roles (entity_kind, entity_id, event_id, event_name, role, event_date, participant_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_kind, entity_id, event_id) DO UPDATE SET
			event_name = excluded.event_name,
			role = excluded.role,
			event_date = excluded.event_date,
			participant_count = excluded.participant_count
	`, ref.Kind, ref.ID, r.EventID, r.EventName, r.Role, r.Date, r.ParticipantCount)
	if err != nil {
		return fmt.Errorf("add organizer role %s/%s: %w", ref, r.EventID, err)
	}
	return nil
}

func (s *SQLiteStore) AddMembership(ctx context.Context, ref activity.EntityRef, m activity.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (entity_kind, entity_id, org_id, org_name, role, team_name, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_kind, entity_id, org_id, team_name) DO UPDATE SET
			org_name = excluded.org_name,
			role = excluded.role,
			joined_at = excluded.joined_at
	`, ref.Kind, ref.ID, m.OrgID, m.OrgName, m.Role, m.TeamName, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("add membership %s/%s: %w", ref, m.OrgID, err)
	}
	return nil
}

func (s *SQLiteStore) AddReview(ctx context.Context, ref activity.EntityRef, r activity.Review) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (review_id, entity_kind, entity_id, rating, status, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(review_id) DO UPDATE SET
			rating = excluded.rating,
			status = excluded.status,
			reviewed_at = excluded.reviewed_at
	`, r.ReviewID, ref.Kind, ref.ID, r.Rating, r.Status, r.Date)
	if err != nil {
		return fmt.Errorf("add review %s: %w", r.ReviewID, err)
	}
	return nil
}

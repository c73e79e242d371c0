package activity

import (
	"context"
	"time"
)

// Participation is an event the user registered for.
type Participation struct {
	EventID          string     `json:"event_id" db:"event_id"`
	EventName        string     `json:"event_name" db:"event_name"`
	Date             *time.Time `json:"date" db:"event_date"`
	ParticipantCount int        `json:"participant_count" db:"participant_count"`
	Position         int        `json:"position" db:"position"`
}

// OrganizerRole is an event the entity organized, with its role tier.
type OrganizerRole struct {
	EventID          string     `json:"event_id" db:"event_id" validate:"required"`
	EventName        string     `json:"event_name" db:"event_name" validate:"required"`
	Role             string     `json:"role" db:"role"`
	Date             *time.Time `json:"date" db:"event_date"`
	ParticipantCount int        `json:"participant_count" db:"participant_count" validate:"gte=0"`
}

// Membership is an organization or team the entity belongs to.
type Membership struct {
	OrgID    string     `json:"org_id" db:"org_id"`
	OrgName  string     `json:"org_name" db:"org_name"`
	Role     string     `json:"role" db:"role"`
	TeamName string     `json:"team_name" db:"team_name"`
	JoinedAt *time.Time `json:"joined_at" db:"joined_at"`
}

// Review is a review of an entity.
type Review struct {
	ReviewID string     `json:"review_id" db:"review_id" validate:"required"`
	Rating   int        `json:"rating" db:"rating" validate:"gte=0,lte=5"`
	Status   string     `json:"status" db:"status"`
	Date     *time.Time `json:"date" db:"reviewed_at"`
}

// ParticipationStore lists event participations of a user.
type ParticipationStore interface {
	ListParticipationsByEntity(ctx context.Context, userID string) ([]Participation, error)
}

// Roster lists organizer roles and memberships of an entity.
type Roster interface {
	ListOrganizerRolesByEntity(ctx context.Context, ref EntityRef) ([]OrganizerRole, error)
	ListMembershipsByEntity(ctx context.Context, ref EntityRef) ([]Membership, error)
}

// ReviewStore lists approved reviews of an entity.
type ReviewStore interface {
	ListApprovedReviewsByEntity(ctx context.Context, ref EntityRef) ([]Review, error)
}

// Directory enumerates entities and resolves linked external usernames.
type Directory interface {
	ListEntities(ctx context.Context, kind EntityKind) ([]string, error)
	ExternalUsername(ctx context.Context, userID string) (string, error)
}

// ExternalAdapter fetches and scores a user's external contributions.
type ExternalAdapter interface {
	Contribution(ctx context.Context, username string) (*ExternalContribution, error)
}

// RecordStore persists activity records. Save must reject a record whose
// Version does not match the stored one with ErrVersionConflict, and bump
// Version on success.
type RecordStore interface {
	GetRecord(ctx context.Context, ref EntityRef) (*Record, error)
	SaveRecord(ctx context.Context, rec *Record) error
	TopRecords(ctx context.Context, kind EntityKind, since time.Time, limit int) ([]Record, error)
}

// Sources bundles the collaborators the aggregator reads from.
type Sources struct {
	Participations ParticipationStore
	Roster         Roster
	Reviews        ReviewStore
	Directory      Directory
}

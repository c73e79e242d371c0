package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/elonfeng/repscore/internal/store"
	"github.com/elonfeng/repscore/pkg/activity"
	"gopkg.in/yaml.v3"
)

// fixture is the seed file layout.
type fixture struct {
	Entities       []store.Entity       `yaml:"entities"`
	Participations []fixtureParticipant `yaml:"participations"`
	OrganizerRoles []fixtureOrganizer   `yaml:"organizer_roles"`
	Memberships    []fixtureMembership  `yaml:"memberships"`
	Reviews        []fixtureReview      `yaml:"reviews"`
}

type fixtureParticipant struct {
	UserID           string     `yaml:"user_id"`
	EventID          string     `yaml:"event_id"`
	EventName        string     `yaml:"event_name"`
	Date             *time.Time `yaml:"date"`
	ParticipantCount int        `yaml:"participant_count"`
	Position         int        `yaml:"position"`
}

type fixtureOrganizer struct {
	Kind             activity.EntityKind `yaml:"kind"`
	EntityID         string              `yaml:"entity_id"`
	EventID          string              `yaml:"event_id"`
	EventName        string              `yaml:"event_name"`
	Role             string              `yaml:"role"`
	Date             *time.Time          `yaml:"date"`
	ParticipantCount int                 `yaml:"participant_count"`
}

type fixtureMembership struct {
	Kind     activity.EntityKind `yaml:"kind"`
	EntityID string              `yaml:"entity_id"`
	OrgID    string              `yaml:"org_id"`
	OrgName  string              `yaml:"org_name"`
	Role     string              `yaml:"role"`
	TeamName string              `yaml:"team_name"`
	JoinedAt *time.Time          `yaml:"joined_at"`
}

type fixtureReview struct {
	Kind     activity.EntityKind `yaml:"kind"`
	EntityID string              `yaml:"entity_id"`
	ReviewID string              `yaml:"review_id"`
	Rating   int                 `yaml:"rating"`
	Status   string              `yaml:"status"`
	Date     *time.Time          `yaml:"date"`
}

func runSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture %s: %w", path, err)
	}
	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("parse fixture %s: %w", path, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := seed(context.Background(), db, &fx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "seeded %d entities, %d participations, %d organizer roles, %d memberships, %d reviews into %s\n",
		len(fx.Entities), len(fx.Participations), len(fx.OrganizerRoles), len(fx.Memberships), len(fx.Reviews),
		cfg.Database.Path)
	return nil
}

func seed(ctx context.Context, db *store.SQLiteStore, fx *fixture) error {
	for _, e := range fx.Entities {
		if !e.Kind.Valid() {
			return fmt.Errorf("entity %s: unknown kind %q", e.ID, e.Kind)
		}
		if err := db.UpsertEntity(ctx, e); err != nil {
			return err
		}
	}
	for _, p := range fx.Participations {
		err := db.AddParticipation(ctx, p.UserID, activity.Participation{
			EventID:          p.EventID,
			EventName:        p.EventName,
			Date:             p.Date,
			ParticipantCount: p.ParticipantCount,
			Position:         p.Position,
		})
		if err != nil {
			return err
		}
	}
	for _, o := range fx.OrganizerRoles {
		ref := activity.EntityRef{Kind: o.Kind, ID: o.EntityID}
		err := db.AddOrganizerRole(ctx, ref, activity.OrganizerRole{
			EventID:          o.EventID,
			EventName:        o.EventName,
			Role:             o.Role,
			Date:             o.Date,
			ParticipantCount: o.ParticipantCount,
		})
		if err != nil {
			return err
		}
	}
	for _, m := range fx.Memberships {
		ref := activity.EntityRef{Kind: m.Kind, ID: m.EntityID}
		err := db.AddMembership(ctx, ref, activity.Membership{
			OrgID:    m.OrgID,
			OrgName:  m.OrgName,
			Role:     m.Role,
			TeamName: m.TeamName,
			JoinedAt: m.JoinedAt,
		})
		if err != nil {
			return err
		}
	}
	for _, r := range fx.Reviews {
		ref := activity.EntityRef{Kind: r.Kind, ID: r.EntityID}
		err := db.AddReview(ctx, ref, activity.Review{
			ReviewID: r.ReviewID,
			Rating:   r.Rating,
			Status:   r.Status,
			Date:     r.Date,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

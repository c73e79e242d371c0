package activity

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Organizer role tiers.
const (
	RoleHead     = "head"
	RoleViceHead = "vice-head"
	RoleMember   = "member"
)

// ReviewApproved is the only review status that earns points.
const ReviewApproved = "approved"

// ScoringRules holds the per-category scoring constants.
type ScoringRules struct {
	ParticipationBase       float64 `yaml:"participation_base"`
	ParticipationMultiplier float64 `yaml:"participation_multiplier"`
	FirstPlaceBonus         float64 `yaml:"first_place_bonus"`
	SecondPlaceBonus        float64 `yaml:"second_place_bonus"`
	ThirdPlaceBonus         float64 `yaml:"third_place_bonus"`
	TopTwentyBonus          float64 `yaml:"top_twenty_bonus"`

	HeadBase                float64 `yaml:"head_base"`
	ViceHeadBase            float64 `yaml:"vice_head_base"`
	OrganizerMemberBase     float64 `yaml:"organizer_member_base"`
	OrganizerParticipantMul float64 `yaml:"organizer_participant_multiplier"`

	MembershipBase float64 `yaml:"membership_base"`

	ReviewBase       float64 `yaml:"review_base"`
	ReviewMultiplier float64 `yaml:"review_multiplier"`
}

// DefaultScoringRules returns the stock scoring constants.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		ParticipationBase:       5,
		ParticipationMultiplier: 0.05,
		FirstPlaceBonus:         25,
		SecondPlaceBonus:        15,
		ThirdPlaceBonus:         10,
		TopTwentyBonus:          5,

		HeadBase:                20,
		ViceHeadBase:            15,
		OrganizerMemberBase:     10,
		OrganizerParticipantMul: 0.1,

		MembershipBase: 10,

		ReviewBase:       5,
		ReviewMultiplier: 2,
	}
}

// PositionBonus returns the bonus for a finishing position. Tiers are
// exclusive; position 0 means unplaced.
func (r ScoringRules) PositionBonus(position int) decimal.Decimal {
	switch {
	case position == 1:
		return decimal.NewFromFloat(r.FirstPlaceBonus)
	case position == 2:
		return decimal.NewFromFloat(r.SecondPlaceBonus)
	case position == 3:
		return decimal.NewFromFloat(r.ThirdPlaceBonus)
	case position > 3 && position <= 20:
		return decimal.NewFromFloat(r.TopTwentyBonus)
	}
	return decimal.Zero
}

// Participation scores an event participation.
func (r ScoringRules) Participation(participantCount, position int) int {
	v := decimal.NewFromFloat(r.ParticipationBase).
		Add(decimal.NewFromInt(int64(nonNegative(participantCount))).Mul(decimal.NewFromFloat(r.ParticipationMultiplier))).
		Add(r.PositionBonus(position))
	return toScore(v)
}

// Organizer scores an organizer role on an event.
func (r ScoringRules) Organizer(role string, participantCount int) int {
	var base float64
	switch NormalizeRole(role) {
	case RoleHead:
		base = r.HeadBase
	case RoleViceHead:
		base = r.ViceHeadBase
	default:
		base = r.OrganizerMemberBase
	}
	v := decimal.NewFromFloat(base).
		Add(decimal.NewFromInt(int64(nonNegative(participantCount))).Mul(decimal.NewFromFloat(r.OrganizerParticipantMul)))
	return toScore(v)
}

// Membership scores an organization or team membership.
func (r ScoringRules) Membership() int {
	return toScore(decimal.NewFromFloat(r.MembershipBase))
}

// Review scores an approved review.
func (r ScoringRules) Review(rating int) int {
	v := decimal.NewFromFloat(r.ReviewBase).
		Add(decimal.NewFromInt(int64(nonNegative(rating))).Mul(decimal.NewFromFloat(r.ReviewMultiplier)))
	return toScore(v)
}

// NormalizeRole maps free-form role names onto the organizer tiers.
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(role, "_", "-"))) {
	case "head", "lead", "owner", "host":
		return RoleHead
	case "vice-head", "vicehead", "vice head", "co-lead":
		return RoleViceHead
	}
	return RoleMember
}

// toScore rounds half away from zero.
func toScore(v decimal.Decimal) int {
	return int(v.Round(0).IntPart())
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

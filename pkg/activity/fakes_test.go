package activity

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elonfeng/repscore/internal/logger"
	"github.com/sirupsen/logrus"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func day(offset int) *time.Time {
	t := DayStart(testNow, time.UTC).AddDate(0, 0, offset).Add(9 * time.Hour)
	return &t
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: testNow} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore is a RecordStore keeping JSON copies so callers never share state
// with the stored record.
type memStore struct {
	mu      sync.Mutex
	docs    map[EntityRef][]byte
	saves   atomic.Int64
	saveErr map[EntityRef]error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[EntityRef][]byte), saveErr: make(map[EntityRef]error)}
}

func (s *memStore) GetRecord(_ context.Context, ref EntityRef) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *memStore) SaveRecord(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveErr[rec.Entity]; err != nil {
		return err
	}

	var stored int64
	if doc, ok := s.docs[rec.Entity]; ok {
		var cur Record
		if err := json.Unmarshal(doc, &cur); err != nil {
			return err
		}
		stored = cur.Version
	}
	if stored != rec.Version {
		return ErrVersionConflict
	}

	saved := *rec
	saved.Version++
	doc, err := json.Marshal(&saved)
	if err != nil {
		return err
	}
	s.docs[rec.Entity] = doc
	rec.Version = saved.Version
	s.saves.Add(1)
	return nil
}

func (s *memStore) TopRecords(_ context.Context, kind EntityKind, since time.Time, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for ref, doc := range s.docs {
		if ref.Kind != kind {
			continue
		}
		var rec Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, err
		}
		if !since.IsZero() && (rec.Streak.LastActivity == nil || rec.Streak.LastActivity.Before(since)) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].Entity.ID < out[j].Entity.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// conflictingStore fails the first n saves with ErrVersionConflict.
type conflictingStore struct {
	*memStore
	remaining atomic.Int64
}

func (s *conflictingStore) SaveRecord(ctx context.Context, rec *Record) error {
	if s.remaining.Add(-1) >= 0 {
		return ErrVersionConflict
	}
	return s.memStore.SaveRecord(ctx, rec)
}

// fakeSources implements every collaborator interface with per-method call
// counters and injectable failures.
type fakeSources struct {
	mu             sync.Mutex
	participations map[string][]Participation
	organizer      map[EntityRef][]OrganizerRole
	memberships    map[EntityRef][]Membership
	reviews        map[EntityRef][]Review
	entities       map[EntityKind][]string
	usernames      map[string]string
	fail           map[Category]error

	participationCalls atomic.Int64
	organizerCalls     atomic.Int64
	membershipCalls    atomic.Int64
	reviewCalls        atomic.Int64
}

func newFakeSources() *fakeSources {
	return &fakeSources{
		participations: make(map[string][]Participation),
		organizer:      make(map[EntityRef][]OrganizerRole),
		memberships:    make(map[EntityRef][]Membership),
		reviews:        make(map[EntityRef][]Review),
		entities:       make(map[EntityKind][]string),
		usernames:      make(map[string]string),
		fail:           make(map[Category]error),
	}
}

func (f *fakeSources) sources() Sources {
	return Sources{Participations: f, Roster: f, Reviews: f, Directory: f}
}

func (f *fakeSources) calls() int64 {
	return f.participationCalls.Load() + f.organizerCalls.Load() + f.membershipCalls.Load() + f.reviewCalls.Load()
}

func (f *fakeSources) addReview(ref EntityRef, r Review) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews[ref] = append(f.reviews[ref], r)
}

func (f *fakeSources) ListParticipationsByEntity(_ context.Context, userID string) ([]Participation, error) {
	f.participationCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[CategoryParticipation]; err != nil {
		return nil, err
	}
	return append([]Participation(nil), f.participations[userID]...), nil
}

func (f *fakeSources) ListOrganizerRolesByEntity(_ context.Context, ref EntityRef) ([]OrganizerRole, error) {
	f.organizerCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[CategoryOrganization]; err != nil {
		return nil, err
	}
	return append([]OrganizerRole(nil), f.organizer[ref]...), nil
}

func (f *fakeSources) ListMembershipsByEntity(_ context.Context, ref EntityRef) ([]Membership, error) {
	f.membershipCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[CategoryMembership]; err != nil {
		return nil, err
	}
	return append([]Membership(nil), f.memberships[ref]...), nil
}

func (f *fakeSources) ListApprovedReviewsByEntity(_ context.Context, ref EntityRef) ([]Review, error) {
	f.reviewCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[CategoryReview]; err != nil {
		return nil, err
	}
	return append([]Review(nil), f.reviews[ref]...), nil
}

func (f *fakeSources) ListEntities(_ context.Context, kind EntityKind) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.entities[kind]...), nil
}

func (f *fakeSources) ExternalUsername(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usernames[userID], nil
}

// fakeExternal returns a fixed contribution or error.
type fakeExternal struct {
	mu    sync.Mutex
	score int
	err   error
	calls atomic.Int64
}

func (f *fakeExternal) set(score int, err error) {
	f.mu.Lock()
	f.score, f.err = score, err
	f.mu.Unlock()
}

func (f *fakeExternal) Contribution(_ context.Context, username string) (*ExternalContribution, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ExternalContribution{
		Username:      username,
		Score:         f.score,
		CalendarTotal: f.score * 10,
		Recent: []CategoryEntry{{
			SourceID: "push-1",
			Label:    "pushed to " + username + "/repo",
			Date:     day(-1),
			Score:    99,
			External: &ExternalDetail{Kind: "push"},
		}},
	}, nil
}

var errBoom = errors.New("boom")

func discard() logrus.FieldLogger { return logger.Discard() }

type fixture struct {
	sources  *fakeSources
	external *fakeExternal
	store    *memStore
	clock    *clock
	agg      *Aggregator
	manager  *Manager
}

func newFixture(store RecordStore) *fixture {
	f := &fixture{
		sources:  newFakeSources(),
		external: &fakeExternal{score: 30},
		clock:    newClock(),
	}
	switch s := store.(type) {
	case nil:
		f.store = newMemStore()
		store = f.store
	case *memStore:
		f.store = s
	case *conflictingStore:
		f.store = s.memStore
	}
	f.agg = NewAggregator(f.sources.sources(), f.external, store, AggregatorOptions{
		Logger: discard(),
		Clock:  f.clock.Now,
	})
	f.manager = NewManager(f.agg, store, ManagerOptions{
		Logger: discard(),
		Clock:  f.clock.Now,
	})
	return f
}

var alice = EntityRef{Kind: KindUser, ID: "alice"}
var acme = EntityRef{Kind: KindOrganization, ID: "acme"}

// seedAlice gives alice one fact in every category plus a GitHub link.
func (f *fixture) seedAlice() {
	f.sources.participations["alice"] = []Participation{
		{EventID: "hack-1", EventName: "Hackathon", Date: day(0), ParticipantCount: 150, Position: 1},
	}
	f.sources.organizer[alice] = []OrganizerRole{
		{EventID: "meetup-1", EventName: "Meetup", Role: "member", Date: day(-1), ParticipantCount: 20},
	}
	f.sources.memberships[alice] = []Membership{
		{OrgID: "acme", OrgName: "Acme", TeamName: "core"},
	}
	f.sources.reviews[alice] = []Review{
		{ReviewID: "r1", Rating: 4, Status: ReviewApproved, Date: day(-2)},
	}
	f.sources.usernames["alice"] = "alice-gh"
}

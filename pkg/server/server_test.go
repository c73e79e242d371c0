package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elonfeng/repscore/internal/logger"
	"github.com/elonfeng/repscore/internal/metrics"
	"github.com/elonfeng/repscore/internal/store"
	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type fakeBatcher struct {
	mu    sync.Mutex
	kind  activity.EntityKind
	force bool
}

func (f *fakeBatcher) RecomputeKind(_ context.Context, kind activity.EntityKind, force bool) (activity.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kind, f.force = kind, force
	return activity.BatchResult{RunID: "run-1", Succeeded: 3}, nil
}

func (f *fakeBatcher) last() (activity.EntityKind, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kind, f.force
}

type env struct {
	db    *store.SQLiteStore
	batch *fakeBatcher
	srv   *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "repscore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return testNow }
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sources := activity.Sources{Participations: db, Roster: db, Reviews: db, Directory: db}
	agg := activity.NewAggregator(sources, nil, db, activity.AggregatorOptions{Logger: logger.Discard(), Metrics: m, Clock: clock})
	mgr := activity.NewManager(agg, db, activity.ManagerOptions{Logger: logger.Discard(), Metrics: m, Clock: clock})

	e := &env{db: db, batch: &fakeBatcher{}}
	s := New(activity.NewService(mgr), e.batch, reg, logger.Discard(), 0)
	e.srv = httptest.NewServer(s.Handler())
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func dayAt(offset int) *time.Time {
	t := testNow.AddDate(0, 0, offset)
	return &t
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	status, body := e.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Activity(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	alice := activity.EntityRef{Kind: activity.KindUser, ID: "alice"}
	require.NoError(t, e.db.AddReview(ctx, alice, activity.Review{
		ReviewID: "r1", Rating: 4, Status: activity.ReviewApproved, Date: dayAt(0),
	}))

	status, body := e.do(t, http.MethodGet, "/api/v1/activity/user/alice", "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 13, data["total_score"])

	status, _ = e.do(t, http.MethodGet, "/api/v1/activity/team/alice", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_Leaderboard(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	for id, rating := range map[string]int{"alice": 5, "bob": 1} {
		ref := activity.EntityRef{Kind: activity.KindUser, ID: id}
		require.NoError(t, e.db.AddReview(ctx, ref, activity.Review{
			ReviewID: "r-" + id, Rating: rating, Status: activity.ReviewApproved, Date: dayAt(-1),
		}))
		status, _ := e.do(t, http.MethodGet, "/api/v1/activity/user/"+id, "")
		require.Equal(t, http.StatusOK, status)
	}

	status, body := e.do(t, http.MethodGet, "/api/v1/leaderboard/user?limit=5&period=week", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])
	rows := body["data"].([]any)
	first := rows[0].(map[string]any)
	assert.Equal(t, "alice", first["entity"].(map[string]any)["id"])

	status, _ = e.do(t, http.MethodGet, "/api/v1/leaderboard/user?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = e.do(t, http.MethodGet, "/api/v1/leaderboard/user?period=decade", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_Hooks(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/api/v1/hooks/event-created",
		`{"org_id":"acme","event":{"event_id":"conf-1","event_name":"Conf","participant_count":50}}`)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 25, body["data"].(map[string]any)["total_score"])

	status, _ = e.do(t, http.MethodPost, "/api/v1/hooks/event-created", `{"org_id":"acme","event":{"event_name":"Conf"}}`)
	assert.Equal(t, http.StatusBadRequest, status, "event id is required")

	status, _ = e.do(t, http.MethodPost, "/api/v1/hooks/review-approved",
		`{"kind":"team","entity_id":"x","review":{"review_id":"r1","rating":3,"status":"approved"}}`)
	assert.Equal(t, http.StatusBadRequest, status, "kind must be a known entity kind")

	status, _ = e.do(t, http.MethodPost, "/api/v1/hooks/review-approved",
		`{"kind":"user","entity_id":"alice","review":{"review_id":"r1","rating":9,"status":"approved"}}`)
	assert.Equal(t, http.StatusBadRequest, status, "rating is capped at 5")

	status, body = e.do(t, http.MethodPost, "/api/v1/hooks/review-approved",
		`{"kind":"user","entity_id":"alice","review":{"review_id":"r1","rating":3,"status":"pending"}}`)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "ignored", body["status"])

	status, _ = e.do(t, http.MethodPost, "/api/v1/hooks/review-approved", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPost, "/api/v1/hooks/user-deleted", `{}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = e.do(t, http.MethodPost, "/api/v1/hooks/participation-registered", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	require.NoError(t, e.db.AddParticipation(context.Background(), "alice", activity.Participation{
		EventID: "hack-1", EventName: "Hack", Date: dayAt(0), ParticipantCount: 100,
	}))
	status, body = e.do(t, http.MethodPost, "/api/v1/hooks/participation-registered", `{"user_id":"alice"}`)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 10, body["data"].(map[string]any)["total_score"])
}

func TestServer_Batch(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	status, body := e.do(t, http.MethodPost, "/api/v1/batch/organization?force_external=true", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "run-1", body["data"].(map[string]any)["run_id"])
	kind, force := e.batch.last()
	assert.Equal(t, activity.KindOrganization, kind)
	assert.True(t, force)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	status, _ := e.do(t, http.MethodGet, "/api/v1/activity/organization/acme", "")
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `repscore_recomputes_total{kind="organization",result="ok"} 1`)
}

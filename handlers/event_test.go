package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"artpriyo-settlement/middleware"
	"artpriyo-settlement/models"
	"artpriyo-settlement/repository"
	"artpriyo-settlement/services"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const testToken = "gw-secret"

type fixture struct {
	app   *fiber.App
	store *repository.MemoryStore
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ist := time.FixedZone("IST", 19800)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 12, 0, 0, 0, ist))
	store := repository.NewMemoryStore()
	log := zerolog.Nop()
	reg := prometheus.NewRegistry()
	metrics := services.NewMetrics(reg)

	ref := services.NewReferenceClock(clock, ist)
	ledger := services.NewLedger(store, clock)
	ranker := services.NewRanker(store, store)
	dist := services.NewDistributor(store, ledger, log)
	codes := services.NewCodeStore(clock, time.Minute)
	t.Cleanup(codes.Close)

	app := fiber.New()
	app.Use(middleware.GatewayAuthMiddleware(testToken, "/healthz"))
	SetupOpsRoutes(app, reg)
	SetupEventRoutes(app, &EventHandler{
		Events:     services.NewEventService(store, ref, log),
		Enrollment: services.NewEnrollmentService(store, ledger, ref, codes, metrics, log),
		Ranker:     ranker,
		Ledger:     ledger,
		Lifecycle:  services.NewLifecycleService(store, ranker, dist, ref, time.Minute, 2, metrics, log),
	})
	return &fixture{app: app, store: store, clock: clock}
}

func (f *fixture) do(t *testing.T, method, path, user, roles, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (f *fixture) seedEvent(t *testing.T, fee int64, start, end string) *models.Event {
	t.Helper()
	s, _ := time.Parse("2006-01-02", start)
	e, _ := time.Parse("2006-01-02", end)
	ev := &models.Event{
		Name:      "Ink",
		EntryFee:  decimal.NewFromInt(fee),
		PrizePool: decimal.NewFromInt(100),
		StartDate: datatypes.Date(s),
		EndDate:   datatypes.Date(e),
	}
	require.NoError(t, f.store.CreateEvent(context.Background(), ev))
	return ev
}

func TestGatewayTokenRequired(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/events/upcoming", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/events/upcoming", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err = f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJoinFlow(t *testing.T) {
	f := newFixture(t)
	ev := f.seedEvent(t, 10, "2026-03-10", "2026-03-12")
	require.NoError(t, f.store.CreateWallet(context.Background(), "u1"))

	status, _ := f.do(t, http.MethodPost, "/events/"+ev.ID+"/join", "", "", `{"payment_ref":"p1"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status, "user context required")

	status, body := f.do(t, http.MethodPost, "/events/"+ev.ID+"/join", "u1", "", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "payment reference")

	status, body = f.do(t, http.MethodPost, "/events/"+ev.ID+"/join", "u1", "", `{"payment_ref":"p1"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.NotNil(t, body["transaction"])

	status, _ = f.do(t, http.MethodPost, "/events/"+ev.ID+"/join", "u1", "", `{"payment_ref":"p2"}`)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = f.do(t, http.MethodPost, "/events/missing/join", "u1", "", `{"payment_ref":"p3"}`)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = f.do(t, http.MethodGet, "/wallet", "u1", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "-10", body["balance"])

	status, body = f.do(t, http.MethodGet, "/wallet/transactions?limit=5", "u1", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["transactions"], 1)
}

func TestLeaderboardRoute(t *testing.T) {
	f := newFixture(t)
	ev := f.seedEvent(t, 0, "2026-03-10", "2026-03-12")
	ctx := context.Background()
	for _, u := range []string{"a", "b"} {
		require.NoError(t, f.store.CreateWallet(ctx, u))
		status, body := f.do(t, http.MethodPost, "/events/"+ev.ID+"/join", u, "", `{"payment_ref":"ref-`+u+`"}`)
		require.Equal(t, fiber.StatusCreated, status, body)
	}
	require.NoError(t, f.store.CreatePost(ctx, &models.Post{EventID: ev.ID, UserID: "b", Likes: 4}))

	status, body := f.do(t, http.MethodGet, "/events/"+ev.ID+"/leaderboard", "", "", "")
	require.Equal(t, fiber.StatusOK, status)
	board := body["leaderboard"].([]any)
	require.Len(t, board, 2)
	assert.Equal(t, "b", board[0].(map[string]any)["user_id"])

	status, _ = f.do(t, http.MethodGet, "/events/nope/leaderboard", "", "", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)

	payload := `{"name":"Watercolour","entry_fee":"20","prize_pool":"900","start_date":"2026-03-10","end_date":"2026-03-10","start_time":"10:00","end_time":"18:00","rules":"one post"}`
	status, _ := f.do(t, http.MethodPost, "/admin/events", "u1", "user", payload)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := f.do(t, http.MethodPost, "/admin/events", "root", "user, admin", `{"name":"x"}`)
	assert.Equal(t, fiber.StatusBadRequest, status, body)

	status, body = f.do(t, http.MethodPost, "/admin/events", "root", "admin", payload)
	require.Equal(t, fiber.StatusCreated, status, body)
	id := body["event"].(map[string]any)["id"].(string)

	f.clock.Advance(24 * time.Hour)
	status, body = f.do(t, http.MethodPost, "/admin/lifecycle/scan", "root", "admin", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []any{id}, body["settled"])

	status, _ = f.do(t, http.MethodPost, "/admin/events/"+id+"/settle", "root", "admin", "")
	assert.Equal(t, fiber.StatusConflict, status, "already settled")

	status, body = f.do(t, http.MethodGet, "/events/"+id, "", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "completed", body["status"])
}

func TestUpcomingAndLeave(t *testing.T) {
	f := newFixture(t)
	later := f.seedEvent(t, 15, "2026-03-20", "2026-03-22")
	soon := f.seedEvent(t, 15, "2026-03-12", "2026-03-13")
	f.seedEvent(t, 15, "2026-03-01", "2026-03-02") // already past
	require.NoError(t, f.store.CreateWallet(context.Background(), "u1"))

	req := httptest.NewRequest(http.MethodGet, "/events/upcoming", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var events []models.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.Len(t, events, 2)
	assert.Equal(t, soon.ID, events[0].ID)
	assert.Equal(t, later.ID, events[1].ID)

	status, body := f.do(t, http.MethodPost, "/events/"+later.ID+"/join", "u1", "", `{"payment_ref":"p1"}`)
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = f.do(t, http.MethodPost, "/events/"+later.ID+"/leave", "u1", "", "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "credit", body["transaction"].(map[string]any)["type"])

	status, body = f.do(t, http.MethodGet, "/wallet", "u1", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "0", body["balance"])

	status, _ = f.do(t, http.MethodPost, "/events/"+later.ID+"/leave", "u1", "", "")
	assert.Equal(t, fiber.StatusConflict, status, "not enrolled any more")
}

// The fixture app is not Immutable, so ids taken from headers and params
// must be copied before the store keeps them.
func TestSequentialJoinsKeepEachIdentity(t *testing.T) {
	f := newFixture(t)
	ev := f.seedEvent(t, 5, "2026-03-10", "2026-03-12")
	ctx := context.Background()

	for _, u := range []string{"alice", "bob"} {
		require.NoError(t, f.store.CreateWallet(ctx, u))
		status, body := f.do(t, http.MethodPost, "/events/"+ev.ID+"/join", u, "", `{"payment_ref":"pay-`+u+`"}`)
		require.Equal(t, fiber.StatusCreated, status, body)
	}

	got, err := f.store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.ParticipantIDs())

	// alice is still the one holding the active enrollment
	status, _ := f.do(t, http.MethodPost, "/events/"+ev.ID+"/join", "alice", "", `{"payment_ref":"pay-again"}`)
	assert.Equal(t, fiber.StatusConflict, status)
}

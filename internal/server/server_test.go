package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"github.com/smallbiznis/directory/internal/authorization"
	"github.com/smallbiznis/directory/internal/config"
	inboxdomain "github.com/smallbiznis/directory/internal/inbox/domain"
	"github.com/smallbiznis/directory/internal/observability"
	"github.com/smallbiznis/directory/internal/providers/pdf"
	"github.com/smallbiznis/directory/internal/ratelimit"
	scarcitydomain "github.com/smallbiznis/directory/internal/scarcity/domain"
	"github.com/smallbiznis/directory/internal/testutil"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	adminToken     = "admin-token"
	moderatorToken = "moderator-token"
	financeToken   = "finance-token"
)

type fakeAPIKeys struct {
	principals map[string]*apikeydomain.Principal
}

func (f *fakeAPIKeys) List(context.Context) ([]apikeydomain.Response, error) {
	return []apikeydomain.Response{}, nil
}

func (f *fakeAPIKeys) Create(_ context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apikeydomain.ErrInvalidName
	}
	return &apikeydomain.SecretResponse{KeyID: "key_new", Role: req.Role, APIKey: "dk_live_secret"}, nil
}

func (f *fakeAPIKeys) Revoke(_ context.Context, keyID string) error {
	if keyID != "key_admin" {
		return apikeydomain.ErrNotFound
	}
	return nil
}

func (f *fakeAPIKeys) Authenticate(_ context.Context, raw string) (*apikeydomain.Principal, error) {
	principal, ok := f.principals[raw]
	if !ok {
		return nil, apikeydomain.ErrUnauthorized
	}
	return principal, nil
}

type fakeScarcity struct {
	last scarcitydomain.UpgradeRequest
}

func (f *fakeScarcity) CanUpgradeToPlan(_ context.Context, req scarcitydomain.UpgradeRequest) (*scarcitydomain.UpgradeDecision, error) {
	f.last = req
	return &scarcitydomain.UpgradeDecision{
		CanUpgrade:   true,
		SlotsLeft:    1,
		TotalSlots:   3,
		Message:      "¡Último lugar disponible!",
		UrgencyLevel: scarcitydomain.UrgencyCritical,
	}, nil
}

func (f *fakeScarcity) GetScarcityMetrics(_ context.Context, categoryID string) (*scarcitydomain.SlotSnapshot, error) {
	return &scarcitydomain.SlotSnapshot{CategoryID: categoryID, CompetitionLevel: scarcitydomain.CompetitionLow}, nil
}

type fakeWaitlist struct {
	joinErr error
	listReq waitlistdomain.ListRequest
}

func (f *fakeWaitlist) Join(_ context.Context, req waitlistdomain.JoinRequest) (*waitlistdomain.Position, error) {
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	return &waitlistdomain.Position{EntryID: "1", Position: 2, EstimatedWaitDays: 60}, nil
}

func (f *fakeWaitlist) NotifyNext(context.Context, waitlistdomain.Key) (*waitlistdomain.Entry, error) {
	return nil, nil
}

func (f *fakeWaitlist) ExpireOffers(context.Context) (int64, error) { return 0, nil }

func (f *fakeWaitlist) List(_ context.Context, req waitlistdomain.ListRequest) (*waitlistdomain.ListResponse, error) {
	f.listReq = req
	return &waitlistdomain.ListResponse{Entries: []waitlistdomain.Entry{}}, nil
}

type fakeInbox struct {
	inbox     *inboxdomain.Inbox
	actionErr error
	applied   []inboxdomain.ActionRequest
}

func (f *fakeInbox) BuildInbox(context.Context) (*inboxdomain.Inbox, error) {
	return f.inbox, nil
}

func (f *fakeInbox) ApplyAction(_ context.Context, req inboxdomain.ActionRequest) error {
	if f.actionErr != nil {
		return f.actionErr
	}
	f.applied = append(f.applied, req)
	return nil
}

type testServer struct {
	engine   *gin.Engine
	scarcity *fakeScarcity
	waitlist *fakeWaitlist
	inbox    *fakeInbox
}

func newTestServer(t *testing.T, limiter *ratelimit.PublicLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := authorization.NewEnforcer(testutil.NewDB(t))
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	ts := &testServer{
		engine:   NewEngine(observability.Config{Environment: "test"}, nil),
		scarcity: &fakeScarcity{},
		waitlist: &fakeWaitlist{},
		inbox: &fakeInbox{inbox: &inboxdomain.Inbox{
			Items: []inboxdomain.Item{{
				ID:           "payment-42",
				Kind:         inboxdomain.KindPayment,
				Priority:     inboxdomain.PriorityCritical,
				Score:        1,
				BusinessID:   "42",
				BusinessName: "Clínica Norte",
				Metadata:     map[string]any{"plan": "sponsor", "daysOverdue": 2, "amount": 299},
				Actions:      []inboxdomain.Action{inboxdomain.ActionRemind, inboxdomain.ActionSuspend, inboxdomain.ActionExtend},
			}},
			DegradedSources: []inboxdomain.Source{inboxdomain.SourceReviews},
			GeneratedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		}},
	}

	NewServer(ServerParams{
		Gin:         ts.engine,
		Cfg:         config.Config{Environment: "test"},
		Log:         log,
		ScarcitySvc: ts.scarcity,
		WaitlistSvc: ts.waitlist,
		InboxSvc:    ts.inbox,
		APIKeySvc: &fakeAPIKeys{principals: map[string]*apikeydomain.Principal{
			adminToken:     {KeyID: "key_admin", Name: "ops", Role: apikeydomain.RoleAdmin},
			moderatorToken: {KeyID: "key_mod", Name: "moderation", Role: apikeydomain.RoleModerator},
			financeToken:   {KeyID: "key_fin", Name: "billing", Role: apikeydomain.RoleFinance},
		}},
		AuthzSvc:      authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		Reports:       pdf.New(),
		PublicLimiter: limiter,
	})
	return ts
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestScarcityValidatesQuery(t *testing.T) {
	ts := newTestServer(t, nil)

	cases := []struct {
		name string
		path string
	}{
		{"missing category", "/api/scarcity?plan=featured"},
		{"missing plan", "/api/scarcity?categoryId=dentistas"},
		{"free plan is not a slot", "/api/scarcity?categoryId=dentistas&plan=free"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(http.MethodGet, tc.path, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_error", decodeError(t, rec).Type)
		})
	}
}

func TestScarcityReturnsDecision(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/scarcity?categoryId=dentistas&plan=Sponsor&zone=centro", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["canUpgrade"])
	assert.EqualValues(t, 1, body["slotsLeft"])
	assert.Equal(t, "critical", body["urgencyLevel"])
	assert.Equal(t, scarcitydomain.UpgradeRequest{CategoryID: "dentistas", Plan: "sponsor", Zone: "centro"}, ts.scarcity.last)

	rec = ts.do(http.MethodGet, "/api/scarcity/metrics?categoryId=dentistas", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"categoryId":"dentistas"`)
}

func TestJoinWaitlist(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/waitlist", "", waitlistdomain.JoinRequest{BusinessID: "7", CategoryID: "dentistas", Plan: "sponsor"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"estimatedWaitDays":60`)

	ts.waitlist.joinErr = waitlistdomain.ErrAlreadyWaitlisted
	rec = ts.do(http.MethodPost, "/api/waitlist", "", waitlistdomain.JoinRequest{BusinessID: "7", CategoryID: "dentistas", Plan: "sponsor"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	ts.waitlist.joinErr = waitlistdomain.ErrInvalidPlan
	rec = ts.do(http.MethodPost, "/api/waitlist", "", waitlistdomain.JoinRequest{BusinessID: "7", CategoryID: "dentistas", Plan: "free"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "plan", payload.Errors[0].Field)
}

func TestAdminRoutesRequireAPIKey(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/admin/inbox", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/admin/inbox", "nope", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestGetInboxReportsDegradedSources(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/admin/inbox", moderatorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items           []inboxdomain.Item   `json:"items"`
		DegradedSources []inboxdomain.Source `json:"degraded_sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, inboxdomain.KindPayment, body.Items[0].Kind)
	assert.Equal(t, []inboxdomain.Source{inboxdomain.SourceReviews}, body.DegradedSources)
}

func TestExportInboxPDF(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/admin/inbox/export.pdf", financeToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inbox-20260301-100000.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = ts.do(http.MethodGet, "/admin/inbox/export.pdf", moderatorToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInboxActionRejectsUnknownAction(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/admin/inbox-action", adminToken, map[string]string{
		"itemId": "1", "businessId": "1", "action": "delete", "type": "application",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid action", decodeError(t, rec).Message)
	assert.Empty(t, ts.inbox.applied)
}

func TestInboxActionChecksRoleCapability(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/admin/inbox-action", moderatorToken, map[string]string{
		"itemId": "app-1", "businessId": "", "action": "approve", "type": "application",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	require.Len(t, ts.inbox.applied, 1)
	assert.Equal(t, "api_key:key_mod", ts.inbox.applied[0].Actor)
	assert.Equal(t, "application", ts.inbox.applied[0].Kind)

	rec = ts.do(http.MethodPost, "/admin/inbox-action", financeToken, map[string]string{
		"itemId": "app-1", "action": "approve", "type": "application",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/inbox-action", moderatorToken, map[string]string{
		"itemId": "payment-42", "businessId": "42", "action": "extend", "type": "payment",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/inbox-action", financeToken, map[string]string{
		"itemId": "payment-42", "businessId": "42", "action": "extend", "type": "payment",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.inbox.applied, 2)
}

func TestInboxActionMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing record", inboxdomain.ErrNotFound, http.StatusNotFound},
		{"illegal transition", inboxdomain.ErrInvalidTransition, http.StatusConflict},
		{"wrong item type", inboxdomain.ErrInvalidKind, http.StatusBadRequest},
		{"store failure", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.inbox.actionErr = tc.err

			rec := ts.do(http.MethodPost, "/admin/inbox-action", adminToken, map[string]string{
				"itemId": "expiration-9", "businessId": "9", "action": "remind", "type": "expiration",
			})
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestListWaitlistPassesFilters(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/admin/waitlist?categoryId=dentistas&plan=sponsor&page_size=5&page_token=abc", financeToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, waitlistdomain.ListRequest{CategoryID: "dentistas", Plan: "sponsor", PageToken: "abc", PageSize: 5}, ts.waitlist.listReq)

	rec = ts.do(http.MethodGet, "/admin/waitlist?page_size=ten", financeToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyAdministration(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/admin/api-keys", adminToken, map[string]any{"name": "support", "role": "moderator", "expires_at": "2027-01-31"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"api_key":"dk_live_secret"`)

	rec = ts.do(http.MethodPost, "/admin/api-keys", adminToken, map[string]any{"name": "support", "expires_at": "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/api-keys", financeToken, map[string]any{"name": "support", "role": "admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/api-keys/key_admin/revoke", adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/api-keys/key_missing/revoke", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicRateLimitDeniesAfterBurst(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.NewPublicLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, Rate: 0.001, Burst: 2},
	}, client, zaptest.NewLogger(t))
	require.NoError(t, err)
	ts := newTestServer(t, limiter)

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodGet, "/api/scarcity/metrics?categoryId=dentistas", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(http.MethodGet, "/api/scarcity/metrics?categoryId=dentistas", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, rateLimitReasonClientRate, rec.Header().Get("X-Rate-Limited-Reason"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)

	// Buckets are per route.
	rec = ts.do(http.MethodGet, "/api/scarcity?categoryId=dentistas&plan=featured", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = ts.do(http.MethodGet, "/api/scarcity?categoryId=dentistas&plan=featured", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(inboxdomain.ErrInvalidAction)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_action", code)

	typ, code = classifyErrorForLog(waitlistdomain.ErrAlreadyWaitlisted)
	assert.Equal(t, "conflict", typ)
	assert.Equal(t, "already_waitlisted", code)

	typ, code = classifyErrorForLog(context.Canceled)
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "internal_error", code)

	typ, code = classifyErrorForLog(nil)
	assert.Empty(t, typ)
	assert.Empty(t, code)
}

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wadispatch/pkg/domains/autoresponse"
	"github.com/wadispatch/pkg/domains/campaign"
	"github.com/wadispatch/pkg/domains/whatsapp"
	"github.com/wadispatch/pkg/dtos"
	"github.com/wadispatch/pkg/entities"
	"github.com/wadispatch/pkg/utils"
)

const testSecret = "routes-secret"

type campaignServiceMock struct {
	mock.Mock
}

func (m *campaignServiceMock) Create(ctx context.Context, ownerID uint, req dtos.CreateCampaignDTO) (entities.Campaign, error) {
	args := m.Called(ownerID, req)
	return args.Get(0).(entities.Campaign), args.Error(1)
}

func (m *campaignServiceMock) Get(ctx context.Context, ownerID, id uint) (entities.Campaign, error) {
	args := m.Called(ownerID, id)
	return args.Get(0).(entities.Campaign), args.Error(1)
}

func (m *campaignServiceMock) List(ctx context.Context, ownerID uint, page int) ([]entities.Campaign, int, error) {
	args := m.Called(ownerID, page)
	return args.Get(0).([]entities.Campaign), args.Int(1), args.Error(2)
}

func (m *campaignServiceMock) Messages(ctx context.Context, ownerID, id uint, page int) ([]entities.Message, int, error) {
	args := m.Called(ownerID, id, page)
	return args.Get(0).([]entities.Message), args.Int(1), args.Error(2)
}

func (m *campaignServiceMock) Start(ctx context.Context, ownerID, id uint) error {
	return m.Called(ownerID, id).Error(0)
}

func (m *campaignServiceMock) Pause(ctx context.Context, ownerID, id uint) error {
	return m.Called(ownerID, id).Error(0)
}

func (m *campaignServiceMock) Resume(ctx context.Context, ownerID, id uint) error {
	return m.Called(ownerID, id).Error(0)
}

func (m *campaignServiceMock) Cancel(ctx context.Context, ownerID, id uint) error {
	return m.Called(ownerID, id).Error(0)
}

type fakeRules struct {
	created dtos.AutoResponseRuleDTO
	err     error
}

func (f *fakeRules) ListRules(context.Context, uint) ([]entities.AutoResponseRule, error) {
	return []entities.AutoResponseRule{{Response: "hi", Active: true}}, nil
}

func (f *fakeRules) CreateRule(_ context.Context, ownerID uint, req dtos.AutoResponseRuleDTO) (entities.AutoResponseRule, error) {
	f.created = req
	if f.err != nil {
		return entities.AutoResponseRule{}, f.err
	}
	return entities.AutoResponseRule{OwnerID: ownerID, Keyword: req.Keyword, Response: req.Response}, nil
}

func (f *fakeRules) UpdateRule(_ context.Context, _ uint, _ uint, req dtos.AutoResponseRuleDTO) (entities.AutoResponseRule, error) {
	return entities.AutoResponseRule{Response: req.Response}, f.err
}

func (f *fakeRules) DeleteRule(context.Context, uint, uint) error {
	return f.err
}

func (f *fakeRules) HandleInbound(context.Context, uint, whatsapp.InboundMessage) {}

type fakeSessions struct {
	status whatsapp.Status
	err    error
}

func (f *fakeSessions) Status(_ context.Context, tenantID uint) (whatsapp.Status, error) {
	st := f.status
	st.TenantID = tenantID
	return st, f.err
}

func (f *fakeSessions) GetPairingCode(context.Context, uint) (whatsapp.Status, error) {
	return f.status, f.err
}

func (f *fakeSessions) ForceNewSession(context.Context, uint) (whatsapp.Status, error) {
	return f.status, f.err
}

func (f *fakeSessions) Logout(context.Context, uint) error {
	return f.err
}

func (f *fakeSessions) QueueStatus() whatsapp.AdmissionStatus {
	return whatsapp.AdmissionStatus{Queued: 2, Active: 3, Concurrency: 3}
}

type fakeReconciler struct{ n int64 }

func (f fakeReconciler) Reconcile(context.Context) (int64, error) { return f.n, nil }

type testAPI struct {
	engine    *gin.Engine
	campaigns *campaignServiceMock
	rules     *fakeRules
	sessions  *fakeSessions
	token     string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	t.Setenv("SECRET", testSecret)
	t.Setenv("ADMIN_KEY", "admin")
	gin.SetMode(gin.TestMode)
	utils.BindValidations()

	a := &testAPI{
		engine:    gin.New(),
		campaigns: &campaignServiceMock{},
		rules:     &fakeRules{},
		sessions:  &fakeSessions{},
	}
	api := a.engine.Group("/api/v1")
	CampaignRoutes(api.Group("/campaigns"), a.campaigns)
	AutoResponseRoutes(api.Group("/auto-responses"), a.rules)
	WhatsAppRoutes(api.Group("/whatsapp"), a.sessions)
	AdminRoutes(api.Group("/admin"), fakeReconciler{n: 2})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  7,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	a.token = token
	return a
}

func (a *testAPI) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateCampaign(t *testing.T) {
	a := newTestAPI(t)
	a.campaigns.On("Create", uint(7), mock.MatchedBy(func(req dtos.CreateCampaignDTO) bool {
		return req.Name == "Promo" && len(req.Contacts) == 2
	})).Return(entities.Campaign{Name: "Promo", Status: entities.CampaignPending, Stats: entities.CampaignStats{Total: 2, Pending: 2}}, nil)

	rec := a.do(http.MethodPost, "/api/v1/campaigns", map[string]interface{}{
		"name":    "Promo",
		"message": "Hola {{name}}",
		"contacts": []map[string]interface{}{
			{"name": "Ana", "phone": "11 5555 1234", "email": "ana@example.com"},
			{"phone": "11 5555 9876"},
		},
		"delay_min": 1,
		"delay_max": 3,
	})

	require.Equal(t, 201, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, float64(2), data["stats"].(map[string]interface{})["total"])
	a.campaigns.AssertExpectations(t)
}

func TestCreateCampaign_BadRequests(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/api/v1/campaigns", map[string]interface{}{
		"name": "Promo", "message": "x", "contacts": []map[string]interface{}{},
	})
	assert.Equal(t, 400, rec.Code, "contacts must not be empty")

	rec = a.do(http.MethodPost, "/api/v1/campaigns", map[string]interface{}{
		"name": "Promo", "message": "x",
		"contacts": []map[string]interface{}{{"phone": "1155551234", "email": "nope"}},
	})
	assert.Equal(t, 400, rec.Code, "email is validated")

	a.campaigns.On("Create", uint(7), mock.Anything).Return(entities.Campaign{}, campaign.ErrInvalidDelayRange)
	rec = a.do(http.MethodPost, "/api/v1/campaigns", map[string]interface{}{
		"name": "Promo", "message": "x", "delay_min": 5, "delay_max": 1,
		"contacts": []map[string]interface{}{{"phone": "1155551234"}},
	})
	assert.Equal(t, 400, rec.Code)
}

func TestCampaignRoutes_Unauthenticated(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns", nil)
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)
}

func TestListCampaigns(t *testing.T) {
	a := newTestAPI(t)
	a.campaigns.On("List", uint(7), 2).Return([]entities.Campaign{{Name: "a"}, {Name: "b"}}, 3, nil)
	a.campaigns.On("List", uint(7), 9).Return([]entities.Campaign(nil), 0, utils.ErrPageOutOfRange)

	rec := a.do(http.MethodGet, "/api/v1/campaigns?page=2", nil)
	require.Equal(t, 200, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(3), body["total_pages"])
	assert.Len(t, body["items"], 2)

	assert.Equal(t, 400, a.do(http.MethodGet, "/api/v1/campaigns?page=9", nil).Code)
	assert.Equal(t, 400, a.do(http.MethodGet, "/api/v1/campaigns?page=zero", nil).Code)
}

func TestGetCampaignAndMessages(t *testing.T) {
	a := newTestAPI(t)
	a.campaigns.On("Get", uint(7), uint(5)).Return(entities.Campaign{Name: "x", Cursor: 4}, nil)
	a.campaigns.On("Get", uint(7), uint(6)).Return(entities.Campaign{}, campaign.ErrCampaignNotFound)
	a.campaigns.On("Messages", uint(7), uint(5), 1).Return([]entities.Message{{Status: entities.MessageSent}}, 1, nil)

	rec := a.do(http.MethodGet, "/api/v1/campaigns/5", nil)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, float64(4), decode(t, rec)["cursor"])

	assert.Equal(t, 404, a.do(http.MethodGet, "/api/v1/campaigns/6", nil).Code)
	assert.Equal(t, 400, a.do(http.MethodGet, "/api/v1/campaigns/abc", nil).Code)

	rec = a.do(http.MethodGet, "/api/v1/campaigns/5/messages", nil)
	require.Equal(t, 200, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)
}

func TestCampaignActions(t *testing.T) {
	a := newTestAPI(t)
	a.campaigns.On("Start", uint(7), uint(1)).Return(nil)
	a.campaigns.On("Pause", uint(7), uint(1)).Return(campaign.ErrInvalidTransition)
	a.campaigns.On("Resume", uint(7), uint(1)).Return(nil)
	a.campaigns.On("Cancel", uint(7), uint(1)).Return(errors.New("db down"))

	assert.Equal(t, 200, a.do(http.MethodPost, "/api/v1/campaigns/1/start", nil).Code)
	assert.Equal(t, 409, a.do(http.MethodPost, "/api/v1/campaigns/1/pause", nil).Code)
	assert.Equal(t, 200, a.do(http.MethodPost, "/api/v1/campaigns/1/resume", nil).Code)

	rec := a.do(http.MethodPost, "/api/v1/campaigns/1/cancel", nil)
	assert.Equal(t, 500, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestAutoResponseRoutes(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/api/v1/auto-responses", map[string]interface{}{
		"keyword": "precio", "match_mode": "contains", "response": "Prices",
	})
	require.Equal(t, 201, rec.Code, rec.Body.String())
	require.NotNil(t, a.rules.created.Keyword)
	assert.Equal(t, "precio", *a.rules.created.Keyword)

	rec = a.do(http.MethodPost, "/api/v1/auto-responses", map[string]interface{}{
		"keyword": "x", "match_mode": "regex", "response": "y",
	})
	assert.Equal(t, 400, rec.Code)

	a.rules.err = autoresponse.ErrDuplicateKeyword
	rec = a.do(http.MethodPost, "/api/v1/auto-responses", map[string]interface{}{"keyword": "precio", "response": "again"})
	assert.Equal(t, 409, rec.Code)

	a.rules.err = autoresponse.ErrRuleNotFound
	assert.Equal(t, 404, a.do(http.MethodDelete, "/api/v1/auto-responses/3", nil).Code)
	assert.Equal(t, 404, a.do(http.MethodPut, "/api/v1/auto-responses/3", map[string]interface{}{"keyword": "k", "response": "r"}).Code)

	a.rules.err = nil
	assert.Equal(t, 200, a.do(http.MethodDelete, "/api/v1/auto-responses/3", nil).Code)
	rec = a.do(http.MethodGet, "/api/v1/auto-responses", nil)
	require.Equal(t, 200, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)
}

func TestWhatsAppRoutes(t *testing.T) {
	a := newTestAPI(t)

	a.sessions.status = whatsapp.Status{State: whatsapp.StateInitializing}
	assert.Equal(t, 202, a.do(http.MethodGet, "/api/v1/whatsapp/pairing-code", nil).Code)

	a.sessions.status = whatsapp.Status{State: whatsapp.StateQRPending, PairingCode: "2@abc"}
	rec := a.do(http.MethodGet, "/api/v1/whatsapp/pairing-code", nil)
	require.Equal(t, 200, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "2@abc", data["pairing_code"])

	rec = a.do(http.MethodGet, "/api/v1/whatsapp/status", nil)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, float64(7), decode(t, rec)["tenant_id"])

	rec = a.do(http.MethodGet, "/api/v1/whatsapp/queue", nil)
	require.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"queued":2,"active":3,"concurrency":3}`, rec.Body.String())

	a.sessions.err = whatsapp.ErrNotReady
	assert.Equal(t, 503, a.do(http.MethodPost, "/api/v1/whatsapp/force-new-session", nil).Code)
	a.sessions.err = nil
	assert.Equal(t, 200, a.do(http.MethodPost, "/api/v1/whatsapp/logout", nil).Code)
}

func TestAdminReconcile(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, 401, a.do(http.MethodPost, "/api/v1/admin/reconcile", nil).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile", nil)
	req.Header.Set("admin_key", "admin")
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["reconciled"])
}

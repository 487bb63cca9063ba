package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/engine/internal/application/abtest"
	"github.com/clipcast/engine/internal/application/ads"
	"github.com/clipcast/engine/internal/application/control"
	"github.com/clipcast/engine/internal/application/optimizer"
	"github.com/clipcast/engine/internal/application/scheduler"
	"github.com/clipcast/engine/internal/application/webhook"
	"github.com/clipcast/engine/internal/domain"
	"github.com/clipcast/engine/internal/infrastructure/provider"
	"github.com/clipcast/engine/internal/infrastructure/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAdsProvider is the same no-op-except-PauseEntity double control's own
// tests use (internal/application/control/control_test.go), duplicated here
// since it is unexported there.
type fakeAdsProvider struct {
	mu     sync.Mutex
	paused map[string]bool
}

func newFakeAdsProvider() *fakeAdsProvider {
	return &fakeAdsProvider{paused: map[string]bool{}}
}

func (f *fakeAdsProvider) SupportsRealAPI() bool { return false }
func (f *fakeAdsProvider) CreateCampaign(ctx context.Context, name string, dailyBudgetCents int64) (string, error) {
	return "", nil
}
func (f *fakeAdsProvider) CreateAdSet(ctx context.Context, campaignExternalID string, targeting map[string]any, budgetCents int64, start time.Time, end *time.Time) (string, error) {
	return "", nil
}
func (f *fakeAdsProvider) CreateCreative(ctx context.Context, clip *domain.Clip, caption string, hashtags []string) (string, error) {
	return "", nil
}
func (f *fakeAdsProvider) CreateAd(ctx context.Context, adSetExternalID, creativeExternalID string) (string, error) {
	return "", nil
}
func (f *fakeAdsProvider) GetInsights(ctx context.Context, entityExternalID string, window time.Duration) (provider.Insights, error) {
	return provider.Insights{}, nil
}
func (f *fakeAdsProvider) UpdateBudget(ctx context.Context, entityExternalID string, newBudgetCents int64) error {
	return nil
}
func (f *fakeAdsProvider) PauseEntity(ctx context.Context, entityExternalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused[entityExternalID] = true
	return nil
}
func (f *fakeAdsProvider) ResumeEntity(ctx context.Context, entityExternalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.paused, entityExternalID)
	return nil
}

var _ provider.AdsProvider = (*fakeAdsProvider)(nil)

func newTestServer(t *testing.T, store domain.Storage) *Server {
	t.Helper()
	adsProvider := newFakeAdsProvider()
	ctl := control.New(store, adsProvider, control.DefaultConfig(), testLogger())
	ingestor := webhook.New(store, store)
	captions := ads.NewCaptionDrafter("", "", zerolog.Nop())
	orchestrator := ads.New(store, adsProvider, captions, ctl.IsStopped)

	oracle := scheduler.NewOracle(map[domain.Platform]domain.PlatformWindow{
		domain.PlatformTikTok: {Platform: domain.PlatformTikTok, WindowStartHour: 8, WindowEndHour: 22, MinGapMinutes: 30},
	})
	sched := scheduler.New(store, oracle, 15*time.Minute, scheduler.DefaultSaturationLimits(), ctl.IsStopped)
	evaluator := abtest.New(store, adsProvider, sched)

	systemStatus := func() domain.ComponentStatus { return domain.ComponentOnline }
	optLoop := optimizer.New(store, adsProvider, optimizer.DefaultConfig(), systemStatus, ctl.IsStopped, testLogger())

	return NewServer(store, ctl, ingestor, orchestrator, evaluator, optLoop, testLogger(), DefaultServerConfig())
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func seedPublishLog(t *testing.T, store *storage.MemoryStore) *domain.PublishLog {
	t.Helper()
	log, err := domain.NewPublishLog(uuid.New(), domain.PlatformTikTok, nil, time.Now().Add(time.Hour), domain.ScheduledByManual, 0.5)
	require.NoError(t, err)
	require.NoError(t, store.SavePublishLog(context.Background(), log))
	return log
}

func TestServer_HandleListPosts(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPublishLog(t, store)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/posts")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []PostResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)
	assert.Equal(t, "tiktok", resp[0].Platform)
}

func TestServer_HandleListPosts_FilterByPlatform(t *testing.T) {
	store := storage.NewMemoryStore()
	seedPublishLog(t, store)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/posts?platform=instagram")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []PostResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp)
}

func TestServer_HandleListPosts_InvalidPlatform(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/posts?platform=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_HandleGetPost(t *testing.T) {
	store := storage.NewMemoryStore()
	log := seedPublishLog(t, store)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/posts/"+log.ID().String())
	assert.Equal(t, http.StatusOK, w.Code)

	var resp PostResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, log.ID().String(), resp.ID)
}

func TestServer_HandleGetPost_NotFound(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/posts/"+uuid.New().String())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_HandleGetPost_InvalidID(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/posts/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_HandleGetPostEvents(t *testing.T) {
	store := storage.NewMemoryStore()
	log := seedPublishLog(t, store)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/posts/"+log.ID().String()+"/events")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []PostEventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp)
	assert.Equal(t, "publish.scheduled", resp[0].Type)
}

func seedAccount(t *testing.T, store *storage.MemoryStore, platform domain.Platform) *domain.SocialAccount {
	t.Helper()
	acct := &domain.SocialAccount{
		ID:                    uuid.New(),
		Platform:              platform,
		ExternalAccountID:     "ext-1",
		DisplayName:           "Test Account",
		IdentityClass:         domain.IdentityClassAccountBound,
		DailyPostCap:          10,
		DailyPostCountResetAt: time.Now().Add(24 * time.Hour),
		Active:                true,
		CreatedAt:             time.Now().UTC(),
		UpdatedAt:             time.Now().UTC(),
	}
	require.NoError(t, store.SaveSocialAccount(context.Background(), acct))
	return acct
}

func TestServer_HandleListAccounts_AllPlatforms(t *testing.T) {
	store := storage.NewMemoryStore()
	seedAccount(t, store, domain.PlatformTikTok)
	seedAccount(t, store, domain.PlatformYouTube)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/accounts")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestServer_HandleListAccounts_FilteredByPlatform(t *testing.T) {
	store := storage.NewMemoryStore()
	seedAccount(t, store, domain.PlatformTikTok)
	seedAccount(t, store, domain.PlatformYouTube)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/accounts?platform=tiktok")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "tiktok", resp[0].Platform)
}

func TestServer_HandleGetAccount(t *testing.T) {
	store := storage.NewMemoryStore()
	acct := seedAccount(t, store, domain.PlatformTikTok)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/accounts/"+acct.ID.String())
	assert.Equal(t, http.StatusOK, w.Code)
}

func seedCampaign(t *testing.T, store *storage.MemoryStore) *domain.Campaign {
	t.Helper()
	c, err := domain.NewCampaign("summer launch", 5000)
	require.NoError(t, err)
	require.NoError(t, store.SaveCampaign(context.Background(), c))
	return c
}

func TestServer_HandleListCampaigns(t *testing.T) {
	store := storage.NewMemoryStore()
	seedCampaign(t, store)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/campaigns")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []CampaignResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "summer launch", resp[0].Name)
}

func TestServer_HandleGetCampaign_NotFound(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/campaigns/"+uuid.New().String())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_HandleListCampaignAds(t *testing.T) {
	store := storage.NewMemoryStore()
	campaign := seedCampaign(t, store)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/campaigns/"+campaign.ID.String()+"/ads")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []AdResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp)
}

func seedABTest(t *testing.T, store *storage.MemoryStore) *domain.ABTest {
	t.Helper()
	variants := []domain.ABVariant{{ClipID: uuid.New(), AdID: uuid.New()}, {ClipID: uuid.New(), AdID: uuid.New()}}
	test, err := domain.NewABTest(uuid.New(), variants, []string{"ctr"}, 1000, 24, time.Now(), domain.PlatformInstagram, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveABTest(context.Background(), test))
	return test
}

func TestServer_HandleListABTests(t *testing.T) {
	store := storage.NewMemoryStore()
	seedABTest(t, store)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/ab-tests")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []ABTestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Len(t, resp[0].Variants, 2)
}

func TestServer_HandleGetABTest(t *testing.T) {
	store := storage.NewMemoryStore()
	test := seedABTest(t, store)
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/ab-tests/"+test.ID.String())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_HandleListOptimizationActions_Empty(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/optimization-actions")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []OptimizationActionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp)
}

func TestServer_HandleListIdentities_Empty(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/identities")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_HandleListLedgerEvents_RequiresParams(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/ledger")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_HandleListLedgerEvents(t *testing.T) {
	store := storage.NewMemoryStore()
	event := domain.NewLedgerEvent(domain.EventPublishSuccessful, "post", "post-1", domain.SeverityInfo, nil)
	require.NoError(t, store.AppendLedgerEvent(context.Background(), event))
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/ledger?entity_type=post&entity_id=post-1")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp []LedgerEventResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, domain.EventPublishSuccessful, resp[0].EventType)
}

func TestServer_HandleHealth(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
}

func TestServer_HandleEmergencyStopAndResume(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodPost, "/api/v1/control/emergency-stop")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.control.IsStopped())

	w = doRequest(t, s, http.MethodPost, "/api/v1/control/resume")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.control.IsStopped())
}

func TestServer_HandleRestartComponent_UnknownComponent(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodPost, "/api/v1/control/restart/nonexistent")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_CORSHeaders(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/health")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_ContentTypeHeader(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/health")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestServer_UnknownRoute(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequest(t, s, http.MethodGet, "/api/v1/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func doRequestBody(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func TestServer_HandleWebhook(t *testing.T) {
	store := storage.NewMemoryStore()
	log := seedPublishLog(t, store)
	require.NoError(t, log.Promote())
	require.NoError(t, log.BeginProcessing())
	require.NoError(t, log.MarkSuccess("ext-post-1", "https://tiktok.example/ext-post-1"))
	require.NoError(t, store.SavePublishLog(context.Background(), log))

	s := newTestServer(t, store)

	body := `{"external_post_id":"ext-post-1","status":"live","media_url":"https://cdn.example/x.mp4"}`
	w := doRequestBody(t, s, http.MethodPost, "/api/v1/webhooks/tiktok", body)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp PostResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ext-post-1", resp.ExternalPostID)
}

func TestServer_HandleWebhook_UnknownExternalPostID(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	body := `{"external_post_id":"does-not-exist","status":"live"}`
	w := doRequestBody(t, s, http.MethodPost, "/api/v1/webhooks/tiktok", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_HandleWebhook_InvalidJSON(t *testing.T) {
	store := storage.NewMemoryStore()
	s := newTestServer(t, store)

	w := doRequestBody(t, s, http.MethodPost, "/api/v1/webhooks/tiktok", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

package ingest_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/auth"
	"github.com/Wuchinator/watchtime/internal/ingest"
	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/internal/telemetry/memstore"
	"github.com/Wuchinator/watchtime/pkg/httpapi"
)

type handlerFixture struct {
	store  *memstore.Store
	userID uuid.UUID
	router chi.Router
}

func newHandlerFixture(t *testing.T, opts ...ingest.ServiceOption) *handlerFixture {
	t.Helper()
	store := memstore.New()
	svc := ingest.NewService(store, zap.NewNop(), opts...)
	h := ingest.NewHandler(svc, store, zap.NewNop())

	f := &handlerFixture{store: store, userID: uuid.New()}
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
				ctx := auth.WithIdentity(req.Context(), auth.Identity{UserID: f.userID, DeviceID: "dev"})
				next.ServeHTTP(rw, req.WithContext(ctx))
			})
		})
		r.Post("/sync", h.Sync)
		r.Get("/sync/videos", h.ListVideos)
		r.Get("/sync/stats/{date}", h.DailyStats)
	})
	r.Post("/anon/sync", h.Sync)
	f.router = r
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const syncBody = `{
	"userId": "ignored",
	"lastSyncTime": 0,
	"data": {
		"videoSessions": [{"id": "abc", "videoId": "xyz123", "watchedSeconds": 120, "channel": "Go", "timestamp": 1705312800000}],
		"dailyStats": {"2024-01-15": {"date": "2024-01-15", "totalSeconds": 120, "hourlySeconds": {"10": 120}}}
	}
}`

func TestHandlerSync(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/sync", syncBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ingest.SyncResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Len(t, resp.SyncedCounts, len(telemetry.EntityTypes()))
	assert.Equal(t, 1, resp.SyncedCounts["videoSessions"])
	assert.Equal(t, 1, resp.SyncedCounts["dailyStats"])
	assert.Equal(t, 0, resp.SyncedCounts["productiveUrls"])
	assert.Empty(t, resp.Errors)
	assert.Positive(t, resp.LastSyncTime)
}

func TestHandlerSyncRequiresIdentity(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/anon/sync", syncBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerSyncMalformedBody(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/sync", `{"data": [}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.store.TotalRows())
}

func TestHandlerSyncValidationError(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/sync", `{"data": {"moodReports": [{"sessionId": "s", "reportType": "pre", "mood": 9, "timestamp": 1705312800000}]}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decode[httpapi.Response](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "data.moodReports[0].mood", resp.Errors[0].Field)
}

func TestHandlerSyncTooManyItems(t *testing.T) {
	f := newHandlerFixture(t)

	events := make([]map[string]any, 1001)
	for i := range events {
		events[i] = map[string]any{"sessionId": "s", "scrollDirection": "down", "timestamp": 1705312800000}
	}
	body, err := json.Marshal(map[string]any{"data": map[string]any{"scrollEvents": events}})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/sync", string(body))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	resp := decode[httpapi.Response](t, rec)
	assert.Contains(t, resp.Detail, "scrollEvents: 1001 exceeds limit of 1000")
	assert.Zero(t, f.store.TotalRows())
}

func TestHandlerSyncBodyTooLarge(t *testing.T) {
	limits := ingest.DefaultLimits()
	limits.MaxRequestBytes = 64
	f := newHandlerFixture(t, ingest.WithLimits(limits))

	rec := f.do(t, http.MethodPost, "/sync", syncBody)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Request entity too large", decode[httpapi.Response](t, rec).Detail)
}

func TestHandlerSyncBodyTooLargeWithoutContentLength(t *testing.T) {
	limits := ingest.DefaultLimits()
	limits.MaxRequestBytes = 64
	f := newHandlerFixture(t, ingest.WithLimits(limits))

	// A plain io.Reader leaves ContentLength unknown, so MaxBytesReader does the work.
	req := httptest.NewRequest(http.MethodPost, "/sync", struct{ *bytes.Reader }{bytes.NewReader([]byte(syncBody))})
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandlerSyncStoreFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.store.FailOn(telemetry.DailyStatsEntries, errors.New("connection reset"))

	rec := f.do(t, http.MethodPost, "/sync", syncBody)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[httpapi.Response](t, rec)
	assert.Equal(t, "Sync failed", resp.Detail)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	assert.Zero(t, f.store.TotalRows())
}

func TestHandlerDailyStats(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/sync", syncBody).Code)

	rec := f.do(t, http.MethodGet, "/sync/stats/2024-01-15", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, true, got["found"])
	assert.InDelta(t, 120, got["totalSeconds"], 0)
	assert.Equal(t, map[string]any{"10": float64(120)}, got["hourlySeconds"])
	assert.Nil(t, got["topChannels"])

	rec = f.do(t, http.MethodGet, "/sync/stats/2024-01-16", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"date": "2024-01-16", "found": false}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/sync/stats/yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListVideos(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/sync", syncBody).Code)

	rec := f.do(t, http.MethodGet, "/sync/videos?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.InDelta(t, 1, got["total"], 0)
	assert.InDelta(t, 10, got["limit"], 0)
	videos := got["videos"].([]any)
	require.Len(t, videos, 1)
	assert.Equal(t, "abc", videos[0].(map[string]any)["id"])

	rec = f.do(t, http.MethodGet, "/sync/videos?limit=5000", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

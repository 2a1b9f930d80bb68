package stats_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/auth"
	"github.com/Wuchinator/watchtime/internal/stats"
	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/internal/telemetry/memstore"
)

var now = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func date(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(s string) *string { return &s }

type fixture struct {
	store  telemetry.Store
	svc    *stats.Service
	userID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(now)
	store := memstore.New()
	f := &fixture{store: store, svc: stats.NewService(store, clock), userID: uuid.New()}
	seed(t, store, f.userID, uuid.New())
	return f
}

// seed writes the shared scenario for userID plus a neighbour row for other.
func seed(t *testing.T, store telemetry.Store, userID, other uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	err := store.InTx(ctx, func(tx telemetry.Tx) error {
		for _, d := range []struct {
			userID  uuid.UUID
			date    string
			seconds int
			videos  int
		}{
			{userID, "2024-01-15", 3600, 3},
			{userID, "2024-01-10", 1800, 2},
			{userID, "2024-01-05", 1200, 1},
			{userID, "2023-12-01", 9999, 9},
			{other, "2024-01-15", 7200, 7},
		} {
			if err := tx.UpsertDailyStats(ctx, &telemetry.DailyStats{
				UserID: d.userID, Date: date(d.date), TotalSeconds: d.seconds, VideoCount: d.videos,
			}); err != nil {
				return err
			}
		}

		for i, v := range []struct {
			channel string
			seconds int
			at      time.Time
		}{
			{"Go", 120, now.Add(-24 * time.Hour)},
			{"Go", 60, now.Add(-48 * time.Hour)},
			{"Rust", 600, now.Add(-time.Hour)},
			{"Old", 5000, now.AddDate(0, -1, 0)},
		} {
			if _, err := tx.InsertVideoSession(ctx, &telemetry.VideoSession{
				ID: uuid.New(), UserID: userID, ExtSessionID: string(rune('a' + i)),
				VideoID: "vid", Channel: strPtr(v.channel), WatchedSeconds: v.seconds, Timestamp: v.at,
			}); err != nil {
				return err
			}
		}

		if err := tx.AppendInterventionEvents(ctx, []telemetry.InterventionEvent{
			{UserID: userID, InterventionType: "delay", TriggeredAt: now.Add(-time.Hour), Response: strPtr("leave"), UserLeftYoutube: true},
			{UserID: userID, InterventionType: "delay", TriggeredAt: now.Add(-2 * time.Hour), Response: strPtr("continue")},
			{UserID: userID, InterventionType: "delay", TriggeredAt: now.AddDate(0, 0, -20)},
		}); err != nil {
			return err
		}

		return tx.AppendMoodReports(ctx, []telemetry.MoodReport{
			{UserID: userID, ReportType: telemetry.ReportTypePre, Mood: 2, Timestamp: now.Add(-3 * time.Hour)},
			{UserID: userID, ReportType: telemetry.ReportTypePost, Mood: 4, Timestamp: now.Add(-2 * time.Hour)},
			{UserID: userID, ReportType: telemetry.ReportTypePre, Mood: 1, Timestamp: now.AddDate(0, 0, -60)},
		})
	})
	require.NoError(t, err)
}

// seedChannels gives userID twelve channels inside the last week, channel
// ch-NN holding NN minutes, and returns the ten heaviest in descending order.
func seedChannels(t *testing.T, store telemetry.Store, userID uuid.UUID) []stats.ChannelStat {
	t.Helper()
	ctx := context.Background()

	const channels = 12
	err := store.InTx(ctx, func(tx telemetry.Tx) error {
		for i := 1; i <= channels; i++ {
			if _, err := tx.InsertVideoSession(ctx, &telemetry.VideoSession{
				ID: uuid.New(), UserID: userID, ExtSessionID: fmt.Sprintf("ch-%02d", i),
				VideoID: "vid", Channel: strPtr(fmt.Sprintf("ch-%02d", i)), WatchedSeconds: i * 60,
				Timestamp: now.Add(-time.Duration(i) * time.Hour),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	want := make([]stats.ChannelStat, 0, 10)
	for i := channels; i > channels-10; i-- {
		want = append(want, stats.ChannelStat{Channel: fmt.Sprintf("ch-%02d", i), VideoCount: 1, TotalMinutes: float64(i)})
	}
	return want
}

func TestOverview(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.Overview(context.Background(), f.userID)
	require.NoError(t, err)
	require.NotNil(t, o.Today)
	assert.Equal(t, 3600, o.Today.TotalSeconds)
	require.Len(t, o.Last7Days, 2)
	assert.Equal(t, "2024-01-15", o.Last7Days[0].Date)
	assert.Equal(t, "2024-01-10", o.Last7Days[1].Date)
	assert.Equal(t, 5, o.TotalVideos)
	assert.InDelta(t, 1.5, o.TotalHours, 1e-9)
	assert.InDelta(t, 45.0, o.AvgDailyMinutes, 1e-9)
}

func TestOverviewWithoutData(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.Overview(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, o.Today)
	assert.Empty(t, o.Last7Days)
}

func TestWeeklyComparison(t *testing.T) {
	f := newFixture(t)

	w, err := f.svc.WeeklyComparison(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), w.ThisWeekMinutes)
	assert.Equal(t, int64(20), w.PrevWeekMinutes)
	assert.InDelta(t, 350.0, w.ChangePercent, 1e-9)
	assert.Equal(t, int64(5), w.ThisWeekVideos)
	assert.Equal(t, int64(1), w.PrevWeekVideos)
}

func TestWeeklyComparisonEmptyPreviousWeek(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	require.NoError(t, f.store.InTx(context.Background(), func(tx telemetry.Tx) error {
		return tx.UpsertDailyStats(context.Background(), &telemetry.DailyStats{UserID: userID, Date: date("2024-01-15"), TotalSeconds: 600})
	}))

	w, err := f.svc.WeeklyComparison(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), w.ThisWeekMinutes)
	assert.Zero(t, w.ChangePercent)
}

func TestDaily(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Daily(context.Background(), f.userID, date("2024-01-10"))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 1800, d.TotalSeconds)

	missing, err := f.svc.Daily(context.Background(), f.userID, date("2024-01-11"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTopChannels(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.TopChannels(context.Background(), f.userID, 7)
	require.NoError(t, err)
	assert.Equal(t, "last_7_days", got.Period)
	require.Len(t, got.Channels, 2)
	assert.Equal(t, stats.ChannelStat{Channel: "Rust", VideoCount: 1, TotalMinutes: 10}, got.Channels[0])
	assert.Equal(t, stats.ChannelStat{Channel: "Go", VideoCount: 2, TotalMinutes: 3}, got.Channels[1])
}

func TestTopChannelsKeepsTenHeaviest(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	want := seedChannels(t, f.store, userID)

	got, err := f.svc.TopChannels(context.Background(), userID, 7)
	require.NoError(t, err)
	assert.Equal(t, want, got.Channels)
}

func TestInterventionSummary(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.InterventionSummary(context.Background(), f.userID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, got.PeriodDays)
	assert.Equal(t, 2, got.TotalInterventions)
	delay := got.ByType["delay"]
	assert.Equal(t, 2, delay.Responded)
	assert.InDelta(t, 50.0, delay.EffectivenessRate, 1e-9)
}

func TestMoodTrend(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.MoodTrend(context.Background(), f.userID, 30)
	require.NoError(t, err)
	require.Len(t, got.Trends, 1)
	day := got.Trends[0]
	assert.Equal(t, "2024-01-15", day.Date)
	require.NotNil(t, day.MoodDelta)
	assert.InDelta(t, 2.0, *day.MoodDelta, 1e-9)
}

func newRouter(f *fixture, withIdentity bool) http.Handler {
	h := stats.NewHandler(f.svc, zap.NewNop())
	r := chi.NewRouter()
	if withIdentity {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(rw, req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: f.userID})))
			})
		})
	}
	r.Route("/stats", h.Routes)
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandlerRoutes(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f, true)

	rec := get(t, h, "/stats/weekly")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"this_week_minutes": 90,
		"prev_week_minutes": 20,
		"change_percent": 350,
		"this_week_videos": 5,
		"prev_week_videos": 1
	}`, rec.Body.String())

	rec = get(t, h, "/stats/daily/2024-01-15")
	require.Equal(t, http.StatusOK, rec.Code)
	var daily struct {
		Date string         `json:"date"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &daily))
	assert.Equal(t, "2024-01-15", daily.Date)
	assert.InDelta(t, 3600, daily.Data["total_seconds"], 0)

	rec = get(t, h, "/stats/daily/2024-01-16")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"date": "2024-01-16", "data": null}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/stats/daily/nope").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/stats/overview").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/stats/channels?days=90").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/stats/interventions").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/stats/mood").Code)
}

func TestHandlerRejectsOutOfRangeDays(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f, true)

	assert.Equal(t, http.StatusUnprocessableEntity, get(t, h, "/stats/channels?days=0").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, get(t, h, "/stats/channels?days=91").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, get(t, h, "/stats/mood?days=3").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, get(t, h, "/stats/interventions?days=x").Code)
}

func TestHandlerRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f, false)

	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/stats/overview").Code)
}

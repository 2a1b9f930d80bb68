package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Wuchinator/watchtime/internal/ingest"
	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/internal/telemetry/memstore"
)

const baseMillis int64 = 1705312800000 // 2024-01-15T10:00:00Z

type recordingNotifier struct {
	events []telemetry.SyncCompleted
	err    error
}

func (n *recordingNotifier) SyncCompleted(_ context.Context, e telemetry.SyncCompleted) error {
	n.events = append(n.events, e)
	return n.err
}

func newService(t *testing.T, opts ...ingest.ServiceOption) (*ingest.Service, *memstore.Store, *quartz.Mock) {
	t.Helper()
	store := memstore.New()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	opts = append([]ingest.ServiceOption{ingest.WithClock(clock)}, opts...)
	return ingest.NewService(store, zap.NewNop(), opts...), store, clock
}

func videoSession(id string) ingest.VideoSessionCreate {
	channel := "Go"
	return ingest.VideoSessionCreate{
		ID:             id,
		VideoID:        "xyz123",
		Channel:        &channel,
		WatchedSeconds: 120,
		Timestamp:      baseMillis,
	}
}

func TestSyncEmptyRequest(t *testing.T) {
	svc, store, clock := newService(t)

	res, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{})
	require.NoError(t, err)

	assert.Len(t, res.SyncedCounts, len(telemetry.EntityTypes()))
	assert.Zero(t, res.SyncedCounts.Total())
	assert.Equal(t, clock.Now().UTC(), res.LastSyncTime)
	assert.Zero(t, store.TotalRows())

	resp := res.Response()
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Errors)
	assert.Equal(t, clock.Now().UnixMilli(), resp.LastSyncTime)
}

func TestSyncIsIdempotent(t *testing.T) {
	svc, store, _ := newService(t)
	userID := uuid.New()
	req := &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{videoSession("abc")},
		BrowserSessions: []ingest.BrowserSessionCreate{
			{ID: "b1", StartedAt: baseMillis},
		},
	}}

	for i := range 2 {
		res, err := svc.Sync(context.Background(), userID, req)
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, 1, res.SyncedCounts[telemetry.VideoSessions], "attempt %d", i)
		assert.Equal(t, 1, res.SyncedCounts[telemetry.BrowserSessions], "attempt %d", i)
	}
	assert.Equal(t, 1, store.Rows(telemetry.VideoSessions))
	assert.Equal(t, 1, store.Rows(telemetry.BrowserSessions))
}

func TestSyncDuplicateWithinBatch(t *testing.T) {
	svc, store, _ := newService(t)

	res, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{videoSession("abc"), videoSession("abc")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SyncedCounts[telemetry.VideoSessions])
	assert.Equal(t, 1, store.Rows(telemetry.VideoSessions))
}

func TestSyncSessionsAreScopedByUser(t *testing.T) {
	svc, store, _ := newService(t)
	req := &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{videoSession("abc")},
	}}

	_, err := svc.Sync(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	_, err = svc.Sync(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Rows(telemetry.VideoSessions))
}

func TestSyncDailyStatsLastWriteWins(t *testing.T) {
	svc, store, _ := newService(t)
	userID := uuid.New()
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	for _, total := range []int{100, 200} {
		res, err := svc.Sync(context.Background(), userID, &ingest.SyncRequest{Data: ingest.SyncData{
			DailyStats: map[string]ingest.DailyStatsCreate{"2024-01-15": {TotalSeconds: total}},
		}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.SyncedCounts[telemetry.DailyStatsEntries])
	}

	got, err := store.DailyStats(context.Background(), userID, date)
	require.NoError(t, err)
	assert.Equal(t, 200, got.TotalSeconds)
	assert.Equal(t, 1, store.Rows(telemetry.DailyStatsEntries))
}

func TestSyncInvalidDateIsSoftError(t *testing.T) {
	svc, store, _ := newService(t)

	res, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		DailyStats: map[string]ingest.DailyStatsCreate{
			"2024-01-15": {TotalSeconds: 10},
			"15/01/2024": {TotalSeconds: 20},
		},
		VideoSessions: []ingest.VideoSessionCreate{videoSession("abc")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SyncedCounts[telemetry.DailyStatsEntries])
	assert.Equal(t, 1, res.SyncedCounts[telemetry.VideoSessions])
	assert.Equal(t, []string{"Invalid date format: 15/01/2024"}, res.Errors)
	assert.Equal(t, 1, store.Rows(telemetry.DailyStatsEntries))
}

func TestSyncRestoresSoftDeletedProductiveURL(t *testing.T) {
	svc, store, _ := newService(t)
	userID := uuid.New()
	ctx := context.Background()

	sync := func(url, title string) {
		t.Helper()
		res, err := svc.Sync(ctx, userID, &ingest.SyncRequest{Data: ingest.SyncData{
			ProductiveURLs: []ingest.ProductiveURLCreate{{ID: "p1", URL: url, Title: title, AddedAt: baseMillis}},
		}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.SyncedCounts[telemetry.ProductiveURLs])
	}

	sync("https://go.dev", "Go")
	store.SoftDeleteProductiveURL(userID, "p1", time.Now())
	sync("https://go.dev/doc", "Go docs")

	rows := store.ProductiveURLs(userID)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsDeleted())
	assert.Equal(t, "https://go.dev/doc", rows[0].URL)
	assert.Equal(t, "Go docs", rows[0].Title)
}

func TestSyncProductiveURLPrefersLiveRow(t *testing.T) {
	svc, store, _ := newService(t)
	userID := uuid.New()
	deletedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.PutProductiveURL(telemetry.ProductiveURL{UserID: userID, ExtID: "p1", URL: "https://old", Title: "gone", DeletedAt: &deletedAt})
	store.PutProductiveURL(telemetry.ProductiveURL{UserID: userID, ExtID: "p1", URL: "https://live", Title: "live"})

	_, err := svc.Sync(context.Background(), userID, &ingest.SyncRequest{Data: ingest.SyncData{
		ProductiveURLs: []ingest.ProductiveURLCreate{{ID: "p1", URL: "https://new", Title: "new", AddedAt: baseMillis}},
	}})
	require.NoError(t, err)

	rows := store.ProductiveURLs(userID)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].IsDeleted())
	assert.Equal(t, "https://old", rows[0].URL)
	assert.Equal(t, "https://new", rows[1].URL)
}

func TestSyncInvalidProductiveURLIsSoftError(t *testing.T) {
	svc, store, _ := newService(t)

	res, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		ProductiveURLs: []ingest.ProductiveURLCreate{{ID: "p1", URL: "javascript:void(0)", Title: "x", AddedAt: baseMillis}},
	}})
	require.NoError(t, err)
	assert.Zero(t, res.SyncedCounts[telemetry.ProductiveURLs])
	assert.Equal(t, []string{"Invalid URL for productive url p1"}, res.Errors)
	assert.Zero(t, store.Rows(telemetry.ProductiveURLs))
}

func TestSyncAppendsEvents(t *testing.T) {
	svc, store, _ := newService(t)
	userID := uuid.New()
	req := &ingest.SyncRequest{Data: ingest.SyncData{
		ScrollEvents: []ingest.ScrollEventCreate{
			{SessionID: "s1", ScrollDirection: "down", Timestamp: baseMillis},
			{SessionID: "s1", ScrollDirection: "up", Timestamp: baseMillis + 1},
		},
		MoodReports: []ingest.MoodReportCreate{
			{SessionID: "s1", ReportType: "pre", Mood: 3, Timestamp: baseMillis},
		},
	}}

	for range 2 {
		res, err := svc.Sync(context.Background(), userID, req)
		require.NoError(t, err)
		assert.Equal(t, 2, res.SyncedCounts[telemetry.ScrollEvents])
		assert.Equal(t, 1, res.SyncedCounts[telemetry.MoodReports])
	}
	assert.Equal(t, 4, store.Rows(telemetry.ScrollEvents))
	assert.Equal(t, 2, store.Rows(telemetry.MoodReports))
}

func TestSyncRollsBackOnStoreFailure(t *testing.T) {
	store := memstore.New()
	store.FailOn(telemetry.MoodReports, errors.New("disk full"))
	notifier := &recordingNotifier{}
	reg := prometheus.NewRegistry()
	metrics := ingest.NewMetrics(reg)
	svc := ingest.NewService(store, zap.NewNop(), ingest.WithNotifier(notifier), ingest.WithMetrics(metrics))

	_, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions:  []ingest.VideoSessionCreate{videoSession("abc")},
		ScrollEvents:   []ingest.ScrollEventCreate{{SessionID: "s", ScrollDirection: "down", Timestamp: baseMillis}},
		MoodReports:    []ingest.MoodReportCreate{{SessionID: "s", ReportType: "pre", Mood: 2, Timestamp: baseMillis}},
		ProductiveURLs: []ingest.ProductiveURLCreate{{ID: "p", URL: "https://go.dev", Title: "Go", AddedAt: baseMillis}},
	}})
	require.ErrorIs(t, err, ingest.ErrSyncFailed)
	assert.Contains(t, err.Error(), "moodReports")

	assert.Zero(t, store.TotalRows())
	assert.Empty(t, notifier.events)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Requests(ingest.OutcomeFailed)), 0)
}

func TestSyncRejectsOversizedCollection(t *testing.T) {
	svc, store, _ := newService(t)
	events := make([]ingest.ScrollEventCreate, 1001)
	for i := range events {
		events[i] = ingest.ScrollEventCreate{SessionID: "s", ScrollDirection: "down", Timestamp: baseMillis}
	}

	_, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{videoSession("abc")},
		ScrollEvents:  events,
	}})

	var limitErr *ingest.LimitError
	require.ErrorAs(t, err, &limitErr)
	require.Len(t, limitErr.Violations, 1)
	assert.Equal(t, telemetry.ScrollEvents, limitErr.Violations[0].Entity)
	assert.Equal(t, "Payload too large: scrollEvents: 1001 exceeds limit of 1000", err.Error())
	assert.Zero(t, store.TotalRows())
}

func TestSyncLimitsComeBeforeFieldValidation(t *testing.T) {
	svc, _, _ := newService(t, ingest.WithLimits(ingest.Limits{MaxRequestBytes: 1 << 20, MaxEvents: 1}))

	_, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		MoodReports: []ingest.MoodReportCreate{{Mood: 9}, {Mood: 9}},
	}})
	var limitErr *ingest.LimitError
	require.ErrorAs(t, err, &limitErr)
}

func TestSyncRejectsInvalidFields(t *testing.T) {
	svc, store, _ := newService(t)

	_, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{videoSession("abc")},
		MoodReports:   []ingest.MoodReportCreate{{SessionID: "s", ReportType: "pre", Mood: 7, Timestamp: baseMillis}},
	}})

	var verr *ingest.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, "data.moodReports[0].mood", verr.Errors[0].Field)
	assert.Zero(t, store.TotalRows())
}

func TestSyncRejectsOutOfRangeTimestamp(t *testing.T) {
	svc, store, _ := newService(t)
	vs := videoSession("abc")
	vs.Timestamp = 253402300800000

	_, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{vs},
	}})
	var verr *ingest.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "data.videoSessions[0].timestamp", verr.Errors[0].Field)
	assert.Zero(t, store.TotalRows())
}

func TestSyncRejectsIDsThatSanitizeToEmpty(t *testing.T) {
	svc, store, _ := newService(t)

	_, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{videoSession("\x01"), videoSession("\x02")},
	}})
	var verr *ingest.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 2)
	assert.Equal(t, "data.videoSessions[0].id", verr.Errors[0].Field)
	assert.Equal(t, "data.videoSessions[1].id", verr.Errors[1].Field)
	assert.Zero(t, store.TotalRows())
}

func TestSyncNotifiesAfterCommit(t *testing.T) {
	notifier := &recordingNotifier{}
	svc, _, clock := newService(t, ingest.WithNotifier(notifier))
	userID := uuid.New()

	_, err := svc.Sync(context.Background(), userID, &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{videoSession("abc")},
		DailyStats:    map[string]ingest.DailyStatsCreate{"bad": {}},
	}})
	require.NoError(t, err)

	require.Len(t, notifier.events, 1)
	e := notifier.events[0]
	assert.Equal(t, userID, e.UserID)
	assert.Equal(t, 1, e.SyncedCounts[telemetry.VideoSessions])
	assert.Equal(t, 1, e.ErrorCount)
	assert.Equal(t, clock.Now().UTC(), e.LastSyncTime)
}

func TestSyncNotifierFailureDoesNotFailSync(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := memstore.New()
	notifier := &recordingNotifier{err: errors.New("broker down")}
	svc := ingest.NewService(store, zap.New(core), ingest.WithNotifier(notifier))

	res, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{videoSession("abc")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SyncedCounts[telemetry.VideoSessions])
	assert.Equal(t, 1, store.Rows(telemetry.VideoSessions))
	assert.Equal(t, 1, logs.FilterMessage("failed to publish sync completion").Len())
}

func TestSyncMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := ingest.NewMetrics(reg)
	svc, _, _ := newService(t, ingest.WithMetrics(metrics))

	for i := range 3 {
		_, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
			VideoSessions: []ingest.VideoSessionCreate{videoSession(fmt.Sprintf("v%d", i))},
		}})
		require.NoError(t, err)
	}
	_, err := svc.Sync(context.Background(), uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		MoodReports: []ingest.MoodReportCreate{{Mood: 0}},
	}})
	require.Error(t, err)

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.Requests(ingest.OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Requests(ingest.OutcomeRejected)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.Items(telemetry.VideoSessions)), 0)
}

func TestSyncCancelledContext(t *testing.T) {
	svc, store, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Sync(ctx, uuid.New(), &ingest.SyncRequest{Data: ingest.SyncData{
		VideoSessions: []ingest.VideoSessionCreate{videoSession("abc")},
	}})
	require.ErrorIs(t, err, ingest.ErrSyncFailed)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.TotalRows())
}

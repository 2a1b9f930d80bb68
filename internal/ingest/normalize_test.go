package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMillis int64 = 1705312800000 // 2024-01-15T10:00:00Z

func ptr[T any](v T) *T { return &v }

func TestMillisToTime(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		ok   bool
	}{
		{"zero", 0, false},
		{"negative", -1, false},
		{"valid", testMillis, true},
		{"max", maxEpochMillis, true},
		{"past max", maxEpochMillis + 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MillisToTime(tt.ms)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestNormalizeVideoSessionDefaults(t *testing.T) {
	userID := uuid.New()
	req := &SyncRequest{Data: SyncData{
		VideoSessions: []VideoSessionCreate{{
			ID:        "abc",
			VideoID:   "xyz123",
			Title:     ptr("a\x00b"),
			Timestamp: testMillis,
			EndedAt:   ptr(int64(-5)),
		}},
	}}

	b, err := Normalize(req, userID)
	require.NoError(t, err)
	require.Len(t, b.VideoSessions, 1)

	s := b.VideoSessions[0]
	assert.Equal(t, userID, s.UserID)
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, "abc", s.ExtSessionID)
	assert.Equal(t, "ab", *s.Title)
	assert.InDelta(t, 1.0, s.PlaybackSpeed, 0)
	assert.Equal(t, s.Timestamp, s.StartedAt)
	assert.Nil(t, s.EndedAt)
}

func TestNormalizeRejectsRequiredTimestamps(t *testing.T) {
	req := &SyncRequest{Data: SyncData{
		ScrollEvents: []ScrollEventCreate{
			{SessionID: "s", ScrollDirection: "down", Timestamp: testMillis},
			{SessionID: "s", ScrollDirection: "down", Timestamp: maxEpochMillis + 1},
		},
		MoodReports: []MoodReportCreate{{SessionID: "s", ReportType: "pre", Mood: 3}},
	}}

	_, err := Normalize(req, uuid.New())
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 2)
	assert.Equal(t, "data.scrollEvents[1].timestamp", verr.Errors[0].Field)
	assert.Equal(t, "data.moodReports[0].timestamp", verr.Errors[1].Field)
}

func TestNormalizeBrowserSessionSearchQueries(t *testing.T) {
	req := &SyncRequest{Data: SyncData{
		BrowserSessions: []BrowserSessionCreate{
			{ID: "b1", StartedAt: testMillis},
			{ID: "b2", StartedAt: testMillis, SearchQueries: []string{"go\x00lang"}, EntryURL: ptr("javascript:alert(1)")},
		},
	}}

	b, err := Normalize(req, uuid.New())
	require.NoError(t, err)
	require.Len(t, b.BrowserSessions, 2)
	assert.JSONEq(t, `[]`, string(b.BrowserSessions[0].SearchQueries.RawMessage))
	assert.JSONEq(t, `["golang"]`, string(b.BrowserSessions[1].SearchQueries.RawMessage))
	assert.Nil(t, b.BrowserSessions[1].EntryURL)
}

func TestNormalizeDailyStatsSortedByKey(t *testing.T) {
	req := &SyncRequest{Data: SyncData{
		DailyStats: map[string]DailyStatsCreate{
			"2024-01-16": {TotalSeconds: 2, HourlySeconds: []byte(`{"10":60}`)},
			"2024-01-15": {TotalSeconds: 1, TopChannels: []byte(`null`)},
		},
	}}

	b, err := Normalize(req, uuid.New())
	require.NoError(t, err)
	require.Len(t, b.DailyStats, 2)
	assert.Equal(t, "2024-01-15", b.DailyStats[0].DateKey)
	assert.False(t, b.DailyStats[0].Stats.TopChannels.Valid)
	assert.True(t, b.DailyStats[1].Stats.HourlySeconds.Valid)
}

func TestNormalizeSkipsInvalidProductiveURL(t *testing.T) {
	req := &SyncRequest{Data: SyncData{
		ProductiveURLs: []ProductiveURLCreate{
			{ID: "u1", URL: "ftp://example.com", Title: "bad", AddedAt: testMillis},
			{ID: "u2", URL: "https://go.dev", Title: "good", AddedAt: testMillis},
		},
	}}

	b, err := Normalize(req, uuid.New())
	require.NoError(t, err)
	require.Len(t, b.ProductiveURLs, 1)
	assert.Equal(t, "u2", b.ProductiveURLs[0].ExtID)
	assert.Equal(t, []string{"Invalid URL for productive url u1"}, b.Errors)
}

func TestNormalizeRejectsEmptyExternalIDs(t *testing.T) {
	req := &SyncRequest{Data: SyncData{
		VideoSessions:   []VideoSessionCreate{{ID: "ok", VideoID: "xyz123", Timestamp: testMillis}},
		BrowserSessions: []BrowserSessionCreate{{ID: "\x00\x1f", StartedAt: testMillis}},
		ProductiveURLs:  []ProductiveURLCreate{{ID: "\x7f", URL: "https://go.dev", AddedAt: testMillis}},
	}}

	_, err := Normalize(req, uuid.New())
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 2)
	assert.Equal(t, "data.browserSessions[0].id", verr.Errors[0].Field)
	assert.Equal(t, "data.productiveUrls[0].id", verr.Errors[1].Field)
	assert.Equal(t, ErrEmptyID.Error(), verr.Errors[1].Detail)
}

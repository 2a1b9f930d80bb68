package stats_test

import (
	"context"
	"testing"

	"github.com/coder/quartz"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/ingest"
	"github.com/Wuchinator/watchtime/internal/stats"
	"github.com/Wuchinator/watchtime/internal/user"
	"github.com/Wuchinator/watchtime/pkg/postgres/postgrestest"
)

func TestPostgresRepository(t *testing.T) {
	db := postgrestest.New(t)
	ctx := context.Background()

	users := user.NewRepository(db, zap.NewNop())
	u, err := users.GetOrCreate(ctx, "device-1", pqtype.NullRawMessage{})
	require.NoError(t, err)
	other, err := users.GetOrCreate(ctx, "device-2", pqtype.NullRawMessage{})
	require.NoError(t, err)
	heavy, err := users.GetOrCreate(ctx, "device-3", pqtype.NullRawMessage{})
	require.NoError(t, err)

	seed(t, ingest.NewStore(db, zap.NewNop()), u.ID, other.ID)

	clock := quartz.NewMock(t)
	clock.Set(now)
	repo := stats.NewRepository(db)
	svc := stats.NewService(repo, clock)

	t.Run("Overview", func(t *testing.T) {
		o, err := svc.Overview(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, o.Today)
		assert.Equal(t, "2024-01-15", o.Today.Date)
		assert.Equal(t, 3600, o.Today.TotalSeconds)
		require.Len(t, o.Last7Days, 2)
		assert.Equal(t, "2024-01-10", o.Last7Days[1].Date)
		assert.Equal(t, 5, o.TotalVideos)
	})

	t.Run("Weekly", func(t *testing.T) {
		w, err := svc.WeeklyComparison(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(90), w.ThisWeekMinutes)
		assert.Equal(t, int64(20), w.PrevWeekMinutes)
		assert.Equal(t, int64(5), w.ThisWeekVideos)
	})

	t.Run("Daily", func(t *testing.T) {
		d, err := svc.Daily(ctx, u.ID, date("2024-01-05"))
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, 1200, d.TotalSeconds)

		missing, err := svc.Daily(ctx, u.ID, date("2024-01-06"))
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("TopChannels", func(t *testing.T) {
		got, err := svc.TopChannels(ctx, u.ID, 7)
		require.NoError(t, err)
		require.Len(t, got.Channels, 2)
		assert.Equal(t, stats.ChannelStat{Channel: "Rust", VideoCount: 1, TotalMinutes: 10}, got.Channels[0])
		assert.Equal(t, stats.ChannelStat{Channel: "Go", VideoCount: 2, TotalMinutes: 3}, got.Channels[1])
	})

	t.Run("TopChannelsKeepsTenHeaviest", func(t *testing.T) {
		want := seedChannels(t, ingest.NewStore(db, zap.NewNop()), heavy.ID)

		got, err := svc.TopChannels(ctx, heavy.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, want, got.Channels)
	})

	t.Run("Interventions", func(t *testing.T) {
		got, err := svc.InterventionSummary(ctx, u.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, 2, got.TotalInterventions)
		assert.InDelta(t, 50.0, got.ByType["delay"].EffectivenessRate, 1e-9)
	})

	t.Run("Mood", func(t *testing.T) {
		got, err := svc.MoodTrend(ctx, u.ID, 30)
		require.NoError(t, err)
		require.Len(t, got.Trends, 1)
		require.NotNil(t, got.Trends[0].MoodDelta)
		assert.InDelta(t, 2.0, *got.Trends[0].MoodDelta, 1e-9)
	})

	t.Run("VideoSessions", func(t *testing.T) {
		got, err := repo.VideoSessions(ctx, u.ID, 2, 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Rust", *got[0].Channel)

		rest, err := repo.VideoSessions(ctx, u.ID, 10, 2)
		require.NoError(t, err)
		assert.Len(t, rest, 2)
	})
}

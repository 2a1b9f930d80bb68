package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/postgres"
)

const dailyStatsColumns = `
	user_id, date, total_seconds, active_seconds, background_seconds, session_count,
	avg_session_duration_seconds, first_check_time, video_count, videos_completed,
	videos_abandoned, shorts_count, unique_channels, search_count, recommendation_clicks,
	autoplay_count, autoplay_cancelled, total_scroll_pixels, avg_scroll_velocity,
	thumbnails_hovered, thumbnails_clicked, page_reloads, back_button_presses, tab_switches,
	productive_videos, unproductive_videos, neutral_videos, prompts_shown, prompts_answered,
	interventions_shown, interventions_effective, hourly_seconds, top_channels,
	pre_sleep_minutes, binge_sessions, updated_at`

const videoSessionColumns = `
	id, user_id, ext_session_id, browser_session_id, video_id, title, channel, channel_id,
	duration_seconds, watched_seconds, watched_percent, category, source, source_position,
	is_short, playback_speed, average_speed, seek_count, pause_count, tab_switch_count,
	productivity_rating, rated_at, intention, matched_intention, led_to_another_video,
	next_video_source, started_at, ended_at, "timestamp", synced_at`

type repository struct {
	db *postgres.DB
}

// NewRepository returns the Postgres Repository. It also serves the read
// endpoints under /sync.
func NewRepository(db *postgres.DB) Repository {
	return &repository{db: db}
}

func (r *repository) DailyStats(ctx context.Context, userID uuid.UUID, date time.Time) (*telemetry.DailyStats, error) {
	query := `SELECT` + dailyStatsColumns + `
		FROM daily_stats
		WHERE user_id = $1 AND date = $2::date
	`

	var d telemetry.DailyStats
	if err := r.db.GetContext(ctx, &d, query, userID, date.Format(time.DateOnly)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, telemetry.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	return &d, nil
}

func (r *repository) DailyStatsRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]telemetry.DailyStats, error) {
	query := `SELECT` + dailyStatsColumns + `
		FROM daily_stats
		WHERE user_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date DESC
	`

	days := []telemetry.DailyStats{}
	if err := r.db.SelectContext(ctx, &days, query, userID, from.Format(time.DateOnly), to.Format(time.DateOnly)); err != nil {
		return nil, fmt.Errorf("failed to list daily stats: %w", err)
	}
	return days, nil
}

func (r *repository) WindowTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) (Totals, error) {
	query := `
		SELECT COALESCE(SUM(total_seconds), 0) AS seconds,
		       COALESCE(SUM(video_count), 0) AS videos
		FROM daily_stats
		WHERE user_id = $1 AND date BETWEEN $2::date AND $3::date
	`

	var t Totals
	if err := r.db.GetContext(ctx, &t, query, userID, from.Format(time.DateOnly), to.Format(time.DateOnly)); err != nil {
		return Totals{}, fmt.Errorf("failed to sum daily stats: %w", err)
	}
	return t, nil
}

func (r *repository) TopChannels(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]ChannelRow, error) {
	query := `
		SELECT channel,
		       COUNT(id) AS video_count,
		       COALESCE(SUM(watched_seconds), 0) AS total_seconds
		FROM video_sessions
		WHERE user_id = $1 AND "timestamp" >= $2 AND channel IS NOT NULL
		GROUP BY channel
		ORDER BY total_seconds DESC, channel
		LIMIT $3
	`

	rows := []ChannelRow{}
	if err := r.db.SelectContext(ctx, &rows, query, userID, since, limit); err != nil {
		return nil, fmt.Errorf("failed to get top channels: %w", err)
	}
	return rows, nil
}

func (r *repository) InterventionEvents(ctx context.Context, userID uuid.UUID, since time.Time) ([]telemetry.InterventionEvent, error) {
	query := `
		SELECT id, user_id, session_id, intervention_type, triggered_at, trigger_reason,
		       response, response_at, response_time_ms, user_left_youtube, minutes_until_return
		FROM intervention_events
		WHERE user_id = $1 AND triggered_at >= $2
		ORDER BY triggered_at
	`

	events := []telemetry.InterventionEvent{}
	if err := r.db.SelectContext(ctx, &events, query, userID, since); err != nil {
		return nil, fmt.Errorf("failed to list intervention events: %w", err)
	}
	return events, nil
}

func (r *repository) MoodReports(ctx context.Context, userID uuid.UUID, since time.Time) ([]telemetry.MoodReport, error) {
	query := `
		SELECT id, user_id, session_id, "timestamp", report_type, mood, intention, satisfaction
		FROM mood_reports
		WHERE user_id = $1 AND "timestamp" >= $2
		ORDER BY "timestamp"
	`

	reports := []telemetry.MoodReport{}
	if err := r.db.SelectContext(ctx, &reports, query, userID, since); err != nil {
		return nil, fmt.Errorf("failed to list mood reports: %w", err)
	}
	return reports, nil
}

func (r *repository) VideoSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]telemetry.VideoSession, error) {
	query := `SELECT` + videoSessionColumns + `
		FROM video_sessions
		WHERE user_id = $1
		ORDER BY "timestamp" DESC
		LIMIT $2 OFFSET $3
	`

	sessions := []telemetry.VideoSession{}
	if err := r.db.SelectContext(ctx, &sessions, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list video sessions: %w", err)
	}
	return sessions, nil
}

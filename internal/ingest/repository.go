package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/postgres"
)

// Store is the Postgres implementation of telemetry.Store.
type Store struct {
	db     *postgres.DB
	logger *zap.Logger
}

func NewStore(db *postgres.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) InTx(ctx context.Context, fn func(tx telemetry.Tx) error) error {
	return s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&txRepository{tx: tx, logger: s.logger})
	})
}

type txRepository struct {
	tx     *sqlx.Tx
	logger *zap.Logger
}

var _ telemetry.Tx = (*txRepository)(nil)

func (r *txRepository) VideoSessionExists(ctx context.Context, userID uuid.UUID, extSessionID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM video_sessions WHERE user_id = $1 AND ext_session_id = $2)`,
		userID, extSessionID)
}

func (r *txRepository) BrowserSessionExists(ctx context.Context, userID uuid.UUID, extSessionID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM browser_sessions WHERE user_id = $1 AND ext_session_id = $2)`,
		userID, extSessionID)
}

func (r *txRepository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := r.tx.GetContext(ctx, &found, query, args...); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return found, nil
}

// A unique violation would abort the whole Postgres transaction, so lost
// races are absorbed with ON CONFLICT DO NOTHING instead of being caught.
const insertVideoSession = `
	INSERT INTO video_sessions (
		id, user_id, ext_session_id, browser_session_id, video_id, title, channel, channel_id,
		duration_seconds, watched_seconds, watched_percent, category, source, source_position,
		is_short, playback_speed, average_speed, seek_count, pause_count, tab_switch_count,
		productivity_rating, rated_at, intention, matched_intention, led_to_another_video,
		next_video_source, started_at, ended_at, "timestamp"
	) VALUES (
		:id, :user_id, :ext_session_id, :browser_session_id, :video_id, :title, :channel, :channel_id,
		:duration_seconds, :watched_seconds, :watched_percent, :category, :source, :source_position,
		:is_short, :playback_speed, :average_speed, :seek_count, :pause_count, :tab_switch_count,
		:productivity_rating, :rated_at, :intention, :matched_intention, :led_to_another_video,
		:next_video_source, :started_at, :ended_at, :timestamp
	)
	ON CONFLICT (user_id, ext_session_id) DO NOTHING
`

func (r *txRepository) InsertVideoSession(ctx context.Context, s *telemetry.VideoSession) (bool, error) {
	return r.insertOnce(ctx, insertVideoSession, s, "video session", s.ExtSessionID)
}

const insertBrowserSession = `
	INSERT INTO browser_sessions (
		id, user_id, ext_session_id, started_at, ended_at, entry_page_type, entry_url, entry_source,
		trigger_type, total_duration_seconds, active_duration_seconds, background_seconds,
		pages_visited, videos_watched, videos_started_not_finished, shorts_count, total_scroll_pixels,
		thumbnails_hovered, thumbnails_clicked, page_reloads, back_button_presses,
		recommendation_clicks, autoplay_count, autoplay_cancelled, search_count,
		time_on_home_seconds, time_on_watch_seconds, time_on_search_seconds, time_on_shorts_seconds,
		productive_videos, unproductive_videos, neutral_videos, exit_type, search_queries
	) VALUES (
		:id, :user_id, :ext_session_id, :started_at, :ended_at, :entry_page_type, :entry_url, :entry_source,
		:trigger_type, :total_duration_seconds, :active_duration_seconds, :background_seconds,
		:pages_visited, :videos_watched, :videos_started_not_finished, :shorts_count, :total_scroll_pixels,
		:thumbnails_hovered, :thumbnails_clicked, :page_reloads, :back_button_presses,
		:recommendation_clicks, :autoplay_count, :autoplay_cancelled, :search_count,
		:time_on_home_seconds, :time_on_watch_seconds, :time_on_search_seconds, :time_on_shorts_seconds,
		:productive_videos, :unproductive_videos, :neutral_videos, :exit_type, :search_queries
	)
	ON CONFLICT (user_id, ext_session_id) DO NOTHING
`

func (r *txRepository) InsertBrowserSession(ctx context.Context, s *telemetry.BrowserSession) (bool, error) {
	return r.insertOnce(ctx, insertBrowserSession, s, "browser session", s.ExtSessionID)
}

func (r *txRepository) insertOnce(ctx context.Context, query string, arg any, kind, extID string) (bool, error) {
	result, err := r.tx.NamedExecContext(ctx, query, arg)
	if err != nil {
		return false, fmt.Errorf("failed to insert %s: %w", kind, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		r.logger.Debug("duplicate ignored", zap.String("kind", kind), zap.String("ext_id", extID))
		return false, nil
	}
	return true, nil
}

const upsertDailyStats = `
	INSERT INTO daily_stats (
		user_id, date, total_seconds, active_seconds, background_seconds, session_count,
		avg_session_duration_seconds, first_check_time, video_count, videos_completed,
		videos_abandoned, shorts_count, unique_channels, search_count, recommendation_clicks,
		autoplay_count, autoplay_cancelled, total_scroll_pixels, avg_scroll_velocity,
		thumbnails_hovered, thumbnails_clicked, page_reloads, back_button_presses, tab_switches,
		productive_videos, unproductive_videos, neutral_videos, prompts_shown, prompts_answered,
		interventions_shown, interventions_effective, hourly_seconds, top_channels,
		pre_sleep_minutes, binge_sessions, updated_at
	) VALUES (
		:user_id, :date, :total_seconds, :active_seconds, :background_seconds, :session_count,
		:avg_session_duration_seconds, :first_check_time, :video_count, :videos_completed,
		:videos_abandoned, :shorts_count, :unique_channels, :search_count, :recommendation_clicks,
		:autoplay_count, :autoplay_cancelled, :total_scroll_pixels, :avg_scroll_velocity,
		:thumbnails_hovered, :thumbnails_clicked, :page_reloads, :back_button_presses, :tab_switches,
		:productive_videos, :unproductive_videos, :neutral_videos, :prompts_shown, :prompts_answered,
		:interventions_shown, :interventions_effective, :hourly_seconds, :top_channels,
		:pre_sleep_minutes, :binge_sessions, NOW()
	)
	ON CONFLICT (user_id, date) DO UPDATE SET
		total_seconds = EXCLUDED.total_seconds,
		active_seconds = EXCLUDED.active_seconds,
		background_seconds = EXCLUDED.background_seconds,
		session_count = EXCLUDED.session_count,
		avg_session_duration_seconds = EXCLUDED.avg_session_duration_seconds,
		first_check_time = EXCLUDED.first_check_time,
		video_count = EXCLUDED.video_count,
		videos_completed = EXCLUDED.videos_completed,
		videos_abandoned = EXCLUDED.videos_abandoned,
		shorts_count = EXCLUDED.shorts_count,
		unique_channels = EXCLUDED.unique_channels,
		search_count = EXCLUDED.search_count,
		recommendation_clicks = EXCLUDED.recommendation_clicks,
		autoplay_count = EXCLUDED.autoplay_count,
		autoplay_cancelled = EXCLUDED.autoplay_cancelled,
		total_scroll_pixels = EXCLUDED.total_scroll_pixels,
		avg_scroll_velocity = EXCLUDED.avg_scroll_velocity,
		thumbnails_hovered = EXCLUDED.thumbnails_hovered,
		thumbnails_clicked = EXCLUDED.thumbnails_clicked,
		page_reloads = EXCLUDED.page_reloads,
		back_button_presses = EXCLUDED.back_button_presses,
		tab_switches = EXCLUDED.tab_switches,
		productive_videos = EXCLUDED.productive_videos,
		unproductive_videos = EXCLUDED.unproductive_videos,
		neutral_videos = EXCLUDED.neutral_videos,
		prompts_shown = EXCLUDED.prompts_shown,
		prompts_answered = EXCLUDED.prompts_answered,
		interventions_shown = EXCLUDED.interventions_shown,
		interventions_effective = EXCLUDED.interventions_effective,
		hourly_seconds = EXCLUDED.hourly_seconds,
		top_channels = EXCLUDED.top_channels,
		pre_sleep_minutes = EXCLUDED.pre_sleep_minutes,
		binge_sessions = EXCLUDED.binge_sessions,
		updated_at = NOW()
`

func (r *txRepository) UpsertDailyStats(ctx context.Context, d *telemetry.DailyStats) error {
	if _, err := r.tx.NamedExecContext(ctx, upsertDailyStats, d); err != nil {
		return fmt.Errorf("failed to upsert daily stats: %w", err)
	}
	return nil
}

const insertScrollEvents = `
	INSERT INTO scroll_events (
		user_id, session_id, page_type, "timestamp", scroll_y, scroll_depth_percent,
		viewport_height, page_height, scroll_velocity, scroll_direction, visible_video_count
	) VALUES (
		:user_id, :session_id, :page_type, :timestamp, :scroll_y, :scroll_depth_percent,
		:viewport_height, :page_height, :scroll_velocity, :scroll_direction, :visible_video_count
	)`

func (r *txRepository) AppendScrollEvents(ctx context.Context, events []telemetry.ScrollEvent) error {
	return bulkInsert(ctx, r.tx, insertScrollEvents, events, "scroll events")
}

const insertThumbnailEvents = `
	INSERT INTO thumbnail_events (
		user_id, session_id, video_id, video_title, channel_name, page_type, position_index,
		"timestamp", hover_duration_ms, preview_played, preview_watch_ms, clicked,
		title_caps_percent, title_length
	) VALUES (
		:user_id, :session_id, :video_id, :video_title, :channel_name, :page_type, :position_index,
		:timestamp, :hover_duration_ms, :preview_played, :preview_watch_ms, :clicked,
		:title_caps_percent, :title_length
	)`

func (r *txRepository) AppendThumbnailEvents(ctx context.Context, events []telemetry.ThumbnailEvent) error {
	return bulkInsert(ctx, r.tx, insertThumbnailEvents, events, "thumbnail events")
}

const insertPageEvents = `
	INSERT INTO page_events (
		user_id, session_id, event_type, page_type, page_url, "timestamp", from_page_type,
		navigation_method, search_query, search_results_count, time_on_page_ms
	) VALUES (
		:user_id, :session_id, :event_type, :page_type, :page_url, :timestamp, :from_page_type,
		:navigation_method, :search_query, :search_results_count, :time_on_page_ms
	)`

func (r *txRepository) AppendPageEvents(ctx context.Context, events []telemetry.PageEvent) error {
	return bulkInsert(ctx, r.tx, insertPageEvents, events, "page events")
}

const insertVideoWatchEvents = `
	INSERT INTO video_watch_events (
		user_id, session_id, watch_session_id, video_id, event_type, "timestamp",
		video_time_seconds, seek_from_seconds, seek_to_seconds, seek_delta_seconds,
		playback_speed, watch_percent_at_abandon
	) VALUES (
		:user_id, :session_id, :watch_session_id, :video_id, :event_type, :timestamp,
		:video_time_seconds, :seek_from_seconds, :seek_to_seconds, :seek_delta_seconds,
		:playback_speed, :watch_percent_at_abandon
	)`

func (r *txRepository) AppendVideoWatchEvents(ctx context.Context, events []telemetry.VideoWatchEvent) error {
	return bulkInsert(ctx, r.tx, insertVideoWatchEvents, events, "video watch events")
}

const insertRecommendationEvents = `
	INSERT INTO recommendation_events (
		user_id, session_id, location, position_index, video_id, video_title, channel_name,
		action, hover_duration_ms, "timestamp", was_autoplay_next, autoplay_countdown_started,
		autoplay_cancelled
	) VALUES (
		:user_id, :session_id, :location, :position_index, :video_id, :video_title, :channel_name,
		:action, :hover_duration_ms, :timestamp, :was_autoplay_next, :autoplay_countdown_started,
		:autoplay_cancelled
	)`

func (r *txRepository) AppendRecommendationEvents(ctx context.Context, events []telemetry.RecommendationEvent) error {
	return bulkInsert(ctx, r.tx, insertRecommendationEvents, events, "recommendation events")
}

const insertInterventionEvents = `
	INSERT INTO intervention_events (
		user_id, session_id, intervention_type, triggered_at, trigger_reason, response,
		response_at, response_time_ms, user_left_youtube, minutes_until_return
	) VALUES (
		:user_id, :session_id, :intervention_type, :triggered_at, :trigger_reason, :response,
		:response_at, :response_time_ms, :user_left_youtube, :minutes_until_return
	)`

func (r *txRepository) AppendInterventionEvents(ctx context.Context, events []telemetry.InterventionEvent) error {
	return bulkInsert(ctx, r.tx, insertInterventionEvents, events, "intervention events")
}

const insertMoodReports = `
	INSERT INTO mood_reports (
		user_id, session_id, "timestamp", report_type, mood, intention, satisfaction
	) VALUES (
		:user_id, :session_id, :timestamp, :report_type, :mood, :intention, :satisfaction
	)`

func (r *txRepository) AppendMoodReports(ctx context.Context, reports []telemetry.MoodReport) error {
	return bulkInsert(ctx, r.tx, insertMoodReports, reports, "mood reports")
}

// bulkInsert expands query's VALUES clause once per row.
func bulkInsert[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T, kind string) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to insert %s: %w", kind, err)
	}
	return nil
}

func (r *txRepository) GetProductiveURL(ctx context.Context, userID uuid.UUID, extID string) (*telemetry.ProductiveURL, error) {
	query := `
		SELECT id, user_id, ext_id, url, title, added_at, times_suggested, times_clicked,
		       last_suggested_at, last_clicked_at, created_at, updated_at, deleted_at
		FROM productive_urls
		WHERE user_id = $1 AND ext_id = $2
		ORDER BY deleted_at NULLS FIRST, updated_at DESC
		LIMIT 1
	`

	var p telemetry.ProductiveURL
	if err := r.tx.GetContext(ctx, &p, query, userID, extID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, telemetry.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get productive url: %w", err)
	}
	return &p, nil
}

func (r *txRepository) RestoreProductiveURL(ctx context.Context, id uuid.UUID, url, title string) error {
	query := `
		UPDATE productive_urls
		SET url = $2, title = $3, deleted_at = NULL, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.tx.ExecContext(ctx, query, id, url, title)
	if err != nil {
		return fmt.Errorf("failed to restore productive url: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return telemetry.ErrNotFound
	}
	return nil
}

func (r *txRepository) CreateProductiveURL(ctx context.Context, p *telemetry.ProductiveURL) error {
	// A concurrent sync may have created the row after our lookup; the
	// conflict branch then applies the same restore.
	query := `
		INSERT INTO productive_urls (id, user_id, ext_id, url, title, added_at)
		VALUES (:id, :user_id, :ext_id, :url, :title, :added_at)
		ON CONFLICT (user_id, ext_id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			deleted_at = NULL,
			updated_at = NOW()
	`

	if _, err := r.tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("failed to create productive url: %w", err)
	}
	return nil
}

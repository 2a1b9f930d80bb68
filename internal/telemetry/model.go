package telemetry

import (
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// User is the identity anchor every other row hangs off.
type User struct {
	ID         uuid.UUID             `db:"id" json:"id"`
	DeviceID   string                `db:"device_id" json:"device_id"`
	CreatedAt  time.Time             `db:"created_at" json:"created_at"`
	Settings   pqtype.NullRawMessage `db:"settings" json:"settings"`
	LastSyncAt *time.Time            `db:"last_sync_at" json:"last_sync_at"`
}

// VideoSession is one watched video. Rows are never updated after insert.
type VideoSession struct {
	ID                 uuid.UUID  `db:"id"`
	UserID             uuid.UUID  `db:"user_id"`
	ExtSessionID       string     `db:"ext_session_id"`
	BrowserSessionID   *string    `db:"browser_session_id"`
	VideoID            string     `db:"video_id"`
	Title              *string    `db:"title"`
	Channel            *string    `db:"channel"`
	ChannelID          *string    `db:"channel_id"`
	DurationSeconds    int        `db:"duration_seconds"`
	WatchedSeconds     int        `db:"watched_seconds"`
	WatchedPercent     int        `db:"watched_percent"`
	Category           *string    `db:"category"`
	Source             *string    `db:"source"`
	SourcePosition     *int       `db:"source_position"`
	IsShort            bool       `db:"is_short"`
	PlaybackSpeed      float64    `db:"playback_speed"`
	AverageSpeed       *float64   `db:"average_speed"`
	SeekCount          int        `db:"seek_count"`
	PauseCount         int        `db:"pause_count"`
	TabSwitchCount     int        `db:"tab_switch_count"`
	ProductivityRating *int       `db:"productivity_rating"`
	RatedAt            *time.Time `db:"rated_at"`
	Intention          *string    `db:"intention"`
	MatchedIntention   *bool      `db:"matched_intention"`
	LedToAnotherVideo  *bool      `db:"led_to_another_video"`
	NextVideoSource    *string    `db:"next_video_source"`
	StartedAt          time.Time  `db:"started_at"`
	EndedAt            *time.Time `db:"ended_at"`
	Timestamp          time.Time  `db:"timestamp"`
	SyncedAt           time.Time  `db:"synced_at"`
}

// BrowserSession aggregates one visit. Same insert-once rule as VideoSession.
type BrowserSession struct {
	ID                       uuid.UUID             `db:"id"`
	UserID                   uuid.UUID             `db:"user_id"`
	ExtSessionID             string                `db:"ext_session_id"`
	StartedAt                time.Time             `db:"started_at"`
	EndedAt                  *time.Time            `db:"ended_at"`
	EntryPageType            *string               `db:"entry_page_type"`
	EntryURL                 *string               `db:"entry_url"`
	EntrySource              *string               `db:"entry_source"`
	TriggerType              *string               `db:"trigger_type"`
	TotalDurationSeconds     int                   `db:"total_duration_seconds"`
	ActiveDurationSeconds    int                   `db:"active_duration_seconds"`
	BackgroundSeconds        int                   `db:"background_seconds"`
	PagesVisited             int                   `db:"pages_visited"`
	VideosWatched            int                   `db:"videos_watched"`
	VideosStartedNotFinished int                   `db:"videos_started_not_finished"`
	ShortsCount              int                   `db:"shorts_count"`
	TotalScrollPixels        int                   `db:"total_scroll_pixels"`
	ThumbnailsHovered        int                   `db:"thumbnails_hovered"`
	ThumbnailsClicked        int                   `db:"thumbnails_clicked"`
	PageReloads              int                   `db:"page_reloads"`
	BackButtonPresses        int                   `db:"back_button_presses"`
	RecommendationClicks     int                   `db:"recommendation_clicks"`
	AutoplayCount            int                   `db:"autoplay_count"`
	AutoplayCancelled        int                   `db:"autoplay_cancelled"`
	SearchCount              int                   `db:"search_count"`
	TimeOnHomeSeconds        int                   `db:"time_on_home_seconds"`
	TimeOnWatchSeconds       int                   `db:"time_on_watch_seconds"`
	TimeOnSearchSeconds      int                   `db:"time_on_search_seconds"`
	TimeOnShortsSeconds      int                   `db:"time_on_shorts_seconds"`
	ProductiveVideos         int                   `db:"productive_videos"`
	UnproductiveVideos       int                   `db:"unproductive_videos"`
	NeutralVideos            int                   `db:"neutral_videos"`
	ExitType                 *string               `db:"exit_type"`
	SearchQueries            pqtype.NullRawMessage `db:"search_queries"`
	SyncedAt                 time.Time             `db:"synced_at"`
}

// DailyStats is the client-computed rollup for one (user, date). A resync
// overwrites every column.
type DailyStats struct {
	UserID                    uuid.UUID             `db:"user_id"`
	Date                      time.Time             `db:"date"`
	TotalSeconds              int                   `db:"total_seconds"`
	ActiveSeconds             int                   `db:"active_seconds"`
	BackgroundSeconds         int                   `db:"background_seconds"`
	SessionCount              int                   `db:"session_count"`
	AvgSessionDurationSeconds int                   `db:"avg_session_duration_seconds"`
	FirstCheckTime            *string               `db:"first_check_time"`
	VideoCount                int                   `db:"video_count"`
	VideosCompleted           int                   `db:"videos_completed"`
	VideosAbandoned           int                   `db:"videos_abandoned"`
	ShortsCount               int                   `db:"shorts_count"`
	UniqueChannels            int                   `db:"unique_channels"`
	SearchCount               int                   `db:"search_count"`
	RecommendationClicks      int                   `db:"recommendation_clicks"`
	AutoplayCount             int                   `db:"autoplay_count"`
	AutoplayCancelled         int                   `db:"autoplay_cancelled"`
	TotalScrollPixels         int                   `db:"total_scroll_pixels"`
	AvgScrollVelocity         float64               `db:"avg_scroll_velocity"`
	ThumbnailsHovered         int                   `db:"thumbnails_hovered"`
	ThumbnailsClicked         int                   `db:"thumbnails_clicked"`
	PageReloads               int                   `db:"page_reloads"`
	BackButtonPresses         int                   `db:"back_button_presses"`
	TabSwitches               int                   `db:"tab_switches"`
	ProductiveVideos          int                   `db:"productive_videos"`
	UnproductiveVideos        int                   `db:"unproductive_videos"`
	NeutralVideos             int                   `db:"neutral_videos"`
	PromptsShown              int                   `db:"prompts_shown"`
	PromptsAnswered           int                   `db:"prompts_answered"`
	InterventionsShown        int                   `db:"interventions_shown"`
	InterventionsEffective    int                   `db:"interventions_effective"`
	HourlySeconds             pqtype.NullRawMessage `db:"hourly_seconds"`
	TopChannels               pqtype.NullRawMessage `db:"top_channels"`
	PreSleepMinutes           int                   `db:"pre_sleep_minutes"`
	BingeSessions             int                   `db:"binge_sessions"`
	UpdatedAt                 time.Time             `db:"updated_at"`
}

type ScrollEvent struct {
	ID                 int64     `db:"id"`
	UserID             uuid.UUID `db:"user_id"`
	SessionID          string    `db:"session_id"`
	PageType           *string   `db:"page_type"`
	Timestamp          time.Time `db:"timestamp"`
	ScrollY            int       `db:"scroll_y"`
	ScrollDepthPercent int       `db:"scroll_depth_percent"`
	ViewportHeight     int       `db:"viewport_height"`
	PageHeight         int       `db:"page_height"`
	ScrollVelocity     float64   `db:"scroll_velocity"`
	ScrollDirection    string    `db:"scroll_direction"`
	VisibleVideoCount  int       `db:"visible_video_count"`
}

type ThumbnailEvent struct {
	ID               int64     `db:"id"`
	UserID           uuid.UUID `db:"user_id"`
	SessionID        string    `db:"session_id"`
	VideoID          string    `db:"video_id"`
	VideoTitle       *string   `db:"video_title"`
	ChannelName      *string   `db:"channel_name"`
	PageType         *string   `db:"page_type"`
	PositionIndex    int       `db:"position_index"`
	Timestamp        time.Time `db:"timestamp"`
	HoverDurationMs  int       `db:"hover_duration_ms"`
	PreviewPlayed    bool      `db:"preview_played"`
	PreviewWatchMs   int       `db:"preview_watch_ms"`
	Clicked          bool      `db:"clicked"`
	TitleCapsPercent int       `db:"title_caps_percent"`
	TitleLength      int       `db:"title_length"`
}

type PageEvent struct {
	ID                 int64     `db:"id"`
	UserID             uuid.UUID `db:"user_id"`
	SessionID          string    `db:"session_id"`
	EventType          string    `db:"event_type"`
	PageType           *string   `db:"page_type"`
	PageURL            *string   `db:"page_url"`
	Timestamp          time.Time `db:"timestamp"`
	FromPageType       *string   `db:"from_page_type"`
	NavigationMethod   *string   `db:"navigation_method"`
	SearchQuery        *string   `db:"search_query"`
	SearchResultsCount *int      `db:"search_results_count"`
	TimeOnPageMs       *int      `db:"time_on_page_ms"`
}

type VideoWatchEvent struct {
	ID                    int64     `db:"id"`
	UserID                uuid.UUID `db:"user_id"`
	SessionID             string    `db:"session_id"`
	WatchSessionID        string    `db:"watch_session_id"`
	VideoID               string    `db:"video_id"`
	EventType             string    `db:"event_type"`
	Timestamp             time.Time `db:"timestamp"`
	VideoTimeSeconds      float64   `db:"video_time_seconds"`
	SeekFromSeconds       *float64  `db:"seek_from_seconds"`
	SeekToSeconds         *float64  `db:"seek_to_seconds"`
	SeekDeltaSeconds      *float64  `db:"seek_delta_seconds"`
	PlaybackSpeed         *float64  `db:"playback_speed"`
	WatchPercentAtAbandon *int      `db:"watch_percent_at_abandon"`
}

type RecommendationEvent struct {
	ID                       int64     `db:"id"`
	UserID                   uuid.UUID `db:"user_id"`
	SessionID                string    `db:"session_id"`
	Location                 string    `db:"location"`
	PositionIndex            int       `db:"position_index"`
	VideoID                  string    `db:"video_id"`
	VideoTitle               *string   `db:"video_title"`
	ChannelName              *string   `db:"channel_name"`
	Action                   string    `db:"action"`
	HoverDurationMs          *int      `db:"hover_duration_ms"`
	Timestamp                time.Time `db:"timestamp"`
	WasAutoplayNext          bool      `db:"was_autoplay_next"`
	AutoplayCountdownStarted bool      `db:"autoplay_countdown_started"`
	AutoplayCancelled        bool      `db:"autoplay_cancelled"`
}

type InterventionEvent struct {
	ID                 int64      `db:"id"`
	UserID             uuid.UUID  `db:"user_id"`
	SessionID          string     `db:"session_id"`
	InterventionType   string     `db:"intervention_type"`
	TriggeredAt        time.Time  `db:"triggered_at"`
	TriggerReason      *string    `db:"trigger_reason"`
	Response           *string    `db:"response"`
	ResponseAt         *time.Time `db:"response_at"`
	ResponseTimeMs     *int       `db:"response_time_ms"`
	UserLeftYoutube    bool       `db:"user_left_youtube"`
	MinutesUntilReturn *int       `db:"minutes_until_return"`
}

// Mood report types that feed the trend.
const (
	ReportTypePre  = "pre"
	ReportTypePost = "post"
)

type MoodReport struct {
	ID           int64     `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	SessionID    string    `db:"session_id"`
	Timestamp    time.Time `db:"timestamp"`
	ReportType   string    `db:"report_type"`
	Mood         int       `db:"mood"`
	Intention    *string   `db:"intention"`
	Satisfaction *int      `db:"satisfaction"`
}

// ProductiveURL is a user bookmark. DeletedAt marks a soft delete.
type ProductiveURL struct {
	ID              uuid.UUID  `db:"id"`
	UserID          uuid.UUID  `db:"user_id"`
	ExtID           string     `db:"ext_id"`
	URL             string     `db:"url"`
	Title           string     `db:"title"`
	AddedAt         time.Time  `db:"added_at"`
	TimesSuggested  int        `db:"times_suggested"`
	TimesClicked    int        `db:"times_clicked"`
	LastSuggestedAt *time.Time `db:"last_suggested_at"`
	LastClickedAt   *time.Time `db:"last_clicked_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	DeletedAt       *time.Time `db:"deleted_at"`
}

// IsDeleted reports whether the bookmark is soft deleted.
func (p *ProductiveURL) IsDeleted() bool {
	return p.DeletedAt != nil
}

// SyncHistory is one audit row written after a committed sync.
type SyncHistory struct {
	ID           int64                 `db:"id"`
	UserID       uuid.UUID             `db:"user_id"`
	SyncedAt     time.Time             `db:"synced_at"`
	SyncedCounts pqtype.NullRawMessage `db:"synced_counts"`
	ErrorCount   int                   `db:"error_count"`
	RecordedAt   time.Time             `db:"recorded_at"`
}

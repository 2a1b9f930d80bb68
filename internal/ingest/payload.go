package ingest

import "encoding/json"

// SyncRequest is the body of POST /sync. Timestamps are epoch milliseconds.
type SyncRequest struct {
	UserID       string   `json:"userId"`
	LastSyncTime int64    `json:"lastSyncTime"`
	Data         SyncData `json:"data"`
}

type SyncData struct {
	VideoSessions        []VideoSessionCreate        `json:"videoSessions" validate:"dive"`
	BrowserSessions      []BrowserSessionCreate      `json:"browserSessions" validate:"dive"`
	DailyStats           map[string]DailyStatsCreate `json:"dailyStats" validate:"dive"`
	ScrollEvents         []ScrollEventCreate         `json:"scrollEvents" validate:"dive"`
	ThumbnailEvents      []ThumbnailEventCreate      `json:"thumbnailEvents" validate:"dive"`
	PageEvents           []PageEventCreate           `json:"pageEvents" validate:"dive"`
	VideoWatchEvents     []VideoWatchEventCreate     `json:"videoWatchEvents" validate:"dive"`
	RecommendationEvents []RecommendationEventCreate `json:"recommendationEvents" validate:"dive"`
	InterventionEvents   []InterventionEventCreate   `json:"interventionEvents" validate:"dive"`
	MoodReports          []MoodReportCreate          `json:"moodReports" validate:"dive"`
	ProductiveURLs       []ProductiveURLCreate       `json:"productiveUrls" validate:"dive"`
}

type VideoSessionCreate struct {
	ID                 string   `json:"id" validate:"required"`
	BrowserSessionID   *string  `json:"browserSessionId"`
	VideoID            string   `json:"videoId" validate:"required"`
	Title              *string  `json:"title"`
	Channel            *string  `json:"channel"`
	ChannelID          *string  `json:"channelId"`
	DurationSeconds    int      `json:"durationSeconds"`
	WatchedSeconds     int      `json:"watchedSeconds"`
	WatchedPercent     int      `json:"watchedPercent"`
	Source             *string  `json:"source"`
	SourcePosition     *int     `json:"sourcePosition"`
	IsShort            bool     `json:"isShort"`
	PlaybackSpeed      *float64 `json:"playbackSpeed"`
	AverageSpeed       *float64 `json:"averageSpeed"`
	Category           *string  `json:"category"`
	ProductivityRating *int     `json:"productivityRating"`
	Timestamp          int64    `json:"timestamp"`
	StartedAt          int64    `json:"startedAt"`
	EndedAt            *int64   `json:"endedAt"`
	RatedAt            *int64   `json:"ratedAt"`
	SeekCount          int      `json:"seekCount"`
	PauseCount         int      `json:"pauseCount"`
	TabSwitchCount     int      `json:"tabSwitchCount"`
	LedToAnotherVideo  *bool    `json:"ledToAnotherVideo"`
	NextVideoSource    *string  `json:"nextVideoSource"`
	Intention          *string  `json:"intention"`
	MatchedIntention   *bool    `json:"matchedIntention"`
}

type BrowserSessionCreate struct {
	ID                       string   `json:"id" validate:"required"`
	StartedAt                int64    `json:"startedAt"`
	EndedAt                  *int64   `json:"endedAt"`
	EntryPageType            *string  `json:"entryPageType"`
	EntryURL                 *string  `json:"entryUrl"`
	EntrySource              *string  `json:"entrySource"`
	TriggerType              *string  `json:"triggerType"`
	TotalDurationSeconds     int      `json:"totalDurationSeconds"`
	ActiveDurationSeconds    int      `json:"activeDurationSeconds"`
	BackgroundSeconds        int      `json:"backgroundSeconds"`
	PagesVisited             int      `json:"pagesVisited"`
	VideosWatched            int      `json:"videosWatched"`
	VideosStartedNotFinished int      `json:"videosStartedNotFinished"`
	ShortsCount              int      `json:"shortsCount"`
	TotalScrollPixels        int      `json:"totalScrollPixels"`
	ThumbnailsHovered        int      `json:"thumbnailsHovered"`
	ThumbnailsClicked        int      `json:"thumbnailsClicked"`
	PageReloads              int      `json:"pageReloads"`
	BackButtonPresses        int      `json:"backButtonPresses"`
	RecommendationClicks     int      `json:"recommendationClicks"`
	AutoplayCount            int      `json:"autoplayCount"`
	AutoplayCancelled        int      `json:"autoplayCancelled"`
	SearchCount              int      `json:"searchCount"`
	TimeOnHomeSeconds        int      `json:"timeOnHomeSeconds"`
	TimeOnWatchSeconds       int      `json:"timeOnWatchSeconds"`
	TimeOnSearchSeconds      int      `json:"timeOnSearchSeconds"`
	TimeOnShortsSeconds      int      `json:"timeOnShortsSeconds"`
	ProductiveVideos         int      `json:"productiveVideos"`
	UnproductiveVideos       int      `json:"unproductiveVideos"`
	NeutralVideos            int      `json:"neutralVideos"`
	ExitType                 *string  `json:"exitType"`
	SearchQueries            []string `json:"searchQueries"`
}

// DailyStatsCreate is keyed by its ISO date in SyncData.DailyStats. The
// embedded date field is informational.
type DailyStatsCreate struct {
	Date                      string          `json:"date"`
	TotalSeconds              int             `json:"totalSeconds"`
	ActiveSeconds             int             `json:"activeSeconds"`
	BackgroundSeconds         int             `json:"backgroundSeconds"`
	SessionCount              int             `json:"sessionCount"`
	AvgSessionDurationSeconds int             `json:"avgSessionDurationSeconds"`
	FirstCheckTime            *string         `json:"firstCheckTime"`
	VideoCount                int             `json:"videoCount"`
	VideosCompleted           int             `json:"videosCompleted"`
	VideosAbandoned           int             `json:"videosAbandoned"`
	ShortsCount               int             `json:"shortsCount"`
	UniqueChannels            int             `json:"uniqueChannels"`
	SearchCount               int             `json:"searchCount"`
	RecommendationClicks      int             `json:"recommendationClicks"`
	AutoplayCount             int             `json:"autoplayCount"`
	AutoplayCancelled         int             `json:"autoplayCancelled"`
	TotalScrollPixels         int             `json:"totalScrollPixels"`
	AvgScrollVelocity         float64         `json:"avgScrollVelocity"`
	ThumbnailsHovered         int             `json:"thumbnailsHovered"`
	ThumbnailsClicked         int             `json:"thumbnailsClicked"`
	PageReloads               int             `json:"pageReloads"`
	BackButtonPresses         int             `json:"backButtonPresses"`
	TabSwitches               int             `json:"tabSwitches"`
	ProductiveVideos          int             `json:"productiveVideos"`
	UnproductiveVideos        int             `json:"unproductiveVideos"`
	NeutralVideos             int             `json:"neutralVideos"`
	PromptsShown              int             `json:"promptsShown"`
	PromptsAnswered           int             `json:"promptsAnswered"`
	InterventionsShown        int             `json:"interventionsShown"`
	InterventionsEffective    int             `json:"interventionsEffective"`
	HourlySeconds             json.RawMessage `json:"hourlySeconds"`
	TopChannels               json.RawMessage `json:"topChannels"`
	PreSleepMinutes           int             `json:"preSleepMinutes"`
	BingeSessions             int             `json:"bingeSessions"`
}

type ScrollEventCreate struct {
	Type               string  `json:"type"`
	SessionID          string  `json:"sessionId" validate:"required"`
	PageType           *string `json:"pageType"`
	Timestamp          int64   `json:"timestamp"`
	ScrollY            int     `json:"scrollY"`
	ScrollDepthPercent int     `json:"scrollDepthPercent"`
	ViewportHeight     int     `json:"viewportHeight"`
	PageHeight         int     `json:"pageHeight"`
	ScrollVelocity     float64 `json:"scrollVelocity"`
	ScrollDirection    string  `json:"scrollDirection" validate:"required"`
	VisibleVideoCount  int     `json:"visibleVideoCount"`
}

type ThumbnailEventCreate struct {
	Type             string  `json:"type"`
	SessionID        string  `json:"sessionId" validate:"required"`
	VideoID          string  `json:"videoId" validate:"required"`
	VideoTitle       *string `json:"videoTitle"`
	ChannelName      *string `json:"channelName"`
	PageType         *string `json:"pageType"`
	PositionIndex    int     `json:"positionIndex"`
	Timestamp        int64   `json:"timestamp"`
	HoverDurationMs  int     `json:"hoverDurationMs"`
	PreviewPlayed    bool    `json:"previewPlayed"`
	PreviewWatchMs   int     `json:"previewWatchMs"`
	Clicked          bool    `json:"clicked"`
	TitleCapsPercent int     `json:"titleCapsPercent"`
	TitleLength      int     `json:"titleLength"`
}

type PageEventCreate struct {
	Type               string  `json:"type"`
	SessionID          string  `json:"sessionId" validate:"required"`
	EventType          string  `json:"eventType" validate:"required"`
	PageType           *string `json:"pageType"`
	PageURL            *string `json:"pageUrl"`
	Timestamp          int64   `json:"timestamp"`
	FromPageType       *string `json:"fromPageType"`
	NavigationMethod   *string `json:"navigationMethod"`
	SearchQuery        *string `json:"searchQuery"`
	SearchResultsCount *int    `json:"searchResultsCount"`
	TimeOnPageMs       *int    `json:"timeOnPageMs"`
}

type VideoWatchEventCreate struct {
	Type                  string   `json:"type"`
	SessionID             string   `json:"sessionId" validate:"required"`
	WatchSessionID        string   `json:"watchSessionId" validate:"required"`
	VideoID               string   `json:"videoId" validate:"required"`
	EventType             string   `json:"eventType" validate:"required"`
	Timestamp             int64    `json:"timestamp"`
	VideoTimeSeconds      float64  `json:"videoTimeSeconds"`
	SeekFromSeconds       *float64 `json:"seekFromSeconds"`
	SeekToSeconds         *float64 `json:"seekToSeconds"`
	SeekDeltaSeconds      *float64 `json:"seekDeltaSeconds"`
	PlaybackSpeed         *float64 `json:"playbackSpeed"`
	WatchPercentAtAbandon *int     `json:"watchPercentAtAbandon"`
}

type RecommendationEventCreate struct {
	Type                     string  `json:"type"`
	SessionID                string  `json:"sessionId" validate:"required"`
	Location                 string  `json:"location" validate:"required"`
	PositionIndex            int     `json:"positionIndex"`
	VideoID                  string  `json:"videoId" validate:"required"`
	VideoTitle               *string `json:"videoTitle"`
	ChannelName              *string `json:"channelName"`
	Action                   string  `json:"action" validate:"required"`
	HoverDurationMs          *int    `json:"hoverDurationMs"`
	Timestamp                int64   `json:"timestamp"`
	WasAutoplayNext          bool    `json:"wasAutoplayNext"`
	AutoplayCountdownStarted bool    `json:"autoplayCountdownStarted"`
	AutoplayCancelled        bool    `json:"autoplayCancelled"`
}

type InterventionEventCreate struct {
	Type               string  `json:"type"`
	SessionID          string  `json:"sessionId" validate:"required"`
	InterventionType   string  `json:"interventionType" validate:"required"`
	TriggeredAt        int64   `json:"triggeredAt"`
	TriggerReason      *string `json:"triggerReason"`
	Response           *string `json:"response"`
	ResponseAt         *int64  `json:"responseAt"`
	ResponseTimeMs     *int    `json:"responseTimeMs"`
	UserLeftYoutube    bool    `json:"userLeftYoutube"`
	MinutesUntilReturn *int    `json:"minutesUntilReturn"`
}

type MoodReportCreate struct {
	Timestamp    int64   `json:"timestamp"`
	SessionID    string  `json:"sessionId" validate:"required"`
	ReportType   string  `json:"reportType" validate:"required"`
	Mood         int     `json:"mood" validate:"min=1,max=5"`
	Intention    *string `json:"intention"`
	Satisfaction *int    `json:"satisfaction" validate:"omitempty,min=1,max=5"`
}

type ProductiveURLCreate struct {
	ID      string `json:"id" validate:"required"`
	URL     string `json:"url" validate:"required"`
	Title   string `json:"title" validate:"required"`
	AddedAt int64  `json:"addedAt"`
}

// SyncResponse is the body of a successful POST /sync.
type SyncResponse struct {
	Success      bool           `json:"success"`
	SyncedCounts map[string]int `json:"syncedCounts"`
	LastSyncTime int64          `json:"lastSyncTime"`
	Errors       []string       `json:"errors"`
}

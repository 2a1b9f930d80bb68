package stats

// Totals sums daily stats over a date window.
type Totals struct {
	Seconds int64 `db:"seconds"`
	Videos  int64 `db:"videos"`
}

// ChannelRow is one channel's video sessions over a window.
type ChannelRow struct {
	Channel      string `db:"channel"`
	VideoCount   int    `db:"video_count"`
	TotalSeconds int64  `db:"total_seconds"`
}

type DailySummary struct {
	Date                 string `json:"date"`
	TotalSeconds         int    `json:"total_seconds"`
	ActiveSeconds        int    `json:"active_seconds"`
	BackgroundSeconds    int    `json:"background_seconds"`
	VideoCount           int    `json:"video_count"`
	ShortsCount          int    `json:"shorts_count"`
	SessionCount         int    `json:"session_count"`
	SearchCount          int    `json:"search_count"`
	RecommendationClicks int    `json:"recommendation_clicks"`
	AutoplayCount        int    `json:"autoplay_count"`
	ProductiveVideos     int    `json:"productive_videos"`
	UnproductiveVideos   int    `json:"unproductive_videos"`
	NeutralVideos        int    `json:"neutral_videos"`
	PromptsShown         int    `json:"prompts_shown"`
	PromptsAnswered      int    `json:"prompts_answered"`
}

type Overview struct {
	Today           *DailySummary  `json:"today"`
	Last7Days       []DailySummary `json:"last7days"`
	TotalVideos     int            `json:"total_videos"`
	TotalHours      float64        `json:"total_hours"`
	AvgDailyMinutes float64        `json:"avg_daily_minutes"`
}

type WeeklyComparison struct {
	ThisWeekMinutes int64   `json:"this_week_minutes"`
	PrevWeekMinutes int64   `json:"prev_week_minutes"`
	ChangePercent   float64 `json:"change_percent"`
	ThisWeekVideos  int64   `json:"this_week_videos"`
	PrevWeekVideos  int64   `json:"prev_week_videos"`
}

type ChannelStat struct {
	Channel      string  `json:"channel"`
	VideoCount   int     `json:"videoCount"`
	TotalMinutes float64 `json:"totalMinutes"`
}

type TopChannels struct {
	Channels []ChannelStat `json:"channels"`
	Period   string        `json:"period"`
}

type InterventionStats struct {
	Total             int     `json:"total"`
	Responded         int     `json:"responded"`
	Effective         int     `json:"effective"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	ResponseRate      float64 `json:"response_rate"`
	EffectivenessRate float64 `json:"effectiveness_rate"`
}

type InterventionSummary struct {
	PeriodDays         int                          `json:"period_days"`
	TotalInterventions int                          `json:"total_interventions"`
	ByType             map[string]InterventionStats `json:"by_type"`
}

type MoodDay struct {
	Date             string   `json:"date"`
	AvgPreMood       *float64 `json:"avg_pre_mood"`
	AvgPostMood      *float64 `json:"avg_post_mood"`
	MoodDelta        *float64 `json:"mood_delta"`
	AvgSatisfaction  *float64 `json:"avg_satisfaction"`
	ReportCount      int      `json:"report_count"`
	CommonIntentions []string `json:"common_intentions"`
}

type MoodTrend struct {
	PeriodDays int       `json:"period_days"`
	Trends     []MoodDay `json:"trends"`
}

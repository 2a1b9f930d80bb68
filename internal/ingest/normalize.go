package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/httpapi"
)

// maxEpochMillis is 9999-12-31T23:59:59.999Z.
const maxEpochMillis int64 = 253402300799999

// Batch is a bounded, sanitized sync request ready for reconciliation.
type Batch struct {
	UserID               uuid.UUID
	VideoSessions        []*telemetry.VideoSession
	BrowserSessions      []*telemetry.BrowserSession
	DailyStats           []DailyStatsEntry
	ScrollEvents         []telemetry.ScrollEvent
	ThumbnailEvents      []telemetry.ThumbnailEvent
	PageEvents           []telemetry.PageEvent
	VideoWatchEvents     []telemetry.VideoWatchEvent
	RecommendationEvents []telemetry.RecommendationEvent
	InterventionEvents   []telemetry.InterventionEvent
	MoodReports          []telemetry.MoodReport
	ProductiveURLs       []*telemetry.ProductiveURL

	// Errors are per-item problems found while normalizing. They do not
	// reject the request.
	Errors []string
}

// DailyStatsEntry keeps the raw date key. The key is parsed during
// reconciliation so a bad key only drops that entry.
type DailyStatsEntry struct {
	DateKey string
	Stats   *telemetry.DailyStats
}

// Normalize converts a validated request into entity rows. Required
// timestamps outside (0, 9999-12-31] reject the request with a
// *ValidationError; optional ones out of range are dropped to nil.
func Normalize(req *SyncRequest, userID uuid.UUID) (*Batch, error) {
	n := &normalizer{userID: userID}
	d := &req.Data

	b := &Batch{UserID: userID}
	for i := range d.VideoSessions {
		b.VideoSessions = append(b.VideoSessions, n.videoSession(i, &d.VideoSessions[i]))
	}
	for i := range d.BrowserSessions {
		b.BrowserSessions = append(b.BrowserSessions, n.browserSession(i, &d.BrowserSessions[i]))
	}
	b.DailyStats = n.dailyStats(d.DailyStats)
	for i := range d.ScrollEvents {
		b.ScrollEvents = append(b.ScrollEvents, n.scrollEvent(i, &d.ScrollEvents[i]))
	}
	for i := range d.ThumbnailEvents {
		b.ThumbnailEvents = append(b.ThumbnailEvents, n.thumbnailEvent(i, &d.ThumbnailEvents[i]))
	}
	for i := range d.PageEvents {
		b.PageEvents = append(b.PageEvents, n.pageEvent(i, &d.PageEvents[i]))
	}
	for i := range d.VideoWatchEvents {
		b.VideoWatchEvents = append(b.VideoWatchEvents, n.videoWatchEvent(i, &d.VideoWatchEvents[i]))
	}
	for i := range d.RecommendationEvents {
		b.RecommendationEvents = append(b.RecommendationEvents, n.recommendationEvent(i, &d.RecommendationEvents[i]))
	}
	for i := range d.InterventionEvents {
		b.InterventionEvents = append(b.InterventionEvents, n.interventionEvent(i, &d.InterventionEvents[i]))
	}
	for i := range d.MoodReports {
		b.MoodReports = append(b.MoodReports, n.moodReport(i, &d.MoodReports[i]))
	}
	for i := range d.ProductiveURLs {
		p, ok := n.productiveURL(i, &d.ProductiveURLs[i])
		if !ok {
			b.Errors = append(b.Errors, fmt.Sprintf("Invalid URL for productive url %s", d.ProductiveURLs[i].ID))
			continue
		}
		b.ProductiveURLs = append(b.ProductiveURLs, p)
	}

	if len(n.errs) > 0 {
		return nil, &ValidationError{Errors: n.errs}
	}
	return b, nil
}

// MillisToTime converts epoch milliseconds to UTC.
func MillisToTime(ms int64) (time.Time, bool) {
	if ms <= 0 || ms > maxEpochMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

type normalizer struct {
	userID uuid.UUID
	errs   []httpapi.Error
}

func (n *normalizer) required(field string, ms int64) time.Time {
	t, ok := MillisToTime(ms)
	if !ok {
		n.errs = append(n.errs, httpapi.Error{
			Field:  field,
			Detail: fmt.Sprintf("%s: %d is out of range", ErrInvalidTimestamp, ms),
		})
	}
	return t
}

// extID sanitizes an external id. Ids that sanitize to nothing are rejected.
func (n *normalizer) extID(field, raw string) string {
	id := SanitizeString(raw, maxSessionID)
	if id == "" {
		n.errs = append(n.errs, httpapi.Error{Field: field, Detail: ErrEmptyID.Error()})
	}
	return id
}

func optional(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t, ok := MillisToTime(*ms)
	if !ok {
		return nil
	}
	return &t
}

func field(collection telemetry.EntityType, i int, name string) string {
	return fmt.Sprintf("data.%s[%d].%s", collection, i, name)
}

func rawJSON(raw json.RawMessage) pqtype.NullRawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}

func (n *normalizer) videoSession(i int, in *VideoSessionCreate) *telemetry.VideoSession {
	ts := n.required(field(telemetry.VideoSessions, i, "timestamp"), in.Timestamp)

	// Older clients omit startedAt; the session then starts at its timestamp.
	started := ts
	if in.StartedAt != 0 {
		started = n.required(field(telemetry.VideoSessions, i, "startedAt"), in.StartedAt)
	}

	speed := 1.0
	if in.PlaybackSpeed != nil {
		speed = *in.PlaybackSpeed
	}

	return &telemetry.VideoSession{
		ID:                 uuid.New(),
		UserID:             n.userID,
		ExtSessionID:       n.extID(field(telemetry.VideoSessions, i, "id"), in.ID),
		BrowserSessionID:   SanitizeOptional(in.BrowserSessionID, maxSessionID),
		VideoID:            SanitizeString(in.VideoID, maxVideoID),
		Title:              SanitizeOptional(in.Title, maxTitle),
		Channel:            SanitizeOptional(in.Channel, maxChannel),
		ChannelID:          SanitizeOptional(in.ChannelID, maxChannelID),
		DurationSeconds:    in.DurationSeconds,
		WatchedSeconds:     in.WatchedSeconds,
		WatchedPercent:     in.WatchedPercent,
		Category:           SanitizeOptional(in.Category, maxCategory),
		Source:             SanitizeOptional(in.Source, maxSource),
		SourcePosition:     in.SourcePosition,
		IsShort:            in.IsShort,
		PlaybackSpeed:      speed,
		AverageSpeed:       in.AverageSpeed,
		SeekCount:          in.SeekCount,
		PauseCount:         in.PauseCount,
		TabSwitchCount:     in.TabSwitchCount,
		ProductivityRating: in.ProductivityRating,
		RatedAt:            optional(in.RatedAt),
		Intention:          SanitizeOptional(in.Intention, maxText),
		MatchedIntention:   in.MatchedIntention,
		LedToAnotherVideo:  in.LedToAnotherVideo,
		NextVideoSource:    SanitizeOptional(in.NextVideoSource, maxSource),
		StartedAt:          started,
		EndedAt:            optional(in.EndedAt),
		Timestamp:          ts,
	}
}

func (n *normalizer) browserSession(i int, in *BrowserSessionCreate) *telemetry.BrowserSession {
	queries := make([]string, 0, len(in.SearchQueries))
	for _, q := range in.SearchQueries {
		queries = append(queries, SanitizeString(q, maxText))
	}
	// A []string always marshals.
	encoded, _ := json.Marshal(queries)

	return &telemetry.BrowserSession{
		ID:                       uuid.New(),
		UserID:                   n.userID,
		ExtSessionID:             n.extID(field(telemetry.BrowserSessions, i, "id"), in.ID),
		StartedAt:                n.required(field(telemetry.BrowserSessions, i, "startedAt"), in.StartedAt),
		EndedAt:                  optional(in.EndedAt),
		EntryPageType:            SanitizeOptional(in.EntryPageType, maxPageType),
		EntryURL:                 SanitizeURL(in.EntryURL),
		EntrySource:              SanitizeOptional(in.EntrySource, maxSource),
		TriggerType:              SanitizeOptional(in.TriggerType, maxSource),
		TotalDurationSeconds:     in.TotalDurationSeconds,
		ActiveDurationSeconds:    in.ActiveDurationSeconds,
		BackgroundSeconds:        in.BackgroundSeconds,
		PagesVisited:             in.PagesVisited,
		VideosWatched:            in.VideosWatched,
		VideosStartedNotFinished: in.VideosStartedNotFinished,
		ShortsCount:              in.ShortsCount,
		TotalScrollPixels:        in.TotalScrollPixels,
		ThumbnailsHovered:        in.ThumbnailsHovered,
		ThumbnailsClicked:        in.ThumbnailsClicked,
		PageReloads:              in.PageReloads,
		BackButtonPresses:        in.BackButtonPresses,
		RecommendationClicks:     in.RecommendationClicks,
		AutoplayCount:            in.AutoplayCount,
		AutoplayCancelled:        in.AutoplayCancelled,
		SearchCount:              in.SearchCount,
		TimeOnHomeSeconds:        in.TimeOnHomeSeconds,
		TimeOnWatchSeconds:       in.TimeOnWatchSeconds,
		TimeOnSearchSeconds:      in.TimeOnSearchSeconds,
		TimeOnShortsSeconds:      in.TimeOnShortsSeconds,
		ProductiveVideos:         in.ProductiveVideos,
		UnproductiveVideos:       in.UnproductiveVideos,
		NeutralVideos:            in.NeutralVideos,
		ExitType:                 SanitizeOptional(in.ExitType, maxExitType),
		SearchQueries:            pqtype.NullRawMessage{RawMessage: encoded, Valid: true},
	}
}

func (n *normalizer) dailyStats(in map[string]DailyStatsCreate) []DailyStatsEntry {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]DailyStatsEntry, 0, len(keys))
	for _, k := range keys {
		s := in[k]
		out = append(out, DailyStatsEntry{
			DateKey: k,
			Stats: &telemetry.DailyStats{
				UserID:                    n.userID,
				TotalSeconds:              s.TotalSeconds,
				ActiveSeconds:             s.ActiveSeconds,
				BackgroundSeconds:         s.BackgroundSeconds,
				SessionCount:              s.SessionCount,
				AvgSessionDurationSeconds: s.AvgSessionDurationSeconds,
				FirstCheckTime:            SanitizeOptional(s.FirstCheckTime, maxFirstCheckTime),
				VideoCount:                s.VideoCount,
				VideosCompleted:           s.VideosCompleted,
				VideosAbandoned:           s.VideosAbandoned,
				ShortsCount:               s.ShortsCount,
				UniqueChannels:            s.UniqueChannels,
				SearchCount:               s.SearchCount,
				RecommendationClicks:      s.RecommendationClicks,
				AutoplayCount:             s.AutoplayCount,
				AutoplayCancelled:         s.AutoplayCancelled,
				TotalScrollPixels:         s.TotalScrollPixels,
				AvgScrollVelocity:         s.AvgScrollVelocity,
				ThumbnailsHovered:         s.ThumbnailsHovered,
				ThumbnailsClicked:         s.ThumbnailsClicked,
				PageReloads:               s.PageReloads,
				BackButtonPresses:         s.BackButtonPresses,
				TabSwitches:               s.TabSwitches,
				ProductiveVideos:          s.ProductiveVideos,
				UnproductiveVideos:        s.UnproductiveVideos,
				NeutralVideos:             s.NeutralVideos,
				PromptsShown:              s.PromptsShown,
				PromptsAnswered:           s.PromptsAnswered,
				InterventionsShown:        s.InterventionsShown,
				InterventionsEffective:    s.InterventionsEffective,
				HourlySeconds:             rawJSON(s.HourlySeconds),
				TopChannels:               rawJSON(s.TopChannels),
				PreSleepMinutes:           s.PreSleepMinutes,
				BingeSessions:             s.BingeSessions,
			},
		})
	}
	return out
}

func (n *normalizer) scrollEvent(i int, in *ScrollEventCreate) telemetry.ScrollEvent {
	return telemetry.ScrollEvent{
		UserID:             n.userID,
		SessionID:          SanitizeString(in.SessionID, maxSessionID),
		PageType:           SanitizeOptional(in.PageType, maxPageType),
		Timestamp:          n.required(field(telemetry.ScrollEvents, i, "timestamp"), in.Timestamp),
		ScrollY:            in.ScrollY,
		ScrollDepthPercent: in.ScrollDepthPercent,
		ViewportHeight:     in.ViewportHeight,
		PageHeight:         in.PageHeight,
		ScrollVelocity:     in.ScrollVelocity,
		ScrollDirection:    SanitizeString(in.ScrollDirection, maxScrollDir),
		VisibleVideoCount:  in.VisibleVideoCount,
	}
}

func (n *normalizer) thumbnailEvent(i int, in *ThumbnailEventCreate) telemetry.ThumbnailEvent {
	return telemetry.ThumbnailEvent{
		UserID:           n.userID,
		SessionID:        SanitizeString(in.SessionID, maxSessionID),
		VideoID:          SanitizeString(in.VideoID, maxVideoID),
		VideoTitle:       SanitizeOptional(in.VideoTitle, maxTitle),
		ChannelName:      SanitizeOptional(in.ChannelName, maxChannel),
		PageType:         SanitizeOptional(in.PageType, maxPageType),
		PositionIndex:    in.PositionIndex,
		Timestamp:        n.required(field(telemetry.ThumbnailEvents, i, "timestamp"), in.Timestamp),
		HoverDurationMs:  in.HoverDurationMs,
		PreviewPlayed:    in.PreviewPlayed,
		PreviewWatchMs:   in.PreviewWatchMs,
		Clicked:          in.Clicked,
		TitleCapsPercent: in.TitleCapsPercent,
		TitleLength:      in.TitleLength,
	}
}

func (n *normalizer) pageEvent(i int, in *PageEventCreate) telemetry.PageEvent {
	return telemetry.PageEvent{
		UserID:             n.userID,
		SessionID:          SanitizeString(in.SessionID, maxSessionID),
		EventType:          SanitizeString(in.EventType, maxPageEventType),
		PageType:           SanitizeOptional(in.PageType, maxPageType),
		PageURL:            SanitizeURL(in.PageURL),
		Timestamp:          n.required(field(telemetry.PageEvents, i, "timestamp"), in.Timestamp),
		FromPageType:       SanitizeOptional(in.FromPageType, maxPageType),
		NavigationMethod:   SanitizeOptional(in.NavigationMethod, maxNavMethod),
		SearchQuery:        SanitizeOptional(in.SearchQuery, maxText),
		SearchResultsCount: in.SearchResultsCount,
		TimeOnPageMs:       in.TimeOnPageMs,
	}
}

func (n *normalizer) videoWatchEvent(i int, in *VideoWatchEventCreate) telemetry.VideoWatchEvent {
	return telemetry.VideoWatchEvent{
		UserID:                n.userID,
		SessionID:             SanitizeString(in.SessionID, maxSessionID),
		WatchSessionID:        SanitizeString(in.WatchSessionID, maxSessionID),
		VideoID:               SanitizeString(in.VideoID, maxVideoID),
		EventType:             SanitizeString(in.EventType, maxWatchEventType),
		Timestamp:             n.required(field(telemetry.VideoWatchEvents, i, "timestamp"), in.Timestamp),
		VideoTimeSeconds:      in.VideoTimeSeconds,
		SeekFromSeconds:       in.SeekFromSeconds,
		SeekToSeconds:         in.SeekToSeconds,
		SeekDeltaSeconds:      in.SeekDeltaSeconds,
		PlaybackSpeed:         in.PlaybackSpeed,
		WatchPercentAtAbandon: in.WatchPercentAtAbandon,
	}
}

func (n *normalizer) recommendationEvent(i int, in *RecommendationEventCreate) telemetry.RecommendationEvent {
	return telemetry.RecommendationEvent{
		UserID:                   n.userID,
		SessionID:                SanitizeString(in.SessionID, maxSessionID),
		Location:                 SanitizeString(in.Location, maxLocation),
		PositionIndex:            in.PositionIndex,
		VideoID:                  SanitizeString(in.VideoID, maxVideoID),
		VideoTitle:               SanitizeOptional(in.VideoTitle, maxTitle),
		ChannelName:              SanitizeOptional(in.ChannelName, maxChannel),
		Action:                   SanitizeString(in.Action, maxAction),
		HoverDurationMs:          in.HoverDurationMs,
		Timestamp:                n.required(field(telemetry.RecommendationEvents, i, "timestamp"), in.Timestamp),
		WasAutoplayNext:          in.WasAutoplayNext,
		AutoplayCountdownStarted: in.AutoplayCountdownStarted,
		AutoplayCancelled:        in.AutoplayCancelled,
	}
}

func (n *normalizer) interventionEvent(i int, in *InterventionEventCreate) telemetry.InterventionEvent {
	return telemetry.InterventionEvent{
		UserID:             n.userID,
		SessionID:          SanitizeString(in.SessionID, maxSessionID),
		InterventionType:   SanitizeString(in.InterventionType, maxInterventionTy),
		TriggeredAt:        n.required(field(telemetry.InterventionEvents, i, "triggeredAt"), in.TriggeredAt),
		TriggerReason:      SanitizeOptional(in.TriggerReason, maxText),
		Response:           SanitizeOptional(in.Response, maxResponse),
		ResponseAt:         optional(in.ResponseAt),
		ResponseTimeMs:     in.ResponseTimeMs,
		UserLeftYoutube:    in.UserLeftYoutube,
		MinutesUntilReturn: in.MinutesUntilReturn,
	}
}

func (n *normalizer) moodReport(i int, in *MoodReportCreate) telemetry.MoodReport {
	return telemetry.MoodReport{
		UserID:       n.userID,
		SessionID:    SanitizeString(in.SessionID, maxSessionID),
		Timestamp:    n.required(field(telemetry.MoodReports, i, "timestamp"), in.Timestamp),
		ReportType:   SanitizeString(in.ReportType, maxReportType),
		Mood:         in.Mood,
		Intention:    SanitizeOptional(in.Intention, maxText),
		Satisfaction: in.Satisfaction,
	}
}

// productiveURL reports false when the url has a scheme other than http or
// https. The bookmark is then skipped.
func (n *normalizer) productiveURL(i int, in *ProductiveURLCreate) (*telemetry.ProductiveURL, bool) {
	addedAt := n.required(field(telemetry.ProductiveURLs, i, "addedAt"), in.AddedAt)
	extID := n.extID(field(telemetry.ProductiveURLs, i, "id"), in.ID)

	url := SanitizeURL(&in.URL)
	if url == nil {
		return nil, false
	}

	return &telemetry.ProductiveURL{
		ID:      uuid.New(),
		UserID:  n.userID,
		ExtID:   extID,
		URL:     *url,
		Title:   SanitizeString(in.Title, maxBookmarkTitle),
		AddedAt: addedAt,
	}, true
}

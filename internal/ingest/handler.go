package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/auth"
	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/httpapi"
)

// SyncReader backs the read endpoints under /sync.
type SyncReader interface {
	VideoSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]telemetry.VideoSession, error)
	DailyStats(ctx context.Context, userID uuid.UUID, date time.Time) (*telemetry.DailyStats, error)
}

type Handler struct {
	service *Service
	reader  SyncReader
	logger  *zap.Logger
}

func NewHandler(service *Service, reader SyncReader, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		reader:  reader,
		logger:  logger,
	}
}

// Sync handles POST /sync.
func (h *Handler) Sync(rw http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpapi.WriteDetail(rw, http.StatusUnauthorized, "Not authenticated")
		return
	}

	maxBytes := h.service.Limits().MaxRequestBytes
	if r.ContentLength > maxBytes {
		httpapi.WriteDetail(rw, http.StatusRequestEntityTooLarge, "Request entity too large")
		return
	}
	r.Body = http.MaxBytesReader(rw, r.Body, maxBytes)

	var req SyncRequest
	if !httpapi.Decode(rw, r, &req) {
		return
	}

	result, err := h.service.Sync(r.Context(), id.UserID, &req)
	if err != nil {
		var limitErr *LimitError
		var validationErr *ValidationError
		switch {
		case errors.As(err, &limitErr):
			httpapi.WriteDetail(rw, http.StatusRequestEntityTooLarge, limitErr.Error())
		case errors.As(err, &validationErr):
			httpapi.WriteValidation(rw, validationErr.Errors)
		default:
			httpapi.WriteDetail(rw, http.StatusInternalServerError, "Sync failed")
		}
		return
	}

	httpapi.Write(rw, http.StatusOK, result.Response())
}

type videoItem struct {
	ID                 string  `json:"id"`
	DBID               string  `json:"dbId"`
	VideoID            string  `json:"videoId"`
	Title              *string `json:"title"`
	Channel            *string `json:"channel"`
	ChannelID          *string `json:"channelId"`
	DurationSeconds    int     `json:"durationSeconds"`
	WatchedSeconds     int     `json:"watchedSeconds"`
	WatchedPercent     int     `json:"watchedPercent"`
	Category           *string `json:"category"`
	Source             *string `json:"source"`
	IsShort            bool    `json:"isShort"`
	PlaybackSpeed      float64 `json:"playbackSpeed"`
	SeekCount          int     `json:"seekCount"`
	PauseCount         int     `json:"pauseCount"`
	ProductivityRating *int    `json:"productivityRating"`
	Timestamp          int64   `json:"timestamp"`
}

type videoList struct {
	Videos []videoItem `json:"videos"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ListVideos handles GET /sync/videos.
func (h *Handler) ListVideos(rw http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpapi.WriteDetail(rw, http.StatusUnauthorized, "Not authenticated")
		return
	}

	p := httpapi.NewQueryParamParser()
	vals := r.URL.Query()
	limit := p.IntRange(vals, 100, 1, 1000, "limit")
	offset := p.IntRange(vals, 0, 0, 1<<31-1, "offset")
	if len(p.Errors) > 0 {
		httpapi.WriteValidation(rw, p.Errors)
		return
	}

	sessions, err := h.reader.VideoSessions(r.Context(), id.UserID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list video sessions", zap.Error(err))
		httpapi.WriteDetail(rw, http.StatusInternalServerError, "Failed to list videos")
		return
	}

	items := make([]videoItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, videoItem{
			ID:                 s.ExtSessionID,
			DBID:               s.ID.String(),
			VideoID:            s.VideoID,
			Title:              s.Title,
			Channel:            s.Channel,
			ChannelID:          s.ChannelID,
			DurationSeconds:    s.DurationSeconds,
			WatchedSeconds:     s.WatchedSeconds,
			WatchedPercent:     s.WatchedPercent,
			Category:           s.Category,
			Source:             s.Source,
			IsShort:            s.IsShort,
			PlaybackSpeed:      s.PlaybackSpeed,
			SeekCount:          s.SeekCount,
			PauseCount:         s.PauseCount,
			ProductivityRating: s.ProductivityRating,
			Timestamp:          s.Timestamp.UnixMilli(),
		})
	}

	httpapi.Write(rw, http.StatusOK, videoList{
		Videos: items,
		Total:  len(items),
		Limit:  limit,
		Offset: offset,
	})
}

type dailyStatsView struct {
	Date               string          `json:"date"`
	Found              bool            `json:"found"`
	TotalSeconds       int             `json:"totalSeconds"`
	ActiveSeconds      int             `json:"activeSeconds"`
	SessionCount       int             `json:"sessionCount"`
	VideoCount         int             `json:"videoCount"`
	ShortsCount        int             `json:"shortsCount"`
	ProductiveVideos   int             `json:"productiveVideos"`
	UnproductiveVideos int             `json:"unproductiveVideos"`
	HourlySeconds      json.RawMessage `json:"hourlySeconds"`
	TopChannels        json.RawMessage `json:"topChannels"`
}

type dailyStatsMissing struct {
	Date  string `json:"date"`
	Found bool   `json:"found"`
}

// DailyStats handles GET /sync/stats/{date}.
func (h *Handler) DailyStats(rw http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpapi.WriteDetail(rw, http.StatusUnauthorized, "Not authenticated")
		return
	}

	dateStr := chi.URLParam(r, "date")
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		httpapi.WriteDetail(rw, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	}

	stats, err := h.reader.DailyStats(r.Context(), id.UserID, date)
	if errors.Is(err, telemetry.ErrNotFound) {
		httpapi.Write(rw, http.StatusOK, dailyStatsMissing{Date: dateStr})
		return
	}
	if err != nil {
		h.logger.Error("failed to get daily stats", zap.Error(err))
		httpapi.WriteDetail(rw, http.StatusInternalServerError, "Failed to get daily stats")
		return
	}

	httpapi.Write(rw, http.StatusOK, dailyStatsView{
		Date:               dateStr,
		Found:              true,
		TotalSeconds:       stats.TotalSeconds,
		ActiveSeconds:      stats.ActiveSeconds,
		SessionCount:       stats.SessionCount,
		VideoCount:         stats.VideoCount,
		ShortsCount:        stats.ShortsCount,
		ProductiveVideos:   stats.ProductiveVideos,
		UnproductiveVideos: stats.UnproductiveVideos,
		HourlySeconds:      rawOrNil(stats.HourlySeconds.RawMessage, stats.HourlySeconds.Valid),
		TopChannels:        rawOrNil(stats.TopChannels.RawMessage, stats.TopChannels.Valid),
	})
}

func rawOrNil(raw json.RawMessage, valid bool) json.RawMessage {
	if !valid {
		return nil
	}
	return raw
}

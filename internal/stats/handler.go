package stats

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/auth"
	"github.com/Wuchinator/watchtime/pkg/httpapi"
	"github.com/Wuchinator/watchtime/pkg/logger"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the handlers under /stats.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/overview", h.Overview)
	r.Get("/weekly", h.Weekly)
	r.Get("/daily/{date}", h.Daily)
	r.Get("/channels", h.Channels)
	r.Get("/interventions", h.Interventions)
	r.Get("/mood", h.Mood)
}

// serve runs fn for the authenticated user and writes its result.
func serve[T any](h *Handler, rw http.ResponseWriter, r *http.Request, what string, fn func(ctx context.Context, userID uuid.UUID) (T, error)) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpapi.WriteDetail(rw, http.StatusUnauthorized, "Not authenticated")
		return
	}
	out, err := fn(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to compute "+what, logger.UserID(id.UserID), zap.Error(err))
		httpapi.WriteDetail(rw, http.StatusInternalServerError, "Failed to compute "+what)
		return
	}
	httpapi.Write(rw, http.StatusOK, out)
}

// days parses ?days= within [minimum, maximum]. It writes the 422 itself.
func days(rw http.ResponseWriter, r *http.Request, def, minimum, maximum int) (int, bool) {
	p := httpapi.NewQueryParamParser()
	n := p.IntRange(r.URL.Query(), def, minimum, maximum, "days")
	if len(p.Errors) > 0 {
		httpapi.WriteValidation(rw, p.Errors)
		return 0, false
	}
	return n, true
}

// Overview handles GET /stats/overview.
func (h *Handler) Overview(rw http.ResponseWriter, r *http.Request) {
	serve(h, rw, r, "overview", h.service.Overview)
}

// Weekly handles GET /stats/weekly.
func (h *Handler) Weekly(rw http.ResponseWriter, r *http.Request) {
	serve(h, rw, r, "weekly comparison", h.service.WeeklyComparison)
}

type dailyResponse struct {
	Date string        `json:"date"`
	Data *DailySummary `json:"data"`
}

// Daily handles GET /stats/daily/{date}.
func (h *Handler) Daily(rw http.ResponseWriter, r *http.Request) {
	dateStr := chi.URLParam(r, "date")
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		httpapi.WriteDetail(rw, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	}
	serve(h, rw, r, "daily stats", func(ctx context.Context, userID uuid.UUID) (dailyResponse, error) {
		d, err := h.service.Daily(ctx, userID, date)
		return dailyResponse{Date: dateStr, Data: d}, err
	})
}

// Channels handles GET /stats/channels?days=N.
func (h *Handler) Channels(rw http.ResponseWriter, r *http.Request) {
	n, ok := days(rw, r, 7, 1, 90)
	if !ok {
		return
	}
	serve(h, rw, r, "top channels", func(ctx context.Context, userID uuid.UUID) (TopChannels, error) {
		return h.service.TopChannels(ctx, userID, n)
	})
}

// Interventions handles GET /stats/interventions?days=N.
func (h *Handler) Interventions(rw http.ResponseWriter, r *http.Request) {
	n, ok := days(rw, r, 7, 1, 90)
	if !ok {
		return
	}
	serve(h, rw, r, "intervention summary", func(ctx context.Context, userID uuid.UUID) (InterventionSummary, error) {
		return h.service.InterventionSummary(ctx, userID, n)
	})
}

// Mood handles GET /stats/mood?days=N.
func (h *Handler) Mood(rw http.ResponseWriter, r *http.Request) {
	n, ok := days(rw, r, 30, 7, 90)
	if !ok {
		return
	}
	serve(h, rw, r, "mood trend", func(ctx context.Context, userID uuid.UUID) (MoodTrend, error) {
		return h.service.MoodTrend(ctx, userID, n)
	})
}

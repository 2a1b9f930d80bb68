package ingest

import (
	"fmt"
	"strings"

	"github.com/Wuchinator/watchtime/internal/config"
	"github.com/Wuchinator/watchtime/internal/telemetry"
	"github.com/Wuchinator/watchtime/pkg/httpapi"
)

// Limits caps the number of items per collection in one sync request.
type Limits struct {
	MaxRequestBytes    int64
	MaxVideoSessions   int
	MaxBrowserSessions int
	MaxDailyStats      int
	MaxEvents          int
	MaxProductiveURLs  int
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxRequestBytes:    5 * 1024 * 1024,
		MaxVideoSessions:   200,
		MaxBrowserSessions: 100,
		MaxDailyStats:      100,
		MaxEvents:          1000,
		MaxProductiveURLs:  100,
	}
}

func LimitsFromConfig(cfg config.LimitsConfig) Limits {
	return Limits{
		MaxRequestBytes:    cfg.MaxRequestBytes(),
		MaxVideoSessions:   cfg.MaxVideoSessionsPerSync,
		MaxBrowserSessions: cfg.MaxBrowserSessionsPerSync,
		MaxDailyStats:      cfg.MaxDailyStatsPerSync,
		MaxEvents:          cfg.MaxEventsPerSync,
		MaxProductiveURLs:  cfg.MaxProductiveURLsPerSync,
	}
}

// LimitViolation is one collection over its cap.
type LimitViolation struct {
	Entity telemetry.EntityType
	Count  int
	Limit  int
}

func (v LimitViolation) String() string {
	return fmt.Sprintf("%s: %d exceeds limit of %d", v.Entity, v.Count, v.Limit)
}

// LimitError lists every collection over its cap.
type LimitError struct {
	Violations []LimitViolation
}

func (e *LimitError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "Payload too large: " + strings.Join(parts, ", ")
}

// ValidationError carries field level failures of a sync request.
type ValidationError struct {
	Errors []httpapi.Error
}

func (e *ValidationError) Error() string {
	fields := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		fields[i] = fe.Field
	}
	return "invalid sync request: " + strings.Join(fields, ", ")
}

// CheckLimits verifies every collection size. It reports all offenders at
// once, in reconciliation order.
func CheckLimits(data *SyncData, limits Limits) error {
	sizes := collectionSizes(data)

	var violations []LimitViolation
	for _, entity := range telemetry.EntityTypes() {
		limit := limits.forEntity(entity)
		if n := sizes[entity]; n > limit {
			violations = append(violations, LimitViolation{Entity: entity, Count: n, Limit: limit})
		}
	}
	if len(violations) > 0 {
		return &LimitError{Violations: violations}
	}
	return nil
}

// Validate checks collection limits first and then field constraints.
func Validate(req *SyncRequest, limits Limits) error {
	if err := CheckLimits(&req.Data, limits); err != nil {
		return err
	}
	if apiErrors := httpapi.Validate(req); len(apiErrors) > 0 {
		return &ValidationError{Errors: apiErrors}
	}
	return nil
}

func (l Limits) forEntity(e telemetry.EntityType) int {
	switch e {
	case telemetry.VideoSessions:
		return l.MaxVideoSessions
	case telemetry.BrowserSessions:
		return l.MaxBrowserSessions
	case telemetry.DailyStatsEntries:
		return l.MaxDailyStats
	case telemetry.ProductiveURLs:
		return l.MaxProductiveURLs
	default:
		return l.MaxEvents
	}
}

func collectionSizes(d *SyncData) map[telemetry.EntityType]int {
	return map[telemetry.EntityType]int{
		telemetry.VideoSessions:        len(d.VideoSessions),
		telemetry.BrowserSessions:      len(d.BrowserSessions),
		telemetry.DailyStatsEntries:    len(d.DailyStats),
		telemetry.ScrollEvents:         len(d.ScrollEvents),
		telemetry.ThumbnailEvents:      len(d.ThumbnailEvents),
		telemetry.PageEvents:           len(d.PageEvents),
		telemetry.VideoWatchEvents:     len(d.VideoWatchEvents),
		telemetry.RecommendationEvents: len(d.RecommendationEvents),
		telemetry.InterventionEvents:   len(d.InterventionEvents),
		telemetry.MoodReports:          len(d.MoodReports),
		telemetry.ProductiveURLs:       len(d.ProductiveURLs),
	}
}

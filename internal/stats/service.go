package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/Wuchinator/watchtime/internal/telemetry"
)

const topChannelsLimit = 10

// Repository reads the rows stats are computed from. Date bounds are
// inclusive calendar dates.
type Repository interface {
	DailyStats(ctx context.Context, userID uuid.UUID, date time.Time) (*telemetry.DailyStats, error)
	// DailyStatsRange returns rows newest first.
	DailyStatsRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]telemetry.DailyStats, error)
	WindowTotals(ctx context.Context, userID uuid.UUID, from, to time.Time) (Totals, error)
	// TopChannels orders by summed watched seconds, descending.
	TopChannels(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]ChannelRow, error)
	InterventionEvents(ctx context.Context, userID uuid.UUID, since time.Time) ([]telemetry.InterventionEvent, error)
	// MoodReports returns reports oldest first.
	MoodReports(ctx context.Context, userID uuid.UUID, since time.Time) ([]telemetry.MoodReport, error)
	VideoSessions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]telemetry.VideoSession, error)
}

type Service struct {
	repo  Repository
	clock quartz.Clock
}

func NewService(repo Repository, clock quartz.Clock) *Service {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Service{repo: repo, clock: clock}
}

// today is the current UTC calendar date at midnight.
func (s *Service) today() time.Time {
	return s.clock.Now().UTC().Truncate(24 * time.Hour)
}

func daysAgo(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, -n)
}

// Overview returns today's row and the rows of the last 7 days.
func (s *Service) Overview(ctx context.Context, userID uuid.UUID) (Overview, error) {
	today := s.today()

	todayStats, err := s.repo.DailyStats(ctx, userID, today)
	if err != nil && !errors.Is(err, telemetry.ErrNotFound) {
		return Overview{}, fmt.Errorf("failed to get today's stats: %w", err)
	}

	days, err := s.repo.DailyStatsRange(ctx, userID, daysAgo(today, 7), today)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to get last 7 days: %w", err)
	}
	return buildOverview(todayStats, days), nil
}

// WeeklyComparison compares the 7 days ending today with the 7 before.
func (s *Service) WeeklyComparison(ctx context.Context, userID uuid.UUID) (WeeklyComparison, error) {
	today := s.today()

	cur, err := s.repo.WindowTotals(ctx, userID, daysAgo(today, 6), today)
	if err != nil {
		return WeeklyComparison{}, fmt.Errorf("failed to sum this week: %w", err)
	}
	prev, err := s.repo.WindowTotals(ctx, userID, daysAgo(today, 13), daysAgo(today, 7))
	if err != nil {
		return WeeklyComparison{}, fmt.Errorf("failed to sum previous week: %w", err)
	}
	return buildWeekly(cur, prev), nil
}

// Daily returns nil without error when the date has no row.
func (s *Service) Daily(ctx context.Context, userID uuid.UUID, date time.Time) (*DailySummary, error) {
	d, err := s.repo.DailyStats(ctx, userID, date)
	if errors.Is(err, telemetry.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	summary := summarize(d)
	return &summary, nil
}

func (s *Service) TopChannels(ctx context.Context, userID uuid.UUID, days int) (TopChannels, error) {
	rows, err := s.repo.TopChannels(ctx, userID, daysAgo(s.today(), days), topChannelsLimit)
	if err != nil {
		return TopChannels{}, fmt.Errorf("failed to get top channels: %w", err)
	}
	return buildTopChannels(rows, days), nil
}

func (s *Service) InterventionSummary(ctx context.Context, userID uuid.UUID, days int) (InterventionSummary, error) {
	since := s.clock.Now().UTC().AddDate(0, 0, -days)
	events, err := s.repo.InterventionEvents(ctx, userID, since)
	if err != nil {
		return InterventionSummary{}, fmt.Errorf("failed to get intervention events: %w", err)
	}
	return InterventionSummary{
		PeriodDays:         days,
		TotalInterventions: len(events),
		ByType:             SummarizeInterventions(events),
	}, nil
}

func (s *Service) MoodTrend(ctx context.Context, userID uuid.UUID, days int) (MoodTrend, error) {
	since := s.clock.Now().UTC().AddDate(0, 0, -days)
	reports, err := s.repo.MoodReports(ctx, userID, since)
	if err != nil {
		return MoodTrend{}, fmt.Errorf("failed to get mood reports: %w", err)
	}
	return MoodTrend{PeriodDays: days, Trends: BuildMoodTrend(reports)}, nil
}

package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Wuchinator/watchtime/internal/telemetry"
)

const maxIntentions = 5

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ChangePercent is (cur-prev)/prev*100 rounded to one decimal. It is 0 when
// prev is 0.
func ChangePercent(cur, prev int64) float64 {
	if prev == 0 {
		return 0
	}
	return round(float64(cur-prev)/float64(prev)*100, 1)
}

func summarize(d *telemetry.DailyStats) DailySummary {
	return DailySummary{
		Date:                 d.Date.Format(time.DateOnly),
		TotalSeconds:         d.TotalSeconds,
		ActiveSeconds:        d.ActiveSeconds,
		BackgroundSeconds:    d.BackgroundSeconds,
		VideoCount:           d.VideoCount,
		ShortsCount:          d.ShortsCount,
		SessionCount:         d.SessionCount,
		SearchCount:          d.SearchCount,
		RecommendationClicks: d.RecommendationClicks,
		AutoplayCount:        d.AutoplayCount,
		ProductiveVideos:     d.ProductiveVideos,
		UnproductiveVideos:   d.UnproductiveVideos,
		NeutralVideos:        d.NeutralVideos,
		PromptsShown:         d.PromptsShown,
		PromptsAnswered:      d.PromptsAnswered,
	}
}

// buildOverview totals days, which must be ordered newest first.
func buildOverview(today *telemetry.DailyStats, days []telemetry.DailyStats) Overview {
	o := Overview{Last7Days: make([]DailySummary, 0, len(days))}
	if today != nil {
		s := summarize(today)
		o.Today = &s
	}

	var seconds int
	for i := range days {
		o.Last7Days = append(o.Last7Days, summarize(&days[i]))
		o.TotalVideos += days[i].VideoCount
		seconds += days[i].TotalSeconds
	}
	o.TotalHours = round(float64(seconds)/3600, 1)
	o.AvgDailyMinutes = round(float64(seconds)/60/float64(max(len(days), 1)), 1)
	return o
}

func buildWeekly(cur, prev Totals) WeeklyComparison {
	return WeeklyComparison{
		ThisWeekMinutes: cur.Seconds / 60,
		PrevWeekMinutes: prev.Seconds / 60,
		ChangePercent:   ChangePercent(cur.Seconds, prev.Seconds),
		ThisWeekVideos:  cur.Videos,
		PrevWeekVideos:  prev.Videos,
	}
}

func buildTopChannels(rows []ChannelRow, days int) TopChannels {
	out := TopChannels{
		Channels: make([]ChannelStat, 0, len(rows)),
		Period:   fmt.Sprintf("last_%d_days", days),
	}
	for _, r := range rows {
		out.Channels = append(out.Channels, ChannelStat{
			Channel:      r.Channel,
			VideoCount:   r.VideoCount,
			TotalMinutes: round(float64(r.TotalSeconds)/60, 1),
		})
	}
	return out
}

// SummarizeInterventions groups events by intervention type. Effectiveness
// is the share of responded prompts after which the user left YouTube.
func SummarizeInterventions(events []telemetry.InterventionEvent) map[string]InterventionStats {
	type acc struct {
		stats     InterventionStats
		respTotal int
		respCount int
	}
	byType := make(map[string]*acc)
	for _, e := range events {
		a, ok := byType[e.InterventionType]
		if !ok {
			a = &acc{}
			byType[e.InterventionType] = a
		}
		a.stats.Total++
		if e.Response != nil && *e.Response != "" {
			a.stats.Responded++
			if e.ResponseTimeMs != nil && *e.ResponseTimeMs > 0 {
				a.respTotal += *e.ResponseTimeMs
				a.respCount++
			}
		}
		if e.UserLeftYoutube {
			a.stats.Effective++
		}
	}

	out := make(map[string]InterventionStats, len(byType))
	for typ, a := range byType {
		s := a.stats
		if a.respCount > 0 {
			s.AvgResponseTimeMs = float64(a.respTotal) / float64(a.respCount)
		}
		s.ResponseRate = round(float64(s.Responded)/float64(s.Total)*100, 1)
		if s.Responded > 0 {
			s.EffectivenessRate = round(float64(s.Effective)/float64(s.Responded)*100, 1)
		}
		out[typ] = s
	}
	return out
}

// BuildMoodTrend groups pre and post reports by UTC calendar date. Other
// report types are ignored.
func BuildMoodTrend(reports []telemetry.MoodReport) []MoodDay {
	type acc struct {
		pre, post     []int
		satisfactions []int
		intentions    []string
	}
	byDate := make(map[string]*acc)
	for _, r := range reports {
		if r.ReportType != telemetry.ReportTypePre && r.ReportType != telemetry.ReportTypePost {
			continue
		}
		date := r.Timestamp.UTC().Format(time.DateOnly)
		a, ok := byDate[date]
		if !ok {
			a = &acc{}
			byDate[date] = a
		}
		if r.ReportType == telemetry.ReportTypePre {
			a.pre = append(a.pre, r.Mood)
		} else {
			a.post = append(a.post, r.Mood)
		}
		if r.Satisfaction != nil && *r.Satisfaction > 0 {
			a.satisfactions = append(a.satisfactions, *r.Satisfaction)
		}
		if r.Intention != nil && *r.Intention != "" {
			a.intentions = appendDistinct(a.intentions, *r.Intention)
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make([]MoodDay, 0, len(dates))
	for _, d := range dates {
		a := byDate[d]
		day := MoodDay{
			Date:             d,
			AvgPreMood:       mean(a.pre),
			AvgPostMood:      mean(a.post),
			AvgSatisfaction:  mean(a.satisfactions),
			ReportCount:      len(a.pre) + len(a.post),
			CommonIntentions: a.intentions,
		}
		if day.CommonIntentions == nil {
			day.CommonIntentions = []string{}
		}
		if day.AvgPreMood != nil && day.AvgPostMood != nil {
			delta := round(*day.AvgPostMood-*day.AvgPreMood, 2)
			day.MoodDelta = &delta
		}
		out = append(out, day)
	}
	return out
}

func appendDistinct(list []string, v string) []string {
	if len(list) >= maxIntentions {
		return list
	}
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func mean(vals []int) *float64 {
	if len(vals) == 0 {
		return nil
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	m := round(float64(sum)/float64(len(vals)), 2)
	return &m
}

package telemetry

// EntityType names one synced collection. The values are the keys of the
// sync request's data object and of the response's syncedCounts.
type EntityType string

const (
	VideoSessions        EntityType = "videoSessions"
	BrowserSessions      EntityType = "browserSessions"
	DailyStatsEntries    EntityType = "dailyStats"
	ScrollEvents         EntityType = "scrollEvents"
	ThumbnailEvents      EntityType = "thumbnailEvents"
	PageEvents           EntityType = "pageEvents"
	VideoWatchEvents     EntityType = "videoWatchEvents"
	RecommendationEvents EntityType = "recommendationEvents"
	InterventionEvents   EntityType = "interventionEvents"
	MoodReports          EntityType = "moodReports"
	ProductiveURLs       EntityType = "productiveUrls"
)

var entityTypes = []EntityType{
	VideoSessions,
	BrowserSessions,
	DailyStatsEntries,
	ScrollEvents,
	ThumbnailEvents,
	PageEvents,
	VideoWatchEvents,
	RecommendationEvents,
	InterventionEvents,
	MoodReports,
	ProductiveURLs,
}

// EntityTypes returns every entity type in reconciliation order.
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

func (e EntityType) String() string {
	return string(e)
}

// Valid reports whether e is one of the known entity types.
func (e EntityType) Valid() bool {
	for _, t := range entityTypes {
		if t == e {
			return true
		}
	}
	return false
}

// Counts maps each entity type to the number of items processed.
type Counts map[EntityType]int

// NewCounts returns a Counts with every entity type present at zero.
func NewCounts() Counts {
	c := make(Counts, len(entityTypes))
	for _, t := range entityTypes {
		c[t] = 0
	}
	return c
}

// Total sums all entries.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

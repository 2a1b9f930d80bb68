// Package memstore is an in-memory Store used by tests. A transaction works
// on a private copy of the data which replaces the shared copy on commit.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/Wuchinator/watchtime/internal/stats"
	"github.com/Wuchinator/watchtime/internal/telemetry"
)

type dateKey struct {
	userID uuid.UUID
	date   string
}

type data struct {
	users           map[uuid.UUID]telemetry.User
	devices         map[string]uuid.UUID
	videoSessions   []telemetry.VideoSession
	browserSessions []telemetry.BrowserSession
	dailyStats      map[dateKey]telemetry.DailyStats
	scroll          []telemetry.ScrollEvent
	thumbnail       []telemetry.ThumbnailEvent
	page            []telemetry.PageEvent
	videoWatch      []telemetry.VideoWatchEvent
	recommendation  []telemetry.RecommendationEvent
	intervention    []telemetry.InterventionEvent
	mood            []telemetry.MoodReport
	productiveURLs  []telemetry.ProductiveURL
	history         []telemetry.SyncHistory
	nextID          int64
}

func newData() *data {
	return &data{
		users:      make(map[uuid.UUID]telemetry.User),
		devices:    make(map[string]uuid.UUID),
		dailyStats: make(map[dateKey]telemetry.DailyStats),
	}
}

func (d *data) clone() *data {
	c := *d
	c.users = make(map[uuid.UUID]telemetry.User, len(d.users))
	for k, v := range d.users {
		c.users[k] = v
	}
	c.devices = make(map[string]uuid.UUID, len(d.devices))
	for k, v := range d.devices {
		c.devices[k] = v
	}
	c.dailyStats = make(map[dateKey]telemetry.DailyStats, len(d.dailyStats))
	for k, v := range d.dailyStats {
		c.dailyStats[k] = v
	}
	c.videoSessions = slices.Clone(d.videoSessions)
	c.browserSessions = slices.Clone(d.browserSessions)
	c.scroll = slices.Clone(d.scroll)
	c.thumbnail = slices.Clone(d.thumbnail)
	c.page = slices.Clone(d.page)
	c.videoWatch = slices.Clone(d.videoWatch)
	c.recommendation = slices.Clone(d.recommendation)
	c.intervention = slices.Clone(d.intervention)
	c.mood = slices.Clone(d.mood)
	c.productiveURLs = slices.Clone(d.productiveURLs)
	c.history = slices.Clone(d.history)
	return &c
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

// Store is safe for concurrent use. Transactions are serialized.
type Store struct {
	mu       sync.Mutex
	data     *data
	failures map[telemetry.EntityType]error
	now      func() time.Time
}

func New() *Store {
	return &Store{
		data:     newData(),
		failures: make(map[telemetry.EntityType]error),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes every write to entity return err until cleared with a nil err.
func (s *Store) FailOn(entity telemetry.EntityType, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, entity)
		return
	}
	s.failures[entity] = err
}

func (s *Store) InTx(ctx context.Context, fn func(tx telemetry.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &tx{data: s.data.clone(), failures: s.failures, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

type tx struct {
	data     *data
	failures map[telemetry.EntityType]error
	now      func() time.Time
}

var _ telemetry.Tx = (*tx)(nil)

func (t *tx) fail(entity telemetry.EntityType) error {
	if err, ok := t.failures[entity]; ok {
		return fmt.Errorf("memstore %s: %w", entity, err)
	}
	return nil
}

func (t *tx) VideoSessionExists(_ context.Context, userID uuid.UUID, extSessionID string) (bool, error) {
	return slices.ContainsFunc(t.data.videoSessions, func(v telemetry.VideoSession) bool {
		return v.UserID == userID && v.ExtSessionID == extSessionID
	}), nil
}

func (t *tx) InsertVideoSession(ctx context.Context, s *telemetry.VideoSession) (bool, error) {
	if err := t.fail(telemetry.VideoSessions); err != nil {
		return false, err
	}
	if found, _ := t.VideoSessionExists(ctx, s.UserID, s.ExtSessionID); found {
		return false, nil
	}
	row := *s
	row.SyncedAt = t.now()
	t.data.videoSessions = append(t.data.videoSessions, row)
	return true, nil
}

func (t *tx) BrowserSessionExists(_ context.Context, userID uuid.UUID, extSessionID string) (bool, error) {
	return slices.ContainsFunc(t.data.browserSessions, func(b telemetry.BrowserSession) bool {
		return b.UserID == userID && b.ExtSessionID == extSessionID
	}), nil
}

func (t *tx) InsertBrowserSession(ctx context.Context, s *telemetry.BrowserSession) (bool, error) {
	if err := t.fail(telemetry.BrowserSessions); err != nil {
		return false, err
	}
	if found, _ := t.BrowserSessionExists(ctx, s.UserID, s.ExtSessionID); found {
		return false, nil
	}
	row := *s
	row.SyncedAt = t.now()
	t.data.browserSessions = append(t.data.browserSessions, row)
	return true, nil
}

func (t *tx) UpsertDailyStats(_ context.Context, d *telemetry.DailyStats) error {
	if err := t.fail(telemetry.DailyStatsEntries); err != nil {
		return err
	}
	row := *d
	row.UpdatedAt = t.now()
	t.data.dailyStats[dateKey{userID: d.UserID, date: d.Date.Format(time.DateOnly)}] = row
	return nil
}

func appendRows[T any](t *tx, entity telemetry.EntityType, dst *[]T, rows []T, setID func(*T, int64)) error {
	if err := t.fail(entity); err != nil {
		return err
	}
	for _, row := range rows {
		setID(&row, t.data.id())
		*dst = append(*dst, row)
	}
	return nil
}

func (t *tx) AppendScrollEvents(_ context.Context, events []telemetry.ScrollEvent) error {
	return appendRows(t, telemetry.ScrollEvents, &t.data.scroll, events,
		func(e *telemetry.ScrollEvent, id int64) { e.ID = id })
}

func (t *tx) AppendThumbnailEvents(_ context.Context, events []telemetry.ThumbnailEvent) error {
	return appendRows(t, telemetry.ThumbnailEvents, &t.data.thumbnail, events,
		func(e *telemetry.ThumbnailEvent, id int64) { e.ID = id })
}

func (t *tx) AppendPageEvents(_ context.Context, events []telemetry.PageEvent) error {
	return appendRows(t, telemetry.PageEvents, &t.data.page, events,
		func(e *telemetry.PageEvent, id int64) { e.ID = id })
}

func (t *tx) AppendVideoWatchEvents(_ context.Context, events []telemetry.VideoWatchEvent) error {
	return appendRows(t, telemetry.VideoWatchEvents, &t.data.videoWatch, events,
		func(e *telemetry.VideoWatchEvent, id int64) { e.ID = id })
}

func (t *tx) AppendRecommendationEvents(_ context.Context, events []telemetry.RecommendationEvent) error {
	return appendRows(t, telemetry.RecommendationEvents, &t.data.recommendation, events,
		func(e *telemetry.RecommendationEvent, id int64) { e.ID = id })
}

func (t *tx) AppendInterventionEvents(_ context.Context, events []telemetry.InterventionEvent) error {
	return appendRows(t, telemetry.InterventionEvents, &t.data.intervention, events,
		func(e *telemetry.InterventionEvent, id int64) { e.ID = id })
}

func (t *tx) AppendMoodReports(_ context.Context, reports []telemetry.MoodReport) error {
	return appendRows(t, telemetry.MoodReports, &t.data.mood, reports,
		func(e *telemetry.MoodReport, id int64) { e.ID = id })
}

func (t *tx) GetProductiveURL(_ context.Context, userID uuid.UUID, extID string) (*telemetry.ProductiveURL, error) {
	return findProductiveURL(t.data, userID, extID)
}

func findProductiveURL(d *data, userID uuid.UUID, extID string) (*telemetry.ProductiveURL, error) {
	var best *telemetry.ProductiveURL
	for i := range d.productiveURLs {
		p := &d.productiveURLs[i]
		if p.UserID != userID || p.ExtID != extID {
			continue
		}
		if best == nil || (best.IsDeleted() && !p.IsDeleted()) {
			best = p
		}
	}
	if best == nil {
		return nil, telemetry.ErrNotFound
	}
	out := *best
	return &out, nil
}

func (t *tx) RestoreProductiveURL(_ context.Context, id uuid.UUID, url, title string) error {
	if err := t.fail(telemetry.ProductiveURLs); err != nil {
		return err
	}
	for i := range t.data.productiveURLs {
		p := &t.data.productiveURLs[i]
		if p.ID == id {
			p.URL = url
			p.Title = title
			p.DeletedAt = nil
			p.UpdatedAt = t.now()
			return nil
		}
	}
	return telemetry.ErrNotFound
}

func (t *tx) CreateProductiveURL(_ context.Context, p *telemetry.ProductiveURL) error {
	if err := t.fail(telemetry.ProductiveURLs); err != nil {
		return err
	}
	row := *p
	now := t.now()
	row.CreatedAt = now
	row.UpdatedAt = now
	t.data.productiveURLs = append(t.data.productiveURLs, row)
	return nil
}

// Seeding and inspection helpers.

// PutProductiveURL stores p as-is, bypassing the one-row-per-key rule so
// tests can model leftover soft-deleted duplicates.
func (s *Store) PutProductiveURL(p telemetry.ProductiveURL) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.data.productiveURLs = append(s.data.productiveURLs, p)
}

// SoftDeleteProductiveURL marks every row for (userID, extID) deleted.
func (s *Store) SoftDeleteProductiveURL(userID uuid.UUID, extID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.productiveURLs {
		p := &s.data.productiveURLs[i]
		if p.UserID == userID && p.ExtID == extID {
			deleted := at
			p.DeletedAt = &deleted
		}
	}
}

// ProductiveURLs returns every row for the user, deleted ones included.
func (s *Store) ProductiveURLs(userID uuid.UUID) []telemetry.ProductiveURL {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.ProductiveURL
	for _, p := range s.data.productiveURLs {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

// Rows counts the stored rows of entity across all users.
func (s *Store) Rows(entity telemetry.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data
	switch entity {
	case telemetry.VideoSessions:
		return len(d.videoSessions)
	case telemetry.BrowserSessions:
		return len(d.browserSessions)
	case telemetry.DailyStatsEntries:
		return len(d.dailyStats)
	case telemetry.ScrollEvents:
		return len(d.scroll)
	case telemetry.ThumbnailEvents:
		return len(d.thumbnail)
	case telemetry.PageEvents:
		return len(d.page)
	case telemetry.VideoWatchEvents:
		return len(d.videoWatch)
	case telemetry.RecommendationEvents:
		return len(d.recommendation)
	case telemetry.InterventionEvents:
		return len(d.intervention)
	case telemetry.MoodReports:
		return len(d.mood)
	case telemetry.ProductiveURLs:
		return len(d.productiveURLs)
	}
	return 0
}

// TotalRows sums Rows over every entity type.
func (s *Store) TotalRows() int {
	total := 0
	for _, e := range telemetry.EntityTypes() {
		total += s.Rows(e)
	}
	return total
}

// SyncHistory returns the audit rows for the user in insertion order.
func (s *Store) SyncHistory(userID uuid.UUID) []telemetry.SyncHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.SyncHistory
	for _, h := range s.data.history {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out
}

// Users.

func (s *Store) GetOrCreate(_ context.Context, deviceID string, settings pqtype.NullRawMessage) (*telemetry.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.data.devices[deviceID]; ok {
		u := s.data.users[id]
		return &u, nil
	}
	u := telemetry.User{
		ID:        uuid.New(),
		DeviceID:  deviceID,
		CreatedAt: s.now(),
		Settings:  settings,
	}
	s.data.users[u.ID] = u
	s.data.devices[deviceID] = u.ID
	return &u, nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*telemetry.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, telemetry.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) TouchLastSync(_ context.Context, userID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[userID]
	if !ok {
		return telemetry.ErrUserNotFound
	}
	if u.LastSyncAt == nil || at.After(*u.LastSyncAt) {
		u.LastSyncAt = &at
		s.data.users[userID] = u
	}
	return nil
}

// Sync history.

func (s *Store) InsertSyncHistory(_ context.Context, h *telemetry.SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.users[h.UserID]; !ok {
		return telemetry.ErrUserNotFound
	}
	row := *h
	row.ID = s.data.id()
	row.RecordedAt = s.now()
	s.data.history = append(s.data.history, row)
	h.ID = row.ID
	return nil
}

// Reads.

var _ stats.Repository = (*Store)(nil)

func (s *Store) DailyStats(_ context.Context, userID uuid.UUID, date time.Time) (*telemetry.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data.dailyStats[dateKey{userID: userID, date: date.Format(time.DateOnly)}]
	if !ok {
		return nil, telemetry.ErrNotFound
	}
	return &d, nil
}

func (s *Store) DailyStatsRange(_ context.Context, userID uuid.UUID, from, to time.Time) ([]telemetry.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyRange(userID, from, to), nil
}

// dailyRange returns rows with from <= date <= to, newest first.
func (s *Store) dailyRange(userID uuid.UUID, from, to time.Time) []telemetry.DailyStats {
	lo, hi := from.Format(time.DateOnly), to.Format(time.DateOnly)
	var out []telemetry.DailyStats
	for k, d := range s.data.dailyStats {
		if k.userID == userID && k.date >= lo && k.date <= hi {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (s *Store) WindowTotals(_ context.Context, userID uuid.UUID, from, to time.Time) (stats.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var totals stats.Totals
	for _, d := range s.dailyRange(userID, from, to) {
		totals.Seconds += int64(d.TotalSeconds)
		totals.Videos += int64(d.VideoCount)
	}
	return totals, nil
}

func (s *Store) TopChannels(_ context.Context, userID uuid.UUID, since time.Time, limit int) ([]stats.ChannelRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byChannel := make(map[string]*stats.ChannelRow)
	for _, v := range s.data.videoSessions {
		if v.UserID != userID || v.Channel == nil || v.Timestamp.Before(since) {
			continue
		}
		row, ok := byChannel[*v.Channel]
		if !ok {
			row = &stats.ChannelRow{Channel: *v.Channel}
			byChannel[*v.Channel] = row
		}
		row.VideoCount++
		row.TotalSeconds += int64(v.WatchedSeconds)
	}
	out := make([]stats.ChannelRow, 0, len(byChannel))
	for _, row := range byChannel {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSeconds != out[j].TotalSeconds {
			return out[i].TotalSeconds > out[j].TotalSeconds
		}
		return out[i].Channel < out[j].Channel
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InterventionEvents(_ context.Context, userID uuid.UUID, since time.Time) ([]telemetry.InterventionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.InterventionEvent
	for _, e := range s.data.intervention {
		if e.UserID == userID && !e.TriggeredAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) MoodReports(_ context.Context, userID uuid.UUID, since time.Time) ([]telemetry.MoodReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.MoodReport
	for _, m := range s.data.mood {
		if m.UserID == userID && !m.Timestamp.Before(since) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// VideoSessions returns the user's sessions newest first.
func (s *Store) VideoSessions(_ context.Context, userID uuid.UUID, limit, offset int) ([]telemetry.VideoSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.VideoSession
	for _, v := range s.data.videoSessions {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if offset >= len(out) {
		return []telemetry.VideoSession{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package telemetry

import (
	"context"

	"github.com/google/uuid"
)

// Store runs reconciliation work inside one all-or-nothing transaction.
// If fn returns an error nothing it did is visible afterwards.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes one sync batch may perform. Every method is scoped
// by the user id carried on its arguments.
type Tx interface {
	VideoSessionExists(ctx context.Context, userID uuid.UUID, extSessionID string) (bool, error)
	// InsertVideoSession returns created=false when another writer already
	// holds (user, ext session id).
	InsertVideoSession(ctx context.Context, s *VideoSession) (created bool, err error)

	BrowserSessionExists(ctx context.Context, userID uuid.UUID, extSessionID string) (bool, error)
	InsertBrowserSession(ctx context.Context, s *BrowserSession) (created bool, err error)

	UpsertDailyStats(ctx context.Context, d *DailyStats) error

	AppendScrollEvents(ctx context.Context, events []ScrollEvent) error
	AppendThumbnailEvents(ctx context.Context, events []ThumbnailEvent) error
	AppendPageEvents(ctx context.Context, events []PageEvent) error
	AppendVideoWatchEvents(ctx context.Context, events []VideoWatchEvent) error
	AppendRecommendationEvents(ctx context.Context, events []RecommendationEvent) error
	AppendInterventionEvents(ctx context.Context, events []InterventionEvent) error
	AppendMoodReports(ctx context.Context, reports []MoodReport) error

	// GetProductiveURL prefers a live row over a soft-deleted one. It returns
	// ErrNotFound when no row exists.
	GetProductiveURL(ctx context.Context, userID uuid.UUID, extID string) (*ProductiveURL, error)
	// RestoreProductiveURL overwrites url and title and clears the delete mark.
	RestoreProductiveURL(ctx context.Context, id uuid.UUID, url, title string) error
	CreateProductiveURL(ctx context.Context, p *ProductiveURL) error
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wuchinator/watchtime/internal/telemetry"
)

// Policy is the dedup rule an entity type is reconciled with.
type Policy int

const (
	// FirstWriteWins inserts a row only if (user, external id) is absent.
	FirstWriteWins Policy = iota + 1
	// LastWriteWins upserts and overwrites every column.
	LastWriteWins
	// AppendOnly inserts every item unconditionally.
	AppendOnly
	// SoftDeleteUpsert restores and overwrites an existing row, including a
	// soft-deleted one, or inserts a new row.
	SoftDeleteUpsert
)

func (p Policy) String() string {
	switch p {
	case FirstWriteWins:
		return "first_write_wins"
	case LastWriteWins:
		return "last_write_wins"
	case AppendOnly:
		return "append_only"
	case SoftDeleteUpsert:
		return "soft_delete_upsert"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// appendChunkSize bounds the rows of one multi-row insert so the statement
// stays well under the Postgres bind parameter limit.
const appendChunkSize = 1000

// reconciler applies one entity type's policy to its part of a batch. It
// returns the number of items processed and any soft per-item errors.
type reconciler struct {
	entity telemetry.EntityType
	policy Policy
	apply  func(ctx context.Context, tx telemetry.Tx, b *Batch) (int, []string, error)
}

// dispatchTable is ordered like telemetry.EntityTypes.
var dispatchTable = []reconciler{
	{
		entity: telemetry.VideoSessions,
		policy: FirstWriteWins,
		apply: func(ctx context.Context, tx telemetry.Tx, b *Batch) (int, []string, error) {
			n, err := firstWriteWins(ctx, b.VideoSessions, firstWriteOps[*telemetry.VideoSession]{
				key: func(s *telemetry.VideoSession) string { return s.ExtSessionID },
				exists: func(ctx context.Context, key string) (bool, error) {
					return tx.VideoSessionExists(ctx, b.UserID, key)
				},
				insert: tx.InsertVideoSession,
			})
			return n, nil, err
		},
	},
	{
		entity: telemetry.BrowserSessions,
		policy: FirstWriteWins,
		apply: func(ctx context.Context, tx telemetry.Tx, b *Batch) (int, []string, error) {
			n, err := firstWriteWins(ctx, b.BrowserSessions, firstWriteOps[*telemetry.BrowserSession]{
				key: func(s *telemetry.BrowserSession) string { return s.ExtSessionID },
				exists: func(ctx context.Context, key string) (bool, error) {
					return tx.BrowserSessionExists(ctx, b.UserID, key)
				},
				insert: tx.InsertBrowserSession,
			})
			return n, nil, err
		},
	},
	{
		entity: telemetry.DailyStatsEntries,
		policy: LastWriteWins,
		apply: func(ctx context.Context, tx telemetry.Tx, b *Batch) (int, []string, error) {
			return lastWriteWins(ctx, b.DailyStats, lastWriteOps[DailyStatsEntry]{
				prepare: bindDate,
				upsert: func(ctx context.Context, e DailyStatsEntry) error {
					return tx.UpsertDailyStats(ctx, e.Stats)
				},
			})
		},
	},
	appendOnlyReconciler(telemetry.ScrollEvents, func(b *Batch) []telemetry.ScrollEvent { return b.ScrollEvents },
		func(tx telemetry.Tx) func(context.Context, []telemetry.ScrollEvent) error { return tx.AppendScrollEvents }),
	appendOnlyReconciler(telemetry.ThumbnailEvents, func(b *Batch) []telemetry.ThumbnailEvent { return b.ThumbnailEvents },
		func(tx telemetry.Tx) func(context.Context, []telemetry.ThumbnailEvent) error { return tx.AppendThumbnailEvents }),
	appendOnlyReconciler(telemetry.PageEvents, func(b *Batch) []telemetry.PageEvent { return b.PageEvents },
		func(tx telemetry.Tx) func(context.Context, []telemetry.PageEvent) error { return tx.AppendPageEvents }),
	appendOnlyReconciler(telemetry.VideoWatchEvents, func(b *Batch) []telemetry.VideoWatchEvent { return b.VideoWatchEvents },
		func(tx telemetry.Tx) func(context.Context, []telemetry.VideoWatchEvent) error { return tx.AppendVideoWatchEvents }),
	appendOnlyReconciler(telemetry.RecommendationEvents, func(b *Batch) []telemetry.RecommendationEvent { return b.RecommendationEvents },
		func(tx telemetry.Tx) func(context.Context, []telemetry.RecommendationEvent) error {
			return tx.AppendRecommendationEvents
		}),
	appendOnlyReconciler(telemetry.InterventionEvents, func(b *Batch) []telemetry.InterventionEvent { return b.InterventionEvents },
		func(tx telemetry.Tx) func(context.Context, []telemetry.InterventionEvent) error {
			return tx.AppendInterventionEvents
		}),
	appendOnlyReconciler(telemetry.MoodReports, func(b *Batch) []telemetry.MoodReport { return b.MoodReports },
		func(tx telemetry.Tx) func(context.Context, []telemetry.MoodReport) error { return tx.AppendMoodReports }),
	{
		entity: telemetry.ProductiveURLs,
		policy: SoftDeleteUpsert,
		apply: func(ctx context.Context, tx telemetry.Tx, b *Batch) (int, []string, error) {
			n, err := softDeleteUpsert(ctx, b.ProductiveURLs, softDeleteOps[*telemetry.ProductiveURL]{
				key: func(p *telemetry.ProductiveURL) string { return p.ExtID },
				lookup: func(ctx context.Context, key string) (*telemetry.ProductiveURL, error) {
					return tx.GetProductiveURL(ctx, b.UserID, key)
				},
				restore: func(ctx context.Context, existing, incoming *telemetry.ProductiveURL) error {
					return tx.RestoreProductiveURL(ctx, existing.ID, incoming.URL, incoming.Title)
				},
				create: tx.CreateProductiveURL,
			})
			return n, nil, err
		},
	},
}

// PolicyFor returns the policy an entity type is reconciled with.
func PolicyFor(e telemetry.EntityType) (Policy, bool) {
	for _, r := range dispatchTable {
		if r.entity == e {
			return r.policy, true
		}
	}
	return 0, false
}

type firstWriteOps[T any] struct {
	key    func(T) string
	exists func(ctx context.Context, key string) (bool, error)
	insert func(ctx context.Context, item T) (bool, error)
}

// firstWriteWins skips items whose key already exists. Skipped items still
// count as processed, which keeps a retried batch's counts stable.
func firstWriteWins[T any](ctx context.Context, items []T, ops firstWriteOps[T]) (int, error) {
	seen := make(map[string]struct{}, len(items))
	processed := 0
	for _, item := range items {
		key := ops.key(item)
		if _, dup := seen[key]; dup {
			processed++
			continue
		}
		seen[key] = struct{}{}

		found, err := ops.exists(ctx, key)
		if err != nil {
			return processed, fmt.Errorf("lookup %q: %w", key, err)
		}
		if !found {
			// created=false means a concurrent writer won the race; that is a
			// benign duplicate.
			if _, err := ops.insert(ctx, item); err != nil {
				return processed, fmt.Errorf("insert %q: %w", key, err)
			}
		}
		processed++
	}
	return processed, nil
}

type lastWriteOps[T any] struct {
	// prepare returns a *softError for items that must be skipped.
	prepare func(T) error
	upsert  func(ctx context.Context, item T) error
}

func lastWriteWins[T any](ctx context.Context, items []T, ops lastWriteOps[T]) (int, []string, error) {
	var soft []string
	processed := 0
	for _, item := range items {
		if err := ops.prepare(item); err != nil {
			var se *softError
			if errors.As(err, &se) {
				soft = append(soft, se.Error())
				continue
			}
			return processed, soft, err
		}
		if err := ops.upsert(ctx, item); err != nil {
			return processed, soft, fmt.Errorf("upsert: %w", err)
		}
		processed++
	}
	return processed, soft, nil
}

func appendOnly[T any](ctx context.Context, items []T, appendFn func(context.Context, []T) error) (int, error) {
	for start := 0; start < len(items); start += appendChunkSize {
		end := min(start+appendChunkSize, len(items))
		if err := appendFn(ctx, items[start:end]); err != nil {
			return start, fmt.Errorf("append: %w", err)
		}
	}
	return len(items), nil
}

func appendOnlyReconciler[T any](
	entity telemetry.EntityType,
	items func(*Batch) []T,
	appendFn func(telemetry.Tx) func(context.Context, []T) error,
) reconciler {
	return reconciler{
		entity: entity,
		policy: AppendOnly,
		apply: func(ctx context.Context, tx telemetry.Tx, b *Batch) (int, []string, error) {
			n, err := appendOnly(ctx, items(b), appendFn(tx))
			return n, nil, err
		},
	}
}

type softDeleteOps[T any] struct {
	key func(T) string
	// lookup returns telemetry.ErrNotFound when no row exists.
	lookup  func(ctx context.Context, key string) (T, error)
	restore func(ctx context.Context, existing, incoming T) error
	create  func(ctx context.Context, item T) error
}

func softDeleteUpsert[T any](ctx context.Context, items []T, ops softDeleteOps[T]) (int, error) {
	processed := 0
	for _, item := range items {
		key := ops.key(item)
		existing, err := ops.lookup(ctx, key)
		switch {
		case errors.Is(err, telemetry.ErrNotFound):
			if err := ops.create(ctx, item); err != nil {
				return processed, fmt.Errorf("create %q: %w", key, err)
			}
		case err != nil:
			return processed, fmt.Errorf("lookup %q: %w", key, err)
		default:
			if err := ops.restore(ctx, existing, item); err != nil {
				return processed, fmt.Errorf("restore %q: %w", key, err)
			}
		}
		processed++
	}
	return processed, nil
}

// softError is a per-item problem that skips the item but keeps the batch.
type softError struct {
	msg string
}

func (e *softError) Error() string { return e.msg }

func bindDate(e DailyStatsEntry) error {
	date, err := time.Parse(time.DateOnly, e.DateKey)
	if err != nil {
		return &softError{msg: fmt.Sprintf("Invalid date format: %s", e.DateKey)}
	}
	e.Stats.Date = date
	return nil
}

package queue

import (
	"context"
	"time"

	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// ErrConflict is returned by Enqueue when an active item already exists
// for the given catalog id.
type ErrConflict struct {
	CatalogID string
}

func (e *ErrConflict) Error() string {
	return "queue: an active item already exists for catalog id " + e.CatalogID
}

// ErrNotFound is returned when an operation targets an item that does not
// exist (or has already been deleted).
type ErrNotFound struct {
	ID int64
}

func (e *ErrNotFound) Error() string {
	return "queue: item not found"
}

// ErrProgressRegression is returned by Update when a write would decrease
// progress while the item is downloading.
var ErrProgressRegression = progressRegressionError{}

type progressRegressionError struct{}

func (progressRegressionError) Error() string {
	return "queue: progress must not decrease while downloading"
}

// Fields is a partial update. Every field is a pointer so the caller can
// distinguish "leave alone" from "set to zero value". UpdatedAt is always
// stamped by the store, never by the caller.
type Fields struct {
	Status         *statemachine.Status
	ClientName     *string
	ClientID       *string
	SourceURL      *string
	SourceInfoHash *string
	TempPath       *string
	VoucherPath    *string
	ConvertedPath  *string
	FinalPath      *string
	Format         *string
	Progress       *float64
	// ProgressNull, when true, resets progress to null regardless of
	// Progress (used when re-entering QUEUED/FOUND).
	ProgressNull bool
	RetryCount   *int
	NextRetryAt  *time.Time
	// ClearNextRetryAt resets next_retry_at to null.
	ClearNextRetryAt bool
	LastError        *string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	SeedingRatio       *float64
	SeedingTimeSeconds *int64
}

// Store is the persistence contract every queue consumer programs against.
// All methods are safe for concurrent use.
type Store interface {
	Enqueue(ctx context.Context, catalogID string, priority int, kind Kind, preSelectedSource string, metadata map[string]string) (int64, error)
	Get(ctx context.Context, id int64) (*Item, error)
	GetActiveByCatalog(ctx context.Context, catalogID string) (*Item, error)
	List(ctx context.Context, status statemachine.Status, limit, offset int) ([]*Item, error)
	Update(ctx context.Context, id int64, fields Fields) error
	Delete(ctx context.Context, id int64) error
	Statistics(ctx context.Context) (map[statemachine.Status]int, error)
}

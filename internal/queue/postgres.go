package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/vaultshelf/orchestrator/internal/logging"
	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// PostgresStore is the durable QueueStore backing. It enforces one active
// item per catalog_id via a partial unique index plus an
// INSERT ... WHERE NOT EXISTS check, and progress monotonicity with a
// guarded UPDATE.
type PostgresStore struct {
	db  *sql.DB
	log *logging.Logger
}

// Connect opens a connection pool against connStr and verifies it.
func Connect(connStr string, log *logging.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("queue: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("queue: ping database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	log.Info("connected to queue database")
	return db, nil
}

// NewPostgresStore wraps an already-connected *sql.DB.
func NewPostgresStore(db *sql.DB, log *logging.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

const activeStatusList = `(
	'QUEUED','SEARCHING','FOUND','DOWNLOADING','AUDIBLE_DOWNLOADING','PAUSED',
	'COMPLETE','CONVERTING','CONVERTED','IMPORTING','SEEDING'
)`

func (s *PostgresStore) Enqueue(ctx context.Context, catalogID string, priority int, kind Kind, preSelectedSource string, metadata map[string]string) (int64, error) {
	_ = metadata // external book metadata is looked up by catalog id, not stored here

	var preSelected sql.NullString
	if preSelectedSource != "" {
		preSelected = sql.NullString{String: preSelectedSource, Valid: true}
	}

	now := time.Now()
	correlationID := uuid.NewString()
	var id int64
	query := `
		INSERT INTO queue_items (catalog_id, correlation_id, status, priority, kind, pre_selected_source, retry_count, queued_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, 0, $7, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM queue_items WHERE catalog_id = $1 AND status IN ` + activeStatusList + `
		)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query, catalogID, correlationID, string(statemachine.Queued), priority, string(kind), preSelected, now).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, &ErrConflict{CatalogID: catalogID}
	}
	if err != nil {
		return 0, fmt.Errorf("queue: enqueue %s: %w", catalogID, err)
	}
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM queue_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get %d: %w", id, err)
	}
	return item, nil
}

func (s *PostgresStore) GetActiveByCatalog(ctx context.Context, catalogID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM queue_items WHERE catalog_id = $1 AND status IN `+activeStatusList+` LIMIT 1`, catalogID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get active by catalog %s: %w", catalogID, err)
	}
	return item, nil
}

func (s *PostgresStore) List(ctx context.Context, status statemachine.Status, limit, offset int) ([]*Item, error) {
	var rows *sql.Rows
	var err error
	// A limit of 0 means no limit, as in MemoryStore; LIMIT NULL is unbounded.
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	if status != "" {
		rows, err = s.db.QueryContext(ctx, selectColumns+`
			FROM queue_items WHERE status = $1
			ORDER BY priority DESC, queued_at ASC
			LIMIT $2 OFFSET $3`, string(status), lim, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, selectColumns+`
			FROM queue_items
			ORDER BY priority DESC, queued_at ASC
			LIMIT $1 OFFSET $2`, lim, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: list scan: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Update applies a partial write, guarding progress monotonicity while the
// item is in a downloading state.
func (s *PostgresStore) Update(ctx context.Context, id int64, f Fields) error {
	sets := []string{"updated_at = $1"}
	args := []interface{}{time.Now()}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != nil {
		sets = append(sets, "status = "+arg(string(*f.Status)))
	}
	if f.ClientName != nil {
		sets = append(sets, "client_name = "+arg(*f.ClientName))
	}
	if f.ClientID != nil {
		sets = append(sets, "client_id = "+arg(*f.ClientID))
	}
	if f.SourceURL != nil {
		sets = append(sets, "source_url = "+arg(*f.SourceURL))
	}
	if f.SourceInfoHash != nil {
		sets = append(sets, "source_info_hash = "+arg(*f.SourceInfoHash))
	}
	if f.TempPath != nil {
		sets = append(sets, "temp_path = "+arg(*f.TempPath))
	}
	if f.VoucherPath != nil {
		sets = append(sets, "voucher_path = "+arg(*f.VoucherPath))
	}
	if f.ConvertedPath != nil {
		sets = append(sets, "converted_path = "+arg(*f.ConvertedPath))
	}
	if f.FinalPath != nil {
		sets = append(sets, "final_path = "+arg(*f.FinalPath))
	}
	if f.Format != nil {
		sets = append(sets, "format = "+arg(*f.Format))
	}
	var progressPlaceholder string
	if f.ProgressNull {
		sets = append(sets, "progress = NULL")
	} else if f.Progress != nil {
		progressPlaceholder = arg(*f.Progress)
		sets = append(sets, "progress = "+progressPlaceholder)
	}
	if f.RetryCount != nil {
		sets = append(sets, "retry_count = "+arg(*f.RetryCount))
	}
	if f.ClearNextRetryAt {
		sets = append(sets, "next_retry_at = NULL")
	} else if f.NextRetryAt != nil {
		sets = append(sets, "next_retry_at = "+arg(*f.NextRetryAt))
	}
	if f.LastError != nil {
		sets = append(sets, "last_error = "+arg(*f.LastError))
	}
	if f.StartedAt != nil {
		sets = append(sets, "started_at = "+arg(*f.StartedAt))
	}
	if f.CompletedAt != nil {
		sets = append(sets, "completed_at = "+arg(*f.CompletedAt))
	}
	if f.SeedingRatio != nil {
		sets = append(sets, "seeding_ratio = "+arg(*f.SeedingRatio))
	}
	if f.SeedingTimeSeconds != nil {
		sets = append(sets, "seeding_time_seconds = "+arg(*f.SeedingTimeSeconds))
	}

	idArg := arg(id)
	query := "UPDATE queue_items SET " + joinComma(sets) + " WHERE id = " + idArg
	if progressPlaceholder != "" {
		// Progress may only increase while the item is actively downloading;
		// the WHERE clause rejects the write instead of silently clamping it.
		query += fmt.Sprintf(" AND (progress IS NULL OR progress <= %s OR status NOT IN ('DOWNLOADING','AUDIBLE_DOWNLOADING'))", progressPlaceholder)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("queue: update %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("queue: update %d: %w", id, err)
	}
	if affected == 0 {
		if progressPlaceholder != "" {
			return ErrProgressRegression
		}
		return &ErrNotFound{ID: id}
	}
	return nil
}

func joinComma(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("queue: delete %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Statistics(ctx context.Context) (map[statemachine.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue: statistics: %w", err)
	}
	defer rows.Close()

	out := make(map[statemachine.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("queue: statistics scan: %w", err)
		}
		out[statemachine.Status(status)] = count
	}
	return out, rows.Err()
}

const selectColumns = `
	SELECT id, catalog_id, correlation_id, status, priority, kind, pre_selected_source, source_url,
	       source_info_hash, client_name, client_id, temp_path, voucher_path,
	       converted_path, final_path, format, progress, retry_count, next_retry_at,
	       last_error, queued_at, started_at, completed_at, updated_at,
	       seeding_ratio, seeding_time_seconds
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var status, kind, correlationID string
	var preSelected, sourceURL, sourceHash, clientName, clientID, tempPath sql.NullString
	var voucherPath, convertedPath, finalPath, format, lastError sql.NullString
	var progress, seedingRatio sql.NullFloat64
	var nextRetryAt, startedAt, completedAt sql.NullTime
	var seedingTime sql.NullInt64

	if err := row.Scan(
		&item.ID, &item.CatalogID, &correlationID, &status, &item.Priority, &kind, &preSelected, &sourceURL,
		&sourceHash, &clientName, &clientID, &tempPath, &voucherPath,
		&convertedPath, &finalPath, &format, &progress, &item.RetryCount, &nextRetryAt,
		&lastError, &item.QueuedAt, &startedAt, &completedAt, &item.UpdatedAt,
		&seedingRatio, &seedingTime,
	); err != nil {
		return nil, err
	}

	item.CorrelationID = correlationID
	item.Status = statemachine.Status(status)
	item.Kind = Kind(kind)
	item.PreSelectedSource = preSelected.String
	item.SourceURL = sourceURL.String
	item.SourceInfoHash = sourceHash.String
	item.ClientName = clientName.String
	item.ClientID = clientID.String
	item.TempPath = tempPath.String
	item.VoucherPath = voucherPath.String
	item.ConvertedPath = convertedPath.String
	item.FinalPath = finalPath.String
	item.Format = format.String
	item.LastError = lastError.String

	if progress.Valid {
		item.Progress = &progress.Float64
	}
	if nextRetryAt.Valid {
		item.NextRetryAt = &nextRetryAt.Time
	}
	if startedAt.Valid {
		item.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		item.CompletedAt = &completedAt.Time
	}
	if seedingRatio.Valid {
		item.SeedingRatio = &seedingRatio.Float64
	}
	if seedingTime.Valid {
		item.SeedingTimeSeconds = &seedingTime.Int64
	}

	return &item, nil
}

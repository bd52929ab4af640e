package queue

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the queue_items table and its supporting indexes if they
// do not already exist. It is safe to call on every process start.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("queue: migrate: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS queue_items (
	id                   BIGSERIAL PRIMARY KEY,
	catalog_id           TEXT NOT NULL,
	correlation_id       TEXT NOT NULL,
	status               TEXT NOT NULL,
	priority             INTEGER NOT NULL DEFAULT 5,
	kind                 TEXT NOT NULL,
	pre_selected_source  TEXT,
	source_url           TEXT,
	source_info_hash     TEXT,
	client_name          TEXT,
	client_id            TEXT,
	temp_path            TEXT,
	voucher_path         TEXT,
	converted_path       TEXT,
	final_path           TEXT,
	format               TEXT,
	progress             DOUBLE PRECISION,
	retry_count          INTEGER NOT NULL DEFAULT 0,
	next_retry_at        TIMESTAMPTZ,
	last_error           TEXT,
	queued_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at           TIMESTAMPTZ,
	completed_at         TIMESTAMPTZ,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	seeding_ratio        DOUBLE PRECISION,
	seeding_time_seconds BIGINT
);

-- At most one active item per catalog_id. Partial index over the
-- non-terminal, non-permanently-failed statuses.
CREATE UNIQUE INDEX IF NOT EXISTS queue_items_active_catalog_id
	ON queue_items (catalog_id)
	WHERE status IN (
		'QUEUED','SEARCHING','FOUND','DOWNLOADING','AUDIBLE_DOWNLOADING','PAUSED',
		'COMPLETE','CONVERTING','CONVERTED','IMPORTING','SEEDING'
	);

CREATE INDEX IF NOT EXISTS queue_items_status_priority
	ON queue_items (status, priority DESC, queued_at ASC);

CREATE INDEX IF NOT EXISTS queue_items_next_retry_at
	ON queue_items (next_retry_at)
	WHERE next_retry_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS torrent_piece_completion (
	info_hash   TEXT NOT NULL,
	piece_index INTEGER NOT NULL,
	completed   BOOLEAN NOT NULL,
	verified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (info_hash, piece_index)
);
`

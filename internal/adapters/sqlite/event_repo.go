package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/foreman/internal/ports/secondary"
)

// EventRepository implements secondary.EventRepository with SQLite. The
// events table is append-only; rows are never updated or deleted.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventSelectCols = "id, actor, entity_type, entity_id, action, detail, created_at"

// scanEvent scans an event row into an EventRecord.
func scanEvent(scanner interface {
	Scan(dest ...any) error
}) (*secondary.EventRecord, error) {
	var (
		detail    sql.NullString
		createdAt sql.NullTime
	)

	record := &secondary.EventRecord{}
	err := scanner.Scan(&record.ID, &record.Actor, &record.EntityType, &record.EntityID, &record.Action, &detail, &createdAt)
	if err != nil {
		return nil, err
	}

	record.Detail = detail.String
	if createdAt.Valid {
		record.CreatedAt = createdAt.Time
	}

	return record, nil
}

// Record appends an event.
func (r *EventRepository) Record(ctx context.Context, event *secondary.EventRecord) error {
	var detail sql.NullString
	if event.Detail != "" {
		detail = sql.NullString{String: event.Detail, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO events (actor, entity_type, entity_id, action, detail) VALUES (?, ?, ?, ?, ?)",
		event.Actor, event.EntityType, event.EntityID, event.Action, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return nil
}

// ListRecent returns the newest events, most recent first.
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]*secondary.EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+eventSelectCols+" FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListForEntity returns the newest events for one entity.
func (r *EventRepository) ListForEntity(ctx context.Context, entityType, entityID string, limit int) ([]*secondary.EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+eventSelectCols+" FROM events WHERE entity_type = ? AND entity_id = ? ORDER BY id DESC LIMIT ?",
		entityType, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*secondary.EventRecord, error) {
	var records []*secondary.EventRecord
	for rows.Next() {
		record, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Verify interface compliance at compile time.
var _ secondary.EventRepository = (*EventRepository)(nil)

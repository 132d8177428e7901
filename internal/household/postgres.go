package household

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the household tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS calendar_events (
    id           TEXT PRIMARY KEY,
    household_id TEXT NOT NULL,
    title        TEXT NOT NULL,
    starts_at    TIMESTAMPTZ NOT NULL,
    attributes   JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_calendar_events_household ON calendar_events(household_id, starts_at);

CREATE TABLE IF NOT EXISTS list_items (
    id           TEXT PRIMARY KEY,
    household_id TEXT NOT NULL,
    list_name    TEXT NOT NULL DEFAULT 'shopping',
    item         TEXT NOT NULL,
    done         BOOLEAN NOT NULL DEFAULT false,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_list_items_household ON list_items(household_id, list_name);

CREATE TABLE IF NOT EXISTS budget_entries (
    id           TEXT PRIMARY KEY,
    household_id TEXT NOT NULL,
    category     TEXT NOT NULL DEFAULT '',
    amount       NUMERIC(12,2) NOT NULL,
    note         TEXT NOT NULL DEFAULT '',
    spent_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_budget_entries_household ON budget_entries(household_id, spent_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements CalendarStore, ListStore, and BudgetStore against
// a PostgreSQL database.
type PostgresStore struct {
	db DB
}

var _ CalendarStore = (*PostgresStore)(nil)
var _ ListStore = (*PostgresStore)(nil)
var _ BudgetStore = (*PostgresStore)(nil)

// NewPostgresStore creates a store using the given connection or pool. The
// caller is responsible for calling [PostgresStore.Migrate] before issuing
// queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the tables and indexes if they
// do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("household: migrate: %w", err)
	}
	return nil
}

// AddEvent implements CalendarStore.
func (s *PostgresStore) AddEvent(ctx context.Context, event *CalendarEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	event.ID = ensureID(event.ID)

	attrJSON, err := json.Marshal(emptyMap(event.Attributes))
	if err != nil {
		return fmt.Errorf("household: marshal attributes: %w", err)
	}

	const query = `
		INSERT INTO calendar_events (id, household_id, title, starts_at, attributes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		event.ID, event.HouseholdID, event.Title, event.StartsAt, attrJSON,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("household: event %q: %w", event.ID, ErrDuplicateID)
		}
		return fmt.Errorf("household: add event: %w", err)
	}
	return nil
}

// UpcomingEvents implements CalendarStore.
func (s *PostgresStore) UpcomingEvents(ctx context.Context, householdID string, from time.Time, limit int) ([]CalendarEvent, error) {
	const query = `
		SELECT id, household_id, title, starts_at, attributes, created_at, updated_at
		FROM calendar_events
		WHERE household_id = $1 AND starts_at >= $2
		ORDER BY starts_at
		LIMIT $3`

	rows, err := s.db.Query(ctx, query, householdID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("household: upcoming events: %w", err)
	}
	defer rows.Close()

	var events []CalendarEvent
	for rows.Next() {
		var e CalendarEvent
		var attrJSON []byte
		if err := rows.Scan(&e.ID, &e.HouseholdID, &e.Title, &e.StartsAt,
			&attrJSON, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("household: scan event: %w", err)
		}
		if err := json.Unmarshal(attrJSON, &e.Attributes); err != nil {
			return nil, fmt.Errorf("household: unmarshal attributes: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("household: upcoming events: %w", err)
	}
	return events, nil
}

// DeleteEvent implements CalendarStore.
func (s *PostgresStore) DeleteEvent(ctx context.Context, householdID, id string) error {
	const query = `DELETE FROM calendar_events WHERE household_id = $1 AND id = $2`
	if _, err := s.db.Exec(ctx, query, householdID, id); err != nil {
		return fmt.Errorf("household: delete event %q: %w", id, err)
	}
	return nil
}

// AddItem implements ListStore.
func (s *PostgresStore) AddItem(ctx context.Context, item *ListItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	item.ID = ensureID(item.ID)
	if item.ListName == "" {
		item.ListName = DefaultListName
	}

	const query = `
		INSERT INTO list_items (id, household_id, list_name, item, done)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		item.ID, item.HouseholdID, item.ListName, item.Item, item.Done,
	).Scan(&item.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("household: list item %q: %w", item.ID, ErrDuplicateID)
		}
		return fmt.Errorf("household: add item: %w", err)
	}
	return nil
}

// Items implements ListStore.
func (s *PostgresStore) Items(ctx context.Context, householdID, listName string) ([]ListItem, error) {
	if listName == "" {
		listName = DefaultListName
	}
	const query = `
		SELECT id, household_id, list_name, item, done, created_at
		FROM list_items
		WHERE household_id = $1 AND list_name = $2 AND NOT done
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, householdID, listName)
	if err != nil {
		return nil, fmt.Errorf("household: items: %w", err)
	}
	defer rows.Close()

	var items []ListItem
	for rows.Next() {
		var i ListItem
		if err := rows.Scan(&i.ID, &i.HouseholdID, &i.ListName, &i.Item,
			&i.Done, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("household: scan item: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("household: items: %w", err)
	}
	return items, nil
}

// MarkDone implements ListStore.
func (s *PostgresStore) MarkDone(ctx context.Context, householdID, id string) error {
	const query = `UPDATE list_items SET done = true WHERE household_id = $1 AND id = $2`
	tag, err := s.db.Exec(ctx, query, householdID, id)
	if err != nil {
		return fmt.Errorf("household: mark done %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("household: list item %q not found", id)
	}
	return nil
}

// AddEntry implements BudgetStore.
func (s *PostgresStore) AddEntry(ctx context.Context, entry *BudgetEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	entry.ID = ensureID(entry.ID)
	if entry.SpentAt.IsZero() {
		entry.SpentAt = time.Now()
	}

	const query = `
		INSERT INTO budget_entries (id, household_id, category, amount, note, spent_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		entry.ID, entry.HouseholdID, entry.Category, entry.Amount, entry.Note, entry.SpentAt,
	).Scan(&entry.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("household: budget entry %q: %w", entry.ID, ErrDuplicateID)
		}
		return fmt.Errorf("household: add entry: %w", err)
	}
	return nil
}

// TotalSince implements BudgetStore.
func (s *PostgresStore) TotalSince(ctx context.Context, householdID string, since time.Time) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM budget_entries
		WHERE household_id = $1 AND spent_at >= $2`

	var total float64
	if err := s.db.QueryRow(ctx, query, householdID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("household: total since: %w", err)
	}
	return total, nil
}

// EntriesSince implements BudgetStore.
func (s *PostgresStore) EntriesSince(ctx context.Context, householdID string, since time.Time) ([]BudgetEntry, error) {
	const query = `
		SELECT id, household_id, category, amount, note, spent_at, created_at
		FROM budget_entries
		WHERE household_id = $1 AND spent_at >= $2
		ORDER BY spent_at DESC`

	rows, err := s.db.Query(ctx, query, householdID, since)
	if err != nil {
		return nil, fmt.Errorf("household: entries since: %w", err)
	}
	defer rows.Close()

	var entries []BudgetEntry
	for rows.Next() {
		var b BudgetEntry
		if err := rows.Scan(&b.ID, &b.HouseholdID, &b.Category, &b.Amount,
			&b.Note, &b.SpentAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("household: scan entry: %w", err)
		}
		entries = append(entries, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("household: entries since: %w", err)
	}
	return entries, nil
}

// emptyMap returns m if non-nil, otherwise an empty non-nil map so JSON
// marshalling produces "{}" instead of "null".
func emptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// isDuplicateKeyError checks whether a PostgreSQL error is a
// unique-violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

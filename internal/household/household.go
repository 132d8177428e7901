// Package household holds the shared data the assistant's actions operate
// on: calendar events, named lists (shopping, chores), and budget entries.
//
// Action handlers depend on the narrow per-concern store interfaces, not on
// a concrete backend. PostgresStore implements all three against a single
// database; MemStore backs tests and credential-less deployments.
package household

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CalendarEvent is one scheduled entry on the household calendar.
type CalendarEvent struct {
	ID          string         `json:"id"`
	HouseholdID string         `json:"householdId"`
	Title       string         `json:"title"`
	StartsAt    time.Time      `json:"startsAt"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Validate checks the fields required before persistence.
func (e *CalendarEvent) Validate() error {
	var problems []string
	if strings.TrimSpace(e.Title) == "" {
		problems = append(problems, "title must not be empty")
	}
	if e.HouseholdID == "" {
		problems = append(problems, "householdId must not be empty")
	}
	if e.StartsAt.IsZero() {
		problems = append(problems, "startsAt must be set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("household: invalid event: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ListItem is one entry on a named household list.
type ListItem struct {
	ID          string    `json:"id"`
	HouseholdID string    `json:"householdId"`
	ListName    string    `json:"listName"`
	Item        string    `json:"item"`
	Done        bool      `json:"done"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate checks the fields required before persistence.
func (i *ListItem) Validate() error {
	var problems []string
	if strings.TrimSpace(i.Item) == "" {
		problems = append(problems, "item must not be empty")
	}
	if i.HouseholdID == "" {
		problems = append(problems, "householdId must not be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("household: invalid list item: %s", strings.Join(problems, "; "))
	}
	return nil
}

// BudgetEntry is one recorded expense.
type BudgetEntry struct {
	ID          string    `json:"id"`
	HouseholdID string    `json:"householdId"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	Note        string    `json:"note,omitempty"`
	SpentAt     time.Time `json:"spentAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate checks the fields required before persistence.
func (b *BudgetEntry) Validate() error {
	var problems []string
	if b.HouseholdID == "" {
		problems = append(problems, "householdId must not be empty")
	}
	if b.Amount <= 0 {
		problems = append(problems, "amount must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("household: invalid budget entry: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ErrDuplicateID is returned when creating a record whose ID already exists.
var ErrDuplicateID = errors.New("household: id already exists")

// DefaultListName is used when an utterance names no specific list.
const DefaultListName = "shopping"

// CalendarStore persists calendar events.
type CalendarStore interface {
	// AddEvent inserts event, assigning an ID when empty, and fills the
	// timestamp fields.
	AddEvent(ctx context.Context, event *CalendarEvent) error

	// UpcomingEvents returns events starting at or after from, soonest
	// first, capped at limit.
	UpcomingEvents(ctx context.Context, householdID string, from time.Time, limit int) ([]CalendarEvent, error)

	// DeleteEvent removes an event; deleting a missing event is not an error.
	DeleteEvent(ctx context.Context, householdID, id string) error
}

// ListStore persists named household lists.
type ListStore interface {
	// AddItem inserts item, assigning an ID when empty.
	AddItem(ctx context.Context, item *ListItem) error

	// Items returns the open items on the named list, oldest first.
	Items(ctx context.Context, householdID, listName string) ([]ListItem, error)

	// MarkDone flags an item as completed.
	MarkDone(ctx context.Context, householdID, id string) error
}

// BudgetStore persists expenses and answers spending queries.
type BudgetStore interface {
	// AddEntry inserts entry, assigning an ID when empty.
	AddEntry(ctx context.Context, entry *BudgetEntry) error

	// TotalSince sums spending at or after since.
	TotalSince(ctx context.Context, householdID string, since time.Time) (float64, error)

	// EntriesSince returns entries at or after since, newest first.
	EntriesSince(ctx context.Context, householdID string, since time.Time) ([]BudgetEntry, error)
}

// ensureID assigns a fresh UUID when id is empty.
func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

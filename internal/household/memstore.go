package household

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-process implementation of all three store interfaces,
// used by tests and by deployments without a database configured.
type MemStore struct {
	mu      sync.RWMutex
	events  map[string]CalendarEvent
	items   map[string]ListItem
	entries map[string]BudgetEntry
	now     func() time.Time
}

var _ CalendarStore = (*MemStore)(nil)
var _ ListStore = (*MemStore)(nil)
var _ BudgetStore = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		events:  make(map[string]CalendarEvent),
		items:   make(map[string]ListItem),
		entries: make(map[string]BudgetEntry),
		now:     time.Now,
	}
}

// AddEvent implements CalendarStore.
func (m *MemStore) AddEvent(_ context.Context, event *CalendarEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	event.ID = ensureID(event.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[event.ID]; exists {
		return fmt.Errorf("household: event %q: %w", event.ID, ErrDuplicateID)
	}
	now := m.now()
	event.CreatedAt = now
	event.UpdatedAt = now
	m.events[event.ID] = *event
	return nil
}

// UpcomingEvents implements CalendarStore.
func (m *MemStore) UpcomingEvents(_ context.Context, householdID string, from time.Time, limit int) ([]CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []CalendarEvent
	for _, e := range m.events {
		if e.HouseholdID == householdID && !e.StartsAt.Before(from) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// DeleteEvent implements CalendarStore.
func (m *MemStore) DeleteEvent(_ context.Context, householdID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[id]; ok && e.HouseholdID == householdID {
		delete(m.events, id)
	}
	return nil
}

// AddItem implements ListStore.
func (m *MemStore) AddItem(_ context.Context, item *ListItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	item.ID = ensureID(item.ID)
	if item.ListName == "" {
		item.ListName = DefaultListName
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[item.ID]; exists {
		return fmt.Errorf("household: list item %q: %w", item.ID, ErrDuplicateID)
	}
	item.CreatedAt = m.now()
	m.items[item.ID] = *item
	return nil
}

// Items implements ListStore.
func (m *MemStore) Items(_ context.Context, householdID, listName string) ([]ListItem, error) {
	if listName == "" {
		listName = DefaultListName
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []ListItem
	for _, i := range m.items {
		if i.HouseholdID == householdID && i.ListName == listName && !i.Done {
			items = append(items, i)
		}
	}
	sort.Slice(items, func(a, b int) bool {
		return items[a].CreatedAt.Before(items[b].CreatedAt)
	})
	return items, nil
}

// MarkDone implements ListStore.
func (m *MemStore) MarkDone(_ context.Context, householdID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.items[id]
	if !ok || i.HouseholdID != householdID {
		return fmt.Errorf("household: list item %q not found", id)
	}
	i.Done = true
	m.items[id] = i
	return nil
}

// AddEntry implements BudgetStore.
func (m *MemStore) AddEntry(_ context.Context, entry *BudgetEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	entry.ID = ensureID(entry.ID)
	if entry.SpentAt.IsZero() {
		entry.SpentAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[entry.ID]; exists {
		return fmt.Errorf("household: budget entry %q: %w", entry.ID, ErrDuplicateID)
	}
	entry.CreatedAt = m.now()
	m.entries[entry.ID] = *entry
	return nil
}

// TotalSince implements BudgetStore.
func (m *MemStore) TotalSince(_ context.Context, householdID string, since time.Time) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, b := range m.entries {
		if b.HouseholdID == householdID && !b.SpentAt.Before(since) {
			total += b.Amount
		}
	}
	return total, nil
}

// EntriesSince implements BudgetStore.
func (m *MemStore) EntriesSince(_ context.Context, householdID string, since time.Time) ([]BudgetEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []BudgetEntry
	for _, b := range m.entries {
		if b.HouseholdID == householdID && !b.SpentAt.Before(since) {
			entries = append(entries, b)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SpentAt.After(entries[j].SpentAt)
	})
	return entries, nil
}

package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariahome/aria/internal/household"
	"github.com/ariahome/aria/internal/intent"
)

// Forecaster is the external weather collaborator.
type Forecaster interface {
	// Forecast returns a speakable weather summary for location, which may
	// be empty for "here".
	Forecast(ctx context.Context, location string) (string, error)
}

// WeatherHandler answers weather questions through a Forecaster.
type WeatherHandler struct {
	forecaster Forecaster
}

var _ Handler = (*WeatherHandler)(nil)

// NewWeatherHandler creates a WeatherHandler. forecaster may be nil, in
// which case the handler reports the service as unavailable.
func NewWeatherHandler(forecaster Forecaster) *WeatherHandler {
	return &WeatherHandler{forecaster: forecaster}
}

func (h *WeatherHandler) Name() string { return "weather" }

func (h *WeatherHandler) CanHandle(a intent.Analysis) bool {
	return a.Category == intent.CategoryWeather
}

func (h *WeatherHandler) Execute(ctx context.Context, a intent.Analysis, _ Context) (Result, error) {
	if h.forecaster == nil {
		return Result{
			Success: false,
			Message: "I can't reach the weather service right now.",
			Error:   "no forecaster configured",
		}, nil
	}

	location := a.Entities["location"]
	summary, err := h.forecaster.Forecast(ctx, location)
	if err != nil {
		return Result{}, fmt.Errorf("action: weather lookup: %w", err)
	}
	return Result{Success: true, Message: summary, Data: map[string]string{"location": location}}, nil
}

// CalendarHandler reads and writes the household calendar.
type CalendarHandler struct {
	store household.CalendarStore
	now   func() time.Time
}

var _ Handler = (*CalendarHandler)(nil)

// NewCalendarHandler creates a CalendarHandler backed by store.
func NewCalendarHandler(store household.CalendarStore) *CalendarHandler {
	return &CalendarHandler{store: store, now: time.Now}
}

func (h *CalendarHandler) Name() string { return "calendar" }

func (h *CalendarHandler) CanHandle(a intent.Analysis) bool {
	return a.Category == intent.CategoryCalendar
}

func (h *CalendarHandler) Execute(ctx context.Context, a intent.Analysis, actx Context) (Result, error) {
	if op, _ := a.ActionPayload["operation"].(string); op == "add" {
		return h.addEvent(ctx, a, actx)
	}
	return h.viewEvents(ctx, actx)
}

func (h *CalendarHandler) addEvent(ctx context.Context, a intent.Analysis, actx Context) (Result, error) {
	title := a.Entities["title"]
	if title == "" {
		title = "New appointment"
	}
	starts, err := resolveWhen(h.now(), a.Entities["date"], a.Entities["time"])
	if err != nil {
		return Result{Success: true, Message: "What day should I schedule that for?"}, nil
	}

	event := &household.CalendarEvent{
		HouseholdID: actx.HouseholdID,
		Title:       title,
		StartsAt:    starts,
	}
	if err := h.store.AddEvent(ctx, event); err != nil {
		return Result{}, fmt.Errorf("action: add event: %w", err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("I've added %s to your calendar for %s.",
			title, starts.Format("Monday at 3:04 PM")),
		Data: event,
	}, nil
}

func (h *CalendarHandler) viewEvents(ctx context.Context, actx Context) (Result, error) {
	events, err := h.store.UpcomingEvents(ctx, actx.HouseholdID, h.now(), 5)
	if err != nil {
		return Result{}, fmt.Errorf("action: upcoming events: %w", err)
	}
	if len(events) == 0 {
		return Result{Success: true, Message: "Your calendar is clear."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You have %d upcoming event", len(events))
	if len(events) > 1 {
		sb.WriteString("s")
	}
	sb.WriteString(": ")
	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s on %s", e.Title, e.StartsAt.Format("Monday"))
	}
	sb.WriteString(".")
	return Result{Success: true, Message: sb.String(), Data: events}, nil
}

// resolveWhen turns the extracted date/time words into a concrete timestamp.
func resolveWhen(now time.Time, date, timeOfDay string) (time.Time, error) {
	if date == "" {
		return time.Time{}, fmt.Errorf("action: no date given")
	}

	day := now
	switch strings.ToLower(date) {
	case "today":
	case "tomorrow":
		day = now.AddDate(0, 0, 1)
	default:
		matched := false
		for i := 1; i <= 7; i++ {
			candidate := now.AddDate(0, 0, i)
			if strings.EqualFold(candidate.Weekday().String(), date) {
				day = candidate
				matched = true
				break
			}
		}
		if !matched {
			return time.Time{}, fmt.Errorf("action: unrecognized date %q", date)
		}
	}

	hour := 9 // default morning slot
	if timeOfDay != "" {
		if h, ok := parseHour(timeOfDay); ok {
			hour = h
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location()), nil
}

// parseHour understands "3pm", "10am", and bare "15".
func parseHour(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	pm := strings.HasSuffix(s, "pm")
	am := strings.HasSuffix(s, "am")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "pm"), "am")
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}

	var h int
	if _, err := fmt.Sscanf(s, "%d", &h); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 {
		return 0, false
	}
	if pm && h < 12 {
		h += 12
	}
	if am && h == 12 {
		h = 0
	}
	return h, true
}

// ListHandler views and mutates household lists.
type ListHandler struct {
	store household.ListStore
}

var _ Handler = (*ListHandler)(nil)

// NewListHandler creates a ListHandler backed by store.
func NewListHandler(store household.ListStore) *ListHandler {
	return &ListHandler{store: store}
}

func (h *ListHandler) Name() string { return "list" }

func (h *ListHandler) CanHandle(a intent.Analysis) bool {
	return a.Category == intent.CategoryList
}

func (h *ListHandler) Execute(ctx context.Context, a intent.Analysis, actx Context) (Result, error) {
	if op, _ := a.ActionPayload["operation"].(string); op == "add" {
		item := a.Entities["item"]
		if item == "" {
			return Result{Success: true, Message: "What would you like me to add to the list?"}, nil
		}
		li := &household.ListItem{HouseholdID: actx.HouseholdID, Item: item}
		if err := h.store.AddItem(ctx, li); err != nil {
			return Result{}, fmt.Errorf("action: add list item: %w", err)
		}
		return Result{
			Success: true,
			Message: fmt.Sprintf("I've added %s to your %s list.", item, li.ListName),
			Data:    li,
		}, nil
	}

	items, err := h.store.Items(ctx, actx.HouseholdID, "")
	if err != nil {
		return Result{}, fmt.Errorf("action: list items: %w", err)
	}
	if len(items) == 0 {
		return Result{Success: true, Message: "Your list is empty."}, nil
	}

	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Item
	}
	return Result{
		Success:   true,
		Message:   fmt.Sprintf("Your list has %d items: %s.", len(items), strings.Join(names, ", ")),
		Data:      items,
		ModalType: "list",
	}, nil
}

// BudgetHandler answers spending queries.
type BudgetHandler struct {
	store household.BudgetStore
	now   func() time.Time
}

var _ Handler = (*BudgetHandler)(nil)

// NewBudgetHandler creates a BudgetHandler backed by store.
func NewBudgetHandler(store household.BudgetStore) *BudgetHandler {
	return &BudgetHandler{store: store, now: time.Now}
}

func (h *BudgetHandler) Name() string { return "budget" }

func (h *BudgetHandler) CanHandle(a intent.Analysis) bool {
	return a.Category == intent.CategorySpending
}

func (h *BudgetHandler) Execute(ctx context.Context, a intent.Analysis, actx Context) (Result, error) {
	now := h.now()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	total, err := h.store.TotalSince(ctx, actx.HouseholdID, since)
	if err != nil {
		return Result{}, fmt.Errorf("action: total spending: %w", err)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("You've spent %.2f this month.", total),
		Data:    map[string]any{"total": total, "since": since},
	}, nil
}

// NavigationHandler turns navigation intents into UI navigation targets.
type NavigationHandler struct{}

var _ Handler = (*NavigationHandler)(nil)

// NewNavigationHandler creates a NavigationHandler.
func NewNavigationHandler() *NavigationHandler { return &NavigationHandler{} }

func (h *NavigationHandler) Name() string { return "navigation" }

func (h *NavigationHandler) CanHandle(a intent.Analysis) bool {
	return a.Category == intent.CategoryNavigation
}

func (h *NavigationHandler) Execute(_ context.Context, a intent.Analysis, _ Context) (Result, error) {
	target, _ := a.ActionPayload["target"].(string)
	if target == "" {
		target = strings.ToLower(a.Entities["destination"])
	}
	if target == "" {
		return Result{Success: true, Message: "Where would you like to go?"}, nil
	}
	return Result{
		Success:          true,
		Message:          fmt.Sprintf("Taking you to %s.", target),
		NavigationTarget: "/" + strings.ReplaceAll(target, " ", "-"),
	}, nil
}

// SettingsHandler opens the settings surface.
type SettingsHandler struct{}

var _ Handler = (*SettingsHandler)(nil)

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler() *SettingsHandler { return &SettingsHandler{} }

func (h *SettingsHandler) Name() string { return "settings" }

func (h *SettingsHandler) CanHandle(a intent.Analysis) bool {
	return a.Category == intent.CategorySettings
}

func (h *SettingsHandler) Execute(_ context.Context, _ intent.Analysis, _ Context) (Result, error) {
	return Result{
		Success:          true,
		Message:          "Opening your settings.",
		NavigationTarget: "/settings",
		ModalType:        "settings",
	}, nil
}

// SmalltalkHandler answers greetings and chit-chat without external I/O.
type SmalltalkHandler struct{}

var _ Handler = (*SmalltalkHandler)(nil)

// NewSmalltalkHandler creates a SmalltalkHandler.
func NewSmalltalkHandler() *SmalltalkHandler { return &SmalltalkHandler{} }

func (h *SmalltalkHandler) Name() string { return "smalltalk" }

func (h *SmalltalkHandler) CanHandle(a intent.Analysis) bool {
	return a.Category == intent.CategoryGreeting || a.Type == intent.TypeConversation
}

func (h *SmalltalkHandler) Execute(_ context.Context, a intent.Analysis, actx Context) (Result, error) {
	msg := a.SuggestedResponse
	if msg == "" {
		if actx.UserName != "" {
			msg = fmt.Sprintf("Hello %s! How can I help?", actx.UserName)
		} else {
			msg = "Hello! How can I help?"
		}
	}
	return Result{Success: true, Message: msg}, nil
}

// FallbackHandler is the catch-all: it accepts everything and always
// succeeds with a generic response, so routing can never come up empty.
type FallbackHandler struct{}

var _ Handler = (*FallbackHandler)(nil)

// NewFallbackHandler creates a FallbackHandler.
func NewFallbackHandler() *FallbackHandler { return &FallbackHandler{} }

func (h *FallbackHandler) Name() string { return "fallback" }

func (h *FallbackHandler) CanHandle(intent.Analysis) bool { return true }

func (h *FallbackHandler) Execute(_ context.Context, a intent.Analysis, _ Context) (Result, error) {
	if a.SuggestedResponse != "" {
		return Result{Success: true, Message: a.SuggestedResponse}, nil
	}
	return Result{
		Success: true,
		Message: "I'm not sure how to help with that yet, but I'm learning new things all the time.",
	}, nil
}

package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/CrowderSoup/taskdash/database"
)

const (
	EventMeeting     = "Meeting"
	EventBirthday    = "Birthday"
	EventHoliday     = "Holiday"
	EventTask        = "Task"
	EventAppointment = "Appointment"
	EventReminder    = "Reminder"
	EventOther       = "Other"

	StatusConfirmed = "Confirmed"
	StatusTentative = "Tentative"
	StatusCancelled = "Cancelled"

	RepeatNone    = "None"
	RepeatDaily   = "Daily"
	RepeatWeekly  = "Weekly"
	RepeatMonthly = "Monthly"
	RepeatYearly  = "Yearly"
)

const (
	maxEventTitle       = 200
	maxEventDescription = 1000
)

var (
	eventTypes    = []string{EventMeeting, EventBirthday, EventHoliday, EventTask, EventAppointment, EventReminder, EventOther}
	eventStatuses = []string{StatusConfirmed, StatusTentative, StatusCancelled}
	eventRepeats  = []string{RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatYearly}
)

// EventChange is passed to the change hook after a successful write.
type EventChange struct {
	Action string         `json:"action"`
	Event  database.Event `json:"event"`
}

// EventService manages the shared calendar under events/{id}.
type EventService struct {
	store    database.Store
	logger   *log.Logger
	now      func() time.Time
	onChange func(EventChange)
}

func NewEventService(store database.Store, logger *log.Logger) *EventService {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &EventService{store: store, logger: logger, now: time.Now}
}

// OnChange registers fn to be called after every create, update and delete.
func (s *EventService) OnChange(fn func(EventChange)) {
	s.onChange = fn
}

func (s *EventService) notify(action string, ev database.Event) {
	if s.onChange != nil {
		s.onChange(EventChange{Action: action, Event: ev})
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// normalizeEvent fills defaults and validates ev in place.
func normalizeEvent(ev *database.Event) error {
	ev.Title = strings.TrimSpace(ev.Title)
	var problems []string
	if ev.Title == "" {
		problems = append(problems, "event title is required")
	}
	if len(ev.Title) > maxEventTitle {
		problems = append(problems, fmt.Sprintf("event title cannot exceed %d characters", maxEventTitle))
	}
	if len(ev.Description) > maxEventDescription {
		problems = append(problems, fmt.Sprintf("description cannot exceed %d characters", maxEventDescription))
	}

	if ev.EndDate == "" {
		ev.EndDate = ev.StartDate
	}
	if ev.EndTime == "" {
		ev.EndTime = ev.StartTime
	}
	if ev.EventType == "" {
		ev.EventType = EventOther
	}
	if ev.Status == "" {
		ev.Status = StatusConfirmed
	}
	if ev.Recurrence == "" {
		ev.Recurrence = RepeatNone
	}

	start, err := time.Parse(dateLayout, ev.StartDate)
	if err != nil {
		problems = append(problems, "start date is required")
	} else if end, err := time.Parse(dateLayout, ev.EndDate); err != nil {
		problems = append(problems, "end date is invalid")
	} else if end.Before(start) {
		problems = append(problems, "end date is before start date")
	}
	if !ev.IsAllDay && ev.StartTime == "" {
		problems = append(problems, "start time is required")
	}
	if !contains(eventTypes, ev.EventType) {
		problems = append(problems, fmt.Sprintf("unknown event type %q", ev.EventType))
	}
	if !contains(eventStatuses, ev.Status) {
		problems = append(problems, fmt.Sprintf("unknown status %q", ev.Status))
	}
	if !contains(eventRepeats, ev.Recurrence) {
		problems = append(problems, fmt.Sprintf("unknown recurrence %q", ev.Recurrence))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, ", "))
	}
	return nil
}

// Create stores a new event on behalf of actor.
func (s *EventService) Create(ctx context.Context, actor string, ev database.Event) (database.Event, error) {
	if actor == "" {
		return database.Event{}, ErrUnauthenticated
	}
	if err := normalizeEvent(&ev); err != nil {
		return database.Event{}, err
	}
	ev.ID = database.NewKey()
	if ev.UserID == "" {
		ev.UserID = actor
	}
	ev.CreatedBy = actor
	ev.CreatedAt = s.now().UTC().Format(time.RFC3339)
	ev.UpdatedBy, ev.UpdatedAt = "", ""

	if err := s.store.Write(ctx, database.EventPath(ev.ID), ev); err != nil {
		s.logger.Printf("Create event failed: %v", err)
		return database.Event{}, fmt.Errorf("failed to create event: %w", err)
	}
	s.logger.Printf("Event created: %s", ev.ID)
	s.notify("created", ev)
	return ev, nil
}

// Update replaces the editable fields of an event. The creator and owning
// user are preserved.
func (s *EventService) Update(ctx context.Context, actor, id string, ev database.Event) (database.Event, error) {
	if actor == "" {
		return database.Event{}, ErrUnauthenticated
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return database.Event{}, err
	}
	if err := normalizeEvent(&ev); err != nil {
		return database.Event{}, err
	}
	ev.ID = id
	ev.UserID = existing.UserID
	ev.CreatedBy = existing.CreatedBy
	ev.CreatedAt = existing.CreatedAt
	ev.UpdatedBy = actor
	ev.UpdatedAt = s.now().UTC().Format(time.RFC3339)

	if err := s.store.Write(ctx, database.EventPath(id), ev); err != nil {
		s.logger.Printf("Update event %s failed: %v", id, err)
		return database.Event{}, fmt.Errorf("failed to update event: %w", err)
	}
	s.notify("updated", ev)
	return ev, nil
}

func (s *EventService) Delete(ctx context.Context, actor, id string) error {
	if actor == "" {
		return ErrUnauthenticated
	}
	ev, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, database.EventPath(id)); err != nil {
		s.logger.Printf("Delete event %s failed: %v", id, err)
		return fmt.Errorf("failed to delete event: %w", err)
	}
	s.notify("deleted", ev)
	return nil
}

func (s *EventService) Get(ctx context.Context, id string) (database.Event, error) {
	if err := validKey("event id", id); err != nil {
		return database.Event{}, err
	}
	snap, err := s.store.Read(ctx, database.EventPath(id))
	if err != nil {
		return database.Event{}, fmt.Errorf("failed to read event: %w", err)
	}
	if !snap.Exists() {
		return database.Event{}, ErrNotFound
	}
	var ev database.Event
	if err := snap.Decode(&ev); err != nil {
		return database.Event{}, err
	}
	ev.ID = id
	return ev, nil
}

// List returns all events ordered by start date and time.
func (s *EventService) List(ctx context.Context) ([]database.Event, error) {
	return s.list(ctx, func(database.Event) bool { return true })
}

func (s *EventService) ListByUser(ctx context.Context, uid string) ([]database.Event, error) {
	return s.list(ctx, func(ev database.Event) bool { return ev.UserID == uid })
}

func (s *EventService) list(ctx context.Context, keep func(database.Event) bool) ([]database.Event, error) {
	snap, err := s.store.Read(ctx, database.EventsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	events := []database.Event{}
	for _, id := range snap.ChildKeys() {
		var ev database.Event
		if err := snap.Child(id).Decode(&ev); err != nil {
			s.logger.Printf("Skipping unreadable event %s: %v", id, err)
			continue
		}
		ev.ID = id
		if keep(ev) {
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].StartDate != events[j].StartDate {
			return events[i].StartDate < events[j].StartDate
		}
		return events[i].StartTime < events[j].StartTime
	})
	return events, nil
}

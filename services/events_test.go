package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrowderSoup/taskdash/database"
)

func newEventService(t *testing.T) (*EventService, *[]EventChange) {
	t.Helper()
	events := NewEventService(newTestStore(t), nil)
	events.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	var changes []EventChange
	events.OnChange(func(c EventChange) { changes = append(changes, c) })
	return events, &changes
}

func TestCreateEventDefaults(t *testing.T) {
	events, changes := newEventService(t)
	ctx := context.Background()

	ev, err := events.Create(ctx, "u1", database.Event{Title: " Team sync ", StartDate: "2026-03-02", StartTime: "10:00"})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "Team sync", ev.Title)
	assert.Equal(t, "2026-03-02", ev.EndDate)
	assert.Equal(t, "10:00", ev.EndTime)
	assert.Equal(t, EventOther, ev.EventType)
	assert.Equal(t, StatusConfirmed, ev.Status)
	assert.Equal(t, RepeatNone, ev.Recurrence)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "u1", ev.CreatedBy)
	assert.Equal(t, "2026-03-01T08:00:00Z", ev.CreatedAt)

	stored, err := events.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev, stored)

	require.Len(t, *changes, 1)
	assert.Equal(t, "created", (*changes)[0].Action)
}

func TestCreateEventValidation(t *testing.T) {
	events, changes := newEventService(t)
	ctx := context.Background()

	cases := map[string]database.Event{
		"missing title":     {StartDate: "2026-03-02", StartTime: "10:00"},
		"missing start":     {Title: "x", StartTime: "10:00"},
		"end before start":  {Title: "x", StartDate: "2026-03-02", EndDate: "2026-03-01", StartTime: "10:00"},
		"missing time":      {Title: "x", StartDate: "2026-03-02"},
		"unknown type":      {Title: "x", StartDate: "2026-03-02", IsAllDay: true, EventType: "Party"},
		"unknown status":    {Title: "x", StartDate: "2026-03-02", IsAllDay: true, Status: "Maybe"},
		"unknown recurring": {Title: "x", StartDate: "2026-03-02", IsAllDay: true, Recurrence: "Hourly"},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := events.Create(ctx, "u1", ev)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := events.Create(ctx, "", database.Event{Title: "x", StartDate: "2026-03-02", IsAllDay: true})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, *changes)
}

func TestUpdateEventKeepsCreator(t *testing.T) {
	events, changes := newEventService(t)
	ctx := context.Background()
	ev, err := events.Create(ctx, "u1", database.Event{Title: "Launch", StartDate: "2026-04-01", IsAllDay: true, EventType: EventMeeting})
	require.NoError(t, err)

	updated, err := events.Update(ctx, "u2", ev.ID, database.Event{Title: "Launch day", StartDate: "2026-04-02", IsAllDay: true, EventType: EventMeeting, UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "Launch day", updated.Title)
	assert.Equal(t, "u1", updated.UserID)
	assert.Equal(t, "u1", updated.CreatedBy)
	assert.Equal(t, "u2", updated.UpdatedBy)
	assert.Equal(t, ev.CreatedAt, updated.CreatedAt)

	_, err = events.Update(ctx, "u2", "missing", database.Event{Title: "x", StartDate: "2026-04-02", IsAllDay: true})
	assert.ErrorIs(t, err, ErrNotFound)

	require.Len(t, *changes, 2)
	assert.Equal(t, "updated", (*changes)[1].Action)
}

func TestListAndDeleteEvents(t *testing.T) {
	events, changes := newEventService(t)
	ctx := context.Background()
	late, err := events.Create(ctx, "u1", database.Event{Title: "Late", StartDate: "2026-05-01", IsAllDay: true})
	require.NoError(t, err)
	_, err = events.Create(ctx, "u2", database.Event{Title: "Early", StartDate: "2026-04-01", StartTime: "09:00"})
	require.NoError(t, err)

	all, err := events.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Early", all[0].Title)
	assert.Equal(t, "Late", all[1].Title)

	mine, err := events.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, late.ID, mine[0].ID)

	require.NoError(t, events.Delete(ctx, "u1", late.ID))
	assert.ErrorIs(t, events.Delete(ctx, "u1", late.ID), ErrNotFound)

	all, err = events.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "deleted", (*changes)[len(*changes)-1].Action)
}

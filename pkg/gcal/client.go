// Package gcal exposes a named Google Calendar as the calendar-side store of
// the sync engine.
package gcal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/twgcal/pkg/aggregator"
	"github.com/harrisonrobin/twgcal/pkg/auth"
)

var (
	_ aggregator.Side[*calendar.Event]   = (*Client)(nil)
	_ aggregator.Finder[*calendar.Event] = (*Client)(nil)
)

// taskIDProperty is the private extended property that links an event back
// to the taskwarrior uuid it was synthesized from.
const taskIDProperty = "taskwarrior_id"

// Client is a Google Calendar API client bound to one calendar.
type Client struct {
	srv        *calendar.Service
	calendarID string
	log        zerolog.Logger
}

// NewClient authenticates against the Calendar API and resolves the named
// calendar, creating it when it does not exist yet.
func NewClient(ctx context.Context, calendarName string, logger zerolog.Logger) (*Client, error) {
	scopes := []string{
		calendar.CalendarScope,
		calendar.CalendarEventsScope,
	}
	httpClient, err := auth.GetClient(ctx, scopes)
	if err != nil {
		return nil, err
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	log := logger.With().Str("component", "gcal").Str("calendar", calendarName).Logger()

	calendarID, err := resolveCalendar(srv, calendarName, log)
	if err != nil {
		return nil, err
	}

	return &Client{srv: srv, calendarID: calendarID, log: log}, nil
}

// NewClientWithService wraps an already-built service; used by tests.
func NewClientWithService(srv *calendar.Service, calendarID string, logger zerolog.Logger) *Client {
	return &Client{srv: srv, calendarID: calendarID, log: logger}
}

func resolveCalendar(srv *calendar.Service, name string, log zerolog.Logger) (string, error) {
	calendarList, err := srv.CalendarList.List().Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	for _, item := range calendarList.Items {
		if item.Summary == name {
			return item.Id, nil
		}
	}

	log.Info().Msg("calendar not found, creating it")
	created, err := srv.Calendars.Insert(&calendar.Calendar{Summary: name}).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create calendar %q: %w", name, err)
	}
	return created.Id, nil
}

// List fetches all non-cancelled events of the calendar. The Calendar API
// only supports ordering by start time or modification time, so any other
// sort key is ignored.
func (c *Client) List(ctx context.Context, opts aggregator.ListOptions) ([]*calendar.Event, error) {
	call := c.srv.Events.List(c.calendarID).Context(ctx).SingleEvents(true)
	switch opts.OrderBy {
	case "entry":
		call = call.OrderBy("startTime")
	case "modified":
		call = call.OrderBy("updated")
	case "":
	default:
		c.log.Debug().Str("order_by", opts.OrderBy).Msg("sort key not supported by the Calendar API, ignoring")
	}

	var events []*calendar.Event
	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
		}
		for _, e := range page.Items {
			if e.Status != "cancelled" {
				events = append(events, e)
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if opts.OrderBy != "" && !opts.Ascending {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return events, nil
}

// Add inserts the event and returns it with the id the store assigned.
func (c *Client) Add(ctx context.Context, e *calendar.Event) (*calendar.Event, error) {
	created, err := c.srv.Events.Insert(c.calendarID, e).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to insert event: %w", err)
	}
	return created, nil
}

// Update performs a partial update on the event with the given id.
func (c *Client) Update(ctx context.Context, id string, patch *calendar.Event) error {
	if _, err := c.srv.Events.Patch(c.calendarID, id, patch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to patch event %s: %w", id, err)
	}
	return nil
}

// Delete removes the event with the given id from the calendar.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.srv.Events.Delete(c.calendarID, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to delete event %s: %w", id, err)
	}
	return nil
}

// Find searches for an event carrying the given taskwarrior uuid in its
// private extended properties.
func (c *Client) Find(ctx context.Context, taskID string) (*calendar.Event, bool, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", taskIDProperty, taskID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, false, err
	}
	for _, e := range events.Items {
		if e.Status != "cancelled" {
			return e, true, nil
		}
	}
	return nil, false, nil
}

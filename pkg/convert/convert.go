// Package convert maps taskwarrior tasks to Google Calendar events and back.
//
// The two directions are deliberately lossy in different ways: a task's
// volatile fields (id, tags, urgency) are never embedded in the event, and
// event metadata assigned by the calendar store (etag, htmlLink, ...) is
// never carried into the task. Metadata that maps to no task field is
// dropped rather than appended as annotations, otherwise descriptions would
// grow on every sync pass.
package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/twgcal/pkg/model"
)

// DescriptionHeader is the first line of every synthesized event description.
const DescriptionHeader = "IMPORTED FROM TASKWARRIOR"

const (
	annotationPrefix = "* annotation"
	statusPrefix     = "* status"
	uuidPrefix       = "* uuid"
)

// defaultEventSpan is the event duration used when a task has no due date.
const defaultEventSpan = 24 * time.Hour

// ValidationError reports a required field missing before conversion.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// TaskToEvent converts a taskwarrior task to a Google Calendar event.
//
// The task must carry a description, a status, a uuid and an entry
// timestamp. The uuid is embedded in the description text and in a private
// extended property, but the event identifier itself is always left to the
// calendar store.
func TaskToEvent(t *model.Task) (*calendar.Event, error) {
	switch {
	case t.Description == "":
		return nil, &ValidationError{Field: "description"}
	case t.Status == "":
		return nil, &ValidationError{Field: "status"}
	case t.UUID == "":
		return nil, &ValidationError{Field: "uuid"}
	case t.Entry == nil || t.Entry.IsZero():
		return nil, &ValidationError{Field: "entry"}
	}

	var b strings.Builder
	b.WriteString(DescriptionHeader + "\n")
	for i, a := range t.Annotations {
		fmt.Fprintf(&b, "\n* Annotation %d: %s", i+1, a.Description)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "\n* status: %s", t.Status)
	fmt.Fprintf(&b, "\n* uuid: %s", t.UUID)

	// Dates: (start=entry, end=due) when a due date exists, else a fixed
	// span starting at entry.
	start := t.Entry.Time
	end := start.Add(defaultEventSpan)
	if t.Due != nil && !t.Due.IsZero() {
		end = t.Due.Time
	}

	return &calendar.Event{
		Summary:     t.Description,
		Description: b.String(),
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{"taskwarrior_id": t.UUID},
		},
	}, nil
}

// EventToTask converts a Google Calendar event back to a taskwarrior task.
//
// Summary, start and end are required. A missing description is tolerated
// and yields a pending task with no annotations and no uuid. An unknown
// embedded status or an unparseable uuid is logged and substituted, never
// fatal.
func EventToTask(e *calendar.Event) (*model.Task, error) {
	switch {
	case e.Summary == "":
		return nil, &ValidationError{Field: "summary"}
	case e.Start == nil || e.Start.DateTime == "":
		return nil, &ValidationError{Field: "start.dateTime"}
	case e.End == nil || e.End.DateTime == "":
		return nil, &ValidationError{Field: "end.dateTime"}
	}

	entry, err := time.Parse(time.RFC3339, e.Start.DateTime)
	if err != nil {
		return nil, fmt.Errorf("parse event start %q: %w", e.Start.DateTime, err)
	}
	due, err := time.Parse(time.RFC3339, e.End.DateTime)
	if err != nil {
		return nil, fmt.Errorf("parse event end %q: %w", e.End.DateTime, err)
	}

	annotations, status, id := parseEventDescription(e.Description)

	t := &model.Task{
		UUID:        id,
		Description: e.Summary,
		Status:      status,
		Entry:       &model.CustomTime{Time: entry},
		Due:         &model.CustomTime{Time: due},
	}
	for _, a := range annotations {
		t.Annotations = append(t.Annotations, model.Annotation{Description: a})
	}
	return t, nil
}

// parseEventDescription extracts annotations, status and uuid from a
// synthesized event description. The first non-empty line is the header and
// is discarded; a greedy prefix run of "* Annotation n: text" lines becomes
// the annotations, in order; the remaining lines are scanned for the status
// and uuid bullets.
func parseEventDescription(desc string) (annotations []string, status, id string) {
	annotations = []string{}
	status = model.PENDING

	if desc == "" {
		return annotations, status, ""
	}

	var lines []string
	for _, l := range strings.Split(desc, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) <= 1 {
		return annotations, status, ""
	}
	lines = lines[1:] // header

	rest := 0
	for _, l := range lines {
		value, ok := bulletValue(l, annotationPrefix)
		if !ok {
			break
		}
		annotations = append(annotations, value)
		rest++
	}

	for _, l := range lines[rest:] {
		if value, ok := bulletValue(l, statusPrefix); ok {
			parsed := strings.ToLower(value)
			if !model.ValidStatus(parsed) {
				log.Warn().
					Str("component", "convert").
					Str("status", parsed).
					Msg("unknown status in event description, keeping pending")
				continue
			}
			status = parsed
		} else if value, ok := bulletValue(l, uuidPrefix); ok {
			parsed, err := uuid.Parse(value)
			if err != nil {
				log.Warn().
					Str("component", "convert").
					Str("value", value).
					Err(err).
					Msg("invalid uuid in event description, leaving unset")
				continue
			}
			id = parsed.String()
		}
	}

	return annotations, status, id
}

// bulletValue returns the value half of a "* key: value" line whose key
// matches prefix case-insensitively.
func bulletValue(line, prefix string) (string, bool) {
	key, value, found := strings.Cut(line, ":")
	if !found || !strings.HasPrefix(strings.ToLower(key), prefix) {
		return "", false
	}
	return strings.TrimSpace(value), true
}

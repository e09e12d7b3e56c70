package aggregator

import (
	"reflect"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/twgcal/pkg/convert"
	"github.com/harrisonrobin/twgcal/pkg/model"
)

// Change holds the two values of a field that differs between a task and
// its paired event converted back to task shape.
type Change struct {
	Task  any
	Event any
}

// CompareItems reports how a task diverges from its paired calendar event.
// The event is converted to task shape first; the returned set holds the
// field names present on exactly one side, and the map the fields present on
// both sides whose values differ.
//
// On a correct round trip, entry, due, id, tags and urgency are expected to
// show up here: they are either regenerated by taskwarrior or never embedded
// in the event. Any other field indicates a conversion bug. This is a
// reporting primitive only; it resolves nothing.
func CompareItems(t *model.Task, e *calendar.Event) (map[string]struct{}, map[string]Change, error) {
	converted, err := convert.EventToTask(e)
	if err != nil {
		return nil, nil, err
	}

	taskFields := t.Fields()
	eventFields := converted.Fields()

	diff := make(map[string]struct{})
	changes := make(map[string]Change)

	for k, tv := range taskFields {
		ev, ok := eventFields[k]
		if !ok {
			diff[k] = struct{}{}
			continue
		}
		if !valuesEqual(tv, ev) {
			changes[k] = Change{Task: tv, Event: ev}
		}
	}
	for k := range eventFields {
		if _, ok := taskFields[k]; !ok {
			diff[k] = struct{}{}
		}
	}

	return diff, changes, nil
}

// valuesEqual compares field values; timestamps compare as instants so that
// wall-clock representation differences do not count as divergence.
func valuesEqual(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

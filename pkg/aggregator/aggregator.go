// Package aggregator orchestrates a sync pass between the taskwarrior side
// and the Google Calendar side: registering items seen for the first time on
// either side, reporting divergence, and propagating deletions.
package aggregator

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/twgcal/pkg/bimap"
	"github.com/harrisonrobin/twgcal/pkg/convert"
	"github.com/harrisonrobin/twgcal/pkg/model"
)

// ListOptions selects the ordering of a side's listing.
type ListOptions struct {
	OrderBy   string
	Ascending bool
}

// Side is the capability set the aggregator needs from each external store.
// Add must return the stored item carrying the identifier the store
// assigned.
type Side[T any] interface {
	List(ctx context.Context, opts ListOptions) ([]T, error)
	Add(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id string, item T) error
	Delete(ctx context.Context, id string) error
}

// Finder is an optional probe a side can implement: given the opposite
// side's identifier, report whether a mirrored item already exists. The
// aggregator uses it before every add, so a crash between a remote add and
// the table insert does not double-register the item on the next pass.
type Finder[T any] interface {
	Find(ctx context.Context, oppositeID string) (T, bool, error)
}

// Aggregator owns the correspondence table and drives registration and
// deletion propagation across the two sides.
//
// Error policy: a failed adapter call aborts the current item only. The
// failure is logged with the item identifier, side and operation, and the
// pass moves on; the next run reconciles whatever was left behind.
type Aggregator struct {
	tasks  Side[*model.Task]
	events Side[*calendar.Event]
	table  *bimap.Table
	log    zerolog.Logger
}

// New creates an aggregator over the two sides and their correspondence
// table. The table is exclusively owned by the returned aggregator.
func New(tasks Side[*model.Task], events Side[*calendar.Event], table *bimap.Table, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		tasks:  tasks,
		events: events,
		table:  table,
		log:    logger.With().Str("component", "aggregator").Logger(),
	}
}

// RegisterTasks mirrors every not-yet-registered task onto the calendar
// side, in the order supplied, and records each new correspondence.
func (a *Aggregator) RegisterTasks(ctx context.Context, items []*model.Task) {
	for _, t := range items {
		if _, ok := a.table.GetByTask(t.UUID); ok {
			continue // already synchronized
		}
		a.registerTask(ctx, t)
	}
}

func (a *Aggregator) registerTask(ctx context.Context, t *model.Task) {
	logger := a.log.With().Str("side", "taskwarrior").Str("uuid", t.UUID).Logger()
	logger.Info().Str("description", truncate(t.Description, 10)).Msg("registering task")

	// Probe for an event left over from an interrupted earlier pass.
	if finder, ok := a.events.(Finder[*calendar.Event]); ok {
		existing, found, err := finder.Find(ctx, t.UUID)
		if err != nil {
			logger.Error().Err(err).Str("op", "find").Msg("existence probe failed, skipping item")
			return
		}
		if found {
			logger.Info().Str("event_id", existing.Id).Msg("event already exists, recording correspondence")
			if err := a.table.Insert(t.UUID, existing.Id); err != nil {
				logger.Error().Err(err).Str("op", "insert").Msg("recording correspondence failed")
			}
			return
		}
	}

	ev, err := convert.TaskToEvent(t)
	if err != nil {
		logger.Error().Err(err).Str("op", "convert").Msg("task not convertible, skipping item")
		return
	}

	created, err := a.events.Add(ctx, ev)
	if err != nil {
		logger.Error().Err(err).Str("op", "add").Msg("adding mirrored event failed, skipping item")
		return
	}

	if err := a.table.Insert(t.UUID, created.Id); err != nil {
		logger.Error().Err(err).Str("op", "insert").Str("event_id", created.Id).
			Msg("recording correspondence failed")
	}
}

// RegisterEvents mirrors every not-yet-registered calendar event onto the
// taskwarrior side, in the order supplied, and records each new
// correspondence.
func (a *Aggregator) RegisterEvents(ctx context.Context, items []*calendar.Event) {
	for _, e := range items {
		if _, ok := a.table.GetByEvent(e.Id); ok {
			continue // already synchronized
		}
		a.registerEvent(ctx, e)
	}
}

func (a *Aggregator) registerEvent(ctx context.Context, e *calendar.Event) {
	logger := a.log.With().Str("side", "gcal").Str("event_id", e.Id).Logger()
	logger.Info().Str("summary", truncate(e.Summary, 10)).Msg("registering event")

	t, err := convert.EventToTask(e)
	if err != nil {
		logger.Error().Err(err).Str("op", "convert").Msg("event not convertible, skipping item")
		return
	}

	// An embedded uuid means the event was synthesized from a task; if that
	// task is still known, only the table entry is missing.
	if t.UUID != "" {
		if finder, ok := a.tasks.(Finder[*model.Task]); ok {
			existing, found, err := finder.Find(ctx, t.UUID)
			if err != nil {
				logger.Error().Err(err).Str("op", "find").Msg("existence probe failed, skipping item")
				return
			}
			if found {
				logger.Info().Str("uuid", existing.UUID).Msg("task already exists, recording correspondence")
				if err := a.table.Insert(existing.UUID, e.Id); err != nil {
					logger.Error().Err(err).Str("op", "insert").Msg("recording correspondence failed")
				}
				return
			}
		}
	}

	created, err := a.tasks.Add(ctx, t)
	if err != nil {
		logger.Error().Err(err).Str("op", "add").Msg("adding mirrored task failed, skipping item")
		return
	}

	if err := a.table.Insert(created.UUID, e.Id); err != nil {
		logger.Error().Err(err).Str("op", "insert").Str("uuid", created.UUID).
			Msg("recording correspondence failed")
	}
}

// SyncDeletedTasks scans recorded pairs against a fresh taskwarrior listing.
// For every pair whose task is gone, the mirrored event is deleted and the
// pair removed. Detection is pull-based: no delete notifications are needed
// from either store.
func (a *Aggregator) SyncDeletedTasks(ctx context.Context) error {
	items, err := a.tasks.List(ctx, ListOptions{})
	if err != nil {
		return err
	}
	alive := make(map[string]bool, len(items))
	for _, t := range items {
		alive[t.UUID] = true
	}

	for _, taskID := range a.table.TaskIDs() {
		if alive[taskID] {
			continue
		}
		eventID, _ := a.table.GetByTask(taskID)
		logger := a.log.With().Str("side", "taskwarrior").Str("uuid", taskID).Str("event_id", eventID).Logger()
		logger.Info().Msg("task deleted, removing mirrored event")

		if err := a.events.Delete(ctx, eventID); err != nil {
			// Keep the pair so the next pass retries the delete.
			logger.Error().Err(err).Str("op", "delete").Msg("deleting mirrored event failed")
			continue
		}
		if err := a.table.RemoveByTask(taskID); err != nil {
			logger.Error().Err(err).Str("op", "remove").Msg("removing correspondence failed")
		}
	}
	return nil
}

// SyncDeletedEvents is the calendar-side counterpart of SyncDeletedTasks.
func (a *Aggregator) SyncDeletedEvents(ctx context.Context) error {
	items, err := a.events.List(ctx, ListOptions{})
	if err != nil {
		return err
	}
	alive := make(map[string]bool, len(items))
	for _, e := range items {
		alive[e.Id] = true
	}

	for _, eventID := range a.table.EventIDs() {
		if alive[eventID] {
			continue
		}
		taskID, _ := a.table.GetByEvent(eventID)
		logger := a.log.With().Str("side", "gcal").Str("event_id", eventID).Str("uuid", taskID).Logger()
		logger.Info().Msg("event deleted, removing mirrored task")

		if err := a.tasks.Delete(ctx, taskID); err != nil {
			logger.Error().Err(err).Str("op", "delete").Msg("deleting mirrored task failed")
			continue
		}
		if err := a.table.RemoveByEvent(eventID); err != nil {
			logger.Error().Err(err).Str("op", "remove").Msg("removing correspondence failed")
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Package bimap persists the bijective correspondence between taskwarrior
// uuids and Google Calendar event ids.
package bimap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrDuplicateMapping is returned when an insert would bind an identifier
// that is already mapped on either side. Hitting it means the registration
// guard upstream is broken.
var ErrDuplicateMapping = errors.New("identifier already mapped")

// Table is a durable one-to-one mapping between task uuids and calendar
// event ids. Every mutation is flushed to disk before it returns, so a crash
// between a remote add and the next mutation never loses a recorded pair.
type Table struct {
	path string

	mu          sync.RWMutex
	taskToEvent map[string]string
	eventToTask map[string]string
}

// Open loads the table stored at path, or returns an empty table if the file
// does not exist yet.
func Open(path string) (*Table, error) {
	t := &Table{
		path:        path,
		taskToEvent: make(map[string]string),
		eventToTask: make(map[string]string),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, err
	}
	defer f.Close()

	var stored struct {
		Mappings map[string]string `json:"mappings"`
	}
	if err := json.NewDecoder(f).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode correspondence table %s: %w", path, err)
	}

	for taskID, eventID := range stored.Mappings {
		if _, ok := t.eventToTask[eventID]; ok {
			return nil, fmt.Errorf("correspondence table %s: event id %s mapped twice", path, eventID)
		}
		t.taskToEvent[taskID] = eventID
		t.eventToTask[eventID] = taskID
	}
	return t, nil
}

// GetByTask returns the event id paired with a task uuid.
func (t *Table) GetByTask(taskID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	eventID, ok := t.taskToEvent[taskID]
	return eventID, ok
}

// GetByEvent returns the task uuid paired with an event id.
func (t *Table) GetByEvent(eventID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	taskID, ok := t.eventToTask[eventID]
	return taskID, ok
}

// Insert records a new (task uuid, event id) pair and flushes it. It fails
// with ErrDuplicateMapping if either identifier is already bound.
func (t *Table) Insert(taskID, eventID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.taskToEvent[taskID]; ok {
		return fmt.Errorf("task %s -> %s: %w", taskID, existing, ErrDuplicateMapping)
	}
	if existing, ok := t.eventToTask[eventID]; ok {
		return fmt.Errorf("event %s -> %s: %w", eventID, existing, ErrDuplicateMapping)
	}

	t.taskToEvent[taskID] = eventID
	t.eventToTask[eventID] = taskID
	return t.save()
}

// RemoveByTask drops the pair holding taskID, if any, and flushes.
func (t *Table) RemoveByTask(taskID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	eventID, ok := t.taskToEvent[taskID]
	if !ok {
		return nil
	}
	delete(t.taskToEvent, taskID)
	delete(t.eventToTask, eventID)
	return t.save()
}

// RemoveByEvent drops the pair holding eventID, if any, and flushes.
func (t *Table) RemoveByEvent(eventID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	taskID, ok := t.eventToTask[eventID]
	if !ok {
		return nil
	}
	delete(t.eventToTask, eventID)
	delete(t.taskToEvent, taskID)
	return t.save()
}

// TaskIDs returns the task uuids of all recorded pairs.
func (t *Table) TaskIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.taskToEvent))
	for id := range t.taskToEvent {
		ids = append(ids, id)
	}
	return ids
}

// EventIDs returns the event ids of all recorded pairs.
func (t *Table) EventIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.eventToTask))
	for id := range t.eventToTask {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of recorded pairs.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.taskToEvent)
}

// Close flushes the table. Mutations already persist themselves, so this is
// a safety net for exit paths.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.save()
}

// save writes the forward map to a temp file and renames it into place.
// Callers must hold t.mu.
func (t *Table) save() error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	stored := struct {
		Mappings map[string]string `json:"mappings"`
	}{Mappings: t.taskToEvent}

	if err := json.NewEncoder(tmp).Encode(stored); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), t.path)
}

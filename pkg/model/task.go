// Package model holds the task item shape shared by the taskwarrior client,
// the converter and the aggregator.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Task statuses known to taskwarrior.
const (
	PENDING   = "pending"
	COMPLETED = "completed"
	WAITING   = "waiting"
	DELETED   = "deleted"
	RECURRING = "recurring"
)

// ValidStatus reports whether s is a status taskwarrior understands.
func ValidStatus(s string) bool {
	switch s {
	case PENDING, COMPLETED, WAITING, DELETED, RECURRING:
		return true
	}
	return false
}

type CustomTime struct {
	time.Time
}

const taskwarriorTimeLayout = "20060102T150405Z" // YYYYMMDDTHHMMSSZ, 'Z' indicates UTC

// UnmarshalJSON implements the json.Unmarshaler interface for CustomTime.
func (ct *CustomTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`) // Remove surrounding quotes
	if s == "" || s == "0" {          // Handle empty string or "0" if Taskwarrior ever outputs it
		ct.Time = time.Time{} // Set to zero value
		return nil
	}

	t, err := time.Parse(taskwarriorTimeLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse Taskwarrior time string '%s': %w", s, err)
	}
	ct.Time = t
	return nil
}

// MarshalJSON implements the json.Marshaler interface for CustomTime.
func (ct CustomTime) MarshalJSON() ([]byte, error) {
	if ct.Time.IsZero() {
		return []byte(`""`), nil // Export zero time as empty string
	}
	return []byte(`"` + ct.Time.Format(taskwarriorTimeLayout) + `"`), nil
}

// Annotation is a single taskwarrior annotation.
type Annotation struct {
	Entry       *CustomTime `json:"entry,omitempty"`
	Description string      `json:"description"`
}

// Task is a taskwarrior task as exported by `task export`.
//
// UUID is immutable once assigned by taskwarrior. ID and Urgency are
// volatile: taskwarrior recomputes both on every export, so neither survives
// a round trip through the calendar side.
type Task struct {
	ID          int          `json:"id,omitempty"`
	UUID        string       `json:"uuid,omitempty"`
	Description string       `json:"description,omitempty"`
	Status      string       `json:"status,omitempty"`
	Entry       *CustomTime  `json:"entry,omitempty"`
	Due         *CustomTime  `json:"due,omitempty"`
	End         *CustomTime  `json:"end,omitempty"`
	Modified    *CustomTime  `json:"modified,omitempty"`
	Project     string       `json:"project,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Urgency     float64      `json:"urgency,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// AnnotationTexts returns the annotation descriptions in entry order.
func (t *Task) AnnotationTexts() []string {
	out := make([]string, 0, len(t.Annotations))
	for _, a := range t.Annotations {
		out = append(out, a.Description)
	}
	return out
}

// Fields returns the set fields of the task keyed by their taskwarrior
// export names. Unset fields are omitted, which makes the result usable for
// key-set comparisons between an original task and one recovered from its
// calendar event.
func (t *Task) Fields() map[string]any {
	f := map[string]any{}
	if t.ID != 0 {
		f["id"] = t.ID
	}
	if t.UUID != "" {
		f["uuid"] = t.UUID
	}
	if t.Description != "" {
		f["description"] = t.Description
	}
	if t.Status != "" {
		f["status"] = t.Status
	}
	if t.Entry != nil && !t.Entry.IsZero() {
		f["entry"] = t.Entry.Time
	}
	if t.Due != nil && !t.Due.IsZero() {
		f["due"] = t.Due.Time
	}
	if t.End != nil && !t.End.IsZero() {
		f["end"] = t.End.Time
	}
	if t.Modified != nil && !t.Modified.IsZero() {
		f["modified"] = t.Modified.Time
	}
	if t.Project != "" {
		f["project"] = t.Project
	}
	if len(t.Tags) > 0 {
		f["tags"] = t.Tags
	}
	if t.Urgency != 0 {
		f["urgency"] = t.Urgency
	}
	if len(t.Annotations) > 0 {
		f["annotations"] = t.AnnotationTexts()
	}
	return f
}

package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCustomTimeRoundTrip(t *testing.T) {
	var ct CustomTime
	if err := ct.UnmarshalJSON([]byte(`"20230101T120000Z"`)); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}

	expected := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	if !ct.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, ct.Time)
	}

	b, err := ct.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if string(b) != `"20230101T120000Z"` {
		t.Errorf("Expected round-tripped literal, got %s", b)
	}
}

func TestCustomTimeZeroValues(t *testing.T) {
	for _, input := range []string{`""`, `"0"`} {
		var ct CustomTime
		if err := ct.UnmarshalJSON([]byte(input)); err != nil {
			t.Fatalf("UnmarshalJSON(%s) failed: %v", input, err)
		}
		if !ct.IsZero() {
			t.Errorf("Expected zero time for input %s, got %v", input, ct.Time)
		}
	}

	b, err := CustomTime{}.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if string(b) != `""` {
		t.Errorf("Expected empty string for zero time, got %s", b)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{PENDING, COMPLETED, WAITING, DELETED, RECURRING} {
		if !ValidStatus(s) {
			t.Errorf("Expected %q to be valid", s)
		}
	}
	for _, s := range []string{"bogus", "", "Pending"} {
		if ValidStatus(s) {
			t.Errorf("Expected %q to be invalid", s)
		}
	}
}

func TestTaskFieldsOmitsUnset(t *testing.T) {
	entry := &CustomTime{Time: time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)}
	task := &Task{
		UUID:        "f45a05b3-c12e-42e5-9c9c-333333333333",
		Description: "Buy milk",
		Status:      PENDING,
		Entry:       entry,
	}

	fields := task.Fields()
	for _, key := range []string{"uuid", "description", "status", "entry"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Expected field %q to be set", key)
		}
	}
	for _, key := range []string{"id", "due", "tags", "urgency", "annotations", "project"} {
		if _, ok := fields[key]; ok {
			t.Errorf("Expected field %q to be omitted", key)
		}
	}
}

func TestTaskJSONUsesExportNames(t *testing.T) {
	task := &Task{
		ID:          3,
		UUID:        "f45a05b3-c12e-42e5-9c9c-333333333333",
		Description: "Buy milk",
		Status:      PENDING,
		Entry:       &CustomTime{Time: time.Date(2023, 1, 1, 10, 0, 0, 0, time.UTC)},
		Annotations: []Annotation{{Description: "note"}},
	}

	b, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if m["entry"] != "20230101T100000Z" {
		t.Errorf("Expected taskwarrior entry layout, got %v", m["entry"])
	}
	if _, ok := m["annotations"]; !ok {
		t.Error("Expected annotations key")
	}
	if _, ok := m["due"]; ok {
		t.Error("Expected unset due to be omitted")
	}
}

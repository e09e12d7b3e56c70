package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/twgcal/pkg/convert"
	"github.com/harrisonrobin/twgcal/pkg/model"
)

func TestCompareItems_CleanRoundTrip(t *testing.T) {
	task := newTask(uuidA, "Buy milk")
	task.ID = 4
	task.Tags = []string{"grocery"}
	task.Urgency = 1.8

	event, err := convert.TaskToEvent(task)
	require.NoError(t, err)
	event.Id = "event-1"

	diff, changes, err := CompareItems(task, event)
	require.NoError(t, err)

	// id/tags/urgency are never embedded; due is regenerated from the event
	// end when the task had none.
	expectedDiff := map[string]struct{}{
		"id": {}, "tags": {}, "urgency": {}, "due": {},
	}
	assert.Equal(t, expectedDiff, diff)
	assert.Empty(t, changes, "shared fields must survive a round trip unchanged")
}

func TestCompareItems_ReportsChangedValues(t *testing.T) {
	task := newTask(uuidA, "Buy milk")

	event, err := convert.TaskToEvent(task)
	require.NoError(t, err)
	event.Summary = "Buy oat milk" // edited on the calendar side

	_, changes, err := CompareItems(task, event)
	require.NoError(t, err)

	change, ok := changes["description"]
	require.True(t, ok)
	assert.Equal(t, "Buy milk", change.Task)
	assert.Equal(t, "Buy oat milk", change.Event)
}

func TestCompareItems_UnconvertibleEvent(t *testing.T) {
	task := newTask(uuidA, "Buy milk")
	event, err := convert.TaskToEvent(task)
	require.NoError(t, err)
	event.Summary = ""

	_, _, err = CompareItems(task, event)
	var verr *convert.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCompareItems_AnnotationsCountAsOneField(t *testing.T) {
	task := newTask(uuidA, "Buy milk")
	task.Annotations = []model.Annotation{{Description: "from the corner shop"}}

	event, err := convert.TaskToEvent(task)
	require.NoError(t, err)

	diff, changes, err := CompareItems(task, event)
	require.NoError(t, err)
	_, inDiff := diff["annotations"]
	assert.False(t, inDiff)
	_, inChanges := changes["annotations"]
	assert.False(t, inChanges)
}

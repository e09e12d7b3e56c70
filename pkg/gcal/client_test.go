package gcal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/twgcal/pkg/aggregator"
)

// newFakeAPI serves canned Calendar API responses and records requests.
func newFakeAPI(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	srv, err := calendar.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(server.URL))
	require.NoError(t, err)

	return NewClientWithService(srv, "cal-1", zerolog.Nop())
}

func TestList_FiltersCancelledEvents(t *testing.T) {
	client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(&calendar.Events{
			Items: []*calendar.Event{
				{Id: "event-1", Summary: "Buy milk", Status: "confirmed"},
				{Id: "event-2", Summary: "Old event", Status: "cancelled"},
			},
		})
	})

	events, err := client.List(context.Background(), aggregator.ListOptions{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "event-1", events[0].Id)
}

func TestList_Pagination(t *testing.T) {
	calls := 0
	client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		page := &calendar.Events{Items: []*calendar.Event{{Id: "event-1"}}, NextPageToken: "page2"}
		if r.URL.Query().Get("pageToken") == "page2" {
			page = &calendar.Events{Items: []*calendar.Event{{Id: "event-2"}}}
		}
		json.NewEncoder(w).Encode(page)
	})

	events, err := client.List(context.Background(), aggregator.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, events, 2)
	assert.Equal(t, "event-1", events[0].Id)
	assert.Equal(t, "event-2", events[1].Id)
}

func TestFind_QueriesExtendedProperty(t *testing.T) {
	const taskID = "11111111-1111-1111-1111-111111111111"

	client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "taskwarrior_id="+taskID, r.URL.Query().Get("privateExtendedProperty"))
		json.NewEncoder(w).Encode(&calendar.Events{
			Items: []*calendar.Event{{Id: "event-1", Summary: "Buy milk"}},
		})
	})

	event, found, err := client.Find(context.Background(), taskID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "event-1", event.Id)
}

func TestFind_NoMatch(t *testing.T) {
	client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&calendar.Events{})
	})

	_, found, err := client.Find(context.Background(), "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAdd_ReturnsStoredEvent(t *testing.T) {
	client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var incoming calendar.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&incoming))
		incoming.Id = "event-assigned"
		json.NewEncoder(w).Encode(&incoming)
	})

	created, err := client.Add(context.Background(), &calendar.Event{Summary: "Buy milk"})
	require.NoError(t, err)
	assert.Equal(t, "event-assigned", created.Id)
	assert.Equal(t, "Buy milk", created.Summary)
}

func TestDelete(t *testing.T) {
	var method, path string
	client := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.Delete(context.Background(), "event-1"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Contains(t, path, "event-1")
}

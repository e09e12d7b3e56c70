// Package taskwarrior drives the local `task` binary and exposes it as the
// task-side store of the sync engine.
package taskwarrior

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harrisonrobin/twgcal/pkg/aggregator"
	"github.com/harrisonrobin/twgcal/pkg/model"
)

var (
	_ aggregator.Side[*model.Task]   = (*Client)(nil)
	_ aggregator.Finder[*model.Task] = (*Client)(nil)
)

// Client shells out to the `task` binary, scoped to a single tag.
type Client struct {
	tag string
	log zerolog.Logger
}

// NewClient creates a client whose listings and adds are scoped to tag
// (without the leading '+').
func NewClient(tag string, logger zerolog.Logger) *Client {
	return &Client{
		tag: tag,
		log: logger.With().Str("component", "taskwarrior").Logger(),
	}
}

// List exports all non-deleted tasks carrying the client's tag, optionally
// sorted by opts.OrderBy. Deleted tasks are filtered out so that deletion
// propagation sees them as gone.
func (c *Client) List(ctx context.Context, opts aggregator.ListOptions) ([]*model.Task, error) {
	out, err := c.run(ctx, nil, "+"+c.tag, "export", "rc.hooks=0")
	if err != nil {
		return nil, err
	}

	var exported []*model.Task
	if err := json.Unmarshal(out, &exported); err != nil {
		return nil, fmt.Errorf("failed to unmarshal taskwarrior output: %w", err)
	}

	tasks := exported[:0]
	for _, t := range exported {
		if t.Status != model.DELETED {
			tasks = append(tasks, t)
		}
	}

	sortTasks(tasks, opts)
	return tasks, nil
}

// Add imports the task into taskwarrior and returns it with its assigned
// uuid. The client's tag is attached so the task shows up in later listings.
func (c *Client) Add(ctx context.Context, t *model.Task) (*model.Task, error) {
	stored := *t
	if stored.UUID == "" {
		stored.UUID = uuid.NewString()
	}
	if !containsTag(stored.Tags, c.tag) {
		stored.Tags = append(append([]string{}, stored.Tags...), c.tag)
	}

	payload, err := json.Marshal([]*model.Task{&stored})
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("uuid", stored.UUID).Msg("importing task")
	if _, err := c.run(ctx, bytes.NewReader(payload), "rc.hooks=0", "import", "-"); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Update overwrites the task with the given uuid via `task import`.
func (c *Client) Update(ctx context.Context, id string, t *model.Task) error {
	patched := *t
	patched.UUID = id
	_, err := c.Add(ctx, &patched)
	return err
}

// Delete removes the task with the given uuid.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.run(ctx, nil, "rc.confirmation=off", "rc.hooks=0", "uuid:"+id, "delete")
	return err
}

// Find reports whether a non-deleted task with the given uuid exists.
func (c *Client) Find(ctx context.Context, id string) (*model.Task, bool, error) {
	out, err := c.run(ctx, nil, "uuid:"+id, "export", "rc.hooks=0")
	if err != nil {
		return nil, false, err
	}

	var tasks []*model.Task
	if err := json.Unmarshal(out, &tasks); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal taskwarrior output: %w", err)
	}
	for _, t := range tasks {
		if t.Status != model.DELETED {
			return t, true, nil
		}
	}
	return nil, false, nil
}

func (c *Client) run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "task", args...)
	cmd.Stdin = stdin

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("taskwarrior command failed: exit code %d, %s, stderr: %s",
				exitErr.ExitCode(), err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("taskwarrior command failed: %w", err)
	}
	return output, nil
}

// ParseTasks parses task JSON from r: either the array `task export`
// prints, or a stream of single objects as taskwarrior hooks pipe them.
func ParseTasks(r io.Reader) ([]*model.Task, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read task json: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}

	if b[0] == '[' {
		var tasks []*model.Task
		if err := json.Unmarshal(b, &tasks); err != nil {
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		return tasks, nil
	}

	var tasks []*model.Task
	decoder := json.NewDecoder(bytes.NewReader(b))
	for {
		var task model.Task
		if err := decoder.Decode(&task); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

// SortKeys are the task fields a listing can be ordered by.
var SortKeys = []string{"description", "end", "entry", "id", "modified", "status", "urgency"}

func sortTasks(tasks []*model.Task, opts aggregator.ListOptions) {
	if opts.OrderBy == "" {
		return
	}
	less := lessFunc(opts.OrderBy)
	if less == nil {
		return
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if opts.Ascending {
			return less(tasks[i], tasks[j])
		}
		return less(tasks[j], tasks[i])
	})
}

func lessFunc(key string) func(a, b *model.Task) bool {
	switch key {
	case "description":
		return func(a, b *model.Task) bool { return a.Description < b.Description }
	case "end":
		return func(a, b *model.Task) bool { return timeBefore(a.End, b.End) }
	case "entry":
		return func(a, b *model.Task) bool { return timeBefore(a.Entry, b.Entry) }
	case "id":
		return func(a, b *model.Task) bool { return a.ID < b.ID }
	case "modified":
		return func(a, b *model.Task) bool { return timeBefore(a.Modified, b.Modified) }
	case "status":
		return func(a, b *model.Task) bool { return a.Status < b.Status }
	case "urgency":
		return func(a, b *model.Task) bool { return a.Urgency < b.Urgency }
	}
	return nil
}

func timeBefore(a, b *model.CustomTime) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	}
	return a.Before(b.Time)
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

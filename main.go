package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/harrisonrobin/twgcal/pkg/aggregator"
	"github.com/harrisonrobin/twgcal/pkg/auth"
	"github.com/harrisonrobin/twgcal/pkg/bimap"
	"github.com/harrisonrobin/twgcal/pkg/config"
	"github.com/harrisonrobin/twgcal/pkg/gcal"
	"github.com/harrisonrobin/twgcal/pkg/taskwarrior"
)

func main() {
	app := &cli.Command{
		Name:      "twgcal",
		Usage:     "Synchronise taskwarrior tasks with a Google Calendar",
		UsageText: "twgcal [options]\ntwgcal import\ntwgcal setup\ntwgcal auth",
		Description: `twgcal mirrors the tasks carrying a given tag onto a named Google
Calendar and mirrors calendar events created there back as tasks.
Deletions on either side are propagated on the next run.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "calendar",
				Aliases: []string{"c"},
				Usage:   "name of the Google Calendar to sync (created if missing)",
				Sources: cli.EnvVars("TWGCAL_CALENDAR"),
			},
			&cli.StringSliceFlag{
				Name:    "tag",
				Aliases: []string{"t"},
				Usage:   "taskwarrior tag to sync",
			},
			&cli.StringFlag{
				Name:    "order-by",
				Aliases: []string{"o"},
				Usage: fmt.Sprintf("register items sorted by this key (%s)",
					strings.Join(taskwarrior.SortKeys, ", ")),
			},
			&cli.BoolFlag{
				Name:  "descending",
				Usage: "sort in descending instead of ascending order",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to config file",
				Sources: cli.EnvVars("TWGCAL_CONFIG"),
				Value:   config.DefaultPath(),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "increase log verbosity (repeatable)",
				Config:  cli.BoolConfig{Count: new(int)},
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			setupLogging(c.Count("verbose"))
			return ctx, nil
		},
		Action: runSync,
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "register tasks piped on stdin instead of listing them",
				UsageText: "task +tag export | twgcal -c Calendar -t tag import",
				Description: `Reads task JSON from stdin (the array printed by 'task export' or a
stream of single objects as hooks pipe them) and registers those tasks
on the calendar. No listing, comparison or deletion propagation runs.`,
				Action: runImport,
			},
			{
				Name:   "setup",
				Usage:  "save the given calendar, tag and sort key as defaults",
				Action: runSetup,
			},
			{
				Name:  "auth",
				Usage: "(re)run the Google OAuth consent flow",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runAuth(ctx)
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("twgcal failed")
		os.Exit(1)
	}
}

func setupLogging(verbosity int) {
	level := zerolog.InfoLevel
	switch {
	case verbosity == 1:
		level = zerolog.DebugLevel
	case verbosity >= 2:
		level = zerolog.TraceLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger().
		Level(level)
}

// settings are the effective options after merging flags over the config
// file.
type settings struct {
	calendar string
	tag      string
	opts     aggregator.ListOptions
	state    string
}

func resolveSettings(c *cli.Command) (*settings, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	s := &settings{calendar: cfg.Calendar, state: cfg.StateFile}
	if v := c.String("calendar"); v != "" {
		s.calendar = v
	}
	if s.calendar == "" {
		return nil, fmt.Errorf("no calendar given; pass --calendar or set it in the config")
	}

	tags := c.StringSlice("tag")
	if len(tags) == 0 && cfg.Tag != "" {
		tags = []string{cfg.Tag}
	}
	// Multi-tag syncing is untested territory; refuse it before touching
	// either store.
	if len(tags) != 1 {
		return nil, fmt.Errorf("exactly one --tag is required, got %d", len(tags))
	}
	s.tag = strings.TrimPrefix(tags[0], "+")

	orderBy := cfg.OrderBy
	if v := c.String("order-by"); v != "" {
		orderBy = v
	}
	if err := validateOrderBy(orderBy); err != nil {
		return nil, err
	}
	s.opts = aggregator.ListOptions{OrderBy: orderBy, Ascending: !c.Bool("descending")}
	return s, nil
}

func validateOrderBy(orderBy string) error {
	if orderBy != "" && !slices.Contains(taskwarrior.SortKeys, orderBy) {
		return fmt.Errorf("unknown --order-by key %q (want one of %s)",
			orderBy, strings.Join(taskwarrior.SortKeys, ", "))
	}
	return nil
}

// engine bundles the clients, table and aggregator a sync pass needs.
type engine struct {
	table  *bimap.Table
	tasks  *taskwarrior.Client
	events *gcal.Client
	agg    *aggregator.Aggregator
}

func buildEngine(ctx context.Context, s *settings) (*engine, error) {
	table, err := bimap.Open(s.state)
	if err != nil {
		return nil, fmt.Errorf("open correspondence table: %w", err)
	}

	twClient := taskwarrior.NewClient(s.tag, log.Logger)
	gClient, err := gcal.NewClient(ctx, s.calendar, log.Logger)
	if err != nil {
		table.Close()
		return nil, fmt.Errorf("create calendar client: %w", err)
	}

	return &engine{
		table:  table,
		tasks:  twClient,
		events: gClient,
		agg:    aggregator.New(twClient, gClient, table, log.Logger),
	}, nil
}

func (e *engine) close() {
	if err := e.table.Close(); err != nil {
		log.Error().Err(err).Msg("flushing correspondence table failed")
	}
}

func runSync(ctx context.Context, c *cli.Command) error {
	s, err := resolveSettings(c)
	if err != nil {
		return err
	}
	log.Info().Str("calendar", s.calendar).Str("tag", s.tag).Msg("initialising")

	eng, err := buildEngine(ctx, s)
	if err != nil {
		return err
	}
	defer eng.close()

	// One pass: register the task side fully, then the calendar side, then
	// propagate deletions for each side in turn.
	tasks, err := eng.tasks.List(ctx, s.opts)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	eng.agg.RegisterTasks(ctx, tasks)

	events, err := eng.events.List(ctx, s.opts)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	eng.agg.RegisterEvents(ctx, events)

	if err := eng.agg.SyncDeletedTasks(ctx); err != nil {
		return fmt.Errorf("propagate task deletions: %w", err)
	}
	if err := eng.agg.SyncDeletedEvents(ctx); err != nil {
		return fmt.Errorf("propagate event deletions: %w", err)
	}

	log.Info().Int("correspondences", eng.table.Len()).Msg("sync pass finished")
	return nil
}

func runImport(ctx context.Context, c *cli.Command) error {
	s, err := resolveSettings(c)
	if err != nil {
		return err
	}

	tasks, err := taskwarrior.ParseTasks(os.Stdin)
	if err != nil {
		return fmt.Errorf("parse tasks from stdin: %w", err)
	}
	if len(tasks) == 0 {
		log.Info().Msg("no tasks on stdin, nothing to do")
		return nil
	}

	eng, err := buildEngine(ctx, s)
	if err != nil {
		return err
	}
	defer eng.close()

	eng.agg.RegisterTasks(ctx, tasks)
	log.Info().Int("tasks", len(tasks)).Int("correspondences", eng.table.Len()).Msg("import finished")
	return nil
}

func runSetup(ctx context.Context, c *cli.Command) error {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if v := c.String("calendar"); v != "" {
		cfg.Calendar = v
	}
	tags := c.StringSlice("tag")
	if len(tags) > 1 {
		return fmt.Errorf("exactly one --tag is required, got %d", len(tags))
	}
	if len(tags) == 1 {
		cfg.Tag = strings.TrimPrefix(tags[0], "+")
	}
	if v := c.String("order-by"); v != "" {
		if err := validateOrderBy(v); err != nil {
			return err
		}
		cfg.OrderBy = v
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("config saved")
	return nil
}

func runAuth(ctx context.Context) error {
	if err := auth.ResetToken(); err != nil {
		return err
	}
	if _, err := auth.GetClient(ctx, []string{"https://www.googleapis.com/auth/calendar"}); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	log.Info().Msg("authentication successful")
	return nil
}

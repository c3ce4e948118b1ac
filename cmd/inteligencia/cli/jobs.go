package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/urfave/cli/v2"

	"github.com/RoqueChristian/backup-inteligencia/internal/report"
	"github.com/RoqueChristian/backup-inteligencia/jobs"
)

// QueueInspector is the subset of the asynq inspector the CLI reads.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// JobsCLI wraps manual management helpers for report jobs.
type JobsCLI struct {
	enqueuer  jobs.Enqueuer
	inspector QueueInspector
	closers   []io.Closer
	now       func() time.Time
}

// NewJobsCLI initialises the helpers against the Redis instance at addr.
func NewJobsCLI(addr string, db int) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: addr, DB: db}
	client := jobs.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{enqueuer: client, inspector: inspector, closers: []io.Closer{client, inspector}, now: time.Now}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a report job by short name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, format report.ExportFormat) (*asynq.TaskInfo, error) {
	if c == nil || c.enqueuer == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := jobs.BuildTrigger(name, format, c.now())
	if err != nil {
		return nil, err
	}
	return c.enqueuer.Enqueue(ctx, task)
}

// QueueStats summarises the state of one queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueues reports the metrics of both report queues. Queues that have
// never received a task report zeros.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, name := range []string{jobs.QueueDefault, jobs.QueueExports} {
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		switch {
		case errors.Is(err, asynq.ErrQueueNotFound):
		case err != nil:
			return nil, err
		default:
			stats.Pending, stats.Active, stats.Scheduled = info.Pending, info.Active, info.Scheduled
			stats.Retry, stats.Archived = info.Retry, info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "manage background report jobs",
		Subcommands: []*cli.Command{
			{
				Name:      "trigger",
				Usage:     "enqueue a job now",
				ArgsUsage: strings.Join(jobs.TriggerNames, "|"),
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Usage: "export format for the export job"},
				},
				Action: func(c *cli.Context) error {
					helper, err := jobsHelper(c)
					if err != nil {
						return err
					}
					defer func() { _ = helper.Close() }()
					info, err := helper.Trigger(c.Context, c.Args().First(), report.ExportFormat(c.String("format")))
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return (&runtime{stdout: c.App.Writer}).printJSON(map[string]string{"id": info.ID, "queue": info.Queue, "type": info.Type})
					}
					fmt.Fprintf(c.App.Writer, "enqueued %s on %s as %s\n", info.Type, info.Queue, info.ID)
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "show queue sizes",
				Action: func(c *cli.Context) error {
					helper, err := jobsHelper(c)
					if err != nil {
						return err
					}
					defer func() { _ = helper.Close() }()
					stats, err := helper.InspectQueues()
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return (&runtime{stdout: c.App.Writer}).printJSON(stats)
					}
					renderQueueStats(c.App.Writer, stats)
					return nil
				},
			},
		},
	}
}

func jobsHelper(c *cli.Context) (*JobsCLI, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.RedisAddr == "" {
		return nil, cli.Exit("jobs: REDIS_ADDR is not configured", 1)
	}
	return NewJobsCLI(cfg.RedisAddr, cfg.RedisDB), nil
}

func renderQueueStats(w io.Writer, stats []QueueStats) {
	tw := newTable(w)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	_ = tw.Flush()
}

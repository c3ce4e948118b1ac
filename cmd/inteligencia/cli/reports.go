package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v2"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/platform/db"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
)

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "branch", Usage: "branch number, range (1-7, 8-9) or all"},
		&cli.StringSliceFlag{Name: "classification", Usage: "classification to keep (repeatable)"},
		&cli.IntSliceFlag{Name: "year", Usage: "registration year to keep (repeatable)"},
		&cli.StringSliceFlag{Name: "status", Usage: "grant status ATIVA or CANCELADA (repeatable)"},
		&cli.StringSliceFlag{Name: "buyer", Usage: "buyer to keep (repeatable)"},
		&cli.StringSliceFlag{Name: "aging", Usage: "OVERDUE, NOT_YET_DUE or SETTLED (repeatable)"},
		&cli.StringFlag{Name: "supplier", Usage: "accent-insensitive supplier substring"},
	}
}

func filterFrom(c *cli.Context) report.Filter {
	f := report.Filter{
		Branch:          c.String("branch"),
		Classifications: c.StringSlice("classification"),
		Years:           c.IntSlice("year"),
		Statuses:        upper(c.StringSlice("status")),
		Buyers:          c.StringSlice("buyer"),
		Supplier:        c.String("supplier"),
	}
	for _, s := range upper(c.StringSlice("aging")) {
		f.Aging = append(f.Aging, aging.Status(s))
	}
	return f
}

func upper(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToUpper(strings.TrimSpace(v)))
	}
	return out
}

func unifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "unify",
		Usage: "merge accruals and pending returns into one pending-balance table",
		Flags: append(filterFlags(),
			&cli.StringFlag{Name: "format", Value: string(report.ExportCSV), Usage: "csv, xlsx or parquet"},
			&cli.StringFlag{Name: "out", Usage: "write into this directory instead of stdout"},
		),
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			format, err := report.ParseExportFormat(c.String("format"))
			if err != nil {
				return err
			}
			filter := filterFrom(c)
			if dir := c.String("out"); dir != "" {
				exp, err := rt.service.ExportUnifiedFile(c.Context, dir, format, filter)
				if err != nil {
					return err
				}
				return rt.print(exp, func(w io.Writer) { renderExport(w, "unified", exp) })
			}
			if format != report.ExportCSV && !stdoutIsFile(rt.stdout) {
				return cli.Exit(fmt.Sprintf("unify: refusing to write %s to a terminal, use --out", format), 1)
			}
			exp, err := rt.service.ExportUnified(c.Context, rt.stdout, format, filter)
			if err != nil {
				return err
			}
			renderExport(rt.stderr, "unified", exp)
			return nil
		},
	}
}

func dashboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "print a dashboard",
		Subcommands: []*cli.Command{
			{
				Name:  "accrual",
				Usage: "accrual KPIs, top balances and aging evolution",
				Flags: filterFlags(),
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					dash, err := rt.service.AccrualDashboard(c.Context, filterFrom(c))
					if err != nil {
						return err
					}
					return rt.print(dash, func(w io.Writer) { renderAccrual(w, dash) })
				},
			},
			{
				Name:  "returns",
				Usage: "pending returns summary",
				Flags: filterFlags(),
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					dash, err := rt.service.ReturnsDashboard(c.Context, filterFrom(c))
					if err != nil {
						return err
					}
					return rt.print(dash, func(w io.Writer) { renderReturns(w, dash) })
				},
			},
			{
				Name:  "unified",
				Usage: "unified pending balance by classification, buyer, type and status",
				Flags: filterFlags(),
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					sum, err := rt.service.UnifiedSummary(c.Context, filterFrom(c))
					if err != nil {
						return err
					}
					return rt.print(sum, func(w io.Writer) { renderUnifiedSummary(w, sum) })
				},
			},
		},
	}
}

type aggregateOptions struct {
	Source string   `validate:"oneof=accrual returns unified"`
	Keys   []string `validate:"min=1,dive,required"`
	Field  string   `validate:"required"`
}

var optionValidator = validator.New(validator.WithRequiredStructEnabled())

func aggregateCommand() *cli.Command {
	return &cli.Command{
		Name:  "aggregate",
		Usage: "sum a field grouped by key columns",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Value: report.SourceAccrual, Usage: "accrual, returns or unified"},
			&cli.StringSliceFlag{Name: "keys", Usage: "key columns (repeatable or comma separated)"},
			&cli.StringFlag{Name: "field", Usage: "column to sum"},
			&cli.StringFlag{Name: "where", Usage: "only rows where COLUMN:VALUE"},
		},
		Action: func(c *cli.Context) error {
			opts := aggregateOptions{
				Source: strings.ToLower(c.String("source")),
				Keys:   splitKeys(c.StringSlice("keys")),
				Field:  strings.TrimSpace(c.String("field")),
			}
			if err := optionValidator.Struct(opts); err != nil {
				return cli.Exit(fmt.Sprintf("aggregate: %v", err), 1)
			}
			where, err := report.ParseCondition(c.String("where"))
			if err != nil {
				return err
			}
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			view, err := rt.service.Aggregate(c.Context, report.AggregateQuery{
				Source: opts.Source,
				Keys:   opts.Keys,
				Field:  opts.Field,
				Where:  where,
			})
			if err != nil {
				return err
			}
			return rt.print(view, func(w io.Writer) { renderAggregate(w, view) })
		},
	}
}

// splitKeys accepts both repeated flags and comma separated values.
func splitKeys(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func excessCommand() *cli.Command {
	return &cli.Command{
		Name:  "excess",
		Usage: "value stock above the coverage target",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			view, err := rt.service.Excess(c.Context)
			if err != nil {
				return err
			}
			return rt.print(view, func(w io.Writer) { renderExcess(w, view) })
		},
	}
}

func preExpiryCommand() *cli.Command {
	return &cli.Command{
		Name:  "pre-expiry",
		Usage: "consolidate lots close to expiry into a workbook",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "output directory (default EXPORT_DIR)"},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			dir := c.String("out")
			if dir == "" {
				dir = rt.cfg.ExportDir
			}
			exp, err := rt.service.ExportPreExpiryFile(c.Context, dir)
			if err != nil {
				return err
			}
			return rt.print(exp, func(w io.Writer) { renderExport(w, "pre-expiry", exp) })
		},
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "replace the unified ledger snapshot in Postgres",
		Flags: filterFlags(),
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			if rt.cfg.PGDSN == "" {
				return cli.Exit("publish: PG_DSN is not configured", 1)
			}
			rows, err := rt.service.UnifiedRows(c.Context, filterFrom(c))
			if err != nil {
				return err
			}
			pool, err := db.New(c.Context, rt.cfg.PGDSN, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()
			pub, err := report.NewPublisher(pool, rt.logger).Publish(c.Context, rows, rt.service.AsOf())
			if err != nil {
				return err
			}
			return rt.print(pub, func(w io.Writer) { renderPublication(w, pub) })
		},
	}
}

// stdoutIsFile reports whether w is a regular file or pipe rather than a
// terminal, which is where binary exports belong.
func stdoutIsFile(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return true
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}

// Package cli implements the inteligencia command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/RoqueChristian/backup-inteligencia/internal/aging"
	"github.com/RoqueChristian/backup-inteligencia/internal/app"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
)

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := NewApp(stdout, stderr).RunContext(ctx, args); err != nil {
		_, _ = fmt.Fprintf(stderr, "inteligencia: %v\n", err)
		var exit cli.ExitCoder
		if errors.As(err, &exit) && exit.ExitCode() != 0 {
			return exit.ExitCode()
		}
		return 1
	}
	return 0
}

// NewApp builds the command tree. Output goes to stdout; logs and errors go
// to stderr.
func NewApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:  "inteligencia",
		Usage: "accrual, returns, inventory and sales reports over ERP extracts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before the environment is read"},
			&cli.BoolFlag{Name: "json", Usage: "print machine readable JSON"},
			&cli.StringFlag{Name: "as-of", Usage: "evaluation date `YYYY-MM-DD` (default today)"},
			&cli.StringFlag{Name: "accrual", Usage: "accrual extract path"},
			&cli.StringFlag{Name: "returns", Usage: "returns extract path"},
			&cli.StringFlag{Name: "excess", Usage: "stock position extract path"},
			&cli.StringFlag{Name: "pre-expiry", Usage: "pre-expiry lots extract path"},
			&cli.StringFlag{Name: "sales", Usage: "sales fact extract path"},
			&cli.StringFlag{Name: "product-dim", Usage: "product dimension extract path"},
			&cli.StringFlag{Name: "customer-dim", Usage: "customer dimension extract path"},
			&cli.StringFlag{Name: "seller-dim", Usage: "seller dimension extract path"},
			&cli.StringFlag{Name: "encoding", Usage: "CSV encoding (utf-8, windows-1252)"},
			&cli.StringFlag{Name: "schema", Usage: "column mapping override file"},
		},
		Before: func(c *cli.Context) error {
			err := godotenv.Load(c.String("env-file"))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", c.String("env-file"), err)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			unifyCommand(),
			dashboardCommand(),
			aggregateCommand(),
			excessCommand(),
			preExpiryCommand(),
			salesCommand(),
			publishCommand(),
			jobsCommand(),
		},
		Writer:         stdout,
		ErrWriter:      stderr,
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

type runtime struct {
	cfg     *app.Config
	logger  *slog.Logger
	service *report.Service
	json    bool
	stdout  io.Writer
	stderr  io.Writer
}

// loadConfig reads the environment and layers the global flags over it.
func loadConfig(c *cli.Context) (*app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	overrides := []struct {
		flag string
		dest *string
	}{
		{"accrual", &cfg.AccrualSource},
		{"returns", &cfg.ReturnsSource},
		{"excess", &cfg.ExcessSource},
		{"pre-expiry", &cfg.PreExpirySource},
		{"sales", &cfg.SalesSource},
		{"product-dim", &cfg.ProductDimSource},
		{"customer-dim", &cfg.CustomerDimSource},
		{"seller-dim", &cfg.SellerDimSource},
		{"encoding", &cfg.SourceEncoding},
		{"schema", &cfg.SchemaFile},
	}
	for _, o := range overrides {
		if c.IsSet(o.flag) {
			*o.dest = c.String(o.flag)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRuntime prepares a one-shot report service. Sections are never cached
// across invocations, so Redis stays out of the picture.
func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger := app.NewLoggerTo(cfg, c.App.ErrWriter)
	clock, err := clockFor(c.String("as-of"))
	if err != nil {
		return nil, err
	}
	svc, err := app.NewReportService(cfg, logger, app.ServiceOptions{Clock: clock})
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:     cfg,
		logger:  logger,
		service: svc,
		json:    c.Bool("json"),
		stdout:  c.App.Writer,
		stderr:  c.App.ErrWriter,
	}, nil
}

func clockFor(raw string) (aging.Clock, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid --as-of %q (expected YYYY-MM-DD)", raw), 1)
	}
	return aging.Fixed(t), nil
}

func (rt *runtime) printJSON(v any) error {
	enc := json.NewEncoder(rt.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// print writes v as JSON when requested and through human otherwise.
func (rt *runtime) print(v any, human func(io.Writer)) error {
	if rt.json {
		return rt.printJSON(v)
	}
	human(rt.stdout)
	return nil
}

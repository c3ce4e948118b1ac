package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/RoqueChristian/backup-inteligencia/internal/report"
	"github.com/RoqueChristian/backup-inteligencia/internal/sales"
)

func sellerFlag() cli.Flag {
	return &cli.StringSliceFlag{Name: "seller", Usage: "seller to keep (repeatable)"}
}

func salesFilterFrom(c *cli.Context) sales.Filter {
	return sales.Filter{Sellers: c.StringSlice("seller")}
}

func customerArg(c *cli.Context) (int64, error) {
	raw := c.Args().First()
	code, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, cli.Exit(fmt.Sprintf("%s: customer code required, got %q", c.Command.Name, raw), 1)
	}
	return code, nil
}

func salesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sales",
		Usage: "customer lifecycle views over the sales fact",
		Subcommands: []*cli.Command{
			{
				Name:  "dashboard",
				Usage: "portfolio KPIs and revenue breakdowns",
				Flags: []cli.Flag{sellerFlag()},
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					dash, err := rt.service.SalesDashboard(c.Context, salesFilterFrom(c))
					if err != nil {
						return err
					}
					return rt.print(dash, func(w io.Writer) { renderSales(w, dash) })
				},
			},
			{
				Name:  "customers",
				Usage: "list the customers of the selected sellers",
				Flags: []cli.Flag{sellerFlag()},
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					out, err := rt.service.SalesCustomers(c.Context, salesFilterFrom(c))
					if err != nil {
						return err
					}
					return rt.print(out, func(w io.Writer) { renderCustomers(w, out) })
				},
			},
			{
				Name:      "customer",
				Usage:     "lifetime profile of one customer",
				ArgsUsage: "CODE",
				Flags:     []cli.Flag{sellerFlag()},
				Action: func(c *cli.Context) error {
					code, err := customerArg(c)
					if err != nil {
						return err
					}
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					p, err := rt.service.CustomerProfile(c.Context, salesFilterFrom(c), code)
					if err != nil {
						return err
					}
					return rt.print(p, func(w io.Writer) { renderProfile(w, p) })
				},
			},
			{
				Name:      "cross-sell",
				Usage:     "categories one customer never bought with their best sellers",
				ArgsUsage: "CODE",
				Flags:     []cli.Flag{sellerFlag()},
				Action: func(c *cli.Context) error {
					code, err := customerArg(c)
					if err != nil {
						return err
					}
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					out, err := rt.service.CrossSell(c.Context, salesFilterFrom(c), code)
					if err != nil {
						return err
					}
					return rt.print(out, func(w io.Writer) { renderCrossSell(w, out) })
				},
			},
			{
				Name:  "mix-erosion",
				Usage: "customers buying from fewer categories than the year before",
				Flags: []cli.Flag{sellerFlag()},
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					out, err := rt.service.MixErosion(c.Context, salesFilterFrom(c))
					if err != nil {
						return err
					}
					return rt.print(out, func(w io.Writer) { renderErosion(w, out) })
				},
			},
			{
				Name:      "items",
				Usage:     "item by month purchase history of one customer",
				ArgsUsage: "CODE",
				Flags: []cli.Flag{
					sellerFlag(),
					&cli.IntFlag{Name: "limit", Value: sales.DefaultHistoryRows, Usage: "rows to print, 0 for all"},
					&cli.StringFlag{Name: "format", Usage: "write the full history as csv or xlsx to stdout"},
				},
				Action: func(c *cli.Context) error {
					code, err := customerArg(c)
					if err != nil {
						return err
					}
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					if raw := c.String("format"); raw != "" {
						format, err := report.ParseExportFormat(raw)
						if err != nil {
							return err
						}
						if format != report.ExportCSV && !stdoutIsFile(rt.stdout) {
							return cli.Exit(fmt.Sprintf("items: refusing to write %s to a terminal", format), 1)
						}
						_, err = rt.service.ExportItemHistory(c.Context, rt.stdout, format, salesFilterFrom(c), code)
						return err
					}
					h, err := rt.service.ItemHistory(c.Context, salesFilterFrom(c), code, c.Int("limit"))
					if err != nil {
						return err
					}
					return rt.print(h, func(w io.Writer) { renderItemHistory(w, h) })
				},
			},
		},
	}
}

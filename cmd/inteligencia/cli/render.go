package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cast"

	"github.com/RoqueChristian/backup-inteligencia/internal/aggregate"
	"github.com/RoqueChristian/backup-inteligencia/internal/money"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
	"github.com/RoqueChristian/backup-inteligencia/internal/sales"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func renderAccrual(w io.Writer, d report.AccrualDashboard) {
	fmt.Fprintf(w, "Accrual dashboard as of %s\n\n", d.AsOf)
	tw := newTable(w)
	fmt.Fprintf(tw, "Grants\t%d\n", d.KPIs.Grants)
	fmt.Fprintf(tw, "Grant value\t%s\n", money.FormatBRL(d.KPIs.GrantValue))
	fmt.Fprintf(tw, "Receivable\t%s\n", money.FormatBRL(d.KPIs.Receivable))
	fmt.Fprintf(tw, "To apply\t%s\n", money.FormatBRL(d.KPIs.ToApply))
	fmt.Fprintf(tw, "Overdue receivable\t%s\n", money.FormatBRL(d.KPIs.OverdueReceivable))
	_ = tw.Flush()

	section(w, "Top balances to apply", d.TopToApply)
	section(w, "Overdue by classification", d.OverdueByClassification)
	section(w, "Receivable by year", d.ReceivableByYear)

	if len(d.Evolution) > 0 {
		fmt.Fprintln(w, "\nAging evolution")
		tw = newTable(w)
		fmt.Fprintln(tw, "YEAR\tOVERDUE\tNOT_YET_DUE")
		for _, e := range d.Evolution {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Year, money.FormatBRL(e.Overdue), money.FormatBRL(e.NotYetDue))
		}
		_ = tw.Flush()
	}
	section(w, "Supplier by year", d.SupplierByYear)
	renderWarnings(w, d.Warnings)
}

func renderReturns(w io.Writer, d report.ReturnsDashboard) {
	fmt.Fprintf(w, "Returns dashboard as of %s\n\n", d.AsOf)
	fmt.Fprintf(w, "Pending returns: %d totalling %s\n", d.Pending, money.FormatBRL(d.PendingValue))
	section(w, "Pending by branch, classification, supplier and buyer", d.Summary)
	renderWarnings(w, d.Warnings)
}

func renderUnifiedSummary(w io.Writer, s report.UnifiedSummary) {
	fmt.Fprintf(w, "Unified pending balance as of %s: %s\n", s.AsOf, money.FormatBRL(s.Total))
	section(w, "Summary", s.Summary)
	renderWarnings(w, s.Warnings)
}

func renderAggregate(w io.Writer, v report.AggregateView) {
	if v.Where != nil {
		fmt.Fprintf(w, "where %s = %s\n", v.Where.Column, v.Where.Value)
	}
	if v.Result.Empty() {
		fmt.Fprintf(w, "%s: no rows\n", v.Result.Column)
	} else {
		renderResult(w, v.Result)
	}
	renderWarnings(w, v.Warnings)
}

func renderExcess(w io.Writer, v report.ExcessView) {
	fmt.Fprintf(w, "Stock value:  %s\n", money.FormatBRL(v.StockValue))
	fmt.Fprintf(w, "Excess value: %s\n", money.FormatBRL(v.Excess))
	section(w, "Excess by branch", v.ByBranch)
	section(w, "Excess by month", v.ByMonth)
}

func renderSales(w io.Writer, d sales.Dashboard) {
	fmt.Fprintf(w, "Sales dashboard, latest movement %s\n\n", d.Today)
	tw := newTable(w)
	fmt.Fprintf(tw, "Net revenue\t%s\n", money.FormatBRL(d.KPIs.NetRevenue))
	fmt.Fprintf(tw, "Active customers\t%d\n", d.KPIs.ActiveCustomers)
	fmt.Fprintf(tw, "Active SKUs\t%d\n", d.KPIs.ActiveSKUs)
	if d.KPIs.Year > 0 {
		fmt.Fprintf(tw, "Revenue %d\t%s\n", d.KPIs.Year, money.FormatBRL(d.KPIs.YearRevenue))
		fmt.Fprintf(tw, "Revenue %d\t%s\n", d.KPIs.Year-1, money.FormatBRL(d.KPIs.PreviousYearRevenue))
		fmt.Fprintf(tw, "YoY\t%s%%\n", money.DecimalComma(d.KPIs.YoYPercent))
	}
	_ = tw.Flush()

	section(w, "Revenue by month", d.RevenueByMonth)
	section(w, "Top categories", d.TopCategories)
	section(w, "Revenue by origin", d.RevenueByOrigin)
}

func renderCustomers(w io.Writer, customers []sales.CustomerRef) {
	tw := newTable(w)
	fmt.Fprintln(tw, "CODE\tCUSTOMER")
	for _, c := range customers {
		fmt.Fprintf(tw, "%d\t%s\n", c.Code, c.Name)
	}
	_ = tw.Flush()
}

func renderProfile(w io.Writer, p sales.Profile) {
	fmt.Fprintf(w, "%d %s (seller %s)\n\n", p.Code, p.Name, p.Seller)
	tw := newTable(w)
	fmt.Fprintf(tw, "Lifetime value\t%s\n", money.FormatBRL(p.LTV))
	fmt.Fprintf(tw, "Orders\t%d\n", p.Orders)
	fmt.Fprintf(tw, "Average ticket\t%s\n", money.FormatBRL(p.AverageTicket))
	fmt.Fprintf(tw, "Last purchase\t%s\n", cell(p.LastPurchase))
	fmt.Fprintf(tw, "Inactive days\t%d\n", p.InactiveDays)
	_ = tw.Flush()

	if len(p.Items) > 0 {
		fmt.Fprintln(w, "\nItems")
		tw = newTable(w)
		fmt.Fprintln(tw, "PRODUCT\tCATEGORY\tQUANTITY\tTOTAL\tLAST_PURCHASE\tSTATUS")
		for _, it := range p.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", it.Product, it.Category,
				money.DecimalComma(it.Quantity), money.FormatBRL(it.Total), cell(it.LastPurchase), it.Status)
		}
		_ = tw.Flush()
	}
	section(w, "Share by category and section", p.Share)
}

func renderCrossSell(w io.Writer, c sales.CrossSell) {
	fmt.Fprintf(w, "%d %s buys %d of %d categories\n", c.Code, c.Name, len(c.Categories), c.TotalCategories)
	if c.Complete {
		fmt.Fprintln(w, "complete mix, nothing to suggest")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "CATEGORY\tBEST_SELLER\tREVENUE")
	for _, s := range c.Suggestions {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Category, s.Product, money.FormatBRL(s.Revenue))
	}
	_ = tw.Flush()
}

func renderErosion(w io.Writer, rows []sales.Erosion) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no customer narrowed its mix")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "CODE\tCUSTOMER\tPREVIOUS\tCURRENT\tLOST")
	for _, e := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", e.Code, e.Name, e.PreviousCategories, e.CurrentCategories, e.Lost)
	}
	_ = tw.Flush()
}

func renderItemHistory(w io.Writer, h sales.ItemHistory) {
	fmt.Fprintf(w, "%d %s: %d of %d products\n", h.Code, h.Name, len(h.Rows), h.TotalRows)
	tw := newTable(w)
	fmt.Fprintln(tw, strings.Join(append(append([]string{"PRODUCT"}, h.Periods...), "TOTAL"), "\t"))
	for _, r := range h.Rows {
		cells := make([]string, 0, len(r.Quantities)+2)
		cells = append(cells, r.Product)
		for _, q := range r.Quantities {
			cells = append(cells, money.DecimalComma(q))
		}
		cells = append(cells, money.DecimalComma(r.Total))
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func renderExport(w io.Writer, name string, e report.Export) {
	target := e.Path
	if target == "" {
		target = "stdout"
	}
	fmt.Fprintf(w, "%s: %d rows, %s, written to %s\n", name, e.Rows, money.FormatBRL(e.Total), target)
}

func renderPublication(w io.Writer, p report.Publication) {
	fmt.Fprintf(w, "published %d rows (%s) as of %s, run %s\n", p.Rows, money.FormatBRL(p.Total), p.AsOf, p.RunID)
}

func section(w io.Writer, title string, r aggregate.Result) {
	if r.Empty() {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	renderResult(w, r)
}

func renderResult(w io.Writer, r aggregate.Result) {
	tw := newTable(w)
	fmt.Fprintln(tw, strings.Join(append(append([]string{}, r.KeyColumns...), r.Column, "COUNT"), "\t"))
	for _, g := range r.Groups {
		cells := make([]string, 0, len(g.Keys)+2)
		for _, k := range g.Keys {
			cells = append(cells, cell(k))
		}
		cells = append(cells, money.FormatBRL(g.Sum), cast.ToString(g.Count))
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func renderWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
}

// cell renders an aggregation key. Null keys form their own group and print
// as an empty cell.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format("02/01/2006")
	case pgtype.Date:
		if !t.Valid {
			return ""
		}
		return t.Time.Format("02/01/2006")
	}
	return cast.ToString(v)
}

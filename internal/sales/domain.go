// Package sales builds the customer lifecycle views over the sales fact
// extract: portfolio KPIs, customer profiles, cross-sell gaps, mix erosion
// and the item by month purchase history.
package sales

import (
	"errors"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/aggregate"
)

// ErrCustomerNotFound reports a customer code absent from the filtered book.
var ErrCustomerNotFound = errors.New("sales: customer not found")

// Item statuses.
const (
	StatusActive = "ACTIVE"
	StatusChurn  = "CHURN"
)

// View limits.
const (
	TopCategoryLimit   = 10
	ProfileItemLimit   = 100
	SuggestionLimit    = 8
	ErosionLimit       = 20
	DefaultHistoryRows = 150
)

// Line is one invoiced item joined with its product, customer and seller.
type Line struct {
	Branch         int64           `json:"branch"`
	MovedAt        pgtype.Date     `json:"moved_at"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	OrderNumber    int64           `json:"order_number"`
	SellerCode     int64           `json:"seller_code"`
	Seller         string          `json:"seller"`
	SupervisorCode int64           `json:"supervisor_code"`
	CustomerCode   int64           `json:"customer_code"`
	Customer       string          `json:"customer"`
	ProductCode    int64           `json:"product_code"`
	Product        string          `json:"product"`
	Category       string          `json:"category"`
	Section        string          `json:"section"`
	Quantity       decimal.Decimal `json:"quantity"`
	NetValue       decimal.Decimal `json:"net_value"`
	Origin         string          `json:"origin"`
}

// Filter narrows the book to a set of sellers. Names match case-insensitively.
type Filter struct {
	Sellers []string `validate:"max=100,dive,required,max=120"`
}

// Normalized returns the filter with trimmed, upper-cased seller names.
func (f Filter) Normalized() Filter {
	out := Filter{}
	for _, s := range f.Sellers {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out.Sellers = append(out.Sellers, s)
		}
	}
	return out
}

// Key is the cache identity of the filter.
func (f Filter) Key() string {
	sellers := append([]string(nil), f.Normalized().Sellers...)
	sort.Strings(sellers)
	return "sellers=" + strings.Join(sellers, "|")
}

// KPIs are the portfolio headline figures. Year is the year of the latest
// movement and YoYPercent compares it against the year before; it is zero
// when the previous year has no positive revenue.
type KPIs struct {
	NetRevenue          decimal.Decimal `json:"net_revenue"`
	ActiveCustomers     int             `json:"active_customers"`
	Year                int             `json:"year"`
	YearRevenue         decimal.Decimal `json:"year_revenue"`
	PreviousYearRevenue decimal.Decimal `json:"previous_year_revenue"`
	YoYPercent          decimal.Decimal `json:"yoy_percent"`
	ActiveSKUs          int             `json:"active_skus"`
}

// Dashboard is the portfolio view.
type Dashboard struct {
	Today           string           `json:"today"`
	KPIs            KPIs             `json:"kpis"`
	RevenueByMonth  aggregate.Result `json:"revenue_by_month"`
	TopCategories   aggregate.Result `json:"top_categories"`
	RevenueByOrigin aggregate.Result `json:"revenue_by_origin"`
	Sellers         []string         `json:"sellers"`
}

// CustomerRef identifies a customer of the book.
type CustomerRef struct {
	Code int64  `json:"code"`
	Name string `json:"name"`
}

// ItemSummary is one product bought by a customer.
type ItemSummary struct {
	Product      string          `json:"product"`
	Category     string          `json:"category"`
	Quantity     decimal.Decimal `json:"quantity"`
	Total        decimal.Decimal `json:"total"`
	LastPurchase pgtype.Date     `json:"last_purchase"`
	Status       string          `json:"status"`
}

// Profile is the lifetime view of one customer.
type Profile struct {
	CustomerRef
	Seller        string           `json:"seller"`
	LTV           decimal.Decimal  `json:"ltv"`
	Orders        int              `json:"orders"`
	AverageTicket decimal.Decimal  `json:"average_ticket"`
	LastPurchase  pgtype.Date      `json:"last_purchase"`
	InactiveDays  int              `json:"inactive_days"`
	Items         []ItemSummary    `json:"items"`
	Share         aggregate.Result `json:"share"`
}

// Suggestion is the best seller of a category the customer never bought.
type Suggestion struct {
	Category string          `json:"category"`
	Product  string          `json:"product"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// CrossSell lists the customer's categories against the whole portfolio.
type CrossSell struct {
	CustomerRef
	Categories      []string     `json:"categories"`
	TotalCategories int          `json:"total_categories"`
	Suggestions     []Suggestion `json:"suggestions"`
	Complete        bool         `json:"complete"`
}

// Erosion is a customer buying from fewer categories than the year before.
type Erosion struct {
	CustomerRef
	PreviousCategories int `json:"previous_categories"`
	CurrentCategories  int `json:"current_categories"`
	Lost               int `json:"lost"`
}

// HistoryRow is one product of the purchase history. Quantities align with
// ItemHistory.Periods.
type HistoryRow struct {
	Product    string            `json:"product"`
	Quantities []decimal.Decimal `json:"quantities"`
	Total      decimal.Decimal   `json:"total"`
}

// ItemHistory is the item by month quantity pivot of one customer. Periods
// read MM/YYYY in calendar order.
type ItemHistory struct {
	CustomerRef
	Periods   []string     `json:"periods"`
	Rows      []HistoryRow `json:"rows"`
	TotalRows int          `json:"total_rows"`
}

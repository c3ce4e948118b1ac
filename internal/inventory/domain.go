package inventory

import (
	"errors"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// StockPosition is one (branch, product, month) row of the stock snapshot.
type StockPosition struct {
	Branch         int64           `json:"branch"`
	Classification string          `json:"classification"`
	ProductCode    string          `json:"product_code"`
	Product        string          `json:"product"`
	Category       string          `json:"category"`
	Section        string          `json:"section"`
	Department     string          `json:"department"`
	BuyerCode      string          `json:"buyer_code"`
	Buyer          string          `json:"buyer"`
	SupplierCode   string          `json:"supplier_code"`
	Supplier       string          `json:"supplier"`
	Month          string          `json:"month"`
	LastCost       decimal.Decimal `json:"last_cost"`
	StockQty       decimal.Decimal `json:"stock_qty"`
	Sales90D       decimal.Decimal `json:"sales_90d"`
	ZeroStockDays  int64           `json:"zero_stock_days"`
	NewProduct     bool            `json:"new_product"`
}

// Valuation is a position with its derived stock value, corrected daily
// sales and excess value.
type Valuation struct {
	StockPosition
	StockValue  decimal.Decimal `json:"stock_value"`
	DailySales  decimal.Decimal `json:"daily_sales"`
	ExcessValue decimal.Decimal `json:"excess_value"`
}

// Lot is one expiring batch from the pre-expiry extract.
type Lot struct {
	Branch         int64           `json:"branch"`
	Classification string          `json:"classification"`
	Supplier       string          `json:"supplier"`
	ProductCode    string          `json:"product_code"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	LastCost       decimal.Decimal `json:"last_cost"`
	ExpiresAt      pgtype.Date     `json:"expires_at"`
}

// PreExpiryLine is the consolidated quantity of one product expiring on one
// date at one branch.
type PreExpiryLine struct {
	Branch         int64           `json:"branch"`
	Classification string          `json:"classification"`
	Supplier       string          `json:"supplier"`
	ProductCode    string          `json:"product_code"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	LastCost       decimal.Decimal `json:"last_cost"`
	ExpiresAt      pgtype.Date     `json:"expires_at"`
	Total          decimal.Decimal `json:"total"`
}

// ErrInvalidPolicy reports a coverage policy that cannot be evaluated.
var ErrInvalidPolicy = errors.New("inventory: invalid coverage policy")

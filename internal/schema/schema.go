// Package schema is the shared canonical-schema table: column names, source
// aliases, sentinel labels and the excluded catch-all classification.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/RoqueChristian/backup-inteligencia/internal/coerce"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
)

//go:embed schema.yaml
var defaultYAML []byte

// Dataset names an extract family.
type Dataset string

const (
	Accrual   Dataset = "accrual"
	Returns   Dataset = "returns"
	Excess    Dataset = "excess"
	PreExpiry Dataset = "pre_expiry"

	Sales       Dataset = "sales"
	ProductDim  Dataset = "product_dim"
	CustomerDim Dataset = "customer_dim"
	SellerDim   Dataset = "seller_dim"
)

// Canonical column names.
const (
	ColBranch         = "BRANCH"
	ColClassification = "CLASSIFICATION"
	ColBuyer          = "BUYER"
	ColBuyerCode      = "BUYER_CODE"
	ColSupplier       = "SUPPLIER"
	ColSupplierCode   = "SUPPLIER_CODE"
	ColGrantNumber    = "GRANT_NUMBER"
	ColRegisteredAt   = "REGISTERED_AT"
	ColRegisteredYear = "REGISTERED_YEAR"
	ColDueAt          = "DUE_AT"
	ColGrantValue     = "GRANT_VALUE"
	ColAppliedTotal   = "APPLIED_TOTAL"
	ColDebit          = "DEBIT"
	ColCredit         = "CREDIT"
	ColStatus         = "STATUS"
	ColReceivable     = "RECEIVABLE"
	ColToApply        = "TO_APPLY"
	ColAgingStatus    = "AGING_STATUS"
	ColDaysOverdue    = "DAYS_OVERDUE"
	ColReturnValue    = "RETURN_VALUE"
	ColIssuedAt       = "ISSUED_AT"
	ColPaidAt         = "PAID_AT"
	ColSettlement     = "SETTLEMENT"
	ColType           = "TYPE"
	ColUnifiedStatus  = "UNIFIED_STATUS"
	ColPendingAmount  = "PENDING_AMOUNT"
	ColProductCode    = "PRODUCT_CODE"
	ColProduct        = "PRODUCT"
	ColDescription    = "DESCRIPTION"
	ColCategory       = "CATEGORY"
	ColSection        = "SECTION"
	ColDepartment     = "DEPARTMENT"
	ColLastCost       = "LAST_COST"
	ColStockQty       = "STOCK_QTY"
	ColStockValue     = "STOCK_VALUE"
	ColSales90D       = "SALES_90D"
	ColZeroStockDays  = "ZERO_STOCK_DAYS"
	ColDailySales     = "DAILY_SALES"
	ColExcessValue    = "EXCESS_VALUE"
	ColNewProduct     = "NEW_PRODUCT"
	ColMonth          = "MONTH"
	ColQuantity       = "QUANTITY"
	ColExpiresAt      = "EXPIRES_AT"
	ColTotal          = "TOTAL"
	ColMovedAt        = "MOVED_AT"
	ColYear           = "YEAR"
	ColOrderNumber    = "ORDER_NUMBER"
	ColSellerCode     = "SELLER_CODE"
	ColSeller         = "SELLER"
	ColSupervisorCode = "SUPERVISOR_CODE"
	ColCustomerCode   = "CUSTOMER_CODE"
	ColCustomer       = "CUSTOMER"
	ColNetValue       = "NET_VALUE"
	ColOrigin         = "ORIGIN"
)

// Sentinels fill missing categorical values. Unregistered marks a sales line
// whose code has no dimension entry; NotInformed a value the extract left
// blank or a column it does not carry.
type Sentinels struct {
	Undefined    string `yaml:"undefined"`
	Unclassified string `yaml:"unclassified"`
	Unregistered string `yaml:"unregistered"`
	NotInformed  string `yaml:"not_informed"`
}

// Mapping describes how one dataset's source columns land on canonical names.
// Numeric and Dates list canonical columns typed up front by Prepare.
type Mapping struct {
	Renames map[string]string `yaml:"renames"`
	Numeric []string          `yaml:"numeric"`
	Dates   []string          `yaml:"dates"`
}

// Schema is the full mapping table.
type Schema struct {
	Sentinels               Sentinels           `yaml:"sentinels"`
	ExcludedClassifications []string            `yaml:"excluded_classifications"`
	Datasets                map[Dataset]Mapping `yaml:"datasets"`
}

var defaultSchema = sync.OnceValues(func() (*Schema, error) {
	return parse(defaultYAML)
})

// Default returns the embedded schema table.
func Default() *Schema {
	s, err := defaultSchema()
	if err != nil {
		panic(fmt.Sprintf("schema: embedded table invalid: %v", err))
	}
	return s
}

// Load reads an override file and layers it over the embedded table. An
// empty path returns the default table.
func Load(path string) (*Schema, error) {
	base := Default()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	override, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: parse %s: %w", path, err)
	}
	return base.merge(override), nil
}

func parse(raw []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Datasets == nil {
		s.Datasets = map[Dataset]Mapping{}
	}
	return &s, nil
}

func (s *Schema) merge(o *Schema) *Schema {
	out := &Schema{
		Sentinels:               s.Sentinels,
		ExcludedClassifications: s.ExcludedClassifications,
		Datasets:                make(map[Dataset]Mapping, len(s.Datasets)),
	}
	if o.Sentinels.Undefined != "" {
		out.Sentinels.Undefined = o.Sentinels.Undefined
	}
	if o.Sentinels.Unclassified != "" {
		out.Sentinels.Unclassified = o.Sentinels.Unclassified
	}
	if o.Sentinels.Unregistered != "" {
		out.Sentinels.Unregistered = o.Sentinels.Unregistered
	}
	if o.Sentinels.NotInformed != "" {
		out.Sentinels.NotInformed = o.Sentinels.NotInformed
	}
	if len(o.ExcludedClassifications) > 0 {
		out.ExcludedClassifications = o.ExcludedClassifications
	}
	for name, m := range s.Datasets {
		out.Datasets[name] = m
	}
	for name, m := range o.Datasets {
		cur := out.Datasets[name]
		renames := make(map[string]string, len(cur.Renames)+len(m.Renames))
		for k, v := range cur.Renames {
			renames[k] = v
		}
		for k, v := range m.Renames {
			renames[k] = v
		}
		cur.Renames = renames
		if len(m.Numeric) > 0 {
			cur.Numeric = m.Numeric
		}
		if len(m.Dates) > 0 {
			cur.Dates = m.Dates
		}
		out.Datasets[name] = cur
	}
	return out
}

// Mapping returns the dataset mapping, empty when unknown.
func (s *Schema) Mapping(ds Dataset) Mapping {
	return s.Datasets[ds]
}

// Apply renames the frame's source columns to canonical names.
func (s *Schema) Apply(ds Dataset, f *frame.Frame) {
	f.Rename(s.Mapping(ds).Renames)
}

// Prepare renames the frame's source columns and types the mapping's columns
// in place. Numeric columns become decimals, unreadable cells and absent
// columns reading as zero. Date columns become dates; with sheet set, numeric
// text in a date column is read as a workbook serial.
func (s *Schema) Prepare(ds Dataset, f *frame.Frame, sheet bool) {
	s.Apply(ds, f)
	m := s.Mapping(ds)
	for _, col := range m.Numeric {
		if !f.Map(col, toDecimal) {
			f.AddColumn(col, decimal.Zero)
		}
	}
	toDate := func(v any) any { return coerce.Date(v) }
	if sheet {
		toDate = func(v any) any { return coerce.SheetDate(v) }
	}
	for _, col := range m.Dates {
		f.Map(col, toDate)
	}
}

func toDecimal(v any) any {
	d, _ := coerce.Decimal(v)
	return d
}

// Excluded reports whether a classification is the catch-all label removed
// from analysis. Comparison ignores case and surrounding spaces.
func (s *Schema) Excluded(classification string) bool {
	c := strings.TrimSpace(classification)
	for _, label := range s.ExcludedClassifications {
		if strings.EqualFold(c, label) {
			return true
		}
	}
	return false
}

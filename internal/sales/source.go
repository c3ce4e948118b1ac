package sales

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/RoqueChristian/backup-inteligencia/internal/coerce"
	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/frame"
	"github.com/RoqueChristian/backup-inteligencia/internal/schema"
)

// FactRecord is the parquet layout of the sales fact extract.
type FactRecord struct {
	Branch         *int64   `parquet:"name=COD_FILIAL, type=INT64, repetitiontype=OPTIONAL"`
	MovedAt        *int32   `parquet:"name=DATA_MOVIMENTACAO, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	OrderNumber    *int64   `parquet:"name=NUM_PEDIDO, type=INT64, repetitiontype=OPTIONAL"`
	SellerCode     *int64   `parquet:"name=COD_VENDEDOR, type=INT64, repetitiontype=OPTIONAL"`
	SupervisorCode *int64   `parquet:"name=COD_SUPERVISOR, type=INT64, repetitiontype=OPTIONAL"`
	CustomerCode   *int64   `parquet:"name=COD_CLIENTE, type=INT64, repetitiontype=OPTIONAL"`
	ProductCode    *int64   `parquet:"name=COD_PRODUTO, type=INT64, repetitiontype=OPTIONAL"`
	Quantity       *float64 `parquet:"name=QT_VENDIDA, type=DOUBLE, repetitiontype=OPTIONAL"`
	NetValue       *float64 `parquet:"name=VALOR_LIQUIDO, type=DOUBLE, repetitiontype=OPTIONAL"`
	Origin         *string  `parquet:"name=ORIGEM_PEDIDO, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// ProductRecord is the parquet layout of the product dimension.
type ProductRecord struct {
	Code     *int64  `parquet:"name=COD_PRODUTO, type=INT64, repetitiontype=OPTIONAL"`
	Name     *string `parquet:"name=NM_PRODUTO, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Category *string `parquet:"name=CATEGORIA, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Section  *string `parquet:"name=SECAO, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// CustomerRecord is the parquet layout of the customer dimension.
type CustomerRecord struct {
	Code *int64  `parquet:"name=COD_CLIENTE, type=INT64, repetitiontype=OPTIONAL"`
	Name *string `parquet:"name=NM_CLIENTE, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// SellerRecord is the parquet layout of the seller dimension.
type SellerRecord struct {
	Code *int64  `parquet:"name=COD_VENDEDOR, type=INT64, repetitiontype=OPTIONAL"`
	Name *string `parquet:"name=NM_VENDEDOR, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// Product is a product dimension entry.
type Product struct {
	Name     string
	Category string
	Section  string
}

// Dimensions are the lookup tables joined onto the fact lines, keyed by code.
type Dimensions struct {
	Products  map[int64]Product
	Customers map[int64]string
	Sellers   map[int64]string
}

// DimensionSources locates the dimension extracts. A source with an empty
// path is absent and every code it would resolve reads as unregistered.
type DimensionSources struct {
	Products  extract.Source
	Customers extract.Source
	Sellers   extract.Source
}

// ReadDimensions loads every present dimension.
func ReadDimensions(srcs DimensionSources, opts extract.Options, s *schema.Schema) (Dimensions, error) {
	dims := Dimensions{
		Products:  map[int64]Product{},
		Customers: map[int64]string{},
		Sellers:   map[int64]string{},
	}
	if srcs.Products.Path != "" {
		f, err := readTable(srcs.Products, opts, s, schema.ProductDim)
		if err != nil {
			return Dimensions{}, err
		}
		dims.Products = NormalizeProducts(f, s)
	}
	if srcs.Customers.Path != "" {
		f, err := readTable(srcs.Customers, opts, s, schema.CustomerDim)
		if err != nil {
			return Dimensions{}, err
		}
		dims.Customers = NormalizeNames(f, s, schema.CustomerDim, schema.ColCustomerCode, schema.ColCustomer)
	}
	if srcs.Sellers.Path != "" {
		f, err := readTable(srcs.Sellers, opts, s, schema.SellerDim)
		if err != nil {
			return Dimensions{}, err
		}
		dims.Sellers = NormalizeNames(f, s, schema.SellerDim, schema.ColSellerCode, schema.ColSeller)
	}
	return dims, nil
}

// ReadLines loads the fact extract and joins it with dims.
func ReadLines(src extract.Source, opts extract.Options, s *schema.Schema, dims Dimensions) ([]Line, error) {
	f, err := readTable(src, opts, s, schema.Sales)
	if err != nil {
		return nil, err
	}
	return NormalizeLines(f, s, dims), nil
}

func readTable(src extract.Source, opts extract.Options, s *schema.Schema, ds schema.Dataset) (*frame.Frame, error) {
	var (
		f   *frame.Frame
		err error
	)
	if src.Format == extract.FormatParquet {
		f, err = parquetFrame(src.Path, ds)
	} else {
		f, err = extract.ReadFrame(src, opts)
	}
	if err != nil {
		return nil, err
	}
	s.Prepare(ds, f, src.Format == extract.FormatXLSX)
	return f, nil
}

func parquetFrame(path string, ds schema.Dataset) (*frame.Frame, error) {
	switch ds {
	case schema.Sales:
		rows, err := extract.ReadParquet[FactRecord](path)
		if err != nil {
			return nil, err
		}
		f := frame.New(
			schema.ColBranch, schema.ColMovedAt, schema.ColOrderNumber, schema.ColSellerCode,
			schema.ColSupervisorCode, schema.ColCustomerCode, schema.ColProductCode,
			schema.ColQuantity, schema.ColNetValue, schema.ColOrigin,
		)
		for _, r := range rows {
			f.AppendMap(map[string]any{
				schema.ColBranch:         r.Branch,
				schema.ColMovedAt:        extract.EpochDate(r.MovedAt),
				schema.ColOrderNumber:    r.OrderNumber,
				schema.ColSellerCode:     r.SellerCode,
				schema.ColSupervisorCode: r.SupervisorCode,
				schema.ColCustomerCode:   r.CustomerCode,
				schema.ColProductCode:    r.ProductCode,
				schema.ColQuantity:       r.Quantity,
				schema.ColNetValue:       r.NetValue,
				schema.ColOrigin:         r.Origin,
			})
		}
		return f, nil
	case schema.ProductDim:
		rows, err := extract.ReadParquet[ProductRecord](path)
		if err != nil {
			return nil, err
		}
		f := frame.New(schema.ColProductCode, schema.ColProduct, schema.ColCategory, schema.ColSection)
		for _, r := range rows {
			f.AppendMap(map[string]any{
				schema.ColProductCode: r.Code,
				schema.ColProduct:     r.Name,
				schema.ColCategory:    r.Category,
				schema.ColSection:     r.Section,
			})
		}
		return f, nil
	case schema.CustomerDim:
		rows, err := extract.ReadParquet[CustomerRecord](path)
		if err != nil {
			return nil, err
		}
		f := frame.New(schema.ColCustomerCode, schema.ColCustomer)
		for _, r := range rows {
			f.AppendMap(map[string]any{schema.ColCustomerCode: r.Code, schema.ColCustomer: r.Name})
		}
		return f, nil
	case schema.SellerDim:
		rows, err := extract.ReadParquet[SellerRecord](path)
		if err != nil {
			return nil, err
		}
		f := frame.New(schema.ColSellerCode, schema.ColSeller)
		for _, r := range rows {
			f.AppendMap(map[string]any{schema.ColSellerCode: r.Code, schema.ColSeller: r.Name})
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: no parquet layout for %s", extract.ErrUnsupportedFormat, ds)
}

// NormalizeProducts maps a product dimension by code. The first entry of a
// repeated code wins and blank labels read as not informed.
func NormalizeProducts(f *frame.Frame, s *schema.Schema) map[int64]Product {
	s.Apply(schema.ProductDim, f)
	out := make(map[int64]Product, f.Len())
	for i := 0; i < f.Len(); i++ {
		id := code(f.Value(i, schema.ColProductCode))
		if _, dup := out[id]; dup {
			continue
		}
		out[id] = Product{
			Name:     dimLabel(f.Value(i, schema.ColProduct), s.Sentinels.NotInformed),
			Category: dimLabel(f.Value(i, schema.ColCategory), s.Sentinels.NotInformed),
			Section:  dimLabel(f.Value(i, schema.ColSection), s.Sentinels.NotInformed),
		}
	}
	return out
}

// NormalizeNames maps a code/name dimension such as customers or sellers.
func NormalizeNames(f *frame.Frame, s *schema.Schema, ds schema.Dataset, codeColumn, nameColumn string) map[int64]string {
	s.Apply(ds, f)
	out := make(map[int64]string, f.Len())
	for i := 0; i < f.Len(); i++ {
		id := code(f.Value(i, codeColumn))
		if _, dup := out[id]; dup {
			continue
		}
		out[id] = dimLabel(f.Value(i, nameColumn), s.Sentinels.NotInformed)
	}
	return out
}

// NormalizeLines maps the fact extract onto Lines and resolves the product,
// customer and seller of each through dims. Unreadable codes and amounts
// read as zero. A code missing from its dimension is unregistered; an
// extract without an origin column reads as not informed.
func NormalizeLines(f *frame.Frame, s *schema.Schema, dims Dimensions) []Line {
	s.Apply(schema.Sales, f)
	hasOrigin := f.Has(schema.ColOrigin)
	unregistered := s.Sentinels.Unregistered
	out := make([]Line, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		moved := coerce.Date(f.Value(i, schema.ColMovedAt))
		l := Line{
			Branch:         code(f.Value(i, schema.ColBranch)),
			MovedAt:        moved,
			OrderNumber:    code(f.Value(i, schema.ColOrderNumber)),
			SellerCode:     code(f.Value(i, schema.ColSellerCode)),
			SupervisorCode: code(f.Value(i, schema.ColSupervisorCode)),
			CustomerCode:   code(f.Value(i, schema.ColCustomerCode)),
			ProductCode:    code(f.Value(i, schema.ColProductCode)),
			Quantity:       amount(f.Value(i, schema.ColQuantity)),
			NetValue:       amount(f.Value(i, schema.ColNetValue)),
			Origin:         s.Sentinels.NotInformed,
		}
		if moved.Valid {
			l.Year = moved.Time.Year()
			l.Month = int(moved.Time.Month())
		}
		if hasOrigin {
			l.Origin = dimLabel(f.Value(i, schema.ColOrigin), unregistered)
		}
		if p, ok := dims.Products[l.ProductCode]; ok {
			l.Product, l.Category, l.Section = p.Name, p.Category, p.Section
		} else {
			l.Product, l.Category, l.Section = unregistered, unregistered, unregistered
		}
		l.Customer = lookup(dims.Customers, l.CustomerCode, unregistered)
		l.Seller = lookup(dims.Sellers, l.SellerCode, unregistered)
		out = append(out, l)
	}
	return out
}

func lookup(names map[int64]string, code int64, missing string) string {
	if name, ok := names[code]; ok {
		return name
	}
	return missing
}

func code(v any) int64 {
	n, _ := coerce.Int(v)
	return n
}

func amount(v any) decimal.Decimal {
	d, _ := coerce.Decimal(v)
	return d
}

func dimLabel(v any, sentinel string) string {
	if s, ok := coerce.Text(v); ok {
		return strings.ToUpper(s)
	}
	return sentinel
}

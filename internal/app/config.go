package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"github.com/RoqueChristian/backup-inteligencia/internal/extract"
	"github.com/RoqueChristian/backup-inteligencia/internal/report"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"45s"`

	// AdminToken guards mutating endpoints when set.
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// PGDSN enables the Postgres publisher when set.
	PGDSN string `envconfig:"PG_DSN"`

	// RedisAddr enables the section cache and the job queue when set.
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"15m"`

	AccrualSource   string `envconfig:"ACCRUAL_SOURCE" default:"data/verbas.csv"`
	ReturnsSource   string `envconfig:"RETURNS_SOURCE" default:"data/devolucoes.csv"`
	ExcessSource    string `envconfig:"EXCESS_SOURCE" default:"data/estoque.parquet"`
	PreExpirySource string `envconfig:"PRE_EXPIRY_SOURCE" default:"data/pre_vencidos.xlsx"`

	SalesSource       string `envconfig:"SALES_SOURCE" default:"data/fato_venda.parquet"`
	ProductDimSource  string `envconfig:"PRODUCT_DIM_SOURCE" default:"data/dim_produto.parquet"`
	CustomerDimSource string `envconfig:"CUSTOMER_DIM_SOURCE" default:"data/dim_cliente.parquet"`
	SellerDimSource   string `envconfig:"SELLER_DIM_SOURCE" default:"data/dim_vendedor.parquet"`

	SourceEncoding  string `envconfig:"SOURCE_ENCODING" default:"utf-8"`
	SourceSheet     string `envconfig:"SOURCE_SHEET"`
	SchemaFile      string `envconfig:"SCHEMA_FILE"`

	ExportDir   string `envconfig:"EXPORT_DIR" default:"exports"`
	RefreshCron string `envconfig:"REFRESH_CRON" default:"0 6 * * *"`
	Timezone    string `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	var errs []error
	if !extract.Encoding(c.SourceEncoding).Valid() {
		errs = append(errs, fmt.Errorf("SOURCE_ENCODING %q is not supported", c.SourceEncoding))
	}
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			errs = append(errs, fmt.Errorf("REFRESH_CRON %q: %w", c.RefreshCron, err))
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	if c.ReportCacheTTL <= 0 {
		errs = append(errs, errors.New("REPORT_CACHE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Sources lists the configured extract paths.
func (c *Config) Sources() report.Sources {
	return report.Sources{
		Accrual:     c.AccrualSource,
		Returns:     c.ReturnsSource,
		Excess:      c.ExcessSource,
		PreExpiry:   c.PreExpirySource,
		Sales:       c.SalesSource,
		ProductDim:  c.ProductDimSource,
		CustomerDim: c.CustomerDimSource,
		SellerDim:   c.SellerDimSource,
	}
}

// ExtractOptions returns the reader options for the configured sources.
func (c *Config) ExtractOptions() extract.Options {
	return extract.Options{Encoding: extract.Encoding(strings.ToLower(c.SourceEncoding)), Sheet: c.SourceSheet}
}

// =============================================================================
// gst-tally - Configuration Module
// =============================================================================
//
// This module is responsible for loading and validating the main
// configuration file. Settings come from three layers, later layers winning:
//
//   1. config.yaml               (gopkg.in/yaml.v3)
//   2. .env next to config.yaml  (joho/godotenv, optional)
//   3. GST_TALLY_* environment   (kelseyhightower/envconfig, scalars only)
//
// Validation runs after defaults are applied. A configuration error is fatal
// for the whole run: nothing is read from the data folder until the
// configuration validates.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. GST_TALLY_DATA_FOLDER.
const EnvPrefix = "gst_tally"

func init() {
	// Report validation failures under their config.yaml keys.
	validation.ErrorTag = "yaml"
}

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY AND FILE SETTINGS
	// =========================================================================

	// DataFolder holds order exports, processor statements and all outputs.
	// Must be an absolute path; a leading "~" is expanded.
	DataFolder string `yaml:"data_folder" envconfig:"DATA_FOLDER"`

	// OutputDir is where vouchers and side reports are written.
	// Default: DataFolder
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`

	// WooPrefix selects order export files: <WooPrefix>*.csv
	WooPrefix string `yaml:"woo_prefix" envconfig:"WOO_PREFIX"`

	// TallyPrefix names voucher files: <TallyPrefix><suffix>.xml where suffix
	// is the order export name with WooPrefix and extension removed.
	TallyPrefix string `yaml:"tally_prefix" envconfig:"TALLY_PREFIX"`

	// TallyProductsFile lists ledger products with GST rate and godown.
	TallyProductsFile string `yaml:"tally_products_file" envconfig:"TALLY_PRODUCTS_FILE"`

	// SkuMappingFile maps storefront SKUs to one or more ledger products.
	SkuMappingFile string `yaml:"sku_mapping_file" envconfig:"SKU_MAPPING_FILE"`

	// ProductPricesFile gives standalone prices used to split bundles.
	ProductPricesFile string `yaml:"product_prices_file" envconfig:"PRODUCT_PRICES_FILE"`

	// =========================================================================
	// ACCOUNTING SETTINGS
	// =========================================================================

	// LocalCurrency is the currency the processor pays out in.
	// Default: "INR"
	LocalCurrency string `yaml:"local_currency" envconfig:"LOCAL_CURRENCY"`

	// DomesticCountry is the billing country that makes an order domestic.
	// Default: "IN"
	DomesticCountry string `yaml:"domestic_country" envconfig:"DOMESTIC_COUNTRY"`

	// MaxRoundingOff is the largest rounding-off entry accepted before a
	// voucher is reported as a balance-integrity violation.
	// Default: "1.00"
	MaxRoundingOff string `yaml:"max_rounding_off" envconfig:"MAX_ROUNDING_OFF"`

	// Ledgers names every ledger the vouchers post to.
	Ledgers LedgerNames `yaml:"ledgers" ignored:"true"`

	// OrderColumns names the order export columns.
	OrderColumns OrderColumns `yaml:"order_columns" ignored:"true"`

	// Processors lists the payment processors whose statements are
	// reconciled. Order matters: on a cross-processor conflict the first
	// processor's amount is kept.
	// Default: a single PayPal processor with prefix "Download".
	Processors []ProcessorConfig `yaml:"processors" ignored:"true"`

	// =========================================================================
	// OUTPUT, LOGGING AND PROCESSING SETTINGS
	// =========================================================================

	// ReportFormat is "csv" or "xlsx" for the side reports.
	// Default: "csv"
	ReportFormat string `yaml:"report_format" envconfig:"REPORT_FORMAT"`

	// TallyCompany, if set, names the company the vouchers are imported
	// into. Otherwise Tally imports into the company that is open.
	TallyCompany string `yaml:"tally_company" envconfig:"TALLY_COMPANY"`

	// StrictValidation makes validation warnings reject their voucher too.
	// Default: false
	StrictValidation bool `yaml:"strict_validation" envconfig:"STRICT_VALIDATION"`

	// LogFile, if set, receives a copy of every log line.
	LogFile string `yaml:"log_file" envconfig:"LOG_FILE"`

	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// MaxConcurrency bounds the number of files processed at once.
	// Set to 1 for sequential processing.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency" envconfig:"MAX_CONCURRENCY"`
}

// =============================================================================
// LEDGER NAMES
// =============================================================================

// LedgerNames holds ledger names and the formats of rate-bearing ledgers.
// Formats take the percentage as a string, e.g. "CGST Collected @ %s%%".
type LedgerNames struct {
	DomesticParty string `yaml:"domestic_party"`
	ExportParty   string `yaml:"export_party"`
	ExportSales   string `yaml:"export_sales"`
	ExemptSales   string `yaml:"exempt_sales"`
	SalesFormat   string `yaml:"sales_format"`
	CGSTFormat    string `yaml:"cgst_format"`
	SGSTFormat    string `yaml:"sgst_format"`
	Shipping      string `yaml:"shipping"`
	Fee           string `yaml:"fee"`
	RoundingOff   string `yaml:"rounding_off"`
	VoucherType   string `yaml:"voucher_type"`
}

// =============================================================================
// ORDER EXPORT COLUMNS
// =============================================================================

// OrderColumns names the order export columns and the completed status.
type OrderColumns struct {
	OrderID         string `yaml:"order_id"`
	Status          string `yaml:"status"`
	Date            string `yaml:"date"`
	FirstName       string `yaml:"first_name"`
	LastName        string `yaml:"last_name"`
	Phone           string `yaml:"phone"`
	Email           string `yaml:"email"`
	Country         string `yaml:"country"`
	Total           string `yaml:"total"`
	Currency        string `yaml:"currency"`
	SKU             string `yaml:"sku"`
	Quantity        string `yaml:"quantity"`
	ItemCost        string `yaml:"item_cost"`
	Shipping        string `yaml:"shipping"`
	Fee             string `yaml:"fee"`
	CompletedStatus string `yaml:"completed_status"`
	DateLayout      string `yaml:"date_layout"`
}

// =============================================================================
// PROCESSOR CONFIGURATION
// =============================================================================

// ProcessorConfig describes one payment processor's statement format.
// The defaults describe a PayPal activity download.
type ProcessorConfig struct {
	// Name identifies the processor in reports, e.g. "paypal".
	Name string `yaml:"name"`

	// Prefix selects statement files: <Prefix>*.csv (any case).
	Prefix string `yaml:"prefix"`

	// InvoicePrefix is stripped from invoice numbers to get the order id.
	// Default: "WC-"
	InvoicePrefix string `yaml:"invoice_prefix"`

	CompletedStatus string `yaml:"completed_status"`
	PendingStatus   string `yaml:"pending_status"`

	// Type vocabularies, matched case-insensitively.
	PaymentTypes    []string `yaml:"payment_types"`
	WithdrawalTypes []string `yaml:"withdrawal_types"`
	ConversionTypes []string `yaml:"conversion_types"`
	ReversalTypes   []string `yaml:"reversal_types"`

	// DateLayout parses "<date> <time>" (or just the date when the time
	// column is absent) with Go reference-time syntax.
	DateLayout string `yaml:"date_layout"`

	// KeepPendingOnReversal leaves a reversed order's queued payments in
	// place so a later conversion settles them again.
	KeepPendingOnReversal bool `yaml:"keep_pending_on_reversal"`

	Columns StatementColumns `yaml:"columns"`
}

// StatementColumns names the statement transaction table columns.
type StatementColumns struct {
	Date           string `yaml:"date"`
	Time           string `yaml:"time"`
	Type           string `yaml:"type"`
	Status         string `yaml:"status"`
	Currency       string `yaml:"currency"`
	Gross          string `yaml:"gross"`
	TransactionID  string `yaml:"transaction_id"`
	ReferenceTxnID string `yaml:"reference_txn_id"`
	InvoiceNumber  string `yaml:"invoice_number"`
	CustomNumber   string `yaml:"custom_number"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads, defaults and validates the main configuration.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config MainConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	envFile := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyMainConfigDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults sets default values for any unset options and
// expands "~" in paths.
func applyMainConfigDefaults(config *MainConfig) {
	config.DataFolder = expandHome(config.DataFolder)
	config.OutputDir = expandHome(config.OutputDir)
	config.TallyProductsFile = expandHome(config.TallyProductsFile)
	config.SkuMappingFile = expandHome(config.SkuMappingFile)
	config.ProductPricesFile = expandHome(config.ProductPricesFile)
	config.LogFile = expandHome(config.LogFile)

	if config.OutputDir == "" {
		config.OutputDir = config.DataFolder
	}
	if config.LocalCurrency == "" {
		config.LocalCurrency = "INR"
	}
	config.LocalCurrency = strings.ToUpper(config.LocalCurrency)
	if config.DomesticCountry == "" {
		config.DomesticCountry = "IN"
	}
	if config.MaxRoundingOff == "" {
		config.MaxRoundingOff = "1.00"
	}
	if config.ReportFormat == "" {
		config.ReportFormat = "csv"
	}
	config.ReportFormat = strings.ToLower(config.ReportFormat)
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 4
	}

	applyLedgerDefaults(&config.Ledgers)
	applyOrderColumnDefaults(&config.OrderColumns)

	if len(config.Processors) == 0 {
		config.Processors = []ProcessorConfig{{Name: "paypal", Prefix: "Download"}}
	}
	for i := range config.Processors {
		ApplyProcessorDefaults(&config.Processors[i])
	}
}

func applyLedgerDefaults(l *LedgerNames) {
	setDefault(&l.DomesticParty, "Online Shop Domestic")
	setDefault(&l.ExportParty, "ONLINE SHOP INTERNATIONAL")
	setDefault(&l.ExportSales, "Export Sales")
	setDefault(&l.ExemptSales, "Local Exempt Sales")
	setDefault(&l.SalesFormat, "Local GST Sales @ %s%%")
	setDefault(&l.CGSTFormat, "CGST Collected @ %s%%")
	setDefault(&l.SGSTFormat, "SGST Collected @ %s%%")
	setDefault(&l.Shipping, "Shipping Charges")
	setDefault(&l.Fee, "Donations Received")
	setDefault(&l.RoundingOff, "Rounding Off")
	setDefault(&l.VoucherType, "Sales")
}

func applyOrderColumnDefaults(c *OrderColumns) {
	setDefault(&c.OrderID, "Order ID")
	setDefault(&c.Status, "Order Status")
	setDefault(&c.Date, "Order Date")
	setDefault(&c.FirstName, "Billing First Name")
	setDefault(&c.LastName, "Billing Last Name")
	setDefault(&c.Phone, "Billing Phone")
	setDefault(&c.Email, "Billing Email Address")
	setDefault(&c.Country, "Billing Country")
	setDefault(&c.Total, "Order Total")
	setDefault(&c.Currency, "Order Currency")
	setDefault(&c.SKU, "SKU")
	setDefault(&c.Quantity, "Quantity")
	setDefault(&c.ItemCost, "Item Cost")
	setDefault(&c.Shipping, "Order Shipping Amount")
	setDefault(&c.Fee, "Fee Amount")
	setDefault(&c.CompletedStatus, "wc-completed")
	setDefault(&c.DateLayout, "2006-01-02 15:04:05")
}

// ApplyProcessorDefaults fills unset processor settings with the PayPal
// activity download layout.
func ApplyProcessorDefaults(p *ProcessorConfig) {
	setDefault(&p.InvoicePrefix, "WC-")
	setDefault(&p.CompletedStatus, "Completed")
	setDefault(&p.PendingStatus, "Pending")
	setDefault(&p.DateLayout, "01/02/2006 15:04:05")
	if len(p.PaymentTypes) == 0 {
		p.PaymentTypes = []string{"Express Checkout Payment"}
	}
	if len(p.WithdrawalTypes) == 0 {
		p.WithdrawalTypes = []string{"User Initiated Withdrawal"}
	}
	if len(p.ConversionTypes) == 0 {
		p.ConversionTypes = []string{"General Currency Conversion"}
	}
	if len(p.ReversalTypes) == 0 {
		p.ReversalTypes = []string{"Payment Reversal"}
	}

	c := &p.Columns
	setDefault(&c.Date, "Date")
	setDefault(&c.Time, "Time")
	setDefault(&c.Type, "Type")
	setDefault(&c.Status, "Status")
	setDefault(&c.Currency, "Currency")
	setDefault(&c.Gross, "Gross")
	setDefault(&c.TransactionID, "Transaction ID")
	setDefault(&c.ReferenceTxnID, "Reference Txn ID")
	setDefault(&c.InvoiceNumber, "Invoice Number")
	setDefault(&c.CustomNumber, "Custom Number")
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks required fields, paths and value ranges.
func (c *MainConfig) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DataFolder, validation.Required, validation.By(absoluteDir)),
		validation.Field(&c.WooPrefix, validation.Required),
		validation.Field(&c.TallyPrefix, validation.Required),
		validation.Field(&c.TallyProductsFile, validation.Required, validation.By(existingFile)),
		validation.Field(&c.SkuMappingFile, validation.Required, validation.By(existingFile)),
		validation.Field(&c.ProductPricesFile, validation.Required, validation.By(existingFile)),
		validation.Field(&c.LocalCurrency, validation.Required, validation.Length(3, 3)),
		validation.Field(&c.DomesticCountry, validation.Required),
		validation.Field(&c.MaxRoundingOff, validation.By(nonNegativeDecimal)),
		validation.Field(&c.ReportFormat, validation.In("csv", "xlsx")),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&c.MaxConcurrency, validation.Min(1)),
		validation.Field(&c.Processors, validation.Required),
	)
	if err != nil {
		return err
	}

	names := make(map[string]bool)
	prefixes := make(map[string]bool)
	for _, p := range c.Processors {
		name := strings.ToLower(p.Name)
		prefix := strings.ToLower(p.Prefix)
		if names[name] {
			return fmt.Errorf("processors: duplicate name %q", p.Name)
		}
		if prefixes[prefix] {
			return fmt.Errorf("processors: duplicate prefix %q", p.Prefix)
		}
		names[name] = true
		prefixes[prefix] = true
	}
	return nil
}

// Validate implements validation.Validatable so each processor is checked
// as part of MainConfig.Validate.
func (p ProcessorConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Prefix, validation.Required),
		validation.Field(&p.DateLayout, validation.Required),
	)
}

// RoundingTolerance returns MaxRoundingOff as a decimal. Call only on a
// validated configuration.
func (c *MainConfig) RoundingTolerance() decimal.Decimal {
	d, err := decimal.NewFromString(c.MaxRoundingOff)
	if err != nil {
		return decimal.NewFromInt(1)
	}
	return d
}

// Processor looks up a processor by name, case-insensitively.
func (c *MainConfig) Processor(name string) (ProcessorConfig, bool) {
	for _, p := range c.Processors {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return ProcessorConfig{}, false
}

func absoluteDir(value interface{}) error {
	dir, _ := value.(string)
	if dir == "" {
		return nil
	}
	if !filepath.IsAbs(dir) {
		return errors.New("must be an absolute path")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return errors.New("does not exist")
	}
	if !info.IsDir() {
		return errors.New("is not a directory")
	}
	return nil
}

func existingFile(value interface{}) error {
	path, _ := value.(string)
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.New("file not found")
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}

func nonNegativeDecimal(value interface{}) error {
	raw, _ := value.(string)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return errors.New("must be a decimal number")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// =============================================================================
// gst-tally - Converter Module
// =============================================================================
//
// Runs the voucher pipeline for a single order export:
//
//   1. Skip the file when its voucher XML already exists (unless forced)
//   2. Parse the order export
//   3. Aggregate rows into orders, rescaling foreign orders to the settled
//      amount
//   4. Assemble one balanced voucher per order
//   5. Validate the vouchers
//   6. Write the accepted vouchers as Tally XML
//   7. Write the missing-payout report
//
// CONCURRENCY:
//   One converter handles one file. Converters for different files share
//   only the read-only catalog and merged settlement map and may run
//   concurrently.
//
// =============================================================================

package converter

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/csvparser"
	"github.com/ecofemme/gst-tally/internal/logging"
	"github.com/ecofemme/gst-tally/internal/orders"
	"github.com/ecofemme/gst-tally/internal/refdata"
	"github.com/ecofemme/gst-tally/internal/report"
	"github.com/ecofemme/gst-tally/internal/types"
	"github.com/ecofemme/gst-tally/internal/validation"
	"github.com/ecofemme/gst-tally/internal/voucher"
	"github.com/ecofemme/gst-tally/internal/xmlwriter"
	"github.com/ecofemme/gst-tally/pkg/utils"
)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of processing a single order export.
type Result struct {
	// FilePath is the order export that was processed.
	FilePath string

	// OutputFile is the voucher XML path. It is set even when the file was
	// skipped or the run is a dry run.
	OutputFile string

	// MissingReport is the missing-payout report path, when one was due.
	MissingReport string

	// Success indicates the file was processed without a fatal error.
	// Rejected vouchers do not clear Success; see Stats.Rejected.
	Success bool

	// Skipped is set when the output already existed.
	Skipped bool

	// Error contains the error if processing failed.
	Error error

	Stats ProcessingStats

	// ValidationLog is set when validation findings were written.
	ValidationLog string

	Diagnostics []types.Diagnostic
	Findings    []*validation.ValidationError
	Missing     []orders.MissingPayout
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	RowsProcessed int

	// Orders is the number of completed orders that could be assembled.
	Orders int

	// Vouchers is the number of vouchers written.
	Vouchers int

	// Rejected counts vouchers held back by a fatal validation finding.
	Rejected int

	MissingPayouts int

	// SkippedOrders counts orders dropped for row-level parse errors.
	SkippedOrders int

	ValidationErrors   int
	ValidationWarnings int

	ProcessingTime time.Duration
}

// IntegrityErrors reports whether any voucher failed validation.
func (r Result) IntegrityErrors() bool {
	return r.Stats.Rejected > 0
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Options controls one converter run.
type Options struct {
	// Force rewrites outputs that already exist.
	Force bool

	// DryRun runs the whole pipeline but writes nothing.
	DryRun bool

	Validation validation.Options
}

// Converter handles the conversion of a single order export.
type Converter struct {
	ordersPath string
	cfg        *config.MainConfig
	files      *utils.FileManager
	aggregator *orders.Aggregator
	assembler  *voucher.Assembler
	options    Options
	logger     *logrus.Entry
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// New creates a Converter for one order export.
func New(ordersPath string, cfg *config.MainConfig, catalog *refdata.Catalog, settlements orders.SettlementLookup, options Options) *Converter {
	if cfg.StrictValidation {
		options.Validation.TreatWarningsAsErrors = true
	}
	return &Converter{
		ordersPath: ordersPath,
		cfg:        cfg,
		files:      utils.NewFileManager(cfg.DataFolder, cfg.OutputDir),
		aggregator: orders.NewAggregator(cfg, catalog, settlements),
		assembler:  voucher.NewAssembler(cfg, catalog),
		options:    options,
		logger:     logging.ForFile("converter", ordersPath),
	}
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the pipeline for the file.
func (c *Converter) Run() (result Result) {
	startTime := time.Now()
	result = Result{FilePath: c.ordersPath}
	defer func() { result.Stats.ProcessingTime = time.Since(startTime) }()

	// =========================================================================
	// STEP 1: OUTPUT PATHS
	// =========================================================================

	suffix := utils.OutputSuffix(c.ordersPath, c.cfg.WooPrefix)
	result.OutputFile = c.files.OutputPath("{tally_prefix}{suffix}.xml", map[string]string{
		"tally_prefix": c.cfg.TallyPrefix,
		"suffix":       suffix,
	})
	missingPath := c.files.OutputPath(report.FileName("missing_payouts{suffix}", c.cfg.ReportFormat), map[string]string{
		"suffix": suffix,
	})

	if !c.options.Force && utils.FileExists(result.OutputFile) {
		c.logger.WithField("output", result.OutputFile).Info("output exists, skipping")
		result.Skipped = true
		result.Success = true
		return result
	}

	c.logger.Info("processing order export")

	// =========================================================================
	// STEP 2: PARSE ORDER EXPORT
	// =========================================================================

	cols := c.cfg.OrderColumns
	data, err := csvparser.Parse(c.ordersPath, csvparser.Settings{
		RequiredHeaders: []string{cols.OrderID, cols.Status, cols.SKU},
	})
	if err != nil {
		result.Error = fmt.Errorf("failed to parse order export: %w", err)
		return result
	}
	result.Stats.RowsProcessed = len(data.Rows)
	c.logger.Debugf("parsed %d rows", len(data.Rows))

	// =========================================================================
	// STEP 3: AGGREGATE ORDERS
	// =========================================================================

	agg := c.aggregator.Aggregate(data, c.logger)
	result.Diagnostics = append(result.Diagnostics, agg.Diagnostics...)
	result.Missing = agg.Missing
	result.Stats.Orders = len(agg.Orders)
	result.Stats.MissingPayouts = len(agg.Missing)
	result.Stats.SkippedOrders = agg.Skipped

	// =========================================================================
	// STEP 4: ASSEMBLE VOUCHERS
	// =========================================================================

	vouchers := make([]*voucher.Voucher, 0, len(agg.Orders))
	for _, o := range agg.Orders {
		v, diags := c.assembler.Assemble(o, c.ordersPath, c.logger)
		result.Diagnostics = append(result.Diagnostics, diags...)
		vouchers = append(vouchers, v)
	}

	// =========================================================================
	// STEP 5: VALIDATE
	// =========================================================================

	checked := validation.NewValidator(c.options.Validation).ValidateAll(vouchers)
	result.Findings = checked.Errors
	result.Stats.ValidationErrors = checked.ErrorCount
	result.Stats.ValidationWarnings = checked.WarningCount
	result.Stats.Rejected = len(checked.Rejected)

	for _, f := range checked.Errors {
		entry := c.logger.WithFields(logrus.Fields{"order_id": f.OrderID, "rule": f.Rule})
		if f.IsFatal() {
			entry.Error(f.Message)
		} else {
			entry.Warn(f.Message)
		}
	}

	accepted := vouchers[:0:0]
	for _, v := range vouchers {
		if !checked.Rejected[v.OrderID] {
			accepted = append(accepted, v)
		}
	}
	result.Stats.Vouchers = len(accepted)

	// =========================================================================
	// STEP 6: WRITE OUTPUTS
	// =========================================================================

	if len(agg.Missing) > 0 {
		result.MissingReport = missingPath
	}

	if c.options.DryRun {
		c.logger.WithField("vouchers", len(accepted)).Info("dry run, nothing written")
		result.Success = true
		return result
	}

	if len(accepted) > 0 {
		opts := xmlwriter.DefaultGenerateOptions()
		opts.Company = c.cfg.TallyCompany
		if err := xmlwriter.WriteFile(result.OutputFile, accepted, opts); err != nil {
			result.Error = err
			return result
		}
		c.logger.WithFields(logrus.Fields{"output": result.OutputFile, "vouchers": len(accepted)}).Info("vouchers written")
	} else {
		c.logger.Warn("no vouchers to write")
	}

	if len(checked.Errors) > 0 {
		logPath := c.files.OutputPath("validation{suffix}.log", map[string]string{"suffix": suffix})
		if err := validation.WriteErrorLog(checked.Errors, c.ordersPath, logPath); err != nil {
			result.Error = err
			return result
		}
		result.ValidationLog = logPath
	}

	if result.MissingReport != "" {
		written, err := report.Write(missingPath, c.cfg.ReportFormat, report.MissingPayoutTable(agg.Missing), c.options.Force)
		if err != nil {
			result.Error = fmt.Errorf("failed to write missing-payout report: %w", err)
			return result
		}
		if written {
			c.logger.WithFields(logrus.Fields{"report": missingPath, "orders": len(agg.Missing)}).Warn("orders missing a payout")
		}
	}

	result.Success = true
	return result
}

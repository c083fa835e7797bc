// =============================================================================
// gst-tally - Process Command
// =============================================================================
//
// COMMAND USAGE:
//   gst-tally process [flags]
//
// FLAGS:
//   --dry-run     : Run the whole pipeline without writing any file
//   --force       : Rewrite outputs that already exist
//   --file        : Process only this order export
//   --strict      : Reject vouchers with validation warnings too
//
// PROCESSING PIPELINE:
//   1. Load configuration and reference tables
//   2. Reconcile every processor statement (concurrently) and merge
//   3. Write settlement audit and conflict reports
//   4. Discover order exports
//   5. For each order export (concurrently, bounded by max_concurrency):
//      parse, aggregate, assemble, validate, write XML and missing payouts
//   6. Write the run summary and error log
//
// The command fails when any file fails or any voucher is rejected by
// validation, after every file has been processed.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/converter"
	"github.com/ecofemme/gst-tally/internal/refdata"
	"github.com/ecofemme/gst-tally/internal/validation"
	"github.com/ecofemme/gst-tally/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// dryRun runs everything without writing output files.
var dryRun bool

// force rewrites outputs that already exist.
var force bool

// filePath restricts processing to one order export.
var filePath string

// strict rejects vouchers on validation warnings as well as errors.
var strict bool

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Reconcile statements and convert order exports to Tally vouchers",
	Long: `The process command reconciles every payment processor statement in the data
folder, then converts each order export into a Tally sales voucher file.

Foreign-currency orders are booked at their settled local amount. Orders with
no settled amount are listed in a missing-payout report instead of being
booked. Vouchers that fail validation are left out of the XML and reported.

Outputs that already exist are skipped unless --force is given, so a
re-run never overwrites a file that may already have been imported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd.Context())
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Run the whole pipeline without writing output files",
	)

	processCmd.Flags().BoolVar(
		&force,
		"force",
		false,
		"Rewrite outputs that already exist",
	)

	processCmd.Flags().StringVar(
		&filePath,
		"file",
		"",
		"Process only this order export",
	)

	processCmd.Flags().BoolVar(
		&strict,
		"strict",
		false,
		"Reject vouchers with validation warnings too (or strict_validation in config)",
	)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(ctx context.Context) error {
	summary := utils.ProcessingSummary{
		RunID:     utils.NewRunID(),
		StartTime: time.Now(),
		DryRun:    dryRun,
	}

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION AND REFERENCE DATA
	// =========================================================================

	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	log := logrus.WithField("run_id", summary.RunID)

	fmt.Println("=== gst-tally ===")
	fmt.Println("Loading reference data...")

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	for _, name := range catalog.UnknownProducts() {
		log.WithField("product", name).Warn("SKU mapping names a product missing from the product table")
	}
	for _, sku := range catalog.UnpricedBundles() {
		log.WithField("sku", sku).Warn("bundle has products without a standalone price")
	}

	fm := utils.NewFileManager(cfg.DataFolder, cfg.OutputDir)
	if !dryRun {
		if err := fm.EnsureDirectories(); err != nil {
			return err
		}
	}

	// =========================================================================
	// STEP 2: RECONCILE STATEMENTS
	// =========================================================================

	fmt.Println("Reconciling processor statements...")

	run, err := reconcileStatements(ctx, cfg, fm)
	if err != nil {
		return err
	}
	printSettlement(cfg, run)

	summary.StatementFiles = len(run.Sources)
	summary.OrdersSettled = len(run.Merged.Amounts)
	summary.Conflicts = len(run.Merged.Conflicts)
	errorEntries := diagnosticEntries(run.Diagnostics())
	errorEntries = append(errorEntries, run.failureEntries()...)
	for _, f := range run.Failures {
		summary.FailedFiles++
		summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
			InputFile:    filepath.Base(f.File),
			ErrorMessage: f.Err.Error(),
		})
	}

	if !dryRun {
		if err := writeSettlementReports(cfg, fm, run, force); err != nil {
			return err
		}
	}

	// =========================================================================
	// STEP 3: DISCOVER ORDER EXPORTS
	// =========================================================================

	var inputFiles []string
	if filePath != "" {
		inputFiles = []string{filePath}
	} else {
		inputFiles, err = fm.DiscoverByPrefix(cfg.WooPrefix)
		if err != nil {
			return err
		}
	}

	if len(inputFiles) == 0 {
		fmt.Printf("No order exports matching %s*.csv found.\n", cfg.WooPrefix)
		if len(run.Failures) > 0 {
			return fmt.Errorf("%d statement file(s) could not be reconciled", len(run.Failures))
		}
		return nil
	}

	fmt.Printf("Found %d order export(s)\n", len(inputFiles))

	// =========================================================================
	// STEP 4: PROCESS ORDER EXPORTS CONCURRENTLY
	// =========================================================================

	options := converter.Options{
		Force:      force,
		DryRun:     dryRun,
		Validation: validation.Options{TreatWarningsAsErrors: strict},
	}
	results := processFiles(inputFiles, cfg, catalog, run, options)

	// =========================================================================
	// STEP 5: COLLECT RESULTS AND WRITE SUMMARY
	// =========================================================================

	summary.TotalFiles = len(inputFiles) + len(run.Failures)
	for _, result := range results {
		name := filepath.Base(result.FilePath)
		errorEntries = append(errorEntries, diagnosticEntries(result.Diagnostics)...)
		for _, f := range result.Findings {
			errorEntries = append(errorEntries, utils.ErrorLogEntry{
				Timestamp:    time.Now(),
				FileName:     name,
				ErrorType:    "validation/" + f.Rule,
				ErrorMessage: f.Error(),
				OrderID:      f.OrderID,
			})
		}

		switch {
		case !result.Success:
			summary.FailedFiles++
			summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
				InputFile:    name,
				ErrorMessage: result.Error.Error(),
			})
			errorEntries = append(errorEntries, utils.ErrorLogEntry{
				Timestamp: time.Now(), FileName: name, ErrorType: "file", ErrorMessage: result.Error.Error(),
			})
			fmt.Printf("  ✗ %s: %v\n", name, result.Error)
			continue
		case result.Skipped:
			summary.SkippedFiles++
			fmt.Printf("  - %s: %s exists, skipped\n", name, filepath.Base(result.OutputFile))
		default:
			summary.SuccessfulFiles++
			fmt.Printf("  ✓ %s -> %s (%d vouchers, %d rejected, %d missing payouts)\n",
				name, filepath.Base(result.OutputFile), result.Stats.Vouchers, result.Stats.Rejected, result.Stats.MissingPayouts)
			if result.ValidationLog != "" {
				fmt.Printf("    findings: %s\n", filepath.Base(result.ValidationLog))
			}
		}

		summary.Vouchers += result.Stats.Vouchers
		summary.Rejected += result.Stats.Rejected
		summary.MissingPayouts += result.Stats.MissingPayouts
		summary.Diagnostics += len(result.Diagnostics)
		summary.ProcessedFiles = append(summary.ProcessedFiles, utils.ProcessedFileInfo{
			InputFile:     name,
			OutputFile:    filepath.Base(result.OutputFile),
			MissingReport: filepath.Base(result.MissingReport),
			Skipped:       result.Skipped,
			Orders:        result.Stats.Orders,
			Vouchers:      result.Stats.Vouchers,
			Rejected:      result.Stats.Rejected,
			Missing:       result.Stats.MissingPayouts,
			ProcessTime:   result.Stats.ProcessingTime,
		})
	}
	summary.EndTime = time.Now()

	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Total files:     %d\n", summary.TotalFiles)
	fmt.Printf("Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Printf("Skipped:         %d\n", summary.SkippedFiles)
	fmt.Printf("Errors:          %d\n", summary.FailedFiles)
	fmt.Printf("Vouchers:        %d\n", summary.Vouchers)
	fmt.Printf("Rejected:        %d\n", summary.Rejected)
	fmt.Printf("Missing payouts: %d\n", summary.MissingPayouts)
	fmt.Printf("Time elapsed:    %s\n", summary.EndTime.Sub(summary.StartTime))

	if !dryRun {
		summaryPath, err := utils.WriteSummaryLog(summary, fm.OutputDir)
		if err != nil {
			return err
		}
		fmt.Printf("Summary:         %s\n", summaryPath)

		logPath, err := utils.WriteErrorLog(errorEntries, fm.OutputDir, summary.RunID)
		if err != nil {
			return err
		}
		if logPath != "" {
			fmt.Printf("Error log:       %s\n", logPath)
		}
	}

	if summary.FailedFiles > 0 || summary.Rejected > 0 {
		return fmt.Errorf("%d file(s) failed, %d voucher(s) rejected", summary.FailedFiles, summary.Rejected)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func loadCatalog(cfg *config.MainConfig) (*refdata.Catalog, error) {
	catalog, err := refdata.LoadCatalog(cfg.TallyProductsFile, cfg.SkuMappingFile, cfg.ProductPricesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	return catalog, nil
}

// processFiles runs one converter per order export, at most
// cfg.MaxConcurrency at a time. Results are returned sorted by file.
func processFiles(files []string, cfg *config.MainConfig, catalog *refdata.Catalog, run *settlementRun, options converter.Options) []converter.Result {
	var wg sync.WaitGroup

	results := make(chan converter.Result, len(files))
	slots := make(chan struct{}, cfg.MaxConcurrency)

	for _, file := range files {
		wg.Add(1)

		go func(path string) {
			defer wg.Done()

			slots <- struct{}{}
			defer func() { <-slots }()

			results <- converter.New(path, cfg, catalog, run.Merged, options).Run()
		}(file)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var collected []converter.Result
	for result := range results {
		collected = append(collected, result)
	}
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].FilePath < collected[j].FilePath
	})
	return collected
}

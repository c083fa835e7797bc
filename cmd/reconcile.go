// =============================================================================
// gst-tally - Reconcile Command
// =============================================================================
//
// COMMAND USAGE:
//   gst-tally reconcile [--dry-run] [--force]
//   gst-tally reconcile <statement.csv> [--processor name]
//
// Without an argument, replays every processor statement in the data folder
// and writes one settlement audit report per processor plus a conflict
// report when two processors settled the same order. With an argument,
// replays that one statement and prints what each order settled to.
// No vouchers are written.
//
// The helpers here are shared with the process command.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/report"
	"github.com/ecofemme/gst-tally/internal/settlement"
	"github.com/ecofemme/gst-tally/internal/types"
	"github.com/ecofemme/gst-tally/pkg/utils"
)

// processorName selects the processor for a single statement.
var processorName string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [statement.csv]",
	Short: "Reconcile processor statements and write settlement audit reports",
	Long: `The reconcile command replays each payment processor statement found in the
data folder, matching foreign-currency payments to the withdrawals and
currency conversions that settled them. It writes a settlement audit report
per processor and a conflict report when processors disagree.

Existing reports are left untouched unless --force is given.

Given a statement file, only that file is replayed and the settled amount of
every order is printed. The processor is taken from --processor, or else
from the configured file prefix the statement name starts with.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runReconcileFile(args[0])
		}
		return runReconcile(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Reconcile without writing reports")
	reconcileCmd.Flags().BoolVar(&force, "force", false, "Overwrite existing reports")
	reconcileCmd.Flags().StringVar(&processorName, "processor", "", "Processor of a single statement file")
}

func runReconcile(ctx context.Context) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	fm := utils.NewFileManager(cfg.DataFolder, cfg.OutputDir)
	if !dryRun {
		if err := fm.EnsureDirectories(); err != nil {
			return err
		}
	}

	fmt.Println("=== gst-tally: reconcile ===")

	run, err := reconcileStatements(ctx, cfg, fm)
	if err != nil {
		return err
	}
	printSettlement(cfg, run)

	if !dryRun {
		if err := writeSettlementReports(cfg, fm, run, force); err != nil {
			return err
		}
	}
	if len(run.Failures) > 0 {
		return fmt.Errorf("%d statement file(s) could not be reconciled", len(run.Failures))
	}
	return nil
}

func runReconcileFile(path string) error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	p, err := statementProcessor(cfg, path)
	if err != nil {
		return err
	}

	log := logrus.WithFields(logrus.Fields{"processor": p.Name, "file": filepath.Base(path)})
	res, err := settlement.ReconcileFile(settlement.Job{Processor: p, File: path}, cfg.LocalCurrency, log)
	if err != nil {
		return err
	}

	fmt.Printf("=== %s: %s ===\n", p.Name, filepath.Base(path))
	ids := make([]string, 0, len(res.Settlements))
	for id := range res.Settlements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %-12s %12s %s\n", id, types.FormatMoney(res.Settlements[id]), cfg.LocalCurrency)
	}
	for _, id := range res.RefundedOrders {
		fmt.Printf("  %-12s %12s\n", id, "refunded")
	}
	for _, d := range res.Diagnostics {
		fmt.Printf("  ✗ %s\n", d)
	}
	fmt.Printf("Settled:    %d (%s %s)\n", len(res.Settlements), types.FormatMoney(res.TotalSettled()), cfg.LocalCurrency)
	fmt.Printf("Refunded:   %d\n", len(res.RefundedOrders))
	fmt.Printf("Unresolved: %d\n", res.Unresolved)
	return nil
}

// statementProcessor picks the processor for a statement file: the
// --processor flag, else the processor whose prefix the file name carries.
func statementProcessor(cfg *config.MainConfig, path string) (config.ProcessorConfig, error) {
	if processorName != "" {
		p, ok := cfg.Processor(processorName)
		if !ok {
			return config.ProcessorConfig{}, fmt.Errorf("unknown processor %q", processorName)
		}
		return p, nil
	}

	base := strings.ToLower(filepath.Base(path))
	for _, p := range cfg.Processors {
		if strings.HasPrefix(base, strings.ToLower(p.Prefix)) {
			return p, nil
		}
	}
	if len(cfg.Processors) == 1 {
		return cfg.Processors[0], nil
	}
	return config.ProcessorConfig{}, fmt.Errorf("cannot tell the processor of %s: pass --processor", filepath.Base(path))
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// settlementRun is the reconciled and merged view of every statement.
type settlementRun struct {
	Sources  []settlement.Source
	Failures []settlement.FileFailure
	Merged   *settlement.Merged
}

// failureEntries converts unreadable statements to error log entries.
func (r *settlementRun) failureEntries() []utils.ErrorLogEntry {
	entries := make([]utils.ErrorLogEntry, 0, len(r.Failures))
	for _, f := range r.Failures {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    time.Now(),
			FileName:     filepath.Base(f.File),
			ErrorType:    "statement",
			ErrorMessage: f.Err.Error(),
		})
	}
	return entries
}

// Diagnostics returns statement and merge diagnostics in load order.
func (r *settlementRun) Diagnostics() []types.Diagnostic {
	var out []types.Diagnostic
	for _, src := range r.Sources {
		out = append(out, src.Result.Diagnostics...)
	}
	return append(out, r.Merged.Diagnostics...)
}

// reconcileStatements discovers the statements of every processor in
// configuration order, reconciles them concurrently and merges the results.
func reconcileStatements(ctx context.Context, cfg *config.MainConfig, fm *utils.FileManager) (*settlementRun, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var jobs []settlement.Job
	for _, p := range cfg.Processors {
		files, err := fm.DiscoverByPrefix(p.Prefix)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			logrus.WithField("processor", p.Name).Warnf("no statement files matching %s*.csv", p.Prefix)
		}
		for _, f := range files {
			jobs = append(jobs, settlement.Job{Processor: p, File: f})
		}
	}

	sources, failures, err := settlement.ReconcileAll(ctx, jobs, cfg.LocalCurrency, cfg.MaxConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile statements: %w", err)
	}

	merged := settlement.Merge(sources, logrus.WithField("component", "merge"))
	return &settlementRun{Sources: sources, Failures: failures, Merged: merged}, nil
}

func printSettlement(cfg *config.MainConfig, run *settlementRun) {
	for _, src := range run.Sources {
		res := src.Result
		fmt.Printf("  %-8s %s: %d settled, %d refunded, %d unresolved\n",
			src.Processor, filepath.Base(src.File), len(res.Settlements), len(res.RefundedOrders), res.Unresolved)
	}
	for _, f := range run.Failures {
		fmt.Printf("  ✗ %v\n", f.Err)
	}
	fmt.Printf("Statement files:  %d\n", len(run.Sources))
	if len(run.Failures) > 0 {
		fmt.Printf("Unreadable:       %d\n", len(run.Failures))
	}
	fmt.Printf("Orders settled:   %d (%s %s)\n", len(run.Merged.Amounts), types.FormatMoney(run.Merged.Total()), cfg.LocalCurrency)
	fmt.Printf("Conflicts:        %d\n", len(run.Merged.Conflicts))
}

// writeSettlementReports writes the per-processor audit and the conflict
// report.
func writeSettlementReports(cfg *config.MainConfig, fm *utils.FileManager, run *settlementRun, force bool) error {
	write := func(name string, table report.Table) error {
		if len(table.Rows) == 0 {
			return nil
		}
		path := fm.OutputPath(report.FileName(name, cfg.ReportFormat), nil)
		written, err := report.Write(path, cfg.ReportFormat, table, force)
		if err != nil {
			return err
		}
		if written {
			fmt.Printf("  ✓ %s\n", filepath.Base(path))
		} else {
			fmt.Printf("  - %s exists, skipped\n", filepath.Base(path))
		}
		return nil
	}

	for _, p := range cfg.Processors {
		if err := write("settlement_audit_"+p.Name, report.AuditTable(p.Name, run.Sources)); err != nil {
			return err
		}
	}
	return write("settlement_conflicts", report.ConflictTable(run.Merged.Conflicts))
}

// diagnosticEntries converts diagnostics to error log entries.
func diagnosticEntries(diags []types.Diagnostic) []utils.ErrorLogEntry {
	entries := make([]utils.ErrorLogEntry, 0, len(diags))
	for _, d := range diags {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    time.Now(),
			FileName:     d.File,
			ErrorType:    string(d.Kind),
			ErrorMessage: d.Message,
			RowNumber:    d.Row,
			OrderID:      d.OrderID,
		})
	}
	return entries
}

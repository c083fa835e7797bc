// =============================================================================
// gst-tally - File Manager Utility
// =============================================================================
//
// File handling shared by the commands:
//   - Input discovery by prefix in the data folder
//   - Output naming and skip-if-exists checks
//   - Run summary and error log generation
//
// Inputs are never moved or modified. Outputs that already exist are left
// alone unless the caller forces a rewrite.
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for a run.
type FileManager struct {
	// DataFolder holds order exports and processor statements.
	DataFolder string

	// OutputDir is where vouchers, reports and logs are written.
	OutputDir string
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(dataFolder, outputDir string) *FileManager {
	if outputDir == "" {
		outputDir = dataFolder
	}
	return &FileManager{DataFolder: dataFolder, OutputDir: outputDir}
}

// EnsureDirectories creates the output directory if it doesn't exist.
func (fm *FileManager) EnsureDirectories() error {
	if err := os.MkdirAll(fm.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", fm.OutputDir, err)
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverByPrefix lists the .csv files in the data folder whose names start
// with prefix. Prefix and extension match case-insensitively; the result is
// sorted by name.
func (fm *FileManager) DiscoverByPrefix(prefix string) ([]string, error) {
	entries, err := os.ReadDir(fm.DataFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to scan data folder: %w", err)
	}

	lower := strings.ToLower(prefix)
	var result []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasPrefix(name, lower) && strings.HasSuffix(name, ".csv") {
			result = append(result, filepath.Join(fm.DataFolder, entry.Name()))
		}
	}

	sort.Strings(result)
	return result, nil
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// OutputSuffix strips prefix (any case) and the extension from a file name:
// "woo_orders_apr.csv" with prefix "woo_orders" gives "_apr".
func OutputSuffix(path, prefix string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
		name = name[len(prefix):]
	}
	return name
}

// OutputPath joins a generated file name onto the output directory.
func (fm *FileManager) OutputPath(format string, params map[string]string) string {
	return filepath.Join(fm.OutputDir, GenerateOutputFileName(format, params))
}

// GenerateOutputFileName expands placeholders in a file name format.
//
// Placeholders:
//   {uuid}      - A random UUID
//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//   {date}      - Current date (YYYYMMDD)
//   plus any key of params, e.g. {suffix}
//
// EXAMPLE:
//   format: "{tally_prefix}{suffix}.xml"
//   params: {"tally_prefix": "tally_sales", "suffix": "_apr"}
//   output: "tally_sales_apr.xml"
func GenerateOutputFileName(format string, params map[string]string) string {
	now := time.Now()

	replacements := map[string]string{
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
	}
	if strings.Contains(format, "{uuid}") {
		replacements["{uuid}"] = uuid.New().String()
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

// NewRunID returns an identifier for one invocation.
func NewRunID() string {
	return uuid.New().String()
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents a single error log entry.
type ErrorLogEntry struct {
	Timestamp    time.Time
	FileName     string
	ErrorType    string
	ErrorMessage string
	RowNumber    int
	OrderID      string
}

// WriteErrorLog writes error entries to a log file. Nothing is written when
// there are no entries.
func WriteErrorLog(entries []ErrorLogEntry, outputDir, runID string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(outputDir, fmt.Sprintf("error_log_%s.txt", timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "gst-tally - Error Log\n"+
		"Run ID: %s\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		runID,
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Timestamp:      %s\n"+
			"  File:           %s\n"+
			"  Error Type:     %s\n"+
			"  Message:        %s\n",
			i+1,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.FileName,
			entry.ErrorType,
			entry.ErrorMessage)

		if entry.RowNumber > 0 {
			fmt.Fprintf(writer, "  Row Number:     %d\n", entry.RowNumber)
		}
		if entry.OrderID != "" {
			fmt.Fprintf(writer, "  Order ID:       %s\n", entry.OrderID)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}

	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a run.
type ProcessingSummary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	DryRun    bool

	StatementFiles int
	OrdersSettled  int
	Conflicts      int

	TotalFiles      int
	SuccessfulFiles int
	SkippedFiles    int
	FailedFiles     int
	Vouchers        int
	Rejected        int
	MissingPayouts  int
	Diagnostics     int

	ProcessedFiles  []ProcessedFileInfo
	FailedFilesList []FailedFileInfo
}

// ProcessedFileInfo contains information about a processed order export.
type ProcessedFileInfo struct {
	InputFile     string
	OutputFile    string
	MissingReport string
	Skipped       bool
	Orders        int
	Vouchers      int
	Rejected      int
	Missing       int
	ProcessTime   time.Duration
}

// FailedFileInfo contains information about a failed file.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummaryLog writes a run summary to a text file.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	timestamp := summary.StartTime.Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("run_summary_%s.txt", timestamp))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	mode := "write"
	if summary.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(writer, "gst-tally - Run Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Mode:           %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n"+
		"Settlement:\n"+
		"  Statement Files:    %d\n"+
		"  Orders Settled:     %d\n"+
		"  Conflicts:          %d\n\n"+
		"Order Exports:\n"+
		"  Total Files:        %d\n"+
		"  Successful:         %d\n"+
		"  Skipped (exists):   %d\n"+
		"  Failed:             %d\n"+
		"  Vouchers:           %d\n"+
		"  Rejected:           %d\n"+
		"  Missing Payouts:    %d\n"+
		"  Diagnostics:        %d\n\n",
		summary.RunID,
		mode,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String(),
		summary.StatementFiles,
		summary.OrdersSettled,
		summary.Conflicts,
		summary.TotalFiles,
		summary.SuccessfulFiles,
		summary.SkippedFiles,
		summary.FailedFiles,
		summary.Vouchers,
		summary.Rejected,
		summary.MissingPayouts,
		summary.Diagnostics)

	if len(summary.ProcessedFiles) > 0 {
		writer.WriteString("Processed Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, pf := range summary.ProcessedFiles {
			fmt.Fprintf(writer, "  Input:        %s\n", pf.InputFile)
			if pf.Skipped {
				fmt.Fprintf(writer, "  Output:       %s (exists, skipped)\n\n", pf.OutputFile)
				continue
			}
			fmt.Fprintf(writer, "  Output:       %s\n", pf.OutputFile)
			if pf.MissingReport != "" {
				fmt.Fprintf(writer, "  Missing:      %s (%d orders)\n", pf.MissingReport, pf.Missing)
			}
			fmt.Fprintf(writer, "  Orders:       %d\n", pf.Orders)
			fmt.Fprintf(writer, "  Vouchers:     %d\n", pf.Vouchers)
			fmt.Fprintf(writer, "  Rejected:     %d\n", pf.Rejected)
			fmt.Fprintf(writer, "  Process Time: %s\n\n", pf.ProcessTime.String())
		}
	}

	if len(summary.FailedFilesList) > 0 {
		writer.WriteString("Failed Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

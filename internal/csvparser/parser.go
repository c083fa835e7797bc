// =============================================================================
// gst-tally - CSV Table Parser
// =============================================================================
//
// This module parses the tabular inputs: order exports, processor statements
// and CSV reference tables. It handles:
//   - A UTF-8 byte order mark ahead of the first row
//   - A metadata preamble above the real header row (processor statements
//     start with account details before the transaction table)
//   - Alternative spellings of a column header via aliases
//   - Quoted fields, ragged rows, and blank lines
//
// Every data row keeps its 1-based line number so row-level diagnostics can
// point back at the source file.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrHeaderNotFound is returned when no row carries all required headers.
var ErrHeaderNotFound = errors.New("header row not found")

// =============================================================================
// SETTINGS
// =============================================================================

// Settings controls how a table is located and read.
type Settings struct {
	// Delimiter is the field separator. Default: ","
	Delimiter string

	// RequiredHeaders, when set, locates the header row as the first row
	// containing every one of them. Rows above it become Metadata.
	RequiredHeaders []string

	// HeaderRows is the number of header rows when RequiredHeaders is not
	// set. Multi-row headers are merged column-wise with a space.
	// Default: 1
	HeaderRows int

	// Aliases maps an alternative header spelling to its canonical name.
	Aliases map[string]string
}

// =============================================================================
// CSV DATA STRUCTURE
// =============================================================================

// Row is one data row keyed by header.
type Row struct {
	// Number is the 1-based line number in the source file (record number
	// for workbooks).
	Number int

	Fields map[string]string
}

// Get returns the trimmed value of a column, or "" if absent.
func (r Row) Get(header string) string {
	return r.Fields[header]
}

// Has reports whether the column exists in the row's table.
func (r Row) Has(header string) bool {
	_, ok := r.Fields[header]
	return ok
}

// CSVData represents a parsed table.
type CSVData struct {
	// Headers are the cleaned, alias-resolved column headers.
	Headers []string

	// Rows are the non-empty data rows.
	Rows []Row

	// Metadata holds "key,value" rows found above the header row.
	Metadata map[string]string

	// SourceFile is the path the table was read from.
	SourceFile string
}

// HasHeader reports whether the table has the given column.
func (d *CSVData) HasHeader(header string) bool {
	for _, h := range d.Headers {
		if h == header {
			return true
		}
	}
	return false
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a CSV file and returns the parsed table.
func Parse(filePath string, settings Settings) (*CSVData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	csvReader, err := newReader(file, settings)
	if err != nil {
		return nil, err
	}

	var (
		records [][]string
		lines   []int
	)
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := csvReader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}

	return fromRecords(records, lines, settings, filePath)
}

// FromRecords builds a table from raw records. It is shared with the XLSX
// reader so both formats locate headers the same way. Row numbers are the
// 1-based record positions.
func FromRecords(records [][]string, settings Settings, source string) (*CSVData, error) {
	return fromRecords(records, nil, settings, source)
}

func fromRecords(records [][]string, lines []int, settings Settings, source string) (*CSVData, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: file is empty", source)
	}

	headerIndex, headers, err := locateHeaders(records, settings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	data := &CSVData{
		Headers:    headers,
		Metadata:   extractMetadata(records[:headerIndex]),
		SourceFile: source,
	}

	for i := headerIndex + 1; i < len(records); i++ {
		if isRowEmpty(records[i]) {
			continue
		}
		number := i + 1
		if lines != nil {
			number = lines[i]
		}
		data.Rows = append(data.Rows, toRow(records[i], headers, number))
	}

	return data, nil
}

// utf8BOM is dropped from the byte stream, not the first field, so a quoted
// first header still parses as quoted.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// newReader builds a configured CSV reader over r, skipping a leading BOM.
func newReader(r io.Reader, settings Settings) (*csv.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(utf8BOM))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	configureReader(reader, settings)
	return reader, nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings Settings) {
	switch settings.Delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		}
	}

	// Statements mix short preamble rows with the wide transaction table.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// locateHeaders finds the header row. It returns the index of the last
// header row and the cleaned headers.
func locateHeaders(records [][]string, settings Settings) (int, []string, error) {
	if len(settings.RequiredHeaders) > 0 {
		for i, record := range records {
			headers := cleanHeaders(record, settings.Aliases)
			if containsAll(headers, settings.RequiredHeaders) {
				return i, headers, nil
			}
		}
		return 0, nil, fmt.Errorf("%w: need %s", ErrHeaderNotFound, strings.Join(settings.RequiredHeaders, ", "))
	}

	headerRows := settings.HeaderRows
	if headerRows <= 0 {
		headerRows = 1
	}
	if len(records) < headerRows {
		return 0, nil, fmt.Errorf("file has fewer rows than header_rows setting")
	}
	if headerRows == 1 {
		return 0, cleanHeaders(records[0], settings.Aliases), nil
	}

	// Multi-row headers: concatenate non-empty parts of each column.
	maxCols := 0
	for i := 0; i < headerRows; i++ {
		if len(records[i]) > maxCols {
			maxCols = len(records[i])
		}
	}
	merged := make([]string, maxCols)
	for col := 0; col < maxCols; col++ {
		var parts []string
		for row := 0; row < headerRows; row++ {
			if col < len(records[row]) {
				if v := strings.TrimSpace(records[row][col]); v != "" {
					parts = append(parts, v)
				}
			}
		}
		merged[col] = strings.Join(parts, " ")
	}
	return headerRows - 1, cleanHeaders(merged, settings.Aliases), nil
}

// cleanHeaders trims headers, strips a byte order mark left by workbook
// cells, resolves aliases and
// names blank columns by position.
func cleanHeaders(headers []string, aliases map[string]string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		header = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
		if canonical, ok := aliases[header]; ok {
			header = canonical
		}
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = header
	}
	return cleaned
}

func extractMetadata(preamble [][]string) map[string]string {
	metadata := make(map[string]string)
	for _, row := range preamble {
		if len(row) == 0 {
			continue
		}
		key := strings.TrimSpace(strings.TrimPrefix(row[0], "\ufeff"))
		if key == "" {
			continue
		}
		value := ""
		if len(row) > 1 {
			value = strings.TrimSpace(row[1])
		}
		metadata[key] = value
	}
	return metadata
}

func toRow(record []string, headers []string, lineNumber int) Row {
	fields := make(map[string]string, len(headers))
	for col, header := range headers {
		if col < len(record) {
			fields[header] = strings.TrimSpace(record[col])
		} else {
			fields[header] = ""
		}
	}
	return Row{Number: lineNumber, Fields: fields}
}

func containsAll(headers, required []string) bool {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	for _, r := range required {
		if !present[r] {
			return false
		}
	}
	return true
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// STREAMING PARSER FOR LARGE FILES
// =============================================================================

// StreamingParser reads a table one row at a time. Statement files are
// replayed in file order through it without holding the whole file.
//
// USAGE:
//   parser, err := NewStreamingParser(filePath, settings)
//   if err != nil {
//       return err
//   }
//   defer parser.Close()
//
//   for parser.Next() {
//       row := parser.Row()
//       // Process the row...
//   }
//
//   if err := parser.Err(); err != nil {
//       return err
//   }
type StreamingParser struct {
	file       *os.File
	reader     *csv.Reader
	headers    []string
	metadata   map[string]string
	currentRow Row
	lineNumber int
	err        error
}

// NewStreamingParser opens a file and positions it after the header row.
func NewStreamingParser(filePath string, settings Settings) (*StreamingParser, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader, err := newReader(file, settings)
	if err != nil {
		file.Close()
		return nil, err
	}

	parser := &StreamingParser{file: file, reader: reader}
	if err := parser.readHeaders(settings); err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return parser, nil
}

// readHeaders consumes rows up to and including the header row.
func (p *StreamingParser) readHeaders(settings Settings) error {
	var consumed [][]string
	for {
		record, err := p.reader.Read()
		if err == io.EOF {
			if len(settings.RequiredHeaders) > 0 {
				return fmt.Errorf("%w: need %s", ErrHeaderNotFound, strings.Join(settings.RequiredHeaders, ", "))
			}
			return fmt.Errorf("unexpected end of file while reading headers")
		}
		if err != nil {
			return fmt.Errorf("error reading header row %d: %w", p.lineNumber+1, err)
		}
		p.lineNumber, _ = p.reader.FieldPos(0)
		consumed = append(consumed, record)

		if len(settings.RequiredHeaders) > 0 {
			headers := cleanHeaders(record, settings.Aliases)
			if containsAll(headers, settings.RequiredHeaders) {
				p.headers = headers
				p.metadata = extractMetadata(consumed[:len(consumed)-1])
				return nil
			}
			continue
		}

		headerRows := settings.HeaderRows
		if headerRows <= 0 {
			headerRows = 1
		}
		if len(consumed) == headerRows {
			_, headers, err := locateHeaders(consumed, settings)
			if err != nil {
				return err
			}
			p.headers = headers
			p.metadata = map[string]string{}
			return nil
		}
	}
}

// Next advances to the next non-empty row. Returns false at end of input or
// on error.
func (p *StreamingParser) Next() bool {
	for p.err == nil {
		record, err := p.reader.Read()
		if err == io.EOF {
			return false
		}
		if err != nil {
			p.err = fmt.Errorf("error reading row %d: %w", p.lineNumber+1, err)
			return false
		}
		p.lineNumber, _ = p.reader.FieldPos(0)
		if isRowEmpty(record) {
			continue
		}
		p.currentRow = toRow(record, p.headers, p.lineNumber)
		return true
	}
	return false
}

// Row returns the current row.
func (p *StreamingParser) Row() Row { return p.currentRow }

// Headers returns the parsed headers.
func (p *StreamingParser) Headers() []string { return p.headers }

// Metadata returns the preamble found above the header row.
func (p *StreamingParser) Metadata() map[string]string { return p.metadata }

// Err returns any error that occurred during parsing.
func (p *StreamingParser) Err() error { return p.err }

// Close closes the underlying file.
func (p *StreamingParser) Close() error { return p.file.Close() }

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FilterRows returns rows that match a filter condition.
func FilterRows(data *CSVData, filterFunc func(row Row) bool) []Row {
	var filtered []Row
	for _, row := range data.Rows {
		if filterFunc(row) {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

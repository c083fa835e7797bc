package statement

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/csvparser"
	"github.com/ecofemme/gst-tally/internal/types"
)

// Statement is a classified processor statement file.
type Statement struct {
	Processor string
	File      string

	// Metadata is the preamble above the transaction table.
	Metadata map[string]string

	// Events are every classified row in file order, Ignored ones included.
	Events []Event

	Diagnostics []types.Diagnostic
}

// Load reads and classifies a statement file in file order. Only I/O and
// layout problems are returned as errors; unparseable rows become
// diagnostics.
func Load(path string, cfg config.ProcessorConfig, log *logrus.Entry) (*Statement, error) {
	cols := cfg.Columns
	parser, err := csvparser.NewStreamingParser(path, csvparser.Settings{
		RequiredHeaders: []string{cols.Type, cols.Currency, cols.Gross},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open statement: %w", err)
	}
	defer parser.Close()

	classifier := NewClassifier(cfg)
	st := &Statement{
		Processor: cfg.Name,
		File:      path,
		Metadata:  parser.Metadata(),
	}

	for parser.Next() {
		event, diag := classifier.Classify(parser.Row())
		if diag != nil {
			diag.File = filepath.Base(path)
			log.WithField("row", diag.Row).Warn(diag.Message)
			st.Diagnostics = append(st.Diagnostics, *diag)
		}
		st.Events = append(st.Events, event)
	}
	if err := parser.Err(); err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}

	log.WithField("events", len(st.Events)).Debug("statement classified")
	return st, nil
}

// Counts tallies events by type.
func (s *Statement) Counts() map[EventType]int {
	counts := make(map[EventType]int)
	for _, e := range s.Events {
		counts[e.Type]++
	}
	return counts
}

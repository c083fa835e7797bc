// =============================================================================
// gst-tally - Main Entry Point
// =============================================================================
//
// USAGE:
//   gst-tally process       - Reconcile statements and write Tally vouchers
//   gst-tally reconcile     - Reconcile statements and write audit reports
//   gst-tally validate      - Check configuration and reference tables
//   gst-tally prices        - Generate the standalone price table
//   gst-tally version       - Display the application version
//
// =============================================================================

package main

import (
	"github.com/ecofemme/gst-tally/cmd"
)

func main() {
	cmd.Execute()
}

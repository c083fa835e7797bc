// =============================================================================
// gst-tally - Root Command
// =============================================================================
//
// COBRA CLI STRUCTURE:
//   rootCmd (gst-tally)
//   ├── processCmd   (gst-tally process)    reconcile + vouchers
//   ├── reconcileCmd (gst-tally reconcile)  statements only
//   ├── validateCmd  (gst-tally validate)   configuration and reference data
//   ├── pricesCmd    (gst-tally prices)     standalone price table
//   └── versionCmd   (gst-tally version)
//
// Every command except version loads the main configuration, then sets up
// logging from it.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecofemme/gst-tally/internal/config"
	"github.com/ecofemme/gst-tally/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "gst-tally",
	Short: "Reconcile processor payouts and build GST sales vouchers for Tally",
	Long: `gst-tally turns storefront order exports into Tally sales vouchers.

Foreign-currency orders are booked at the amount actually received: payment
processor statements are replayed to find what each order settled to in the
local currency after conversion. Each order becomes one balanced voucher with
bundle prices split across products and GST split into CGST and SGST.

Example Usage:
  gst-tally process                     # reconcile and write vouchers
  gst-tally process --dry-run           # run everything, write nothing
  gst-tally reconcile                   # settlement audit reports only
  gst-tally validate                    # check configuration and tables
  gst-tally prices --woo-products wc-products.csv -o product_prices.csv`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// loadConfig loads the main configuration and configures logging. The
// caller closes the returned closer when done.
func loadConfig() (*config.MainConfig, io.Closer, error) {
	cfg, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load main config: %w", err)
	}

	closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile, verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

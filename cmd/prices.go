package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ecofemme/gst-tally/internal/logging"
	"github.com/ecofemme/gst-tally/internal/refdata"
	"github.com/ecofemme/gst-tally/pkg/utils"
)

var (
	wooProductsFile string
	pricesOutput    string
	mappingFile     string
	pricesForce     bool
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Generate the standalone price table from a storefront product export",
	Long: `The prices command derives a standalone price for every ledger product from
a storefront product export. A product reached by exactly one SKU takes that
SKU's regular price. Products reached by several SKUs are listed for manual
pricing, as are products whose SKU is missing from the export.

Without --mapping, the SKU mapping and output path come from the main
configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrices()
	},
}

func init() {
	rootCmd.AddCommand(pricesCmd)

	pricesCmd.Flags().StringVar(&wooProductsFile, "woo-products", "", "Storefront product export (CSV)")
	pricesCmd.Flags().StringVarP(&pricesOutput, "output", "o", "", "Price table to write")
	pricesCmd.Flags().StringVar(&mappingFile, "mapping", "", "SKU mapping file (defaults to the configured one)")
	pricesCmd.Flags().BoolVar(&pricesForce, "force", false, "Overwrite an existing price table")
	pricesCmd.MarkFlagRequired("woo-products")
}

func runPrices() error {
	mapping, output := mappingFile, pricesOutput

	var closer io.Closer
	var err error
	if mapping == "" {
		cfg, c, err := loadConfig()
		if err != nil {
			return err
		}
		closer = c
		mapping = cfg.SkuMappingFile
		if output == "" {
			output = cfg.ProductPricesFile
		}
	} else {
		closer, err = logging.Setup("info", "", verbose)
		if err != nil {
			return err
		}
	}
	defer closer.Close()

	if output == "" {
		return fmt.Errorf("no output path: pass --output")
	}
	if utils.FileExists(output) && !pricesForce {
		fmt.Printf("  - %s exists, skipped (use --force to overwrite)\n", output)
		return nil
	}

	skus, err := refdata.LoadSkuMapping(mapping)
	if err != nil {
		return err
	}
	storefront, warnings, err := refdata.LoadStorefrontProducts(wooProductsFile)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logrus.WithField("file", wooProductsFile).Warn(w)
	}

	gen := refdata.GeneratePrices(skus, storefront)
	if err := refdata.WritePrices(output, gen.Prices); err != nil {
		return err
	}
	fmt.Printf("  ✓ %s (%d prices)\n", output, len(gen.Prices))

	if len(gen.Ambiguous) > 0 {
		fmt.Println("Reached by several SKUs, price manually:")
		for _, name := range sortedKeys(gen.Ambiguous) {
			fmt.Printf("  %s: %s\n", name, strings.Join(gen.Ambiguous[name], ", "))
		}
	}
	if len(gen.Unpriced) > 0 {
		fmt.Println("SKU missing from the product export:")
		for _, name := range sortedKeys(gen.Unpriced) {
			fmt.Printf("  %s: %s\n", name, gen.Unpriced[name])
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

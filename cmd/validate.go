package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecofemme/gst-tally/pkg/utils"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration, reference tables and input files",
	Long: `The validate command loads the configuration and every reference table
without processing anything. It fails when the SKU mapping names products the
product table does not define, or when a bundle has products without a
standalone price, since order lines using them would be skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate() error {
	cfg, closer, err := loadConfig()
	if err != nil {
		return err
	}
	defer closer.Close()

	fmt.Printf("Configuration:   %s OK\n", cfgFile)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Products:        %d\n", len(catalog.Products))
	fmt.Printf("SKUs:            %d\n", len(catalog.Skus.SKUs()))
	fmt.Printf("Prices:          %d\n", len(catalog.Prices))

	fm := utils.NewFileManager(cfg.DataFolder, cfg.OutputDir)
	orderFiles, err := fm.DiscoverByPrefix(cfg.WooPrefix)
	if err != nil {
		return err
	}
	fmt.Printf("Order exports:   %d\n", len(orderFiles))
	for _, p := range cfg.Processors {
		files, err := fm.DiscoverByPrefix(p.Prefix)
		if err != nil {
			return err
		}
		fmt.Printf("Statements:      %d (%s)\n", len(files), p.Name)
	}

	var problems []string
	if unknown := catalog.UnknownProducts(); len(unknown) > 0 {
		problems = append(problems, fmt.Sprintf("products missing from %s: %s", cfg.TallyProductsFile, strings.Join(unknown, ", ")))
	}
	if unpriced := catalog.UnpricedBundles(); len(unpriced) > 0 {
		problems = append(problems, fmt.Sprintf("bundles with unpriced products: %s", strings.Join(unpriced, ", ")))
	}
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("  ✗ %s\n", p)
		}
		return fmt.Errorf("reference data has %d problem(s)", len(problems))
	}

	fmt.Println("Reference data:  OK")
	return nil
}

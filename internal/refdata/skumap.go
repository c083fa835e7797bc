package refdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SkuResolver resolves a storefront SKU to the ledger products it stands for.
// A SKU resolving to more than one name is a bundle.
type SkuResolver interface {
	Resolve(sku string) ([]string, bool)
	SKUs() []string
}

// MapResolver is a SkuResolver backed by an in-memory mapping.
type MapResolver struct {
	mapping map[string][]string
}

// NewMapResolver builds a resolver from sku → ledger product names.
func NewMapResolver(mapping map[string][]string) *MapResolver {
	cleaned := make(map[string][]string, len(mapping))
	for sku, names := range mapping {
		sku = strings.TrimSpace(sku)
		if sku == "" {
			continue
		}
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				cleaned[sku] = append(cleaned[sku], n)
			}
		}
	}
	return &MapResolver{mapping: cleaned}
}

// Resolve returns the ledger products for a SKU. A copy is returned.
func (r *MapResolver) Resolve(sku string) ([]string, bool) {
	names, ok := r.mapping[strings.TrimSpace(sku)]
	if !ok || len(names) == 0 {
		return nil, false
	}
	return append([]string(nil), names...), true
}

// SKUs returns every mapped SKU, sorted.
func (r *MapResolver) SKUs() []string {
	skus := make([]string, 0, len(r.mapping))
	for sku := range r.mapping {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

// Reverse maps each ledger product to the SKUs that reach it, in SKU order.
func Reverse(r SkuResolver) map[string][]string {
	reverse := make(map[string][]string)
	for _, sku := range r.SKUs() {
		names, _ := r.Resolve(sku)
		for _, name := range names {
			reverse[name] = append(reverse[name], sku)
		}
	}
	return reverse
}

// LoadSkuMapping loads a SKU mapping file. Supported forms:
//   - .json        {"SKU-1": ["Product A"], "KIT-1": ["Product A", "Product B"]}
//   - .yaml/.yml   the same object in YAML
//   - .csv/.xlsx   one row per pair with columns "SKU" and "Tally Name"
func LoadSkuMapping(path string) (*MapResolver, error) {
	var (
		mapping map[string][]string
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		mapping, err = decodeMappingFile(path, json.Unmarshal)
	case ".yaml", ".yml":
		mapping, err = decodeMappingFile(path, yaml.Unmarshal)
	default:
		mapping, err = loadMappingTable(path)
	}
	if err != nil {
		return nil, err
	}

	resolver := NewMapResolver(mapping)
	if len(resolver.mapping) == 0 {
		return nil, &ReferenceDataError{File: path, Message: "mapping has no SKUs"}
	}
	return resolver, nil
}

func decodeMappingFile(path string, unmarshal func([]byte, interface{}) error) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReferenceDataError{File: path, Message: "cannot read mapping", Err: err}
	}
	var mapping map[string][]string
	if err := unmarshal(data, &mapping); err != nil {
		return nil, &ReferenceDataError{File: path, Message: "cannot decode mapping", Err: err}
	}
	return mapping, nil
}

func loadMappingTable(path string) (map[string][]string, error) {
	data, err := loadTable(path, ColSKU, ColTallyName)
	if err != nil {
		return nil, err
	}
	mapping := make(map[string][]string)
	for _, row := range data.Rows {
		sku, name := row.Get(ColSKU), row.Get(ColTallyName)
		if sku == "" || name == "" {
			return nil, &ReferenceDataError{File: path, Row: row.Number, Message: fmt.Sprintf("incomplete mapping row %q → %q", sku, name)}
		}
		mapping[sku] = append(mapping[sku], name)
	}
	return mapping, nil
}

package catalog

import _ "embed"

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Default parses the catalog compiled into the binary. It is used when no
// CATALOG_PATH is configured.
func Default() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

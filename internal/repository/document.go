package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pagoda/harvester/internal/domain"
)

// DocumentWriter persists the catalog and run summary as JSON documents. The
// catalog document maps product_id to the full record.
type DocumentWriter struct {
	catalogPath string
	summaryPath string
}

func NewDocumentWriter(catalogPath, summaryPath string) *DocumentWriter {
	return &DocumentWriter{
		catalogPath: catalogPath,
		summaryPath: summaryPath,
	}
}

func (w *DocumentWriter) WriteCatalog(catalog *domain.Catalog) error {
	doc := make(map[string]domain.ProductRecord, catalog.Len())
	for _, rec := range catalog.Records() {
		doc[rec.ProductID] = rec
	}
	return writeJSON(w.catalogPath, doc)
}

func (w *DocumentWriter) WriteSummary(summary domain.RunSummary) error {
	return writeJSON(w.summaryPath, summary)
}

// writeJSON writes to a temp file then renames, so a crash mid-write never
// truncates the previous document.
func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ProductRecord is the normalized unit of output. ProductID is the sole
// deduplication key across the whole run.
type ProductRecord struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Spec         string          `json:"spec,omitempty"`
	DeliveryInfo string          `json:"delivery_info,omitempty"`
	Labels       []string        `json:"labels,omitempty"`
	ImageURLs    []string        `json:"image_urls,omitempty"`
}

// NormalizeLabels trims every label, drops empties and duplicates, and keeps
// first-seen order.
func NormalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameURLs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

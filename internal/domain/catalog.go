package domain

import (
	"fmt"
	"sort"
)

// MergeResult says what a Merge call did to the catalog.
type MergeResult int

const (
	MergeInserted MergeResult = iota
	MergeUpdated
	MergeUnchanged
)

func (r MergeResult) String() string {
	switch r {
	case MergeInserted:
		return "inserted"
	case MergeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// MergeOutcome carries the result of one merge plus any field conflicts, where
// a conflict is a populated field overwritten by a different populated value.
type MergeOutcome struct {
	Result    MergeResult
	Conflicts []string
}

// Catalog accumulates deduplicated product records across all keyword runs in
// one session. It only grows; records are merged, never dropped.
type Catalog struct {
	records map[string]*ProductRecord
}

func NewCatalog() *Catalog {
	return &Catalog{records: make(map[string]*ProductRecord)}
}

func (c *Catalog) Len() int {
	return len(c.records)
}

func (c *Catalog) Get(id string) (ProductRecord, bool) {
	rec, ok := c.records[id]
	if !ok {
		return ProductRecord{}, false
	}
	return *rec, true
}

// Records returns the catalog contents sorted by product id for deterministic
// output.
func (c *Catalog) Records() []ProductRecord {
	out := make([]ProductRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Merge folds rec into the catalog under the field-level merge rule: the
// later-seen record wins per field, but only where it is populated. A
// populated field replacing a different populated value is reported as a
// conflict so the caller can log it.
func (c *Catalog) Merge(rec ProductRecord) MergeOutcome {
	existing, ok := c.records[rec.ProductID]
	if !ok {
		cp := rec
		c.records[rec.ProductID] = &cp
		return MergeOutcome{Result: MergeInserted}
	}

	outcome := MergeOutcome{Result: MergeUnchanged}
	conflict := func(field, old, new string) {
		outcome.Conflicts = append(outcome.Conflicts,
			fmt.Sprintf("%s: %q -> %q", field, old, new))
	}

	if rec.Name != "" && rec.Name != existing.Name {
		if existing.Name != "" {
			conflict("name", existing.Name, rec.Name)
		}
		existing.Name = rec.Name
		outcome.Result = MergeUpdated
	}
	if !rec.Price.Equal(existing.Price) {
		if !existing.Price.IsZero() && !rec.Price.IsZero() {
			conflict("price", existing.Price.String(), rec.Price.String())
		}
		if !rec.Price.IsZero() {
			existing.Price = rec.Price
			outcome.Result = MergeUpdated
		}
	}
	if rec.Spec != "" && rec.Spec != existing.Spec {
		if existing.Spec != "" {
			conflict("spec", existing.Spec, rec.Spec)
		}
		existing.Spec = rec.Spec
		outcome.Result = MergeUpdated
	}
	if rec.DeliveryInfo != "" && rec.DeliveryInfo != existing.DeliveryInfo {
		if existing.DeliveryInfo != "" {
			conflict("delivery_info", existing.DeliveryInfo, rec.DeliveryInfo)
		}
		existing.DeliveryInfo = rec.DeliveryInfo
		outcome.Result = MergeUpdated
	}
	if len(rec.Labels) > 0 && !sameLabels(rec.Labels, existing.Labels) {
		existing.Labels = rec.Labels
		outcome.Result = MergeUpdated
	}
	if len(rec.ImageURLs) > 0 && !sameURLs(rec.ImageURLs, existing.ImageURLs) {
		existing.ImageURLs = rec.ImageURLs
		outcome.Result = MergeUpdated
	}

	return outcome
}

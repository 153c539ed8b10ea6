package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"pagoda/harvester/internal/domain"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var fenPerYuan = decimal.NewFromInt(100)

// searchResponse is the known schema path to the product listing. Any part of
// it may be absent; absence is schema drift, not an error.
type searchResponse struct {
	Data struct {
		B2C struct {
			OnSaleList []json.RawMessage `json:"onSaleList"`
		} `json:"b2c"`
	} `json:"data"`
}

// Result is the outcome of extracting one exchange: the records that parsed,
// plus one error per entry that had to be skipped.
type Result struct {
	Records []domain.ProductRecord
	Skipped []error
}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses an exchange's response body into product records. A missing
// listing array yields an empty result with a warning; a single bad entry is
// skipped and reported in Result.Skipped, never aborting the batch.
func (e *Extractor) Extract(ex domain.Exchange) Result {
	var res Result

	var envelope searchResponse
	if err := json.Unmarshal([]byte(ex.ResponseBody), &envelope); err != nil {
		log.Warnf("Response from %s is not the expected search schema: %v", ex.URL, err)
		return res
	}
	if envelope.Data.B2C.OnSaleList == nil {
		log.Warnf("Response from %s has no onSaleList; schema may have drifted", ex.URL)
		return res
	}

	for i, raw := range envelope.Data.B2C.OnSaleList {
		rec, err := parseEntry(raw)
		if err != nil {
			log.Warnf("Skipping product entry %d from %s: %v", i, ex.URL, err)
			res.Skipped = append(res.Skipped, err)
			continue
		}
		res.Records = append(res.Records, rec)
	}

	return res
}

func parseEntry(raw json.RawMessage) (domain.ProductRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var entry map[string]interface{}
	if err := dec.Decode(&entry); err != nil {
		return domain.ProductRecord{}, &domain.MalformedProductError{Field: "entry", Value: truncate(string(raw))}
	}

	id := stringField(entry, "goodsId")
	if id == "" {
		return domain.ProductRecord{}, &domain.MalformedProductError{Field: "goodsId", Value: truncate(string(raw))}
	}

	price, err := priceField(entry, "memberPrice")
	if err != nil {
		return domain.ProductRecord{}, &domain.MalformedProductError{
			ProductID: id,
			Field:     "memberPrice",
			Value:     fmt.Sprint(entry["memberPrice"]),
		}
	}

	return domain.ProductRecord{
		ProductID:    id,
		Name:         stringField(entry, "goodsName"),
		Price:        price,
		Spec:         stringField(entry, "goodsSpec"),
		DeliveryInfo: stringField(entry, "deliveryInfo"),
		Labels:       domain.NormalizeLabels(stringSliceField(entry, "labelList")),
		ImageURLs:    stringSliceField(entry, "imgUrlList"),
	}, nil
}

// stringField reads a string-ish value; numeric ids come back as numbers from
// some API versions.
func stringField(entry map[string]interface{}, key string) string {
	switch v := entry[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// priceField parses the fen-denominated price into yuan. Anything absent,
// non-numeric, or negative is malformed.
func priceField(entry map[string]interface{}, key string) (decimal.Decimal, error) {
	var raw string
	switch v := entry[key].(type) {
	case json.Number:
		raw = v.String()
	case string:
		raw = strings.TrimSpace(v)
	default:
		return decimal.Decimal{}, fmt.Errorf("price missing")
	}

	fen, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("price not numeric: %q", raw)
	}
	if fen.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("price negative: %q", raw)
	}
	return fen.Div(fenPerYuan), nil
}

// stringSliceField preserves source order and drops non-string elements.
func stringSliceField(entry map[string]interface{}, key string) []string {
	items, ok := entry[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func truncate(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

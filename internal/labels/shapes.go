package labels

import (
	"encoding/json"
	"fmt"
)

// Label is a supplement product label in the one shape the rest of tulog sees.
type Label struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Brand       string       `json:"brand,omitempty"`
	UPC         string       `json:"upc,omitempty"`
	Ingredients []Ingredient `json:"ingredients,omitempty"`
}

// Ingredient is one row of a label's supplement facts.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

// Shape identifies which upstream response layout a payload uses.
type Shape int

const (
	ShapeUnknown  Shape = iota
	ShapeHits           // search index: {"hits": [{"_id": ..., "_source": {...}}]}
	ShapeProducts       // {"products": [{...}]}
	ShapeLabels         // {"labels": [{...}]}
	ShapeSingle         // one label object: {"id": ..., "fullName": ...}
)

func (s Shape) String() string {
	switch s {
	case ShapeHits:
		return "hits"
	case ShapeProducts:
		return "products"
	case ShapeLabels:
		return "labels"
	case ShapeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// DetectShape probes the top-level keys of raw to find its layout.
func DetectShape(raw []byte) Shape {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ShapeUnknown
	}
	switch {
	case probe["hits"] != nil:
		return ShapeHits
	case probe["products"] != nil:
		return ShapeProducts
	case probe["labels"] != nil:
		return ShapeLabels
	case probe["id"] != nil && (probe["fullName"] != nil || probe["productName"] != nil):
		return ShapeSingle
	default:
		return ShapeUnknown
	}
}

// Normalize converts any known upstream payload into labels. The shape is
// resolved once here and each shape has exactly one adapter.
func Normalize(raw []byte) ([]Label, error) {
	shape := DetectShape(raw)
	var (
		labels []Label
		err    error
	)
	switch shape {
	case ShapeHits:
		labels, err = fromHits(raw)
	case ShapeProducts:
		labels, err = fromList(raw, "products")
	case ShapeLabels:
		labels, err = fromList(raw, "labels")
	case ShapeSingle:
		var l upstreamLabel
		if err = json.Unmarshal(raw, &l); err == nil {
			labels = []Label{l.normalize("")}
		}
	default:
		return nil, fmt.Errorf("unrecognized label response shape")
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", shape, err)
	}
	if labels == nil {
		labels = []Label{}
	}
	return labels, nil
}

// upstreamLabel covers the field names used across upstream layouts.
type upstreamLabel struct {
	ID          json.RawMessage `json:"id"`
	DSLDID      json.RawMessage `json:"dsldId"`
	FullName    string          `json:"fullName"`
	ProductName string          `json:"productName"`
	Name        string          `json:"name"`
	BrandName   string          `json:"brandName"`
	Brand       string          `json:"brand"`
	UPCSku      string          `json:"upcSku"`
	UPC         string          `json:"upc"`
	Ingredients []struct {
		Name     string `json:"name"`
		Quantity []struct {
			Quantity float64 `json:"quantity"`
			Unit     string  `json:"unit"`
		} `json:"quantity"`
	} `json:"ingredientRows"`
}

func (u upstreamLabel) normalize(fallbackID string) Label {
	l := Label{
		ID:    firstNonEmpty(rawID(u.ID), rawID(u.DSLDID), fallbackID),
		Name:  firstNonEmpty(u.FullName, u.ProductName, u.Name),
		Brand: firstNonEmpty(u.BrandName, u.Brand),
		UPC:   firstNonEmpty(u.UPCSku, u.UPC),
	}
	for _, row := range u.Ingredients {
		ing := Ingredient{Name: row.Name}
		if len(row.Quantity) > 0 {
			ing.Quantity = row.Quantity[0].Quantity
			ing.Unit = row.Quantity[0].Unit
		}
		l.Ingredients = append(l.Ingredients, ing)
	}
	return l
}

func fromHits(raw []byte) ([]Label, error) {
	var payload struct {
		Hits []struct {
			ID     json.RawMessage `json:"_id"`
			Source upstreamLabel   `json:"_source"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	labels := make([]Label, 0, len(payload.Hits))
	for _, h := range payload.Hits {
		labels = append(labels, h.Source.normalize(rawID(h.ID)))
	}
	return labels, nil
}

func fromList(raw []byte, key string) ([]Label, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	var list []upstreamLabel
	if err := json.Unmarshal(payload[key], &list); err != nil {
		return nil, err
	}
	labels := make([]Label, 0, len(list))
	for _, u := range list {
		labels = append(labels, u.normalize(""))
	}
	return labels, nil
}

// rawID accepts both numeric and string identifiers.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package model

import (
	"fmt"
	"net/url"
	"strings"
)

// Field ids used across recipes, tolerances, and validation results.
const (
	FieldTitle       = "title"
	FieldCanonical   = "canonical_url"
	FieldDescription = "description"
	FieldSKU         = "sku"
	FieldBrand       = "brand"
	FieldPrice       = "price"
	FieldImages      = "images"
	FieldRating      = "rating"
	FieldBreadcrumbs = "breadcrumbs"
)

// RequiredFields must all be populated for a record to be usable.
var RequiredFields = []string{FieldTitle, FieldCanonical, FieldPrice, FieldImages}

// CriticalFields are the fields whose tolerance failure halts trust in a
// candidate recipe.
var CriticalFields = []string{FieldTitle, FieldPrice}

// Rating is an aggregate review score.
type Rating struct {
	Value       float64  `json:"rating_value" yaml:"rating_value"`
	ReviewCount *float64 `json:"review_count,omitempty" yaml:"review_count,omitempty"`
	BestRating  *float64 `json:"best_rating,omitempty" yaml:"best_rating,omitempty"`
	WorstRating *float64 `json:"worst_rating,omitempty" yaml:"worst_rating,omitempty"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// Breadcrumb is one entry of a category trail.
type Breadcrumb struct {
	Label    string `json:"label" yaml:"label"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Position int    `json:"position,omitempty" yaml:"position,omitempty"`
}

// Record is the target record extracted from a document. All fields are
// optional except title, canonical URL, price, and at least one image.
type Record struct {
	Title        string            `json:"title,omitempty" yaml:"title,omitempty"`
	CanonicalURL string            `json:"canonical_url,omitempty" yaml:"canonical_url,omitempty"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	SKU          string            `json:"sku,omitempty" yaml:"sku,omitempty"`
	Brand        string            `json:"brand,omitempty" yaml:"brand,omitempty"`
	Price        Money             `json:"price,omitempty" yaml:"price,omitempty"`
	Images       []string          `json:"images,omitempty" yaml:"images,omitempty"`
	Rating       *Rating           `json:"rating,omitempty" yaml:"rating,omitempty"`
	Breadcrumbs  []Breadcrumb      `json:"breadcrumbs,omitempty" yaml:"breadcrumbs,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// SchemaError lists every invariant a record violates. It is a hard
// validation failure, distinct from a tolerance mismatch.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Violations, "; "))
}

// Validate checks record invariants and returns a SchemaError listing all
// violations, or nil. There is no coercion; values are checked as-is.
func (r *Record) Validate() error {
	var v []string

	if strings.TrimSpace(r.Title) == "" {
		v = append(v, "title must be non-empty")
	}
	if r.CanonicalURL == "" {
		v = append(v, "canonical_url must be non-empty")
	} else if u, err := url.Parse(r.CanonicalURL); err != nil || u.Scheme == "" || u.Host == "" {
		v = append(v, fmt.Sprintf("canonical_url %q is not an absolute URL", r.CanonicalURL))
	}
	if r.Price.IsZero() {
		v = append(v, "price must be set")
	} else if r.Price.Amount < 0 {
		v = append(v, "price amount must be non-negative")
	} else if _, err := NewMoney(r.Price.Amount, r.Price.CurrencyCode, r.Price.Precision, r.Price.Raw); err != nil {
		v = append(v, fmt.Sprintf("price invalid: %v", err))
	}
	if len(r.Images) == 0 {
		v = append(v, "at least one image is required")
	}
	for i, img := range r.Images {
		if strings.TrimSpace(img) == "" {
			v = append(v, fmt.Sprintf("images[%d] is empty", i))
		}
	}
	if r.Rating != nil {
		if r.Rating.BestRating != nil && r.Rating.Value > *r.Rating.BestRating {
			v = append(v, fmt.Sprintf("rating value %v exceeds best rating %v", r.Rating.Value, *r.Rating.BestRating))
		}
		if r.Rating.WorstRating != nil && r.Rating.Value < *r.Rating.WorstRating {
			v = append(v, fmt.Sprintf("rating value %v below worst rating %v", r.Rating.Value, *r.Rating.WorstRating))
		}
	}
	for i, b := range r.Breadcrumbs {
		if strings.TrimSpace(b.Label) == "" {
			v = append(v, fmt.Sprintf("breadcrumbs[%d] label is empty", i))
		}
	}

	if len(v) > 0 {
		return &SchemaError{Violations: v}
	}
	return nil
}

// MissingRequired returns the ids of required fields that are absent.
func (r *Record) MissingRequired() []string {
	var missing []string
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, FieldTitle)
	}
	if r.CanonicalURL == "" {
		missing = append(missing, FieldCanonical)
	}
	if r.Price.IsZero() {
		missing = append(missing, FieldPrice)
	}
	if len(r.Images) == 0 {
		missing = append(missing, FieldImages)
	}
	return missing
}

// FieldValue returns the record's value for a field id, and whether the
// field is populated.
func (r *Record) FieldValue(fieldID string) (any, bool) {
	switch fieldID {
	case FieldTitle:
		return r.Title, r.Title != ""
	case FieldCanonical:
		return r.CanonicalURL, r.CanonicalURL != ""
	case FieldDescription:
		return r.Description, r.Description != ""
	case FieldSKU:
		return r.SKU, r.SKU != ""
	case FieldBrand:
		return r.Brand, r.Brand != ""
	case FieldPrice:
		return r.Price, !r.Price.IsZero()
	case FieldImages:
		return r.Images, len(r.Images) > 0
	case FieldRating:
		if r.Rating == nil {
			return nil, false
		}
		return *r.Rating, true
	case FieldBreadcrumbs:
		return r.Breadcrumbs, len(r.Breadcrumbs) > 0
	}
	return nil, false
}

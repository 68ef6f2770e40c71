package model

// FieldKind discriminates how a field's expected and actual values are
// compared.
type FieldKind string

const (
	KindText        FieldKind = "text"
	KindMoney       FieldKind = "money"
	KindURL         FieldKind = "url"
	KindImage       FieldKind = "image"
	KindRating      FieldKind = "rating"
	KindBreadcrumbs FieldKind = "breadcrumbs"
)

// TextTolerance bounds the normalized Levenshtein distance between two
// strings.
type TextTolerance struct {
	Trim             bool    `json:"trim" yaml:"trim"`
	CaseSensitive    bool    `json:"case_sensitive" yaml:"case_sensitive"`
	MaxDistanceRatio float64 `json:"max_distance_ratio" yaml:"max_distance_ratio"`
}

// MoneyTolerance bounds both the absolute minor-unit delta and the
// relative delta between two monetary values.
type MoneyTolerance struct {
	MaxAbsoluteMinorUnits int64   `json:"max_absolute_minor_units" yaml:"max_absolute_minor_units"`
	MaxRelativeDifference float64 `json:"max_relative_difference" yaml:"max_relative_difference"`
}

// URLTolerance configures URL normalization before byte comparison.
type URLTolerance struct {
	NormalizeTrailingSlash bool `json:"normalize_trailing_slash" yaml:"normalize_trailing_slash"`
	IgnoreQuery            bool `json:"ignore_query" yaml:"ignore_query"`
}

// ImageTolerance configures image URL normalization; applies to a scalar
// URL or a list.
type ImageTolerance struct {
	IgnoreQuery bool `json:"ignore_query" yaml:"ignore_query"`
}

// RatingTolerance bounds the rating value delta.
type RatingTolerance struct {
	MaxDelta float64 `json:"max_delta" yaml:"max_delta"`
}

// BreadcrumbsTolerance bounds how many expected crumbs may be missing.
type BreadcrumbsTolerance struct {
	AllowReordering bool `json:"allow_reordering" yaml:"allow_reordering"`
	MaxMissing      int  `json:"max_missing" yaml:"max_missing"`
}

// Tolerance is the tagged union of per-kind tolerance configs. Exactly one
// of the pointer fields matching Kind is set.
type Tolerance struct {
	Kind        FieldKind             `json:"kind" yaml:"kind"`
	Text        *TextTolerance        `json:"text,omitempty" yaml:"text,omitempty"`
	Money       *MoneyTolerance       `json:"money,omitempty" yaml:"money,omitempty"`
	URL         *URLTolerance         `json:"url,omitempty" yaml:"url,omitempty"`
	Image       *ImageTolerance       `json:"image,omitempty" yaml:"image,omitempty"`
	Rating      *RatingTolerance      `json:"rating,omitempty" yaml:"rating,omitempty"`
	Breadcrumbs *BreadcrumbsTolerance `json:"breadcrumbs,omitempty" yaml:"breadcrumbs,omitempty"`
}

// Clone returns a deep copy. The default templates are immutable; callers
// must clone before mutating.
func (t Tolerance) Clone() Tolerance {
	out := Tolerance{Kind: t.Kind}
	if t.Text != nil {
		c := *t.Text
		out.Text = &c
	}
	if t.Money != nil {
		c := *t.Money
		out.Money = &c
	}
	if t.URL != nil {
		c := *t.URL
		out.URL = &c
	}
	if t.Image != nil {
		c := *t.Image
		out.Image = &c
	}
	if t.Rating != nil {
		c := *t.Rating
		out.Rating = &c
	}
	if t.Breadcrumbs != nil {
		c := *t.Breadcrumbs
		out.Breadcrumbs = &c
	}
	return out
}

// defaultTolerances are the immutable per-field templates.
var defaultTolerances = map[string]Tolerance{
	FieldTitle: {Kind: KindText, Text: &TextTolerance{
		Trim: true, CaseSensitive: false, MaxDistanceRatio: 0.1,
	}},
	FieldDescription: {Kind: KindText, Text: &TextTolerance{
		Trim: true, CaseSensitive: false, MaxDistanceRatio: 0.25,
	}},
	FieldSKU: {Kind: KindText, Text: &TextTolerance{
		Trim: true, CaseSensitive: true, MaxDistanceRatio: 0,
	}},
	FieldBrand: {Kind: KindText, Text: &TextTolerance{
		Trim: true, CaseSensitive: false, MaxDistanceRatio: 0.1,
	}},
	FieldPrice: {Kind: KindMoney, Money: &MoneyTolerance{
		MaxAbsoluteMinorUnits: 0, MaxRelativeDifference: 0,
	}},
	FieldCanonical: {Kind: KindURL, URL: &URLTolerance{
		NormalizeTrailingSlash: true, IgnoreQuery: true,
	}},
	FieldImages: {Kind: KindImage, Image: &ImageTolerance{
		IgnoreQuery: true,
	}},
	FieldRating: {Kind: KindRating, Rating: &RatingTolerance{
		MaxDelta: 0.1,
	}},
	FieldBreadcrumbs: {Kind: KindBreadcrumbs, Breadcrumbs: &BreadcrumbsTolerance{
		AllowReordering: false, MaxMissing: 1,
	}},
}

// DefaultTolerance returns a deep copy of the tolerance template for a
// field id, and whether one exists.
func DefaultTolerance(fieldID string) (Tolerance, bool) {
	t, ok := defaultTolerances[fieldID]
	if !ok {
		return Tolerance{}, false
	}
	return t.Clone(), true
}

// KindForField returns the comparator kind for a known field id,
// defaulting to text.
func KindForField(fieldID string) FieldKind {
	if t, ok := defaultTolerances[fieldID]; ok {
		return t.Kind
	}
	return KindText
}

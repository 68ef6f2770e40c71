package model

import (
	"dario.cat/mergo"

	"github.com/rotisserie/eris"
)

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Images = append([]string(nil), r.Images...)
	out.Breadcrumbs = append([]Breadcrumb(nil), r.Breadcrumbs...)
	if r.Rating != nil {
		c := *r.Rating
		if r.Rating.ReviewCount != nil {
			rc := *r.Rating.ReviewCount
			c.ReviewCount = &rc
		}
		if r.Rating.BestRating != nil {
			b := *r.Rating.BestRating
			c.BestRating = &b
		}
		if r.Rating.WorstRating != nil {
			w := *r.Rating.WorstRating
			c.WorstRating = &w
		}
		out.Rating = &c
	}
	if r.Attributes != nil {
		out.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// MergeRecords merges src into a copy of dst with last-write-wins per
// leaf: any field populated in src overrides the same field in dst,
// unpopulated src fields leave dst untouched. Used between heuristic
// synthesis iterations to accumulate the partial record.
func MergeRecords(dst, src Record) (Record, error) {
	out := dst.Clone()
	patch := src.Clone()
	// WithOverride replaces slices wholesale; empty src fields never clear dst.
	if err := mergo.Merge(&out, patch, mergo.WithOverride); err != nil {
		return Record{}, eris.Wrap(err, "model: merge records")
	}
	return out, nil
}

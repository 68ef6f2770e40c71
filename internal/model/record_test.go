package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() Record {
	return Record{
		Title:        "Precision Pour-Over Kettle",
		CanonicalURL: "https://shop.example.com/kettle",
		Price:        Money{Amount: 149.00, CurrencyCode: "USD", Precision: 2, Raw: "$149.00"},
		Images:       []string{"https://cdn.example.com/kettle.jpg"},
	}
}

func TestRecordValidate_OK(t *testing.T) {
	r := validRecord()
	assert.NoError(t, r.Validate())
}

func TestRecordValidate_CollectsAllViolations(t *testing.T) {
	r := Record{}
	err := r.Validate()
	require.Error(t, err)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Violations, 4) // title, canonical, price, images
}

func TestRecordValidate_RatingBounds(t *testing.T) {
	best := 5.0
	r := validRecord()
	r.Rating = &Rating{Value: 6.2, BestRating: &best}

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds best rating")
}

func TestRecordValidate_RelativeCanonical(t *testing.T) {
	r := validRecord()
	r.CanonicalURL = "/kettle"
	assert.Error(t, r.Validate())
}

func TestMissingRequired(t *testing.T) {
	r := validRecord()
	r.Price = Money{}
	r.Images = nil
	assert.Equal(t, []string{FieldPrice, FieldImages}, r.MissingRequired())

	full := validRecord()
	assert.Empty(t, full.MissingRequired())
}

func TestFieldValue(t *testing.T) {
	r := validRecord()

	v, ok := r.FieldValue(FieldTitle)
	assert.True(t, ok)
	assert.Equal(t, "Precision Pour-Over Kettle", v)

	_, ok = r.FieldValue(FieldRating)
	assert.False(t, ok)

	_, ok = r.FieldValue("no_such_field")
	assert.False(t, ok)
}

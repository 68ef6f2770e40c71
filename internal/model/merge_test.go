package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeRecords_LastWriteWins(t *testing.T) {
	dst := Record{
		Title:  "Old Title",
		Brand:  "Acme",
		Images: []string{"https://cdn.example.com/a.jpg"},
	}
	src := Record{
		Title:  "New Title",
		Images: []string{"https://cdn.example.com/b.jpg", "https://cdn.example.com/c.jpg"},
	}

	out, err := MergeRecords(dst, src)
	require.NoError(t, err)

	assert.Equal(t, "New Title", out.Title)
	assert.Equal(t, "Acme", out.Brand, "unpopulated src field must not clear dst")
	assert.Equal(t, src.Images, out.Images, "populated src slice replaces dst wholesale")
}

func TestMergeRecords_EmptySrcKeepsDst(t *testing.T) {
	dst := Record{
		Title:       "Kettle",
		Price:       Money{Amount: 149, CurrencyCode: "USD", Precision: 2},
		Breadcrumbs: []Breadcrumb{{Label: "Home"}, {Label: "Kitchen"}},
	}

	out, err := MergeRecords(dst, Record{})
	require.NoError(t, err)
	assert.Equal(t, dst.Title, out.Title)
	assert.Equal(t, dst.Price, out.Price)
	assert.Len(t, out.Breadcrumbs, 2)
}

func TestMergeRecords_DoesNotMutateInputs(t *testing.T) {
	dst := Record{Title: "A", Images: []string{"x"}}
	src := Record{Title: "B"}

	_, err := MergeRecords(dst, src)
	require.NoError(t, err)
	assert.Equal(t, "A", dst.Title)
}

func TestRecordClone_Independent(t *testing.T) {
	count := 12.0
	r := validRecord()
	r.Rating = &Rating{Value: 4.5, ReviewCount: &count}
	r.Attributes = map[string]string{"color": "black"}

	c := r.Clone()
	c.Images[0] = "changed"
	c.Rating.Value = 1.0
	c.Attributes["color"] = "red"

	assert.Equal(t, "https://cdn.example.com/kettle.jpg", r.Images[0])
	assert.Equal(t, 4.5, r.Rating.Value)
	assert.Equal(t, "black", r.Attributes["color"])
}

package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rothnic/mercator/internal/model"
	"github.com/rothnic/mercator/internal/tools"
)

const kettleDoc = `<html><head>
<link rel="canonical" href="https://shop.example.com/products/kettle">
<meta name="description" content="A precision gooseneck kettle for pour-over brewing.">
</head><body>
<nav aria-label="breadcrumb"><a href="/">Home</a><a href="/kitchen">Kitchen</a><a href="/kitchen/kettles">Kettles</a></nav>
<h1 data-test="product-title">Precision Pour-Over Kettle</h1>
<span class="brand-name" data-test="brand">Acme Kitchen</span>
<div class="price-box"><span class="price">$149.00</span></div>
<span data-test="sku">SKU: KET-1490</span>
<div itemprop="aggregateRating"><span itemprop="ratingValue">4.7</span><span itemprop="reviewCount">128</span></div>
<div class="gallery"><img class="product-image" src="/img/kettle.jpg"><img class="product-image" src="/img/kettle-side.jpg"></div>
</body></html>`

func expectedKettle() model.Record {
	return model.Record{
		Title:        "Precision Pour-Over Kettle",
		CanonicalURL: "https://shop.example.com/products/kettle",
		Price:        model.Money{Amount: 149.00, CurrencyCode: "USD", Precision: 2, Raw: "$149.00"},
		Images: []string{
			"https://shop.example.com/img/kettle.jpg",
			"https://shop.example.com/img/kettle-side.jpg",
		},
	}
}

func newEngine(t *testing.T, doc string, transcript []string) *Engine {
	t.Helper()
	ts, err := tools.NewDocumentToolset(doc, transcript)
	require.NoError(t, err)
	return NewEngine(ts, "https://shop.example.com")
}

func TestSynthesize_KettleDocument(t *testing.T) {
	e := newEngine(t, kettleDoc, nil)

	recipe, logs, err := e.Synthesize("shop.example.com product", "product", expectedKettle(), nil)
	require.NoError(t, err)

	for _, id := range model.RequiredFields {
		assert.NotNil(t, recipe.Field(id), "required field %s must have a recipe", id)
	}

	title := recipe.Field(model.FieldTitle)
	require.NotNil(t, title)
	assert.Contains(t, title.SelectorSteps[0].Value, "data-test")
	assert.Equal(t, "Precision Pour-Over Kettle", title.Sample)

	price := recipe.Field(model.FieldPrice)
	require.NotNil(t, price)
	assert.Equal(t, "$149.00", price.Sample)

	images := recipe.Field(model.FieldImages)
	require.NotNil(t, images)
	assert.True(t, images.SelectorSteps[0].All)
	assert.Equal(t, "src", images.SelectorSteps[0].Attribute)

	rating := recipe.Field(model.FieldRating)
	require.NotNil(t, rating)

	crumbs := recipe.Field(model.FieldBreadcrumbs)
	require.NotNil(t, crumbs)

	require.NotEmpty(t, logs)
	assert.Contains(t, logs[0].Note, "hero fields")
	assert.Contains(t, logs[0].Note, model.FieldTitle)
	assert.Contains(t, logs[0].Note, model.FieldPrice)
	assert.Equal(t, "Precision Pour-Over Kettle", logs[0].Partial.Title)
	assert.InDelta(t, 149.00, logs[0].Partial.Price.Amount, 0.001)

	last := logs[len(logs)-1]
	assert.Len(t, last.Partial.Images, 2)
	require.NotNil(t, last.Partial.Rating)
	assert.InDelta(t, 4.7, last.Partial.Rating.Value, 0.001)
	assert.Len(t, last.Partial.Breadcrumbs, 3)
}

func TestSynthesize_Deterministic(t *testing.T) {
	transcript := []string{"Precision Pour-Over Kettle", "$149.00"}

	e1 := newEngine(t, kettleDoc, transcript)
	r1, logs1, err := e1.Synthesize("n", "product", expectedKettle(), transcript)
	require.NoError(t, err)

	e2 := newEngine(t, kettleDoc, transcript)
	r2, logs2, err := e2.Synthesize("n", "product", expectedKettle(), transcript)
	require.NoError(t, err)

	require.Equal(t, len(r1.Target.Fields), len(r2.Target.Fields))
	for i := range r1.Target.Fields {
		assert.Equal(t, r1.Target.Fields[i].SelectorSteps, r2.Target.Fields[i].SelectorSteps)
	}
	require.Equal(t, len(logs1), len(logs2))
	for i := range logs1 {
		assert.Equal(t, logs1[i].Note, logs2[i].Note)
		assert.Equal(t, logs1[i].SelectorsChanged, logs2[i].SelectorsChanged)
	}
}

func TestSynthesize_MissingRequiredFieldFails(t *testing.T) {
	noPrice := `<html><head>
<link rel="canonical" href="https://shop.example.com/products/kettle">
</head><body>
<h1 data-test="product-title">Precision Pour-Over Kettle</h1>
<img class="product-image" src="/img/kettle.jpg">
</body></html>`

	e := newEngine(t, noPrice, nil)
	_, _, err := e.Synthesize("n", "product", expectedKettle(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDerivationFailed)
	assert.Contains(t, err.Error(), model.FieldPrice)
}

func TestSynthesize_ScanFallback(t *testing.T) {
	// No keyword-bearing attributes on the price element; only the
	// full-tree scan can find it via the currency filter.
	doc := `<html><head>
<link rel="canonical" href="https://shop.example.com/products/kettle">
</head><body>
<div data-test="pdp">
<h1 data-test="product-title">Precision Pour-Over Kettle</h1>
<div><b>$149.00</b></div>
</div>
<img class="product-image" src="/img/kettle.jpg">
</body></html>`

	e := newEngine(t, doc, nil)
	recipe, _, err := e.Synthesize("n", "product", expectedKettle(), nil)
	require.NoError(t, err)

	price := recipe.Field(model.FieldPrice)
	require.NotNil(t, price)
	assert.Contains(t, price.SelectorSteps[0].Note, "full-tree scan")
	assert.Equal(t, "$149.00", price.Sample)
}

func TestFromRuleSet(t *testing.T) {
	fields := []model.FieldRecipe{
		{
			FieldID:       model.FieldTitle,
			SelectorSteps: []model.SelectorStep{{Strategy: model.StrategyCSS, Value: "h1"}},
		},
	}

	recipe, err := FromRuleSet("example", "product", expectedKettle(), fields)
	require.NoError(t, err)
	assert.Equal(t, model.StateDraft, recipe.Lifecycle.State)
	require.Len(t, recipe.Target.Fields, 1)
	assert.Equal(t, model.KindText, recipe.Target.Fields[0].Tolerance.Kind, "default tolerance filled in")
	require.Len(t, recipe.Provenance, 1)
	assert.Equal(t, "rule-set", recipe.Provenance[0].Strategy)

	_, err = FromRuleSet("example", "product", expectedKettle(), nil)
	assert.Error(t, err)

	_, err = FromRuleSet("example", "product", expectedKettle(), []model.FieldRecipe{{FieldID: "x"}})
	assert.Error(t, err)
}

func TestSeedTokens(t *testing.T) {
	tokens := seedTokens([]string{"Precision Pour-Over Kettle!", "a an the", "Kettle"})
	assert.Equal(t, []string{"precision", "pour-over", "kettle", "the"}, tokens)
}

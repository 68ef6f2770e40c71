package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rothnic/mercator/internal/model"
)

const kettleDoc = `<html><head>
<link rel="canonical" href="https://shop.example.com/products/kettle">
</head><body>
<nav aria-label="breadcrumb"><a href="/">Home</a><a href="/kitchen">Kitchen</a></nav>
<h1 data-test="product-title">Precision  Pour-Over   Kettle</h1>
<span class="price">$149.00</span>
<span data-test="sku">SKU: KET-1490</span>
<div itemprop="aggregateRating"><span itemprop="ratingValue">4.7</span></div>
<img class="product-image" src="/img/kettle.jpg">
<img class="product-image" src="/img/kettle.jpg">
<img class="product-image" src="/img/kettle-side.jpg">
</body></html>`

func kettleRecipe() *model.Recipe {
	field := func(id, sel, attr string, all bool, transforms ...model.Transform) model.FieldRecipe {
		tol, _ := model.DefaultTolerance(id)
		return model.FieldRecipe{
			FieldID:       id,
			SelectorSteps: []model.SelectorStep{{Strategy: model.StrategyCSS, Value: sel, Attribute: attr, All: all}},
			Transforms:    transforms,
			Tolerance:     tol,
		}
	}
	return &model.Recipe{
		Name:    "kettle",
		Version: 1,
		Target: model.RecipeTarget{
			DocumentType: "product",
			Fields: []model.FieldRecipe{
				field(model.FieldTitle, `h1[data-test="product-title"]`, "", false,
					model.Transform{Name: TransformTextCollapse}),
				field(model.FieldPrice, "span.price", "", false,
					model.Transform{Name: TransformTextCollapse},
					model.Transform{Name: TransformMoneyParse}),
				field(model.FieldCanonical, `link[rel="canonical"]`, "href", false),
				field(model.FieldSKU, `[data-test="sku"]`, "", false,
					model.Transform{Name: TransformTextCollapse}),
				field(model.FieldImages, "img.product-image", "src", true,
					model.Transform{Name: TransformURLResolve, Config: map[string]string{"base": "https://shop.example.com"}}),
				field(model.FieldRating, `[itemprop="aggregateRating"]`, "", false),
				field(model.FieldBreadcrumbs, `nav[aria-label="breadcrumb"]`, "", false),
			},
		},
	}
}

func kettleExpected() model.Record {
	return model.Record{
		Title:        "Precision Pour-Over Kettle",
		CanonicalURL: "https://shop.example.com/products/kettle",
		SKU:          "KET-1490",
		Price:        model.Money{Amount: 149.00, CurrencyCode: "USD", Precision: 2, Raw: "$149.00"},
		Images: []string{
			"https://shop.example.com/img/kettle.jpg",
			"https://shop.example.com/img/kettle-side.jpg",
		},
		Rating:      &model.Rating{Value: 4.7},
		Breadcrumbs: []model.Breadcrumb{{Label: "Home"}, {Label: "Kitchen"}},
	}
}

func TestValidate_Pass(t *testing.T) {
	res, err := Validate(kettleDoc, kettleRecipe(), kettleExpected())
	require.NoError(t, err)

	assert.Equal(t, model.ValidationPass, res.Status)
	assert.Greater(t, res.Confidence, 0.9)
	assert.Empty(t, res.StopReason)

	require.NotNil(t, res.Record)
	assert.Equal(t, "Precision Pour-Over Kettle", res.Record.Title, "whitespace collapsed")
	assert.Equal(t, "KET-1490", res.Record.SKU, "sku prefix stripped")
	assert.Equal(t, "$149.00", res.Record.Price.Raw)
	assert.Len(t, res.Record.Images, 2, "duplicate image urls deduped")
	require.NotNil(t, res.Record.Rating)
	assert.InDelta(t, 4.7, res.Record.Rating.Value, 0.001)
	require.Len(t, res.Record.Breadcrumbs, 2)
	assert.Equal(t, 1, res.Record.Breadcrumbs[0].Position)
}

func TestValidate_MissingPriceShortCircuits(t *testing.T) {
	noPrice := strings.Replace(kettleDoc, `<span class="price">$149.00</span>`, "", 1)

	res, err := Validate(noPrice, kettleRecipe(), kettleExpected())
	require.NoError(t, err)

	assert.Equal(t, model.ValidationFail, res.Status)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Contains(t, res.StopReason, model.FieldPrice)
	assert.Empty(t, res.Fields, "no per-field scoring after short-circuit")
}

func TestValidate_CriticalFieldStopReason(t *testing.T) {
	wrongTitle := strings.Replace(kettleDoc,
		"Precision  Pour-Over   Kettle", "Completely Different Product", 1)

	res, err := Validate(wrongTitle, kettleRecipe(), kettleExpected())
	require.NoError(t, err)

	assert.Equal(t, model.ValidationFail, res.Status)
	assert.Contains(t, res.StopReason, "critical field failed: title")
}

func TestValidate_SchemaFailureDistinct(t *testing.T) {
	// Canonical resolves to a relative URL: present (so no short-circuit)
	// but schema-invalid.
	relCanonical := strings.Replace(kettleDoc,
		`href="https://shop.example.com/products/kettle"`, `href="/products/kettle"`, 1)

	res, err := Validate(relCanonical, kettleRecipe(), kettleExpected())
	require.NoError(t, err)

	assert.Equal(t, model.ValidationFail, res.Status)
	assert.Equal(t, StopReasonSchema, res.StopReason)
}

func TestValidate_XPathFailsLoudly(t *testing.T) {
	recipe := kettleRecipe()
	recipe.Target.Fields[0].SelectorSteps[0].Strategy = model.StrategyXPath

	_, err := Validate(kettleDoc, recipe, kettleExpected())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xpath")
}

func TestValidate_UnknownTransformFailsLoudly(t *testing.T) {
	recipe := kettleRecipe()
	recipe.Target.Fields[0].Transforms = []model.Transform{{Name: "text.reverse"}}

	_, err := Validate(kettleDoc, recipe, kettleExpected())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transform")
}

func TestExecuteRecipe_Idempotent(t *testing.T) {
	recipe := kettleRecipe()

	first, err := ExecuteRecipe(kettleDoc, recipe)
	require.NoError(t, err)
	second, err := ExecuteRecipe(kettleDoc, recipe)
	require.NoError(t, err)

	assert.Equal(t, first.Record, second.Record)
	assert.Equal(t, first.FieldValues, second.FieldValues)
	assert.Equal(t, "Precision Pour-Over Kettle", first.Record.Title)
	assert.Len(t, first.FieldValues, 7)
}

func TestValidate_RegexValidatorDiscardsValue(t *testing.T) {
	recipe := kettleRecipe()
	sku := &recipe.Target.Fields[3]
	require.Equal(t, model.FieldSKU, sku.FieldID)

	sku.Validators = []model.Validator{{Kind: "regex", Pattern: `^[A-Z]{3}-\d{4}$`}}
	res, err := Validate(kettleDoc, recipe, kettleExpected())
	require.NoError(t, err)
	assert.Equal(t, model.ValidationPass, res.Status, "KET-1490 matches the pattern")

	// A rejecting pattern discards the value, so the field scores as
	// absent instead of carrying rejected text into the record.
	sku.Validators = []model.Validator{{Kind: "regex", Pattern: `^\d+$`}}
	res, err = Validate(kettleDoc, recipe, kettleExpected())
	require.NoError(t, err)
	assert.Equal(t, model.ValidationFail, res.Status)
	assert.Equal(t, model.ValidationFail, res.Fields[model.FieldSKU].Status)
	assert.Empty(t, res.Record.SKU)
}

func TestValidate_MinLengthValidator(t *testing.T) {
	recipe := kettleRecipe()
	recipe.Target.Fields[0].Validators = []model.Validator{{Kind: "min_length", Min: 100}}

	res, err := Validate(kettleDoc, recipe, kettleExpected())
	require.NoError(t, err)
	assert.Equal(t, model.ValidationFail, res.Status)
	assert.Contains(t, res.StopReason, model.FieldTitle)

	recipe.Target.Fields[0].Validators = []model.Validator{{Kind: "min_length", Min: 10}}
	res, err = Validate(kettleDoc, recipe, kettleExpected())
	require.NoError(t, err)
	assert.Equal(t, model.ValidationPass, res.Status)
}

func TestValidate_BadValidatorPatternFailsLoudly(t *testing.T) {
	recipe := kettleRecipe()
	recipe.Target.Fields[0].Validators = []model.Validator{{Kind: "regex", Pattern: `([`}}

	_, err := Validate(kettleDoc, recipe, kettleExpected())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validator pattern")
}

func TestValidate_OrdinalSelection(t *testing.T) {
	doc := `<html><body>
<span class="v">first</span><span class="v">second</span>
</body></html>`
	tol, _ := model.DefaultTolerance(model.FieldTitle)
	recipe := &model.Recipe{
		Name: "ordinal",
		Target: model.RecipeTarget{Fields: []model.FieldRecipe{{
			FieldID:       model.FieldTitle,
			SelectorSteps: []model.SelectorStep{{Strategy: model.StrategyCSS, Value: "span.v", Ordinal: 1}},
			Tolerance:     tol,
		}}},
	}

	ex, err := ExecuteRecipe(doc, recipe)
	require.NoError(t, err)
	assert.Equal(t, "second", ex.Record.Title)
}

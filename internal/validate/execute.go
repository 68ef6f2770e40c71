package validate

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/rothnic/mercator/internal/model"
)

// Execution is the outcome of a deterministic recipe replay.
type Execution struct {
	Record      model.Record
	FieldValues map[string]any
}

// ExecuteRecipe replays a recipe's selectors against a document with no
// rule lookup, tool provider, or budget involvement. Calling it twice on
// the same inputs returns identical output.
func ExecuteRecipe(htmlSrc string, recipe *model.Recipe) (*Execution, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return nil, eris.Wrap(err, "execute: parse document")
	}

	values := make(map[string]any, len(recipe.Target.Fields))
	for i := range recipe.Target.Fields {
		fr := &recipe.Target.Fields[i]
		v, err := extractField(doc, fr)
		if err != nil {
			return nil, err
		}
		if v != nil {
			values[fr.FieldID] = v
		}
	}

	return &Execution{
		Record:      assembleRecord(values),
		FieldValues: values,
	}, nil
}

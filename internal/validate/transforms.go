package validate

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/rothnic/mercator/internal/model"
)

// Transform names understood by the pipeline.
const (
	TransformTextCollapse = "text.collapse"
	TransformMoneyParse   = "money.parse"
	TransformURLResolve   = "url.resolve"
)

// applyTransforms runs a field's transform pipeline in order, threading
// list values element-wise. Transforms are pure and deterministic; an
// unknown transform name is a loud error, never a silent skip.
func applyTransforms(value any, transforms []model.Transform) (any, error) {
	var err error
	for _, tr := range transforms {
		switch vs := value.(type) {
		case []string:
			out := make([]any, len(vs))
			for i, v := range vs {
				out[i], err = applyOne(v, tr)
				if err != nil {
					return nil, err
				}
			}
			value = flattenStrings(out)
		case []any:
			out := make([]any, len(vs))
			for i, v := range vs {
				out[i], err = applyOne(v, tr)
				if err != nil {
					return nil, err
				}
			}
			value = flattenStrings(out)
		default:
			value, err = applyOne(value, tr)
			if err != nil {
				return nil, err
			}
		}
	}
	return value, nil
}

func applyOne(value any, tr model.Transform) (any, error) {
	switch tr.Name {
	case TransformTextCollapse:
		s, ok := value.(string)
		if !ok {
			return nil, eris.Errorf("transform %s: expected string, got %T", tr.Name, value)
		}
		return strings.Join(strings.Fields(s), " "), nil

	case TransformMoneyParse:
		s, ok := value.(string)
		if !ok {
			return nil, eris.Errorf("transform %s: expected string, got %T", tr.Name, value)
		}
		m, err := model.ParseMoney(s)
		if err != nil {
			return nil, eris.Wrapf(err, "transform %s", tr.Name)
		}
		if code := tr.Config["currency"]; code != "" {
			m, err = model.NewMoney(m.Amount, code, m.Precision, m.Raw)
			if err != nil {
				return nil, eris.Wrapf(err, "transform %s", tr.Name)
			}
		}
		return m, nil

	case TransformURLResolve:
		s, ok := value.(string)
		if !ok {
			return nil, eris.Errorf("transform %s: expected string, got %T", tr.Name, value)
		}
		return resolveURL(s, tr.Config)

	default:
		return nil, eris.Errorf("unknown transform %q", tr.Name)
	}
}

// resolveURL resolves a possibly-relative URL against config["base"] and
// optionally upgrades the scheme when config["https"] is "force".
func resolveURL(raw string, config map[string]string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "transform %s: parse %q", TransformURLResolve, raw)
	}

	if base := config["base"]; base != "" && !u.IsAbs() {
		bu, err := url.Parse(base)
		if err != nil {
			return "", eris.Wrapf(err, "transform %s: parse base %q", TransformURLResolve, base)
		}
		u = bu.ResolveReference(u)
	}

	if config["https"] == "force" && u.Scheme == "http" {
		u.Scheme = "https"
	}
	return u.String(), nil
}

// flattenStrings converts an []any that is entirely strings back to
// []string; money lists and mixed results stay []any.
func flattenStrings(in []any) any {
	out := make([]string, len(in))
	for i, v := range in {
		s, ok := v.(string)
		if !ok {
			return in
		}
		out[i] = s
	}
	return out
}

// Package rules loads pre-authored rule-set configurations and resolves
// them by document domain and path. A rule-set hit is the deterministic,
// reviewed synthesis path; a miss triggers heuristic discovery.
package rules

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rothnic/mercator/internal/model"
)

// RuleSet is one pre-authored configuration for a (domain, path pattern)
// family of documents.
type RuleSet struct {
	Name         string              `yaml:"name"`
	Domain       string              `yaml:"domain"`
	PathPatterns []string            `yaml:"path_patterns"`
	DocumentType string              `yaml:"document_type"`
	Expected     model.Record        `yaml:"expected"`
	Fields       []model.FieldRecipe `yaml:"fields"`
	Evidence     []string            `yaml:"evidence,omitempty"`
	Transcript   []string            `yaml:"transcript,omitempty"`
}

// Lookup resolves rule sets by domain and path.
type Lookup struct {
	sets []RuleSet
}

// NewLookup builds a Lookup over the given rule sets.
func NewLookup(sets []RuleSet) *Lookup {
	return &Lookup{sets: sets}
}

// LoadDir reads every .yaml/.yml file under dir into a Lookup. Files are
// loaded in lexical order so resolution is deterministic.
func LoadDir(dir string) (*Lookup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read dir %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var sets []RuleSet
	for _, name := range names {
		rs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		sets = append(sets, *rs)
	}

	zap.L().Debug("rules: loaded rule sets", zap.Int("count", len(sets)), zap.String("dir", dir))
	return NewLookup(sets), nil
}

// LoadFile reads a single rule-set file.
func LoadFile(file string) (*RuleSet, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", file)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, eris.Wrapf(err, "rules: parse %s", file)
	}
	if err := validate(&rs); err != nil {
		return nil, eris.Wrapf(err, "rules: invalid rule set %s", file)
	}
	return &rs, nil
}

func validate(rs *RuleSet) error {
	if rs.Domain == "" {
		return eris.New("domain is required")
	}
	for _, f := range rs.Fields {
		if f.FieldID == "" {
			return eris.New("field with empty field_id")
		}
		if len(f.SelectorSteps) == 0 {
			return eris.Errorf("field %s has no selector steps", f.FieldID)
		}
	}
	return nil
}

// Resolve returns the first rule set matching the document's domain and
// path, or nil when no configuration exists (the heuristic-mode trigger).
func (l *Lookup) Resolve(domain, docPath string) *RuleSet {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for i := range l.sets {
		rs := &l.sets[i]
		if !domainMatches(rs.Domain, domain) {
			continue
		}
		if len(rs.PathPatterns) == 0 {
			return rs
		}
		for _, pattern := range rs.PathPatterns {
			if matchSegmented(strings.ToLower(pattern), strings.ToLower(docPath)) {
				return rs
			}
		}
	}
	return nil
}

// domainMatches treats a leading "*." as a subdomain wildcard.
func domainMatches(pattern, domain string) bool {
	pattern = strings.ToLower(pattern)
	if pattern == domain {
		return true
	}
	if after, ok := strings.CutPrefix(pattern, "*."); ok {
		return domain == after || strings.HasSuffix(domain, "."+after)
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/products/*"
// matches both "/products/x" and deeper paths like "/products/a/b".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	return false
}

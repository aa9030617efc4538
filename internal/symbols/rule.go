// Package symbols resolves heterogeneous raw instrument identifiers into
// canonical `<MARKET>:<ASSET>:<CORE>` symbols through a priority-ordered
// rule set with an LRU cache in front.
package symbols

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

// Transform turns a regex match into the CORE part of a canonical symbol.
type Transform interface {
	Apply(match string, groups map[string]string) (string, error)
}

var fieldRef = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

func expandTemplate(tmpl string, fields map[string]string) (string, error) {
	var missing []string
	out := fieldRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
		name := ref[1 : len(ref)-1]
		v, ok := fields[name]
		if !ok {
			missing = append(missing, name)
			return ref
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q references unknown fields %v", tmpl, missing)
	}
	return out, nil
}

// TemplateTransform formats named groups plus the literal {match}.
type TemplateTransform struct {
	Template  string
	Uppercase bool
}

func (t TemplateTransform) Apply(match string, groups map[string]string) (string, error) {
	fields := make(map[string]string, len(groups)+1)
	for k, v := range groups {
		fields[k] = v
	}
	fields["match"] = match
	out, err := expandTemplate(t.Template, fields)
	if err != nil {
		return "", err
	}
	if t.Uppercase {
		out = strings.ToUpper(out)
	}
	return out, nil
}

// MapTransform maps one named group through a lookup table and exposes the
// result as {mapped} to the template. A missing mapping falls back to
// Default, which may embed {value}.
type MapTransform struct {
	Group           string
	Mapping         map[string]string
	CaseInsensitive bool // default true in the config loader
	Default         string
	Template        string
	Uppercase       bool
}

func (t MapTransform) Apply(match string, groups map[string]string) (string, error) {
	raw, ok := groups[t.Group]
	if !ok {
		return "", fmt.Errorf("map transform references unknown group %q", t.Group)
	}
	mapped, found := t.lookup(raw)
	if !found {
		if t.Default == "" {
			return "", fmt.Errorf("no mapping for group %s value %q", t.Group, raw)
		}
		var err error
		mapped, err = expandTemplate(t.Default, map[string]string{"value": raw})
		if err != nil {
			return "", err
		}
	}
	fields := make(map[string]string, len(groups)+2)
	for k, v := range groups {
		fields[k] = v
	}
	fields["match"] = match
	fields["mapped"] = mapped
	out, err := expandTemplate(t.Template, fields)
	if err != nil {
		return "", err
	}
	if t.Uppercase {
		out = strings.ToUpper(out)
	}
	return out, nil
}

func (t MapTransform) lookup(raw string) (string, bool) {
	if v, ok := t.Mapping[raw]; ok {
		return v, true
	}
	if t.CaseInsensitive {
		for k, v := range t.Mapping {
			if strings.EqualFold(k, raw) {
				return v, true
			}
		}
	}
	return "", false
}

// Rule is one compiled normalization rule. Lower priority wins; ties break
// on id. Empty scope sets apply to every market/asset. ProviderHint tags
// resolutions with the provider whose notation the pattern recognizes.
type Rule struct {
	ID           string
	Priority     int
	Pattern      *regexp.Regexp
	Transform    Transform
	MarketScope  map[models.MarketType]struct{}
	AssetScope   map[models.AssetType]struct{}
	Prefix       string
	Suffix       string
	ProviderHint string
}

func (r Rule) applicable(market models.MarketType, asset models.AssetType) bool {
	if len(r.MarketScope) > 0 {
		if _, ok := r.MarketScope[market]; !ok {
			return false
		}
	}
	if len(r.AssetScope) > 0 {
		if _, ok := r.AssetScope[asset]; !ok {
			return false
		}
	}
	return true
}

// match attempts a full-string match and returns the named groups.
func (r Rule) match(raw string) (map[string]string, bool) {
	m := r.Pattern.FindStringSubmatch(raw)
	if m == nil || m[0] != raw {
		return nil, false
	}
	groups := make(map[string]string)
	for i, name := range r.Pattern.SubexpNames() {
		if i > 0 && name != "" {
			groups[name] = m[i]
		}
	}
	return groups, true
}

// compilePattern anchors the pattern so partial matches never fire, and
// applies the configured flag names.
func compilePattern(pattern string, flags []string) (*regexp.Regexp, error) {
	var prefix string
	for _, f := range flags {
		switch strings.ToUpper(f) {
		case "IGNORECASE", "I":
			prefix += "(?i)"
		case "MULTILINE", "M":
			prefix += "(?m)"
		case "DOTALL", "S":
			prefix += "(?s)"
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}
	return regexp.Compile(prefix + `\A(?:` + pattern + `)\z`)
}

// validateRules checks ids are unique and non-empty, patterns compiled and
// transforms present. It returns the rules sorted by (priority, id).
func validateRules(rules []Rule) ([]Rule, error) {
	if len(rules) == 0 {
		return nil, errs.Validation("symbols", "rule set is empty", nil)
	}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return nil, errs.Validation("symbols", "rule with empty id", nil)
		}
		if seen[r.ID] {
			return nil, errs.Validation("symbols", "duplicate rule id",
				map[string]any{"rule_id": r.ID})
		}
		seen[r.ID] = true
		if r.Pattern == nil {
			return nil, errs.Validation("symbols", "rule without pattern",
				map[string]any{"rule_id": r.ID})
		}
		if r.Transform == nil {
			return nil, errs.Validation("symbols", "rule without transform",
				map[string]any{"rule_id": r.ID})
		}
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted, nil
}

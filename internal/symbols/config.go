package symbols

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

// RuleFile is the top-level declarative rule configuration.
type RuleFile struct {
	Rules []RuleEntry `yaml:"rules" json:"rules"`
}

// RuleEntry is one declarative rule.
type RuleEntry struct {
	ID           string         `yaml:"id" json:"id"`
	Priority     int            `yaml:"priority" json:"priority"`
	Pattern      string         `yaml:"pattern" json:"pattern"`
	Flags        []string       `yaml:"flags,omitempty" json:"flags,omitempty"`
	MarketScope  []string       `yaml:"market_scope,omitempty" json:"market_scope,omitempty"`
	AssetScope   []string       `yaml:"asset_scope,omitempty" json:"asset_scope,omitempty"`
	Prefix       string         `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Suffix       string         `yaml:"suffix,omitempty" json:"suffix,omitempty"`
	ProviderHint string         `yaml:"provider_hint,omitempty" json:"provider_hint,omitempty"`
	Transform    TransformEntry `yaml:"transform" json:"transform"`
}

// TransformEntry is the declarative transform; Type selects the form.
type TransformEntry struct {
	Type            string            `yaml:"type" json:"type"` // template | map_template
	Template        string            `yaml:"template" json:"template"`
	Uppercase       bool              `yaml:"uppercase,omitempty" json:"uppercase,omitempty"`
	Group           string            `yaml:"group,omitempty" json:"group,omitempty"`
	Mapping         map[string]string `yaml:"mapping,omitempty" json:"mapping,omitempty"`
	CaseInsensitive *bool             `yaml:"case_insensitive,omitempty" json:"case_insensitive,omitempty"`
	Default         string            `yaml:"default,omitempty" json:"default,omitempty"`
}

// LoadRulesFile reads a rule file; the suffix picks the parser
// (.yaml/.yml or .json).
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Validation("symbols", fmt.Sprintf("read rules file: %v", err),
			map[string]any{"path": path})
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseRulesYAML(data)
	case ".json":
		return ParseRulesJSON(data)
	default:
		return nil, errs.Validation("symbols", "unsupported rules file suffix",
			map[string]any{"path": path})
	}
}

// ParseRulesYAML parses a YAML rule configuration.
func ParseRulesYAML(data []byte) ([]Rule, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errs.Validation("symbols", fmt.Sprintf("parse rules yaml: %v", err), nil)
	}
	return CompileRules(file)
}

// ParseRulesJSON parses a JSON rule configuration.
func ParseRulesJSON(data []byte) ([]Rule, error) {
	var file RuleFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errs.Validation("symbols", fmt.Sprintf("parse rules json: %v", err), nil)
	}
	return CompileRules(file)
}

// CompileRules validates and compiles declarative entries.
func CompileRules(file RuleFile) ([]Rule, error) {
	if len(file.Rules) == 0 {
		return nil, errs.Validation("symbols", "rules file has no rules", nil)
	}
	out := make([]Rule, 0, len(file.Rules))
	for _, entry := range file.Rules {
		rule, err := compileEntry(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func compileEntry(entry RuleEntry) (Rule, error) {
	fail := func(msg string) (Rule, error) {
		return Rule{}, errs.Validation("symbols", msg, map[string]any{"rule_id": entry.ID})
	}
	if entry.ID == "" {
		return fail("rule entry missing id")
	}
	re, err := compilePattern(entry.Pattern, entry.Flags)
	if err != nil {
		return fail(fmt.Sprintf("rule pattern invalid: %v", err))
	}
	transform, err := compileTransform(entry.Transform)
	if err != nil {
		return fail(fmt.Sprintf("rule transform invalid: %v", err))
	}
	rule := Rule{
		ID:           entry.ID,
		Priority:     entry.Priority,
		Pattern:      re,
		Transform:    transform,
		Prefix:       entry.Prefix,
		Suffix:       entry.Suffix,
		ProviderHint: entry.ProviderHint,
	}
	if len(entry.MarketScope) > 0 {
		rule.MarketScope = make(map[models.MarketType]struct{}, len(entry.MarketScope))
		for _, s := range entry.MarketScope {
			m, err := models.ParseMarketType(s)
			if err != nil {
				return fail(err.Error())
			}
			rule.MarketScope[m] = struct{}{}
		}
	}
	if len(entry.AssetScope) > 0 {
		rule.AssetScope = make(map[models.AssetType]struct{}, len(entry.AssetScope))
		for _, s := range entry.AssetScope {
			a, err := models.ParseAssetType(s)
			if err != nil {
				return fail(err.Error())
			}
			rule.AssetScope[a] = struct{}{}
		}
	}
	return rule, nil
}

func compileTransform(entry TransformEntry) (Transform, error) {
	if entry.Template == "" {
		return nil, fmt.Errorf("transform missing template")
	}
	switch entry.Type {
	case "", "template":
		return TemplateTransform{Template: entry.Template, Uppercase: entry.Uppercase}, nil
	case "map_template":
		if entry.Group == "" {
			return nil, fmt.Errorf("map_template requires group")
		}
		if len(entry.Mapping) == 0 {
			return nil, fmt.Errorf("map_template requires mapping")
		}
		ci := true
		if entry.CaseInsensitive != nil {
			ci = *entry.CaseInsensitive
		}
		return MapTransform{
			Group:           entry.Group,
			Mapping:         entry.Mapping,
			CaseInsensitive: ci,
			Default:         entry.Default,
			Template:        entry.Template,
			Uppercase:       entry.Uppercase,
		}, nil
	default:
		return nil, fmt.Errorf("unknown transform type %q", entry.Type)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vprism/vprism/internal/errs"
	"github.com/vprism/vprism/internal/models"
)

// actionsFile is the declarative corporate-action input for factor
// builds. The file suffix picks the parser (.yaml/.yml or .json).
type actionsFile struct {
	Dividends []dividendEntry `yaml:"dividends" json:"dividends"`
	Splits    []splitEntry    `yaml:"splits" json:"splits"`
}

type dividendEntry struct {
	ExDate   string `yaml:"ex_date" json:"ex_date"`
	Cash     string `yaml:"cash" json:"cash"`
	Currency string `yaml:"currency,omitempty" json:"currency,omitempty"`
	Source   string `yaml:"source,omitempty" json:"source,omitempty"`
}

type splitEntry struct {
	ExDate      string `yaml:"ex_date" json:"ex_date"`
	Numerator   string `yaml:"numerator" json:"numerator"`
	Denominator string `yaml:"denominator" json:"denominator"`
	Source      string `yaml:"source,omitempty" json:"source,omitempty"`
}

func loadActionsFile(path string) (models.CorporateActionSet, error) {
	if path == "" {
		return models.CorporateActionSet{}, errs.Validation("cli",
			"corporate-action file is required: use --actions", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.CorporateActionSet{}, errs.Validation("cli",
			"cannot read corporate-action file",
			map[string]any{"path": path}).WithCause(err)
	}

	var file actionsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	case ".json":
		err = json.Unmarshal(data, &file)
	default:
		return models.CorporateActionSet{}, errs.Validation("cli",
			"unsupported corporate-action file suffix",
			map[string]any{"path": path})
	}
	if err != nil {
		return models.CorporateActionSet{}, errs.Validation("cli",
			fmt.Sprintf("parse corporate-action file: %v", err),
			map[string]any{"path": path})
	}
	return compileActions(file)
}

func compileActions(file actionsFile) (models.CorporateActionSet, error) {
	fail := func(i int, kind, msg string) (models.CorporateActionSet, error) {
		return models.CorporateActionSet{}, errs.Validation("cli", msg,
			map[string]any{"entry": fmt.Sprintf("%s[%d]", kind, i)})
	}

	var set models.CorporateActionSet
	for i, e := range file.Dividends {
		exDate, err := parseActionDate(e.ExDate)
		if err != nil {
			return fail(i, "dividends", err.Error())
		}
		cash, err := decimal.NewFromString(e.Cash)
		if err != nil || !cash.IsPositive() {
			return fail(i, "dividends", fmt.Sprintf("cash must be a positive decimal, got %q", e.Cash))
		}
		set.Dividends = append(set.Dividends, models.DividendEvent{
			ExDate:     exDate,
			CashAmount: cash,
			Currency:   e.Currency,
			Source:     e.Source,
		})
	}
	for i, e := range file.Splits {
		exDate, err := parseActionDate(e.ExDate)
		if err != nil {
			return fail(i, "splits", err.Error())
		}
		num, err := decimal.NewFromString(e.Numerator)
		if err != nil || !num.IsPositive() {
			return fail(i, "splits", fmt.Sprintf("numerator must be a positive decimal, got %q", e.Numerator))
		}
		den, err := decimal.NewFromString(e.Denominator)
		if err != nil || !den.IsPositive() {
			return fail(i, "splits", fmt.Sprintf("denominator must be a positive decimal, got %q", e.Denominator))
		}
		set.Splits = append(set.Splits, models.SplitEvent{
			ExDate:      exDate,
			Numerator:   num,
			Denominator: den,
			Source:      e.Source,
		})
	}
	return set, nil
}

func parseActionDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("ex_date must be YYYY-MM-DD, got %q", s)
	}
	return d, nil
}

// fileActionSource serves a parsed action set to the adjustment engine,
// clipped to the requested window.
type fileActionSource struct {
	set models.CorporateActionSet
}

func (s fileActionSource) Actions(_ context.Context, _ models.MarketType, _ string, start, end time.Time) (models.CorporateActionSet, error) {
	var out models.CorporateActionSet
	for _, d := range s.set.Dividends {
		if inWindow(d.ExDate, start, end) {
			out.Dividends = append(out.Dividends, d)
		}
	}
	for _, sp := range s.set.Splits {
		if inWindow(sp.ExDate, start, end) {
			out.Splits = append(out.Splits, sp)
		}
	}
	return out, nil
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

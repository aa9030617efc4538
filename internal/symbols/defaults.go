package symbols

import (
	"github.com/vprism/vprism/internal/models"
)

func mustRule(id string, priority int, pattern string, t Transform, markets []models.MarketType, assets []models.AssetType) Rule {
	re, err := compilePattern(pattern, nil)
	if err != nil {
		panic(err)
	}
	r := Rule{ID: id, Priority: priority, Pattern: re, Transform: t}
	if len(markets) > 0 {
		r.MarketScope = make(map[models.MarketType]struct{}, len(markets))
		for _, m := range markets {
			r.MarketScope[m] = struct{}{}
		}
	}
	if len(assets) > 0 {
		r.AssetScope = make(map[models.AssetType]struct{}, len(assets))
		for _, a := range assets {
			r.AssetScope[a] = struct{}{}
		}
	}
	return r
}

func hinted(r Rule, provider string) Rule {
	r.ProviderHint = provider
	return r
}

// DefaultRules is the built-in rule set: CN A-share forms in their common
// provider spellings, CN open funds, CN indexes, and a generic uppercase
// alphabetic fallback.
func DefaultRules() []Rule {
	cn := []models.MarketType{models.MarketCN}
	return []Rule{
		// 600000.SS / 600000.SH / 000001.SZ (yfinance-style suffixes).
		hinted(mustRule("cn_stock_yfinance", 10,
			`(?P<code>\d{6})\.(?P<suffix>SS|SH|SZ)`,
			MapTransform{
				Group:           "suffix",
				Mapping:         map[string]string{"SS": "SH", "SH": "SH", "SZ": "SZ"},
				CaseInsensitive: true,
				Template:        "{mapped}{code}",
				Uppercase:       true,
			},
			cn, []models.AssetType{models.AssetStock}), "yfinance"),
		// sh600000 / SZ000001 prefix form.
		hinted(mustRule("cn_stock_prefix", 20,
			`(?P<prefix>[sS][hHzZ])(?P<code>\d{6})`,
			TemplateTransform{Template: "{prefix}{code}", Uppercase: true},
			cn, []models.AssetType{models.AssetStock}), "akshare"),
		// Bare 6-digit codes: 6xxxxx lists in Shanghai, 0/3xxxxx in Shenzhen.
		mustRule("cn_stock_bare_sh", 30,
			`(?P<code>6\d{5})`,
			TemplateTransform{Template: "SH{code}"},
			cn, []models.AssetType{models.AssetStock}),
		mustRule("cn_stock_bare_sz", 31,
			`(?P<code>[03]\d{5})`,
			TemplateTransform{Template: "SZ{code}"},
			cn, []models.AssetType{models.AssetStock}),
		// Open funds: 510300.OF or OF510300.
		mustRule("cn_fund_of_suffix", 40,
			`(?P<code>\d{6})\.[oO][fF]`,
			TemplateTransform{Template: "OF{code}"},
			cn, []models.AssetType{models.AssetFund}),
		mustRule("cn_fund_of_prefix", 41,
			`[oO][fF](?P<code>\d{6})`,
			TemplateTransform{Template: "OF{code}"},
			cn, []models.AssetType{models.AssetFund}),
		// Indexes: 000300.SH / 399001.SZ.
		mustRule("cn_index", 50,
			`(?P<code>\d{6})\.(?P<suffix>SH|SZ|sh|sz)`,
			TemplateTransform{Template: "{suffix}{code}", Uppercase: true},
			cn, []models.AssetType{models.AssetIndex}),
		// Generic alphabetic tickers (AAPL, BRK, VOD...).
		mustRule("generic_alpha", 1000,
			`(?P<sym>[A-Za-z]{1,10})`,
			TemplateTransform{Template: "{sym}", Uppercase: true},
			nil, nil),
	}
}

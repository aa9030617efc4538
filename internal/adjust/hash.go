package adjust

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vprism/vprism/internal/models"
)

// AlgoVersion bumps whenever the factor formula changes; it is part of
// the memoization key so stale cached results never survive a change.
const AlgoVersion = "v1"

// normDec renders a decimal without trailing fraction zeros so that
// "0.200" and "0.2" hash identically.
func normDec(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// SourceEventsHash fingerprints a merged action set. Event order does
// not matter: canonical lines carry (ex_date, amounts, currency, source)
// and are sorted before hashing.
func SourceEventsHash(set models.CorporateActionSet) string {
	lines := make([]string, 0, len(set.Dividends)+len(set.Splits))
	for _, d := range set.Dividends {
		lines = append(lines,
			"D|"+dayKey(d.ExDate)+"|"+normDec(d.CashAmount)+"|"+d.Currency+"|"+d.Source)
	}
	for _, s := range set.Splits {
		lines = append(lines,
			"S|"+dayKey(s.ExDate)+"|"+normDec(s.Numerator)+"|"+normDec(s.Denominator)+"|"+s.Source)
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// VersionFor derives the stored factor version from the events hash.
func VersionFor(eventsHash string) string {
	return AlgoVersion + ":" + eventsHash[:12]
}

// priceFingerprint condenses the close series identity for memoization.
func priceFingerprint(prices []models.DataPoint) string {
	lines := make([]string, 0, len(prices))
	for _, p := range prices {
		c := ""
		if p.Close != nil {
			c = normDec(*p.Close)
		}
		lines = append(lines, p.Timestamp.UTC().Format(time.RFC3339)+"|"+c)
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:16])
}

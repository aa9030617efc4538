package adjust

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vprism/vprism/internal/models"
)

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MergeActions collapses same-day events into one event per kind per
// ex-date: dividend cash amounts sum, split ratio components multiply,
// sources join, metadata unions with a merged_event_count marker. Each
// same-day group is ordered canonically first so the outcome does not
// depend on input order. The input set is not modified; output events
// are ordered by ex-date.
func MergeActions(set models.CorporateActionSet) models.CorporateActionSet {
	out := models.CorporateActionSet{}

	divsByDay := map[string][]models.DividendEvent{}
	for _, d := range set.Dividends {
		key := dayKey(d.ExDate)
		divsByDay[key] = append(divsByDay[key], d)
	}
	for _, group := range divsByDay {
		sort.SliceStable(group, func(i, j int) bool {
			if c := group[i].CashAmount.Cmp(group[j].CashAmount); c != 0 {
				return c < 0
			}
			if group[i].Currency != group[j].Currency {
				return group[i].Currency < group[j].Currency
			}
			return group[i].Source < group[j].Source
		})
		merged := group[0]
		merged.ExDate = merged.ExDate.UTC().Truncate(24 * time.Hour)
		if len(group) > 1 {
			sources := make([]string, 0, len(group))
			metas := make([]map[string]string, 0, len(group))
			cash := group[0].CashAmount
			for i, d := range group {
				if i > 0 {
					cash = cash.Add(d.CashAmount)
				}
				sources = append(sources, d.Source)
				metas = append(metas, d.Metadata)
			}
			merged.CashAmount = cash
			merged.Source = joinSources(sources)
			merged.Metadata = unionMeta(metas, len(group))
		}
		out.Dividends = append(out.Dividends, merged)
	}

	splitsByDay := map[string][]models.SplitEvent{}
	for _, s := range set.Splits {
		key := dayKey(s.ExDate)
		splitsByDay[key] = append(splitsByDay[key], s)
	}
	for _, group := range splitsByDay {
		sort.SliceStable(group, func(i, j int) bool {
			if c := group[i].Numerator.Cmp(group[j].Numerator); c != 0 {
				return c < 0
			}
			if c := group[i].Denominator.Cmp(group[j].Denominator); c != 0 {
				return c < 0
			}
			return group[i].Source < group[j].Source
		})
		merged := group[0]
		merged.ExDate = merged.ExDate.UTC().Truncate(24 * time.Hour)
		if len(group) > 1 {
			sources := make([]string, 0, len(group))
			metas := make([]map[string]string, 0, len(group))
			num, den := group[0].Numerator, group[0].Denominator
			for i, s := range group {
				if i > 0 {
					num = num.Mul(s.Numerator)
					den = den.Mul(s.Denominator)
				}
				sources = append(sources, s.Source)
				metas = append(metas, s.Metadata)
			}
			merged.Numerator = num
			merged.Denominator = den
			merged.Source = joinSources(sources)
			merged.Metadata = unionMeta(metas, len(group))
		}
		out.Splits = append(out.Splits, merged)
	}

	sort.Slice(out.Dividends, func(i, j int) bool {
		return out.Dividends[i].ExDate.Before(out.Dividends[j].ExDate)
	})
	sort.Slice(out.Splits, func(i, j int) bool {
		return out.Splits[i].ExDate.Before(out.Splits[j].ExDate)
	})
	return out
}

// joinSources joins distinct non-empty sources with "+", keeping the
// group's canonical order.
func joinSources(sources []string) string {
	out := make([]string, 0, len(sources))
	seen := map[string]bool{}
	for _, s := range sources {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return strings.Join(out, "+")
}

// unionMeta unions group metadata, first write per key wins, and stamps
// the merged event count.
func unionMeta(metas []map[string]string, count int) map[string]string {
	out := map[string]string{}
	for _, m := range metas {
		for k, v := range m {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	out["merged_event_count"] = strconv.Itoa(count)
	return out
}

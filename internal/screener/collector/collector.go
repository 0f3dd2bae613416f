package collector

import (
	"context"
	"sort"
	"strings"

	"jongga-screener/internal/entity"
)

// Collector is the market data contract the signal generator depends on.
// Implementations are per-market and must degrade instead of failing: a
// method that cannot reach its upstream returns an empty slice or a neutral
// snapshot so that one candidate's enrichment never aborts a scan.
type Collector interface {
	// ListCandidates returns up to topN instruments passing the rubric's
	// baseline liquidity and price-move filter, ordered by change pct
	// descending with trading value as tiebreak.
	ListCandidates(ctx context.Context, market string, topN int) ([]entity.StockSnapshot, error)

	// GetPriceHistory returns at most maxDays most-recent daily bars,
	// oldest first. Insufficient history yields a short or empty slice,
	// not an error.
	GetPriceHistory(ctx context.Context, code string, maxDays int) ([]entity.PriceBar, error)

	// GetNews returns up to limit headlines for the stock, deduplicated by
	// title. When the code-specific lookup is empty it falls back to a
	// broader headline search using the display name.
	GetNews(ctx context.Context, code string, limit int, name string) ([]entity.NewsItem, error)

	// GetSupplyDemand returns the trailing institutional/foreign flow
	// snapshot, or a zero-valued unsupported snapshot when the market's
	// source does not carry this data.
	GetSupplyDemand(ctx context.Context, code string) (entity.SupplyDemand, error)

	// GetDetail returns per-stock reference data such as the 52-week
	// high. Fields the source cannot provide stay zero.
	GetDetail(ctx context.Context, code string) (entity.StockSnapshot, error)
}

// Registry maps market segment identifiers to their collector.
type Registry map[string]Collector

// ForMarket returns the collector serving the given market.
func (r Registry) ForMarket(market string) (Collector, bool) {
	c, ok := r[market]
	return c, ok
}

// dedupeNews drops items whose title was already seen and caps the result.
func dedupeNews(items []entity.NewsItem, limit int) []entity.NewsItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]entity.NewsItem, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// sortCandidates orders snapshots by change pct descending, trading value
// descending on ties, and trims to topN.
func sortCandidates(candidates []entity.StockSnapshot, topN int) []entity.StockSnapshot {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ChangePct != candidates[j].ChangePct {
			return candidates[i].ChangePct > candidates[j].ChangePct
		}
		return candidates[i].TradingValue > candidates[j].TradingValue
	})
	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates
}

// excludedByName reports whether the instrument name matches any exclusion
// keyword (fund wrappers, leveraged products and the like).
func excludedByName(name string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

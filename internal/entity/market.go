package entity

import "time"

// StockSnapshot is one instrument's state as seen at candidate-collection time.
// It is created fresh per scan cycle and never mutated afterwards.
type StockSnapshot struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Market       string  `json:"market"`
	Sector       string  `json:"sector"`
	Close        float64 `json:"close"`
	ChangePct    float64 `json:"change_pct"`
	Volume       int64   `json:"volume"`
	TradingValue int64   `json:"trading_value"`
	MarketCap    int64   `json:"market_cap"`
	High52W      float64 `json:"high_52w"`
}

// PriceBar is a single daily OHLCV bar.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// NewsItem is one headline attached to a candidate. Reliability is a source
// trust weight in [0,1].
type NewsItem struct {
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	Source      string     `json:"source"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Reliability float64    `json:"reliability"`
}

// SupplyDemand aggregates institutional and foreign net-buy volume over
// trailing windows. A zero-valued snapshot with Supported=false means the
// data source does not carry this signal at all, which the scorer must treat
// as unknown rather than as confirmed absence of buying.
type SupplyDemand struct {
	Code              string  `json:"code"`
	ForeignBuy5D      int64   `json:"foreign_buy_5d"`
	ForeignBuy20D     int64   `json:"foreign_buy_20d"`
	InstBuy5D         int64   `json:"inst_buy_5d"`
	InstBuy20D        int64   `json:"inst_buy_20d"`
	ForeignHoldingPct float64 `json:"foreign_holding_pct"`
	Supported         bool    `json:"supported"`
}

// IsNeutral reports whether the snapshot carries no usable flow evidence.
func (s SupplyDemand) IsNeutral() bool {
	return !s.Supported && s.ForeignBuy5D == 0 && s.InstBuy5D == 0
}

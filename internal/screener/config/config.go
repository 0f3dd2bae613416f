package config

import (
	"fmt"
	"time"

	"jongga-screener/pkg/config"
)

// Screener holds run-level settings for the signal generator.
type Screener struct {
	Capital             float64       `mapstructure:"capital"`
	RiskFraction        float64       `mapstructure:"risk_fraction"`
	PositionCapFraction float64       `mapstructure:"position_cap_fraction"`
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
	TopN                int           `mapstructure:"top_n"`
	MaxSignals          int           `mapstructure:"max_signals"`
	ChartDays           int           `mapstructure:"chart_days"`
	MinChartBars        int           `mapstructure:"min_chart_bars"`
	NewsLimit           int           `mapstructure:"news_limit"`
	ChartReqPerMinute   int           `mapstructure:"chart_requests_per_minute"`
	Markets             []string      `mapstructure:"markets"`
	CronSpec            string        `mapstructure:"cron_spec"`
	TrackerCronSpec     string        `mapstructure:"tracker_cron_spec"`
	SignalExpiryDays    int           `mapstructure:"signal_expiry_days"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout"`
}

// VolumeTiers is the traded-value ladder for the volume sub-score, in the
// market's own currency. Tier3 is the highest threshold (3 points).
type VolumeTiers struct {
	Tier3 int64 `mapstructure:"tier3"`
	Tier2 int64 `mapstructure:"tier2"`
	Tier1 int64 `mapstructure:"tier1"`
}

// Grading holds the grade cutoffs on the 15-point scale (12-point base plus
// the 0-3 technical bonus).
type Grading struct {
	SMin        float64 `mapstructure:"s_min"`
	AMin        float64 `mapstructure:"a_min"`
	BMin        float64 `mapstructure:"b_min"`
	BChangePct  float64 `mapstructure:"b_change_pct"`
	RMultiplier struct {
		S float64 `mapstructure:"s"`
		A float64 `mapstructure:"a"`
		B float64 `mapstructure:"b"`
		C float64 `mapstructure:"c"`
	} `mapstructure:"r_multiplier"`
}

// UniverseStock is one instrument of a statically configured market
// universe, for markets without a public gainer-ranking feed.
type UniverseStock struct {
	Code   string `mapstructure:"code"`
	Name   string `mapstructure:"name"`
	Sector string `mapstructure:"sector"`
}

// Rubric is the per-market scoring and filtering rule set. Keyword lists are
// market-language specific.
type Rubric struct {
	MinTradingValue  int64       `mapstructure:"min_trading_value"`
	MinChangePct     float64     `mapstructure:"min_change_pct"`
	MaxChangePct     float64     `mapstructure:"max_change_pct"`
	MinPrice         float64     `mapstructure:"min_price"`
	MaxPrice         float64     `mapstructure:"max_price"`
	ExcludeKeywords  []string    `mapstructure:"exclude_keywords"`
	VolumeTiers      VolumeTiers `mapstructure:"volume_tiers"`
	Grading          Grading     `mapstructure:"grading"`
	StopLossPct      float64     `mapstructure:"stop_loss_pct"`
	TakeProfitPct    float64     `mapstructure:"take_profit_pct"`
	PositiveKeywords []string    `mapstructure:"positive_keywords"`
	NegativeKeywords []string    `mapstructure:"negative_keywords"`

	// Universe is the static candidate pool for markets whose source has
	// no ranking feed. Empty for markets with a live ranking.
	Universe []UniverseStock `mapstructure:"universe"`
}

// Gemini holds the configuration for the Gemini news sentiment analyzer.
type Gemini struct {
	Enabled             bool   `mapstructure:"enabled"`
	APIKey              string `mapstructure:"api_key"`
	BaseURL             string `mapstructure:"base_url"`
	Model               string `mapstructure:"model"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute"`
	MaxTokenPerMinute   int    `mapstructure:"max_token_per_minute"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Config holds the full configuration for the screener service.
type Config struct {
	App      config.App        `mapstructure:"app"`
	Logger   config.Logger     `mapstructure:"logger"`
	Database config.Database   `mapstructure:"database"`
	Redis    config.Redis      `mapstructure:"redis"`
	API      config.API        `mapstructure:"api"`
	Screener Screener          `mapstructure:"screener"`
	Rubrics  map[string]Rubric `mapstructure:"rubrics"`
	Gemini   Gemini            `mapstructure:"gemini"`
	Telegram Telegram          `mapstructure:"telegram"`
}

// Load loads and validates the screener configuration from the given path.
// Validation failures are fatal: a scan must never start on a malformed rubric.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Screener.MaxConcurrent == 0 {
		c.Screener.MaxConcurrent = 10
	}
	if c.Screener.TopN == 0 {
		c.Screener.TopN = 30
	}
	if c.Screener.MaxSignals == 0 {
		c.Screener.MaxSignals = 30
	}
	if c.Screener.ChartDays == 0 {
		c.Screener.ChartDays = 60
	}
	if c.Screener.MinChartBars == 0 {
		c.Screener.MinChartBars = 20
	}
	if c.Screener.NewsLimit == 0 {
		c.Screener.NewsLimit = 5
	}
	if c.Screener.ChartReqPerMinute == 0 {
		c.Screener.ChartReqPerMinute = 60
	}
	if c.Screener.SignalExpiryDays == 0 {
		c.Screener.SignalExpiryDays = 3
	}
	if c.Screener.HTTPTimeout == 0 {
		c.Screener.HTTPTimeout = 15 * time.Second
	}
}

// Validate checks the parts of the configuration a scan depends on.
func (c *Config) Validate() error {
	if c.Screener.Capital <= 0 {
		return fmt.Errorf("screener.capital must be positive, got %f", c.Screener.Capital)
	}
	if c.Screener.RiskFraction <= 0 || c.Screener.RiskFraction >= 1 {
		return fmt.Errorf("screener.risk_fraction must be in (0,1), got %f", c.Screener.RiskFraction)
	}
	if c.Screener.PositionCapFraction <= 0 || c.Screener.PositionCapFraction > 1 {
		return fmt.Errorf("screener.position_cap_fraction must be in (0,1], got %f", c.Screener.PositionCapFraction)
	}
	if c.Screener.MaxConcurrent < 1 {
		return fmt.Errorf("screener.max_concurrent must be at least 1")
	}
	if len(c.Screener.Markets) == 0 {
		return fmt.Errorf("screener.markets must not be empty")
	}
	for _, market := range c.Screener.Markets {
		rubric, ok := c.Rubrics[market]
		if !ok {
			return fmt.Errorf("no rubric configured for market %s", market)
		}
		if err := rubric.validate(market); err != nil {
			return err
		}
	}
	return nil
}

func (r Rubric) validate(market string) error {
	if r.MinChangePct >= r.MaxChangePct {
		return fmt.Errorf("rubric %s: min_change_pct %.2f must be below max_change_pct %.2f",
			market, r.MinChangePct, r.MaxChangePct)
	}
	if r.MinPrice < 0 || (r.MaxPrice > 0 && r.MaxPrice <= r.MinPrice) {
		return fmt.Errorf("rubric %s: invalid price band [%.2f, %.2f]", market, r.MinPrice, r.MaxPrice)
	}
	if !(r.VolumeTiers.Tier3 > r.VolumeTiers.Tier2 && r.VolumeTiers.Tier2 > r.VolumeTiers.Tier1) {
		return fmt.Errorf("rubric %s: volume tiers must be strictly descending", market)
	}
	g := r.Grading
	if !(g.SMin > g.AMin && g.AMin > g.BMin && g.BMin > 0) {
		return fmt.Errorf("rubric %s: grade cutoffs must be strictly descending and positive", market)
	}
	if r.StopLossPct <= 0 || r.StopLossPct >= 1 {
		return fmt.Errorf("rubric %s: stop_loss_pct must be in (0,1), got %f", market, r.StopLossPct)
	}
	if r.TakeProfitPct <= 0 || r.TakeProfitPct >= 1 {
		return fmt.Errorf("rubric %s: take_profit_pct must be in (0,1), got %f", market, r.TakeProfitPct)
	}
	return nil
}

// RubricFor returns the rubric for a market.
func (c *Config) RubricFor(market string) (Rubric, bool) {
	r, ok := c.Rubrics[market]
	return r, ok
}

// RMultiplierFor maps a grade letter to its configured risk multiplier.
func (g Grading) RMultiplierFor(grade string) float64 {
	switch grade {
	case "S":
		return g.RMultiplier.S
	case "A":
		return g.RMultiplier.A
	case "B":
		return g.RMultiplier.B
	default:
		return g.RMultiplier.C
	}
}

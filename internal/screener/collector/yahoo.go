package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"jongga-screener/internal/entity"
	"jongga-screener/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// yahooChartResponse is the response structure of the Yahoo Finance chart API.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// YahooChartClient fetches daily bars from the public Yahoo Finance chart
// API. Responses are cached briefly so that candidate listing and per-stock
// enrichment do not hit the upstream twice for the same symbol.
type YahooChartClient struct {
	client  *http.Client
	log     *logger.Logger
	limiter *rate.Limiter
	cache   *gocache.Cache
	baseURL string
}

// NewYahooChartClient creates a chart client with a request budget per minute.
func NewYahooChartClient(log *logger.Logger, timeout time.Duration, maxRequestPerMinute int) *YahooChartClient {
	secondsPerRequest := time.Minute / time.Duration(maxRequestPerMinute)
	return &YahooChartClient{
		client:  &http.Client{Timeout: timeout},
		log:     log,
		limiter: rate.NewLimiter(rate.Every(secondsPerRequest), maxRequestPerMinute),
		cache:   gocache.New(5*time.Minute, 10*time.Minute),
		baseURL: "https://query1.finance.yahoo.com/v8/finance/chart",
	}
}

// SetBaseURL overrides the upstream endpoint, used by tests.
func (y *YahooChartClient) SetBaseURL(u string) { y.baseURL = u }

func rangeForDays(days int) string {
	switch {
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}

// DailyBars returns up to days most-recent daily bars for the symbol, oldest
// first, together with the quoted 52-week high.
func (y *YahooChartClient) DailyBars(ctx context.Context, symbol string, days int) ([]entity.PriceBar, float64, error) {
	cacheKey := fmt.Sprintf("chart:%s:%d", symbol, days)
	if cached, ok := y.cache.Get(cacheKey); ok {
		hit := cached.(chartCacheEntry)
		return hit.bars, hit.high52W, nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("chart rate limit wait: %w", err)
	}

	u := fmt.Sprintf("%s/%s?interval=1d&range=%s", y.baseURL, url.PathEscape(symbol), rangeForDays(days))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("chart request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("chart fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("chart read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("chart %s: status %d", symbol, resp.StatusCode)
	}

	var chart yahooChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, 0, fmt.Errorf("chart decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, 0, fmt.Errorf("chart api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		// No data is not an upstream failure; the symbol may be delisted
		// or too young. Callers treat the empty slice as missing history.
		return nil, 0, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, 0, nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]entity.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		o := toFloat(quote.Open[i])
		h := toFloat(quote.High[i])
		l := toFloat(quote.Low[i])
		c := toFloat(quote.Close[i])
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // null bars on holidays
		}
		bars = append(bars, entity.PriceBar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: int64(toFloat(quote.Volume[i])),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}

	high52W := result.Meta.FiftyTwoWeekHigh
	y.cache.Set(cacheKey, chartCacheEntry{bars: bars, high52W: high52W}, gocache.DefaultExpiration)
	return bars, high52W, nil
}

type chartCacheEntry struct {
	bars    []entity.PriceBar
	high52W float64
}

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jongga-screener/internal/entity"
	screenercfg "jongga-screener/internal/screener/config"
	"jongga-screener/pkg/common"
	"jongga-screener/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// naverUpStock is one row of the Naver mobile ranking API. Numeric fields
// arrive as comma-grouped strings.
type naverUpStock struct {
	ItemCode                 string `json:"itemCode"`
	StockName                string `json:"stockName"`
	ClosePrice               string `json:"closePrice"`
	FluctuationsRatio        string `json:"fluctuationsRatio"`
	AccumulatedTradingVolume string `json:"accumulatedTradingVolume"`
	AccumulatedTradingValue  string `json:"accumulatedTradingValue"`
	MarketValue              string `json:"marketValue"`
	SosokName                string `json:"sosok"`
}

type naverUpResponse struct {
	Stocks []naverUpStock `json:"stocks"`
}

// naverTrendRow is one daily row of the investor trend API.
type naverTrendRow struct {
	BizDate               string `json:"bizdate"`
	ForeignerPureBuyQuant string `json:"foreignerPureBuyQuant"`
	OrganPureBuyQuant     string `json:"organPureBuyQuant"`
	ForeignerHoldRatio    string `json:"foreignerHoldRatio"`
}

// KRXCollector serves the KOSPI and KOSDAQ market segments. Candidate
// ranking and investor flow come from the Naver mobile API; price history
// comes from the Yahoo chart API.
type KRXCollector struct {
	cfg     *screenercfg.Config
	log     *logger.Logger
	client  *http.Client
	limiter *rate.Limiter
	charts  *YahooChartClient
	news    *GoogleNewsClient
	cache   *gocache.Cache
	baseURL string
}

// NewKRXCollector creates a collector for the Korean market segments.
func NewKRXCollector(cfg *screenercfg.Config, log *logger.Logger, charts *YahooChartClient, news *GoogleNewsClient) *KRXCollector {
	return &KRXCollector{
		cfg:     cfg,
		log:     log,
		client:  &http.Client{Timeout: cfg.Screener.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Second/4), 4),
		charts:  charts,
		news:    news,
		cache:   gocache.New(10*time.Minute, 20*time.Minute),
		baseURL: "https://m.stock.naver.com/api",
	}
}

// SetBaseURL overrides the upstream endpoint, used by tests.
func (k *KRXCollector) SetBaseURL(u string) { k.baseURL = u }

// ListCandidates fetches the top-gainer ranking pages and applies the
// rubric's baseline filter. A failed page is skipped, not fatal: partial
// results are accepted.
func (k *KRXCollector) ListCandidates(ctx context.Context, market string, topN int) ([]entity.StockSnapshot, error) {
	rubric, ok := k.cfg.RubricFor(market)
	if !ok {
		return nil, fmt.Errorf("no rubric for market %s", market)
	}

	var candidates []entity.StockSnapshot
	for page := 1; page <= 3; page++ {
		rows, err := k.fetchUpPage(ctx, market, page)
		if err != nil {
			k.log.Warn("Failed to fetch ranking page, skipping chunk",
				logger.ErrorField(err),
				logger.StringField("market", market),
				logger.IntField("page", page))
			continue
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			snapshot, ok := k.toSnapshot(row, market, rubric)
			if !ok {
				continue
			}
			candidates = append(candidates, snapshot)
			// Remember the Yahoo suffix so price history lookups can
			// route the plain code to the right exchange feed.
			k.cache.Set("suffix:"+snapshot.Code, yahooSuffixFor(market), gocache.NoExpiration)
		}
	}

	return sortCandidates(candidates, topN), nil
}

func (k *KRXCollector) fetchUpPage(ctx context.Context, market string, page int) ([]naverUpStock, error) {
	if err := k.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/stocks/up/%s?page=%d&pageSize=60", k.baseURL, market, page)
	body, err := k.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var resp naverUpResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode ranking page: %w", err)
	}
	return resp.Stocks, nil
}

func (k *KRXCollector) toSnapshot(row naverUpStock, market string, rubric screenercfg.Rubric) (entity.StockSnapshot, bool) {
	closePrice := parseGroupedFloat(row.ClosePrice)
	changePct := parseGroupedFloat(row.FluctuationsRatio)
	volume := parseGroupedInt(row.AccumulatedTradingVolume)
	// Trading value arrives in millions of won.
	tradingValue := parseGroupedInt(row.AccumulatedTradingValue) * 1_000_000
	marketCap := parseGroupedInt(row.MarketValue) * 100_000_000

	if closePrice <= 0 {
		return entity.StockSnapshot{}, false
	}
	if tradingValue < rubric.MinTradingValue {
		return entity.StockSnapshot{}, false
	}
	if changePct < rubric.MinChangePct || changePct > rubric.MaxChangePct {
		return entity.StockSnapshot{}, false
	}
	if closePrice < rubric.MinPrice || (rubric.MaxPrice > 0 && closePrice > rubric.MaxPrice) {
		return entity.StockSnapshot{}, false
	}
	if excludedByName(row.StockName, rubric.ExcludeKeywords) {
		return entity.StockSnapshot{}, false
	}

	return entity.StockSnapshot{
		Code:         row.ItemCode,
		Name:         row.StockName,
		Market:       market,
		Close:        closePrice,
		ChangePct:    changePct,
		Volume:       volume,
		TradingValue: tradingValue,
		MarketCap:    marketCap,
	}, true
}

// GetPriceHistory returns daily bars for the code, oldest first. Missing
// history yields an empty slice.
func (k *KRXCollector) GetPriceHistory(ctx context.Context, code string, maxDays int) ([]entity.PriceBar, error) {
	bars, high52W, err := k.charts.DailyBars(ctx, code+k.suffixFor(code), maxDays)
	if err != nil {
		k.log.Warn("Failed to fetch price history", logger.ErrorField(err), logger.StringField("code", code))
		return nil, nil
	}
	if high52W > 0 {
		k.cache.Set("high52w:"+code, high52W, gocache.DefaultExpiration)
	}
	return bars, nil
}

// GetDetail returns per-stock reference data, currently the 52-week high
// captured from the chart feed.
func (k *KRXCollector) GetDetail(ctx context.Context, code string) (entity.StockSnapshot, error) {
	if cached, ok := k.cache.Get("high52w:" + code); ok {
		return entity.StockSnapshot{Code: code, High52W: cached.(float64)}, nil
	}
	_, high52W, err := k.charts.DailyBars(ctx, code+k.suffixFor(code), 5)
	if err != nil {
		return entity.StockSnapshot{Code: code}, nil
	}
	return entity.StockSnapshot{Code: code, High52W: high52W}, nil
}

// GetNews searches stock-specific headlines and falls back to a broader
// query when nothing matches. Failures degrade to an empty slice.
func (k *KRXCollector) GetNews(ctx context.Context, code string, limit int, name string) ([]entity.NewsItem, error) {
	query := name
	if query == "" {
		query = code
	}
	items := k.news.Search(ctx, query+" 주식", limit)
	if len(items) == 0 {
		items = k.news.Search(ctx, query, limit)
	}
	if len(items) > 0 && items[0].Summary == "" {
		items[0].Summary = k.news.FetchSummary(ctx, items[0].URL)
	}
	return items, nil
}

// GetSupplyDemand aggregates foreign and institutional net buying over the
// trailing 5 and 20 sessions. Upstream failure degrades to the neutral
// unsupported snapshot.
func (k *KRXCollector) GetSupplyDemand(ctx context.Context, code string) (entity.SupplyDemand, error) {
	if err := k.limiter.Wait(ctx); err != nil {
		return entity.SupplyDemand{Code: code}, nil
	}
	u := fmt.Sprintf("%s/stock/%s/trend?pageSize=20", k.baseURL, code)
	body, err := k.get(ctx, u)
	if err != nil {
		k.log.Warn("Failed to fetch investor trend", logger.ErrorField(err), logger.StringField("code", code))
		return entity.SupplyDemand{Code: code}, nil
	}

	var rows []naverTrendRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return entity.SupplyDemand{Code: code}, nil
	}
	if len(rows) == 0 {
		return entity.SupplyDemand{Code: code}, nil
	}

	supply := entity.SupplyDemand{Code: code, Supported: true}
	for i, row := range rows {
		foreignBuy := parseGroupedInt(row.ForeignerPureBuyQuant)
		instBuy := parseGroupedInt(row.OrganPureBuyQuant)
		if i < 5 {
			supply.ForeignBuy5D += foreignBuy
			supply.InstBuy5D += instBuy
		}
		supply.ForeignBuy20D += foreignBuy
		supply.InstBuy20D += instBuy
	}
	supply.ForeignHoldingPct = parseGroupedFloat(rows[0].ForeignerHoldRatio)
	return supply, nil
}

func (k *KRXCollector) suffixFor(code string) string {
	if cached, ok := k.cache.Get("suffix:" + code); ok {
		return cached.(string)
	}
	return ".KS"
}

func (k *KRXCollector) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", resp.StatusCode, u)
	}
	return io.ReadAll(resp.Body)
}

func yahooSuffixFor(market string) string {
	if market == common.MarketKOSDAQ {
		return ".KQ"
	}
	return ".KS"
}

func parseGroupedFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseGroupedInt(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some feeds send decimals for quantity fields.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return v
}

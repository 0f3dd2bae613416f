package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"jongga-screener/internal/entity"
	screenercfg "jongga-screener/internal/screener/config"
	"jongga-screener/pkg/logger"
	"jongga-screener/pkg/utils"

	"github.com/PuerkitoBio/goquery"
	gocache "github.com/patrickmn/go-cache"
)

// jpSourceReliability weights the major Japanese financial outlets.
var jpSourceReliability = map[string]float64{
	"日本経済新聞": 0.9,
	"日経":     0.9,
	"ロイター":   0.9,
	"ブルームバーグ": 0.9,
	"時事通信":   0.85,
	"共同通信":   0.85,
	"東洋経済":   0.8,
	"ダイヤモンド": 0.75,
	"株探":     0.75,
	"みんかぶ":   0.7,
}

// JPXCollector serves the Tokyo Stock Exchange segment. There is no public
// gainer-ranking feed, so candidates come from a configured universe whose
// latest bars are fetched in a bounded fan-out. Investor flow data is not
// available, so supply/demand is always the unsupported snapshot.
type JPXCollector struct {
	cfg     *screenercfg.Config
	log     *logger.Logger
	charts  *YahooChartClient
	client  *http.Client
	cache   *gocache.Cache
	newsURL string
}

// NewJPXCollector creates a collector for the Tokyo market.
func NewJPXCollector(cfg *screenercfg.Config, log *logger.Logger, charts *YahooChartClient) *JPXCollector {
	return &JPXCollector{
		cfg:     cfg,
		log:     log,
		charts:  charts,
		client:  &http.Client{Timeout: cfg.Screener.HTTPTimeout},
		cache:   gocache.New(10*time.Minute, 20*time.Minute),
		newsURL: "https://finance.yahoo.co.jp",
	}
}

// SetNewsBaseURL overrides the news endpoint, used by tests.
func (j *JPXCollector) SetNewsBaseURL(u string) { j.newsURL = u }

// ListCandidates fetches the latest bars for the configured universe under
// bounded concurrency and keeps the instruments passing the rubric filter.
// Per-stock fetch failures are skipped.
func (j *JPXCollector) ListCandidates(ctx context.Context, market string, topN int) ([]entity.StockSnapshot, error) {
	rubric, ok := j.cfg.RubricFor(market)
	if !ok {
		return nil, fmt.Errorf("no rubric for market %s", market)
	}
	if len(rubric.Universe) == 0 {
		return nil, fmt.Errorf("market %s has an empty universe", market)
	}

	var (
		mu         sync.Mutex
		candidates []entity.StockSnapshot
		wg         sync.WaitGroup
	)
	sem := make(chan struct{}, j.cfg.Screener.MaxConcurrent)

	for _, stock := range rubric.Universe {
		if !utils.ShouldContinue(ctx) {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		stock := stock
		utils.GoSafe(func() {
			defer wg.Done()
			defer func() { <-sem }()

			snapshot, ok := j.latestSnapshot(ctx, stock, market, rubric)
			if !ok {
				return
			}
			mu.Lock()
			candidates = append(candidates, snapshot)
			mu.Unlock()
		})
	}
	wg.Wait()

	return sortCandidates(candidates, topN), nil
}

func (j *JPXCollector) latestSnapshot(ctx context.Context, stock screenercfg.UniverseStock, market string, rubric screenercfg.Rubric) (entity.StockSnapshot, bool) {
	bars, high52W, err := j.charts.DailyBars(ctx, stock.Code+".T", 5)
	if err != nil {
		j.log.Warn("Failed to fetch universe quote, skipping stock",
			logger.ErrorField(err), logger.StringField("code", stock.Code))
		return entity.StockSnapshot{}, false
	}
	if len(bars) < 2 {
		return entity.StockSnapshot{}, false
	}

	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]
	if prev.Close <= 0 || last.Close <= 0 {
		return entity.StockSnapshot{}, false
	}
	changePct := (last.Close - prev.Close) / prev.Close * 100
	tradingValue := int64(last.Close * float64(last.Volume))

	if tradingValue < rubric.MinTradingValue {
		return entity.StockSnapshot{}, false
	}
	if changePct < rubric.MinChangePct || changePct > rubric.MaxChangePct {
		return entity.StockSnapshot{}, false
	}
	if last.Close < rubric.MinPrice || (rubric.MaxPrice > 0 && last.Close > rubric.MaxPrice) {
		return entity.StockSnapshot{}, false
	}
	if excludedByName(stock.Name, rubric.ExcludeKeywords) {
		return entity.StockSnapshot{}, false
	}

	if high52W > 0 {
		j.cache.Set("high52w:"+stock.Code, high52W, gocache.DefaultExpiration)
	}
	return entity.StockSnapshot{
		Code:         stock.Code,
		Name:         stock.Name,
		Market:       market,
		Sector:       stock.Sector,
		Close:        last.Close,
		ChangePct:    changePct,
		Volume:       last.Volume,
		TradingValue: tradingValue,
	}, true
}

// GetPriceHistory returns daily bars for the code, oldest first.
func (j *JPXCollector) GetPriceHistory(ctx context.Context, code string, maxDays int) ([]entity.PriceBar, error) {
	bars, high52W, err := j.charts.DailyBars(ctx, code+".T", maxDays)
	if err != nil {
		j.log.Warn("Failed to fetch price history", logger.ErrorField(err), logger.StringField("code", code))
		return nil, nil
	}
	if high52W > 0 {
		j.cache.Set("high52w:"+code, high52W, gocache.DefaultExpiration)
	}
	return bars, nil
}

// GetDetail returns the 52-week high captured from the chart feed.
func (j *JPXCollector) GetDetail(ctx context.Context, code string) (entity.StockSnapshot, error) {
	if cached, ok := j.cache.Get("high52w:" + code); ok {
		return entity.StockSnapshot{Code: code, High52W: cached.(float64)}, nil
	}
	_, high52W, err := j.charts.DailyBars(ctx, code+".T", 5)
	if err != nil {
		return entity.StockSnapshot{Code: code}, nil
	}
	return entity.StockSnapshot{Code: code, High52W: high52W}, nil
}

// GetNews scrapes the Yahoo Finance Japan per-stock news page. When the page
// yields nothing it falls back to the market headline page filtered by the
// stock name. Failures degrade to an empty slice.
func (j *JPXCollector) GetNews(ctx context.Context, code string, limit int, name string) ([]entity.NewsItem, error) {
	cacheKey := "news:" + code
	if cached, ok := j.cache.Get(cacheKey); ok {
		return dedupeNews(cached.([]entity.NewsItem), limit), nil
	}

	items := j.scrapeNews(ctx, fmt.Sprintf("%s/quote/%s.T/news", j.newsURL, code), "")
	if len(items) == 0 && name != "" {
		items = j.scrapeNews(ctx, j.newsURL+"/news/market", name)
	}

	j.cache.Set(cacheKey, items, gocache.DefaultExpiration)
	return dedupeNews(items, limit), nil
}

func (j *JPXCollector) scrapeNews(ctx context.Context, pageURL, nameFilter string) []entity.NewsItem {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := j.client.Do(req)
	if err != nil {
		j.log.Warn("Failed to fetch news page", logger.ErrorField(err), logger.StringField("url", pageURL))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil
	}

	var items []entity.NewsItem
	doc.Find("a[href*='/news/']").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Text())
		if title == "" || len([]rune(title)) < 10 {
			return
		}
		if nameFilter != "" && !strings.Contains(title, nameFilter) {
			return
		}
		href, _ := sel.Attr("href")
		if strings.HasPrefix(href, "/") {
			href = j.newsURL + href
		}
		source := strings.TrimSpace(sel.AttrOr("data-cl-params", ""))
		items = append(items, entity.NewsItem{
			Title:       title,
			Source:      source,
			URL:         href,
			Reliability: jpReliabilityFor(title),
		})
	})
	return items
}

// GetSupplyDemand always reports the unsupported snapshot: the Tokyo segment
// has no investor flow source wired.
func (j *JPXCollector) GetSupplyDemand(ctx context.Context, code string) (entity.SupplyDemand, error) {
	return entity.SupplyDemand{Code: code}, nil
}

func jpReliabilityFor(text string) float64 {
	for name, weight := range jpSourceReliability {
		if strings.Contains(text, name) {
			return weight
		}
	}
	return 0.5
}

package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jongga-screener/internal/entity"
	"jongga-screener/pkg/logger"
	"jongga-screener/pkg/utils"

	"github.com/mauidude/go-readability"
	"github.com/mmcdole/gofeed"
	gocache "github.com/patrickmn/go-cache"
)

// sourceReliability weights well-known Korean financial outlets. Unknown
// sources get a flat 0.5.
var sourceReliability = map[string]float64{
	"연합뉴스":   0.9,
	"한국경제":   0.9,
	"매일경제":   0.9,
	"머니투데이":  0.85,
	"서울경제":   0.85,
	"이데일리":   0.85,
	"아시아경제":  0.8,
	"파이낸셜뉴스": 0.8,
	"헤럴드경제":  0.8,
}

// GoogleNewsClient collects stock headlines from the Google News RSS feed.
type GoogleNewsClient struct {
	log        *logger.Logger
	parser     *gofeed.Parser
	httpClient *http.Client
	cache      *gocache.Cache
	baseURL    string
	queryParam string
}

// NewGoogleNewsClient creates a Korean-locale Google News RSS client.
func NewGoogleNewsClient(log *logger.Logger, timeout time.Duration) *GoogleNewsClient {
	return &GoogleNewsClient{
		log:        log,
		parser:     gofeed.NewParser(),
		httpClient: &http.Client{Timeout: timeout},
		cache:      gocache.New(10*time.Minute, 20*time.Minute),
		baseURL:    "https://news.google.com/rss",
		queryParam: "hl=ko&gl=KR&ceid=KR:ko",
	}
}

// SetBaseURL overrides the feed endpoint, used by tests.
func (g *GoogleNewsClient) SetBaseURL(u string) { g.baseURL = u }

// Search returns up to limit deduplicated headlines for the query. A total
// upstream failure yields an empty slice, never an error: news is a
// best-effort enrichment.
func (g *GoogleNewsClient) Search(ctx context.Context, query string, limit int) []entity.NewsItem {
	cacheKey := "news:" + query
	if cached, ok := g.cache.Get(cacheKey); ok {
		return dedupeNews(cached.([]entity.NewsItem), limit)
	}

	feedURL := fmt.Sprintf("%s/search?q=%s&%s", g.baseURL, url.QueryEscape(query), g.queryParam)
	feed, err := g.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		g.log.Warn("Failed to parse news feed", logger.ErrorField(err), logger.StringField("query", query))
		return nil
	}

	items := make([]entity.NewsItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		source := ""
		if item.Custom != nil {
			source = item.Custom["source"]
		}
		if source == "" && feed.Title != "" {
			source = sourceFromTitle(title)
		}
		items = append(items, entity.NewsItem{
			Title:       title,
			Source:      source,
			URL:         item.Link,
			PublishedAt: item.PublishedParsed,
			Reliability: reliabilityFor(source),
		})
	}

	g.cache.Set(cacheKey, items, gocache.DefaultExpiration)
	return dedupeNews(items, limit)
}

// FetchSummary fetches the article behind the headline and extracts a short
// readable summary. Any failure returns an empty string.
func (g *GoogleNewsClient) FetchSummary(ctx context.Context, articleURL string) string {
	if articleURL == "" {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}
	doc, err := readability.NewDocument(string(body))
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(stripTags(doc.Content()))
	return utils.TruncateText(text, 300)
}

// Google News appends " - <source>" to headline titles.
func sourceFromTitle(title string) string {
	if idx := strings.LastIndex(title, " - "); idx > 0 {
		return strings.TrimSpace(title[idx+3:])
	}
	return ""
}

func reliabilityFor(source string) float64 {
	for name, weight := range sourceReliability {
		if strings.Contains(source, name) {
			return weight
		}
	}
	return 0.5
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

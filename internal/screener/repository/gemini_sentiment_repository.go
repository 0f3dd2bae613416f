package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jongga-screener/internal/entity"
	screenercfg "jongga-screener/internal/screener/config"
	"jongga-screener/internal/screener/dto"
	"jongga-screener/internal/screener/scorer"
	"jongga-screener/pkg/logger"
	"jongga-screener/pkg/ratelimit"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// SentimentRepository scores a candidate's headline set. It satisfies the
// generator's SentimentAnalyzer contract.
type SentimentRepository interface {
	Analyze(ctx context.Context, stock entity.StockSnapshot, news []entity.NewsItem) (*scorer.Sentiment, error)
}

// geminiSentimentRepository scores headline sets through the Google Gemini
// API, implementing the generator's SentimentAnalyzer contract. Budget
// enforcement combines a per-request limiter and a token-per-minute limiter.
type geminiSentimentRepository struct {
	client         *http.Client
	cfg            *screenercfg.Config
	logger         *logger.Logger
	tokenLimiter   *ratelimit.TokenLimiter
	requestLimiter *rate.Limiter
	genAiClient    *genai.Client
}

// NewGeminiSentimentRepository creates a Gemini-backed sentiment analyzer.
func NewGeminiSentimentRepository(cfg *screenercfg.Config, log *logger.Logger, genAiClient *genai.Client) (SentimentRepository, error) {
	if cfg.Gemini.MaxRequestPerMinute <= 0 {
		return nil, fmt.Errorf("gemini.max_request_per_minute must be positive")
	}
	secondsPerRequest := time.Minute / time.Duration(cfg.Gemini.MaxRequestPerMinute)

	return &geminiSentimentRepository{
		client:         &http.Client{Timeout: 90 * time.Second},
		cfg:            cfg,
		logger:         log,
		tokenLimiter:   ratelimit.NewTokenLimiter(cfg.Gemini.MaxTokenPerMinute),
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 1),
		genAiClient:    genAiClient,
	}, nil
}

// Analyze asks the model for a 0-3 catalyst score over the headline set.
func (r *geminiSentimentRepository) Analyze(ctx context.Context, stock entity.StockSnapshot, news []entity.NewsItem) (*scorer.Sentiment, error) {
	prompt := buildSentimentPrompt(stock, news)

	geminiResp, err := r.executeRequest(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result, err := parseSentimentResponse(geminiResp)
	if err != nil {
		return nil, err
	}
	return &scorer.Sentiment{Score: result.Score, Reason: result.Reason}, nil
}

func (r *geminiSentimentRepository) executeRequest(ctx context.Context, prompt string) (*dto.GeminiAPIResponse, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, "user"),
	}
	tokenResp, err := r.genAiClient.Models.CountTokens(ctx, r.cfg.Gemini.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count tokens: %w", err)
	}

	r.logger.Debug("Gemini token count",
		logger.IntField("total_tokens", int(tokenResp.TotalTokens)),
		logger.IntField("remaining", r.tokenLimiter.GetRemaining()),
	)

	if err := r.tokenLimiter.Wait(ctx, int(tokenResp.TotalTokens)); err != nil {
		return nil, fmt.Errorf("failed to wait for token limit: %w", err)
	}
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for request limit: %w", err)
	}

	payload := dto.GeminiAPIRequest{
		Contents: []dto.Content{{Parts: []dto.Part{{Text: prompt}}}},
	}
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	apiURL := fmt.Sprintf("%s/%s:generateContent?key=%s", r.cfg.Gemini.BaseURL, r.cfg.Gemini.Model, r.cfg.Gemini.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Gemini API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("received non-OK response from Gemini API: %d - %s", resp.StatusCode, string(body))
	}

	var geminiResp dto.GeminiAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return &geminiResp, nil
}

func parseSentimentResponse(resp *dto.GeminiAPIResponse) (*dto.NewsSentimentResult, error) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("invalid response from Gemini API: no content found")
	}

	jsonString := resp.Candidates[0].Content.Parts[0].Text
	jsonString = strings.Trim(jsonString, "`json\n`")

	var result dto.NewsSentimentResult
	if err := json.Unmarshal([]byte(jsonString), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sentiment result: %w", err)
	}
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 3 {
		result.Score = 3
	}
	return &result, nil
}

func buildSentimentPrompt(stock entity.StockSnapshot, news []entity.NewsItem) string {
	var b strings.Builder
	b.WriteString("You are a trading analyst. Rate the catalyst quality of the following headlines for the stock ")
	fmt.Fprintf(&b, "%s (%s, %s) on an integer scale 0-3, where 3 is a strong fresh catalyst ", stock.Name, stock.Code, stock.Market)
	b.WriteString("(new contract, earnings surprise, breakthrough) and 0 is clearly negative (dilution, lawsuit, probe).\n")
	b.WriteString("Headlines may be in Korean or Japanese.\n\nHeadlines:\n")
	for _, item := range news {
		fmt.Fprintf(&b, "- %s", item.Title)
		if item.Source != "" {
			fmt.Fprintf(&b, " (%s)", item.Source)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with JSON only: {\"score\": <0-3>, \"reason\": \"<one short sentence>\"}")
	return b.String()
}

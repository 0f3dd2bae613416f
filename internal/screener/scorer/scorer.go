package scorer

import (
	"math"

	"jongga-screener/internal/entity"
	screenercfg "jongga-screener/internal/screener/config"
)

// Scorer turns one candidate's market evidence into a score breakdown, a
// checklist of evidence flags and a letter grade. It is pure: no I/O, no
// shared state, deterministic for identical inputs.
type Scorer interface {
	Calculate(stock entity.StockSnapshot, bars []entity.PriceBar, news []entity.NewsItem, supply entity.SupplyDemand, sentiment *Sentiment) (entity.ScoreBreakdown, entity.Checklist)
	DetermineGrade(stock entity.StockSnapshot, score entity.ScoreBreakdown) entity.Grade
}

type scorer struct {
	rubric screenercfg.Rubric
	news   NewsPolicy
}

// NewScorer creates a scorer for one market rubric. When policy is nil the
// keyword-matching default is used.
func NewScorer(rubric screenercfg.Rubric, policy NewsPolicy) Scorer {
	if policy == nil {
		policy = NewKeywordPolicy(rubric.PositiveKeywords, rubric.NegativeKeywords)
	}
	return &scorer{rubric: rubric, news: policy}
}

// Calculate builds the 12-point base breakdown plus the 0-3 technical bonus.
// Each checklist flag is set from the same evidence as its sub-score.
func (s *scorer) Calculate(stock entity.StockSnapshot, bars []entity.PriceBar, news []entity.NewsItem, supply entity.SupplyDemand, sentiment *Sentiment) (entity.ScoreBreakdown, entity.Checklist) {
	var (
		score     entity.ScoreBreakdown
		checklist entity.Checklist
	)

	score.News, checklist.HasNews, checklist.NewsSources = s.scoreNews(news, sentiment)
	if sentiment != nil {
		score.Reason = sentiment.Reason
	}
	score.Volume, checklist.VolumeSurge = s.scoreVolume(stock)
	score.Chart, checklist.IsNewHigh, checklist.IsBreakout = s.scoreChart(stock, bars)
	score.Candle = scoreCandle(bars)
	score.Consolidation = scoreConsolidation(bars)
	score.Supply, checklist.SupplyPositive = scoreSupply(supply)
	score.Technical = scoreTechnical(bars)

	return score, checklist
}

// DetermineGrade maps the total onto the configured cutoffs. A weak total
// can still earn B on a strong same-day move.
func (s *scorer) DetermineGrade(stock entity.StockSnapshot, score entity.ScoreBreakdown) entity.Grade {
	total := score.Total()
	g := s.rubric.Grading
	switch {
	case total >= g.SMin:
		return entity.GradeS
	case total >= g.AMin:
		return entity.GradeA
	case total >= g.BMin || stock.ChangePct >= g.BChangePct:
		return entity.GradeB
	default:
		return entity.GradeC
	}
}

func (s *scorer) scoreNews(news []entity.NewsItem, sentiment *Sentiment) (int, bool, []string) {
	if len(news) == 0 {
		return 1, false, nil
	}
	if sentiment != nil {
		var sources []string
		for _, item := range news {
			if item.Source != "" {
				sources = append(sources, item.Source)
			}
			if len(sources) == 3 {
				break
			}
		}
		clipped := sentiment.Score
		if clipped > 3 {
			clipped = 3
		}
		if clipped < 0 {
			clipped = 0
		}
		return clipped, clipped >= 1, sources
	}
	return s.news.ScoreNews(news)
}

func (s *scorer) scoreVolume(stock entity.StockSnapshot) (int, bool) {
	tiers := s.rubric.VolumeTiers
	switch {
	case stock.TradingValue >= tiers.Tier3:
		return 3, true
	case stock.TradingValue >= tiers.Tier2:
		return 2, true
	default:
		// The lowest tier floors at 1 so a thin-data session is not
		// fully disqualified.
		return 1, false
	}
}

func (s *scorer) scoreChart(stock entity.StockSnapshot, bars []entity.PriceBar) (int, bool, bool) {
	if len(bars) < 5 {
		return 1, false, false
	}

	var (
		score     int
		isNewHigh bool
		breakout  bool
	)

	if stock.High52W > 0 && stock.Close >= stock.High52W*0.95 {
		isNewHigh = true
		score++
	}

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}
	ma5 := SMA(closes, 5)
	ma20 := SMA(closes, 20)
	if ma20 == 0 {
		ma20 = ma5
	}
	if stock.Close > ma5 || stock.Close > ma20 {
		breakout = true
		score++
	}

	if score < 1 {
		score = 1
	}
	return score, isNewHigh, breakout
}

func scoreCandle(bars []entity.PriceBar) int {
	if len(bars) == 0 {
		return 0
	}
	last := bars[len(bars)-1]
	if last.Close > last.Open {
		return 1
	}
	return 0
}

// scoreConsolidation rewards a tight base in the 7 sessions preceding the
// most recent 3, measured as high-low range over the period low.
func scoreConsolidation(bars []entity.PriceBar) int {
	if len(bars) < 10 {
		return 0
	}
	window := bars[len(bars)-10 : len(bars)-3]

	high := window[0].High
	low := window[0].Low
	for _, b := range window[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	if low <= 0 {
		return 0
	}
	if (high-low)/low*100 <= 20 {
		return 1
	}
	return 0
}

func scoreSupply(supply entity.SupplyDemand) (int, bool) {
	if supply.IsNeutral() {
		// Unknown flow is not confirmed absence of buying.
		return 1, false
	}

	score := 0
	positive := false
	if supply.ForeignBuy5D > 0 {
		score++
		positive = true
	}
	if supply.InstBuy5D > 0 {
		score++
		positive = true
	}
	return score, positive
}

// scoreTechnical is the 0-3 indicator bonus. It needs a longer history than
// the base sub-scores and contributes nothing below 30 bars.
func scoreTechnical(bars []entity.PriceBar) float64 {
	if len(bars) < 30 {
		return 0
	}

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, b.Close)
	}
	current := closes[len(closes)-1]

	var tech float64

	rsi := RSI(closes, 14)
	switch {
	case rsi >= 50 && rsi <= 70:
		tech += 0.5
	case rsi > 70 && rsi <= 80:
		tech += 0.3
	case rsi > 80:
		tech -= 0.2
	case rsi >= 40:
		tech += 0.1
	}

	upper, middle, lower := Bollinger(closes, 20, 2)
	if middle > 0 {
		if current >= upper*0.98 {
			tech += 0.5
		} else if current > middle {
			tech += 0.2
		}
		bandWidth := (upper - lower) / middle
		if bandWidth < 0.1 {
			tech += 0.5
		} else if bandWidth < 0.2 {
			tech += 0.2
		}
	}

	line, signal := MACDProxy(closes, 12, 26)
	if line > signal {
		tech += 0.5
	}
	if line > 0 && signal > 0 {
		tech += 0.3
	}

	if tech < 0 {
		tech = 0
	}
	if tech > 3 {
		tech = 3
	}
	return math.Round(tech*100) / 100
}

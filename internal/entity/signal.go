package entity

import (
	"time"
)

// SignalStatus is the lifecycle state of a signal.
type SignalStatus string

const (
	SignalStatusPending SignalStatus = "pending"
	SignalStatusActive  SignalStatus = "active"
	SignalStatusClosed  SignalStatus = "closed"
	SignalStatusExpired SignalStatus = "expired"
)

// ScoreBreakdown carries the per-factor sub-scores. News, Volume, Chart,
// Candle, Consolidation and Supply form the 12-point base; Technical is the
// 0-3 indicator bonus on top of it.
type ScoreBreakdown struct {
	News          int     `json:"news"`
	Volume        int     `json:"volume"`
	Chart         int     `json:"chart"`
	Candle        int     `json:"candle"`
	Consolidation int     `json:"consolidation"`
	Supply        int     `json:"supply"`
	Technical     float64 `json:"technical"`
	Reason        string  `json:"reason,omitempty"`
}

// Total is the sum of all sub-scores including the technical bonus.
func (s ScoreBreakdown) Total() float64 {
	base := s.News + s.Volume + s.Chart + s.Candle + s.Consolidation + s.Supply
	return float64(base) + s.Technical
}

// Checklist holds the boolean evidence flags backing a ScoreBreakdown. Each
// flag is set from the same evidence as the corresponding sub-score, never
// recomputed independently.
type Checklist struct {
	HasNews        bool     `json:"has_news"`
	NewsSources    []string `json:"news_sources,omitempty"`
	IsNewHigh      bool     `json:"is_new_high"`
	IsBreakout     bool     `json:"is_breakout"`
	SupplyPositive bool     `json:"supply_positive"`
	VolumeSurge    bool     `json:"volume_surge"`
}

// PositionPlan is the risk-derived sizing for one signal. A Grade C plan
// always has zero quantity and zero risk.
type PositionPlan struct {
	EntryPrice   float64 `json:"entry_price"`
	StopPrice    float64 `json:"stop_price"`
	TargetPrice  float64 `json:"target_price"`
	RiskValue    float64 `json:"risk_value"`
	PositionSize float64 `json:"position_size"`
	Quantity     int64   `json:"quantity"`
	RMultiplier  float64 `json:"r_multiplier"`
}

// Signal is one qualifying stock with its score, checklist, sizing and news.
// Score, Checklist, Plan and News persist as jsonb columns.
type Signal struct {
	ID           int64          `json:"id"`
	StockCode    string         `json:"stock_code"`
	StockName    string         `json:"stock_name"`
	Market       string         `json:"market"`
	Sector       string         `json:"sector"`
	SignalDate   time.Time      `json:"signal_date"`
	Grade        Grade          `json:"grade"`
	Score        ScoreBreakdown `json:"score" gorm:"serializer:json;type:jsonb"`
	Checklist    Checklist      `json:"checklist" gorm:"serializer:json;type:jsonb"`
	Plan         PositionPlan   `json:"plan" gorm:"serializer:json;type:jsonb"`
	News         []NewsItem     `json:"news" gorm:"serializer:json;type:jsonb"`
	CurrentPrice float64        `json:"current_price"`
	ReturnPct    float64        `json:"return_pct"`
	TradingValue int64          `json:"trading_value"`
	ChangePct    float64        `json:"change_pct"`
	Status       SignalStatus   `json:"status"`
	ExitReason   string         `json:"exit_reason,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Signal) TableName() string {
	return "signals"
}

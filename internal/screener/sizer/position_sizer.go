package sizer

import (
	"math"

	"jongga-screener/internal/entity"
	screenercfg "jongga-screener/internal/screener/config"
)

// PositionSizer derives a risk-based position plan from an entry price and a
// grade. Deterministic, no I/O.
type PositionSizer interface {
	Calculate(entryPrice float64, grade entity.Grade) entity.PositionPlan
}

type positionSizer struct {
	capital      float64
	riskFraction float64
	capFraction  float64
	rubric       screenercfg.Rubric
}

// NewPositionSizer creates a sizer bound to one market rubric and the
// run-level capital settings.
func NewPositionSizer(screener screenercfg.Screener, rubric screenercfg.Rubric) PositionSizer {
	return &positionSizer{
		capital:      screener.Capital,
		riskFraction: screener.RiskFraction,
		capFraction:  screener.PositionCapFraction,
		rubric:       rubric,
	}
}

// Calculate sizes the position so that a stop-out loses at most the grade's
// share of the per-trade risk budget, then clamps the allocation to the
// position cap. Grade C always yields a zero-quantity plan.
func (p *positionSizer) Calculate(entryPrice float64, grade entity.Grade) entity.PositionPlan {
	stop := entryPrice * (1 - p.rubric.StopLossPct)
	target := entryPrice * (1 + p.rubric.TakeProfitPct)
	rMultiplier := p.rubric.Grading.RMultiplierFor(string(grade))

	plan := entity.PositionPlan{
		EntryPrice:  entryPrice,
		StopPrice:   stop,
		TargetPrice: target,
		RMultiplier: rMultiplier,
	}
	if !grade.Tradable() || rMultiplier <= 0 || entryPrice <= 0 {
		return plan
	}

	perShareRisk := entryPrice - stop
	if perShareRisk <= 0 {
		perShareRisk = entryPrice * p.rubric.StopLossPct
	}

	riskBudget := p.capital * p.riskFraction * rMultiplier
	quantity := int64(math.Floor(riskBudget / perShareRisk))
	if quantity < 1 {
		quantity = 1
	}

	positionCap := p.capital * p.capFraction
	if float64(quantity)*entryPrice > positionCap {
		quantity = int64(math.Floor(positionCap / entryPrice))
	}
	if quantity < 0 {
		quantity = 0
	}

	plan.Quantity = quantity
	plan.PositionSize = float64(quantity) * entryPrice
	plan.RiskValue = float64(quantity) * perShareRisk
	return plan
}

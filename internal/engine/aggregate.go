package engine

import (
	"math"

	"github.com/openargument/reasonrank/internal/model"
)

// sigmoidScore maps a signed pro/con balance onto (0,100):
// 100 / (1 + e^(-balance/scale)). Zero balance lands exactly on the
// neutral midpoint, and no finite balance reaches either bound.
func sigmoidScore(balance, scale float64) float64 {
	return model.ScoreMax / (1 + math.Exp(-balance/scale))
}

// depthDiscount attenuates contributions by how deep in the recursion
// they were attached: discount(d) = 1 + decay*d. Depth 0 (direct
// attachment) is never discounted; decay 1 reproduces the 1/(d+1) law.
func depthDiscount(decay float64, depth int) float64 {
	return 1 + decay*float64(depth)
}

// sideTotals accumulates the supporting and opposing contribution mass
// for one dimension. Both totals are non-negative; the balance is their
// difference.
type sideTotals struct {
	pro float64
	con float64
}

// aggregateDimensions turns per-dimension totals into the overall score.
//
// A claim with no declared dimensions is scored on the flat pro/con
// balance of the implicit overall bucket. A claim with declared
// dimensions gets the weight-normalized mean of its dimension scores;
// the implicit overall bucket joins the mean with weight 1 when any
// unscoped items landed in it.
func aggregateDimensions(declared []model.Dimension, totals map[model.DimensionKind]sideTotals, scale float64) (float64, []model.DimensionBreakdown) {
	if len(declared) == 0 {
		t := totals[model.DimensionOverall]
		balance := t.pro - t.con
		score := sigmoidScore(balance, scale)
		return score, []model.DimensionBreakdown{{
			Kind:     model.DimensionOverall,
			Weight:   1,
			Score:    score,
			ProTotal: t.pro,
			ConTotal: t.con,
			Balance:  balance,
		}}
	}

	type axis struct {
		kind   model.DimensionKind
		weight float64
	}
	axes := make([]axis, 0, len(declared)+1)
	declaredOverall := false
	for _, d := range declared {
		axes = append(axes, axis{kind: d.Kind, weight: d.Weight})
		if d.Kind == model.DimensionOverall {
			declaredOverall = true
		}
	}
	if _, ok := totals[model.DimensionOverall]; ok && !declaredOverall {
		axes = append(axes, axis{kind: model.DimensionOverall, weight: 1})
	}

	var weightSum float64
	for _, a := range axes {
		weightSum += a.weight
	}

	var overall float64
	breakdowns := make([]model.DimensionBreakdown, 0, len(axes))
	for _, a := range axes {
		t := totals[a.kind]
		balance := t.pro - t.con
		score := sigmoidScore(balance, scale)
		share := a.weight / weightSum
		overall += share * score
		breakdowns = append(breakdowns, model.DimensionBreakdown{
			Kind:     a.kind,
			Weight:   share,
			Score:    score,
			ProTotal: t.pro,
			ConTotal: t.con,
			Balance:  balance,
		})
	}
	return overall, breakdowns
}

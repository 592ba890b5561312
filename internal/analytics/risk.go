package analytics

import (
	"github.com/quantumnexus/journal-engine/internal/config"
)

// RiskScore composes a 0-100 score from normalized max drawdown, symbol
// concentration and the recent loss-streak length. Each component is
// normalized to [0,1] against its configured bound, weighted, and the
// weighted mean scaled to 100. Identical inputs and weights always produce
// the identical score.
func RiskScore(maxDrawdown, concentration float64, lossStreak int, w config.RiskWeights) float64 {
	total := w.DrawdownWeight + w.ConcentrationWeight + w.LossStreakWeight
	if total == 0 {
		return 0
	}

	normDD := clamp(maxDrawdown/w.DrawdownBound, 0, 1)
	normConc := clamp(concentration, 0, 1)
	normStreak := clamp(float64(lossStreak)/float64(w.LossStreakBound), 0, 1)

	score := 100 * (w.DrawdownWeight*normDD + w.ConcentrationWeight*normConc + w.LossStreakWeight*normStreak) / total
	return clamp(score, 0, 100)
}

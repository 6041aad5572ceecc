package syncsession

import (
	"math"

	"github.com/himanishpuri/AcousticSync/pkg/models"
)

// Weights of the confidence terms.
const (
	weightPeak      = 0.4
	weightSharpness = 0.2
	weightSNR       = 0.2
	weightAgreement = 0.2

	// ambiguityPenalty scales the score of edges flagged ambiguous.
	ambiguityPenalty = 0.6
	// snrFullScaleDB is the SNR at which the quality term saturates.
	snrFullScaleDB = 20.0
	// agreementScale is the lag disagreement, in seconds, that halves agreement.
	agreementScale = 2.0

	// Peak baselines for edges without a correlation. A metadata-only pair
	// clears medium strictness but never high.
	anchorPeak   = 0.9
	metadataPeak = 0.7
)

// ConfidenceScorer assigns final confidences and clip match status.
type ConfidenceScorer struct {
	threshold float64
	log       Logger
}

func NewConfidenceScorer(cfg *Config) *ConfidenceScorer {
	return &ConfidenceScorer{threshold: cfg.Strictness.Threshold(), log: cfg.Logger}
}

// ScoreEdge returns the weighted confidence of e. timeUnknown marks edges
// touching a clip whose start time came from a failed probe.
func ScoreEdge(e models.MatchEdge, timeUnknown bool) float64 {
	var peak, sharp, quality, agree float64
	switch e.Type {
	case models.MatchAnchor:
		peak, sharp, quality, agree = anchorPeak, 1, 1, 1
	case models.MatchMetadata:
		peak, sharp, quality, agree = metadataPeak, 0.5, 0.5, 1
		if timeUnknown {
			quality, agree = 0, 0.5
		}
	default:
		if e.PeakValue != nil {
			peak = clamp01(*e.PeakValue)
		}
		sharp = 1
		if e.SecondaryPeak != nil {
			sharp = 0
			if peak > 0 {
				sharp = clamp01(1 - *e.SecondaryPeak/peak)
			}
		}
		quality = 0.5
		if e.SNR != nil {
			quality = clamp01(*e.SNR / snrFullScaleDB)
		}
		agree = 0.5
		if e.PriorOffsetSeconds != nil {
			agree = 1 / (1 + math.Abs(e.OffsetSeconds-*e.PriorOffsetSeconds)/agreementScale)
		}
	}

	score := weightPeak*peak + weightSharpness*sharp + weightSNR*quality + weightAgreement*agree
	if e.Ambiguous {
		score *= ambiguityPenalty
	}
	return clamp01(score)
}

// Accepted reports whether a scored edge clears the strictness threshold.
func (s *ConfidenceScorer) Accepted(e models.MatchEdge) bool {
	return e.Confidence >= s.threshold
}

// Score sets every edge's confidence, then marks clips matched when at least
// one of their edges is accepted. Clip confidence is the best edge score.
func (s *ConfidenceScorer) Score(st *runState) {
	accepted := 0
	for i := range st.edges {
		e := &st.edges[i]
		tu := st.clips[e.ClipA].TimeUnknown || st.clips[e.ClipB].TimeUnknown
		e.Confidence = ScoreEdge(*e, tu)
		if s.Accepted(*e) {
			accepted++
		}
	}

	for _, id := range st.clipOrder {
		c := st.clips[id]
		c.Status = models.StatusUnmatched
		c.Confidence = 0
	}
	for _, e := range st.edges {
		for _, id := range []string{e.ClipA, e.ClipB} {
			c := st.clips[id]
			c.Confidence = math.Max(c.Confidence, e.Confidence)
			if s.Accepted(e) {
				c.Status = models.StatusMatched
			}
		}
	}
	s.log.Infof("Scored %d edges, %d accepted at threshold %.2f", len(st.edges), accepted, s.threshold)
}

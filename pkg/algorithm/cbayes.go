package algorithm

import "math"

// CBayesAlgorithm is Complementary Naive Bayes. Each category is scored
// against the pooled counts of every other category, which keeps large
// categories from dominating through sheer training mass:
//
//	θ(c,f)   = log((Σ_{c'≠c} count(c',f) + α) / (Σ_{c'≠c} total(c') + α·V))
//	w(c,f)   = θ(c,f) / Σ_{c''} |θ(c'',f)|
//	score(c) = Σ tf(f) · w(c,f), divided by the L2 norm over categories
//
// A low score means the document is unlike the complement, so the lowest
// score wins.
type CBayesAlgorithm struct{}

func (CBayesAlgorithm) Kind() Kind {
	return CBayes
}

func (CBayesAlgorithm) Scores(snap *Snapshot, evidence []Evidence) []float64 {
	alpha := snap.Alpha
	vocab := float64(snap.Vocabulary)
	grand := float64(snap.GrandTotal())
	n := len(snap.Categories)

	denoms := make([]float64, n)
	for i := range denoms {
		denoms[i] = grand - float64(snap.Totals[i]) + alpha*vocab
	}

	scores := make([]float64, n)
	theta := make([]float64, n)
	for _, e := range evidence {
		var all int64
		for _, c := range e.Counts {
			all += c
		}

		var norm float64
		for i := range theta {
			theta[i] = math.Log((float64(all-e.Counts[i]) + alpha) / denoms[i])
			norm += math.Abs(theta[i])
		}
		if norm == 0 {
			continue
		}

		for i := range scores {
			scores[i] += e.Weight * theta[i] / norm
		}
	}

	var length float64
	for _, s := range scores {
		length += s * s
	}
	if length > 0 {
		length = math.Sqrt(length)
		for i := range scores {
			scores[i] /= length
		}
	}

	return scores
}

func (CBayesAlgorithm) Better(a, b float64) bool {
	return a < b
}

func (CBayesAlgorithm) NoEvidence() float64 {
	return math.Inf(1)
}

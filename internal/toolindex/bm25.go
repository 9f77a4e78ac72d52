package toolindex

import "math"

// computeIDF returns the log-smoothed inverse document frequency for every
// token across corpus, recomputed in full after every batch add per spec §4.E.
func computeIDF(corpus [][]string) map[string]float64 {
	n := len(corpus)
	if n == 0 {
		return map[string]float64{}
	}
	df := map[string]int{}
	for _, doc := range corpus {
		seen := map[string]bool{}
		for _, tok := range doc {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}
	idf := make(map[string]float64, len(df))
	for tok, freq := range df {
		idf[tok] = math.Log(1 + (float64(n)-float64(freq)+0.5)/(float64(freq)+0.5))
	}
	return idf
}

// bm25Score scores one document against a query's tokens using Okapi BM25
// (k1=1.5, b=0.75) per spec §4.E.
func bm25Score(queryTokens, docTokens []string, idf map[string]float64, avgDocLen float64) float64 {
	if len(queryTokens) == 0 || len(docTokens) == 0 {
		return 0
	}
	docLen := float64(len(docTokens))
	tf := map[string]int{}
	for _, tok := range docTokens {
		tf[tok]++
	}

	denom := avgDocLen
	if denom < 1 {
		denom = 1
	}

	var score float64
	for _, tok := range queryTokens {
		count, ok := tf[tok]
		if !ok {
			continue
		}
		numerator := float64(count) * (bm25K1 + 1)
		denominator := float64(count) + bm25K1*(1-bm25B+bm25B*docLen/denom)
		score += idf[tok] * (numerator / denominator)
	}
	return score
}

// recencyBoost is the optional additive usage-frequency boost: a tool used
// more often scores slightly higher, capped at 0.5 (spec §4.E).
func recencyBoost(usageCount int64) float64 {
	if usageCount <= 0 {
		return 0
	}
	boost := math.Log1p(float64(usageCount)) * 0.1
	if boost > 0.5 {
		return 0.5
	}
	return boost
}

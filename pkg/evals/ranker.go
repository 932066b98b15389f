package evals

import "sort"

// Rank returns the results ordered by score, highest first. Equal scores
// keep their input order. The input slice is left untouched.
func Rank(results []EvaluationResult) []EvaluationResult {
	ranked := make([]EvaluationResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Summarize computes aggregate statistics over a run's results.
func Summarize(results []EvaluationResult) *RunSummary {
	summary := &RunSummary{
		TotalPrompts: len(results),
		ByScore:      make(map[int]int),
	}
	if len(results) == 0 {
		return summary
	}

	total, perfect := 0, 0
	for _, r := range results {
		total += r.Score
		summary.ByScore[r.Score]++
		if r.Score > summary.BestScore {
			summary.BestScore = r.Score
		}
		if r.Score == MaxScore {
			perfect++
		}
		if r.Source == SourceFallback {
			summary.Fallbacks++
		}
	}
	summary.AvgScore = float64(total) / float64(len(results))
	summary.PerfectRate = float64(perfect) / float64(len(results))
	return summary
}

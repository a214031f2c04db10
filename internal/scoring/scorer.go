// Package scoring grades submitted answers by exact match and by an LLM judge.
package scoring

import "strings"

// ExactMatch compares answers after trimming whitespace and lowercasing.
// An absent answer on either side never matches.
func ExactMatch(submitted, expected string) bool {
	s := strings.ToLower(strings.TrimSpace(submitted))
	e := strings.ToLower(strings.TrimSpace(expected))
	if s == "" || e == "" {
		return false
	}
	return s == e
}

// Aggregate returns the fraction of true results, 0.0 for an empty slice.
func Aggregate(results []bool) float64 {
	if len(results) == 0 {
		return 0.0
	}
	correct := 0
	for _, r := range results {
		if r {
			correct++
		}
	}
	return float64(correct) / float64(len(results))
}

// Mean averages a float slice, 0.0 when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

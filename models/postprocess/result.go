// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-firewatch/images"
)

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}

// SortByScore orders results by descending score. Equal scores keep their
// original relative order.
func SortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// FilterByScore drops every result scoring below threshold.
//
// Arguments:
//   - results: The candidate results.
//   - threshold: The minimum score kept.
//
// Returns:
//   - A new slice holding the results at or above threshold.
func FilterByScore(results []Result, threshold float32) []Result {
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}

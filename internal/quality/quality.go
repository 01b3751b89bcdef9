// Package quality scores the content quality of a fetch run.
package quality

// MaxScore is the upper bound of Score.
const MaxScore = 100

const baseScore = 50

// Score returns a 0-100 quality score from the number of items in a run,
// their average plain-text content length and the share of items that carry
// an image. Bonuses are additive and the result is capped at MaxScore.
func Score(itemCount int, avgContentLength, imageRatio float64) int {
	score := baseScore

	switch {
	case itemCount >= 10:
		score += 20
	case itemCount >= 5:
		score += 10
	case itemCount >= 1:
		score += 5
	}

	switch {
	case avgContentLength >= 1000:
		score += 30
	case avgContentLength >= 500:
		score += 20
	case avgContentLength >= 200:
		score += 10
	}

	switch {
	case imageRatio >= 0.8:
		score += 20
	case imageRatio >= 0.5:
		score += 15
	case imageRatio >= 0.3:
		score += 10
	case imageRatio > 0:
		score += 5
	}

	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Package rating derives aggregate statistics from reviews.
package rating

import (
	"math"

	"github.com/KingHarry001/portfolio/internal/domain"
)

// Aggregate computes count, average and star distribution in one pass.
// The average is rounded to one decimal place and is 0 for no reviews. The
// distribution always has an entry for every star from MinRating to
// MaxRating; ratings outside that range are counted in the total and average
// but have no bucket.
func Aggregate(itemID string, reviews []domain.Review) domain.RatingStats {
	stats := domain.RatingStats{
		ItemID:       itemID,
		Distribution: make(map[int]int, domain.MaxRating),
	}
	for star := domain.MinRating; star <= domain.MaxRating; star++ {
		stats.Distribution[star] = 0
	}

	sum := 0
	for _, r := range reviews {
		sum += r.Rating
		if domain.ValidRating(r.Rating) {
			stats.Distribution[r.Rating]++
		}
	}

	stats.TotalReviews = len(reviews)
	if stats.TotalReviews > 0 {
		stats.AverageRating = Round1(float64(sum) / float64(stats.TotalReviews))
	}
	return stats
}

// Round1 rounds v to one decimal place, halves away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

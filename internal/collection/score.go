package collection

import (
	"math"

	"CompetitorReports/internal/domain"
)

const (
	productShare    = 40.0
	competitorShare = 60.0
	// maxCompetitorWeight is the per-competitor weight of a fresh capture.
	maxCompetitorWeight = 0.6
)

func productQuality(t domain.Tier) float64 {
	switch t {
	case domain.TierFormData, domain.TierFreshSnapshot:
		return 1.0
	case domain.TierFastCollection:
		return 0.9
	case domain.TierExistingSnapshot:
		return 0.75
	case domain.TierBasicMetadata:
		return 0.5
	default:
		return 0
	}
}

func competitorWeight(t domain.Tier) float64 {
	switch t {
	case domain.TierFormData, domain.TierFreshSnapshot:
		return maxCompetitorWeight
	case domain.TierFastCollection:
		return 0.5
	case domain.TierExistingSnapshot:
		return 0.4
	case domain.TierBasicMetadata:
		return 0.2
	default:
		return 0
	}
}

// CompletenessScore blends product quality (40%) with competitor coverage
// (60%). Without any product the competitor share is scaled to 100%.
func CompletenessScore(product *domain.CollectionResult, competitors []domain.CollectionResult) int {
	var competitorAvg float64
	for _, c := range competitors {
		competitorAvg += competitorWeight(c.Tier)
	}
	if len(competitors) > 0 {
		competitorAvg /= float64(len(competitors))
	}

	var score float64
	if product == nil {
		score = competitorAvg / maxCompetitorWeight * 100
	} else {
		score = productShare*productQuality(product.Tier) + competitorShare*competitorAvg/maxCompetitorWeight
	}
	return clampScore(score)
}

func clampScore(v float64) int {
	rounded := int(math.Round(v))
	switch {
	case rounded < 0:
		return 0
	case rounded > 100:
		return 100
	default:
		return rounded
	}
}

// SummaryFreshness labels where the collected data came from overall.
func SummaryFreshness(results []domain.CollectionResult) domain.DataFreshness {
	if len(results) == 0 {
		return domain.FreshnessBasic
	}
	var fresh, existing, basic int
	for _, r := range results {
		switch {
		case r.Tier.Fresh():
			fresh++
		case r.Tier == domain.TierExistingSnapshot:
			existing++
		default:
			basic++
		}
	}
	switch len(results) {
	case fresh:
		return domain.FreshnessNew
	case existing:
		return domain.FreshnessExisting
	case basic:
		return domain.FreshnessBasic
	default:
		return domain.FreshnessMixed
	}
}

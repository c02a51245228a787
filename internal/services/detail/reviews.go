package detail

import (
	"strings"

	"github.com/ternarybob/prospector/internal/models"
)

// Cohort is one of the two review samples. Negative is reached by the three-step sort
// toggle, Positive by the two-step one.
type Cohort int

const (
	CohortNegative Cohort = iota
	CohortPositive
)

func (c Cohort) String() string {
	if c == CohortNegative {
		return "negative"
	}
	return "positive"
}

// ArrowDowns is how many times the sort menu is stepped down before Enter
func (c Cohort) ArrowDowns() int {
	if c == CohortNegative {
		return 3
	}
	return 2
}

// Review retry modes
const (
	// RetryReplay resamples both cohorts when either came back empty
	RetryReplay = "replay"
	// RetryPerCohort resamples only the empty cohorts
	RetryPerCohort = "per_cohort"
)

// morePlaceholder is the expand-button label that shows up among review texts
const morePlaceholder = "More"

// SampleReviews dedupes texts in order, drops empties and the expand placeholder, and keeps at most five
func SampleReviews(texts []string) []string {
	seen := make(map[string]struct{}, len(texts))
	samples := make([]string, 0, models.ReviewSlots)
	for _, text := range texts {
		if strings.TrimSpace(text) == "" || strings.TrimSpace(text) == morePlaceholder {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		samples = append(samples, text)
		if len(samples) == models.ReviewSlots {
			break
		}
	}
	return samples
}

// retryPlan lists the cohorts to sample again after a first pass
func retryPlan(mode string, negative, positive []string) []Cohort {
	switch mode {
	case RetryPerCohort:
		var plan []Cohort
		if len(negative) == 0 {
			plan = append(plan, CohortNegative)
		}
		if len(positive) == 0 {
			plan = append(plan, CohortPositive)
		}
		return plan
	default:
		if len(negative) == 0 || len(positive) == 0 {
			return []Cohort{CohortNegative, CohortPositive}
		}
		return nil
	}
}

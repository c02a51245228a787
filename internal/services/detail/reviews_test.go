package detail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleReviews(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  []string
	}{
		{"empty", nil, []string{}},
		{"dedupes in order", []string{"a", "b", "a", "c"}, []string{"a", "b", "c"}},
		{"drops placeholder", []string{" More", "a", "More", ""}, []string{"a"}},
		{"caps at five", []string{"1", "2", "3", "4", "5", "6", "7"}, []string{"1", "2", "3", "4", "5"}},
		{"cap counts unique entries", []string{"1", "1", "2", "2", "3", "4", "5", "6"}, []string{"1", "2", "3", "4", "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SampleReviews(tt.texts)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 5)
			assert.NotContains(t, got, "More")
		})
	}
}

// The replay mode reproduces the long-standing behaviour of resampling both cohorts even
// when only one was empty; per_cohort only repeats what is missing.
func TestRetryPlan(t *testing.T) {
	some := []string{"x"}

	assert.Nil(t, retryPlan(RetryReplay, some, some))
	assert.Equal(t, []Cohort{CohortNegative, CohortPositive}, retryPlan(RetryReplay, nil, some))
	assert.Equal(t, []Cohort{CohortNegative, CohortPositive}, retryPlan(RetryReplay, some, nil))
	assert.Equal(t, []Cohort{CohortNegative, CohortPositive}, retryPlan("", nil, nil))

	assert.Nil(t, retryPlan(RetryPerCohort, some, some))
	assert.Equal(t, []Cohort{CohortNegative}, retryPlan(RetryPerCohort, nil, some))
	assert.Equal(t, []Cohort{CohortPositive}, retryPlan(RetryPerCohort, some, nil))
	assert.Equal(t, []Cohort{CohortNegative, CohortPositive}, retryPlan(RetryPerCohort, nil, nil))
}

func TestFieldParsers(t *testing.T) {
	count, err := parseReviewCount("(1,234)")
	assert.NoError(t, err)
	assert.Equal(t, "1234", count)

	_, err = parseReviewCount("lots")
	assert.Error(t, err)

	rating, err := parseRating("4,5 ")
	assert.NoError(t, err)
	assert.Equal(t, "4.5", rating)

	opens, _ := parseOpensAt("Closed ⋅ Opens 9\u202fAM Mon")
	assert.Equal(t, " Opens 9AM Mon", opens)
	opens, _ = parseOpensAt("Open 24 hours")
	assert.Equal(t, "Open 24 hours", opens)
}

func TestChipKeyword(t *testing.T) {
	assert.Equal(t, "shop", chipKeyword(0, "x · In-store shopping and pickup"))
	assert.Equal(t, "pickup", chipKeyword(1, "x · In-store shopping and pickup"))
	assert.Equal(t, "delivery", chipKeyword(2, "x · Delivery, pickup"))
	assert.Equal(t, "", chipKeyword(0, "no separator"))
	assert.Equal(t, "", chipKeyword(3, "x · shop"))
}

func TestMapSocialKind(t *testing.T) {
	assert.Equal(t, "facebook", mapSocialKind("https://www.facebook.com/shop/"))
	assert.Equal(t, "instagram", mapSocialKind("https://www.instagram.com/shop/"))
	assert.Equal(t, "", mapSocialKind("https://www.facebook.com/shop"))
	assert.Equal(t, "", mapSocialKind("https://www.facebook.com/shop/photos/"))
	assert.Equal(t, "", mapSocialKind("https://twitter.com/shop/x"))
}

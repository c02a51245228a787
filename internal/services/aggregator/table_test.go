package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/prospector/internal/models"
)

func merged(name string) models.MergedListing {
	m := models.MergedListing{Detail: models.NewDetailRecord(0)}
	m.Detail.Name = name
	deriveFields(&m, "barber")
	return m
}

func TestColumns_Order(t *testing.T) {
	cols := Columns(false)

	assert.Equal(t, ColName, cols[0])
	assert.Equal(t, "Negative Review 1", cols[12])
	assert.Equal(t, "Positive Review 5", cols[21])
	assert.Equal(t, ColSearchQuery, cols[len(cols)-1])
	assert.NotContains(t, cols, ColEmailMX)
	assert.Equal(t, ColEmailMX, Columns(true)[len(cols)])
}

func TestBuildTable_SingleRowKeepsEveryColumn(t *testing.T) {
	table := BuildTable([]models.MergedListing{merged("Only")}, false)

	assert.Equal(t, Columns(false), table.Columns)
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], len(table.Columns))
}

func TestBuildTable_RendersAtmosphereAndRating(t *testing.T) {
	a := merged("A")
	a.Detail.Atmosphere = []string{"Casual", "Cozy"}
	a.Detail.AverageRating = 4.5
	a.Detail.ReviewCount = 1200
	b := merged("B")

	table := BuildTable([]models.MergedListing{a, b}, false)
	rows := table.Records()

	assert.Equal(t, "Casual, Cozy", rows[0][ColAtmosphere])
	assert.Equal(t, "4.5", rows[0][ColAverageRating])
	assert.Equal(t, "1200", rows[0][ColReviewCount])
	assert.Equal(t, "0", rows[1][ColReviewCount])
}

package models

// AddressComponents is a comma-separated postal address split by position
type AddressComponents struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// MergedListing joins a listing's detail record with its website and social enrichment
type MergedListing struct {
	Detail     DetailRecord     `json:"detail"`
	Enrichment EnrichmentRecord `json:"enrichment"`

	Email            string            `json:"email"`
	AdditionalPhones string            `json:"additional_phones"`
	Social           map[string]string `json:"social"` // platform -> joined links
	BusinessHours    string            `json:"business_hours"`
	Address          AddressComponents `json:"address"`
	FacebookEmail    string            `json:"facebook_email"`
	FacebookIntro    string            `json:"facebook_intro"`
	SearchQuery      string            `json:"search_query"`
	EmailMX          string            `json:"email_mx,omitempty"` // Yes/No when MX verification ran
}

// ReviewCohorts groups the two review samples for the detailed export
type ReviewCohorts struct {
	Negative []string `json:"negative_reviews"`
	Positive []string `json:"positive_reviews"`
}

// MapSocialMedia holds social profiles linked from the map card
type MapSocialMedia struct {
	Facebook  string `json:"facebook"`
	Instagram string `json:"instagram"`
}

// DetailedListing is one entry of the detailed structured export
type DetailedListing struct {
	EnrichmentRecord
	Reviews        ReviewCohorts  `json:"reviews"`
	Atmosphere     []string       `json:"atmosphere"`
	MapSocialMedia MapSocialMedia `json:"map_social_media"`
}

// NewDetailedListing builds the detailed export entry for a merged listing
func NewDetailedListing(m MergedListing) DetailedListing {
	return DetailedListing{
		EnrichmentRecord: m.Enrichment,
		Reviews: ReviewCohorts{
			Negative: m.Detail.NegativeReviews[:],
			Positive: m.Detail.PositiveReviews[:],
		},
		Atmosphere: m.Detail.Atmosphere,
		MapSocialMedia: MapSocialMedia{
			Facebook:  m.Detail.MapFacebook,
			Instagram: m.Detail.MapInstagram,
		},
	}
}

// Table is the tabular form of a dataset
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Records returns each row keyed by column name
func (t Table) Records() []map[string]string {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		record := make(map[string]string, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// Dataset is the final output of the aggregation stage
type Dataset struct {
	SearchQuery string          `json:"search_query"`
	Listings    []MergedListing `json:"listings"`
	Table       Table           `json:"table"` // column-pruned
}

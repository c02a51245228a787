package aggregator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/prospector/internal/models"
)

// Column names of the tabular export, in order
const (
	ColName             = "Names"
	ColWebsite          = "Website"
	ColIntroduction     = "Introduction"
	ColPhone            = "Phone Number"
	ColAddress          = "Address"
	ColReviewCount      = "Review Count"
	ColAverageRating    = "Average Review Count"
	ColStoreShopping    = "Store Shopping"
	ColInStorePickup    = "In Store Pickup"
	ColDelivery         = "Delivery"
	ColType             = "Type"
	ColOpensAt          = "Opens At"
	ColAtmosphere       = "Atmosphere"
	ColMapFacebook      = "Map Facebook"
	ColMapInstagram     = "Map Instagram"
	ColEmail            = "Email"
	ColAdditionalPhones = "Additional_Phones"
	ColBusinessHours    = "Business_Hours"
	ColStreet           = "Street"
	ColCity             = "City"
	ColState            = "State"
	ColPostalCode       = "Postal Code"
	ColFacebookEmail    = "email_1"
	ColFacebookIntro    = "Facebook Intro"
	ColSearchQuery      = "search_query"
	ColEmailMX          = "Email MX"
)

var socialColumns = map[string]string{
	models.PlatformFacebook:  "Facebook",
	models.PlatformInstagram: "Instagram",
	models.PlatformTwitter:   "Twitter",
	models.PlatformLinkedIn:  "Linkedin",
	models.PlatformYouTube:   "Youtube",
}

// Columns returns the full column list before pruning
func Columns(withMX bool) []string {
	cols := []string{
		ColName, ColWebsite, ColIntroduction, ColPhone, ColAddress,
		ColReviewCount, ColAverageRating, ColStoreShopping, ColInStorePickup, ColDelivery,
		ColType, ColOpensAt,
	}
	for i := 1; i <= models.ReviewSlots; i++ {
		cols = append(cols, fmt.Sprintf("Negative Review %d", i))
	}
	for i := 1; i <= models.ReviewSlots; i++ {
		cols = append(cols, fmt.Sprintf("Positive Review %d", i))
	}
	cols = append(cols, ColAtmosphere, ColMapFacebook, ColMapInstagram, ColEmail, ColAdditionalPhones)
	for _, platform := range models.Platforms {
		cols = append(cols, socialColumns[platform])
	}
	cols = append(cols,
		ColBusinessHours, ColStreet, ColCity, ColState, ColPostalCode,
		ColFacebookEmail, ColFacebookIntro, ColSearchQuery,
	)
	if withMX {
		cols = append(cols, ColEmailMX)
	}
	return cols
}

// row renders one merged listing in Columns order
func row(m models.MergedListing, withMX bool) []string {
	d := m.Detail
	out := []string{
		d.Name, d.Website, d.Introduction, d.Phone, d.Address,
		strconv.Itoa(d.ReviewCount),
		strconv.FormatFloat(d.AverageRating, 'f', -1, 64),
		d.StoreShopping, d.InStorePickup, d.Delivery, d.Type, d.OpensAt,
	}
	out = append(out, d.NegativeReviews[:]...)
	out = append(out, d.PositiveReviews[:]...)
	out = append(out, strings.Join(d.Atmosphere, ", "), d.MapFacebook, d.MapInstagram, m.Email, m.AdditionalPhones)
	for _, platform := range models.Platforms {
		value, ok := m.Social[platform]
		if !ok {
			value = models.Absent
		}
		out = append(out, value)
	}
	out = append(out,
		m.BusinessHours, m.Address.Street, m.Address.City, m.Address.State, m.Address.PostalCode,
		m.FacebookEmail, m.FacebookIntro, m.SearchQuery,
	)
	if withMX {
		out = append(out, m.EmailMX)
	}
	return out
}

// BuildTable renders listings and drops every column whose value is the same in all rows.
// Tables with fewer than two rows are left whole.
func BuildTable(listings []models.MergedListing, withMX bool) models.Table {
	columns := Columns(withMX)
	rows := make([][]string, len(listings))
	for i, m := range listings {
		rows[i] = row(m, withMX)
	}
	if len(rows) < 2 {
		return models.Table{Columns: columns, Rows: rows}
	}

	keep := make([]int, 0, len(columns))
	for c := range columns {
		first := rows[0][c]
		for _, r := range rows[1:] {
			if r[c] != first {
				keep = append(keep, c)
				break
			}
		}
	}

	pruned := models.Table{Columns: make([]string, 0, len(keep)), Rows: make([][]string, len(rows))}
	for _, c := range keep {
		pruned.Columns = append(pruned.Columns, columns[c])
	}
	for i, r := range rows {
		out := make([]string, 0, len(keep))
		for _, c := range keep {
			out = append(out, r[c])
		}
		pruned.Rows[i] = out
	}
	return pruned
}

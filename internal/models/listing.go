package models

import "strings"

// Field sentinels. Records are fixed-width; nothing is ever omitted.
const (
	Absent         = "N/A"        // field not found on the page
	Failed         = "Null"       // listing extraction failed as a whole
	FlagYes        = "Yes"
	FlagNo         = "No"
	NoIntroduction = "None Found" // default introduction text
	ReviewSlots    = 5
)

// ListingReference is one directory entry discovered while scrolling the results feed.
// Index is the discovery ordinal and survives concurrent extraction.
type ListingReference struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

// DetailRecord holds the core fields of one listing
type DetailRecord struct {
	Index           int                 `json:"-"`
	Name            string              `json:"name"`
	Website         string              `json:"website"`
	Introduction    string              `json:"introduction"`
	Phone           string              `json:"phone"`
	Address         string              `json:"address"`
	ReviewCount     int                 `json:"review_count"`
	AverageRating   float64             `json:"average_rating"`
	StoreShopping   string              `json:"store_shopping"`
	InStorePickup   string              `json:"in_store_pickup"`
	Delivery        string              `json:"delivery"`
	Type            string              `json:"type"`
	OpensAt         string              `json:"opens_at"`
	NegativeReviews [ReviewSlots]string `json:"negative_reviews"`
	PositiveReviews [ReviewSlots]string `json:"positive_reviews"`
	Atmosphere      []string            `json:"atmosphere"`
	MapFacebook     string              `json:"map_facebook"`
	MapInstagram    string              `json:"map_instagram"`
	Failed          bool                `json:"failed"`
}

// NewDetailRecord returns a record with every field set to its absent value
func NewDetailRecord(index int) DetailRecord {
	return DetailRecord{
		Index:           index,
		Name:            Absent,
		Website:         Absent,
		Introduction:    NoIntroduction,
		Phone:           Absent,
		Address:         Absent,
		StoreShopping:   FlagNo,
		InStorePickup:   FlagNo,
		Delivery:        FlagNo,
		Type:            Absent,
		OpensAt:         Absent,
		NegativeReviews: FillReviewSlots(nil),
		PositiveReviews: FillReviewSlots(nil),
		Atmosphere:      []string{},
		MapFacebook:     Absent,
		MapInstagram:    Absent,
	}
}

// FailedDetailRecord returns the record reported for a listing whose extraction failed
func FailedDetailRecord(index int) DetailRecord {
	var failedSlots [ReviewSlots]string
	for i := range failedSlots {
		failedSlots[i] = Failed
	}
	return DetailRecord{
		Index:           index,
		Name:            Failed,
		Website:         Failed,
		Introduction:    Failed,
		Phone:           Failed,
		Address:         Failed,
		StoreShopping:   FlagNo,
		InStorePickup:   FlagNo,
		Delivery:        FlagNo,
		Type:            Failed,
		OpensAt:         Failed,
		NegativeReviews: failedSlots,
		PositiveReviews: failedSlots,
		Atmosphere:      []string{Failed},
		MapFacebook:     Failed,
		MapInstagram:    Failed,
		Failed:          true,
	}
}

// FillReviewSlots places up to ReviewSlots samples in order and marks the rest absent
func FillReviewSlots(samples []string) [ReviewSlots]string {
	var slots [ReviewSlots]string
	for i := range slots {
		if i < len(samples) {
			slots[i] = samples[i]
		} else {
			slots[i] = Absent
		}
	}
	return slots
}

// IsAbsent reports whether a field value carries no usable data
func IsAbsent(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == Absent || v == Failed
}

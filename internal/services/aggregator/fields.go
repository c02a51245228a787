package aggregator

import (
	"regexp"
	"strings"

	"github.com/ternarybob/prospector/internal/models"
)

var nonEmailChars = regexp.MustCompile(`[^a-z@.]`)

// ParseAddress splits "street, city, STATE POSTAL" by position. Missing parts are Absent.
func ParseAddress(address string) models.AddressComponents {
	components := models.AddressComponents{
		Street:     models.Absent,
		City:       models.Absent,
		State:      models.Absent,
		PostalCode: models.Absent,
	}
	if models.IsAbsent(address) {
		return components
	}

	parts := strings.Split(address, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if parts[0] != "" {
		components.Street = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		components.City = parts[1]
	}
	if len(parts) > 2 {
		fields := strings.Fields(parts[2])
		if len(fields) > 0 {
			components.State = fields[0]
		}
		if len(fields) > 1 {
			components.PostalCode = fields[1]
		}
	}
	return components
}

// CleanEmail lower-cases and keeps only a-z, '@' and '.'. Sentinels pass through.
func CleanEmail(email string) string {
	if email == "" || email == models.Absent || email == models.Failed {
		return email
	}
	return nonEmailChars.ReplaceAllString(strings.ToLower(email), "")
}

// SearchLocality builds "<business phrase>, <postal>, <city>, <state>, US"
func SearchLocality(searchQuery string, address models.AddressComponents) string {
	phrase := searchQuery
	if i := strings.Index(phrase, " in "); i >= 0 {
		phrase = phrase[:i]
	}
	phrase = strings.TrimSpace(phrase)
	return strings.Join([]string{phrase, address.PostalCode, address.City, address.State, "US"}, ", ")
}

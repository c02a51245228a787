package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Social platforms recognised on websites, in column order
const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTwitter   = "twitter"
	PlatformLinkedIn  = "linkedin"
	PlatformYouTube   = "youtube"
)

// Platforms lists every social platform in export order
var Platforms = []string{PlatformFacebook, PlatformInstagram, PlatformTwitter, PlatformLinkedIn, PlatformYouTube}

// EnrichmentRecord is the data gathered from one listing's website
type EnrichmentRecord struct {
	Website        string                 `json:"website"`
	ContactInfo    ContactInfo            `json:"contact_info"`
	SocialMedia    map[string][]string    `json:"social_media"`
	SchemaData     map[string]interface{} `json:"schema_data"`
	MetaData       map[string]string      `json:"meta_data"`
	BusinessHours  BusinessHours          `json:"business_hours"`
	AdditionalInfo map[string]string      `json:"additional_info"`
	Error          string                 `json:"error,omitempty"`
}

// ContactInfo holds deduplicated contact details in first-seen order
type ContactInfo struct {
	Emails  []string `json:"emails"`
	Phones  []string `json:"phones"`
	Address *string  `json:"address"`
}

// NewEnrichmentRecord returns an empty record for the given website
func NewEnrichmentRecord(website string) EnrichmentRecord {
	return EnrichmentRecord{
		Website: website,
		ContactInfo: ContactInfo{
			Emails: []string{},
			Phones: []string{},
		},
		SocialMedia:    map[string][]string{},
		SchemaData:     map[string]interface{}{},
		MetaData:       map[string]string{},
		AdditionalInfo: map[string]string{},
	}
}

// FirstEmail returns the first email found or Absent
func (r EnrichmentRecord) FirstEmail() string {
	if len(r.ContactInfo.Emails) == 0 {
		return Absent
	}
	return r.ContactInfo.Emails[0]
}

// Social returns the joined links for a platform or Absent
func (r EnrichmentRecord) Social(platform string) string {
	links := r.SocialMedia[platform]
	if len(links) == 0 {
		return Absent
	}
	return strings.Join(links, ", ")
}

// BusinessHours is either a structured value taken from schema.org data or a raw text fallback
type BusinessHours struct {
	Structured interface{}
	Raw        string
}

// IsEmpty reports whether no hours were found
func (h BusinessHours) IsEmpty() bool {
	return h.Structured == nil && h.Raw == ""
}

// String renders hours for the tabular export
func (h BusinessHours) String() string {
	switch {
	case h.Structured != nil:
		switch v := h.Structured.(type) {
		case string:
			return v
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, ", ")
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Sprint(v)
			}
			return string(data)
		}
	case h.Raw != "":
		return h.Raw
	default:
		return Absent
	}
}

// MarshalJSON emits the structured value, {"raw": text}, or {} when empty
func (h BusinessHours) MarshalJSON() ([]byte, error) {
	switch {
	case h.Structured != nil:
		return json.Marshal(h.Structured)
	case h.Raw != "":
		return json.Marshal(map[string]string{"raw": h.Raw})
	default:
		return []byte("{}"), nil
	}
}

// UnmarshalJSON reverses MarshalJSON so run records can be reloaded
func (h *BusinessHours) UnmarshalJSON(data []byte) error {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*h = BusinessHours{}
	if m, ok := value.(map[string]interface{}); ok {
		if len(m) == 0 {
			return nil
		}
		if raw, ok := m["raw"].(string); ok && len(m) == 1 {
			h.Raw = raw
			return nil
		}
	}
	h.Structured = value
	return nil
}

// SocialProfile is what a visit to one social profile page produced
type SocialProfile struct {
	URL   string `json:"url"`
	Intro string `json:"intro"`
	Email string `json:"email"`
}

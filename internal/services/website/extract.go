package website

import (
	"encoding/json"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/prospector/internal/models"
)

var (
	emailPattern   = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}`)
	phonePattern   = regexp.MustCompile(`(\+\d{1,3}[-.]?)?\s*\(?\d{3}\)?[-.]?\s*\d{3}[-.]?\s*\d{4}`)
	contactPattern = regexp.MustCompile(`(?i)contact|about|get-in-touch|reach-us`)
	hoursPattern   = regexp.MustCompile(`(?i)hours|schedule|timing`)
	pricePattern   = regexp.MustCompile(`(?i)price-range|pricing`)
	cuisinePattern = regexp.MustCompile(`(?i)cuisine|food-type`)

	socialPatterns = map[string]*regexp.Regexp{
		models.PlatformFacebook:  regexp.MustCompile(`(?i)facebook\.com/[A-Za-z0-9.]+`),
		models.PlatformInstagram: regexp.MustCompile(`(?i)instagram\.com/[A-Za-z0-9_]+`),
		models.PlatformTwitter:   regexp.MustCompile(`(?i)twitter\.com/[A-Za-z0-9_]+`),
		models.PlatformLinkedIn:  regexp.MustCompile(`(?i)linkedin\.com/[A-Za-z0-9_]+`),
		models.PlatformYouTube:   regexp.MustCompile(`(?i)youtube\.com/[A-Za-z0-9_]+`),
	}

	imageSuffixes = []string{".png", ".jpg", ".gif", ".jpeg"}
)

const maxEmailLength = 100

// extractEmails returns every email-shaped token, minus image file names and overlong matches
func extractEmails(text string) []string {
	var emails []string
	for _, match := range emailPattern.FindAllString(text, -1) {
		if len(match) >= maxEmailLength || hasImageSuffix(match) {
			continue
		}
		emails = append(emails, match)
	}
	return emails
}

func hasImageSuffix(s string) bool {
	lower := strings.ToLower(s)
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// extractPhones returns full phone number matches
func extractPhones(text string) []string {
	var phones []string
	for _, match := range phonePattern.FindAllString(text, -1) {
		if trimmed := strings.TrimSpace(match); trimmed != "" {
			phones = append(phones, trimmed)
		}
	}
	return phones
}

// pageText is the visible page text followed by its markdown rendering, which keeps
// mailto: and tel: link targets that plain text drops
func pageText(doc *goquery.Document, html, pageURL string) string {
	text := doc.Text()
	converter := md.NewConverter(pageURL, true, &md.Options{EscapeMode: "disabled"})
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return text
	}
	return text + "\n" + markdown
}

// extractSchemaData merges every ld+json block, later keys overwriting earlier ones
func extractSchemaData(doc *goquery.Document) map[string]interface{} {
	schema := map[string]interface{}{}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}
		switch v := data.(type) {
		case map[string]interface{}:
			mergeInto(schema, v)
		case []interface{}:
			for _, item := range v {
				if m, ok := item.(map[string]interface{}); ok {
					mergeInto(schema, m)
				}
			}
		}
	})

	return schema
}

func mergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = v
	}
}

// extractMetaData maps meta name (or property) to content
func extractMetaData(doc *goquery.Document) map[string]string {
	meta := map[string]string{}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok {
			name, _ = s.Attr("property")
		}
		content, _ := s.Attr("content")
		if name != "" && content != "" {
			meta[name] = content
		}
	})
	return meta
}

// extractSocialMedia collects anchor hrefs per platform, deduplicated
func extractSocialMedia(doc *goquery.Document) map[string][]string {
	social := map[string][]string{}

	for _, platform := range models.Platforms {
		pattern := socialPatterns[platform]
		links := newOrderedSet(nil)
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if pattern.MatchString(href) {
				links.add(href)
			}
		})
		if len(links.order) > 0 {
			social[platform] = links.items()
		}
	}

	return social
}

// extractBusinessHours prefers schema.org openingHours, then a div classed like an hours block
func extractBusinessHours(doc *goquery.Document, schema map[string]interface{}) models.BusinessHours {
	if hours, ok := schema["openingHours"]; ok && hours != nil {
		return models.BusinessHours{Structured: hours}
	}

	if div := firstWithClass(doc.Find("div"), hoursPattern); div != nil {
		return models.BusinessHours{Raw: strippedText(div)}
	}
	return models.BusinessHours{}
}

func extractAdditionalInfo(doc *goquery.Document) map[string]string {
	info := map[string]string{}
	if s := firstWithClass(doc.Find("[class]"), pricePattern); s != nil {
		info["price_range"] = strippedText(s)
	}
	if s := firstWithClass(doc.Find("[class]"), cuisinePattern); s != nil {
		info["cuisine"] = strippedText(s)
	}
	return info
}

// firstWithClass returns the first element whose class attribute matches pattern
func firstWithClass(sel *goquery.Selection, pattern *regexp.Regexp) *goquery.Selection {
	var found *goquery.Selection
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if pattern.MatchString(class) {
			found = s
			return false
		}
		return true
	})
	return found
}

func strippedText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

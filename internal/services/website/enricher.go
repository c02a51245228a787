package website

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/crawler"
)

// Enricher gathers contact, social and schema.org data from a listing's own website
type Enricher struct {
	fetcher         *crawler.Fetcher
	requestTimeout  time.Duration
	subPageTimeout  time.Duration
	maxContactPages int
	logger          arbor.ILogger
}

// NewEnricher creates a website enricher. A nil client uses a default http.Client.
func NewEnricher(config common.WebsiteConfig, client *http.Client, logger arbor.ILogger) *Enricher {
	fetcher := crawler.NewFetcher(crawler.FetcherConfig{
		UserAgent:       config.UserAgent,
		MaxAttempts:     config.MaxAttempts,
		Backoff:         config.Backoff,
		MaxBodySize:     config.MaxBodySize,
		RequestsPerHost: config.RequestsPerHost,
	}, client, logger)

	return &Enricher{
		fetcher:         fetcher,
		requestTimeout:  config.RequestTimeout,
		subPageTimeout:  config.SubPageTimeout,
		maxContactPages: config.MaxContactPages,
		logger:          logger,
	}
}

// Enrich fetches website and extracts everything it can. Absent input returns an empty
// record without touching the network. A failed fetch is reported on pub and also
// yields an empty record.
func (e *Enricher) Enrich(ctx context.Context, website string, pub interfaces.ProgressPublisher) models.EnrichmentRecord {
	if models.IsAbsent(website) {
		return models.NewEnrichmentRecord(website)
	}

	pageURL := normalizeURL(website)
	doc, html, err := e.fetcher.FetchDocument(ctx, pageURL, e.requestTimeout)
	if err != nil {
		e.logger.Warn().Err(err).Str("website", website).Msg("Website enrichment failed")
		pub.Publish(models.ErrorEvent("website", fmt.Sprintf("Error extracting data from %s: %v", website, err)))
		record := models.NewEnrichmentRecord(website)
		record.Error = err.Error()
		return record
	}

	record := models.NewEnrichmentRecord(website)
	record.SchemaData = extractSchemaData(doc)
	record.MetaData = extractMetaData(doc)
	record.ContactInfo = e.extractContactInfo(ctx, doc, html, pageURL)
	record.SocialMedia = extractSocialMedia(doc)
	record.BusinessHours = extractBusinessHours(doc, record.SchemaData)
	record.AdditionalInfo = extractAdditionalInfo(doc)

	e.logger.Debug().
		Str("website", website).
		Int("emails", len(record.ContactInfo.Emails)).
		Int("phones", len(record.ContactInfo.Phones)).
		Int("social_platforms", len(record.SocialMedia)).
		Msg("Website enriched")

	return record
}

// extractContactInfo scans the page and up to maxContactPages contact/about pages
func (e *Enricher) extractContactInfo(ctx context.Context, doc *goquery.Document, html, pageURL string) models.ContactInfo {
	text := pageText(doc, html, pageURL)
	emails := newOrderedSet(extractEmails(text))
	phones := newOrderedSet(extractPhones(text))

	for _, link := range contactLinks(doc, pageURL, e.maxContactPages) {
		subDoc, subHTML, err := e.fetcher.FetchDocument(ctx, link, e.subPageTimeout)
		if err != nil {
			e.logger.Debug().Err(err).Str("url", link).Msg("Contact page fetch failed")
			continue
		}
		subText := pageText(subDoc, subHTML, link)
		emails.add(extractEmails(subText)...)
		phones.add(extractPhones(subText)...)
	}

	return models.ContactInfo{
		Emails: emails.items(),
		Phones: phones.items(),
	}
}

// contactLinks returns up to limit absolute contact/about links in document order
func contactLinks(doc *goquery.Document, pageURL string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if !contactPattern.MatchString(href) && !contactPattern.MatchString(s.Text()) {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		links = append(links, base.ResolveReference(ref).String())
		return len(links) < limit
	})
	return links
}

// normalizeURL adds https:// when no scheme is given
func normalizeURL(website string) string {
	website = strings.TrimSpace(website)
	if strings.HasPrefix(website, "http://") || strings.HasPrefix(website, "https://") {
		return website
	}
	return "https://" + website
}

// orderedSet keeps first-seen order while dropping duplicates
type orderedSet struct {
	seen  map[string]struct{}
	order []string
}

func newOrderedSet(values []string) *orderedSet {
	s := &orderedSet{seen: make(map[string]struct{})}
	s.add(values...)
	return s
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.order = append(s.order, v)
	}
}

func (s *orderedSet) items() []string {
	if s.order == nil {
		return []string{}
	}
	return s.order
}

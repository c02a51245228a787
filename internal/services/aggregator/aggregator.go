package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// WebsiteEnricher fetches a listing's website and extracts contact data
type WebsiteEnricher interface {
	Enrich(ctx context.Context, website string, pub interfaces.ProgressPublisher) models.EnrichmentRecord
}

// SocialVisitor reads intro and email from a set of social profile pages
type SocialVisitor interface {
	VisitAll(ctx context.Context, links []string, pub interfaces.ProgressPublisher) (intro, email string)
}

// EmailVerifier checks that an email address can receive mail
type EmailVerifier interface {
	Verify(ctx context.Context, email string) bool
}

// Service merges scraped listings with website and social enrichment
type Service struct {
	website  WebsiteEnricher
	social   SocialVisitor // nil disables the social stage
	verifier EmailVerifier // nil disables MX verification
	logger   arbor.ILogger
}

// NewService creates an aggregator. social and verifier may be nil.
func NewService(website WebsiteEnricher, social SocialVisitor, verifier EmailVerifier, logger arbor.ILogger) *Service {
	return &Service{
		website:  website,
		social:   social,
		verifier: verifier,
		logger:   logger,
	}
}

// Aggregate deduplicates records by name, enriches each unique website once,
// derives the export fields and builds the pruned table.
func (s *Service) Aggregate(ctx context.Context, searchQuery string, records []models.DetailRecord, pub interfaces.ProgressPublisher) models.Dataset {
	listings := Dedupe(records)

	s.logger.Info().
		Str("query", searchQuery).
		Int("records", len(records)).
		Int("unique", len(listings)).
		Msg("Aggregating listings")

	pub.Publish(models.InfoEvent("Extracting detailed website data..."))
	enrichments := make(map[string]models.EnrichmentRecord)
	merged := make([]models.MergedListing, len(listings))
	for i, detail := range listings {
		pub.Publish(models.ProgressUpdate(fmt.Sprintf("Processing website %d/%d", i+1, len(listings)), i+1, len(listings)))

		enrichment, ok := enrichments[detail.Website]
		if !ok {
			enrichment = s.website.Enrich(ctx, detail.Website, pub)
			if !models.IsAbsent(detail.Website) {
				enrichments[detail.Website] = enrichment
			}
		}
		merged[i] = models.MergedListing{Detail: detail, Enrichment: enrichment}
	}

	pub.Publish(models.InfoEvent("Processing extracted data..."))
	for i := range merged {
		deriveFields(&merged[i], searchQuery)
	}

	if s.social != nil {
		s.enrichSocial(ctx, merged, pub)
	}

	if s.verifier != nil {
		for i := range merged {
			merged[i].EmailMX = s.verifyEmail(ctx, merged[i].Email)
		}
	}

	return models.Dataset{
		SearchQuery: searchQuery,
		Listings:    merged,
		Table:       BuildTable(merged, s.verifier != nil),
	}
}

// Dedupe orders records by index and keeps the first record for each name
func Dedupe(records []models.DetailRecord) []models.DetailRecord {
	ordered := make([]models.DetailRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	seen := make(map[string]struct{}, len(ordered))
	unique := make([]models.DetailRecord, 0, len(ordered))
	for _, record := range ordered {
		if _, dup := seen[record.Name]; dup {
			continue
		}
		seen[record.Name] = struct{}{}
		unique = append(unique, record)
	}
	return unique
}

func deriveFields(m *models.MergedListing, searchQuery string) {
	m.Email = CleanEmail(m.Enrichment.FirstEmail())

	if phones := m.Enrichment.ContactInfo.Phones; len(phones) > 0 {
		m.AdditionalPhones = strings.Join(phones, ", ")
	} else {
		m.AdditionalPhones = models.Absent
	}

	m.Social = make(map[string]string, len(models.Platforms))
	for _, platform := range models.Platforms {
		m.Social[platform] = m.Enrichment.Social(platform)
	}

	m.BusinessHours = m.Enrichment.BusinessHours.String()
	m.Address = ParseAddress(m.Detail.Address)
	m.SearchQuery = SearchLocality(searchQuery, m.Address)
	m.FacebookIntro = models.Absent
	m.FacebookEmail = models.Absent
}

// facebookLinks collects the website's facebook links followed by the map card's
func facebookLinks(m models.MergedListing) []string {
	links := make([]string, 0, 2)
	seen := make(map[string]struct{})
	add := func(link string) {
		link = strings.TrimSpace(link)
		if models.IsAbsent(link) {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	for _, link := range m.Enrichment.SocialMedia[models.PlatformFacebook] {
		add(link)
	}
	add(m.Detail.MapFacebook)
	return links
}

func (s *Service) enrichSocial(ctx context.Context, merged []models.MergedListing, pub interfaces.ProgressPublisher) {
	pub.Publish(models.InfoEvent("Extracting Facebook emails..."))

	type visit struct{ intro, email string }
	cache := make(map[string]visit)

	for i := range merged {
		links := facebookLinks(merged[i])
		if len(links) == 0 {
			continue
		}
		pub.Publish(models.ProgressUpdate(fmt.Sprintf("Processing Facebook link %d/%d", i+1, len(merged)), i+1, len(merged)))

		key := strings.Join(links, "\n")
		result, ok := cache[key]
		if !ok {
			result.intro, result.email = s.social.VisitAll(ctx, links, pub)
			cache[key] = result
		}
		merged[i].FacebookIntro = result.intro
		merged[i].FacebookEmail = CleanEmail(result.email)
	}
}

func (s *Service) verifyEmail(ctx context.Context, email string) string {
	if email == "" || models.IsAbsent(email) {
		return models.Absent
	}
	if s.verifier.Verify(ctx, email) {
		return models.FlagYes
	}
	return models.FlagNo
}

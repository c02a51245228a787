package aggregator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (p *recordingPublisher) Publish(event models.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Message)
	}
	return out
}

type fakeWebsites struct {
	records map[string]models.EnrichmentRecord
	calls   map[string]int
}

func (f *fakeWebsites) Enrich(_ context.Context, website string, _ interfaces.ProgressPublisher) models.EnrichmentRecord {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	if models.IsAbsent(website) {
		return models.NewEnrichmentRecord(website)
	}
	f.calls[website]++
	if record, ok := f.records[website]; ok {
		return record
	}
	return models.NewEnrichmentRecord(website)
}

type fakeSocial struct {
	intro, email string
	visits       [][]string
}

func (f *fakeSocial) VisitAll(_ context.Context, links []string, _ interfaces.ProgressPublisher) (string, string) {
	f.visits = append(f.visits, links)
	return f.intro, f.email
}

type fakeVerifier map[string]bool

func (f fakeVerifier) Verify(_ context.Context, email string) bool {
	return f[email]
}

func detail(index int, name, website, address string) models.DetailRecord {
	d := models.NewDetailRecord(index)
	d.Name = name
	d.Website = website
	d.Address = address
	return d
}

func TestDedupe_FirstRecordPerNameWins(t *testing.T) {
	records := []models.DetailRecord{
		detail(2, "Fade Factory", "https://second.example", models.Absent),
		detail(0, "Fade Factory", "https://first.example", models.Absent),
		detail(1, "Clip Joint", models.Absent, models.Absent),
	}

	unique := Dedupe(records)

	require.Len(t, unique, 2)
	assert.Equal(t, "https://first.example", unique[0].Website)
	assert.Equal(t, "Clip Joint", unique[1].Name)
}

func TestAggregate_MergesEnrichment(t *testing.T) {
	enriched := models.NewEnrichmentRecord("https://fade.example")
	enriched.ContactInfo.Emails = []string{"Info@Fade.example", "other@fade.example"}
	enriched.ContactInfo.Phones = []string{"555-123-4567", "555-987-6543"}
	enriched.SocialMedia[models.PlatformFacebook] = []string{"facebook.com/fade"}
	enriched.SocialMedia[models.PlatformInstagram] = []string{"instagram.com/fade", "instagram.com/fade2"}
	enriched.BusinessHours = models.BusinessHours{Structured: "Mo-Fr 09:00-18:00"}

	websites := &fakeWebsites{records: map[string]models.EnrichmentRecord{"https://fade.example": enriched}}
	social := &fakeSocial{intro: "Family barber", email: "Owner@Fade.example"}
	svc := NewService(websites, social, nil, arbor.NewLogger())
	pub := &recordingPublisher{}

	records := []models.DetailRecord{
		detail(0, "Fade Factory", "https://fade.example", "123 Main St, Springfield, IL 62704"),
		detail(1, "Clip Joint", models.Absent, "9 Oak Ave, Springfield, IL 62701"),
	}
	records[1].MapFacebook = "https://www.facebook.com/clipjoint"

	dataset := svc.Aggregate(context.Background(), "barber in Springfield", records, pub)

	require.Len(t, dataset.Listings, 2)
	assert.Equal(t, "barber in Springfield", dataset.SearchQuery)

	fade := dataset.Listings[0]
	assert.Equal(t, "info@fade.example", fade.Email)
	assert.Equal(t, "555-123-4567, 555-987-6543", fade.AdditionalPhones)
	assert.Equal(t, "facebook.com/fade", fade.Social[models.PlatformFacebook])
	assert.Equal(t, "instagram.com/fade, instagram.com/fade2", fade.Social[models.PlatformInstagram])
	assert.Equal(t, models.Absent, fade.Social[models.PlatformTwitter])
	assert.Equal(t, "Mo-Fr 09:00-18:00", fade.BusinessHours)
	assert.Equal(t, "barber, 62704, Springfield, IL, US", fade.SearchQuery)
	assert.Equal(t, "Family barber", fade.FacebookIntro)
	assert.Equal(t, "owner@fade.example", fade.FacebookEmail)
	assert.Empty(t, fade.EmailMX)

	clip := dataset.Listings[1]
	assert.Equal(t, models.Absent, clip.Email)
	assert.Equal(t, models.Absent, clip.AdditionalPhones)
	assert.Equal(t, models.Absent, clip.BusinessHours)

	require.Len(t, social.visits, 2)
	assert.Equal(t, []string{"facebook.com/fade"}, social.visits[0])
	assert.Equal(t, []string{"https://www.facebook.com/clipjoint"}, social.visits[1])

	assert.Equal(t, 1, websites.calls["https://fade.example"])

	messages := pub.messages()
	assert.Contains(t, messages, "Extracting detailed website data...")
	assert.Contains(t, messages, "Processing website 2/2")
	assert.Contains(t, messages, "Processing extracted data...")
	assert.Contains(t, messages, "Extracting Facebook emails...")
}

func TestAggregate_EnrichesEachWebsiteOnce(t *testing.T) {
	websites := &fakeWebsites{}
	svc := NewService(websites, nil, nil, arbor.NewLogger())

	records := []models.DetailRecord{
		detail(0, "Branch A", "https://chain.example", models.Absent),
		detail(1, "Branch B", "https://chain.example", models.Absent),
		detail(2, "Solo", models.Absent, models.Absent),
	}

	dataset := svc.Aggregate(context.Background(), "barber", records, &recordingPublisher{})

	require.Len(t, dataset.Listings, 3)
	assert.Equal(t, 1, websites.calls["https://chain.example"])
	for _, listing := range dataset.Listings {
		assert.Equal(t, models.Absent, listing.FacebookEmail)
		assert.Equal(t, models.Absent, listing.FacebookIntro)
	}
}

func TestAggregate_SkipsSocialWithoutLinks(t *testing.T) {
	social := &fakeSocial{intro: "x", email: "y@z.io"}
	svc := NewService(&fakeWebsites{}, social, nil, arbor.NewLogger())

	dataset := svc.Aggregate(context.Background(), "barber", []models.DetailRecord{detail(0, "A", models.Absent, models.Absent)}, &recordingPublisher{})

	assert.Empty(t, social.visits)
	assert.Equal(t, models.Absent, dataset.Listings[0].FacebookEmail)
}

func TestAggregate_VerifiesEmailDomains(t *testing.T) {
	good := models.NewEnrichmentRecord("https://good.example")
	good.ContactInfo.Emails = []string{"hi@good.example"}
	bad := models.NewEnrichmentRecord("https://bad.example")
	bad.ContactInfo.Emails = []string{"hi@bad.example"}

	websites := &fakeWebsites{records: map[string]models.EnrichmentRecord{
		"https://good.example": good,
		"https://bad.example":  bad,
	}}
	svc := NewService(websites, nil, fakeVerifier{"hi@good.example": true}, arbor.NewLogger())

	records := []models.DetailRecord{
		detail(0, "Good", "https://good.example", models.Absent),
		detail(1, "Bad", "https://bad.example", models.Absent),
		detail(2, "None", models.Absent, models.Absent),
	}
	dataset := svc.Aggregate(context.Background(), "barber", records, &recordingPublisher{})

	assert.Equal(t, models.FlagYes, dataset.Listings[0].EmailMX)
	assert.Equal(t, models.FlagNo, dataset.Listings[1].EmailMX)
	assert.Equal(t, models.Absent, dataset.Listings[2].EmailMX)
	assert.Contains(t, dataset.Table.Columns, ColEmailMX)
}

func TestAggregate_TablePrunesConstantColumns(t *testing.T) {
	svc := NewService(&fakeWebsites{}, nil, nil, arbor.NewLogger())

	records := []models.DetailRecord{
		detail(0, "A", models.Absent, "1 A St, Austin, TX 78701"),
		detail(1, "B", models.Absent, "2 B St, Austin, TX 78702"),
	}
	records[0].Type = "Barber shop"
	records[1].Type = "Barber shop"

	dataset := svc.Aggregate(context.Background(), "barber in Austin", records, &recordingPublisher{})

	assert.NotContains(t, dataset.Table.Columns, ColType)
	assert.NotContains(t, dataset.Table.Columns, ColCity)
	assert.Equal(t, "Barber shop", dataset.Listings[0].Detail.Type)
	assert.Equal(t, []string{ColName, ColAddress, ColStreet, ColPostalCode, ColSearchQuery}, dataset.Table.Columns)

	rows := dataset.Table.Records()
	require.Len(t, rows, 2)
	assert.Equal(t, "B", rows[1][ColName])
	assert.Equal(t, "barber, 78702, Austin, TX, US", rows[1][ColSearchQuery])
}

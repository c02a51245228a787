package social

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/crawler/crawlertest"
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

func (p *recordingPublisher) kinds() []models.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]models.EventKind, 0, len(p.events))
	for _, e := range p.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestVisit_ReadsIntroAndEmail(t *testing.T) {
	page := crawlertest.NewPage()
	page.SetTexts(introSelector, "  Family barber since 1990 ")
	page.SetTexts(dialogSelector, "Log in")
	page.SetTexts(closeSelector, "x")
	page.HTML = `<html><body>Mail owner@barber.de or other@barber.de</body></html>`

	pool := crawlertest.NewPool(page)
	pub := &recordingPublisher{}
	enricher := NewEnricher(pool, Config{}, arbor.NewLogger())

	profile := enricher.Visit(context.Background(), "https://www.facebook.com/barber", pub)

	assert.Equal(t, "Family barber since 1990", profile.Intro)
	assert.Equal(t, "owner@barber.de", profile.Email)
	assert.Equal(t, 1, page.CountCalls("click:"+closeSelector))
	assert.Empty(t, pub.events)
	assert.Equal(t, int64(1), pool.Released())
}

func TestVisit_NoEmailWarns(t *testing.T) {
	page := crawlertest.NewPage()
	page.HTML = `<html><body>nothing here</body></html>`

	pool := crawlertest.NewPool(page)
	pub := &recordingPublisher{}
	enricher := NewEnricher(pool, Config{}, arbor.NewLogger())

	profile := enricher.Visit(context.Background(), "https://www.facebook.com/quiet", pub)

	assert.Equal(t, models.Absent, profile.Intro)
	assert.Equal(t, models.Absent, profile.Email)
	require.Len(t, pub.events, 1)
	assert.Equal(t, models.EventWarning, pub.events[0].Kind)
	assert.Equal(t, "No email found on https://www.facebook.com/quiet", pub.events[0].Message)
	assert.Equal(t, 0, page.CountCalls("click:"+closeSelector))
}

func TestVisit_DismissFailureIsNotFatal(t *testing.T) {
	page := crawlertest.NewPage()
	page.SetTexts(dialogSelector, "Log in")
	page.SetTexts(closeSelector, "x")
	page.FailOn("click:"+closeSelector, errors.New("detached"))
	page.HTML = `hello@shop.com`

	pub := &recordingPublisher{}
	enricher := NewEnricher(crawlertest.NewPool(page), Config{}, arbor.NewLogger())

	profile := enricher.Visit(context.Background(), "https://www.facebook.com/shop", pub)

	assert.Equal(t, "hello@shop.com", profile.Email)
	assert.Equal(t, []models.EventKind{models.EventError}, pub.kinds())
}

func TestVisit_NavigationFailureReleasesSession(t *testing.T) {
	page := crawlertest.NewPage()
	page.FailOn("navigate:", errors.New("net::ERR_NAME_NOT_RESOLVED"))

	pool := crawlertest.NewPool(page)
	pub := &recordingPublisher{}
	enricher := NewEnricher(pool, Config{}, arbor.NewLogger())

	profile := enricher.Visit(context.Background(), "https://www.facebook.com/gone", pub)

	assert.Equal(t, models.Absent, profile.Email)
	assert.Equal(t, []models.EventKind{models.EventError}, pub.kinds())
	assert.Equal(t, pool.Acquired(), pool.Released())
}

func TestVisitAll_FirstValueWinsAndFailuresDoNotBlock(t *testing.T) {
	pages := map[string]*crawlertest.Page{}
	broken := crawlertest.NewPage()
	broken.FailOn("navigate:", errors.New("boom"))

	first := crawlertest.NewPage()
	first.HTML = "first@a.com"
	second := crawlertest.NewPage()
	second.HTML = "second@b.com"
	second.SetTexts(introSelector, "Second intro")

	pages["broken"], pages["first"], pages["second"] = broken, first, second
	order := []string{"broken", "first", "second"}
	i := 0
	pool := &crawlertest.Pool{NewPage: func() interfaces.Page {
		p := pages[order[i]]
		i++
		return p
	}}

	pub := &recordingPublisher{}
	enricher := NewEnricher(pool, Config{}, arbor.NewLogger())

	intro, email := enricher.VisitAll(context.Background(), []string{"l1", models.Absent, "l2", "l3"}, pub)

	assert.Equal(t, "Second intro", intro)
	assert.Equal(t, "first@a.com", email)
	assert.Equal(t, int64(3), pool.Released())
}

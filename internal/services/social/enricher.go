package social

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

const (
	dialogSelector = `div[role="dialog"]`
	closeSelector  = `div[role="dialog"] button[aria-label="Close"]`
	introSelector  = `//div[@class="xieb3on"]/div/div/div/span`
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}`)

// Config holds page timing for profile visits
type Config struct {
	Settle       time.Duration // wait after navigation
	DismissPause time.Duration // wait after closing the login dialog
}

// DefaultConfig returns the production timings
func DefaultConfig() Config {
	return Config{
		Settle:       5 * time.Second,
		DismissPause: 2 * time.Second,
	}
}

// Enricher visits social profile pages for an intro text and a contact email
type Enricher struct {
	pool   interfaces.SessionPool
	config Config
	logger arbor.ILogger
}

func NewEnricher(pool interfaces.SessionPool, config Config, logger arbor.ILogger) *Enricher {
	return &Enricher{
		pool:   pool,
		config: config,
		logger: logger,
	}
}

// Visit opens link in its own session and reads the intro and first email.
// Missing values are Absent. Failures are reported on pub, never returned.
func (e *Enricher) Visit(ctx context.Context, link string, pub interfaces.ProgressPublisher) models.SocialProfile {
	profile := models.SocialProfile{URL: link, Intro: models.Absent, Email: models.Absent}

	page, release, err := e.pool.Acquire(ctx)
	if err != nil {
		pub.Publish(models.ErrorEvent("social", fmt.Sprintf("Error navigating to %s: %v", link, err)))
		return profile
	}
	defer release()

	if err := page.Navigate(ctx, link); err != nil {
		pub.Publish(models.ErrorEvent("social", fmt.Sprintf("Error navigating to %s: %v", link, err)))
		return profile
	}
	if err := sleep(ctx, e.config.Settle); err != nil {
		return profile
	}

	e.dismissDialog(ctx, page, link, pub)

	if intro, err := page.Text(ctx, introSelector); err == nil && strings.TrimSpace(intro) != "" {
		profile.Intro = strings.TrimSpace(intro)
	}

	content, err := page.Content(ctx)
	if err != nil {
		pub.Publish(models.ErrorEvent("social", fmt.Sprintf("Error finding emails on %s: %v", link, err)))
		return profile
	}
	if email := emailPattern.FindString(content); email != "" {
		profile.Email = email
	} else {
		pub.Publish(models.WarningEvent(fmt.Sprintf("No email found on %s", link)))
	}

	e.logger.Debug().
		Str("link", link).
		Bool("intro", profile.Intro != models.Absent).
		Bool("email", profile.Email != models.Absent).
		Msg("Social profile visited")

	return profile
}

// dismissDialog closes the login modal when one is showing
func (e *Enricher) dismissDialog(ctx context.Context, page interfaces.Page, link string, pub interfaces.ProgressPublisher) {
	dialogs, err := page.Count(ctx, dialogSelector)
	if err != nil || dialogs == 0 {
		return
	}
	buttons, err := page.Count(ctx, closeSelector)
	if err != nil || buttons == 0 {
		return
	}
	if err := page.Click(ctx, closeSelector); err != nil {
		e.logger.Warn().Err(err).Str("link", link).Msg("Failed to close dialog")
		pub.Publish(models.ErrorEvent("social", fmt.Sprintf("Error closing popup on %s: %v", link, err)))
		return
	}
	_ = sleep(ctx, e.config.DismissPause)
}

// VisitAll visits links one after another. The first non-absent intro and email win.
func (e *Enricher) VisitAll(ctx context.Context, links []string, pub interfaces.ProgressPublisher) (intro, email string) {
	intro, email = models.Absent, models.Absent
	for _, link := range links {
		if models.IsAbsent(link) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		profile := e.Visit(ctx, link, pub)
		if intro == models.Absent && profile.Intro != models.Absent {
			intro = profile.Intro
		}
		if email == models.Absent && profile.Email != models.Absent {
			email = profile.Email
		}
	}
	return intro, email
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

const (
	searchBoxSelector   = `//input[@id="searchboxinput"]`
	placeLinkSelector   = `//a[contains(@href, "https://www.google.com/maps/place")]`
	feedSelector        = `div[role="feed"]`
	listingLinkSelector = `a.hfpxzc`
	fallbackSelector    = `a[jslog]`
	placePathFragment   = "/maps/place"
	wheelDelta          = 10000
)

// ErrSearchUnavailable means the directory never showed a search box or any results
var ErrSearchUnavailable = errors.New("search unavailable")

// Config controls discovery navigation and scrolling
type Config struct {
	MapsURL        string
	WaitTimeout    time.Duration // search box and first result
	LoadWait       time.Duration // after opening the directory
	ScrollSettle   time.Duration // after each wheel step
	MaxScrollSteps int           // hard stop, 0 for none
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		MapsURL:        "https://www.google.com/maps",
		WaitTimeout:    60 * time.Second,
		LoadWait:       3 * time.Second,
		ScrollSettle:   2 * time.Second,
		MaxScrollSteps: 500,
	}
}

// Service scrolls the results feed for a search phrase and collects listing links
type Service struct {
	pool   interfaces.SessionPool
	config Config
	logger arbor.ILogger
}

func NewService(pool interfaces.SessionPool, config Config, logger arbor.ILogger) *Service {
	return &Service{
		pool:   pool,
		config: config,
		logger: logger,
	}
}

// Discover returns at most total references in discovery order. Scrolling stops early
// when a step adds nothing and the feed did not move.
func (s *Service) Discover(ctx context.Context, query string, total int, pub interfaces.ProgressPublisher) ([]models.ListingReference, error) {
	if total <= 0 {
		return []models.ListingReference{}, nil
	}

	page, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire discovery session: %w", err)
	}
	defer release()

	if err := s.search(ctx, page, query, pub); err != nil {
		return nil, err
	}

	pub.Publish(models.InfoEvent("Scrolling to find listings..."))

	hrefs, err := s.scroll(ctx, page, total, pub)
	if err != nil {
		return nil, err
	}

	if len(hrefs) > total {
		hrefs = hrefs[:total]
	}
	refs := make([]models.ListingReference, len(hrefs))
	for i, href := range hrefs {
		refs[i] = models.ListingReference{Index: i, URL: href}
	}

	s.logger.Info().
		Str("query", query).
		Int("requested", total).
		Int("discovered", len(refs)).
		Msg("Listing discovery finished")

	return refs, nil
}

func (s *Service) search(ctx context.Context, page interfaces.Page, query string, pub interfaces.ProgressPublisher) error {
	pub.Publish(models.InfoEvent("Navigating to Google Maps..."))
	if err := page.Navigate(ctx, s.config.MapsURL); err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	if err := sleep(ctx, s.config.LoadWait); err != nil {
		return err
	}

	pub.Publish(models.InfoEvent(fmt.Sprintf("Searching for '%s'...", query)))
	if err := page.WaitVisible(ctx, searchBoxSelector, s.config.WaitTimeout); err != nil {
		return fmt.Errorf("%w: search box: %v", ErrSearchUnavailable, err)
	}
	if err := page.Fill(ctx, searchBoxSelector, query); err != nil {
		return fmt.Errorf("fill search box: %w", err)
	}
	if err := page.PressKey(ctx, interfaces.KeyEnter); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	if err := page.WaitVisible(ctx, placeLinkSelector, s.config.WaitTimeout); err != nil {
		return fmt.Errorf("%w: no results: %v", ErrSearchUnavailable, err)
	}
	return nil
}

func (s *Service) scroll(ctx context.Context, page interfaces.Page, total int, pub interfaces.ProgressPublisher) ([]string, error) {
	var hrefs []string
	lastPosition := 0.0

	for step := 0; len(hrefs) < total; step++ {
		if s.config.MaxScrollSteps > 0 && step >= s.config.MaxScrollSteps {
			s.logger.Warn().Int("steps", step).Int("found", len(hrefs)).Msg("Scroll step limit reached")
			break
		}

		if err := page.Wheel(ctx, feedSelector, wheelDelta); err != nil {
			return nil, fmt.Errorf("scroll feed: %w", err)
		}
		if err := sleep(ctx, s.config.ScrollSettle); err != nil {
			return nil, err
		}

		found, err := s.collect(ctx, page)
		if err != nil {
			return nil, err
		}

		if len(found) > len(hrefs) {
			hrefs = found
			pub.Publish(models.ProgressUpdate(fmt.Sprintf("Found %d listings", len(hrefs)), len(hrefs), total))
			continue
		}

		position, err := page.ScrollPosition(ctx, feedSelector)
		if err != nil {
			return nil, fmt.Errorf("read scroll position: %w", err)
		}
		if position == lastPosition {
			pub.Publish(models.InfoEvent(fmt.Sprintf("No new results found, stopping scroll. Found %d results.", len(hrefs))))
			break
		}
		lastPosition = position
	}

	return hrefs, nil
}

// collect returns the distinct listing links currently in the feed
func (s *Service) collect(ctx context.Context, page interfaces.Page) ([]string, error) {
	hrefs, err := page.Attributes(ctx, listingLinkSelector, "href")
	if err != nil {
		return nil, fmt.Errorf("read listing links: %w", err)
	}
	if len(hrefs) == 0 {
		all, err := page.Attributes(ctx, fallbackSelector, "href")
		if err != nil {
			return nil, fmt.Errorf("read listing links: %w", err)
		}
		for _, href := range all {
			if strings.Contains(href, placePathFragment) {
				hrefs = append(hrefs, href)
			}
		}
	}

	seen := make(map[string]struct{}, len(hrefs))
	unique := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		if href == "" {
			continue
		}
		if _, ok := seen[href]; ok {
			continue
		}
		seen[href] = struct{}{}
		unique = append(unique, href)
	}
	return unique, nil
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

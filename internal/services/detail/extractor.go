package detail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// Config holds extraction timing and the review retry mode
type Config struct {
	ReviewRetry    string
	ListingTimeout time.Duration // whole-listing budget, 0 for none
	WaitTimeout    time.Duration // per element wait
	LoadWait       time.Duration // after navigation
	Pause          time.Duration // after clicks and wheel scrolls
	KeyPause       time.Duration // between sort menu keystrokes
	MorePause      time.Duration // after each "More" expansion
	NegativeSettle time.Duration
	PositiveSettle time.Duration
}

// DefaultConfig returns the production timings
func DefaultConfig() Config {
	return Config{
		ReviewRetry:    RetryReplay,
		ListingTimeout: 3 * time.Minute,
		WaitTimeout:    5 * time.Second,
		LoadWait:       4 * time.Second,
		Pause:          time.Second,
		KeyPause:       300 * time.Millisecond,
		MorePause:      2 * time.Second,
		NegativeSettle: 2 * time.Second,
		PositiveSettle: 3 * time.Second,
	}
}

// stepError tags a failure with the extraction step it happened in
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func fail(step string, err error) error {
	return &stepError{step: step, err: err}
}

// Extractor turns one listing reference into one DetailRecord
type Extractor struct {
	pool   interfaces.SessionPool
	config Config
	logger arbor.ILogger
}

func NewExtractor(pool interfaces.SessionPool, config Config, logger arbor.ILogger) *Extractor {
	return &Extractor{
		pool:   pool,
		config: config,
		logger: logger,
	}
}

// Extract always returns a record. Any failure yields a fully Null record and exactly
// one error event naming the failing step; panics are contained the same way.
func (e *Extractor) Extract(ctx context.Context, ref models.ListingReference, total int, pub interfaces.ProgressPublisher) (record models.DetailRecord) {
	step := "session"

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("step", step).
				Str("url", ref.URL).
				Msg("Recovered from panic in listing extraction")
			record = e.failed(ref, step, fmt.Errorf("panic: %v", r), pub)
		}
	}()

	// Waiting for a free session does not count against the listing budget
	page, release, err := e.pool.Acquire(ctx)
	if err != nil {
		return e.failed(ref, step, err, pub)
	}
	defer release()

	if e.config.ListingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.ListingTimeout)
		defer cancel()
	}

	record, err = e.extract(ctx, page, ref, &step)
	if err != nil {
		var se *stepError
		if errors.As(err, &se) {
			step = se.step
		}
		return e.failed(ref, step, err, pub)
	}

	pub.Publish(models.ProgressUpdate(
		fmt.Sprintf("Processed listing %d/%d: %s", ref.Index+1, total, record.Name),
		ref.Index+1, total))

	return record
}

func (e *Extractor) failed(ref models.ListingReference, step string, err error, pub interfaces.ProgressPublisher) models.DetailRecord {
	e.logger.Warn().
		Err(err).
		Int("index", ref.Index).
		Str("step", step).
		Str("url", ref.URL).
		Msg("Listing extraction failed")
	pub.Publish(models.ErrorEvent(step, fmt.Sprintf("Error scraping listing %d at %s: %v", ref.Index+1, step, err)))
	return models.FailedDetailRecord(ref.Index)
}

func (e *Extractor) extract(ctx context.Context, page interfaces.Page, ref models.ListingReference, step *string) (models.DetailRecord, error) {
	record := models.NewDetailRecord(ref.Index)
	res := &resolver{page: page, logger: e.logger}

	*step = "navigate"
	if err := page.Navigate(ctx, ref.URL); err != nil {
		return record, fail(*step, err)
	}
	if err := e.pause(ctx, e.config.LoadWait); err != nil {
		return record, fail(*step, err)
	}
	// Place pages render the title late; absence is handled per field
	_ = page.WaitVisible(ctx, nameSelector, e.config.WaitTimeout)

	*step = "fields"
	if err := e.readFields(ctx, res, &record); err != nil {
		return record, fail(*step, err)
	}

	*step = "info"
	if err := e.readInfoChips(ctx, res, &record); err != nil {
		return record, fail(*step, err)
	}

	*step = "overview"
	if err := e.openTab(ctx, page, overviewSelector); err != nil {
		return record, fail(*step, err)
	}

	*step = "map_social"
	if err := e.readMapSocial(ctx, page, &record); err != nil {
		return record, fail(*step, err)
	}

	*step = "reviews"
	if err := e.readReviews(ctx, page, &record); err != nil {
		return record, fail(*step, err)
	}

	*step = "atmosphere"
	record.Atmosphere = e.readAtmosphere(ctx, page)

	return record, nil
}

func (e *Extractor) readFields(ctx context.Context, res *resolver, record *models.DetailRecord) error {
	text := []struct {
		field field
		dst   *string
	}{
		{field{Name: "name", Selectors: []string{nameSelector}, Fallback: models.Absent}, &record.Name},
		{field{Name: "address", Selectors: []string{addressSelector}, Fallback: models.Absent}, &record.Address},
		{field{Name: "website", Selectors: []string{websiteSelector}, Fallback: models.Absent}, &record.Website},
		{field{Name: "phone", Selectors: []string{phoneSelector}, Fallback: models.Absent}, &record.Phone},
		{field{Name: "type", Selectors: []string{placeTypeSelector}, Fallback: models.Absent}, &record.Type},
		{field{Name: "introduction", Selectors: []string{introSelector}, Fallback: models.NoIntroduction}, &record.Introduction},
		{field{Name: "opens_at", Selectors: []string{opensAtSelector, opensAtAltSelector}, Fallback: models.Absent, Transform: parseOpensAt}, &record.OpensAt},
	}
	for _, f := range text {
		value, err := res.resolve(ctx, f.field)
		if err != nil {
			return fmt.Errorf("%s: %w", f.field.Name, err)
		}
		*f.dst = value
	}

	count, err := res.resolve(ctx, field{Name: "review_count", Selectors: []string{reviewCountSelector}, Fallback: "0", Transform: parseReviewCount})
	if err != nil {
		return fmt.Errorf("review_count: %w", err)
	}
	record.ReviewCount, _ = strconv.Atoi(count)

	rating, err := res.resolve(ctx, field{Name: "average_rating", Selectors: []string{ratingSelector}, Fallback: "0", Transform: parseRating})
	if err != nil {
		return fmt.Errorf("average_rating: %w", err)
	}
	record.AverageRating, _ = strconv.ParseFloat(rating, 64)

	return nil
}

func (e *Extractor) readInfoChips(ctx context.Context, res *resolver, record *models.DetailRecord) error {
	for i := 0; i < len(chipOrder); i++ {
		sel := fmt.Sprintf(infoChipSelectorTmpl, i+1)
		text, err := res.resolve(ctx, field{Name: "info_chip", Selectors: []string{sel}})
		if err != nil {
			return fmt.Errorf("chip %d: %w", i+1, err)
		}
		switch chipKeyword(i, text) {
		case "shop":
			record.StoreShopping = models.FlagYes
		case "pickup":
			record.InStorePickup = models.FlagYes
		case "delivery":
			record.Delivery = models.FlagYes
		}
	}
	return nil
}

// openTab clicks a place page tab if it is there
func (e *Extractor) openTab(ctx context.Context, page interfaces.Page, sel string) error {
	_ = page.WaitVisible(ctx, sel, e.config.WaitTimeout)
	n, err := page.Count(ctx, sel)
	if err != nil {
		return err
	}
	if n == 0 {
		e.logger.Debug().Str("selector", sel).Msg("Tab not present, skipping")
		return nil
	}
	if err := page.Click(ctx, sel); err != nil {
		return err
	}
	return e.pause(ctx, e.config.Pause)
}

// readMapSocial opens the map card's web result links one at a time
func (e *Extractor) readMapSocial(ctx context.Context, page interfaces.Page, record *models.DetailRecord) error {
	for i := 0; i < 2; i++ {
		if err := page.Wheel(ctx, "", 10000); err != nil {
			return err
		}
		if err := e.pause(ctx, e.config.Pause); err != nil {
			return err
		}
	}

	urls, err := page.OpenFrameLinks(ctx, socialFrameSelector, socialCardSelector)
	if err != nil {
		return err
	}
	for _, url := range urls {
		switch mapSocialKind(url) {
		case "instagram":
			record.MapInstagram = url
		case "facebook":
			record.MapFacebook = url
		}
	}
	return nil
}

// cohortPass is one sort-and-collect sweep over the reviews tab
type cohortPass struct {
	cohort     Cohort
	openPause  time.Duration
	settle     time.Duration
	wheelPause time.Duration
}

func (e *Extractor) firstPass(c Cohort) cohortPass {
	p := cohortPass{cohort: c, openPause: e.config.Pause, wheelPause: e.config.Pause, settle: e.config.NegativeSettle}
	if c == CohortPositive {
		p.settle = e.config.PositiveSettle
	}
	return p
}

// retryPass settles differently from the first pass so a slow reviews tab gets a second chance
func (e *Extractor) retryPass(c Cohort) cohortPass {
	if c == CohortNegative {
		return cohortPass{cohort: c, openPause: 2 * e.config.Pause, wheelPause: e.config.Pause, settle: e.config.NegativeSettle}
	}
	return cohortPass{cohort: c, openPause: e.config.Pause, wheelPause: 2 * e.config.Pause, settle: e.config.Pause}
}

func (e *Extractor) readReviews(ctx context.Context, page interfaces.Page, record *models.DetailRecord) error {
	samples := map[Cohort][]string{}

	for _, c := range []Cohort{CohortNegative, CohortPositive} {
		texts, err := e.sample(ctx, page, e.firstPass(c))
		if err != nil {
			return fmt.Errorf("%s cohort: %w", c, err)
		}
		samples[c] = texts
	}

	for _, c := range retryPlan(e.config.ReviewRetry, samples[CohortNegative], samples[CohortPositive]) {
		e.logger.Debug().Str("cohort", c.String()).Str("mode", e.config.ReviewRetry).Msg("Resampling reviews")
		texts, err := e.sample(ctx, page, e.retryPass(c))
		if err != nil {
			return fmt.Errorf("%s cohort retry: %w", c, err)
		}
		samples[c] = texts
	}

	record.NegativeReviews = models.FillReviewSlots(samples[CohortNegative])
	record.PositiveReviews = models.FillReviewSlots(samples[CohortPositive])
	return nil
}

// sample toggles the sort menu into the cohort's order, expands truncated reviews and collects them
func (e *Extractor) sample(ctx context.Context, page interfaces.Page, pass cohortPass) ([]string, error) {
	_ = page.WaitVisible(ctx, sortSelector, e.config.WaitTimeout)
	n, err := page.Count(ctx, sortSelector)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if err := page.Click(ctx, sortSelector); err != nil {
		return nil, err
	}
	if err := e.pause(ctx, pass.openPause); err != nil {
		return nil, err
	}

	for i := 0; i < pass.cohort.ArrowDowns(); i++ {
		if err := page.PressKey(ctx, interfaces.KeyArrowDown); err != nil {
			return nil, err
		}
		if err := e.pause(ctx, e.config.KeyPause); err != nil {
			return nil, err
		}
	}
	if err := page.PressKey(ctx, interfaces.KeyEnter); err != nil {
		return nil, err
	}
	if err := e.pause(ctx, pass.settle); err != nil {
		return nil, err
	}

	if err := page.Wheel(ctx, "", 10000); err != nil {
		return nil, err
	}
	if err := e.pause(ctx, pass.wheelPause); err != nil {
		return nil, err
	}

	if _, err := page.ClickVisible(ctx, moreSelector, e.config.MorePause); err != nil {
		e.logger.Debug().Err(err).Msg("Failed to expand reviews")
	}

	texts, err := page.Texts(ctx, reviewTextSelector)
	if err != nil {
		return nil, err
	}
	return SampleReviews(texts), nil
}

// readAtmosphere lists the About tab's attribute items. Failures leave it empty.
func (e *Extractor) readAtmosphere(ctx context.Context, page interfaces.Page) []string {
	if err := e.openTab(ctx, page, aboutSelector); err != nil {
		e.logger.Debug().Err(err).Msg("Failed to open About tab")
		return []string{}
	}
	_ = page.WaitVisible(ctx, atmosphereSelector, e.config.WaitTimeout)
	items, err := page.Texts(ctx, atmosphereSelector)
	if err != nil {
		e.logger.Debug().Err(err).Msg("Failed to read atmosphere")
		return []string{}
	}
	if items == nil {
		return []string{}
	}
	return items
}

func (e *Extractor) pause(ctx context.Context, d time.Duration) error {
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

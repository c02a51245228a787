package detail

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/services/crawler"
)

const (
	nameSelector         = `//div[@class="TIHn2 "]//h1[@class="DUwDvf lfPIob"]`
	addressSelector      = `//button[@data-item-id="address"]//div[contains(@class, "fontBodyMedium")]`
	websiteSelector      = `//a[@data-item-id="authority"]//div[contains(@class, "fontBodyMedium")]`
	phoneSelector        = `//button[contains(@data-item-id, "phone:tel:")]//div[contains(@class, "fontBodyMedium")]`
	reviewCountSelector  = `//div[@class="TIHn2 "]//div[@class="fontBodyMedium dmRWX"]//div//span//span//span[@aria-label]`
	ratingSelector       = `//div[@class="TIHn2 "]//div[@class="fontBodyMedium dmRWX"]//div//span[@aria-hidden]`
	introSelector        = `//div[@class="WeS02d fontBodyMedium"]//div[@class="PYvSYb "]`
	placeTypeSelector    = `//div[@class="LBgpqf"]//button[@class="DkEaL "]`
	opensAtSelector      = `//button[contains(@data-item-id, "oh")]//div[contains(@class, "fontBodyMedium")]`
	opensAtAltSelector   = `//div[@class="MkV9"]//span[@class="ZDu9vd"]//span[2]`
	overviewSelector     = `//button[contains(@aria-label,"Overview ")]`
	socialFrameSelector  = `//iframe[@class='rvN3ke']`
	socialCardSelector   = `//div[@role="heading"]/parent::g-card-section/parent::div/parent::div`
	sortSelector         = `//button/span/span[contains(text(),"Sort")]`
	moreSelector         = `//button[contains(text(), "More")]`
	reviewTextSelector   = `//div[contains(@class, "MyEned")]/span`
	aboutSelector        = `//button[contains(@aria-label,"About ")]`
	atmosphereSelector   = `//h2/parent::div/ul/li/div/span[2]`
	infoChipSelectorTmpl = `//div[@class="LTs0Rc"][%d]`
)

// field describes how one scalar value is read from the place page
type field struct {
	Name      string
	Selectors []string // tried in order until one matches
	Fallback  string
	Transform func(string) (string, error)
	Attempts  int // page errors are retried this many times before failing the listing
}

// resolver evaluates field descriptors against a page
type resolver struct {
	page   interfaces.Page
	logger arbor.ILogger
}

// resolve returns the field value. Absence and unparsable text yield the fallback;
// only page errors are returned.
func (r *resolver) resolve(ctx context.Context, f field) (string, error) {
	for _, sel := range f.Selectors {
		text, found, err := r.read(ctx, sel, f.Attempts)
		if err != nil {
			return "", err
		}
		if !found {
			continue
		}
		if f.Transform == nil {
			return text, nil
		}
		value, err := f.Transform(text)
		if err != nil {
			r.logger.Debug().Err(err).Str("field", f.Name).Str("text", text).Msg("Field value not parsable, using fallback")
			return f.Fallback, nil
		}
		return value, nil
	}
	return f.Fallback, nil
}

func (r *resolver) read(ctx context.Context, sel string, attempts int) (string, bool, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		text, found, err := r.readOnce(ctx, sel)
		if err == nil {
			return text, found, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", false, lastErr
}

func (r *resolver) readOnce(ctx context.Context, sel string) (string, bool, error) {
	n, err := r.page.Count(ctx, sel)
	if err != nil {
		return "", false, err
	}
	if n == 0 {
		return "", false, nil
	}
	text, err := r.page.Text(ctx, sel)
	if errors.Is(err, crawler.ErrElementNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// parseReviewCount turns "(1,234)" into "1234"
func parseReviewCount(text string) (string, error) {
	cleaned := strings.NewReplacer("(", "", ")", "", ",", "").Replace(strings.TrimSpace(text))
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(n), nil
}

// parseRating turns "4,7" into "4.7"
func parseRating(text string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", ",", ".").Replace(strings.TrimSpace(text))
	if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
		return "", err
	}
	return cleaned, nil
}

// parseOpensAt keeps the part after the first '⋅' and drops narrow no-break spaces
func parseOpensAt(text string) (string, error) {
	parts := strings.Split(text, "⋅")
	if len(parts) > 1 {
		text = parts[1]
	}
	return strings.ReplaceAll(text, "\u202f", ""), nil
}

// chipOrder is the keyword precedence for each of the three info chips
var chipOrder = [3][]string{
	{"shop", "pickup", "delivery"},
	{"pickup", "shop", "delivery"},
	{"delivery", "pickup", "shop"},
}

// chipKeyword returns which service keyword the chip at position (0-based) advertises
func chipKeyword(position int, text string) string {
	parts := strings.Split(text, "·")
	if len(parts) < 2 || position < 0 || position >= len(chipOrder) {
		return ""
	}
	check := strings.ToLower(strings.ReplaceAll(parts[1], "\n", ""))
	for _, keyword := range chipOrder[position] {
		if strings.Contains(check, keyword) {
			return keyword
		}
	}
	return ""
}

// mapSocialKind attributes a popup URL to a platform when it is a single-profile URL
func mapSocialKind(url string) string {
	if len(strings.Split(url, "/")) != 5 {
		return ""
	}
	switch {
	case strings.HasPrefix(url, "https://www.instagram.com/"):
		return "instagram"
	case strings.HasPrefix(url, "https://www.facebook.com/"):
		return "facebook"
	}
	return ""
}

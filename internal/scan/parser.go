package scan

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/delist-sh/delist/internal/broker"
	"github.com/delist-sh/delist/pkg/models"
)

// Listing is one parsed result item: the listing URL plus whatever
// optional fields the broker's selectors could extract.
type Listing struct {
	ListingURL string
	Extracted  models.ExtractedData
}

var ageDigits = regexp.MustCompile(`\d+`)

// ParseResults extracts listings from a broker's search-result page.
//
// The checks run in a fixed order: a CAPTCHA marker wins over
// everything, a no-results marker is an empty success, and a result
// selector that no longer compiles means the definition has gone
// stale. A page where valid selectors simply match nothing is an
// empty success, and within the result list one malformed item is
// skipped, never fatal.
func ParseResults(html string, brokerID string, selectors *broker.SelectorSet, baseURL string) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	if selectors.CaptchaMarker != "" && doc.Find(selectors.CaptchaMarker).Length() > 0 {
		return nil, &CaptchaError{BrokerID: brokerID}
	}
	if selectors.NoResultsMarker != "" && doc.Find(selectors.NoResultsMarker).Length() > 0 {
		return nil, nil
	}

	for _, sel := range []string{selectors.ResultsContainer, selectors.ResultItem, selectors.ListingURL} {
		if _, err := cascadia.Compile(sel); err != nil {
			return nil, &SelectorsOutdatedError{BrokerID: brokerID, Selector: sel}
		}
	}
	items := doc.Find(selectors.ResultsContainer).Find(selectors.ResultItem)

	base, _ := url.Parse(baseURL)

	var listings []Listing
	items.Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find(selectors.ListingURL).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		listings = append(listings, Listing{
			ListingURL: resolveHref(base, href),
			Extracted:  extractFields(item, selectors),
		})
	})
	return listings, nil
}

func extractFields(item *goquery.Selection, selectors *broker.SelectorSet) models.ExtractedData {
	var data models.ExtractedData
	if selectors.Name != "" {
		data.Name = trimmedText(item, selectors.Name)
	}
	if selectors.Age != "" {
		if digits := ageDigits.FindString(trimmedText(item, selectors.Age)); digits != "" {
			data.Age, _ = strconv.Atoi(digits)
		}
	}
	data.Addresses = collectTexts(item, selectors.Location)
	data.Phones = collectTexts(item, selectors.Phone)
	data.Emails = collectTexts(item, selectors.Email)
	data.Relatives = collectTexts(item, selectors.Relatives)
	return data
}

func trimmedText(item *goquery.Selection, selector string) string {
	return strings.TrimSpace(item.Find(selector).First().Text())
}

func collectTexts(item *goquery.Selection, selector string) []string {
	if selector == "" {
		return nil
	}
	var out []string
	item.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// resolveHref makes relative listing links absolute against the
// broker's base URL.
func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

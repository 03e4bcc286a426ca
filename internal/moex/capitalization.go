package moex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/moexidx/internal/config"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// CapScraper reads the quarterly capitalization tables published on
// moex.com. The index page (/s26) holds one column per year with a link
// per quarter; each linked page holds the table itself.
type CapScraper struct {
	siteURL string
	http    *fetcher
}

// NewCapScraper creates a scraper for the configured site.
func NewCapScraper(cfg config.MOEXConfig) *CapScraper {
	return &CapScraper{
		siteURL: strings.TrimRight(cfg.SiteURL, "/"),
		http:    newFetcher(time.Duration(cfg.TimeoutSec)*time.Second, cfg.RateLimit),
	}
}

// FetchCapitalization downloads the capitalization table for a quarter.
func (s *CapScraper) FetchCapitalization(ctx context.Context, year, quarter int) ([]models.CapitalizationRecord, error) {
	link, err := s.quarterLink(ctx, year, quarter)
	if err != nil {
		return nil, err
	}

	doc, err := s.document(ctx, link)
	if err != nil {
		return nil, err
	}
	table := doc.Find("div.table-scroller table.table1").First()
	if table.Length() == 0 {
		table = doc.Find("table.table1").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("capitalization table not found at %s", link)
	}

	var (
		recs    []models.CapitalizationRecord
		skipped int
	)
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 7 {
			return
		}
		text := func(i int) string { return strings.TrimSpace(cells.Eq(i).Text()) }

		shares, err1 := parseNumber(text(4))
		price, err2 := parseNumber(text(5))
		mcap, err3 := parseNumber(text(6))
		secid := utils.NormalizeSecID(text(0))
		if err1 != nil || err2 != nil || err3 != nil || secid == "" {
			skipped++
			return
		}
		recs = append(recs, models.CapitalizationRecord{
			Year:              year,
			Quarter:           quarter,
			SecID:             secid,
			Name:              text(1),
			RegistrationID:    text(3),
			SharesOutstanding: shares.IntPart(),
			Price:             price.InexactFloat64(),
			MarketCap:         mcap.InexactFloat64(),
		})
	})

	log.Debug().Int("year", year).Int("quarter", quarter).
		Int("rows", len(recs)).Int("skipped", skipped).Msg("moex: capitalization scraped")
	return recs, nil
}

// quarterLink finds the link to a quarter's table on the index page.
func (s *CapScraper) quarterLink(ctx context.Context, year, quarter int) (string, error) {
	index := s.siteURL + "/s26"
	doc, err := s.document(ctx, index)
	if err != nil {
		return "", err
	}
	table := doc.Find("table.table1").First()
	if table.Length() == 0 {
		return "", fmt.Errorf("capitalization index table not found on %s", index)
	}

	rows := table.Find("tr")
	yearCol := -1
	rows.First().Find("th").Each(func(i int, th *goquery.Selection) {
		if strings.TrimSpace(th.Text()) == strconv.Itoa(year) {
			yearCol = i
		}
	})
	if yearCol < 0 {
		return "", fmt.Errorf("year %d not available on %s", year, index)
	}

	prefix := fmt.Sprintf("%d квартал", quarter)
	var href string
	rows.Slice(1, rows.Length()).EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		cells := tr.Find("td")
		if yearCol >= cells.Length() {
			return true
		}
		cell := cells.Eq(yearCol)
		if !strings.HasPrefix(strings.TrimSpace(cell.Text()), prefix) {
			return true
		}
		href, _ = cell.Find("a").Attr("href")
		return false
	})
	if href == "" {
		return "", fmt.Errorf("link for quarter %d of %d not found", quarter, year)
	}

	base, err := url.Parse(s.siteURL + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("bad quarter link %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (s *CapScraper) document(ctx context.Context, u string) (*goquery.Document, error) {
	body, err := s.http.get(ctx, u, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}
	defer body.Close()
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", u, err)
	}
	return doc, nil
}

// Package newsletter discovers the latest newsletter issue from an archive listing, fetches it and
// carves it into sanitized raw sections.
package newsletter

import (
	"bytes"
	"context"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vibeshift/dashboard/internal/model"
)

// Getter fetches a URL body. *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Issue is one scraped newsletter issue.
type Issue struct {
	URL      string
	Title    string
	Sections []model.RawSection
}

// Scraper resolves and scrapes the latest issue.
type Scraper struct {
	get        Getter
	archiveURL string
	log        zerolog.Logger
}

// NewScraper returns a Scraper over archiveURL, which may be an HTML listing or an RSS/Atom feed.
func NewScraper(get Getter, archiveURL string, log zerolog.Logger) *Scraper {
	return &Scraper{get: get, archiveURL: archiveURL, log: log.With().Str("component", "newsletter").Logger()}
}

// Latest discovers and scrapes the newest issue.
func (s *Scraper) Latest(ctx context.Context) (Issue, error) {
	link, err := s.Discover(ctx)
	if err != nil {
		return Issue{}, err
	}
	return s.Scrape(ctx, link)
}

// Discover finds the newest issue link in the archive.
func (s *Scraper) Discover(ctx context.Context) (Link, error) {
	if s.archiveURL == "" {
		return Link{}, errors.New("newsletter: archive URL not configured")
	}
	base, err := url.Parse(s.archiveURL)
	if err != nil {
		return Link{}, errors.Wrap(err, "newsletter: archive URL")
	}

	start := time.Now()
	body, err := s.get.Get(ctx, s.archiveURL)
	if err != nil {
		return Link{}, errors.Wrap(err, "newsletter: fetch archive")
	}

	if gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown {
		link, err := latestFromFeed(body, base)
		if err != nil {
			return Link{}, errors.Wrap(err, "newsletter: archive feed")
		}
		s.log.Debug().Str("url", link.URL).Str("via", "feed").Dur("took", time.Since(start)).Msg("issue discovered")
		return link, nil
	}

	page, err := scanArchive(body, base)
	if err != nil {
		return Link{}, err
	}
	if page.feedURL != "" {
		link, err := s.viaFeed(ctx, page.feedURL)
		if err == nil {
			s.log.Debug().Str("url", link.URL).Str("via", "advertised-feed").Dur("took", time.Since(start)).Msg("issue discovered")
			return link, nil
		}
		s.log.Warn().Err(err).Str("feed", page.feedURL).Msg("advertised feed unusable; scanning archive links")
	}
	if len(page.links) == 0 {
		return Link{}, ErrNoIssue
	}
	s.log.Debug().Str("url", page.links[0].URL).Str("via", "archive-links").Dur("took", time.Since(start)).Msg("issue discovered")
	return page.links[0], nil
}

func (s *Scraper) viaFeed(ctx context.Context, feedURL string) (Link, error) {
	body, err := s.get.Get(ctx, feedURL)
	if err != nil {
		return Link{}, err
	}
	base, err := url.Parse(feedURL)
	if err != nil {
		return Link{}, err
	}
	return latestFromFeed(body, base)
}

// Scrape fetches one issue and carves it.
func (s *Scraper) Scrape(ctx context.Context, link Link) (Issue, error) {
	body, err := s.get.Get(ctx, link.URL)
	if err != nil {
		return Issue{}, errors.Wrap(err, "newsletter: fetch issue")
	}
	pageTitle, sections, err := Carve(body)
	if err != nil {
		return Issue{}, errors.Wrapf(err, "newsletter: carve %s", link.URL)
	}
	title := link.Title
	if title == "" {
		title = pageTitle
	}
	s.log.Info().Str("url", link.URL).Int("sections", len(sections)).Msg("issue scraped")
	return Issue{URL: link.URL, Title: title, Sections: sections}, nil
}

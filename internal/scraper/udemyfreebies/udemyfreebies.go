// Package udemyfreebies scrapes coupon courses from udemyfreebies.com, the
// hourly course source.
package udemyfreebies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"owl_course/internal/category"
	"owl_course/internal/model"
	"owl_course/internal/scraper"
)

const (
	// DefaultBaseURL is the site root.
	DefaultBaseURL = "https://www.udemyfreebies.com"

	pageConcurrency = 12
	detailLinkLimit = 20
)

var (
	udemyImageSize = regexp.MustCompile(`/course/\d+x\d+/`)
	couponParam    = regexp.MustCompile(`couponCode=([^&#]+)`)
)

// Scraper crawls listing pages concurrently and follows each course to its
// Udemy coupon link.
type Scraper struct {
	fetcher    *scraper.Fetcher
	store      scraper.CourseStore
	classifier *category.Classifier
	log        *slog.Logger
	baseURL    string

	// insertMu makes the stored-check and the insert of one course atomic
	// across page workers.
	insertMu sync.Mutex
}

// New creates a Scraper.
func New(client scraper.HTTPClient, store scraper.CourseStore, classifier *category.Classifier, log *slog.Logger) *Scraper {
	return &Scraper{
		fetcher:    scraper.NewFetcher(client),
		store:      store,
		classifier: classifier,
		log:        log,
		baseURL:    DefaultBaseURL,
	}
}

// SetBaseURL overrides the site root (useful for testing).
func (s *Scraper) SetBaseURL(u string) {
	s.baseURL = strings.TrimRight(u, "/")
}

type listing struct {
	Title            string
	DetailURL        string
	ImageURL         string
	OriginalCategory string
}

// Scrape processes listing pages 1..maxPages. PagesProcessed counts listing
// pages fetched successfully and CoursesFound counts inserted courses.
func (s *Scraper) Scrape(ctx context.Context, maxPages int) (scraper.Result, error) {
	var (
		pages, added atomic.Int64
		errMu        sync.Mutex
		lastErr      error
	)

	var g errgroup.Group
	g.SetLimit(pageConcurrency)
	for page := 1; page <= maxPages; page++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			items, err := s.listPage(ctx, page)
			if err != nil {
				s.log.Warn("fetch listing page", "page", page, "error", err)
				errMu.Lock()
				lastErr = err
				errMu.Unlock()
				return nil
			}
			pages.Add(1)

			for _, it := range items {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				ok, err := s.process(ctx, it)
				if err != nil {
					s.log.Warn("process course", "url", it.DetailURL, "error", err)
					continue
				}
				if ok {
					added.Add(1)
				}
			}
			s.log.Debug("listing page done", "page", page, "courses", len(items))
			return nil
		})
	}
	err := g.Wait()

	res := scraper.Result{
		CoursesFound:   int(added.Load()),
		PagesProcessed: int(pages.Load()),
	}
	if err != nil {
		return res, err
	}
	if res.PagesProcessed == 0 && lastErr != nil {
		return res, fmt.Errorf("no listing page could be fetched: %w", lastErr)
	}
	s.log.Info("udemyfreebies scrape finished", "pages", res.PagesProcessed, "added", res.CoursesFound)
	return res, nil
}

func (s *Scraper) pageURL(page int) string {
	if page == 1 {
		return s.baseURL + "/"
	}
	return fmt.Sprintf("%s/free-udemy-courses/%d", s.baseURL, page)
}

func (s *Scraper) listPage(ctx context.Context, page int) ([]listing, error) {
	pageURL := s.pageURL(page)
	doc, err := s.fetcher.Document(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return parseListing(doc, pageURL), nil
}

func parseListing(doc *goquery.Document, pageURL string) []listing {
	var out []listing
	doc.Find("div.theme-block").Each(func(_ int, block *goquery.Selection) {
		link := block.Find("h4 a").First()
		title := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if !ok || title == "" || strings.TrimSpace(href) == "" {
			return
		}

		img := block.Find("img").First()
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" {
			src = strings.TrimSpace(img.AttrOr("data-src", ""))
		}
		if src != "" {
			src = EnhanceImageURL(scraper.Absolute(pageURL, src))
		}

		out = append(out, listing{
			Title:            title,
			DetailURL:        scraper.Absolute(pageURL, href),
			ImageURL:         src,
			OriginalCategory: strings.TrimSpace(block.Find("div.coupon-specility").First().Text()),
		})
	})
	return out
}

// EnhanceImageURL drops query parameters and upgrades Udemy CDN thumbnails
// to the 750x422 rendition.
func EnhanceImageURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	if strings.Contains(u, "udemycdn.com") {
		u = udemyImageSize.ReplaceAllString(u, "/course/750x422/")
	}
	return u
}

// process resolves the coupon link of one listing and stores it if new.
// It reports whether a course was inserted.
func (s *Scraper) process(ctx context.Context, l listing) (bool, error) {
	udemyURL, err := s.couponURL(ctx, l.DetailURL)
	if err != nil {
		return false, err
	}
	if udemyURL == "" {
		return false, nil
	}
	m := couponParam.FindStringSubmatch(udemyURL)
	if m == nil {
		return false, nil
	}
	coupon, err := url.QueryUnescape(m[1])
	if err != nil {
		coupon = m[1]
	}

	s.insertMu.Lock()
	defer s.insertMu.Unlock()

	exists, err := s.store.HasCourse(ctx, model.KindUdemy, udemyURL)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	c := &model.Course{
		Source:     model.KindUdemy,
		Title:      l.Title,
		Category:   s.classifier.Classify(category.Course{Title: l.Title, Original: l.OriginalCategory}),
		ImageURL:   l.ImageURL,
		CourseURL:  l.DetailURL,
		UdemyURL:   udemyURL,
		CouponCode: coupon,
	}
	if err := s.store.InsertCourse(ctx, c); err != nil {
		return false, err
	}
	s.log.Debug("course added", "id", c.ID, "title", c.Title)
	return true, nil
}

// couponURL inspects the first links of a course detail page and returns the
// Udemy URL carrying a coupon code, following "/out/" redirect links. It
// returns "" when the page has none.
func (s *Scraper) couponURL(ctx context.Context, detailURL string) (string, error) {
	doc, err := s.fetcher.Document(ctx, detailURL)
	if err != nil {
		return "", err
	}

	var hrefs []string
	doc.Find("a[href]").EachWithBreak(func(i int, a *goquery.Selection) bool {
		hrefs = append(hrefs, strings.TrimSpace(a.AttrOr("href", "")))
		return i+1 < detailLinkLimit
	})

	for _, href := range hrefs {
		switch {
		case strings.Contains(href, "/out/"):
			final, err := s.fetcher.ResolveRedirect(ctx, scraper.Absolute(detailURL, href))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return "", err
				}
				s.log.Debug("follow redirect", "url", href, "error", err)
				continue
			}
			if isCouponURL(final) {
				return final, nil
			}
		case isCouponURL(href):
			return href, nil
		}
	}
	return "", nil
}

func isCouponURL(u string) bool {
	return strings.Contains(u, "udemy.com") && strings.Contains(u, "couponCode=")
}

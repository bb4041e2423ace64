// Package studybullet scrapes permanently free Udemy courses listed on
// studybullet.com, the daily course source.
package studybullet

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"owl_course/internal/category"
	"owl_course/internal/model"
	"owl_course/internal/scraper"
)

const (
	// DefaultBaseURL is the site root.
	DefaultBaseURL = "https://studybullet.com"

	maxEmptyPages    = 3
	descriptionLimit = 500
)

var udemyCourseURL = regexp.MustCompile(`https://www\.udemy\.com/course/[^"'\s?#<>]+`)

// Scraper walks the free-courses category feed page by page and extracts the
// Udemy link of every new course page.
type Scraper struct {
	fetcher    *scraper.Fetcher
	store      scraper.CourseStore
	classifier *category.Classifier
	log        *slog.Logger
	baseURL    string
	limiter    *rate.Limiter
}

// New creates a Scraper that sends at most one request per second.
func New(client scraper.HTTPClient, store scraper.CourseStore, classifier *category.Classifier, log *slog.Logger) *Scraper {
	return &Scraper{
		fetcher:    scraper.NewFetcher(client),
		store:      store,
		classifier: classifier,
		log:        log,
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// SetBaseURL overrides the site root (useful for testing).
func (s *Scraper) SetBaseURL(u string) {
	s.baseURL = strings.TrimRight(u, "/")
}

// SetRateLimit overrides the request pacing.
func (s *Scraper) SetRateLimit(r rate.Limit) {
	s.limiter.SetLimit(r)
}

func (s *Scraper) feedURL(page int) string {
	return fmt.Sprintf("%s/course/category/free-courses/feed/?paged=%d", s.baseURL, page)
}

// Scrape reads feed pages 1..maxPages. It stops early when the feed runs out
// or after three consecutive pages that add no course.
func (s *Scraper) Scrape(ctx context.Context, maxPages int) (scraper.Result, error) {
	var res scraper.Result
	empty := 0

	for page := 1; page <= maxPages; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		feed, err := s.fetcher.Feed(ctx, s.feedURL(page))
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if page == 1 {
				return res, fmt.Errorf("read feed: %w", err)
			}
			// WordPress answers 404 past the last page.
			s.log.Info("feed exhausted", "page", page, "error", err)
			break
		}
		if len(feed.Items) == 0 {
			break
		}
		res.PagesProcessed++

		added := 0
		for _, item := range feed.Items {
			ok, err := s.process(ctx, item)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				s.log.Warn("process course", "url", item.Link, "error", err)
				continue
			}
			if ok {
				added++
			}
		}
		res.CoursesFound += added
		s.log.Debug("feed page done", "page", page, "added", added)

		if added > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxEmptyPages {
			s.log.Info("no new courses on consecutive pages, stopping", "pages", empty, "last_page", page)
			break
		}
	}

	s.log.Info("studybullet scrape finished", "pages", res.PagesProcessed, "added", res.CoursesFound)
	return res, nil
}

type detail struct {
	Title       string
	Description string
	Instructor  string
	ImageURL    string
	UdemyURL    string
}

func (s *Scraper) process(ctx context.Context, item *gofeed.Item) (bool, error) {
	link := strings.TrimSpace(item.Link)
	if !isCoursePage(link) {
		return false, nil
	}
	exists, err := s.store.HasCourse(ctx, model.KindStudyBullet, link)
	if err != nil || exists {
		return false, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}
	doc, err := s.fetcher.Document(ctx, link)
	if err != nil {
		return false, err
	}
	d, ok := parseCoursePage(doc, link, strings.TrimSpace(item.Title))
	if !ok {
		s.log.Debug("no valid udemy link", "url", link)
		return false, nil
	}

	exists, err = s.store.HasCourse(ctx, model.KindStudyBullet, d.UdemyURL)
	if err != nil || exists {
		return false, err
	}

	c := &model.Course{
		Source:      model.KindStudyBullet,
		Title:       d.Title,
		Description: d.Description,
		Instructor:  d.Instructor,
		Category:    s.classifier.Classify(category.Course{Title: d.Title, Description: d.Description}),
		ImageURL:    d.ImageURL,
		CourseURL:   link,
		UdemyURL:    d.UdemyURL,
	}
	if err := s.store.InsertCourse(ctx, c); err != nil {
		return false, err
	}
	s.log.Debug("course added", "id", c.ID, "title", c.Title)
	return true, nil
}

func isCoursePage(link string) bool {
	if link == "" || !strings.Contains(link, "/course/") {
		return false
	}
	for _, p := range []string{"/tag/", "/category/", "/author/", "/search"} {
		if strings.Contains(link, p) {
			return false
		}
	}
	return true
}

func parseCoursePage(doc *goquery.Document, pageURL, fallbackTitle string) (detail, bool) {
	html, err := doc.Html()
	if err != nil {
		return detail{}, false
	}
	udemyURL := udemyCourseURL.FindString(html)
	if !IsValidUdemyURL(udemyURL) {
		return detail{}, false
	}

	d := detail{UdemyURL: udemyURL}

	d.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	if d.Title == "" {
		d.Title = fallbackTitle
	}
	if d.Title == "" {
		return detail{}, false
	}

	desc := doc.Find("div.description").First()
	if desc.Length() == 0 {
		desc = doc.Find("p").First()
	}
	d.Description = truncate(strings.TrimSpace(desc.Text()), descriptionLimit)
	d.Instructor = strings.TrimSpace(doc.Find("span.instructor").First().Text())

	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Host
	}
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := scraper.Absolute(pageURL, img.AttrOr("src", ""))
		lower := strings.ToLower(src)
		if host != "" && strings.Contains(src, host) &&
			(strings.Contains(lower, ".jpg") || strings.Contains(lower, ".jpeg") || strings.Contains(lower, ".png")) {
			d.ImageURL = src
			return false
		}
		return true
	})
	return d, true
}

// IsValidUdemyURL reports whether u points at a Udemy course page rather than
// a landing page or back at the source site.
func IsValidUdemyURL(u string) bool {
	if !strings.Contains(u, "udemy.com/course/") {
		return false
	}
	for _, p := range []string{"studybullet.com", "udemy.com/?", "udemy.com#", "udemy.com/featured", "udemy.com/home"} {
		if strings.Contains(u, p) {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

package studybullet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/time/rate"

	"owl_course/internal/category"
	"owl_course/internal/model"
	"owl_course/internal/storage"
)

const base = "https://sb.test"

type siteMock struct {
	mu       sync.Mutex
	pages    map[string]string
	requests []string
}

func (m *siteMock) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := req.URL.String()
	m.requests = append(m.requests, u)
	body, ok := m.pages[u]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewBufferString("not found"))}, nil
	}
	return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

type feedItem struct {
	title, link string
}

func feedXML(items ...feedItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Free Courses</title>`)
	for _, it := range items {
		fmt.Fprintf(&b, "<item><title>%s</title><link>%s</link></item>", it.title, it.link)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func feedURL(page int) string {
	return fmt.Sprintf("%s/course/category/free-courses/feed/?paged=%d", base, page)
}

const pythonPage = `<html><body>
<h1> Complete Python Bootcamp </h1>
<span class="instructor">Jane Doe</span>
<img src="/wp-content/uploads/logo.svg">
<img src="/wp-content/uploads/python.jpg">
<div class="description">Learn Python from scratch.</div>
<a href="https://www.udemy.com/course/python-bootcamp/?couponCode=X">Enroll</a>
</body></html>`

const yogaPage = `<html><body>
<p>Relax and stretch.</p>
<img src="https://cdn.example.com/yoga.jpg">
<a href="https://www.udemy.com/course/yoga-101/">Take this course</a>
</body></html>`

const noLinkPage = `<html><body><h1>Broken</h1><a href="https://www.udemy.com/">Udemy</a></body></html>`

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newScraper(site *siteMock, store *storage.SQLite) *Scraper {
	s := New(site, store, category.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetBaseURL(base)
	s.SetRateLimit(rate.Inf)
	return s
}

func TestScrape(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	site := &siteMock{pages: map[string]string{
		feedURL(1): feedXML(
			feedItem{"Complete Python Bootcamp", base + "/course/python-bootcamp/"},
			feedItem{"Broken", base + "/course/broken/"},
			feedItem{"Tagged", base + "/course/tag/python/"},
		),
		feedURL(2): feedXML(
			feedItem{"Yoga for Beginners", base + "/course/yoga/"},
			feedItem{"Complete Python Bootcamp", base + "/course/python-bootcamp/"},
		),
		base + "/course/python-bootcamp/": pythonPage,
		base + "/course/broken/":          noLinkPage,
		base + "/course/yoga/":            yogaPage,
	}}

	res, err := newScraper(site, store).Scrape(ctx, 10)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if diff := cmp.Diff(2, res.PagesProcessed); diff != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, res.CoursesFound); diff != "" {
		t.Errorf("courses mismatch (-want +got):\n%s", diff)
	}

	var got []model.Course
	for id := int64(1); id <= 2; id++ {
		c, err := store.GetCourse(ctx, id)
		if err != nil {
			t.Fatalf("get course %d: %v", id, err)
		}
		got = append(got, *c)
	}
	want := []model.Course{
		{
			Source:      model.KindStudyBullet,
			Title:       "Complete Python Bootcamp",
			Description: "Learn Python from scratch.",
			Instructor:  "Jane Doe",
			Category:    "Programming",
			ImageURL:    base + "/wp-content/uploads/python.jpg",
			CourseURL:   base + "/course/python-bootcamp/",
			UdemyURL:    "https://www.udemy.com/course/python-bootcamp/",
		},
		{
			Source:      model.KindStudyBullet,
			Title:       "Yoga for Beginners",
			Description: "Relax and stretch.",
			Category:    "Health & Fitness",
			CourseURL:   base + "/course/yoga/",
			UdemyURL:    "https://www.udemy.com/course/yoga-101/",
		},
	}
	opts := cmpopts.IgnoreFields(model.Course{}, "ID", "Slug", "CreatedAt")
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("courses mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeStopsAfterEmptyPages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.InsertCourse(ctx, &model.Course{
		Source:    model.KindStudyBullet,
		Title:     "Complete Python Bootcamp",
		CourseURL: base + "/course/python-bootcamp/",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	site := &siteMock{pages: map[string]string{}}
	for p := 1; p <= 6; p++ {
		site.pages[feedURL(p)] = feedXML(feedItem{"Complete Python Bootcamp", base + "/course/python-bootcamp/"})
	}

	res, err := newScraper(site, store).Scrape(ctx, 10)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if diff := cmp.Diff(3, res.PagesProcessed); diff != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", diff)
	}
	for _, u := range site.requests {
		if u == base+"/course/python-bootcamp/" {
			t.Error("stored course page was fetched again")
		}
	}
}

func TestScrapeRespectsMaxPages(t *testing.T) {
	site := &siteMock{pages: map[string]string{}}
	for p := 1; p <= 5; p++ {
		link := fmt.Sprintf("%s/course/c%d/", base, p)
		site.pages[feedURL(p)] = feedXML(feedItem{fmt.Sprintf("Course %d", p), link})
		site.pages[link] = fmt.Sprintf(`<h1>Course %d</h1><a href="https://www.udemy.com/course/c%d/">x</a>`, p, p)
	}

	res, err := newScraper(site, newTestStore(t)).Scrape(context.Background(), 2)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if diff := cmp.Diff(2, res.PagesProcessed); diff != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, res.CoursesFound); diff != "" {
		t.Errorf("courses mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeFeedUnavailable(t *testing.T) {
	_, err := newScraper(&siteMock{}, newTestStore(t)).Scrape(context.Background(), 5)
	if err == nil {
		t.Fatal("expected error when the first feed page fails")
	}
}

func TestDescriptionTruncated(t *testing.T) {
	long := strings.Repeat("é", 600)
	site := &siteMock{pages: map[string]string{
		feedURL(1):             feedXML(feedItem{"Long", base + "/course/long/"}),
		base + "/course/long/": `<h1>Long</h1><div class="description">` + long + `</div><a href="https://www.udemy.com/course/long/">x</a>`,
	}}
	store := newTestStore(t)
	if _, err := newScraper(site, store).Scrape(context.Background(), 1); err != nil {
		t.Fatalf("scrape: %v", err)
	}
	c, err := store.GetCourse(context.Background(), 1)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if diff := cmp.Diff(strings.Repeat("é", 500), c.Description); diff != "" {
		t.Errorf("description mismatch (-want +got):\n%s", diff)
	}
}

func TestIsValidUdemyURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "https://www.udemy.com/course/go-basics/", want: true},
		{in: "https://www.udemy.com/", want: false},
		{in: "https://www.udemy.com/featured/course/x", want: false},
		{in: "https://studybullet.com/udemy.com/course/x", want: false},
		{in: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, IsValidUdemyURL(tt.in)); diff != "" {
				t.Errorf("IsValidUdemyURL mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

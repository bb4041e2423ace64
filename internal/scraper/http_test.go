package scraper

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	finalURL   string
	requests   []*http.Request
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	resp := &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
		Request:    req,
	}
	if m.finalURL != "" {
		u, _ := url.Parse(m.finalURL)
		resp.Request = &http.Request{Method: req.Method, URL: u}
	}
	return resp, nil
}

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Free Courses</title>
<item><title>Go Basics</title><link>https://example.com/course/go-basics/</link></item>
<item><title>Rust Basics</title><link>https://example.com/course/rust-basics/</link></item>
</channel></rss>`

func TestFetcherGet(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		want      string
		wantErr   bool
	}{
		{name: "ok", transport: &mockTransport{body: "hello", statusCode: 200}, want: "hello"},
		{name: "http error status", transport: &mockTransport{body: "nope", statusCode: 503}, wantErr: true},
		{name: "network error", transport: &mockTransport{err: io.ErrUnexpectedEOF}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := NewFetcher(tt.transport).Get(context.Background(), "https://example.com/")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, string(body)); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(UserAgent, tt.transport.requests[0].Header.Get("User-Agent")); diff != "" {
				t.Errorf("user agent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetcherFeed(t *testing.T) {
	f := NewFetcher(&mockTransport{body: sampleFeed, statusCode: 200})
	feed, err := f.Feed(context.Background(), "https://example.com/feed/")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	var links []string
	for _, it := range feed.Items {
		links = append(links, it.Link)
	}
	want := []string{"https://example.com/course/go-basics/", "https://example.com/course/rust-basics/"}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewFetcher(&mockTransport{body: "not xml", statusCode: 200}).Feed(context.Background(), "https://example.com/feed/"); err == nil {
		t.Error("expected parse error")
	}
}

func TestFetcherDocument(t *testing.T) {
	f := NewFetcher(&mockTransport{body: `<html><body><h1> Title </h1></body></html>`, statusCode: 200})
	doc, err := f.Document(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if diff := cmp.Diff(" Title ", doc.Find("h1").Text()); diff != "" {
		t.Errorf("h1 mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveRedirect(t *testing.T) {
	m := &mockTransport{statusCode: 200, finalURL: "https://www.udemy.com/course/go/?couponCode=FREE"}
	got, err := NewFetcher(m).ResolveRedirect(context.Background(), "https://example.com/out/go")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if diff := cmp.Diff("https://www.udemy.com/course/go/?couponCode=FREE", got); diff != "" {
		t.Errorf("final url mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(http.MethodHead, m.requests[0].Method); diff != "" {
		t.Errorf("method mismatch (-want +got):\n%s", diff)
	}
}

func TestAbsolute(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{base: "https://example.com/free/2", ref: "/course/go", want: "https://example.com/course/go"},
		{base: "https://example.com/free/2", ref: "https://cdn.example.com/a.jpg", want: "https://cdn.example.com/a.jpg"},
		{base: "https://example.com/free/", ref: "go", want: "https://example.com/free/go"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Absolute(tt.base, tt.ref)); diff != "" {
				t.Errorf("Absolute mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

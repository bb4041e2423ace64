package poster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"owl_course/internal/model"
	"owl_course/internal/storage"
)

type sent struct {
	Chat   string
	Photo  string
	Text   string
	Button string
}

type mockAPI struct {
	mu   sync.Mutex
	sent []sent
	fail map[string]bool
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s sent
	var base tgbotapi.BaseChat
	switch v := c.(type) {
	case tgbotapi.PhotoConfig:
		base = v.BaseChat
		s.Text = v.Caption
		if f, ok := v.File.(tgbotapi.FileURL); ok {
			s.Photo = string(f)
		}
	case tgbotapi.MessageConfig:
		base = v.BaseChat
		s.Text = v.Text
	}
	s.Chat = base.ChannelUsername
	if s.Chat == "" {
		s.Chat = Channel{ID: base.ChatID}.String()
	}
	if kb, ok := base.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok && *kb.InlineKeyboard[0][0].URL != "" {
		s.Button = *kb.InlineKeyboard[0][0].URL
	}

	if m.fail[s.Chat] {
		return tgbotapi.Message{}, errors.New("chat not found")
	}
	m.sent = append(m.sent, s)
	return tgbotapi.Message{}, nil
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestPoster(api *mockAPI, store Store, siteURL string, channels ...Channel) *Poster {
	p := newPoster(api, store, channels, siteURL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.SetRateLimit(rate.Inf)
	return p
}

func insert(t *testing.T, store *storage.SQLite, c *model.Course) {
	t.Helper()
	if err := store.InsertCourse(context.Background(), c); err != nil {
		t.Fatalf("insert course: %v", err)
	}
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in      string
		want    Channel
		wantErr bool
	}{
		{in: "@owlcourses", want: Channel{Username: "@owlcourses"}},
		{in: " -1001234567890 ", want: Channel{ID: -1001234567890}},
		{in: "@", wantErr: true},
		{in: "owlcourses", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChannel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("channel mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPostNext(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insert(t, store, &model.Course{
		Source:    model.KindStudyBullet,
		Title:     "Yoga for Beginners",
		CourseURL: "https://sb.test/course/yoga/",
		UdemyURL:  "https://www.udemy.com/course/yoga-101/",
	})
	insert(t, store, &model.Course{
		Source:      model.KindUdemy,
		Title:       "Go & Docker",
		Description: "Ship <fast> services.",
		Category:    "Programming",
		ImageURL:    "https://img.udemycdn.com/course/750x422/1.jpg",
		UdemyURL:    "https://www.udemy.com/course/go-docker/?couponCode=FREE",
		CouponCode:  "FREE",
	})

	api := &mockAPI{}
	p := newTestPoster(api, store, "https://owl.test/", Channel{Username: "@owl"}, Channel{ID: -100})

	posted, err := p.PostNext(ctx)
	if err != nil {
		t.Fatalf("post next: %v", err)
	}
	if !posted {
		t.Fatal("expected a course to be posted")
	}

	caption := "🇺🇸 <b>Go &amp; Docker</b>\n\n📝 Ship &lt;fast&gt; services.\n\n🎯 Category: Programming\n🎟 Coupon: <code>FREE</code>\n\n#FreeCourse #Learning #OnlineEducation"
	want := []sent{
		{Chat: "@owl", Photo: "https://img.udemycdn.com/course/750x422/1.jpg", Text: caption, Button: "https://owl.test/course/go-and-docker"},
		{Chat: "-100", Photo: "https://img.udemycdn.com/course/750x422/1.jpg", Text: caption, Button: "https://owl.test/course/go-and-docker"},
	}
	if diff := cmp.Diff(want, api.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}

	c, err := store.GetCourse(ctx, 2)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if !c.TelegramPosted || c.TelegramPostedAt == nil {
		t.Error("udemy course not marked posted")
	}

	logs, err := store.ListExecutionLogs(ctx, model.ScraperTypeTelegram, 10)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 posting log, got %d", len(logs))
	}
	if !strings.HasPrefix(logs[0].ExecutionID, "telegram_post_") || logs[0].Status != model.StatusSuccess {
		t.Errorf("unexpected log entry %s %s", logs[0].ExecutionID, logs[0].Status)
	}

	// The studybullet course comes next, as plain text without a site slug link.
	api.sent = nil
	p.siteURL = ""
	if _, err := p.PostNext(ctx); err != nil {
		t.Fatalf("post next: %v", err)
	}
	if diff := cmp.Diff("https://www.udemy.com/course/yoga-101/", api.sent[0].Button); diff != "" {
		t.Errorf("button mismatch (-want +got):\n%s", diff)
	}
	if api.sent[0].Photo != "" {
		t.Error("course without image sent as photo")
	}
}

func TestPostNextRecycles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insert(t, store, &model.Course{Source: model.KindStudyBullet, Title: "Old", CourseURL: "https://sb.test/course/old/"})
	if err := store.MarkPosted(ctx, 1, false); err != nil {
		t.Fatalf("mark posted: %v", err)
	}

	p := newTestPoster(&mockAPI{}, store, "", Channel{Username: "@owl"})
	posted, err := p.PostNext(ctx)
	if err != nil || !posted {
		t.Fatalf("post next = %v, %v", posted, err)
	}

	c, err := store.GetCourse(ctx, 1)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if diff := cmp.Diff(1, c.RecyclingCount); diff != "" {
		t.Errorf("recycling count mismatch (-want +got):\n%s", diff)
	}
}

func TestPostNextNothingPending(t *testing.T) {
	api := &mockAPI{}
	posted, err := newTestPoster(api, newTestStore(t), "", Channel{Username: "@owl"}).PostNext(context.Background())
	if err != nil || posted {
		t.Errorf("post next = %v, %v; want false, nil", posted, err)
	}
	if len(api.sent) != 0 {
		t.Errorf("unexpected sends: %v", api.sent)
	}
}

func TestPostNextPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insert(t, store, &model.Course{Source: model.KindUdemy, Title: "Figma", UdemyURL: "https://www.udemy.com/course/figma/"})

	api := &mockAPI{fail: map[string]bool{"@gone": true}}
	posted, err := newTestPoster(api, store, "", Channel{Username: "@gone"}, Channel{Username: "@owl"}).PostNext(ctx)
	if err != nil || !posted {
		t.Fatalf("post next = %v, %v", posted, err)
	}
	c, _ := store.GetCourse(ctx, 1)
	if !c.TelegramPosted {
		t.Error("course should be marked posted when one channel accepted it")
	}
}

func TestPostNextAllChannelsFail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	insert(t, store, &model.Course{Source: model.KindUdemy, Title: "Figma", UdemyURL: "https://www.udemy.com/course/figma/"})

	api := &mockAPI{fail: map[string]bool{"@owl": true}}
	if _, err := newTestPoster(api, store, "", Channel{Username: "@owl"}).PostNext(ctx); err == nil {
		t.Fatal("expected error when no channel accepted the post")
	}
	c, _ := store.GetCourse(ctx, 1)
	if c.TelegramPosted {
		t.Error("course marked posted although every send failed")
	}
}

func TestPostNextNoChannels(t *testing.T) {
	_, err := newTestPoster(&mockAPI{}, newTestStore(t), "").PostNext(context.Background())
	if !errors.Is(err, ErrNoChannels) {
		t.Errorf("err = %v, want ErrNoChannels", err)
	}
}

func TestShorten(t *testing.T) {
	long := strings.Repeat("a", 250)
	if diff := cmp.Diff(strings.Repeat("a", 200)+"...", shorten(long, 200)); diff != "" {
		t.Errorf("shorten mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("short", shorten(" short ", 200)); diff != "" {
		t.Errorf("shorten mismatch (-want +got):\n%s", diff)
	}
}

// Package poster publishes stored courses to Telegram channels, one course
// per call.
package poster

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"owl_course/internal/model"
)

const descriptionLimit = 200

// ErrNoChannels is returned when no destination channel is configured.
var ErrNoChannels = errors.New("no telegram channels configured")

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Store is the persistence the Poster needs.
type Store interface {
	FindNextUnposted(ctx context.Context) (*model.Course, bool, error)
	MarkPosted(ctx context.Context, id int64, recycled bool) error
	LogExecution(ctx context.Context, executionID, scraperType string, status model.ExecutionStatus, details map[string]any) error
}

// Channel is a Telegram destination: a public @username or a numeric chat id.
type Channel struct {
	ID       int64
	Username string
}

// ParseChannel parses "@name" or a numeric chat id such as "-1001234567890".
func ParseChannel(s string) (Channel, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "@") && len(s) > 1 {
		return Channel{Username: s}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Channel{}, fmt.Errorf("invalid channel %q: want @name or chat id", s)
	}
	return Channel{ID: id}, nil
}

func (c Channel) String() string {
	if c.Username != "" {
		return c.Username
	}
	return strconv.FormatInt(c.ID, 10)
}

// Poster sends the next unposted course to every configured channel.
type Poster struct {
	api      telegramAPI
	store    Store
	channels []Channel
	siteURL  string
	limiter  *rate.Limiter
	log      *slog.Logger
}

// New creates a Poster using the Telegram bot token. siteURL, when set, is
// the base of the course page linked from the Enroll button.
func New(token string, store Store, channels []Channel, siteURL string, log *slog.Logger) (*Poster, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newPoster(api, store, channels, siteURL, log), nil
}

func newPoster(api telegramAPI, store Store, channels []Channel, siteURL string, log *slog.Logger) *Poster {
	return &Poster{
		api:      api,
		store:    store,
		channels: channels,
		siteURL:  strings.TrimRight(siteURL, "/"),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		log:      log,
	}
}

// SetRateLimit overrides the pacing between sends.
func (p *Poster) SetRateLimit(r rate.Limit) {
	p.limiter.SetLimit(r)
}

// PostNext publishes the next course. It reports false with a nil error when
// nothing is waiting to be posted. The course is marked posted once at least
// one channel accepted it.
func (p *Poster) PostNext(ctx context.Context) (bool, error) {
	if len(p.channels) == 0 {
		return false, ErrNoChannels
	}

	c, recycled, err := p.store.FindNextUnposted(ctx)
	if err != nil {
		return false, fmt.Errorf("find next course: %w", err)
	}
	if c == nil {
		p.log.Info("no pending courses to post")
		return false, nil
	}

	sent := 0
	var lastErr error
	for _, ch := range p.channels {
		if err := p.limiter.Wait(ctx); err != nil {
			return false, err
		}
		if _, err := p.api.Send(p.message(ch, c)); err != nil {
			p.log.Error("send course", "channel", ch, "course_id", c.ID, "error", err)
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 {
		return false, fmt.Errorf("post course %d: %w", c.ID, lastErr)
	}

	if err := p.store.MarkPosted(ctx, c.ID, recycled); err != nil {
		return false, fmt.Errorf("mark course %d posted: %w", c.ID, err)
	}

	execID := "telegram_post_" + uuid.NewString()
	if err := p.store.LogExecution(ctx, execID, model.ScraperTypeTelegram, model.StatusSuccess, map[string]any{
		"course_id":     c.ID,
		"course_title":  c.Title,
		"source":        string(c.Source),
		"channels_sent": sent,
		"recycled":      recycled,
	}); err != nil {
		p.log.Error("write execution log", "execution_id", execID, "error", err)
	}

	p.log.Info("course posted", "course_id", c.ID, "channels", sent, "of", len(p.channels), "recycled", recycled)
	return true, nil
}

func (p *Poster) message(ch Channel, c *model.Course) tgbotapi.Chattable {
	text := FormatCourse(c)
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🎓 Enroll", p.enrollURL(c))),
	)

	if c.ImageURL != "" {
		var photo tgbotapi.PhotoConfig
		if ch.Username != "" {
			photo = tgbotapi.NewPhotoToChannel(ch.Username, tgbotapi.FileURL(c.ImageURL))
		} else {
			photo = tgbotapi.NewPhoto(ch.ID, tgbotapi.FileURL(c.ImageURL))
		}
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeHTML
		photo.ReplyMarkup = markup
		return photo
	}

	var msg tgbotapi.MessageConfig
	if ch.Username != "" {
		msg = tgbotapi.NewMessageToChannel(ch.Username, text)
	} else {
		msg = tgbotapi.NewMessage(ch.ID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = markup
	return msg
}

func (p *Poster) enrollURL(c *model.Course) string {
	switch {
	case p.siteURL != "" && c.Slug != "":
		return p.siteURL + "/course/" + c.Slug
	case c.UdemyURL != "":
		return c.UdemyURL
	default:
		return c.CourseURL
	}
}

// FormatCourse renders the HTML caption of a course post.
func FormatCourse(c *model.Course) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🇺🇸 <b>%s</b>\n", html.EscapeString(c.Title))
	if desc := shorten(c.Description, descriptionLimit); desc != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", html.EscapeString(desc))
	}
	b.WriteString("\n")
	if c.Category != "" {
		fmt.Fprintf(&b, "🎯 Category: %s\n", html.EscapeString(c.Category))
	}
	if c.Instructor != "" {
		fmt.Fprintf(&b, "👤 Instructor: %s\n", html.EscapeString(c.Instructor))
	}
	if c.CouponCode != "" {
		fmt.Fprintf(&b, "🎟 Coupon: <code>%s</code>\n", html.EscapeString(c.CouponCode))
	}
	b.WriteString("\n#FreeCourse #Learning #OnlineEducation")
	return b.String()
}

func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

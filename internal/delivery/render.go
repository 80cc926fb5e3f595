package delivery

import (
	"errors"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invitation-app/internal/models"
)

// FallbackTemplate is tried when an event's own template file is missing.
const FallbackTemplate = "generic_party"

// InlinePhotoID is the content id of the photo embedded in invitation mail.
const InlinePhotoID = "event_photo"

const defaultTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <img src="{{photo_url}}" alt="" style="display: {{photo_display}}; max-width: 100%;">
  <h1>{{title}}</h1>
  <p>Dear {{guest_name}},</p>
  <p>{{host}} invites you.</p>
  <p>{{date}} at {{time}}<br>{{location}}</p>
  <p>{{message}}</p>
  <p><a href="{{rsvp_url}}">RSVP here</a></p>
</body>
</html>
`

// Renderer loads invitation templates from a directory and fills them in.
type Renderer struct {
	dir string
	log zerolog.Logger
}

func NewRenderer(dir string, log zerolog.Logger) *Renderer {
	return &Renderer{dir: dir, log: log.With().Str("component", "renderer").Logger()}
}

// Template returns the HTML of the named template. A missing template falls
// back to generic_party, then to a built-in page.
func (r *Renderer) Template(name string) string {
	for _, candidate := range []string{name, FallbackTemplate} {
		if !validTemplateName(candidate) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(r.dir, candidate+".html"))
		if err == nil {
			return string(raw)
		}
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn().Err(err).Str("template", candidate).Msg("read template")
		}
	}
	return defaultTemplate
}

func validTemplateName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Page fills in the values a rendered invitation needs beyond the event.
type Page struct {
	RSVPURL string
	// PhotoURL is the photo source. Empty selects the inline mail attachment.
	PhotoURL string
}

// Render substitutes the event and invitee into tmpl.
func Render(tmpl string, ev models.Event, inv models.Invitee, page Page) string {
	photoURL, photoDisplay := "", "none"
	if ev.Photo != nil && *ev.Photo != "" {
		photoURL, photoDisplay = page.PhotoURL, "block"
		if photoURL == "" {
			photoURL = "cid:" + InlinePhotoID
		}
	}
	return strings.NewReplacer(
		"{{title}}", escape(ev.Title),
		"{{host}}", escape(ev.Host),
		"{{date}}", escape(FormatDate(ev.Date)),
		"{{time}}", escape(FormatTime(ev.Time)),
		"{{location}}", escape(ev.Location),
		"{{message}}", escape(ev.Message),
		"{{guest_name}}", escape(inv.Name),
		"{{rsvp_url}}", html.EscapeString(page.RSVPURL),
		"{{photo_url}}", html.EscapeString(photoURL),
		"{{photo_display}}", photoDisplay,
	).Replace(tmpl)
}

// escape HTML-escapes stored text. Documents written before text was kept
// plain hold entity-encoded values, so those are decoded first.
func escape(s string) string {
	return html.EscapeString(html.UnescapeString(s))
}

// FormatDate renders a YYYY-MM-DD date as "January 02, 2006". Anything
// else is returned unchanged.
func FormatDate(s string) string {
	for _, layout := range []string{time.DateOnly, "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("January 02, 2006")
		}
	}
	return s
}

// FormatTime renders an HH:MM time as "03:04 PM". Anything else is returned
// unchanged.
func FormatTime(s string) string {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return s
	}
	return t.Format("03:04 PM")
}

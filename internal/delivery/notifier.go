package delivery

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"

	"invitation-app/internal/models"
)

// Notifier tells the organizer about RSVP changes.
type Notifier struct {
	mailer Mailer
	admin  string
	log    zerolog.Logger
}

// NewNotifier mails RSVP updates to admin. With no mailer or admin address
// notifications are only logged.
func NewNotifier(mailer Mailer, admin string, log zerolog.Logger) *Notifier {
	return &Notifier{mailer: mailer, admin: admin, log: log.With().Str("component", "notifier").Logger()}
}

// RSVPChanged reports that inv answered status for ev.
func (n *Notifier) RSVPChanged(ctx context.Context, ev models.Event, inv models.Invitee, status models.Status) error {
	if n.mailer == nil || n.admin == "" {
		n.log.Info().Str("event_id", ev.ID).Str("contact_id", inv.ContactID).Str("status", string(status)).Msg("rsvp changed")
		return nil
	}

	body := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 500px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">RSVP Update</h2>
  <p><strong>%s</strong> has responded to <strong>%s</strong>.</p>
  <p>New status: <strong style="color: #4A90D9;">%s</strong></p>
  <p>Event id: <code>%s</code></p>
</div>`, escape(inv.Name), escape(ev.Title), strings.ToUpper(string(status)), html.EscapeString(ev.ID))

	err := n.mailer.Send(ctx, Email{
		To:      n.admin,
		Subject: fmt.Sprintf("RSVP Update: %s - %s", html.UnescapeString(inv.Name), html.UnescapeString(ev.Title)),
		HTML:    body,
		Text:    fmt.Sprintf("%s responded '%s' to %s", html.UnescapeString(inv.Name), status, html.UnescapeString(ev.Title)),
	})
	if err != nil {
		return fmt.Errorf("notify admin: %w", err)
	}
	return nil
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types/events"

	"invitation-app/internal/delivery"
	eventsrepo "invitation-app/internal/events"
	"invitation-app/internal/ids"
	"invitation-app/internal/models"
)

// ReplyStore is the part of the event repository text replies need.
type ReplyStore interface {
	List() ([]models.Event, error)
	ResolveShortToken(shortToken string) (models.Event, models.Invitee, error)
	UpdateRSVP(token string, status models.Status) (models.Event, models.Invitee, error)
}

// RSVPHandler turns text message replies into RSVP updates.
type RSVPHandler struct {
	events   ReplyStore
	texter   delivery.Texter
	notifier Notifier
	log      zerolog.Logger
}

func NewRSVPHandler(store ReplyStore, texter delivery.Texter, notifier Notifier, log zerolog.Logger) *RSVPHandler {
	return &RSVPHandler{
		events:   store,
		texter:   texter,
		notifier: notifier,
		log:      log.With().Str("component", "replies").Logger(),
	}
}

// HandleMessage processes an inbound WhatsApp message.
func (h *RSVPHandler) HandleMessage(msg *events.Message) error {
	if msg.Message == nil {
		return nil
	}
	text := msg.Message.GetConversation()
	if text == "" {
		text = msg.Message.GetExtendedTextMessage().GetText()
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	phone := "+" + msg.Info.Sender.User
	reply, err := h.Reply(ctx, phone, text)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	if err := h.texter.SendText(ctx, phone, reply); err != nil {
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	return nil
}

// Reply records the RSVP carried by text from phone and returns the
// confirmation to send back. Messages that are not an RSVP get no reply.
func (h *RSVPHandler) Reply(ctx context.Context, phone, text string) (string, error) {
	status, ok := ParseReply(text)
	if !ok {
		return "", nil
	}

	invitee, err := h.findInvitee(phone, text)
	if errors.Is(err, errAmbiguous) {
		return "We found more than one invitation for this number. Please reply with the code from your invitation link, e.g. YES abcd1234.", nil
	}
	if errors.Is(err, eventsrepo.ErrNotFound) {
		h.log.Debug().Str("phone", phone).Msg("reply from unknown number")
		return "", nil
	}
	if err != nil {
		return "", err
	}

	ev, updated, err := h.events.UpdateRSVP(invitee.Token, status)
	if err != nil {
		return "", fmt.Errorf("failed to update RSVP: %w", err)
	}
	h.log.Info().Str("event_id", ev.ID).Str("contact_id", updated.ContactID).Str("status", string(status)).Msg("rsvp by reply")

	if invitee.Status != status && h.notifier != nil {
		if err := h.notifier.RSVPChanged(ctx, ev, updated, status); err != nil {
			h.log.Warn().Err(err).Msg("admin notification failed")
		}
	}
	return confirmation(ev, status), nil
}

var errAmbiguous = errors.New("more than one invitation matches")

// findInvitee prefers a short token quoted in the message and falls back to
// the single invitee with the sender's phone number.
func (h *RSVPHandler) findInvitee(phone, text string) (models.Invitee, error) {
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,!?;:()[]\"'")
		if len(word) != ids.ShortTokenLength {
			continue
		}
		_, invitee, err := h.events.ResolveShortToken(word)
		if err == nil {
			return invitee, nil
		}
		if !errors.Is(err, eventsrepo.ErrNotFound) {
			return models.Invitee{}, err
		}
	}

	all, err := h.events.List()
	if err != nil {
		return models.Invitee{}, err
	}
	var matches []models.Invitee
	for _, ev := range all {
		for _, invitee := range ev.Invitees {
			normalized, err := delivery.NormalizePhone(invitee.Phone)
			if err == nil && normalized == phone {
				matches = append(matches, invitee)
			}
		}
	}
	switch len(matches) {
	case 0:
		return models.Invitee{}, eventsrepo.ErrNotFound
	case 1:
		return matches[0], nil
	}
	return models.Invitee{}, errAmbiguous
}

var (
	// A bare "no" only declines at the start of a reply. Elsewhere it is
	// usually "no problem" or "no doubt".
	leadingDeclines = []string{"no", "nope", "nah"}
	declineKeywords = []string{"decline", "declining", "not coming", "cant come", "wont come", "cant make it", "cannot make it"}
	maybeKeywords   = []string{"maybe", "perhaps", "not sure", "might"}
	acceptKeywords  = []string{"yes", "yep", "yeah", "accept", "accepting", "attending", "coming", "will come", "will be there"}
)

// ParseReply maps a free-text reply to an RSVP status. Declines are checked
// first so "not coming" is not read as "coming".
func ParseReply(text string) (models.Status, bool) {
	normalized := normalizeReply(text)
	switch {
	case strings.Contains(text, "❌") || startsWithAny(normalized, leadingDeclines...) || containsAny(normalized, declineKeywords...):
		return models.StatusDeclined, true
	case strings.Contains(text, "🤔") || containsAny(normalized, maybeKeywords...):
		return models.StatusMaybe, true
	case strings.Contains(text, "✅") || containsAny(normalized, acceptKeywords...):
		return models.StatusAccepted, true
	}
	return "", false
}

// normalizeReply lowercases text, drops apostrophes and separates words by
// single spaces, with a space at each end.
func normalizeReply(text string) string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("'", "", "’", "").Replace(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '-')
	})
	return " " + strings.Join(words, " ") + " "
}

// containsAny checks if the text contains any of the given keywords as whole words
func containsAny(text string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, " "+keyword+" ") {
			return true
		}
	}
	return false
}

// startsWithAny reports whether the first word of text is one of keywords.
func startsWithAny(text string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.HasPrefix(text, " "+keyword+" ") {
			return true
		}
	}
	return false
}

func confirmation(ev models.Event, status models.Status) string {
	title := html.UnescapeString(ev.Title)
	when := delivery.FormatDate(ev.Date)

	switch status {
	case models.StatusAccepted:
		return fmt.Sprintf("🎉 Wonderful! Your RSVP for %s on %s is confirmed. See you there!", title, when)
	case models.StatusDeclined:
		return fmt.Sprintf("Thank you for letting us know. We're sorry you can't make it to %s.", title)
	default:
		return fmt.Sprintf("Thanks! We've noted you as a maybe for %s. Reply YES or NO once you know.", title)
	}
}

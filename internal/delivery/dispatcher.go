// Package delivery renders invitations and sends them by email and text
// message.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"invitation-app/internal/models"
)

// Channel names a delivery route.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelText  Channel = "sms"
)

// EventStore is the part of the event repository delivery needs.
type EventStore interface {
	BackfillShortTokens(id string) (models.Event, error)
	MarkEmailSent(id, contactID string) error
	MarkSMSSent(id, contactID string) error
}

// Options select who is sent what. Without force flags each invitee gets the
// channels of its send method that have not been used yet.
type Options struct {
	// ContactIDs limits the send to these invitees. Empty means everyone.
	ContactIDs []string
	// ForceEmail resends email to every selected invitee and sends nothing else.
	ForceEmail bool
	// ForceText resends a text message to every selected invitee and sends
	// nothing else. ForceEmail wins when both are set.
	ForceText bool
	EmailOnly bool
	TextOnly  bool
}

// Failure records one delivery that did not go out.
type Failure struct {
	ContactID string  `json:"contact_id"`
	Name      string  `json:"name"`
	Channel   Channel `json:"channel"`
	Err       error   `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s to %s: %v", f.Channel, f.Name, f.Err)
}

// Result summarizes a bulk send. Failures never abort the other invitees.
type Result struct {
	Sent     int       `json:"sent"`
	Failures []Failure `json:"failures"`
}

type DispatcherConfig struct {
	// BaseURL is the public origin, e.g. https://invites.example.com.
	BaseURL     string
	UploadsDir  string
	Concurrency int
	Attempts    int
	RetryDelay  time.Duration
}

// Dispatcher sends an event's invitations.
type Dispatcher struct {
	events   EventStore
	renderer *Renderer
	mailer   Mailer
	texter   Texter
	cfg      DispatcherConfig
	log      zerolog.Logger
}

// NewDispatcher wires the transports. A nil mailer or texter makes sends on
// that channel fail with ErrEmailDisabled or ErrTextDisabled.
func NewDispatcher(events EventStore, renderer *Renderer, mailer Mailer, texter Texter, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Dispatcher{
		events:   events,
		renderer: renderer,
		mailer:   mailer,
		texter:   texter,
		cfg:      cfg,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

type job struct {
	invitee models.Invitee
	channel Channel
}

// Send delivers the invitations of an event selected by opts. The returned
// error is set only when the event itself could not be loaded.
func (d *Dispatcher) Send(ctx context.Context, eventID string, opts Options) (Result, error) {
	// Text links carry the short token, which must be on disk before it is sent.
	ev, err := d.events.BackfillShortTokens(eventID)
	if err != nil {
		return Result{}, err
	}

	jobs := plan(ev, opts)
	tmpl := ""
	if slices.ContainsFunc(jobs, func(j job) bool { return j.channel == ChannelEmail }) {
		tmpl = d.renderer.Template(ev.Template)
	}

	var (
		mu     sync.Mutex
		result = Result{Failures: []Failure{}}
	)
	p := pool.New().WithMaxGoroutines(d.cfg.Concurrency)
	for _, j := range jobs {
		p.Go(func() {
			err := d.deliver(ctx, ev, tmpl, j)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, Failure{
					ContactID: j.invitee.ContactID,
					Name:      j.invitee.Name,
					Channel:   j.channel,
					Err:       err,
				})
				return
			}
			result.Sent++
		})
	}
	p.Wait()

	d.log.Info().
		Str("event_id", ev.ID).
		Int("sent", result.Sent).
		Int("failed", len(result.Failures)).
		Msg("invitations sent")
	return result, nil
}

// plan lists the deliveries opts asks for, in invitee order.
func plan(ev models.Event, opts Options) []job {
	var jobs []job
	for _, inv := range ev.Invitees {
		if len(opts.ContactIDs) > 0 && !slices.Contains(opts.ContactIDs, inv.ContactID) {
			continue
		}
		switch {
		case opts.ForceEmail:
			jobs = append(jobs, job{inv, ChannelEmail})
		case opts.ForceText:
			jobs = append(jobs, job{inv, ChannelText})
		default:
			if inv.SendMethod.UsesEmail() && inv.EmailSentAt == nil && !opts.TextOnly {
				jobs = append(jobs, job{inv, ChannelEmail})
			}
			if inv.SendMethod.UsesSMS() && inv.SMSSentAt == nil && strings.TrimSpace(inv.Phone) != "" && !opts.EmailOnly {
				jobs = append(jobs, job{inv, ChannelText})
			}
		}
	}
	return jobs
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.Event, tmpl string, j job) error {
	var send func() error
	switch j.channel {
	case ChannelEmail:
		send = func() error { return d.sendEmail(ctx, ev, tmpl, j.invitee) }
	case ChannelText:
		send = func() error { return d.sendText(ctx, ev, j.invitee) }
	default:
		return fmt.Errorf("unknown channel %q", j.channel)
	}

	err := retry.Do(send,
		retry.Context(ctx),
		retry.Attempts(uint(d.cfg.Attempts)),
		retry.Delay(d.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			d.log.Debug().Err(err).
				Str("contact_id", j.invitee.ContactID).
				Str("channel", string(j.channel)).
				Uint("attempt", n+1).
				Msg("retrying delivery")
		}),
	)
	if err != nil {
		d.log.Warn().Err(err).
			Str("event_id", ev.ID).
			Str("contact_id", j.invitee.ContactID).
			Str("channel", string(j.channel)).
			Msg("delivery failed")
		return err
	}

	if j.channel == ChannelEmail {
		err = d.events.MarkEmailSent(ev.ID, j.invitee.ContactID)
	} else {
		err = d.events.MarkSMSSent(ev.ID, j.invitee.ContactID)
	}
	if err != nil {
		return fmt.Errorf("record %s sent: %w", j.channel, err)
	}
	return nil
}

func retryable(err error) bool {
	return !errors.Is(err, ErrInvalidPhone) &&
		!errors.Is(err, ErrInvalidEmail) &&
		!errors.Is(err, ErrEmailDisabled) &&
		!errors.Is(err, ErrTextDisabled)
}

func (d *Dispatcher) sendEmail(ctx context.Context, ev models.Event, tmpl string, inv models.Invitee) error {
	if d.mailer == nil {
		return ErrEmailDisabled
	}
	email := Email{
		To:      inv.Email,
		ToName:  inv.Name,
		Subject: "You're Invited: " + html.UnescapeString(ev.Title),
		HTML:    Render(tmpl, ev, inv, Page{RSVPURL: d.cfg.BaseURL + "/rsvp/" + inv.Token}),
		Text: "You're invited! Please view this email in an HTML-capable email client " +
			"or visit your RSVP link to see the full invitation.",
	}
	if ev.Photo != nil && *ev.Photo != "" && d.cfg.UploadsDir != "" {
		email.InlineImage = filepath.Join(d.cfg.UploadsDir, filepath.Base(*ev.Photo))
	}
	return d.mailer.Send(ctx, email)
}

func (d *Dispatcher) sendText(ctx context.Context, ev models.Event, inv models.Invitee) error {
	if d.texter == nil {
		return ErrTextDisabled
	}
	phone, err := NormalizePhone(inv.Phone)
	if err != nil {
		return err
	}
	return d.texter.SendText(ctx, phone, FormatText(ev, d.cfg.BaseURL+"/r/"+inv.ShortToken))
}

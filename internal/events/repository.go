// Package events stores one JSON document per event and owns the lifecycle
// of the invitees embedded in it: token issue, token resolution and RSVP
// status changes.
package events

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invitation-app/internal/ids"
	"invitation-app/internal/models"
	"invitation-app/internal/storage"
	"invitation-app/internal/textutil"
)

var (
	ErrNotFound          = errors.New("event not found")
	ErrInvalidStatus     = errors.New("invalid invitee status")
	ErrInvalidSendMethod = errors.New("invalid send method")
	ErrTitleRequired     = errors.New("event title is required")
	ErrDateRequired      = errors.New("event date is required")
)

// DefaultTemplate is used when an event is created without one.
const DefaultTemplate = "generic_party"

// Fields are the scalar event attributes set at creation.
type Fields struct {
	Title    string
	Host     string
	Date     string
	Time     string
	Location string
	Message  string
	Template string
}

// Patch lists the event attributes to change. Nil members are left alone.
type Patch struct {
	Title    *string
	Host     *string
	Date     *string
	Time     *string
	Location *string
	Message  *string
	Template *string
	Photo    *string
	// ClearPhoto removes the photo reference. It wins over Photo.
	ClearPhoto bool
}

// Recipient is a contact together with the channel it should be invited on.
type Recipient struct {
	Contact    models.Contact
	SendMethod models.SendMethod
}

type Repository struct {
	store *storage.Store
	dir   string
	log   zerolog.Logger

	newID         func() string
	newToken      func() string
	newShortToken func() string
	now           func() string

	// beforeOpen runs before each document of a directory scan is opened.
	beforeOpen func(path string)
}

// NewRepository stores events in dir, one <id>.json file each.
func NewRepository(store *storage.Store, dir string, log zerolog.Logger) (*Repository, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("events directory not provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create events dir: %w", storage.ErrStorage, err)
	}
	return &Repository{
		store:         store,
		dir:           dir,
		log:           log.With().Str("component", "events").Logger(),
		newID:         ids.NewID,
		newToken:      ids.NewSecretToken,
		newShortToken: ids.NewShortToken,
		now:           ids.Now,
	}, nil
}

func (r *Repository) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}

func (r *Repository) normalize(ev *models.Event) {
	models.NormalizeEvent(ev, r.newShortToken)
}

// List returns every event, most recently modified first.
func (r *Repository) List() ([]models.Event, error) {
	files, err := r.files()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	events := make([]models.Event, 0, len(files))
	for _, f := range files {
		ev, ok, err := r.load(f.path)
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (r *Repository) Get(id string) (models.Event, error) {
	if !ids.ValidID(id) {
		return models.Event{}, ErrNotFound
	}
	ev, err := storage.ReadExisting[models.Event](r.store, r.path(id))
	if errors.Is(err, storage.ErrMissing) {
		return models.Event{}, ErrNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("get event: %w", err)
	}
	if ev.ID == "" {
		return models.Event{}, ErrNotFound
	}
	r.normalize(&ev)
	return ev, nil
}

// Create stores a new event inviting every recipient with status pending.
func (r *Repository) Create(fields Fields, photo *string, recipients []Recipient) (models.Event, error) {
	ev := models.Event{
		ID:        r.newID(),
		Title:     textutil.Sanitize(fields.Title),
		Host:      textutil.Sanitize(fields.Host),
		Date:      textutil.Sanitize(fields.Date),
		Time:      textutil.Sanitize(fields.Time),
		Location:  textutil.Sanitize(fields.Location),
		Message:   textutil.Sanitize(fields.Message),
		Template:  textutil.Sanitize(fields.Template),
		Photo:     photo,
		CreatedAt: r.now(),
		Invitees:  []models.Invitee{},
	}
	if ev.Title == "" {
		return models.Event{}, ErrTitleRequired
	}
	if ev.Date == "" {
		return models.Event{}, ErrDateRequired
	}
	if ev.Template == "" {
		ev.Template = DefaultTemplate
	}
	if _, err := r.appendInvitees(&ev, recipients); err != nil {
		return models.Event{}, err
	}

	if err := storage.Overwrite(r.store, r.path(ev.ID), ev); err != nil {
		return models.Event{}, fmt.Errorf("create event: %w", err)
	}

	r.log.Info().Str("event_id", ev.ID).Int("invitees", len(ev.Invitees)).Msg("event created")
	return ev, nil
}

// Update applies patch to the scalar fields of an event. Invitees are kept.
func (r *Repository) Update(id string, patch Patch) (models.Event, error) {
	var updated models.Event
	err := r.modify(id, func(ev *models.Event) error {
		set := func(dst *string, src *string) {
			if src != nil {
				*dst = textutil.Sanitize(*src)
			}
		}
		set(&ev.Title, patch.Title)
		set(&ev.Host, patch.Host)
		set(&ev.Date, patch.Date)
		set(&ev.Time, patch.Time)
		set(&ev.Location, patch.Location)
		set(&ev.Message, patch.Message)
		set(&ev.Template, patch.Template)
		// Only fields the patch sets are checked, so legacy documents with a
		// blank title or date stay editable.
		if patch.Title != nil && ev.Title == "" {
			return ErrTitleRequired
		}
		if patch.Date != nil && ev.Date == "" {
			return ErrDateRequired
		}
		switch {
		case patch.ClearPhoto:
			ev.Photo = nil
		case patch.Photo != nil:
			photo := *patch.Photo
			ev.Photo = &photo
		}
		updated = *ev
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}
	return updated, nil
}

// Delete removes the event document. It reports false if there was none.
// The photo file is left in place.
func (r *Repository) Delete(id string) (bool, error) {
	if !ids.ValidID(id) {
		return false, nil
	}
	removed, err := r.store.Remove(r.path(id))
	if err != nil {
		return false, fmt.Errorf("delete event: %w", err)
	}
	if removed {
		r.log.Info().Str("event_id", id).Msg("event deleted")
	}
	return removed, nil
}

// AddInvitees invites recipients not already on the event and returns the
// updated event together with the number of invitees added.
func (r *Repository) AddInvitees(id string, recipients []Recipient) (models.Event, int, error) {
	var (
		updated models.Event
		added   int
	)
	err := r.modify(id, func(ev *models.Event) error {
		n, err := r.appendInvitees(ev, recipients)
		if err != nil {
			return err
		}
		added = n
		updated = *ev
		if n == 0 {
			return storage.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return models.Event{}, 0, err
	}
	return updated, added, nil
}

func (r *Repository) appendInvitees(ev *models.Event, recipients []Recipient) (int, error) {
	added := 0
	for _, rc := range recipients {
		if ev.FindInvitee(rc.Contact.ID) >= 0 {
			continue
		}
		method, err := effectiveSendMethod(rc)
		if err != nil {
			return 0, err
		}
		ev.Invitees = append(ev.Invitees, models.Invitee{
			ContactID:  rc.Contact.ID,
			Name:       rc.Contact.Name,
			Email:      rc.Contact.Email,
			Phone:      rc.Contact.Phone,
			Token:      r.newToken(),
			ShortToken: r.newShortToken(),
			SendMethod: method,
			Status:     models.StatusPending,
		})
		added++
	}
	return added, nil
}

// effectiveSendMethod falls back to email for contacts without a phone.
func effectiveSendMethod(rc Recipient) (models.SendMethod, error) {
	method := rc.SendMethod
	if method == "" {
		method = models.SendEmail
	}
	if !method.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSendMethod, method)
	}
	if strings.TrimSpace(rc.Contact.Phone) == "" {
		method = models.SendEmail
	}
	return method, nil
}

// MarkEmailSent stamps email_sent_at on an invitee. Unknown ids are ignored.
func (r *Repository) MarkEmailSent(id, contactID string) error {
	return r.markSent(id, contactID, func(inv *models.Invitee, at string) { inv.EmailSentAt = &at })
}

// MarkSMSSent stamps sms_sent_at on an invitee. Unknown ids are ignored.
func (r *Repository) MarkSMSSent(id, contactID string) error {
	return r.markSent(id, contactID, func(inv *models.Invitee, at string) { inv.SMSSentAt = &at })
}

func (r *Repository) markSent(id, contactID string, stamp func(*models.Invitee, string)) error {
	err := r.modify(id, func(ev *models.Event) error {
		i := ev.FindInvitee(contactID)
		if i < 0 {
			return storage.ErrSkipWrite
		}
		stamp(&ev.Invitees[i], r.now())
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// BackfillShortTokens persists the normalized form of an event, giving
// invitees written before short tokens existed a stable one. Without it each
// read would invent a different short token for them.
func (r *Repository) BackfillShortTokens(id string) (models.Event, error) {
	if !ids.ValidID(id) {
		return models.Event{}, ErrNotFound
	}
	var updated models.Event
	err := storage.TransactExisting(r.store, r.path(id), func(ev *models.Event) error {
		changed := models.NormalizeEvent(ev, r.newShortToken)
		updated = *ev
		if !changed {
			return storage.ErrSkipWrite
		}
		return nil
	})
	if errors.Is(err, storage.ErrMissing) {
		return models.Event{}, ErrNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("backfill short tokens: %w", err)
	}
	return updated, nil
}

// ResolveToken finds the event and invitee holding token.
func (r *Repository) ResolveToken(token string) (models.Event, models.Invitee, error) {
	return r.resolve(token, (*models.Event).FindToken)
}

// ResolveShortToken finds the event and invitee holding shortToken.
func (r *Repository) ResolveShortToken(shortToken string) (models.Event, models.Invitee, error) {
	return r.resolve(shortToken, (*models.Event).FindShortToken)
}

func (r *Repository) resolve(token string, find func(*models.Event, string) int) (models.Event, models.Invitee, error) {
	if strings.TrimSpace(token) == "" {
		return models.Event{}, models.Invitee{}, ErrNotFound
	}
	var (
		event   models.Event
		invitee models.Invitee
	)
	found, err := r.scan(func(path string, ev models.Event) (bool, error) {
		i := find(&ev, token)
		if i < 0 {
			return false, nil
		}
		event, invitee = ev, ev.Invitees[i]
		return true, nil
	})
	if err != nil {
		return models.Event{}, models.Invitee{}, err
	}
	if !found {
		return models.Event{}, models.Invitee{}, ErrNotFound
	}
	return event, invitee, nil
}

// UpdateRSVP records a guest's answer. Only accepted, declined and maybe are
// accepted. The invitee is re-located inside the exclusive transaction that
// rewrites its event, so concurrent answers for one token cannot interleave.
func (r *Repository) UpdateRSVP(token string, status models.Status) (models.Event, models.Invitee, error) {
	if !status.IsResponse() {
		return models.Event{}, models.Invitee{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if strings.TrimSpace(token) == "" {
		return models.Event{}, models.Invitee{}, ErrNotFound
	}

	var (
		event   models.Event
		invitee models.Invitee
	)
	found, err := r.scan(func(path string, ev models.Event) (bool, error) {
		if ev.FindToken(token) < 0 {
			return false, nil
		}
		updated := false
		err := storage.TransactExisting(r.store, path, func(doc *models.Event) error {
			r.normalize(doc)
			i := doc.FindToken(token)
			if i < 0 {
				return storage.ErrSkipWrite
			}
			setStatus(&doc.Invitees[i], status, r.now())
			event, invitee, updated = *doc, doc.Invitees[i], true
			return nil
		})
		if errors.Is(err, storage.ErrMissing) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("update rsvp: %w", err)
		}
		return updated, nil
	})
	if err != nil {
		return models.Event{}, models.Invitee{}, err
	}
	if !found {
		return models.Event{}, models.Invitee{}, ErrNotFound
	}

	r.log.Info().
		Str("event_id", event.ID).
		Str("contact_id", invitee.ContactID).
		Str("status", string(status)).
		Msg("rsvp recorded")
	return event, invitee, nil
}

// SetStatus is the admin override. It accepts pending as well as the guest
// answers and reports whether an invitee was updated.
func (r *Repository) SetStatus(id, contactID string, status models.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	updated := false
	err := r.modify(id, func(ev *models.Event) error {
		i := ev.FindInvitee(contactID)
		if i < 0 {
			return storage.ErrSkipWrite
		}
		setStatus(&ev.Invitees[i], status, r.now())
		updated = true
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return updated, nil
}

func setStatus(inv *models.Invitee, status models.Status, at string) {
	inv.Status = status
	inv.RespondedAt = &at
}

// modify runs fn on a normalized event inside an exclusive transaction.
func (r *Repository) modify(id string, fn func(ev *models.Event) error) error {
	if !ids.ValidID(id) {
		return ErrNotFound
	}
	err := storage.TransactExisting(r.store, r.path(id), func(ev *models.Event) error {
		if ev.ID == "" {
			return ErrNotFound
		}
		r.normalize(ev)
		return fn(ev)
	})
	if errors.Is(err, storage.ErrMissing) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("modify event %s: %w", id, err)
	}
	return nil
}

type eventFile struct {
	path    string
	modTime time.Time
}

// files lists the event documents in name order. Entries that disappear
// while being listed are dropped.
func (r *Repository) files() ([]eventFile, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %w", storage.ErrStorage, err)
	}
	files := make([]eventFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %w", storage.ErrStorage, entry.Name(), err)
		}
		files = append(files, eventFile{path: filepath.Join(r.dir, entry.Name()), modTime: info.ModTime()})
	}
	return files, nil
}

// load reads one event under a shared lock. ok is false when the document
// vanished after it was listed, or when it is still empty because Create has
// opened it but not yet written it.
func (r *Repository) load(path string) (models.Event, bool, error) {
	if r.beforeOpen != nil {
		r.beforeOpen(path)
	}
	ev, err := storage.ReadExisting[models.Event](r.store, path)
	if errors.Is(err, storage.ErrMissing) {
		r.log.Warn().Str("path", path).Msg("event removed during scan")
		return models.Event{}, false, nil
	}
	if err != nil {
		return models.Event{}, false, err
	}
	if ev.ID == "" {
		r.log.Debug().Str("path", path).Msg("skipping event not yet written")
		return models.Event{}, false, nil
	}
	r.normalize(&ev)
	return ev, true, nil
}

// scan visits events one shared lock at a time until visit reports a match.
func (r *Repository) scan(visit func(path string, ev models.Event) (bool, error)) (bool, error) {
	files, err := r.files()
	if err != nil {
		return false, err
	}
	for _, f := range files {
		ev, ok, err := r.load(f.path)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		done, err := visit(f.path, ev)
		if err != nil || done {
			return done, err
		}
	}
	return false, nil
}

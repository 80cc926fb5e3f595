package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invitation-app/internal/ids"
	"invitation-app/internal/models"
	"invitation-app/internal/storage"
)

const (
	firstID = "00000000-0000-4000-8000-000000000000"
	lastID  = "ffffffff-ffff-4fff-bfff-ffffffffffff"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(storage.New(zerolog.Nop()), filepath.Join(t.TempDir(), "events"), zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func contact(name, email, phone string) models.Contact {
	return models.Contact{ID: ids.NewID(), Name: name, Email: email, Phone: phone, Tags: []string{}}
}

func recipients(method models.SendMethod, contacts ...models.Contact) []Recipient {
	out := make([]Recipient, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, Recipient{Contact: c, SendMethod: method})
	}
	return out
}

func createEvent(t *testing.T, repo *Repository, title string, rs []Recipient) models.Event {
	t.Helper()
	ev, err := repo.Create(Fields{Title: title, Date: "2025-06-01", Time: "18:30"}, nil, rs)
	require.NoError(t, err)
	return ev
}

func writeRaw(t *testing.T, repo *Repository, id, doc string) string {
	t.Helper()
	path := repo.path(id)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestCreateAndResolve(t *testing.T) {
	repo := setupRepository(t)
	ann := contact("Ann", "a@x.com", "")

	ev := createEvent(t, repo, "Launch Party", recipients(models.SendSMS, ann))
	require.Len(t, ev.Invitees, 1)
	inv := ev.Invitees[0]
	assert.Equal(t, models.SendEmail, inv.SendMethod)
	assert.Equal(t, models.StatusPending, inv.Status)
	assert.Nil(t, inv.RespondedAt)
	assert.Len(t, inv.Token, 64)
	assert.Len(t, inv.ShortToken, ids.ShortTokenLength)
	assert.Equal(t, DefaultTemplate, ev.Template)

	gotEvent, gotInvitee, err := repo.ResolveToken(inv.Token)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, gotEvent.ID)
	assert.Equal(t, inv, gotInvitee)

	gotEvent, gotInvitee, err = repo.ResolveShortToken(inv.ShortToken)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, gotEvent.ID)
	assert.Equal(t, inv.Token, gotInvitee.Token)
}

func TestCreate_KeepsSMSWhenPhonePresent(t *testing.T) {
	repo := setupRepository(t)
	ev := createEvent(t, repo, "Dinner", []Recipient{
		{Contact: contact("Bo", "b@x.com", "5551234567"), SendMethod: models.SendBoth},
		{Contact: contact("Cy", "c@x.com", "  "), SendMethod: models.SendBoth},
		{Contact: contact("Di", "d@x.com", "5550000000")},
	})
	require.Len(t, ev.Invitees, 3)
	assert.Equal(t, models.SendBoth, ev.Invitees[0].SendMethod)
	assert.Equal(t, models.SendEmail, ev.Invitees[1].SendMethod)
	assert.Equal(t, models.SendEmail, ev.Invitees[2].SendMethod)
}

func TestCreate_Validation(t *testing.T) {
	repo := setupRepository(t)

	_, err := repo.Create(Fields{Date: "2025-01-01"}, nil, nil)
	assert.ErrorIs(t, err, ErrTitleRequired)
	_, err = repo.Create(Fields{Title: "<b></b>", Date: "2025-01-01"}, nil, nil)
	assert.ErrorIs(t, err, ErrTitleRequired)
	_, err = repo.Create(Fields{Title: "Party"}, nil, nil)
	assert.ErrorIs(t, err, ErrDateRequired)
	_, err = repo.Create(Fields{Title: "Party", Date: "2025-01-01"}, nil, recipients("fax", contact("A", "a@x.com", "")))
	assert.ErrorIs(t, err, ErrInvalidSendMethod)

	all, err := repo.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_SanitizesAndDedupsContacts(t *testing.T) {
	repo := setupRepository(t)
	ann := contact("Ann", "a@x.com", "")
	photo := "party.jpg"

	ev, err := repo.Create(Fields{
		Title:    " <script>alert(1)</script>Launch ",
		Date:     "2025-06-01",
		Location: "<i>Roof</i>",
		Template: "elegant",
	}, &photo, recipients(models.SendEmail, ann, ann))
	require.NoError(t, err)

	assert.Equal(t, "Launch", ev.Title)
	assert.Equal(t, "Roof", ev.Location)
	assert.Equal(t, "elegant", ev.Template)
	require.NotNil(t, ev.Photo)
	assert.Equal(t, "party.jpg", *ev.Photo)
	assert.Len(t, ev.Invitees, 1)

	stored, err := repo.Get(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev, stored)
}

func TestTokensAreGloballyUnique(t *testing.T) {
	repo := setupRepository(t)
	tokens := map[string]bool{}
	shorts := map[string]bool{}

	for e := 0; e < 20; e++ {
		var cs []models.Contact
		for i := 0; i < 10; i++ {
			cs = append(cs, contact("Guest", "g@x.com", ""))
		}
		createEvent(t, repo, "Event", recipients(models.SendEmail, cs...))
	}

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 20)
	for _, ev := range all {
		for _, inv := range ev.Invitees {
			assert.False(t, tokens[inv.Token], "duplicate token")
			assert.False(t, shorts[inv.ShortToken], "duplicate short token")
			tokens[inv.Token] = true
			shorts[inv.ShortToken] = true
		}
	}
	assert.Len(t, tokens, 200)
	assert.Len(t, shorts, 200)
}

func TestResolve_Unknown(t *testing.T) {
	repo := setupRepository(t)
	createEvent(t, repo, "Party", recipients(models.SendEmail, contact("A", "a@x.com", "")))

	_, _, err := repo.ResolveToken("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = repo.ResolveToken("  ")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = repo.ResolveShortToken("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_RejectsPathLikeIDs(t *testing.T) {
	repo := setupRepository(t)
	_, err := repo.Get("../contacts")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Get(ids.NewID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRSVP(t *testing.T) {
	repo := setupRepository(t)
	ev := createEvent(t, repo, "Party", recipients(models.SendEmail, contact("A", "a@x.com", "")))
	token := ev.Invitees[0].Token

	gotEvent, inv, err := repo.UpdateRSVP(token, models.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, gotEvent.ID)
	assert.Equal(t, models.StatusAccepted, inv.Status)
	require.NotNil(t, inv.RespondedAt)

	stored, err := repo.Get(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Invitees[0].Status)
	assert.Equal(t, inv.RespondedAt, stored.Invitees[0].RespondedAt)
}

func TestUpdateRSVP_RejectsInvalidStatus(t *testing.T) {
	repo := setupRepository(t)
	ev := createEvent(t, repo, "Party", recipients(models.SendEmail, contact("A", "a@x.com", "")))
	token := ev.Invitees[0].Token

	for _, status := range []models.Status{models.StatusPending, "", "yes", "ACCEPTED"} {
		_, _, err := repo.UpdateRSVP(token, status)
		assert.ErrorIs(t, err, ErrInvalidStatus, "status %q", status)
	}

	stored, err := repo.Get(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Invitees[0], stored.Invitees[0])
}

func TestUpdateRSVP_UnknownToken(t *testing.T) {
	repo := setupRepository(t)
	createEvent(t, repo, "Party", recipients(models.SendEmail, contact("A", "a@x.com", "")))

	_, _, err := repo.UpdateRSVP("unknown", models.StatusDeclined)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRSVP_Race(t *testing.T) {
	repo := setupRepository(t)
	ev := createEvent(t, repo, "Party", recipients(models.SendEmail, contact("A", "a@x.com", ""), contact("B", "b@x.com", "")))
	token := ev.Invitees[0].Token

	for round := 0; round < 10; round++ {
		var wg sync.WaitGroup
		for _, status := range []models.Status{models.StatusAccepted, models.StatusDeclined} {
			wg.Add(1)
			go func(status models.Status) {
				defer wg.Done()
				_, _, err := repo.UpdateRSVP(token, status)
				assert.NoError(t, err)
			}(status)
		}
		wg.Wait()

		stored, err := repo.Get(ev.ID)
		require.NoError(t, err)
		require.Len(t, stored.Invitees, 2)
		assert.Contains(t, []models.Status{models.StatusAccepted, models.StatusDeclined}, stored.Invitees[0].Status)
		assert.NotNil(t, stored.Invitees[0].RespondedAt)
		assert.Equal(t, models.StatusPending, stored.Invitees[1].Status)
	}
}

func TestUpdateRSVP_ConcurrentInviteesNoLostUpdates(t *testing.T) {
	repo := setupRepository(t)
	var cs []models.Contact
	for i := 0; i < 30; i++ {
		cs = append(cs, contact("Guest", "g@x.com", ""))
	}
	ev := createEvent(t, repo, "Big party", recipients(models.SendEmail, cs...))

	var wg sync.WaitGroup
	for _, inv := range ev.Invitees {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			_, _, err := repo.UpdateRSVP(token, models.StatusMaybe)
			assert.NoError(t, err)
		}(inv.Token)
	}
	wg.Wait()

	stored, err := repo.Get(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 30, Maybe: 30}, ComputeStats(stored))
}

func TestStatusTransitionsAreFullyConnected(t *testing.T) {
	repo := setupRepository(t)
	ev := createEvent(t, repo, "Party", recipients(models.SendEmail, contact("A", "a@x.com", "")))
	inv := ev.Invitees[0]

	_, _, err := repo.UpdateRSVP(inv.Token, models.StatusAccepted)
	require.NoError(t, err)
	_, _, err = repo.UpdateRSVP(inv.Token, models.StatusDeclined)
	require.NoError(t, err)
	ok, err := repo.SetStatus(ev.ID, inv.ContactID, models.StatusPending)
	require.NoError(t, err)
	require.True(t, ok)
	_, got, err := repo.UpdateRSVP(inv.Token, models.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)
}

func TestSetStatus(t *testing.T) {
	repo := setupRepository(t)
	ev := createEvent(t, repo, "Party", recipients(models.SendEmail, contact("A", "a@x.com", "")))
	contactID := ev.Invitees[0].ContactID

	ok, err := repo.SetStatus(ev.ID, contactID, models.StatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.Get(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Invitees[0].Status)
	assert.NotNil(t, stored.Invitees[0].RespondedAt)

	ok, err = repo.SetStatus(ev.ID, "someone-else", models.StatusAccepted)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.SetStatus(ids.NewID(), contactID, models.StatusAccepted)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.SetStatus(ev.ID, contactID, "attending")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdate(t *testing.T) {
	repo := setupRepository(t)
	photo := "a.jpg"
	ev, err := repo.Create(Fields{Title: "Party", Host: "Jo", Date: "2025-06-01"}, &photo,
		recipients(models.SendEmail, contact("A", "a@x.com", "")))
	require.NoError(t, err)

	title := " New <b>title</b> "
	updated, err := repo.Update(ev.ID, Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "Jo", updated.Host)
	assert.Equal(t, ev.Invitees, updated.Invitees)
	assert.Equal(t, "a.jpg", *updated.Photo)

	newPhoto := "b.png"
	updated, err = repo.Update(ev.ID, Patch{Photo: &newPhoto})
	require.NoError(t, err)
	assert.Equal(t, "b.png", *updated.Photo)

	updated, err = repo.Update(ev.ID, Patch{ClearPhoto: true})
	require.NoError(t, err)
	assert.Nil(t, updated.Photo)

	empty := ""
	_, err = repo.Update(ev.ID, Patch{Date: &empty})
	assert.ErrorIs(t, err, ErrDateRequired)

	_, err = repo.Update(ids.NewID(), Patch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_LegacyBlankFieldsOnlyCheckedWhenPatched(t *testing.T) {
	repo := setupRepository(t)
	writeRaw(t, repo, firstID, `{"id":"`+firstID+`","title":"","date":"","invitees":[]}`)

	photo := "c.jpg"
	updated, err := repo.Update(firstID, Patch{Photo: &photo})
	require.NoError(t, err)
	assert.Equal(t, "c.jpg", *updated.Photo)
	assert.Empty(t, updated.Title)

	host := "Jo"
	_, err = repo.Update(firstID, Patch{Host: &host})
	require.NoError(t, err)

	empty := ""
	_, err = repo.Update(firstID, Patch{Title: &empty})
	assert.ErrorIs(t, err, ErrTitleRequired)
	_, err = repo.Update(firstID, Patch{Date: &empty})
	assert.ErrorIs(t, err, ErrDateRequired)

	title, date := "Named", "2025-06-01"
	updated, err = repo.Update(firstID, Patch{Title: &title, Date: &date})
	require.NoError(t, err)
	assert.Equal(t, "Named", updated.Title)
	assert.Equal(t, "Jo", updated.Host)
}

func TestDelete(t *testing.T) {
	repo := setupRepository(t)
	ev := createEvent(t, repo, "Party", nil)

	removed, err := repo.Delete(ev.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ev.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = repo.Get(ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddInvitees(t *testing.T) {
	repo := setupRepository(t)
	ann, bob := contact("Ann", "a@x.com", ""), contact("Bob", "b@x.com", "555")
	ev := createEvent(t, repo, "Party", recipients(models.SendEmail, ann))

	updated, added, err := repo.AddInvitees(ev.ID, recipients(models.SendSMS, ann, bob))
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	require.Len(t, updated.Invitees, 2)
	assert.Equal(t, ev.Invitees[0], updated.Invitees[0])
	assert.Equal(t, bob.ID, updated.Invitees[1].ContactID)
	assert.Equal(t, models.SendSMS, updated.Invitees[1].SendMethod)

	_, added, err = repo.AddInvitees(ev.ID, recipients(models.SendEmail, ann, bob))
	require.NoError(t, err)
	assert.Zero(t, added)

	_, _, err = repo.AddInvitees(ids.NewID(), recipients(models.SendEmail, ann))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkSent_Concurrent(t *testing.T) {
	repo := setupRepository(t)
	var cs []models.Contact
	for i := 0; i < 20; i++ {
		cs = append(cs, contact("Guest", "g@x.com", "5551234567"))
	}
	ev := createEvent(t, repo, "Party", recipients(models.SendBoth, cs...))

	var wg sync.WaitGroup
	for _, inv := range ev.Invitees {
		wg.Add(2)
		go func(contactID string) {
			defer wg.Done()
			assert.NoError(t, repo.MarkEmailSent(ev.ID, contactID))
		}(inv.ContactID)
		go func(contactID string) {
			defer wg.Done()
			assert.NoError(t, repo.MarkSMSSent(ev.ID, contactID))
		}(inv.ContactID)
	}
	wg.Wait()

	stored, err := repo.Get(ev.ID)
	require.NoError(t, err)
	for _, inv := range stored.Invitees {
		assert.NotNil(t, inv.EmailSentAt)
		assert.NotNil(t, inv.SMSSentAt)
	}

	assert.NoError(t, repo.MarkEmailSent(ev.ID, "nobody"))
	assert.NoError(t, repo.MarkSMSSent(ids.NewID(), "nobody"))
}

func TestList_NewestModificationFirst(t *testing.T) {
	repo := setupRepository(t)
	older := createEvent(t, repo, "Older", nil)
	newer := createEvent(t, repo, "Newer", nil)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(repo.path(newer.ID), past, past))

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, older.ID, all[0].ID)
	assert.Equal(t, newer.ID, all[1].ID)
}

func TestUnwrittenEventIsInvisible(t *testing.T) {
	repo := setupRepository(t)
	ev := createEvent(t, repo, "Party", recipients(models.SendEmail, contact("A", "a@x.com", "")))
	writeRaw(t, repo, firstID, "")

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ev.ID, all[0].ID)

	_, err = repo.Get(firstID)
	assert.ErrorIs(t, err, ErrNotFound)
	title := "x"
	_, err = repo.Update(firstID, Patch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := os.ReadFile(repo.path(firstID))
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestList_ConcurrentWithCreate(t *testing.T) {
	repo := setupRepository(t)
	done := make(chan struct{})

	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				all, err := repo.List()
				if !assert.NoError(t, err) {
					return
				}
				for _, ev := range all {
					assert.NotEmpty(t, ev.ID)
					assert.Equal(t, "Party", ev.Title)
				}
			}
		}()
	}

	var writers sync.WaitGroup
	for i := 0; i < 50; i++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			_, err := repo.Create(Fields{Title: "Party", Date: "2025-06-01"}, nil, nil)
			assert.NoError(t, err)
		}()
	}
	writers.Wait()
	close(done)
	readers.Wait()

	all, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, all, 50)
}

func TestLegacyRecordsNormalizeWithoutWriting(t *testing.T) {
	repo := setupRepository(t)
	doc := `{"id":"` + firstID + `","title":"Old","date":"2020-01-01","invitees":[` +
		`{"contact_id":"c1","name":"Ann","email":"a@x.com","token":"tok1","status":"accepted","sent_at":"2020-01-02T00:00:00Z"}]}`
	path := writeRaw(t, repo, firstID, doc)

	ev, err := repo.Get(firstID)
	require.NoError(t, err)
	inv := ev.Invitees[0]
	assert.Equal(t, models.SendEmail, inv.SendMethod)
	assert.Len(t, inv.ShortToken, ids.ShortTokenLength)
	require.NotNil(t, inv.EmailSentAt)
	assert.Equal(t, "2020-01-02T00:00:00Z", *inv.EmailSentAt)
	assert.Nil(t, inv.LegacySentAt)

	_, resolved, err := repo.ResolveToken("tok1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", resolved.Name)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, doc, string(raw))
}

func TestBackfillShortTokens(t *testing.T) {
	repo := setupRepository(t)
	writeRaw(t, repo, firstID, `{"id":"`+firstID+`","title":"Old","date":"2020-01-01","invitees":[`+
		`{"contact_id":"c1","name":"Ann","email":"a@x.com","phone":"555","token":"tok1","send_method":"sms","status":"pending"}]}`)

	ev, err := repo.BackfillShortTokens(firstID)
	require.NoError(t, err)
	short := ev.Invitees[0].ShortToken
	require.Len(t, short, ids.ShortTokenLength)

	again, err := repo.Get(firstID)
	require.NoError(t, err)
	assert.Equal(t, short, again.Invitees[0].ShortToken)

	_, inv, err := repo.ResolveShortToken(short)
	require.NoError(t, err)
	assert.Equal(t, "tok1", inv.Token)

	_, err = repo.BackfillShortTokens(ids.NewID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownFieldsSurviveRewrite(t *testing.T) {
	repo := setupRepository(t)
	path := writeRaw(t, repo, firstID, `{"id":"`+firstID+`","title":"Party","date":"2025-01-01","theme":{"color":"red"},"invitees":[`+
		`{"contact_id":"c1","name":"Ann","email":"a@x.com","token":"tok1","short_token":"abcdefgh","send_method":"email","status":"pending","plus_one":true}]}`)

	ok, err := repo.SetStatus(firstID, "c1", models.StatusAccepted)
	require.NoError(t, err)
	require.True(t, ok)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, map[string]any{"color": "red"}, doc["theme"])
	inv := doc["invitees"].([]any)[0].(map[string]any)
	assert.Equal(t, true, inv["plus_one"])
	assert.Equal(t, "accepted", inv["status"])
}

func TestResolve_EventDeletedMidScan(t *testing.T) {
	repo := setupRepository(t)
	pathA := writeRaw(t, repo, firstID, `{"id":"`+firstID+`","title":"A","date":"2025-01-01","invitees":[`+
		`{"contact_id":"c1","token":"tokA","short_token":"shortAAA","send_method":"email","status":"pending"}]}`)
	writeRaw(t, repo, lastID, `{"id":"`+lastID+`","title":"B","date":"2025-01-01","invitees":[`+
		`{"contact_id":"c2","token":"tokB","short_token":"shortBBB","send_method":"email","status":"pending"}]}`)

	var visited []string
	repo.beforeOpen = func(path string) {
		visited = append(visited, path)
		if path == pathA {
			require.NoError(t, os.Remove(pathA))
		}
	}

	ev, inv, err := repo.ResolveToken("tokB")
	require.NoError(t, err)
	assert.Equal(t, lastID, ev.ID)
	assert.Equal(t, "c2", inv.ContactID)
	assert.Equal(t, pathA, visited[0])

	repo.beforeOpen = nil
	_, _, err = repo.UpdateRSVP("tokA", models.StatusAccepted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRSVP_EventDeletedMidScan(t *testing.T) {
	repo := setupRepository(t)
	pathA := writeRaw(t, repo, firstID, `{"id":"`+firstID+`","title":"A","date":"2025-01-01","invitees":[]}`)
	writeRaw(t, repo, lastID, `{"id":"`+lastID+`","title":"B","date":"2025-01-01","invitees":[`+
		`{"contact_id":"c2","token":"tokB","short_token":"shortBBB","send_method":"email","status":"pending"}]}`)
	repo.beforeOpen = func(path string) {
		if path == pathA {
			_ = os.Remove(pathA)
		}
	}

	_, inv, err := repo.UpdateRSVP("tokB", models.StatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, inv.Status)
}

func TestCorruptEventAbortsScan(t *testing.T) {
	repo := setupRepository(t)
	writeRaw(t, repo, firstID, `{"id": `)

	_, _, err := repo.ResolveToken("anything")
	assert.ErrorIs(t, err, storage.ErrCorruptDocument)
	_, err = repo.List()
	assert.ErrorIs(t, err, storage.ErrCorruptDocument)
}

func TestComputeStats(t *testing.T) {
	ev := models.Event{Invitees: []models.Invitee{
		{Status: models.StatusAccepted},
		{Status: models.StatusAccepted},
		{Status: models.StatusDeclined},
		{Status: models.StatusMaybe},
		{Status: models.StatusPending},
	}}
	assert.Equal(t, Stats{Total: 5, Accepted: 2, Declined: 1, Maybe: 1, Pending: 1}, ComputeStats(ev))
	assert.Equal(t, Stats{}, ComputeStats(models.Event{}))
}

package models

// NormalizeInvitee backfills fields missing from invitees written by older
// versions and migrates sent_at into email_sent_at. It only touches the value
// in memory and reports whether anything changed. newShortToken is called
// solely for invitees without a short token; a second call is a no-op.
func NormalizeInvitee(inv *Invitee, newShortToken func() string) bool {
	changed := false
	if inv.ShortToken == "" {
		inv.ShortToken = newShortToken()
		changed = true
	}
	if inv.SendMethod == "" {
		inv.SendMethod = SendEmail
		changed = true
	}
	if inv.Status == "" {
		inv.Status = StatusPending
		changed = true
	}
	if inv.LegacySentAt != nil {
		if inv.EmailSentAt == nil {
			inv.EmailSentAt = inv.LegacySentAt
		}
		inv.LegacySentAt = nil
		changed = true
	}
	return changed
}

// NormalizeEvent applies NormalizeInvitee to every invitee.
func NormalizeEvent(ev *Event, newShortToken func() string) bool {
	changed := false
	if ev.Invitees == nil {
		ev.Invitees = []Invitee{}
	}
	for i := range ev.Invitees {
		if NormalizeInvitee(&ev.Invitees[i], newShortToken) {
			changed = true
		}
	}
	return changed
}

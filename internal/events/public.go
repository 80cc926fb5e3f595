package events

import "invitation-app/internal/models"

// PublicEvent is what an invitee may see of an event: everything except the
// guest list and its tokens.
type PublicEvent struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Host     string  `json:"host"`
	Date     string  `json:"date"`
	Time     string  `json:"time"`
	Location string  `json:"location"`
	Message  string  `json:"message"`
	Template string  `json:"template"`
	Photo    *string `json:"photo"`
}

// PublicInvitee is the invitee's own view of its invitation.
type PublicInvitee struct {
	Name        string        `json:"name"`
	Status      models.Status `json:"status"`
	RespondedAt *string       `json:"responded_at"`
}

func PublicView(ev models.Event) PublicEvent {
	return PublicEvent{
		ID:       ev.ID,
		Title:    ev.Title,
		Host:     ev.Host,
		Date:     ev.Date,
		Time:     ev.Time,
		Location: ev.Location,
		Message:  ev.Message,
		Template: ev.Template,
		Photo:    ev.Photo,
	}
}

func PublicInviteeView(inv models.Invitee) PublicInvitee {
	return PublicInvitee{Name: inv.Name, Status: inv.Status, RespondedAt: inv.RespondedAt}
}

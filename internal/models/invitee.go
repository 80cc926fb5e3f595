package models

import "reflect"

// Status is an invitee's attendance answer.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusMaybe    Status = "maybe"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusAccepted, StatusDeclined, StatusMaybe}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s.IsResponse()
}

// IsResponse reports whether s is a status a guest may choose themselves.
func (s Status) IsResponse() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusMaybe:
		return true
	}
	return false
}

// SendMethod selects the channels an invitation goes out on.
type SendMethod string

const (
	SendEmail SendMethod = "email"
	SendSMS   SendMethod = "sms"
	SendBoth  SendMethod = "both"
)

func (m SendMethod) Valid() bool {
	return m == SendEmail || m == SendSMS || m == SendBoth
}

func (m SendMethod) UsesEmail() bool { return m == SendEmail || m == SendBoth }
func (m SendMethod) UsesSMS() bool   { return m == SendSMS || m == SendBoth }

// Invitee is one contact's invitation state inside an event. Name, email and
// phone are copied from the contact when invited and never refreshed.
type Invitee struct {
	ContactID   string     `json:"contact_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Token       string     `json:"token"`
	ShortToken  string     `json:"short_token"`
	SendMethod  SendMethod `json:"send_method"`
	Status      Status     `json:"status"`
	RespondedAt *string    `json:"responded_at"`
	EmailSentAt *string    `json:"email_sent_at"`
	SMSSentAt   *string    `json:"sms_sent_at"`

	// LegacySentAt is the pre-SMS name of EmailSentAt.
	LegacySentAt *string `json:"sent_at,omitempty"`

	Extra Extra `json:"-"`
}

var inviteeFields = fieldNames(reflect.TypeOf(Invitee{}))

func (i *Invitee) UnmarshalJSON(data []byte) error {
	type plain Invitee
	var p plain
	extra, err := unmarshalWithExtra(data, &p, inviteeFields)
	if err != nil {
		return err
	}
	*i = Invitee(p)
	i.Extra = extra
	return nil
}

func (i Invitee) MarshalJSON() ([]byte, error) {
	type plain Invitee
	return marshalWithExtra(plain(i), i.Extra)
}

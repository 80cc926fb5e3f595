package models

import "reflect"

// Event is stored as one JSON document per event.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Host      string    `json:"host"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Location  string    `json:"location"`
	Message   string    `json:"message"`
	Template  string    `json:"template"`
	Photo     *string   `json:"photo"`
	CreatedAt string    `json:"created_at"`
	Invitees  []Invitee `json:"invitees"`

	Extra Extra `json:"-"`
}

var eventFields = fieldNames(reflect.TypeOf(Event{}))

func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var p plain
	extra, err := unmarshalWithExtra(data, &p, eventFields)
	if err != nil {
		return err
	}
	*e = Event(p)
	e.Extra = extra
	return nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	if e.Invitees == nil {
		e.Invitees = []Invitee{}
	}
	return marshalWithExtra(plain(e), e.Extra)
}

// FindInvitee returns the index of the invitee for contactID, or -1.
func (e *Event) FindInvitee(contactID string) int {
	for i := range e.Invitees {
		if e.Invitees[i].ContactID == contactID {
			return i
		}
	}
	return -1
}

// FindToken returns the index of the invitee holding token, or -1.
func (e *Event) FindToken(token string) int {
	for i := range e.Invitees {
		if e.Invitees[i].Token == token {
			return i
		}
	}
	return -1
}

// FindShortToken returns the index of the invitee holding shortToken, or -1.
func (e *Event) FindShortToken(shortToken string) int {
	for i := range e.Invitees {
		if e.Invitees[i].ShortToken == shortToken {
			return i
		}
	}
	return -1
}

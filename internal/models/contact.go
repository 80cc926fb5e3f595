package models

import "reflect"

// Contact is an entry in the shared address book.
type Contact struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"created_at"`

	Extra Extra `json:"-"`
}

var contactFields = fieldNames(reflect.TypeOf(Contact{}))

func (c *Contact) UnmarshalJSON(data []byte) error {
	type plain Contact
	var p plain
	extra, err := unmarshalWithExtra(data, &p, contactFields)
	if err != nil {
		return err
	}
	*c = Contact(p)
	c.Extra = extra
	return nil
}

func (c Contact) MarshalJSON() ([]byte, error) {
	type plain Contact
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return marshalWithExtra(plain(c), c.Extra)
}

// Package contacts manages the address book stored as a single JSON array.
package contacts

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"invitation-app/internal/ids"
	"invitation-app/internal/models"
	"invitation-app/internal/storage"
	"invitation-app/internal/textutil"
)

var (
	ErrNotFound      = errors.New("contact not found")
	ErrNameRequired  = errors.New("contact name is required")
	ErrEmailRequired = errors.New("contact email is required")
	ErrInvalidCSV    = errors.New("invalid contacts csv")
)

// Input carries the editable fields of a contact.
type Input struct {
	Name  string
	Email string
	Phone string
	Tags  []string
}

// ImportResult counts the rows of a CSV import.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

type Repository struct {
	store *storage.Store
	path  string
	log   zerolog.Logger

	newID func() string
	now   func() string
}

// NewRepository stores contacts in the JSON file at path.
func NewRepository(store *storage.Store, path string, log zerolog.Logger) *Repository {
	return &Repository{
		store: store,
		path:  path,
		log:   log.With().Str("component", "contacts").Logger(),
		newID: ids.NewID,
		now:   ids.Now,
	}
}

// List returns every contact in insertion order.
func (r *Repository) List() ([]models.Contact, error) {
	contacts, err := storage.Read[[]models.Contact](r.store, r.path)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	return contacts, nil
}

func (r *Repository) Get(id string) (models.Contact, error) {
	contacts, err := r.List()
	if err != nil {
		return models.Contact{}, err
	}
	for _, c := range contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Contact{}, ErrNotFound
}

// GetMany returns the contacts whose ids are listed, in address book order.
// Unknown ids are ignored.
func (r *Repository) GetMany(contactIDs []string) ([]models.Contact, error) {
	contacts, err := r.List()
	if err != nil {
		return nil, err
	}
	selected := make([]models.Contact, 0, len(contactIDs))
	for _, c := range contacts {
		if slices.Contains(contactIDs, c.ID) {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

// Add appends a new contact. Email uniqueness is not checked here.
func (r *Repository) Add(in Input) (models.Contact, error) {
	clean, err := cleanInput(in)
	if err != nil {
		return models.Contact{}, err
	}

	contact := models.Contact{
		ID:        r.newID(),
		Name:      clean.Name,
		Email:     clean.Email,
		Phone:     clean.Phone,
		Tags:      clean.Tags,
		CreatedAt: r.now(),
	}

	err = storage.Transact(r.store, r.path, func(doc *[]models.Contact) error {
		*doc = append(*doc, contact)
		return nil
	})
	if err != nil {
		return models.Contact{}, fmt.Errorf("add contact: %w", err)
	}

	r.log.Info().Str("contact_id", contact.ID).Msg("contact added")
	return contact, nil
}

// Update replaces the editable fields of a contact, keeping id and created_at.
func (r *Repository) Update(id string, in Input) (models.Contact, error) {
	clean, err := cleanInput(in)
	if err != nil {
		return models.Contact{}, err
	}

	var updated models.Contact
	err = storage.Transact(r.store, r.path, func(doc *[]models.Contact) error {
		for i := range *doc {
			c := &(*doc)[i]
			if c.ID != id {
				continue
			}
			c.Name = clean.Name
			c.Email = clean.Email
			c.Phone = clean.Phone
			c.Tags = clean.Tags
			updated = *c
			return nil
		}
		return ErrNotFound
	})
	if errors.Is(err, ErrNotFound) {
		return models.Contact{}, ErrNotFound
	}
	if err != nil {
		return models.Contact{}, fmt.Errorf("update contact: %w", err)
	}
	return updated, nil
}

// Delete removes a contact and reports whether it existed. Events keep their
// own copy of the contact's details.
func (r *Repository) Delete(id string) (bool, error) {
	removed := false
	err := storage.Transact(r.store, r.path, func(doc *[]models.Contact) error {
		before := len(*doc)
		*doc = slices.DeleteFunc(*doc, func(c models.Contact) bool { return c.ID == id })
		removed = len(*doc) < before
		if !removed {
			return storage.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete contact: %w", err)
	}
	return removed, nil
}

// Search matches query case-insensitively against name, email and tags.
// Callers list everything instead of searching for an empty query.
func (r *Repository) Search(query string) ([]models.Contact, error) {
	contacts, err := r.List()
	if err != nil {
		return nil, err
	}
	matches := make([]models.Contact, 0)
	for _, c := range contacts {
		if matchesQuery(c, query) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

func matchesQuery(c models.Contact, query string) bool {
	if textutil.ContainsFold(c.Name, query) || textutil.ContainsFold(c.Email, query) {
		return true
	}
	for _, tag := range c.Tags {
		if textutil.ContainsFold(tag, query) {
			return true
		}
	}
	return false
}

// Tags returns every distinct tag, sorted.
func (r *Repository) Tags() ([]string, error) {
	contacts, err := r.List()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, c := range contacts {
		for _, tag := range c.Tags {
			set[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

// ImportCSV appends the rows of a CSV with a name,email,phone,tags header.
// Rows without a name or email, or whose email is already in the address
// book (including earlier rows of the same import), are skipped.
func (r *Repository) ImportCSV(src io.Reader) (ImportResult, error) {
	rows, err := parseCSV(src)
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	err = storage.Transact(r.store, r.path, func(doc *[]models.Contact) error {
		seen := make(map[string]struct{}, len(*doc)+len(rows))
		for _, c := range *doc {
			seen[strings.ToLower(c.Email)] = struct{}{}
		}

		for _, row := range rows {
			clean, err := cleanInput(row)
			if err != nil {
				result.Skipped++
				continue
			}
			if _, dup := seen[clean.Email]; dup {
				result.Skipped++
				continue
			}
			*doc = append(*doc, models.Contact{
				ID:        r.newID(),
				Name:      clean.Name,
				Email:     clean.Email,
				Phone:     clean.Phone,
				Tags:      clean.Tags,
				CreatedAt: r.now(),
			})
			seen[clean.Email] = struct{}{}
			result.Added++
		}

		if result.Added == 0 {
			return storage.ErrSkipWrite
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("import contacts: %w", err)
	}

	r.log.Info().Int("added", result.Added).Int("skipped", result.Skipped).Msg("contacts imported")
	return result, nil
}

func parseCSV(src io.Reader) ([]Input, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, ok := columns[name]; !ok {
			columns[name] = i
		}
	}
	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Input
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
		}
		rows = append(rows, Input{
			Name:  field(record, "name"),
			Email: field(record, "email"),
			Phone: field(record, "phone"),
			Tags:  textutil.SplitTags(field(record, "tags")),
		})
	}
	return rows, nil
}

func cleanInput(in Input) (Input, error) {
	clean := Input{
		Name:  textutil.Sanitize(in.Name),
		Email: strings.ToLower(textutil.Sanitize(in.Email)),
		Phone: textutil.Sanitize(in.Phone),
		Tags:  textutil.CleanTags(in.Tags),
	}
	if clean.Name == "" {
		return Input{}, ErrNameRequired
	}
	if clean.Email == "" {
		return Input{}, ErrEmailRequired
	}
	return clean, nil
}

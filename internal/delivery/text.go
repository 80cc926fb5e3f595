package delivery

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"invitation-app/internal/models"
)

var ErrInvalidPhone = errors.New("invalid phone number")

const (
	textLimit     = 160
	textFieldSize = 40
)

// FormatText builds the text message invitation. It aims for one 160
// character segment: long titles and locations are shortened and the
// location is dropped when the message is still too long.
func FormatText(ev models.Event, shortURL string) string {
	title := truncate(html.UnescapeString(ev.Title))
	location := truncate(html.UnescapeString(ev.Location))

	lines := []string{
		fmt.Sprintf("You're invited to %s!", title),
		fmt.Sprintf("%s @ %s", FormatDate(ev.Date), FormatTime(ev.Time)),
	}
	if location != "" {
		lines = append(lines, location)
	}
	lines = append(lines, "RSVP: "+shortURL)

	msg := strings.Join(lines, "\n")
	if utf8.RuneCountInString(msg) > textLimit && location != "" {
		msg = strings.Join([]string{lines[0], lines[1], lines[len(lines)-1]}, "\n")
	}
	return msg
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= textFieldSize {
		return s
	}
	return string(r[:textFieldSize-3]) + "..."
}

// NormalizePhone converts a phone number to E.164. Numbers given with a
// leading + need at least ten digits; otherwise ten digits are taken as
// North American and eleven digits must start with 1.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", ErrInvalidPhone
	}

	if rest, ok := strings.CutPrefix(phone, "+"); ok {
		digits := digitsOnly(rest)
		if len(digits) >= 10 {
			return "+" + digits, nil
		}
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}

	digits := digitsOnly(phone)
	switch {
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < utf8.RuneSelf && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package rooms

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Status is the listing state of a room.
type Status string

const (
	StatusAvailable  Status = "AVAILABLE"
	StatusGuiding    Status = "GUIDING"
	StatusContracted Status = "CONTRACTED"
)

var statusOrder = []Status{StatusAvailable, StatusGuiding, StatusContracted}

var statusLabels = map[Status]string{
	StatusAvailable:  "Available",
	StatusGuiding:    "Guiding",
	StatusContracted: "Contracted",
}

// Statuses returns every defined status in display order.
func Statuses() []Status {
	return slices.Clone(statusOrder)
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	return lo.Contains(statusOrder, s)
}

// Label returns the human-readable name shown by the views.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return "Unknown"
}

// ParseStatus converts a wire value into a Status. Surrounding whitespace is
// ignored; the value itself is case-sensitive.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.TrimSpace(value))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
	return s, nil
}

// UnmarshalJSON decodes a wire status through ParseStatus. null leaves s
// unchanged.
func (s *Status) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Room mirrors one record of GET /rooms.
type Room struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Status  Status `json:"status" validate:"required,oneof=AVAILABLE GUIDING CONTRACTED"`
}

// ValidateRooms checks that every record carries an id and a defined status
// and that no id repeats.
func ValidateRooms(list []Room) error {
	for i, room := range list {
		if err := validate.Struct(room); err != nil {
			return fmt.Errorf("%w: room %d: %w", ErrInvalidSnapshot, i, err)
		}
	}
	if dups := lo.FindDuplicatesBy(list, func(r Room) string { return r.ID }); len(dups) > 0 {
		return fmt.Errorf("%w: duplicate room id %q", ErrInvalidSnapshot, dups[0].ID)
	}
	return nil
}

package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

type AttendeeInfo struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (a AttendeeInfo) Valid() bool {
	a.Name = strings.TrimSpace(a.Name)
	a.Email = strings.TrimSpace(a.Email)
	return validate.Struct(a) == nil
}

func BlankAttendees(n int) []AttendeeInfo {
	if n <= 0 {
		return []AttendeeInfo{}
	}
	return make([]AttendeeInfo, n)
}

// ValidateAttendees requires exactly want entries, all valid.
func ValidateAttendees(attendees []AttendeeInfo, want int) error {
	if len(attendees) != want {
		return ErrAttendeesIncomplete
	}
	for _, a := range attendees {
		if !a.Valid() {
			return ErrAttendeesIncomplete
		}
	}
	return nil
}

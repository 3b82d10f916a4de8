package exchange

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type CreateRequestInput struct {
	RequesterID   uuid.UUID `validate:"required"`
	ItemOwnerID   uuid.UUID `validate:"required"`
	ItemID        uuid.UUID `validate:"required"`
	Type          string    `validate:"required,oneof=borrow lend exchange donate"`
	ProposedPrice *int64    `validate:"omitempty,min=0"`
	Message       string    `validate:"max=500"`
	DurationDays  *int      `validate:"omitempty,min=1,max=365"`
}

// Respond actions.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

type RespondInput struct {
	ExchangeID uuid.UUID `validate:"required"`
	OwnerID    uuid.UUID `validate:"required"`
	Action     string    `validate:"required,oneof=accept reject"`
	Message    string    `validate:"max=500"`
}

type CompleteInput struct {
	ExchangeID uuid.UUID `validate:"required"`
	CallerID   uuid.UUID `validate:"required"`
	Rating     *int      `validate:"omitempty,min=1,max=5"`
	Review     string    `validate:"max=500"`
}

type MarkLateInput struct {
	ExchangeID uuid.UUID `validate:"required"`
	OwnerID    uuid.UUID `validate:"required"`
	DaysLate   int       `validate:"min=1,max=365"`
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validateInput runs struct validation and folds failures into ErrInvalidInput.
func validateInput(v *validator.Validate, in any) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, e.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, e.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// sanitize strips markup and control characters from user supplied text.
func sanitize(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r != '\n' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

package redemption

import (
	"regexp"
	"strings"

	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/validation"
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// Input is one redemption attempt as submitted by the public form.
// Either CodeSlug or CodeID identifies the code.
type Input struct {
	CodeSlug   string `json:"code_slug"`
	CodeID     string `json:"code_id"`
	CampaignID string `json:"campaign_id" validate:"required"`
	FirstName  string `json:"first_name" validate:"required,min=2,max=50"`
	LastName   string `json:"last_name" validate:"required,min=2,max=50"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,mobile"`
}

// Normalize trims names, lower-cases the email and reduces the phone to
// its national digits without the leading zero.
func (in Input) Normalize() Input {
	in.CodeSlug = strings.TrimSpace(in.CodeSlug)
	in.CodeID = strings.TrimSpace(in.CodeID)
	in.CampaignID = strings.TrimSpace(in.CampaignID)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimPrefix(nonDigits.ReplaceAllString(in.Phone, ""), "0")
	return in
}

// validate checks a normalized input and reports every rejected field
func validate(v *validation.Validator, in Input) error {
	var details []model.FieldError
	if in.CodeSlug == "" && in.CodeID == "" {
		details = append(details, model.FieldError{Field: "code_slug", Message: "code_slug or code_id is required"})
	}

	fields, err := v.Fields(in)
	if err != nil {
		return err
	}
	details = append(details, fields...)

	if len(details) > 0 {
		return model.ValidationError(details...)
	}
	return nil
}

package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"task-audit/internal/model"
)

var sheetURLPattern = regexp.MustCompile(`^https://docs\.google\.com/spreadsheets/d/[a-zA-Z0-9_-]+`)

// Submission is the evidence handed in when an assignee completes a task.
type Submission struct {
	Type     model.SubmissionType `validate:"required,oneof=sheet_link"`
	SheetURL string               `validate:"required,max=500,url,google_sheet"`
	Notes    string
}

// SheetSubmission is a completion backed by a Google Sheets link.
func SheetSubmission(sheetURL, notes string) Submission {
	return Submission{Type: model.SubmissionSheetLink, SheetURL: sheetURL, Notes: notes}
}

func newSubmissionValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("google_sheet", func(fl validator.FieldLevel) bool {
		return sheetURLPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

func (s *WorkflowService) checkSubmission(sub Submission) (Submission, error) {
	sub.SheetURL = strings.TrimSpace(sub.SheetURL)
	switch {
	case sub.Type == "":
		return sub, &FieldError{Field: "submission_type"}
	case sub.Type == model.SubmissionSheetLink && sub.SheetURL == "":
		return sub, &FieldError{Field: "sheet_url"}
	}
	if err := s.validate.Struct(sub); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			switch fieldErrs[0].Field() {
			case "Type":
				return sub, fmt.Errorf("%w: unsupported submission type %q", ErrInvalidInput, sub.Type)
			case "SheetURL":
				return sub, fmt.Errorf("%w: %q is not a Google Sheets link", ErrInvalidInput, sub.SheetURL)
			}
		}
		return sub, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	return sub, nil
}

